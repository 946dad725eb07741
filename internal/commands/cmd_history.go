package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/urfave/cli/v3"
)

type HistoryCmd struct {
	flags *Flags

	// flags
	jsonOutput bool
	limit      int
}

// NewHistoryCmd creates a new history command
func NewHistoryCmd(flags *Flags) *HistoryCmd {
	return &HistoryCmd{flags: flags}
}

// Register adds the history command to the application
func (cmd *HistoryCmd) Register(app *cli.Command) *cli.Command {
	app.Commands = append(app.Commands, &cli.Command{
		Name:      "history",
		Usage:     "List recent runs",
		UsageText: "autoview history [--json] [--limit N]",
		Description: `Shows the most recent runs, newest first, with the outcome of each script.

Use --json for one JSON object per line including the tail of each script's output.`,
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:        "json",
				Usage:       "output as JSON lines",
				Destination: &cmd.jsonOutput,
			},
			&cli.IntFlag{
				Name:        "limit",
				Aliases:     []string{"n"},
				Usage:       "number of runs to show",
				Value:       10,
				Destination: &cmd.limit,
			},
		},
		Action: cmd.run,
	})

	return app
}

func (cmd *HistoryCmd) run(ctx context.Context, c *cli.Command) error {
	runs, err := newStore(cmd.flags.Config).List(cmd.limit)
	if err != nil {
		return fmt.Errorf("list runs: %w", err)
	}

	out := c.Root().Writer

	if cmd.jsonOutput {
		enc := json.NewEncoder(out)
		for _, r := range runs {
			if err := enc.Encode(r); err != nil {
				return fmt.Errorf("encode run: %w", err)
			}
		}
		return nil
	}

	if len(runs) == 0 {
		_, _ = fmt.Fprintf(os.Stderr, "No runs found\n")
		return nil
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "ID\tSTARTED\tKIND\tRESULT")
	for _, r := range runs {
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", r.ID, r.StartedAt.Format("2006-01-02 15:04:05"), r.Kind, r.Summary())
	}
	return w.Flush()
}
