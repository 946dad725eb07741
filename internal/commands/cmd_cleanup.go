package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/urfave/cli/v3"
)

type CleanupCmd struct {
	flags *Flags

	// flags
	olderThan time.Duration
	list      bool
}

// NewCleanupCmd creates a new cleanup command
func NewCleanupCmd(flags *Flags) *CleanupCmd {
	return &CleanupCmd{flags: flags}
}

// Register adds the cleanup command to the application
func (cmd *CleanupCmd) Register(app *cli.Command) *cli.Command {
	app.Commands = append(app.Commands, &cli.Command{
		Name:      "cleanup",
		Usage:     "Delete old archives",
		UsageText: "autoview cleanup [--older-than 168h] [--list]",
		Description: `Deletes archives older than --older-than (defaults to archive.retention, then
seven days). With --list, shows the remaining archives afterwards.`,
		Flags: []cli.Flag{
			&cli.DurationFlag{
				Name:        "older-than",
				Usage:       "delete archives older than this duration",
				Destination: &cmd.olderThan,
			},
			&cli.BoolFlag{
				Name:        "list",
				Usage:       "list remaining archives",
				Destination: &cmd.list,
			},
		},
		Action: cmd.run,
	})

	return app
}

func (cmd *CleanupCmd) run(ctx context.Context, c *cli.Command) error {
	cfg := cmd.flags.Config
	archiver := newArchiver(cfg)

	olderThan := cmd.olderThan
	if olderThan <= 0 {
		olderThan = cfg.ArchiveRetention()
	}

	n, err := archiver.Cleanup(olderThan)
	if err != nil {
		return fmt.Errorf("cleanup: %w", err)
	}
	_, _ = fmt.Fprintf(c.Root().Writer, "Deleted %d archive(s) older than %s\n", n, olderThan)

	if cmd.list {
		list, err := archiver.List()
		if err != nil {
			return fmt.Errorf("list archives: %w", err)
		}
		if len(list) > 0 {
			printArchives(c, list)
		}
	}
	return nil
}
