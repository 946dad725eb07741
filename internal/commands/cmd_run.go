package commands

import (
	"context"
	"fmt"
	"os"

	"github.com/urfave/cli/v3"

	"github.com/deixis/autoview/internal/console"
	"github.com/deixis/autoview/internal/logging"
	"github.com/deixis/autoview/internal/workflow"
)

type RunCmd struct {
	flags *Flags

	// flags
	noPause bool
	strict  bool
}

// NewRunCmd creates a new run command
func NewRunCmd(flags *Flags) *RunCmd {
	return &RunCmd{flags: flags}
}

// Flags returns the run flags so they can also be registered on the root
// command, where run is the default action.
func (cmd *RunCmd) Flags() []cli.Flag {
	return []cli.Flag{
		&cli.BoolFlag{
			Name:        "no-pause",
			Usage:       "exit without waiting for Enter after the summary",
			Sources:     cli.EnvVars("AUTOVIEW_NO_PAUSE"),
			Destination: &cmd.noPause,
		},
		&cli.BoolFlag{
			Name:        "strict",
			Usage:       "exit with status 4 when any script fails",
			Destination: &cmd.strict,
		},
	}
}

// Register adds the run command to the application
func (cmd *RunCmd) Register(app *cli.Command) *cli.Command {
	app.Commands = append(app.Commands, &cli.Command{
		Name:      "run",
		Usage:     "Activate the environment and run the analysis scripts",
		UsageText: "autoview run [--no-pause] [--strict]",
		Description: `Checks the working directory, activates the Python virtual environment and runs
each configured script in order, waiting the configured delay between them.

A script that exits non-zero is reported as a warning and the next script still
runs. A missing working directory (exit 2) or a broken environment (exit 3)
aborts before any script runs.`,
		Flags:  cmd.Flags(),
		Action: cmd.Run,
	})

	return app
}

// Run executes the pipeline and maps its outcome to the process exit status.
func (cmd *RunCmd) Run(ctx context.Context, c *cli.Command) error {
	cfg := cmd.flags.Config
	log := logging.Component("run")

	store := newStore(cfg)
	engine := newEngine(cfg, store, runnerFactory(cfg, cfg.Timeout(), os.Stdout, os.Stderr), log)
	engine.Console = console.New(c.Root().Writer, os.Stdin)
	engine.Pause = cfg.PauseEnabled() && !cmd.noPause
	if cfg.Archive.AfterRun {
		engine.Archiver = newArchiver(cfg)
	}

	o := engine.Run(ctx)

	code := o.ExitCode(cmd.strict || cfg.FailOnStepError)
	log.Info().
		Str("run_id", o.RunID).
		Str("outcome", string(o.Kind)).
		Int("exit_code", code).
		Msg("run finished")

	if code != workflow.ExitOK {
		return cli.Exit(exitMessage(o, code), code)
	}
	return nil
}

func exitMessage(o *workflow.Outcome, code int) string {
	if code == workflow.ExitStepsFailed {
		return fmt.Sprintf("%d script(s) failed", len(o.Failed()))
	}
	// Fatal reasons were already printed by the console.
	return ""
}
