// Command autoview runs the content and comment analysis scripts inside
// their Python virtual environment.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"runtime/debug"
	"syscall"

	"github.com/rs/zerolog/log"
	"github.com/urfave/cli/v3"

	"github.com/deixis/autoview"
	"github.com/deixis/autoview/internal/commands"
	"github.com/deixis/autoview/internal/config"
	"github.com/deixis/autoview/internal/logging"
	"github.com/deixis/autoview/internal/workflow"
)

var (
	// Build information. Populated at build-time via -ldflags flag.
	commit = "HEAD"
	date   = "now"
)

func build() string {
	v, c, d := autoview.Version, commit, date

	if v == "dev" {
		if info, ok := debug.ReadBuildInfo(); ok {
			if mv := info.Main.Version; mv != "" && mv != "(devel)" {
				v = mv
			}
			for _, s := range info.Settings {
				switch s.Key {
				case "vcs.revision":
					c = s.Value
				case "vcs.time":
					d = s.Value
				}
			}
		}
	}

	short := c
	if len(c) > 7 {
		short = c[:7]
	}

	return fmt.Sprintf("%s (%s) %s", v, short, d)
}

func main() {
	os.Exit(run())
}

func run() int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	go func() {
		// A second interrupt terminates immediately, e.g. at the closing prompt.
		<-ctx.Done()
		stop()
	}()

	return exitCode(newApp().Run(ctx, os.Args))
}

// newApp builds the root command. With no subcommand it runs the pipeline.
func newApp() *cli.Command {
	var logCloser func()

	flags := &commands.Flags{}

	app := &cli.Command{
		Name:      "autoview",
		Usage:     "Run the content and comment analysis scripts",
		UsageText: "autoview [global options] [command [command options]]",
		Description: `autoview activates the configured Python virtual environment and runs the
analysis scripts one after the other, then prints a summary of which scripts
succeeded. The scripts write their results to the contents and comments
folders on the desktop.

Run 'autoview' with no arguments to run the pipeline.
Run 'autoview serve' to control runs and download results from a browser.`,
		Version: build(),
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "log-level",
				Usage:       "log level (debug, info, warn, error, fatal, panic)",
				Sources:     cli.EnvVars("AUTOVIEW_LOG_LEVEL"),
				Value:       "info",
				Destination: &flags.LogLevel,
			},
			&cli.StringFlag{
				Name:        "log-file",
				Usage:       "path to log file (defaults to <data-dir>/autoview.log)",
				Sources:     cli.EnvVars("AUTOVIEW_LOG_FILE"),
				Destination: &flags.LogFile,
			},
			&cli.StringFlag{
				Name:        "config",
				Aliases:     []string{"c"},
				Usage:       "path to config file",
				Sources:     cli.EnvVars("AUTOVIEW_CONFIG"),
				Value:       commands.DefaultConfigPath(),
				Destination: &flags.ConfigPath,
			},
			&cli.StringFlag{
				Name:        "data-dir",
				Usage:       "path to data directory",
				Sources:     cli.EnvVars("AUTOVIEW_DATA_DIR"),
				Value:       commands.DefaultDataDir(),
				Destination: &flags.DataDir,
			},
		},
		Before: func(ctx context.Context, c *cli.Command) (context.Context, error) {
			logFile := flags.LogFile
			if logFile == "" {
				logFile = filepath.Join(flags.DataDir, "autoview.log")
			}

			logger, closer, err := logging.New(flags.LogLevel, logFile)
			if err != nil {
				return ctx, fmt.Errorf("setup logger: %w", err)
			}
			log.Logger = logger
			logCloser = closer

			cfg, err := config.Load(flags.ConfigPath, flags.DataDir)
			if err != nil {
				return ctx, fmt.Errorf("load config: %w", err)
			}
			flags.Config = cfg

			log.Debug().
				Str("config", flags.ConfigPath).
				Str("working_directory", cfg.WorkingDirectory).
				Strs("steps", cfg.StepNames()).
				Msg("config loaded")

			return ctx, nil
		},
		After: func(ctx context.Context, c *cli.Command) error {
			if logCloser != nil {
				logCloser()
			}
			return nil
		},
		// Exit codes are handled below so After always runs.
		ExitErrHandler: func(context.Context, *cli.Command, error) {},
	}

	runCmd := commands.NewRunCmd(flags)

	app = runCmd.Register(app)
	app = commands.NewServeCmd(flags).Register(app)
	app = commands.NewMcpCmd(flags).Register(app)
	app = commands.NewArchiveCmd(flags).Register(app)
	app = commands.NewCleanupCmd(flags).Register(app)
	app = commands.NewHistoryCmd(flags).Register(app)

	// Run the pipeline when no subcommand is provided
	app.Flags = append(app.Flags, runCmd.Flags()...)
	app.Action = func(ctx context.Context, c *cli.Command) error {
		if c.Args().Len() > 0 {
			return fmt.Errorf("unknown command %q. Run 'autoview --help' for usage", c.Args().First())
		}
		return runCmd.Run(ctx, c)
	}

	return app
}

func exitCode(err error) int {
	if err == nil {
		return workflow.ExitOK
	}

	var ec cli.ExitCoder
	if errors.As(err, &ec) {
		if msg := err.Error(); msg != "" {
			fmt.Fprintln(os.Stderr, msg)
		}
		return ec.ExitCode()
	}

	fmt.Fprintln(os.Stderr)
	fmt.Fprintln(os.Stderr, err.Error())
	return workflow.ExitError
}
