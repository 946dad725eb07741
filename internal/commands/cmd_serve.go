package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/urfave/cli/v3"

	"github.com/deixis/autoview/internal/logging"
	"github.com/deixis/autoview/internal/server"
)

const shutdownTimeout = 10 * time.Second

type ServeCmd struct {
	flags *Flags

	// flags
	addr string
}

// NewServeCmd creates a new serve command
func NewServeCmd(flags *Flags) *ServeCmd {
	return &ServeCmd{flags: flags}
}

// Register adds the serve command to the application
func (cmd *ServeCmd) Register(app *cli.Command) *cli.Command {
	app.Commands = append(app.Commands, &cli.Command{
		Name:      "serve",
		Usage:     "Start the remote-control web server",
		UsageText: "autoview serve [--addr :8000]",
		Description: `Serves a small control page from which each script can be started and the
zipped output folders downloaded, e.g. from a phone on the same network.

Only one script runs at a time. Each run is bounded by server.step_timeout and
its output folder is archived when it finishes.`,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "addr",
				Usage:       "listen address (defaults to server.addr, then :8000)",
				Sources:     cli.EnvVars("AUTOVIEW_ADDR"),
				Destination: &cmd.addr,
			},
		},
		Action: cmd.run,
	})

	return app
}

func (cmd *ServeCmd) run(ctx context.Context, c *cli.Command) error {
	cfg := cmd.flags.Config
	log := logging.Component("server")

	addr := cmd.addr
	if addr == "" {
		addr = cfg.ServerAddr()
	}

	store := newStore(cfg)
	archiver := newArchiver(cfg)
	engine := newEngine(cfg, store, runnerFactory(cfg, cfg.ServerStepTimeout(), nil, nil), log)
	engine.Archiver = archiver

	srv := server.New(engine, archiver, store, log)
	if err := srv.Start(ctx, addr); err != nil {
		return err
	}

	out := c.Root().Writer
	_, _ = fmt.Fprintf(out, "Remote control listening on http://%s\n", srv.Addr())
	if list, err := archiver.List(); err == nil {
		_, _ = fmt.Fprintf(out, "%d archive(s) available for download\n", len(list))
		for _, a := range list {
			_, _ = fmt.Fprintf(out, "  - %s (%s)\n", a.Name, a.HumanSize)
		}
	}
	_, _ = fmt.Fprintln(out, "Press Ctrl+C to stop")

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}
