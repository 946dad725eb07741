package commands

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/urfave/cli/v3"

	"github.com/deixis/autoview/internal/logging"
	avmcp "github.com/deixis/autoview/internal/mcp"
)

type McpCmd struct {
	flags *Flags

	// flags
	httpAddr     string
	instructions bool
}

// NewMcpCmd creates a new mcp command
func NewMcpCmd(flags *Flags) *McpCmd {
	return &McpCmd{flags: flags}
}

// Register adds the mcp command to the application
func (cmd *McpCmd) Register(app *cli.Command) *cli.Command {
	app.Commands = append(app.Commands, &cli.Command{
		Name:      "mcp",
		Usage:     "Start the MCP server",
		UsageText: "autoview mcp [--http :9090] [--instructions]",
		Description: `Serves the autoview tools over the Model Context Protocol, on stdio by default
or over streamable HTTP with --http. Runs started this way never pause.`,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "http",
				Usage:       "start HTTP server on address (e.g. :9090)",
				Destination: &cmd.httpAddr,
			},
			&cli.BoolFlag{
				Name:        "instructions",
				Usage:       "print model instructions and exit",
				Destination: &cmd.instructions,
			},
		},
		Action: cmd.run,
	})

	return app
}

func (cmd *McpCmd) run(ctx context.Context, c *cli.Command) error {
	if cmd.instructions {
		_, _ = fmt.Fprint(c.Root().Writer, avmcp.Instructions)
		return nil
	}

	cfg := cmd.flags.Config
	log := logging.Component("mcp")

	// stdout belongs to the protocol; script output is only captured.
	store := newStore(cfg)
	archiver := newArchiver(cfg)
	engine := newEngine(cfg, store, runnerFactory(cfg, cfg.Timeout(), nil, nil), log)
	if cfg.Archive.AfterRun {
		engine.Archiver = archiver
	}

	server := avmcp.NewServer(engine, archiver, store)

	if cmd.httpAddr != "" {
		return serveHTTP(ctx, server, cmd.httpAddr)
	}
	return server.Run(ctx, &mcpsdk.StdioTransport{})
}

func serveHTTP(ctx context.Context, server *mcpsdk.Server, addr string) error {
	handler := mcpsdk.NewStreamableHTTPHandler(
		func(_ *http.Request) *mcpsdk.Server { return server },
		nil,
	)

	httpServer := &http.Server{
		Addr:    addr,
		Handler: handler,
	}

	go func() {
		<-ctx.Done()
		_ = httpServer.Close()
	}()

	logging.Component("mcp").Info().Str("addr", addr).Msg("listening")
	if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("http server: %w", err)
	}
	return nil
}
