// Package mcp provides the autoview MCP server, registering the run,
// archive and inspection tools and publishing model instructions.
package mcp

import (
	_ "embed"
	"sync"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/deixis/autoview"
	"github.com/deixis/autoview/internal/archive"
	"github.com/deixis/autoview/internal/report"
	"github.com/deixis/autoview/internal/workflow"
)

//go:embed instructions.md
var Instructions string

// handler holds shared dependencies for all tool handlers.
type handler struct {
	engine   *workflow.Engine
	archiver *archive.Archiver
	store    report.Store

	mu sync.Mutex // one pipeline or step at a time
}

// NewServer creates an MCP server with all autoview tools registered.
// The engine must not write to stdout when served over stdio; it is copied
// per call with pausing disabled.
func NewServer(engine *workflow.Engine, archiver *archive.Archiver, store report.Store) *mcp.Server {
	h := &handler{
		engine:   engine,
		archiver: archiver,
		store:    store,
	}

	opts := &mcp.ServerOptions{
		Instructions: Instructions,
		Capabilities: &mcp.ServerCapabilities{
			Tools: &mcp.ToolCapabilities{ListChanged: false},
		},
	}
	s := mcp.NewServer(&mcp.Implementation{Name: "autoview", Version: autoview.Version}, opts)

	mcp.AddTool(s, &mcp.Tool{
		Name: "autoview_run",
		Description: `Run the full analysis pipeline: activate the virtual environment, run every configured script
in order with the configured delay between them, and report one result per script.

A failing script does not stop the pipeline. Setup failures (working directory, activation) abort
before any script runs. Results are stored for drill-down via autoview_inspect.`,
	}, h.runHandler)

	mcp.AddTool(s, &mcp.Tool{
		Name: "autoview_run_step",
		Description: `Run a single configured script by name (e.g. "contents" or "comments") after activating
the virtual environment. No delay is applied.`,
	}, h.runStepHandler)

	mcp.AddTool(s, &mcp.Tool{
		Name: "autoview_archives",
		Description: `Manage zip archives of the output folders.

action=list shows existing archives, action=compress zips one folder (or all when folder is empty),
action=cleanup deletes archives older than older_than (default: configured retention).`,
	}, h.archivesHandler)

	mcp.AddTool(s, &mcp.Tool{
		Name: "autoview_inspect",
		Description: `Show a stored run by run_id, including the tail of each script's output.
Pass an empty run_id to list the most recent runs.`,
	}, h.inspectHandler)

	return s
}

// textResult is a helper to build a text-only tool result.
func textResult(text string) (*mcp.CallToolResult, any, error) {
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: text}},
	}, nil, nil
}

// errorResult is a helper to build an error tool result.
func errorResult(text string) (*mcp.CallToolResult, any, error) {
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: text}},
		IsError: true,
	}, nil, nil
}

// unattended returns a copy of the engine that never waits for the user.
func (h *handler) unattended() *workflow.Engine {
	e := *h.engine
	e.Pause = false
	return &e
}
