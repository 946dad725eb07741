package mcp

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/deixis/autoview/internal/workflow"
)

type runParams struct{}

type runStepParams struct {
	Step string `json:"step" jsonschema:"name of the configured step to run, e.g. contents or comments"`
}

func (h *handler) runHandler(ctx context.Context, req *mcp.CallToolRequest, params runParams) (*mcp.CallToolResult, any, error) {
	if !h.mu.TryLock() {
		return errorResult("a run is already in progress")
	}
	defer h.mu.Unlock()

	o := h.unattended().Run(ctx)
	return outcomeResult(o)
}

func (h *handler) runStepHandler(ctx context.Context, req *mcp.CallToolRequest, params runStepParams) (*mcp.CallToolResult, any, error) {
	if params.Step == "" {
		return errorResult("step is required")
	}
	if !h.mu.TryLock() {
		return errorResult("a run is already in progress")
	}
	defer h.mu.Unlock()

	o, err := h.unattended().RunStep(ctx, params.Step)
	if errors.Is(err, workflow.ErrUnknownStep) {
		return errorResult(err.Error())
	}
	if err != nil {
		return errorResult(fmt.Sprintf("run failed: %v", err))
	}
	return outcomeResult(o)
}

// outcomeResult reports fatal outcomes as tool errors. Completed runs are
// never errors, even when a script failed.
func outcomeResult(o *workflow.Outcome) (*mcp.CallToolResult, any, error) {
	text := formatOutcome(o)
	if o.Kind == workflow.Fatal {
		return errorResult(text)
	}
	return textResult(text)
}

func formatOutcome(o *workflow.Outcome) string {
	var b strings.Builder

	status := "PASS"
	switch {
	case o.Kind == workflow.Fatal:
		status = "FATAL"
	case len(o.Failed()) > 0:
		status = "FAIL"
	}
	fmt.Fprintf(&b, "Status: %s\n", status)
	fmt.Fprintf(&b, "Run: %s\n", o.RunID)

	if o.Kind == workflow.Fatal {
		fmt.Fprintf(&b, "Failed at: %s\n", o.Stage)
		fmt.Fprintf(&b, "Reason: %v\n", o.Reason)
		if len(o.Steps) == 0 {
			fmt.Fprintln(&b, "No scripts were run.")
			return b.String()
		}
	}
	fmt.Fprintln(&b)

	for _, s := range o.Steps {
		if s.Succeeded {
			fmt.Fprintf(&b, "%s: ok (%s)\n", s.Name, s.Duration.Round(time.Millisecond))
			continue
		}
		if s.Detail != "" {
			fmt.Fprintf(&b, "%s: fail (%s)\n", s.Name, s.Detail)
		} else {
			fmt.Fprintf(&b, "%s: fail (exit %d)\n", s.Name, s.ExitCode)
		}
	}

	if len(o.Archives) > 0 {
		fmt.Fprintln(&b)
		fmt.Fprintln(&b, "Archives:")
		for _, a := range o.Archives {
			fmt.Fprintf(&b, "  %s\n", a)
		}
	}

	if len(o.Failed()) > 0 {
		fmt.Fprintln(&b)
		fmt.Fprintf(&b, "Inspect with autoview_inspect(run_id=%q).\n", o.RunID)
	}
	return b.String()
}
