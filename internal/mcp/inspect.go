package mcp

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/deixis/autoview/internal/report"
)

const recentRuns = 10

type inspectParams struct {
	RunID string `json:"run_id,omitempty" jsonschema:"the run ID from an autoview_run or autoview_run_step result; empty lists recent runs"`
}

func (h *handler) inspectHandler(ctx context.Context, req *mcp.CallToolRequest, params inspectParams) (*mcp.CallToolResult, any, error) {
	if params.RunID == "" {
		runs, err := h.store.List(recentRuns)
		if err != nil {
			return errorResult(fmt.Sprintf("listing runs: %v", err))
		}
		return textResult(formatRunList(runs))
	}

	result, err := h.store.Load(params.RunID)
	if errors.Is(err, report.ErrNotFound) {
		return errorResult(fmt.Sprintf("Run %s not found.", params.RunID))
	}
	if err != nil {
		return errorResult(fmt.Sprintf("Failed to load run %s: %v", params.RunID, err))
	}

	return textResult(formatInspectOutput(result))
}

func formatRunList(runs []*report.RunResult) string {
	if len(runs) == 0 {
		return "No runs recorded.\n"
	}
	var b strings.Builder
	for _, r := range runs {
		fmt.Fprintf(&b, "%s  %s  %s  %s\n", r.ID, r.StartedAt.Format("2006-01-02 15:04:05"), r.Kind, r.Summary())
	}
	return b.String()
}

func formatInspectOutput(r *report.RunResult) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Run: %s (%s)\n", r.ID, r.Kind)
	fmt.Fprintf(&b, "Started: %s\n", r.StartedAt.Format("2006-01-02 15:04:05"))
	fmt.Fprintf(&b, "Result: %s\n", r.Summary())

	for _, s := range r.Steps {
		fmt.Fprintln(&b)
		status := "ok"
		if !s.Succeeded {
			status = fmt.Sprintf("FAIL exit %d", s.ExitCode)
			if s.Detail != "" {
				status += ", " + s.Detail
			}
		}
		fmt.Fprintf(&b, "%s (%s) %s\n", s.Name, status, s.Script)
		writeTail(&b, "stdout", s.StdoutTail)
		writeTail(&b, "stderr", s.StderrTail)
	}

	return b.String()
}

func writeTail(b *strings.Builder, label, tail string) {
	tail = strings.TrimRight(tail, "\n")
	if tail == "" {
		return
	}
	fmt.Fprintf(b, "%s:\n", label)
	for _, line := range strings.Split(tail, "\n") {
		fmt.Fprintf(b, "    %s\n", line)
	}
}
