// Package report persists the outcome of pipeline runs so they can be
// listed and inspected after the process that ran them has moved on.
package report

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Kind identifies the type of a run.
type Kind string

const (
	// Pipeline is a full run of every configured step.
	Pipeline Kind = "pipeline"
	// Step is a single step triggered on its own (remote control, MCP).
	Step Kind = "step"
)

// ErrNotFound is returned when a run ID is unknown.
var ErrNotFound = errors.New("run not found")

// Store persists and retrieves run results.
type Store interface {
	Save(result *RunResult) error
	Load(runID string) (*RunResult, error)
	// List returns up to limit runs, newest first. limit <= 0 returns all.
	List(limit int) ([]*RunResult, error)
}

// RunResult is the persisted form of a run outcome.
type RunResult struct {
	ID         string       `json:"id"`
	Kind       Kind         `json:"kind"`
	Outcome    string       `json:"outcome"` // completed or fatal
	Stage      string       `json:"stage"`
	Reason     string       `json:"reason,omitempty"`
	StartedAt  time.Time    `json:"started_at"`
	FinishedAt time.Time    `json:"finished_at"`
	Steps      []StepReport `json:"steps,omitempty"`
	Archives   []string     `json:"archives,omitempty"`
}

// StepReport is the persisted form of a single step's result.
type StepReport struct {
	Name       string        `json:"name"`
	Script     string        `json:"script"`
	ExitCode   int           `json:"exit_code"`
	Succeeded  bool          `json:"succeeded"`
	Duration   time.Duration `json:"duration"`
	Detail     string        `json:"detail,omitempty"`
	StdoutTail string        `json:"stdout_tail,omitempty"`
	StderrTail string        `json:"stderr_tail,omitempty"`
}

// Failed returns the steps that did not exit 0.
func (r *RunResult) Failed() []StepReport {
	var out []StepReport
	for _, s := range r.Steps {
		if !s.Succeeded {
			out = append(out, s)
		}
	}
	return out
}

// Step returns the report for the named step.
func (r *RunResult) Step(name string) (StepReport, bool) {
	for _, s := range r.Steps {
		if s.Name == name {
			return s, true
		}
	}
	return StepReport{}, false
}

// Summary renders a one-line description such as
// "completed: contents ok, comments FAIL(2)".
func (r *RunResult) Summary() string {
	if r.Outcome != "completed" {
		return fmt.Sprintf("%s at %s: %s", r.Outcome, r.Stage, r.Reason)
	}

	parts := make([]string, 0, len(r.Steps))
	for _, s := range r.Steps {
		if s.Succeeded {
			parts = append(parts, s.Name+" ok")
		} else {
			parts = append(parts, fmt.Sprintf("%s FAIL(%d)", s.Name, s.ExitCode))
		}
	}
	return r.Outcome + ": " + strings.Join(parts, ", ")
}
