package workflow

import (
	"time"

	"github.com/deixis/autoview/internal/report"
)

// Stage names a point in the pipeline state machine.
type Stage string

const (
	StageInit      Stage = "init"
	StageChdir     Stage = "chdir"
	StageActivate  Stage = "activate"
	StageStep      Stage = "step"
	StageDelay     Stage = "delay"
	StageSummarize Stage = "summarize"
	StageDone      Stage = "done"
)

// Kind tags an Outcome.
type Kind string

const (
	// Completed means every step was invoked, whatever their exit codes.
	Completed Kind = "completed"
	// Fatal means the run was aborted: setup failed before any step, or the
	// run was interrupted during a step or the delay.
	Fatal Kind = "fatal"
)

// Process exit codes for the autoview binary.
const (
	ExitOK          = 0
	ExitError       = 1   // configuration or usage error
	ExitWorkdir     = 2   // working directory missing or unusable
	ExitActivation  = 3   // virtual environment could not be activated
	ExitStepsFailed = 4   // completed, some step failed, strict mode
	ExitCancelled   = 130 // interrupted while a step or the delay was running
)

// StepResult is the captured outcome of one script invocation.
type StepResult struct {
	Name      string
	Script    string
	RunID     string
	ExitCode  int // raw status of the process, -1 if it never exited normally
	Succeeded bool
	Duration  time.Duration
	Detail    string // why the step failed without an exit code
	Stdout    []byte
	Stderr    []byte
}

// Outcome is the structured result of a run: either Fatal with a reason, or
// Completed with one StepResult per invoked step, in order.
type Outcome struct {
	RunID      string
	Kind       Kind
	Stage      Stage // stage reached; for Fatal, the stage that failed
	Reason     error // set for Fatal
	Steps      []StepResult
	StartedAt  time.Time
	FinishedAt time.Time
	Archives   []string // archive paths written after the run
}

// Failed returns the steps that did not exit 0.
func (o *Outcome) Failed() []StepResult {
	var out []StepResult
	for _, s := range o.Steps {
		if !s.Succeeded {
			out = append(out, s)
		}
	}
	return out
}

// Succeeded reports whether the run completed and every step exited 0.
func (o *Outcome) Succeeded() bool {
	return o.Kind == Completed && len(o.Failed()) == 0
}

// ExitCode maps the outcome to a process exit status. Step failures are
// non-fatal and leave the status at 0 unless strict is set.
func (o *Outcome) ExitCode(strict bool) int {
	if o.Kind == Fatal {
		switch o.Stage {
		case StageChdir:
			return ExitWorkdir
		case StageActivate:
			return ExitActivation
		case StageStep, StageDelay:
			return ExitCancelled
		default:
			return ExitError
		}
	}
	if strict && len(o.Failed()) > 0 {
		return ExitStepsFailed
	}
	return ExitOK
}

// Report converts the outcome into its persisted form.
func (o *Outcome) Report(kind report.Kind) *report.RunResult {
	rr := &report.RunResult{
		ID:         o.RunID,
		Kind:       kind,
		Outcome:    string(o.Kind),
		Stage:      string(o.Stage),
		StartedAt:  o.StartedAt,
		FinishedAt: o.FinishedAt,
		Archives:   o.Archives,
	}
	if o.Reason != nil {
		rr.Reason = o.Reason.Error()
	}
	for _, s := range o.Steps {
		rr.Steps = append(rr.Steps, report.StepReport{
			Name:       s.Name,
			Script:     s.Script,
			ExitCode:   s.ExitCode,
			Succeeded:  s.Succeeded,
			Duration:   s.Duration,
			Detail:     s.Detail,
			StdoutTail: tail(s.Stdout, tailBytes),
			StderrTail: tail(s.Stderr, tailBytes),
		})
	}
	return rr
}

const tailBytes = 4 << 10

func tail(b []byte, n int) string {
	if len(b) > n {
		b = b[len(b)-n:]
	}
	return string(b)
}
