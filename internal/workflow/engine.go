// Package workflow sequences the analysis scripts: it checks the working
// directory, activates the virtual environment, runs each step with a fixed
// delay between them and reports the outcome. It is consumed by the CLI,
// the remote-control server and the MCP server.
package workflow

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/deixis/autoview/internal/archive"
	"github.com/deixis/autoview/internal/config"
	"github.com/deixis/autoview/internal/report"
	"github.com/deixis/autoview/internal/runner"
	"github.com/deixis/autoview/internal/venv"
)

var (
	// ErrWorkdir wraps every failure to use the configured working directory.
	ErrWorkdir = errors.New("working directory unusable")
	// ErrActivation wraps every failure to activate the environment.
	ErrActivation = errors.New("environment activation failed")
	// ErrUnknownStep is returned by RunStep for a name that is not configured.
	ErrUnknownStep = errors.New("unknown step")
)

// CommandRunner executes commands in the working directory.
// Implemented by runner.Runner.
type CommandRunner interface {
	Run(ctx context.Context, argv []string) (*runner.Result, error)
}

// RunnerFactory builds a CommandRunner bound to the working directory and
// the activated environment.
type RunnerFactory func(workdir string, env *venv.Env) CommandRunner

// Activator resolves the virtual environment. Implemented by venv.Activate.
type Activator func(dir, python string) (*venv.Env, error)

// Archiver zips an output folder. Implemented by archive.Archiver.
type Archiver interface {
	Compress(folder string) (*archive.Archive, error)
}

// Console receives the human-facing progress of a run.
type Console interface {
	Progress(format string, args ...any)
	Warn(format string, args ...any)
	Fatal(format string, args ...any)
	Summary(o *Outcome, outputRoot string, folders []string)
	Pause()
}

// Engine holds shared dependencies for all workflow operations.
type Engine struct {
	Config    *config.Config
	NewRunner RunnerFactory
	Activate  Activator                                        // defaults to venv.Activate
	Sleep     func(ctx context.Context, d time.Duration) error // defaults to Sleep
	Console   Console                                          // nil discards progress
	Archiver  Archiver                                         // nil disables archiving
	Store     report.Store                                     // nil disables persistence
	Logger    zerolog.Logger
	Pause     bool // wait for the user after the summary
}

// Run executes the whole pipeline. It never returns nil: setup failures are
// reported as a Fatal outcome, step failures are recorded and the run
// continues.
func (e *Engine) Run(ctx context.Context) *Outcome {
	o := e.start()
	log := e.Logger.With().Str("run_id", o.RunID).Logger()
	con := e.console()

	con.Progress("Starting run %s (%d steps)", shortID(o.RunID), len(e.Config.Steps))

	workdir, env, ok := e.setup(o, log, report.Pipeline)
	if !ok {
		return o
	}
	r := e.NewRunner(workdir, env)

	delay := e.Config.Delay()
	for i, step := range e.Config.Steps {
		if i > 0 {
			o.Stage = StageDelay
			con.Progress("Waiting %s before %s", delay, step.Name)
			if err := e.sleep(ctx, delay); err != nil {
				return e.fail(o, log, report.Pipeline, StageDelay, err)
			}
		}

		o.Stage = StageStep
		o.Steps = append(o.Steps, e.runStep(ctx, log, r, env, step))
		if err := ctx.Err(); err != nil {
			return e.fail(o, log, report.Pipeline, StageStep, err)
		}
	}

	e.finish(o, log, report.Pipeline)

	con.Summary(o, e.Config.OutputRoot(), e.Config.OutputFolders())
	if e.Pause {
		con.Pause()
	}
	return o
}

// RunStep executes a single named step after the same setup as Run. It is
// used when a step is triggered on its own and never pauses.
func (e *Engine) RunStep(ctx context.Context, name string) (*Outcome, error) {
	step, ok := e.Config.FindStep(name)
	if !ok {
		return nil, fmt.Errorf("%w: %q (have %v)", ErrUnknownStep, name, e.Config.StepNames())
	}

	o := e.start()
	log := e.Logger.With().Str("run_id", o.RunID).Str("step", name).Logger()

	workdir, env, ok := e.setup(o, log, report.Step)
	if !ok {
		return o, nil
	}

	o.Stage = StageStep
	o.Steps = append(o.Steps, e.runStep(ctx, log, e.NewRunner(workdir, env), env, step))
	if err := ctx.Err(); err != nil {
		return e.fail(o, log, report.Step, StageStep, err), nil
	}

	e.finish(o, log, report.Step)
	return o, nil
}

func (e *Engine) start() *Outcome {
	return &Outcome{
		RunID:     uuid.New().String(),
		Stage:     StageInit,
		StartedAt: time.Now(),
	}
}

// setup performs the two fatal pre-steps: checking the working directory
// and activating the environment.
func (e *Engine) setup(o *Outcome, log zerolog.Logger, kind report.Kind) (string, *venv.Env, bool) {
	con := e.console()

	o.Stage = StageChdir
	workdir, err := CheckWorkdir(e.Config.WorkingDirectory)
	if err != nil {
		e.fail(o, log, kind, StageChdir, err)
		return "", nil, false
	}
	con.Progress("Working directory: %s", workdir)

	o.Stage = StageActivate
	activate := e.Activate
	if activate == nil {
		activate = venv.Activate
	}
	env, err := activate(workdir, e.Config.Python)
	if err != nil {
		e.fail(o, log, kind, StageActivate, fmt.Errorf("%w: %w", ErrActivation, err))
		return "", nil, false
	}
	con.Progress("Activated environment %s (python %s)", env.Root, versionOrUnknown(env.Version))
	log.Debug().Str("venv", env.Root).Str("python", env.Python).Msg("environment activated")

	return workdir, env, true
}

func (e *Engine) runStep(ctx context.Context, log zerolog.Logger, r CommandRunner, env *venv.Env, step config.Step) StepResult {
	con := e.console()
	res := StepResult{Name: step.Name, Script: step.Script, ExitCode: -1}

	argv := append([]string{env.Python, step.Script}, step.Args...)
	con.Progress("Running %s: %s", step.Name, step.Script)
	log.Info().Str("step", step.Name).Strs("argv", argv).Msg("step started")

	out, err := r.Run(ctx, argv)
	if out != nil {
		res.RunID = out.RunID
		res.ExitCode = out.ExitCode
		res.Duration = out.Duration
		res.Stdout = out.Stdout
		res.Stderr = out.Stderr
	}

	switch {
	case errors.Is(err, runner.ErrTimeout):
		res.Detail = "timed out"
		con.Warn("%s timed out after %s", step.Name, res.Duration.Round(time.Second))
	case errors.Is(err, context.Canceled):
		res.Detail = "interrupted"
		con.Warn("%s interrupted after %s", step.Name, res.Duration.Round(time.Second))
	case err != nil:
		res.Detail = err.Error()
		con.Warn("%s could not be started: %v", step.Name, err)
	case res.ExitCode != 0:
		con.Warn("%s exited with code %d", step.Name, res.ExitCode)
	default:
		res.Succeeded = true
		con.Progress("%s finished in %s", step.Name, res.Duration.Round(time.Millisecond))
	}

	log.Info().
		Str("step", step.Name).
		Int("exit_code", res.ExitCode).
		Bool("succeeded", res.Succeeded).
		Dur("duration", res.Duration).
		Str("detail", res.Detail).
		Msg("step finished")

	return res
}

// finish marks a run completed, archives the outputs of successful steps and
// persists the report.
func (e *Engine) finish(o *Outcome, log zerolog.Logger, kind report.Kind) {
	o.Stage = StageSummarize
	e.archive(o, log)

	o.Kind = Completed
	o.Stage = StageDone
	o.FinishedAt = time.Now()
	e.save(o, log, kind)
}

func (e *Engine) fail(o *Outcome, log zerolog.Logger, kind report.Kind, stage Stage, err error) *Outcome {
	o.Kind = Fatal
	o.Stage = stage
	o.Reason = err
	o.FinishedAt = time.Now()

	e.console().Fatal("%s failed: %v", stage, err)
	log.Error().Err(err).Str("stage", string(stage)).Msg("run aborted")

	e.save(o, log, kind)
	return o
}

func (e *Engine) archive(o *Outcome, log zerolog.Logger) {
	if e.Archiver == nil {
		return
	}
	folders := e.Config.OutputFolders()
	for _, s := range o.Steps {
		if !s.Succeeded || !slices.Contains(folders, s.Name) {
			continue
		}
		arc, err := e.Archiver.Compress(s.Name)
		if err != nil {
			e.console().Warn("archiving %s: %v", s.Name, err)
			log.Warn().Err(err).Str("folder", s.Name).Msg("archive failed")
			continue
		}
		o.Archives = append(o.Archives, arc.Path)
		e.console().Progress("Archived %s (%d files, %s)", arc.Name, arc.Files, arc.HumanSize)
	}
}

func (e *Engine) save(o *Outcome, log zerolog.Logger, kind report.Kind) {
	if e.Store == nil {
		return
	}
	if err := e.Store.Save(o.Report(kind)); err != nil {
		log.Warn().Err(err).Msg("saving run report")
	}
}

func (e *Engine) sleep(ctx context.Context, d time.Duration) error {
	if e.Sleep != nil {
		return e.Sleep(ctx, d)
	}
	return Sleep(ctx, d)
}

func (e *Engine) console() Console {
	if e.Console == nil {
		return nopConsole{}
	}
	return e.Console
}

// Sleep blocks for d. It only returns early if ctx is cancelled.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// CheckWorkdir verifies that dir exists, is a directory and can be listed,
// and returns its absolute path. Scripts run with it as their working
// directory.
func CheckWorkdir(dir string) (string, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrWorkdir, err)
	}

	info, err := os.Stat(abs)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrWorkdir, err)
	}
	if !info.IsDir() {
		return "", fmt.Errorf("%w: %s is not a directory", ErrWorkdir, abs)
	}

	f, err := os.Open(abs)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrWorkdir, err)
	}
	defer func() { _ = f.Close() }()
	if _, err := f.Readdirnames(1); err != nil && !errors.Is(err, io.EOF) {
		return "", fmt.Errorf("%w: %w", ErrWorkdir, err)
	}

	return abs, nil
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func versionOrUnknown(v string) string {
	if v == "" {
		return "unknown"
	}
	return v
}

type nopConsole struct{}

func (nopConsole) Progress(string, ...any)            {}
func (nopConsole) Warn(string, ...any)                {}
func (nopConsole) Fatal(string, ...any)               {}
func (nopConsole) Summary(*Outcome, string, []string) {}
func (nopConsole) Pause()                             {}
