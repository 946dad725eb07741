// Package runner executes external scripts inside a working directory,
// streaming their output while keeping the tail of it.
package runner

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"time"

	"github.com/google/uuid"
)

// ErrTimeout is returned when a command outlives Runner.Timeout. The partial
// Result is returned alongside it.
var ErrTimeout = errors.New("command timed out")

// waitDelay bounds how long Run waits for output after the process group
// was signalled, e.g. when a grandchild still holds the pipes.
const waitDelay = 3 * time.Second

// Runner executes commands within a working directory.
type Runner struct {
	Workspace string
	Env       []string      // child environment; nil inherits the current process
	Timeout   time.Duration // zero blocks until the command exits
	MaxOutput int           // trailing bytes kept per stream

	// Stdout and Stderr receive the live output. Nil discards it; the
	// captured tail in Result is kept either way.
	Stdout io.Writer
	Stderr io.Writer
}

// Run executes a command with the given argv in the workspace. The first
// element is the binary name (resolved via PATH), and the rest are arguments.
func (r *Runner) Run(ctx context.Context, argv []string) (*Result, error) {
	if len(argv) == 0 {
		return nil, fmt.Errorf("empty argv")
	}

	runCtx := ctx
	if r.Timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, r.Timeout)
		defer cancel()
	}

	runID := uuid.New().String()

	cmd := exec.CommandContext(runCtx, argv[0], argv[1:]...)
	cmd.Dir = r.Workspace
	cmd.Env = r.Env
	cmd.SysProcAttr = sysProcAttr()
	cmd.Cancel = func() error { return killProcess(cmd.Process.Pid) }
	cmd.WaitDelay = waitDelay

	stdout := &tailWriter{limit: r.MaxOutput}
	stderr := &tailWriter{limit: r.MaxOutput}
	cmd.Stdout = tee(r.Stdout, stdout)
	cmd.Stderr = tee(r.Stderr, stderr)

	startedAt := time.Now()
	runErr := cmd.Run()

	res := &Result{
		RunID:     runID,
		Stdout:    stdout.Bytes(),
		Stderr:    stderr.Bytes(),
		Truncated: stdout.truncated || stderr.truncated,
		StartedAt: startedAt,
		Duration:  time.Since(startedAt),
	}

	if runErr == nil {
		return res, nil
	}

	switch {
	case ctx.Err() != nil:
		res.ExitCode = -1
		return res, fmt.Errorf("executing %s: %w", argv[0], ctx.Err())
	case errors.Is(runCtx.Err(), context.DeadlineExceeded):
		res.ExitCode = -1
		return res, fmt.Errorf("executing %s: %w after %s", argv[0], ErrTimeout, r.Timeout)
	}

	var exitErr *exec.ExitError
	if errors.As(runErr, &exitErr) {
		res.ExitCode = exitErr.ExitCode()
		return res, nil
	}

	// Binary not found or other exec error.
	return nil, fmt.Errorf("executing %s: %w", argv[0], runErr)
}

func tee(live io.Writer, capture io.Writer) io.Writer {
	if live == nil {
		return capture
	}
	return io.MultiWriter(live, capture)
}

// tailWriter keeps the last limit bytes written to it. The buffer may grow
// to twice the limit before it is compacted.
type tailWriter struct {
	buf       []byte
	limit     int
	truncated bool
}

func (w *tailWriter) Write(p []byte) (int, error) {
	n := len(p)
	if w.limit <= 0 {
		w.truncated = w.truncated || n > 0
		return n, nil
	}
	if len(p) > w.limit {
		w.truncated = true
		w.buf = w.buf[:0]
		p = p[len(p)-w.limit:]
	}
	w.buf = append(w.buf, p...)
	if len(w.buf) > w.limit {
		w.truncated = true
		if len(w.buf) >= 2*w.limit {
			w.buf = append(w.buf[:0], w.buf[len(w.buf)-w.limit:]...)
		}
	}
	// Report all bytes as consumed to avoid short write errors from io.Copy.
	return n, nil
}

// Bytes returns the retained tail.
func (w *tailWriter) Bytes() []byte {
	if len(w.buf) > w.limit {
		return w.buf[len(w.buf)-w.limit:]
	}
	return w.buf
}
