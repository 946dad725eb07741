package runner

import "time"

// Result holds the outcome of a command execution.
type Result struct {
	RunID     string        // unique identifier for this run
	ExitCode  int           // process exit code, -1 if the process was killed
	Stdout    []byte        // trailing stdout, at most MaxOutput bytes
	Stderr    []byte        // trailing stderr, at most MaxOutput bytes
	Truncated bool          // true if earlier output was dropped
	StartedAt time.Time     // when the process was started
	Duration  time.Duration // wall time until the process exited
}

// Succeeded reports whether the command exited with status 0.
func (r *Result) Succeeded() bool {
	return r.ExitCode == 0
}
