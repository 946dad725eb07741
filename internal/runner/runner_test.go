package runner

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func newTestRunner(t *testing.T) *Runner {
	t.Helper()
	return &Runner{
		Workspace: t.TempDir(),
		MaxOutput: 1 << 20,
	}
}

func TestRun_Success(t *testing.T) {
	r := newTestRunner(t)
	res, err := r.Run(context.Background(), []string{"echo", "hello"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.ExitCode != 0 || !res.Succeeded() {
		t.Errorf("ExitCode = %d, want 0", res.ExitCode)
	}
	if !strings.Contains(string(res.Stdout), "hello") {
		t.Errorf("Stdout = %q, want to contain 'hello'", res.Stdout)
	}
	if res.RunID == "" {
		t.Error("RunID is empty")
	}
	if res.StartedAt.IsZero() {
		t.Error("StartedAt is zero")
	}
}

func TestRun_NonZeroExit(t *testing.T) {
	r := newTestRunner(t)
	res, err := r.Run(context.Background(), []string{"sh", "-c", "exit 2"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.ExitCode != 2 {
		t.Errorf("ExitCode = %d, want 2", res.ExitCode)
	}
	if res.Succeeded() {
		t.Error("Succeeded() = true, want false")
	}
}

func TestRun_StreamsLiveOutput(t *testing.T) {
	r := newTestRunner(t)
	var live bytes.Buffer
	r.Stdout = &live

	res, err := r.Run(context.Background(), []string{"sh", "-c", "echo streamed"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if live.String() != "streamed\n" {
		t.Errorf("live output = %q, want %q", live.String(), "streamed\n")
	}
	if string(res.Stdout) != "streamed\n" {
		t.Errorf("captured Stdout = %q", res.Stdout)
	}
}

func TestRun_UsesEnv(t *testing.T) {
	r := newTestRunner(t)
	r.Env = []string{"AUTOVIEW_TEST=activated", "PATH=" + os.Getenv("PATH")}

	res, err := r.Run(context.Background(), []string{"sh", "-c", "echo $AUTOVIEW_TEST"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if strings.TrimSpace(string(res.Stdout)) != "activated" {
		t.Errorf("Stdout = %q, want activated", res.Stdout)
	}
}

func TestRun_BinaryNotFound(t *testing.T) {
	r := newTestRunner(t)
	_, err := r.Run(context.Background(), []string{"nonexistent-binary-xyz-123"})
	if err == nil {
		t.Fatal("expected error for missing binary")
	}
	if !strings.Contains(err.Error(), "nonexistent-binary-xyz-123") {
		t.Errorf("error = %q, want to mention the binary name", err)
	}
}

func TestRun_EmptyArgv(t *testing.T) {
	r := newTestRunner(t)
	_, err := r.Run(context.Background(), nil)
	if err == nil {
		t.Fatal("expected error for empty argv")
	}
}

func TestRun_RunsInWorkspace(t *testing.T) {
	r := newTestRunner(t)
	res, err := r.Run(context.Background(), []string{"pwd"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	got, _ := filepath.EvalSymlinks(strings.TrimSpace(string(res.Stdout)))
	want, _ := filepath.EvalSymlinks(r.Workspace)
	if got != want {
		t.Errorf("pwd = %q, want %q", got, want)
	}
}

func TestRun_Timeout(t *testing.T) {
	r := newTestRunner(t)
	r.Timeout = 100 * time.Millisecond

	res, err := r.Run(context.Background(), []string{"sleep", "10"})
	if !errors.Is(err, ErrTimeout) {
		t.Fatalf("err = %v, want ErrTimeout", err)
	}
	if res == nil || res.ExitCode != -1 {
		t.Errorf("res = %+v, want partial result with ExitCode -1", res)
	}
}

func TestRun_NoTimeoutByDefault(t *testing.T) {
	r := newTestRunner(t)
	res, err := r.Run(context.Background(), []string{"sleep", "0.2"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Duration < 200*time.Millisecond {
		t.Errorf("Duration = %s, want >= 200ms", res.Duration)
	}
}

func TestRun_OutputTruncationKeepsTail(t *testing.T) {
	r := newTestRunner(t)
	r.MaxOutput = 17

	res, err := r.Run(context.Background(), []string{"sh", "-c", "echo HEAD-HEAD-HEAD-HEAD; echo TRACEBACK-AT-END"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !res.Truncated {
		t.Error("Truncated = false, want true")
	}
	if string(res.Stdout) != "TRACEBACK-AT-END\n" {
		t.Errorf("Stdout = %q, want the last line", res.Stdout)
	}
}

func TestRun_OutputAtLimitNotTruncated(t *testing.T) {
	r := newTestRunner(t)
	r.MaxOutput = 6

	res, err := r.Run(context.Background(), []string{"sh", "-c", "printf 'abcdef'"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Truncated {
		t.Error("Truncated = true for output that fits exactly")
	}
	if string(res.Stdout) != "abcdef" {
		t.Errorf("Stdout = %q, want abcdef", res.Stdout)
	}
}

func TestRun_TimeoutStopsBackgroundChildren(t *testing.T) {
	r := newTestRunner(t)
	r.Timeout = 200 * time.Millisecond

	start := time.Now()
	_, err := r.Run(context.Background(), []string{"sh", "-c", "sleep 10 & sleep 10"})
	if !errors.Is(err, ErrTimeout) {
		t.Fatalf("err = %v, want ErrTimeout", err)
	}
	if elapsed := time.Since(start); elapsed > waitDelay+2*time.Second {
		t.Errorf("Run returned after %s, want the timeout to bound it", elapsed)
	}
}

func TestTailWriter_ManyWrites(t *testing.T) {
	w := &tailWriter{limit: 4}
	for _, chunk := range []string{"ab", "cd", "ef", "g"} {
		if n, err := w.Write([]byte(chunk)); err != nil || n != len(chunk) {
			t.Fatalf("Write(%q) = %d, %v", chunk, n, err)
		}
	}
	if got := string(w.Bytes()); got != "defg" {
		t.Errorf("Bytes() = %q, want defg", got)
	}
	if !w.truncated {
		t.Error("truncated = false, want true")
	}
}
