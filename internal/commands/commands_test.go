package commands

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/urfave/cli/v3"

	"github.com/deixis/autoview/internal/config"
	"github.com/deixis/autoview/internal/report"
	"github.com/deixis/autoview/internal/workflow"
)

// fakePython exits 2 for comments.py and 0 for anything else.
const fakePython = `#!/bin/sh
case "$1" in
  *comments.py) echo "comments: quota exceeded" >&2; exit 2 ;;
esac
echo "processed $1"
exit 0
`

// setupEnv lays out a virtual environment with a shell-script interpreter
// and returns a loaded config pointing at it.
func setupEnv(t *testing.T) *config.Config {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("shell-script interpreter requires a POSIX shell")
	}

	venvDir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(venvDir, "pyvenv.cfg"), []byte("version = 3.12.1\n"), 0o644))
	bin := filepath.Join(venvDir, "bin")
	require.NoError(t, os.MkdirAll(bin, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(bin, "python"), []byte(fakePython), 0o755))

	cfgDir := t.TempDir()
	outputs := t.TempDir()
	cfgFile := filepath.Join(cfgDir, "config.yaml")
	yaml := "working_directory: " + venvDir + "\n" +
		"delay: 0\n" +
		"output:\n  root: " + outputs + "\n"
	require.NoError(t, os.WriteFile(cfgFile, []byte(yaml), 0o644))

	cfg, err := config.Load(cfgFile, t.TempDir())
	require.NoError(t, err)
	return cfg
}

func newApp(cfg *config.Config, out *bytes.Buffer) *cli.Command {
	flags := &Flags{Config: cfg}
	app := &cli.Command{
		Name:           "autoview",
		Writer:         out,
		ExitErrHandler: func(context.Context, *cli.Command, error) {},
	}
	app = NewRunCmd(flags).Register(app)
	app = NewArchiveCmd(flags).Register(app)
	app = NewCleanupCmd(flags).Register(app)
	app = NewHistoryCmd(flags).Register(app)
	return app
}

func exitCodeOf(t *testing.T, err error) int {
	t.Helper()
	if err == nil {
		return 0
	}
	var ec cli.ExitCoder
	require.True(t, errors.As(err, &ec), "expected exit coder, got %v", err)
	return ec.ExitCode()
}

func TestRunCmd_NonFatalFailure(t *testing.T) {
	cfg := setupEnv(t)
	var out bytes.Buffer

	err := newApp(cfg, &out).Run(context.Background(), []string{"autoview", "run", "--no-pause"})

	assert.Equal(t, workflow.ExitOK, exitCodeOf(t, err))
	got := out.String()
	assert.Contains(t, got, "✔ contents")
	assert.Contains(t, got, "✘ comments (exit 2)")
	assert.Contains(t, got, "WARNING: comments exited with code 2")
}

func TestRunCmd_Strict(t *testing.T) {
	cfg := setupEnv(t)
	var out bytes.Buffer

	err := newApp(cfg, &out).Run(context.Background(), []string{"autoview", "run", "--no-pause", "--strict"})

	assert.Equal(t, workflow.ExitStepsFailed, exitCodeOf(t, err))
}

func TestRunCmd_MissingWorkdir(t *testing.T) {
	cfg := setupEnv(t)
	cfg.WorkingDirectory = filepath.Join(t.TempDir(), "gone")
	var out bytes.Buffer

	err := newApp(cfg, &out).Run(context.Background(), []string{"autoview", "run", "--no-pause"})

	assert.Equal(t, workflow.ExitWorkdir, exitCodeOf(t, err))
	assert.Contains(t, out.String(), "ERROR: chdir failed")
	assert.NotContains(t, out.String(), "Run summary")
}

func TestRunCmd_NotAVirtualEnv(t *testing.T) {
	cfg := setupEnv(t)
	cfg.WorkingDirectory = t.TempDir()
	var out bytes.Buffer

	err := newApp(cfg, &out).Run(context.Background(), []string{"autoview", "run", "--no-pause"})

	assert.Equal(t, workflow.ExitActivation, exitCodeOf(t, err))
}

func TestHistoryCmd_JSON(t *testing.T) {
	cfg := setupEnv(t)
	var out bytes.Buffer
	app := newApp(cfg, &out)
	require.NoError(t, app.Run(context.Background(), []string{"autoview", "run", "--no-pause"}))

	out.Reset()
	require.NoError(t, newApp(cfg, &out).Run(context.Background(), []string{"autoview", "history", "--json"}))

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, lines, 1)
	var run report.RunResult
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &run))
	assert.Equal(t, "completed: contents ok, comments FAIL(2)", run.Summary())
	step, ok := run.Step("comments")
	require.True(t, ok)
	assert.Contains(t, step.StderrTail, "quota exceeded")
}

func TestArchiveAndCleanupCmd(t *testing.T) {
	cfg := setupEnv(t)
	dir := filepath.Join(cfg.OutputRoot(), "contents")
	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "views.csv"), []byte("id,views\n"), 0o644))

	var out bytes.Buffer
	require.NoError(t, newApp(cfg, &out).Run(context.Background(), []string{"autoview", "archive", "contents"}))
	assert.Contains(t, out.String(), "contents.zip")

	_, err := os.Stat(filepath.Join(cfg.ArchiveDir(), "contents.zip"))
	require.NoError(t, err)

	out.Reset()
	err = newApp(cfg, &out).Run(context.Background(), []string{"autoview", "archive", "comments"})
	assert.Error(t, err, "comments folder does not exist")

	out.Reset()
	require.NoError(t, newApp(cfg, &out).Run(context.Background(), []string{"autoview", "cleanup", "--list"}))
	assert.Contains(t, out.String(), "Deleted 0 archive(s)")
	assert.Contains(t, out.String(), "contents.zip")
}

func TestDefaultPaths(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", "/cfg")
	t.Setenv("XDG_DATA_HOME", "/data")

	assert.Equal(t, filepath.Join("/cfg", "autoview", "config.yaml"), DefaultConfigPath())
	assert.Equal(t, filepath.Join("/data", "autoview"), DefaultDataDir())
}
