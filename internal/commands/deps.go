package commands

import (
	"io"
	"time"

	"github.com/rs/zerolog"

	"github.com/deixis/autoview/internal/archive"
	"github.com/deixis/autoview/internal/config"
	"github.com/deixis/autoview/internal/report"
	"github.com/deixis/autoview/internal/runner"
	"github.com/deixis/autoview/internal/venv"
	"github.com/deixis/autoview/internal/workflow"
)

// runnerFactory binds each run's scripts to the activated environment.
// stdout and stderr receive the scripts' live output and may be nil.
func runnerFactory(cfg *config.Config, timeout time.Duration, stdout, stderr io.Writer) workflow.RunnerFactory {
	return func(workdir string, env *venv.Env) workflow.CommandRunner {
		return &runner.Runner{
			Workspace: workdir,
			Env:       env.Vars,
			Timeout:   timeout,
			MaxOutput: cfg.MaxOutputBytes(),
			Stdout:    stdout,
			Stderr:    stderr,
		}
	}
}

func newStore(cfg *config.Config) report.Store {
	return report.NewHistoryStore(cfg.HistorySize(), report.NewDiskStore(cfg.RunsDir()))
}

func newArchiver(cfg *config.Config) *archive.Archiver {
	return archive.New(cfg.OutputRoot(), cfg.ArchiveDir(), cfg.OutputFolders())
}

// newEngine returns an engine with the shared dependencies wired. Callers
// set the console, archiver and pause behaviour for their surface.
func newEngine(cfg *config.Config, store report.Store, newRunner workflow.RunnerFactory, logger zerolog.Logger) *workflow.Engine {
	return &workflow.Engine{
		Config:    cfg,
		NewRunner: newRunner,
		Activate:  venv.Activate,
		Store:     store,
		Logger:    logger,
	}
}
