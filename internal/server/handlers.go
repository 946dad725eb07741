package server

import (
	_ "embed"
	"errors"
	"fmt"
	"html/template"
	"io/fs"
	"net/http"
	"os"
	"time"

	"github.com/deixis/autoview/internal/archive"
	"github.com/deixis/autoview/internal/report"
	"github.com/deixis/autoview/internal/workflow"
)

//go:embed page.html
var pageHTML string

var page = template.Must(template.New("page").Parse(pageHTML))

const recentRuns = 5

type pageData struct {
	Steps     []string
	Archives  []archive.Archive
	Running   string
	Retention string
	Runs      []*report.RunResult
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	running, _ := s.state()
	data := pageData{
		Steps:     s.engine.Config.StepNames(),
		Running:   running,
		Retention: s.retention.String(),
	}

	if s.archiver != nil {
		list, err := s.archiver.List()
		if err != nil {
			s.logger.Warn().Err(err).Msg("listing archives")
		}
		data.Archives = list
	}
	if s.store != nil {
		runs, err := s.store.List(recentRuns)
		if err != nil {
			s.logger.Warn().Err(err).Msg("listing runs")
		}
		data.Runs = runs
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := page.Execute(w, data); err != nil {
		s.logger.Error().Err(err).Msg("rendering control page")
	}
}

func (s *Server) handleRun(w http.ResponseWriter, r *http.Request) {
	step := r.PathValue("step")

	err := s.Trigger(step)
	switch {
	case errors.Is(err, workflow.ErrUnknownStep):
		http.Error(w, "Script not found", http.StatusNotFound)
		return
	case errors.Is(err, ErrBusy):
		http.Error(w, err.Error(), http.StatusConflict)
		return
	case err != nil:
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusAccepted)
	_, _ = fmt.Fprintf(w, "Started %s, analysing data...", step)
}

func (s *Server) handleDownload(w http.ResponseWriter, r *http.Request) {
	if s.archiver == nil {
		http.NotFound(w, r)
		return
	}

	arc, err := s.archiver.Lookup(r.PathValue("file"))
	if errors.Is(err, fs.ErrNotExist) {
		http.Error(w, "File not found", http.StatusNotFound)
		return
	}
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	f, err := os.Open(arc.Path)
	if err != nil {
		http.Error(w, "File not found", http.StatusNotFound)
		return
	}
	defer func() { _ = f.Close() }()

	w.Header().Set("Content-Type", "application/zip")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", arc.Name))
	http.ServeContent(w, r, arc.Name, arc.CreatedAt, f)
}

type statusResponse struct {
	Status    string              `json:"status"`
	Timestamp time.Time           `json:"timestamp"`
	Running   string              `json:"running,omitempty"`
	LastRun   string              `json:"last_run,omitempty"`
	Files     []archive.Archive   `json:"files"`
	Runs      []*report.RunResult `json:"runs,omitempty"`
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	running, lastRun := s.state()
	resp := statusResponse{
		Status:    "running",
		Timestamp: time.Now(),
		Running:   running,
		LastRun:   lastRun,
		Files:     []archive.Archive{},
	}

	if s.archiver != nil {
		list, err := s.archiver.List()
		if err != nil {
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
			return
		}
		if list != nil {
			resp.Files = list
		}
	}
	if s.store != nil {
		runs, err := s.store.List(recentRuns)
		if err == nil {
			resp.Runs = runs
		}
	}

	writeJSON(w, http.StatusOK, resp)
}

type cleanupResponse struct {
	DeletedCount int    `json:"deleted_count"`
	Message      string `json:"message"`
}

func (s *Server) handleCleanup(w http.ResponseWriter, r *http.Request) {
	if s.archiver == nil {
		writeJSON(w, http.StatusOK, cleanupResponse{Message: "archiving is not configured"})
		return
	}

	n, err := s.archiver.Cleanup(s.retention)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, cleanupResponse{
			DeletedCount: n,
			Message:      fmt.Sprintf("cleanup failed: %v", err),
		})
		return
	}
	writeJSON(w, http.StatusOK, cleanupResponse{
		DeletedCount: n,
		Message:      fmt.Sprintf("Deleted %d archive(s) older than %s", n, s.retention),
	})
}

func (s *Server) handleRunReport(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		http.NotFound(w, r)
		return
	}

	result, err := s.store.Load(r.PathValue("id"))
	if errors.Is(err, report.ErrNotFound) {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": err.Error()})
		return
	}
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, result)
}
