// Package server exposes the analysis pipeline over HTTP so runs can be
// triggered and their archives downloaded from another device on the LAN.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/deixis/autoview/internal/archive"
	"github.com/deixis/autoview/internal/report"
	"github.com/deixis/autoview/internal/workflow"
)

// ErrBusy is returned when a run is requested while another is in progress.
var ErrBusy = errors.New("a run is already in progress")

// Server is the remote-control HTTP server.
type Server struct {
	engine    *workflow.Engine
	archiver  *archive.Archiver
	store     report.Store
	retention time.Duration
	logger    zerolog.Logger

	httpServer *http.Server
	listener   net.Listener

	// runCtx outlives requests: background runs are cancelled by Shutdown only.
	runCtx    context.Context
	cancelRun context.CancelFunc
	wg        sync.WaitGroup

	mu      sync.Mutex
	running string // step currently running, empty when idle
	lastRun string
}

// New returns a Server. The engine is copied with pausing disabled; it should
// be configured with a per-step timeout and an archiver so each run is
// bounded and its output folder zipped on completion.
func New(engine *workflow.Engine, archiver *archive.Archiver, store report.Store, logger zerolog.Logger) *Server {
	e := *engine
	e.Pause = false

	ctx, cancel := context.WithCancel(context.Background())
	s := &Server{
		engine:    &e,
		archiver:  archiver,
		store:     store,
		retention: engine.Config.ArchiveRetention(),
		logger:    logger,
		runCtx:    ctx,
		cancelRun: cancel,
	}
	s.httpServer = &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Handler returns the routes of the server wrapped in request logging.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /{$}", s.handleIndex)
	mux.HandleFunc("GET /run/{step}", s.handleRun)
	mux.HandleFunc("POST /run/{step}", s.handleRun)
	mux.HandleFunc("GET /download/{file}", s.handleDownload)
	mux.HandleFunc("GET /status", s.handleStatus)
	mux.HandleFunc("GET /cleanup", s.handleCleanup)
	mux.HandleFunc("POST /cleanup", s.handleCleanup)
	mux.HandleFunc("GET /runs/{id}", s.handleRunReport)

	return s.logRequests(mux)
}

// Start listens on addr and serves in the background.
func (s *Server) Start(ctx context.Context, addr string) error {
	var lc net.ListenConfig
	listener, err := lc.Listen(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to create listener: %w", err)
	}
	s.listener = listener

	s.logger.Info().Str("addr", listener.Addr().String()).Msg("starting remote-control server")

	errChan := make(chan error, 1)
	go func() {
		if err := s.httpServer.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
	}()

	select {
	case err := <-errChan:
		return fmt.Errorf("remote-control server failed to start: %w", err)
	case <-time.After(100 * time.Millisecond):
		return nil
	}
}

// Addr returns the address the server listens on, empty before Start.
func (s *Server) Addr() string {
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Shutdown stops accepting requests, cancels any background run and waits
// for it to finish.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info().Msg("shutting down remote-control server")
	err := s.httpServer.Shutdown(ctx)
	s.cancelRun()
	s.wg.Wait()
	return err
}

// Trigger starts the named step in the background. It fails with
// workflow.ErrUnknownStep or ErrBusy without starting anything.
func (s *Server) Trigger(step string) error {
	if _, ok := s.engine.Config.FindStep(step); !ok {
		return fmt.Errorf("%w: %q", workflow.ErrUnknownStep, step)
	}

	s.mu.Lock()
	if s.running != "" {
		s.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrBusy, s.running)
	}
	s.running = step
	s.mu.Unlock()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		log := s.logger.With().Str("step", step).Logger()

		o, err := s.engine.RunStep(s.runCtx, step)

		s.mu.Lock()
		s.running = ""
		if o != nil {
			s.lastRun = o.RunID
		}
		s.mu.Unlock()

		if err != nil {
			log.Error().Err(err).Msg("remote run failed")
			return
		}
		log.Info().
			Str("run_id", o.RunID).
			Str("outcome", string(o.Kind)).
			Bool("succeeded", o.Succeeded()).
			Strs("archives", o.Archives).
			Msg("remote run finished")
	}()
	return nil
}

// Wait blocks until the background run, if any, has finished.
func (s *Server) Wait() {
	s.wg.Wait()
}

func (s *Server) state() (running, lastRun string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running, s.lastRun
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	_ = enc.Encode(v)
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		s.logger.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Str("remote", r.RemoteAddr).
			Int("status", rec.status).
			Dur("duration", time.Since(start)).
			Msg("request")
	})
}
