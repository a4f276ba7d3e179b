// Package monitor serves the progress of a running tuning job over HTTP.
package monitor

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/banshee-data/marker.tracker/internal/db"
	"github.com/banshee-data/marker.tracker/internal/httputil"
	"github.com/banshee-data/marker.tracker/internal/monitoring"
	"github.com/banshee-data/marker.tracker/internal/report"
	"github.com/banshee-data/marker.tracker/internal/tuning"
)

// ProgressSource reports the state of the active run.
type ProgressSource interface {
	Progress() tuning.Progress
}

// RunStore lists stored runs. *db.TuningStore satisfies it.
type RunStore interface {
	ListRuns(ctx context.Context, limit int) ([]db.TuningRun, error)
	GetRun(ctx context.Context, runID string) (*db.TuningRun, error)
	ListGenerations(ctx context.Context, runID string) ([]db.TuningGeneration, error)
}

// ServerConfig configures a Server. Runs may be nil, which disables the run
// history endpoints.
type ServerConfig struct {
	Address  string
	Progress ProgressSource
	Runs     RunStore
}

// Server is the tuning monitor HTTP server.
type Server struct {
	address  string
	progress ProgressSource
	runs     RunStore
	server   *http.Server
}

// NewServer creates a server for cfg. It does not start listening.
func NewServer(cfg ServerConfig) *Server {
	s := &Server{
		address:  cfg.Address,
		progress: cfg.Progress,
		runs:     cfg.Runs,
	}
	s.server = &http.Server{
		Addr:              s.address,
		Handler:           s.setupRoutes(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

// Handler returns the route multiplexer.
func (s *Server) Handler() http.Handler {
	return s.server.Handler
}

// Start serves until ctx is cancelled, then shuts the server down.
func (s *Server) Start(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		monitoring.Logf("Starting tuning monitor on %s", s.address)
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("monitor server: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := s.server.Shutdown(shutdownCtx); err != nil {
		monitoring.Logf("monitor shutdown error: %v", err)
		if err := s.server.Close(); err != nil {
			monitoring.Logf("monitor force close error: %v", err)
		}
	}
	monitoring.Logf("tuning monitor stopped")
	return nil
}

func (s *Server) setupRoutes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/api/tuning/progress", s.handleProgress)
	mux.HandleFunc("/api/tuning/runs", s.handleRuns)
	mux.HandleFunc("/api/tuning/generations", s.handleGenerations)
	mux.HandleFunc("/tuning", s.handleTuningChart)
	return mux
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	httputil.WriteJSONOK(w, map[string]string{
		"status":    "ok",
		"service":   "tuning",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

// handleProgress returns the active run's Progress as JSON.
func (s *Server) handleProgress(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	if s.progress == nil {
		httputil.NotFound(w, "no active tuning run")
		return
	}
	httputil.WriteJSONOK(w, s.progress.Progress())
}

// handleRuns lists stored runs, newest first.
// Query params:
//
//	limit (optional, default 20)
func (s *Server) handleRuns(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	if s.runs == nil {
		httputil.NotFound(w, "run store not configured")
		return
	}
	limit := 20
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			httputil.WriteJSONError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = n
	}
	runs, err := s.runs.ListRuns(r.Context(), limit)
	if err != nil {
		httputil.InternalServerError(w, err.Error())
		return
	}
	if runs == nil {
		runs = []db.TuningRun{}
	}
	httputil.WriteJSONOK(w, runs)
}

// handleGenerations returns the recorded generations of run_id.
func (s *Server) handleGenerations(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	gens, status, msg := s.generations(r)
	if status != http.StatusOK {
		httputil.WriteJSONError(w, status, msg)
		return
	}
	httputil.WriteJSONOK(w, gens)
}

func (s *Server) generations(r *http.Request) ([]db.TuningGeneration, int, string) {
	if s.runs == nil {
		return nil, http.StatusNotFound, "run store not configured"
	}
	runID := r.URL.Query().Get("run_id")
	if runID == "" {
		return nil, http.StatusBadRequest, "missing run_id parameter"
	}
	if _, err := s.runs.GetRun(r.Context(), runID); err != nil {
		return nil, http.StatusNotFound, err.Error()
	}
	gens, err := s.runs.ListGenerations(r.Context(), runID)
	if err != nil {
		return nil, http.StatusInternalServerError, err.Error()
	}
	if gens == nil {
		gens = []db.TuningGeneration{}
	}
	return gens, http.StatusOK, ""
}

// handleTuningChart renders the fitness history as an echarts page. Without
// run_id it shows the active run, otherwise a stored one.
func (s *Server) handleTuningChart(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}

	var history []float64
	if r.URL.Query().Get("run_id") != "" {
		gens, status, msg := s.generations(r)
		if status != http.StatusOK {
			httputil.WriteJSONError(w, status, msg)
			return
		}
		for _, g := range gens {
			history = append(history, g.Fitness)
		}
	} else {
		if s.progress == nil {
			httputil.NotFound(w, "no active tuning run")
			return
		}
		history = s.progress.Progress().History
	}

	httputil.WriteHTML(w, func(out io.Writer) error {
		return report.FitnessChartHTML(out, history)
	})
}
