// Package health serves liveness and metrics endpoints for serve mode.
package health

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/roach88/baselinewatch/internal/runner"
)

// Status is the /healthz response body.
type Status struct {
	Status  string          `json:"status"`
	Started time.Time       `json:"started"`
	LastRun *runner.Summary `json:"last_run,omitempty"`
}

// Server tracks the most recent run and exposes it over HTTP.
type Server struct {
	mu      sync.RWMutex
	started time.Time
	last    *runner.Summary

	handler http.Handler
	logger  *slog.Logger
}

// New builds the handler. gatherer feeds /metrics.
func New(gatherer prometheus.Gatherer, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{started: time.Now().UTC(), logger: logger}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", s.handleHealthz)
	mux.Handle("GET /metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	s.handler = mux
	return s
}

// Record stores the summary of a finished run.
func (s *Server) Record(sum *runner.Summary) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.last = sum
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Status returns the current health. The service is "ok" until a run
// fails; it is "degraded" while the latest run has an error.
func (s *Server) Status() Status {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st := Status{Status: "ok", Started: s.started, LastRun: s.last}
	if s.last != nil && !s.last.OK() {
		st.Status = "degraded"
	}
	return st
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(s.Status()); err != nil {
		s.logger.Warn("write healthz", "error", err)
	}
}

// ListenAndServe serves on addr until ctx is cancelled.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	return s.Serve(ctx, ln)
}

// Serve serves on ln until ctx is cancelled, then shuts down gracefully.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.handler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		errc <- srv.Serve(ln)
	}()
	s.logger.Info("health server listening", "addr", ln.Addr().String())

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errc; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
