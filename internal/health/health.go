// Package health provides the liveness and readiness endpoints.
//
// /healthz returns 200 once the daemon has started. /readyz additionally
// requires at least one synthesis backend that is not UNAVAILABLE and
// reports the state of every backend.
package health

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/nadzzz/voicestudio/internal/tts/selector"
)

// Backends reports backend availability.
type Backends interface {
	Snapshot() []selector.Status
	Serviceable() bool
}

// Server is a lightweight HTTP server that exposes /healthz and /readyz.
type Server struct {
	port     int
	backends Backends
	ready    atomic.Bool
	server   *http.Server
}

// New creates a new health check server.
func New(port int, backends Backends) *Server {
	return &Server{port: port, backends: backends}
}

// SetReady marks the daemon as ready to accept traffic.
func (s *Server) SetReady(ready bool) {
	s.ready.Store(ready)
}

type readiness struct {
	Status   string            `json:"status"`
	Backends []selector.Status `json:"backends,omitempty"`
}

// Handler returns the health routes.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		if !s.ready.Load() {
			write(w, http.StatusServiceUnavailable, readiness{Status: "not_ready"})
			return
		}
		write(w, http.StatusOK, readiness{Status: "ok"})
	})

	mux.HandleFunc("GET /readyz", func(w http.ResponseWriter, _ *http.Request) {
		body := readiness{Status: "ok", Backends: s.backends.Snapshot()}
		switch {
		case !s.ready.Load():
			body.Status = "not_ready"
		case !s.backends.Serviceable():
			body.Status = "no_backend"
		default:
			write(w, http.StatusOK, body)
			return
		}
		write(w, http.StatusServiceUnavailable, body)
	})
	return mux
}

// ListenAndServe starts the health check HTTP server.
// It blocks until the context is cancelled.
func (s *Server) ListenAndServe(ctx context.Context) error {
	s.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", s.port),
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	slog.Info("health server listening", "port", s.port)

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = s.server.Shutdown(shutdownCtx)
	}()

	if err := s.server.ListenAndServe(); err != http.ErrServerClosed {
		return fmt.Errorf("health server: %w", err)
	}
	return nil
}

func write(w http.ResponseWriter, status int, body readiness) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
