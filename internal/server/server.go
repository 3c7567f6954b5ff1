// Package server exposes Prometheus metrics and a health check for the
// scheduled pipeline.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/brensch/nomenclator/internal/scheduler"
)

// StatusFunc reports the scheduler state.
type StatusFunc func() scheduler.Status

// HealthResponse is the /healthz body.
type HealthResponse struct {
	Status    string           `json:"status"`
	Scheduler scheduler.Status `json:"scheduler"`
	Uptime    float64          `json:"uptime_seconds"`
}

// Server serves /metrics and /healthz.
type Server struct {
	server  *http.Server
	router  chi.Router
	status  StatusFunc
	logger  *slog.Logger
	started time.Time
}

// New builds the router and the http.Server listening on addr.
func New(addr string, status StatusFunc, logger *slog.Logger) *Server {
	router := chi.NewRouter()
	s := &Server{
		server: &http.Server{
			Handler:      router,
			Addr:         addr,
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 15 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		router:  router,
		status:  status,
		logger:  logger.With(slog.String("component", "server")),
		started: time.Now(),
	}

	router.Use(middleware.RequestID)
	router.Use(middleware.RedirectSlashes)
	router.Use(middleware.Recoverer)

	router.Handle("/metrics", promhttp.Handler())
	router.Get("/healthz", s.healthCheck)
	return s
}

// Handler returns the router, for tests.
func (s *Server) Handler() http.Handler { return s.router }

// Start listens in the background. Listen errors other than a clean
// shutdown are logged.
func (s *Server) Start() {
	go func() {
		s.logger.Info("Starting metrics server.", slog.String("addr", s.server.Addr))
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("Metrics server failed.", "error", err)
		}
	}()
}

// Shutdown stops the server, forcing it closed if ctx expires first.
func (s *Server) Shutdown(ctx context.Context) error {
	if err := s.server.Shutdown(ctx); err != nil {
		s.logger.Error("Server forced to shutdown.", "error", err)
		return errors.Join(err, s.server.Close())
	}
	s.logger.Info("Metrics server exited gracefully.")
	return nil
}

// healthCheck is "starting" before the first run finishes, "healthy" after a
// clean run, "degraded" when the last run failed after an earlier success
// and "unhealthy" (503) when no run has succeeded yet but one has failed.
func (s *Server) healthCheck(w http.ResponseWriter, r *http.Request) {
	st := s.status()
	resp := HealthResponse{Scheduler: st, Uptime: time.Since(s.started).Seconds()}
	code := http.StatusOK
	switch {
	case st.Runs == 0:
		resp.Status = "starting"
	case st.LastError == "":
		resp.Status = "healthy"
	case !st.LastSuccess.IsZero():
		resp.Status = "degraded"
	default:
		resp.Status = "unhealthy"
		code = http.StatusServiceUnavailable
	}
	s.respondWithJSON(w, code, resp)
}

func (s *Server) respondWithJSON(w http.ResponseWriter, code int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Error("Failed to encode JSON response", "error", err)
	}
}
