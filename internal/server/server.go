// Package server exposes the HTTP trigger surface: manual tick invocation,
// service status, liveness, and metrics.
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
	"github.com/prometheus/client_golang/prometheus"

	"keyword_bot/internal/metrics"
	"keyword_bot/internal/monitor"
)

// Version reported by the status endpoints.
const Version = "1.0.0"

// Runner executes one monitoring tick.
type Runner interface {
	RunTick(ctx context.Context) (*monitor.Stats, error)
}

// Server is the HTTP trigger surface.
type Server struct {
	runner  Runner
	reg     *prometheus.Registry
	feedURL string
	log     *slog.Logger
}

// New creates a Server around the given tick runner.
func New(runner Runner, reg *prometheus.Registry, feedURL string, log *slog.Logger) *Server {
	return &Server{runner: runner, reg: reg, feedURL: feedURL, log: log}
}

// Handler builds the HTTP router.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/", s.handleRoot)
	r.Get("/healthz", s.handleHealth)
	r.Get("/monitor/check", s.handleCheck)
	r.Post("/monitor/check", s.handleCheck)
	r.Get("/monitor/status", s.handleStatus)
	r.Method(http.MethodGet, "/metrics", metrics.Handler(s.reg))

	return r
}

type checkResponse struct {
	Success bool           `json:"success"`
	Message string         `json:"message"`
	Stats   *monitor.Stats `json:"stats,omitempty"`
}

func (s *Server) handleCheck(w http.ResponseWriter, r *http.Request) {
	stats, err := s.runner.RunTick(r.Context())
	switch {
	case errors.Is(err, monitor.ErrTickRunning):
		writeJSON(w, http.StatusConflict, checkResponse{
			Success: false,
			Message: "a monitoring tick is already in progress",
		})
	case err != nil:
		s.log.Error("manual tick failed", "error", err)
		writeJSON(w, http.StatusBadGateway, checkResponse{
			Success: false,
			Message: "monitoring tick failed: " + err.Error(),
		})
	default:
		writeJSON(w, http.StatusOK, checkResponse{
			Success: true,
			Message: "monitoring tick complete",
			Stats:   stats,
		})
	}
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"service": "rss keyword monitor",
		"status":  "running",
		"version": Version,
		"feed":    s.feedURL,
		"endpoints": []string{
			"GET /monitor/check",
			"POST /monitor/check",
			"GET /monitor/status",
			"GET /healthz",
			"GET /metrics",
		},
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

func (s *Server) handleRoot(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"message": "rss keyword monitor is running",
		"endpoints": map[string]string{
			"monitor": "/monitor/check",
			"status":  "/monitor/status",
			"health":  "/healthz",
			"metrics": "/metrics",
		},
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
