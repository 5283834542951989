package api

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
)

// buildRouter creates the HTTP router with all routes and middleware.
func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(s.requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoveryMiddleware)
	r.Use(s.corsMiddleware)
	r.Use(s.bodySizeLimitMiddleware)

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeNotFound(w, r, "route not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, r, http.StatusMethodNotAllowed, ErrCodeMethodNotAllowed, "method not allowed")
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", s.handleHealth)
		r.Get("/metrics", s.handleMetrics)

		r.Route("/devices", func(r chi.Router) {
			r.Get("/latest", s.handleLatest)
			r.Get("/{id}/measurements", s.handleDeviceMeasurements)
		})

		r.Route("/stats", func(r chi.Router) {
			r.Get("/averages", s.handleAverages)
			r.Get("/production", s.handleProduction)
			r.Get("/faults", s.handleFaultCounts)
		})

		r.Get("/reports/daily", s.handleDailyReport)

		r.Route("/settings", func(r chi.Router) {
			r.Get("/", s.handleListSettings)
			r.Put("/{key}", s.handleUpdateSetting)
		})

		r.Route("/measurements", func(r chi.Router) {
			r.Delete("/", s.handlePurgeMeasurements)
			r.Post("/prune", s.handlePruneMeasurements)
		})

		r.Get("/audit", s.handleListAuditLogs)

		r.Get(s.wsPath(), s.handleWebSocket)
	})

	return r
}

// handleHealth returns the server health status.
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"version": s.version,
	})
}

// wsPath is the live feed route below /api/v1.
func (s *Server) wsPath() string {
	if s.wsCfg.Path == "" {
		return "/ws"
	}
	return "/" + strings.TrimLeft(s.wsCfg.Path, "/")
}
