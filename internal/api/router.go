package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
)

// healthCheckTimeout bounds each dependency check in /api/v1/health.
const healthCheckTimeout = 2 * time.Second

// buildRouter creates the HTTP router with all routes and middleware.
func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(s.requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoveryMiddleware)
	r.Use(s.corsMiddleware)
	r.Use(s.bodySizeLimitMiddleware)

	// Prometheus scrape endpoint (no auth required)
	if s.metrics != nil {
		r.Handle("/metrics", s.metrics.Handler())
	}

	r.Route("/api/v1", func(r chi.Router) {
		// Health check (no auth required)
		r.Get("/health", s.handleHealth)

		r.Group(func(r chi.Router) {
			r.Use(s.authMiddleware)

			if s.audit != nil {
				r.Get("/pairing/audit", s.handleListAudit)
			}

			r.Route("/devices", func(r chi.Router) {
				r.Get("/", s.handleListRegistered)
				r.Get("/{id}", s.handleGetRegistered)
				r.Delete("/{id}", s.handleDeleteRegistered)
			})

			r.Route("/pairing/{driver}/sessions", func(r chi.Router) {
				r.Post("/", s.handleCreateSession)

				r.Route("/{id}", func(r chi.Router) {
					r.Delete("/", s.handleDeleteSession)
					r.Get("/linked", s.handleCheckLinked)
					r.Delete("/link", s.handleUnlink)
					r.Post("/usercode", s.handleSubmitUserCode)
					r.Get("/devices", s.handleListDevices)
					r.Post("/devices", s.handleRegisterDevices)
				})
			})

			r.Get("/ws", s.handleWebSocket)
		})
	})

	return r
}

// handleHealth returns the server health status.
// A failing dependency turns the status to "degraded" with a 503.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := "ok"
	code := http.StatusOK
	components := make(map[string]string, len(s.checks))

	for name, checker := range s.checks {
		ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
		err := checker.HealthCheck(ctx)
		cancel()
		if err != nil {
			components[name] = err.Error()
			status = "degraded"
			code = http.StatusServiceUnavailable
			continue
		}
		components[name] = "ok"
	}

	writeJSON(w, code, map[string]any{
		"status":     status,
		"version":    s.version,
		"sessions":   s.sessionCount(),
		"components": components,
	})
}
