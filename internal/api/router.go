package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/hallmont/identity-core/internal/auth"
	"github.com/hallmont/identity-core/internal/identity"
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

	// API v1 routes
	r.Route("/api/v1", func(r chi.Router) {
		// Health check (no auth required)
		r.Get("/health", s.handleHealth)

		// Login and refresh authenticate by credential/token in the body,
		// not by bearer header
		r.Post("/auth/login", s.handleLogin)
		r.Post("/auth/refresh", s.handleRefresh)

		// Any authenticated caller
		r.Group(func(r chi.Router) {
			r.Use(s.requireIdentity(identity.Policy{}))

			r.Post("/auth/logout", s.handleLogout)
			r.Get("/users/me", s.handleMe)
			r.Get("/users/me/devices", s.handleMyDevices)
		})

		// Admin only
		r.Group(func(r chi.Router) {
			r.Use(s.requireIdentity(identity.Policy{Roles: []auth.Role{auth.RoleAdmin}}))

			r.Get("/users", s.handleListUsers)
			r.Get("/audit", s.handleListAudit)
		})
	})

	return r
}

// healthCheckTimeout bounds the database probe inside the health handler.
const healthCheckTimeout = 2 * time.Second

// handleHealth returns the server health status, including a database
// connectivity probe.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := "ok"
	httpStatus := http.StatusOK

	if s.db != nil {
		ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
		defer cancel()
		if err := s.db.HealthCheck(ctx); err != nil {
			s.logger.Error("health check database probe failed", "error", err)
			status = "degraded"
			httpStatus = http.StatusServiceUnavailable
		}
	}

	writeJSON(w, httpStatus, map[string]any{
		"status":  status,
		"version": s.version,
	})
}
