// Package core provides the API chassis for the swellcast service.
// It creates the chi router and enforces cross-cutting concerns --
// recovery, timeouts, request IDs, logging, and metrics -- before
// requests reach the report handlers.
package core

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"swellcast/internal/config"
	"swellcast/internal/observability"
)

// Server encapsulates the API's cross-cutting dependencies so tests can
// inject their own config, logger, and metrics.
type Server struct {
	Config    *config.Config
	Logger    *slog.Logger
	Validator *Validator
	Metrics   *observability.Metrics

	// HealthProbes are checked by GET /health. Each probe represents a
	// dependency (database) that must be reachable for the service to work.
	HealthProbes []HealthProbe

	// V1RouteRegistrars are populated by the entry point before MountRoutes.
	// The indirection avoids an import cycle between core and the handler
	// packages.
	V1RouteRegistrars []func(chi.Router)

	router *chi.Mux
}

// NewServer initializes the server chassis. Routes are mounted separately
// (via MountRoutes) so tests can customize registration.
func NewServer(cfg *config.Config, logger *slog.Logger, metrics *observability.Metrics) (*Server, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config must not be nil")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger must not be nil")
	}

	return &Server{
		Config:    cfg,
		Logger:    logger,
		Validator: NewValidator(),
		Metrics:   metrics,
		router:    chi.NewRouter(),
	}, nil
}

// Handler returns the router as an http.Handler for http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Router returns the underlying chi.Mux for route registration in tests.
func (s *Server) Router() *chi.Mux {
	return s.router
}

// Shutdown logs the shutdown; pool closure is owned by the entry point.
func (s *Server) Shutdown(ctx context.Context) error {
	s.Logger.Info("server shutdown complete")
	return nil
}
