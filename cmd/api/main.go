// Package main is the entry point for the swellcast API server.
//
// It loads configuration, connects to Postgres, wires the upstream clients
// and the report orchestrator, builds the HTTP server with the core chassis
// (middleware, routing, health checks, metrics), and starts listening.
//
// Graceful shutdown is handled via OS signal interception (SIGINT, SIGTERM).
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/jonboulle/clockwork"

	"swellcast/internal/api/handlers"
	"swellcast/internal/config"
	"swellcast/internal/core"
	"swellcast/internal/db"
	"swellcast/internal/external"
	"swellcast/internal/observability"
	"swellcast/internal/reports"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

// run encapsulates the startup lifecycle so that main() can cleanly exit on error.
func run() error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}

	logger := newLogger(cfg.LogLevel)
	logger.Info("swellcast API starting",
		"environment", cfg.Environment,
		"version", cfg.Build.Version,
		"commit", cfg.Build.Commit,
		"location", cfg.Cache.Location,
		"port", cfg.Server.Port,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := db.NewPool(ctx, cfg.Database)
	if err != nil {
		return fmt.Errorf("connecting to database: %w", err)
	}
	defer pool.Close()

	metrics := observability.NewMetrics()

	srv, err := core.NewServer(cfg, logger, metrics)
	if err != nil {
		return fmt.Errorf("creating server: %w", err)
	}
	srv.HealthProbes = []core.HealthProbe{core.DBProbe{Pinger: pool}}

	service, err := buildReportService(cfg, pool, logger, metrics)
	if err != nil {
		return fmt.Errorf("building report service: %w", err)
	}

	reportHandler := handlers.NewReportHandler(service, srv.Validator, logger)
	srv.V1RouteRegistrars = append(srv.V1RouteRegistrars, func(r chi.Router) {
		reportHandler.RegisterRoutes(r, srv.AdminAuthMiddleware)
	})

	srv.MountRoutes()

	return runHTTPServer(ctx, srv, cfg, logger)
}

// buildReportService wires the store, upstream clients, and refresh schedule
// into the orchestrator.
func buildReportService(cfg *config.Config, pool db.DBTX, logger *slog.Logger, metrics *observability.Metrics) (*reports.Service, error) {
	store := db.NewReportRepository(pool)

	conditions := external.NewConditionsClient(
		&http.Client{Timeout: cfg.Conditions.Timeout},
		cfg.Conditions,
	)
	narrator := external.NewNarrationClient(
		&http.Client{Timeout: cfg.Narration.Timeout},
		cfg.Narration,
	)

	schedule, err := reports.NewRefreshSchedule(cfg.Cache.Timezone, cfg.Cache.RefreshHours)
	if err != nil {
		return nil, err
	}

	return reports.NewService(
		store,
		conditions,
		narrator,
		schedule,
		reports.ServiceConfig{
			Location: cfg.Cache.Location,
			Windows: reports.FreshnessWindows{
				Fresh: cfg.Cache.FreshWindow,
				Stale: cfg.Cache.StaleWindow,
			},
			RetentionDays:     cfg.Cache.RetentionDays,
			ConditionsTimeout: cfg.Conditions.Timeout,
			NarrationTimeout:  cfg.Narration.Timeout,
		},
		clockwork.NewRealClock(),
		logger,
		metrics,
	), nil
}

// runHTTPServer starts the server with graceful shutdown on signal.
func runHTTPServer(ctx context.Context, srv *core.Server, cfg *config.Config, logger *slog.Logger) error {
	addr := ":" + cfg.Server.Port

	httpServer := &http.Server{
		Addr:              addr,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      cfg.Server.RequestTimeout + 5*time.Second,
		IdleTimeout:       120 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("HTTP server listening", "addr", addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	case err := <-serverErr:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
	}

	logger.Info("initiating graceful shutdown")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP server shutdown error", "error", err)
	}
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}

	logger.Info("server stopped cleanly")
	return nil
}

// newLogger creates a structured JSON slog.Logger for the given level.
func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}

	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl}))
}
