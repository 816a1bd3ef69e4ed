// Package main is a one-shot maintenance binary for the swellcast database.
//
// It deletes cached reports older than the configured retention window for
// the configured location. The API server already prunes history after each
// successful generation, so this tool exists for operational cleanup: runs
// from cron, backfilled databases, or recovery after the server has been
// down past the retention horizon.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"time"

	"swellcast/internal/config"
	"swellcast/internal/db"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	dryRun := flag.Bool("dry-run", false, "report what would be deleted without deleting")
	timeout := flag.Duration("timeout", 2*time.Minute, "overall execution timeout")
	flag.Parse()

	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	pool, err := db.NewPool(ctx, cfg.Database)
	if err != nil {
		return fmt.Errorf("connecting to database: %w", err)
	}
	defer pool.Close()

	cutoff := time.Now().UTC().AddDate(0, 0, -cfg.Cache.RetentionDays)
	logger.Info("pruning report history",
		"location", cfg.Cache.Location,
		"retention_days", cfg.Cache.RetentionDays,
		"cutoff", cutoff.Format(time.RFC3339),
		"dry_run", *dryRun,
	)

	repo := db.NewReportRepository(pool)
	if *dryRun {
		// High enough to cover any realistic backlog at 4 reports per day.
		const scanLimit = 100000
		reports, err := repo.GetRecent(ctx, cfg.Cache.Location, scanLimit)
		if err != nil {
			return fmt.Errorf("listing reports: %w", err)
		}
		var stale int
		for _, rep := range reports {
			if rep.Timestamp.Before(cutoff) {
				stale++
			}
		}
		logger.Info("dry run complete", "total", len(reports), "would_delete", stale)
		return nil
	}

	deleted, err := repo.DeleteOlderThan(ctx, cfg.Cache.Location, cutoff)
	if err != nil {
		return fmt.Errorf("deleting old reports: %w", err)
	}
	logger.Info("prune complete", "deleted", deleted)
	return nil
}
