package db

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"swellcast/internal/types"
)

// pgUniqueViolation is the PostgreSQL error code for unique constraint violations.
const pgUniqueViolation = "23505"

// ReportRepository provides data access for the reports table.
//
// Schema:
//
//	CREATE TABLE reports (
//	    id              TEXT PRIMARY KEY,
//	    location        TEXT NOT NULL,
//	    created_at      TIMESTAMPTZ NOT NULL,
//	    narrative       TEXT NOT NULL,
//	    conditions      JSONB NOT NULL,
//	    recommendations JSONB NOT NULL,
//	    cached_until    TIMESTAMPTZ NOT NULL,
//	    CHECK (cached_until > created_at)
//	);
//	CREATE INDEX reports_current_idx ON reports (location, cached_until DESC);
//	CREATE INDEX reports_history_idx ON reports (location, created_at DESC);
//
// Rows are immutable: there is no UPDATE path. Refreshing the cache inserts
// a new row; retention and cache clears delete old ones.
type ReportRepository struct {
	db DBTX
}

// NewReportRepository creates a ReportRepository backed by the given database
// connection (pool or transaction).
func NewReportRepository(db DBTX) *ReportRepository {
	return &ReportRepository{db: db}
}

// reportColumns is the standard column set for report queries. Scan order
// must match scanReport.
const reportColumns = `id, location, created_at, narrative, conditions, recommendations, cached_until`

// scanReport scans a single report row. The columns must match reportColumns.
func scanReport(row pgx.Row) (*types.Report, error) {
	var r types.Report
	err := row.Scan(
		&r.ID,
		&r.Location,
		&r.Timestamp,
		&r.Narrative,
		&r.Conditions,
		&r.Recommendations,
		&r.CachedUntil,
	)
	if err != nil {
		return nil, err
	}
	r.Timestamp = r.Timestamp.UTC()
	r.CachedUntil = r.CachedUntil.UTC()
	return &r, nil
}

// GetCurrent returns the most recent report for the location whose
// cached_until has not passed, or nil when no such row exists.
// Storage failures are surfaced as store_unavailable, never as a nil miss.
func (r *ReportRepository) GetCurrent(ctx context.Context, location string) (*types.Report, error) {
	row := r.db.QueryRow(ctx, `
		SELECT `+reportColumns+`
		FROM reports
		WHERE location = $1 AND cached_until > now()
		ORDER BY created_at DESC
		LIMIT 1`, location)

	report, err := scanReport(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, storeError("reading current report", err)
	}
	return report, nil
}

// GetLatest returns the most recent report for the location regardless of
// cached_until. This is the emergency-cache read used when upstream data
// cannot be fetched. Returns nil when the location has no reports at all.
func (r *ReportRepository) GetLatest(ctx context.Context, location string) (*types.Report, error) {
	row := r.db.QueryRow(ctx, `
		SELECT `+reportColumns+`
		FROM reports
		WHERE location = $1
		ORDER BY created_at DESC
		LIMIT 1`, location)

	report, err := scanReport(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, storeError("reading latest report", err)
	}
	return report, nil
}

// GetRecent returns up to limit reports for the location, newest first.
func (r *ReportRepository) GetRecent(ctx context.Context, location string, limit int) ([]types.Report, error) {
	rows, err := r.db.Query(ctx, `
		SELECT `+reportColumns+`
		FROM reports
		WHERE location = $1
		ORDER BY created_at DESC
		LIMIT $2`, location, limit)
	if err != nil {
		return nil, storeError("listing recent reports", err)
	}
	defer rows.Close()

	var reports []types.Report
	for rows.Next() {
		report, err := scanReport(rows)
		if err != nil {
			return nil, storeError("scanning report row", err)
		}
		reports = append(reports, *report)
	}
	if err := rows.Err(); err != nil {
		return nil, storeError("iterating report rows", err)
	}
	return reports, nil
}

// Save inserts a new immutable report. A duplicate id is a programming
// error, not a retriable condition, and is surfaced as
// conflict_duplicate_report.
func (r *ReportRepository) Save(ctx context.Context, report *types.Report) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO reports (id, location, created_at, narrative, conditions, recommendations, cached_until)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		report.ID,
		report.Location,
		report.Timestamp,
		report.Narrative,
		report.Conditions,
		report.Recommendations,
		report.CachedUntil,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
			return types.NewAppError(
				types.ErrCodeConflictDuplicateReport,
				"report id already exists: "+report.ID,
				err,
			)
		}
		return storeError("saving report", err)
	}
	return nil
}

// DeleteOlderThan removes reports for the location created before cutoff.
// Returns the number of rows removed. Used by retention cleanup.
func (r *ReportRepository) DeleteOlderThan(ctx context.Context, location string, cutoff time.Time) (int, error) {
	tag, err := r.db.Exec(ctx, `
		DELETE FROM reports WHERE location = $1 AND created_at < $2`,
		location, cutoff)
	if err != nil {
		return 0, storeError("deleting old reports", err)
	}
	return int(tag.RowsAffected()), nil
}

// DeleteAll removes every report for the location. This is the
// administrative cache-clear operation. Returns the number of rows removed.
func (r *ReportRepository) DeleteAll(ctx context.Context, location string) (int, error) {
	tag, err := r.db.Exec(ctx, `DELETE FROM reports WHERE location = $1`, location)
	if err != nil {
		return 0, storeError("clearing report cache", err)
	}
	return int(tag.RowsAffected()), nil
}

// storeError wraps a database failure as store_unavailable. Callers treat
// this as a hard failure; it is never collapsed into "no cache".
func storeError(op string, err error) *types.AppError {
	return types.NewAppError(types.ErrCodeStoreUnavailable, op+" failed", err)
}
