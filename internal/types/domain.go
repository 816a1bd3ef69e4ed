package types

import (
	"time"
)

// Report is the core domain entity: an immutable, AI-narrated snapshot of
// surf conditions for a location. Reports are never updated in place;
// refreshing the cache means inserting a new Report.
type Report struct {
	ID        string    `json:"id" db:"id"`
	Location  string    `json:"location" db:"location"`
	Timestamp time.Time `json:"timestamp" db:"created_at"`

	// Narrative is the AI-generated prose (or the deterministic template
	// output when narration was unavailable). Opaque to the core.
	Narrative string `json:"narrative" db:"narrative"`

	// Conditions is the snapshot of upstream ocean data the narrative was
	// produced from. Immutable once created.
	Conditions ConditionSnapshot `json:"conditions" db:"conditions"`

	// Recommendations is structured advice supplied by the narration
	// collaborator and stored verbatim.
	Recommendations RecommendationSet `json:"recommendations" db:"recommendations"`

	// CachedUntil is the absolute UTC instant past which this Report is no
	// longer eligible to be served as the "current" cached entry. Always
	// strictly after Timestamp.
	CachedUntil time.Time `json:"cached_until" db:"cached_until"`
}

// Age returns how old the report is relative to now.
func (r *Report) Age(now time.Time) time.Duration {
	return now.Sub(r.Timestamp)
}

// ServeMeta describes how a Report was obtained for a given request.
// It accompanies every report response so that clients can distinguish
// fresh, stale, and emergency data without inspecting timestamps.
type ServeMeta struct {
	Source     ReportSource `json:"source"`
	AgeSeconds int64        `json:"age_seconds"`
	Stale      bool         `json:"stale,omitempty"`
	// Emergency is set when the report was served from the emergency cache
	// and may be arbitrarily old.
	Emergency bool `json:"emergency,omitempty"`
}

// RefreshResult is the outcome of a warm-refresh trigger invocation.
type RefreshResult struct {
	Cleared     int    `json:"cleared"`
	Regenerated bool   `json:"regenerated"`
	NewReportID string `json:"new_report_id,omitempty"`
}
