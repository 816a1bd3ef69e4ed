// Package reports implements the report cache and freshness controller: the
// policy engine that decides, on every request, whether to return a cached
// report, return a stale-but-usable report, or regenerate, and the
// warm-refresh path that pre-populates the cache ahead of user demand.
package reports

import (
	"time"

	"swellcast/internal/types"
)

// Freshness is the three-tier age classification governing serving policy.
// The ordering Fresh < StaleUsable < Expired is relied on by tests and by
// the orchestrator's monotonicity assumptions.
type Freshness int

const (
	Fresh Freshness = iota
	StaleUsable
	Expired
)

// String returns the lowercase name of the classification.
func (f Freshness) String() string {
	switch f {
	case Fresh:
		return "fresh"
	case StaleUsable:
		return "stale-usable"
	default:
		return "expired"
	}
}

// FreshnessWindows holds the two age thresholds that drive classification.
// These are serving-policy knobs, deliberately independent of cached_until:
// cached_until governs eligibility for the "current" slot, the windows
// govern how whatever is found gets served.
type FreshnessWindows struct {
	Fresh time.Duration
	Stale time.Duration
}

// Classify maps a report's age at the given instant to a Freshness tier.
// A nil report classifies as Expired. Pure function; no clock access.
func Classify(report *types.Report, now time.Time, w FreshnessWindows) Freshness {
	if report == nil {
		return Expired
	}
	age := now.Sub(report.Timestamp)
	switch {
	case age < w.Fresh:
		return Fresh
	case age < w.Stale:
		return StaleUsable
	default:
		return Expired
	}
}
