package reports

import (
	"fmt"
	"time"
)

// RefreshSchedule computes cached_until timestamps aligned to the external
// warm-refresh cadence rather than a fixed TTL. The schedule is a set of
// local hours in a named timezone; a freshly generated report expires at the
// next scheduled hour strictly after the generation instant.
//
// All resolution goes through the named timezone so DST transitions are
// handled by the time package instead of a numeric UTC offset.
type RefreshSchedule struct {
	loc   *time.Location
	hours []int // ascending local hours, each in [0,23]
}

// NewRefreshSchedule builds a schedule from a timezone name and a set of
// local refresh hours. Hours must be within [0,23]; they are sorted by the
// config loader before arriving here.
func NewRefreshSchedule(timezone string, hours []int) (*RefreshSchedule, error) {
	if len(hours) == 0 {
		return nil, fmt.Errorf("refresh schedule requires at least one hour")
	}
	for _, h := range hours {
		if h < 0 || h > 23 {
			return nil, fmt.Errorf("refresh hour %d out of range [0,23]", h)
		}
	}
	loc, err := time.LoadLocation(timezone)
	if err != nil {
		return nil, fmt.Errorf("invalid timezone %q: %w", timezone, err)
	}
	return &RefreshSchedule{loc: loc, hours: hours}, nil
}

// NextExpiration returns the UTC instant of the next scheduled refresh hour
// strictly after now. If now falls exactly on a scheduled hour, that hour is
// treated as already past so the expiration always advances.
//
// time.Date in the schedule's Location resolves DST automatically: an hour
// skipped by a spring-forward transition normalizes to the following valid
// wall-clock time.
func (s *RefreshSchedule) NextExpiration(now time.Time) time.Time {
	local := now.In(s.loc)

	for _, h := range s.hours {
		candidate := time.Date(local.Year(), local.Month(), local.Day(), h, 0, 0, 0, s.loc)
		if candidate.After(now) {
			return candidate.UTC()
		}
	}

	// Past the last scheduled hour today; roll to the first hour tomorrow.
	tomorrow := local.AddDate(0, 0, 1)
	next := time.Date(tomorrow.Year(), tomorrow.Month(), tomorrow.Day(), s.hours[0], 0, 0, 0, s.loc)
	return next.UTC()
}
