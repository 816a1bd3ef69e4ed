package reports

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"golang.org/x/sync/singleflight"

	"swellcast/internal/observability"
	"swellcast/internal/types"
)

// ReportStore is the durable report storage contract the orchestrator
// depends on. Implemented by db.ReportRepository.
type ReportStore interface {
	GetCurrent(ctx context.Context, location string) (*types.Report, error)
	GetLatest(ctx context.Context, location string) (*types.Report, error)
	GetRecent(ctx context.Context, location string, limit int) ([]types.Report, error)
	Save(ctx context.Context, report *types.Report) error
	DeleteOlderThan(ctx context.Context, location string, cutoff time.Time) (int, error)
	DeleteAll(ctx context.Context, location string) (int, error)
}

// ConditionsFetcher is the upstream ocean-condition collaborator.
// Implemented by external.ConditionsClient; stubbed in tests.
type ConditionsFetcher interface {
	FetchConditions(ctx context.Context, location string) (*types.ConditionSnapshot, error)
}

// Narration is the structured output of a successful narrator call.
type Narration struct {
	Narrative       string
	Recommendations types.RecommendationSet
}

// Narrator is the AI narration collaborator. A non-nil error means the call
// failed entirely; the orchestrator then falls back to the templated
// narrator rather than failing the request.
type Narrator interface {
	Narrate(ctx context.Context, snapshot types.ConditionSnapshot) (*Narration, error)
}

// ServiceConfig holds the orchestrator's tuning knobs.
type ServiceConfig struct {
	Location          string
	Windows           FreshnessWindows
	RetentionDays     int
	ConditionsTimeout time.Duration
	NarrationTimeout  time.Duration
}

// Service is the regeneration orchestrator: the single control-flow owner
// for "get current report". It consults the store and the freshness
// classifier, regenerates through the upstream collaborators when needed,
// and degrades through stale cache, emergency cache, and finally
// no_data_available.
type Service struct {
	store    ReportStore
	fetcher  ConditionsFetcher
	narrator Narrator
	schedule *RefreshSchedule
	cfg      ServiceConfig

	clock   clockwork.Clock
	logger  *slog.Logger
	metrics *observability.Metrics

	// regen collapses concurrent regenerations for the same location into
	// one upstream round trip. Cost optimization only: correctness never
	// depends on mutual exclusion, and duplicate regeneration is harmless.
	regen singleflight.Group
}

// NewService constructs the orchestrator. All dependencies are required
// except the clock, which defaults to the real clock.
func NewService(
	store ReportStore,
	fetcher ConditionsFetcher,
	narrator Narrator,
	schedule *RefreshSchedule,
	cfg ServiceConfig,
	clock clockwork.Clock,
	logger *slog.Logger,
	metrics *observability.Metrics,
) *Service {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if logger == nil {
		logger = slog.Default()
	}
	if metrics == nil {
		metrics = observability.NewMetricsForTesting()
	}
	return &Service{
		store:    store,
		fetcher:  fetcher,
		narrator: narrator,
		schedule: schedule,
		cfg:      cfg,
		clock:    clock,
		logger:   logger,
		metrics:  metrics,
	}
}

// GetCurrent serves the current report for the location, regenerating when
// the cached entry is expired or missing. The returned ServeMeta records
// which cache tier answered.
func (s *Service) GetCurrent(ctx context.Context, location string) (*types.Report, types.ServeMeta, error) {
	cached, err := s.store.GetCurrent(ctx, location)
	if err != nil {
		s.metrics.ServeFailures.Inc()
		return nil, types.ServeMeta{}, err
	}

	now := s.clock.Now().UTC()
	switch Classify(cached, now, s.cfg.Windows) {
	case Fresh:
		return cached, s.serve(cached, now, types.ServeMeta{Source: types.SourceFreshCache}), nil
	case StaleUsable:
		// Latency over absolute freshness: good-enough data is returned
		// immediately instead of blocking the caller behind regeneration.
		return cached, s.serve(cached, now, types.ServeMeta{Source: types.SourceStaleCache, Stale: true}), nil
	}

	report, err := s.regenerate(ctx, location)
	if err == nil {
		return report, s.serve(report, s.clock.Now().UTC(), types.ServeMeta{Source: types.SourceFreshGeneration}), nil
	}

	return s.fallback(ctx, location, err)
}

// fallback serves the emergency cache: any stored report regardless of age.
// Only when the location has no reports at all does the caller see an error.
func (s *Service) fallback(ctx context.Context, location string, cause error) (*types.Report, types.ServeMeta, error) {
	s.logger.WarnContext(ctx, "regeneration failed, trying emergency cache",
		"location", location,
		"error", cause,
	)

	latest, err := s.store.GetLatest(ctx, location)
	if err != nil {
		s.metrics.ServeFailures.Inc()
		return nil, types.ServeMeta{}, err
	}
	if latest == nil {
		s.metrics.ServeFailures.Inc()
		return nil, types.ServeMeta{}, types.NewAppError(
			types.ErrCodeNoDataAvailable,
			"no cached report exists and upstream data is unavailable",
			cause,
		)
	}

	now := s.clock.Now().UTC()
	meta := types.ServeMeta{Source: types.SourceEmergencyFallback, Stale: true, Emergency: true}
	return latest, s.serve(latest, now, meta), nil
}

// flightPersistGrace is added to the upstream timeouts to budget the store
// write and retention prune at the end of a regeneration flight.
const flightPersistGrace = 5 * time.Second

// regenerate runs the fetch-narrate-persist sequence, deduplicated per
// location. Narration failure degrades to the templated narrator; only a
// conditions-fetch failure propagates an error.
//
// The flight is shared by every concurrent caller for the location, so it
// must not be cancelled when the caller that happened to start it
// disconnects. It runs under its own deadline, detached from the initiating
// request context.
func (s *Service) regenerate(ctx context.Context, location string) (*types.Report, error) {
	v, err, _ := s.regen.Do(location, func() (interface{}, error) {
		flightCtx, cancel := context.WithTimeout(
			context.WithoutCancel(ctx),
			s.cfg.ConditionsTimeout+s.cfg.NarrationTimeout+flightPersistGrace,
		)
		defer cancel()
		return s.generate(flightCtx, location)
	})
	if err != nil {
		return nil, err
	}
	return v.(*types.Report), nil
}

func (s *Service) generate(ctx context.Context, location string) (*types.Report, error) {
	start := s.clock.Now()
	defer func() {
		s.metrics.RegenerationDuration.Observe(s.clock.Since(start).Seconds())
	}()

	fetchCtx, cancel := context.WithTimeout(ctx, s.cfg.ConditionsTimeout)
	snapshot, err := s.fetcher.FetchConditions(fetchCtx, location)
	cancel()
	if err != nil {
		s.metrics.UpstreamErrors.WithLabelValues("conditions").Inc()
		return nil, err
	}

	narrative, recs := s.narrate(ctx, *snapshot)

	now := s.clock.Now().UTC()
	report := &types.Report{
		ID:              newReportID(),
		Location:        location,
		Timestamp:       now,
		Narrative:       narrative,
		Conditions:      *snapshot,
		Recommendations: recs,
		CachedUntil:     s.schedule.NextExpiration(now),
	}

	// Write-through is best-effort: the freshly generated report is valid
	// for this caller even when persistence fails.
	if err := s.store.Save(ctx, report); err != nil {
		s.logger.ErrorContext(ctx, "failed to persist regenerated report",
			"location", location,
			"report_id", report.ID,
			"error", err,
		)
		return report, nil
	}

	s.pruneHistory(ctx, location)
	return report, nil
}

// narrate invokes the AI narrator, falling back to the deterministic
// template on any failure. The snapshot always flows into the result
// unchanged; only the prose and recommendations differ between paths.
func (s *Service) narrate(ctx context.Context, snapshot types.ConditionSnapshot) (string, types.RecommendationSet) {
	narrCtx, cancel := context.WithTimeout(ctx, s.cfg.NarrationTimeout)
	defer cancel()

	n, err := s.narrator.Narrate(narrCtx, snapshot)
	if err != nil {
		s.metrics.UpstreamErrors.WithLabelValues("narration").Inc()
		s.metrics.NarrationFallbacks.Inc()
		s.logger.WarnContext(ctx, "narration failed, using templated report",
			"error", err,
		)
		return TemplateNarrative(snapshot), TemplateRecommendations(snapshot)
	}
	return n.Narrative, n.Recommendations
}

// pruneHistory enforces retention after a successful save. Best-effort:
// a failed prune never affects the serving path.
func (s *Service) pruneHistory(ctx context.Context, location string) {
	if s.cfg.RetentionDays <= 0 {
		return
	}
	cutoff := s.clock.Now().UTC().AddDate(0, 0, -s.cfg.RetentionDays)
	removed, err := s.store.DeleteOlderThan(ctx, location, cutoff)
	if err != nil {
		s.logger.WarnContext(ctx, "retention cleanup failed",
			"location", location,
			"error", err,
		)
		return
	}
	if removed > 0 {
		s.logger.InfoContext(ctx, "pruned report history",
			"location", location,
			"removed", removed,
			"cutoff", cutoff,
		)
	}
}

// ForceRefresh is the warm-refresh trigger body: clear the location's cache,
// then attempt to pre-populate it before real traffic arrives. Regeneration
// failure does not fail the call; clearing stale data is valuable on its
// own, and the next user request simply pays the regeneration cost.
func (s *Service) ForceRefresh(ctx context.Context, location string) (*types.RefreshResult, error) {
	cleared, err := s.store.DeleteAll(ctx, location)
	if err != nil {
		return nil, err
	}

	result := &types.RefreshResult{Cleared: cleared}

	report, err := s.regenerate(ctx, location)
	if err != nil {
		s.logger.WarnContext(ctx, "warm refresh cleared cache but regeneration failed",
			"location", location,
			"cleared", cleared,
			"error", err,
		)
		return result, nil
	}

	result.Regenerated = true
	result.NewReportID = report.ID
	s.logger.InfoContext(ctx, "warm refresh complete",
		"location", location,
		"cleared", cleared,
		"report_id", report.ID,
	)
	return result, nil
}

// History returns the most recent reports for the location, newest first.
func (s *Service) History(ctx context.Context, location string, limit int) ([]types.Report, error) {
	return s.store.GetRecent(ctx, location, limit)
}

// ClearCache removes every report for the location and returns the count.
func (s *Service) ClearCache(ctx context.Context, location string) (int, error) {
	return s.store.DeleteAll(ctx, location)
}

// SaveReport persists a caller-supplied report after enforcing the creation
// invariants. Used by the authenticated save endpoint acting on the
// orchestrator's behalf. Missing id and timestamps are filled in; a report
// that would violate cached_until > timestamp is rejected.
func (s *Service) SaveReport(ctx context.Context, report *types.Report) error {
	if report.Narrative == "" {
		return types.NewAppError(types.ErrCodeValidationReport, "narrative must not be empty", nil)
	}
	if report.Location == "" {
		report.Location = s.cfg.Location
	}
	if report.ID == "" {
		report.ID = newReportID()
	}
	now := s.clock.Now().UTC()
	if report.Timestamp.IsZero() {
		report.Timestamp = now
	}
	if report.CachedUntil.IsZero() {
		report.CachedUntil = s.schedule.NextExpiration(report.Timestamp)
	}
	if !report.CachedUntil.After(report.Timestamp) {
		return types.NewAppError(
			types.ErrCodeValidationReport,
			fmt.Sprintf("cached_until %s must be after timestamp %s",
				report.CachedUntil.Format(time.RFC3339), report.Timestamp.Format(time.RFC3339)),
			nil,
		)
	}
	return s.store.Save(ctx, report)
}

// Location returns the deployment's configured cache key.
func (s *Service) Location() string {
	return s.cfg.Location
}

// serve finalizes serving metadata and records serving metrics.
func (s *Service) serve(report *types.Report, now time.Time, meta types.ServeMeta) types.ServeMeta {
	age := report.Age(now)
	if age < 0 {
		age = 0
	}
	meta.AgeSeconds = int64(age.Seconds())
	s.metrics.ReportsServed.WithLabelValues(string(meta.Source)).Inc()
	s.metrics.LastReportAgeSeconds.Set(age.Seconds())
	return meta
}

// newReportID creates a unique report identifier. Uniqueness is the only
// invariant; the prefix exists for log greppability.
func newReportID() string {
	return "rpt_" + uuid.NewString()
}
