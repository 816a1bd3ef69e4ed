package reports

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"

	"swellcast/internal/observability"
	"swellcast/internal/types"
)

// mockStore is a hand-rolled in-memory ReportStore with per-method failure
// injection.
type mockStore struct {
	current *types.Report
	latest  *types.Report
	recent  []types.Report
	saved   []*types.Report

	currentErr error
	latestErr  error
	saveErr    error
	deleteErr  error

	deleteAllCalls   int
	deleteOlderCalls int
	clearedCount     int
}

func (m *mockStore) GetCurrent(_ context.Context, _ string) (*types.Report, error) {
	return m.current, m.currentErr
}

func (m *mockStore) GetLatest(_ context.Context, _ string) (*types.Report, error) {
	return m.latest, m.latestErr
}

func (m *mockStore) GetRecent(_ context.Context, _ string, limit int) ([]types.Report, error) {
	if limit < len(m.recent) {
		return m.recent[:limit], nil
	}
	return m.recent, nil
}

func (m *mockStore) Save(_ context.Context, report *types.Report) error {
	if m.saveErr != nil {
		return m.saveErr
	}
	m.saved = append(m.saved, report)
	return nil
}

func (m *mockStore) DeleteOlderThan(_ context.Context, _ string, _ time.Time) (int, error) {
	m.deleteOlderCalls++
	return 0, nil
}

func (m *mockStore) DeleteAll(_ context.Context, _ string) (int, error) {
	m.deleteAllCalls++
	if m.deleteErr != nil {
		return 0, m.deleteErr
	}
	return m.clearedCount, nil
}

type mockFetcher struct {
	snapshot *types.ConditionSnapshot
	err      error
	calls    int
}

func (m *mockFetcher) FetchConditions(_ context.Context, _ string) (*types.ConditionSnapshot, error) {
	m.calls++
	if m.err != nil {
		return nil, m.err
	}
	return m.snapshot, nil
}

type mockNarrator struct {
	narration *Narration
	err       error
	calls     int
}

func (m *mockNarrator) Narrate(_ context.Context, _ types.ConditionSnapshot) (*Narration, error) {
	m.calls++
	if m.err != nil {
		return nil, m.err
	}
	return m.narration, nil
}

func testSnapshot() *types.ConditionSnapshot {
	return &types.ConditionSnapshot{
		WaveHeightM:  1.4,
		WavePeriodS:  11,
		WindSpeedKts: 6,
		TideState:    types.TideRising,
		WaterTempC:   14,
		Score:        72,
	}
}

func testNarration() *Narration {
	return &Narration{
		Narrative: "Fun waist-to-chest peaks with light offshores.",
		Recommendations: types.RecommendationSet{
			BoardType:  "shortboard",
			SkillLevel: types.SkillIntermediate,
		},
	}
}

// gatedFetcher blocks inside FetchConditions until released, surfacing a
// context cancellation observed at release time.
type gatedFetcher struct {
	snapshot *types.ConditionSnapshot
	entered  chan struct{}
	release  chan struct{}
}

func (g *gatedFetcher) FetchConditions(ctx context.Context, _ string) (*types.ConditionSnapshot, error) {
	g.entered <- struct{}{}
	<-g.release
	if err := ctx.Err(); err != nil {
		return nil, types.NewAppError(types.ErrCodeUpstreamConditions, "conditions request aborted", err)
	}
	return g.snapshot, nil
}

func newTestService(t *testing.T, store *mockStore, fetcher ConditionsFetcher, narrator *mockNarrator, clock clockwork.Clock) *Service {
	t.Helper()
	schedule, err := NewRefreshSchedule("America/New_York", []int{5, 9, 13, 16})
	if err != nil {
		t.Fatalf("schedule: %v", err)
	}
	return NewService(
		store, fetcher, narrator, schedule,
		ServiceConfig{
			Location:          "santa-cruz",
			Windows:           testWindows(),
			RetentionDays:     14,
			ConditionsTimeout: 5 * time.Second,
			NarrationTimeout:  10 * time.Second,
		},
		clock,
		slog.New(slog.NewTextHandler(io.Discard, nil)),
		observability.NewMetricsForTesting(),
	)
}

func TestGetCurrentServesFreshCache(t *testing.T) {
	now := time.Date(2025, 6, 2, 12, 0, 0, 0, time.UTC)
	clock := clockwork.NewFakeClockAt(now)

	cached := reportAt(now.Add(-30 * time.Minute))
	store := &mockStore{current: cached}
	fetcher := &mockFetcher{snapshot: testSnapshot()}
	narrator := &mockNarrator{narration: testNarration()}

	svc := newTestService(t, store, fetcher, narrator, clock)
	report, meta, err := svc.GetCurrent(context.Background(), "santa-cruz")
	if err != nil {
		t.Fatalf("GetCurrent: %v", err)
	}

	if report.ID != cached.ID {
		t.Errorf("served report %s, want cached %s", report.ID, cached.ID)
	}
	if meta.Source != types.SourceFreshCache {
		t.Errorf("source = %s, want %s", meta.Source, types.SourceFreshCache)
	}
	if meta.Stale {
		t.Error("fresh report flagged stale")
	}
	if meta.AgeSeconds != 1800 {
		t.Errorf("age = %d, want 1800", meta.AgeSeconds)
	}
	if fetcher.calls != 0 {
		t.Errorf("fresh serve hit upstream %d times", fetcher.calls)
	}
}

func TestGetCurrentServesStaleWithoutRegenerating(t *testing.T) {
	now := time.Date(2025, 6, 2, 12, 0, 0, 0, time.UTC)
	clock := clockwork.NewFakeClockAt(now)

	cached := reportAt(now.Add(-4 * time.Hour))
	store := &mockStore{current: cached}
	fetcher := &mockFetcher{snapshot: testSnapshot()}

	svc := newTestService(t, store, fetcher, &mockNarrator{narration: testNarration()}, clock)
	report, meta, err := svc.GetCurrent(context.Background(), "santa-cruz")
	if err != nil {
		t.Fatalf("GetCurrent: %v", err)
	}

	if report.ID != cached.ID {
		t.Errorf("served %s, want stale cached %s", report.ID, cached.ID)
	}
	if meta.Source != types.SourceStaleCache || !meta.Stale {
		t.Errorf("meta = %+v, want stale-cache with stale flag", meta)
	}
	if fetcher.calls != 0 {
		t.Error("stale serve must not block on regeneration")
	}
}

func TestGetCurrentRegeneratesWhenExpired(t *testing.T) {
	now := time.Date(2025, 6, 2, 12, 0, 0, 0, time.UTC)
	clock := clockwork.NewFakeClockAt(now)

	store := &mockStore{current: nil}
	fetcher := &mockFetcher{snapshot: testSnapshot()}
	narrator := &mockNarrator{narration: testNarration()}

	svc := newTestService(t, store, fetcher, narrator, clock)
	report, meta, err := svc.GetCurrent(context.Background(), "santa-cruz")
	if err != nil {
		t.Fatalf("GetCurrent: %v", err)
	}

	if meta.Source != types.SourceFreshGeneration {
		t.Errorf("source = %s, want %s", meta.Source, types.SourceFreshGeneration)
	}
	if report.Narrative != testNarration().Narrative {
		t.Errorf("narrative = %q", report.Narrative)
	}
	if !strings.HasPrefix(report.ID, "rpt_") {
		t.Errorf("report ID %q missing prefix", report.ID)
	}
	if !report.CachedUntil.After(report.Timestamp) {
		t.Errorf("cached_until %s not after timestamp %s", report.CachedUntil, report.Timestamp)
	}
	// 12:00 UTC = 08:00 EDT; next refresh hour is 09:00 EDT = 13:00 UTC.
	want := time.Date(2025, 6, 2, 13, 0, 0, 0, time.UTC)
	if !report.CachedUntil.Equal(want) {
		t.Errorf("cached_until = %s, want %s", report.CachedUntil, want)
	}
	if len(store.saved) != 1 {
		t.Fatalf("saved %d reports, want 1", len(store.saved))
	}
	if store.deleteOlderCalls != 1 {
		t.Errorf("retention prune ran %d times, want 1", store.deleteOlderCalls)
	}
}

func TestGetCurrentNarrationFailureFallsBackToTemplate(t *testing.T) {
	now := time.Date(2025, 6, 2, 12, 0, 0, 0, time.UTC)
	clock := clockwork.NewFakeClockAt(now)

	snapshot := testSnapshot()
	store := &mockStore{}
	fetcher := &mockFetcher{snapshot: snapshot}
	narrator := &mockNarrator{err: types.NewAppError(types.ErrCodeUpstreamNarration, "model timeout", nil)}

	svc := newTestService(t, store, fetcher, narrator, clock)
	report, meta, err := svc.GetCurrent(context.Background(), "santa-cruz")
	if err != nil {
		t.Fatalf("narration failure must not fail the request: %v", err)
	}

	if meta.Source != types.SourceFreshGeneration {
		t.Errorf("source = %s, want fresh generation", meta.Source)
	}
	if report.Narrative == "" {
		t.Error("templated narrative is empty")
	}
	// The report remains a valid cache entry: it is persisted and carries
	// the untouched snapshot.
	if len(store.saved) != 1 {
		t.Fatalf("templated report not persisted")
	}
	if report.Conditions != *snapshot {
		t.Error("snapshot was altered on the template path")
	}
}

func TestGetCurrentConditionsFailureServesEmergencyCache(t *testing.T) {
	now := time.Date(2025, 6, 2, 12, 0, 0, 0, time.UTC)
	clock := clockwork.NewFakeClockAt(now)

	old := reportAt(now.Add(-3 * 24 * time.Hour))
	store := &mockStore{current: nil, latest: old}
	fetcher := &mockFetcher{err: types.NewAppError(types.ErrCodeUpstreamConditions, "marine api down", nil)}

	svc := newTestService(t, store, fetcher, &mockNarrator{narration: testNarration()}, clock)
	report, meta, err := svc.GetCurrent(context.Background(), "santa-cruz")
	if err != nil {
		t.Fatalf("emergency cache must answer: %v", err)
	}

	if report.ID != old.ID {
		t.Errorf("served %s, want emergency %s", report.ID, old.ID)
	}
	if meta.Source != types.SourceEmergencyFallback || !meta.Emergency || !meta.Stale {
		t.Errorf("meta = %+v, want emergency fallback", meta)
	}
}

func TestGetCurrentNoDataAvailable(t *testing.T) {
	now := time.Date(2025, 6, 2, 12, 0, 0, 0, time.UTC)
	clock := clockwork.NewFakeClockAt(now)

	store := &mockStore{}
	fetcher := &mockFetcher{err: errors.New("connection refused")}

	svc := newTestService(t, store, fetcher, &mockNarrator{narration: testNarration()}, clock)
	_, _, err := svc.GetCurrent(context.Background(), "santa-cruz")
	if err == nil {
		t.Fatal("expected no_data_available")
	}

	var appErr *types.AppError
	if !errors.As(err, &appErr) || appErr.Code != types.ErrCodeNoDataAvailable {
		t.Errorf("err = %v, want code %s", err, types.ErrCodeNoDataAvailable)
	}
}

func TestGetCurrentSaveFailureStillServes(t *testing.T) {
	now := time.Date(2025, 6, 2, 12, 0, 0, 0, time.UTC)
	clock := clockwork.NewFakeClockAt(now)

	store := &mockStore{saveErr: errors.New("disk full")}
	fetcher := &mockFetcher{snapshot: testSnapshot()}

	svc := newTestService(t, store, fetcher, &mockNarrator{narration: testNarration()}, clock)
	report, meta, err := svc.GetCurrent(context.Background(), "santa-cruz")
	if err != nil {
		t.Fatalf("save failure must not fail the caller: %v", err)
	}
	if report == nil || meta.Source != types.SourceFreshGeneration {
		t.Errorf("report=%v meta=%+v", report, meta)
	}
}

func TestGetCurrentStoreError(t *testing.T) {
	clock := clockwork.NewFakeClockAt(time.Date(2025, 6, 2, 12, 0, 0, 0, time.UTC))
	store := &mockStore{currentErr: types.NewAppError(types.ErrCodeStoreUnavailable, "db down", nil)}

	svc := newTestService(t, store, &mockFetcher{}, &mockNarrator{}, clock)
	_, _, err := svc.GetCurrent(context.Background(), "santa-cruz")

	var appErr *types.AppError
	if !errors.As(err, &appErr) || appErr.Code != types.ErrCodeStoreUnavailable {
		t.Errorf("err = %v, want store unavailable", err)
	}
}

func TestGetCurrentRegenerationSurvivesInitiatorDisconnect(t *testing.T) {
	now := time.Date(2025, 6, 2, 12, 0, 0, 0, time.UTC)
	clock := clockwork.NewFakeClockAt(now)

	store := &mockStore{}
	fetcher := &gatedFetcher{
		snapshot: testSnapshot(),
		entered:  make(chan struct{}, 2),
		release:  make(chan struct{}),
	}
	narrator := &mockNarrator{narration: testNarration()}
	svc := newTestService(t, store, fetcher, narrator, clock)

	type outcome struct {
		meta types.ServeMeta
		err  error
	}
	results := make(chan outcome, 2)

	ctxA, cancelA := context.WithCancel(context.Background())
	defer cancelA()
	go func() {
		_, meta, err := svc.GetCurrent(ctxA, "santa-cruz")
		results <- outcome{meta, err}
	}()

	<-fetcher.entered

	go func() {
		_, meta, err := svc.GetCurrent(context.Background(), "santa-cruz")
		results <- outcome{meta, err}
	}()

	// Let the second caller join the in-flight regeneration before the
	// first caller disconnects.
	time.Sleep(50 * time.Millisecond)
	cancelA()
	close(fetcher.release)

	for i := 0; i < 2; i++ {
		res := <-results
		if res.err != nil {
			t.Fatalf("caller %d failed after initiator disconnect: %v", i, res.err)
		}
		if res.meta.Source != types.SourceFreshGeneration {
			t.Errorf("caller %d source = %s, want %s", i, res.meta.Source, types.SourceFreshGeneration)
		}
	}
	if len(store.saved) == 0 {
		t.Error("regenerated report was not persisted")
	}
}

func TestForceRefreshSuccess(t *testing.T) {
	now := time.Date(2025, 6, 2, 12, 0, 0, 0, time.UTC)
	clock := clockwork.NewFakeClockAt(now)

	store := &mockStore{clearedCount: 3}
	fetcher := &mockFetcher{snapshot: testSnapshot()}

	svc := newTestService(t, store, fetcher, &mockNarrator{narration: testNarration()}, clock)
	result, err := svc.ForceRefresh(context.Background(), "santa-cruz")
	if err != nil {
		t.Fatalf("ForceRefresh: %v", err)
	}

	if result.Cleared != 3 || !result.Regenerated || result.NewReportID == "" {
		t.Errorf("result = %+v", result)
	}
	if store.deleteAllCalls != 1 {
		t.Errorf("DeleteAll called %d times", store.deleteAllCalls)
	}
}

func TestForceRefreshRegenerationFailureStillSucceeds(t *testing.T) {
	clock := clockwork.NewFakeClockAt(time.Date(2025, 6, 2, 12, 0, 0, 0, time.UTC))
	store := &mockStore{clearedCount: 2}
	fetcher := &mockFetcher{err: errors.New("upstream down")}

	svc := newTestService(t, store, fetcher, &mockNarrator{}, clock)
	result, err := svc.ForceRefresh(context.Background(), "santa-cruz")
	if err != nil {
		t.Fatalf("clear succeeded, so the refresh must not error: %v", err)
	}
	if result.Cleared != 2 || result.Regenerated {
		t.Errorf("result = %+v, want cleared=2 regenerated=false", result)
	}
}

func TestForceRefreshClearFailure(t *testing.T) {
	clock := clockwork.NewFakeClockAt(time.Date(2025, 6, 2, 12, 0, 0, 0, time.UTC))
	store := &mockStore{deleteErr: types.NewAppError(types.ErrCodeStoreUnavailable, "db down", nil)}

	svc := newTestService(t, store, &mockFetcher{}, &mockNarrator{}, clock)
	if _, err := svc.ForceRefresh(context.Background(), "santa-cruz"); err == nil {
		t.Fatal("expected error when the clear itself fails")
	}
}

func TestSaveReportDefaultsAndInvariants(t *testing.T) {
	now := time.Date(2025, 6, 2, 12, 0, 0, 0, time.UTC)
	clock := clockwork.NewFakeClockAt(now)
	store := &mockStore{}

	svc := newTestService(t, store, &mockFetcher{}, &mockNarrator{}, clock)

	report := &types.Report{
		Narrative:  "hand-written report",
		Conditions: *testSnapshot(),
	}
	if err := svc.SaveReport(context.Background(), report); err != nil {
		t.Fatalf("SaveReport: %v", err)
	}

	if report.ID == "" || report.Location != "santa-cruz" {
		t.Errorf("defaults not applied: %+v", report)
	}
	if !report.Timestamp.Equal(now) {
		t.Errorf("timestamp = %s, want %s", report.Timestamp, now)
	}
	if !report.CachedUntil.After(report.Timestamp) {
		t.Errorf("cached_until %s not after timestamp", report.CachedUntil)
	}
}

func TestSaveReportRejectsEmptyNarrative(t *testing.T) {
	clock := clockwork.NewFakeClockAt(time.Date(2025, 6, 2, 12, 0, 0, 0, time.UTC))
	svc := newTestService(t, &mockStore{}, &mockFetcher{}, &mockNarrator{}, clock)

	err := svc.SaveReport(context.Background(), &types.Report{})
	var appErr *types.AppError
	if !errors.As(err, &appErr) || appErr.Code != types.ErrCodeValidationReport {
		t.Errorf("err = %v, want validation error", err)
	}
}

func TestSaveReportRejectsInvertedExpiry(t *testing.T) {
	now := time.Date(2025, 6, 2, 12, 0, 0, 0, time.UTC)
	clock := clockwork.NewFakeClockAt(now)
	svc := newTestService(t, &mockStore{}, &mockFetcher{}, &mockNarrator{}, clock)

	err := svc.SaveReport(context.Background(), &types.Report{
		Narrative:   "bad expiry",
		Timestamp:   now,
		CachedUntil: now.Add(-time.Hour),
	})
	var appErr *types.AppError
	if !errors.As(err, &appErr) || appErr.Code != types.ErrCodeValidationReport {
		t.Errorf("err = %v, want validation error", err)
	}
}
