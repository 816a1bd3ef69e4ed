package external

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"swellcast/internal/types"
)

func noopSleep(time.Duration) {}

func newTestClient(t *testing.T) *BaseClient {
	t.Helper()
	return NewBaseClient(
		&http.Client{Timeout: 5 * time.Second},
		"test-breaker",
		DefaultRetryPolicy(),
		"swellcast-test/1.0",
		WithSleepFunc(noopSleep),
	)
}

func doGet(t *testing.T, c *BaseClient, url string) (*http.Response, error) {
	t.Helper()
	req, err := http.NewRequestWithContext(context.Background(), http.MethodGet, url, nil)
	if err != nil {
		t.Fatalf("building request: %v", err)
	}
	return c.Do(req)
}

func TestDoSuccess(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	resp, err := doGet(t, newTestClient(t), server.URL)
	if err != nil {
		t.Fatalf("Do: %v", err)
	}
	resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want 200", resp.StatusCode)
	}
}

func TestDoInjectsRequestIDAndUserAgent(t *testing.T) {
	var gotReqID, gotUA string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotReqID = r.Header.Get("X-Request-Id")
		gotUA = r.Header.Get("User-Agent")
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	ctx := types.WithRequestID(context.Background(), "req-abc-123")
	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, server.URL, nil)

	resp, err := newTestClient(t).Do(req)
	if err != nil {
		t.Fatalf("Do: %v", err)
	}
	resp.Body.Close()

	if gotReqID != "req-abc-123" {
		t.Errorf("X-Request-Id = %q", gotReqID)
	}
	if gotUA != "swellcast-test/1.0" {
		t.Errorf("User-Agent = %q", gotUA)
	}
}

func TestDoRetriesOn500(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	resp, err := doGet(t, newTestClient(t), server.URL)
	if err != nil {
		t.Fatalf("Do after retries: %v", err)
	}
	resp.Body.Close()

	if got := calls.Load(); got != 3 {
		t.Errorf("upstream called %d times, want 3", got)
	}
}

func TestDoExhaustedRetriesMapsTo502Class(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	_, err := doGet(t, newTestClient(t), server.URL)
	if err == nil {
		t.Fatal("expected error after exhausted retries")
	}

	var appErr *types.AppError
	if !errors.As(err, &appErr) || appErr.Code != types.ErrCodeUpstreamUnavailable {
		t.Errorf("err = %v, want %s", err, types.ErrCodeUpstreamUnavailable)
	}
}

func TestDoRateLimitMapsToRateLimited(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer server.Close()

	_, err := doGet(t, newTestClient(t), server.URL)

	var appErr *types.AppError
	if !errors.As(err, &appErr) || appErr.Code != types.ErrCodeUpstreamRateLimited {
		t.Errorf("err = %v, want %s", err, types.ErrCodeUpstreamRateLimited)
	}
}

func TestDoRespectsRetryAfter(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.Header().Set("Retry-After", "2")
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	var slept time.Duration
	client := NewBaseClient(
		&http.Client{Timeout: 5 * time.Second},
		"retry-after-breaker",
		DefaultRetryPolicy(),
		"swellcast-test/1.0",
		WithSleepFunc(func(d time.Duration) { slept += d }),
	)

	resp, err := doGet(t, client, server.URL)
	if err != nil {
		t.Fatalf("Do: %v", err)
	}
	resp.Body.Close()

	if slept != 2*time.Second {
		t.Errorf("slept %s, want 2s from Retry-After", slept)
	}
}

func TestDo4xxNotRetried(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	resp, err := doGet(t, newTestClient(t), server.URL)
	if err != nil {
		t.Fatalf("4xx should be returned, not mapped: %v", err)
	}
	resp.Body.Close()

	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("status = %d, want 404", resp.StatusCode)
	}
	if got := calls.Load(); got != 1 {
		t.Errorf("upstream called %d times, want 1", got)
	}
}

func TestDoCircuitBreakerOpens(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	client := newTestClient(t)

	// Each call contributes up to 3 consecutive failures; two calls pass the
	// >5 trip threshold.
	for i := 0; i < 2; i++ {
		if _, err := doGet(t, client, server.URL); err == nil {
			t.Fatal("expected failure while tripping the breaker")
		}
	}

	_, err := doGet(t, client, server.URL)
	var appErr *types.AppError
	if !errors.As(err, &appErr) || appErr.Code != types.ErrCodeUpstreamRateLimited {
		t.Errorf("err = %v, want open-breaker mapping to %s", err, types.ErrCodeUpstreamRateLimited)
	}
}
