package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the Prometheus counters, histograms, and gauges for the
// report serving path.
type Metrics struct {
	ReportsServed      *prometheus.CounterVec // labels: source={fresh-cache,stale-cache,fresh-generation,emergency-fallback}
	ServeFailures      prometheus.Counter     // requests that ended in no_data_available or a store error
	UpstreamErrors     *prometheus.CounterVec // labels: upstream={conditions,narration}
	NarrationFallbacks prometheus.Counter     // reports built with the templated narrator

	RegenerationDuration prometheus.Histogram
	LastReportAgeSeconds prometheus.Gauge

	HTTPRequestDuration *prometheus.HistogramVec // labels: method, route, status
}

// RecordRequest records a completed HTTP request for the API middleware.
func (m *Metrics) RecordRequest(method, route, status string, seconds float64) {
	m.HTTPRequestDuration.WithLabelValues(method, route, status).Observe(seconds)
}

// NewMetrics creates and registers all serving metrics with the default
// Prometheus registry.
func NewMetrics() *Metrics {
	m := newMetrics()
	prometheus.MustRegister(
		m.ReportsServed,
		m.ServeFailures,
		m.UpstreamErrors,
		m.NarrationFallbacks,
		m.RegenerationDuration,
		m.LastReportAgeSeconds,
		m.HTTPRequestDuration,
	)
	return m
}

// NewMetricsForTesting creates Metrics with unregistered collectors to avoid
// "already registered" panics when called from multiple tests.
func NewMetricsForTesting() *Metrics {
	return newMetrics()
}

func newMetrics() *Metrics {
	return &Metrics{
		ReportsServed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "swellcast",
			Name:      "reports_served_total",
			Help:      "Reports served, by cache tier.",
		}, []string{"source"}),
		ServeFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "swellcast",
			Name:      "serve_failures_total",
			Help:      "Requests that could not be served from any cache tier.",
		}),
		UpstreamErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "swellcast",
			Name:      "upstream_errors_total",
			Help:      "Upstream collaborator failures, by upstream.",
		}, []string{"upstream"}),
		NarrationFallbacks: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "swellcast",
			Name:      "narration_fallbacks_total",
			Help:      "Reports generated with the templated narrator after a narration failure.",
		}),
		RegenerationDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "swellcast",
			Name:      "regeneration_duration_seconds",
			Help:      "Duration of a complete fetch-narrate-persist regeneration.",
			Buckets:   []float64{0.1, 0.5, 1, 2.5, 5, 10, 20, 30, 45},
		}),
		LastReportAgeSeconds: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "swellcast",
			Name:      "last_report_age_seconds",
			Help:      "Age of the most recently served report.",
		}),
		HTTPRequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "swellcast",
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency, by method, route, and status.",
			Buckets:   []float64{0.005, 0.025, 0.1, 0.25, 1, 2.5, 10, 45},
		}, []string{"method", "route", "status"}),
	}
}
