package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the application
type Metrics struct {
	// RequestLatency tracks HTTP request latency by endpoint and method
	RequestLatency *prometheus.HistogramVec
	// HTTPRequestsTotal total HTTP requests
	HTTPRequestsTotal *prometheus.CounterVec
	// HTTPRequestsInFlight current HTTP requests being processed
	HTTPRequestsInFlight prometheus.Gauge
	// SyncRunsTotal counts sync runs by trigger and outcome
	SyncRunsTotal *prometheus.CounterVec
	// SyncDuration tracks wall-clock duration of one date's sync
	SyncDuration prometheus.Histogram
	// RowsWritten counts resource rows written per resource type
	RowsWritten *prometheus.CounterVec
	// SyncerFailures counts contained per-resource failures
	SyncerFailures *prometheus.CounterVec
	// ExchangesTotal counts token exchange attempts by outcome
	ExchangesTotal *prometheus.CounterVec
	// ProviderRequestDuration tracks provider fetch latency per resource
	ProviderRequestDuration *prometheus.HistogramVec
	// ErrorCounter counts errors by type and endpoint
	ErrorCounter *prometheus.CounterVec
	// registry is the custom registry for this metrics instance
	registry *prometheus.Registry
}

// NewMetrics creates and registers all Prometheus metrics
func NewMetrics(namespace string) *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,
		RequestLatency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "request_latency_seconds",
				Help:      "HTTP request latency in seconds",
				Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0},
			},
			[]string{"endpoint", "method", "status"},
		),
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "Total number of HTTP requests",
			},
			[]string{"endpoint", "method", "status"},
		),
		HTTPRequestsInFlight: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "http_requests_in_flight",
				Help:      "Current number of HTTP requests being processed",
			},
		),
		SyncRunsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "sync_runs_total",
				Help:      "Total number of sync runs",
			},
			[]string{"trigger", "outcome"},
		),
		SyncDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "sync_date_duration_seconds",
				Help:      "Wall-clock duration of syncing one calendar date",
				Buckets:   []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120},
			},
		),
		RowsWritten: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "rows_written_total",
				Help:      "Total resource rows written",
			},
			[]string{"resource"},
		),
		SyncerFailures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "syncer_failures_total",
				Help:      "Total contained per-resource syncer failures",
			},
			[]string{"resource"},
		),
		ExchangesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "token_exchanges_total",
				Help:      "Total token exchange attempts",
			},
			[]string{"outcome"},
		),
		ProviderRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "provider_request_duration_seconds",
				Help:      "Provider fetch latency per resource",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"resource"},
		),
		ErrorCounter: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "errors_total",
				Help:      "Total number of errors",
			},
			[]string{"type", "endpoint", "method"},
		),
	}

	// Register metrics with custom registry
	registry.MustRegister(
		m.RequestLatency,
		m.HTTPRequestsTotal,
		m.HTTPRequestsInFlight,
		m.SyncRunsTotal,
		m.SyncDuration,
		m.RowsWritten,
		m.SyncerFailures,
		m.ExchangesTotal,
		m.ProviderRequestDuration,
		m.ErrorCounter,
	)

	return m
}

// Handler returns a Prometheus handler for these metrics
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// RecordRequestLatency records the latency of an HTTP request
func (m *Metrics) RecordRequestLatency(endpoint, method, status string, durationSeconds float64) {
	m.RequestLatency.WithLabelValues(endpoint, method, status).Observe(durationSeconds)
}

// RecordHTTPRequest increments the request counter
func (m *Metrics) RecordHTTPRequest(endpoint, method, status string) {
	m.HTTPRequestsTotal.WithLabelValues(endpoint, method, status).Inc()
}

// IncHTTPRequestsInFlight increments the in-flight gauge
func (m *Metrics) IncHTTPRequestsInFlight() {
	m.HTTPRequestsInFlight.Inc()
}

// DecHTTPRequestsInFlight decrements the in-flight gauge
func (m *Metrics) DecHTTPRequestsInFlight() {
	m.HTTPRequestsInFlight.Dec()
}

// RecordSyncRun records one completed sync run
func (m *Metrics) RecordSyncRun(trigger, outcome string) {
	m.SyncRunsTotal.WithLabelValues(trigger, outcome).Inc()
}

// RecordSyncDuration records the wall-clock duration of one date's sync
func (m *Metrics) RecordSyncDuration(seconds float64) {
	m.SyncDuration.Observe(seconds)
}

// RecordRowsWritten adds to the written-row counter for a resource
func (m *Metrics) RecordRowsWritten(resource string, count int) {
	m.RowsWritten.WithLabelValues(resource).Add(float64(count))
}

// RecordSyncerFailure records a contained per-resource failure
func (m *Metrics) RecordSyncerFailure(resource string) {
	m.SyncerFailures.WithLabelValues(resource).Inc()
}

// RecordExchange records a token exchange attempt
func (m *Metrics) RecordExchange(outcome string) {
	m.ExchangesTotal.WithLabelValues(outcome).Inc()
}

// RecordProviderRequest records a provider fetch latency
func (m *Metrics) RecordProviderRequest(resource string, seconds float64) {
	m.ProviderRequestDuration.WithLabelValues(resource).Observe(seconds)
}

// RecordError records an error
func (m *Metrics) RecordError(errorType, endpoint, method string) {
	m.ErrorCounter.WithLabelValues(errorType, endpoint, method).Inc()
}
