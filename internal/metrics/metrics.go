// Package metrics exposes the Prometheus collectors for the voyager backend.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics bundles the application collectors behind a dedicated registry so
// tests can create isolated instances.
type Metrics struct {
	registry *prometheus.Registry

	httpInFlight prometheus.Gauge
	httpRequests *prometheus.CounterVec
	httpDuration *prometheus.HistogramVec

	transitions    *prometheus.CounterVec
	txRetries      *prometheus.CounterVec
	journeyAppends *prometheus.CounterVec
}

// New creates a Metrics instance with all collectors registered.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		httpInFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "voyager",
			Subsystem: "http",
			Name:      "inflight_requests",
			Help:      "Current number of in-flight HTTP requests.",
		}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "voyager",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests handled.",
		}, []string{"service", "method", "path", "status"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "voyager",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Duration of HTTP requests.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 10), // 5ms to ~5s
		}, []string{"service", "method", "path"}),
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "voyager",
			Subsystem: "missions",
			Name:      "transitions_total",
			Help:      "Total number of mission lifecycle transition attempts.",
		}, []string{"operation", "outcome"}),
		txRetries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "voyager",
			Subsystem: "storage",
			Name:      "transaction_retries_total",
			Help:      "Total number of transaction attempts retried after a conflict.",
		}, []string{"operation"}),
		journeyAppends: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "voyager",
			Subsystem: "journey",
			Name:      "events_total",
			Help:      "Total number of journey log events committed.",
		}, []string{"status"}),
	}

	m.registry.MustRegister(
		m.httpInFlight,
		m.httpRequests,
		m.httpDuration,
		m.transitions,
		m.txRetries,
		m.journeyAppends,
		prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}),
		prometheus.NewGoCollector(),
	)
	return m
}

// Handler returns an HTTP handler exposing the registered collectors.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// IncrementInFlight bumps the in-flight request gauge.
func (m *Metrics) IncrementInFlight() { m.httpInFlight.Inc() }

// DecrementInFlight drops the in-flight request gauge.
func (m *Metrics) DecrementInFlight() { m.httpInFlight.Dec() }

// RecordHTTPRequest records one completed HTTP request.
func (m *Metrics) RecordHTTPRequest(service, method, path, status string, duration time.Duration) {
	m.httpRequests.WithLabelValues(service, method, path, status).Inc()
	m.httpDuration.WithLabelValues(service, method, path).Observe(duration.Seconds())
}

// RecordTransition records one mission lifecycle transition attempt.
// Outcome is "success" or the failure code.
func (m *Metrics) RecordTransition(operation, outcome string) {
	m.transitions.WithLabelValues(operation, outcome).Inc()
}

// RecordTransactionRetry records one conflict-triggered transaction retry.
func (m *Metrics) RecordTransactionRetry(operation string) {
	m.txRetries.WithLabelValues(operation).Inc()
}

// RecordJourneyEvent records one committed journey log append.
func (m *Metrics) RecordJourneyEvent(status string) {
	m.journeyAppends.WithLabelValues(status).Inc()
}
