package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the backend.
type Metrics struct {
	requestsTotal       *prometheus.CounterVec
	requestDuration     *prometheus.HistogramVec
	activeRequests      prometheus.Gauge
	authFailuresTotal   *prometheus.CounterVec
	rateLimitHitsTotal  *prometheus.CounterVec
	sessionEventsTotal  *prometheus.CounterVec
	cacheOpsTotal       *prometheus.CounterVec
	cacheOpDuration     *prometheus.HistogramVec
	auditEventsTotal    *prometheus.CounterVec
	registry            *prometheus.Registry
}

// NewMetrics creates a new Metrics instance with its own registry.
func NewMetrics(namespace string) *Metrics {
	if namespace == "" {
		namespace = "carmarket"
	}

	m := &Metrics{
		registry: prometheus.NewRegistry(),
	}

	m.requestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "requests_total",
			Help:      "Total number of requests by transport, route, and status",
		},
		[]string{"transport", "route", "status"},
	)

	m.requestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "request_duration_seconds",
			Help:      "Request duration in seconds",
			Buckets: []float64{
				.001, .005, .01, .025, .05,
				.1, .25, .5, 1, 2.5, 5, 10,
			},
		},
		[]string{"transport", "route", "status"},
	)

	m.activeRequests = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_requests",
			Help:      "Number of requests currently in flight",
		},
	)

	m.authFailuresTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "auth_failures_total",
			Help:      "Total number of authentication and authorization failures by kind",
		},
		[]string{"kind"},
	)

	m.rateLimitHitsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rate_limit_hits_total",
			Help:      "Total number of rate limit rejections by tier",
		},
		[]string{"tier"},
	)

	m.sessionEventsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "session_events_total",
			Help:      "Total number of session lifecycle events by action and outcome",
		},
		[]string{"action", "outcome"},
	)

	m.cacheOpsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_operations_total",
			Help:      "Total number of cache operations by operation and status",
		},
		[]string{"operation", "status"},
	)

	m.cacheOpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "cache_operation_duration_seconds",
			Help:      "Cache operation duration in seconds",
			Buckets:   []float64{.0001, .0005, .001, .005, .01, .025, .05, .1, .25, .5, 1},
		},
		[]string{"operation"},
	)

	m.auditEventsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "audit",
			Name:      "events_total",
			Help:      "Total number of audit events by type, action, and outcome",
		},
		[]string{"type", "action", "outcome"},
	)

	m.registry.MustRegister(
		m.requestsTotal,
		m.requestDuration,
		m.activeRequests,
		m.authFailuresTotal,
		m.rateLimitHitsTotal,
		m.sessionEventsTotal,
		m.cacheOpsTotal,
		m.cacheOpDuration,
		m.auditEventsTotal,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	return m
}

// RecordRequest records a completed request.
func (m *Metrics) RecordRequest(transport, route string, status int, duration time.Duration) {
	statusStr := strconv.Itoa(status)
	m.requestsTotal.WithLabelValues(transport, route, statusStr).Inc()
	m.requestDuration.WithLabelValues(transport, route, statusStr).Observe(duration.Seconds())
}

// IncActiveRequests increments the in-flight request gauge.
func (m *Metrics) IncActiveRequests() {
	m.activeRequests.Inc()
}

// DecActiveRequests decrements the in-flight request gauge.
func (m *Metrics) DecActiveRequests() {
	m.activeRequests.Dec()
}

// RecordAuthFailure records an authentication or authorization failure.
func (m *Metrics) RecordAuthFailure(kind string) {
	m.authFailuresTotal.WithLabelValues(kind).Inc()
}

// RecordRateLimitHit records a rate limit rejection.
func (m *Metrics) RecordRateLimitHit(tier string) {
	m.rateLimitHitsTotal.WithLabelValues(tier).Inc()
}

// RecordSessionEvent records a session lifecycle event.
func (m *Metrics) RecordSessionEvent(action, outcome string) {
	m.sessionEventsTotal.WithLabelValues(action, outcome).Inc()
}

// RecordCacheOp records a cache operation.
func (m *Metrics) RecordCacheOp(operation, status string, duration time.Duration) {
	m.cacheOpsTotal.WithLabelValues(operation, status).Inc()
	m.cacheOpDuration.WithLabelValues(operation).Observe(duration.Seconds())
}

// RecordAuditEvent records an emitted audit event.
func (m *Metrics) RecordAuditEvent(eventType, action, outcome string) {
	m.auditEventsTotal.WithLabelValues(eventType, action, outcome).Inc()
}

// Registry returns the underlying Prometheus registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler returns an HTTP handler serving the metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
