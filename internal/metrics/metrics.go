// Package metrics exposes the service's prometheus instruments.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "apipulse"

// Metrics groups the collectors of one server instance. A nil *Metrics is valid
// and records nothing.
type Metrics struct {
	LogsRecorded     *prometheus.CounterVec
	LogWriteFailures prometheus.Counter
	StatusUpdates    *prometheus.CounterVec
	DispatchDropped  prometheus.Counter
	RequestDuration  *prometheus.HistogramVec
	SecurityEvents   *prometheus.CounterVec
}

// New creates the collectors and registers them on reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		LogsRecorded: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "logs_recorded_total",
			Help:      "API log entries persisted, by classification.",
		}, []string{"status"}),
		LogWriteFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "log_write_failures_total",
			Help:      "API log entries that could not be persisted.",
		}),
		StatusUpdates: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "status_updates_total",
			Help:      "Endpoint status updates by result (ok, failed, abandoned).",
		}, []string{"result"}),
		DispatchDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "dispatch_dropped_total",
			Help:      "Observations dropped because the worker queue was full.",
		}),
		RequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "Latency of handled HTTP requests.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route", "code"}),
		SecurityEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "security_events_total",
			Help:      "Security events reported by guards, by type.",
		}, []string{"event"}),
	}
	reg.MustRegister(
		m.LogsRecorded,
		m.LogWriteFailures,
		m.StatusUpdates,
		m.DispatchDropped,
		m.RequestDuration,
		m.SecurityEvents,
	)
	return m
}

func (m *Metrics) LogRecorded(status string) {
	if m == nil {
		return
	}
	m.LogsRecorded.WithLabelValues(status).Inc()
}

func (m *Metrics) LogWriteFailed() {
	if m == nil {
		return
	}
	m.LogWriteFailures.Inc()
}

// StatusUpdate counts one update attempt by result.
func (m *Metrics) StatusUpdate(result string) {
	if m == nil {
		return
	}
	m.StatusUpdates.WithLabelValues(result).Inc()
}

func (m *Metrics) Dropped() {
	if m == nil {
		return
	}
	m.DispatchDropped.Inc()
}

func (m *Metrics) ObserveRequest(method, route, code string, seconds float64) {
	if m == nil {
		return
	}
	m.RequestDuration.WithLabelValues(method, route, code).Observe(seconds)
}

func (m *Metrics) SecurityEvent(event string) {
	if m == nil {
		return
	}
	m.SecurityEvents.WithLabelValues(event).Inc()
}
