// Package metrics holds the Prometheus collectors for the realtime service.
//
// Every recording method is safe on a nil *Metrics so components can run
// without instrumentation in tests.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics groups the service collectors
type Metrics struct {
	// ActiveConnections is the number of registered channels
	ActiveConnections prometheus.Gauge

	// ConnectionDuration measures connection lifetime in seconds
	ConnectionDuration prometheus.Histogram

	// PublishedMessages counts per-connection deliveries.
	// Labels: topic_kind (user|event), status (delivered|failed)
	PublishedMessages *prometheus.CounterVec

	// DroppedConnections counts connections removed after a failed send
	DroppedConnections prometheus.Counter

	// DispatchOutcomes counts notification dispatch results.
	// Labels: type, outcome
	DispatchOutcomes *prometheus.CounterVec

	// DigestEmails counts digest mail attempts.
	// Labels: frequency, status (sent|failed)
	DigestEmails *prometheus.CounterVec

	// DigestRunDuration measures RunDigest latency in seconds.
	// Labels: frequency
	DigestRunDuration *prometheus.HistogramVec

	// StaleRecordsClosed counts presence rows closed by reconciliation
	StaleRecordsClosed prometheus.Counter
}

// New creates the collectors and registers them with reg
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		ActiveConnections: factory.NewGauge(prometheus.GaugeOpts{
			Name: "circle_realtime_active_connections",
			Help: "Current number of registered WebSocket connections",
		}),
		ConnectionDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "circle_realtime_connection_duration_seconds",
			Help:    "Lifetime of WebSocket connections in seconds",
			Buckets: []float64{1, 10, 60, 300, 900, 1800, 3600, 14400},
		}),
		PublishedMessages: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "circle_realtime_published_messages_total",
			Help: "Total per-connection deliveries by topic kind and status",
		}, []string{"topic_kind", "status"}),
		DroppedConnections: factory.NewCounter(prometheus.CounterOpts{
			Name: "circle_realtime_dropped_connections_total",
			Help: "Total connections unregistered after a failed send",
		}),
		DispatchOutcomes: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "circle_realtime_dispatch_outcomes_total",
			Help: "Total notification dispatches by type and outcome",
		}, []string{"type", "outcome"}),
		DigestEmails: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "circle_realtime_digest_emails_total",
			Help: "Total digest emails by frequency and status",
		}, []string{"frequency", "status"}),
		DigestRunDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "circle_realtime_digest_run_duration_seconds",
			Help:    "Duration of digest runs in seconds",
			Buckets: []float64{0.01, 0.1, 0.5, 1, 5, 10, 30, 60, 300},
		}, []string{"frequency"}),
		StaleRecordsClosed: factory.NewCounter(prometheus.CounterOpts{
			Name: "circle_realtime_stale_presence_closed_total",
			Help: "Total presence records force-closed by reconciliation",
		}),
	}
}

// ConnectionOpened records a registration
func (m *Metrics) ConnectionOpened() {
	if m == nil {
		return
	}
	m.ActiveConnections.Inc()
}

// ConnectionClosed records an unregistration and its lifetime
func (m *Metrics) ConnectionClosed(durationSeconds float64) {
	if m == nil {
		return
	}
	m.ActiveConnections.Dec()
	m.ConnectionDuration.Observe(durationSeconds)
}

// Delivered records publish results for one topic
func (m *Metrics) Delivered(topicKind string, delivered, failed int) {
	if m == nil {
		return
	}
	if delivered > 0 {
		m.PublishedMessages.WithLabelValues(topicKind, "delivered").Add(float64(delivered))
	}
	if failed > 0 {
		m.PublishedMessages.WithLabelValues(topicKind, "failed").Add(float64(failed))
	}
}

// ConnectionDropped records a connection removed after a failed send
func (m *Metrics) ConnectionDropped() {
	if m == nil {
		return
	}
	m.DroppedConnections.Inc()
}

// Dispatched records a notification dispatch outcome
func (m *Metrics) Dispatched(notificationType, outcome string) {
	if m == nil {
		return
	}
	m.DispatchOutcomes.WithLabelValues(notificationType, outcome).Inc()
}

// DigestSent records a digest email attempt
func (m *Metrics) DigestSent(frequency string, ok bool) {
	if m == nil {
		return
	}
	status := "sent"
	if !ok {
		status = "failed"
	}
	m.DigestEmails.WithLabelValues(frequency, status).Inc()
}

// DigestRun records the duration of a digest run
func (m *Metrics) DigestRun(frequency string, seconds float64) {
	if m == nil {
		return
	}
	m.DigestRunDuration.WithLabelValues(frequency).Observe(seconds)
}

// StaleClosed records presence rows closed by reconciliation
func (m *Metrics) StaleClosed(count int) {
	if m == nil || count <= 0 {
		return
	}
	m.StaleRecordsClosed.Add(float64(count))
}
