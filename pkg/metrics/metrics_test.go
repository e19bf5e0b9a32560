package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestConnectionGauge(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.ConnectionOpened()
	m.ConnectionOpened()
	m.ConnectionClosed(12.5)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.ActiveConnections))
	assert.Equal(t, 1, testutil.CollectAndCount(m.ConnectionDuration))
}

func TestDeliveredSkipsZeroCounts(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.Delivered("user", 3, 0)
	m.Delivered("event", 0, 2)

	assert.Equal(t, 3.0, testutil.ToFloat64(m.PublishedMessages.WithLabelValues("user", "delivered")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.PublishedMessages.WithLabelValues("event", "failed")))
	assert.Equal(t, 2, testutil.CollectAndCount(m.PublishedMessages))
}

func TestDigestAndDispatchCounters(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.DigestSent("daily", true)
	m.DigestSent("daily", false)
	m.Dispatched("like", "queued")
	m.StaleClosed(4)
	m.StaleClosed(0)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.DigestEmails.WithLabelValues("daily", "sent")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.DigestEmails.WithLabelValues("daily", "failed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.DispatchOutcomes.WithLabelValues("like", "queued")))
	assert.Equal(t, 4.0, testutil.ToFloat64(m.StaleRecordsClosed))
}

func TestNilMetricsIsSafe(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.ConnectionOpened()
		m.ConnectionClosed(1)
		m.Delivered("user", 1, 1)
		m.ConnectionDropped()
		m.Dispatched("like", "queued")
		m.DigestSent("weekly", true)
		m.DigestRun("weekly", 0.1)
		m.StaleClosed(1)
	})
}
