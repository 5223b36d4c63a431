// Package prometheus provides the Prometheus-backed implementations of the
// metrics interfaces.
package prometheus

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/marmos91/copad/pkg/metrics"
)

// collabMetrics is the Prometheus implementation of metrics.CollabMetrics.
// All methods are safe on a nil receiver.
type collabMetrics struct {
	connections        prometheus.Gauge
	edits              prometheus.Counter
	editsRejected      prometheus.Counter
	openDocuments      prometheus.Gauge
	documentsEvicted   prometheus.Counter
	storageErrors      *prometheus.CounterVec
	subscribersDropped prometheus.Counter
}

// NewCollabMetrics creates a Prometheus-backed CollabMetrics instance.
//
// When metrics are disabled (metrics.InitRegistry not called) the returned
// value is a no-op whose methods cost a nil check.
func NewCollabMetrics() metrics.CollabMetrics {
	var m *collabMetrics
	if !metrics.IsEnabled() {
		return m
	}

	reg := metrics.GetRegistry()

	return &collabMetrics{
		connections: promauto.With(reg).NewGauge(prometheus.GaugeOpts{
			Name: "copad_connections_active",
			Help: "Number of live websocket connections",
		}),
		edits: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "copad_edits_total",
			Help: "Total number of edit operations applied to the revision log",
		}),
		editsRejected: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "copad_edits_rejected_total",
			Help: "Total number of edits rejected by validation or transform",
		}),
		openDocuments: promauto.With(reg).NewGauge(prometheus.GaugeOpts{
			Name: "copad_documents_open",
			Help: "Number of documents resident in memory",
		}),
		documentsEvicted: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "copad_documents_evicted_total",
			Help: "Total number of idle documents evicted by the cleaner",
		}),
		storageErrors: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "copad_storage_errors_total",
				Help: "Total number of failed durable-store operations",
			},
			[]string{"op"}, // "load", "save"
		),
		subscribersDropped: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "copad_presence_subscribers_dropped_total",
			Help: "Total number of presence subscribers dropped for lagging",
		}),
	}
}

func (m *collabMetrics) RecordConnectionOpened() {
	if m == nil {
		return
	}
	m.connections.Inc()
}

func (m *collabMetrics) RecordConnectionClosed() {
	if m == nil {
		return
	}
	m.connections.Dec()
}

func (m *collabMetrics) RecordEdit() {
	if m == nil {
		return
	}
	m.edits.Inc()
}

func (m *collabMetrics) RecordEditRejected() {
	if m == nil {
		return
	}
	m.editsRejected.Inc()
}

func (m *collabMetrics) SetOpenDocuments(n int) {
	if m == nil {
		return
	}
	m.openDocuments.Set(float64(n))
}

func (m *collabMetrics) RecordDocumentEvicted() {
	if m == nil {
		return
	}
	m.documentsEvicted.Inc()
}

func (m *collabMetrics) RecordStorageError(op string) {
	if m == nil {
		return
	}
	m.storageErrors.WithLabelValues(op).Inc()
}

func (m *collabMetrics) RecordSubscriberDropped() {
	if m == nil {
		return
	}
	m.subscribersDropped.Inc()
}
