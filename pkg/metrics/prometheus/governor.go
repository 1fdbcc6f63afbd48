// Package prometheus contains the Prometheus-backed implementations of the
// metric interfaces consumed by instrumented components.
package prometheus

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/droserasprout/slskd/pkg/metrics"
	"github.com/droserasprout/slskd/pkg/upload"
)

// governorMetrics is the Prometheus implementation of upload.Metrics.
type governorMetrics struct {
	enqueued  prometheus.Counter
	released  *prometheus.CounterVec
	completed *prometheus.CounterVec
	waitTime  *prometheus.HistogramVec
	active    *prometheus.HistogramVec

	queueDepth prometheus.Gauge
	usedSlots  *prometheus.GaugeVec
	slotCap    *prometheus.GaugeVec
}

// NewGovernorMetrics creates a Prometheus-backed upload.Metrics instance.
//
// Returns nil if metrics are not enabled (InitRegistry not called).
func NewGovernorMetrics() upload.Metrics {
	if !metrics.IsEnabled() {
		return nil
	}

	reg := metrics.GetRegistry()

	return &governorMetrics{
		enqueued: promauto.With(reg).NewCounter(
			prometheus.CounterOpts{
				Name: "slskd_uploads_enqueued_total",
				Help: "Total number of uploads registered with the governor",
			},
		),
		released: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "slskd_uploads_released_total",
				Help: "Total number of uploads granted a slot, by group",
			},
			[]string{"group"},
		),
		completed: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "slskd_uploads_completed_total",
				Help: "Total number of finished uploads, by the group credited at completion",
			},
			[]string{"group"}, // empty group: the pinned group was removed mid-flight
		),
		waitTime: promauto.With(reg).NewHistogramVec(
			prometheus.HistogramOpts{
				Name: "slskd_upload_wait_seconds",
				Help: "Time uploads spend between ready and released",
				Buckets: []float64{
					0.001, // immediate grant
					0.1,
					1,
					10,
					60,
					300,
					1800,
					3600, // saturated groups
				},
			},
			[]string{"group"},
		),
		active: promauto.With(reg).NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "slskd_upload_active_seconds",
				Help:    "Time uploads spend transferring, by group",
				Buckets: prometheus.ExponentialBuckets(0.1, 4, 10),
			},
			[]string{"group"},
		),
		queueDepth: promauto.With(reg).NewGauge(
			prometheus.GaugeOpts{
				Name: "slskd_upload_queue_depth",
				Help: "Number of uploads currently tracked, pending and active",
			},
		),
		usedSlots: promauto.With(reg).NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "slskd_upload_slots_used",
				Help: "Active uploads pinned to each group",
			},
			[]string{"group"},
		),
		slotCap: promauto.With(reg).NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "slskd_upload_slots_capacity",
				Help: "Configured slot capacity of each group",
			},
			[]string{"group"},
		),
	}
}

func (m *governorMetrics) RecordEnqueued() {
	m.enqueued.Inc()
}

func (m *governorMetrics) RecordReleased(group string, waited time.Duration) {
	m.released.WithLabelValues(group).Inc()
	m.waitTime.WithLabelValues(group).Observe(waited.Seconds())
}

func (m *governorMetrics) RecordCompleted(group string, active time.Duration) {
	m.completed.WithLabelValues(group).Inc()
	m.active.WithLabelValues(group).Observe(active.Seconds())
}

func (m *governorMetrics) SetQueueDepth(count int) {
	m.queueDepth.Set(float64(count))
}

func (m *governorMetrics) SetUsedSlots(group string, used, capacity int) {
	m.usedSlots.WithLabelValues(group).Set(float64(used))
	m.slotCap.WithLabelValues(group).Set(float64(capacity))
}

var _ upload.Metrics = (*governorMetrics)(nil)
