package services

import (
	"time"

	"github.com/dmitrijs2005/medsync/internal/client/models"
	"github.com/prometheus/client_golang/prometheus"
)

const (
	outcomeRemote    = "remote"
	outcomeQueued    = "queued"
	outcomeFolded    = "folded"
	outcomeCancelled = "cancelled"

	drainSucceeded = "success"
	drainFailed    = "failed"
	drainSkipped   = "skipped"

	dispatchOK         = "ok"
	dispatchFailed     = "failed"
	dispatchDeferred   = "deferred"
	dispatchSuperseded = "superseded"
)

// Metrics are the coordinator's prometheus collectors. A nil *Metrics is
// valid and records nothing.
type Metrics struct {
	mutations     *prometheus.CounterVec
	drains        *prometheus.CounterVec
	dispatches    *prometheus.CounterVec
	pending       prometheus.Gauge
	drainDuration prometheus.Histogram
}

// NewMetrics creates the collectors and registers them with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		mutations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "medsync",
				Name:      "mutations_total",
				Help:      "Local mutations by collection, operation and how they reached the remote.",
			},
			[]string{"collection", "operation", "outcome"},
		),
		drains: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "medsync",
				Name:      "drains_total",
				Help:      "Pending change drains by outcome.",
			},
			[]string{"outcome"},
		),
		dispatches: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "medsync",
				Name:      "dispatches_total",
				Help:      "Pending changes replayed against the remote.",
			},
			[]string{"operation", "outcome"},
		),
		pending: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "medsync",
				Name:      "pending_changes",
				Help:      "Unsynced entries in the pending change log.",
			},
		),
		drainDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: "medsync",
				Name:      "drain_duration_seconds",
				Help:      "Duration of completed drains.",
				Buckets:   prometheus.DefBuckets,
			},
		),
	}
	reg.MustRegister(m.mutations, m.drains, m.dispatches, m.pending, m.drainDuration)
	return m
}

func (m *Metrics) mutation(collection string, op models.Operation, outcome string) {
	if m == nil {
		return
	}
	m.mutations.WithLabelValues(collection, string(op), outcome).Inc()
}

func (m *Metrics) drain(outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.drains.WithLabelValues(outcome).Inc()
	if outcome != drainSkipped {
		m.drainDuration.Observe(d.Seconds())
	}
}

func (m *Metrics) dispatch(op models.Operation, outcome string) {
	if m == nil {
		return
	}
	m.dispatches.WithLabelValues(string(op), outcome).Inc()
}

func (m *Metrics) setPending(n int) {
	if m == nil {
		return
	}
	m.pending.Set(float64(n))
}
