package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"mercator-hq/ganymede/pkg/config"
)

// StoreMetrics tracks state store operation metrics.
//
// Metrics:
//   - mercator_ganymede_store_ops_total: Operation count by op and status
//   - mercator_ganymede_store_op_duration_seconds: Operation latency histogram
//   - mercator_ganymede_store_conflicts_total: Compare-and-append conflicts
type StoreMetrics struct {
	opsTotal   *prometheus.CounterVec
	opDuration *prometheus.HistogramVec
	conflicts  prometheus.Counter
}

// NewStoreMetrics creates and registers state store metrics with the
// provided registry.
func NewStoreMetrics(cfg *config.MetricsConfig, registry *prometheus.Registry) *StoreMetrics {
	sm := &StoreMetrics{
		opsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "store_ops_total",
				Help:      "Total number of state store operations by op and status",
			},
			[]string{"op", "status"},
		),

		opDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "store_op_duration_seconds",
				Help:      "Latency of state store operations in seconds",
				// Store transactions are expected within low hundreds of ms.
				Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5},
			},
			[]string{"op"},
		),

		conflicts: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "store_conflicts_total",
				Help:      "Total number of compare-and-append revision conflicts",
			},
		),
	}

	registry.MustRegister(
		sm.opsTotal,
		sm.opDuration,
		sm.conflicts,
	)

	return sm
}

// RecordOp records a completed state store operation.
func (sm *StoreMetrics) RecordOp(op string, duration time.Duration, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	sm.opsTotal.WithLabelValues(op, status).Inc()
	sm.opDuration.WithLabelValues(op).Observe(duration.Seconds())
}

// RecordConflict records a compare-and-append conflict.
func (sm *StoreMetrics) RecordConflict() {
	sm.conflicts.Inc()
}
