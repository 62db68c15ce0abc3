package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"mercator-hq/ganymede/pkg/config"
)

// ContainmentMetrics tracks isolation and halt events issued by the
// coordinator.
//
// Metrics:
//   - mercator_ganymede_isolations_total: Isolation count by agent
//   - mercator_ganymede_restores_total: Restore count by agent
//   - mercator_ganymede_halts_total: Emergency halt count by trigger
type ContainmentMetrics struct {
	isolationsTotal *prometheus.CounterVec
	restoresTotal   *prometheus.CounterVec
	haltsTotal      *prometheus.CounterVec
}

// NewContainmentMetrics creates and registers containment metrics with the
// provided registry.
func NewContainmentMetrics(cfg *config.MetricsConfig, registry *prometheus.Registry) *ContainmentMetrics {
	cm := &ContainmentMetrics{
		isolationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "isolations_total",
				Help:      "Total number of agent isolation events",
			},
			[]string{"agent"},
		),

		restoresTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "restores_total",
				Help:      "Total number of agent restore events",
			},
			[]string{"agent"},
		),

		haltsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "halts_total",
				Help:      "Total number of emergency halts by trigger",
			},
			[]string{"trigger"},
		),
	}

	registry.MustRegister(
		cm.isolationsTotal,
		cm.restoresTotal,
		cm.haltsTotal,
	)

	return cm
}

// RecordIsolation records an agent isolation event.
func (cm *ContainmentMetrics) RecordIsolation(agent string) {
	cm.isolationsTotal.WithLabelValues(agent).Inc()
}

// RecordRestore records an agent restore event.
func (cm *ContainmentMetrics) RecordRestore(agent string) {
	cm.restoresTotal.WithLabelValues(agent).Inc()
}

// RecordHalt records an emergency halt event.
func (cm *ContainmentMetrics) RecordHalt(trigger string) {
	cm.haltsTotal.WithLabelValues(trigger).Inc()
}
