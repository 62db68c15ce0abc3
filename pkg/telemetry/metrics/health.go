package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"mercator-hq/ganymede/pkg/config"
)

// HealthMetrics tracks metrics published by the health monitor.
//
// Metrics:
//   - mercator_ganymede_agent_status: Per-agent status gauge (0..3)
//   - mercator_ganymede_system_cpu_pct / system_mem_pct: Resource gauges
//   - mercator_ganymede_policy_compliance_pct: Rolling compliance gauge
//   - mercator_ganymede_emergency_halted: Halt flag gauge (0/1)
//   - mercator_ganymede_dependency_up: Per-dependency reachability gauge
//   - mercator_ganymede_dependency_probe_seconds: Probe latency histogram
type HealthMetrics struct {
	agentStatus   *prometheus.GaugeVec
	cpuPct        prometheus.Gauge
	memPct        prometheus.Gauge
	compliancePct prometheus.Gauge
	halted        prometheus.Gauge
	dependencyUp  *prometheus.GaugeVec
	probeDuration *prometheus.HistogramVec
}

// NewHealthMetrics creates and registers health metrics with the provided
// registry.
func NewHealthMetrics(cfg *config.MetricsConfig, registry *prometheus.Registry) *HealthMetrics {
	hm := &HealthMetrics{
		agentStatus: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "agent_status",
				Help:      "Agent health status (0=healthy, 1=degraded, 2=unhealthy, 3=offline)",
			},
			[]string{"agent"},
		),

		cpuPct: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "system_cpu_pct",
				Help:      "Process CPU usage percentage",
			},
		),

		memPct: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "system_mem_pct",
				Help:      "Process memory usage percentage",
			},
		),

		compliancePct: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "policy_compliance_pct",
				Help:      "Rolling policy compliance percentage across recent validations",
			},
		),

		halted: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "emergency_halted",
				Help:      "Whether the system is emergency halted (0/1)",
			},
		),

		dependencyUp: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "dependency_up",
				Help:      "Whether an external dependency is reachable (0/1)",
			},
			[]string{"dependency"},
		),

		probeDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "dependency_probe_seconds",
				Help:      "Latency of dependency probes in seconds",
				Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1.0},
			},
			[]string{"dependency"},
		),
	}

	registry.MustRegister(
		hm.agentStatus,
		hm.cpuPct,
		hm.memPct,
		hm.compliancePct,
		hm.halted,
		hm.dependencyUp,
		hm.probeDuration,
	)

	return hm
}

// UpdateAgentStatus updates the status gauge for an agent.
func (hm *HealthMetrics) UpdateAgentStatus(agent string, statusCode int) {
	hm.agentStatus.WithLabelValues(agent).Set(float64(statusCode))
}

// UpdateSystem updates the system-level gauges.
func (hm *HealthMetrics) UpdateSystem(cpuPct, memPct, compliancePct float64, halted bool) {
	hm.cpuPct.Set(cpuPct)
	hm.memPct.Set(memPct)
	hm.compliancePct.Set(compliancePct)
	if halted {
		hm.halted.Set(1)
	} else {
		hm.halted.Set(0)
	}
}

// RecordProbe records a dependency probe result.
func (hm *HealthMetrics) RecordProbe(name string, up bool, latency time.Duration) {
	if up {
		hm.dependencyUp.WithLabelValues(name).Set(1)
	} else {
		hm.dependencyUp.WithLabelValues(name).Set(0)
	}
	hm.probeDuration.WithLabelValues(name).Observe(latency.Seconds())
}
