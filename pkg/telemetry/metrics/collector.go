package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"mercator-hq/ganymede/pkg/config"
)

// Collector is the main orchestrator for all Prometheus metrics in Ganymede.
// It manages metric registration and provides a unified interface for
// recording metrics across the policy engine, state store, health monitor,
// and coordinator.
type Collector struct {
	config   *config.MetricsConfig
	registry *prometheus.Registry

	// Validation metrics
	validationMetrics *ValidationMetrics

	// Health metrics
	healthMetrics *HealthMetrics

	// Containment metrics
	containmentMetrics *ContainmentMetrics

	// State store metrics
	storeMetrics *StoreMetrics
}

// NewCollector creates a new metrics collector with the specified
// configuration and Prometheus registry. If registry is nil, a fresh
// registry is created.
func NewCollector(cfg *config.MetricsConfig, registry *prometheus.Registry) *Collector {
	if registry == nil {
		registry = prometheus.NewRegistry()
	}

	if cfg.Namespace == "" {
		cfg.Namespace = "mercator"
	}
	if cfg.Subsystem == "" {
		cfg.Subsystem = "ganymede"
	}

	c := &Collector{
		config:   cfg,
		registry: registry,
	}

	c.validationMetrics = NewValidationMetrics(cfg, registry)
	c.healthMetrics = NewHealthMetrics(cfg, registry)
	c.containmentMetrics = NewContainmentMetrics(cfg, registry)
	c.storeMetrics = NewStoreMetrics(cfg, registry)

	return c
}

// RecordValidation records metrics for a completed validation.
//
// Parameters:
//   - agent: agent name
//   - outcome: "approved", "rejected", "halted", "isolated"
//   - score: compliance score in [0,1]
//   - duration: policy evaluation duration
func (c *Collector) RecordValidation(agent, outcome string, score float64, duration time.Duration) {
	if !c.config.Enabled {
		return
	}

	c.validationMetrics.RecordValidation(agent, outcome, score, duration)
}

// RecordViolation records a single policy violation by severity.
func (c *Collector) RecordViolation(ruleName, severity string) {
	if !c.config.Enabled {
		return
	}

	c.validationMetrics.RecordViolation(ruleName, severity)
}

// UpdateAgentStatus updates the health status gauge for an agent.
// The status code is 0=healthy, 1=degraded, 2=unhealthy, 3=offline.
func (c *Collector) UpdateAgentStatus(agent string, statusCode int) {
	if !c.config.Enabled {
		return
	}

	c.healthMetrics.UpdateAgentStatus(agent, statusCode)
}

// UpdateSystemHealth updates the system-level health gauges.
func (c *Collector) UpdateSystemHealth(cpuPct, memPct, compliancePct float64, halted bool) {
	if !c.config.Enabled {
		return
	}

	c.healthMetrics.UpdateSystem(cpuPct, memPct, compliancePct, halted)
}

// RecordDependencyProbe records a dependency probe result.
func (c *Collector) RecordDependencyProbe(name string, up bool, latency time.Duration) {
	if !c.config.Enabled {
		return
	}

	c.healthMetrics.RecordProbe(name, up, latency)
}

// RecordIsolation records an agent isolation event.
func (c *Collector) RecordIsolation(agent string) {
	if !c.config.Enabled {
		return
	}

	c.containmentMetrics.RecordIsolation(agent)
}

// RecordRestore records an agent restore event.
func (c *Collector) RecordRestore(agent string) {
	if !c.config.Enabled {
		return
	}

	c.containmentMetrics.RecordRestore(agent)
}

// RecordHalt records an emergency halt event by trigger
// ("operator", "critical_violations", "policy_drift").
func (c *Collector) RecordHalt(trigger string) {
	if !c.config.Enabled {
		return
	}

	c.containmentMetrics.RecordHalt(trigger)
}

// RecordStoreOp records a state store operation with its duration.
// Op is one of "put", "put_if_revision", "get", "history", "rollback",
// "append_audit".
func (c *Collector) RecordStoreOp(op string, duration time.Duration, err error) {
	if !c.config.Enabled {
		return
	}

	c.storeMetrics.RecordOp(op, duration, err)
}

// RecordConflict records a compare-and-append conflict.
func (c *Collector) RecordConflict() {
	if !c.config.Enabled {
		return
	}

	c.storeMetrics.RecordConflict()
}

// Registry returns the Prometheus registry used by this collector.
// This can be used to create an HTTP handler for the /metrics endpoint.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}
