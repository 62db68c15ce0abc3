package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"mercator-hq/ganymede/pkg/config"
)

// ValidationMetrics tracks metrics related to policy validation.
//
// Metrics:
//   - mercator_ganymede_validations_total: Validation count by agent, outcome
//   - mercator_ganymede_validation_duration_seconds: Evaluation duration histogram
//   - mercator_ganymede_compliance_score: Compliance score histogram
//   - mercator_ganymede_violations_total: Violation count by rule, severity
type ValidationMetrics struct {
	// Total validation count
	validationsTotal *prometheus.CounterVec

	// Policy evaluation duration histogram
	validationDuration *prometheus.HistogramVec

	// Compliance score distribution
	complianceScore prometheus.Histogram

	// Violation counts by rule and severity
	violationsTotal *prometheus.CounterVec
}

// NewValidationMetrics creates and registers validation metrics with the
// provided registry.
func NewValidationMetrics(cfg *config.MetricsConfig, registry *prometheus.Registry) *ValidationMetrics {
	vm := &ValidationMetrics{
		validationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "validations_total",
				Help:      "Total number of action validations processed",
			},
			[]string{"agent", "outcome"},
		),

		validationDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "validation_duration_seconds",
				Help:      "Duration of policy evaluations in seconds",
				// Evaluation is expected to complete within tens of ms.
				Buckets: []float64{0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.5},
			},
			[]string{"agent"},
		),

		complianceScore: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "compliance_score",
				Help:      "Distribution of compliance scores across validations",
				Buckets:   prometheus.LinearBuckets(0, 0.1, 11), // 0.0 to 1.0
			},
		),

		violationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "violations_total",
				Help:      "Total number of policy violations by rule and severity",
			},
			[]string{"rule", "severity"},
		),
	}

	registry.MustRegister(
		vm.validationsTotal,
		vm.validationDuration,
		vm.complianceScore,
		vm.violationsTotal,
	)

	return vm
}

// RecordValidation records metrics for a completed validation.
func (vm *ValidationMetrics) RecordValidation(agent, outcome string, score float64, duration time.Duration) {
	vm.validationsTotal.WithLabelValues(agent, outcome).Inc()
	vm.validationDuration.WithLabelValues(agent).Observe(duration.Seconds())
	vm.complianceScore.Observe(score)
}

// RecordViolation records a single policy violation.
func (vm *ValidationMetrics) RecordViolation(ruleName, severity string) {
	vm.violationsTotal.WithLabelValues(ruleName, severity).Inc()
}
