package config

import "fmt"

// ValidationError describes an invalid configuration field.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid config: %s: %s", e.Field, e.Message)
}

// Validate checks the configuration for invalid or inconsistent values.
// It returns the first error found.
func (c *Config) Validate() error {
	if c.Server.ListenAddress == "" {
		return &ValidationError{Field: "server.listen_address", Message: "must not be empty"}
	}
	if c.Server.ShutdownTimeout <= 0 {
		return &ValidationError{Field: "server.shutdown_timeout", Message: "must be positive"}
	}

	if c.Policy.RulesPath == "" {
		return &ValidationError{Field: "policy.rules_path", Message: "must not be empty"}
	}

	switch c.State.Backend {
	case "sqlite":
		if c.State.Path == "" {
			return &ValidationError{Field: "state.path", Message: "must not be empty for sqlite backend"}
		}
		switch c.State.Driver {
		case DriverCgo, DriverPure:
		default:
			return &ValidationError{
				Field:   "state.driver",
				Message: fmt.Sprintf("unknown driver %q (expected cgo or pure)", c.State.Driver),
			}
		}
	case "memory":
	default:
		return &ValidationError{
			Field:   "state.backend",
			Message: fmt.Sprintf("unknown backend %q (expected sqlite or memory)", c.State.Backend),
		}
	}

	if c.Audit.ArchiveEnabled {
		if c.Audit.ArchiveSchedule == "" {
			return &ValidationError{Field: "audit.archive_schedule", Message: "must not be empty when archiving is enabled"}
		}
		if c.Audit.ArchivePath == "" {
			return &ValidationError{Field: "audit.archive_path", Message: "must not be empty when archiving is enabled"}
		}
		if c.Audit.RetentionDays < 0 {
			return &ValidationError{Field: "audit.retention_days", Message: "must not be negative"}
		}
	}

	intervals := []struct {
		field string
		value interface{ Seconds() float64 }
	}{
		{"health.agent_interval", c.Health.AgentInterval},
		{"health.dependency_interval", c.Health.DependencyInterval},
		{"health.drift_interval", c.Health.DriftInterval},
		{"health.resource_interval", c.Health.ResourceInterval},
		{"health.probe_timeout", c.Health.ProbeTimeout},
		{"health.heartbeat_timeout", c.Health.HeartbeatTimeout},
	}
	for _, iv := range intervals {
		if iv.value.Seconds() <= 0 {
			return &ValidationError{Field: iv.field, Message: "must be positive"}
		}
	}

	if c.Health.UnhealthyErrorRate <= 0 || c.Health.UnhealthyErrorRate > 1 {
		return &ValidationError{Field: "health.unhealthy_error_rate", Message: "must be in (0, 1]"}
	}
	if c.Health.ResourceAlertPct <= 0 || c.Health.ResourceAlertPct > 100 {
		return &ValidationError{Field: "health.resource_alert_pct", Message: "must be in (0, 100]"}
	}
	if c.Health.ResourceAlertSamples < 1 {
		return &ValidationError{Field: "health.resource_alert_samples", Message: "must be at least 1"}
	}

	if c.Governance.CriticalThreshold < 1 {
		return &ValidationError{Field: "governance.critical_threshold", Message: "must be at least 1"}
	}
	if c.Governance.CriticalWindow.Seconds() <= 0 {
		return &ValidationError{Field: "governance.critical_window", Message: "must be positive"}
	}

	switch c.Telemetry.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return &ValidationError{
			Field:   "telemetry.logging.level",
			Message: fmt.Sprintf("unknown level %q", c.Telemetry.Logging.Level),
		}
	}
	switch c.Telemetry.Logging.Format {
	case "json", "text":
	default:
		return &ValidationError{
			Field:   "telemetry.logging.format",
			Message: fmt.Sprintf("unknown format %q", c.Telemetry.Logging.Format),
		}
	}

	return nil
}
