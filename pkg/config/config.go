package config

import "time"

// Config is the root configuration for the Ganymede governance core.
type Config struct {
	// Server contains the HTTP API server configuration.
	Server ServerConfig `yaml:"server"`

	// Policy contains the rule set configuration.
	Policy PolicyConfig `yaml:"policy"`

	// State contains the state store configuration.
	State StateConfig `yaml:"state"`

	// Audit contains the audit log retention configuration.
	Audit AuditConfig `yaml:"audit"`

	// Health contains the health monitor configuration.
	Health HealthConfig `yaml:"health"`

	// Governance contains the coordinator containment configuration.
	Governance GovernanceConfig `yaml:"governance"`

	// Telemetry contains logging and metrics configuration.
	Telemetry TelemetryConfig `yaml:"telemetry"`
}

// ServerConfig contains the HTTP API server configuration.
type ServerConfig struct {
	// ListenAddress is the host:port the API server binds to.
	ListenAddress string `yaml:"listen_address"`

	// ReadTimeout is the maximum duration for reading a request.
	ReadTimeout time.Duration `yaml:"read_timeout"`

	// WriteTimeout is the maximum duration for writing a response.
	WriteTimeout time.Duration `yaml:"write_timeout"`

	// IdleTimeout is the maximum duration for idle keep-alive connections.
	IdleTimeout time.Duration `yaml:"idle_timeout"`

	// ShutdownTimeout is the grace period for in-flight requests on shutdown.
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`

	// MaxHeaderBytes limits the size of request headers.
	MaxHeaderBytes int `yaml:"max_header_bytes"`
}

// PolicyConfig contains the rule set configuration.
type PolicyConfig struct {
	// RulesPath is the path to the read-only YAML rule artifact.
	// The artifact is loaded once at process start and content-hashed;
	// there is no runtime reload path.
	RulesPath string `yaml:"rules_path"`
}

// StateDriver selects the SQLite driver for the state store.
type StateDriver string

const (
	// DriverCgo uses the mattn/go-sqlite3 CGO driver.
	DriverCgo StateDriver = "cgo"

	// DriverPure uses the modernc.org/sqlite pure-Go driver.
	DriverPure StateDriver = "pure"
)

// StateConfig contains the state store configuration.
type StateConfig struct {
	// Backend selects the storage backend ("sqlite" or "memory").
	Backend string `yaml:"backend"`

	// Path is the SQLite database file path.
	Path string `yaml:"path"`

	// Driver selects the SQLite driver ("cgo" or "pure").
	Driver StateDriver `yaml:"driver"`

	// MaxOpenConns is the maximum number of open database connections.
	MaxOpenConns int `yaml:"max_open_conns"`

	// MaxIdleConns is the maximum number of idle database connections.
	MaxIdleConns int `yaml:"max_idle_conns"`

	// WALMode enables write-ahead logging for better concurrency.
	WALMode bool `yaml:"wal_mode"`

	// BusyTimeout is how long to wait for database locks before failing.
	BusyTimeout time.Duration `yaml:"busy_timeout"`
}

// AuditConfig contains the audit log retention configuration.
type AuditConfig struct {
	// ArchiveEnabled enables scheduled archival of old audit entries.
	ArchiveEnabled bool `yaml:"archive_enabled"`

	// RetentionDays is how long audit entries stay in the live store
	// before being archived. 0 keeps entries forever.
	RetentionDays int `yaml:"retention_days"`

	// ArchivePath is the directory archived audit entries are exported to.
	ArchivePath string `yaml:"archive_path"`

	// ArchiveSchedule is a cron expression for the archival job.
	ArchiveSchedule string `yaml:"archive_schedule"`
}

// HealthConfig contains the health monitor configuration.
type HealthConfig struct {
	// AgentInterval is the tick interval of the per-agent health loop.
	AgentInterval time.Duration `yaml:"agent_interval"`

	// DependencyInterval is the tick interval of the dependency probe loop.
	DependencyInterval time.Duration `yaml:"dependency_interval"`

	// DriftInterval is the tick interval of the policy-drift check loop.
	DriftInterval time.Duration `yaml:"drift_interval"`

	// ResourceInterval is the tick interval of the resource sampling loop.
	ResourceInterval time.Duration `yaml:"resource_interval"`

	// ProbeTimeout is the hard timeout for a single dependency probe.
	// A timed-out probe counts as failed, never as success-by-default.
	ProbeTimeout time.Duration `yaml:"probe_timeout"`

	// HeartbeatTimeout is how long an agent may go without a heartbeat
	// before it is marked offline.
	HeartbeatTimeout time.Duration `yaml:"heartbeat_timeout"`

	// DegradedP95Ms marks an agent degraded when its p95 response
	// latency exceeds this many milliseconds.
	DegradedP95Ms float64 `yaml:"degraded_p95_ms"`

	// UnhealthyErrorRate marks an agent unhealthy when its error rate
	// exceeds this fraction (0.20 = 20%).
	UnhealthyErrorRate float64 `yaml:"unhealthy_error_rate"`

	// ResourceAlertPct raises a resource alert when CPU or memory usage
	// exceeds this percentage for ResourceAlertSamples consecutive samples.
	ResourceAlertPct float64 `yaml:"resource_alert_pct"`

	// ResourceAlertSamples is the consecutive sample count for an alert.
	ResourceAlertSamples int `yaml:"resource_alert_samples"`

	// RestoreCooldown is how long an isolated agent must stay healthy
	// before Restore is permitted.
	RestoreCooldown time.Duration `yaml:"restore_cooldown"`

	// PersistSnapshots persists the system health snapshot as a state
	// revision each agent-loop tick for trend analysis.
	PersistSnapshots bool `yaml:"persist_snapshots"`

	// WatchRules enables an fsnotify watcher on the rule artifact that
	// triggers an immediate drift check on any file event.
	WatchRules bool `yaml:"watch_rules"`
}

// GovernanceConfig contains the coordinator containment configuration.
type GovernanceConfig struct {
	// CriticalWindow is the rolling window for counting critical violations.
	CriticalWindow time.Duration `yaml:"critical_window"`

	// CriticalThreshold is the number of critical violations within the
	// rolling window that auto-triggers an emergency halt.
	CriticalThreshold int `yaml:"critical_threshold"`
}

// TelemetryConfig contains logging and metrics configuration.
type TelemetryConfig struct {
	Logging LoggingConfig `yaml:"logging"`
	Metrics MetricsConfig `yaml:"metrics"`
}

// LoggingConfig contains structured logging configuration.
type LoggingConfig struct {
	// Level is the minimum log level ("debug", "info", "warn", "error").
	Level string `yaml:"level"`

	// Format is the output format ("json", "text").
	Format string `yaml:"format"`

	// AddSource includes file:line in log records.
	AddSource bool `yaml:"add_source"`
}

// MetricsConfig contains Prometheus metrics configuration.
type MetricsConfig struct {
	// Enabled toggles metric collection and the /metrics endpoint.
	Enabled bool `yaml:"enabled"`

	// Namespace is the Prometheus metric namespace.
	Namespace string `yaml:"namespace"`

	// Subsystem is the Prometheus metric subsystem.
	Subsystem string `yaml:"subsystem"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			ListenAddress:   "127.0.0.1:8750",
			ReadTimeout:     10 * time.Second,
			WriteTimeout:    10 * time.Second,
			IdleTimeout:     60 * time.Second,
			ShutdownTimeout: 15 * time.Second,
			MaxHeaderBytes:  1 << 20,
		},
		Policy: PolicyConfig{
			RulesPath: "rules.yaml",
		},
		State: StateConfig{
			Backend:      "sqlite",
			Path:         "data/governance.db",
			Driver:       DriverCgo,
			MaxOpenConns: 10,
			MaxIdleConns: 5,
			WALMode:      true,
			BusyTimeout:  5 * time.Second,
		},
		Audit: AuditConfig{
			ArchiveEnabled:  false,
			RetentionDays:   90,
			ArchivePath:     "data/archives/",
			ArchiveSchedule: "0 3 * * *",
		},
		Health: HealthConfig{
			AgentInterval:        5 * time.Second,
			DependencyInterval:   2 * time.Second,
			DriftInterval:        10 * time.Second,
			ResourceInterval:     5 * time.Second,
			ProbeTimeout:         1 * time.Second,
			HeartbeatTimeout:     30 * time.Second,
			DegradedP95Ms:        5000,
			UnhealthyErrorRate:   0.20,
			ResourceAlertPct:     90,
			ResourceAlertSamples: 3,
			RestoreCooldown:      30 * time.Second,
			PersistSnapshots:     true,
			WatchRules:           true,
		},
		Governance: GovernanceConfig{
			CriticalWindow:    60 * time.Second,
			CriticalThreshold: 3,
		},
		Telemetry: TelemetryConfig{
			Logging: LoggingConfig{
				Level:  "info",
				Format: "json",
			},
			Metrics: MetricsConfig{
				Enabled:   true,
				Namespace: "mercator",
				Subsystem: "ganymede",
			},
		},
	}
}
