package health

import "time"

// Status is the health status of an agent or of the system.
type Status string

const (
	StatusHealthy   Status = "healthy"
	StatusDegraded  Status = "degraded"
	StatusUnhealthy Status = "unhealthy"
	StatusOffline   Status = "offline"
)

// Code returns the numeric status code used by the agent_status gauge
// (0=healthy, 1=degraded, 2=unhealthy, 3=offline).
func (s Status) Code() int {
	switch s {
	case StatusHealthy:
		return 0
	case StatusDegraded:
		return 1
	case StatusUnhealthy:
		return 2
	case StatusOffline:
		return 3
	}
	return 2
}

// worseThan reports whether s is a worse status than other.
func (s Status) worseThan(other Status) bool {
	return s.Code() > other.Code()
}

// AgentHealth is the evaluated health of a single agent.
type AgentHealth struct {
	// Agent is the agent name.
	Agent string `json:"agent"`

	// Status is the derived health status.
	Status Status `json:"status"`

	// LastHeartbeat is the time of the agent's last heartbeat, zero if
	// the agent has never sent one.
	LastHeartbeat time.Time `json:"last_heartbeat,omitempty"`

	// AvgResponseMs is the mean request latency over the rolling window,
	// in milliseconds.
	AvgResponseMs float64 `json:"avg_response_ms"`

	// P95LatencyMs is the 95th percentile request latency over the
	// rolling window, in milliseconds.
	P95LatencyMs float64 `json:"p95_response_ms"`

	// ErrorRate is the fraction of failed requests over the window.
	ErrorRate float64 `json:"error_rate"`

	// SuccessRate is the fraction of successful requests over the
	// window, 0 when the agent did no work.
	SuccessRate float64 `json:"success_rate"`

	// Requests is the number of requests in the window.
	Requests int `json:"requests"`

	// Violations is the number of policy violations in the window.
	Violations int `json:"violations"`

	// CheckedAt is when this evaluation was made.
	CheckedAt time.Time `json:"checked_at"`
}

// DependencyHealth is the result of the latest probe of one dependency.
type DependencyHealth struct {
	// Name is the dependency name.
	Name string `json:"name"`

	// Up reports whether the latest probe succeeded.
	Up bool `json:"up"`

	// LatencyMs is the latest probe latency in milliseconds.
	LatencyMs float64 `json:"latency_ms"`

	// Error is the latest probe failure, empty when up.
	Error string `json:"error,omitempty"`

	// CheckedAt is when the dependency was last probed.
	CheckedAt time.Time `json:"checked_at"`
}

// ResourceSample is one CPU and memory usage sample.
type ResourceSample struct {
	// CPUPct is the process CPU usage percentage since the last sample.
	CPUPct float64 `json:"cpu_pct"`

	// MemPct is the process resident memory as a percentage of system
	// memory.
	MemPct float64 `json:"mem_pct"`

	// Timestamp is when the sample was taken.
	Timestamp time.Time `json:"timestamp"`
}

// SystemHealth is the published health snapshot. The monitor replaces the
// whole snapshot atomically; readers never see a partially updated one.
type SystemHealth struct {
	// Status is the aggregated system status.
	Status Status `json:"status"`

	// Agents holds the latest evaluation of every known agent.
	Agents map[string]AgentHealth `json:"agents"`

	// Dependencies holds the latest probe results.
	Dependencies map[string]DependencyHealth `json:"dependencies"`

	// Resources is the latest resource sample.
	Resources ResourceSample `json:"resources"`

	// QueueDepth is the number of requests in flight against the
	// governance API when the snapshot was built.
	QueueDepth int `json:"queue_depth"`

	// PolicyCompliancePct is the rolling average compliance score of
	// recent validations, as a percentage.
	PolicyCompliancePct float64 `json:"policy_compliance_pct"`

	// EmergencyHalted reports whether the system is emergency halted.
	// A halted system is never ready.
	EmergencyHalted bool `json:"emergency_halted"`

	// RuleChecksum is the content hash of the loaded rule set.
	RuleChecksum string `json:"rule_checksum,omitempty"`

	// Drifted reports whether the rule artifact on disk no longer
	// matches the loaded rule set.
	Drifted bool `json:"drifted"`

	// Timestamp is when the snapshot was built.
	Timestamp time.Time `json:"timestamp"`
}
