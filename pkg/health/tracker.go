package health

import (
	"sort"
	"sync"
	"time"
)

// TrackerConfig contains the thresholds used to derive agent status.
type TrackerConfig struct {
	// Window is the rolling window requests and violations are kept for.
	// Default: 60 seconds
	Window time.Duration

	// HeartbeatTimeout marks an agent offline when no heartbeat arrives
	// within it. Default: 30 seconds
	HeartbeatTimeout time.Duration

	// DegradedP95Ms marks an agent degraded above this p95 latency.
	// Default: 5000
	DegradedP95Ms float64

	// UnhealthyErrorRate marks an agent unhealthy above this error
	// fraction. Default: 0.20
	UnhealthyErrorRate float64
}

// DefaultTrackerConfig returns the default tracker configuration.
func DefaultTrackerConfig() *TrackerConfig {
	return &TrackerConfig{
		Window:             60 * time.Second,
		HeartbeatTimeout:   30 * time.Second,
		DegradedP95Ms:      5000,
		UnhealthyErrorRate: 0.20,
	}
}

type requestSample struct {
	at      time.Time
	latency time.Duration
	failed  bool
}

type agentState struct {
	lastHeartbeat time.Time
	requests      []requestSample
	violations    []time.Time
}

// Tracker accumulates per-agent activity (heartbeats, request outcomes,
// violations) and derives each agent's health status from a rolling window.
type Tracker struct {
	mu     sync.Mutex
	config *TrackerConfig
	agents map[string]*agentState
}

// NewTracker creates a new agent activity tracker.
func NewTracker(config *TrackerConfig) *Tracker {
	if config == nil {
		config = DefaultTrackerConfig()
	}
	return &Tracker{
		config: config,
		agents: make(map[string]*agentState),
	}
}

// Heartbeat records a heartbeat from an agent, registering it if unseen.
func (t *Tracker) Heartbeat(agent string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.state(agent).lastHeartbeat = time.Now()
}

// RecordRequest records a completed request and counts as an implicit
// heartbeat: an agent doing work is alive.
func (t *Tracker) RecordRequest(agent string, latency time.Duration, failed bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := time.Now()
	s := t.state(agent)
	s.lastHeartbeat = now
	s.requests = append(s.requests, requestSample{at: now, latency: latency, failed: failed})
}

// RecordViolation records a policy violation attributed to an agent.
func (t *Tracker) RecordViolation(agent string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.state(agent).violations = append(t.state(agent).violations, time.Now())
}

// Agents returns the names of all known agents, sorted.
func (t *Tracker) Agents() []string {
	t.mu.Lock()
	defer t.mu.Unlock()

	names := make([]string, 0, len(t.agents))
	for name := range t.agents {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Evaluate derives an agent's health from its activity window at the given
// instant. Unknown agents evaluate as offline.
func (t *Tracker) Evaluate(agent string, now time.Time) AgentHealth {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.evaluateLocked(agent, now)
}

// EvaluateAll evaluates every known agent.
func (t *Tracker) EvaluateAll(now time.Time) map[string]AgentHealth {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make(map[string]AgentHealth, len(t.agents))
	for name := range t.agents {
		out[name] = t.evaluateLocked(name, now)
	}
	return out
}

func (t *Tracker) evaluateLocked(agent string, now time.Time) AgentHealth {
	s, ok := t.agents[agent]
	if !ok {
		return AgentHealth{Agent: agent, Status: StatusOffline, CheckedAt: now}
	}

	t.pruneLocked(s, now)

	h := AgentHealth{
		Agent:         agent,
		LastHeartbeat: s.lastHeartbeat,
		Requests:      len(s.requests),
		Violations:    len(s.violations),
		CheckedAt:     now,
	}

	successes := 0
	failures := 0
	var total time.Duration
	latencies := make([]time.Duration, 0, len(s.requests))
	for _, r := range s.requests {
		latencies = append(latencies, r.latency)
		total += r.latency
		if r.failed {
			failures++
		} else {
			successes++
		}
	}
	if len(s.requests) > 0 {
		h.ErrorRate = float64(failures) / float64(len(s.requests))
		h.SuccessRate = float64(successes) / float64(len(s.requests))
		h.AvgResponseMs = float64(total) / float64(len(s.requests)) / float64(time.Millisecond)
	}
	h.P95LatencyMs = float64(p95(latencies)) / float64(time.Millisecond)

	switch {
	case s.lastHeartbeat.IsZero() || now.Sub(s.lastHeartbeat) > t.config.HeartbeatTimeout:
		h.Status = StatusOffline
	case h.ErrorRate > t.config.UnhealthyErrorRate:
		h.Status = StatusUnhealthy
	case h.P95LatencyMs > t.config.DegradedP95Ms:
		h.Status = StatusDegraded
	case successes == 0:
		// Heartbeating but doing no successful work is degraded at best.
		h.Status = StatusDegraded
	default:
		h.Status = StatusHealthy
	}

	return h
}

func (t *Tracker) pruneLocked(s *agentState, now time.Time) {
	cutoff := now.Add(-t.config.Window)

	kept := s.requests[:0]
	for _, r := range s.requests {
		if r.at.After(cutoff) {
			kept = append(kept, r)
		}
	}
	s.requests = kept

	keptV := s.violations[:0]
	for _, v := range s.violations {
		if v.After(cutoff) {
			keptV = append(keptV, v)
		}
	}
	s.violations = keptV
}

func (t *Tracker) state(agent string) *agentState {
	s, ok := t.agents[agent]
	if !ok {
		s = &agentState{}
		t.agents[agent] = s
	}
	return s
}

// p95 returns the 95th percentile of the given latencies, 0 when empty.
func p95(latencies []time.Duration) time.Duration {
	if len(latencies) == 0 {
		return 0
	}
	sorted := make([]time.Duration, len(latencies))
	copy(sorted, latencies)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	idx := (len(sorted)*95 + 99) / 100
	if idx < 1 {
		idx = 1
	}
	return sorted[idx-1]
}
