package health

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"mercator-hq/ganymede/pkg/config"
	"mercator-hq/ganymede/pkg/policy"
	"mercator-hq/ganymede/pkg/state"
	"mercator-hq/ganymede/pkg/telemetry/metrics"
)

// snapshotKey is the state key the rolling system snapshot is persisted
// under when snapshot persistence is enabled.
const snapshotKey = "health:system"

// Hooks are callbacks the monitor invokes on notable transitions. All hooks
// are optional and are called from monitor goroutines.
type Hooks struct {
	// OnDrift fires once when the rule artifact stops matching the
	// loaded rule set.
	OnDrift func(err error)

	// OnResourceAlert fires when CPU or memory usage stays above the
	// alert threshold for the configured number of consecutive samples.
	OnResourceAlert func(sample ResourceSample)

	// OnAgentStatusChange fires when an agent's derived status changes.
	OnAgentStatusChange func(agent string, from, to Status)
}

// Monitor runs four independent observation loops (agents, dependencies,
// policy drift, resources) and publishes their combined findings as an
// atomically replaced snapshot. A stall or panic in one loop never stops
// the others.
type Monitor struct {
	config  *config.HealthConfig
	tracker *Tracker
	rules   *policy.RuleSet
	metrics *metrics.Collector
	logger  *slog.Logger

	hooks      Hooks
	probes     []Probe
	sampler    *ResourceSampler
	store      state.Store
	systemInfo func() (compliancePct float64, halted bool)
	queueDepth func() int

	snapshot atomic.Pointer[SystemHealth]

	mu           sync.Mutex
	agents       map[string]AgentHealth
	dependencies map[string]DependencyHealth
	resources    ResourceSample
	lastStatus   map[string]Status
	drifted      bool
	streak       int
	running      bool
	cancel       context.CancelFunc
	wg           sync.WaitGroup
}

// NewMonitor creates a health monitor. The collector may be nil to disable
// metric publication.
func NewMonitor(cfg *config.HealthConfig, tracker *Tracker, rules *policy.RuleSet, collector *metrics.Collector) *Monitor {
	return &Monitor{
		config:       cfg,
		tracker:      tracker,
		rules:        rules,
		metrics:      collector,
		logger:       slog.Default().With("component", "health.monitor"),
		sampler:      NewResourceSampler(),
		agents:       make(map[string]AgentHealth),
		dependencies: make(map[string]DependencyHealth),
		lastStatus:   make(map[string]Status),
	}
}

// SetHooks installs transition callbacks. Must be called before Start.
func (m *Monitor) SetHooks(hooks Hooks) {
	m.hooks = hooks
}

// AddProbe registers a dependency probe. Must be called before Start.
func (m *Monitor) AddProbe(probe Probe) {
	m.probes = append(m.probes, probe)
}

// SetSnapshotStore sets the store snapshots are persisted to when snapshot
// persistence is enabled. Must be called before Start.
func (m *Monitor) SetSnapshotStore(store state.Store) {
	m.store = store
}

// SetSystemInfo installs the callback supplying the compliance gauge and
// halt flag for metric publication. Must be called before Start.
func (m *Monitor) SetSystemInfo(fn func() (compliancePct float64, halted bool)) {
	m.systemInfo = fn
}

// SetQueueDepth installs the callback supplying the in-flight request
// count for the snapshot. Must be called before Start.
func (m *Monitor) SetQueueDepth(fn func() int) {
	m.queueDepth = fn
}

// Tracker returns the monitor's activity tracker.
func (m *Monitor) Tracker() *Tracker {
	return m.tracker
}

// Start launches the monitoring loops. It returns immediately; the loops
// run until ctx is cancelled or Stop is called.
func (m *Monitor) Start(ctx context.Context) error {
	m.mu.Lock()
	if m.running {
		m.mu.Unlock()
		return fmt.Errorf("monitor already running")
	}
	loopCtx, cancel := context.WithCancel(ctx)
	m.cancel = cancel
	m.running = true
	m.mu.Unlock()

	m.runLoop(loopCtx, "agents", m.config.AgentInterval, m.agentTick)
	m.runLoop(loopCtx, "dependencies", m.config.DependencyInterval, m.dependencyTick)
	m.runLoop(loopCtx, "drift", m.config.DriftInterval, m.driftTick)
	m.runLoop(loopCtx, "resources", m.config.ResourceInterval, m.resourceTick)

	m.logger.Info("health monitor started",
		"agent_interval", m.config.AgentInterval,
		"dependency_interval", m.config.DependencyInterval,
		"drift_interval", m.config.DriftInterval,
		"resource_interval", m.config.ResourceInterval,
		"probes", len(m.probes),
	)
	return nil
}

// Stop stops the monitoring loops and waits for them to finish.
func (m *Monitor) Stop() {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return
	}
	m.running = false
	cancel := m.cancel
	m.mu.Unlock()

	cancel()
	m.wg.Wait()
	m.logger.Info("health monitor stopped")
}

// Snapshot returns the latest published snapshot. Before the first tick it
// returns an empty healthy snapshot.
func (m *Monitor) Snapshot() *SystemHealth {
	if s := m.snapshot.Load(); s != nil {
		return s
	}
	return &SystemHealth{
		Status:       StatusHealthy,
		Agents:       map[string]AgentHealth{},
		Dependencies: map[string]DependencyHealth{},
		Timestamp:    time.Now().UTC(),
	}
}

// CheckDriftNow runs an immediate drift check outside the loop schedule.
// The rule watcher calls this on file events.
func (m *Monitor) CheckDriftNow() {
	m.safeTick("drift", func() { m.driftTick(context.Background()) })
}

// runLoop starts one observation loop. Each tick is isolated: a panic is
// logged and the loop keeps running.
func (m *Monitor) runLoop(ctx context.Context, name string, interval time.Duration, tick func(ctx context.Context)) {
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()

		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				m.safeTick(name, func() { tick(ctx) })
			}
		}
	}()
}

func (m *Monitor) safeTick(name string, tick func()) {
	defer func() {
		if r := recover(); r != nil {
			m.logger.Error("health loop tick panicked",
				"loop", name,
				"panic", r,
				"stack", string(debug.Stack()),
			)
		}
	}()
	tick()
}

func (m *Monitor) agentTick(ctx context.Context) {
	now := time.Now()
	evals := m.tracker.EvaluateAll(now)

	type transition struct {
		agent    string
		from, to Status
	}
	var transitions []transition

	m.mu.Lock()
	m.agents = evals
	for agent, h := range evals {
		prev, seen := m.lastStatus[agent]
		if seen && prev != h.Status {
			transitions = append(transitions, transition{agent: agent, from: prev, to: h.Status})
		}
		m.lastStatus[agent] = h.Status
	}
	m.mu.Unlock()

	for agent, h := range evals {
		if m.metrics != nil {
			m.metrics.UpdateAgentStatus(agent, h.Status.Code())
		}
	}

	for _, tr := range transitions {
		m.logger.Info("agent status changed",
			"agent", tr.agent,
			"from", string(tr.from),
			"to", string(tr.to),
		)
		if m.hooks.OnAgentStatusChange != nil {
			m.hooks.OnAgentStatusChange(tr.agent, tr.from, tr.to)
		}
		m.persistAgent(ctx, evals[tr.agent])
	}

	m.publish(ctx, true)
}

func (m *Monitor) dependencyTick(ctx context.Context) {
	for _, probe := range m.probes {
		result := runProbe(ctx, probe, m.config.ProbeTimeout)

		m.mu.Lock()
		prev, seen := m.dependencies[probe.Name]
		m.dependencies[probe.Name] = result
		m.mu.Unlock()

		if m.metrics != nil {
			m.metrics.RecordDependencyProbe(probe.Name, result.Up,
				time.Duration(result.LatencyMs*float64(time.Millisecond)))
		}
		if seen && prev.Up != result.Up {
			if result.Up {
				m.logger.Info("dependency recovered", "dependency", probe.Name)
			} else {
				m.logger.Warn("dependency down",
					"dependency", probe.Name,
					"error", result.Error,
				)
			}
		}
	}

	m.publish(ctx, false)
}

func (m *Monitor) driftTick(ctx context.Context) {
	err := m.rules.Verify()

	m.mu.Lock()
	wasDrifted := m.drifted
	m.drifted = err != nil
	m.mu.Unlock()

	if err != nil && !wasDrifted {
		m.logger.Error("policy drift detected", "error", err)
		if m.hooks.OnDrift != nil {
			m.hooks.OnDrift(err)
		}
	}
	if err == nil && wasDrifted {
		m.logger.Info("rule artifact matches loaded rule set again")
	}

	m.publish(ctx, false)
}

func (m *Monitor) resourceTick(ctx context.Context) {
	sample, err := m.sampler.Sample()
	if err != nil {
		m.logger.Warn("resource sampling failed", "error", err)
		return
	}

	m.mu.Lock()
	m.resources = sample
	if sample.CPUPct > m.config.ResourceAlertPct || sample.MemPct > m.config.ResourceAlertPct {
		m.streak++
	} else {
		m.streak = 0
	}
	alert := m.streak == m.config.ResourceAlertSamples
	m.mu.Unlock()

	if alert {
		m.logger.Warn("resource usage alert",
			"cpu_pct", sample.CPUPct,
			"mem_pct", sample.MemPct,
			"samples", m.config.ResourceAlertSamples,
		)
		if m.hooks.OnResourceAlert != nil {
			m.hooks.OnResourceAlert(sample)
		}
	}

	if m.metrics != nil {
		compliance, halted := 100.0, false
		if m.systemInfo != nil {
			compliance, halted = m.systemInfo()
		}
		m.metrics.UpdateSystemHealth(sample.CPUPct, sample.MemPct, compliance, halted)
	}

	m.publish(ctx, false)
}

// publish rebuilds the snapshot from the latest loop findings and swaps it
// in atomically.
func (m *Monitor) publish(ctx context.Context, persist bool) {
	compliance, halted := 100.0, false
	if m.systemInfo != nil {
		compliance, halted = m.systemInfo()
	}
	depth := 0
	if m.queueDepth != nil {
		depth = m.queueDepth()
	}

	m.mu.Lock()

	snapshot := &SystemHealth{
		Status:              StatusHealthy,
		Agents:              make(map[string]AgentHealth, len(m.agents)),
		Dependencies:        make(map[string]DependencyHealth, len(m.dependencies)),
		Resources:           m.resources,
		QueueDepth:          depth,
		PolicyCompliancePct: compliance,
		EmergencyHalted:     halted,
		Drifted:             m.drifted,
		Timestamp:           time.Now().UTC(),
	}
	if m.rules != nil {
		snapshot.RuleChecksum = m.rules.Checksum()
	}
	for name, h := range m.agents {
		snapshot.Agents[name] = h
		if h.Status != StatusHealthy && StatusDegraded.worseThan(snapshot.Status) {
			snapshot.Status = StatusDegraded
		}
	}
	for name, d := range m.dependencies {
		snapshot.Dependencies[name] = d
		if !d.Up {
			snapshot.Status = StatusUnhealthy
		}
	}
	if m.streak >= m.config.ResourceAlertSamples && StatusDegraded.worseThan(snapshot.Status) {
		snapshot.Status = StatusDegraded
	}
	if m.drifted {
		snapshot.Status = StatusUnhealthy
	}

	m.mu.Unlock()
	m.snapshot.Store(snapshot)

	if persist && m.config.PersistSnapshots && m.store != nil {
		data, err := json.Marshal(snapshot)
		if err != nil {
			return
		}
		if _, err := m.store.Put(ctx, snapshotKey, data, "health-monitor"); err != nil {
			m.logger.Warn("persisting health snapshot failed", "error", err)
		}
	}
}

func (m *Monitor) persistAgent(ctx context.Context, h AgentHealth) {
	if !m.config.PersistSnapshots || m.store == nil {
		return
	}
	data, err := json.Marshal(h)
	if err != nil {
		return
	}
	key := "health:agent:" + h.Agent
	if _, err := m.store.Put(ctx, key, data, "health-monitor"); err != nil {
		m.logger.Warn("persisting agent health failed", "agent", h.Agent, "error", err)
	}
}
