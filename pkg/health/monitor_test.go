package health

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"mercator-hq/ganymede/pkg/config"
	"mercator-hq/ganymede/pkg/policy"
	"mercator-hq/ganymede/pkg/state"
)

const monitorTestRules = `version: 1
rules:
  - name: max_leverage
    category: risk
    kind: numeric_threshold
    severity: medium
    parameter: leverage
    threshold: 2
    applies_to: [trade]
    message: leverage above 2x is not permitted
`

func testRuleSet(t *testing.T) *policy.RuleSet {
	t.Helper()
	path := filepath.Join(t.TempDir(), "rules.yaml")
	if err := os.WriteFile(path, []byte(monitorTestRules), 0o644); err != nil {
		t.Fatalf("writing rules: %v", err)
	}
	rs, err := policy.LoadRuleSet(path)
	if err != nil {
		t.Fatalf("loading rules: %v", err)
	}
	return rs
}

func fastHealthConfig() *config.HealthConfig {
	return &config.HealthConfig{
		AgentInterval:        10 * time.Millisecond,
		DependencyInterval:   10 * time.Millisecond,
		DriftInterval:        10 * time.Millisecond,
		ResourceInterval:     10 * time.Millisecond,
		ProbeTimeout:         50 * time.Millisecond,
		HeartbeatTimeout:     30 * time.Second,
		DegradedP95Ms:        5000,
		UnhealthyErrorRate:   0.20,
		ResourceAlertPct:     90,
		ResourceAlertSamples: 3,
	}
}

// waitFor polls until the condition holds or the deadline passes.
func waitFor(t *testing.T, d time.Duration, cond func() bool) bool {
	t.Helper()
	deadline := time.Now().Add(d)
	for time.Now().Before(deadline) {
		if cond() {
			return true
		}
		time.Sleep(5 * time.Millisecond)
	}
	return cond()
}

func TestMonitor_StartTwice(t *testing.T) {
	m := NewMonitor(fastHealthConfig(), NewTracker(nil), testRuleSet(t), nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := m.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer m.Stop()

	if err := m.Start(ctx); err == nil {
		t.Error("expected error starting a running monitor")
	}
}

func TestMonitor_SnapshotBeforeStart(t *testing.T) {
	m := NewMonitor(fastHealthConfig(), NewTracker(nil), testRuleSet(t), nil)

	s := m.Snapshot()
	if s.Status != StatusHealthy {
		t.Errorf("status = %s, want healthy", s.Status)
	}
	if s.Agents == nil || s.Dependencies == nil {
		t.Error("expected non-nil snapshot maps")
	}
}

func TestMonitor_AgentEvaluation(t *testing.T) {
	tracker := NewTracker(nil)
	m := NewMonitor(fastHealthConfig(), tracker, testRuleSet(t), nil)

	tracker.RecordRequest("worker", 10*time.Millisecond, false)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := m.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer m.Stop()

	ok := waitFor(t, 2*time.Second, func() bool {
		h, found := m.Snapshot().Agents["worker"]
		return found && h.Status == StatusHealthy
	})
	if !ok {
		t.Errorf("worker never appeared healthy in snapshot: %+v", m.Snapshot().Agents)
	}
}

func TestMonitor_DependencyProbeTimeout(t *testing.T) {
	m := NewMonitor(fastHealthConfig(), NewTracker(nil), testRuleSet(t), nil)
	m.AddProbe(Probe{
		Name: "slow",
		Check: func(ctx context.Context) error {
			time.Sleep(500 * time.Millisecond)
			return nil
		},
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := m.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer m.Stop()

	ok := waitFor(t, 2*time.Second, func() bool {
		d, found := m.Snapshot().Dependencies["slow"]
		return found && !d.Up
	})
	if !ok {
		t.Fatal("slow dependency never reported down")
	}
	if m.Snapshot().Status != StatusUnhealthy {
		t.Errorf("system status = %s, want unhealthy with a dependency down", m.Snapshot().Status)
	}
}

func TestMonitor_PanickingProbeIsolated(t *testing.T) {
	m := NewMonitor(fastHealthConfig(), NewTracker(nil), testRuleSet(t), nil)
	m.AddProbe(Probe{
		Name:  "bomb",
		Check: func(ctx context.Context) error { panic("boom") },
	})
	m.AddProbe(Probe{
		Name:  "steady",
		Check: func(ctx context.Context) error { return nil },
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := m.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer m.Stop()

	ok := waitFor(t, 2*time.Second, func() bool {
		s := m.Snapshot()
		bomb, foundBomb := s.Dependencies["bomb"]
		steady, foundSteady := s.Dependencies["steady"]
		return foundBomb && !bomb.Up && foundSteady && steady.Up
	})
	if !ok {
		t.Errorf("panicking probe was not isolated: %+v", m.Snapshot().Dependencies)
	}
}

func TestMonitor_DriftDetection(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rules.yaml")
	if err := os.WriteFile(path, []byte(monitorTestRules), 0o644); err != nil {
		t.Fatalf("writing rules: %v", err)
	}
	rules, err := policy.LoadRuleSet(path)
	if err != nil {
		t.Fatalf("loading rules: %v", err)
	}

	var driftCount atomic.Int32
	var driftErr atomic.Value
	m := NewMonitor(fastHealthConfig(), NewTracker(nil), rules, nil)
	m.SetHooks(Hooks{
		OnDrift: func(err error) {
			driftCount.Add(1)
			driftErr.Store(err)
		},
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := m.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer m.Stop()

	// Tamper with the artifact after the monitor is running.
	if err := os.WriteFile(path, []byte(monitorTestRules+"# tampered\n"), 0o644); err != nil {
		t.Fatalf("tampering: %v", err)
	}

	if !waitFor(t, 2*time.Second, func() bool { return m.Snapshot().Drifted }) {
		t.Fatal("drift never reflected in snapshot")
	}
	if m.Snapshot().Status != StatusUnhealthy {
		t.Errorf("system status = %s, want unhealthy under drift", m.Snapshot().Status)
	}

	// The hook fires once per transition, not once per tick.
	time.Sleep(100 * time.Millisecond)
	if got := driftCount.Load(); got != 1 {
		t.Errorf("drift hook fired %d times, want 1", got)
	}
	var integrity *policy.IntegrityError
	if err, _ := driftErr.Load().(error); !errors.As(err, &integrity) {
		t.Errorf("drift hook error = %v, want IntegrityError", err)
	}
}

func TestMonitor_AgentStatusChangeHook(t *testing.T) {
	cfg := fastHealthConfig()
	cfg.HeartbeatTimeout = 50 * time.Millisecond

	tracker := NewTracker(&TrackerConfig{
		Window:             time.Minute,
		HeartbeatTimeout:   cfg.HeartbeatTimeout,
		DegradedP95Ms:      cfg.DegradedP95Ms,
		UnhealthyErrorRate: cfg.UnhealthyErrorRate,
	})
	m := NewMonitor(cfg, tracker, testRuleSet(t), nil)

	type change struct{ from, to Status }
	changes := make(chan change, 16)
	m.SetHooks(Hooks{
		OnAgentStatusChange: func(agent string, from, to Status) {
			changes <- change{from, to}
		},
	})

	tracker.RecordRequest("worker", 10*time.Millisecond, false)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := m.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer m.Stop()

	// The agent goes offline when the heartbeat lapses.
	select {
	case c := <-changes:
		if c.to != StatusOffline {
			t.Errorf("transition to %s, want offline", c.to)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no status change observed")
	}
}

func TestMonitor_SnapshotPersisted(t *testing.T) {
	cfg := fastHealthConfig()
	cfg.PersistSnapshots = true

	store := state.NewMemoryStore()
	tracker := NewTracker(nil)
	tracker.RecordRequest("worker", 10*time.Millisecond, false)

	m := NewMonitor(cfg, tracker, testRuleSet(t), nil)
	m.SetSnapshotStore(store)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := m.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer m.Stop()

	ok := waitFor(t, 2*time.Second, func() bool {
		_, err := store.Get(context.Background(), "health:system")
		return err == nil
	})
	if !ok {
		t.Error("system snapshot never persisted")
	}
}

func TestMonitor_SnapshotSystemFields(t *testing.T) {
	m := NewMonitor(fastHealthConfig(), NewTracker(nil), testRuleSet(t), nil)
	m.SetSystemInfo(func() (float64, bool) { return 87.5, true })
	m.SetQueueDepth(func() int { return 4 })

	m.publish(context.Background(), false)

	s := m.Snapshot()
	if s.PolicyCompliancePct != 87.5 {
		t.Errorf("compliance = %v, want 87.5", s.PolicyCompliancePct)
	}
	if !s.EmergencyHalted {
		t.Error("EmergencyHalted = false, want true")
	}
	if s.QueueDepth != 4 {
		t.Errorf("queue depth = %d, want 4", s.QueueDepth)
	}
}

func TestMonitor_CheckDriftNow(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rules.yaml")
	if err := os.WriteFile(path, []byte(monitorTestRules), 0o644); err != nil {
		t.Fatalf("writing rules: %v", err)
	}
	rules, err := policy.LoadRuleSet(path)
	if err != nil {
		t.Fatalf("loading rules: %v", err)
	}

	m := NewMonitor(fastHealthConfig(), NewTracker(nil), rules, nil)

	if err := os.WriteFile(path, []byte("tampered"), 0o644); err != nil {
		t.Fatalf("tampering: %v", err)
	}

	// Immediate check without starting the loops.
	m.CheckDriftNow()
	if !m.Snapshot().Drifted {
		t.Error("expected drift after immediate check")
	}
}
