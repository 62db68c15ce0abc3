package governance

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"mercator-hq/ganymede/pkg/health"
	"mercator-hq/ganymede/pkg/policy"
	"mercator-hq/ganymede/pkg/state"
)

const coordinatorTestRules = `version: 1
rules:
  - name: no_autonomous_trading
    category: autonomy
    kind: boolean_flag
    severity: critical
    parameter: human_approved
    expected: true
    applies_to: [trade]
    message: trades require human approval
  - name: max_position_size
    category: trading_safety
    kind: numeric_threshold
    severity: high
    parameter: position_pct
    threshold: 0.10
    comparison: lte
    applies_to: [trade]
    message: position size exceeds 10% of portfolio
`

func testEngine(t *testing.T) *policy.Engine {
	t.Helper()
	path := filepath.Join(t.TempDir(), "rules.yaml")
	if err := os.WriteFile(path, []byte(coordinatorTestRules), 0o644); err != nil {
		t.Fatalf("writing rules: %v", err)
	}
	rs, err := policy.LoadRuleSet(path)
	if err != nil {
		t.Fatalf("loading rules: %v", err)
	}
	return policy.NewEngine(rs, nil)
}

func newTestCoordinator(t *testing.T, cfg *Config) (*Coordinator, *state.MemoryStore) {
	t.Helper()
	if cfg == nil {
		cfg = &Config{
			CriticalWindow:    time.Minute,
			CriticalThreshold: 3,
			RestoreCooldown:   0,
		}
	}
	store := state.NewMemoryStore()
	c := NewCoordinator(cfg, testEngine(t), store, health.NewTracker(nil), nil)
	return c, store
}

func compliantTrade(agent string) policy.Action {
	return policy.Action{
		Type:  "trade",
		Agent: agent,
		Parameters: map[string]interface{}{
			"human_approved": true,
			"position_pct":   0.05,
		},
	}
}

func unapprovedTrade(agent string) policy.Action {
	return policy.Action{
		Type:  "trade",
		Agent: agent,
		Parameters: map[string]interface{}{
			"human_approved": false,
			"position_pct":   0.05,
		},
	}
}

func TestCoordinator_ValidateApproved(t *testing.T) {
	c, store := newTestCoordinator(t, nil)
	ctx := context.Background()

	decision, err := c.Validate(ctx, compliantTrade("trader-1"))
	if err != nil {
		t.Fatalf("Validate failed: %v", err)
	}
	if !decision.Approved {
		t.Errorf("expected approval, got violations %v", decision.Violations)
	}

	// The decision landed in the agent's decision history.
	history, err := store.History(ctx, "agent:trader-1:decisions")
	if err != nil {
		t.Fatalf("History failed: %v", err)
	}
	if len(history) != 1 {
		t.Errorf("decision history length = %d, want 1", len(history))
	}

	// And the audit trail records the validation.
	trail, err := store.AuditTrail(ctx, &state.AuditQuery{Category: "validation", Agent: "trader-1"})
	if err != nil {
		t.Fatalf("AuditTrail failed: %v", err)
	}
	if len(trail) != 1 {
		t.Errorf("audit entries = %d, want 1", len(trail))
	}
}

func TestCoordinator_ValidateRejected(t *testing.T) {
	c, _ := newTestCoordinator(t, nil)

	decision, err := c.Validate(context.Background(), policy.Action{
		Type:  "trade",
		Agent: "trader-1",
		Parameters: map[string]interface{}{
			"human_approved": true,
			"position_pct":   0.50,
		},
	})
	if err != nil {
		t.Fatalf("Validate failed: %v", err)
	}
	if decision.Approved {
		t.Error("expected rejection for oversized position")
	}
}

func TestCoordinator_HaltOverridesApproval(t *testing.T) {
	c, _ := newTestCoordinator(t, nil)
	ctx := context.Background()

	if err := c.EmergencyHalt(ctx, "manual stop", "alice", "operator"); err != nil {
		t.Fatalf("EmergencyHalt failed: %v", err)
	}

	// Even a fully compliant action is refused while halted.
	_, err := c.Validate(ctx, compliantTrade("trader-1"))
	var halted *SystemHaltedError
	if !errors.As(err, &halted) {
		t.Fatalf("expected SystemHaltedError, got %v", err)
	}
	if halted.Reason != "manual stop" {
		t.Errorf("halt reason = %q, want manual stop", halted.Reason)
	}
}

func TestCoordinator_IsolatedAgentRefused(t *testing.T) {
	c, _ := newTestCoordinator(t, nil)
	ctx := context.Background()

	if err := c.Isolate(ctx, "trader-1", "alice"); err != nil {
		t.Fatalf("Isolate failed: %v", err)
	}

	_, err := c.Validate(ctx, compliantTrade("trader-1"))
	var isolated *AgentIsolatedError
	if !errors.As(err, &isolated) {
		t.Fatalf("expected AgentIsolatedError, got %v", err)
	}

	// Other agents are unaffected.
	if _, err := c.Validate(ctx, compliantTrade("trader-2")); err != nil {
		t.Errorf("other agent refused: %v", err)
	}
}

func TestCoordinator_IsolateRequiresAuthor(t *testing.T) {
	c, _ := newTestCoordinator(t, nil)

	if err := c.Isolate(context.Background(), "trader-1", ""); !errors.Is(err, ErrAuthorRequired) {
		t.Errorf("expected ErrAuthorRequired, got %v", err)
	}
}

func TestCoordinator_AutoHaltOnCriticalViolations(t *testing.T) {
	c, _ := newTestCoordinator(t, nil)
	ctx := context.Background()

	// Three critical violations within the window trip the breaker.
	for i := 0; i < 3; i++ {
		decision, err := c.Validate(ctx, unapprovedTrade("rogue"))
		if err != nil {
			t.Fatalf("Validate %d failed: %v", i, err)
		}
		if decision.Approved {
			t.Fatalf("Validate %d unexpectedly approved", i)
		}
	}

	halted, reason, _ := c.Halted()
	if !halted {
		t.Fatal("expected automatic halt after 3 critical violations")
	}
	if reason == "" {
		t.Error("expected halt reason")
	}

	_, err := c.Validate(ctx, compliantTrade("trader-2"))
	var haltErr *SystemHaltedError
	if !errors.As(err, &haltErr) {
		t.Errorf("expected SystemHaltedError after auto-halt, got %v", err)
	}
}

func TestCoordinator_NoAutoHaltBelowThreshold(t *testing.T) {
	c, _ := newTestCoordinator(t, nil)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		if _, err := c.Validate(ctx, unapprovedTrade("rogue")); err != nil {
			t.Fatalf("Validate failed: %v", err)
		}
	}

	if halted, _, _ := c.Halted(); halted {
		t.Error("halted below the critical threshold")
	}
}

func TestCoordinator_ResumeRequiresDifferentAuthor(t *testing.T) {
	c, _ := newTestCoordinator(t, nil)
	ctx := context.Background()

	if err := c.EmergencyHalt(ctx, "stop", "alice", "operator"); err != nil {
		t.Fatalf("EmergencyHalt failed: %v", err)
	}

	if err := c.Resume(ctx, "alice"); !errors.Is(err, ErrSameAuthor) {
		t.Errorf("expected ErrSameAuthor, got %v", err)
	}
	if err := c.Resume(ctx, ""); !errors.Is(err, ErrAuthorRequired) {
		t.Errorf("expected ErrAuthorRequired, got %v", err)
	}

	if err := c.Resume(ctx, "bob"); err != nil {
		t.Fatalf("Resume by different author failed: %v", err)
	}
	if halted, _, _ := c.Halted(); halted {
		t.Error("still halted after resume")
	}

	// Validation works again.
	if _, err := c.Validate(ctx, compliantTrade("trader-1")); err != nil {
		t.Errorf("Validate after resume failed: %v", err)
	}
}

func TestCoordinator_HaltIdempotent(t *testing.T) {
	c, _ := newTestCoordinator(t, nil)
	ctx := context.Background()

	if err := c.EmergencyHalt(ctx, "first", "alice", "operator"); err != nil {
		t.Fatalf("EmergencyHalt failed: %v", err)
	}
	if err := c.EmergencyHalt(ctx, "second", "bob", "operator"); err != nil {
		t.Fatalf("second EmergencyHalt failed: %v", err)
	}

	// The original reason wins.
	_, reason, _ := c.Halted()
	if reason != "first" {
		t.Errorf("halt reason = %q, want first", reason)
	}
}

func TestCoordinator_RestoreCooldown(t *testing.T) {
	c, _ := newTestCoordinator(t, &Config{
		CriticalWindow:    time.Minute,
		CriticalThreshold: 3,
		RestoreCooldown:   time.Hour,
	})
	ctx := context.Background()

	if err := c.Restore(ctx, "trader-1", "alice"); err == nil {
		t.Error("expected error restoring a non-isolated agent")
	} else {
		var notIsolated *NotIsolatedError
		if !errors.As(err, &notIsolated) {
			t.Errorf("expected NotIsolatedError, got %v", err)
		}
	}

	if err := c.Isolate(ctx, "trader-1", "alice"); err != nil {
		t.Fatalf("Isolate failed: %v", err)
	}

	err := c.Restore(ctx, "trader-1", "bob")
	var cooldown *CooldownError
	if !errors.As(err, &cooldown) {
		t.Fatalf("expected CooldownError, got %v", err)
	}
	if cooldown.Remaining <= 0 {
		t.Errorf("cooldown remaining = %v, want positive", cooldown.Remaining)
	}
}

func TestCoordinator_RestoreAfterCooldown(t *testing.T) {
	c, _ := newTestCoordinator(t, nil)
	ctx := context.Background()

	if err := c.Isolate(ctx, "trader-1", "alice"); err != nil {
		t.Fatalf("Isolate failed: %v", err)
	}
	if err := c.Restore(ctx, "trader-1", "bob"); err != nil {
		t.Fatalf("Restore failed: %v", err)
	}
	if c.IsIsolated("trader-1") {
		t.Error("agent still isolated after restore")
	}

	if _, err := c.Validate(ctx, compliantTrade("trader-1")); err != nil {
		t.Errorf("Validate after restore failed: %v", err)
	}
}

func TestCoordinator_RecoverState(t *testing.T) {
	cfg := &Config{CriticalWindow: time.Minute, CriticalThreshold: 3, RestoreCooldown: 0}
	store := state.NewMemoryStore()
	ctx := context.Background()

	first := NewCoordinator(cfg, testEngine(t), store, health.NewTracker(nil), nil)
	if err := first.EmergencyHalt(ctx, "pre-restart", "alice", "operator"); err != nil {
		t.Fatalf("EmergencyHalt failed: %v", err)
	}
	if err := first.Isolate(ctx, "trader-1", "alice"); err != nil {
		t.Fatalf("Isolate failed: %v", err)
	}

	// A fresh coordinator over the same store picks the state back up.
	second := NewCoordinator(cfg, testEngine(t), store, health.NewTracker(nil), nil)
	if err := second.RecoverState(ctx); err != nil {
		t.Fatalf("RecoverState failed: %v", err)
	}

	halted, reason, _ := second.Halted()
	if !halted || reason != "pre-restart" {
		t.Errorf("recovered halt = %v %q, want true pre-restart", halted, reason)
	}
	if !second.IsIsolated("trader-1") {
		t.Error("isolation not recovered")
	}
}

func TestCoordinator_HandleDriftHalts(t *testing.T) {
	c, _ := newTestCoordinator(t, nil)

	c.HandleDrift(errors.New("checksum mismatch"))

	halted, reason, _ := c.Halted()
	if !halted {
		t.Fatal("expected halt on drift")
	}
	if reason == "" {
		t.Error("expected drift reason")
	}

	// The drift halt was raised by the monitor, so an operator can resume.
	if err := c.Resume(context.Background(), "alice"); err != nil {
		t.Errorf("Resume after drift halt failed: %v", err)
	}
}

func TestCoordinator_SystemInfo(t *testing.T) {
	c, _ := newTestCoordinator(t, nil)
	ctx := context.Background()

	compliance, halted := c.SystemInfo()
	if compliance != 100 || halted {
		t.Errorf("initial SystemInfo = %v %v, want 100 false", compliance, halted)
	}

	if _, err := c.Validate(ctx, compliantTrade("trader-1")); err != nil {
		t.Fatalf("Validate failed: %v", err)
	}

	compliance, _ = c.SystemInfo()
	if compliance != 100 {
		t.Errorf("compliance after clean validation = %v, want 100", compliance)
	}
}

func TestCoordinator_FleetHealth(t *testing.T) {
	c, _ := newTestCoordinator(t, nil)
	ctx := context.Background()

	if _, err := c.Validate(ctx, compliantTrade("trader-1")); err != nil {
		t.Fatalf("Validate failed: %v", err)
	}
	if _, err := c.Validate(ctx, compliantTrade("trader-2")); err != nil {
		t.Fatalf("Validate failed: %v", err)
	}

	fleet := c.FleetHealth()
	if len(fleet) != 2 {
		t.Fatalf("fleet size = %d, want 2", len(fleet))
	}

	h := c.AgentHealth("trader-1")
	if h.Status != health.StatusHealthy {
		t.Errorf("trader-1 status = %s, want healthy", h.Status)
	}
	if h.Requests != 1 {
		t.Errorf("trader-1 requests = %d, want 1", h.Requests)
	}
}
