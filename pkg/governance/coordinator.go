package governance

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"mercator-hq/ganymede/pkg/health"
	"mercator-hq/ganymede/pkg/policy"
	"mercator-hq/ganymede/pkg/state"
	"mercator-hq/ganymede/pkg/telemetry/metrics"
)

// State keys the coordinator persists containment state under.
const (
	haltKey     = "system:halt"
	isolatedKey = "system:isolated"
)

// decisionsKeyPrefix namespaces per-agent decision history.
const decisionsKeyPrefix = "agent:"

// complianceWindow is how many recent compliance scores feed the rolling
// compliance gauge.
const complianceWindow = 100

// Config contains coordinator containment configuration.
type Config struct {
	// CriticalWindow is the rolling window for counting critical violations.
	// Default: 60 seconds
	CriticalWindow time.Duration

	// CriticalThreshold is the number of critical violations within the
	// window that triggers an automatic emergency halt.
	// Default: 3
	CriticalThreshold int

	// RestoreCooldown is how long an agent must stay isolated before a
	// restore is permitted. Default: 30 seconds
	RestoreCooldown time.Duration
}

// DefaultConfig returns the default coordinator configuration.
func DefaultConfig() *Config {
	return &Config{
		CriticalWindow:    60 * time.Second,
		CriticalThreshold: 3,
		RestoreCooldown:   30 * time.Second,
	}
}

// haltRecord is the persisted shape of the halt state.
type haltRecord struct {
	Halted bool      `json:"halted"`
	Reason string    `json:"reason,omitempty"`
	Author string    `json:"author,omitempty"`
	Since  time.Time `json:"since,omitempty"`
}

// Coordinator enforces governance across the whole system: it runs every
// action through the policy engine, persists the resulting decisions,
// feeds agent activity to the health monitor, and owns containment
// (isolation and emergency halt).
type Coordinator struct {
	config  *Config
	engine  *policy.Engine
	store   state.Store
	tracker *health.Tracker
	metrics *metrics.Collector
	logger  *slog.Logger

	mu         sync.Mutex
	halted     bool
	haltReason string
	haltAuthor string
	haltSince  time.Time
	isolated   map[string]time.Time
	criticals  []time.Time
	scores     []float64
}

// NewCoordinator creates a governance coordinator. The collector may be nil
// to disable metric publication.
func NewCoordinator(config *Config, engine *policy.Engine, store state.Store, tracker *health.Tracker, collector *metrics.Collector) *Coordinator {
	if config == nil {
		config = DefaultConfig()
	}
	return &Coordinator{
		config:   config,
		engine:   engine,
		store:    store,
		tracker:  tracker,
		metrics:  collector,
		logger:   slog.Default().With("component", "governance"),
		isolated: make(map[string]time.Time),
	}
}

// RecoverState reloads persisted containment state after a restart, so a
// halt or isolation survives the process.
func (c *Coordinator) RecoverState(ctx context.Context) error {
	if record, err := c.store.Get(ctx, haltKey); err == nil {
		var halt haltRecord
		if err := json.Unmarshal(record.Value, &halt); err != nil {
			return fmt.Errorf("decoding halt state: %w", err)
		}
		c.mu.Lock()
		c.halted = halt.Halted
		c.haltReason = halt.Reason
		c.haltAuthor = halt.Author
		c.haltSince = halt.Since
		c.mu.Unlock()
		if halt.Halted {
			c.logger.Warn("recovered halted state", "reason", halt.Reason, "since", halt.Since)
		}
	} else if _, ok := err.(*state.NotFoundError); !ok {
		return fmt.Errorf("reading halt state: %w", err)
	}

	if record, err := c.store.Get(ctx, isolatedKey); err == nil {
		isolated := make(map[string]time.Time)
		if err := json.Unmarshal(record.Value, &isolated); err != nil {
			return fmt.Errorf("decoding isolation state: %w", err)
		}
		c.mu.Lock()
		c.isolated = isolated
		c.mu.Unlock()
		if len(isolated) > 0 {
			c.logger.Warn("recovered isolated agents", "count", len(isolated))
		}
	} else if _, ok := err.(*state.NotFoundError); !ok {
		return fmt.Errorf("reading isolation state: %w", err)
	}

	return nil
}

// Validate runs an action through governance. The halt check comes first
// and overrides everything, then the acting agent's isolation, then policy
// evaluation. Approved or not, the decision is persisted and audited.
func (c *Coordinator) Validate(ctx context.Context, action policy.Action) (*policy.Decision, error) {
	c.mu.Lock()
	if c.halted {
		err := NewSystemHaltedError(c.haltReason, c.haltSince)
		c.mu.Unlock()
		c.recordOutcome(ctx, action.Agent, "halted", 0, 0)
		return nil, err
	}
	if since, ok := c.isolated[action.Agent]; ok {
		c.mu.Unlock()
		c.recordOutcome(ctx, action.Agent, "isolated", 0, 0)
		return nil, NewAgentIsolatedError(action.Agent, since)
	}
	c.mu.Unlock()

	start := time.Now()
	decision := c.engine.Evaluate(action)
	elapsed := time.Since(start)

	c.persistDecision(ctx, action, &decision)

	c.tracker.RecordRequest(action.Agent, elapsed, !decision.Approved)
	for _, v := range decision.Violations {
		c.tracker.RecordViolation(action.Agent)
		if c.metrics != nil {
			c.metrics.RecordViolation(v.RuleName, string(v.Severity))
		}
	}

	outcome := "approved"
	if !decision.Approved {
		outcome = "rejected"
	}
	c.recordOutcome(ctx, action.Agent, outcome, decision.ComplianceScore, elapsed)

	c.noteCriticals(ctx, action.Agent, &decision)

	return &decision, nil
}

// Isolate quarantines an agent: its actions are refused without evaluation
// until restored. Isolating an already isolated agent is a no-op.
func (c *Coordinator) Isolate(ctx context.Context, agent, author string) error {
	if author == "" {
		return ErrAuthorRequired
	}

	c.mu.Lock()
	if _, ok := c.isolated[agent]; ok {
		c.mu.Unlock()
		return nil
	}
	c.isolated[agent] = time.Now().UTC()
	c.mu.Unlock()

	c.logger.Warn("agent isolated", "agent", agent, "author", author)
	if c.metrics != nil {
		c.metrics.RecordIsolation(agent)
	}
	c.persistIsolation(ctx)
	c.audit(ctx, "containment", agent, "isolate", fmt.Sprintf("isolated by %s", author))
	return nil
}

// Restore lifts an agent's isolation after the cooldown has elapsed.
func (c *Coordinator) Restore(ctx context.Context, agent, author string) error {
	if author == "" {
		return ErrAuthorRequired
	}

	c.mu.Lock()
	since, ok := c.isolated[agent]
	if !ok {
		c.mu.Unlock()
		return &NotIsolatedError{Agent: agent}
	}
	if elapsed := time.Since(since); elapsed < c.config.RestoreCooldown {
		c.mu.Unlock()
		return &CooldownError{Agent: agent, Remaining: c.config.RestoreCooldown - elapsed}
	}
	delete(c.isolated, agent)
	c.mu.Unlock()

	c.logger.Info("agent restored", "agent", agent, "author", author)
	if c.metrics != nil {
		c.metrics.RecordRestore(agent)
	}
	c.persistIsolation(ctx)
	c.audit(ctx, "containment", agent, "restore", fmt.Sprintf("restored by %s", author))
	return nil
}

// EmergencyHalt stops all governance activity: every subsequent validation
// is refused until Resume. Halting an already halted system is a no-op and
// keeps the original reason.
func (c *Coordinator) EmergencyHalt(ctx context.Context, reason, author, trigger string) error {
	c.mu.Lock()
	if c.halted {
		c.mu.Unlock()
		return nil
	}
	c.halted = true
	c.haltReason = reason
	c.haltAuthor = author
	c.haltSince = time.Now().UTC()
	since := c.haltSince
	c.mu.Unlock()

	c.logger.Error("EMERGENCY HALT",
		"reason", reason,
		"author", author,
		"trigger", trigger,
	)
	if c.metrics != nil {
		c.metrics.RecordHalt(trigger)
	}
	c.persistHalt(ctx, haltRecord{Halted: true, Reason: reason, Author: author, Since: since})
	c.audit(ctx, "containment", "", "halt", fmt.Sprintf("%s (trigger: %s, author: %s)", reason, trigger, author))
	return nil
}

// Resume lifts an emergency halt. The resuming author must differ from the
// halting author. Resuming a running system is a no-op.
func (c *Coordinator) Resume(ctx context.Context, author string) error {
	if author == "" {
		return ErrAuthorRequired
	}

	c.mu.Lock()
	if !c.halted {
		c.mu.Unlock()
		return nil
	}
	if author == c.haltAuthor {
		c.mu.Unlock()
		return ErrSameAuthor
	}
	c.halted = false
	c.haltReason = ""
	c.haltAuthor = ""
	c.haltSince = time.Time{}
	c.mu.Unlock()

	c.logger.Info("system resumed", "author", author)
	c.persistHalt(ctx, haltRecord{Halted: false})
	c.audit(ctx, "containment", "", "resume", fmt.Sprintf("resumed by %s", author))
	return nil
}

// Halted reports the halt state.
func (c *Coordinator) Halted() (bool, string, time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.halted, c.haltReason, c.haltSince
}

// IsIsolated reports whether an agent is isolated.
func (c *Coordinator) IsIsolated(agent string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.isolated[agent]
	return ok
}

// IsolatedAgents returns the currently isolated agents and their isolation
// times.
func (c *Coordinator) IsolatedAgents() map[string]time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make(map[string]time.Time, len(c.isolated))
	for agent, since := range c.isolated {
		out[agent] = since
	}
	return out
}

// SystemInfo supplies the rolling compliance percentage and halt flag for
// the health monitor's system gauges.
func (c *Coordinator) SystemInfo() (float64, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if len(c.scores) == 0 {
		return 100, c.halted
	}
	sum := 0.0
	for _, s := range c.scores {
		sum += s
	}
	return sum / float64(len(c.scores)) * 100, c.halted
}

// AgentHealth returns the current derived health of one agent.
func (c *Coordinator) AgentHealth(agent string) health.AgentHealth {
	return c.tracker.Evaluate(agent, time.Now())
}

// FleetHealth returns the current derived health of every tracked agent.
func (c *Coordinator) FleetHealth() map[string]health.AgentHealth {
	return c.tracker.EvaluateAll(time.Now())
}

// HandleDrift is the health monitor's drift hook: a rule artifact that no
// longer matches the loaded rule set halts the system.
func (c *Coordinator) HandleDrift(err error) {
	_ = c.EmergencyHalt(context.Background(),
		fmt.Sprintf("policy drift detected: %v", err),
		"health-monitor", "policy_drift")
}

// HandleResourceAlert is the health monitor's resource hook. Resource
// pressure is audited but does not halt governance.
func (c *Coordinator) HandleResourceAlert(sample health.ResourceSample) {
	c.audit(context.Background(), "health", "", "resource_alert",
		fmt.Sprintf("cpu %.1f%%, mem %.1f%%", sample.CPUPct, sample.MemPct))
}

// noteCriticals feeds the rolling critical violation window and triggers an
// automatic halt when the threshold is reached.
func (c *Coordinator) noteCriticals(ctx context.Context, agent string, decision *policy.Decision) {
	criticals := decision.CriticalViolations()
	if criticals == 0 {
		return
	}

	now := time.Now()
	cutoff := now.Add(-c.config.CriticalWindow)

	c.mu.Lock()
	kept := c.criticals[:0]
	for _, at := range c.criticals {
		if at.After(cutoff) {
			kept = append(kept, at)
		}
	}
	c.criticals = kept
	for i := 0; i < criticals; i++ {
		c.criticals = append(c.criticals, now)
	}
	count := len(c.criticals)
	threshold := c.config.CriticalThreshold
	c.mu.Unlock()

	if threshold > 0 && count >= threshold {
		_ = c.EmergencyHalt(ctx,
			fmt.Sprintf("%d critical violations within %s (last from agent %s)",
				count, c.config.CriticalWindow, agent),
			"governance", "critical_violations")
	}
}

func (c *Coordinator) persistDecision(ctx context.Context, action policy.Action, decision *policy.Decision) {
	payload, err := json.Marshal(map[string]interface{}{
		"action":   action,
		"decision": decision,
	})
	if err != nil {
		c.logger.Error("encoding decision failed", "error", err)
		return
	}

	key := decisionsKeyPrefix + action.Agent + ":decisions"
	start := time.Now()
	_, err = c.store.Put(ctx, key, payload, "governance")
	if c.metrics != nil {
		c.metrics.RecordStoreOp("put", time.Since(start), err)
	}
	if err != nil {
		c.logger.Error("persisting decision failed", "agent", action.Agent, "error", err)
	}

	detail := "approved"
	if !decision.Approved {
		detail = fmt.Sprintf("rejected with %d violations", len(decision.Violations))
	}
	c.audit(ctx, "validation", action.Agent, "validate", detail)
}

func (c *Coordinator) persistHalt(ctx context.Context, halt haltRecord) {
	payload, err := json.Marshal(halt)
	if err != nil {
		return
	}
	if _, err := c.store.Put(ctx, haltKey, payload, "governance"); err != nil {
		c.logger.Error("persisting halt state failed", "error", err)
	}
}

func (c *Coordinator) persistIsolation(ctx context.Context) {
	c.mu.Lock()
	payload, err := json.Marshal(c.isolated)
	c.mu.Unlock()
	if err != nil {
		return
	}
	if _, err := c.store.Put(ctx, isolatedKey, payload, "governance"); err != nil {
		c.logger.Error("persisting isolation state failed", "error", err)
	}
}

func (c *Coordinator) recordOutcome(ctx context.Context, agent, outcome string, score float64, elapsed time.Duration) {
	if c.metrics != nil {
		c.metrics.RecordValidation(agent, outcome, score, elapsed)
	}
	if outcome == "approved" || outcome == "rejected" {
		c.mu.Lock()
		c.scores = append(c.scores, score)
		if len(c.scores) > complianceWindow {
			c.scores = c.scores[len(c.scores)-complianceWindow:]
		}
		c.mu.Unlock()
	}
}

func (c *Coordinator) audit(ctx context.Context, category, agent, action, detail string) {
	entry := &state.AuditEntry{
		Category: category,
		Agent:    agent,
		Action:   action,
		Detail:   detail,
	}
	if err := c.store.AppendAudit(ctx, entry); err != nil {
		c.logger.Error("audit append failed", "action", action, "error", err)
	}
}
