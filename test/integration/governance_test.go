//go:build integration

package integration

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"mercator-hq/ganymede/pkg/config"
	"mercator-hq/ganymede/pkg/governance"
	"mercator-hq/ganymede/pkg/health"
	"mercator-hq/ganymede/pkg/policy"
	"mercator-hq/ganymede/pkg/server"
	"mercator-hq/ganymede/pkg/state"
)

const integrationRules = `version: 1
rules:
  - name: no_autonomous_trading
    category: autonomy
    kind: boolean_flag
    severity: critical
    parameter: human_approved
    expected: true
    applies_to: [trade]
    message: trades require explicit human approval
  - name: max_position_size
    category: trading_safety
    kind: numeric_threshold
    severity: high
    parameter: size
    threshold: 0.10
    comparison: lte
    applies_to: [trade]
    message: position size exceeds 10% of the portfolio
  - name: require_stop_loss
    category: trading_safety
    kind: required_field
    severity: medium
    parameter: stop_loss
    applies_to: [trade]
    message: trades must carry a stop loss
`

// startCore wires the full governance stack onto a SQLite-backed store and
// serves it over httptest.
func startCore(t *testing.T) (*httptest.Server, state.Store) {
	t.Helper()

	dir := t.TempDir()
	rulesPath := filepath.Join(dir, "rules.yaml")
	if err := os.WriteFile(rulesPath, []byte(integrationRules), 0o644); err != nil {
		t.Fatalf("writing rules: %v", err)
	}

	rules, err := policy.LoadRuleSet(rulesPath)
	if err != nil {
		t.Fatalf("loading rules: %v", err)
	}

	store, err := state.NewSQLiteStore(&state.SQLiteConfig{
		Path:        filepath.Join(dir, "governance.db"),
		Driver:      state.DriverPure,
		WALMode:     true,
		BusyTimeout: time.Second,
	})
	if err != nil {
		t.Fatalf("opening store: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	tracker := health.NewTracker(health.DefaultTrackerConfig())
	engine := policy.NewEngine(rules, nil)

	coordinator := governance.NewCoordinator(&governance.Config{
		CriticalWindow:    time.Minute,
		CriticalThreshold: 3,
		RestoreCooldown:   0,
	}, engine, store, tracker, nil)
	if err := coordinator.RecoverState(context.Background()); err != nil {
		t.Fatalf("recovering state: %v", err)
	}

	healthCfg := config.DefaultConfig().Health
	monitor := health.NewMonitor(&healthCfg, tracker, rules, nil)
	monitor.SetSystemInfo(coordinator.SystemInfo)

	serverCfg := config.DefaultConfig().Server
	core := server.NewServer(&serverCfg, coordinator, monitor, store, rules, nil, server.VersionInfo{Version: "integration"})

	ts := httptest.NewServer(core.Routes())
	t.Cleanup(ts.Close)
	return ts, store
}

func post(t *testing.T, ts *httptest.Server, path, author, body string) (*http.Response, []byte) {
	t.Helper()
	req, err := http.NewRequest(http.MethodPost, ts.URL+path, bytes.NewReader([]byte(body)))
	if err != nil {
		t.Fatalf("building request: %v", err)
	}
	if author != "" {
		req.Header.Set(server.AuthorHeader, author)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()
	payload, _ := io.ReadAll(resp.Body)
	return resp, payload
}

func get(t *testing.T, ts *httptest.Server, path string) (*http.Response, []byte) {
	t.Helper()
	resp, err := http.Get(ts.URL + path)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()
	payload, _ := io.ReadAll(resp.Body)
	return resp, payload
}

const compliantTrade = `{"action_type":"trade","agent":"trader-1","parameters":{"human_approved":true,"size":0.05,"stop_loss":0.02}}`

// TestGovernanceLifecycle drives the full containment lifecycle over HTTP:
// validation, isolation, emergency halt, four-eyes resume, and audit.
func TestGovernanceLifecycle(t *testing.T) {
	ts, _ := startCore(t)

	// A compliant trade passes.
	resp, payload := post(t, ts, "/validate", "", compliantTrade)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("validate status = %d: %s", resp.StatusCode, payload)
	}
	var decision policy.Decision
	if err := json.Unmarshal(payload, &decision); err != nil {
		t.Fatalf("decoding decision: %v", err)
	}
	if !decision.Approved || decision.ComplianceScore != 1.0 {
		t.Fatalf("decision = %+v, want approved with score 1.0", decision)
	}

	// An unapproved oversized trade is rejected but still answered 200.
	resp, payload = post(t, ts, "/validate", "",
		`{"action_type":"trade","agent":"trader-1","parameters":{"human_approved":false,"size":0.50}}`)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("validate status = %d: %s", resp.StatusCode, payload)
	}
	if err := json.Unmarshal(payload, &decision); err != nil {
		t.Fatalf("decoding decision: %v", err)
	}
	if decision.Approved {
		t.Fatal("non-compliant trade was approved")
	}
	if len(decision.Violations) != 3 {
		t.Fatalf("violations = %d, want 3", len(decision.Violations))
	}

	// Isolation refuses the agent without evaluation.
	resp, payload = post(t, ts, "/control/isolate/trader-1", "alice", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("isolate status = %d: %s", resp.StatusCode, payload)
	}
	resp, _ = post(t, ts, "/validate", "", compliantTrade)
	if resp.StatusCode != http.StatusLocked {
		t.Fatalf("isolated validate status = %d, want 423", resp.StatusCode)
	}
	resp, payload = post(t, ts, "/control/restore/trader-1", "alice", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("restore status = %d: %s", resp.StatusCode, payload)
	}

	// Emergency halt overrides everything.
	resp, payload = post(t, ts, "/control/halt", "alice", `{"reason":"incident"}`)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("halt status = %d: %s", resp.StatusCode, payload)
	}
	resp, _ = post(t, ts, "/validate", "", compliantTrade)
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("halted validate status = %d, want 503", resp.StatusCode)
	}

	// The halting author may not resume.
	resp, _ = post(t, ts, "/control/resume", "alice", "")
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("same-author resume status = %d, want 409", resp.StatusCode)
	}
	resp, _ = post(t, ts, "/control/resume", "bob", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("resume status = %d", resp.StatusCode)
	}
	resp, _ = post(t, ts, "/validate", "", compliantTrade)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("post-resume validate status = %d, want 200", resp.StatusCode)
	}

	// Everything above left an audit trail.
	resp, payload = get(t, ts, "/audit?category=containment")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("audit status = %d", resp.StatusCode)
	}
	var audit struct {
		Entries []*state.AuditEntry `json:"entries"`
	}
	if err := json.Unmarshal(payload, &audit); err != nil {
		t.Fatalf("decoding audit: %v", err)
	}
	if len(audit.Entries) < 4 {
		t.Fatalf("containment audit entries = %d, want at least 4", len(audit.Entries))
	}
}

// TestHaltSurvivesRestart verifies that a halt persisted by one coordinator
// is recovered by a fresh one over the same store.
func TestHaltSurvivesRestart(t *testing.T) {
	ts, store := startCore(t)

	resp, _ := post(t, ts, "/control/halt", "alice", `{"reason":"incident"}`)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("halt status = %d", resp.StatusCode)
	}

	// A second coordinator over the same store sees the halt.
	fresh := governance.NewCoordinator(nil, nil, store, health.NewTracker(nil), nil)
	if err := fresh.RecoverState(context.Background()); err != nil {
		t.Fatalf("recovering state: %v", err)
	}
	halted, reason, _ := fresh.Halted()
	if !halted || reason != "incident" {
		t.Fatalf("recovered halt = %v %q, want true %q", halted, reason, "incident")
	}
}

// TestStateRollbackOverHTTP drives the revision history through the API.
func TestStateRollbackOverHTTP(t *testing.T) {
	ts, store := startCore(t)
	ctx := context.Background()

	for i := 1; i <= 3; i++ {
		if _, err := store.Put(ctx, "agent:trader-1:limits", []byte(fmt.Sprintf(`{"max":%d}`, i)), "tester"); err != nil {
			t.Fatalf("seeding store: %v", err)
		}
	}

	resp, payload := post(t, ts, "/state/agent:trader-1:limits/rollback", "alice", `{"revision":1}`)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("rollback status = %d: %s", resp.StatusCode, payload)
	}
	var record state.Record
	if err := json.Unmarshal(payload, &record); err != nil {
		t.Fatalf("decoding record: %v", err)
	}
	if record.Revision != 4 || record.RollbackOf != 1 {
		t.Fatalf("record = rev %d rollback_of %d, want rev 4 of 1", record.Revision, record.RollbackOf)
	}
	if string(record.Value) != `{"max":1}` {
		t.Fatalf("value = %s, want the revision 1 value", record.Value)
	}

	resp, payload = get(t, ts, "/state/agent:trader-1:limits/history")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("history status = %d", resp.StatusCode)
	}
	var history struct {
		Revisions []*state.Record `json:"revisions"`
	}
	if err := json.Unmarshal(payload, &history); err != nil {
		t.Fatalf("decoding history: %v", err)
	}
	if len(history.Revisions) != 4 {
		t.Fatalf("history length = %d, want 4", len(history.Revisions))
	}
}
