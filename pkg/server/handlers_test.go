package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"mercator-hq/ganymede/pkg/config"
	"mercator-hq/ganymede/pkg/governance"
	"mercator-hq/ganymede/pkg/health"
	"mercator-hq/ganymede/pkg/policy"
	"mercator-hq/ganymede/pkg/state"
)

const serverTestRules = `version: 1
rules:
  - name: max_position_size
    category: trading_safety
    kind: numeric_threshold
    severity: high
    parameter: size
    threshold: 0.10
    comparison: lte
    applies_to: [trade]
    message: position size exceeds the maximum
  - name: require_stop_loss
    category: trading_safety
    kind: required_field
    severity: medium
    parameter: stop_loss
    applies_to: [trade]
    message: trades must carry a stop loss
`

type testHarness struct {
	server      *Server
	coordinator *governance.Coordinator
	store       state.Store
	rules       *policy.RuleSet
}

func newTestHarness(t *testing.T) *testHarness {
	t.Helper()

	path := filepath.Join(t.TempDir(), "rules.yaml")
	if err := os.WriteFile(path, []byte(serverTestRules), 0o644); err != nil {
		t.Fatalf("writing rules: %v", err)
	}
	rules, err := policy.LoadRuleSet(path)
	if err != nil {
		t.Fatalf("loading rules: %v", err)
	}

	store := state.NewMemoryStore()
	tracker := health.NewTracker(health.DefaultTrackerConfig())
	engine := policy.NewEngine(rules, nil)

	coordinator := governance.NewCoordinator(&governance.Config{
		CriticalWindow:    time.Minute,
		CriticalThreshold: 100,
		RestoreCooldown:   0,
	}, engine, store, tracker, nil)

	healthCfg := config.DefaultConfig().Health
	monitor := health.NewMonitor(&healthCfg, tracker, rules, nil)
	monitor.SetSystemInfo(coordinator.SystemInfo)

	serverCfg := config.DefaultConfig().Server
	srv := NewServer(&serverCfg, coordinator, monitor, store, rules, nil, VersionInfo{Version: "test"})

	return &testHarness{server: srv, coordinator: coordinator, store: store, rules: rules}
}

func (h *testHarness) do(t *testing.T, method, target, author, body string) *httptest.ResponseRecorder {
	t.Helper()
	var reader *strings.Reader
	if body == "" {
		reader = strings.NewReader("")
	} else {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, reader)
	if author != "" {
		req.Header.Set(AuthorHeader, author)
	}
	rec := httptest.NewRecorder()
	h.server.Routes().ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var body map[string]interface{}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decoding response %q: %v", rec.Body.String(), err)
	}
	return body
}

func errorCode(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	body := decodeBody(t, rec)
	detail, ok := body["error"].(map[string]interface{})
	if !ok {
		t.Fatalf("response %q carries no error envelope", rec.Body.String())
	}
	code, _ := detail["code"].(string)
	return code
}

func TestServer_ValidateApproved(t *testing.T) {
	h := newTestHarness(t)

	rec := h.do(t, http.MethodPost, "/validate", "",
		`{"action_type":"trade","agent":"trader-1","parameters":{"size":0.05,"stop_loss":0.02}}`)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", rec.Code, rec.Body.String())
	}
	body := decodeBody(t, rec)
	if approved, _ := body["approved"].(bool); !approved {
		t.Errorf("approved = false, want true: %s", rec.Body.String())
	}
	if body["compliance_score"].(float64) != 1.0 {
		t.Errorf("compliance_score = %v, want 1.0", body["compliance_score"])
	}
}

func TestServer_ValidateRejected(t *testing.T) {
	h := newTestHarness(t)

	rec := h.do(t, http.MethodPost, "/validate", "",
		`{"action_type":"trade","agent":"trader-1","parameters":{"size":0.50,"stop_loss":0.02}}`)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", rec.Code, rec.Body.String())
	}
	body := decodeBody(t, rec)
	if approved, _ := body["approved"].(bool); approved {
		t.Errorf("approved = true, want false")
	}
}

func TestServer_ValidateMalformedJSON(t *testing.T) {
	h := newTestHarness(t)

	rec := h.do(t, http.MethodPost, "/validate", "", `{not json`)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
	body := decodeBody(t, rec)
	if approved, _ := body["approved"].(bool); approved {
		t.Errorf("malformed input must not be approved")
	}
}

func TestServer_ValidateMissingAgent(t *testing.T) {
	h := newTestHarness(t)

	rec := h.do(t, http.MethodPost, "/validate", "", `{"action_type":"trade"}`)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
	if code := errorCode(t, rec); code != "agent_required" {
		t.Errorf("error code = %q, want agent_required", code)
	}
}

func TestServer_HaltBlocksValidation(t *testing.T) {
	h := newTestHarness(t)

	rec := h.do(t, http.MethodPost, "/control/halt", "alice", `{"reason":"drill"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("halt status = %d, want 200: %s", rec.Code, rec.Body.String())
	}

	rec = h.do(t, http.MethodPost, "/validate", "",
		`{"action_type":"trade","agent":"trader-1","parameters":{"size":0.05,"stop_loss":0.02}}`)
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("validate status = %d, want 503", rec.Code)
	}
	if code := errorCode(t, rec); code != "system_halted" {
		t.Errorf("error code = %q, want system_halted", code)
	}
}

func TestServer_HaltRequiresAuthor(t *testing.T) {
	h := newTestHarness(t)

	rec := h.do(t, http.MethodPost, "/control/halt", "", `{"reason":"drill"}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestServer_ResumeRejectsSameAuthor(t *testing.T) {
	h := newTestHarness(t)

	h.do(t, http.MethodPost, "/control/halt", "alice", "")

	rec := h.do(t, http.MethodPost, "/control/resume", "alice", "")
	if rec.Code != http.StatusConflict {
		t.Fatalf("same-author resume status = %d, want 409", rec.Code)
	}
	if code := errorCode(t, rec); code != "same_author" {
		t.Errorf("error code = %q, want same_author", code)
	}

	rec = h.do(t, http.MethodPost, "/control/resume", "bob", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("resume status = %d, want 200: %s", rec.Code, rec.Body.String())
	}

	rec = h.do(t, http.MethodPost, "/validate", "",
		`{"action_type":"trade","agent":"trader-1","parameters":{"size":0.05,"stop_loss":0.02}}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("post-resume validate status = %d, want 200", rec.Code)
	}
}

func TestServer_IsolatedAgentRefused(t *testing.T) {
	h := newTestHarness(t)

	rec := h.do(t, http.MethodPost, "/control/isolate/trader-1", "alice", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("isolate status = %d, want 200: %s", rec.Code, rec.Body.String())
	}

	rec = h.do(t, http.MethodPost, "/validate", "",
		`{"action_type":"trade","agent":"trader-1","parameters":{"size":0.05,"stop_loss":0.02}}`)
	if rec.Code != http.StatusLocked {
		t.Fatalf("isolated validate status = %d, want 423", rec.Code)
	}
	if code := errorCode(t, rec); code != "agent_isolated" {
		t.Errorf("error code = %q, want agent_isolated", code)
	}

	// Other agents are unaffected.
	rec = h.do(t, http.MethodPost, "/validate", "",
		`{"action_type":"trade","agent":"trader-2","parameters":{"size":0.05,"stop_loss":0.02}}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("unrelated agent status = %d, want 200", rec.Code)
	}

	rec = h.do(t, http.MethodPost, "/control/restore/trader-1", "alice", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("restore status = %d, want 200: %s", rec.Code, rec.Body.String())
	}
}

func TestServer_IsolateRequiresAuthor(t *testing.T) {
	h := newTestHarness(t)

	rec := h.do(t, http.MethodPost, "/control/isolate/trader-1", "", "")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
	if code := errorCode(t, rec); code != "author_required" {
		t.Errorf("error code = %q, want author_required", code)
	}
}

func TestServer_RestoreNotIsolated(t *testing.T) {
	h := newTestHarness(t)

	rec := h.do(t, http.MethodPost, "/control/restore/trader-1", "alice", "")
	if rec.Code != http.StatusConflict {
		t.Fatalf("status = %d, want 409", rec.Code)
	}
	if code := errorCode(t, rec); code != "not_isolated" {
		t.Errorf("error code = %q, want not_isolated", code)
	}
}

func TestServer_Status(t *testing.T) {
	h := newTestHarness(t)

	rec := h.do(t, http.MethodGet, "/control/status", "", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	body := decodeBody(t, rec)
	if halted, _ := body["halted"].(bool); halted {
		t.Errorf("fresh system reports halted")
	}

	h.do(t, http.MethodPost, "/control/halt", "alice", `{"reason":"drill"}`)

	rec = h.do(t, http.MethodGet, "/control/status", "", "")
	body = decodeBody(t, rec)
	if halted, _ := body["halted"].(bool); !halted {
		t.Errorf("halted system reports running")
	}
	if body["reason"] != "drill" {
		t.Errorf("reason = %v, want drill", body["reason"])
	}
}

func TestServer_StateGetAndHistory(t *testing.T) {
	h := newTestHarness(t)
	ctx := context.Background()

	for _, v := range []string{`"one"`, `"two"`, `"three"`} {
		if _, err := h.store.Put(ctx, "limits", []byte(v), "tester"); err != nil {
			t.Fatalf("seeding store: %v", err)
		}
	}

	rec := h.do(t, http.MethodGet, "/state/limits", "", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("get status = %d, want 200", rec.Code)
	}
	body := decodeBody(t, rec)
	if body["revision"].(float64) != 3 {
		t.Errorf("revision = %v, want 3", body["revision"])
	}

	rec = h.do(t, http.MethodGet, "/state/limits?revision=1", "", "")
	body = decodeBody(t, rec)
	if body["revision"].(float64) != 1 {
		t.Errorf("revision = %v, want 1", body["revision"])
	}

	rec = h.do(t, http.MethodGet, "/state/limits/history", "", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("history status = %d, want 200", rec.Code)
	}
	body = decodeBody(t, rec)
	revisions, ok := body["revisions"].([]interface{})
	if !ok || len(revisions) != 3 {
		t.Errorf("history length = %d, want 3", len(revisions))
	}
}

func TestServer_StateGetMissing(t *testing.T) {
	h := newTestHarness(t)

	rec := h.do(t, http.MethodGet, "/state/absent", "", "")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
	if code := errorCode(t, rec); code != "not_found" {
		t.Errorf("error code = %q, want not_found", code)
	}
}

func TestServer_StateRollback(t *testing.T) {
	h := newTestHarness(t)
	ctx := context.Background()

	for _, v := range []string{`"one"`, `"two"`} {
		if _, err := h.store.Put(ctx, "limits", []byte(v), "tester"); err != nil {
			t.Fatalf("seeding store: %v", err)
		}
	}

	rec := h.do(t, http.MethodPost, "/state/limits/rollback", "alice", `{"revision":1}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("rollback status = %d, want 200: %s", rec.Code, rec.Body.String())
	}
	body := decodeBody(t, rec)
	if body["revision"].(float64) != 3 {
		t.Errorf("rollback revision = %v, want 3", body["revision"])
	}
	if body["rollback_of"].(float64) != 1 {
		t.Errorf("rollback_of = %v, want 1", body["rollback_of"])
	}
}

func TestServer_StateRollbackRequiresAuthor(t *testing.T) {
	h := newTestHarness(t)

	rec := h.do(t, http.MethodPost, "/state/limits/rollback", "", `{"revision":1}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestServer_StateRollbackBadRevision(t *testing.T) {
	h := newTestHarness(t)

	rec := h.do(t, http.MethodPost, "/state/limits/rollback", "alice", `{"revision":0}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestServer_Audit(t *testing.T) {
	h := newTestHarness(t)

	h.do(t, http.MethodPost, "/validate", "",
		`{"action_type":"trade","agent":"trader-1","parameters":{"size":0.05,"stop_loss":0.02}}`)

	rec := h.do(t, http.MethodGet, "/audit?category=validation", "", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	body := decodeBody(t, rec)
	entries, ok := body["entries"].([]interface{})
	if !ok || len(entries) == 0 {
		t.Errorf("audit trail is empty after a validation")
	}
}

func TestServer_AuditBadLimit(t *testing.T) {
	h := newTestHarness(t)

	rec := h.do(t, http.MethodGet, "/audit?limit=zero", "", "")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestServer_Rules(t *testing.T) {
	h := newTestHarness(t)

	rec := h.do(t, http.MethodGet, "/rules", "", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	body := decodeBody(t, rec)
	if body["checksum"] != h.rules.Checksum() {
		t.Errorf("checksum = %v, want %s", body["checksum"], h.rules.Checksum())
	}
	rules, ok := body["rules"].([]interface{})
	if !ok || len(rules) != 2 {
		t.Errorf("rules length = %d, want 2", len(rules))
	}
}

func TestServer_Version(t *testing.T) {
	h := newTestHarness(t)

	rec := h.do(t, http.MethodGet, "/version", "", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	body := decodeBody(t, rec)
	if body["version"] != "test" {
		t.Errorf("version = %v, want test", body["version"])
	}
}

func TestServer_Liveness(t *testing.T) {
	h := newTestHarness(t)

	rec := h.do(t, http.MethodGet, "/health", "", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
}

func TestServer_AgentHeartbeat(t *testing.T) {
	h := newTestHarness(t)

	rec := h.do(t, http.MethodPost, "/health/agents/idler/heartbeat", "", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	body := decodeBody(t, rec)
	if body["agent"] != "idler" {
		t.Errorf("agent = %v, want idler", body["agent"])
	}

	// The heartbeat registers the agent with the health tracker.
	rec = h.do(t, http.MethodGet, "/health/agents/idler", "", "")
	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want 200 after heartbeat", rec.Code)
	}
}

func TestServer_ReadinessWhileHalted(t *testing.T) {
	h := newTestHarness(t)

	rec := h.do(t, http.MethodGet, "/ready", "", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200 before halt", rec.Code)
	}

	rec = h.do(t, http.MethodPost, "/control/halt", "alice", `{"reason":"drill"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("halt status = %d, want 200", rec.Code)
	}

	rec = h.do(t, http.MethodGet, "/ready", "", "")
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503 while halted", rec.Code)
	}

	rec = h.do(t, http.MethodPost, "/control/resume", "bob", `{"reason":"drill over"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("resume status = %d, want 200", rec.Code)
	}
	rec = h.do(t, http.MethodGet, "/ready", "", "")
	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want 200 after resume", rec.Code)
	}
}
