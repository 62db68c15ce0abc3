package server

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"mercator-hq/ganymede/pkg/policy"
	"mercator-hq/ganymede/pkg/state"
)

// AuthorHeader carries the operator identity for containment and rollback
// operations.
const AuthorHeader = "X-Ganymede-Author"

// VersionInfo is the build information served at /version.
type VersionInfo struct {
	Version   string `json:"version"`
	Commit    string `json:"commit,omitempty"`
	BuildDate string `json:"build_date,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func (s *Server) handleValidate(w http.ResponseWriter, r *http.Request) {
	var action policy.Action
	if err := json.NewDecoder(r.Body).Decode(&action); err != nil {
		// Unparseable input is rejected as a critical violation, not
		// waved through.
		decision := policy.MalformedDecision("", "request body is not valid JSON")
		writeJSON(w, http.StatusBadRequest, decision)
		return
	}
	if action.Agent == "" {
		writeError(w, http.StatusBadRequest, "agent_required", "agent is required")
		return
	}
	if action.Timestamp.IsZero() {
		action.Timestamp = time.Now().UTC()
	}

	decision, err := s.coordinator.Validate(r.Context(), action)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, decision)
}

func (s *Server) handleIsolate(w http.ResponseWriter, r *http.Request) {
	agent := r.PathValue("agent")
	author := r.Header.Get(AuthorHeader)

	if err := s.coordinator.Isolate(r.Context(), agent, author); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"agent":    agent,
		"isolated": true,
	})
}

func (s *Server) handleRestore(w http.ResponseWriter, r *http.Request) {
	agent := r.PathValue("agent")
	author := r.Header.Get(AuthorHeader)

	if err := s.coordinator.Restore(r.Context(), agent, author); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"agent":    agent,
		"isolated": false,
	})
}

func (s *Server) handleHalt(w http.ResponseWriter, r *http.Request) {
	author := r.Header.Get(AuthorHeader)
	if author == "" {
		writeError(w, http.StatusBadRequest, "author_required",
			"halt requires the "+AuthorHeader+" header")
		return
	}

	var body struct {
		Reason string `json:"reason"`
	}
	// The body is optional; a halt with no reason still halts.
	_ = json.NewDecoder(r.Body).Decode(&body)
	if body.Reason == "" {
		body.Reason = "operator halt"
	}

	if err := s.coordinator.EmergencyHalt(r.Context(), body.Reason, author, "operator"); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"halted": true,
		"reason": body.Reason,
	})
}

func (s *Server) handleResume(w http.ResponseWriter, r *http.Request) {
	author := r.Header.Get(AuthorHeader)

	if err := s.coordinator.Resume(r.Context(), author); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"halted": false,
	})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	halted, reason, since := s.coordinator.Halted()
	body := map[string]interface{}{
		"halted":   halted,
		"isolated": s.coordinator.IsolatedAgents(),
	}
	if halted {
		body["reason"] = reason
		body["since"] = since
	}
	writeJSON(w, http.StatusOK, body)
}

func (s *Server) handleStateGet(w http.ResponseWriter, r *http.Request) {
	key := r.PathValue("key")

	if revStr := r.URL.Query().Get("revision"); revStr != "" {
		revision, err := strconv.ParseInt(revStr, 10, 64)
		if err != nil {
			writeError(w, http.StatusBadRequest, "bad_revision", "revision must be an integer")
			return
		}
		record, err := s.store.GetRevision(r.Context(), key, revision)
		if err != nil {
			writeDomainError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, record)
		return
	}

	record, err := s.store.Get(r.Context(), key)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, record)
}

func (s *Server) handleStateHistory(w http.ResponseWriter, r *http.Request) {
	key := r.PathValue("key")

	history, err := s.store.History(r.Context(), key)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"key":       key,
		"revisions": history,
	})
}

func (s *Server) handleStateRollback(w http.ResponseWriter, r *http.Request) {
	key := r.PathValue("key")
	author := r.Header.Get(AuthorHeader)
	if author == "" {
		writeError(w, http.StatusBadRequest, "author_required",
			"rollback requires the "+AuthorHeader+" header")
		return
	}

	var body struct {
		Revision int64 `json:"revision"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Revision < 1 {
		writeError(w, http.StatusBadRequest, "bad_revision",
			"body must carry a positive target revision")
		return
	}

	record, err := s.store.RollbackTo(r.Context(), key, body.Revision, author)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, record)
}

func (s *Server) handleAudit(w http.ResponseWriter, r *http.Request) {
	query := &state.AuditQuery{
		Category: r.URL.Query().Get("category"),
		Agent:    r.URL.Query().Get("agent"),
	}
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		limit, err := strconv.Atoi(limitStr)
		if err != nil || limit < 1 {
			writeError(w, http.StatusBadRequest, "bad_limit", "limit must be a positive integer")
			return
		}
		query.Limit = limit
	}

	entries, err := s.store.AuditTrail(r.Context(), query)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"entries": entries,
	})
}

func (s *Server) handleRules(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"checksum": s.rules.Checksum(),
		"rules":    s.rules.Rules(),
	})
}

func (s *Server) handleVersion(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.version)
}
