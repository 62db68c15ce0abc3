package health

import (
	"encoding/json"
	"net/http"
	"time"
)

// LivenessHandler reports process liveness. It always answers 200 while the
// process can serve requests at all.
func (m *Monitor) LivenessHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"status":    "ok",
			"timestamp": time.Now().UTC(),
		})
	}
}

// ReadinessHandler reports whether the system can do useful work: not
// halted, all dependencies reachable, and the rule artifact intact. Not
// ready answers 503 with the full snapshot for diagnosis.
func (m *Monitor) ReadinessHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		snapshot := m.Snapshot()

		// The snapshot carries the halt flag as of the last tick; the
		// live check keeps readiness honest between ticks.
		halted := snapshot.EmergencyHalted
		if m.systemInfo != nil {
			if _, h := m.systemInfo(); h {
				halted = true
			}
		}

		ready := !halted && !snapshot.Drifted
		for _, d := range snapshot.Dependencies {
			if !d.Up {
				ready = false
			}
		}

		status := http.StatusOK
		label := "ready"
		if !ready {
			status = http.StatusServiceUnavailable
			label = "unavailable"
		}
		writeJSON(w, status, map[string]interface{}{
			"status":   label,
			"snapshot": snapshot,
		})
	}
}

// SnapshotHandler serves the full system health snapshot.
func (m *Monitor) SnapshotHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, m.Snapshot())
	}
}

// HeartbeatHandler records an explicit heartbeat from the agent named by
// the {name} path segment and answers with the agent's fresh evaluation.
// Idle agents use this to stay registered without doing work.
func (m *Monitor) HeartbeatHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		name := r.PathValue("name")
		if name == "" {
			writeJSON(w, http.StatusBadRequest, map[string]interface{}{
				"error": "agent name is required",
			})
			return
		}

		m.tracker.Heartbeat(name)
		writeJSON(w, http.StatusOK, m.tracker.Evaluate(name, time.Now()))
	}
}

// AgentHandler serves the health of a single agent, named by the {name}
// path segment. Unknown agents answer 404.
func (m *Monitor) AgentHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		name := r.PathValue("name")

		if h, ok := m.Snapshot().Agents[name]; ok {
			writeJSON(w, http.StatusOK, h)
			return
		}

		// Agents seen since the last tick have tracker state but no
		// snapshot entry yet.
		for _, known := range m.tracker.Agents() {
			if known == name {
				writeJSON(w, http.StatusOK, m.tracker.Evaluate(name, time.Now()))
				return
			}
		}

		writeJSON(w, http.StatusNotFound, map[string]interface{}{
			"error": "unknown agent",
			"agent": name,
		})
	}
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}
