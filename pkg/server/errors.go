package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"mercator-hq/ganymede/pkg/governance"
	"mercator-hq/ganymede/pkg/policy"
	"mercator-hq/ganymede/pkg/state"
)

// errorBody is the JSON error envelope.
type errorBody struct {
	Error errorDetail `json:"error"`
}

type errorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(errorBody{Error: errorDetail{Code: code, Message: message}})
}

// writeDomainError maps governance, state, and policy errors onto HTTP
// status codes and the error envelope.
func writeDomainError(w http.ResponseWriter, err error) {
	var (
		haltedErr    *governance.SystemHaltedError
		isolatedErr  *governance.AgentIsolatedError
		notIsolated  *governance.NotIsolatedError
		cooldownErr  *governance.CooldownError
		conflictErr  *state.ConflictError
		notFoundErr  *state.NotFoundError
		integrityErr *state.IntegrityError
		policyErr    *policy.IntegrityError
	)

	switch {
	case errors.As(err, &haltedErr):
		writeError(w, http.StatusServiceUnavailable, "system_halted", err.Error())
	case errors.As(err, &isolatedErr):
		writeError(w, http.StatusLocked, "agent_isolated", err.Error())
	case errors.Is(err, governance.ErrSameAuthor):
		writeError(w, http.StatusConflict, "same_author", err.Error())
	case errors.Is(err, governance.ErrAuthorRequired):
		writeError(w, http.StatusBadRequest, "author_required", err.Error())
	case errors.As(err, &notIsolated):
		writeError(w, http.StatusConflict, "not_isolated", err.Error())
	case errors.As(err, &cooldownErr):
		writeError(w, http.StatusConflict, "cooldown_active", err.Error())
	case errors.As(err, &conflictErr):
		writeError(w, http.StatusConflict, "revision_conflict", err.Error())
	case errors.As(err, &notFoundErr):
		writeError(w, http.StatusNotFound, "not_found", err.Error())
	case errors.As(err, &integrityErr), errors.As(err, &policyErr):
		writeError(w, http.StatusInternalServerError, "integrity_failure", err.Error())
	default:
		writeError(w, http.StatusInternalServerError, "internal", err.Error())
	}
}
