package governance

import (
	"errors"
	"fmt"
	"time"
)

// ErrSameAuthor is returned when a resume is attempted by the same author
// who issued the halt. A halt must be reviewed by a second pair of hands.
var ErrSameAuthor = errors.New("resume requires a different author than the halt")

// ErrAuthorRequired is returned when a containment operation is attempted
// without an author identity.
var ErrAuthorRequired = errors.New("author is required for containment operations")

// SystemHaltedError indicates the system is emergency halted and refuses
// all validations until resumed.
type SystemHaltedError struct {
	Reason string
	Since  time.Time
}

func (e *SystemHaltedError) Error() string {
	return fmt.Sprintf("system halted since %s: %s",
		e.Since.Format(time.RFC3339), e.Reason)
}

// NewSystemHaltedError creates a new SystemHaltedError.
func NewSystemHaltedError(reason string, since time.Time) *SystemHaltedError {
	return &SystemHaltedError{Reason: reason, Since: since}
}

// AgentIsolatedError indicates the acting agent is isolated and its actions
// are refused without evaluation.
type AgentIsolatedError struct {
	Agent string
	Since time.Time
}

func (e *AgentIsolatedError) Error() string {
	return fmt.Sprintf("agent %q isolated since %s", e.Agent, e.Since.Format(time.RFC3339))
}

// NewAgentIsolatedError creates a new AgentIsolatedError.
func NewAgentIsolatedError(agent string, since time.Time) *AgentIsolatedError {
	return &AgentIsolatedError{Agent: agent, Since: since}
}

// NotIsolatedError indicates a restore was attempted on an agent that is
// not isolated.
type NotIsolatedError struct {
	Agent string
}

func (e *NotIsolatedError) Error() string {
	return fmt.Sprintf("agent %q is not isolated", e.Agent)
}

// CooldownError indicates a restore was attempted before the isolation
// cooldown elapsed.
type CooldownError struct {
	Agent     string
	Remaining time.Duration
}

func (e *CooldownError) Error() string {
	return fmt.Sprintf("agent %q still cooling down, %s remaining",
		e.Agent, e.Remaining.Round(time.Second))
}
