package state

import (
	"context"
	"time"
)

// Record is a single revision of a key. Records are append-only: a key's
// history only ever grows, and existing revisions are never modified.
type Record struct {
	// Key is the record's namespaced key ("agent:trader-1:decisions").
	Key string `json:"key"`

	// Revision is the per-key revision number, starting at 1 with no gaps.
	Revision int64 `json:"revision"`

	// Value is the opaque payload.
	Value []byte `json:"value"`

	// Author identifies who wrote the revision.
	Author string `json:"author"`

	// Timestamp is when the revision was appended.
	Timestamp time.Time `json:"timestamp"`

	// RollbackOf is the revision this record re-applies, 0 for normal writes.
	RollbackOf int64 `json:"rollback_of,omitempty"`
}

// AuditEntry is a single governance event in the append-only audit log.
type AuditEntry struct {
	// ID is a generated unique event identifier.
	ID string `json:"id"`

	// Timestamp is when the event occurred.
	Timestamp time.Time `json:"timestamp"`

	// Category groups the event ("validation", "containment", "health", "state").
	Category string `json:"category"`

	// Agent is the agent the event concerns, if any.
	Agent string `json:"agent,omitempty"`

	// Action names the event ("validate", "isolate", "halt", "rollback", ...).
	Action string `json:"action"`

	// Detail is a human-readable summary.
	Detail string `json:"detail,omitempty"`

	// Payload is the structured event body, if any.
	Payload []byte `json:"payload,omitempty"`
}

// AuditQuery filters audit trail reads.
type AuditQuery struct {
	// Category filters by event category when non-empty.
	Category string

	// Agent filters by agent when non-empty.
	Agent string

	// After includes only events at or after this time when non-zero.
	After time.Time

	// Before includes only events strictly before this time when non-zero.
	Before time.Time

	// Limit caps the number of entries returned. 0 means the default (100).
	Limit int
}

// Store is the append-only revisioned key-value store backing the
// governance core. All writes append a new revision; nothing is ever
// updated in place. Implementations must keep each key's revisions
// contiguous from 1.
type Store interface {
	// Put appends a new revision of key and returns its revision number.
	Put(ctx context.Context, key string, value []byte, author string) (int64, error)

	// PutIfRevision appends a new revision only if the key's current
	// revision equals expected (0 for "key must not exist"). Returns a
	// ConflictError when the expectation does not hold.
	PutIfRevision(ctx context.Context, key string, value []byte, author string, expected int64) (int64, error)

	// Get returns the latest revision of key, or a NotFoundError.
	Get(ctx context.Context, key string) (*Record, error)

	// GetRevision returns a specific revision of key, or a NotFoundError.
	GetRevision(ctx context.Context, key string, revision int64) (*Record, error)

	// History returns every revision of key in ascending revision order.
	// A gap in the revision sequence is an IntegrityError.
	History(ctx context.Context, key string) ([]*Record, error)

	// RollbackTo appends a new revision whose value is copied from the
	// given earlier revision. The history keeps growing; rollback never
	// deletes anything.
	RollbackTo(ctx context.Context, key string, revision int64, author string) (*Record, error)

	// AppendAudit appends an event to the audit log. A zero ID or
	// timestamp is filled in by the store.
	AppendAudit(ctx context.Context, entry *AuditEntry) error

	// AuditTrail returns audit entries matching the query, newest first.
	AuditTrail(ctx context.Context, query *AuditQuery) ([]*AuditEntry, error)

	// Close releases resources held by the store.
	Close() error
}
