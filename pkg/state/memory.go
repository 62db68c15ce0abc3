package state

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStore is an in-memory Store used for tests and ephemeral runs.
// All data is lost on Close.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[string][]*Record
	audit   []*AuditEntry
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		records: make(map[string][]*Record),
	}
}

// Put appends a new revision of key.
func (m *MemoryStore) Put(ctx context.Context, key string, value []byte, author string) (int64, error) {
	return m.append(key, value, author, -1, 0)
}

// PutIfRevision appends a new revision only if the current revision equals
// expected.
func (m *MemoryStore) PutIfRevision(ctx context.Context, key string, value []byte, author string, expected int64) (int64, error) {
	return m.append(key, value, author, expected, 0)
}

func (m *MemoryStore) append(key string, value []byte, author string, expected, rollbackOf int64) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	current := int64(len(m.records[key]))
	if expected >= 0 && current != expected {
		return 0, NewConflictError(key, expected, current)
	}

	copied := make([]byte, len(value))
	copy(copied, value)

	revision := current + 1
	m.records[key] = append(m.records[key], &Record{
		Key:        key,
		Revision:   revision,
		Value:      copied,
		Author:     author,
		Timestamp:  time.Now().UTC(),
		RollbackOf: rollbackOf,
	})
	return revision, nil
}

// Get returns the latest revision of key.
func (m *MemoryStore) Get(ctx context.Context, key string) (*Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	history := m.records[key]
	if len(history) == 0 {
		return nil, NewNotFoundError(key)
	}
	return cloneRecord(history[len(history)-1]), nil
}

// GetRevision returns a specific revision of key.
func (m *MemoryStore) GetRevision(ctx context.Context, key string, revision int64) (*Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	history := m.records[key]
	if revision < 1 || revision > int64(len(history)) {
		return nil, NewRevisionNotFoundError(key, revision)
	}
	return cloneRecord(history[revision-1]), nil
}

// History returns every revision of key in ascending revision order.
func (m *MemoryStore) History(ctx context.Context, key string) ([]*Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	history := m.records[key]
	if len(history) == 0 {
		return nil, NewNotFoundError(key)
	}

	out := make([]*Record, len(history))
	for i, record := range history {
		if record.Revision != int64(i+1) {
			return nil, NewIntegrityError(key,
				fmt.Sprintf("revision sequence gap: position %d holds revision %d", i+1, record.Revision))
		}
		out[i] = cloneRecord(record)
	}
	return out, nil
}

// RollbackTo appends a new revision copying the value of an earlier one.
func (m *MemoryStore) RollbackTo(ctx context.Context, key string, revision int64, author string) (*Record, error) {
	target, err := m.GetRevision(ctx, key, revision)
	if err != nil {
		return nil, err
	}

	newRev, err := m.append(key, target.Value, author, -1, revision)
	if err != nil {
		return nil, err
	}
	return m.GetRevision(ctx, key, newRev)
}

// AppendAudit appends an event to the audit log.
func (m *MemoryStore) AppendAudit(ctx context.Context, entry *AuditEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if entry.ID == "" {
		entry.ID = uuid.New().String()
	}
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now().UTC()
	}
	copied := *entry
	m.audit = append(m.audit, &copied)
	return nil
}

// AuditTrail returns audit entries matching the query, newest first.
func (m *MemoryStore) AuditTrail(ctx context.Context, query *AuditQuery) ([]*AuditEntry, error) {
	if query == nil {
		query = &AuditQuery{}
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	limit := 100
	if query.Limit > 0 {
		limit = query.Limit
	}

	entries := []*AuditEntry{}
	for i := len(m.audit) - 1; i >= 0 && len(entries) < limit; i-- {
		entry := m.audit[i]
		if query.Category != "" && entry.Category != query.Category {
			continue
		}
		if query.Agent != "" && entry.Agent != query.Agent {
			continue
		}
		if !query.After.IsZero() && entry.Timestamp.Before(query.After) {
			continue
		}
		if !query.Before.IsZero() && !entry.Timestamp.Before(query.Before) {
			continue
		}
		copied := *entry
		entries = append(entries, &copied)
	}
	return entries, nil
}

// DeleteAuditBefore removes audit entries older than the cutoff and returns
// the number removed.
func (m *MemoryStore) DeleteAuditBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	kept := m.audit[:0]
	var removed int64
	for _, entry := range m.audit {
		if entry.Timestamp.Before(cutoff) {
			removed++
			continue
		}
		kept = append(kept, entry)
	}
	m.audit = kept
	return removed, nil
}

// Close releases the store's data.
func (m *MemoryStore) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records = make(map[string][]*Record)
	m.audit = nil
	return nil
}

func cloneRecord(record *Record) *Record {
	copied := *record
	copied.Value = make([]byte, len(record.Value))
	copy(copied.Value, record.Value)
	return &copied
}
