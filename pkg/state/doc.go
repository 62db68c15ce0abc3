// Package state implements the append-only revisioned key-value store and
// the governance audit log.
//
// Every write appends a new revision; nothing is updated in place. Each
// key's revisions run contiguously from 1, so the full history of any key
// can always be replayed. Rollback is itself an append: it copies an
// earlier revision's value forward rather than rewinding history.
//
// Two backends are provided. SQLiteStore is the durable backend, selectable
// between the CGO and pure-Go drivers. MemoryStore backs tests and
// ephemeral runs.
package state
