package state

// SchemaVersion is the current database schema version.
const SchemaVersion = 1

// Schema contains the SQL statements to create the state database schema.
const Schema = `
-- Revisioned key-value records. Append-only: rows are inserted, never
-- updated or deleted. Timestamps are unix nanoseconds for portability
-- across drivers.
CREATE TABLE IF NOT EXISTS records (
    key TEXT NOT NULL,
    revision INTEGER NOT NULL,
    value BLOB NOT NULL,
    author TEXT NOT NULL,
    created_at INTEGER NOT NULL,
    rollback_of INTEGER NOT NULL DEFAULT 0,
    PRIMARY KEY (key, revision)
);

-- Append-only audit log of governance events.
CREATE TABLE IF NOT EXISTS audit_log (
    id TEXT PRIMARY KEY,
    created_at INTEGER NOT NULL,
    category TEXT NOT NULL,
    agent TEXT,
    action TEXT NOT NULL,
    detail TEXT,
    payload BLOB
);

-- Schema version table
CREATE TABLE IF NOT EXISTS schema_version (
    version INTEGER PRIMARY KEY,
    applied_at TIMESTAMP NOT NULL
);

-- Indexes for common queries
CREATE INDEX IF NOT EXISTS idx_records_key ON records(key);
CREATE INDEX IF NOT EXISTS idx_audit_created_at ON audit_log(created_at);
CREATE INDEX IF NOT EXISTS idx_audit_category ON audit_log(category);
CREATE INDEX IF NOT EXISTS idx_audit_agent ON audit_log(agent);
`

// InsertSchemaVersion inserts the schema version into the schema_version table.
const InsertSchemaVersion = `
INSERT INTO schema_version (version, applied_at)
VALUES (?, datetime('now'))
ON CONFLICT(version) DO NOTHING;
`

// GetSchemaVersion retrieves the current schema version from the database.
const GetSchemaVersion = `
SELECT version FROM schema_version ORDER BY version DESC LIMIT 1;
`
