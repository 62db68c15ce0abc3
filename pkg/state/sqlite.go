package state

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
	_ "modernc.org/sqlite"
)

// Driver names accepted by SQLiteConfig.
const (
	// DriverCgo is the mattn/go-sqlite3 CGO driver.
	DriverCgo = "cgo"

	// DriverPure is the modernc.org/sqlite pure-Go driver. Use it where
	// CGO is unavailable (cross-compiled or scratch images).
	DriverPure = "pure"
)

// SQLiteConfig contains configuration for the SQLite state store.
type SQLiteConfig struct {
	// Path is the database file path.
	Path string

	// Driver selects the SQLite driver ("cgo" or "pure").
	// Default: "cgo"
	Driver string

	// MaxOpenConns is the maximum number of open connections to the database.
	// Default: 10
	MaxOpenConns int

	// MaxIdleConns is the maximum number of idle connections.
	// Default: 5
	MaxIdleConns int

	// WALMode enables Write-Ahead Logging mode for better concurrency.
	// Default: true
	WALMode bool

	// BusyTimeout is the duration to wait when the database is locked.
	// Default: 5 seconds
	BusyTimeout time.Duration
}

// DefaultSQLiteConfig returns the default SQLite configuration.
func DefaultSQLiteConfig() *SQLiteConfig {
	return &SQLiteConfig{
		Path:         "data/governance.db",
		Driver:       DriverCgo,
		MaxOpenConns: 10,
		MaxIdleConns: 5,
		WALMode:      true,
		BusyTimeout:  5 * time.Second,
	}
}

// SQLiteStore implements the Store interface using SQLite.
type SQLiteStore struct {
	db     *sql.DB
	config *SQLiteConfig
	logger *slog.Logger

	// writeMu serializes appends so a compare-and-append loser surfaces
	// as a ConflictError rather than a unique constraint violation.
	writeMu sync.Mutex
}

// NewSQLiteStore creates a new SQLite state store.
// It initializes the database schema and enables WAL mode if configured.
func NewSQLiteStore(config *SQLiteConfig) (*SQLiteStore, error) {
	if config == nil {
		config = DefaultSQLiteConfig()
	}

	logger := slog.Default().With("component", "state.sqlite")

	var (
		db  *sql.DB
		err error
	)
	switch config.Driver {
	case DriverPure:
		// The pure driver takes its pragmas through the DSN.
		dsn := fmt.Sprintf("%s?_journal_mode=%s&_busy_timeout=%d&_synchronous=NORMAL",
			config.Path, journalMode(config.WALMode), config.BusyTimeout.Milliseconds())
		db, err = sql.Open("sqlite", dsn)
	case DriverCgo, "":
		db, err = sql.Open("sqlite3", config.Path)
	default:
		return nil, NewStorageError("sqlite", "open",
			fmt.Errorf("unknown driver %q", config.Driver))
	}
	if err != nil {
		return nil, NewStorageError("sqlite", "open", err)
	}

	db.SetMaxOpenConns(config.MaxOpenConns)
	db.SetMaxIdleConns(config.MaxIdleConns)

	s := &SQLiteStore{
		db:     db,
		config: config,
		logger: logger,
	}

	if err := s.initialize(); err != nil {
		db.Close()
		return nil, err
	}

	logger.Info("SQLite state store initialized",
		"path", config.Path,
		"driver", config.Driver,
		"wal_mode", config.WALMode,
	)

	return s, nil
}

func journalMode(wal bool) string {
	if wal {
		return "WAL"
	}
	return "DELETE"
}

// initialize sets up the database schema and enables WAL mode.
func (s *SQLiteStore) initialize() error {
	// The CGO driver takes pragmas as statements after open.
	if s.config.Driver != DriverPure {
		if s.config.WALMode {
			if _, err := s.db.Exec("PRAGMA journal_mode=WAL;"); err != nil {
				return NewStorageError("sqlite", "enable_wal", err)
			}
			s.logger.Debug("WAL mode enabled")
		}
		busyTimeoutMs := s.config.BusyTimeout.Milliseconds()
		if _, err := s.db.Exec(fmt.Sprintf("PRAGMA busy_timeout=%d;", busyTimeoutMs)); err != nil {
			return NewStorageError("sqlite", "set_busy_timeout", err)
		}
	}

	if _, err := s.db.Exec(Schema); err != nil {
		return NewStorageError("sqlite", "create_schema", err)
	}
	s.logger.Debug("database schema created")

	if _, err := s.db.Exec(InsertSchemaVersion, SchemaVersion); err != nil {
		return NewStorageError("sqlite", "insert_schema_version", err)
	}

	var version int
	err := s.db.QueryRow(GetSchemaVersion).Scan(&version)
	if err != nil && err != sql.ErrNoRows {
		return NewStorageError("sqlite", "get_schema_version", err)
	}
	if version != SchemaVersion {
		return NewStorageError("sqlite", "schema_version_mismatch",
			fmt.Errorf("expected schema version %d, got %d", SchemaVersion, version))
	}
	s.logger.Debug("schema version verified", "version", version)

	return nil
}

// Put appends a new revision of key.
func (s *SQLiteStore) Put(ctx context.Context, key string, value []byte, author string) (int64, error) {
	return s.append(ctx, key, value, author, -1, 0)
}

// PutIfRevision appends a new revision only if the current revision equals
// expected.
func (s *SQLiteStore) PutIfRevision(ctx context.Context, key string, value []byte, author string, expected int64) (int64, error) {
	return s.append(ctx, key, value, author, expected, 0)
}

// append inserts the next revision of key inside a single transaction.
// expected of -1 means unconditional.
func (s *SQLiteStore) append(ctx context.Context, key string, value []byte, author string, expected, rollbackOf int64) (int64, error) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, NewStorageError("sqlite", "begin", err)
	}
	defer tx.Rollback()

	var current int64
	err = tx.QueryRowContext(ctx,
		"SELECT COALESCE(MAX(revision), 0) FROM records WHERE key = ?", key,
	).Scan(&current)
	if err != nil {
		return 0, NewStorageError("sqlite", "max_revision", err)
	}

	if expected >= 0 && current != expected {
		return 0, NewConflictError(key, expected, current)
	}

	revision := current + 1
	_, err = tx.ExecContext(ctx,
		`INSERT INTO records (key, revision, value, author, created_at, rollback_of)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		key, revision, value, author, time.Now().UTC().UnixNano(), rollbackOf,
	)
	if err != nil {
		return 0, NewStorageError("sqlite", "insert_record", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, NewStorageError("sqlite", "commit", err)
	}
	return revision, nil
}

// Get returns the latest revision of key.
func (s *SQLiteStore) Get(ctx context.Context, key string) (*Record, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT key, revision, value, author, created_at, rollback_of
		 FROM records WHERE key = ? ORDER BY revision DESC LIMIT 1`, key)
	record, err := scanRecord(row)
	if err == sql.ErrNoRows {
		return nil, NewNotFoundError(key)
	}
	if err != nil {
		return nil, NewStorageError("sqlite", "get", err)
	}
	return record, nil
}

// GetRevision returns a specific revision of key.
func (s *SQLiteStore) GetRevision(ctx context.Context, key string, revision int64) (*Record, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT key, revision, value, author, created_at, rollback_of
		 FROM records WHERE key = ? AND revision = ?`, key, revision)
	record, err := scanRecord(row)
	if err == sql.ErrNoRows {
		return nil, NewRevisionNotFoundError(key, revision)
	}
	if err != nil {
		return nil, NewStorageError("sqlite", "get_revision", err)
	}
	return record, nil
}

// History returns every revision of key in ascending revision order.
func (s *SQLiteStore) History(ctx context.Context, key string) ([]*Record, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT key, revision, value, author, created_at, rollback_of
		 FROM records WHERE key = ? ORDER BY revision ASC`, key)
	if err != nil {
		return nil, NewStorageError("sqlite", "history", err)
	}
	defer rows.Close()

	var records []*Record
	for rows.Next() {
		record, err := scanRecord(rows)
		if err != nil {
			return nil, NewStorageError("sqlite", "scan", err)
		}
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, NewStorageError("sqlite", "history", err)
	}
	if len(records) == 0 {
		return nil, NewNotFoundError(key)
	}

	// Revisions must run 1..n with no gaps. A gap means rows were lost
	// or tampered with.
	for i, record := range records {
		if record.Revision != int64(i+1) {
			return nil, NewIntegrityError(key,
				fmt.Sprintf("revision sequence gap: position %d holds revision %d", i+1, record.Revision))
		}
	}

	return records, nil
}

// RollbackTo appends a new revision copying the value of an earlier one.
func (s *SQLiteStore) RollbackTo(ctx context.Context, key string, revision int64, author string) (*Record, error) {
	target, err := s.GetRevision(ctx, key, revision)
	if err != nil {
		return nil, err
	}

	newRev, err := s.append(ctx, key, target.Value, author, -1, revision)
	if err != nil {
		return nil, err
	}

	return s.GetRevision(ctx, key, newRev)
}

// AppendAudit appends an event to the audit log.
func (s *SQLiteStore) AppendAudit(ctx context.Context, entry *AuditEntry) error {
	if entry.ID == "" {
		entry.ID = uuid.New().String()
	}
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO audit_log (id, created_at, category, agent, action, detail, payload)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		entry.ID, entry.Timestamp.UnixNano(), entry.Category, entry.Agent,
		entry.Action, entry.Detail, entry.Payload,
	)
	if err != nil {
		return NewStorageError("sqlite", "append_audit", err)
	}
	return nil
}

// AuditTrail returns audit entries matching the query, newest first.
func (s *SQLiteStore) AuditTrail(ctx context.Context, query *AuditQuery) ([]*AuditEntry, error) {
	if query == nil {
		query = &AuditQuery{}
	}

	sqlQuery := `SELECT id, created_at, category, agent, action, detail, payload FROM audit_log`
	var conditions []string
	var args []interface{}

	if query.Category != "" {
		conditions = append(conditions, "category = ?")
		args = append(args, query.Category)
	}
	if query.Agent != "" {
		conditions = append(conditions, "agent = ?")
		args = append(args, query.Agent)
	}
	if !query.After.IsZero() {
		conditions = append(conditions, "created_at >= ?")
		args = append(args, query.After.UnixNano())
	}
	if !query.Before.IsZero() {
		conditions = append(conditions, "created_at < ?")
		args = append(args, query.Before.UnixNano())
	}

	for i, condition := range conditions {
		if i == 0 {
			sqlQuery += " WHERE " + condition
		} else {
			sqlQuery += " AND " + condition
		}
	}

	limit := 100
	if query.Limit > 0 {
		limit = query.Limit
	}
	sqlQuery += fmt.Sprintf(" ORDER BY created_at DESC LIMIT %d", limit)

	rows, err := s.db.QueryContext(ctx, sqlQuery, args...)
	if err != nil {
		return nil, NewStorageError("sqlite", "audit_trail", err)
	}
	defer rows.Close()

	entries := []*AuditEntry{}
	for rows.Next() {
		var entry AuditEntry
		var createdAt int64
		var agent, detail sql.NullString
		if err := rows.Scan(&entry.ID, &createdAt, &entry.Category, &agent,
			&entry.Action, &detail, &entry.Payload); err != nil {
			return nil, NewStorageError("sqlite", "scan", err)
		}
		entry.Timestamp = time.Unix(0, createdAt).UTC()
		entry.Agent = agent.String
		entry.Detail = detail.String
		entries = append(entries, &entry)
	}
	if err := rows.Err(); err != nil {
		return nil, NewStorageError("sqlite", "audit_trail", err)
	}

	return entries, nil
}

// DeleteAuditBefore removes audit entries older than the cutoff and returns
// the number removed. The archiver exports entries before calling this.
func (s *SQLiteStore) DeleteAuditBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	result, err := s.db.ExecContext(ctx,
		"DELETE FROM audit_log WHERE created_at < ?", cutoff.UnixNano())
	if err != nil {
		return 0, NewStorageError("sqlite", "delete_audit", err)
	}
	count, err := result.RowsAffected()
	if err != nil {
		return 0, NewStorageError("sqlite", "delete_audit", err)
	}
	return count, nil
}

// Close releases resources held by the store.
func (s *SQLiteStore) Close() error {
	if err := s.db.Close(); err != nil {
		return NewStorageError("sqlite", "close", err)
	}
	s.logger.Info("SQLite state store closed")
	return nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanRecord(row rowScanner) (*Record, error) {
	var record Record
	var createdAt int64
	err := row.Scan(&record.Key, &record.Revision, &record.Value,
		&record.Author, &createdAt, &record.RollbackOf)
	if err != nil {
		return nil, err
	}
	record.Timestamp = time.Unix(0, createdAt).UTC()
	return &record, nil
}
