package archiver

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"mercator-hq/ganymede/pkg/state"
)

// AuditSource is the slice of the state store the archiver needs: reading
// and removing audit entries older than a cutoff.
type AuditSource interface {
	AuditTrail(ctx context.Context, query *state.AuditQuery) ([]*state.AuditEntry, error)
	DeleteAuditBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// Config contains archiver configuration.
type Config struct {
	// RetentionDays is how long audit entries stay in the live store.
	// 0 disables archival entirely.
	RetentionDays int

	// ArchivePath is the directory archive files are written to.
	ArchivePath string
}

// DefaultConfig returns the default archiver configuration.
func DefaultConfig() *Config {
	return &Config{
		RetentionDays: 90,
		ArchivePath:   "data/archives/",
	}
}

// Archiver exports expired audit entries to timestamped JSON files and
// removes them from the live store. Export happens before deletion, so an
// export failure leaves the live store untouched.
type Archiver struct {
	config *Config
	source AuditSource
	logger *slog.Logger
}

// NewArchiver creates a new audit archiver.
func NewArchiver(config *Config, source AuditSource) *Archiver {
	if config == nil {
		config = DefaultConfig()
	}
	return &Archiver{
		config: config,
		source: source,
		logger: slog.Default().With("component", "state.archiver"),
	}
}

// Archive runs one archival cycle and returns the number of entries moved.
func (a *Archiver) Archive(ctx context.Context) (int, error) {
	if a.config.RetentionDays <= 0 {
		a.logger.Debug("retention disabled, skipping archival")
		return 0, nil
	}

	cutoff := time.Now().UTC().AddDate(0, 0, -a.config.RetentionDays)

	entries, err := a.source.AuditTrail(ctx, &state.AuditQuery{Before: cutoff, Limit: 1 << 30})
	if err != nil {
		return 0, fmt.Errorf("collecting expired audit entries: %w", err)
	}
	if len(entries) == 0 {
		a.logger.Debug("no audit entries past retention")
		return 0, nil
	}

	if err := a.writeArchive(entries, cutoff); err != nil {
		return 0, err
	}

	if _, err := a.source.DeleteAuditBefore(ctx, cutoff); err != nil {
		return 0, fmt.Errorf("removing archived audit entries: %w", err)
	}

	a.logger.Info("audit entries archived",
		"count", len(entries),
		"cutoff", cutoff.Format(time.RFC3339),
	)
	return len(entries), nil
}

func (a *Archiver) writeArchive(entries []*state.AuditEntry, cutoff time.Time) error {
	if err := os.MkdirAll(a.config.ArchivePath, 0o755); err != nil {
		return fmt.Errorf("creating archive directory: %w", err)
	}

	name := fmt.Sprintf("audit-%s.json", time.Now().UTC().Format("20060102T150405Z"))
	path := filepath.Join(a.config.ArchivePath, name)

	data, err := json.MarshalIndent(map[string]interface{}{
		"archived_at": time.Now().UTC(),
		"cutoff":      cutoff,
		"entries":     entries,
	}, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding archive: %w", err)
	}

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing archive %s: %w", path, err)
	}
	return nil
}
