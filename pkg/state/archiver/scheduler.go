package archiver

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/robfig/cron/v3"
)

// Scheduler runs the archiver on a cron schedule (e.g. nightly at 3 AM).
type Scheduler struct {
	archiver *Archiver
	schedule string
	cron     *cron.Cron
	mu       sync.Mutex
	logger   *slog.Logger
	running  bool
}

// NewScheduler creates a new archival scheduler. The schedule is a standard
// five-field cron expression; an empty schedule disables the scheduler.
func NewScheduler(archiver *Archiver, schedule string) *Scheduler {
	return &Scheduler{
		archiver: archiver,
		schedule: schedule,
		cron:     cron.New(),
		logger:   slog.Default().With("component", "state.archiver.scheduler"),
	}
}

// Start begins scheduled archival. The scheduler stops itself when ctx is
// cancelled.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.schedule == "" {
		s.logger.Info("archive schedule not configured, skipping scheduler")
		return nil
	}

	if _, err := cron.ParseStandard(s.schedule); err != nil {
		return fmt.Errorf("invalid cron schedule %q: %w", s.schedule, err)
	}

	if _, err := s.cron.AddFunc(s.schedule, func() {
		s.runArchival(ctx)
	}); err != nil {
		return fmt.Errorf("failed to schedule archival: %w", err)
	}

	s.cron.Start()
	s.running = true

	s.logger.Info("archival scheduler started",
		"schedule", s.schedule,
		"retention_days", s.archiver.config.RetentionDays,
	)

	go func() {
		<-ctx.Done()
		s.Stop()
	}()

	return nil
}

func (s *Scheduler) runArchival(ctx context.Context) {
	s.logger.Info("starting scheduled audit archival")

	archived, err := s.archiver.Archive(ctx)
	if err != nil {
		s.logger.Error("scheduled archival failed", "error", err)
		return
	}

	if archived > 0 {
		s.logger.Info("scheduled archival completed", "archived_count", archived)
	} else {
		s.logger.Debug("scheduled archival completed, no entries archived")
	}
}

// Stop stops the scheduler and waits for any running job to complete.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cron != nil && s.running {
		ctx := s.cron.Stop()
		<-ctx.Done()
		s.running = false
		s.logger.Info("archival scheduler stopped")
	}
}

// IsRunning reports whether the scheduler is running.
func (s *Scheduler) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}
