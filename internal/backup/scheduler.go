package backup

import (
	"context"
	"log/slog"
	"time"
)

// Scheduler takes an initial snapshot at start and repeats on a fixed
// interval. A failed scheduled snapshot is logged and the schedule
// continues undisturbed; there is no retry or backoff.
type Scheduler struct {
	manager  *Manager
	interval time.Duration
	logger   *slog.Logger
}

// NewScheduler creates a snapshot scheduler with the given interval.
func NewScheduler(manager *Manager, interval time.Duration, logger *slog.Logger) *Scheduler {
	return &Scheduler{
		manager:  manager,
		interval: interval,
		logger:   logger.With(slog.String("component", "backup_scheduler")),
	}
}

// Run blocks until ctx is cancelled, snapshotting immediately and then once
// per interval. It always returns nil: snapshot failures never stop the
// schedule, and cancellation is the normal way out.
func (s *Scheduler) Run(ctx context.Context) error {
	s.snapshot(ctx, "initial")

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.InfoContext(ctx, "backup scheduler stopping")
			return nil
		case <-ticker.C:
			s.snapshot(ctx, "scheduled")
		}
	}
}

func (s *Scheduler) snapshot(ctx context.Context, kind string) {
	id, err := s.manager.Snapshot(ctx)
	if err != nil {
		s.logger.ErrorContext(ctx, "snapshot failed",
			slog.String("kind", kind), slog.String("error", err.Error()))
		return
	}
	s.logger.InfoContext(ctx, "snapshot completed",
		slog.String("kind", kind), slog.String("snapshot", id))
}
