package jobs

import (
	"context"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"
)

// ArchiveStore is the slice of project persistence the sweep needs.
type ArchiveStore interface {
	HideClosedBefore(ctx context.Context, cutoff, at time.Time) ([]int64, error)
	PurgeHiddenBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// ArchiveSweeper hides projects that have been closed past the grace
// window, then permanently purges projects hidden past the retention
// window. Closed projects drop out of default listings on hide and out of
// the database on purge.
type ArchiveSweeper struct {
	store     ArchiveStore
	logger    *slog.Logger
	hideAfter time.Duration
	keepFor   time.Duration
	now       func() time.Time
}

// NewArchiveSweeper builds ArchiveSweeper instance.
func NewArchiveSweeper(store ArchiveStore, logger *slog.Logger, hideAfter, keepFor time.Duration) *ArchiveSweeper {
	return &ArchiveSweeper{store: store, logger: logger, hideAfter: hideAfter, keepFor: keepFor, now: time.Now}
}

// WithNow overrides the clock for deterministic tests.
func (s *ArchiveSweeper) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// Sweep runs one hide-then-purge pass.
func (s *ArchiveSweeper) Sweep(ctx context.Context) error {
	now := s.now()
	hidden, err := s.store.HideClosedBefore(ctx, now.Add(-s.hideAfter), now)
	if err != nil {
		return err
	}
	if len(hidden) > 0 {
		s.logger.Info("archived closed projects", slog.Int("count", len(hidden)), slog.Any("ids", hidden))
	}
	purged, err := s.store.PurgeHiddenBefore(ctx, now.Add(-s.keepFor))
	if err != nil {
		return err
	}
	if purged > 0 {
		s.logger.Info("purged archived projects", slog.Int64("count", purged))
	}
	return nil
}

// ProcessTask implements asynq.Handler for TaskTypeArchiveSweep.
func (s *ArchiveSweeper) ProcessTask(ctx context.Context, _ *asynq.Task) error {
	return s.Sweep(ctx)
}
