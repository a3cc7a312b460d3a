package worker

import (
	"context"
	"time"

	"github.com/nutriadmin/admin-api/internal/repository"
	"github.com/nutriadmin/admin-api/pkg/logger"
)

// OutboxCleanupWorker deletes processed events older than the retention
// window.
type OutboxCleanupWorker struct {
	repo      repository.OutboxRepository
	retention time.Duration
	interval  time.Duration
	logger    *logger.Logger
}

func NewOutboxCleanupWorker(repo repository.OutboxRepository, retention, interval time.Duration, log *logger.Logger) *OutboxCleanupWorker {
	return &OutboxCleanupWorker{
		repo:      repo,
		retention: retention,
		interval:  interval,
		logger:    log,
	}
}

func (w *OutboxCleanupWorker) Start(ctx context.Context) {
	if w.retention <= 0 {
		return
	}
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.Sweep(ctx, time.Now())
		}
	}
}

// Sweep removes events processed before now minus the retention window.
func (w *OutboxCleanupWorker) Sweep(ctx context.Context, now time.Time) int64 {
	deleted, err := w.repo.DeleteProcessedBefore(ctx, now.Add(-w.retention))
	if err != nil {
		w.logger.Error(err, "Failed to delete processed outbox events")
		return 0
	}
	if deleted > 0 {
		w.logger.Info("Deleted processed outbox events", "count", deleted)
	}
	return deleted
}
