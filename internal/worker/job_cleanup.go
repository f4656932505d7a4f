package worker

import (
	"context"
	"time"

	"github.com/merchantry/fulfillment-api/internal/service/queue"
	"github.com/merchantry/fulfillment-api/pkg/logger"
)

// JobCleanupWorker periodically purges completed and failed jobs older
// than the retention window so the queue table stays small.
type JobCleanupWorker struct {
	queue           *queue.Service
	retentionDays   int
	cleanupInterval time.Duration
	logger          *logger.Logger
}

func NewJobCleanupWorker(q *queue.Service, retentionDays int, cleanupInterval time.Duration, log *logger.Logger) *JobCleanupWorker {
	if retentionDays <= 0 {
		retentionDays = 30
	}
	if cleanupInterval <= 0 {
		cleanupInterval = time.Hour
	}
	return &JobCleanupWorker{
		queue:           q,
		retentionDays:   retentionDays,
		cleanupInterval: cleanupInterval,
		logger:          log,
	}
}

func (w *JobCleanupWorker) Start(ctx context.Context) {
	ticker := time.NewTicker(w.cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := w.cleanup(ctx); err != nil {
				w.logger.Error(err, "job cleanup pass failed")
			}
		}
	}
}

func (w *JobCleanupWorker) cleanup(ctx context.Context) error {
	retention := time.Duration(w.retentionDays) * 24 * time.Hour
	rows, err := w.queue.CleanupOldJobs(ctx, retention)
	if err != nil {
		return err
	}
	if rows > 0 {
		w.logger.Info("purged finished jobs", "count", rows, "retention_days", w.retentionDays)
	}
	return nil
}
