package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/merchantry/fulfillment-api/internal/model"
	"github.com/merchantry/fulfillment-api/internal/repository"
	apperrors "github.com/merchantry/fulfillment-api/pkg/errors"
	"github.com/merchantry/fulfillment-api/pkg/logger"
	"github.com/merchantry/fulfillment-api/pkg/metrics"
)

const defaultBatchSize = 10

// backoffLadder is the fixed retry delay per attempt index; attempts
// beyond the ladder reuse the last entry.
var backoffLadder = []time.Duration{
	1 * time.Second,
	5 * time.Second,
	15 * time.Second,
}

// Handler processes one claimed job. Returning an error marked terminal
// (apperrors.AppError with Terminal set) fails the job immediately;
// any other error schedules a retry until attempts run out.
type Handler func(ctx context.Context, job *model.Job) error

type Config struct {
	BatchSize int
}

// Service is the polling job processor. Processing is at-least-once:
// a handler may observe the same payload twice after a crash between
// side effect and ack, so handlers must tolerate replays.
type Service struct {
	repo      repository.JobRepository
	logger    *logger.Logger
	metrics   *metrics.Metrics
	batchSize int

	mu       sync.RWMutex
	handlers map[model.JobType]Handler

	// inFlight coalesces overlapping ProcessBatch calls into a no-op.
	inFlight atomic.Bool

	stopOnce sync.Once
	stopCh   chan struct{}
}

func NewService(repo repository.JobRepository, cfg Config, log *logger.Logger, m *metrics.Metrics) *Service {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = defaultBatchSize
	}
	return &Service{
		repo:      repo,
		logger:    log,
		metrics:   m,
		batchSize: cfg.BatchSize,
		handlers:  make(map[model.JobType]Handler),
		stopCh:    make(chan struct{}),
	}
}

// Register binds a handler to a job type. Jobs of unregistered types
// fail terminally when claimed.
func (s *Service) Register(jobType model.JobType, handler Handler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handlers[jobType] = handler
}

// EnqueueOptions tunes a single enqueue.
type EnqueueOptions struct {
	ScheduledAt time.Time
	MaxAttempts int
}

// Enqueue creates a job. The payload is marshalled once here; a payload
// that cannot marshal is a caller bug surfaced immediately.
func (s *Service) Enqueue(ctx context.Context, jobType model.JobType, payload interface{}, priority model.JobPriority, opts *EnqueueOptions) (uuid.UUID, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return uuid.Nil, fmt.Errorf("failed to marshal job payload: %w", err)
	}

	job := &model.Job{
		JobType:  jobType,
		Payload:  raw,
		Priority: priority,
	}
	if opts != nil {
		job.ScheduledAt = opts.ScheduledAt
		job.MaxAttempts = opts.MaxAttempts
	}

	if err := s.repo.Enqueue(ctx, job); err != nil {
		return uuid.Nil, err
	}

	s.logger.Debug("job enqueued",
		"job_id", job.ID.String(),
		"job_type", string(jobType),
		"priority", string(job.Priority))
	return job.ID, nil
}

// ProcessBatch claims and processes one batch. Safe to call
// concurrently: a second call while one is in flight returns
// immediately without touching the queue.
func (s *Service) ProcessBatch(ctx context.Context) error {
	if !s.inFlight.CompareAndSwap(false, true) {
		return nil
	}
	defer s.inFlight.Store(false)

	timer := prometheus.NewTimer(s.metrics.BatchLatency)
	defer timer.ObserveDuration()

	jobs, err := s.repo.ClaimBatch(ctx, s.batchSize)
	if err != nil {
		s.metrics.DatabaseOperations.WithLabelValues("claim_batch", "error").Inc()
		return fmt.Errorf("failed to claim batch: %w", err)
	}
	s.metrics.DatabaseOperations.WithLabelValues("claim_batch", "success").Inc()

	sortForDispatch(jobs)
	for _, job := range jobs {
		s.processJob(ctx, job)
	}

	s.observeQueueDepth(ctx)
	return nil
}

// sortForDispatch orders a claimed batch for execution: urgent before
// high before medium before low, oldest first within a priority. The
// claim query's ORDER BY follows the same rule; sorting again here
// keeps dispatch order correct even if the store returns rows loosely.
func sortForDispatch(jobs []*model.Job) {
	sort.SliceStable(jobs, func(i, j int) bool {
		return dispatchBefore(jobs[i], jobs[j])
	})
}

func dispatchBefore(a, b *model.Job) bool {
	if a.Priority.Rank() != b.Priority.Rank() {
		return a.Priority.Rank() < b.Priority.Rank()
	}
	return a.CreatedAt.Before(b.CreatedAt)
}

// observeQueueDepth refreshes the backlog gauge. Purely informational;
// a count failure never fails the batch.
func (s *Service) observeQueueDepth(ctx context.Context) {
	depth, err := s.repo.CountBacklog(ctx)
	if err != nil {
		s.logger.Debug("failed to count job backlog", "error", err.Error())
		return
	}
	s.metrics.QueueDepth.Set(float64(depth))
}

// processJob runs one handler and settles the job. A panicking or
// erroring handler never aborts the rest of the batch.
func (s *Service) processJob(ctx context.Context, job *model.Job) {
	handler := s.handlerFor(job.JobType)

	var handlerErr error
	if handler == nil {
		handlerErr = apperrors.NewBadRequest(fmt.Sprintf("no handler registered for job type %s", job.JobType), nil)
	} else {
		handlerErr = s.invoke(ctx, handler, job)
	}

	if handlerErr == nil {
		if err := s.repo.MarkCompleted(ctx, job.ID); err != nil {
			s.logger.Error(err, "failed to mark job completed", "job_id", job.ID.String())
			return
		}
		s.metrics.JobsProcessed.WithLabelValues(string(job.JobType)).Inc()
		return
	}

	attempts := job.Attempts + 1
	terminal := apperrors.IsTerminal(handlerErr)

	if terminal || attempts >= job.MaxAttempts {
		if err := s.repo.MarkFailed(ctx, job.ID, attempts, handlerErr.Error()); err != nil {
			s.logger.Error(err, "failed to mark job failed", "job_id", job.ID.String())
			return
		}
		s.metrics.JobsFailed.WithLabelValues(string(job.JobType)).Inc()
		s.logger.Error(handlerErr, "job failed permanently",
			"job_id", job.ID.String(),
			"job_type", string(job.JobType),
			"attempts", attempts,
			"terminal", terminal)
		return
	}

	retryAt := time.Now().Add(BackoffFor(attempts))
	if err := s.repo.MarkRetrying(ctx, job.ID, attempts, handlerErr.Error(), retryAt); err != nil {
		s.logger.Error(err, "failed to mark job retrying", "job_id", job.ID.String())
		return
	}
	s.metrics.JobsRetried.WithLabelValues(string(job.JobType)).Inc()
	s.logger.Warn("job retry scheduled",
		"job_id", job.ID.String(),
		"job_type", string(job.JobType),
		"attempts", attempts,
		"retry_at", retryAt.Format(time.RFC3339))
}

// invoke runs a handler with panic containment.
func (s *Service) invoke(ctx context.Context, handler Handler, job *model.Job) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("job handler panicked: %v", p)
		}
	}()
	return handler(ctx, job)
}

func (s *Service) handlerFor(jobType model.JobType) Handler {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.handlers[jobType]
}

// BackoffFor returns the retry delay after the given attempt count
// (1-based), clamped to the last ladder entry.
func BackoffFor(attempts int) time.Duration {
	idx := attempts - 1
	if idx < 0 {
		idx = 0
	}
	if idx >= len(backoffLadder) {
		idx = len(backoffLadder) - 1
	}
	return backoffLadder[idx]
}

// Start runs one immediate pass and then polls on the interval until
// the context is cancelled or Stop is called. An in-flight batch always
// completes; cancellation is never mid-job.
func (s *Service) Start(ctx context.Context, interval time.Duration) {
	s.logger.Info("starting job processor", "interval", interval.String(), "batch_size", s.batchSize)

	if err := s.ProcessBatch(ctx); err != nil {
		s.logger.Error(err, "failed to process batch")
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("job processor shutting down")
			return
		case <-s.stopCh:
			s.logger.Info("job processor stopped")
			return
		case <-ticker.C:
			if err := s.ProcessBatch(ctx); err != nil {
				s.logger.Error(err, "failed to process batch")
			}
		}
	}
}

// Stop halts the polling loop. Idempotent.
func (s *Service) Stop() {
	s.stopOnce.Do(func() {
		close(s.stopCh)
	})
}

// Stats aggregates queue counts over the trailing window.
func (s *Service) Stats(ctx context.Context, timeRange time.Duration) (*model.JobStats, error) {
	return s.repo.Stats(ctx, time.Now().Add(-timeRange))
}

// CleanupOldJobs purges terminal jobs older than the retention window.
func (s *Service) CleanupOldJobs(ctx context.Context, olderThan time.Duration) (int64, error) {
	deleted, err := s.repo.CleanupOld(ctx, time.Now().Add(-olderThan))
	if err != nil {
		return 0, err
	}
	if deleted > 0 {
		s.logger.Info("cleaned up old jobs", "deleted", deleted)
	}
	return deleted, nil
}

// ListFailed lists terminally failed jobs for manual triage.
func (s *Service) ListFailed(ctx context.Context, limit int) ([]*model.Job, error) {
	if limit <= 0 {
		limit = 50
	}
	return s.repo.ListFailed(ctx, limit)
}

// RetryJob resurrects a failed job with a fresh attempt budget.
func (s *Service) RetryJob(ctx context.Context, id uuid.UUID) error {
	if err := s.repo.RetryJob(ctx, id); err != nil {
		return err
	}
	s.logger.Info("failed job rescheduled", "job_id", id.String())
	return nil
}
