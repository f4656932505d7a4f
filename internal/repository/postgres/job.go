package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/merchantry/fulfillment-api/internal/model"
	"github.com/merchantry/fulfillment-api/internal/repository"
)

type jobRepository struct {
	BaseRepository
}

func NewJobRepository(base BaseRepository) repository.JobRepository {
	return &jobRepository{base}
}

func (r *jobRepository) Enqueue(ctx context.Context, job *model.Job) error {
	if job == nil {
		return fmt.Errorf("job cannot be nil")
	}
	if job.Payload == nil {
		return fmt.Errorf("job payload cannot be nil")
	}

	query := `
		INSERT INTO job_queue (
			id, job_type, payload, status, priority, attempts, max_attempts,
			scheduled_at, created_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10
		)
	`
	now := time.Now()
	if job.ID == uuid.Nil {
		job.ID = uuid.New()
	}
	if job.ScheduledAt.IsZero() {
		job.ScheduledAt = now
	}
	if job.MaxAttempts <= 0 {
		job.MaxAttempts = 3
	}
	if job.Priority == "" {
		job.Priority = model.JobPriorityMedium
	}
	job.Status = model.JobStatusPending
	job.CreatedAt = now
	job.UpdatedAt = now

	_, err := r.db.ExecContext(ctx, query,
		job.ID,
		job.JobType,
		job.Payload,
		job.Status,
		job.Priority,
		job.Attempts,
		job.MaxAttempts,
		job.ScheduledAt,
		job.CreatedAt,
		job.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to enqueue job: %w", err)
	}
	return nil
}

// ClaimBatch selects due jobs in priority-then-FIFO order and flips them
// to processing inside one transaction. FOR UPDATE SKIP LOCKED keeps two
// worker instances from claiming the same rows.
func (r *jobRepository) ClaimBatch(ctx context.Context, limit int) ([]*model.Job, error) {
	var jobs []*model.Job

	err := r.WithTx(ctx, func(tx *sqlx.Tx) error {
		query := `
			SELECT id, job_type, payload, status, priority, attempts, max_attempts,
			       scheduled_at, error_message, created_at, updated_at, started_at, completed_at
			FROM job_queue
			WHERE status IN ('pending', 'retrying')
			AND scheduled_at <= NOW()
			ORDER BY
				CASE priority
					WHEN 'urgent' THEN 0
					WHEN 'high' THEN 1
					WHEN 'medium' THEN 2
					ELSE 3
				END,
				created_at ASC
			FOR UPDATE SKIP LOCKED
			LIMIT $1
		`
		if err := tx.SelectContext(ctx, &jobs, query, limit); err != nil {
			return fmt.Errorf("failed to select due jobs: %w", err)
		}
		if len(jobs) == 0 {
			return nil
		}

		ids := make([]uuid.UUID, 0, len(jobs))
		for _, j := range jobs {
			ids = append(ids, j.ID)
		}
		claim, args, err := sqlx.In(`
			UPDATE job_queue
			SET status = 'processing', started_at = NOW(), updated_at = NOW()
			WHERE id IN (?)
		`, ids)
		if err != nil {
			return fmt.Errorf("failed to build claim query: %w", err)
		}
		if _, err := tx.ExecContext(ctx, tx.Rebind(claim), args...); err != nil {
			return fmt.Errorf("failed to claim jobs: %w", err)
		}

		now := time.Now()
		for _, j := range jobs {
			j.Status = model.JobStatusProcessing
			j.StartedAt = &now
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return jobs, nil
}

func (r *jobRepository) MarkCompleted(ctx context.Context, id uuid.UUID) error {
	query := `
		UPDATE job_queue
		SET status = 'completed', completed_at = NOW(), updated_at = NOW()
		WHERE id = $1
	`
	_, err := r.db.ExecContext(ctx, query, id)
	return err
}

func (r *jobRepository) MarkFailed(ctx context.Context, id uuid.UUID, attempts int, errMsg string) error {
	query := `
		UPDATE job_queue
		SET status = 'failed', attempts = $2, error_message = $3,
			completed_at = NOW(), updated_at = NOW()
		WHERE id = $1
	`
	_, err := r.db.ExecContext(ctx, query, id, attempts, errMsg)
	return err
}

func (r *jobRepository) MarkRetrying(ctx context.Context, id uuid.UUID, attempts int, errMsg string, retryAt time.Time) error {
	query := `
		UPDATE job_queue
		SET status = 'retrying', attempts = $2, error_message = $3,
			scheduled_at = $4, updated_at = NOW()
		WHERE id = $1
	`
	_, err := r.db.ExecContext(ctx, query, id, attempts, errMsg, retryAt)
	return err
}

// RetryJob resurrects a terminally failed job: attempts reset to zero
// and the job reschedules immediately.
func (r *jobRepository) RetryJob(ctx context.Context, id uuid.UUID) error {
	query := `
		UPDATE job_queue
		SET status = 'pending', attempts = 0, error_message = NULL,
			scheduled_at = NOW(), started_at = NULL, completed_at = NULL, updated_at = NOW()
		WHERE id = $1 AND status = 'failed'
	`
	result, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("failed to retry job: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return fmt.Errorf("job %s is not in failed status", id)
	}
	return nil
}

func (r *jobRepository) Get(ctx context.Context, id uuid.UUID) (*model.Job, error) {
	query := `SELECT * FROM job_queue WHERE id = $1`
	var job model.Job
	err := r.db.GetContext(ctx, &job, query, id)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get job: %w", err)
	}
	return &job, nil
}

func (r *jobRepository) Stats(ctx context.Context, since time.Time) (*model.JobStats, error) {
	query := `
		SELECT status, job_type, priority, COUNT(*) AS count
		FROM job_queue
		WHERE created_at >= $1
		GROUP BY status, job_type, priority
	`
	rows, err := r.db.QueryxContext(ctx, query, since)
	if err != nil {
		return nil, fmt.Errorf("failed to query job stats: %w", err)
	}
	defer rows.Close()

	stats := &model.JobStats{
		ByStatus:   make(map[model.JobStatus]int),
		ByType:     make(map[model.JobType]int),
		ByPriority: make(map[model.JobPriority]int),
	}
	for rows.Next() {
		var (
			status   model.JobStatus
			jobType  model.JobType
			priority model.JobPriority
			count    int
		)
		if err := rows.Scan(&status, &jobType, &priority, &count); err != nil {
			return nil, fmt.Errorf("failed to scan job stats: %w", err)
		}
		stats.ByStatus[status] += count
		stats.ByType[jobType] += count
		stats.ByPriority[priority] += count
		stats.Total += count
	}
	return stats, rows.Err()
}

func (r *jobRepository) CountBacklog(ctx context.Context) (int64, error) {
	var count int64
	query := `SELECT COUNT(*) FROM job_queue WHERE status IN ('pending', 'retrying')`
	if err := r.db.GetContext(ctx, &count, query); err != nil {
		return 0, fmt.Errorf("failed to count job backlog: %w", err)
	}
	return count, nil
}

func (r *jobRepository) ListFailed(ctx context.Context, limit int) ([]*model.Job, error) {
	query := `
		SELECT * FROM job_queue
		WHERE status = 'failed'
		ORDER BY updated_at DESC
		LIMIT $1
	`
	var jobs []*model.Job
	err := r.db.SelectContext(ctx, &jobs, query, limit)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return jobs, err
}

// CleanupOld purges terminal jobs past the retention window.
func (r *jobRepository) CleanupOld(ctx context.Context, olderThan time.Time) (int64, error) {
	query := `
		DELETE FROM job_queue
		WHERE status IN ('completed', 'failed')
		AND updated_at < $1
	`
	result, err := r.db.ExecContext(ctx, query, olderThan)
	if err != nil {
		return 0, fmt.Errorf("failed to cleanup old jobs: %w", err)
	}
	return result.RowsAffected()
}
