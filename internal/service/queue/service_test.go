package queue

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/merchantry/fulfillment-api/internal/model"
	apperrors "github.com/merchantry/fulfillment-api/pkg/errors"
	"github.com/merchantry/fulfillment-api/pkg/logger"
	"github.com/merchantry/fulfillment-api/pkg/metrics"
)

// promauto registers against the default registry, so the package
// shares one Metrics across all tests.
var testMetrics = metrics.NewMetrics("test", "queue")

type settledJob struct {
	status   model.JobStatus
	attempts int
	errMsg   string
	retryAt  time.Time
}

type fakeJobRepo struct {
	enqueued []*model.Job
	claimed  []*model.Job
	claimErr error
	backlog  int64
	settled  map[uuid.UUID]settledJob
	retried  []uuid.UUID
}

func newFakeJobRepo(claimed ...*model.Job) *fakeJobRepo {
	return &fakeJobRepo{claimed: claimed, settled: map[uuid.UUID]settledJob{}}
}

func (f *fakeJobRepo) Enqueue(ctx context.Context, job *model.Job) error {
	job.ID = uuid.New()
	f.enqueued = append(f.enqueued, job)
	return nil
}

func (f *fakeJobRepo) ClaimBatch(ctx context.Context, limit int) ([]*model.Job, error) {
	if f.claimErr != nil {
		return nil, f.claimErr
	}
	if limit < len(f.claimed) {
		return f.claimed[:limit], nil
	}
	return f.claimed, nil
}

func (f *fakeJobRepo) MarkCompleted(ctx context.Context, id uuid.UUID) error {
	f.settled[id] = settledJob{status: model.JobStatusCompleted}
	return nil
}

func (f *fakeJobRepo) MarkFailed(ctx context.Context, id uuid.UUID, attempts int, errMsg string) error {
	f.settled[id] = settledJob{status: model.JobStatusFailed, attempts: attempts, errMsg: errMsg}
	return nil
}

func (f *fakeJobRepo) MarkRetrying(ctx context.Context, id uuid.UUID, attempts int, errMsg string, retryAt time.Time) error {
	f.settled[id] = settledJob{status: model.JobStatusRetrying, attempts: attempts, errMsg: errMsg, retryAt: retryAt}
	return nil
}

func (f *fakeJobRepo) RetryJob(ctx context.Context, id uuid.UUID) error {
	f.retried = append(f.retried, id)
	return nil
}

func (f *fakeJobRepo) Get(ctx context.Context, id uuid.UUID) (*model.Job, error) {
	return nil, nil
}

func (f *fakeJobRepo) Stats(ctx context.Context, since time.Time) (*model.JobStats, error) {
	return &model.JobStats{}, nil
}

func (f *fakeJobRepo) CountBacklog(ctx context.Context) (int64, error) {
	return f.backlog, nil
}

func (f *fakeJobRepo) ListFailed(ctx context.Context, limit int) ([]*model.Job, error) {
	return nil, nil
}

func (f *fakeJobRepo) CleanupOld(ctx context.Context, olderThan time.Time) (int64, error) {
	return 0, nil
}

func testLogger() *logger.Logger {
	return logger.NewLogger(&logger.Config{Level: logger.ErrorLevel, Output: io.Discard})
}

func testJob(jobType model.JobType, attempts, maxAttempts int) *model.Job {
	return &model.Job{
		ID:          uuid.New(),
		JobType:     jobType,
		Payload:     json.RawMessage(`{}`),
		Status:      model.JobStatusProcessing,
		Priority:    model.JobPriorityMedium,
		Attempts:    attempts,
		MaxAttempts: maxAttempts,
	}
}

func TestEnqueueMarshalsPayload(t *testing.T) {
	repo := newFakeJobRepo()
	svc := NewService(repo, Config{}, testLogger(), testMetrics)

	payload := model.OrderNotificationPayload{OrderID: uuid.New(), Notification: "shipped"}
	id, err := svc.Enqueue(context.Background(), model.JobTypeOrderNotification, payload, model.JobPriorityHigh, nil)

	require.NoError(t, err)
	assert.NotEqual(t, uuid.Nil, id)
	require.Len(t, repo.enqueued, 1)
	job := repo.enqueued[0]
	assert.Equal(t, model.JobTypeOrderNotification, job.JobType)
	assert.Equal(t, model.JobPriorityHigh, job.Priority)

	var decoded model.OrderNotificationPayload
	require.NoError(t, json.Unmarshal(job.Payload, &decoded))
	assert.Equal(t, payload.OrderID, decoded.OrderID)
}

func TestEnqueueRejectsUnmarshalablePayload(t *testing.T) {
	svc := NewService(newFakeJobRepo(), Config{}, testLogger(), testMetrics)

	_, err := svc.Enqueue(context.Background(), model.JobTypeOrderNotification, func() {}, model.JobPriorityLow, nil)

	assert.Error(t, err)
}

func TestProcessBatchSuccess(t *testing.T) {
	job := testJob(model.JobTypeOrderNotification, 0, 3)
	repo := newFakeJobRepo(job)
	svc := NewService(repo, Config{}, testLogger(), testMetrics)

	var handled int
	svc.Register(model.JobTypeOrderNotification, func(ctx context.Context, j *model.Job) error {
		handled++
		return nil
	})

	require.NoError(t, svc.ProcessBatch(context.Background()))
	assert.Equal(t, 1, handled)
	assert.Equal(t, model.JobStatusCompleted, repo.settled[job.ID].status)
}

func TestProcessBatchDispatchesPriorityThenFIFO(t *testing.T) {
	base := time.Date(2026, 8, 20, 10, 0, 0, 0, time.UTC)
	at := func(p model.JobPriority, offset time.Duration) *model.Job {
		j := testJob(model.JobTypeOrderNotification, 0, 3)
		j.Priority = p
		j.CreatedAt = base.Add(offset)
		return j
	}

	// Claimed in a deliberately scrambled order; two urgent jobs share
	// a priority so created_at breaks the tie.
	urgentOld := at(model.JobPriorityUrgent, 0)
	urgentNew := at(model.JobPriorityUrgent, time.Minute)
	low := at(model.JobPriorityLow, -time.Hour)
	high := at(model.JobPriorityHigh, 0)
	medium := at(model.JobPriorityMedium, 0)
	repo := newFakeJobRepo(low, urgentNew, medium, urgentOld, high)
	svc := NewService(repo, Config{}, testLogger(), testMetrics)

	var order []uuid.UUID
	svc.Register(model.JobTypeOrderNotification, func(ctx context.Context, j *model.Job) error {
		order = append(order, j.ID)
		return nil
	})

	require.NoError(t, svc.ProcessBatch(context.Background()))
	assert.Equal(t, []uuid.UUID{urgentOld.ID, urgentNew.ID, high.ID, medium.ID, low.ID}, order)
}

func TestProcessBatchRefreshesQueueDepthGauge(t *testing.T) {
	repo := newFakeJobRepo()
	repo.backlog = 7
	svc := NewService(repo, Config{}, testLogger(), testMetrics)

	require.NoError(t, svc.ProcessBatch(context.Background()))
	assert.Equal(t, float64(7), testutil.ToFloat64(testMetrics.QueueDepth))
}

func TestProcessBatchRetryableErrorSchedulesBackoff(t *testing.T) {
	job := testJob(model.JobTypeInventoryUpdate, 0, 3)
	repo := newFakeJobRepo(job)
	svc := NewService(repo, Config{}, testLogger(), testMetrics)
	svc.Register(model.JobTypeInventoryUpdate, func(ctx context.Context, j *model.Job) error {
		return errors.New("carrier timeout")
	})

	before := time.Now()
	require.NoError(t, svc.ProcessBatch(context.Background()))

	settled := repo.settled[job.ID]
	assert.Equal(t, model.JobStatusRetrying, settled.status)
	assert.Equal(t, 1, settled.attempts)
	assert.Equal(t, "carrier timeout", settled.errMsg)
	// First retry lands roughly one second out.
	assert.WithinDuration(t, before.Add(1*time.Second), settled.retryAt, 2*time.Second)
}

func TestProcessBatchTerminalErrorFailsImmediately(t *testing.T) {
	job := testJob(model.JobTypeWebhookProcessing, 0, 3)
	repo := newFakeJobRepo(job)
	svc := NewService(repo, Config{}, testLogger(), testMetrics)
	svc.Register(model.JobTypeWebhookProcessing, func(ctx context.Context, j *model.Job) error {
		return apperrors.NewBadRequest("malformed payload", nil)
	})

	require.NoError(t, svc.ProcessBatch(context.Background()))

	settled := repo.settled[job.ID]
	assert.Equal(t, model.JobStatusFailed, settled.status)
	assert.Equal(t, 1, settled.attempts)
}

func TestProcessBatchExhaustedAttemptsFail(t *testing.T) {
	job := testJob(model.JobTypeInventoryUpdate, 2, 3)
	repo := newFakeJobRepo(job)
	svc := NewService(repo, Config{}, testLogger(), testMetrics)
	svc.Register(model.JobTypeInventoryUpdate, func(ctx context.Context, j *model.Job) error {
		return errors.New("still down")
	})

	require.NoError(t, svc.ProcessBatch(context.Background()))

	settled := repo.settled[job.ID]
	assert.Equal(t, model.JobStatusFailed, settled.status)
	assert.Equal(t, 3, settled.attempts)
}

func TestProcessBatchUnregisteredTypeFailsTerminally(t *testing.T) {
	job := testJob("unknown_type", 0, 3)
	repo := newFakeJobRepo(job)
	svc := NewService(repo, Config{}, testLogger(), testMetrics)

	require.NoError(t, svc.ProcessBatch(context.Background()))

	assert.Equal(t, model.JobStatusFailed, repo.settled[job.ID].status)
}

func TestProcessBatchContainsPanics(t *testing.T) {
	panicking := testJob(model.JobTypeOrderNotification, 0, 3)
	healthy := testJob(model.JobTypeOrderNotification, 0, 3)
	repo := newFakeJobRepo(panicking, healthy)
	svc := NewService(repo, Config{}, testLogger(), testMetrics)

	first := true
	svc.Register(model.JobTypeOrderNotification, func(ctx context.Context, j *model.Job) error {
		if first {
			first = false
			panic("handler bug")
		}
		return nil
	})

	require.NoError(t, svc.ProcessBatch(context.Background()))

	assert.Equal(t, model.JobStatusRetrying, repo.settled[panicking.ID].status)
	assert.Contains(t, repo.settled[panicking.ID].errMsg, "panicked")
	assert.Equal(t, model.JobStatusCompleted, repo.settled[healthy.ID].status)
}

func TestBackoffFor(t *testing.T) {
	assert.Equal(t, 1*time.Second, BackoffFor(0))
	assert.Equal(t, 1*time.Second, BackoffFor(1))
	assert.Equal(t, 5*time.Second, BackoffFor(2))
	assert.Equal(t, 15*time.Second, BackoffFor(3))
	assert.Equal(t, 15*time.Second, BackoffFor(10))
}

func TestRetryJob(t *testing.T) {
	repo := newFakeJobRepo()
	svc := NewService(repo, Config{}, testLogger(), testMetrics)

	id := uuid.New()
	require.NoError(t, svc.RetryJob(context.Background(), id))
	assert.Equal(t, []uuid.UUID{id}, repo.retried)
}
