package repository

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/merchantry/fulfillment-api/internal/model"
)

// TxRunner runs a function inside one database transaction. Repository
// calls made with the context fn receives join that transaction; when
// fn returns an error the transaction rolls back.
type TxRunner interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// JobRepository is the storage half of the job queue. ClaimBatch must
// give exclusive ownership of the returned jobs to the caller even when
// several worker instances poll the same table (SKIP LOCKED semantics),
// so processing is at-least-once but never duplicate-dequeued.
type JobRepository interface {
	Enqueue(ctx context.Context, job *model.Job) error
	ClaimBatch(ctx context.Context, limit int) ([]*model.Job, error)
	MarkCompleted(ctx context.Context, id uuid.UUID) error
	MarkFailed(ctx context.Context, id uuid.UUID, attempts int, errMsg string) error
	MarkRetrying(ctx context.Context, id uuid.UUID, attempts int, errMsg string, retryAt time.Time) error
	RetryJob(ctx context.Context, id uuid.UUID) error
	Get(ctx context.Context, id uuid.UUID) (*model.Job, error)
	Stats(ctx context.Context, since time.Time) (*model.JobStats, error)
	// CountBacklog returns how many jobs are waiting to run (pending
	// or retrying), regardless of age.
	CountBacklog(ctx context.Context) (int64, error)
	ListFailed(ctx context.Context, limit int) ([]*model.Job, error)
	CleanupOld(ctx context.Context, olderThan time.Time) (int64, error)
}

type OrderRepository interface {
	Get(ctx context.Context, id uuid.UUID) (*model.Order, error)
	// FindByCarrierRef tries the carrier-assigned order id first, then
	// falls back to the human order number.
	FindByCarrierRef(ctx context.Context, storeID uuid.UUID, carrierOrderID, orderNumber string) (*model.Order, error)
	ApplyShipmentPatch(ctx context.Context, id uuid.UUID, patch *model.ShipmentPatch) error
	ListItems(ctx context.Context, orderID uuid.UUID) ([]*model.OrderItem, error)
	ListForExport(ctx context.Context, storeID uuid.UUID, page, pageSize int) ([]*model.Order, int, error)
}

// ProductRepository owns stock. AdjustStock is the single atomic
// mutation path: the clamped delta happens inside one UPDATE so
// concurrent adjustments cannot lose writes.
type ProductRepository interface {
	Get(ctx context.Context, id uuid.UUID) (*model.Product, error)
	GetBySKU(ctx context.Context, storeID uuid.UUID, sku string) (*model.Product, error)
	AdjustStock(ctx context.Context, id uuid.UUID, delta int) (before, after int, err error)
}

type InventoryLogRepository interface {
	Create(ctx context.Context, log *model.InventoryLog) error
}

type IntegrationRepository interface {
	GetCredentials(ctx context.Context, storeID uuid.UUID, integrationType model.IntegrationType) (*model.StoreIntegration, error)
	Get(ctx context.Context, id uuid.UUID) (*model.StoreIntegration, error)
	ListActiveByType(ctx context.Context, integrationType model.IntegrationType) ([]*model.StoreIntegration, error)
	LogOperation(ctx context.Context, log *model.IntegrationLog) error
	GetDefaultShipFrom(ctx context.Context, storeID uuid.UUID) (*model.ShipFromAddress, error)
	ListShipFroms(ctx context.Context, storeID uuid.UUID) ([]*model.ShipFromAddress, error)
}

type NotificationRepository interface {
	GetTemplate(ctx context.Context, storeID uuid.UUID, kind string) (*model.NotificationTemplate, error)
}

// WebhookEventRepository backs webhook-delivery dedup. MarkProcessed
// must be a no-op on conflict so duplicate deliveries race safely.
type WebhookEventRepository interface {
	AlreadyProcessed(ctx context.Context, eventKey string) (bool, error)
	MarkProcessed(ctx context.Context, event *model.ShipmentNotification) error
}
