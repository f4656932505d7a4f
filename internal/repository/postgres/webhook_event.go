package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/merchantry/fulfillment-api/internal/model"
	"github.com/merchantry/fulfillment-api/internal/repository"
)

type webhookEventRepository struct {
	BaseRepository
}

func NewWebhookEventRepository(base BaseRepository) repository.WebhookEventRepository {
	return &webhookEventRepository{base}
}

func (r *webhookEventRepository) AlreadyProcessed(ctx context.Context, eventKey string) (bool, error) {
	query := `SELECT EXISTS (SELECT 1 FROM shipment_notifications WHERE event_key = $1)`
	var exists bool
	if err := r.db.GetContext(ctx, &exists, query, eventKey); err != nil {
		return false, fmt.Errorf("failed to check webhook event: %w", err)
	}
	return exists, nil
}

// MarkProcessed records a delivery. ON CONFLICT DO NOTHING lets two
// concurrent duplicate deliveries race without erroring.
func (r *webhookEventRepository) MarkProcessed(ctx context.Context, event *model.ShipmentNotification) error {
	if event == nil {
		return fmt.Errorf("event cannot be nil")
	}

	query := `
		INSERT INTO shipment_notifications (id, store_id, event_key, event_type, order_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (event_key) DO NOTHING
	`
	if event.ID == uuid.Nil {
		event.ID = uuid.New()
	}
	event.CreatedAt = time.Now()

	_, err := r.db.ExecContext(ctx, query,
		event.ID,
		event.StoreID,
		event.EventKey,
		event.EventType,
		event.OrderID,
		event.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to mark webhook event processed: %w", err)
	}
	return nil
}
