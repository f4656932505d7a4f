package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	"github.com/merchantry/fulfillment-api/internal/model"
	"github.com/merchantry/fulfillment-api/internal/repository"
)

type notificationRepository struct {
	BaseRepository
}

func NewNotificationRepository(base BaseRepository) repository.NotificationRepository {
	return &notificationRepository{base}
}

func (r *notificationRepository) GetTemplate(ctx context.Context, storeID uuid.UUID, kind string) (*model.NotificationTemplate, error) {
	query := `SELECT * FROM notification_templates WHERE store_id = $1 AND kind = $2`
	var tmpl model.NotificationTemplate
	err := r.db.GetContext(ctx, &tmpl, query, storeID, kind)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get notification template: %w", err)
	}
	return &tmpl, nil
}
