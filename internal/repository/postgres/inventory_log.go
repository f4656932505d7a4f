package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/merchantry/fulfillment-api/internal/model"
	"github.com/merchantry/fulfillment-api/internal/repository"
)

type inventoryLogRepository struct {
	BaseRepository
}

func NewInventoryLogRepository(base BaseRepository) repository.InventoryLogRepository {
	return &inventoryLogRepository{base}
}

// Create appends one audit row. inventory_logs is append-only; there is
// no update or delete path.
func (r *inventoryLogRepository) Create(ctx context.Context, log *model.InventoryLog) error {
	if log == nil {
		return fmt.Errorf("inventory log cannot be nil")
	}

	query := `
		INSERT INTO inventory_logs (
			id, product_id, sku, quantity_before, quantity_after, quantity_change,
			reason, reference_type, reference_id, notes, created_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11
		)
	`
	if log.ID == uuid.Nil {
		log.ID = uuid.New()
	}
	log.CreatedAt = time.Now()

	_, err := r.ext(ctx).ExecContext(ctx, query,
		log.ID,
		log.ProductID,
		log.SKU,
		log.QuantityBefore,
		log.QuantityAfter,
		log.QuantityChange,
		log.Reason,
		log.ReferenceType,
		log.ReferenceID,
		log.Notes,
		log.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create inventory log: %w", err)
	}
	return nil
}
