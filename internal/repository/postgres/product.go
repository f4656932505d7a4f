package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/merchantry/fulfillment-api/internal/model"
	"github.com/merchantry/fulfillment-api/internal/repository"
)

type productRepository struct {
	BaseRepository
}

func NewProductRepository(base BaseRepository) repository.ProductRepository {
	return &productRepository{base}
}

func (r *productRepository) Get(ctx context.Context, id uuid.UUID) (*model.Product, error) {
	query := `SELECT * FROM products WHERE id = $1`
	var product model.Product
	err := sqlx.GetContext(ctx, r.ext(ctx), &product, query, id)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get product: %w", err)
	}
	return &product, nil
}

func (r *productRepository) GetBySKU(ctx context.Context, storeID uuid.UUID, sku string) (*model.Product, error) {
	query := `SELECT * FROM products WHERE store_id = $1 AND sku = $2`
	var product model.Product
	err := sqlx.GetContext(ctx, r.ext(ctx), &product, query, storeID, sku)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get product by sku: %w", err)
	}
	return &product, nil
}

// AdjustStock applies a clamped delta in a single UPDATE. No read step
// means concurrent adjustments serialize on the row instead of losing
// writes.
func (r *productRepository) AdjustStock(ctx context.Context, id uuid.UUID, delta int) (int, int, error) {
	// The before value cannot be derived from a clamped result alone, so
	// a locking CTE captures it in the same statement.
	query := `
		WITH prior AS (
			SELECT stock_quantity FROM products WHERE id = $1 FOR UPDATE
		)
		UPDATE products
		SET stock_quantity = GREATEST(stock_quantity + $2, 0),
			updated_at = NOW()
		FROM prior
		WHERE products.id = $1
		RETURNING prior.stock_quantity, products.stock_quantity
	`

	var before, after int
	err := r.ext(ctx).QueryRowxContext(ctx, query, id, delta).Scan(&before, &after)
	if err == sql.ErrNoRows {
		return 0, 0, fmt.Errorf("product %s not found", id)
	}
	if err != nil {
		return 0, 0, fmt.Errorf("failed to adjust stock: %w", err)
	}
	return before, after, nil
}
