package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/merchantry/fulfillment-api/internal/model"
	"github.com/merchantry/fulfillment-api/internal/repository"
)

type integrationRepository struct {
	BaseRepository
}

func NewIntegrationRepository(base BaseRepository) repository.IntegrationRepository {
	return &integrationRepository{base}
}

func (r *integrationRepository) GetCredentials(ctx context.Context, storeID uuid.UUID, integrationType model.IntegrationType) (*model.StoreIntegration, error) {
	query := `
		SELECT * FROM store_integrations
		WHERE store_id = $1 AND integration_type = $2 AND active = TRUE
	`
	var integration model.StoreIntegration
	err := r.db.GetContext(ctx, &integration, query, storeID, integrationType)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get store integration: %w", err)
	}
	return &integration, nil
}

func (r *integrationRepository) Get(ctx context.Context, id uuid.UUID) (*model.StoreIntegration, error) {
	query := `SELECT * FROM store_integrations WHERE id = $1`
	var integration model.StoreIntegration
	err := r.db.GetContext(ctx, &integration, query, id)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get store integration: %w", err)
	}
	return &integration, nil
}

func (r *integrationRepository) ListActiveByType(ctx context.Context, integrationType model.IntegrationType) ([]*model.StoreIntegration, error) {
	query := `
		SELECT * FROM store_integrations
		WHERE integration_type = $1 AND active = TRUE
		ORDER BY created_at ASC
	`
	var integrations []*model.StoreIntegration
	err := r.db.SelectContext(ctx, &integrations, query, integrationType)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return integrations, err
}

// LogOperation appends one integration_logs row. Write-once; failures
// to log never fail the caller's operation.
func (r *integrationRepository) LogOperation(ctx context.Context, log *model.IntegrationLog) error {
	if log == nil {
		return fmt.Errorf("integration log cannot be nil")
	}

	query := `
		INSERT INTO integration_logs (
			id, store_id, integration_type, operation, status,
			request_data, response_data, execution_time_ms, error_message, created_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10
		)
	`
	if log.ID == uuid.Nil {
		log.ID = uuid.New()
	}
	log.CreatedAt = time.Now()

	_, err := r.db.ExecContext(ctx, query,
		log.ID,
		log.StoreID,
		log.IntegrationType,
		log.Operation,
		log.Status,
		log.RequestData,
		log.ResponseData,
		log.ExecutionTimeMs,
		log.ErrorMessage,
		log.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create integration log: %w", err)
	}
	return nil
}

func (r *integrationRepository) GetDefaultShipFrom(ctx context.Context, storeID uuid.UUID) (*model.ShipFromAddress, error) {
	query := `
		SELECT * FROM shipfroms
		WHERE store_id = $1
		ORDER BY is_default DESC, created_at ASC
		LIMIT 1
	`
	var shipFrom model.ShipFromAddress
	err := r.db.GetContext(ctx, &shipFrom, query, storeID)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get default shipfrom: %w", err)
	}
	return &shipFrom, nil
}

func (r *integrationRepository) ListShipFroms(ctx context.Context, storeID uuid.UUID) ([]*model.ShipFromAddress, error) {
	query := `SELECT * FROM shipfroms WHERE store_id = $1 ORDER BY is_default DESC, created_at ASC`
	var shipFroms []*model.ShipFromAddress
	err := r.db.SelectContext(ctx, &shipFroms, query, storeID)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return shipFroms, err
}
