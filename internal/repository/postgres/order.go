package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/merchantry/fulfillment-api/internal/model"
	"github.com/merchantry/fulfillment-api/internal/repository"
)

type orderRepository struct {
	BaseRepository
}

func NewOrderRepository(base BaseRepository) repository.OrderRepository {
	return &orderRepository{base}
}

func (r *orderRepository) Get(ctx context.Context, id uuid.UUID) (*model.Order, error) {
	query := `SELECT * FROM orders WHERE id = $1`
	var order model.Order
	err := r.db.GetContext(ctx, &order, query, id)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get order: %w", err)
	}
	return &order, nil
}

func (r *orderRepository) FindByCarrierRef(ctx context.Context, storeID uuid.UUID, carrierOrderID, orderNumber string) (*model.Order, error) {
	var order model.Order

	if carrierOrderID != "" {
		query := `SELECT * FROM orders WHERE store_id = $1 AND carrier_order_id = $2`
		err := r.db.GetContext(ctx, &order, query, storeID, carrierOrderID)
		if err == nil {
			return &order, nil
		}
		if err != sql.ErrNoRows {
			return nil, fmt.Errorf("failed to find order by carrier order id: %w", err)
		}
	}

	if orderNumber != "" {
		query := `SELECT * FROM orders WHERE store_id = $1 AND order_number = $2`
		err := r.db.GetContext(ctx, &order, query, storeID, orderNumber)
		if err == nil {
			return &order, nil
		}
		if err != sql.ErrNoRows {
			return nil, fmt.Errorf("failed to find order by order number: %w", err)
		}
	}

	return nil, nil
}

// ApplyShipmentPatch writes only the fields the patch carries. The SET
// list is built from typed optional fields, never from caller strings.
func (r *orderRepository) ApplyShipmentPatch(ctx context.Context, id uuid.UUID, patch *model.ShipmentPatch) error {
	if patch == nil || patch.IsZero() {
		return nil
	}

	sets := make([]string, 0, 14)
	args := make([]interface{}, 0, 15)
	add := func(column string, value interface{}) {
		args = append(args, value)
		sets = append(sets, fmt.Sprintf("%s = $%d", column, len(args)))
	}

	if patch.Status != nil {
		add("status", *patch.Status)
	}
	if patch.FulfillmentStatus != nil {
		add("fulfillment_status", *patch.FulfillmentStatus)
	}
	if patch.TrackingNumber != nil {
		add("tracking_number", *patch.TrackingNumber)
	}
	if patch.TrackingURL != nil {
		add("tracking_url", *patch.TrackingURL)
	}
	if patch.CarrierOrderID != nil {
		add("carrier_order_id", *patch.CarrierOrderID)
	}
	if patch.CarrierCode != nil {
		add("carrier_code", *patch.CarrierCode)
	}
	if patch.ServiceCode != nil {
		add("service_code", *patch.ServiceCode)
	}
	if patch.LabelURL != nil {
		add("label_url", *patch.LabelURL)
	}
	if patch.CustomsFormURL != nil {
		add("customs_form_url", *patch.CustomsFormURL)
	}
	if patch.ShipmentData != nil {
		add("shipment_data", []byte(patch.ShipmentData))
	}
	if patch.ShippedAt != nil {
		add("shipped_at", *patch.ShippedAt)
	}
	if patch.DeliveredAt != nil {
		add("delivered_at", *patch.DeliveredAt)
	}
	if patch.ShippingCostCents != nil {
		add("shipping_cost_cents", *patch.ShippingCostCents)
	}
	add("updated_at", time.Now())

	args = append(args, id)
	query := fmt.Sprintf("UPDATE orders SET %s WHERE id = $%d", strings.Join(sets, ", "), len(args))

	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to apply shipment patch: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return fmt.Errorf("order %s not found", id)
	}
	return nil
}

func (r *orderRepository) ListItems(ctx context.Context, orderID uuid.UUID) ([]*model.OrderItem, error) {
	query := `SELECT * FROM order_items WHERE order_id = $1 ORDER BY created_at ASC`
	var items []*model.OrderItem
	err := r.db.SelectContext(ctx, &items, query, orderID)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return items, err
}

func (r *orderRepository) ListForExport(ctx context.Context, storeID uuid.UUID, page, pageSize int) ([]*model.Order, int, error) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = 50
	}

	var total int
	countQuery := `SELECT COUNT(*) FROM orders WHERE store_id = $1`
	if err := r.db.GetContext(ctx, &total, countQuery, storeID); err != nil {
		return nil, 0, fmt.Errorf("failed to count orders for export: %w", err)
	}

	query := `
		SELECT * FROM orders
		WHERE store_id = $1
		ORDER BY created_at ASC
		LIMIT $2 OFFSET $3
	`
	var orders []*model.Order
	err := r.db.SelectContext(ctx, &orders, query, storeID, pageSize, (page-1)*pageSize)
	if err != nil && err != sql.ErrNoRows {
		return nil, 0, fmt.Errorf("failed to list orders for export: %w", err)
	}

	pages := (total + pageSize - 1) / pageSize
	return orders, pages, nil
}
