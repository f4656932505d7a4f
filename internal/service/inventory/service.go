package inventory

import (
	"context"
	"fmt"

	validator "github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/merchantry/fulfillment-api/internal/model"
	"github.com/merchantry/fulfillment-api/internal/repository"
	apperrors "github.com/merchantry/fulfillment-api/pkg/errors"
	"github.com/merchantry/fulfillment-api/pkg/logger"
)

const (
	defaultLowStockThreshold = 10
	criticalStockThreshold   = 3
)

type Config struct {
	LowStockThreshold      int
	CriticalStockThreshold int
}

// Service is the sole mutation path for stock. Every change flows
// through ApplyAdjustment so the inventory_logs audit trail stays
// complete; nothing else writes stock_quantity.
type Service struct {
	products repository.ProductRepository
	logs     repository.InventoryLogRepository
	tx       repository.TxRunner
	logger   *logger.Logger
	validate *validator.Validate
	cfg      Config
}

func NewService(products repository.ProductRepository, logs repository.InventoryLogRepository, tx repository.TxRunner, cfg Config, log *logger.Logger) *Service {
	if cfg.LowStockThreshold <= 0 {
		cfg.LowStockThreshold = defaultLowStockThreshold
	}
	if cfg.CriticalStockThreshold <= 0 {
		cfg.CriticalStockThreshold = criticalStockThreshold
	}
	return &Service{
		products: products,
		logs:     logs,
		tx:       tx,
		logger:   log,
		validate: validator.New(),
		cfg:      cfg,
	}
}

// ApplyAdjustment applies one signed stock delta. The product write is
// a single atomic clamped UPDATE, so concurrent adjustments to one
// product serialize instead of losing updates. Products not tracking
// inventory are a silent no-op.
func (s *Service) ApplyAdjustment(ctx context.Context, adj *model.InventoryAdjustment) error {
	if adj == nil {
		return apperrors.NewBadRequest("adjustment cannot be nil", nil)
	}

	product, err := s.resolveProduct(ctx, adj)
	if err != nil {
		return err
	}
	if product == nil {
		return apperrors.NewNotFound("product", nil)
	}

	if !product.TrackInventory {
		s.logger.Debug("inventory tracking disabled, adjustment skipped",
			"product_id", product.ID.String(), "sku", product.SKU)
		return nil
	}

	before, after, err := s.products.AdjustStock(ctx, product.ID, adj.QuantityChange)
	if err != nil {
		return err
	}

	if before+adj.QuantityChange < 0 {
		s.logger.Warn("stock adjustment clamped at zero",
			"product_id", product.ID.String(),
			"sku", product.SKU,
			"before", before,
			"requested_change", adj.QuantityChange)
	}

	entry := &model.InventoryLog{
		ProductID:      product.ID,
		SKU:            product.SKU,
		QuantityBefore: before,
		QuantityAfter:  after,
		QuantityChange: adj.QuantityChange,
		Reason:         adj.Reason,
		ReferenceType:  adj.ReferenceType,
		ReferenceID:    adj.ReferenceID,
	}
	if adj.Notes != "" {
		entry.Notes = &adj.Notes
	}
	if err := s.logs.Create(ctx, entry); err != nil {
		return fmt.Errorf("stock adjusted but audit log write failed: %w", err)
	}

	s.checkLowStock(product, after)
	return nil
}

// SyncWithExternalFeed reconciles stock against a feed by SKU. Items
// are best-effort: a bad item is reported, not fatal to the sync. All
// writes for one sync share a single transaction, so an interrupted
// sync leaves no half-reconciled stock behind.
func (s *Service) SyncWithExternalFeed(ctx context.Context, storeID uuid.UUID, items []model.FeedItem) *model.SyncResult {
	result := &model.SyncResult{}

	err := s.tx.RunInTx(ctx, func(ctx context.Context) error {
		s.syncItems(ctx, storeID, items, result)
		return nil
	})
	if err != nil {
		result.Errors = append(result.Errors, fmt.Sprintf("sync transaction: %v", err))
	}

	result.Success = len(result.Errors) == 0
	return result
}

func (s *Service) syncItems(ctx context.Context, storeID uuid.UUID, items []model.FeedItem, result *model.SyncResult) {
	for _, item := range items {
		if err := s.validate.Struct(item); err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("sku %q: invalid feed item: %v", item.SKU, err))
			continue
		}

		product, err := s.products.GetBySKU(ctx, storeID, item.SKU)
		if err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("sku %q: %v", item.SKU, err))
			continue
		}
		if product == nil {
			result.Errors = append(result.Errors, fmt.Sprintf("sku %q: product not found", item.SKU))
			continue
		}

		delta := item.Quantity - product.StockQuantity
		if delta == 0 {
			result.Synced++
			continue
		}

		adj := &model.InventoryAdjustment{
			ProductID:      product.ID,
			SKU:            product.SKU,
			QuantityChange: delta,
			Reason:         model.ReasonAdjustment,
			ReferenceType:  "external_sync",
			ReferenceID:    storeID.String(),
			Notes:          fmt.Sprintf("feed reconciliation to %d", item.Quantity),
		}
		if err := s.ApplyAdjustment(ctx, adj); err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("sku %q: %v", item.SKU, err))
			continue
		}
		result.Synced++
	}
}

func (s *Service) resolveProduct(ctx context.Context, adj *model.InventoryAdjustment) (*model.Product, error) {
	if adj.ProductID != uuid.Nil {
		return s.products.Get(ctx, adj.ProductID)
	}
	if adj.SKU == "" {
		return nil, apperrors.NewBadRequest("adjustment needs a product id or sku", nil)
	}
	// SKU-only lookups need a store scope carried in the reference.
	storeID, err := uuid.Parse(adj.ReferenceID)
	if err != nil {
		return nil, apperrors.NewBadRequest("sku-only adjustment needs a store reference", err)
	}
	return s.products.GetBySKU(ctx, storeID, adj.SKU)
}

// checkLowStock compares the new quantity against the warning and
// critical thresholds. Detection is log-only for now; the alert
// dispatch hook is not built yet.
func (s *Service) checkLowStock(product *model.Product, quantity int) {
	threshold := s.cfg.LowStockThreshold
	if product.LowStockThreshold != nil && *product.LowStockThreshold > 0 {
		threshold = *product.LowStockThreshold
	}

	switch {
	case quantity <= s.cfg.CriticalStockThreshold:
		s.logger.Warn("critical stock level",
			"product_id", product.ID.String(),
			"sku", product.SKU,
			"quantity", quantity)
	case quantity <= threshold:
		s.logger.Warn("low stock level",
			"product_id", product.ID.String(),
			"sku", product.SKU,
			"quantity", quantity,
			"threshold", threshold)
	}
}
