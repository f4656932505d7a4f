package model

import (
	"time"

	"github.com/google/uuid"
)

type Product struct {
	ID                uuid.UUID `db:"id" json:"id"`
	StoreID           uuid.UUID `db:"store_id" json:"store_id"`
	SKU               string    `db:"sku" json:"sku"`
	Name              string    `db:"name" json:"name"`
	StockQuantity     int       `db:"stock_quantity" json:"stock_quantity"`
	TrackInventory    bool      `db:"track_inventory" json:"track_inventory"`
	LowStockThreshold *int      `db:"low_stock_threshold" json:"low_stock_threshold,omitempty"`
	WeightOunces      *float64  `db:"weight_ounces" json:"weight_ounces,omitempty"`
	CreatedAt         time.Time `db:"created_at" json:"created_at"`
	UpdatedAt         time.Time `db:"updated_at" json:"updated_at"`
}

type AdjustmentReason string

const (
	ReasonSale       AdjustmentReason = "sale"
	ReasonReturn     AdjustmentReason = "return"
	ReasonDamage     AdjustmentReason = "damage"
	ReasonTheft      AdjustmentReason = "theft"
	ReasonFound      AdjustmentReason = "found"
	ReasonAdjustment AdjustmentReason = "adjustment"
	ReasonShipment   AdjustmentReason = "shipment"
)

// InventoryAdjustment is an intent, not an entity: applying one mutates
// Product.StockQuantity and appends an InventoryLog row, nothing else.
type InventoryAdjustment struct {
	ProductID      uuid.UUID        `json:"product_id"`
	SKU            string           `json:"sku"`
	QuantityChange int              `json:"quantity_change"`
	Reason         AdjustmentReason `json:"reason"`
	ReferenceType  string           `json:"reference_type"`
	ReferenceID    string           `json:"reference_id"`
	Notes          string           `json:"notes,omitempty"`
}

// InventoryLog is the append-only audit trail behind every stock change.
type InventoryLog struct {
	ID             uuid.UUID        `db:"id" json:"id"`
	ProductID      uuid.UUID        `db:"product_id" json:"product_id"`
	SKU            string           `db:"sku" json:"sku"`
	QuantityBefore int              `db:"quantity_before" json:"quantity_before"`
	QuantityAfter  int              `db:"quantity_after" json:"quantity_after"`
	QuantityChange int              `db:"quantity_change" json:"quantity_change"`
	Reason         AdjustmentReason `db:"reason" json:"reason"`
	ReferenceType  string           `db:"reference_type" json:"reference_type"`
	ReferenceID    string           `db:"reference_id" json:"reference_id"`
	Notes          *string          `db:"notes" json:"notes,omitempty"`
	CreatedAt      time.Time        `db:"created_at" json:"created_at"`
}

// FeedItem is one row of an external inventory feed used for
// reconciliation by SKU.
type FeedItem struct {
	SKU      string `json:"sku" validate:"required"`
	Quantity int    `json:"quantity" validate:"min=0"`
}

// SyncResult reports a best-effort bulk reconciliation.
type SyncResult struct {
	Success bool     `json:"success"`
	Synced  int      `json:"synced"`
	Errors  []string `json:"errors,omitempty"`
}
