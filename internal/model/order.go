package model

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

type OrderStatus string

const (
	OrderStatusPending    OrderStatus = "pending"
	OrderStatusConfirmed  OrderStatus = "confirmed"
	OrderStatusProcessing OrderStatus = "processing"
	OrderStatusShipped    OrderStatus = "shipped"
	OrderStatusDelivered  OrderStatus = "delivered"
	OrderStatusCancelled  OrderStatus = "cancelled"
	OrderStatusRefunded   OrderStatus = "refunded"
)

type FulfillmentStatus string

const (
	FulfillmentStatusUnfulfilled FulfillmentStatus = "unfulfilled"
	FulfillmentStatusPartial     FulfillmentStatus = "partial"
	FulfillmentStatusFulfilled   FulfillmentStatus = "fulfilled"
)

type Order struct {
	ID                uuid.UUID         `db:"id" json:"id"`
	StoreID           uuid.UUID         `db:"store_id" json:"store_id"`
	OrderNumber       string            `db:"order_number" json:"order_number"`
	CarrierOrderID    *string           `db:"carrier_order_id" json:"carrier_order_id,omitempty"`
	Status            OrderStatus       `db:"status" json:"status"`
	FulfillmentStatus FulfillmentStatus `db:"fulfillment_status" json:"fulfillment_status"`
	CustomerName      string            `db:"customer_name" json:"customer_name"`
	CustomerEmail     string            `db:"customer_email" json:"customer_email"`
	CustomerPhone     *string           `db:"customer_phone" json:"customer_phone,omitempty"`
	BillingAddress    json.RawMessage   `db:"billing_address" json:"billing_address,omitempty"`
	ShippingAddress   json.RawMessage   `db:"shipping_address" json:"shipping_address,omitempty"`
	TotalCents        int64             `db:"total_cents" json:"total_cents"`
	TaxCents          int64             `db:"tax_cents" json:"tax_cents"`
	ShippingCents     int64             `db:"shipping_cents" json:"shipping_cents"`
	TrackingNumber    *string           `db:"tracking_number" json:"tracking_number,omitempty"`
	TrackingURL       *string           `db:"tracking_url" json:"tracking_url,omitempty"`
	CarrierCode       *string           `db:"carrier_code" json:"carrier_code,omitempty"`
	ServiceCode       *string           `db:"service_code" json:"service_code,omitempty"`
	LabelURL          *string           `db:"label_url" json:"label_url,omitempty"`
	CustomsFormURL    *string           `db:"customs_form_url" json:"customs_form_url,omitempty"`
	ShipmentData      json.RawMessage   `db:"shipment_data" json:"shipment_data,omitempty"`
	ShippedAt         *time.Time        `db:"shipped_at" json:"shipped_at,omitempty"`
	DeliveredAt       *time.Time        `db:"delivered_at" json:"delivered_at,omitempty"`
	ShippingCostCents *int64            `db:"shipping_cost_cents" json:"shipping_cost_cents,omitempty"`
	CreatedAt         time.Time         `db:"created_at" json:"created_at"`
	UpdatedAt         time.Time         `db:"updated_at" json:"updated_at"`
}

type OrderItem struct {
	ID             uuid.UUID `db:"id" json:"id"`
	OrderID        uuid.UUID `db:"order_id" json:"order_id"`
	ProductID      uuid.UUID `db:"product_id" json:"product_id"`
	SKU            string    `db:"sku" json:"sku"`
	Name           string    `db:"name" json:"name"`
	Quantity       int       `db:"quantity" json:"quantity"`
	UnitPriceCents int64     `db:"unit_price_cents" json:"unit_price_cents"`
	WeightOunces   *float64  `db:"weight_ounces" json:"weight_ounces,omitempty"`
	CreatedAt      time.Time `db:"created_at" json:"created_at"`
}

// ShipmentPatch is a sparse update of an order's shipment fields. Only
// non-nil fields are written; the update builder never touches the rest.
type ShipmentPatch struct {
	Status            *OrderStatus
	FulfillmentStatus *FulfillmentStatus
	TrackingNumber    *string
	TrackingURL       *string
	CarrierOrderID    *string
	CarrierCode       *string
	ServiceCode       *string
	LabelURL          *string
	CustomsFormURL    *string
	ShipmentData      json.RawMessage
	ShippedAt         *time.Time
	DeliveredAt       *time.Time
	ShippingCostCents *int64
}

// IsZero reports whether the patch would write nothing.
func (p *ShipmentPatch) IsZero() bool {
	return p.Status == nil && p.FulfillmentStatus == nil && p.TrackingNumber == nil &&
		p.TrackingURL == nil && p.CarrierOrderID == nil && p.CarrierCode == nil && p.ServiceCode == nil &&
		p.LabelURL == nil && p.CustomsFormURL == nil && p.ShipmentData == nil &&
		p.ShippedAt == nil && p.DeliveredAt == nil && p.ShippingCostCents == nil
}

// Address is the generic order address shape shared by billing and
// shipping sides.
type Address struct {
	Name       string `json:"name"`
	Company    string `json:"company,omitempty"`
	Street1    string `json:"street1"`
	Street2    string `json:"street2,omitempty"`
	City       string `json:"city"`
	State      string `json:"state"`
	PostalCode string `json:"postal_code"`
	Country    string `json:"country"`
	Phone      string `json:"phone,omitempty"`
}
