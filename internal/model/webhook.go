package model

import (
	"time"

	"github.com/google/uuid"
)

type WebhookEventType string

const (
	WebhookShipNotify      WebhookEventType = "ship_notify"
	WebhookDeliveredNotify WebhookEventType = "delivered_notify"
	WebhookOrderNotify     WebhookEventType = "order_notify"
)

// ShipNotice is the normalized inbound carrier shipment event, produced
// by the codec layer from either the legacy XML or v2 JSON payload.
type ShipNotice struct {
	EventType         WebhookEventType `json:"event_type"`
	CarrierOrderID    string           `json:"carrier_order_id"`
	OrderNumber       string           `json:"order_number"`
	TrackingNumber    string           `json:"tracking_number"`
	CarrierCode       string           `json:"carrier_code"`
	ServiceCode       string           `json:"service_code"`
	LabelURL          string           `json:"label_url,omitempty"`
	CustomsFormURL    string           `json:"customs_form_url,omitempty"`
	ShipDate          *time.Time       `json:"ship_date,omitempty"`
	DeliveryDate      *time.Time       `json:"delivery_date,omitempty"`
	ShippingCostCents *int64           `json:"shipping_cost_cents,omitempty"`
	Items             []ShipNoticeItem `json:"items,omitempty"`
	Raw               []byte           `json:"-"`
}

type ShipNoticeItem struct {
	SKU      string `json:"sku"`
	Quantity int    `json:"quantity"`
}

// EventKey identifies a webhook delivery for dedup purposes.
func (n *ShipNotice) EventKey(storeID uuid.UUID) string {
	return storeID.String() + ":" + string(n.EventType) + ":" + n.CarrierOrderID + ":" + n.TrackingNumber
}

// ShipmentNotification is one row of the webhook-event dedup table.
type ShipmentNotification struct {
	ID        uuid.UUID        `db:"id" json:"id"`
	StoreID   uuid.UUID        `db:"store_id" json:"store_id"`
	EventKey  string           `db:"event_key" json:"event_key"`
	EventType WebhookEventType `db:"event_type" json:"event_type"`
	OrderID   *uuid.UUID       `db:"order_id" json:"order_id,omitempty"`
	CreatedAt time.Time        `db:"created_at" json:"created_at"`
}
