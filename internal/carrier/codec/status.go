package codec

import (
	"strings"

	"github.com/merchantry/fulfillment-api/internal/model"
)

// Carrier status vocabulary <-> internal order status. The carrier side
// is the ShipStation wire vocabulary; both maps are inverses of each
// other for the overlapping values.
var carrierToInternal = map[string]model.OrderStatus{
	"awaiting_payment":  model.OrderStatusPending,
	"awaiting_shipment": model.OrderStatusConfirmed,
	"on_hold":           model.OrderStatusProcessing,
	"shipped":           model.OrderStatusShipped,
	"delivered":         model.OrderStatusDelivered,
	"cancelled":         model.OrderStatusCancelled,
}

var internalToCarrier = map[model.OrderStatus]string{
	model.OrderStatusPending:    "awaiting_payment",
	model.OrderStatusConfirmed:  "awaiting_shipment",
	model.OrderStatusProcessing: "on_hold",
	model.OrderStatusShipped:    "shipped",
	model.OrderStatusDelivered:  "delivered",
	model.OrderStatusCancelled:  "cancelled",
	model.OrderStatusRefunded:   "cancelled",
}

// InternalStatus maps a carrier status value to the internal enum.
// Unknown values come back as pending with ok=false so callers can
// decide whether to reject.
func InternalStatus(carrierStatus string) (model.OrderStatus, bool) {
	status, ok := carrierToInternal[strings.ToLower(strings.TrimSpace(carrierStatus))]
	if !ok {
		return model.OrderStatusPending, false
	}
	return status, true
}

// CarrierStatus maps an internal order status to the carrier vocabulary.
func CarrierStatus(status model.OrderStatus) string {
	if s, ok := internalToCarrier[status]; ok {
		return s
	}
	return "awaiting_shipment"
}
