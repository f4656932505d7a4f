package messaging

import (
	"context"
)

// Broker defines the interface for message brokers
type Broker interface {
	Publish(ctx context.Context, channel string, message interface{}) error
	Subscribe(ctx context.Context, channel string) (<-chan []byte, error)
	Close() error
}

// Order lifecycle channels published by the fulfillment pipeline.
const (
	ChannelOrderShipped   = "order.shipped"
	ChannelOrderDelivered = "order.delivered"
)

// OrderEvent is the payload published on order lifecycle channels.
type OrderEvent struct {
	OrderID        string `json:"order_id"`
	StoreID        string `json:"store_id"`
	OrderNumber    string `json:"order_number"`
	Status         string `json:"status"`
	TrackingNumber string `json:"tracking_number,omitempty"`
	CarrierCode    string `json:"carrier_code,omitempty"`
}
