package carrier

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/merchantry/fulfillment-api/internal/model"
)

// Gateway is the single outbound surface to the carrier platform. Two
// implementations exist: the legacy XML/Basic-Auth client and the v2
// JSON/API-key client, selected per store by integration type.
type Gateway interface {
	// CreateShipment originates a shipment for an order.
	CreateShipment(ctx context.Context, req *ShipmentRequest) (*ShipmentResult, error)
	// TestCredentials probes the platform with the configured
	// credentials without creating anything.
	TestCredentials(ctx context.Context) error
}

// ShipmentRequest is the generic order shape handed to a gateway; each
// adapter translates it into its own wire format.
type ShipmentRequest struct {
	Order       *model.Order
	Items       []*model.OrderItem
	ShipFrom    *model.ShipFromAddress
	ServiceCode string
}

// ShipmentResult is the normalized success response.
type ShipmentResult struct {
	CarrierOrderID string
	TrackingNumber string
	LabelURL       string
	CostCents      int64
	Raw            json.RawMessage
}

// Error is the typed failure an adapter returns for a non-2xx carrier
// response. Adapters never panic or let transport errors escape
// untyped, so callers branch on the result instead of recovering.
type Error struct {
	StatusCode int
	Message    string
	Body       string
}

func (e *Error) Error() string {
	return fmt.Sprintf("carrier returned %d: %s", e.StatusCode, e.Message)
}

// Retryable reports whether the failure is worth retrying: server-side
// errors and rate limits are, caller errors are not.
func (e *Error) Retryable() bool {
	return e.StatusCode >= 500 || e.StatusCode == 429
}

// errorBody is the JSON error envelope both API generations use when
// they bother with JSON at all.
type errorBody struct {
	Message string `json:"message"`
	Error   string `json:"error"`
}

// ParseErrorBody extracts a human message from an error response body,
// JSON or raw text.
func ParseErrorBody(body []byte) string {
	var eb errorBody
	if err := json.Unmarshal(body, &eb); err == nil {
		if eb.Message != "" {
			return eb.Message
		}
		if eb.Error != "" {
			return eb.Error
		}
	}
	s := string(body)
	if len(s) > 512 {
		s = s[:512]
	}
	return s
}

// MaskSecret hides credential material in diagnostics, keeping just
// enough to identify which key was used.
func MaskSecret(s string) string {
	if len(s) <= 4 {
		return "****"
	}
	return s[:2] + "****" + s[len(s)-2:]
}
