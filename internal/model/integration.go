package model

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

type IntegrationType string

const (
	IntegrationShipStationLegacy IntegrationType = "shipstation"
	IntegrationShipStationV2     IntegrationType = "shipstation_v2"
)

// StoreIntegration is a per-store encrypted secret bundle for one
// carrier integration. Secrets are decrypted on demand and never cached
// past a single request.
type StoreIntegration struct {
	ID                  uuid.UUID       `db:"id" json:"id"`
	StoreID             uuid.UUID       `db:"store_id" json:"store_id"`
	IntegrationType     IntegrationType `db:"integration_type" json:"integration_type"`
	APIKeyEncrypted     []byte          `db:"api_key_encrypted" json:"-"`
	APISecretEncrypted  []byte          `db:"api_secret_encrypted" json:"-"`
	ShipStationUsername *string         `db:"shipstation_username" json:"shipstation_username,omitempty"`
	PasswordHash        *string         `db:"password_hash" json:"-"`
	Configuration       json.RawMessage `db:"configuration" json:"configuration,omitempty"`
	Active              bool            `db:"active" json:"active"`
	CreatedAt           time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt           time.Time       `db:"updated_at" json:"updated_at"`
}

// IntegrationConfig is the decoded shape of StoreIntegration.Configuration.
type IntegrationConfig struct {
	ShipFrom *ShipFromAddress `json:"ship_from,omitempty"`
	BaseURL  string           `json:"base_url,omitempty"`
}

// Credentials is a decrypted bundle handed to a carrier gateway. Never
// persisted, never logged in the clear.
type Credentials struct {
	APIKey    string
	APISecret string
}

// ShipFromAddress is a store warehouse; one per store is flagged default.
type ShipFromAddress struct {
	ID         uuid.UUID `db:"id" json:"id"`
	StoreID    uuid.UUID `db:"store_id" json:"store_id"`
	Name       string    `db:"name" json:"name"`
	Company    *string   `db:"company" json:"company,omitempty"`
	Street1    string    `db:"street1" json:"street1"`
	Street2    *string   `db:"street2" json:"street2,omitempty"`
	City       string    `db:"city" json:"city"`
	State      string    `db:"state" json:"state"`
	PostalCode string    `db:"postal_code" json:"postal_code"`
	Country    string    `db:"country" json:"country"`
	Phone      *string   `db:"phone" json:"phone,omitempty"`
	IsDefault  bool      `db:"is_default" json:"is_default"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
}

type IntegrationLogStatus string

const (
	IntegrationLogSuccess IntegrationLogStatus = "success"
	IntegrationLogFailure IntegrationLogStatus = "failure"
	IntegrationLogWarning IntegrationLogStatus = "warning"
)

// IntegrationLog is a write-once audit record of one external
// integration operation. Raw diagnostic text belongs here, never in an
// HTTP response body.
type IntegrationLog struct {
	ID              uuid.UUID            `db:"id" json:"id"`
	StoreID         uuid.UUID            `db:"store_id" json:"store_id"`
	IntegrationType IntegrationType      `db:"integration_type" json:"integration_type"`
	Operation       string               `db:"operation" json:"operation"`
	Status          IntegrationLogStatus `db:"status" json:"status"`
	RequestData     json.RawMessage      `db:"request_data" json:"request_data,omitempty"`
	ResponseData    json.RawMessage      `db:"response_data" json:"response_data,omitempty"`
	ExecutionTimeMs int64                `db:"execution_time_ms" json:"execution_time_ms"`
	ErrorMessage    *string              `db:"error_message" json:"error_message,omitempty"`
	CreatedAt       time.Time            `db:"created_at" json:"created_at"`
}
