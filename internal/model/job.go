package model

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

type JobType string

const (
	JobTypeOrderNotification  JobType = "order_notification"
	JobTypeInventoryUpdate    JobType = "inventory_update"
	JobTypeShipmentProcessing JobType = "shipment_processing"
	JobTypeWebhookProcessing  JobType = "webhook_processing"
)

type JobStatus string

const (
	JobStatusPending    JobStatus = "pending"
	JobStatusProcessing JobStatus = "processing"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusFailed     JobStatus = "failed"
	JobStatusRetrying   JobStatus = "retrying"
)

type JobPriority string

const (
	JobPriorityUrgent JobPriority = "urgent"
	JobPriorityHigh   JobPriority = "high"
	JobPriorityMedium JobPriority = "medium"
	JobPriorityLow    JobPriority = "low"
)

// PriorityRank orders priorities for dequeue; lower rank dequeues first.
func (p JobPriority) Rank() int {
	switch p {
	case JobPriorityUrgent:
		return 0
	case JobPriorityHigh:
		return 1
	case JobPriorityMedium:
		return 2
	case JobPriorityLow:
		return 3
	default:
		return 4
	}
}

// Job is a unit of deferred work on the fulfillment queue. A job in
// processing is owned by exactly one worker pass; attempts never
// exceeds MaxAttempts.
type Job struct {
	ID           uuid.UUID       `db:"id" json:"id"`
	JobType      JobType         `db:"job_type" json:"job_type"`
	Payload      json.RawMessage `db:"payload" json:"payload"`
	Status       JobStatus       `db:"status" json:"status"`
	Priority     JobPriority     `db:"priority" json:"priority"`
	Attempts     int             `db:"attempts" json:"attempts"`
	MaxAttempts  int             `db:"max_attempts" json:"max_attempts"`
	ScheduledAt  time.Time       `db:"scheduled_at" json:"scheduled_at"`
	ErrorMessage *string         `db:"error_message" json:"error_message,omitempty"`
	CreatedAt    time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time       `db:"updated_at" json:"updated_at"`
	StartedAt    *time.Time      `db:"started_at" json:"started_at,omitempty"`
	CompletedAt  *time.Time      `db:"completed_at" json:"completed_at,omitempty"`
}

// JobStats aggregates queue counts for an observation window.
type JobStats struct {
	ByStatus   map[JobStatus]int   `json:"by_status"`
	ByType     map[JobType]int     `json:"by_type"`
	ByPriority map[JobPriority]int `json:"by_priority"`
	Total      int                 `json:"total"`
}

// OrderNotificationPayload is carried by order_notification jobs.
type OrderNotificationPayload struct {
	OrderID      uuid.UUID `json:"order_id"`
	StoreID      uuid.UUID `json:"store_id"`
	Notification string    `json:"notification"` // shipped, delivered
}

// ShipmentProcessingPayload is carried by shipment_processing jobs.
type ShipmentProcessingPayload struct {
	OrderID     uuid.UUID `json:"order_id"`
	StoreID     uuid.UUID `json:"store_id"`
	ServiceCode string    `json:"service_code,omitempty"`
}

// WebhookProcessingPayload is carried by webhook_processing jobs: the
// normalized notice, deferred off the webhook request path.
type WebhookProcessingPayload struct {
	StoreID uuid.UUID  `json:"store_id"`
	Notice  ShipNotice `json:"notice"`
}

// InventoryUpdatePayload is carried by inventory_update jobs.
type InventoryUpdatePayload struct {
	StoreID        uuid.UUID `json:"store_id"`
	ProductID      uuid.UUID `json:"product_id"`
	SKU            string    `json:"sku"`
	QuantityChange int       `json:"quantity_change"`
	Reason         string    `json:"reason"`
	ReferenceType  string    `json:"reference_type"`
	ReferenceID    string    `json:"reference_id"`
}
