package model

import (
	"time"

	"github.com/google/uuid"
)

// NotificationTemplate is a store-scoped email template, keyed by kind
// (shipped, delivered). Subject and body support {{field}} placeholders.
type NotificationTemplate struct {
	ID        uuid.UUID `db:"id" json:"id"`
	StoreID   uuid.UUID `db:"store_id" json:"store_id"`
	Kind      string    `db:"kind" json:"kind"`
	Subject   string    `db:"subject" json:"subject"`
	Body      string    `db:"body" json:"body"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}
