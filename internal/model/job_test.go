package model

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

func TestJobPriorityRank(t *testing.T) {
	assert.Less(t, JobPriorityUrgent.Rank(), JobPriorityHigh.Rank())
	assert.Less(t, JobPriorityHigh.Rank(), JobPriorityMedium.Rank())
	assert.Less(t, JobPriorityMedium.Rank(), JobPriorityLow.Rank())
	// Unrecognised priorities sort last.
	assert.GreaterOrEqual(t, JobPriority("bogus").Rank(), JobPriorityLow.Rank())
}

func TestShipNoticeEventKey(t *testing.T) {
	storeID := uuid.New()
	notice := &ShipNotice{
		EventType:      WebhookShipNotify,
		CarrierOrderID: "CARRIER-9",
		TrackingNumber: "1Z1",
	}

	key := notice.EventKey(storeID)
	assert.Contains(t, key, storeID.String())
	assert.Contains(t, key, "ship_notify")

	// A second delivery of the same event yields the same key; a new
	// tracking number does not.
	assert.Equal(t, key, notice.EventKey(storeID))
	other := *notice
	other.TrackingNumber = "1Z2"
	assert.NotEqual(t, key, other.EventKey(storeID))
}
