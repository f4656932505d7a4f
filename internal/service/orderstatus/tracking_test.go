package orderstatus

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTrackingURLKnownCarriers(t *testing.T) {
	assert.Equal(t, "https://www.ups.com/track?tracknum=1Z999AA10123456784", TrackingURL("1Z999AA10123456784", "ups"))
	assert.Equal(t, "https://www.fedex.com/fedextrack/?trknbr=794644790132", TrackingURL("794644790132", "fedex"))
	assert.Equal(t, "https://tools.usps.com/go/TrackConfirmAction?tLabels=9400100000000000000000", TrackingURL("9400100000000000000000", "usps"))
}

func TestTrackingURLCarrierCaseInsensitive(t *testing.T) {
	assert.Equal(t, TrackingURL("1Z1", "ups"), TrackingURL("1Z1", "UPS"))
	assert.Equal(t, TrackingURL("1Z1", "ups"), TrackingURL("1Z1", "  Ups  "))
}

func TestTrackingURLUnknownCarrierFallsBack(t *testing.T) {
	assert.Equal(t, "https://www.packagetrackr.com/track/ABC123", TrackingURL("ABC123", "some_regional_carrier"))
	assert.Equal(t, "https://www.packagetrackr.com/track/ABC123", TrackingURL("ABC123", ""))
}

func TestTrackingURLEmptyTrackingNumber(t *testing.T) {
	assert.Empty(t, TrackingURL("", "ups"))
	assert.Empty(t, TrackingURL("", ""))
}
