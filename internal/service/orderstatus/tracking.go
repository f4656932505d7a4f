package orderstatus

import "strings"

// Vendor tracking URL templates by lower-cased carrier code. Unknown
// carriers fall through to a generic third-party tracker.
var trackingURLs = map[string]string{
	"ups":    "https://www.ups.com/track?tracknum=",
	"fedex":  "https://www.fedex.com/fedextrack/?trknbr=",
	"usps":   "https://tools.usps.com/go/TrackConfirmAction?tLabels=",
	"dhl":    "https://www.dhl.com/en/express/tracking.html?AWB=",
	"ontrac": "https://www.ontrac.com/tracking/?number=",
}

const genericTrackerURL = "https://www.packagetrackr.com/track/"

// TrackingURL derives the customer-facing tracking link. Carrier match
// is case-insensitive; an empty tracking number yields an empty URL.
func TrackingURL(trackingNumber, carrierCode string) string {
	if trackingNumber == "" {
		return ""
	}
	if base, ok := trackingURLs[strings.ToLower(strings.TrimSpace(carrierCode))]; ok {
		return base + trackingNumber
	}
	return genericTrackerURL + trackingNumber
}
