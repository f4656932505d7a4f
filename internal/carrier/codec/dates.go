package codec

import (
	"fmt"
	"strings"
	"time"
)

// The carrier platform exchanges local-naive timestamps in this exact
// layout. Seconds and timezone are dropped on format and absent on
// parse; the round trip is lossy by design and must stay that way, the
// platform rejects ISO/UTC forms.
const carrierDateLayout = "01/02/2006 15:04"

// FormatCarrierDate renders a timestamp the way the carrier expects.
func FormatCarrierDate(t time.Time) string {
	return t.Format(carrierDateLayout)
}

// ParseCarrierDate parses MM/dd/yyyy HH:mm, tolerating a date without
// the time portion.
func ParseCarrierDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, fmt.Errorf("empty date value")
	}
	if t, err := time.ParseInLocation(carrierDateLayout, s, time.Local); err == nil {
		return t, nil
	}
	t, err := time.ParseInLocation("01/02/2006", s, time.Local)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid carrier date %q", s)
	}
	return t, nil
}
