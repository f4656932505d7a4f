package codec

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFormatCarrierDate(t *testing.T) {
	ts := time.Date(2025, 3, 7, 14, 30, 45, 0, time.Local)
	assert.Equal(t, "03/07/2025 14:30", FormatCarrierDate(ts))
}

func TestParseCarrierDate(t *testing.T) {
	got, err := ParseCarrierDate("03/07/2025 14:30")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2025, 3, 7, 14, 30, 0, 0, time.Local), got)
}

func TestParseCarrierDateDateOnly(t *testing.T) {
	got, err := ParseCarrierDate("12/25/2024")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 12, 25, 0, 0, 0, 0, time.Local), got)
}

func TestParseCarrierDateRejectsOtherForms(t *testing.T) {
	for _, in := range []string{"", "2025-03-07T14:30:00Z", "07.03.2025", "not a date"} {
		_, err := ParseCarrierDate(in)
		assert.Error(t, err, "input %q", in)
	}
}

// Seconds are dropped on format and cannot come back on parse.
func TestCarrierDateRoundTripIsLossy(t *testing.T) {
	ts := time.Date(2025, 6, 1, 9, 5, 59, 0, time.Local)
	parsed, err := ParseCarrierDate(FormatCarrierDate(ts))
	require.NoError(t, err)
	assert.Equal(t, 0, parsed.Second())
	assert.Equal(t, ts.Truncate(time.Minute), parsed)
}
