package codec

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFormatDollars(t *testing.T) {
	assert.Equal(t, "0.00", Cents(0).FormatDollars())
	assert.Equal(t, "0.05", Cents(5).FormatDollars())
	assert.Equal(t, "12.34", Cents(1234).FormatDollars())
	assert.Equal(t, "12.00", Cents(1200).FormatDollars())
	assert.Equal(t, "-3.07", Cents(-307).FormatDollars())
	assert.Equal(t, "1234567.89", Cents(123456789).FormatDollars())
}

func TestParseDollars(t *testing.T) {
	cases := map[string]Cents{
		"12.34":   1234,
		"12":      1200,
		"12.5":    1250,
		".99":     99,
		"0.00":    0,
		"-3.07":   -307,
		" 12.34 ": 1234,
	}
	for in, want := range cases {
		got, err := ParseDollars(in)
		require.NoError(t, err, "input %q", in)
		assert.Equal(t, want, got, "input %q", in)
	}
}

func TestParseDollarsRejectsGarbage(t *testing.T) {
	for _, in := range []string{"", "   ", "abc", "12.x"} {
		_, err := ParseDollars(in)
		assert.Error(t, err, "input %q", in)
	}
}

func TestParseDollarsRejectsSubCentPrecision(t *testing.T) {
	for _, in := range []string{"12.345", "12.999", "0.001"} {
		_, err := ParseDollars(in)
		assert.Error(t, err, "input %q", in)
	}
}

func TestDollarsRoundTrip(t *testing.T) {
	for _, c := range []Cents{0, 1, 99, 100, 1234, -1234, 999999999} {
		parsed, err := ParseDollars(c.FormatDollars())
		require.NoError(t, err)
		assert.Equal(t, c, parsed)
	}
}
