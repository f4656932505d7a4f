package codec

import (
	"fmt"
	"strconv"
	"strings"
)

// Cents is the internal money representation: integer minor units.
// Conversion to the carrier's fixed 2-decimal dollar strings happens
// only at the protocol boundary.
type Cents int64

// FormatDollars renders cents as a fixed 2-decimal dollar string, the
// only numeric money format the carrier platform accepts.
func (c Cents) FormatDollars() string {
	sign := ""
	v := int64(c)
	if v < 0 {
		sign = "-"
		v = -v
	}
	return fmt.Sprintf("%s%d.%02d", sign, v/100, v%100)
}

// ParseDollars converts a carrier dollar string ("12.34", "12", "12.5")
// into cents.
func ParseDollars(s string) (Cents, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("empty money value")
	}

	negative := false
	if strings.HasPrefix(s, "-") {
		negative = true
		s = s[1:]
	}

	whole := s
	frac := ""
	if i := strings.IndexByte(s, '.'); i >= 0 {
		whole, frac = s[:i], s[i+1:]
	}
	if whole == "" {
		whole = "0"
	}

	dollars, err := strconv.ParseInt(whole, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid money value %q: %w", s, err)
	}

	var centsPart int64
	switch len(frac) {
	case 0:
	case 1:
		d, err := strconv.ParseInt(frac, 10, 64)
		if err != nil {
			return 0, fmt.Errorf("invalid money value %q: %w", s, err)
		}
		centsPart = d * 10
	case 2:
		d, err := strconv.ParseInt(frac, 10, 64)
		if err != nil {
			return 0, fmt.Errorf("invalid money value %q: %w", s, err)
		}
		centsPart = d
	default:
		// Cents cannot hold sub-cent precision; truncating would lose
		// money silently, so refuse the value outright.
		return 0, fmt.Errorf("invalid money value %q: more than 2 decimal places", s)
	}

	total := dollars*100 + centsPart
	if negative {
		total = -total
	}
	return Cents(total), nil
}
