package quote

import (
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// ErrMalformed marks a broker field that is absent or not a number.
var ErrMalformed = errors.New("malformed quote field")

// ParsePrice parses a broker price such as "1,234.5".
//
// Thousands separators and surrounding whitespace are ignored. An empty value
// is an error: prices are mandatory wherever this is used.
func ParsePrice(s string) (decimal.Decimal, error) {
	clean := normalizeNumber(s)
	if clean == "" {
		return decimal.Zero, fmt.Errorf("%w: empty price", ErrMalformed)
	}
	d, err := decimal.NewFromString(clean)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: price %q", ErrMalformed, s)
	}
	return d, nil
}

// ParseOptionalPrice is ParsePrice with empty/null treated as zero. Used for
// the opening price, which the broker leaves blank before the open.
func ParseOptionalPrice(s string) (decimal.Decimal, error) {
	if normalizeNumber(s) == "" {
		return decimal.Zero, nil
	}
	return ParsePrice(s)
}

// ParsePercent parses a percent-change field. Blank means 0.
func ParsePercent(s string) (decimal.Decimal, error) {
	clean := normalizeNumber(s)
	if clean == "" {
		return decimal.Zero, nil
	}
	d, err := decimal.NewFromString(clean)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: percent %q", ErrMalformed, s)
	}
	return d, nil
}

// ParseCeiling parses the daily ceiling price and truncates it to one
// decimal place.
func ParseCeiling(s string) (decimal.Decimal, error) {
	d, err := ParsePrice(s)
	if err != nil {
		return decimal.Zero, err
	}
	return d.Truncate(1), nil
}

func normalizeNumber(s string) string {
	s = strings.TrimSpace(s)
	if strings.EqualFold(s, "null") || strings.EqualFold(s, "none") {
		return ""
	}
	return strings.ReplaceAll(s, ",", "")
}
