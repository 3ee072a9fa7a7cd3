package quote

import (
	"fmt"

	"github.com/shopspring/decimal"
)

var (
	hundred        = decimal.NewFromInt(100)
	slippageFactor = decimal.RequireFromString("1.02")
)

// CeilingBandPercent returns the percent gap between the daily ceiling and
// the previous close, truncated toward zero to two decimal places.
//
// The division is exact: 100 -> 110 yields exactly 10, never 9.99.
func CeilingBandPercent(ceiling, prevClose decimal.Decimal) (decimal.Decimal, error) {
	if prevClose.IsZero() {
		return decimal.Zero, fmt.Errorf("%w: previous close is zero", ErrMalformed)
	}
	q, _ := ceiling.Sub(prevClose).Mul(hundred).QuoRem(prevClose, 2)
	return q, nil
}

// ProtectiveLimit is the price an order is willing to pay: 2% above the last
// trade, truncated to one decimal place.
func ProtectiveLimit(tradePrice decimal.Decimal) decimal.Decimal {
	return tradePrice.Mul(slippageFactor).Truncate(1)
}
