package quote

import (
	"time"

	"github.com/shopspring/decimal"
)

// Snapshot is one normalized market-data poll. A new Snapshot replaces the
// previous one on every poll; it is never mutated.
type Snapshot struct {
	Symbol string

	// TradePriceRaw is kept verbatim; it is parsed only once the loop is
	// active so a bad trade price fails the symbol at that point.
	TradePriceRaw string

	OpeningPrice  decimal.Decimal
	PercentChange decimal.Decimal
	CeilingPrice  decimal.Decimal // truncated to 1dp
	PreviousClose decimal.Decimal

	At time.Time
}

// Opened reports whether the symbol has printed an opening price yet.
func (s Snapshot) Opened() bool {
	return !s.OpeningPrice.IsZero()
}

// TradePrice parses TradePriceRaw.
func (s Snapshot) TradePrice() (decimal.Decimal, error) {
	return ParsePrice(s.TradePriceRaw)
}
