package autobuy

import (
	"fmt"

	"github.com/shopspring/decimal"

	"tms-autobuy/internal/quote"
	"tms-autobuy/internal/tokenpool"
)

type phase int

const (
	phaseAwaitingOpen phase = iota
	phaseActive
	phaseTerminated
)

// watchState is the mutable state of one symbol. Exactly one DispatchLoop
// owns it, so it needs no locking.
type watchState struct {
	symbol   string
	quantity int

	phase     phase
	lastQuote quote.Snapshot

	ceilingBand decimal.Decimal
	bandSet     bool

	lastTrigger decimal.Decimal
	cursor      int
	pool        *tokenpool.Pool
}

func newWatchState(symbol string, quantity int, pool *tokenpool.Pool, triggerFloor decimal.Decimal) *watchState {
	return &watchState{
		symbol:      symbol,
		quantity:    quantity,
		phase:       phaseAwaitingOpen,
		lastTrigger: triggerFloor,
		pool:        pool,
	}
}

// fixBand computes the ceiling band from the first opened quote. Later calls
// are no-ops: the band is fixed for the life of the state.
func (s *watchState) fixBand(q quote.Snapshot) error {
	if s.bandSet {
		return nil
	}
	band, err := quote.CeilingBandPercent(q.CeilingPrice, q.PreviousClose)
	if err != nil {
		return fmt.Errorf("ceiling band for %s: %w", s.symbol, err)
	}
	s.ceilingBand = band
	s.bandSet = true
	return nil
}

// eligible reports a strict rise over the last trigger percent.
func (s *watchState) eligible() bool {
	return s.lastQuote.PercentChange.GreaterThan(s.lastTrigger)
}

func (s *watchState) remainingGap() decimal.Decimal {
	return s.ceilingBand.Sub(s.lastQuote.PercentChange)
}

func (s *watchState) token() (string, error) {
	return s.pool.At(s.cursor)
}

// advance records a probe at pct. pct is never below lastTrigger because
// advance only follows a successful eligible() check.
func (s *watchState) advance(pct decimal.Decimal) {
	if pct.GreaterThan(s.lastTrigger) {
		s.lastTrigger = pct
	}
	s.cursor++
}
