package autobuy

import (
	"context"
	"errors"
	"io"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"tms-autobuy/internal/quote"
	"tms-autobuy/internal/tms"
)

type step struct {
	q   quote.Snapshot
	err error
}

type placed struct {
	req tms.OrderRequest
	pct decimal.Decimal // percent change of the last quote polled before the order
}

// fakeBroker replays a quote script per symbol. A symbol whose script runs
// out gets a QuoteError, which terminates its loop.
type fakeBroker struct {
	mu sync.Mutex

	scripts  map[string][]step
	polls    map[string]int
	lastPct  map[string]decimal.Decimal
	orders   []placed
	orderErr map[string]error

	statuses    []tms.MarketStatus
	statusErr   error
	statusCalls int

	authErr error
	acctErr error
	closed  bool

	pollHook  func(symbol string)
	orderHook func(o tms.OrderRequest)
}

func newFakeBroker() *fakeBroker {
	return &fakeBroker{
		scripts:  make(map[string][]step),
		polls:    make(map[string]int),
		lastPct:  make(map[string]decimal.Decimal),
		orderErr: make(map[string]error),
	}
}

func (f *fakeBroker) script(symbol string, steps ...step) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.scripts[symbol] = append(f.scripts[symbol], steps...)
}

func (f *fakeBroker) PollQuote(_ context.Context, _ *tms.Session, symbol string) (quote.Snapshot, error) {
	if f.pollHook != nil {
		f.pollHook(symbol)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	i := f.polls[symbol]
	f.polls[symbol]++
	script := f.scripts[symbol]
	if i >= len(script) {
		return quote.Snapshot{}, &tms.QuoteError{Symbol: symbol, Err: errors.New("script exhausted")}
	}
	if script[i].err == nil {
		f.lastPct[symbol] = script[i].q.PercentChange
	}
	return script[i].q, script[i].err
}

func (f *fakeBroker) SubmitOrder(_ context.Context, _ *tms.Session, _ tms.Account, o tms.OrderRequest) (tms.OrderAck, error) {
	if f.orderHook != nil {
		f.orderHook(o)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.orderErr[o.Symbol]; err != nil {
		return tms.OrderAck{}, err
	}
	f.orders = append(f.orders, placed{req: o, pct: f.lastPct[o.Symbol]})
	return tms.OrderAck{Code: "0", Latency: time.Millisecond}, nil
}

func (f *fakeBroker) MarketStatus(context.Context, *tms.Session) (tms.MarketStatus, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.statusCalls++
	if f.statusErr != nil {
		return tms.MarketUnknown, f.statusErr
	}
	if len(f.statuses) == 0 {
		return tms.MarketOpen, nil
	}
	i := min(f.statusCalls-1, len(f.statuses)-1)
	return f.statuses[i], nil
}

func (f *fakeBroker) Authenticate(_ context.Context, username, _ string) (*tms.Session, error) {
	if f.authErr != nil {
		return nil, f.authErr
	}
	return &tms.Session{Username: username, JSessionID: "sess", WatchID: "w1", BrokerCode: "58"}, nil
}

func (f *fakeBroker) FetchAccount(context.Context, *tms.Session) (tms.Account, error) {
	if f.acctErr != nil {
		return tms.Account{}, f.acctErr
	}
	return tms.Account{AccountID: "1001", ClientCode: "C1", ClientName: "DOE", NationalID: "N1"}, nil
}

func (f *fakeBroker) Close() {
	f.mu.Lock()
	f.closed = true
	f.mu.Unlock()
}

func (f *fakeBroker) pollCount(symbol string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.polls[symbol]
}

func (f *fakeBroker) allOrders() []placed {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]placed(nil), f.orders...)
}

func (f *fakeBroker) ordersFor(symbol string) []placed {
	var out []placed
	for _, p := range f.allOrders() {
		if p.req.Symbol == symbol {
			out = append(out, p)
		}
	}
	return out
}

func (f *fakeBroker) statusCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.statusCalls
}

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

// opened is a quote for a symbol trading with previous close 100 and
// ceiling 110, so the ceiling band is 10%.
func opened(pct, trade string) step {
	return step{q: quote.Snapshot{
		TradePriceRaw: trade,
		OpeningPrice:  dec("100"),
		PercentChange: dec(pct),
		CeilingPrice:  dec("110"),
		PreviousClose: dec("100"),
	}}
}

func preOpen() step {
	return step{q: quote.Snapshot{
		TradePriceRaw: "100",
		PercentChange: decimal.Zero,
		CeilingPrice:  dec("110"),
		PreviousClose: dec("100"),
	}}
}

func discardLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

func testEnv(b Broker) *runEnv {
	return &runEnv{
		broker:  b,
		session: &tms.Session{Username: "u", JSessionID: "sess"},
		account: tms.Account{AccountID: "1001"},
		log:     discardLogger(),
		runID:   "test-run",
		loc:     time.UTC,
		now:     time.Now,
	}
}
