package autobuy

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"tms-autobuy/internal/jsonl"
	"tms-autobuy/internal/metrics"
	"tms-autobuy/internal/quote"
	"tms-autobuy/internal/tms"
	"tms-autobuy/internal/tokenpool"
)

// ProbeQuantity is the size of every escalation order below the final push.
const ProbeQuantity = 10

// DefaultTriggerFloor is the initial trigger percent. Any real percent change
// above it makes the first poll eligible.
var DefaultTriggerFloor = decimal.NewFromInt(-2)

// finalPushGap is the remaining band (in percent points) at or below which
// the full quantity is bought at the ceiling.
var finalPushGap = decimal.RequireFromString("2.1")

const (
	kindProbe = "probe"
	kindFinal = "final"
)

// runEnv is the read-only context shared by the gate and every loop of one
// run.
type runEnv struct {
	broker  Broker
	session *tms.Session
	account tms.Account

	log     logrus.FieldLogger
	journal *jsonl.Writer
	metrics *metrics.Metrics

	runID string
	loc   *time.Location
	now   func() time.Time
}

// DispatchLoop drives one symbol from first poll to a terminal state.
type DispatchLoop struct {
	env   *runEnv
	state *watchState
	log   logrus.FieldLogger

	orders int
}

func newDispatchLoop(env *runEnv, symbol string, quantity int, pool *tokenpool.Pool, floor decimal.Decimal) *DispatchLoop {
	return &DispatchLoop{
		env:   env,
		state: newWatchState(symbol, quantity, pool, floor),
		log:   env.log.WithField("symbol", symbol),
	}
}

// Run never returns an error: every failure is folded into the Outcome so a
// symbol can fail without touching its siblings.
func (l *DispatchLoop) Run(ctx context.Context) Outcome {
	started := l.env.now()
	err := l.run(ctx)
	st := l.state
	st.phase = phaseTerminated

	out := Outcome{
		Symbol:      st.symbol,
		Reason:      classify(ctx, err),
		Err:         err,
		Orders:      l.orders,
		TokensUsed:  st.cursor,
		LastTrigger: st.lastTrigger,
		CeilingBand: st.ceilingBand,
		Duration:    l.env.now().Sub(started),
	}
	if out.OK() {
		l.log.Infof("%s reached the ceiling band after %d orders", st.symbol, out.Orders)
	} else {
		l.log.WithError(err).WithField("reason", out.Reason).Errorf("%s terminated", st.symbol)
	}
	l.env.metrics.Outcome(string(out.Reason))
	logEvent(l.log, l.env.journal, journalEvent{
		Event:       "terminated",
		RunID:       l.env.runID,
		Symbol:      st.symbol,
		Reason:      out.Reason,
		Orders:      out.Orders,
		CeilingBand: st.ceilingBand.String(),
		Err:         errString(err),
		Ok:          out.OK(),
	})
	return out
}

// run returns nil only when the final push was accepted.
func (l *DispatchLoop) run(ctx context.Context) error {
	st := l.state

	for st.phase == phaseAwaitingOpen {
		if err := l.poll(ctx); err != nil {
			return err
		}
		if !st.lastQuote.Opened() {
			continue
		}
		if err := st.fixBand(st.lastQuote); err != nil {
			return err
		}
		st.phase = phaseActive
		l.log.Debugf("%s opened at %s, ceiling band %s%%", st.symbol, st.lastQuote.OpeningPrice, st.ceilingBand)
	}

	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		q := st.lastQuote
		trade, err := q.TradePrice()
		if err != nil {
			return &tms.QuoteError{Symbol: st.symbol, Err: err}
		}
		limit := quote.ProtectiveLimit(trade)

		if st.eligible() {
			token, err := st.token()
			if err != nil {
				return err
			}
			if st.remainingGap().LessThanOrEqual(finalPushGap) {
				st.cursor++
				return l.submit(ctx, kindFinal, st.quantity, q.CeilingPrice, trade, token)
			}
			if err := l.submit(ctx, kindProbe, ProbeQuantity, limit, trade, token); err != nil {
				st.cursor++
				return err
			}
			st.advance(q.PercentChange)
		}

		if err := l.poll(ctx); err != nil {
			return err
		}
	}
}

func (l *DispatchLoop) poll(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	q, err := l.env.broker.PollQuote(ctx, l.env.session, l.state.symbol)
	l.env.metrics.Poll(l.state.symbol, err)
	if err != nil {
		return err
	}
	l.state.lastQuote = q
	return nil
}

func (l *DispatchLoop) submit(ctx context.Context, kind string, qty int, limit, market decimal.Decimal, token string) error {
	st := l.state
	req := tms.OrderRequest{
		Symbol:      st.symbol,
		Quantity:    qty,
		LimitPrice:  limit,
		MarketPrice: market,
		Token:       token,
	}
	ack, err := l.env.broker.SubmitOrder(ctx, l.env.session, l.env.account, req)
	l.env.metrics.Order(st.symbol, kind, ack.Latency, err)

	ev := journalEvent{
		Event:         "order",
		RunID:         l.env.runID,
		Symbol:        st.symbol,
		Kind:          kind,
		Quantity:      qty,
		LimitPrice:    limit.StringFixed(1),
		MarketPrice:   market.String(),
		PercentChange: st.lastQuote.PercentChange.String(),
		CeilingBand:   st.ceilingBand.String(),
		Token:         token,
		Code:          ack.Code,
		LatencyMs:     ack.Latency.Milliseconds(),
		Ok:            err == nil,
		Err:           errString(err),
	}
	logEvent(l.log, l.env.journal, ev)
	if err != nil {
		return err
	}

	l.orders++
	at := l.env.now().In(l.env.loc).Format("15:04:05.000")
	l.log.WithFields(logrus.Fields{
		"kind":       kind,
		"token":      token,
		"latency_ms": ack.Latency.Milliseconds(),
	}).Infof("Order is placed for %s of %d kitta @%s at %s", st.symbol, qty, limit.StringFixed(1), at)
	return nil
}

func classify(ctx context.Context, err error) Reason {
	var (
		qe *tms.QuoteError
		oe *tms.OrderError
	)
	switch {
	case err == nil:
		return ReasonCeilingReached
	case ctx.Err() != nil, errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return ReasonCanceled
	case errors.Is(err, tokenpool.ErrExhausted):
		return ReasonTokenPoolExhausted
	case errors.As(err, &oe):
		return ReasonOrderError
	case errors.As(err, &qe), errors.Is(err, quote.ErrMalformed):
		return ReasonQuoteError
	default:
		return ReasonFailed
	}
}

// panicOutcome is reported for a loop that panicked instead of returning.
func panicOutcome(symbol string, rec error) Outcome {
	return Outcome{
		Symbol: symbol,
		Reason: ReasonPanic,
		Err:    fmt.Errorf("%s loop panicked: %w", symbol, rec),
	}
}
