// Package autobuy runs the per-symbol escalating buy loops against a TMS
// broker session.
package autobuy

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/sourcegraph/conc/panics"
	"github.com/sourcegraph/conc/pool"

	"tms-autobuy/internal/jsonl"
	"tms-autobuy/internal/logging"
	"tms-autobuy/internal/metrics"
	"tms-autobuy/internal/symbols"
	"tms-autobuy/internal/tokenpool"
)

type Config struct {
	Host     string // informational, for the journal
	Username string
	Password string

	Stocks []symbols.Entry

	Location *time.Location
	OpenHour int
	// Sentinel is polled by the market gate. Defaults to the first stock.
	Sentinel string

	PoolSize int
	// TriggerFloor overrides DefaultTriggerFloor when Valid.
	TriggerFloor decimal.NullDecimal
}

type Option func(*Orchestrator)

func WithLogger(l logrus.FieldLogger) Option {
	return func(o *Orchestrator) {
		if l != nil {
			o.log = l
		}
	}
}

func WithJournal(w *jsonl.Writer) Option {
	return func(o *Orchestrator) { o.journal = w }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(o *Orchestrator) { o.metrics = m }
}

// WithClock replaces time.Now for the market gate and order timestamps.
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) {
		if now != nil {
			o.now = now
		}
	}
}

// OnReady is called once the session is established and the token pools
// are primed, before the market gate.
func OnReady(fn func()) Option {
	return func(o *Orchestrator) { o.onReady = fn }
}

func WithRunID(id string) Option {
	return func(o *Orchestrator) {
		if id != "" {
			o.runID = id
		}
	}
}

type Orchestrator struct {
	client Client
	cfg    Config

	log     logrus.FieldLogger
	journal *jsonl.Writer
	metrics *metrics.Metrics
	now     func() time.Time
	onReady func()
	runID   string
}

func New(client Client, cfg Config, opts ...Option) (*Orchestrator, error) {
	if client == nil {
		return nil, errors.New("autobuy: nil client")
	}
	if len(cfg.Stocks) == 0 {
		return nil, errors.New("autobuy: no stocks configured")
	}
	stocks, err := symbols.Normalize(cfg.Stocks)
	if err != nil {
		return nil, fmt.Errorf("autobuy: %w", err)
	}
	cfg.Stocks = stocks
	if cfg.Username == "" {
		return nil, errors.New("autobuy: username is required")
	}
	if cfg.Location == nil {
		return nil, errors.New("autobuy: exchange location is required")
	}
	if cfg.OpenHour < 0 || cfg.OpenHour > 23 {
		return nil, fmt.Errorf("autobuy: open hour must be 0..23, got %d", cfg.OpenHour)
	}
	if cfg.PoolSize == 0 {
		cfg.PoolSize = tokenpool.DefaultSize
	}
	if cfg.PoolSize < 0 {
		return nil, fmt.Errorf("autobuy: token pool size must be > 0, got %d", cfg.PoolSize)
	}
	cfg.Sentinel = strings.ToUpper(strings.TrimSpace(cfg.Sentinel))
	if cfg.Sentinel == "" {
		cfg.Sentinel = cfg.Stocks[0].Symbol
	}
	if !cfg.TriggerFloor.Valid {
		cfg.TriggerFloor = decimal.NewNullDecimal(DefaultTriggerFloor)
	}

	o := &Orchestrator{
		client: client,
		cfg:    cfg,
		log:    logrus.StandardLogger(),
		now:    time.Now,
		runID:  uuid.NewString(),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o, nil
}

func (o *Orchestrator) RunID() string { return o.runID }

// Run authenticates, waits for the market gate, then runs one loop per
// stock concurrently until every loop has terminated. It returns an error
// only for run-scoped failures (session, account, token pools, cancellation
// before the gate opens); per-symbol failures are in the Report.
// The client's idle connections are closed on return.
func (o *Orchestrator) Run(ctx context.Context) (Report, error) {
	defer o.client.Close()

	rep := Report{RunID: o.runID, Started: o.now()}
	log := o.log.WithField("run_id", o.runID)
	finish := func(err error) (Report, error) {
		rep.Finished = o.now()
		return rep, err
	}

	syms := make([]string, 0, len(o.cfg.Stocks))
	for _, e := range o.cfg.Stocks {
		syms = append(syms, e.Symbol)
	}
	log.Infof("starting autobuy for %s", symbols.Join(o.cfg.Stocks))
	logEvent(log, o.journal, journalEvent{Event: "start", RunID: o.runID, Host: o.cfg.Host, Symbols: syms})

	sess, err := o.client.Authenticate(ctx, o.cfg.Username, o.cfg.Password)
	if err != nil {
		return finish(fmt.Errorf("authenticate: %w", err))
	}
	logging.Console(log).Info("Login successfully!")

	acct, err := o.client.FetchAccount(ctx, sess)
	if err != nil {
		return finish(fmt.Errorf("fetch account: %w", err))
	}
	logging.Console(log).Info("Details fetched successfully!")
	logEvent(log, o.journal, journalEvent{Event: "login", RunID: o.runID, Account: acct.AccountID})

	pools := make([]*tokenpool.Pool, len(o.cfg.Stocks))
	for i, e := range o.cfg.Stocks {
		p, err := tokenpool.Generate(o.cfg.PoolSize)
		if err != nil {
			return finish(fmt.Errorf("token pool for %s: %w", e.Symbol, err))
		}
		pools[i] = p
	}

	if o.onReady != nil {
		o.onReady()
	}

	env := &runEnv{
		broker:  o.client,
		session: sess,
		account: acct,
		log:     log,
		journal: o.journal,
		metrics: o.metrics,
		runID:   o.runID,
		loc:     o.cfg.Location,
		now:     o.now,
	}

	status, err := newMarketGate(env, o.cfg.Sentinel, o.cfg.OpenHour).Wait(ctx)
	if err != nil {
		return finish(fmt.Errorf("market gate: %w", err))
	}
	logEvent(log, o.journal, journalEvent{Event: "gate_open", RunID: o.runID, Market: status.String()})

	results := pool.NewWithResults[Outcome]()
	for i, e := range o.cfg.Stocks {
		loop := newDispatchLoop(env, e.Symbol, e.Quantity, pools[i], o.cfg.TriggerFloor.Decimal)
		symbol := e.Symbol
		results.Go(func() Outcome {
			var out Outcome
			if r := panics.Try(func() { out = loop.Run(ctx) }); r != nil {
				out = panicOutcome(symbol, r.AsError())
				log.WithField("symbol", symbol).WithError(out.Err).Error("loop panicked")
				o.metrics.Outcome(string(out.Reason))
				logEvent(log, o.journal, journalEvent{
					Event:  "terminated",
					RunID:  o.runID,
					Symbol: symbol,
					Reason: out.Reason,
					Err:    errString(out.Err),
				})
			}
			return out
		})
	}
	outs := results.Wait()

	order := make(map[string]int, len(o.cfg.Stocks))
	for i, e := range o.cfg.Stocks {
		order[e.Symbol] = i
	}
	slices.SortFunc(outs, func(a, b Outcome) int { return order[a.Symbol] - order[b.Symbol] })
	rep.Outcomes = outs

	rep, err = finish(nil)
	failed := rep.Failed()
	log.Infof("run finished: %d of %d symbols reached the ceiling band", len(outs)-len(failed), len(outs))
	logEvent(log, o.journal, journalEvent{Event: "summary", RunID: o.runID, Summary: rep.Summary()})
	return rep, err
}
