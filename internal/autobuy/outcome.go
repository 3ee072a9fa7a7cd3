package autobuy

import (
	"time"

	"github.com/shopspring/decimal"
)

type Reason string

const (
	ReasonCeilingReached     Reason = "ceiling_reached"
	ReasonQuoteError         Reason = "quote_error"
	ReasonOrderError         Reason = "order_error"
	ReasonTokenPoolExhausted Reason = "token_pool_exhausted"
	ReasonCanceled           Reason = "canceled"
	ReasonPanic              Reason = "panic"
	ReasonFailed             Reason = "failed"
)

// Outcome is the terminal report of one symbol's loop.
type Outcome struct {
	Symbol string
	Reason Reason
	Err    error

	Orders      int // accepted submissions, probes and final
	TokensUsed  int
	LastTrigger decimal.Decimal
	CeilingBand decimal.Decimal
	Duration    time.Duration
}

func (o Outcome) OK() bool { return o.Reason == ReasonCeilingReached }

// Report aggregates all symbol outcomes of one run, in configured order.
type Report struct {
	RunID    string
	Started  time.Time
	Finished time.Time
	Outcomes []Outcome
}

func (r Report) Failed() []Outcome {
	var out []Outcome
	for _, o := range r.Outcomes {
		if !o.OK() {
			out = append(out, o)
		}
	}
	return out
}

type outcomeSummary struct {
	Symbol      string `json:"symbol"`
	Reason      Reason `json:"reason"`
	Err         string `json:"err,omitempty"`
	Orders      int    `json:"orders"`
	TokensUsed  int    `json:"tokens_used"`
	LastTrigger string `json:"last_trigger_percent"`
	CeilingBand string `json:"ceiling_band_percent,omitempty"`
	DurationMs  int64  `json:"duration_ms"`
}

type reportSummary struct {
	RunID     string           `json:"run_id"`
	Started   time.Time        `json:"started"`
	Finished  time.Time        `json:"finished"`
	Succeeded int              `json:"succeeded"`
	Failed    int              `json:"failed"`
	Outcomes  []outcomeSummary `json:"outcomes"`
}

// Summary is a JSON-friendly view of the report.
func (r Report) Summary() any {
	s := reportSummary{RunID: r.RunID, Started: r.Started, Finished: r.Finished}
	for _, o := range r.Outcomes {
		row := outcomeSummary{
			Symbol:      o.Symbol,
			Reason:      o.Reason,
			Orders:      o.Orders,
			TokensUsed:  o.TokensUsed,
			LastTrigger: o.LastTrigger.String(),
			DurationMs:  o.Duration.Milliseconds(),
		}
		if o.Err != nil {
			row.Err = o.Err.Error()
		}
		if !o.CeilingBand.IsZero() {
			row.CeilingBand = o.CeilingBand.String()
		}
		if o.OK() {
			s.Succeeded++
		} else {
			s.Failed++
		}
		s.Outcomes = append(s.Outcomes, row)
	}
	return s
}
