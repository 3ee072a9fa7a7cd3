package autobuy

import (
	"time"

	"github.com/sirupsen/logrus"

	"tms-autobuy/internal/jsonl"
)

type journalEvent struct {
	TsMs  int64  `json:"ts_ms"`
	Event string `json:"event"` // start | login | gate_open | order | terminated | summary
	RunID string `json:"run_id"`

	Host    string   `json:"host,omitempty"`
	Symbols []string `json:"symbols,omitempty"`
	Account string   `json:"account,omitempty"`
	Market  string   `json:"market,omitempty"`

	// Per-order fields.
	Symbol        string `json:"symbol,omitempty"`
	Kind          string `json:"kind,omitempty"` // probe | final
	Quantity      int    `json:"quantity,omitempty"`
	LimitPrice    string `json:"limit_price,omitempty"`
	MarketPrice   string `json:"market_price,omitempty"`
	PercentChange string `json:"percent_change,omitempty"`
	CeilingBand   string `json:"ceiling_band,omitempty"`
	Token         string `json:"token,omitempty"`
	Code          string `json:"code,omitempty"`
	LatencyMs     int64  `json:"latency_ms,omitempty"`
	Ok            bool   `json:"ok,omitempty"`

	Reason  Reason `json:"reason,omitempty"`
	Orders  int    `json:"orders,omitempty"`
	Err     string `json:"err,omitempty"`
	Summary any    `json:"summary,omitempty"`

	UptimeMs int64 `json:"uptime_ms,omitempty"`
}

func logEvent(log logrus.FieldLogger, w *jsonl.Writer, ev journalEvent) {
	if w == nil {
		return
	}
	if ev.TsMs == 0 {
		ev.TsMs = time.Now().UnixMilli()
	}
	if err := w.Write(ev); err != nil {
		log.WithError(err).Warn("journal write failed")
	}
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
