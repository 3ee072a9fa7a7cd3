// Package metrics exposes Prometheus counters for the autobuy loops.
//
//   - autobuy_quote_polls_total{symbol,result}   quote polls (ok|error)
//   - autobuy_orders_total{symbol,kind,result}    orders (kind: probe|final)
//   - autobuy_order_latency_seconds{kind}         order round-trip latency
//   - autobuy_outcomes_total{reason}              terminal states per symbol
//   - autobuy_gate_checks_total                   market-gate status checks
//
// All methods are no-ops on a nil *Metrics.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Metrics struct {
	reg *prometheus.Registry

	polls        *prometheus.CounterVec
	orders       *prometheus.CounterVec
	orderLatency *prometheus.HistogramVec
	outcomes     *prometheus.CounterVec
	gateChecks   prometheus.Counter
}

func New() *Metrics {
	m := &Metrics{
		reg: prometheus.NewRegistry(),
		polls: prometheus.NewCounterVec(
			prometheus.CounterOpts{Name: "autobuy_quote_polls_total", Help: "Quote polls by symbol and result"},
			[]string{"symbol", "result"},
		),
		orders: prometheus.NewCounterVec(
			prometheus.CounterOpts{Name: "autobuy_orders_total", Help: "Order submissions by symbol, kind and result"},
			[]string{"symbol", "kind", "result"},
		),
		orderLatency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "autobuy_order_latency_seconds",
				Help:    "Order submission round-trip latency",
				Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
			},
			[]string{"kind"},
		),
		outcomes: prometheus.NewCounterVec(
			prometheus.CounterOpts{Name: "autobuy_outcomes_total", Help: "Terminal symbol outcomes by reason"},
			[]string{"reason"},
		),
		gateChecks: prometheus.NewCounter(
			prometheus.CounterOpts{Name: "autobuy_gate_checks_total", Help: "Market status checks made by the market gate"},
		),
	}
	m.reg.MustRegister(m.polls, m.orders, m.orderLatency, m.outcomes, m.gateChecks)
	m.reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{})
}

func (m *Metrics) Poll(symbol string, err error) {
	if m == nil {
		return
	}
	m.polls.WithLabelValues(symbol, result(err)).Inc()
}

func (m *Metrics) Order(symbol, kind string, latency time.Duration, err error) {
	if m == nil {
		return
	}
	m.orders.WithLabelValues(symbol, kind, result(err)).Inc()
	if latency > 0 {
		m.orderLatency.WithLabelValues(kind).Observe(latency.Seconds())
	}
}

func (m *Metrics) Outcome(reason string) {
	if m == nil {
		return
	}
	m.outcomes.WithLabelValues(reason).Inc()
}

func (m *Metrics) GateCheck() {
	if m == nil {
		return
	}
	m.gateChecks.Inc()
}

func result(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
