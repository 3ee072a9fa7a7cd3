package autobuy

import (
	"bufio"
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	json "github.com/goccy/go-json"

	"tms-autobuy/internal/jsonl"
	"tms-autobuy/internal/tms"
	"tms-autobuy/internal/tokenpool"
)

func mustPool(t *testing.T, n int) *tokenpool.Pool {
	t.Helper()
	p, err := tokenpool.Generate(n)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	return p
}

func TestDispatchLoop_ProbesThenFinalPush(t *testing.T) {
	b := newFakeBroker()
	b.script("ABC",
		preOpen(),
		preOpen(),
		opened("1.0", "101"),
		opened("1.0", "101"), // equal percent: no order
		opened("0.5", "100.5"),
		opened("3.0", "103"),
		opened("8.0", "108"), // gap 2.0: final push
		opened("9.0", "109"), // never polled
	)
	pool := mustPool(t, 5)
	loop := newDispatchLoop(testEnv(b), "ABC", 500, pool, DefaultTriggerFloor)

	out := loop.Run(context.Background())
	if out.Reason != ReasonCeilingReached || out.Err != nil {
		t.Fatalf("unexpected outcome: %+v", out)
	}
	if !out.CeilingBand.Equal(dec("10")) {
		t.Fatalf("ceiling band=%s want 10", out.CeilingBand)
	}
	if out.Orders != 3 || out.TokensUsed != 3 {
		t.Fatalf("orders=%d tokens=%d want 3/3", out.Orders, out.TokensUsed)
	}
	if !out.LastTrigger.Equal(dec("3.0")) {
		t.Fatalf("last trigger=%s want 3.0", out.LastTrigger)
	}
	if got := b.pollCount("ABC"); got != 7 {
		t.Fatalf("polls=%d want 7", got)
	}

	orders := b.ordersFor("ABC")
	if len(orders) != 3 {
		t.Fatalf("orders=%d want 3", len(orders))
	}
	want := []struct {
		qty   int
		limit string
	}{
		{ProbeQuantity, "103"}, // trunc1(101*1.02=103.02)
		{ProbeQuantity, "105"}, // trunc1(103*1.02=105.06)
		{500, "110"},           // ceiling
	}
	for i, w := range want {
		o := orders[i].req
		if o.Quantity != w.qty || !o.LimitPrice.Equal(dec(w.limit)) {
			t.Fatalf("order %d: qty=%d limit=%s want %d/%s", i, o.Quantity, o.LimitPrice, w.qty, w.limit)
		}
		tok, err := pool.At(i)
		if err != nil {
			t.Fatalf("At(%d): %v", i, err)
		}
		if o.Token != tok {
			t.Fatalf("order %d token=%q want %q", i, o.Token, tok)
		}
	}
}

func TestDispatchLoop_FirstPollAboveFloorProbes(t *testing.T) {
	b := newFakeBroker()
	b.script("XYZ", opened("-5", "95"), opened("1.0", "101"))
	loop := newDispatchLoop(testEnv(b), "XYZ", 100, mustPool(t, 3), DefaultTriggerFloor)

	out := loop.Run(context.Background())
	// -5 is below the floor, 1.0 probes, then the script runs out.
	if out.Reason != ReasonQuoteError {
		t.Fatalf("reason=%s want %s", out.Reason, ReasonQuoteError)
	}
	orders := b.ordersFor("XYZ")
	if len(orders) != 1 || orders[0].req.Quantity != ProbeQuantity {
		t.Fatalf("unexpected orders: %+v", orders)
	}
	if !out.LastTrigger.Equal(dec("1.0")) {
		t.Fatalf("last trigger=%s want 1.0", out.LastTrigger)
	}
}

func TestDispatchLoop_EqualPercentDoesNotOrder(t *testing.T) {
	b := newFakeBroker()
	b.script("ABC", opened("2.5", "102.5"), opened("2.5", "102.5"), opened("2.5", "102.5"))
	loop := newDispatchLoop(testEnv(b), "ABC", 100, mustPool(t, 3), DefaultTriggerFloor)

	out := loop.Run(context.Background())
	if out.Orders != 1 || len(b.ordersFor("ABC")) != 1 {
		t.Fatalf("orders=%d want 1", out.Orders)
	}
}

func TestDispatchLoop_BandFixedAtFirstOpenedQuote(t *testing.T) {
	b := newFakeBroker()
	later := opened("7.5", "107.5")
	// Recomputed from this quote the band would be 8 and force a final push.
	later.q.CeilingPrice = dec("108")
	b.script("ABC", opened("1.0", "101"), later)
	loop := newDispatchLoop(testEnv(b), "ABC", 100, mustPool(t, 3), DefaultTriggerFloor)

	out := loop.Run(context.Background())
	if !out.CeilingBand.Equal(dec("10")) {
		t.Fatalf("ceiling band=%s want 10", out.CeilingBand)
	}
	// Gap against the fixed band is 2.5 so the second quote only probes.
	orders := b.ordersFor("ABC")
	if len(orders) != 2 {
		t.Fatalf("orders=%d want 2", len(orders))
	}
	for _, o := range orders {
		if o.req.Quantity != ProbeQuantity {
			t.Fatalf("unexpected final push: %+v", o.req)
		}
	}
}

func TestDispatchLoop_FinalLimitIsCurrentCeiling(t *testing.T) {
	b := newFakeBroker()
	b.script("ABC", opened("9.0", "109"))
	loop := newDispatchLoop(testEnv(b), "ABC", 250, mustPool(t, 1), DefaultTriggerFloor)

	out := loop.Run(context.Background())
	if !out.OK() {
		t.Fatalf("unexpected outcome: %+v", out)
	}
	orders := b.ordersFor("ABC")
	if len(orders) != 1 {
		t.Fatalf("orders=%d want 1", len(orders))
	}
	o := orders[0].req
	if o.Quantity != 250 || !o.LimitPrice.Equal(dec("110")) || !o.MarketPrice.Equal(dec("109")) {
		t.Fatalf("unexpected final order: %+v", o)
	}
	if b.pollCount("ABC") != 1 {
		t.Fatalf("polled after final push")
	}
}

func TestDispatchLoop_TokenPoolExhausted(t *testing.T) {
	b := newFakeBroker()
	b.script("ABC", opened("1", "101"), opened("2", "102"), opened("3", "103"))
	loop := newDispatchLoop(testEnv(b), "ABC", 100, mustPool(t, 2), DefaultTriggerFloor)

	out := loop.Run(context.Background())
	if out.Reason != ReasonTokenPoolExhausted || !errors.Is(out.Err, tokenpool.ErrExhausted) {
		t.Fatalf("unexpected outcome: %+v", out)
	}
	if out.TokensUsed != 2 || out.Orders != 2 {
		t.Fatalf("tokens=%d orders=%d want 2/2", out.TokensUsed, out.Orders)
	}
}

func TestDispatchLoop_OrderErrorIsTerminal(t *testing.T) {
	b := newFakeBroker()
	b.orderErr["ABC"] = &tms.OrderError{Symbol: "ABC", Status: 500, Err: errors.New("boom")}
	b.script("ABC", opened("1", "101"), opened("2", "102"))
	loop := newDispatchLoop(testEnv(b), "ABC", 100, mustPool(t, 3), DefaultTriggerFloor)

	out := loop.Run(context.Background())
	if out.Reason != ReasonOrderError {
		t.Fatalf("reason=%s want %s", out.Reason, ReasonOrderError)
	}
	if out.TokensUsed != 1 || out.Orders != 0 {
		t.Fatalf("tokens=%d orders=%d want 1/0", out.TokensUsed, out.Orders)
	}
	if b.pollCount("ABC") != 1 {
		t.Fatalf("order error should not be followed by another poll")
	}
}

func TestDispatchLoop_BadTradePrice(t *testing.T) {
	b := newFakeBroker()
	b.script("ABC", opened("1", "n/a"))
	loop := newDispatchLoop(testEnv(b), "ABC", 100, mustPool(t, 3), DefaultTriggerFloor)

	out := loop.Run(context.Background())
	if out.Reason != ReasonQuoteError {
		t.Fatalf("reason=%s want %s", out.Reason, ReasonQuoteError)
	}
	if len(b.ordersFor("ABC")) != 0 {
		t.Fatalf("no order expected")
	}
}

func TestDispatchLoop_ZeroPreviousCloseFails(t *testing.T) {
	b := newFakeBroker()
	s := opened("1", "101")
	s.q.PreviousClose = dec("0")
	b.script("ABC", s)
	loop := newDispatchLoop(testEnv(b), "ABC", 100, mustPool(t, 3), DefaultTriggerFloor)

	if out := loop.Run(context.Background()); out.Reason != ReasonQuoteError {
		t.Fatalf("reason=%s want %s", out.Reason, ReasonQuoteError)
	}
}

func TestDispatchLoop_Canceled(t *testing.T) {
	b := newFakeBroker()
	ctx, cancel := context.WithCancel(context.Background())
	n := 0
	b.pollHook = func(string) {
		n++
		if n == 3 {
			cancel()
		}
	}
	steps := make([]step, 10)
	for i := range steps {
		steps[i] = preOpen()
	}
	b.script("ABC", steps...)
	loop := newDispatchLoop(testEnv(b), "ABC", 100, mustPool(t, 3), DefaultTriggerFloor)

	out := loop.Run(ctx)
	if out.Reason != ReasonCanceled {
		t.Fatalf("reason=%s want %s", out.Reason, ReasonCanceled)
	}
	if got := b.pollCount("ABC"); got != 3 {
		t.Fatalf("polls=%d want 3", got)
	}
}

func TestDispatchLoop_Journal(t *testing.T) {
	path := filepath.Join(t.TempDir(), "journal.jsonl")
	w := jsonl.New(path)
	b := newFakeBroker()
	b.script("ABC", opened("1", "101"), opened("9", "109"))
	env := testEnv(b)
	env.journal = w
	loop := newDispatchLoop(env, "ABC", 100, mustPool(t, 3), DefaultTriggerFloor)

	if out := loop.Run(context.Background()); !out.OK() {
		t.Fatalf("unexpected outcome: %+v", out)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open journal: %v", err)
	}
	defer f.Close()
	var events []journalEvent
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		var ev journalEvent
		if err := json.Unmarshal(sc.Bytes(), &ev); err != nil {
			t.Fatalf("decode %q: %v", sc.Text(), err)
		}
		events = append(events, ev)
	}
	if len(events) != 3 {
		t.Fatalf("events=%d want 3", len(events))
	}
	if events[0].Kind != kindProbe || events[1].Kind != kindFinal || events[2].Event != "terminated" {
		t.Fatalf("unexpected events: %+v", events)
	}
	if events[1].LimitPrice != "110.0" || events[2].Reason != ReasonCeilingReached {
		t.Fatalf("unexpected final events: %+v %+v", events[1], events[2])
	}
	for _, ev := range events {
		if ev.RunID != "test-run" {
			t.Fatalf("run id=%q", ev.RunID)
		}
	}
}

func TestClassify(t *testing.T) {
	canceled, cancel := context.WithCancel(context.Background())
	cancel()
	bg := context.Background()

	cases := []struct {
		ctx  context.Context
		err  error
		want Reason
	}{
		{bg, nil, ReasonCeilingReached},
		{canceled, errors.New("x"), ReasonCanceled},
		{bg, context.DeadlineExceeded, ReasonCanceled},
		{bg, tokenpool.ErrExhausted, ReasonTokenPoolExhausted},
		{bg, &tms.OrderError{Symbol: "A"}, ReasonOrderError},
		{bg, &tms.QuoteError{Symbol: "A"}, ReasonQuoteError},
		{bg, errors.New("other"), ReasonFailed},
	}
	for _, tc := range cases {
		if got := classify(tc.ctx, tc.err); got != tc.want {
			t.Fatalf("classify(%v)=%s want %s", tc.err, got, tc.want)
		}
	}
}
