package execution

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stoilsteve-hub/MyAIBotSteve/internal/exchange"
	"github.com/stoilsteve-hub/MyAIBotSteve/internal/exchange/paper"
	"github.com/stoilsteve-hub/MyAIBotSteve/internal/risk"
	"github.com/stoilsteve-hub/MyAIBotSteve/internal/types"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func fastConfig() Config {
	return Config{
		OrderTimeout: 50 * time.Millisecond,
		PollInterval: time.Millisecond,

		WalkEnabled:           true,
		WalkOffsetStartPct:    d("0.0005"),
		WalkOffsetEndPct:      d("-0.0002"),
		WalkMaxAttempts:       4,
		WalkSlice:             10 * time.Millisecond,
		WalkMaxSpreadCrossPct: d("0.001"),
	}
}

func newTestWalker(t *testing.T, cfg Config) (*Walker, *paper.Exchange) {
	t.Helper()
	exch := paper.New(paper.DefaultConfig(), nil)
	exch.SetMarket(types.Sample{
		Timestamp: time.Now(),
		Bid:       d("2499"),
		Ask:       d("2501"),
		Mid:       d("2500"),
	})
	filters, _ := exch.SymbolFilters(context.Background(), "ETHFDUSD")
	sizer := risk.NewOrderSizer(filters, d("1.05"))
	return NewWalker(cfg, exch, sizer, nil), exch
}

func buyIntent(qty string) types.OrderIntent {
	return types.OrderIntent{
		ClientOrderID: NewClientOrderID(),
		Timestamp:     time.Now(),
		Symbol:        "ETHFDUSD",
		Side:          types.SideBuy,
		Qty:           d(qty),
		Reason:        "dip_buy",
	}
}

func TestWalker_PlanInterpolatesOffsets(t *testing.T) {
	w, _ := newTestWalker(t, fastConfig())

	plans := w.plan()
	if len(plans) != 4 {
		t.Fatalf("plan length = %d, want 4", len(plans))
	}
	if !plans[0].offset.Equal(d("0.0005")) {
		t.Errorf("first offset = %s, want 0.0005", plans[0].offset)
	}
	if !plans[3].offset.Equal(d("-0.0002")) {
		t.Errorf("last offset = %s, want -0.0002", plans[3].offset)
	}
	// Interior offsets move monotonically toward the end.
	for i := 1; i < len(plans); i++ {
		if !plans[i].offset.LessThan(plans[i-1].offset) {
			t.Errorf("offset %d (%s) not below offset %d (%s)",
				i, plans[i].offset, i-1, plans[i-1].offset)
		}
	}
}

func TestWalker_PlanStaticWhenWalkDisabled(t *testing.T) {
	cfg := fastConfig()
	cfg.WalkEnabled = false
	cfg.LimitOffsetPct = d("0.001")
	w, _ := newTestWalker(t, cfg)

	plans := w.plan()
	if len(plans) != 1 {
		t.Fatalf("static plan length = %d, want 1", len(plans))
	}
	if !plans[0].offset.Equal(d("0.001")) {
		t.Errorf("static offset = %s, want 0.001", plans[0].offset)
	}
	if plans[0].duration != cfg.OrderTimeout {
		t.Errorf("static duration = %s, want %s", plans[0].duration, cfg.OrderTimeout)
	}
}

func TestWalker_PriceForCapsCross(t *testing.T) {
	w, _ := newTestWalker(t, fastConfig())
	mid := d("2500")

	// Offset -0.005 would cross well past the cap 0.001: clamp to
	// 2500*1.001 = 2502.50 for buys, 2497.50 for sells.
	got := w.priceFor(types.SideBuy, mid, d("-0.005"))
	if !got.Equal(d("2502.5")) {
		t.Errorf("buy cross cap = %s, want 2502.5", got)
	}

	got = w.priceFor(types.SideSell, mid, d("-0.005"))
	if !got.Equal(d("2497.5")) {
		t.Errorf("sell cross cap = %s, want 2497.5", got)
	}
}

func TestWalker_PriceForTickAlignment(t *testing.T) {
	w, _ := newTestWalker(t, fastConfig())

	// 2500 * (1 - 0.0005) = 2498.75 exactly on grid; an off-grid mid must
	// round up for buys.
	got := w.priceFor(types.SideBuy, d("2500"), d("0.0005"))
	if !got.Equal(d("2498.75")) {
		t.Errorf("buy price = %s, want 2498.75", got)
	}

	got = w.priceFor(types.SideBuy, d("2500.37"), d("0.0005"))
	if !got.Mod(d("0.01")).IsZero() {
		t.Errorf("buy price %s not tick aligned", got)
	}
}

func TestWalker_ExecuteFullFill(t *testing.T) {
	w, _ := newTestWalker(t, fastConfig())

	outcome, err := w.Execute(context.Background(), buyIntent("0.02"))
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if !outcome.Filled() {
		t.Fatal("expected a fill")
	}
	if outcome.TimedOut {
		t.Error("full fill should not be marked timed out")
	}
	if outcome.Attempts != 1 {
		t.Errorf("Attempts = %d, want 1", outcome.Attempts)
	}
	if !outcome.FilledQty.Equal(d("0.02")) {
		t.Errorf("FilledQty = %s, want 0.02", outcome.FilledQty)
	}
	// Filled at the first-slice passive limit.
	if !outcome.AvgFillPrice.Equal(d("2498.75")) {
		t.Errorf("AvgFillPrice = %s, want 2498.75", outcome.AvgFillPrice)
	}
	if !outcome.CumQuote.Equal(outcome.FilledQty.Mul(outcome.AvgFillPrice)) {
		t.Errorf("CumQuote = %s inconsistent with qty*price", outcome.CumQuote)
	}
}

func TestWalker_ExecuteCleanTimeoutIsNotError(t *testing.T) {
	w, exch := newTestWalker(t, fastConfig())
	exch.SetFillRatio(decimal.Zero)

	outcome, err := w.Execute(context.Background(), buyIntent("0.02"))
	if err != nil {
		t.Fatalf("clean no-fill should not error: %v", err)
	}
	if !outcome.TimedOut {
		t.Error("no-fill walk should be marked timed out")
	}
	if outcome.Filled() {
		t.Errorf("FilledQty = %s, want 0", outcome.FilledQty)
	}
	if outcome.Attempts != 4 {
		t.Errorf("Attempts = %d, want all 4 slices tried", outcome.Attempts)
	}
}

func TestWalker_ExecuteAccumulatesPartialFills(t *testing.T) {
	w, exch := newTestWalker(t, fastConfig())
	exch.SetFillRatio(d("0.5"))

	outcome, err := w.Execute(context.Background(), buyIntent("0.02"))
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if !outcome.Filled() {
		t.Fatal("expected partial fills to accumulate")
	}
	if outcome.FilledQty.GreaterThan(d("0.02")) {
		t.Errorf("FilledQty = %s exceeds requested 0.02", outcome.FilledQty)
	}
	if outcome.Attempts < 2 {
		t.Errorf("Attempts = %d, want multiple slices", outcome.Attempts)
	}
	if outcome.FilledQty.IsPositive() {
		wantAvg := outcome.CumQuote.Div(outcome.FilledQty)
		if !outcome.AvgFillPrice.Equal(wantAvg) {
			t.Errorf("AvgFillPrice = %s, want %s", outcome.AvgFillPrice, wantAvg)
		}
	}
}

func TestWalker_MeaningfulFillGate(t *testing.T) {
	w, exch := newTestWalker(t, fastConfig())
	exch.SetFillRatio(d("0.001"))

	outcome, err := w.Execute(context.Background(), buyIntent("0.02"))
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	// Tiny fills accumulate but stay below a 5-quote meaningful threshold.
	if outcome.Filled() && outcome.Meaningful(d("5")) {
		t.Errorf("CumQuote = %s should not be meaningful at threshold 5", outcome.CumQuote)
	}
}

// flakyExchange delegates to the paper exchange until failAfter placements
// have happened, then fails every further placement.
type flakyExchange struct {
	exchange.Exchange
	placed    int
	failAfter int
}

func (f *flakyExchange) PlaceLimitOrder(ctx context.Context, intent types.OrderIntent) (types.OrderRecord, error) {
	f.placed++
	if f.placed > f.failAfter {
		return types.OrderRecord{}, errors.New("connection reset")
	}
	return f.Exchange.PlaceLimitOrder(ctx, intent)
}

// rejectingExchange rejects every placement outright.
type rejectingExchange struct {
	exchange.Exchange
}

func (r *rejectingExchange) PlaceLimitOrder(ctx context.Context, intent types.OrderIntent) (types.OrderRecord, error) {
	return types.OrderRecord{
		OrderID:       "REJ-1",
		ClientOrderID: intent.ClientOrderID,
		Symbol:        intent.Symbol,
		Side:          intent.Side,
		RequestedQty:  intent.Qty,
		Status:        types.OrderStatusRejected,
	}, nil
}

func TestWalker_PlaceErrorKeepsEarlierFills(t *testing.T) {
	cfg := fastConfig()
	exch := paper.New(paper.DefaultConfig(), nil)
	exch.SetMarket(types.Sample{
		Timestamp: time.Now(),
		Bid:       d("2499"),
		Ask:       d("2501"),
		Mid:       d("2500"),
	})
	exch.SetFillRatio(d("0.5"))
	filters, _ := exch.SymbolFilters(context.Background(), "ETHFDUSD")
	sizer := risk.NewOrderSizer(filters, d("1.05"))
	flaky := &flakyExchange{Exchange: exch, failAfter: 1}
	w := NewWalker(cfg, flaky, sizer, nil)

	outcome, err := w.Execute(context.Background(), buyIntent("0.02"))
	if err == nil {
		t.Fatal("expected the second placement to fail")
	}
	// Half of the first slice filled before the failure; the outcome must
	// report it so the caller can commit it.
	if !outcome.FilledQty.Equal(d("0.01")) {
		t.Errorf("FilledQty = %s, want 0.01", outcome.FilledQty)
	}
	if !outcome.AvgFillPrice.IsPositive() {
		t.Errorf("AvgFillPrice = %s, want positive", outcome.AvgFillPrice)
	}
	if !outcome.CumQuote.Equal(outcome.FilledQty.Mul(outcome.AvgFillPrice)) {
		t.Errorf("CumQuote = %s inconsistent with qty*price", outcome.CumQuote)
	}
	if outcome.CompletedAt.IsZero() {
		t.Error("CompletedAt not set on the error path")
	}
}

func TestWalker_SlippageAbortsWalk(t *testing.T) {
	cfg := fastConfig()
	cfg.MaxSlippagePct = d("0.004")
	w, _ := newTestWalker(t, cfg)

	// Decision was made at 2400; the market sits at 2500, a 4.2% drift.
	intent := buyIntent("0.02")
	intent.RefPrice = d("2400")

	outcome, err := w.Execute(context.Background(), intent)
	if !errors.Is(err, types.ErrSpreadTooWide) {
		t.Fatalf("err = %v, want ErrSpreadTooWide", err)
	}
	if outcome.Filled() {
		t.Errorf("FilledQty = %s, want 0", outcome.FilledQty)
	}
	if outcome.CompletedAt.IsZero() {
		t.Error("CompletedAt not set on slippage abort")
	}
}

func TestWalker_SlippageMidWalkKeepsFills(t *testing.T) {
	cfg := fastConfig()
	cfg.MaxSlippagePct = d("0.004")
	w, exch := newTestWalker(t, cfg)
	exch.SetFillRatio(d("0.5"))

	intent := buyIntent("0.02")
	intent.RefPrice = d("2500")

	// Jump the market past the slippage band once the first slice is in
	// flight, so the second slice aborts the walk.
	go func() {
		time.Sleep(5 * time.Millisecond)
		exch.SetMarket(types.Sample{
			Timestamp: time.Now(),
			Bid:       d("2519"),
			Ask:       d("2521"),
			Mid:       d("2520"),
		})
	}()

	outcome, err := w.Execute(context.Background(), intent)
	if !errors.Is(err, types.ErrSpreadTooWide) {
		t.Fatalf("err = %v, want ErrSpreadTooWide", err)
	}
	if !outcome.FilledQty.Equal(d("0.01")) {
		t.Errorf("FilledQty = %s, want the first slice's 0.01 committed", outcome.FilledQty)
	}
}

func TestWalker_RejectedOrderReturnsSentinel(t *testing.T) {
	cfg := fastConfig()
	exch := paper.New(paper.DefaultConfig(), nil)
	exch.SetMarket(types.Sample{
		Timestamp: time.Now(),
		Bid:       d("2499"),
		Ask:       d("2501"),
		Mid:       d("2500"),
	})
	filters, _ := exch.SymbolFilters(context.Background(), "ETHFDUSD")
	sizer := risk.NewOrderSizer(filters, d("1.05"))
	w := NewWalker(cfg, &rejectingExchange{Exchange: exch}, sizer, nil)

	outcome, err := w.Execute(context.Background(), buyIntent("0.02"))
	if !errors.Is(err, types.ErrOrderRejected) {
		t.Fatalf("err = %v, want ErrOrderRejected", err)
	}
	if outcome.Filled() {
		t.Errorf("FilledQty = %s, want 0", outcome.FilledQty)
	}
}

func TestWalker_PlanNeverExceedsOrderTimeout(t *testing.T) {
	cfg := fastConfig()
	cfg.WalkSlice = 20 * time.Millisecond
	cfg.OrderTimeout = 50 * time.Millisecond
	w, _ := newTestWalker(t, cfg)

	plans := w.plan()
	if len(plans) != 3 {
		t.Fatalf("plan length = %d, want 3", len(plans))
	}
	var total time.Duration
	for _, p := range plans {
		total += p.duration
	}
	if total != cfg.OrderTimeout {
		t.Errorf("plan total = %s, want %s", total, cfg.OrderTimeout)
	}
	if plans[2].duration != 10*time.Millisecond {
		t.Errorf("last slice = %s, want shortened to 10ms", plans[2].duration)
	}
}

// memAudit captures the order lifecycle the walker reports.
type memAudit struct {
	saves   []types.OrderRecord
	updates []types.OrderRecord
	err     error
}

func (a *memAudit) SaveOrder(ctx context.Context, order types.OrderRecord) error {
	a.saves = append(a.saves, order)
	return a.err
}

func (a *memAudit) UpdateOrder(ctx context.Context, order types.OrderRecord) error {
	a.updates = append(a.updates, order)
	return a.err
}

func TestWalker_AuditRecordsOrderLifecycle(t *testing.T) {
	w, _ := newTestWalker(t, fastConfig())
	audit := &memAudit{}
	w.SetAudit(audit)

	outcome, err := w.Execute(context.Background(), buyIntent("0.02"))
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if len(audit.saves) != 1 {
		t.Fatalf("saves = %d, want 1", len(audit.saves))
	}
	if len(audit.updates) != 1 {
		t.Fatalf("updates = %d, want 1", len(audit.updates))
	}
	if audit.saves[0].OrderID != outcome.LastOrderID {
		t.Errorf("saved order %s, want %s", audit.saves[0].OrderID, outcome.LastOrderID)
	}
	if audit.updates[0].Status != types.OrderStatusFilled {
		t.Errorf("final audited status = %s, want FILLED", audit.updates[0].Status)
	}
}

func TestWalker_AuditFailureDoesNotBreakExecution(t *testing.T) {
	w, _ := newTestWalker(t, fastConfig())
	w.SetAudit(&memAudit{err: errors.New("disk full")})

	outcome, err := w.Execute(context.Background(), buyIntent("0.02"))
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if !outcome.Filled() {
		t.Error("expected the fill despite audit failures")
	}
}

func TestNewClientOrderID_Format(t *testing.T) {
	id := NewClientOrderID()
	// 20060102-150405-xxxxxxxx
	if len(id) != 24 {
		t.Errorf("id %q length = %d, want 24", id, len(id))
	}
	if id == NewClientOrderID() {
		t.Error("consecutive IDs should differ")
	}
}
