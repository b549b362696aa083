package engine

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stoilsteve-hub/MyAIBotSteve/internal/alerting"
	"github.com/stoilsteve-hub/MyAIBotSteve/internal/exchange"
	"github.com/stoilsteve-hub/MyAIBotSteve/internal/exchange/paper"
	"github.com/stoilsteve-hub/MyAIBotSteve/internal/types"
)

// faultyExchange wraps the paper exchange and fails selected calls.
type faultyExchange struct {
	*paper.Exchange
	balanceErr error
}

func (f *faultyExchange) Balance(ctx context.Context, asset string) (decimal.Decimal, error) {
	if f.balanceErr != nil {
		return decimal.Zero, f.balanceErr
	}
	return f.Exchange.Balance(ctx, asset)
}

// failingExecutor rejects every intent with the configured error.
type failingExecutor struct {
	err error
}

func (f *failingExecutor) Execute(ctx context.Context, intent types.OrderIntent) (*types.OrderOutcome, error) {
	return nil, f.err
}

// partialFailExecutor fills part of the intent, then reports an error, the
// way a walk that dies between slices does.
type partialFailExecutor struct {
	qty   decimal.Decimal
	price decimal.Decimal
	err   error
}

func (p *partialFailExecutor) Execute(ctx context.Context, intent types.OrderIntent) (*types.OrderOutcome, error) {
	return &types.OrderOutcome{
		Intent:       intent,
		FilledQty:    p.qty,
		AvgFillPrice: p.price,
		CumQuote:     p.qty.Mul(p.price),
		Attempts:     1,
		CompletedAt:  time.Now(),
	}, p.err
}

func TestEngine_FatalAPIErrorPropagates(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	at := h.warmUp(t, ctx)

	// Invalid API key is a permission-class failure: the tick must surface
	// it as fatal so the loop can shut the process down.
	h.engine.exchange = &faultyExchange{
		Exchange:   h.exchange,
		balanceErr: &exchange.APIError{HTTPStatus: 401, Code: -2015, Message: "invalid api key"},
	}

	err := h.engine.ProcessTick(ctx, sampleAt("2500", at))
	if err == nil {
		t.Fatal("fatal API error swallowed")
	}
	if !exchange.IsFatal(err) {
		t.Errorf("error not classified fatal: %v", err)
	}
}

func TestEngine_TransientOrderErrorCountsTowardBudget(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	at := h.warmUp(t, ctx)

	h.engine.executor = &failingExecutor{
		err: &exchange.APIError{HTTPStatus: 500, Code: -1001, Message: "internal error"},
	}

	if err := h.engine.ProcessTick(ctx, sampleAt("2500", at)); err != nil {
		t.Fatalf("transient error must not propagate, got %v", err)
	}

	if h.engine.Position().Status != types.PositionFlat {
		t.Errorf("status = %s, want FLAT after failed buy", h.engine.Position().Status)
	}
	if got := h.governor.ErrorCount(at.Add(time.Second)); got != 1 {
		t.Errorf("error budget count = %d, want 1", got)
	}
}

func TestEngine_FatalOrderErrorPropagates(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	at := h.warmUp(t, ctx)

	h.engine.executor = &failingExecutor{
		err: exchange.Classify(&exchange.APIError{HTTPStatus: 400, Code: -2010, Message: "account restricted"}),
	}

	err := h.engine.ProcessTick(ctx, sampleAt("2500", at))
	if !exchange.IsFatal(err) {
		t.Errorf("restricted-account order error not fatal: %v", err)
	}
	// The pending marker must not survive the failure.
	if h.engine.Position().Status != types.PositionFlat {
		t.Errorf("status = %s, want FLAT", h.engine.Position().Status)
	}
}

func TestEngine_PartialBuyFillCommittedOnError(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	at := h.warmUp(t, ctx)

	// 0.01 at 2498.75 is ~25 quote, above the meaningful threshold: the
	// fill must open the position even though the walk errored out.
	h.engine.executor = &partialFailExecutor{
		qty:   d("0.01"),
		price: d("2498.75"),
		err:   &exchange.APIError{HTTPStatus: 500, Code: -1001, Message: "internal error"},
	}

	if err := h.engine.ProcessTick(ctx, sampleAt("2500", at)); err != nil {
		t.Fatalf("transient error must not propagate, got %v", err)
	}

	pos := h.engine.Position()
	if pos.Status != types.PositionHolding {
		t.Fatalf("status = %s, want HOLDING for the committed partial fill", pos.Status)
	}
	if !pos.HeldQty.Equal(d("0.01")) {
		t.Errorf("held qty = %s, want 0.01", pos.HeldQty)
	}
	if !pos.EntryPrice.Equal(d("2498.75")) {
		t.Errorf("entry price = %s, want 2498.75", pos.EntryPrice)
	}
	if got := h.governor.ErrorCount(at.Add(time.Second)); got != 1 {
		t.Errorf("error budget count = %d, want 1", got)
	}
}

func TestEngine_PartialSellFillCommittedOnError(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	at := h.warmUp(t, ctx)

	if err := h.engine.ProcessTick(ctx, sampleAt("2500", at)); err != nil {
		t.Fatalf("buy tick: %v", err)
	}

	// Half the position sold before the walk died. The sold half must book
	// its PnL and the remainder must stay a position.
	h.engine.executor = &partialFailExecutor{
		qty:   d("0.01"),
		price: d("2550"),
		err:   &exchange.APIError{HTTPStatus: 500, Code: -1001, Message: "internal error"},
	}
	h.exchange.SetMarket(sampleAt("2550", at.Add(time.Second)))
	if err := h.engine.ProcessTick(ctx, sampleAt("2550", at.Add(time.Second))); err != nil {
		t.Fatalf("transient error must not propagate, got %v", err)
	}

	pos := h.engine.Position()
	if pos.Status != types.PositionHolding {
		t.Fatalf("status = %s, want HOLDING with the unsold remainder", pos.Status)
	}
	if !pos.HeldQty.Equal(d("0.01")) {
		t.Errorf("remainder = %s, want 0.01", pos.HeldQty)
	}
	if !h.governor.DailyPnL().IsPositive() {
		t.Errorf("daily pnl = %s, want the sold half's profit booked", h.governor.DailyPnL())
	}
	if got := h.governor.ErrorCount(at.Add(2 * time.Second)); got != 1 {
		t.Errorf("error budget count = %d, want 1", got)
	}
}

func TestEngine_SlippageAbortDoesNotSpendErrorBudget(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	at := h.warmUp(t, ctx)

	h.engine.executor = &partialFailExecutor{
		err: fmt.Errorf("%w: mid drifted", types.ErrSpreadTooWide),
	}

	if err := h.engine.ProcessTick(ctx, sampleAt("2500", at)); err != nil {
		t.Fatalf("slippage abort must not propagate, got %v", err)
	}

	if h.engine.Position().Status != types.PositionFlat {
		t.Errorf("status = %s, want FLAT", h.engine.Position().Status)
	}
	if got := h.governor.ErrorCount(at.Add(time.Second)); got != 0 {
		t.Errorf("error budget count = %d, want 0 for a market-condition skip", got)
	}
	if h.governor.TradeCount() != 0 {
		t.Errorf("trade count = %d, want 0", h.governor.TradeCount())
	}
}

type countingAlerter struct {
	count int
}

func (a *countingAlerter) Alert(ctx context.Context, severity alerting.Severity, message string, fields ...any) error {
	a.count++
	return nil
}

func (a *countingAlerter) Name() string { return "counting" }

func TestEngine_HaltAlertFiresOnce(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	at := h.warmUp(t, ctx)

	alerter := &countingAlerter{}
	h.engine.alerter = alerter

	h.governor.RecordTrade(at, d("-30"))

	// Two blocked buys, one alert.
	for i := 0; i < 2; i++ {
		tick := sampleAt("2500", at.Add(time.Duration(i)*time.Second))
		if err := h.engine.ProcessTick(ctx, tick); err != nil {
			t.Fatalf("ProcessTick: %v", err)
		}
	}

	if alerter.count != 1 {
		t.Errorf("halt alerts = %d, want 1", alerter.count)
	}
}
