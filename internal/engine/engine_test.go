package engine

import (
	"bytes"
	"context"
	"log/slog"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stoilsteve-hub/MyAIBotSteve/internal/alerting"
	"github.com/stoilsteve-hub/MyAIBotSteve/internal/exchange/paper"
	"github.com/stoilsteve-hub/MyAIBotSteve/internal/execution"
	"github.com/stoilsteve-hub/MyAIBotSteve/internal/observer"
	"github.com/stoilsteve-hub/MyAIBotSteve/internal/persistence"
	"github.com/stoilsteve-hub/MyAIBotSteve/internal/reserve"
	"github.com/stoilsteve-hub/MyAIBotSteve/internal/risk"
	"github.com/stoilsteve-hub/MyAIBotSteve/internal/strategy"
	"github.com/stoilsteve-hub/MyAIBotSteve/internal/types"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

type harness struct {
	engine   *Engine
	exchange *paper.Exchange
	governor *risk.Governor
	signal   *strategy.Engine
	state    *persistence.StateFile
}

// newHarness wires an engine over a paper exchange. The signal engine is
// set up so a last sell at 2600 and a mid near 2500 permit a dip buy once
// the window is warm.
func newHarness(t *testing.T) *harness {
	t.Helper()

	exch := paper.New(paper.DefaultConfig(), nil)
	exch.SetBalance("ETH", d("1"))
	exch.SetBalance("FDUSD", d("1000"))
	exch.SetMarket(types.Sample{Bid: d("2500"), Ask: d("2500"), Mid: d("2500")})

	filters := paper.DefaultConfig().Filters
	sizer := risk.NewOrderSizer(filters, decimal.NewFromInt(1))

	walker := execution.NewWalker(execution.Config{
		LimitOffsetPct: d("0.0005"),
		OrderTimeout:   50 * time.Millisecond,
		PollInterval:   5 * time.Millisecond,
	}, exch, sizer, nil)

	sig := strategy.NewEngine(strategy.Config{
		WindowSamples:  5,
		MinSamples:     3,
		Mode:           strategy.TrendStrict,
		AnchorMode:     strategy.AnchorLastSellOnly,
		BuyDropPct:     d("0.02"),
		MaxUnderSMAPct: d("0.05"),
	})
	sig.SetLastSellPrice(d("2600"))

	gov := risk.NewGovernor(risk.Config{
		MaxDailyLossQuote: d("25"),
		MaxTradesPerDay:   10,
		ErrorLimit:        5,
		ErrorWindow:       time.Hour,
	}, nil)

	state := persistence.NewStateFile(filepath.Join(t.TempDir(), "state.json"))

	eng := New(Config{
		Symbol:          "ETHFDUSD",
		BaseAsset:       "ETH",
		QuoteAsset:      "FDUSD",
		TradeValueQuote: d("50"),
		TakeProfitPct:   d("0.02"),
		StopLossPct:     d("0.03"),
		MinFillQuote:    d("10"),
		MaxSpreadPct:    d("0.003"),
		DryRun:          true,
	}, Deps{
		Exchange:  exch,
		Executor:  walker,
		Signal:    sig,
		Governor:  gov,
		Sizer:     sizer,
		State:     state,
		Confirmer: AutoConfirmer{Allow: true},
	})

	return &harness{engine: eng, exchange: exch, governor: gov, signal: sig, state: state}
}

func sampleAt(mid string, at time.Time) types.Sample {
	return types.Sample{Timestamp: at, Bid: d(mid), Ask: d(mid), Mid: d(mid)}
}

// warmUp feeds enough rising samples for the trend gate to open. The next
// sample at 2500 sits above the SMA but below the dip target derived from
// the 2600 last sell.
func (h *harness) warmUp(t *testing.T, ctx context.Context) time.Time {
	t.Helper()
	now := time.Now()
	for i, mid := range []string{"2490", "2495"} {
		if err := h.engine.ProcessTick(ctx, sampleAt(mid, now.Add(time.Duration(i)*time.Second))); err != nil {
			t.Fatalf("warmup tick %d: %v", i, err)
		}
	}
	return now.Add(2 * time.Second)
}

func TestEngine_DipBuyOpensPosition(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	at := h.warmUp(t, ctx)

	if err := h.engine.ProcessTick(ctx, sampleAt("2500", at)); err != nil {
		t.Fatalf("ProcessTick: %v", err)
	}

	pos := h.engine.Position()
	if pos.Status != types.PositionHolding {
		t.Fatalf("status = %s, want HOLDING", pos.Status)
	}
	if !pos.HeldQty.Equal(d("0.02")) {
		t.Errorf("held qty = %s, want 0.02", pos.HeldQty)
	}
	// Buy limit: 2500 * (1 - 0.0005) on the 0.01 tick grid.
	if !pos.EntryPrice.Equal(d("2498.75")) {
		t.Errorf("entry price = %s, want 2498.75", pos.EntryPrice)
	}

	ethBal, _ := h.exchange.Balance(ctx, "ETH")
	if !ethBal.Equal(d("1.02")) {
		t.Errorf("ETH balance = %s, want 1.02", ethBal)
	}
}

func TestEngine_SpreadGateSkipsTick(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	// 0.8% spread against a 0.3% gate: the sample must not reach the window.
	wide := types.Sample{Timestamp: time.Now(), Bid: d("2500"), Ask: d("2520"), Mid: d("2510")}
	if err := h.engine.ProcessTick(ctx, wide); err != nil {
		t.Fatalf("ProcessTick: %v", err)
	}

	if got := h.signal.SampleCount(); got != 0 {
		t.Errorf("window samples = %d, want 0 after spread gate", got)
	}
	if h.engine.Position().Status != types.PositionFlat {
		t.Error("position changed on a gated tick")
	}
}

func TestEngine_BuyBelowMeaningfulStaysFlat(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	at := h.warmUp(t, ctx)

	// Almost nothing fills: 0.001 of the 0.02 order is far below the 10
	// quote meaningful threshold. The dust joins the reserve.
	h.exchange.SetFillRatio(d("0.001"))
	if err := h.engine.ProcessTick(ctx, sampleAt("2500", at)); err != nil {
		t.Fatalf("ProcessTick: %v", err)
	}

	if h.engine.Position().Status != types.PositionFlat {
		t.Errorf("status = %s, want FLAT on dust fill", h.engine.Position().Status)
	}
}

func TestEngine_BuyTimeoutStaysFlat(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	at := h.warmUp(t, ctx)

	h.exchange.SetFillRatio(decimal.Zero)
	if err := h.engine.ProcessTick(ctx, sampleAt("2500", at)); err != nil {
		t.Fatalf("clean timeout must not be an error, got %v", err)
	}

	if h.engine.Position().Status != types.PositionFlat {
		t.Errorf("status = %s, want FLAT after unfilled buy", h.engine.Position().Status)
	}
}

func TestEngine_TakeProfitExit(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	at := h.warmUp(t, ctx)

	if err := h.engine.ProcessTick(ctx, sampleAt("2500", at)); err != nil {
		t.Fatalf("buy tick: %v", err)
	}
	entry := h.engine.Position().EntryPrice

	// Entry 2498.75 * 1.02 = 2548.725; 2550 clears it.
	h.exchange.SetMarket(sampleAt("2550", at.Add(time.Second)))
	if err := h.engine.ProcessTick(ctx, sampleAt("2550", at.Add(time.Second))); err != nil {
		t.Fatalf("sell tick: %v", err)
	}

	pos := h.engine.Position()
	if pos.Status != types.PositionFlat {
		t.Fatalf("status = %s, want FLAT after take profit", pos.Status)
	}
	// One slot for the entry, one for the exit.
	if h.governor.TradeCount() != 2 {
		t.Errorf("trade count = %d, want 2", h.governor.TradeCount())
	}
	if !h.governor.DailyPnL().IsPositive() {
		t.Errorf("daily pnl = %s, want positive", h.governor.DailyPnL())
	}
	if !h.signal.LastSellPrice().GreaterThan(entry) {
		t.Errorf("last sell price = %s, want above entry %s", h.signal.LastSellPrice(), entry)
	}
}

func TestEngine_StopLossExit(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	at := h.warmUp(t, ctx)

	if err := h.engine.ProcessTick(ctx, sampleAt("2500", at)); err != nil {
		t.Fatalf("buy tick: %v", err)
	}

	// Entry 2498.75 * 0.97 = 2423.79; 2420 breaches it.
	h.exchange.SetMarket(sampleAt("2420", at.Add(time.Second)))
	if err := h.engine.ProcessTick(ctx, sampleAt("2420", at.Add(time.Second))); err != nil {
		t.Fatalf("sell tick: %v", err)
	}

	if h.engine.Position().Status != types.PositionFlat {
		t.Fatalf("status = %s, want FLAT after stop loss", h.engine.Position().Status)
	}
	if !h.governor.DailyPnL().IsNegative() {
		t.Errorf("daily pnl = %s, want negative", h.governor.DailyPnL())
	}
}

func TestEngine_PartialSellKeepsPosition(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	at := h.warmUp(t, ctx)

	if err := h.engine.ProcessTick(ctx, sampleAt("2500", at)); err != nil {
		t.Fatalf("buy tick: %v", err)
	}
	entry := h.engine.Position().EntryPrice

	// Half the sell fills. 0.01 ETH at 2550 is ~25 quote, well above dust.
	h.exchange.SetFillRatio(d("0.5"))
	h.exchange.SetMarket(sampleAt("2550", at.Add(time.Second)))
	if err := h.engine.ProcessTick(ctx, sampleAt("2550", at.Add(time.Second))); err != nil {
		t.Fatalf("sell tick: %v", err)
	}

	pos := h.engine.Position()
	if pos.Status != types.PositionHolding {
		t.Fatalf("status = %s, want HOLDING with meaningful remainder", pos.Status)
	}
	if !pos.HeldQty.Equal(d("0.01")) {
		t.Errorf("remainder = %s, want 0.01", pos.HeldQty)
	}
	if !pos.EntryPrice.Equal(entry) {
		t.Errorf("entry price changed on partial sell: %s -> %s", entry, pos.EntryPrice)
	}
	if h.governor.TradeCount() != 2 {
		t.Errorf("trade count = %d, want entry plus the filled portion", h.governor.TradeCount())
	}
}

func TestEngine_RiskGateBlocksBuy(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	at := h.warmUp(t, ctx)

	// Breach the daily loss limit; the gate must latch and block the buy.
	h.governor.RecordTrade(at, d("-30"))

	if err := h.engine.ProcessTick(ctx, sampleAt("2500", at)); err != nil {
		t.Fatalf("ProcessTick: %v", err)
	}

	if h.engine.Position().Status != types.PositionFlat {
		t.Errorf("status = %s, want FLAT when risk gate blocks", h.engine.Position().Status)
	}
	ethBal, _ := h.exchange.Balance(ctx, "ETH")
	if !ethBal.Equal(d("1")) {
		t.Errorf("ETH balance = %s, want untouched 1", ethBal)
	}
}

func TestEngine_FundingDeclinedSkipsBuy(t *testing.T) {
	h := newHarness(t)
	h.engine.cfg.DryRun = false
	h.engine.confirmer = AutoConfirmer{Allow: false}
	ctx := context.Background()
	at := h.warmUp(t, ctx)

	// Pot too small for a 50 quote trade.
	h.exchange.SetBalance("FDUSD", d("10"))
	if err := h.engine.ProcessTick(ctx, sampleAt("2500", at)); err != nil {
		t.Fatalf("ProcessTick: %v", err)
	}

	if h.engine.Position().Status != types.PositionFlat {
		t.Errorf("status = %s, want FLAT after declined funding", h.engine.Position().Status)
	}
	ethBal, _ := h.exchange.Balance(ctx, "ETH")
	if !ethBal.Equal(d("1")) {
		t.Errorf("ETH balance = %s, want 1; nothing may be sold without consent", ethBal)
	}
}

func TestEngine_FundingSellRaisesQuote(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	at := h.warmUp(t, ctx)

	h.exchange.SetBalance("FDUSD", d("10"))
	if err := h.engine.ProcessTick(ctx, sampleAt("2500", at)); err != nil {
		t.Fatalf("ProcessTick: %v", err)
	}

	// The funding sell happens; the buy itself waits for the next tick.
	if h.engine.Position().Status != types.PositionFlat {
		t.Errorf("status = %s, want FLAT on the funding tick", h.engine.Position().Status)
	}
	ethBal, _ := h.exchange.Balance(ctx, "ETH")
	if !ethBal.LessThan(d("1")) {
		t.Errorf("ETH balance = %s, want reduced by the funding sell", ethBal)
	}
	quoteBal, _ := h.exchange.Balance(ctx, "FDUSD")
	if !quoteBal.GreaterThanOrEqual(d("50")) {
		t.Errorf("FDUSD balance = %s, want at least the trade value", quoteBal)
	}
}

func TestEngine_BuyFillConsumesTradeSlotAndCooldown(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	at := h.warmUp(t, ctx)

	if err := h.engine.ProcessTick(ctx, sampleAt("2500", at)); err != nil {
		t.Fatalf("buy tick: %v", err)
	}

	if h.governor.TradeCount() != 1 {
		t.Errorf("trade count = %d, want 1 after the entry", h.governor.TradeCount())
	}
	if got := h.governor.Snapshot().LastTradeAt; !got.Equal(at) {
		t.Errorf("last trade at = %s, want the buy timestamp %s", got, at)
	}
	// The entry never books PnL; only exits do.
	if !h.governor.DailyPnL().IsZero() {
		t.Errorf("daily pnl = %s, want 0 after entry only", h.governor.DailyPnL())
	}
}

func TestEngine_FundingSellArmsCooldownWithoutTradeSlot(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	at := h.warmUp(t, ctx)

	h.exchange.SetBalance("FDUSD", d("10"))
	if err := h.engine.ProcessTick(ctx, sampleAt("2500", at)); err != nil {
		t.Fatalf("ProcessTick: %v", err)
	}

	if h.governor.TradeCount() != 0 {
		t.Errorf("trade count = %d, want 0; funding sells never consume the cap", h.governor.TradeCount())
	}
	if h.governor.Snapshot().LastTradeAt.IsZero() {
		t.Error("funding sell did not restart the cooldown")
	}
	// The fill resets the dip anchor: static sell limit 2500 * 1.0005.
	if !h.signal.LastSellPrice().Equal(d("2501.25")) {
		t.Errorf("last sell price = %s, want 2501.25", h.signal.LastSellPrice())
	}
}

func TestEngine_HeartbeatLoggedWhileHolding(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	at := h.warmUp(t, ctx)

	if err := h.engine.ProcessTick(ctx, sampleAt("2500", at)); err != nil {
		t.Fatalf("buy tick: %v", err)
	}

	var buf bytes.Buffer
	h.engine.logger = slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelInfo}))

	// 2510 triggers neither take profit nor stop loss; the tick only holds.
	h.exchange.SetMarket(sampleAt("2510", at.Add(time.Second)))
	if err := h.engine.ProcessTick(ctx, sampleAt("2510", at.Add(time.Second))); err != nil {
		t.Fatalf("hold tick: %v", err)
	}

	out := buf.String()
	if !strings.Contains(out, "heartbeat") {
		t.Fatalf("no heartbeat in log output:\n%s", out)
	}
	for _, field := range []string{"position=HOLDING", "mid=2510", "trade_count=1", "pot_quote=", "pot_base="} {
		if !strings.Contains(out, field) {
			t.Errorf("heartbeat missing %q:\n%s", field, out)
		}
	}
}

func TestEngine_DailySummaryOnDayRollover(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	at := time.Now()
	h.governor.RecordTrade(at, d("5"))
	mock := alerting.NewMockAlerter()
	h.engine.alerter = mock

	// First sample of the next day; a wide spread keeps the tick itself out
	// of the window so only the rollover runs.
	next := types.Sample{Timestamp: at.AddDate(0, 0, 1), Bid: d("2500"), Ask: d("2520"), Mid: d("2510")}
	if err := h.engine.ProcessTick(ctx, next); err != nil {
		t.Fatalf("ProcessTick: %v", err)
	}

	if !mock.HasAlertContaining("Daily summary") {
		t.Error("no daily summary alert on day rollover")
	}
	if h.governor.TradeCount() != 0 {
		t.Errorf("trade count = %d, want 0 after rollover", h.governor.TradeCount())
	}
	if !h.governor.DailyPnL().IsZero() {
		t.Errorf("daily pnl = %s, want reset", h.governor.DailyPnL())
	}

	// Same-day ticks must not repeat the summary.
	mock.Clear()
	later := types.Sample{Timestamp: next.Timestamp.Add(time.Minute), Bid: d("2500"), Ask: d("2520"), Mid: d("2510")}
	if err := h.engine.ProcessTick(ctx, later); err != nil {
		t.Fatalf("ProcessTick: %v", err)
	}
	if mock.HasAlertContaining("Daily summary") {
		t.Error("summary repeated within the same day")
	}
}

func TestEngine_PersistsAfterFill(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	at := h.warmUp(t, ctx)

	if err := h.engine.ProcessTick(ctx, sampleAt("2500", at)); err != nil {
		t.Fatalf("ProcessTick: %v", err)
	}

	saved, err := h.state.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if saved.Status != "HOLDING" {
		t.Errorf("saved status = %s, want HOLDING", saved.Status)
	}
	if !saved.HeldQty.Equal(d("0.02")) {
		t.Errorf("saved held qty = %s, want 0.02", saved.HeldQty)
	}
	if len(saved.WindowMids) != 3 {
		t.Errorf("saved window = %d mids, want 3", len(saved.WindowMids))
	}
	if saved.Risk.DayKey == "" {
		t.Error("saved risk day key empty")
	}
}

func TestEngine_RestoreResolvesPendingOrder(t *testing.T) {
	h := newHarness(t)

	// Simulate a crash mid-order with the fill already landed.
	err := h.state.Save(persistence.BotState{
		Symbol:         "ETHFDUSD",
		Status:         "ORDER_PENDING",
		HeldQty:        d("0.02"),
		EntryPrice:     d("2498.75"),
		PendingOrderID: "20250601-120000-abcd1234",
		WindowMids:     []decimal.Decimal{d("2490"), d("2495")},
		LastSellPrice:  d("2600"),
		Risk:           persistence.RiskState{DayKey: "2025-06-01", TradeCount: 2},
	})
	if err != nil {
		t.Fatalf("Save: %v", err)
	}

	if err := h.engine.Restore(); err != nil {
		t.Fatalf("Restore: %v", err)
	}

	pos := h.engine.Position()
	if pos.Status != types.PositionHolding {
		t.Errorf("status = %s, want HOLDING resolved from pending with holdings", pos.Status)
	}
	if pos.PendingOrderID != "" {
		t.Errorf("pending order id = %q, want cleared", pos.PendingOrderID)
	}
	if h.signal.SampleCount() != 2 {
		t.Errorf("restored window = %d samples, want 2", h.signal.SampleCount())
	}
	if !h.signal.LastSellPrice().Equal(d("2600")) {
		t.Errorf("restored last sell = %s, want 2600", h.signal.LastSellPrice())
	}
}

func TestEngine_RestoreMissingStateStartsFresh(t *testing.T) {
	h := newHarness(t)
	if err := h.engine.Restore(); err != nil {
		t.Fatalf("Restore on missing file: %v", err)
	}
	if h.engine.Position().Status != types.PositionFlat {
		t.Error("fresh start must be flat")
	}
}

func TestEngine_SelfTest(t *testing.T) {
	h := newHarness(t)
	if err := h.engine.SelfTest(context.Background()); err != nil {
		t.Fatalf("SelfTest: %v", err)
	}
}

func TestEngine_RunDrainsFeed(t *testing.T) {
	h := newHarness(t)

	feed := observer.NewMemoryFeed(nil)
	now := time.Now()
	for i, mid := range []string{"2490", "2495", "2500"} {
		feed.AddSample(sampleAt(mid, now.Add(time.Duration(i)*time.Second)))
	}

	if err := h.engine.Run(context.Background(), feed); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if h.engine.Position().Status != types.PositionHolding {
		t.Errorf("status = %s, want HOLDING after replayed dip", h.engine.Position().Status)
	}
}

func TestEngine_ReserveCheckThroughEngine(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	filters := paper.DefaultConfig().Filters
	sizer := risk.NewOrderSizer(filters, decimal.NewFromInt(1))
	walker := execution.NewWalker(execution.Config{
		LimitOffsetPct: d("0.0005"),
		OrderTimeout:   50 * time.Millisecond,
		PollInterval:   5 * time.Millisecond,
	}, h.exchange, sizer, nil)

	h.engine.watcher = reserve.NewWatcher(reserve.Config{
		Enabled:       true,
		Symbol:        "ETHFDUSD",
		BaseAsset:     "ETH",
		MinBase:       d("0.01"),
		TrailPct:      d("0.10"),
		CheckInterval: time.Minute,
	}, h.exchange, walker, sizer, nil)

	// First check establishes the watermark; no trigger, state persisted.
	h.engine.checkReserve(ctx)

	saved, err := h.state.Load()
	if err != nil {
		t.Fatalf("Load after reserve check: %v", err)
	}
	if !saved.Reserve.Initialized {
		t.Error("reserve watermark not persisted")
	}
}
