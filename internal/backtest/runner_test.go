package backtest

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stoilsteve-hub/MyAIBotSteve/internal/engine"
	"github.com/stoilsteve-hub/MyAIBotSteve/internal/execution"
	"github.com/stoilsteve-hub/MyAIBotSteve/internal/observer"
	"github.com/stoilsteve-hub/MyAIBotSteve/internal/risk"
	"github.com/stoilsteve-hub/MyAIBotSteve/internal/strategy"
	"github.com/stoilsteve-hub/MyAIBotSteve/internal/types"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func testRunner() *Runner {
	cfg := Config{
		Symbol:       "ETHFDUSD",
		BaseAsset:    "ETH",
		QuoteAsset:   "FDUSD",
		InitialQuote: d("1000"),
		InitialBase:  d("1"),
	}
	engineCfg := engine.Config{
		TradeValueQuote: d("50"),
		TakeProfitPct:   d("0.02"),
		StopLossPct:     d("0.03"),
		MinFillQuote:    d("10"),
		MaxSpreadPct:    d("0.01"),
	}
	// Bounce reversal with the SMA as anchor: a dip below the average that
	// prints three rising closes triggers a buy.
	stratCfg := strategy.Config{
		WindowSamples:   5,
		MinSamples:      3,
		Mode:            strategy.TrendReversal,
		ReversalMode:    strategy.ReversalBounce,
		ReversalSamples: 3,
		AnchorMode:      strategy.AnchorSMAOnly,
		MaxUnderSMAPct:  d("0.10"),
	}
	riskCfg := risk.Config{
		MaxDailyLossQuote: d("100"),
		MaxTradesPerDay:   50,
		ErrorLimit:        10,
		ErrorWindow:       time.Hour,
	}
	walkCfg := execution.Config{
		LimitOffsetPct: d("0.0005"),
		OrderTimeout:   50 * time.Millisecond,
		PollInterval:   5 * time.Millisecond,
	}
	return NewRunner(cfg, engineCfg, stratCfg, riskCfg, walkCfg, nil)
}

func feedOf(mids []string, start time.Time) *observer.MemoryFeed {
	feed := observer.NewMemoryFeed(nil)
	for i, mid := range mids {
		m := d(mid)
		feed.AddSample(types.Sample{
			Timestamp: start.Add(time.Duration(i) * time.Minute),
			Bid:       m,
			Ask:       m,
			Mid:       m,
		})
	}
	return feed
}

func TestRunner_DipBounceRoundTrip(t *testing.T) {
	r := testRunner()

	// Flat highs, a dip, three rising closes below the SMA, then a rally
	// through the take-profit level.
	feed := feedOf([]string{"2600", "2600", "2600", "2450", "2460", "2470", "2520"}, time.Now())

	result, err := r.Run(context.Background(), feed)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if result.TotalTrades != 1 {
		t.Fatalf("trades = %d, want 1", result.TotalTrades)
	}
	if result.WinningTrades != 1 {
		t.Errorf("winning trades = %d, want 1", result.WinningTrades)
	}
	if !result.EndQuote.GreaterThan(result.StartQuote) {
		t.Errorf("end quote = %s, want above start %s", result.EndQuote, result.StartQuote)
	}
	if !result.WinRate.Equal(decimal.NewFromInt(1)) {
		t.Errorf("win rate = %s, want 1", result.WinRate)
	}
	if len(result.EquityCurve) != 1 {
		t.Errorf("equity points = %d, want 1 per trade", len(result.EquityCurve))
	}

	trade := result.Trades[0]
	if trade.Reason != "take_profit" {
		t.Errorf("trade reason = %s, want take_profit", trade.Reason)
	}
	if !trade.PnLQuote.IsPositive() {
		t.Errorf("pnl = %s, want positive", trade.PnLQuote)
	}
}

func TestRunner_NoSignalNoTrades(t *testing.T) {
	r := testRunner()

	// Monotonic decline: no rising closes, no entries.
	feed := feedOf([]string{"2600", "2590", "2580", "2570", "2560"}, time.Now())

	result, err := r.Run(context.Background(), feed)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if result.TotalTrades != 0 {
		t.Errorf("trades = %d, want 0", result.TotalTrades)
	}
	if !result.EndQuote.Equal(result.StartQuote) {
		t.Errorf("end quote = %s, want unchanged %s", result.EndQuote, result.StartQuote)
	}
	if !result.MaxDrawdown.IsZero() {
		t.Errorf("max drawdown = %s, want 0", result.MaxDrawdown)
	}
}

func TestRunner_TimeWindowFilters(t *testing.T) {
	r := testRunner()
	start := time.Now()

	// Same profitable sequence, but the replay window ends before the
	// bounce completes: nothing may trade.
	r.cfg.EndTime = start.Add(4 * time.Minute)
	feed := feedOf([]string{"2600", "2600", "2600", "2450", "2460", "2470", "2520"}, start)

	result, err := r.Run(context.Background(), feed)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if result.TotalTrades != 0 {
		t.Errorf("trades = %d, want 0 inside truncated window", result.TotalTrades)
	}
}

func TestRunner_StopLossProducesLoss(t *testing.T) {
	r := testRunner()

	// Bounce entry near 2470, then a slide through the 3% stop.
	feed := feedOf([]string{"2600", "2600", "2600", "2450", "2460", "2470", "2380"}, time.Now())

	result, err := r.Run(context.Background(), feed)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if result.TotalTrades != 1 {
		t.Fatalf("trades = %d, want 1", result.TotalTrades)
	}
	if result.LosingTrades != 1 {
		t.Errorf("losing trades = %d, want 1", result.LosingTrades)
	}
	if result.Trades[0].Reason != "stop_loss" {
		t.Errorf("trade reason = %s, want stop_loss", result.Trades[0].Reason)
	}
	if !result.MaxDrawdown.IsPositive() {
		t.Errorf("max drawdown = %s, want positive", result.MaxDrawdown)
	}
}
