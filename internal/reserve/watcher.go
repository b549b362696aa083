// Package reserve watches the base-asset holdings that sit outside the
// trading position and applies a trailing stop to their quote value.
package reserve

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stoilsteve-hub/MyAIBotSteve/internal/exchange"
	"github.com/stoilsteve-hub/MyAIBotSteve/internal/execution"
	"github.com/stoilsteve-hub/MyAIBotSteve/internal/persistence"
	"github.com/stoilsteve-hub/MyAIBotSteve/internal/risk"
	"github.com/stoilsteve-hub/MyAIBotSteve/internal/types"
)

// Config holds reserve watcher settings.
type Config struct {
	Enabled  bool
	Autosale bool

	Symbol    string
	BaseAsset string

	MinBase       decimal.Decimal
	TrailPct      decimal.Decimal
	TakeProfitPct decimal.Decimal
	MaxSellBase   decimal.Decimal
	CheckInterval time.Duration
	BlockCooldown time.Duration
}

// Event describes one watcher evaluation that produced something worth
// reporting: a rebaseline, a trigger, or an executed autosale.
type Event struct {
	Timestamp time.Time
	Reason    string

	ReserveSize decimal.Decimal
	Value       decimal.Decimal
	Initial     decimal.Decimal
	HighWater   decimal.Decimal

	Triggered bool
	Outcome   *types.OrderOutcome
}

// Trigger reasons.
const (
	ReasonRebaseline = "reserve_rebaseline"
	ReasonTrail      = "reserve_trail_stop"
	ReasonTakeProfit = "reserve_take_profit"
)

// Watcher evaluates the reserve on a fixed cadence. Disabling the watcher
// wins over enabling autosale: no evaluation happens at all.
type Watcher struct {
	cfg      Config
	exchange exchange.Exchange
	executor execution.Executor
	sizer    *risk.OrderSizer
	logger   *slog.Logger

	mu           sync.Mutex
	mark         *Watermark
	blockedUntil time.Time
}

// NewWatcher creates a reserve watcher.
func NewWatcher(cfg Config, exch exchange.Exchange, exec execution.Executor, sizer *risk.OrderSizer, logger *slog.Logger) *Watcher {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.CheckInterval <= 0 {
		cfg.CheckInterval = time.Minute
	}
	return &Watcher{
		cfg:      cfg,
		exchange: exch,
		executor: exec,
		sizer:    sizer,
		logger:   logger,
		mark:     NewWatermark(),
	}
}

// Interval returns the configured check cadence.
func (w *Watcher) Interval() time.Duration {
	return w.cfg.CheckInterval
}

// Check evaluates the reserve once. potBase is the quantity owned by the
// trading position; everything above it is reserve. Returns nil when there
// is nothing to report.
func (w *Watcher) Check(ctx context.Context, now time.Time, potBase decimal.Decimal) (*Event, error) {
	if !w.cfg.Enabled {
		return nil, nil
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	if now.Before(w.blockedUntil) {
		return nil, nil
	}

	freeBase, err := w.exchange.Balance(ctx, w.cfg.BaseAsset)
	if err != nil {
		return nil, fmt.Errorf("reserve balance: %w", err)
	}

	reserve := freeBase.Sub(potBase)
	if reserve.LessThan(w.cfg.MinBase) {
		// Too small to manage; drop the baseline so a future top-up starts
		// fresh instead of comparing against stale marks.
		if w.mark.Initialized() {
			w.mark.Reset()
		}
		return nil, nil
	}

	book, err := w.exchange.BookTicker(ctx, w.cfg.Symbol)
	if err != nil {
		return nil, fmt.Errorf("reserve ticker: %w", err)
	}
	value := reserve.Mul(book.Mid).Round(2)

	ev := &Event{
		Timestamp:   now,
		ReserveSize: reserve,
		Value:       value,
	}

	step := w.sizer.Filters().StepSize
	if w.mark.Observe(reserve, value, step) {
		ev.Reason = ReasonRebaseline
		ev.Initial = w.mark.Initial()
		ev.HighWater = w.mark.Peak()
		w.logger.Info("reserve baseline set",
			"size", reserve,
			"value", value,
		)
		return ev, nil
	}

	ev.Initial = w.mark.Initial()
	ev.HighWater = w.mark.Peak()

	one := decimal.NewFromInt(1)
	trailFloor := ev.HighWater.Mul(one.Sub(w.cfg.TrailPct))
	tpCeiling := ev.Initial.Mul(one.Add(w.cfg.TakeProfitPct))

	switch {
	case value.LessThanOrEqual(trailFloor):
		ev.Triggered = true
		ev.Reason = ReasonTrail
	case w.cfg.TakeProfitPct.IsPositive() && value.GreaterThanOrEqual(tpCeiling):
		ev.Triggered = true
		ev.Reason = ReasonTakeProfit
	default:
		return nil, nil
	}

	w.blockedUntil = now.Add(w.cfg.BlockCooldown)
	w.logger.Warn("reserve trigger",
		"reason", ev.Reason,
		"value", value,
		"high_water", ev.HighWater,
		"initial", ev.Initial,
	)

	if !w.cfg.Autosale {
		return ev, nil
	}

	outcome, err := w.sellLocked(ctx, reserve, book.Mid)
	if err != nil {
		return ev, err
	}
	ev.Outcome = outcome
	if outcome != nil && outcome.Filled() {
		// Rebaseline after a sale; the next check observes the new size.
		w.mark.Reset()
	}
	return ev, nil
}

// sellLocked sells the triggered reserve, capped per event.
func (w *Watcher) sellLocked(ctx context.Context, reserve, mid decimal.Decimal) (*types.OrderOutcome, error) {
	qty := reserve
	if w.cfg.MaxSellBase.IsPositive() && qty.GreaterThan(w.cfg.MaxSellBase) {
		qty = w.cfg.MaxSellBase
	}

	check := w.sizer.ValidateQty(qty, mid)
	if !check.Valid {
		w.logger.Warn("reserve sale skipped", "reason", check.RejectReason, "qty", qty)
		return nil, nil
	}

	intent := types.OrderIntent{
		ClientOrderID: execution.NewClientOrderID(),
		Timestamp:     time.Now(),
		Symbol:        w.cfg.Symbol,
		Side:          types.SideSell,
		Qty:           check.Qty,
		RefPrice:      mid,
		Reason:        "reserve_autosale",
	}

	outcome, err := w.executor.Execute(ctx, intent)
	if err != nil {
		return nil, fmt.Errorf("reserve autosale: %w", err)
	}
	w.logger.Info("reserve autosale done",
		"filled", outcome.FilledQty,
		"avg_price", outcome.AvgFillPrice,
		"timed_out", outcome.TimedOut,
	)
	return outcome, nil
}

// Snapshot returns persisted watcher state.
func (w *Watcher) Snapshot() persistence.ReserveState {
	w.mu.Lock()
	defer w.mu.Unlock()
	return persistence.ReserveState{
		Initialized:    w.mark.Initialized(),
		InitialValue:   w.mark.Initial(),
		HighWaterValue: w.mark.Peak(),
		LastSize:       w.mark.LastSize(),
		BlockedUntil:   w.blockedUntil,
	}
}

// Restore reloads persisted watcher state.
func (w *Watcher) Restore(s persistence.ReserveState) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.mark.Restore(s.Initialized, s.InitialValue, s.HighWaterValue, s.LastSize)
	w.blockedUntil = s.BlockedUntil
}
