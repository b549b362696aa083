// Package engine runs the trading loop: it folds price samples into the
// signal engine, drives the position state machine, and owns persistence
// of every state mutation.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stoilsteve-hub/MyAIBotSteve/internal/alerting"
	"github.com/stoilsteve-hub/MyAIBotSteve/internal/exchange"
	"github.com/stoilsteve-hub/MyAIBotSteve/internal/execution"
	"github.com/stoilsteve-hub/MyAIBotSteve/internal/metrics"
	"github.com/stoilsteve-hub/MyAIBotSteve/internal/observer"
	"github.com/stoilsteve-hub/MyAIBotSteve/internal/persistence"
	"github.com/stoilsteve-hub/MyAIBotSteve/internal/reserve"
	"github.com/stoilsteve-hub/MyAIBotSteve/internal/risk"
	"github.com/stoilsteve-hub/MyAIBotSteve/internal/strategy"
	"github.com/stoilsteve-hub/MyAIBotSteve/internal/types"
)

// Confirmer asks the operator to approve an action by typing a keyword.
type Confirmer interface {
	Confirm(ctx context.Context, prompt, keyword string) (bool, error)
}

// AutoConfirmer answers every prompt the same way. Used for dry runs,
// replays, and tests.
type AutoConfirmer struct {
	Allow bool
}

func (a AutoConfirmer) Confirm(ctx context.Context, prompt, keyword string) (bool, error) {
	return a.Allow, nil
}

// Config holds engine configuration.
type Config struct {
	Symbol     string
	BaseAsset  string
	QuoteAsset string

	TradeValueQuote decimal.Decimal
	TakeProfitPct   decimal.Decimal
	StopLossPct     decimal.Decimal
	MinFillQuote    decimal.Decimal
	MaxSpreadPct    decimal.Decimal

	DryRun         bool
	FiltersRefresh time.Duration
}

// fundingMinPortion is the fraction of the trade value the pot must hold
// before a buy; below it the engine tops up from the reserve first.
var fundingMinPortion = decimal.RequireFromString("0.95")

// fundingSizeBuffer oversizes the funding sell slightly so fees and price
// movement do not leave the pot short again.
var fundingSizeBuffer = decimal.RequireFromString("1.02")

// Engine coordinates the trading loop.
type Engine struct {
	cfg    Config
	logger *slog.Logger

	exchange  exchange.Exchange
	executor  execution.Executor
	signal    *strategy.Engine
	governor  *risk.Governor
	sizer     *risk.OrderSizer
	watcher   *reserve.Watcher
	state     *persistence.StateFile
	history   persistence.HistoryRepository
	alerter   alerting.Alerter
	recorder  *metrics.Recorder
	confirmer Confirmer

	mu          sync.RWMutex
	position    types.PositionState
	lastSample  types.Sample
	haltAlerted bool
}

// Deps bundles the engine's collaborators.
type Deps struct {
	Exchange  exchange.Exchange
	Executor  execution.Executor
	Signal    *strategy.Engine
	Governor  *risk.Governor
	Sizer     *risk.OrderSizer
	Watcher   *reserve.Watcher
	State     *persistence.StateFile
	History   persistence.HistoryRepository
	Alerter   alerting.Alerter
	Recorder  *metrics.Recorder
	Confirmer Confirmer
	Logger    *slog.Logger
}

// New creates a trading engine.
func New(cfg Config, deps Deps) *Engine {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	history := deps.History
	if history == nil {
		history = persistence.NopHistory{}
	}
	confirmer := deps.Confirmer
	if confirmer == nil {
		confirmer = AutoConfirmer{Allow: false}
	}
	recorder := deps.Recorder
	if recorder == nil {
		recorder = metrics.NewRecorder()
	}
	return &Engine{
		cfg:       cfg,
		logger:    logger,
		exchange:  deps.Exchange,
		executor:  deps.Executor,
		signal:    deps.Signal,
		governor:  deps.Governor,
		sizer:     deps.Sizer,
		watcher:   deps.Watcher,
		state:     deps.State,
		history:   history,
		alerter:   deps.Alerter,
		recorder:  recorder,
		confirmer: confirmer,
	}
}

// LastPrice returns the mid of the most recent sample, zero before the
// first tick.
func (e *Engine) LastPrice() decimal.Decimal {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.lastSample.Mid
}

// Position returns a copy of the current position state.
func (e *Engine) Position() types.PositionState {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.position
}

// Restore reloads persisted state. A missing file starts fresh; a
// corrupted file is returned as an error for the operator to resolve.
func (e *Engine) Restore() error {
	if e.state == nil {
		return nil
	}

	saved, err := e.state.Load()
	if err != nil {
		if errors.Is(err, types.ErrStateNotFound) {
			e.logger.Info("no saved state, starting fresh", "path", e.state.Path())
			return nil
		}
		return err
	}

	pos, err := saved.Position()
	if err != nil {
		return err
	}

	// An order was in flight when the process died. The walker cancels its
	// slices on shutdown, so resolve by holdings: quantity means the fill
	// landed, none means it did not.
	if pos.Status == types.PositionOrderPending {
		if pos.HeldQty.IsPositive() {
			pos.Status = types.PositionHolding
		} else {
			pos.Status = types.PositionFlat
		}
		pos.PendingOrderID = ""
		e.logger.Warn("recovered from interrupted order",
			"resolved_status", pos.Status.String(),
			"held_qty", pos.HeldQty,
		)
	}

	e.mu.Lock()
	e.position = pos
	e.mu.Unlock()

	e.signal.Restore(saved.WindowMids, saved.LastSellPrice)
	e.governor.Restore(risk.Counters{
		DayKey:          saved.Risk.DayKey,
		TradeCount:      saved.Risk.TradeCount,
		RealizedPnL:     saved.Risk.RealizedPnL,
		ErrorTimestamps: saved.Risk.ErrorTimestamps,
		LastTradeAt:     saved.Risk.LastTradeAt,
	})
	if e.watcher != nil {
		e.watcher.Restore(saved.Reserve)
	}

	e.logger.Info("state restored",
		"status", pos.Status.String(),
		"held_qty", pos.HeldQty,
		"entry_price", pos.EntryPrice,
		"window_samples", len(saved.WindowMids),
		"day_key", saved.Risk.DayKey,
	)
	return nil
}

// SelfTest verifies live trading preconditions: account permission, symbol
// tradability, and order round-trip. Any failure is fatal; running live
// with a broken setup is worse than not starting.
func (e *Engine) SelfTest(ctx context.Context) error {
	ok, err := e.exchange.CanTrade(ctx)
	if err != nil {
		return fmt.Errorf("self-test account: %w", err)
	}
	if !ok {
		return fmt.Errorf("%w: account cannot trade", types.ErrFatalAPI)
	}

	filters, err := e.exchange.SymbolFilters(ctx, e.cfg.Symbol)
	if err != nil {
		return fmt.Errorf("self-test filters: %w", err)
	}
	e.sizer.SetFilters(filters)

	book, err := e.exchange.BookTicker(ctx, e.cfg.Symbol)
	if err != nil {
		return fmt.Errorf("self-test ticker: %w", err)
	}

	// Place-and-cancel probe far below the market: proves order permissions
	// without any realistic chance of filling.
	probePrice := risk.RoundPriceForSide(book.Mid.Div(decimal.NewFromInt(2)), filters.TickSize, types.SideSell)
	probeQty := filters.MinNotional.Mul(decimal.RequireFromString("1.2")).Div(probePrice)
	probeQty = risk.FloorToStep(probeQty.Add(filters.StepSize), filters.StepSize)

	rec, err := e.exchange.PlaceLimitOrder(ctx, types.OrderIntent{
		ClientOrderID: execution.NewClientOrderID(),
		Timestamp:     time.Now(),
		Symbol:        e.cfg.Symbol,
		Side:          types.SideBuy,
		Qty:           probeQty,
		LimitPrice:    probePrice,
		Reason:        "startup_probe",
	})
	if err != nil {
		return fmt.Errorf("self-test probe order: %w", exchange.Classify(err))
	}
	if _, err := e.exchange.CancelOrder(ctx, e.cfg.Symbol, rec.OrderID); err != nil {
		return fmt.Errorf("self-test probe cancel: %w", exchange.Classify(err))
	}

	e.logger.Info("startup self-test passed",
		"symbol", e.cfg.Symbol,
		"tick_size", filters.TickSize,
		"step_size", filters.StepSize,
		"min_notional", filters.MinNotional,
	)
	return nil
}

// Run drives the trading loop until the context ends or the feed closes.
// A fatal API error is returned to the caller for process termination.
func (e *Engine) Run(ctx context.Context, feed observer.Feed) error {
	samples, err := feed.Subscribe(ctx, e.cfg.Symbol)
	if err != nil {
		return fmt.Errorf("subscribe feed: %w", err)
	}

	e.logger.Info("trading loop started",
		"symbol", e.cfg.Symbol,
		"feed", feed.Name(),
		"dry_run", e.cfg.DryRun,
	)
	e.alert(ctx, alerting.EventSeverity(alerting.EventBotStarted), "Bot started",
		"symbol", e.cfg.Symbol,
		"dry_run", e.cfg.DryRun,
	)

	var reserveC <-chan time.Time
	if e.watcher != nil {
		t := time.NewTicker(e.watcher.Interval())
		defer t.Stop()
		reserveC = t.C
	}
	var filtersC <-chan time.Time
	if e.cfg.FiltersRefresh > 0 {
		t := time.NewTicker(e.cfg.FiltersRefresh)
		defer t.Stop()
		filtersC = t.C
	}

	for {
		select {
		case <-ctx.Done():
			e.logger.Info("trading loop stopped", "reason", "context cancelled")
			e.alert(context.Background(), alerting.EventSeverity(alerting.EventBotStopped), "Bot stopped")
			return nil

		case sample, ok := <-samples:
			if !ok {
				e.logger.Info("trading loop stopped", "reason", "feed exhausted")
				return nil
			}
			if err := e.ProcessTick(ctx, sample); err != nil {
				if exchange.IsFatal(err) {
					e.alert(ctx, alerting.EventSeverity(alerting.EventFatalAPIError), "Fatal exchange error, shutting down",
						"error", err.Error(),
					)
					return err
				}
				e.logger.Error("tick failed", "error", err)
				e.countError(err)
			}

		case <-reserveC:
			e.checkReserve(ctx)

		case <-filtersC:
			e.refreshFilters(ctx)
		}
	}
}

// ProcessTick handles one price sample end to end.
func (e *Engine) ProcessTick(ctx context.Context, sample types.Sample) error {
	e.recorder.RecordTick(e.cfg.Symbol)
	e.recorder.RecordHeartbeat()
	e.maybeDailySummary(ctx, sample.Timestamp)

	e.mu.Lock()
	e.lastSample = sample
	e.mu.Unlock()

	// Spread gate: a blown-out book means unreliable pricing. Skipping the
	// tick entirely keeps the gap out of the SMA window too.
	if e.cfg.MaxSpreadPct.IsPositive() && sample.SpreadRatio().GreaterThan(e.cfg.MaxSpreadPct) {
		e.logger.Debug("spread gate",
			"bid", sample.Bid,
			"ask", sample.Ask,
			"spread", sample.SpreadRatio().Round(6),
		)
		e.recorder.RecordSkip("spread")
		return nil
	}

	sig := e.signal.Update(sample)
	e.recorder.RecordMarket(sample.Mid, sig.SMA, sig.BuyTarget)
	e.publishRiskMetrics(sample.Timestamp)

	pos := e.Position()
	e.recorder.RecordPosition(int(pos.Status), pos.EntryPrice, pos.HeldQty)
	e.heartbeat(ctx, sample, sig, pos)

	switch pos.Status {
	case types.PositionHolding:
		return e.checkExit(ctx, sample, pos)

	case types.PositionFlat:
		if sig.PermitBuy && sample.Mid.LessThanOrEqual(sig.BuyTarget) {
			return e.tryBuy(ctx, sample, sig)
		}
		e.recorder.RecordSignal(sig.Reason, sig.PermitBuy)
		return nil

	default: // PositionOrderPending only ever persists across a crash.
		e.logger.Warn("tick while order pending, skipping")
		return nil
	}
}

// heartbeat emits one structured status line per processed tick: market,
// signal, position, pot, reserve, and risk state in a single greppable
// record. Balance reads are best effort; a failed read drops the field
// rather than the heartbeat.
func (e *Engine) heartbeat(ctx context.Context, sample types.Sample, sig types.TrendSignal, pos types.PositionState) {
	halted, _ := e.governor.Halted()
	fields := []any{
		"mid", sample.Mid,
		"sma", sig.SMA,
		"anchor", sig.Anchor,
		"buy_target", sig.BuyTarget,
		"permit_buy", sig.PermitBuy,
		"signal", sig.Reason,
		"position", pos.Status.String(),
		"held_qty", pos.HeldQty,
		"entry_price", pos.EntryPrice,
		"daily_pnl", e.governor.DailyPnL(),
		"trade_count", e.governor.TradeCount(),
		"halted", halted,
	}
	if potQuote, err := e.exchange.Balance(ctx, e.cfg.QuoteAsset); err == nil {
		fields = append(fields, "pot_quote", potQuote)
	}
	if potBase, err := e.exchange.Balance(ctx, e.cfg.BaseAsset); err == nil {
		fields = append(fields, "pot_base", potBase)
	}
	if e.watcher != nil {
		rs := e.watcher.Snapshot()
		fields = append(fields,
			"reserve_value", rs.LastSize.Mul(sample.Mid).Round(2),
			"reserve_high_water", rs.HighWaterValue,
		)
	}
	e.logger.Info("heartbeat", fields...)
}

// tryBuy runs the full entry pipeline: risk gate, pot funding, sizing,
// then walked execution.
func (e *Engine) tryBuy(ctx context.Context, sample types.Sample, sig types.TrendSignal) error {
	now := sample.Timestamp

	if err := e.governor.Gate(now); err != nil {
		e.recorder.RecordSkip("risk_gate")
		e.logger.Info("buy blocked by risk gate", "reason", err.Error())
		e.alertHaltOnce(ctx, err)
		return nil
	}
	e.haltAlertedReset()

	funded, err := e.ensureFunded(ctx, sample)
	if err != nil {
		return err
	}
	if !funded {
		return nil
	}

	size := e.sizer.Size(e.cfg.TradeValueQuote, sample.Mid)
	if !size.Valid {
		skip := "sizing"
		if errors.Is(size.Err, types.ErrBelowMinNotional) {
			skip = "min_notional"
		}
		e.recorder.RecordSkip(skip)
		e.logger.Warn("buy skipped", "reason", size.RejectReason, "mid", sample.Mid)
		return nil
	}

	intent := types.OrderIntent{
		ClientOrderID: execution.NewClientOrderID(),
		Timestamp:     now,
		Symbol:        e.cfg.Symbol,
		Side:          types.SideBuy,
		Qty:           size.Qty,
		RefPrice:      sample.Mid,
		Reason:        sig.Reason,
	}

	e.setPosition(types.PositionState{
		Status:         types.PositionOrderPending,
		PendingOrderID: intent.ClientOrderID,
	})
	e.persist()

	e.logger.Info("dip buy",
		"qty", intent.Qty,
		"mid", sample.Mid,
		"buy_target", sig.BuyTarget,
		"anchor", sig.Anchor,
		"signal", sig.Reason,
	)

	outcome, err := e.executor.Execute(ctx, intent)
	if err != nil {
		// Whatever filled before the failure is still ours. Settle it first
		// so the position never loses a committed fill, then account for
		// the error.
		if outcome != nil && outcome.Filled() {
			if settleErr := e.settleBuy(ctx, outcome); settleErr != nil {
				return settleErr
			}
		} else {
			e.setPosition(types.PositionState{Status: types.PositionFlat})
			e.persist()
		}
		if errors.Is(err, types.ErrSpreadTooWide) {
			// Market-condition skip: expected, retried next tick, no error
			// budget spent.
			e.recorder.RecordSkip("slippage")
			e.logger.Info("buy abandoned on slippage", "reason", err.Error())
			return nil
		}
		e.recorder.RecordOrder(e.cfg.Symbol, "BUY", "error")
		if exchange.IsFatal(err) {
			return err
		}
		e.countErrorAt(now)
		e.alert(ctx, alerting.EventSeverity(alerting.EventOrderRejected), "Buy order failed", "error", err.Error())
		return nil
	}

	return e.settleBuy(ctx, outcome)
}

// settleBuy applies a buy outcome to the position state machine. Only a
// meaningful fill opens the position; dust joins the reserve.
func (e *Engine) settleBuy(ctx context.Context, outcome *types.OrderOutcome) error {
	if !outcome.Filled() {
		e.setPosition(types.PositionState{Status: types.PositionFlat})
		e.persist()
		e.recorder.RecordOrder(e.cfg.Symbol, "BUY", "unfilled")
		e.logger.Info("buy expired unfilled", "attempts", outcome.Attempts)
		return nil
	}

	if !outcome.Meaningful(e.cfg.MinFillQuote) {
		e.setPosition(types.PositionState{Status: types.PositionFlat})
		e.persist()
		e.recorder.RecordOrder(e.cfg.Symbol, "BUY", "dust")
		e.logger.Warn("buy fill below meaningful threshold, staying flat",
			"filled_qty", outcome.FilledQty,
			"cum_quote", outcome.CumQuote,
			"min_fill_quote", e.cfg.MinFillQuote,
		)
		return nil
	}

	pos := types.PositionState{Status: types.PositionHolding}
	pos.ApplyFill(outcome.FilledQty, outcome.AvgFillPrice)
	e.setPosition(pos)
	e.persist()

	// A filled entry consumes a slot of the daily cap and restarts the
	// cooldown, so a string of buys cannot outrun the kill switch.
	e.governor.RecordEntry(outcome.Intent.Timestamp)

	e.recorder.RecordOrder(e.cfg.Symbol, "BUY", "filled")
	e.logger.Info("position opened",
		"qty", pos.HeldQty,
		"entry_price", pos.EntryPrice,
		"cum_quote", outcome.CumQuote,
		"attempts", outcome.Attempts,
	)
	e.alert(ctx, alerting.EventSeverity(alerting.EventPositionOpened), "Position opened",
		"qty", pos.HeldQty,
		"entry", pos.EntryPrice.StringFixed(2),
	)
	return nil
}

// checkExit closes the position on take-profit or stop-loss. Exits never
// consult the trend gate or the risk gate: reducing exposure is always
// allowed.
func (e *Engine) checkExit(ctx context.Context, sample types.Sample, pos types.PositionState) error {
	one := decimal.NewFromInt(1)
	tp := pos.EntryPrice.Mul(one.Add(e.cfg.TakeProfitPct))
	sl := pos.EntryPrice.Mul(one.Sub(e.cfg.StopLossPct))

	var reason string
	switch {
	case sample.Mid.GreaterThanOrEqual(tp):
		reason = "take_profit"
	case sample.Mid.LessThanOrEqual(sl):
		reason = "stop_loss"
	default:
		return nil
	}

	return e.sellPosition(ctx, sample, pos, reason)
}

// sellPosition exits the held quantity and settles the round trip.
func (e *Engine) sellPosition(ctx context.Context, sample types.Sample, pos types.PositionState, reason string) error {
	now := sample.Timestamp

	check := e.sizer.ValidateQty(pos.HeldQty, sample.Mid)
	if !check.Valid {
		// Unsellable remainder; write it off to the reserve.
		e.logger.Warn("held quantity unsellable, flattening",
			"held_qty", pos.HeldQty,
			"reason", check.RejectReason,
		)
		e.setPosition(types.PositionState{Status: types.PositionFlat})
		e.persist()
		return nil
	}

	intent := types.OrderIntent{
		ClientOrderID: execution.NewClientOrderID(),
		Timestamp:     now,
		Symbol:        e.cfg.Symbol,
		Side:          types.SideSell,
		Qty:           check.Qty,
		RefPrice:      sample.Mid,
		Reason:        reason,
	}

	pending := pos
	pending.Status = types.PositionOrderPending
	pending.PendingOrderID = intent.ClientOrderID
	e.setPosition(pending)
	e.persist()

	e.logger.Info("exit triggered",
		"reason", reason,
		"qty", intent.Qty,
		"mid", sample.Mid,
		"entry_price", pos.EntryPrice,
	)

	outcome, err := e.executor.Execute(ctx, intent)
	if err != nil {
		// The filled portion of a failed sell is gone from holdings; settle
		// it so realized PnL and the remainder stay truthful.
		if outcome != nil && outcome.Filled() {
			if settleErr := e.settleSell(ctx, sample, pos, outcome, reason); settleErr != nil {
				return settleErr
			}
		} else {
			e.setPosition(pos)
			e.persist()
		}
		if errors.Is(err, types.ErrSpreadTooWide) {
			e.recorder.RecordSkip("slippage")
			e.logger.Info("sell abandoned on slippage", "reason", err.Error())
			return nil
		}
		e.recorder.RecordOrder(e.cfg.Symbol, "SELL", "error")
		if exchange.IsFatal(err) {
			return err
		}
		e.countErrorAt(now)
		e.alert(ctx, alerting.EventSeverity(alerting.EventOrderRejected), "Sell order failed",
			"reason", reason,
			"error", err.Error(),
		)
		return nil
	}

	return e.settleSell(ctx, sample, pos, outcome, reason)
}

// settleSell applies a sell outcome: realized PnL, trade history, last
// sell anchor, and the dust rule for the remainder.
func (e *Engine) settleSell(ctx context.Context, sample types.Sample, pos types.PositionState, outcome *types.OrderOutcome, reason string) error {
	remainder := pos.HeldQty.Sub(outcome.FilledQty)

	if outcome.Filled() {
		pnl := outcome.CumQuote.Sub(pos.EntryPrice.Mul(outcome.FilledQty))
		e.governor.RecordTrade(sample.Timestamp, pnl)
		e.signal.SetLastSellPrice(outcome.AvgFillPrice)

		trade := types.Trade{
			ID:         uuid.New().String(),
			Symbol:     e.cfg.Symbol,
			Side:       types.SideSell,
			Qty:        outcome.FilledQty,
			EntryPrice: pos.EntryPrice,
			ExitPrice:  outcome.AvgFillPrice,
			EntryTime:  sample.Timestamp,
			ExitTime:   outcome.CompletedAt,
			PnLQuote:   pnl,
			Reason:     reason,
		}
		if err := e.history.SaveTrade(ctx, trade); err != nil {
			e.logger.Warn("trade history write failed", "error", err)
		}

		e.recorder.RecordOrder(e.cfg.Symbol, "SELL", "filled")
		e.recorder.RecordTrade(e.cfg.Symbol, pnl.IsPositive())
		e.logger.Info("position exit",
			"reason", reason,
			"sold_qty", outcome.FilledQty,
			"exit_price", outcome.AvgFillPrice,
			"pnl", pnl,
			"remainder", remainder,
		)
		e.alert(ctx, alerting.EventSeverity(alerting.EventPositionClosed), "Position closed",
			"reason", reason,
			"pnl", pnl.StringFixed(2),
		)
	} else {
		e.recorder.RecordOrder(e.cfg.Symbol, "SELL", "unfilled")
		e.logger.Warn("sell expired unfilled, still holding", "reason", reason)
	}

	// Dust rule: the position flattens only when what remains can no
	// longer be sold legally. A meaningful remainder stays a position.
	if remainder.LessThanOrEqual(decimal.Zero) || e.sizer.IsDust(remainder, sample.Mid) {
		e.setPosition(types.PositionState{Status: types.PositionFlat})
	} else {
		held := pos
		held.Status = types.PositionHolding
		held.HeldQty = remainder
		held.PendingOrderID = ""
		e.setPosition(held)
	}
	e.persist()
	return nil
}

// ensureFunded tops up the quote pot from the reserve when it cannot cover
// the trade value. The sale reduces long-term holdings, so it requires an
// explicit typed confirmation outside dry runs.
func (e *Engine) ensureFunded(ctx context.Context, sample types.Sample) (bool, error) {
	potQuote, err := e.exchange.Balance(ctx, e.cfg.QuoteAsset)
	if err != nil {
		return false, exchange.Classify(err)
	}
	if potQuote.GreaterThanOrEqual(e.cfg.TradeValueQuote.Mul(fundingMinPortion)) {
		return true, nil
	}

	needed := e.cfg.TradeValueQuote.Sub(potQuote)
	qty := needed.Div(sample.Mid).Mul(fundingSizeBuffer)
	check := e.sizer.ValidateQty(qty, sample.Mid)
	if !check.Valid {
		e.logger.Warn("pot underfunded and funding sell unsizable",
			"pot_quote", potQuote,
			"needed", needed,
			"reason", check.RejectReason,
		)
		return false, nil
	}

	if !e.cfg.DryRun {
		prompt := fmt.Sprintf("Sell %s %s from reserve to fund the pot (%s %s short)?",
			check.Qty, e.cfg.BaseAsset, needed.StringFixed(2), e.cfg.QuoteAsset)
		ok, err := e.confirmer.Confirm(ctx, prompt, "I UNDERSTAND")
		if err != nil {
			return false, fmt.Errorf("funding confirmation: %w", err)
		}
		if !ok {
			e.logger.Info("funding sell declined, skipping buy")
			e.recorder.RecordSkip("funding_declined")
			return false, nil
		}
	}

	intent := types.OrderIntent{
		ClientOrderID: execution.NewClientOrderID(),
		Timestamp:     sample.Timestamp,
		Symbol:        e.cfg.Symbol,
		Side:          types.SideSell,
		Qty:           check.Qty,
		RefPrice:      sample.Mid,
		Reason:        "funding_sell",
	}

	outcome, err := e.executor.Execute(ctx, intent)
	if err != nil {
		if outcome != nil && outcome.Filled() {
			e.settleFundingSell(outcome)
			e.logger.Warn("funding sell failed after partial fill",
				"sold_qty", outcome.FilledQty,
				"raised_quote", outcome.CumQuote,
				"error", err,
			)
		}
		if errors.Is(err, types.ErrSpreadTooWide) {
			e.recorder.RecordSkip("slippage")
			e.logger.Info("funding sell abandoned on slippage", "reason", err.Error())
			return false, nil
		}
		if exchange.IsFatal(err) {
			return false, err
		}
		e.countErrorAt(sample.Timestamp)
		e.logger.Error("funding sell failed", "error", err)
		return false, nil
	}

	if outcome.Filled() {
		e.settleFundingSell(outcome)
	}
	e.logger.Info("funding sell done",
		"sold_qty", outcome.FilledQty,
		"raised_quote", outcome.CumQuote,
	)
	e.alert(ctx, alerting.EventSeverity(alerting.EventFundingSell), "Reserve sold to fund pot",
		"qty", outcome.FilledQty,
		"raised", outcome.CumQuote.StringFixed(2),
	)
	// Buy on the next tick with the refreshed balance.
	return false, nil
}

// settleFundingSell books the side effects of a filled funding sell: the
// fill price becomes the new dip anchor and the cooldown restarts so the
// bot does not churn the reserve. The trade cap is not consumed.
func (e *Engine) settleFundingSell(outcome *types.OrderOutcome) {
	e.signal.SetLastSellPrice(outcome.AvgFillPrice)
	e.governor.ArmCooldown(outcome.Intent.Timestamp)
	e.persist()
}

// checkReserve runs one reserve watcher evaluation.
func (e *Engine) checkReserve(ctx context.Context) {
	if e.watcher == nil {
		return
	}

	pos := e.Position()
	ev, err := e.watcher.Check(ctx, time.Now(), pos.HeldQty)
	if err != nil {
		if errors.Is(err, types.ErrSpreadTooWide) {
			e.recorder.RecordSkip("slippage")
			e.logger.Info("reserve sale abandoned on slippage", "reason", err.Error())
			return
		}
		e.logger.Error("reserve check failed", "error", err)
		e.countError(err)
		return
	}
	if ev == nil {
		return
	}

	e.recorder.RecordReserve(ev.Value, ev.HighWater)
	if ev.Triggered {
		e.alert(ctx, alerting.EventSeverity(alerting.EventReserveTriggered), "Reserve trigger",
			"reason", ev.Reason,
			"value", ev.Value.StringFixed(2),
			"high_water", ev.HighWater.StringFixed(2),
		)
	}
	e.persist()
}

// refreshFilters re-fetches symbol trading rules.
func (e *Engine) refreshFilters(ctx context.Context) {
	filters, err := e.exchange.SymbolFilters(ctx, e.cfg.Symbol)
	if err != nil {
		e.logger.Warn("filters refresh failed", "error", err)
		return
	}
	e.sizer.SetFilters(filters)
	e.logger.Debug("filters refreshed", "fetched_at", filters.FetchedAt)
}

func (e *Engine) setPosition(pos types.PositionState) {
	e.mu.Lock()
	e.position = pos
	e.mu.Unlock()
}

// persist writes the full controller state. Failures are logged, not
// propagated: a broken disk should not stop risk management.
func (e *Engine) persist() {
	if e.state == nil {
		return
	}

	pos := e.Position()
	counters := e.governor.Snapshot()

	st := persistence.BotState{
		Symbol:         e.cfg.Symbol,
		Status:         pos.Status.String(),
		EntryPrice:     pos.EntryPrice,
		HeldQty:        pos.HeldQty,
		PendingOrderID: pos.PendingOrderID,
		LastSellPrice:  e.signal.LastSellPrice(),
		WindowMids:     e.signal.WindowMids(),
		Risk: persistence.RiskState{
			DayKey:          counters.DayKey,
			TradeCount:      counters.TradeCount,
			RealizedPnL:     counters.RealizedPnL,
			ErrorTimestamps: counters.ErrorTimestamps,
			LastTradeAt:     counters.LastTradeAt,
		},
	}
	if e.watcher != nil {
		st.Reserve = e.watcher.Snapshot()
	}

	if err := e.state.Save(st); err != nil {
		e.logger.Error("state save failed", "error", err)
	}
}

// maybeDailySummary reports the finished day when the first tick of a new
// calendar day arrives, then applies the governor's daily reset. Runs
// before anything else touches the counters with the new timestamp so the
// snapshot still reflects the day being reported.
func (e *Engine) maybeDailySummary(ctx context.Context, now time.Time) {
	counters := e.governor.Snapshot()
	if counters.DayKey == "" || counters.DayKey == e.governor.DayKey(now) {
		return
	}
	e.emitDailySummary(ctx, counters)
	e.governor.Rollover(now)
}

func (e *Engine) emitDailySummary(ctx context.Context, c risk.Counters) {
	date, err := time.ParseInLocation("2006-01-02", c.DayKey, e.governor.Location())
	if err != nil {
		e.logger.Warn("daily summary skipped, bad day key", "day_key", c.DayKey)
		return
	}

	var wins, losses int
	trades, err := e.history.Trades(ctx, date, date.AddDate(0, 0, 1))
	if err != nil {
		e.logger.Warn("daily summary trade query failed", "error", err)
	}
	for _, tr := range trades {
		switch {
		case tr.PnLQuote.IsPositive():
			wins++
		case tr.PnLQuote.IsNegative():
			losses++
		}
	}

	pos := e.Position()
	halted, haltReason := e.governor.Halted()
	var reserveValue decimal.Decimal
	if e.watcher != nil {
		rs := e.watcher.Snapshot()
		reserveValue = rs.LastSize.Mul(e.LastPrice()).Round(2)
	}

	summary := alerting.NewDailySummary(date, e.cfg.Symbol,
		c.RealizedPnL, c.TradeCount, wins, losses,
		halted, haltReason, pos.Status.String(), pos.HeldQty, reserveValue)

	e.logger.Info("daily summary",
		"date", c.DayKey,
		"pnl", c.RealizedPnL,
		"trades", c.TradeCount,
		"wins", wins,
		"losses", losses,
		"halted", halted,
	)

	if e.alerter == nil {
		return
	}
	if sender, ok := e.alerter.(alerting.SummarySender); ok {
		if err := sender.SendDailySummary(ctx, summary); err != nil {
			e.logger.Warn("daily summary delivery failed", "error", err)
		}
		return
	}
	e.alert(ctx, alerting.EventSeverity(alerting.EventDailySummary), "Daily summary",
		"date", c.DayKey,
		"pnl", summary.DailyPnL.StringFixed(2),
		"trades", summary.TotalTrades,
		"win_rate", summary.WinRate.StringFixed(1)+"%",
	)
}

// countError feeds a transient error into the risk budget.
func (e *Engine) countError(err error) {
	if exchange.IsFatal(err) {
		return
	}
	e.recorder.RecordError("api")
	e.governor.RecordError(time.Now())
}

func (e *Engine) countErrorAt(now time.Time) {
	e.recorder.RecordError("api")
	e.governor.RecordError(now)
}

func (e *Engine) publishRiskMetrics(now time.Time) {
	halted, _ := e.governor.Halted()
	e.recorder.RecordRisk(
		e.governor.DailyPnL(),
		e.governor.TradeCount(),
		e.governor.ErrorCount(now),
		halted,
	)
}

// alertHaltOnce raises a single alert per halt episode; cooldown blocks
// are routine and stay at log level.
func (e *Engine) alertHaltOnce(ctx context.Context, gateErr error) {
	if errors.Is(gateErr, types.ErrCooldownActive) {
		return
	}
	e.mu.Lock()
	already := e.haltAlerted
	e.haltAlerted = true
	e.mu.Unlock()
	if already {
		return
	}
	e.alert(ctx, alerting.EventSeverity(alerting.EventTradingHalted), "Trading halted for the day",
		"reason", gateErr.Error(),
	)
}

func (e *Engine) haltAlertedReset() {
	e.mu.Lock()
	e.haltAlerted = false
	e.mu.Unlock()
}

func (e *Engine) alert(ctx context.Context, severity alerting.Severity, msg string, fields ...any) {
	if e.alerter == nil {
		return
	}
	if err := e.alerter.Alert(ctx, severity, msg, fields...); err != nil {
		e.logger.Warn("alert failed", "error", err)
	}
}
