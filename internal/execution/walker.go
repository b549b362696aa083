package execution

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stoilsteve-hub/MyAIBotSteve/internal/exchange"
	"github.com/stoilsteve-hub/MyAIBotSteve/internal/risk"
	"github.com/stoilsteve-hub/MyAIBotSteve/internal/types"
)

// Config holds limit order execution settings.
type Config struct {
	LimitOffsetPct decimal.Decimal
	OrderTimeout   time.Duration
	PollInterval   time.Duration
	MaxSlippagePct decimal.Decimal

	WalkEnabled           bool
	WalkOffsetStartPct    decimal.Decimal
	WalkOffsetEndPct      decimal.Decimal
	WalkMaxAttempts       int
	WalkSlice             time.Duration
	WalkMaxSpreadCrossPct decimal.Decimal
}

// DefaultConfig returns execution defaults matching a passive-first walk.
func DefaultConfig() Config {
	return Config{
		LimitOffsetPct: decimal.Zero,
		OrderTimeout:   45 * time.Second,
		PollInterval:   2 * time.Second,
		MaxSlippagePct: decimal.RequireFromString("0.004"),

		WalkEnabled:           true,
		WalkOffsetStartPct:    decimal.RequireFromString("0.0005"),
		WalkOffsetEndPct:      decimal.RequireFromString("-0.0002"),
		WalkMaxAttempts:       4,
		WalkSlice:             12 * time.Second,
		WalkMaxSpreadCrossPct: decimal.RequireFromString("0.001"),
	}
}

// OrderAudit records order lifecycle events for offline review. The
// persistence history repository implements it.
type OrderAudit interface {
	SaveOrder(ctx context.Context, order types.OrderRecord) error
	UpdateOrder(ctx context.Context, order types.OrderRecord) error
}

// Walker executes an intent as a sequence of repriced limit orders. Each
// slice places a limit at an offset from the current mid, waits, then
// cancels and reprices closer to (and eventually across) the touch. When
// walking is disabled it degrades to a single static limit order.
type Walker struct {
	cfg      Config
	exchange exchange.Exchange
	sizer    *risk.OrderSizer
	audit    OrderAudit
	logger   *slog.Logger
}

// NewWalker creates a walk-the-limit executor.
func NewWalker(cfg Config, exch exchange.Exchange, sizer *risk.OrderSizer, logger *slog.Logger) *Walker {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 2 * time.Second
	}
	if cfg.WalkMaxAttempts < 1 {
		cfg.WalkMaxAttempts = 1
	}
	return &Walker{
		cfg:      cfg,
		exchange: exch,
		sizer:    sizer,
		logger:   logger,
	}
}

var _ Executor = (*Walker)(nil)

// SetAudit attaches an order audit sink. Audit failures are logged, never
// propagated; the audit trail must not interfere with execution.
func (w *Walker) SetAudit(a OrderAudit) {
	w.audit = a
}

// slicePlan describes one pricing attempt.
type slicePlan struct {
	offset   decimal.Decimal
	duration time.Duration
}

// plan lays out the attempt schedule. Walking interpolates the offset
// linearly from start to end; a disabled walk is one slice at the static
// offset for the full order timeout. The whole schedule never exceeds the
// order timeout: a slice that would overrun it is shortened, later ones
// are dropped.
func (w *Walker) plan() []slicePlan {
	if !w.cfg.WalkEnabled {
		return []slicePlan{{offset: w.cfg.LimitOffsetPct, duration: w.cfg.OrderTimeout}}
	}

	n := w.cfg.WalkMaxAttempts
	plans := make([]slicePlan, 0, n)
	span := w.cfg.WalkOffsetEndPct.Sub(w.cfg.WalkOffsetStartPct)
	var total time.Duration
	for i := 0; i < n; i++ {
		offset := w.cfg.WalkOffsetStartPct
		if n > 1 {
			frac := decimal.NewFromInt(int64(i)).Div(decimal.NewFromInt(int64(n - 1)))
			offset = offset.Add(span.Mul(frac))
		}
		d := w.cfg.WalkSlice
		if w.cfg.OrderTimeout > 0 {
			if total >= w.cfg.OrderTimeout {
				break
			}
			if remaining := w.cfg.OrderTimeout - total; d > remaining {
				d = remaining
			}
		}
		total += d
		plans = append(plans, slicePlan{offset: offset, duration: d})
	}
	return plans
}

// priceFor computes the slice limit price for the given mid. A negative
// offset crosses the mid; the cross is capped on both sides and the result
// is tick-aligned and clamped to the exchange percent band.
func (w *Walker) priceFor(side types.Side, mid, offset decimal.Decimal) decimal.Decimal {
	one := decimal.NewFromInt(1)
	var price decimal.Decimal
	if side == types.SideBuy {
		price = mid.Mul(one.Sub(offset))
		if ceil := mid.Mul(one.Add(w.cfg.WalkMaxSpreadCrossPct)); price.GreaterThan(ceil) {
			price = ceil
		}
	} else {
		price = mid.Mul(one.Add(offset))
		if floor := mid.Mul(one.Sub(w.cfg.WalkMaxSpreadCrossPct)); price.LessThan(floor) {
			price = floor
		}
	}

	f := w.sizer.Filters()
	price = risk.ClampToPercentBand(price, mid, f.MultiplierUp, f.MultiplierDown)
	return risk.RoundPriceForSide(price, f.TickSize, side)
}

// Execute works the intent through the slice schedule, accumulating fills
// across slices. See Executor for the timeout contract. The outcome always
// carries whatever filled before a failure, so callers can commit partial
// fills even on the error path.
func (w *Walker) Execute(ctx context.Context, intent types.OrderIntent) (*types.OrderOutcome, error) {
	outcome := &types.OrderOutcome{Intent: intent}

	refMid := intent.RefPrice
	remaining := intent.Qty
	var cumQty, cumQuote decimal.Decimal

	for i, slice := range w.plan() {
		outcome.Attempts = i + 1

		book, err := w.exchange.BookTicker(ctx, intent.Symbol)
		if err != nil {
			w.finish(outcome, cumQty, cumQuote, false)
			return outcome, fmt.Errorf("fetch book: %w", err)
		}
		mid := book.Mid
		if refMid.IsZero() {
			refMid = mid
		}

		// Slippage guard: once the mid drifts too far from the price the
		// decision was made at, chasing it executes a different trade than
		// the one that was decided. Stop and commit what filled.
		if w.cfg.MaxSlippagePct.IsPositive() && refMid.IsPositive() {
			drift := mid.Sub(refMid).Abs().Div(refMid)
			if drift.GreaterThan(w.cfg.MaxSlippagePct) {
				w.finish(outcome, cumQty, cumQuote, false)
				w.logger.Warn("walk abandoned on slippage",
					"side", intent.Side,
					"ref_mid", refMid,
					"mid", mid,
					"drift", drift.Round(6),
				)
				return outcome, fmt.Errorf("%w: mid %s drifted %s from %s",
					types.ErrSpreadTooWide, mid, drift.Round(6), refMid)
			}
		}

		price := w.priceFor(intent.Side, mid, slice.offset)
		check := w.sizer.ValidateQty(remaining, price)
		if !check.Valid {
			// Remainder no longer sellable/buyable at a legal size; what has
			// filled so far is the result.
			w.logger.Debug("walk remainder rejected by filters",
				"reason", check.RejectReason,
				"remaining", remaining,
			)
			break
		}
		qty := check.Qty

		sliceIntent := intent
		sliceIntent.Qty = qty
		sliceIntent.LimitPrice = price
		sliceIntent.Timestamp = time.Now()
		if i > 0 || sliceIntent.ClientOrderID == "" {
			sliceIntent.ClientOrderID = NewClientOrderID()
		}

		w.logger.Info("walk slice",
			"attempt", i+1,
			"side", intent.Side,
			"qty", qty,
			"price", price,
			"mid", mid,
			"offset", slice.offset,
		)

		rec, err := w.exchange.PlaceLimitOrder(ctx, sliceIntent)
		if err != nil {
			w.finish(outcome, cumQty, cumQuote, false)
			return outcome, fmt.Errorf("place order: %w", err)
		}
		outcome.LastOrderID = rec.OrderID
		w.auditSave(ctx, rec)

		final := rec
		if !final.Status.IsFinal() {
			final, err = w.awaitSlice(ctx, intent.Symbol, rec.OrderID, slice.duration)
			if err != nil {
				w.finish(outcome, cumQty, cumQuote, false)
				return outcome, err
			}
		}
		w.auditUpdate(ctx, final)

		if final.FilledQty.IsPositive() {
			cumQty = cumQty.Add(final.FilledQty)
			cumQuote = cumQuote.Add(final.CumQuote)
			remaining = remaining.Sub(final.FilledQty)
		}

		if final.Status == types.OrderStatusRejected {
			w.finish(outcome, cumQty, cumQuote, false)
			return outcome, fmt.Errorf("%w: order %s", types.ErrOrderRejected, final.OrderID)
		}

		if final.Status == types.OrderStatusFilled || remaining.LessThanOrEqual(decimal.Zero) {
			w.finish(outcome, cumQty, cumQuote, false)
			return outcome, nil
		}
	}

	w.finish(outcome, cumQty, cumQuote, true)
	w.logger.Warn("order not fully filled",
		"side", intent.Side,
		"filled", cumQty,
		"requested", intent.Qty,
		"attempts", outcome.Attempts,
	)
	return outcome, nil
}

func (w *Walker) auditSave(ctx context.Context, rec types.OrderRecord) {
	if w.audit == nil {
		return
	}
	if err := w.audit.SaveOrder(ctx, rec); err != nil {
		w.logger.Warn("order audit write failed", "order_id", rec.OrderID, "error", err)
	}
}

func (w *Walker) auditUpdate(ctx context.Context, rec types.OrderRecord) {
	if w.audit == nil {
		return
	}
	if err := w.audit.UpdateOrder(ctx, rec); err != nil {
		w.logger.Warn("order audit update failed", "order_id", rec.OrderID, "error", err)
	}
}

// awaitSlice polls the order until it reaches a final status or the slice
// expires, then cancels and refetches so late fills are captured.
func (w *Walker) awaitSlice(ctx context.Context, symbol, orderID string, d time.Duration) (types.OrderRecord, error) {
	deadline := time.NewTimer(d)
	defer deadline.Stop()
	ticker := time.NewTicker(w.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return w.cancelAndRefetch(symbol, orderID)
		case <-deadline.C:
			return w.cancelAndRefetch(symbol, orderID)
		case <-ticker.C:
			rec, err := w.exchange.GetOrder(ctx, symbol, orderID)
			if err != nil {
				if exchange.Retryable(err) {
					w.logger.Warn("order poll failed", "error", err)
					continue
				}
				return rec, fmt.Errorf("poll order: %w", err)
			}
			if rec.Status.IsFinal() {
				return rec, nil
			}
		}
	}
}

// cancelAndRefetch cancels a working order and returns its final record.
// A cancel that races a fill is not an error; the refetch reports what
// actually executed. Uses a fresh context so shutdown still cancels orders.
func (w *Walker) cancelAndRefetch(symbol, orderID string) (types.OrderRecord, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if _, err := w.exchange.CancelOrder(ctx, symbol, orderID); err != nil {
		if !errors.Is(err, exchange.ErrNotFound) && exchange.IsFatal(err) {
			return types.OrderRecord{}, fmt.Errorf("cancel order: %w", err)
		}
		w.logger.Debug("cancel raced order completion", "order_id", orderID, "error", err)
	}

	rec, err := w.exchange.GetOrder(ctx, symbol, orderID)
	if err != nil {
		return rec, fmt.Errorf("refetch after cancel: %w", err)
	}
	return rec, nil
}

func (w *Walker) finish(outcome *types.OrderOutcome, cumQty, cumQuote decimal.Decimal, timedOut bool) {
	outcome.FilledQty = cumQty
	outcome.CumQuote = cumQuote
	if cumQty.IsPositive() {
		outcome.AvgFillPrice = cumQuote.Div(cumQty)
	}
	outcome.TimedOut = timedOut
	outcome.CompletedAt = time.Now()
}
