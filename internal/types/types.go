// Package types defines shared types used across the trading controller.
package types

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Side represents the direction of an order.
type Side int

const (
	SideBuy Side = iota
	SideSell
)

func (s Side) String() string {
	if s == SideSell {
		return "SELL"
	}
	return "BUY"
}

// Opposite returns the opposite side.
func (s Side) Opposite() Side {
	if s == SideBuy {
		return SideSell
	}
	return SideBuy
}

// PositionStatus represents the state of the position state machine.
type PositionStatus int

const (
	PositionFlat PositionStatus = iota
	PositionHolding
	PositionOrderPending
)

func (p PositionStatus) String() string {
	switch p {
	case PositionHolding:
		return "HOLDING"
	case PositionOrderPending:
		return "ORDER_PENDING"
	default:
		return "FLAT"
	}
}

// ParsePositionStatus maps a persisted status string to a PositionStatus.
func ParsePositionStatus(s string) (PositionStatus, error) {
	switch s {
	case "FLAT", "":
		return PositionFlat, nil
	case "HOLDING":
		return PositionHolding, nil
	case "ORDER_PENDING":
		return PositionOrderPending, nil
	}
	return PositionFlat, fmt.Errorf("unknown position status %q", s)
}

// OrderStatus represents the exchange-reported state of an order.
type OrderStatus int

const (
	OrderStatusNew OrderStatus = iota
	OrderStatusPartiallyFilled
	OrderStatusFilled
	OrderStatusCanceled
	OrderStatusExpired
	OrderStatusRejected
)

func (s OrderStatus) String() string {
	switch s {
	case OrderStatusNew:
		return "NEW"
	case OrderStatusPartiallyFilled:
		return "PARTIALLY_FILLED"
	case OrderStatusFilled:
		return "FILLED"
	case OrderStatusCanceled:
		return "CANCELED"
	case OrderStatusExpired:
		return "EXPIRED"
	case OrderStatusRejected:
		return "REJECTED"
	default:
		return "UNKNOWN"
	}
}

// IsFinal returns true if the order is in a terminal state.
func (s OrderStatus) IsFinal() bool {
	switch s {
	case OrderStatusFilled, OrderStatusCanceled, OrderStatusExpired, OrderStatusRejected:
		return true
	default:
		return false
	}
}

// ParseOrderStatus maps an exchange status string to an OrderStatus.
func ParseOrderStatus(s string) OrderStatus {
	switch s {
	case "NEW":
		return OrderStatusNew
	case "PARTIALLY_FILLED":
		return OrderStatusPartiallyFilled
	case "FILLED":
		return OrderStatusFilled
	case "CANCELED":
		return OrderStatusCanceled
	case "EXPIRED":
		return OrderStatusExpired
	case "REJECTED":
		return OrderStatusRejected
	default:
		return OrderStatusNew
	}
}

// Sample is one bid/ask observation taken per loop tick.
type Sample struct {
	Timestamp time.Time
	Bid       decimal.Decimal
	Ask       decimal.Decimal
	Mid       decimal.Decimal
}

// SpreadRatio returns (ask-bid)/bid, or zero when bid is zero.
func (s Sample) SpreadRatio() decimal.Decimal {
	if s.Bid.IsZero() {
		return decimal.Zero
	}
	return s.Ask.Sub(s.Bid).Div(s.Bid)
}

// Candle is one kline from the exchange.
type Candle struct {
	OpenTime  time.Time
	CloseTime time.Time
	Open      decimal.Decimal
	High      decimal.Decimal
	Low       decimal.Decimal
	Close     decimal.Decimal
	Volume    decimal.Decimal
}

// Closed reports whether the candle has fully closed as of now.
func (c Candle) Closed(now time.Time) bool {
	return c.CloseTime.Before(now.Add(-time.Second))
}

// TrendSignal is the signal engine's verdict for one tick.
type TrendSignal struct {
	Timestamp time.Time
	PermitBuy bool
	SMA       decimal.Decimal
	Anchor    decimal.Decimal
	BuyTarget decimal.Decimal
	Reason    string
}

// OrderIntent is a validated request handed to the execution engine.
// RefPrice is the mid the decision was made at; executors use it to bound
// slippage between decision and placement.
type OrderIntent struct {
	ClientOrderID string
	Timestamp     time.Time
	Symbol        string
	Side          Side
	Qty           decimal.Decimal
	LimitPrice    decimal.Decimal
	RefPrice      decimal.Decimal
	Reason        string
}

// OrderRecord mirrors the exchange view of one order.
type OrderRecord struct {
	OrderID        string
	ClientOrderID  string
	Symbol         string
	Side           Side
	RequestedQty   decimal.Decimal
	RequestedPrice decimal.Decimal
	FilledQty      decimal.Decimal
	AvgFillPrice   decimal.Decimal
	CumQuote       decimal.Decimal
	Status         OrderStatus
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// OrderOutcome is the execution engine's reconciled result of one intent.
// FilledQty/AvgFillPrice/CumQuote aggregate across all requotes of a walk.
type OrderOutcome struct {
	Intent       OrderIntent
	FilledQty    decimal.Decimal
	AvgFillPrice decimal.Decimal
	CumQuote     decimal.Decimal
	TimedOut     bool // clean no-fill timeout, not an error
	Attempts     int
	LastOrderID  string
	CompletedAt  time.Time
}

// Filled reports whether any quantity filled at all.
func (o OrderOutcome) Filled() bool {
	return o.FilledQty.IsPositive()
}

// Meaningful reports whether the outcome's notional reaches the
// configured minimum required to flip position status.
func (o OrderOutcome) Meaningful(minFillQuote decimal.Decimal) bool {
	return o.FilledQty.IsPositive() && o.CumQuote.GreaterThanOrEqual(minFillQuote)
}

// PositionState is the single authoritative holding state.
type PositionState struct {
	Status         PositionStatus
	EntryPrice     decimal.Decimal
	HeldQty        decimal.Decimal
	PendingOrderID string
}

// ApplyFill folds one fill into the position's incremental VWAP.
func (p *PositionState) ApplyFill(qty, price decimal.Decimal) {
	if !qty.IsPositive() {
		return
	}
	oldCost := p.EntryPrice.Mul(p.HeldQty)
	newCost := price.Mul(qty)
	total := p.HeldQty.Add(qty)
	p.EntryPrice = oldCost.Add(newCost).Div(total)
	p.HeldQty = total
}

// SymbolFilters holds the exchange trading rules for one symbol.
type SymbolFilters struct {
	Symbol         string
	TickSize       decimal.Decimal
	StepSize       decimal.Decimal
	MinQty         decimal.Decimal
	MinNotional    decimal.Decimal
	MultiplierUp   decimal.Decimal
	MultiplierDown decimal.Decimal
	FetchedAt      time.Time
}

// Trade is one completed round-trip, recorded for audit.
type Trade struct {
	ID         string
	Symbol     string
	Side       Side
	Qty        decimal.Decimal
	EntryPrice decimal.Decimal
	ExitPrice  decimal.Decimal
	EntryTime  time.Time
	ExitTime   time.Time
	PnLQuote   decimal.Decimal
	Reason     string
}
