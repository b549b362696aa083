package risk

import (
	"github.com/shopspring/decimal"
	"github.com/stoilsteve-hub/MyAIBotSteve/internal/types"
)

// OrderSizer turns a quote-denominated trade value into an exchange-legal
// order quantity under the symbol's lot, tick, and notional filters.
type OrderSizer struct {
	filters          types.SymbolFilters
	minNotionalBuf   decimal.Decimal
	minTargetPortion decimal.Decimal
}

// NewOrderSizer creates a sizer for the given symbol filters. The buffer
// lifts the exchange minimum notional; sizes that round below the portion
// of the requested value are rejected rather than silently shrunk.
func NewOrderSizer(filters types.SymbolFilters, minNotionalBuffer decimal.Decimal) *OrderSizer {
	if minNotionalBuffer.LessThanOrEqual(decimal.Zero) {
		minNotionalBuffer = decimal.NewFromInt(1)
	}
	return &OrderSizer{
		filters:          filters,
		minNotionalBuf:   minNotionalBuffer,
		minTargetPortion: decimal.RequireFromString("0.95"),
	}
}

// SetFilters swaps in refreshed symbol filters.
func (s *OrderSizer) SetFilters(filters types.SymbolFilters) {
	s.filters = filters
}

// Filters returns the filters currently in use.
func (s *OrderSizer) Filters() types.SymbolFilters {
	return s.filters
}

// SizeResult contains the outcome of an order size calculation. Err holds
// a sentinel for rejections callers branch on; RejectReason is for logs.
type SizeResult struct {
	Valid        bool
	Qty          decimal.Decimal
	Price        decimal.Decimal
	Notional     decimal.Decimal
	RejectReason string
	Err          error
}

// Size computes the largest step-aligned quantity whose notional does not
// exceed tradeValueQuote at the given limit price, then validates it
// against the symbol filters.
func (s *OrderSizer) Size(tradeValueQuote, limitPrice decimal.Decimal) SizeResult {
	result := SizeResult{Price: limitPrice}

	if limitPrice.LessThanOrEqual(decimal.Zero) {
		result.RejectReason = "limit price must be positive"
		return result
	}
	if tradeValueQuote.LessThanOrEqual(decimal.Zero) {
		result.RejectReason = "trade value must be positive"
		return result
	}

	qty := FloorToStep(tradeValueQuote.Div(limitPrice), s.filters.StepSize)
	result.Qty = qty

	if qty.LessThanOrEqual(decimal.Zero) {
		result.RejectReason = "quantity rounds to zero at step size"
		return result
	}
	if s.filters.MinQty.IsPositive() && qty.LessThan(s.filters.MinQty) {
		result.RejectReason = "quantity below exchange minimum"
		return result
	}

	notional := qty.Mul(limitPrice)
	result.Notional = notional

	minNotional := s.filters.MinNotional.Mul(s.minNotionalBuf)
	if minNotional.IsPositive() && notional.LessThan(minNotional) {
		result.RejectReason = "notional below buffered exchange minimum"
		result.Err = types.ErrBelowMinNotional
		return result
	}
	if notional.LessThan(tradeValueQuote.Mul(s.minTargetPortion)) {
		result.RejectReason = "rounded notional below 95% of requested value"
		result.Err = types.ErrBelowMinNotional
		return result
	}

	result.Valid = true
	return result
}

// ValidateQty checks an externally chosen quantity against the filters at
// the given price. Used for sells of an existing position where the size
// is dictated by holdings, not by trade value.
func (s *OrderSizer) ValidateQty(qty, limitPrice decimal.Decimal) SizeResult {
	result := SizeResult{Price: limitPrice}

	aligned := FloorToStep(qty, s.filters.StepSize)
	result.Qty = aligned

	if aligned.LessThanOrEqual(decimal.Zero) {
		result.RejectReason = "quantity rounds to zero at step size"
		return result
	}
	if s.filters.MinQty.IsPositive() && aligned.LessThan(s.filters.MinQty) {
		result.RejectReason = "quantity below exchange minimum"
		return result
	}

	notional := aligned.Mul(limitPrice)
	result.Notional = notional

	minNotional := s.filters.MinNotional.Mul(s.minNotionalBuf)
	if minNotional.IsPositive() && notional.LessThan(minNotional) {
		result.RejectReason = "notional below buffered exchange minimum"
		result.Err = types.ErrBelowMinNotional
		return result
	}

	result.Valid = true
	return result
}

// IsDust reports whether qty is too small to ever sell legally at the
// given reference price.
func (s *OrderSizer) IsDust(qty, refPrice decimal.Decimal) bool {
	aligned := FloorToStep(qty, s.filters.StepSize)
	if aligned.LessThanOrEqual(decimal.Zero) {
		return true
	}
	if s.filters.MinQty.IsPositive() && aligned.LessThan(s.filters.MinQty) {
		return true
	}
	minNotional := s.filters.MinNotional.Mul(s.minNotionalBuf)
	return minNotional.IsPositive() && aligned.Mul(refPrice).LessThan(minNotional)
}

// FloorToStep rounds qty down to a multiple of step. A zero step leaves
// the quantity untouched.
func FloorToStep(qty, step decimal.Decimal) decimal.Decimal {
	if step.LessThanOrEqual(decimal.Zero) {
		return qty
	}
	return qty.Div(step).Floor().Mul(step)
}

// RoundPriceForSide aligns a limit price to the tick grid. Buys round up
// and sells round down so the rounded order stays at least as aggressive
// as the requested price.
func RoundPriceForSide(price, tick decimal.Decimal, side types.Side) decimal.Decimal {
	if tick.LessThanOrEqual(decimal.Zero) {
		return price
	}
	steps := price.Div(tick)
	if side == types.SideBuy {
		return steps.Ceil().Mul(tick)
	}
	return steps.Floor().Mul(tick)
}

// ClampToPercentBand limits a price to the exchange percent-price band
// around the reference price. Zero multipliers disable the clamp on that
// side.
func ClampToPercentBand(price, refPrice, multiplierUp, multiplierDown decimal.Decimal) decimal.Decimal {
	if multiplierUp.IsPositive() {
		if hi := refPrice.Mul(multiplierUp); price.GreaterThan(hi) {
			price = hi
		}
	}
	if multiplierDown.IsPositive() {
		if lo := refPrice.Mul(multiplierDown); price.LessThan(lo) {
			price = lo
		}
	}
	return price
}
