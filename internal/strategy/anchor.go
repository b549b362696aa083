package strategy

import (
	"github.com/shopspring/decimal"
)

// computeAnchor returns the dip anchor reference price. Modes that depend
// on a prior sell fall back to the SMA when none exists yet.
func computeAnchor(mode AnchorMode, smaWeight, sma, lastSell decimal.Decimal) decimal.Decimal {
	switch mode {
	case AnchorSMAOnly:
		return sma
	case AnchorLastSellOnly:
		if lastSell.IsPositive() {
			return lastSell
		}
		return sma
	default: // AnchorBlend
		if !lastSell.IsPositive() {
			return sma
		}
		one := decimal.NewFromInt(1)
		return smaWeight.Mul(sma).Add(one.Sub(smaWeight).Mul(lastSell))
	}
}
