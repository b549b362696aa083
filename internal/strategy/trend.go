package strategy

import (
	"github.com/shopspring/decimal"
)

type trendInput struct {
	mode         TrendMode
	reversalMode ReversalMode
	minSpreadPct decimal.Decimal
	price        decimal.Decimal
	sma          decimal.Decimal
	prevMid      decimal.Decimal
	prevSMA      decimal.Decimal
	hasPrev      bool
	recent       []decimal.Decimal
	wantSamples  int
}

type trendVerdict struct {
	ok     bool
	reason string
}

// evaluateTrend runs the configured trend gate. The required level is the
// SMA lifted by the minimum spread; strict mode demands price above it,
// reversal mode additionally accepts a confirmed reversal pattern.
func evaluateTrend(in trendInput) trendVerdict {
	required := in.sma.Mul(decimal.NewFromInt(1).Add(in.minSpreadPct))

	if in.price.GreaterThan(required) {
		return trendVerdict{ok: true, reason: "trend_up"}
	}

	if in.mode == TrendStrict {
		return trendVerdict{reason: "below_trend"}
	}

	switch in.reversalMode {
	case ReversalBounce:
		if bounceConfirmed(in.recent, in.wantSamples) && in.price.LessThanOrEqual(required) {
			return trendVerdict{ok: true, reason: "reversal_bounce"}
		}
	default: // ReversalCrossUp
		// The strict branch above already rejected price > required, so a
		// cross-up can only fire when the current price exactly reaches the
		// required level after sitting below the SMA.
		if in.hasPrev && in.prevMid.LessThanOrEqual(in.prevSMA) && in.price.GreaterThanOrEqual(required) {
			return trendVerdict{ok: true, reason: "reversal_crossup"}
		}
	}

	return trendVerdict{reason: "no_reversal"}
}

// bounceConfirmed reports whether the last want samples form a strictly
// increasing sequence.
func bounceConfirmed(recent []decimal.Decimal, want int) bool {
	if want < 2 || len(recent) < want {
		return false
	}
	tail := recent[len(recent)-want:]
	for i := 1; i < len(tail); i++ {
		if !tail[i].GreaterThan(tail[i-1]) {
			return false
		}
	}
	return true
}
