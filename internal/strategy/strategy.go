// Package strategy implements the trend/dip-anchor signal engine.
//
// The engine maintains a bounded window of mid-price samples, computes the
// SMA over it, and per tick produces a TrendSignal: whether buying is
// permitted and at what target price. It never mutates position state; that
// belongs to the engine package.
package strategy

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stoilsteve-hub/MyAIBotSteve/internal/types"
	"github.com/stoilsteve-hub/MyAIBotSteve/pkg/indicator"
)

// TrendMode selects how the trend gate permits buying.
type TrendMode int

const (
	// TrendStrict permits buying only when price is above the SMA by the
	// configured spread.
	TrendStrict TrendMode = iota
	// TrendReversal additionally permits buying on a confirmed reversal.
	TrendReversal
)

// ReversalMode selects how a reversal is confirmed.
type ReversalMode int

const (
	// ReversalCrossUp confirms when the previous sample sat at or below the
	// previous SMA and the current price clears the required level.
	ReversalCrossUp ReversalMode = iota
	// ReversalBounce confirms when the last N mids form a strictly
	// increasing sequence while still at or below the required level.
	ReversalBounce
)

// AnchorMode selects the dip anchor reference price.
type AnchorMode int

const (
	AnchorBlend AnchorMode = iota
	AnchorSMAOnly
	AnchorLastSellOnly
)

// ParseTrendMode maps a config string to a TrendMode.
func ParseTrendMode(s string) (TrendMode, error) {
	switch strings.ToUpper(s) {
	case "STRICT":
		return TrendStrict, nil
	case "REVERSAL":
		return TrendReversal, nil
	}
	return TrendStrict, fmt.Errorf("%w: trend mode %q", types.ErrInvalidConfig, s)
}

// ParseReversalMode maps a config string to a ReversalMode.
func ParseReversalMode(s string) (ReversalMode, error) {
	switch strings.ToUpper(s) {
	case "CROSSUP":
		return ReversalCrossUp, nil
	case "BOUNCE3":
		return ReversalBounce, nil
	}
	return ReversalCrossUp, fmt.Errorf("%w: reversal mode %q", types.ErrInvalidConfig, s)
}

// ParseAnchorMode maps a config string to an AnchorMode.
func ParseAnchorMode(s string) (AnchorMode, error) {
	switch strings.ToUpper(s) {
	case "BLEND":
		return AnchorBlend, nil
	case "SMA_ONLY":
		return AnchorSMAOnly, nil
	case "LAST_SELL_ONLY":
		return AnchorLastSellOnly, nil
	}
	return AnchorBlend, fmt.Errorf("%w: anchor mode %q", types.ErrInvalidConfig, s)
}

// Config holds signal engine settings, already parsed into variants.
type Config struct {
	WindowSamples     int
	MinSamples        int
	Mode              TrendMode
	ReversalMode      ReversalMode
	ReversalSamples   int
	MinTrendSpreadPct decimal.Decimal
	BlockCooldown     time.Duration

	AnchorMode     AnchorMode
	BlendSMAWeight decimal.Decimal
	BuyDropPct     decimal.Decimal
	MaxUnderSMAPct decimal.Decimal
}

// Engine is the trend/dip-anchor signal engine.
type Engine struct {
	cfg Config

	sma    *indicator.SMA
	recent []decimal.Decimal // last ReversalSamples mids, oldest first

	prevMid decimal.Decimal
	prevSMA decimal.Decimal
	hasPrev bool

	lastSellPrice decimal.Decimal
	blockedUntil  time.Time
}

// NewEngine creates a signal engine.
func NewEngine(cfg Config) *Engine {
	if cfg.ReversalSamples < 2 {
		cfg.ReversalSamples = 2
	}
	return &Engine{
		cfg: cfg,
		sma: indicator.NewSMA(cfg.WindowSamples),
	}
}

// SetLastSellPrice records the most recent sell price for anchor blending.
func (e *Engine) SetLastSellPrice(p decimal.Decimal) {
	e.lastSellPrice = p
}

// LastSellPrice returns the recorded last sell price.
func (e *Engine) LastSellPrice() decimal.Decimal {
	return e.lastSellPrice
}

// Update folds one sample into the window and evaluates the signal. Time
// comparisons use the sample's timestamp so replays behave like live runs.
func (e *Engine) Update(sample types.Sample) types.TrendSignal {
	prevMid, prevSMA, hasPrev := e.prevMid, e.prevSMA, e.hasPrev

	price := sample.Mid
	smaVal := e.sma.Update(price)

	e.recent = append(e.recent, price)
	if len(e.recent) > e.cfg.ReversalSamples {
		e.recent = e.recent[1:]
	}
	e.prevMid = price
	e.prevSMA = smaVal
	e.hasPrev = true

	sig := types.TrendSignal{
		Timestamp: sample.Timestamp,
		SMA:       smaVal,
	}

	if e.sma.Count() < e.cfg.MinSamples {
		sig.Reason = fmt.Sprintf("warmup %d/%d", e.sma.Count(), e.cfg.MinSamples)
		return sig
	}

	sig.Anchor = computeAnchor(e.cfg.AnchorMode, e.cfg.BlendSMAWeight, smaVal, e.lastSellPrice)
	sig.BuyTarget = sig.Anchor.Mul(decimal.NewFromInt(1).Sub(e.cfg.BuyDropPct))

	// Falling-knife guard: block buys when price sits too far under SMA.
	if under := smaVal.Sub(price).Div(smaVal); under.GreaterThan(e.cfg.MaxUnderSMAPct) {
		sig.Reason = fmt.Sprintf("falling_knife under_sma=%s", under.Round(5))
		return sig
	}

	if !e.blockedUntil.IsZero() && sample.Timestamp.Before(e.blockedUntil) {
		sig.Reason = "trend_block_cooldown"
		return sig
	}

	verdict := evaluateTrend(trendInput{
		mode:         e.cfg.Mode,
		reversalMode: e.cfg.ReversalMode,
		minSpreadPct: e.cfg.MinTrendSpreadPct,
		price:        price,
		sma:          smaVal,
		prevMid:      prevMid,
		prevSMA:      prevSMA,
		hasPrev:      hasPrev,
		recent:       e.recent,
		wantSamples:  e.cfg.ReversalSamples,
	})

	if !verdict.ok {
		if e.cfg.BlockCooldown > 0 {
			e.blockedUntil = sample.Timestamp.Add(e.cfg.BlockCooldown)
		}
		sig.Reason = verdict.reason
		return sig
	}

	sig.PermitBuy = true
	sig.Reason = verdict.reason
	return sig
}

// SampleCount returns the number of samples currently in the window.
func (e *Engine) SampleCount() int {
	return e.sma.Count()
}

// WindowMids returns a copy of the window contents for persistence.
func (e *Engine) WindowMids() []decimal.Decimal {
	return e.sma.Values()
}

// Restore reloads the window and last sell price from persisted state.
func (e *Engine) Restore(mids []decimal.Decimal, lastSell decimal.Decimal) {
	e.Reset()
	for _, m := range mids {
		e.sma.Update(m)
		e.recent = append(e.recent, m)
		if len(e.recent) > e.cfg.ReversalSamples {
			e.recent = e.recent[1:]
		}
		e.prevMid = m
		e.prevSMA = e.sma.Current()
		e.hasPrev = true
	}
	e.lastSellPrice = lastSell
}

// Reset clears all engine state.
func (e *Engine) Reset() {
	e.sma.Reset()
	e.recent = nil
	e.prevMid = decimal.Zero
	e.prevSMA = decimal.Zero
	e.hasPrev = false
	e.blockedUntil = time.Time{}
}
