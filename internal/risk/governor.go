// Package risk implements the Risk Governor: daily counters, the rolling
// error budget, and the pre-trade gate.
package risk

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stoilsteve-hub/MyAIBotSteve/internal/types"
)

// Config holds the Risk Governor configuration.
type Config struct {
	MaxDailyLossQuote decimal.Decimal
	MaxTradesPerDay   int
	ErrorLimit        int
	ErrorWindow       time.Duration
	Cooldown          time.Duration
	Location          *time.Location
}

// DefaultConfig returns a conservative default configuration.
func DefaultConfig() Config {
	return Config{
		MaxDailyLossQuote: decimal.RequireFromString("25"),
		MaxTradesPerDay:   12,
		ErrorLimit:        8,
		ErrorWindow:       10 * time.Minute,
		Cooldown:          90 * time.Second,
		Location:          time.UTC,
	}
}

// Counters is the persisted daily state of the governor.
type Counters struct {
	DayKey          string
	TradeCount      int
	RealizedPnL     decimal.Decimal
	ErrorTimestamps []time.Time
	LastTradeAt     time.Time
}

// Governor enforces the daily kill-switch conditions. A breach of loss,
// trade-count, or error limits halts new trading until the local calendar
// day rolls over; the process keeps running. Thread-safe.
type Governor struct {
	mu sync.RWMutex

	cfg    Config
	logger *slog.Logger

	dayKey      string
	tradeCount  int
	realizedPnL decimal.Decimal
	errorTimes  []time.Time
	lastTradeAt time.Time

	haltedReason string
	haltedAt     time.Time
}

// NewGovernor creates a Risk Governor.
func NewGovernor(cfg Config, logger *slog.Logger) *Governor {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	return &Governor{
		cfg:    cfg,
		logger: logger,
	}
}

// dayKeyFor formats the local calendar date used for daily resets.
func (g *Governor) dayKeyFor(now time.Time) string {
	return now.In(g.cfg.Location).Format("2006-01-02")
}

// Gate reports whether a new order may be placed at the given time.
// Returns nil when allowed; a sentinel-wrapped error naming the blocking
// condition otherwise. The loss boundary is inclusive: pnl == -limit blocks.
func (g *Governor) Gate(now time.Time) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.maybeRolloverLocked(now)
	g.pruneErrorsLocked(now)

	if g.haltedReason != "" {
		return fmt.Errorf("%w: %s", types.ErrTradingHalted, g.haltedReason)
	}

	if g.realizedPnL.LessThanOrEqual(g.cfg.MaxDailyLossQuote.Neg()) {
		g.haltLocked(fmt.Sprintf("daily loss %s at limit %s", g.realizedPnL, g.cfg.MaxDailyLossQuote))
		return fmt.Errorf("%w: pnl %s", types.ErrDailyLossExceeded, g.realizedPnL)
	}

	if g.tradeCount >= g.cfg.MaxTradesPerDay {
		g.haltLocked(fmt.Sprintf("trade count %d at limit %d", g.tradeCount, g.cfg.MaxTradesPerDay))
		return fmt.Errorf("%w: %d trades", types.ErrTradeCapReached, g.tradeCount)
	}

	if len(g.errorTimes) >= g.cfg.ErrorLimit {
		g.haltLocked(fmt.Sprintf("%d errors within %s", len(g.errorTimes), g.cfg.ErrorWindow))
		return fmt.Errorf("%w: %d errors", types.ErrErrorBudgetSpent, len(g.errorTimes))
	}

	// Cooldown clears on its own; it never latches a daily halt.
	if g.cfg.Cooldown > 0 && !g.lastTradeAt.IsZero() {
		if since := now.Sub(g.lastTradeAt); since < g.cfg.Cooldown {
			return fmt.Errorf("%w: %s remaining", types.ErrCooldownActive, (g.cfg.Cooldown - since).Round(time.Second))
		}
	}

	return nil
}

// RecordTrade records a completed round-trip and its realized PnL.
func (g *Governor) RecordTrade(now time.Time, pnlQuote decimal.Decimal) {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.maybeRolloverLocked(now)
	g.tradeCount++
	g.realizedPnL = g.realizedPnL.Add(pnlQuote)
	g.lastTradeAt = now

	g.logger.Info("trade recorded",
		"trade_count", g.tradeCount,
		"pnl", pnlQuote,
		"daily_pnl", g.realizedPnL,
	)
}

// RecordEntry counts a filled buy toward the daily trade cap and arms the
// cooldown. An entry carries no realized PnL; that lands when the round
// trip closes.
func (g *Governor) RecordEntry(now time.Time) {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.maybeRolloverLocked(now)
	g.tradeCount++
	g.lastTradeAt = now

	g.logger.Info("entry recorded",
		"trade_count", g.tradeCount,
		"limit", g.cfg.MaxTradesPerDay,
	)
}

// ArmCooldown restarts the post-trade cooldown without consuming the trade
// cap. Funding sells arm it so the bot does not churn the reserve.
func (g *Governor) ArmCooldown(now time.Time) {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.maybeRolloverLocked(now)
	g.lastTradeAt = now
}

// RecordError adds one transient API error to the rolling window and
// returns the current count. Fatal errors terminate the process and never
// reach the counter.
func (g *Governor) RecordError(now time.Time) int {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.maybeRolloverLocked(now)
	g.errorTimes = append(g.errorTimes, now)
	g.pruneErrorsLocked(now)

	g.logger.Warn("api error recorded",
		"errors_in_window", len(g.errorTimes),
		"limit", g.cfg.ErrorLimit,
	)
	return len(g.errorTimes)
}

// Halted reports whether trading is halted for the rest of the day.
func (g *Governor) Halted() (bool, string) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.haltedReason != "", g.haltedReason
}

// Snapshot returns the persisted counters.
func (g *Governor) Snapshot() Counters {
	g.mu.RLock()
	defer g.mu.RUnlock()

	ts := make([]time.Time, len(g.errorTimes))
	copy(ts, g.errorTimes)
	return Counters{
		DayKey:          g.dayKey,
		TradeCount:      g.tradeCount,
		RealizedPnL:     g.realizedPnL,
		ErrorTimestamps: ts,
		LastTradeAt:     g.lastTradeAt,
	}
}

// Restore reloads persisted counters. A stale day key is kept as-is so the
// first Gate call after a restart performs the rollover exactly once.
func (g *Governor) Restore(c Counters) {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.dayKey = c.DayKey
	g.tradeCount = c.TradeCount
	g.realizedPnL = c.RealizedPnL
	g.errorTimes = append([]time.Time(nil), c.ErrorTimestamps...)
	g.lastTradeAt = c.LastTradeAt
	g.haltedReason = ""
}

// DailyPnL returns the realized PnL accumulated today.
func (g *Governor) DailyPnL() decimal.Decimal {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.realizedPnL
}

// TradeCount returns the number of trades completed today.
func (g *Governor) TradeCount() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.tradeCount
}

// DayKey returns the local calendar date key for the given time.
func (g *Governor) DayKey(now time.Time) string {
	return g.dayKeyFor(now)
}

// Location returns the timezone used for daily resets.
func (g *Governor) Location() *time.Location {
	return g.cfg.Location
}

// Rollover applies the daily reset if the calendar day has changed.
// Callers that need the old day's counters must snapshot them first.
func (g *Governor) Rollover(now time.Time) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.maybeRolloverLocked(now)
}

// ErrorCount returns the number of errors currently inside the window.
func (g *Governor) ErrorCount(now time.Time) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.pruneErrorsLocked(now)
	return len(g.errorTimes)
}

func (g *Governor) maybeRolloverLocked(now time.Time) {
	key := g.dayKeyFor(now)
	if key == g.dayKey {
		return
	}
	if g.dayKey != "" {
		g.logger.Info("daily counters reset",
			"old_day", g.dayKey,
			"new_day", key,
			"trades", g.tradeCount,
			"pnl", g.realizedPnL,
		)
	}
	g.dayKey = key
	g.tradeCount = 0
	g.realizedPnL = decimal.Zero
	g.errorTimes = nil
	g.haltedReason = ""
	g.haltedAt = time.Time{}
}

func (g *Governor) pruneErrorsLocked(now time.Time) {
	cutoff := now.Add(-g.cfg.ErrorWindow)
	i := 0
	for ; i < len(g.errorTimes); i++ {
		if g.errorTimes[i].After(cutoff) {
			break
		}
	}
	g.errorTimes = g.errorTimes[i:]
}

func (g *Governor) haltLocked(reason string) {
	if g.haltedReason != "" {
		return
	}
	g.haltedReason = reason
	g.haltedAt = time.Now()

	g.logger.Error("KILL SWITCH ACTIVATED - no new orders until day rollover",
		"reason", reason,
	)
}
