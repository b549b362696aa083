// Package observer provides market data feeds for the trading loop.
package observer

import (
	"context"
	"log/slog"
	"time"

	"github.com/stoilsteve-hub/MyAIBotSteve/internal/exchange"
	"github.com/stoilsteve-hub/MyAIBotSteve/internal/types"
)

// Feed delivers price samples to the trading loop. Implementations are
// live polls or replays; the loop treats them identically.
type Feed interface {
	// Subscribe starts delivering samples for a symbol. The channel closes
	// when the context is cancelled or the feed is exhausted.
	Subscribe(ctx context.Context, symbol string) (<-chan types.Sample, error)

	// Close shuts down the feed and releases resources.
	Close() error

	// Name returns the feed identifier (e.g. "ticker", "candle", "replay").
	Name() string
}

// ErrorHandler receives feed-level fetch errors so the caller can count
// them toward its error budget. Feeds keep running after transient errors.
type ErrorHandler func(error)

// TickerFeed polls the exchange book ticker on a fixed interval.
type TickerFeed struct {
	exchange exchange.Exchange
	interval time.Duration
	onError  ErrorHandler
	logger   *slog.Logger
}

// NewTickerFeed creates a live bid/ask polling feed.
func NewTickerFeed(exch exchange.Exchange, interval time.Duration, onError ErrorHandler, logger *slog.Logger) *TickerFeed {
	if logger == nil {
		logger = slog.Default()
	}
	if interval <= 0 {
		interval = 5 * time.Second
	}
	return &TickerFeed{
		exchange: exch,
		interval: interval,
		onError:  onError,
		logger:   logger,
	}
}

// Subscribe starts the poll loop.
func (f *TickerFeed) Subscribe(ctx context.Context, symbol string) (<-chan types.Sample, error) {
	ch := make(chan types.Sample, 1)

	go func() {
		defer close(ch)
		ticker := time.NewTicker(f.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				sample, err := f.exchange.BookTicker(ctx, symbol)
				if err != nil {
					f.logger.Warn("ticker fetch failed", "error", err)
					if f.onError != nil {
						f.onError(err)
					}
					continue
				}
				select {
				case ch <- sample:
				case <-ctx.Done():
					return
				default:
					// Loop is still working the previous tick; drop rather
					// than queue stale prices behind it.
				}
			}
		}
	}()

	return ch, nil
}

// Close is a no-op; the exchange client owns the connection.
func (f *TickerFeed) Close() error {
	return nil
}

// Name returns the feed identifier.
func (f *TickerFeed) Name() string {
	return "ticker"
}
