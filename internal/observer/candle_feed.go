package observer

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/stoilsteve-hub/MyAIBotSteve/internal/exchange"
	"github.com/stoilsteve-hub/MyAIBotSteve/internal/types"
)

// CandleFeed polls klines and emits one sample per newly closed candle.
// Forming candles are never emitted, so the SMA window only ever contains
// settled closes.
type CandleFeed struct {
	exchange     exchange.Exchange
	interval     string
	poll         time.Duration
	maxStaleness time.Duration
	onError      ErrorHandler
	logger       *slog.Logger

	lastCloseTime time.Time
}

// NewCandleFeed creates a closed-candle feed. interval is the exchange
// kline interval string (e.g. "1m"); poll is how often to refetch.
func NewCandleFeed(exch exchange.Exchange, interval string, poll, maxStaleness time.Duration, onError ErrorHandler, logger *slog.Logger) *CandleFeed {
	if logger == nil {
		logger = slog.Default()
	}
	if poll <= 0 {
		poll = 10 * time.Second
	}
	return &CandleFeed{
		exchange:     exch,
		interval:     interval,
		poll:         poll,
		maxStaleness: maxStaleness,
		onError:      onError,
		logger:       logger,
	}
}

// Subscribe starts the poll loop.
func (f *CandleFeed) Subscribe(ctx context.Context, symbol string) (<-chan types.Sample, error) {
	ch := make(chan types.Sample, 16)

	go func() {
		defer close(ch)
		ticker := time.NewTicker(f.poll)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				for _, sample := range f.fetch(ctx, symbol) {
					select {
					case ch <- sample:
					case <-ctx.Done():
						return
					}
				}
			}
		}
	}()

	return ch, nil
}

// fetch pulls recent candles and converts the newly closed ones.
func (f *CandleFeed) fetch(ctx context.Context, symbol string) []types.Sample {
	candles, err := f.exchange.Klines(ctx, symbol, f.interval, 10)
	if err != nil {
		f.logger.Warn("kline fetch failed", "error", err)
		if f.onError != nil {
			f.onError(err)
		}
		return nil
	}

	now := time.Now()
	var out []types.Sample
	var newestClosed time.Time

	for _, c := range candles {
		if !c.Closed(now) {
			continue
		}
		if c.CloseTime.After(newestClosed) {
			newestClosed = c.CloseTime
		}
		if !c.CloseTime.After(f.lastCloseTime) {
			continue
		}
		f.lastCloseTime = c.CloseTime
		out = append(out, types.Sample{
			Timestamp: c.CloseTime,
			Bid:       c.Close,
			Ask:       c.Close,
			Mid:       c.Close,
		})
	}

	// Staleness guard: a feed whose newest closed candle is far in the past
	// is serving cached or broken data; trading on it would be blind.
	if f.maxStaleness > 0 && !newestClosed.IsZero() && now.Sub(newestClosed) > f.maxStaleness {
		err := fmt.Errorf("%w: newest close %s", types.ErrStaleData, newestClosed.Format(time.RFC3339))
		f.logger.Warn("candle data stale", "error", err)
		if f.onError != nil {
			f.onError(err)
		}
		return nil
	}

	return out
}

// Close is a no-op; the exchange client owns the connection.
func (f *CandleFeed) Close() error {
	return nil
}

// Name returns the feed identifier.
func (f *CandleFeed) Name() string {
	return "candle"
}
