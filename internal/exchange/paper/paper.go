// Package paper provides a simulated exchange for dry runs and replays.
package paper

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stoilsteve-hub/MyAIBotSteve/internal/exchange"
	"github.com/stoilsteve-hub/MyAIBotSteve/internal/types"
)

// Config holds paper exchange configuration.
type Config struct {
	// FillRatio controls how much of each placed order fills immediately:
	// 1 fills fully, 0 leaves the order resting, values between fill
	// partially. Fills happen at the limit price.
	FillRatio decimal.Decimal

	Filters types.SymbolFilters
}

// DefaultConfig returns a paper exchange that fills every order in full.
func DefaultConfig() Config {
	return Config{
		FillRatio: decimal.NewFromInt(1),
		Filters: types.SymbolFilters{
			TickSize:    decimal.RequireFromString("0.01"),
			StepSize:    decimal.RequireFromString("0.0001"),
			MinQty:      decimal.RequireFromString("0.0001"),
			MinNotional: decimal.RequireFromString("5"),
		},
	}
}

// Exchange implements exchange.Exchange with synthesized fills. It exercises
// the identical execution and state-machine code paths as the live client.
type Exchange struct {
	cfg    Config
	logger *slog.Logger

	mu       sync.RWMutex
	market   types.Sample
	candles  []types.Candle
	balances map[string]decimal.Decimal
	orders   map[string]*types.OrderRecord

	nextOrderID atomic.Int64
}

// New creates a paper exchange.
func New(cfg Config, logger *slog.Logger) *Exchange {
	if logger == nil {
		logger = slog.Default()
	}
	e := &Exchange{
		cfg:      cfg,
		logger:   logger,
		balances: make(map[string]decimal.Decimal),
		orders:   make(map[string]*types.OrderRecord),
	}
	e.nextOrderID.Store(1)
	return e
}

// SetMarket sets the current bid/ask used for tickers and fills.
func (e *Exchange) SetMarket(s types.Sample) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if s.Mid.IsZero() && !s.Bid.IsZero() {
		s.Mid = s.Bid.Add(s.Ask).Div(decimal.NewFromInt(2))
	}
	e.market = s
}

// SetCandles sets the candles returned by Klines.
func (e *Exchange) SetCandles(candles []types.Candle) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.candles = candles
}

// SetBalance seeds an asset balance.
func (e *Exchange) SetBalance(asset string, free decimal.Decimal) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.balances[asset] = free
}

// SetFillRatio changes fill behavior for subsequently placed orders.
func (e *Exchange) SetFillRatio(r decimal.Decimal) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.cfg.FillRatio = r
}

// BookTicker returns the configured market sample.
func (e *Exchange) BookTicker(ctx context.Context, symbol string) (types.Sample, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	s := e.market
	if s.Timestamp.IsZero() {
		s.Timestamp = time.Now()
	}
	return s, nil
}

// Klines returns the configured candles.
func (e *Exchange) Klines(ctx context.Context, symbol, interval string, limit int) ([]types.Candle, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if limit > 0 && len(e.candles) > limit {
		return append([]types.Candle(nil), e.candles[len(e.candles)-limit:]...), nil
	}
	return append([]types.Candle(nil), e.candles...), nil
}

// SymbolFilters returns the configured trading rules.
func (e *Exchange) SymbolFilters(ctx context.Context, symbol string) (types.SymbolFilters, error) {
	f := e.cfg.Filters
	f.Symbol = symbol
	f.FetchedAt = time.Now()
	return f, nil
}

// Balance returns the free balance of one asset.
func (e *Exchange) Balance(ctx context.Context, asset string) (decimal.Decimal, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.balances[asset], nil
}

// CanTrade always succeeds on paper.
func (e *Exchange) CanTrade(ctx context.Context) (bool, error) {
	return true, nil
}

// PlaceLimitOrder synthesizes a fill at the limit price per FillRatio.
func (e *Exchange) PlaceLimitOrder(ctx context.Context, intent types.OrderIntent) (types.OrderRecord, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.checkBalanceLocked(intent); err != nil {
		return types.OrderRecord{}, err
	}

	orderID := fmt.Sprintf("PAPER-%d", e.nextOrderID.Add(1))
	now := time.Now()

	rec := &types.OrderRecord{
		OrderID:        orderID,
		ClientOrderID:  intent.ClientOrderID,
		Symbol:         intent.Symbol,
		Side:           intent.Side,
		RequestedQty:   intent.Qty,
		RequestedPrice: intent.LimitPrice,
		Status:         types.OrderStatusNew,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	fillQty := intent.Qty.Mul(e.cfg.FillRatio)
	if fillQty.IsPositive() {
		rec.FilledQty = fillQty
		rec.AvgFillPrice = intent.LimitPrice
		rec.CumQuote = fillQty.Mul(intent.LimitPrice)
		if fillQty.Equal(intent.Qty) {
			rec.Status = types.OrderStatusFilled
		} else {
			rec.Status = types.OrderStatusPartiallyFilled
		}
		e.settleLocked(intent.Symbol, intent.Side, fillQty, rec.CumQuote)
	}

	e.orders[orderID] = rec

	e.logger.Info("paper order placed",
		"order_id", orderID,
		"side", intent.Side.String(),
		"qty", intent.Qty,
		"price", intent.LimitPrice,
		"status", rec.Status.String(),
	)
	return *rec, nil
}

// checkBalanceLocked rejects orders the seeded funds cannot cover. Only
// assets present in the balance map are enforced, so a bare test without
// balances still works.
func (e *Exchange) checkBalanceLocked(intent types.OrderIntent) error {
	base, quoteAsset := splitSymbol(intent.Symbol)
	if base == "" {
		return nil
	}
	if intent.Side == types.SideBuy {
		need := intent.Qty.Mul(intent.LimitPrice)
		if have, ok := e.balances[quoteAsset]; ok && have.LessThan(need) {
			return fmt.Errorf("%w: need %s %s, have %s", types.ErrInsufficientBalance, need, quoteAsset, have)
		}
		return nil
	}
	if have, ok := e.balances[base]; ok && have.LessThan(intent.Qty) {
		return fmt.Errorf("%w: need %s %s, have %s", types.ErrInsufficientBalance, intent.Qty, base, have)
	}
	return nil
}

// settleLocked moves balances for a fill. Assets are derived from the
// balance keys seeded by the caller; unknown assets stay untouched so a
// bare test without balances still works.
func (e *Exchange) settleLocked(symbol string, side types.Side, qty, quote decimal.Decimal) {
	base, quoteAsset := splitSymbol(symbol)
	if base == "" {
		return
	}
	if side == types.SideBuy {
		e.balances[base] = e.balances[base].Add(qty)
		e.balances[quoteAsset] = e.balances[quoteAsset].Sub(quote)
	} else {
		e.balances[base] = e.balances[base].Sub(qty)
		e.balances[quoteAsset] = e.balances[quoteAsset].Add(quote)
	}
}

var quoteSuffixes = []string{"FDUSD", "USDT", "USDC", "TUSD", "BUSD", "EUR", "BTC", "ETH", "BNB", "USD"}

func splitSymbol(symbol string) (base, quote string) {
	for _, q := range quoteSuffixes {
		if len(symbol) > len(q) && symbol[len(symbol)-len(q):] == q {
			return symbol[:len(symbol)-len(q)], q
		}
	}
	return "", ""
}

// GetOrder returns the current state of an order.
func (e *Exchange) GetOrder(ctx context.Context, symbol, orderID string) (types.OrderRecord, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	rec, ok := e.orders[orderID]
	if !ok {
		return types.OrderRecord{}, exchange.ErrNotFound
	}
	return *rec, nil
}

// CancelOrder cancels a resting order, preserving any filled portion.
func (e *Exchange) CancelOrder(ctx context.Context, symbol, orderID string) (types.OrderRecord, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	rec, ok := e.orders[orderID]
	if !ok {
		return types.OrderRecord{}, exchange.ErrNotFound
	}
	if !rec.Status.IsFinal() {
		rec.Status = types.OrderStatusCanceled
		rec.UpdatedAt = time.Now()
	}
	return *rec, nil
}

// Close is a no-op on paper.
func (e *Exchange) Close() error {
	return nil
}

// Ensure Exchange implements exchange.Exchange
var _ exchange.Exchange = (*Exchange)(nil)
