// Package persistence stores controller state and trade history. The live
// state file (statefile.go) is the source of truth for recovery; the
// SQLite history is an append-mostly audit log.
package persistence

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stoilsteve-hub/MyAIBotSteve/internal/types"
)

// HistoryRepository records completed trades and order attempts.
type HistoryRepository interface {
	// Trade operations
	SaveTrade(ctx context.Context, trade types.Trade) error
	Trades(ctx context.Context, from, to time.Time) ([]types.Trade, error)
	TradesBySymbol(ctx context.Context, symbol string, limit int) ([]types.Trade, error)
	DailyPnL(ctx context.Context, from, to time.Time) (decimal.Decimal, error)

	// Order operations
	SaveOrder(ctx context.Context, order types.OrderRecord) error
	UpdateOrder(ctx context.Context, order types.OrderRecord) error
	OpenOrders(ctx context.Context) ([]types.OrderRecord, error)

	// Lifecycle
	Close() error
	Migrate(ctx context.Context) error
}

// NopHistory discards all writes. Used when history recording is disabled.
type NopHistory struct{}

func (NopHistory) SaveTrade(ctx context.Context, trade types.Trade) error { return nil }
func (NopHistory) Trades(ctx context.Context, from, to time.Time) ([]types.Trade, error) {
	return nil, nil
}
func (NopHistory) TradesBySymbol(ctx context.Context, symbol string, limit int) ([]types.Trade, error) {
	return nil, nil
}
func (NopHistory) DailyPnL(ctx context.Context, from, to time.Time) (decimal.Decimal, error) {
	return decimal.Zero, nil
}
func (NopHistory) SaveOrder(ctx context.Context, order types.OrderRecord) error   { return nil }
func (NopHistory) UpdateOrder(ctx context.Context, order types.OrderRecord) error { return nil }
func (NopHistory) OpenOrders(ctx context.Context) ([]types.OrderRecord, error)    { return nil, nil }
func (NopHistory) Close() error                                                   { return nil }
func (NopHistory) Migrate(ctx context.Context) error                              { return nil }

var _ HistoryRepository = NopHistory{}
