package persistence

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stoilsteve-hub/MyAIBotSteve/internal/types"

	_ "github.com/mattn/go-sqlite3" // SQLite driver
)

// SQLiteHistory implements HistoryRepository using SQLite. Decimals are
// stored as TEXT to avoid float drift.
type SQLiteHistory struct {
	db *sql.DB
}

// NewSQLiteHistory opens (and migrates) a history database.
func NewSQLiteHistory(path string) (*SQLiteHistory, error) {
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}

	repo := &SQLiteHistory{db: db}
	if err := repo.Migrate(context.Background()); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return repo, nil
}

// Migrate runs database migrations.
func (r *SQLiteHistory) Migrate(ctx context.Context) error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS trades (
			id TEXT PRIMARY KEY,
			symbol TEXT NOT NULL,
			side INTEGER NOT NULL,
			qty TEXT NOT NULL,
			entry_price TEXT NOT NULL,
			exit_price TEXT NOT NULL,
			entry_time DATETIME NOT NULL,
			exit_time DATETIME NOT NULL,
			pnl_quote TEXT NOT NULL,
			reason TEXT,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE INDEX IF NOT EXISTS idx_trades_symbol ON trades(symbol)`,
		`CREATE INDEX IF NOT EXISTS idx_trades_exit_time ON trades(exit_time)`,

		`CREATE TABLE IF NOT EXISTS orders (
			client_order_id TEXT PRIMARY KEY,
			order_id TEXT,
			symbol TEXT NOT NULL,
			side INTEGER NOT NULL,
			requested_qty TEXT NOT NULL,
			requested_price TEXT NOT NULL,
			filled_qty TEXT NOT NULL DEFAULT '0',
			avg_fill_price TEXT NOT NULL DEFAULT '0',
			cum_quote TEXT NOT NULL DEFAULT '0',
			status INTEGER NOT NULL,
			created_at DATETIME NOT NULL,
			updated_at DATETIME NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_orders_status ON orders(status)`,
		`CREATE INDEX IF NOT EXISTS idx_orders_symbol ON orders(symbol)`,
	}

	for _, migration := range migrations {
		if _, err := r.db.ExecContext(ctx, migration); err != nil {
			return fmt.Errorf("execute migration: %w", err)
		}
	}
	return nil
}

// SaveTrade records a completed round-trip.
func (r *SQLiteHistory) SaveTrade(ctx context.Context, trade types.Trade) error {
	query := `INSERT INTO trades
		(id, symbol, side, qty, entry_price, exit_price, entry_time, exit_time, pnl_quote, reason)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err := r.db.ExecContext(ctx, query,
		trade.ID,
		trade.Symbol,
		trade.Side,
		trade.Qty.String(),
		trade.EntryPrice.String(),
		trade.ExitPrice.String(),
		trade.EntryTime,
		trade.ExitTime,
		trade.PnLQuote.String(),
		trade.Reason,
	)
	if err != nil {
		return fmt.Errorf("insert trade: %w", err)
	}
	return nil
}

// Trades returns trades whose exit falls in the time range.
func (r *SQLiteHistory) Trades(ctx context.Context, from, to time.Time) ([]types.Trade, error) {
	query := `SELECT id, symbol, side, qty, entry_price, exit_price, entry_time, exit_time, pnl_quote, reason
		FROM trades WHERE exit_time BETWEEN ? AND ? ORDER BY exit_time DESC`

	rows, err := r.db.QueryContext(ctx, query, from, to)
	if err != nil {
		return nil, fmt.Errorf("query trades: %w", err)
	}
	defer func() { _ = rows.Close() }()

	return r.scanTrades(rows)
}

// TradesBySymbol returns the most recent trades for a symbol.
func (r *SQLiteHistory) TradesBySymbol(ctx context.Context, symbol string, limit int) ([]types.Trade, error) {
	query := `SELECT id, symbol, side, qty, entry_price, exit_price, entry_time, exit_time, pnl_quote, reason
		FROM trades WHERE symbol = ? ORDER BY exit_time DESC LIMIT ?`

	rows, err := r.db.QueryContext(ctx, query, symbol, limit)
	if err != nil {
		return nil, fmt.Errorf("query trades by symbol: %w", err)
	}
	defer func() { _ = rows.Close() }()

	return r.scanTrades(rows)
}

// DailyPnL sums realized PnL over a time range.
func (r *SQLiteHistory) DailyPnL(ctx context.Context, from, to time.Time) (decimal.Decimal, error) {
	query := `SELECT pnl_quote FROM trades WHERE exit_time BETWEEN ? AND ?`

	rows, err := r.db.QueryContext(ctx, query, from, to)
	if err != nil {
		return decimal.Zero, fmt.Errorf("query pnl: %w", err)
	}
	defer func() { _ = rows.Close() }()

	total := decimal.Zero
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return decimal.Zero, fmt.Errorf("scan row: %w", err)
		}
		pnl, err := decimal.NewFromString(s)
		if err != nil {
			return decimal.Zero, fmt.Errorf("parse pnl %q: %w", s, err)
		}
		total = total.Add(pnl)
	}
	return total, rows.Err()
}

func (r *SQLiteHistory) scanTrades(rows *sql.Rows) ([]types.Trade, error) {
	var trades []types.Trade
	for rows.Next() {
		var t types.Trade
		var qty, entryPrice, exitPrice, pnl string
		var reason sql.NullString

		if err := rows.Scan(&t.ID, &t.Symbol, &t.Side, &qty, &entryPrice, &exitPrice, &t.EntryTime, &t.ExitTime, &pnl, &reason); err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}

		t.Qty, _ = decimal.NewFromString(qty)
		t.EntryPrice, _ = decimal.NewFromString(entryPrice)
		t.ExitPrice, _ = decimal.NewFromString(exitPrice)
		t.PnLQuote, _ = decimal.NewFromString(pnl)
		t.Reason = reason.String

		trades = append(trades, t)
	}
	return trades, rows.Err()
}

// SaveOrder records a placed order attempt.
func (r *SQLiteHistory) SaveOrder(ctx context.Context, order types.OrderRecord) error {
	query := `INSERT OR REPLACE INTO orders
		(client_order_id, order_id, symbol, side, requested_qty, requested_price, filled_qty, avg_fill_price, cum_quote, status, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err := r.db.ExecContext(ctx, query,
		order.ClientOrderID,
		order.OrderID,
		order.Symbol,
		order.Side,
		order.RequestedQty.String(),
		order.RequestedPrice.String(),
		order.FilledQty.String(),
		order.AvgFillPrice.String(),
		order.CumQuote.String(),
		order.Status,
		order.CreatedAt,
		order.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert order: %w", err)
	}
	return nil
}

// UpdateOrder refreshes fill progress and status for an order.
func (r *SQLiteHistory) UpdateOrder(ctx context.Context, order types.OrderRecord) error {
	query := `UPDATE orders SET order_id = ?, filled_qty = ?, avg_fill_price = ?, cum_quote = ?, status = ?, updated_at = ?
		WHERE client_order_id = ?`

	_, err := r.db.ExecContext(ctx, query,
		order.OrderID,
		order.FilledQty.String(),
		order.AvgFillPrice.String(),
		order.CumQuote.String(),
		order.Status,
		order.UpdatedAt,
		order.ClientOrderID,
	)
	if err != nil {
		return fmt.Errorf("update order: %w", err)
	}
	return nil
}

// OpenOrders returns orders not yet in a final status.
func (r *SQLiteHistory) OpenOrders(ctx context.Context) ([]types.OrderRecord, error) {
	query := `SELECT client_order_id, order_id, symbol, side, requested_qty, requested_price, filled_qty, avg_fill_price, cum_quote, status, created_at, updated_at
		FROM orders WHERE status IN (?, ?)`

	rows, err := r.db.QueryContext(ctx, query, types.OrderStatusNew, types.OrderStatusPartiallyFilled)
	if err != nil {
		return nil, fmt.Errorf("query open orders: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var orders []types.OrderRecord
	for rows.Next() {
		var o types.OrderRecord
		var orderID sql.NullString
		var reqQty, reqPrice, filledQty, avgPrice, cumQuote string

		if err := rows.Scan(&o.ClientOrderID, &orderID, &o.Symbol, &o.Side, &reqQty, &reqPrice, &filledQty, &avgPrice, &cumQuote, &o.Status, &o.CreatedAt, &o.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}

		o.OrderID = orderID.String
		o.RequestedQty, _ = decimal.NewFromString(reqQty)
		o.RequestedPrice, _ = decimal.NewFromString(reqPrice)
		o.FilledQty, _ = decimal.NewFromString(filledQty)
		o.AvgFillPrice, _ = decimal.NewFromString(avgPrice)
		o.CumQuote, _ = decimal.NewFromString(cumQuote)

		orders = append(orders, o)
	}
	return orders, rows.Err()
}

// Close closes the database connection.
func (r *SQLiteHistory) Close() error {
	return r.db.Close()
}

var _ HistoryRepository = (*SQLiteHistory)(nil)
