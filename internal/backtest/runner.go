// Package backtest replays historical candles through the full trading
// pipeline and reports performance. The replay exercises the same engine,
// executor, and risk code as a live run; only the exchange is simulated.
package backtest

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stoilsteve-hub/MyAIBotSteve/internal/engine"
	"github.com/stoilsteve-hub/MyAIBotSteve/internal/exchange/paper"
	"github.com/stoilsteve-hub/MyAIBotSteve/internal/execution"
	"github.com/stoilsteve-hub/MyAIBotSteve/internal/observer"
	"github.com/stoilsteve-hub/MyAIBotSteve/internal/persistence"
	"github.com/stoilsteve-hub/MyAIBotSteve/internal/risk"
	"github.com/stoilsteve-hub/MyAIBotSteve/internal/strategy"
	"github.com/stoilsteve-hub/MyAIBotSteve/internal/types"
)

// Config holds replay configuration.
type Config struct {
	Symbol     string
	BaseAsset  string
	QuoteAsset string

	InitialQuote decimal.Decimal
	InitialBase  decimal.Decimal

	StartTime time.Time
	EndTime   time.Time

	Filters types.SymbolFilters
}

// Result holds replay results.
type Result struct {
	StartQuote    decimal.Decimal
	EndQuote      decimal.Decimal
	TotalReturn   decimal.Decimal // ratio: 0.15 = 15%
	MaxDrawdown   decimal.Decimal // ratio
	TotalTrades   int
	WinningTrades int
	LosingTrades  int
	WinRate       decimal.Decimal
	ProfitFactor  decimal.Decimal
	Trades        []types.Trade
	EquityCurve   []EquityPoint
}

// EquityPoint is quote equity after one completed trade.
type EquityPoint struct {
	Timestamp time.Time
	Equity    decimal.Decimal
	Drawdown  decimal.Decimal
}

// Runner executes replays.
type Runner struct {
	cfg       Config
	engineCfg engine.Config
	stratCfg  strategy.Config
	riskCfg   risk.Config
	walkCfg   execution.Config
	logger    *slog.Logger
}

// NewRunner creates a replay runner. The engine, strategy, risk, and
// execution configs are the same structs a live run uses.
func NewRunner(cfg Config, engineCfg engine.Config, stratCfg strategy.Config, riskCfg risk.Config, walkCfg execution.Config, logger *slog.Logger) *Runner {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Filters.StepSize.IsZero() {
		cfg.Filters = paper.DefaultConfig().Filters
	}
	return &Runner{
		cfg:       cfg,
		engineCfg: engineCfg,
		stratCfg:  stratCfg,
		riskCfg:   riskCfg,
		walkCfg:   walkCfg,
		logger:    logger,
	}
}

// Run replays the feed to exhaustion and computes the result.
func (r *Runner) Run(ctx context.Context, feed observer.Feed) (*Result, error) {
	exch := paper.New(paper.Config{
		FillRatio: decimal.NewFromInt(1),
		Filters:   r.cfg.Filters,
	}, r.logger)
	exch.SetBalance(r.cfg.BaseAsset, r.cfg.InitialBase)
	exch.SetBalance(r.cfg.QuoteAsset, r.cfg.InitialQuote)

	sizer := risk.NewOrderSizer(r.cfg.Filters, decimal.NewFromInt(1))
	walker := execution.NewWalker(r.walkCfg, exch, sizer, r.logger)
	history := &memoryHistory{}

	engineCfg := r.engineCfg
	engineCfg.Symbol = r.cfg.Symbol
	engineCfg.BaseAsset = r.cfg.BaseAsset
	engineCfg.QuoteAsset = r.cfg.QuoteAsset
	engineCfg.DryRun = true

	eng := engine.New(engineCfg, engine.Deps{
		Exchange:  exch,
		Executor:  walker,
		Signal:    strategy.NewEngine(r.stratCfg),
		Governor:  risk.NewGovernor(r.riskCfg, r.logger),
		Sizer:     sizer,
		History:   history,
		Confirmer: engine.AutoConfirmer{Allow: true},
		Logger:    r.logger,
	})

	synced := &marketSyncFeed{
		inner: feed,
		exch:  exch,
		start: r.cfg.StartTime,
		end:   r.cfg.EndTime,
	}

	if err := eng.Run(ctx, synced); err != nil {
		return nil, fmt.Errorf("replay run: %w", err)
	}

	return r.buildResult(history.snapshot()), nil
}

// buildResult folds completed trades into equity and drawdown figures.
func (r *Runner) buildResult(trades []types.Trade) *Result {
	res := &Result{
		StartQuote:  r.cfg.InitialQuote,
		TotalTrades: len(trades),
		Trades:      trades,
	}

	equity := r.cfg.InitialQuote
	hwm := equity
	maxDD := decimal.Zero
	grossProfit := decimal.Zero
	grossLoss := decimal.Zero

	for _, trade := range trades {
		equity = equity.Add(trade.PnLQuote)

		if trade.PnLQuote.IsPositive() {
			res.WinningTrades++
			grossProfit = grossProfit.Add(trade.PnLQuote)
		} else if trade.PnLQuote.IsNegative() {
			res.LosingTrades++
			grossLoss = grossLoss.Add(trade.PnLQuote.Abs())
		}

		if equity.GreaterThan(hwm) {
			hwm = equity
		}
		var dd decimal.Decimal
		if hwm.IsPositive() {
			dd = hwm.Sub(equity).Div(hwm)
		}
		if dd.GreaterThan(maxDD) {
			maxDD = dd
		}

		res.EquityCurve = append(res.EquityCurve, EquityPoint{
			Timestamp: trade.ExitTime,
			Equity:    equity,
			Drawdown:  dd,
		})
	}

	res.EndQuote = equity
	res.MaxDrawdown = maxDD
	if r.cfg.InitialQuote.IsPositive() {
		res.TotalReturn = equity.Sub(r.cfg.InitialQuote).Div(r.cfg.InitialQuote)
	}
	if len(trades) > 0 {
		res.WinRate = decimal.NewFromInt(int64(res.WinningTrades)).Div(decimal.NewFromInt(int64(len(trades))))
	}
	if grossLoss.IsPositive() {
		res.ProfitFactor = grossProfit.Div(grossLoss)
	}
	return res
}

// marketSyncFeed forwards samples from the inner feed, pushing each one
// into the paper exchange first so the executor prices off the same tick
// the engine is deciding on. It also applies the replay time window.
type marketSyncFeed struct {
	inner observer.Feed
	exch  *paper.Exchange
	start time.Time
	end   time.Time
}

func (f *marketSyncFeed) Subscribe(ctx context.Context, symbol string) (<-chan types.Sample, error) {
	in, err := f.inner.Subscribe(ctx, symbol)
	if err != nil {
		return nil, err
	}

	out := make(chan types.Sample)
	go func() {
		defer close(out)
		for s := range in {
			if !f.start.IsZero() && s.Timestamp.Before(f.start) {
				continue
			}
			if !f.end.IsZero() && s.Timestamp.After(f.end) {
				return
			}
			f.exch.SetMarket(s)
			select {
			case out <- s:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}

func (f *marketSyncFeed) Close() error { return f.inner.Close() }
func (f *marketSyncFeed) Name() string { return f.inner.Name() + "-sync" }

var _ observer.Feed = (*marketSyncFeed)(nil)

// memoryHistory keeps completed trades in memory for result computation.
// Order writes are discarded.
type memoryHistory struct {
	persistence.NopHistory

	mu     sync.Mutex
	trades []types.Trade
}

func (m *memoryHistory) SaveTrade(ctx context.Context, trade types.Trade) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.trades = append(m.trades, trade)
	return nil
}

func (m *memoryHistory) snapshot() []types.Trade {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]types.Trade(nil), m.trades...)
}

var _ persistence.HistoryRepository = (*memoryHistory)(nil)
