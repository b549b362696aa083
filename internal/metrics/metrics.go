// Package metrics exposes Prometheus instrumentation for the trading bot.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "bot"

// Counters.
var (
	TicksTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "ticks_total",
		Help:      "Price samples processed by the trading loop.",
	}, []string{"symbol"})

	SkipsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "skips_total",
		Help:      "Ticks skipped before order placement, by gate.",
	}, []string{"reason"})

	SignalsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "signals_total",
		Help:      "Signal engine verdicts.",
	}, []string{"verdict"})

	OrdersTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "orders_total",
		Help:      "Order attempts by final disposition.",
	}, []string{"symbol", "side", "status"})

	TradesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "trades_total",
		Help:      "Completed round trips by outcome.",
	}, []string{"symbol", "outcome"})

	ErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "errors_total",
		Help:      "Transient errors by type.",
	}, []string{"type"})
)

// Market and position gauges.
var (
	LastPrice = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "last_price",
		Help:      "Most recent mid price.",
	})

	SMAValue = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "sma_value",
		Help:      "Current SMA over the sample window.",
	})

	BuyTargetPrice = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "buy_target_price",
		Help:      "Current dip buy target price.",
	})

	PositionStatus = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "position_status",
		Help:      "Position state: 0 flat, 1 holding, 2 order pending.",
	})

	PositionEntryPrice = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "position_entry_price",
		Help:      "Average entry price of the held position.",
	})

	PositionHeldQty = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "position_held_qty",
		Help:      "Base quantity held by the pot.",
	})
)

// Risk gauges.
var (
	DailyPnL = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "daily_pnl_quote",
		Help:      "Realized profit and loss for the current trading day.",
	})

	TradesToday = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "trades_today",
		Help:      "Round trips completed in the current trading day.",
	})

	ErrorsInWindow = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "errors_in_window",
		Help:      "Errors inside the rolling error budget window.",
	})

	TradingHalted = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "trading_halted",
		Help:      "1 when the daily kill switch is latched.",
	})
)

// Reserve gauges.
var (
	ReserveValue = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "reserve_value_quote",
		Help:      "Mark-to-market value of the reserve holdings.",
	})

	ReserveHighWater = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "reserve_high_water_quote",
		Help:      "High-water mark of the reserve value.",
	})
)

// Operational.
var (
	HeartbeatTimestamp = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "heartbeat_timestamp",
		Help:      "Unix time of the last processed tick.",
	})

	OrderLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "order_latency_seconds",
		Help:      "Wall time from intent to reconciled outcome.",
		Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120},
	})
)
