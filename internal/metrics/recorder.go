package metrics

import (
	"time"

	"github.com/shopspring/decimal"
)

// Recorder provides methods for recording metrics.
type Recorder struct{}

// NewRecorder creates a new metrics recorder.
func NewRecorder() *Recorder {
	return &Recorder{}
}

// RecordTick records one processed price sample.
func (r *Recorder) RecordTick(symbol string) {
	TicksTotal.WithLabelValues(symbol).Inc()
}

// RecordSkip records a tick skipped by a gate.
func (r *Recorder) RecordSkip(reason string) {
	SkipsTotal.WithLabelValues(reason).Inc()
}

// RecordSignal records a signal verdict. Only the permit/block outcome is
// labelled; reasons carry free text and would blow up cardinality.
func (r *Recorder) RecordSignal(reason string, permitted bool) {
	verdict := "no_buy"
	if permitted {
		verdict = "permit_buy"
	}
	SignalsTotal.WithLabelValues(verdict).Inc()
}

// RecordMarket records the current market view.
func (r *Recorder) RecordMarket(price, sma, buyTarget decimal.Decimal) {
	LastPrice.Set(price.InexactFloat64())
	SMAValue.Set(sma.InexactFloat64())
	BuyTargetPrice.Set(buyTarget.InexactFloat64())
}

// RecordPosition records the position state machine snapshot.
func (r *Recorder) RecordPosition(status int, entryPrice, heldQty decimal.Decimal) {
	PositionStatus.Set(float64(status))
	PositionEntryPrice.Set(entryPrice.InexactFloat64())
	PositionHeldQty.Set(heldQty.InexactFloat64())
}

// RecordOrder records an order attempt's final disposition.
func (r *Recorder) RecordOrder(symbol, side, status string) {
	OrdersTotal.WithLabelValues(symbol, side, status).Inc()
}

// RecordTrade records a completed round trip.
func (r *Recorder) RecordTrade(symbol string, profitable bool) {
	outcome := "loss"
	if profitable {
		outcome = "win"
	}
	TradesTotal.WithLabelValues(symbol, outcome).Inc()
}

// RecordRisk records the risk governor's daily counters.
func (r *Recorder) RecordRisk(dailyPnL decimal.Decimal, tradeCount, errorsInWindow int, halted bool) {
	DailyPnL.Set(dailyPnL.InexactFloat64())
	TradesToday.Set(float64(tradeCount))
	ErrorsInWindow.Set(float64(errorsInWindow))
	if halted {
		TradingHalted.Set(1)
	} else {
		TradingHalted.Set(0)
	}
}

// RecordReserve records the reserve valuation.
func (r *Recorder) RecordReserve(value, highWater decimal.Decimal) {
	ReserveValue.Set(value.InexactFloat64())
	ReserveHighWater.Set(highWater.InexactFloat64())
}

// RecordError records a transient error.
func (r *Recorder) RecordError(errorType string) {
	ErrorsTotal.WithLabelValues(errorType).Inc()
}

// RecordHeartbeat records a heartbeat.
func (r *Recorder) RecordHeartbeat() {
	HeartbeatTimestamp.Set(float64(time.Now().Unix()))
}

// RecordOrderLatency records order execution latency.
func (r *Recorder) RecordOrderLatency(duration time.Duration) {
	OrderLatency.Observe(duration.Seconds())
}

// Timer is a helper for measuring latency.
type Timer struct {
	start time.Time
}

// NewTimer creates a new timer.
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// Elapsed returns the elapsed duration.
func (t *Timer) Elapsed() time.Duration {
	return time.Since(t.start)
}

// ObserveOrder observes the elapsed time as order latency.
func (t *Timer) ObserveOrder() {
	OrderLatency.Observe(t.Elapsed().Seconds())
}
