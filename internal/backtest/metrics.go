package backtest

import (
	"math"

	"github.com/shopspring/decimal"
	"github.com/stoilsteve-hub/MyAIBotSteve/internal/types"
)

// Metrics computes performance figures over a replay result. The equity
// curve has one point per completed trade, so the annualized ratios are
// approximations for low trade counts.
type Metrics struct {
	trades       []types.Trade
	equityCurve  []EquityPoint
	riskFreeRate decimal.Decimal // annual, e.g. 0.05 for 5%
}

// NewMetrics creates a metrics calculator over a result.
func NewMetrics(result *Result, riskFreeRate decimal.Decimal) *Metrics {
	return &Metrics{
		trades:       result.Trades,
		equityCurve:  result.EquityCurve,
		riskFreeRate: riskFreeRate,
	}
}

// SharpeRatio calculates the annualized Sharpe ratio:
// (mean_return - risk_free) / std_dev_returns * sqrt(252).
func (m *Metrics) SharpeRatio() decimal.Decimal {
	returns := m.calculateReturns()
	if len(returns) < 2 {
		return decimal.Zero
	}

	meanReturn := mean(returns)
	stdDev := standardDeviation(returns)
	if stdDev.IsZero() {
		return decimal.Zero
	}

	dailyRf := m.riskFreeRate.Div(decimal.NewFromInt(252))
	excessReturn := meanReturn.Sub(dailyRf)

	sqrt252 := decimal.NewFromFloat(math.Sqrt(252))
	return excessReturn.Div(stdDev).Mul(sqrt252)
}

// SortinoRatio calculates the Sortino ratio using downside deviation.
func (m *Metrics) SortinoRatio() decimal.Decimal {
	returns := m.calculateReturns()
	if len(returns) < 2 {
		return decimal.Zero
	}

	meanReturn := mean(returns)
	downsideDev := downsideDeviation(returns, decimal.Zero)
	if downsideDev.IsZero() {
		return decimal.Zero
	}

	dailyRf := m.riskFreeRate.Div(decimal.NewFromInt(252))
	excessReturn := meanReturn.Sub(dailyRf)

	sqrt252 := decimal.NewFromFloat(math.Sqrt(252))
	return excessReturn.Div(downsideDev).Mul(sqrt252)
}

// MaxDrawdown returns the maximum drawdown as a ratio.
func (m *Metrics) MaxDrawdown() decimal.Decimal {
	if len(m.equityCurve) == 0 {
		return decimal.Zero
	}

	hwm := m.equityCurve[0].Equity
	maxDD := decimal.Zero

	for _, point := range m.equityCurve {
		if point.Equity.GreaterThan(hwm) {
			hwm = point.Equity
		}
		if hwm.IsPositive() {
			dd := hwm.Sub(point.Equity).Div(hwm)
			if dd.GreaterThan(maxDD) {
				maxDD = dd
			}
		}
	}

	return maxDD
}

// WinRate returns the win rate as a ratio.
func (m *Metrics) WinRate() decimal.Decimal {
	if len(m.trades) == 0 {
		return decimal.Zero
	}

	wins := 0
	for _, trade := range m.trades {
		if trade.PnLQuote.IsPositive() {
			wins++
		}
	}

	return decimal.NewFromInt(int64(wins)).Div(decimal.NewFromInt(int64(len(m.trades))))
}

// ProfitFactor calculates gross profit / gross loss.
func (m *Metrics) ProfitFactor() decimal.Decimal {
	grossProfit := decimal.Zero
	grossLoss := decimal.Zero

	for _, trade := range m.trades {
		if trade.PnLQuote.IsPositive() {
			grossProfit = grossProfit.Add(trade.PnLQuote)
		} else {
			grossLoss = grossLoss.Add(trade.PnLQuote.Abs())
		}
	}

	if grossLoss.IsZero() {
		return decimal.Zero
	}
	return grossProfit.Div(grossLoss)
}

// AverageWin returns the average winning trade PnL.
func (m *Metrics) AverageWin() decimal.Decimal {
	totalWin := decimal.Zero
	winCount := 0

	for _, trade := range m.trades {
		if trade.PnLQuote.IsPositive() {
			totalWin = totalWin.Add(trade.PnLQuote)
			winCount++
		}
	}

	if winCount == 0 {
		return decimal.Zero
	}
	return totalWin.Div(decimal.NewFromInt(int64(winCount)))
}

// AverageLoss returns the average losing trade PnL (negative).
func (m *Metrics) AverageLoss() decimal.Decimal {
	totalLoss := decimal.Zero
	lossCount := 0

	for _, trade := range m.trades {
		if trade.PnLQuote.IsNegative() {
			totalLoss = totalLoss.Add(trade.PnLQuote)
			lossCount++
		}
	}

	if lossCount == 0 {
		return decimal.Zero
	}
	return totalLoss.Div(decimal.NewFromInt(int64(lossCount)))
}

// Expectancy calculates the expected value per trade:
// (WinRate * AvgWin) + ((1 - WinRate) * AvgLoss).
func (m *Metrics) Expectancy() decimal.Decimal {
	winRate := m.WinRate()
	avgWin := m.AverageWin()
	avgLoss := m.AverageLoss()

	return winRate.Mul(avgWin).Add(decimal.NewFromInt(1).Sub(winRate).Mul(avgLoss))
}

// calculateReturns computes per-point returns from the equity curve.
func (m *Metrics) calculateReturns() []decimal.Decimal {
	if len(m.equityCurve) < 2 {
		return nil
	}

	returns := make([]decimal.Decimal, 0, len(m.equityCurve)-1)
	for i := 1; i < len(m.equityCurve); i++ {
		prev := m.equityCurve[i-1].Equity
		curr := m.equityCurve[i].Equity
		if prev.IsZero() {
			continue
		}
		returns = append(returns, curr.Sub(prev).Div(prev))
	}

	return returns
}

func mean(values []decimal.Decimal) decimal.Decimal {
	if len(values) == 0 {
		return decimal.Zero
	}

	sum := decimal.Zero
	for _, v := range values {
		sum = sum.Add(v)
	}
	return sum.Div(decimal.NewFromInt(int64(len(values))))
}

func standardDeviation(values []decimal.Decimal) decimal.Decimal {
	if len(values) < 2 {
		return decimal.Zero
	}

	m := mean(values)
	sumSquares := decimal.Zero
	for _, v := range values {
		diff := v.Sub(m)
		sumSquares = sumSquares.Add(diff.Mul(diff))
	}

	variance := sumSquares.Div(decimal.NewFromInt(int64(len(values) - 1)))
	varianceFloat := variance.InexactFloat64()
	if varianceFloat < 0 {
		return decimal.Zero
	}
	return decimal.NewFromFloat(math.Sqrt(varianceFloat))
}

// downsideDeviation is the standard deviation of returns below target.
func downsideDeviation(returns []decimal.Decimal, target decimal.Decimal) decimal.Decimal {
	negative := make([]decimal.Decimal, 0)
	for _, r := range returns {
		if r.LessThan(target) {
			negative = append(negative, r)
		}
	}
	if len(negative) < 2 {
		return decimal.Zero
	}
	return standardDeviation(negative)
}
