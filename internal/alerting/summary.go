package alerting

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// SummarySender is implemented by channels with a dedicated daily summary
// format. Channels without one receive the summary as a plain alert.
type SummarySender interface {
	SendDailySummary(ctx context.Context, summary DailySummary) error
}

// DailySummary contains one trading day's statistics for the summary report.
type DailySummary struct {
	Date          time.Time
	Symbol        string
	DailyPnL      decimal.Decimal
	TotalTrades   int
	WinningTrades int
	LosingTrades  int
	WinRate       decimal.Decimal // percent
	Halted        bool
	HaltReason    string
	Position      string
	HeldQty       decimal.Decimal
	ReserveValue  decimal.Decimal
}

// NewDailySummary creates a daily summary from the provided data.
func NewDailySummary(
	date time.Time,
	symbol string,
	dailyPnL decimal.Decimal,
	totalTrades, winningTrades, losingTrades int,
	halted bool,
	haltReason string,
	position string,
	heldQty decimal.Decimal,
	reserveValue decimal.Decimal,
) DailySummary {
	var winRate decimal.Decimal
	if totalTrades > 0 {
		winRate = decimal.NewFromInt(int64(winningTrades)).
			Div(decimal.NewFromInt(int64(totalTrades))).
			Mul(decimal.NewFromInt(100))
	}

	return DailySummary{
		Date:          date,
		Symbol:        symbol,
		DailyPnL:      dailyPnL,
		TotalTrades:   totalTrades,
		WinningTrades: winningTrades,
		LosingTrades:  losingTrades,
		WinRate:       winRate,
		Halted:        halted,
		HaltReason:    haltReason,
		Position:      position,
		HeldQty:       heldQty,
		ReserveValue:  reserveValue,
	}
}
