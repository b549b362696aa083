package alerting

import (
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func TestNewDailySummary(t *testing.T) {
	date := time.Date(2025, 12, 31, 0, 0, 0, 0, time.UTC)

	summary := NewDailySummary(
		date,
		"ETHFDUSD",
		decimal.NewFromFloat(12.50),
		10, 6, 4,
		false, "",
		"FLAT",
		decimal.Zero,
		decimal.NewFromInt(2500),
	)

	if summary.Symbol != "ETHFDUSD" {
		t.Errorf("Symbol = %s, want ETHFDUSD", summary.Symbol)
	}
	if !summary.DailyPnL.Equal(decimal.NewFromFloat(12.50)) {
		t.Errorf("DailyPnL = %s, want 12.5", summary.DailyPnL)
	}

	// Win rate (60%)
	expectedWinRate := decimal.NewFromInt(60)
	if !summary.WinRate.Equal(expectedWinRate) {
		t.Errorf("WinRate = %s, want %s", summary.WinRate, expectedWinRate)
	}

	if summary.TotalTrades != 10 {
		t.Errorf("TotalTrades = %d, want 10", summary.TotalTrades)
	}
	if summary.WinningTrades != 6 {
		t.Errorf("WinningTrades = %d, want 6", summary.WinningTrades)
	}
	if summary.LosingTrades != 4 {
		t.Errorf("LosingTrades = %d, want 4", summary.LosingTrades)
	}
	if summary.Halted {
		t.Error("Halted should be false")
	}
}

func TestNewDailySummary_ZeroTrades(t *testing.T) {
	summary := NewDailySummary(
		time.Now(),
		"ETHFDUSD",
		decimal.Zero,
		0, 0, 0,
		false, "",
		"FLAT",
		decimal.Zero,
		decimal.Zero,
	)

	if !summary.WinRate.IsZero() {
		t.Errorf("WinRate = %s, want 0", summary.WinRate)
	}
}

func TestNewDailySummary_Halted(t *testing.T) {
	summary := NewDailySummary(
		time.Now(),
		"ETHFDUSD",
		decimal.NewFromInt(-30),
		5, 2, 3,
		true, "daily loss limit",
		"HOLDING",
		decimal.NewFromFloat(0.02),
		decimal.NewFromInt(2400),
	)

	if !summary.Halted {
		t.Error("Halted should be true")
	}
	if summary.HaltReason != "daily loss limit" {
		t.Errorf("HaltReason = %q, want %q", summary.HaltReason, "daily loss limit")
	}
	if !summary.DailyPnL.IsNegative() {
		t.Errorf("DailyPnL = %s, want negative", summary.DailyPnL)
	}
}

func TestTelegramAlerter_FormatDailySummary(t *testing.T) {
	alerter := NewTelegramAlerter(TelegramConfig{BotToken: "token", ChatID: "chat"})

	summary := NewDailySummary(
		time.Date(2025, 12, 31, 0, 0, 0, 0, time.UTC),
		"ETHFDUSD",
		decimal.NewFromInt(-30),
		5, 2, 3,
		true, "daily loss limit",
		"HOLDING",
		decimal.NewFromFloat(0.02),
		decimal.NewFromInt(2400),
	)

	text := alerter.formatDailySummary(summary)

	for _, want := range []string{"📉", "2025-12-31", "ETHFDUSD", "-30.00", "🔴 Halted (daily loss limit)", "HOLDING", "40.0%"} {
		if !strings.Contains(text, want) {
			t.Errorf("summary missing %q:\n%s", want, text)
		}
	}
}
