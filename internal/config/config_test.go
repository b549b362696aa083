package config

import (
	"errors"
	"strings"
	"testing"

	"github.com/stoilsteve-hub/MyAIBotSteve/internal/types"
)

func TestLoadFromBytes_Valid(t *testing.T) {
	yaml := `
market:
  symbol: "ETHUSDC"
  timezone: "Europe/Sofia"
  loop_interval_seconds: 20
  max_spread_pct: 0.004
  feed: "ticker"

trading:
  trade_value_quote: 50
  buy_drop_pct: 0.01
  take_profit_pct: 0.012
  stop_loss_pct: 0.02
  min_fill_quote: 5
  min_notional_buffer: 1.05
  dry_run: true

trend:
  mode: "REVERSAL"
  reversal_mode: "CROSSUP"
  reversal_samples: 3
  window_samples: 60
  min_samples: 20
  anchor_mode: "BLEND"
  blend_sma_weight: 0.7
  max_under_sma_pct: 0.03

risk:
  max_daily_loss_quote: 25
  max_trades_per_day: 12
  error_limit: 8
  error_window_seconds: 600
  cooldown_seconds: 90
`

	cfg, err := LoadFromBytes([]byte(yaml))
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}

	if cfg.Market.Symbol != "ETHUSDC" {
		t.Errorf("Symbol = %s, want ETHUSDC", cfg.Market.Symbol)
	}
	if cfg.Market.Timezone != "Europe/Sofia" {
		t.Errorf("Timezone = %s, want Europe/Sofia", cfg.Market.Timezone)
	}
	if cfg.Trading.TradeValueQuote != 50 {
		t.Errorf("TradeValueQuote = %f, want 50", cfg.Trading.TradeValueQuote)
	}
	if cfg.Trend.BlendSMAWeight != 0.7 {
		t.Errorf("BlendSMAWeight = %f, want 0.7", cfg.Trend.BlendSMAWeight)
	}
	if !cfg.Trading.DryRun {
		t.Error("DryRun should be true")
	}
}

func TestLoadFromBytes_MissingSymbol(t *testing.T) {
	_, err := LoadFromBytes([]byte("market:\n  feed: ticker\n"))
	if err == nil {
		t.Fatal("Expected validation error for missing symbol")
	}
	if !errors.Is(err, types.ErrInvalidConfig) {
		t.Errorf("Expected ErrInvalidConfig, got: %v", err)
	}
	if !strings.Contains(err.Error(), "market.symbol") {
		t.Errorf("Error should name market.symbol: %v", err)
	}
}

func TestValidate_CollectsAllErrors(t *testing.T) {
	cfg := Default()
	cfg.Market.Symbol = ""
	cfg.Trading.BuyDropPct = -1
	cfg.Risk.MaxDailyLossQuote = 0

	err := cfg.Validate()
	if err == nil {
		t.Fatal("Expected validation error")
	}
	for _, want := range []string{"market.symbol", "trading.buy_drop_pct", "risk.max_daily_loss_quote"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("Error should mention %s: %v", want, err)
		}
	}
}

func TestValidate_LiveAndDryRunExclusive(t *testing.T) {
	cfg := Default()
	cfg.Market.Symbol = "ETHUSDC"
	cfg.Trading.LiveTrading = true
	cfg.Trading.DryRun = true
	cfg.Exchange.APIKey = "k"
	cfg.Exchange.APISecret = "s"

	err := cfg.Validate()
	if err == nil || !strings.Contains(err.Error(), "mutually exclusive") {
		t.Errorf("Expected mutual-exclusion error, got: %v", err)
	}
}

func TestValidate_WalkBudgetWithinOrderTimeout(t *testing.T) {
	cfg := Default()
	cfg.Market.Symbol = "ETHUSDC"
	cfg.Execution.WalkMaxAttempts = 4
	cfg.Execution.WalkSliceSeconds = 30
	cfg.Execution.OrderTimeoutSeconds = 90

	err := cfg.Validate()
	if err == nil || !strings.Contains(err.Error(), "order_timeout_seconds") {
		t.Errorf("Expected walk budget error, got: %v", err)
	}

	// The default schedule fits: 4 * 20s inside 90s.
	cfg.Execution.WalkSliceSeconds = 20
	if err := cfg.Validate(); err != nil {
		t.Errorf("Fitting schedule should validate: %v", err)
	}
}

func TestValidate_BadTrendMode(t *testing.T) {
	cfg := Default()
	cfg.Market.Symbol = "ETHUSDC"
	cfg.Trend.Mode = "SIDEWAYS"

	err := cfg.Validate()
	if err == nil || !strings.Contains(err.Error(), "trend.mode") {
		t.Errorf("Expected trend.mode error, got: %v", err)
	}
}

func TestAssetDerivation(t *testing.T) {
	tests := []struct {
		symbol string
		base   string
		quote  string
	}{
		{"ETHUSDC", "ETH", "USDC"},
		{"BTCUSDT", "BTC", "USDT"},
		{"ETHBTC", "ETH", "BTC"},
		{"SOLFDUSD", "SOL", "FDUSD"},
		{"XYZ", "", ""},
	}

	for _, tt := range tests {
		cfg := Default()
		cfg.Market.Symbol = tt.symbol
		if got := cfg.BaseAsset(); got != tt.base {
			t.Errorf("BaseAsset(%s) = %s, want %s", tt.symbol, got, tt.base)
		}
		if got := cfg.QuoteAsset(); got != tt.quote {
			t.Errorf("QuoteAsset(%s) = %s, want %s", tt.symbol, got, tt.quote)
		}
	}
}

func TestFromEnv_Overrides(t *testing.T) {
	t.Setenv("SYMBOL", "ETHUSDC")
	t.Setenv("TRADE_VALUE_QUOTE", "75.5")
	t.Setenv("MAX_TRADES_PER_DAY", "5")
	t.Setenv("DRY_RUN", "yes")
	t.Setenv("TREND_MODE", "STRICT")

	cfg, err := FromEnv()
	if err != nil {
		t.Fatalf("FromEnv failed: %v", err)
	}

	if cfg.Market.Symbol != "ETHUSDC" {
		t.Errorf("Symbol = %s, want ETHUSDC", cfg.Market.Symbol)
	}
	if cfg.Trading.TradeValueQuote != 75.5 {
		t.Errorf("TradeValueQuote = %f, want 75.5", cfg.Trading.TradeValueQuote)
	}
	if cfg.Risk.MaxTradesPerDay != 5 {
		t.Errorf("MaxTradesPerDay = %d, want 5", cfg.Risk.MaxTradesPerDay)
	}
	if !cfg.Trading.DryRun {
		t.Error("DRY_RUN=yes should enable dry run")
	}
	if cfg.Trend.Mode != "STRICT" {
		t.Errorf("Trend.Mode = %s, want STRICT", cfg.Trend.Mode)
	}
}

func TestFromEnv_MissingSymbolFails(t *testing.T) {
	t.Setenv("SYMBOL", "")

	if _, err := FromEnv(); err == nil {
		t.Fatal("FromEnv without SYMBOL should fail validation")
	}
}

func TestFromEnv_MalformedNumberKeepsDefault(t *testing.T) {
	t.Setenv("SYMBOL", "ETHUSDC")
	t.Setenv("MAX_DAILY_LOSS_QUOTE", "not-a-number")

	cfg, err := FromEnv()
	if err != nil {
		t.Fatalf("FromEnv failed: %v", err)
	}
	if cfg.Risk.MaxDailyLossQuote != Default().Risk.MaxDailyLossQuote {
		t.Errorf("Malformed float should keep default, got %f", cfg.Risk.MaxDailyLossQuote)
	}
}

func TestIsAlertEventEnabled(t *testing.T) {
	cfg := Default()
	cfg.Alerting.Enabled = true

	if !cfg.IsAlertEventEnabled("order_filled") {
		t.Error("With no event list all events should be enabled")
	}

	cfg.Alerting.Events = []string{"kill_switch"}
	if cfg.IsAlertEventEnabled("order_filled") {
		t.Error("order_filled should be disabled when not listed")
	}
	if !cfg.IsAlertEventEnabled("kill_switch") {
		t.Error("kill_switch should be enabled")
	}

	cfg.Alerting.Enabled = false
	if cfg.IsAlertEventEnabled("kill_switch") {
		t.Error("Disabled alerting should disable all events")
	}
}

func TestEnvExpansionInYAML(t *testing.T) {
	t.Setenv("TEST_BOT_SYMBOL", "ETHUSDC")

	yaml := "market:\n  symbol: \"${TEST_BOT_SYMBOL}\"\n"
	cfg, err := LoadFromBytes([]byte(yaml))
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}
	if cfg.Market.Symbol != "ETHUSDC" {
		t.Errorf("Symbol = %s, want expanded ETHUSDC", cfg.Market.Symbol)
	}
}
