// Package config handles configuration loading and validation.
//
// Settings come from a YAML file (with ${VAR} environment expansion) or
// directly from the environment via FromEnv, so the bot can run with no
// config file at all.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/stoilsteve-hub/MyAIBotSteve/internal/types"
	"gopkg.in/yaml.v3"
)

// Config represents the full application configuration.
type Config struct {
	Market      MarketConfig      `yaml:"market"`
	Trading     TradingConfig     `yaml:"trading"`
	Trend       TrendConfig       `yaml:"trend"`
	Risk        RiskConfig        `yaml:"risk"`
	Execution   ExecutionConfig   `yaml:"execution"`
	Reserve     ReserveConfig     `yaml:"reserve"`
	Exchange    ExchangeConfig    `yaml:"exchange"`
	Persistence PersistenceConfig `yaml:"persistence"`
	Metrics     MetricsConfig     `yaml:"metrics"`
	Alerting    AlertingConfig    `yaml:"alerting"`
	Shutdown    ShutdownConfig    `yaml:"shutdown"`
}

// MarketConfig holds the traded pair and feed settings.
type MarketConfig struct {
	Symbol                    string  `yaml:"symbol"`
	Timezone                  string  `yaml:"timezone"`
	LoopIntervalSeconds       int     `yaml:"loop_interval_seconds"`
	MaxSpreadPct              float64 `yaml:"max_spread_pct"`
	Feed                      string  `yaml:"feed"` // ticker | candle
	CandleInterval            string  `yaml:"candle_interval"`
	SMAWindowCandles          int     `yaml:"sma_window_candles"`
	MaxCandleStalenessSeconds int     `yaml:"max_candle_staleness_seconds"`
	FiltersRefreshSeconds     int     `yaml:"filters_refresh_seconds"`
}

// TradingConfig holds pot sizing and exit thresholds.
type TradingConfig struct {
	TradeValueQuote     float64 `yaml:"trade_value_quote"`
	BuyDropPct          float64 `yaml:"buy_drop_pct"`
	TakeProfitPct       float64 `yaml:"take_profit_pct"`
	StopLossPct         float64 `yaml:"stop_loss_pct"`
	MinFillQuote        float64 `yaml:"min_fill_quote"`
	MinNotionalBuffer   float64 `yaml:"min_notional_buffer"`
	DryRun              bool    `yaml:"dry_run"`
	LiveTrading         bool    `yaml:"live_trading"`
	RequireStartConfirm bool    `yaml:"require_start_confirm"`
}

// TrendConfig holds signal engine settings.
type TrendConfig struct {
	Mode                 string  `yaml:"mode"`          // STRICT | REVERSAL
	ReversalMode         string  `yaml:"reversal_mode"` // CROSSUP | BOUNCE3
	ReversalSamples      int     `yaml:"reversal_samples"`
	MinTrendSpreadPct    float64 `yaml:"min_trend_spread_pct"`
	WindowSamples        int     `yaml:"window_samples"`
	MinSamples           int     `yaml:"min_samples"`
	BlockCooldownSeconds int     `yaml:"block_cooldown_seconds"`
	AnchorMode           string  `yaml:"anchor_mode"` // BLEND | SMA_ONLY | LAST_SELL_ONLY
	BlendSMAWeight       float64 `yaml:"blend_sma_weight"`
	MaxUnderSMAPct       float64 `yaml:"max_under_sma_pct"`
}

// RiskConfig holds the Risk Governor limits.
type RiskConfig struct {
	MaxDailyLossQuote  float64 `yaml:"max_daily_loss_quote"`
	MaxTradesPerDay    int     `yaml:"max_trades_per_day"`
	ErrorLimit         int     `yaml:"error_limit"`
	ErrorWindowSeconds int     `yaml:"error_window_seconds"`
	CooldownSeconds    int     `yaml:"cooldown_seconds"`
}

// ExecutionConfig holds order placement settings.
type ExecutionConfig struct {
	LimitOffsetPct        float64 `yaml:"limit_offset_pct"`
	OrderTimeoutSeconds   int     `yaml:"order_timeout_seconds"`
	PollIntervalSeconds   int     `yaml:"poll_interval_seconds"`
	MaxSlippagePct        float64 `yaml:"max_slippage_pct"`
	MaxRetries            int     `yaml:"max_retries"`
	WalkEnabled           bool    `yaml:"walk_enabled"`
	WalkOffsetStartPct    float64 `yaml:"walk_offset_start_pct"`
	WalkOffsetEndPct      float64 `yaml:"walk_offset_end_pct"`
	WalkMaxAttempts       int     `yaml:"walk_max_attempts"`
	WalkSliceSeconds      int     `yaml:"walk_slice_seconds"`
	WalkMaxSpreadCrossPct float64 `yaml:"walk_max_spread_cross_pct"`
}

// ReserveConfig holds the reserve watcher settings.
type ReserveConfig struct {
	Enabled              bool    `yaml:"enabled"`
	Autosale             bool    `yaml:"autosale"`
	MinBase              float64 `yaml:"min_base"`
	TrailPct             float64 `yaml:"trail_pct"`
	TakeProfitPct        float64 `yaml:"take_profit_pct"`
	MaxSellBase          float64 `yaml:"max_sell_base"`
	CheckSeconds         int     `yaml:"check_seconds"`
	BlockCooldownSeconds int     `yaml:"block_cooldown_seconds"`
}

// ExchangeConfig holds REST client settings.
type ExchangeConfig struct {
	BaseURL            string `yaml:"base_url"`
	APIKey             string `yaml:"api_key"`
	APISecret          string `yaml:"api_secret"`
	RateLimitPerSecond int    `yaml:"rate_limit_per_second"`
	TimeoutSeconds     int    `yaml:"timeout_seconds"`
}

// PersistenceConfig holds state file and trade history settings.
type PersistenceConfig struct {
	StatePath      string `yaml:"state_path"`
	HistoryEnabled bool   `yaml:"history_enabled"`
	HistoryPath    string `yaml:"history_path"`
}

// MetricsConfig holds metrics server settings.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Port    int    `yaml:"port"`
	Path    string `yaml:"path"`
}

// AlertingConfig holds alerting settings.
type AlertingConfig struct {
	Enabled  bool            `yaml:"enabled"`
	Channels []ChannelConfig `yaml:"channels"`
	Events   []string        `yaml:"events"`
}

// ChannelConfig holds a single alert channel configuration.
type ChannelConfig struct {
	Type     string `yaml:"type"` // telegram | console
	BotToken string `yaml:"bot_token"`
	ChatID   string `yaml:"chat_id"`
}

// ShutdownConfig holds shutdown settings.
type ShutdownConfig struct {
	TimeoutSec int `yaml:"timeout_sec"`
}

// Load loads configuration from a YAML file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}
	return LoadFromBytes(data)
}

// LoadFromBytes loads configuration from YAML bytes.
func LoadFromBytes(data []byte) (*Config, error) {
	// Expand environment variables
	expanded := os.ExpandEnv(string(data))

	cfg := Default()
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return cfg, nil
}

// Default returns a configuration with conservative defaults. The symbol is
// intentionally empty so validation fails unless one is supplied.
func Default() *Config {
	return &Config{
		Market: MarketConfig{
			Timezone:                  "UTC",
			LoopIntervalSeconds:       20,
			MaxSpreadPct:              0.004,
			Feed:                      "ticker",
			CandleInterval:            "1m",
			SMAWindowCandles:          20,
			MaxCandleStalenessSeconds: 180,
			FiltersRefreshSeconds:     3600,
		},
		Trading: TradingConfig{
			TradeValueQuote:     50,
			BuyDropPct:          0.01,
			TakeProfitPct:       0.012,
			StopLossPct:         0.02,
			MinFillQuote:        5,
			MinNotionalBuffer:   1.05,
			DryRun:              true,
			RequireStartConfirm: true,
		},
		Trend: TrendConfig{
			Mode:                 "REVERSAL",
			ReversalMode:         "CROSSUP",
			ReversalSamples:      3,
			MinTrendSpreadPct:    0.0005,
			WindowSamples:        60,
			MinSamples:           20,
			BlockCooldownSeconds: 60,
			AnchorMode:           "BLEND",
			BlendSMAWeight:       0.7,
			MaxUnderSMAPct:       0.03,
		},
		Risk: RiskConfig{
			MaxDailyLossQuote:  25,
			MaxTradesPerDay:    12,
			ErrorLimit:         8,
			ErrorWindowSeconds: 600,
			CooldownSeconds:    90,
		},
		Execution: ExecutionConfig{
			LimitOffsetPct:        0.0005,
			OrderTimeoutSeconds:   90,
			PollIntervalSeconds:   2,
			MaxSlippagePct:        0.004,
			MaxRetries:            3,
			WalkEnabled:           true,
			WalkOffsetStartPct:    0.0008,
			WalkOffsetEndPct:      0.0,
			WalkMaxAttempts:       4,
			WalkSliceSeconds:      20,
			WalkMaxSpreadCrossPct: 0.0002,
		},
		Reserve: ReserveConfig{
			MinBase:              0.001,
			TrailPct:             0.05,
			TakeProfitPct:        0.25,
			MaxSellBase:          0.05,
			CheckSeconds:         60,
			BlockCooldownSeconds: 300,
		},
		Exchange: ExchangeConfig{
			BaseURL:            "https://api.binance.com",
			RateLimitPerSecond: 10,
			TimeoutSeconds:     10,
		},
		Persistence: PersistenceConfig{
			StatePath: "bot_state.json",
		},
		Metrics: MetricsConfig{
			Port: 9090,
			Path: "/metrics",
		},
		Shutdown: ShutdownConfig{
			TimeoutSec: 10,
		},
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	var errs []string

	if c.Market.Symbol == "" {
		errs = append(errs, "market.symbol is required")
	}
	if c.QuoteAsset() == "" && c.Market.Symbol != "" {
		errs = append(errs, fmt.Sprintf("market.symbol '%s' has no recognized quote asset", c.Market.Symbol))
	}
	if _, err := time.LoadLocation(c.Market.Timezone); err != nil {
		errs = append(errs, fmt.Sprintf("market.timezone '%s' is invalid", c.Market.Timezone))
	}
	if c.Market.LoopIntervalSeconds <= 0 {
		errs = append(errs, "market.loop_interval_seconds must be positive")
	}
	if c.Market.Feed != "ticker" && c.Market.Feed != "candle" {
		errs = append(errs, "market.feed must be 'ticker' or 'candle'")
	}
	if c.Market.MaxSpreadPct <= 0 {
		errs = append(errs, "market.max_spread_pct must be positive")
	}

	if c.Trading.TradeValueQuote <= 0 {
		errs = append(errs, "trading.trade_value_quote must be positive")
	}
	if c.Trading.BuyDropPct <= 0 || c.Trading.BuyDropPct >= 1 {
		errs = append(errs, "trading.buy_drop_pct must be between 0 and 1")
	}
	if c.Trading.TakeProfitPct <= 0 {
		errs = append(errs, "trading.take_profit_pct must be positive")
	}
	if c.Trading.StopLossPct <= 0 {
		errs = append(errs, "trading.stop_loss_pct must be positive")
	}
	if c.Trading.MinNotionalBuffer < 1 {
		errs = append(errs, "trading.min_notional_buffer must be >= 1")
	}
	if c.Trading.LiveTrading && c.Trading.DryRun {
		errs = append(errs, "trading.live_trading and trading.dry_run are mutually exclusive")
	}

	switch c.Trend.Mode {
	case "STRICT", "REVERSAL":
	default:
		errs = append(errs, "trend.mode must be 'STRICT' or 'REVERSAL'")
	}
	switch c.Trend.ReversalMode {
	case "CROSSUP", "BOUNCE3":
	default:
		errs = append(errs, "trend.reversal_mode must be 'CROSSUP' or 'BOUNCE3'")
	}
	switch c.Trend.AnchorMode {
	case "BLEND", "SMA_ONLY", "LAST_SELL_ONLY":
	default:
		errs = append(errs, "trend.anchor_mode must be 'BLEND', 'SMA_ONLY' or 'LAST_SELL_ONLY'")
	}
	if c.Trend.BlendSMAWeight < 0 || c.Trend.BlendSMAWeight > 1 {
		errs = append(errs, "trend.blend_sma_weight must be between 0 and 1")
	}
	if c.Trend.WindowSamples <= 1 {
		errs = append(errs, "trend.window_samples must be > 1")
	}
	if c.Trend.MinSamples <= 0 || c.Trend.MinSamples > c.Trend.WindowSamples {
		errs = append(errs, "trend.min_samples must be positive and <= trend.window_samples")
	}
	if c.Trend.ReversalSamples < 2 {
		errs = append(errs, "trend.reversal_samples must be >= 2")
	}

	if c.Risk.MaxDailyLossQuote <= 0 {
		errs = append(errs, "risk.max_daily_loss_quote must be positive")
	}
	if c.Risk.MaxTradesPerDay <= 0 {
		errs = append(errs, "risk.max_trades_per_day must be positive")
	}
	if c.Risk.ErrorLimit <= 0 {
		errs = append(errs, "risk.error_limit must be positive")
	}
	if c.Risk.ErrorWindowSeconds <= 0 {
		errs = append(errs, "risk.error_window_seconds must be positive")
	}

	if c.Execution.OrderTimeoutSeconds <= 0 {
		errs = append(errs, "execution.order_timeout_seconds must be positive")
	}
	if c.Execution.PollIntervalSeconds <= 0 {
		c.Execution.PollIntervalSeconds = 2
	}
	if c.Execution.WalkEnabled {
		if c.Execution.WalkMaxAttempts < 2 {
			errs = append(errs, "execution.walk_max_attempts must be >= 2 when walking is enabled")
		}
		if c.Execution.WalkSliceSeconds <= 0 {
			errs = append(errs, "execution.walk_slice_seconds must be positive when walking is enabled")
		} else if c.Execution.WalkMaxAttempts*c.Execution.WalkSliceSeconds > c.Execution.OrderTimeoutSeconds {
			errs = append(errs, "execution.walk_max_attempts * execution.walk_slice_seconds must not exceed execution.order_timeout_seconds")
		}
	}

	if c.Reserve.Enabled {
		if c.Reserve.TrailPct <= 0 || c.Reserve.TrailPct >= 1 {
			errs = append(errs, "reserve.trail_pct must be between 0 and 1")
		}
		if c.Reserve.CheckSeconds <= 0 {
			errs = append(errs, "reserve.check_seconds must be positive")
		}
	}

	if c.Trading.LiveTrading && c.Exchange.APIKey == "" {
		errs = append(errs, "exchange.api_key is required for live trading")
	}
	if c.Trading.LiveTrading && c.Exchange.APISecret == "" {
		errs = append(errs, "exchange.api_secret is required for live trading")
	}

	if c.Persistence.StatePath == "" {
		errs = append(errs, "persistence.state_path is required")
	}
	if c.Persistence.HistoryEnabled && c.Persistence.HistoryPath == "" {
		errs = append(errs, "persistence.history_path is required when history is enabled")
	}

	if len(errs) > 0 {
		return fmt.Errorf("%w: %s", types.ErrInvalidConfig, strings.Join(errs, "; "))
	}

	return nil
}

// knownQuoteAssets are checked as symbol suffixes, longest first.
var knownQuoteAssets = []string{
	"FDUSD", "USDT", "USDC", "TUSD", "BUSD", "EUR", "GBP", "TRY", "BTC", "ETH", "BNB", "USD",
}

// BaseAsset returns the base asset derived from the symbol.
func (c *Config) BaseAsset() string {
	q := c.QuoteAsset()
	if q == "" {
		return ""
	}
	return strings.TrimSuffix(c.Market.Symbol, q)
}

// QuoteAsset returns the quote asset derived from the symbol.
func (c *Config) QuoteAsset() string {
	for _, q := range knownQuoteAssets {
		if strings.HasSuffix(c.Market.Symbol, q) && len(c.Market.Symbol) > len(q) {
			return q
		}
	}
	return ""
}

// Location returns the configured timezone. Validate guarantees it parses.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Market.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// LoopInterval returns the tick interval.
func (c *Config) LoopInterval() time.Duration {
	return time.Duration(c.Market.LoopIntervalSeconds) * time.Second
}

// OrderTimeout returns the total order fill timeout.
func (c *Config) OrderTimeout() time.Duration {
	return time.Duration(c.Execution.OrderTimeoutSeconds) * time.Second
}

// PollInterval returns the order status poll interval.
func (c *Config) PollInterval() time.Duration {
	return time.Duration(c.Execution.PollIntervalSeconds) * time.Second
}

// ShutdownTimeout returns the shutdown timeout duration.
func (c *Config) ShutdownTimeout() time.Duration {
	return time.Duration(c.Shutdown.TimeoutSec) * time.Second
}

// IsAlertEventEnabled checks if an alert event type is enabled.
func (c *Config) IsAlertEventEnabled(event string) bool {
	if !c.Alerting.Enabled {
		return false
	}
	// If no events specified, all are enabled
	if len(c.Alerting.Events) == 0 {
		return true
	}
	for _, e := range c.Alerting.Events {
		if e == event || e == "all" {
			return true
		}
	}
	return false
}
