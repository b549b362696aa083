package config

import (
	"os"
	"strconv"
	"strings"
)

// FromEnv builds a configuration entirely from environment variables,
// starting from Default(). Unset keys keep their defaults.
func FromEnv() (*Config, error) {
	c := Default()

	c.Market.Symbol = getEnv("SYMBOL", c.Market.Symbol)
	c.Market.Timezone = getEnv("TIMEZONE", c.Market.Timezone)
	c.Market.LoopIntervalSeconds = getEnvInt("LOOP_INTERVAL_SECONDS", c.Market.LoopIntervalSeconds)
	c.Market.MaxSpreadPct = getEnvFloat("MAX_SPREAD_PCT", c.Market.MaxSpreadPct)
	c.Market.Feed = getEnv("FEED", c.Market.Feed)
	c.Market.CandleInterval = getEnv("CANDLE_INTERVAL", c.Market.CandleInterval)
	c.Market.SMAWindowCandles = getEnvInt("SMA_WINDOW_CANDLES", c.Market.SMAWindowCandles)
	c.Market.MaxCandleStalenessSeconds = getEnvInt("MAX_CANDLE_STALENESS_SECONDS", c.Market.MaxCandleStalenessSeconds)
	c.Market.FiltersRefreshSeconds = getEnvInt("FILTERS_REFRESH_SECONDS", c.Market.FiltersRefreshSeconds)

	c.Trading.TradeValueQuote = getEnvFloat("TRADE_VALUE_QUOTE", c.Trading.TradeValueQuote)
	c.Trading.BuyDropPct = getEnvFloat("BUY_DROP_PCT", c.Trading.BuyDropPct)
	c.Trading.TakeProfitPct = getEnvFloat("TAKE_PROFIT_PCT", c.Trading.TakeProfitPct)
	c.Trading.StopLossPct = getEnvFloat("STOP_LOSS_PCT", c.Trading.StopLossPct)
	c.Trading.MinFillQuote = getEnvFloat("MIN_FILL_QUOTE", c.Trading.MinFillQuote)
	c.Trading.MinNotionalBuffer = getEnvFloat("MIN_NOTIONAL_BUFFER", c.Trading.MinNotionalBuffer)
	c.Trading.DryRun = getEnvBool("DRY_RUN", c.Trading.DryRun)
	c.Trading.LiveTrading = getEnvBool("LIVE_TRADING", c.Trading.LiveTrading)
	c.Trading.RequireStartConfirm = getEnvBool("REQUIRE_START_CONFIRM", c.Trading.RequireStartConfirm)
	if c.Trading.LiveTrading {
		c.Trading.DryRun = false
	}

	c.Trend.Mode = getEnv("TREND_MODE", c.Trend.Mode)
	c.Trend.ReversalMode = getEnv("REVERSAL_MODE", c.Trend.ReversalMode)
	c.Trend.ReversalSamples = getEnvInt("REVERSAL_SAMPLES", c.Trend.ReversalSamples)
	c.Trend.MinTrendSpreadPct = getEnvFloat("MIN_TREND_SPREAD_PCT", c.Trend.MinTrendSpreadPct)
	c.Trend.WindowSamples = getEnvInt("TREND_WINDOW_SAMPLES", c.Trend.WindowSamples)
	c.Trend.MinSamples = getEnvInt("TREND_MIN_SAMPLES", c.Trend.MinSamples)
	c.Trend.BlockCooldownSeconds = getEnvInt("TREND_BLOCK_COOLDOWN_SECONDS", c.Trend.BlockCooldownSeconds)
	c.Trend.AnchorMode = getEnv("DIP_ANCHOR_MODE", c.Trend.AnchorMode)
	c.Trend.BlendSMAWeight = getEnvFloat("DIP_BLEND_SMA_WEIGHT", c.Trend.BlendSMAWeight)
	c.Trend.MaxUnderSMAPct = getEnvFloat("MAX_UNDER_SMA_PCT", c.Trend.MaxUnderSMAPct)

	c.Risk.MaxDailyLossQuote = getEnvFloat("MAX_DAILY_LOSS_QUOTE", c.Risk.MaxDailyLossQuote)
	c.Risk.MaxTradesPerDay = getEnvInt("MAX_TRADES_PER_DAY", c.Risk.MaxTradesPerDay)
	c.Risk.ErrorLimit = getEnvInt("ERROR_LIMIT", c.Risk.ErrorLimit)
	c.Risk.ErrorWindowSeconds = getEnvInt("ERROR_WINDOW_SECONDS", c.Risk.ErrorWindowSeconds)
	c.Risk.CooldownSeconds = getEnvInt("COOLDOWN_SECONDS", c.Risk.CooldownSeconds)

	c.Execution.LimitOffsetPct = getEnvFloat("LIMIT_OFFSET_PCT", c.Execution.LimitOffsetPct)
	c.Execution.OrderTimeoutSeconds = getEnvInt("ORDER_TIMEOUT_SECONDS", c.Execution.OrderTimeoutSeconds)
	c.Execution.MaxSlippagePct = getEnvFloat("MAX_SLIPPAGE_PCT", c.Execution.MaxSlippagePct)
	c.Execution.WalkEnabled = getEnvBool("WALK_ENABLED", c.Execution.WalkEnabled)
	c.Execution.WalkOffsetStartPct = getEnvFloat("WALK_OFFSET_START_PCT", c.Execution.WalkOffsetStartPct)
	c.Execution.WalkOffsetEndPct = getEnvFloat("WALK_OFFSET_END_PCT", c.Execution.WalkOffsetEndPct)
	c.Execution.WalkMaxAttempts = getEnvInt("WALK_MAX_ATTEMPTS", c.Execution.WalkMaxAttempts)
	c.Execution.WalkSliceSeconds = getEnvInt("WALK_SLICE_SECONDS", c.Execution.WalkSliceSeconds)
	c.Execution.WalkMaxSpreadCrossPct = getEnvFloat("WALK_MAX_SPREAD_CROSS_PCT", c.Execution.WalkMaxSpreadCrossPct)

	c.Reserve.Enabled = getEnvBool("ENABLE_RESERVE_WATCHER", c.Reserve.Enabled)
	c.Reserve.Autosale = getEnvBool("ENABLE_RESERVE_AUTOSALE", c.Reserve.Autosale)
	c.Reserve.MinBase = getEnvFloat("RESERVE_MIN_ETH", c.Reserve.MinBase)
	c.Reserve.TrailPct = getEnvFloat("RESERVE_TRAIL_PCT", c.Reserve.TrailPct)
	c.Reserve.TakeProfitPct = getEnvFloat("RESERVE_TP_PCT", c.Reserve.TakeProfitPct)
	c.Reserve.MaxSellBase = getEnvFloat("RESERVE_MAX_SELL_ETH", c.Reserve.MaxSellBase)
	c.Reserve.CheckSeconds = getEnvInt("RESERVE_CHECK_SECONDS", c.Reserve.CheckSeconds)
	c.Reserve.BlockCooldownSeconds = getEnvInt("RESERVE_BLOCK_COOLDOWN_SECONDS", c.Reserve.BlockCooldownSeconds)

	c.Exchange.BaseURL = getEnv("EXCHANGE_BASE_URL", c.Exchange.BaseURL)
	c.Exchange.APIKey = getEnv("EXCHANGE_API_KEY", c.Exchange.APIKey)
	c.Exchange.APISecret = getEnv("EXCHANGE_API_SECRET", c.Exchange.APISecret)
	c.Exchange.RateLimitPerSecond = getEnvInt("EXCHANGE_RATE_LIMIT_PER_SECOND", c.Exchange.RateLimitPerSecond)

	c.Persistence.StatePath = getEnv("STATE_FILE", c.Persistence.StatePath)
	c.Persistence.HistoryEnabled = getEnvBool("HISTORY_ENABLED", c.Persistence.HistoryEnabled)
	c.Persistence.HistoryPath = getEnv("HISTORY_FILE", c.Persistence.HistoryPath)

	c.Metrics.Enabled = getEnvBool("METRICS_ENABLED", c.Metrics.Enabled)
	c.Metrics.Port = getEnvInt("METRICS_PORT", c.Metrics.Port)

	c.Alerting.Enabled = getEnvBool("ALERTING_ENABLED", c.Alerting.Enabled)
	if token := getEnv("TELEGRAM_BOT_TOKEN", ""); token != "" {
		c.Alerting.Channels = append(c.Alerting.Channels, ChannelConfig{
			Type:     "telegram",
			BotToken: token,
			ChatID:   getEnv("TELEGRAM_CHAT_ID", ""),
		})
	}

	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

func getEnv(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func getEnvFloat(key string, def float64) float64 {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return def
	}
	return f
}

func getEnvInt(key string, def int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return i
}

func getEnvBool(key string, def bool) bool {
	switch strings.ToLower(strings.TrimSpace(os.Getenv(key))) {
	case "1", "true", "y", "yes":
		return true
	case "0", "false", "n", "no":
		return false
	default:
		return def
	}
}
