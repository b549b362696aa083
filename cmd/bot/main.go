// Package main is the entry point for the spot trading bot.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/manifoldco/promptui"
	"github.com/shopspring/decimal"
	"github.com/stoilsteve-hub/MyAIBotSteve/internal/alerting"
	"github.com/stoilsteve-hub/MyAIBotSteve/internal/backtest"
	"github.com/stoilsteve-hub/MyAIBotSteve/internal/config"
	"github.com/stoilsteve-hub/MyAIBotSteve/internal/engine"
	"github.com/stoilsteve-hub/MyAIBotSteve/internal/exchange"
	"github.com/stoilsteve-hub/MyAIBotSteve/internal/exchange/binance"
	"github.com/stoilsteve-hub/MyAIBotSteve/internal/exchange/paper"
	"github.com/stoilsteve-hub/MyAIBotSteve/internal/execution"
	"github.com/stoilsteve-hub/MyAIBotSteve/internal/metrics"
	"github.com/stoilsteve-hub/MyAIBotSteve/internal/observer"
	"github.com/stoilsteve-hub/MyAIBotSteve/internal/persistence"
	"github.com/stoilsteve-hub/MyAIBotSteve/internal/reserve"
	"github.com/stoilsteve-hub/MyAIBotSteve/internal/risk"
	"github.com/stoilsteve-hub/MyAIBotSteve/internal/strategy"
	"github.com/stoilsteve-hub/MyAIBotSteve/internal/types"
)

// Version information (set by build flags).
var (
	Version   = "1.0.0"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "version", "-v", "--version":
		cmdVersion()
	case "help", "-h", "--help":
		printUsage()
	case "run":
		cmdRun(os.Args[2:])
	case "backtest":
		cmdBacktest(os.Args[2:])
	case "validate":
		cmdValidate(os.Args[2:])
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println(`Spot Trading Bot - SMA Dip-Buyer with a Daily Kill Switch

Usage:
  bot <command> [options]

Commands:
  run        Start the trading bot (dry-run or live)
  backtest   Replay historical candles through the trading pipeline
  validate   Validate configuration
  version    Show version information
  help       Show this help message

Examples:
  bot run --config config.yaml
  bot run                            (configuration from environment)
  bot backtest --config config.yaml --data data/ETHFDUSD_1m.csv
  bot validate --config config.yaml

Use "bot <command> --help" for more information about a command.`)
}

func cmdVersion() {
	fmt.Printf("bot version %s\n", Version)
	fmt.Printf("  Build time: %s\n", BuildTime)
	fmt.Printf("  Git commit: %s\n", GitCommit)
}

// loadConfig reads the YAML file when a path is given, otherwise builds the
// configuration from environment variables.
func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		return config.Load(path)
	}
	return config.FromEnv()
}

func cmdValidate(args []string) {
	fs := flag.NewFlagSet("validate", flag.ExitOnError)
	configPath := fs.String("config", "", "Path to configuration file (empty: environment)")
	_ = fs.Parse(args)

	cfg, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Configuration error: %v\n", err)
		os.Exit(1)
	}

	mode := "DRY-RUN"
	if cfg.Trading.LiveTrading {
		mode = "LIVE"
	}

	fmt.Println("Configuration is valid!")
	fmt.Printf("  Symbol:          %s (%s/%s)\n", cfg.Market.Symbol, cfg.BaseAsset(), cfg.QuoteAsset())
	fmt.Printf("  Mode:            %s\n", mode)
	fmt.Printf("  Feed:            %s\n", cfg.Market.Feed)
	fmt.Printf("  Trade value:     %.2f %s\n", cfg.Trading.TradeValueQuote, cfg.QuoteAsset())
	fmt.Printf("  Take profit:     %.2f%%\n", cfg.Trading.TakeProfitPct*100)
	fmt.Printf("  Stop loss:       %.2f%%\n", cfg.Trading.StopLossPct*100)
	fmt.Printf("  Daily loss cap:  %.2f %s\n", cfg.Risk.MaxDailyLossQuote, cfg.QuoteAsset())
	fmt.Printf("  Trades per day:  %d\n", cfg.Risk.MaxTradesPerDay)
}

// buildTradingConfigs maps the loaded configuration onto the component
// config structs shared by live runs and replays.
func buildTradingConfigs(cfg *config.Config) (engine.Config, strategy.Config, risk.Config, execution.Config, error) {
	trendMode, err := strategy.ParseTrendMode(cfg.Trend.Mode)
	if err != nil {
		return engine.Config{}, strategy.Config{}, risk.Config{}, execution.Config{}, err
	}
	reversalMode, err := strategy.ParseReversalMode(cfg.Trend.ReversalMode)
	if err != nil {
		return engine.Config{}, strategy.Config{}, risk.Config{}, execution.Config{}, err
	}
	anchorMode, err := strategy.ParseAnchorMode(cfg.Trend.AnchorMode)
	if err != nil {
		return engine.Config{}, strategy.Config{}, risk.Config{}, execution.Config{}, err
	}

	engineCfg := engine.Config{
		Symbol:          cfg.Market.Symbol,
		BaseAsset:       cfg.BaseAsset(),
		QuoteAsset:      cfg.QuoteAsset(),
		TradeValueQuote: decimal.NewFromFloat(cfg.Trading.TradeValueQuote),
		TakeProfitPct:   decimal.NewFromFloat(cfg.Trading.TakeProfitPct),
		StopLossPct:     decimal.NewFromFloat(cfg.Trading.StopLossPct),
		MinFillQuote:    decimal.NewFromFloat(cfg.Trading.MinFillQuote),
		MaxSpreadPct:    decimal.NewFromFloat(cfg.Market.MaxSpreadPct),
		DryRun:          cfg.Trading.DryRun,
		FiltersRefresh:  time.Duration(cfg.Market.FiltersRefreshSeconds) * time.Second,
	}

	stratCfg := strategy.Config{
		WindowSamples:     cfg.Trend.WindowSamples,
		MinSamples:        cfg.Trend.MinSamples,
		Mode:              trendMode,
		ReversalMode:      reversalMode,
		ReversalSamples:   cfg.Trend.ReversalSamples,
		MinTrendSpreadPct: decimal.NewFromFloat(cfg.Trend.MinTrendSpreadPct),
		BlockCooldown:     time.Duration(cfg.Trend.BlockCooldownSeconds) * time.Second,
		AnchorMode:        anchorMode,
		BlendSMAWeight:    decimal.NewFromFloat(cfg.Trend.BlendSMAWeight),
		BuyDropPct:        decimal.NewFromFloat(cfg.Trading.BuyDropPct),
		MaxUnderSMAPct:    decimal.NewFromFloat(cfg.Trend.MaxUnderSMAPct),
	}

	riskCfg := risk.Config{
		MaxDailyLossQuote: decimal.NewFromFloat(cfg.Risk.MaxDailyLossQuote),
		MaxTradesPerDay:   cfg.Risk.MaxTradesPerDay,
		ErrorLimit:        cfg.Risk.ErrorLimit,
		ErrorWindow:       time.Duration(cfg.Risk.ErrorWindowSeconds) * time.Second,
		Cooldown:          time.Duration(cfg.Risk.CooldownSeconds) * time.Second,
		Location:          cfg.Location(),
	}

	walkCfg := execution.Config{
		LimitOffsetPct:        decimal.NewFromFloat(cfg.Execution.LimitOffsetPct),
		OrderTimeout:          cfg.OrderTimeout(),
		PollInterval:          cfg.PollInterval(),
		MaxSlippagePct:        decimal.NewFromFloat(cfg.Execution.MaxSlippagePct),
		WalkEnabled:           cfg.Execution.WalkEnabled,
		WalkOffsetStartPct:    decimal.NewFromFloat(cfg.Execution.WalkOffsetStartPct),
		WalkOffsetEndPct:      decimal.NewFromFloat(cfg.Execution.WalkOffsetEndPct),
		WalkMaxAttempts:       cfg.Execution.WalkMaxAttempts,
		WalkSlice:             time.Duration(cfg.Execution.WalkSliceSeconds) * time.Second,
		WalkMaxSpreadCrossPct: decimal.NewFromFloat(cfg.Execution.WalkMaxSpreadCrossPct),
	}

	return engineCfg, stratCfg, riskCfg, walkCfg, nil
}

func buildAlerter(cfg *config.Config, logger *slog.Logger) alerting.Alerter {
	console := alerting.NewConsoleAlerter(logger)
	if !cfg.Alerting.Enabled {
		return console
	}

	multi := alerting.NewMultiAlerter(logger, console)
	for _, ch := range cfg.Alerting.Channels {
		switch ch.Type {
		case "telegram":
			multi.AddAlerter(alerting.NewTelegramAlerter(alerting.TelegramConfig{
				BotToken: ch.BotToken,
				ChatID:   ch.ChatID,
			}))
		case "console", "":
			// already wired
		default:
			logger.Warn("unknown alert channel type", "type", ch.Type)
		}
	}
	return multi
}

// promptConfirmer asks the operator to retype a keyword before an action
// that moves real funds.
type promptConfirmer struct{}

func (promptConfirmer) Confirm(ctx context.Context, prompt, keyword string) (bool, error) {
	p := promptui.Prompt{
		Label: fmt.Sprintf("%s (type %q to proceed)", prompt, keyword),
	}
	input, err := p.Run()
	if err != nil {
		if errors.Is(err, promptui.ErrInterrupt) || errors.Is(err, promptui.ErrAbort) || errors.Is(err, promptui.ErrEOF) {
			return false, nil
		}
		return false, fmt.Errorf("prompt: %w", err)
	}
	return strings.TrimSpace(input) == keyword, nil
}

var _ engine.Confirmer = promptConfirmer{}

// paperSyncFeed forwards samples from a live market feed into the simulated
// exchange before delivery, so dry-run orders fill against the same prices
// the engine is deciding on.
type paperSyncFeed struct {
	observer.Feed
	exch *paper.Exchange
}

func (f *paperSyncFeed) Subscribe(ctx context.Context, symbol string) (<-chan types.Sample, error) {
	in, err := f.Feed.Subscribe(ctx, symbol)
	if err != nil {
		return nil, err
	}
	out := make(chan types.Sample)
	go func() {
		defer close(out)
		for s := range in {
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

// botStatus is the /status endpoint payload.
type botStatus struct {
	Symbol     string `json:"symbol"`
	Mode       string `json:"mode"`
	Position   string `json:"position"`
	EntryPrice string `json:"entry_price"`
	HeldQty    string `json:"held_qty"`
	DailyPnL   string `json:"daily_pnl"`
	TradeCount int    `json:"trade_count"`
	Halted     bool   `json:"halted"`
	HaltReason string `json:"halt_reason,omitempty"`
	LastPrice  string `json:"last_price"`
	Uptime     string `json:"uptime"`
}

func cmdRun(args []string) {
	fs := flag.NewFlagSet("run", flag.ExitOnError)
	configPath := fs.String("config", "", "Path to configuration file (empty: environment)")
	paperQuote := fs.String("paper-quote", "1000", "Simulated quote balance for dry runs")
	paperBase := fs.String("paper-base", "0", "Simulated base balance for dry runs")
	verbose := fs.Bool("verbose", false, "Debug logging")
	_ = fs.Parse(args)

	logLevel := slog.LevelInfo
	if *verbose {
		logLevel = slog.LevelDebug
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel}))
	slog.SetDefault(logger)

	cfg, err := loadConfig(*configPath)
	if err != nil {
		logger.Error("failed to load config", "err", err)
		os.Exit(1)
	}

	engineCfg, stratCfg, riskCfg, walkCfg, err := buildTradingConfigs(cfg)
	if err != nil {
		logger.Error("invalid trading config", "err", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	live := cfg.Trading.LiveTrading
	mode := "dry-run"
	if live {
		mode = "live"
	}
	logger.Info("bot starting",
		"version", Version,
		"mode", mode,
		"symbol", cfg.Market.Symbol,
		"feed", cfg.Market.Feed,
	)

	if live && cfg.Trading.RequireStartConfirm {
		ok, err := promptConfirmer{}.Confirm(ctx,
			fmt.Sprintf("Live trading will place real orders on %s", cfg.Market.Symbol),
			"I UNDERSTAND")
		if err != nil {
			logger.Error("start confirmation failed", "err", err)
			os.Exit(1)
		}
		if !ok {
			logger.Info("start not confirmed, exiting")
			return
		}
	}

	// The market source is always the real exchange: public endpoints need
	// no API key. Dry runs route orders to a simulated exchange fed with
	// the same samples.
	marketSrc := binance.NewClient(binance.Config{
		BaseURL:              cfg.Exchange.BaseURL,
		APIKey:               cfg.Exchange.APIKey,
		APISecret:            cfg.Exchange.APISecret,
		RequestTimeout:       time.Duration(cfg.Exchange.TimeoutSeconds) * time.Second,
		RecvWindowMs:         5000,
		MaxRequestsPerSecond: cfg.Exchange.RateLimitPerSecond,
		MaxRetries:           cfg.Execution.MaxRetries,
		RetryBaseInterval:    time.Second,
	}, logger)
	defer func() { _ = marketSrc.Close() }()

	var exch exchange.Exchange = marketSrc
	var sim *paper.Exchange
	if !live {
		paperCfg := paper.DefaultConfig()
		sim = paper.New(paperCfg, logger)
		sim.SetBalance(cfg.QuoteAsset(), parseDecimalFlag("paper-quote", *paperQuote))
		sim.SetBalance(cfg.BaseAsset(), parseDecimalFlag("paper-base", *paperBase))
		exch = sim
	}

	sizer := risk.NewOrderSizer(types.SymbolFilters{}, decimal.NewFromFloat(cfg.Trading.MinNotionalBuffer))
	walker := execution.NewWalker(walkCfg, exch, sizer, logger)
	governor := risk.NewGovernor(riskCfg, logger)
	signalEngine := strategy.NewEngine(stratCfg)
	state := persistence.NewStateFile(cfg.Persistence.StatePath)
	alerter := buildAlerter(cfg, logger)
	recorder := metrics.NewRecorder()

	var history persistence.HistoryRepository = persistence.NopHistory{}
	if cfg.Persistence.HistoryEnabled {
		sqlite, err := persistence.NewSQLiteHistory(cfg.Persistence.HistoryPath)
		if err != nil {
			logger.Error("failed to open trade history", "err", err)
			os.Exit(1)
		}
		defer func() { _ = sqlite.Close() }()
		history = sqlite
		walker.SetAudit(sqlite)
	}

	var watcher *reserve.Watcher
	if cfg.Reserve.Enabled {
		watcher = reserve.NewWatcher(reserve.Config{
			Enabled:       true,
			Autosale:      cfg.Reserve.Autosale,
			Symbol:        cfg.Market.Symbol,
			BaseAsset:     cfg.BaseAsset(),
			MinBase:       decimal.NewFromFloat(cfg.Reserve.MinBase),
			TrailPct:      decimal.NewFromFloat(cfg.Reserve.TrailPct),
			TakeProfitPct: decimal.NewFromFloat(cfg.Reserve.TakeProfitPct),
			MaxSellBase:   decimal.NewFromFloat(cfg.Reserve.MaxSellBase),
			CheckInterval: time.Duration(cfg.Reserve.CheckSeconds) * time.Second,
			BlockCooldown: time.Duration(cfg.Reserve.BlockCooldownSeconds) * time.Second,
		}, exch, walker, sizer, logger)
	}

	var confirmer engine.Confirmer = promptConfirmer{}
	if !live {
		confirmer = engine.AutoConfirmer{Allow: true}
	}

	eng := engine.New(engineCfg, engine.Deps{
		Exchange:  exch,
		Executor:  walker,
		Signal:    signalEngine,
		Governor:  governor,
		Sizer:     sizer,
		Watcher:   watcher,
		State:     state,
		History:   history,
		Alerter:   alerter,
		Recorder:  recorder,
		Confirmer: confirmer,
		Logger:    logger,
	})

	if err := eng.Restore(); err != nil {
		logger.Error("failed to restore state", "err", err, "path", state.Path())
		os.Exit(1)
	}

	// Seed the simulated book before the self test probes it.
	if sim != nil {
		sample, err := marketSrc.BookTicker(ctx, cfg.Market.Symbol)
		if err != nil {
			logger.Error("failed to fetch initial market data", "err", err)
			os.Exit(1)
		}
		sim.SetMarket(sample)
	}

	if err := eng.SelfTest(ctx); err != nil {
		logger.Error("exchange self test failed", "err", err)
		os.Exit(1)
	}

	var server *metrics.Server
	if cfg.Metrics.Enabled {
		serverCfg := metrics.DefaultServerConfig()
		serverCfg.Port = cfg.Metrics.Port
		if cfg.Metrics.Path != "" {
			serverCfg.MetricsPath = cfg.Metrics.Path
		}
		server = metrics.NewServer(serverCfg, logger)
		startTime := time.Now()
		server.SetStatusFunc(func() any {
			pos := eng.Position()
			halted, reason := governor.Halted()
			return botStatus{
				Symbol:     cfg.Market.Symbol,
				Mode:       mode,
				Position:   pos.Status.String(),
				EntryPrice: pos.EntryPrice.String(),
				HeldQty:    pos.HeldQty.String(),
				DailyPnL:   governor.DailyPnL().String(),
				TradeCount: governor.TradeCount(),
				Halted:     halted,
				HaltReason: reason,
				LastPrice:  eng.LastPrice().String(),
				Uptime:     time.Since(startTime).Truncate(time.Second).String(),
			}
		})
		if err := server.Start(); err != nil {
			logger.Error("failed to start metrics server", "err", err)
			os.Exit(1)
		}
	}

	onFeedError := func(err error) {
		logger.Warn("feed error", "err", err)
		recorder.RecordError("feed")
	}

	var feed observer.Feed
	switch cfg.Market.Feed {
	case "candle":
		feed = observer.NewCandleFeed(marketSrc, cfg.Market.CandleInterval,
			cfg.LoopInterval(),
			time.Duration(cfg.Market.MaxCandleStalenessSeconds)*time.Second,
			onFeedError, logger)
	default:
		feed = observer.NewTickerFeed(marketSrc, cfg.LoopInterval(), onFeedError, logger)
	}
	if sim != nil {
		feed = &paperSyncFeed{Feed: feed, exch: sim}
	}
	defer func() { _ = feed.Close() }()

	runErr := eng.Run(ctx, feed)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout())
	defer cancel()
	if server != nil {
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Warn("metrics server shutdown", "err", err)
		}
	}

	if runErr != nil {
		logger.Error("trading loop stopped", "err", runErr)
		os.Exit(1)
	}
	logger.Info("bot shutdown complete")
}

func cmdBacktest(args []string) {
	fs := flag.NewFlagSet("backtest", flag.ExitOnError)
	configPath := fs.String("config", "", "Path to configuration file (empty: environment)")
	dataPath := fs.String("data", "", "Path to CSV candle file (required)")
	initialQuote := fs.String("initial-quote", "1000", "Starting quote balance")
	initialBase := fs.String("initial-base", "1", "Starting base balance")
	fromStr := fs.String("from", "", "Replay window start (YYYY-MM-DD or RFC3339)")
	toStr := fs.String("to", "", "Replay window end (YYYY-MM-DD or RFC3339)")
	verbose := fs.Bool("verbose", false, "Debug logging")
	_ = fs.Parse(args)

	if *dataPath == "" {
		fmt.Fprintln(os.Stderr, "Error: --data is required")
		fs.Usage()
		os.Exit(1)
	}

	logLevel := slog.LevelWarn
	if *verbose {
		logLevel = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel}))
	slog.SetDefault(logger)

	cfg, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Configuration error: %v\n", err)
		os.Exit(1)
	}

	engineCfg, stratCfg, riskCfg, walkCfg, err := buildTradingConfigs(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Invalid trading config: %v\n", err)
		os.Exit(1)
	}

	btCfg := backtest.Config{
		Symbol:       cfg.Market.Symbol,
		BaseAsset:    cfg.BaseAsset(),
		QuoteAsset:   cfg.QuoteAsset(),
		InitialQuote: parseDecimalFlag("initial-quote", *initialQuote),
		InitialBase:  parseDecimalFlag("initial-base", *initialBase),
	}
	if btCfg.StartTime, err = parseTimeFlag(*fromStr); err != nil {
		fmt.Fprintf(os.Stderr, "Invalid --from: %v\n", err)
		os.Exit(1)
	}
	if btCfg.EndTime, err = parseTimeFlag(*toStr); err != nil {
		fmt.Fprintf(os.Stderr, "Invalid --to: %v\n", err)
		os.Exit(1)
	}

	runner := backtest.NewRunner(btCfg, engineCfg, stratCfg, riskCfg, walkCfg, logger)
	feed := observer.NewReplayFeed(*dataPath)

	fmt.Printf("Replaying %s over %s...\n", *dataPath, cfg.Market.Symbol)

	result, err := runner.Run(context.Background(), feed)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Backtest failed: %v\n", err)
		os.Exit(1)
	}

	printBacktestResults(result)
	printMetrics(backtest.NewMetrics(result, decimal.Zero))
}

func parseDecimalFlag(name, s string) decimal.Decimal {
	v, err := decimal.NewFromString(s)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Invalid --%s %q: %v\n", name, s, err)
		os.Exit(1)
	}
	return v
}

func parseTimeFlag(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse("2006-01-02", s); err == nil {
		return t, nil
	}
	return time.Parse(time.RFC3339, s)
}

func printBacktestResults(result *backtest.Result) {
	fmt.Println("\n=== BACKTEST RESULTS ===")
	fmt.Printf("Starting Quote:   %.2f\n", result.StartQuote.InexactFloat64())
	fmt.Printf("Ending Quote:     %.2f\n", result.EndQuote.InexactFloat64())
	fmt.Printf("Total Return:     %.2f%%\n", result.TotalReturn.Mul(decimal.NewFromInt(100)).InexactFloat64())
	fmt.Printf("Max Drawdown:     %.2f%%\n", result.MaxDrawdown.Mul(decimal.NewFromInt(100)).InexactFloat64())
	fmt.Println()
	fmt.Printf("Total Trades:     %d\n", result.TotalTrades)
	fmt.Printf("Winning Trades:   %d\n", result.WinningTrades)
	fmt.Printf("Losing Trades:    %d\n", result.LosingTrades)
	fmt.Printf("Win Rate:         %.2f%%\n", result.WinRate.Mul(decimal.NewFromInt(100)).InexactFloat64())
	fmt.Printf("Profit Factor:    %.2f\n", result.ProfitFactor.InexactFloat64())
}

func printMetrics(m *backtest.Metrics) {
	fmt.Println("\n=== PERFORMANCE METRICS ===")
	fmt.Printf("Sharpe Ratio:     %.2f\n", m.SharpeRatio().InexactFloat64())
	fmt.Printf("Sortino Ratio:    %.2f\n", m.SortinoRatio().InexactFloat64())
	fmt.Printf("Expectancy:       %.2f\n", m.Expectancy().InexactFloat64())
	fmt.Printf("Avg Win:          %.2f\n", m.AverageWin().InexactFloat64())
	fmt.Printf("Avg Loss:         %.2f\n", m.AverageLoss().InexactFloat64())
}
