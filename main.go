package main

import (
	"context"
	"log" // standard log only for fatal errors before the logger is ready

	"golang.org/x/time/rate"

	"algoTradeBot/config"
	"algoTradeBot/internal/adapters/brokerhttp"
	"algoTradeBot/internal/adapters/feed"
	"algoTradeBot/internal/adapters/logger"
	"algoTradeBot/internal/adapters/sqlite"
	"algoTradeBot/internal/app"
	"algoTradeBot/internal/domain"
	"algoTradeBot/internal/execution"
	"algoTradeBot/internal/market"
	"algoTradeBot/internal/ports"
	"algoTradeBot/internal/risk"
	"algoTradeBot/internal/strategy/strategies"
	"algoTradeBot/internal/telemetry"
)

func main() {
	ctx := context.Background()

	// 1. Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("FATAL: failed to load configuration: %v", err)
	}

	// 2. Logger
	appLogger := logger.New(logger.Config{
		Level:      cfg.LogLevel,
		Console:    cfg.LogConsole,
		FilePath:   cfg.LogFilePath,
		MaxSizeMB:  50,
		MaxBackups: 5,
		MaxAgeDays: 28,
	})
	appLogger.Info(ctx, "logger initialized", map[string]interface{}{"level": cfg.LogLevel})

	// 3. Trade journal
	journal, err := sqlite.NewJournal(sqlite.Config{
		DBPath: cfg.DBPath,
		Logger: appLogger,
	})
	if err != nil {
		appLogger.Error(ctx, err, "FATAL: failed to open trade journal")
		log.Fatalf("FATAL: failed to open trade journal: %v", err)
	}
	defer func() {
		if err := journal.Close(); err != nil {
			appLogger.Error(ctx, err, "error closing trade journal")
		}
	}()

	// 4. Broker REST client
	broker, err := brokerhttp.New(brokerhttp.Config{
		BaseURL:      cfg.BrokerBaseURL,
		AccountID:    cfg.AccountID,
		SessionToken: cfg.SessionToken,
		Logger:       appLogger,
	})
	if err != nil {
		appLogger.Error(ctx, err, "FATAL: failed to initialize broker client")
		log.Fatalf("FATAL: failed to initialize broker client: %v", err)
	}

	// 5. Risk manager. The breaker callback is late-bound to the engine,
	// which does not exist yet.
	var engine *app.BotEngine
	riskMgr, err := risk.New(risk.Config{
		Capital:             cfg.Capital,
		RiskPercentPerTrade: cfg.RiskPercentPerTrade,
		StopLossPercent:     cfg.StopLossPercent,
		TargetPercent:       cfg.TargetPercent,
		MaxDailyLossPercent: cfg.MaxDailyLossPercent,
		Logger:              appLogger,
		OnCircuitBreaker: func(day string, loss float64) {
			engine.OnCircuitBreaker(day, loss)
		},
	})
	if err != nil {
		appLogger.Error(ctx, err, "FATAL: failed to initialize risk manager")
		log.Fatalf("FATAL: failed to initialize risk manager: %v", err)
	}

	// 6. Order executor
	executor, err := execution.New(execution.Config{
		Symbol:   cfg.Symbol,
		Token:    cfg.Token,
		Exchange: cfg.Exchange,
		Product:  cfg.Product,
		Validity: cfg.Validity,
		Broker:   broker,
		Logger:   appLogger,
		Limiter:  rate.NewLimiter(rate.Limit(cfg.OrderRatePerSec), 1),
	})
	if err != nil {
		appLogger.Error(ctx, err, "FATAL: failed to initialize order executor")
		log.Fatalf("FATAL: failed to initialize order executor: %v", err)
	}

	// 7. Candle aggregator
	aggregator, err := market.New(market.Config{
		Interval:   cfg.CandleInterval,
		HistoryCap: cfg.HistoryCap,
		Logger:     appLogger,
	})
	if err != nil {
		appLogger.Error(ctx, err, "FATAL: failed to initialize candle aggregator")
		log.Fatalf("FATAL: failed to initialize candle aggregator: %v", err)
	}

	// 8. Strategies
	var strats []ports.Strategy
	for _, name := range cfg.Strategies {
		kind, err := strategies.ParseKind(name)
		if err != nil {
			appLogger.Error(ctx, err, "FATAL: unknown strategy", map[string]interface{}{"strategy": name})
			log.Fatalf("FATAL: unknown strategy %q: %v", name, err)
		}
		strat, err := strategies.New(kind, strategies.Options{
			FastPeriod: cfg.EMAFastPeriod,
			SlowPeriod: cfg.EMASlowPeriod,
			Lookback:   cfg.BreakoutLookback,
			RSIPeriod:  cfg.RSIPeriod,
			Oversold:   cfg.RSIOversold,
			Overbought: cfg.RSIOverbought,
		}, appLogger)
		if err != nil {
			appLogger.Error(ctx, err, "FATAL: failed to initialize strategy", map[string]interface{}{"strategy": name})
			log.Fatalf("FATAL: failed to initialize strategy %q: %v", name, err)
		}
		strats = append(strats, strat)
	}
	appLogger.Info(ctx, "strategies initialized", map[string]interface{}{"count": len(strats)})

	// 9. Tick feed, wired to the engine's handlers
	tickFeed, err := feed.New(feed.Config{
		URL:               cfg.BrokerWSURL,
		AccountID:         cfg.AccountID,
		SessionToken:      cfg.SessionToken,
		Tokens:            []string{cfg.Token},
		BackoffMin:        cfg.ReconnectMinDelay,
		BackoffMax:        cfg.ReconnectMaxDelay,
		MaxReconnects:     cfg.MaxReconnects,
		HeartbeatInterval: cfg.HeartbeatInterval,
		Logger:            appLogger,
		OnTick:            func(tick domain.Tick) { engine.OnTick(tick) },
		OnStateChange:     func(state ports.FeedState) { engine.OnFeedState(state) },
		OnError:           func(err error) { engine.OnFeedError(err) },
	})
	if err != nil {
		appLogger.Error(ctx, err, "FATAL: failed to initialize tick feed")
		log.Fatalf("FATAL: failed to initialize tick feed: %v", err)
	}

	// 10. Metrics server
	var metrics *telemetry.Server
	if cfg.MetricsPort > 0 {
		metrics, err = telemetry.NewServer(cfg.MetricsPort, appLogger)
		if err != nil {
			appLogger.Error(ctx, err, "FATAL: failed to initialize metrics server")
			log.Fatalf("FATAL: failed to initialize metrics server: %v", err)
		}
	}

	// 11. Engine
	engine, err = app.NewBotEngine(app.BotConfig{
		Symbol:       cfg.Symbol,
		Token:        cfg.Token,
		WarmupMonths: cfg.WarmupMonths,
		Logger:       appLogger,
		Feed:         tickFeed,
		Aggregator:   aggregator,
		Strategies:   strats,
		Risk:         riskMgr,
		Executor:     executor,
		History:      broker,
		Journal:      journal,
		Metrics:      metrics,
	})
	if err != nil {
		appLogger.Error(ctx, err, "FATAL: failed to initialize trading engine")
		log.Fatalf("FATAL: failed to initialize trading engine: %v", err)
	}

	// 12. Run until shutdown
	if err := engine.Start(ctx); err != nil {
		appLogger.Error(ctx, err, "trading engine exited with error")
		log.Fatalf("FATAL: trading engine exited with error: %v", err)
	}
	appLogger.Info(ctx, "application finished gracefully")
}
