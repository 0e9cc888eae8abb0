package main

import (
	"context"
	"fmt"
	"log"

	"golang.org/x/time/rate"

	"algoTradeBot/config"
	"algoTradeBot/internal/adapters/brokerhttp"
	"algoTradeBot/internal/adapters/logger"
	"algoTradeBot/internal/adapters/sqlite"
	"algoTradeBot/internal/app"
	"algoTradeBot/internal/domain"
	"algoTradeBot/internal/risk"
	"algoTradeBot/internal/watchlist"
)

// swing_scanner runs one portfolio scan over the watchlist: evaluate every
// instrument on the daily timeframe, exit dead crossovers, enter fresh ones
// within the exposure caps. Meant to run once per day after market close.
func main() {
	ctx := context.Background()

	// 1. Load Configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("FATAL: Failed to load configuration: %v", err)
	}

	// 2. Initialize Logger
	appLogger := logger.New(logger.Config{
		Level:    cfg.LogLevel,
		Console:  cfg.LogConsole,
		FilePath: cfg.LogFilePath,
	})
	appLogger.Info(ctx, "Logger initialized", map[string]interface{}{"level": cfg.LogLevel})

	// 3. Initialize Trade Journal
	journal, err := sqlite.NewJournal(sqlite.Config{DBPath: cfg.DBPath, Logger: appLogger})
	if err != nil {
		appLogger.Error(ctx, err, "FATAL: Failed to initialize trade journal")
		log.Fatalf("FATAL: Failed to initialize trade journal: %v", err)
	}
	defer func() {
		if err := journal.Close(); err != nil {
			appLogger.Error(ctx, err, "Error closing trade journal")
		}
	}()

	// 4. Initialize Broker Client (history + orders)
	broker, err := brokerhttp.New(brokerhttp.Config{
		BaseURL:      cfg.BrokerBaseURL,
		AccountID:    cfg.AccountID,
		SessionToken: cfg.SessionToken,
		Logger:       appLogger,
	})
	if err != nil {
		appLogger.Error(ctx, err, "FATAL: Failed to initialize broker client")
		log.Fatalf("FATAL: Failed to initialize broker client: %v", err)
	}

	// 5. Load Watchlist
	wl, err := watchlist.Load(cfg.WatchlistPath)
	if err != nil {
		appLogger.Error(ctx, err, "FATAL: Failed to load watchlist")
		log.Fatalf("FATAL: Failed to load watchlist from %s: %v", cfg.WatchlistPath, err)
	}
	appLogger.Info(ctx, "Watchlist loaded", map[string]interface{}{
		"path":        cfg.WatchlistPath,
		"instruments": len(wl.Instruments),
	})

	// 6. Initialize Position Sizer and Swing Engine
	sizer, err := risk.NewPositionSizer(risk.SizerConfig{
		Capital:      cfg.Capital,
		RiskPerTrade: cfg.RiskPerTrade,
		ATRPeriod:    cfg.ATRPeriod,
		Logger:       appLogger,
	})
	if err != nil {
		appLogger.Error(ctx, err, "FATAL: Failed to initialize position sizer")
		log.Fatalf("FATAL: Failed to initialize position sizer: %v", err)
	}
	engine, err := app.NewSwingEngine(app.SwingConfig{
		History:    broker,
		Sizer:      sizer,
		Logger:     appLogger,
		FastPeriod: cfg.EMAFastPeriod,
		SlowPeriod: cfg.EMASlowPeriod,
	})
	if err != nil {
		appLogger.Error(ctx, err, "FATAL: Failed to initialize swing engine")
		log.Fatalf("FATAL: Failed to initialize swing engine: %v", err)
	}

	// 7. Initialize Exposure Controller
	portfolio, err := risk.NewPortfolioManager(risk.PortfolioConfig{
		Capital:              cfg.Capital,
		MaxOpenPositions:     cfg.MaxOpenPositions,
		MaxPortfolioExposure: cfg.MaxPortfolioExposure,
		MaxSectorExposure:    cfg.MaxSectorExposure,
		Logger:               appLogger,
	})
	if err != nil {
		appLogger.Error(ctx, err, "FATAL: Failed to initialize portfolio manager")
		log.Fatalf("FATAL: Failed to initialize portfolio manager: %v", err)
	}
	exposure := risk.NewExposureController(portfolio)

	// 8. Rebuild the Position Book from the Journal
	store := app.NewSwingPositionStore()
	if err := rebuildStore(ctx, store, journal, wl, appLogger); err != nil {
		appLogger.Error(ctx, err, "FATAL: Failed to rebuild position book")
		log.Fatalf("FATAL: Failed to rebuild position book: %v", err)
	}

	// 9. Initialize Scanner
	scanner, err := app.NewPortfolioSwingEngine(app.PortfolioSwingConfig{
		Watchlist: wl,
		Engine:    engine,
		Exposure:  exposure,
		Store:     store,
		Broker:    broker,
		Logger:    appLogger,
		Journal:   journal,
		Exchange:  cfg.Exchange,
		Limiter:   rate.NewLimiter(rate.Limit(cfg.OrderRatePerSec), 1),
	})
	if err != nil {
		appLogger.Error(ctx, err, "FATAL: Failed to initialize scanner")
		log.Fatalf("FATAL: Failed to initialize scanner: %v", err)
	}

	// 10. Scan
	report, err := scanner.Scan(ctx)
	if err != nil {
		appLogger.Error(ctx, err, "FATAL: Scan failed")
		log.Fatalf("FATAL: Scan failed: %v", err)
	}
	fmt.Printf("Scanned %d instruments: %d entered, %d exited, %d rejected, %d failed\n",
		report.Scanned, report.Entered, report.Exited, report.Rejected, report.Failed)
}

// rebuildStore seeds the in-memory book from open swing trades on record.
// Token and sector are not journaled, so they come from the watchlist; open
// trades for symbols no longer on the watchlist are skipped with a warning
// and will not be managed by this scan.
func rebuildStore(ctx context.Context, store *app.SwingPositionStore, journal *sqlite.Journal, wl *watchlist.Watchlist, appLogger *logger.Zerolog) error {
	open, err := journal.OpenTrades(ctx)
	if err != nil {
		return err
	}

	restored := 0
	for _, trade := range open {
		if trade.Strategy != app.SwingStrategyName {
			continue
		}
		inst, ok := wl.BySymbol(trade.Symbol)
		if !ok {
			appLogger.Warn(ctx, "open swing trade not on watchlist, skipping", map[string]interface{}{
				"symbol": trade.Symbol,
			})
			continue
		}
		store.Set(domain.SwingPosition{
			Token:      inst.Token,
			Symbol:     inst.Symbol,
			Sector:     inst.Sector,
			Quantity:   trade.Quantity,
			EntryPrice: trade.EntryPrice,
			StopLoss:   trade.StopLoss,
			OpenedAt:   trade.EntryTime,
		})
		restored++
	}

	appLogger.Info(ctx, "position book rebuilt", map[string]interface{}{
		"openTrades": len(open),
		"restored":   restored,
	})
	return nil
}
