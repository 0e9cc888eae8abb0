package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"algoTradeBot/config"
	"algoTradeBot/internal/adapters/brokerhttp"
	"algoTradeBot/internal/adapters/logger"
	"algoTradeBot/internal/domain"
	"algoTradeBot/internal/utils"
)

var (
	tokenFlag  = flag.String("token", "", "instrument token (defaults to TOKEN from the environment)")
	symbolFlag = flag.String("symbol", "", "symbol used in the output filename (defaults to SYMBOL)")
	interval   = flag.String("interval", "day", "candle interval: day, week or month")
	months     = flag.Int("months", 6, "lookback in months")
	outPath    = flag.String("out", "", "output CSV path (defaults to data/<symbol>_<interval>_<date>.csv)")
)

func main() {
	flag.Parse()
	ctx := context.Background()

	// 1. Load Configuration (broker credentials come from the environment)
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("FATAL: Failed to load configuration: %v", err)
	}

	// 2. Initialize Logger
	appLogger := logger.New(logger.Config{Level: cfg.LogLevel, Console: true})
	appLogger.Info(ctx, "Logger initialized", map[string]interface{}{"level": cfg.LogLevel})

	token := cfg.Token
	if *tokenFlag != "" {
		token = *tokenFlag
	}
	symbol := cfg.Symbol
	if *symbolFlag != "" {
		symbol = *symbolFlag
	}

	var ival domain.Interval
	switch *interval {
	case "day":
		ival = domain.IntervalDay
	case "week":
		ival = domain.IntervalWeek
	case "month":
		ival = domain.IntervalMonth
	default:
		log.Fatalf("FATAL: Unknown interval %q (want day, week or month)", *interval)
	}

	// 3. Initialize Broker Client
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
	appLogger.Info(ctx, "Broker client initialized")

	// 4. Fetch Candles
	fmt.Printf("Fetching %s candles for %s (token %s), last %d months...\n", ival, symbol, token, *months)
	candles, err := broker.GetHistorical(ctx, token, ival, *months)
	if err != nil {
		appLogger.Error(ctx, err, "Error fetching candles")
		log.Fatalf("Error fetching candles: %v", err)
	}
	if len(candles) == 0 {
		log.Fatalf("Broker returned no candles for token %s", token)
	}
	appLogger.Info(ctx, "Fetched candles", map[string]interface{}{
		"count": len(candles),
		"from":  candles[0].Time,
		"to":    candles[len(candles)-1].Time,
	})

	// 5. Write CSV
	filename := *outPath
	if filename == "" {
		filename = fmt.Sprintf("data/%s_%s_%s.csv", symbol, ival, time.Now().Format("20060102"))
	}
	if dir := filepath.Dir(filename); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			appLogger.Error(ctx, err, "Error creating output directory")
			log.Fatalf("Error creating output directory: %v", err)
		}
	}
	if err := utils.WriteCandlesToCSV(candles, filename); err != nil {
		appLogger.Error(ctx, err, "Error writing CSV")
		log.Fatalf("Error writing CSV: %v", err)
	}
	appLogger.Info(ctx, "Saved candles", map[string]interface{}{"filename": filename, "count": len(candles)})
}
