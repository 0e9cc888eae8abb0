package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"golang.org/x/time/rate"

	"algoTradeBot/internal/adapters/logger"
	"algoTradeBot/internal/domain"
	"algoTradeBot/internal/execution"
	"algoTradeBot/internal/market"
	"algoTradeBot/internal/ports"
	"algoTradeBot/internal/risk"
	"algoTradeBot/internal/strategy/strategies"
	"algoTradeBot/internal/utils"
)

var (
	ticksPath       = flag.String("ticks", "", "path to a tick CSV recorded from the live feed")
	symbol          = flag.String("symbol", "TCS-EQ", "trading symbol for the paper orders")
	token           = flag.String("token", "11536", "instrument token the ticks belong to")
	intervalSeconds = flag.Int("interval-seconds", 60, "candle interval in seconds")
	strategyList    = flag.String("strategies", "ema_crossover", "comma-separated strategy names")
	funds           = flag.Float64("funds", 100000, "capital for position sizing")
	logLevel        = flag.String("log-level", "info", "log level (debug, info, warn, error)")
)

// paperBroker accepts every order without touching a real exchange. The
// replay runs on one goroutine so no locking is needed.
type paperBroker struct {
	orders []ports.OrderRequest
}

func (p *paperBroker) PlaceOrder(_ context.Context, req ports.OrderRequest) (*ports.OrderResult, error) {
	p.orders = append(p.orders, req)
	return &ports.OrderResult{
		Status:  "Ok",
		OrderID: fmt.Sprintf("PAPER-%d", len(p.orders)),
	}, nil
}

type replayTally struct {
	ticks       int
	skipped     int
	candles     int
	signals     map[string]int
	approved    int
	rejected    map[string]int
	placed      int
	failed      int
	realizedPnL float64
}

func main() {
	flag.Parse()
	ctx := context.Background()

	if *ticksPath == "" {
		log.Fatalf("FATAL: -ticks is required")
	}

	// 1. Initialize Logger
	appLogger := logger.New(logger.Config{Level: *logLevel, Console: true})
	appLogger.Info(ctx, "Logger initialized", map[string]interface{}{"level": *logLevel})

	// 2. Load Ticks
	ticks, err := utils.ReadTicksFromCSV(*ticksPath)
	if err != nil {
		appLogger.Error(ctx, err, "FATAL: Failed to load ticks")
		log.Fatalf("FATAL: Failed to load ticks: %v", err)
	}
	if len(ticks) == 0 {
		log.Fatalf("FATAL: %s holds no ticks", *ticksPath)
	}
	appLogger.Info(ctx, "Ticks loaded", map[string]interface{}{
		"file":  *ticksPath,
		"count": len(ticks),
		"from":  ticks[0].Time,
		"to":    ticks[len(ticks)-1].Time,
	})

	// 3. Build Strategies
	var strats []ports.Strategy
	for _, name := range splitList(*strategyList) {
		kind, err := strategies.ParseKind(name)
		if err != nil {
			appLogger.Error(ctx, err, "FATAL: Unknown strategy")
			log.Fatalf("FATAL: Unknown strategy %q: %v", name, err)
		}
		strat, err := strategies.New(kind, strategies.Options{}, appLogger)
		if err != nil {
			appLogger.Error(ctx, err, "FATAL: Failed to build strategy")
			log.Fatalf("FATAL: Failed to build strategy %s: %v", kind, err)
		}
		strats = append(strats, strat)
	}
	if len(strats) == 0 {
		log.Fatalf("FATAL: no strategies configured")
	}

	// 4. Build Risk Manager
	riskMgr, err := risk.New(risk.Config{
		Capital:             *funds,
		RiskPercentPerTrade: 1,
		StopLossPercent:     2,
		TargetPercent:       3,
		MaxDailyLossPercent: 2,
		Logger:              appLogger,
	})
	if err != nil {
		appLogger.Error(ctx, err, "FATAL: Failed to build risk manager")
		log.Fatalf("FATAL: Failed to build risk manager: %v", err)
	}

	// 5. Build Paper Executor
	paper := &paperBroker{}
	executor, err := execution.New(execution.Config{
		Symbol:   *symbol,
		Token:    *token,
		Exchange: "NSE",
		Product:  "I",
		Validity: "DAY",
		Broker:   paper,
		Logger:   appLogger,
		Limiter:  rate.NewLimiter(rate.Inf, 1),
	})
	if err != nil {
		appLogger.Error(ctx, err, "FATAL: Failed to build executor")
		log.Fatalf("FATAL: Failed to build executor: %v", err)
	}

	tally := &replayTally{
		signals:  make(map[string]int),
		rejected: make(map[string]int),
	}

	// 6. Build Aggregator and wire the candle handler. The aggregator is
	// never started: replayed ticks carry their own timestamps, so bucket
	// boundaries come from the data rather than the wall clock.
	aggregator, err := market.New(market.Config{
		Interval:   time.Duration(*intervalSeconds) * time.Second,
		HistoryCap: 1000,
		Logger:     appLogger,
	})
	if err != nil {
		appLogger.Error(ctx, err, "FATAL: Failed to build aggregator")
		log.Fatalf("FATAL: Failed to build aggregator: %v", err)
	}
	aggregator.Subscribe(func(candle domain.Candle) {
		tally.candles++
		onCandle(ctx, candle, strats, riskMgr, executor, tally, appLogger)
	})

	// 7. Replay
	fmt.Printf("Replaying %d ticks through %d strategies...\n", len(ticks), len(strats))
	for _, tick := range ticks {
		if tick.Token != "" && tick.Token != *token {
			tally.skipped++
			continue
		}
		if !tick.HasPrice() {
			tally.skipped++
			continue
		}
		tally.ticks++
		aggregator.AddTick(tick.LTP, tick.Time)
	}

	printReport(tally, paper, executor, riskMgr)
}

func onCandle(ctx context.Context, candle domain.Candle, strats []ports.Strategy, riskMgr *risk.Manager, executor *execution.Executor, tally *replayTally, appLogger ports.Logger) {
	for _, strat := range strats {
		sig := strat.OnCandle(ctx, candle)
		if sig == nil || sig.Type == domain.SignalHold {
			continue
		}
		tally.signals[fmt.Sprintf("%s/%s", sig.Strategy, sig.Type)]++

		approval := riskMgr.ApproveTrade(ctx, sig.Type, candle.Close, strat.Name())
		if !approval.Approved {
			tally.rejected[approval.Reason]++
			continue
		}
		tally.approved++

		side := domain.Buy
		if sig.Type == domain.SignalSell {
			side = domain.Sell
			tally.realizedPnL += approval.RealizedPnL
		}

		res, err := executor.PlaceMarketOrder(ctx, side, approval.Quantity, candle.Close)
		if err != nil || !res.Success {
			tally.failed++
			if side == domain.Buy {
				riskMgr.ClearPosition(ctx, strat.Name())
			}
			if err == nil {
				err = fmt.Errorf("paper order rejected: %s", res.Reason)
			}
			appLogger.Error(ctx, err, "paper order failed", map[string]interface{}{
				"side": side, "price": candle.Close,
			})
			continue
		}
		tally.placed++
	}
}

func printReport(tally *replayTally, paper *paperBroker, executor *execution.Executor, riskMgr *risk.Manager) {
	fmt.Println("\n## Replay report")
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', tabwriter.AlignRight)
	fmt.Fprintf(w, "Ticks replayed\t%d\t\n", tally.ticks)
	fmt.Fprintf(w, "Ticks skipped\t%d\t\n", tally.skipped)
	fmt.Fprintf(w, "Candles built\t%d\t\n", tally.candles)
	fmt.Fprintf(w, "Trades approved\t%d\t\n", tally.approved)
	fmt.Fprintf(w, "Orders placed\t%d\t\n", tally.placed)
	fmt.Fprintf(w, "Orders failed\t%d\t\n", tally.failed)
	fmt.Fprintf(w, "Realized PnL\t%.2f\t\n", tally.realizedPnL)
	fmt.Fprintf(w, "Daily loss\t%.2f\t\n", riskMgr.DailyLoss())
	w.Flush()

	if len(tally.signals) > 0 {
		fmt.Println("\nSignals:")
		for key, count := range tally.signals {
			fmt.Printf("  %s: %d\n", key, count)
		}
	}
	if len(tally.rejected) > 0 {
		fmt.Println("\nRisk rejections:")
		for reason, count := range tally.rejected {
			fmt.Printf("  %s: %d\n", reason, count)
		}
	}
	if pos := executor.Position(); pos != nil {
		fmt.Printf("\nStill holding at end of replay: qty %.0f entered %.2f (order %s)\n",
			pos.Quantity, pos.EntryPrice, pos.OrderID)
	}
	if len(paper.orders) > 0 {
		fmt.Println("\nPaper orders:")
		w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', tabwriter.AlignRight)
		fmt.Fprintln(w, "#\tSide\tSymbol\tQty\t")
		for i, req := range paper.orders {
			fmt.Fprintf(w, "%d\t%s\t%s\t%.0f\t\n", i+1, req.Side, req.Symbol, req.Quantity)
		}
		w.Flush()
	}
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
