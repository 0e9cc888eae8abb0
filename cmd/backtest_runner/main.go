package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"
	"text/tabwriter"

	"algoTradeBot/internal/adapters/logger"
	"algoTradeBot/internal/domain"
	"algoTradeBot/internal/risk"
	"algoTradeBot/internal/strategy/analytics"
	"algoTradeBot/internal/strategy/backtesting"
	"algoTradeBot/internal/strategy/optimization"
	"algoTradeBot/internal/strategy/strategies"
	"algoTradeBot/internal/utils"
)

var (
	dataPath     = flag.String("data", "", "path to a candle CSV written by fetch_candles")
	symbol       = flag.String("symbol", "TCS-EQ", "trading symbol the candles belong to")
	strategyList = flag.String("strategies", "ema_crossover", "comma-separated strategy names to backtest")
	funds        = flag.Float64("funds", 100000, "starting balance")
	optimize     = flag.Bool("optimize", false, "sweep the parameter grid for each strategy instead of a single run")
	topN         = flag.Int("top", 5, "number of sweep results to print with -optimize")
	logLevel     = flag.String("log-level", "info", "log level (debug, info, warn, error)")

	fastPeriod = flag.Int("fast", 9, "EMA fast period")
	slowPeriod = flag.Int("slow", 21, "EMA slow period")
	lookback   = flag.Int("lookback", 20, "breakout lookback")
	rsiPeriod  = flag.Int("rsi-period", 14, "RSI period")
	oversold   = flag.Float64("oversold", 30, "RSI oversold threshold")
	overbought = flag.Float64("overbought", 70, "RSI overbought threshold")
)

func main() {
	flag.Parse()
	ctx := context.Background()

	if *dataPath == "" {
		log.Fatalf("FATAL: -data is required")
	}

	// 1. Initialize Logger
	appLogger := logger.New(logger.Config{Level: *logLevel, Console: true})
	appLogger.Info(ctx, "Logger initialized", map[string]interface{}{"level": *logLevel})

	// 2. Load Candles
	candles, err := utils.ReadCandlesFromCSV(*dataPath)
	if err != nil {
		appLogger.Error(ctx, err, "FATAL: Failed to load candles")
		log.Fatalf("FATAL: Failed to load candles: %v", err)
	}
	if len(candles) == 0 {
		log.Fatalf("FATAL: %s holds no candles", *dataPath)
	}
	appLogger.Info(ctx, "Candles loaded", map[string]interface{}{
		"file":  *dataPath,
		"count": len(candles),
		"from":  candles[0].Time,
		"to":    candles[len(candles)-1].Time,
	})

	// Historical replays span many days but the risk manager tracks loss by
	// wall-clock day, so the daily breaker is left at its widest setting.
	riskCfg := risk.Config{
		Capital:             *funds,
		RiskPercentPerTrade: 1,
		StopLossPercent:     2,
		TargetPercent:       3,
		MaxDailyLossPercent: 100,
		Logger:              appLogger,
	}

	// 3. Run each requested strategy over the same candle set
	for _, name := range strings.Split(*strategyList, ",") {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}

		kind, err := strategies.ParseKind(name)
		if err != nil {
			appLogger.Error(ctx, err, "FATAL: Unknown strategy")
			log.Fatalf("FATAL: Unknown strategy %q: %v", name, err)
		}

		if *optimize {
			runSweep(ctx, appLogger, kind, candles, riskCfg)
			continue
		}
		runSingle(ctx, appLogger, kind, candles, riskCfg)
	}
}

func runSingle(ctx context.Context, appLogger *logger.Zerolog, kind strategies.Kind, candles []domain.Candle, riskCfg risk.Config) {
	strat, err := strategies.New(kind, strategies.Options{
		FastPeriod: *fastPeriod,
		SlowPeriod: *slowPeriod,
		Lookback:   *lookback,
		RSIPeriod:  *rsiPeriod,
		Oversold:   *oversold,
		Overbought: *overbought,
	}, appLogger)
	if err != nil {
		appLogger.Error(ctx, err, "FATAL: Failed to build strategy")
		log.Fatalf("FATAL: Failed to build strategy %s: %v", kind, err)
	}

	// Risk state (positions, daily loss) carries across calls, so every run
	// gets a fresh manager.
	riskMgr, err := risk.New(riskCfg)
	if err != nil {
		appLogger.Error(ctx, err, "FATAL: Failed to build risk manager")
		log.Fatalf("FATAL: Failed to build risk manager: %v", err)
	}

	fmt.Printf("\nBacktesting %s on %s (%d candles)...\n", kind, *symbol, len(candles))
	result, err := backtesting.Run(ctx, strat, riskMgr, candles, backtesting.Config{
		Symbol:       *symbol,
		InitialFunds: *funds,
	})
	if err != nil {
		appLogger.Error(ctx, err, "FATAL: Backtest failed")
		log.Fatalf("FATAL: Backtest failed: %v", err)
	}

	metrics := analytics.AnalyzePerformance(result.Trades, *funds)
	printSummary(kind.String(), result, metrics)
}

func runSweep(ctx context.Context, appLogger *logger.Zerolog, kind strategies.Kind, candles []domain.Candle, riskCfg risk.Config) {
	opt, err := optimization.New(optimization.Config{
		Ranges:   rangesFor(kind),
		Risk:     riskCfg,
		Backtest: backtesting.Config{Symbol: *symbol, InitialFunds: *funds},
		Logger:   appLogger,
	})
	if err != nil {
		appLogger.Error(ctx, err, "FATAL: Failed to build optimizer")
		log.Fatalf("FATAL: Failed to build optimizer: %v", err)
	}

	fmt.Printf("\nSweeping %s parameters on %s (%d candles)...\n", kind, *symbol, len(candles))
	results, err := opt.Optimize(ctx, kind, candles)
	if err != nil {
		appLogger.Error(ctx, err, "FATAL: Sweep failed")
		log.Fatalf("FATAL: Sweep failed: %v", err)
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', tabwriter.AlignRight)
	fmt.Fprintln(w, "Rank\tParams\tScore\tTrades\tWinRate\tProfit\tMaxDD\tPF\t")
	for i, res := range results {
		if i >= *topN {
			break
		}
		fmt.Fprintf(w, "%d\t%s\t%.3f\t%d\t%.1f%%\t%.2f\t%.1f%%\t%.2f\t\n",
			i+1,
			formatParams(res.Parameters),
			res.Score,
			res.Metrics.TotalTrades,
			res.Metrics.WinRate*100,
			res.Metrics.TotalProfit,
			res.Metrics.MaxDrawdown*100,
			res.Metrics.ProfitFactor,
		)
	}
	w.Flush()
}

// rangesFor returns the sweep grid for a strategy kind. Parameters the kind
// does not read fall back to the constructor defaults.
func rangesFor(kind strategies.Kind) []optimization.ParameterRange {
	switch kind {
	case strategies.KindBreakout:
		return []optimization.ParameterRange{
			{Name: optimization.ParamLookback, Min: 10, Max: 40, Step: 5, IsInt: true},
		}
	case strategies.KindRSIReversal:
		return []optimization.ParameterRange{
			{Name: optimization.ParamRSIPeriod, Min: 7, Max: 21, Step: 7, IsInt: true},
			{Name: optimization.ParamOversold, Min: 20, Max: 35, Step: 5},
			{Name: optimization.ParamOverbought, Min: 65, Max: 80, Step: 5},
		}
	default:
		return []optimization.ParameterRange{
			{Name: optimization.ParamFastPeriod, Min: 5, Max: 15, Step: 2, IsInt: true},
			{Name: optimization.ParamSlowPeriod, Min: 20, Max: 40, Step: 5, IsInt: true},
		}
	}
}

func formatParams(params map[string]float64) string {
	parts := make([]string, 0, len(params))
	for _, name := range []string{
		optimization.ParamFastPeriod,
		optimization.ParamSlowPeriod,
		optimization.ParamLookback,
		optimization.ParamRSIPeriod,
		optimization.ParamOversold,
		optimization.ParamOverbought,
	} {
		if v, ok := params[name]; ok {
			parts = append(parts, fmt.Sprintf("%s=%g", name, v))
		}
	}
	return strings.Join(parts, " ")
}

func printSummary(name string, result *backtesting.Result, metrics *analytics.PerformanceMetrics) {
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', tabwriter.AlignRight)
	fmt.Fprintf(w, "Strategy\t%s\t\n", name)
	fmt.Fprintf(w, "Trades (closed)\t%d\t\n", metrics.TotalTrades)
	fmt.Fprintf(w, "Win rate\t%.1f%%\t\n", metrics.WinRate*100)
	fmt.Fprintf(w, "Total profit\t%.2f\t\n", metrics.TotalProfit)
	fmt.Fprintf(w, "Final balance\t%.2f\t\n", metrics.FinalBalance)
	fmt.Fprintf(w, "Return\t%.2f%%\t\n", metrics.ReturnOnInvestment*100)
	fmt.Fprintf(w, "Max drawdown\t%.1f%%\t\n", metrics.MaxDrawdown*100)
	fmt.Fprintf(w, "Profit factor\t%.2f\t\n", metrics.ProfitFactor)
	fmt.Fprintf(w, "Sharpe ratio\t%.2f\t\n", result.SharpeRatio)
	fmt.Fprintf(w, "Avg win / loss\t%.2f / %.2f\t\n", metrics.AverageWin, metrics.AverageLoss)
	fmt.Fprintf(w, "Expectancy\t%.2f\t\n", metrics.Expectancy)
	fmt.Fprintf(w, "Max consec wins / losses\t%d / %d\t\n", metrics.MaxConsecutiveWins, metrics.MaxConsecutiveLosses)
	w.Flush()

	if len(result.Rejections) > 0 {
		fmt.Println("\nRisk rejections:")
		for reason, count := range result.Rejections {
			fmt.Printf("  %s: %d\n", reason, count)
		}
	}
	if result.Open != nil {
		fmt.Printf("\nStill open at end of data: %s qty %.0f entered %.2f\n",
			result.Open.Symbol, result.Open.Quantity, result.Open.EntryPrice)
	}

	monthly := metrics.GetMonthlyReturns()
	if len(monthly) > 0 {
		fmt.Println("\nMonthly returns:")
		mw := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', tabwriter.AlignRight)
		for _, m := range monthly {
			fmt.Fprintf(mw, "%s\t%.2f\t\n", m.Month.Format("2006-01"), m.Return)
		}
		mw.Flush()
	}
}
