package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"sort"
	"text/tabwriter"
	"time"

	"algoTradeBot/internal/adapters/logger"
	"algoTradeBot/internal/adapters/sqlite"
	"algoTradeBot/internal/domain"
	"algoTradeBot/internal/strategy/analytics"
)

var (
	dbPath   = flag.String("db", "./data/trading_bot.db", "path to the trade journal database")
	fromFlag = flag.String("from", "", "report start date (2006-01-02), default 30 days ago")
	toFlag   = flag.String("to", "", "report end date (2006-01-02), default today")
	funds    = flag.Float64("funds", 100000, "balance baseline for the equity metrics")
	logLevel = flag.String("log-level", "warn", "log level (debug, info, warn, error)")
)

func main() {
	flag.Parse()
	ctx := context.Background()

	appLogger := logger.New(logger.Config{Level: *logLevel, Console: true})

	from, to, err := reportWindow(*fromFlag, *toFlag)
	if err != nil {
		log.Fatalf("FATAL: %v", err)
	}

	journal, err := sqlite.NewJournal(sqlite.Config{DBPath: *dbPath, Logger: appLogger})
	if err != nil {
		appLogger.Error(ctx, err, "FATAL: Failed to open trade journal")
		log.Fatalf("FATAL: Failed to open trade journal at %s: %v", *dbPath, err)
	}
	defer func() {
		if err := journal.Close(); err != nil {
			appLogger.Error(ctx, err, "Error closing trade journal")
		}
	}()

	open, err := journal.OpenTrades(ctx)
	if err != nil {
		appLogger.Error(ctx, err, "FATAL: Failed to read open trades")
		log.Fatalf("FATAL: Failed to read open trades: %v", err)
	}
	printOpenTrades(open)

	trades, err := journal.TradesBetween(ctx, from, to)
	if err != nil {
		appLogger.Error(ctx, err, "FATAL: Failed to read trades")
		log.Fatalf("FATAL: Failed to read trades: %v", err)
	}

	fmt.Printf("\n## Closed trades %s to %s\n\n", from.Format("2006-01-02"), to.Format("2006-01-02"))
	if len(trades) == 0 {
		fmt.Println("No trades in the window.")
		return
	}

	metrics := analytics.AnalyzePerformance(trades, *funds)
	printMetrics(metrics)
	printByStrategy(trades)
	printMonthly(metrics)

	total, err := journal.RealizedPnL(ctx)
	if err != nil {
		appLogger.Error(ctx, err, "Failed to read lifetime PnL")
	} else {
		fmt.Printf("\nLifetime realized PnL (all trades on record): %.2f\n", total)
	}
}

// reportWindow resolves the date flags, defaulting to the last 30 days. The
// end date is pushed to the end of its day so same-day trades are included.
func reportWindow(fromStr, toStr string) (time.Time, time.Time, error) {
	to := time.Now()
	if toStr != "" {
		parsed, err := time.Parse("2006-01-02", toStr)
		if err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("bad -to date %q: %w", toStr, err)
		}
		to = parsed.Add(24*time.Hour - time.Nanosecond)
	}

	from := to.AddDate(0, 0, -30)
	if fromStr != "" {
		parsed, err := time.Parse("2006-01-02", fromStr)
		if err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("bad -from date %q: %w", fromStr, err)
		}
		from = parsed
	}
	if from.After(to) {
		return time.Time{}, time.Time{}, fmt.Errorf("-from %s is after -to %s", from.Format("2006-01-02"), to.Format("2006-01-02"))
	}
	return from, to, nil
}

func printOpenTrades(open []*domain.Trade) {
	fmt.Printf("## Open positions (%d)\n\n", len(open))
	if len(open) == 0 {
		fmt.Println("None.")
		return
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', tabwriter.AlignRight)
	fmt.Fprintln(w, "Symbol\tStrategy\tQty\tEntry\tStop\tTarget\tOpened\t")
	for _, t := range open {
		fmt.Fprintf(w, "%s\t%s\t%.0f\t%.2f\t%.2f\t%.2f\t%s\t\n",
			t.Symbol, t.Strategy, t.Quantity, t.EntryPrice, t.StopLoss, t.Target,
			t.EntryTime.Format("2006-01-02 15:04"))
	}
	w.Flush()
}

func printMetrics(m *analytics.PerformanceMetrics) {
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', tabwriter.AlignRight)
	fmt.Fprintf(w, "Trades\t%d\t\n", m.TotalTrades)
	fmt.Fprintf(w, "Win rate\t%.1f%%\t\n", m.WinRate*100)
	fmt.Fprintf(w, "Total PnL\t%.2f\t\n", m.TotalProfit)
	fmt.Fprintf(w, "Return\t%.2f%%\t\n", m.ReturnOnInvestment*100)
	fmt.Fprintf(w, "Max drawdown\t%.1f%%\t\n", m.MaxDrawdown*100)
	fmt.Fprintf(w, "Profit factor\t%.2f\t\n", m.ProfitFactor)
	fmt.Fprintf(w, "Avg win / loss\t%.2f / %.2f\t\n", m.AverageWin, m.AverageLoss)
	fmt.Fprintf(w, "Expectancy\t%.2f\t\n", m.Expectancy)
	fmt.Fprintf(w, "Avg holding time\t%s\t\n", m.AverageTradeDuration.Round(time.Minute))
	w.Flush()
}

// printByStrategy breaks the window down per strategy so one bad strategy
// cannot hide behind another's wins.
func printByStrategy(trades []*domain.Trade) {
	type stratStats struct {
		trades int
		wins   int
		pnl    float64
	}
	byStrategy := make(map[string]*stratStats)

	for _, t := range trades {
		if t == nil || t.PnL == nil {
			continue
		}
		s, ok := byStrategy[t.Strategy]
		if !ok {
			s = &stratStats{}
			byStrategy[t.Strategy] = s
		}
		s.trades++
		if *t.PnL > 0 {
			s.wins++
		}
		s.pnl += *t.PnL
	}
	if len(byStrategy) == 0 {
		return
	}

	names := make([]string, 0, len(byStrategy))
	for name := range byStrategy {
		names = append(names, name)
	}
	sort.Strings(names)

	fmt.Println("\nBy strategy:")
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', tabwriter.AlignRight)
	fmt.Fprintln(w, "Strategy\tTrades\tWinRate\tTotal PnL\tAvg PnL\t")
	for _, name := range names {
		s := byStrategy[name]
		fmt.Fprintf(w, "%s\t%d\t%.1f%%\t%.2f\t%.2f\t\n",
			name, s.trades,
			float64(s.wins)/float64(s.trades)*100,
			s.pnl, s.pnl/float64(s.trades))
	}
	w.Flush()
}

func printMonthly(m *analytics.PerformanceMetrics) {
	monthly := m.GetMonthlyReturns()
	if len(monthly) == 0 {
		return
	}
	fmt.Println("\nMonthly PnL:")
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', tabwriter.AlignRight)
	for _, month := range monthly {
		fmt.Fprintf(w, "%s\t%.2f\t\n", month.Month.Format("2006-01"), month.Return)
	}
	w.Flush()
}
