// Package analytics derives performance statistics from closed trades.
package analytics

import (
	"math"
	"sort"
	"time"

	"algoTradeBot/internal/domain"
)

// PerformanceMetrics holds the per-run statistics derived from a trade list.
type PerformanceMetrics struct {
	TotalTrades        int
	WinningTrades      int
	LosingTrades       int
	WinRate            float64
	TotalProfit        float64
	MaxDrawdown        float64
	ProfitFactor       float64
	AverageWin         float64
	AverageLoss        float64
	FinalBalance       float64
	ReturnOnInvestment float64

	MaxConsecutiveWins   int
	MaxConsecutiveLosses int
	AverageTradeDuration time.Duration
	RecoveryFactor       float64
	Expectancy           float64
	RiskRewardRatio      float64
	MonthlyReturns       map[string]float64
	Drawdowns            []Drawdown
	EquityCurve          []EquityPoint
}

// Drawdown is one peak-to-recovery period on the equity curve.
type Drawdown struct {
	StartTime  time.Time
	EndTime    time.Time
	StartValue float64
	EndValue   float64
	Depth      float64
	Duration   time.Duration
}

// EquityPoint is the balance after one trade closed.
type EquityPoint struct {
	Time     time.Time
	Value    float64
	Drawdown float64
}

// MonthlyReturn is the realized profit of one calendar month.
type MonthlyReturn struct {
	Month  time.Time
	Return float64
}

// AnalyzePerformance computes metrics over the closed trades in the input.
// Trades still open are skipped; the input slice is not reordered.
func AnalyzePerformance(trades []*domain.Trade, initialBalance float64) *PerformanceMetrics {
	metrics := &PerformanceMetrics{
		FinalBalance:   initialBalance,
		MonthlyReturns: make(map[string]float64),
		Drawdowns:      make([]Drawdown, 0),
		EquityCurve:    make([]EquityPoint, 0),
	}

	closed := make([]*domain.Trade, 0, len(trades))
	for _, trade := range trades {
		if trade == nil || trade.IsOpen() || trade.PnL == nil || trade.ExitTime == nil {
			continue
		}
		closed = append(closed, trade)
	}
	if len(closed) == 0 {
		return metrics
	}

	sort.Slice(closed, func(i, j int) bool {
		return closed[i].EntryTime.Before(closed[j].EntryTime)
	})

	balance := initialBalance
	peak := initialBalance
	var currentDrawdown *Drawdown
	var consecutiveWins, consecutiveLosses int
	var grossProfit, grossLoss float64
	var totalDuration time.Duration

	for _, trade := range closed {
		pnl := *trade.PnL
		exitTime := *trade.ExitTime

		metrics.TotalTrades++
		if pnl > 0 {
			metrics.WinningTrades++
			consecutiveWins++
			consecutiveLosses = 0
			grossProfit += pnl
			metrics.AverageWin = grossProfit / float64(metrics.WinningTrades)
		} else {
			metrics.LosingTrades++
			consecutiveLosses++
			consecutiveWins = 0
			grossLoss += -pnl
			metrics.AverageLoss = -grossLoss / float64(metrics.LosingTrades)
		}
		if consecutiveWins > metrics.MaxConsecutiveWins {
			metrics.MaxConsecutiveWins = consecutiveWins
		}
		if consecutiveLosses > metrics.MaxConsecutiveLosses {
			metrics.MaxConsecutiveLosses = consecutiveLosses
		}

		balance += pnl
		metrics.TotalProfit += pnl
		metrics.FinalBalance = balance
		totalDuration += exitTime.Sub(trade.EntryTime)

		metrics.MonthlyReturns[exitTime.Format("2006-01")] += pnl

		if balance > peak {
			peak = balance
			if currentDrawdown != nil {
				currentDrawdown.EndTime = exitTime
				currentDrawdown.EndValue = balance
				currentDrawdown.Duration = currentDrawdown.EndTime.Sub(currentDrawdown.StartTime)
				metrics.Drawdowns = append(metrics.Drawdowns, *currentDrawdown)
				currentDrawdown = nil
			}
		} else if peak > 0 {
			depth := (peak - balance) / peak
			if currentDrawdown == nil {
				currentDrawdown = &Drawdown{
					StartTime:  exitTime,
					StartValue: peak,
					Depth:      depth,
				}
			} else {
				currentDrawdown.Depth = math.Max(currentDrawdown.Depth, depth)
			}
			if depth > metrics.MaxDrawdown {
				metrics.MaxDrawdown = depth
			}
		}

		var pointDD float64
		if peak > 0 {
			pointDD = (peak - balance) / peak
		}
		metrics.EquityCurve = append(metrics.EquityCurve, EquityPoint{
			Time:     exitTime,
			Value:    balance,
			Drawdown: pointDD,
		})
	}

	if currentDrawdown != nil {
		last := closed[len(closed)-1]
		currentDrawdown.EndTime = *last.ExitTime
		currentDrawdown.EndValue = balance
		currentDrawdown.Duration = currentDrawdown.EndTime.Sub(currentDrawdown.StartTime)
		metrics.Drawdowns = append(metrics.Drawdowns, *currentDrawdown)
	}

	metrics.WinRate = float64(metrics.WinningTrades) / float64(metrics.TotalTrades)
	if grossLoss > 0 {
		metrics.ProfitFactor = grossProfit / grossLoss
	}
	if initialBalance > 0 {
		metrics.ReturnOnInvestment = (metrics.FinalBalance - initialBalance) / initialBalance
	}
	metrics.AverageTradeDuration = totalDuration / time.Duration(len(closed))
	if metrics.MaxDrawdown > 0 && initialBalance > 0 {
		metrics.RecoveryFactor = metrics.TotalProfit / (initialBalance * metrics.MaxDrawdown)
	}
	metrics.Expectancy = metrics.WinRate*metrics.AverageWin + (1-metrics.WinRate)*metrics.AverageLoss
	if metrics.AverageLoss != 0 {
		metrics.RiskRewardRatio = metrics.AverageWin / -metrics.AverageLoss
	}

	return metrics
}

// GetMonthlyReturns returns the monthly profits sorted by month.
func (m *PerformanceMetrics) GetMonthlyReturns() []MonthlyReturn {
	returns := make([]MonthlyReturn, 0, len(m.MonthlyReturns))
	for month, profit := range m.MonthlyReturns {
		date, _ := time.Parse("2006-01", month)
		returns = append(returns, MonthlyReturn{Month: date, Return: profit})
	}
	sort.Slice(returns, func(i, j int) bool {
		return returns[i].Month.Before(returns[j].Month)
	})
	return returns
}
