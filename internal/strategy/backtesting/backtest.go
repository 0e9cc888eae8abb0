// Package backtesting replays historical candles through the live strategy
// and risk path to estimate how a configuration would have traded.
package backtesting

import (
	"context"
	"fmt"
	"math"
	"sort"

	"algoTradeBot/internal/domain"
	"algoTradeBot/internal/ports"
	"algoTradeBot/internal/risk"
)

// Config holds the knobs for one backtest run.
type Config struct {
	Symbol       string  // instrument the candles belong to
	InitialFunds float64 // starting balance for the equity curve
}

// Result aggregates the outcome of one run. Trades holds closed trades in
// entry order; a position still open when the data runs out is left on Open.
type Result struct {
	TotalTrades        int
	WinningTrades      int
	LosingTrades       int
	WinRate            float64
	TotalProfit        float64
	MaxDrawdown        float64
	ProfitFactor       float64
	AverageWin         float64
	AverageLoss        float64
	SharpeRatio        float64
	FinalBalance       float64
	ReturnOnInvestment float64
	Trades             []*domain.Trade
	Open               *domain.Trade
	Rejections         map[string]int
}

// Run replays the candles through the strategy and the risk manager.
//
// Exits are signal-driven, exactly as in the live pipeline: stop and target
// levels are recorded on the trade rows but not simulated intrabar. The risk
// manager keeps its position and daily-loss state across calls, so pass a
// fresh one per run.
func Run(ctx context.Context, strat ports.Strategy, riskMgr *risk.Manager, candles []domain.Candle, cfg Config) (*Result, error) {
	if strat == nil {
		return nil, fmt.Errorf("%w: strategy is required", ports.ErrConfigurationError)
	}
	if riskMgr == nil {
		return nil, fmt.Errorf("%w: risk manager is required", ports.ErrConfigurationError)
	}
	if len(candles) == 0 {
		return nil, fmt.Errorf("%w: no candles to replay", ports.ErrInvalidRequest)
	}
	if cfg.InitialFunds <= 0 {
		cfg.InitialFunds = 100000
	}

	sorted := make([]domain.Candle, len(candles))
	copy(sorted, candles)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Time.Before(sorted[j].Time) })

	result := &Result{
		FinalBalance: cfg.InitialFunds,
		Rejections:   make(map[string]int),
	}

	var open *domain.Trade
	var grossProfit, grossLoss float64
	var returns []float64
	balance := cfg.InitialFunds
	peak := cfg.InitialFunds

	for _, candle := range sorted {
		sig := strat.OnCandle(ctx, candle)
		if sig == nil || sig.Type == domain.SignalHold {
			continue
		}

		approval := riskMgr.ApproveTrade(ctx, sig.Type, candle.Close, strat.Name())
		if !approval.Approved {
			result.Rejections[approval.Reason]++
			continue
		}

		switch sig.Type {
		case domain.SignalBuy:
			open = &domain.Trade{
				Symbol:     cfg.Symbol,
				Strategy:   strat.Name(),
				Quantity:   approval.Quantity,
				EntryPrice: candle.Close,
				StopLoss:   approval.StopLoss,
				Target:     approval.Target,
				Status:     domain.TradeOpen,
				EntryTime:  candle.Time,
			}
			result.TotalTrades++

		case domain.SignalSell:
			if open == nil {
				continue
			}
			pnl := approval.RealizedPnL
			exitPrice := candle.Close
			exitTime := candle.Time
			open.ExitPrice = &exitPrice
			open.PnL = &pnl
			open.ExitTime = &exitTime
			open.Status = domain.TradeClosed

			if balance > 0 {
				returns = append(returns, pnl/balance)
			}
			balance += pnl
			result.TotalProfit += pnl
			result.FinalBalance = balance

			if pnl > 0 {
				result.WinningTrades++
				grossProfit += pnl
				result.AverageWin = grossProfit / float64(result.WinningTrades)
			} else {
				result.LosingTrades++
				grossLoss += -pnl
				result.AverageLoss = -grossLoss / float64(result.LosingTrades)
			}

			if balance > peak {
				peak = balance
			}
			if peak > 0 {
				if dd := (peak - balance) / peak; dd > result.MaxDrawdown {
					result.MaxDrawdown = dd
				}
			}

			result.Trades = append(result.Trades, open)
			open = nil
		}
	}

	result.Open = open

	closed := result.WinningTrades + result.LosingTrades
	if closed > 0 {
		result.WinRate = float64(result.WinningTrades) / float64(closed)
	}
	if grossLoss > 0 {
		result.ProfitFactor = grossProfit / grossLoss
	}
	result.ReturnOnInvestment = (result.FinalBalance - cfg.InitialFunds) / cfg.InitialFunds
	result.SharpeRatio = sharpeRatio(returns)

	return result, nil
}

// sharpeRatio computes mean/stddev of per-trade returns, risk-free rate 0.
func sharpeRatio(returns []float64) float64 {
	if len(returns) < 2 {
		return 0
	}

	var sum float64
	for _, r := range returns {
		sum += r
	}
	mean := sum / float64(len(returns))

	var variance float64
	for _, r := range returns {
		variance += (r - mean) * (r - mean)
	}
	variance /= float64(len(returns) - 1)

	stdDev := math.Sqrt(variance)
	if stdDev == 0 {
		return 0
	}
	return mean / stdDev
}
