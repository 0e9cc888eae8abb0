// Package optimization sweeps strategy parameter grids over historical data.
package optimization

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"

	"algoTradeBot/internal/domain"
	"algoTradeBot/internal/ports"
	"algoTradeBot/internal/risk"
	"algoTradeBot/internal/strategy/analytics"
	"algoTradeBot/internal/strategy/backtesting"
	"algoTradeBot/internal/strategy/strategies"

	"github.com/alitto/pond"
)

// Parameter names accepted in ranges. Names a strategy kind does not use
// are ignored by its constructor.
const (
	ParamFastPeriod = "fast_period"
	ParamSlowPeriod = "slow_period"
	ParamLookback   = "lookback"
	ParamRSIPeriod  = "rsi_period"
	ParamOversold   = "oversold"
	ParamOverbought = "overbought"
)

// ParameterRange defines the sweep grid for one parameter.
type ParameterRange struct {
	Name  string
	Min   float64
	Max   float64
	Step  float64
	IsInt bool
}

// Result is the outcome of one parameter combination.
type Result struct {
	Parameters map[string]float64
	Metrics    *analytics.PerformanceMetrics
	Score      float64
}

// Config holds the sweep setup.
type Config struct {
	Ranges   []ParameterRange
	Workers  int                // concurrent backtests, default 4
	Risk     risk.Config        // a fresh manager is built from this per combination
	Backtest backtesting.Config // shared run settings
	Score    func(*analytics.PerformanceMetrics) float64
	Logger   ports.Logger
}

// Optimizer runs a full grid sweep of strategy parameters.
type Optimizer struct {
	cfg Config
}

// New creates an optimizer.
func New(cfg Config) (*Optimizer, error) {
	if cfg.Logger == nil {
		return nil, fmt.Errorf("%w: logger is required", ports.ErrConfigurationError)
	}
	if len(cfg.Ranges) == 0 {
		return nil, fmt.Errorf("%w: at least one parameter range is required", ports.ErrConfigurationError)
	}
	for _, r := range cfg.Ranges {
		if r.Step <= 0 || r.Max < r.Min {
			return nil, fmt.Errorf("%w: bad range for %s", ports.ErrConfigurationError, r.Name)
		}
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 4
	}
	if cfg.Score == nil {
		cfg.Score = DefaultScore
	}
	if cfg.Risk.Logger == nil {
		cfg.Risk.Logger = cfg.Logger
	}
	return &Optimizer{cfg: cfg}, nil
}

// Optimize backtests every combination in the grid and returns the results
// sorted by score, best first. Combinations whose strategy cannot be built
// or whose backtest fails are logged and skipped.
func (o *Optimizer) Optimize(ctx context.Context, kind strategies.Kind, candles []domain.Candle) ([]Result, error) {
	combinations := o.combinations()
	if len(combinations) == 0 {
		return nil, fmt.Errorf("%w: parameter grid is empty", ports.ErrInvalidRequest)
	}

	var mu sync.Mutex
	results := make([]Result, 0, len(combinations))

	pool := pond.New(o.cfg.Workers, len(combinations))
	for _, params := range combinations {
		params := params
		pool.Submit(func() {
			if ctx.Err() != nil {
				return
			}
			res, err := o.runOne(ctx, kind, params, candles)
			if err != nil {
				o.cfg.Logger.Warn(ctx, "combination skipped", map[string]interface{}{
					"params": params,
					"error":  err.Error(),
				})
				return
			}
			mu.Lock()
			results = append(results, res)
			mu.Unlock()
		})
	}
	pool.StopAndWait()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	sort.Slice(results, func(i, j int) bool { return results[i].Score > results[j].Score })
	return results, nil
}

func (o *Optimizer) runOne(ctx context.Context, kind strategies.Kind, params map[string]float64, candles []domain.Candle) (Result, error) {
	strat, err := strategies.New(kind, optionsFrom(params), o.cfg.Logger)
	if err != nil {
		return Result{}, err
	}

	riskMgr, err := risk.New(o.cfg.Risk)
	if err != nil {
		return Result{}, err
	}

	run, err := backtesting.Run(ctx, strat, riskMgr, candles, o.cfg.Backtest)
	if err != nil {
		return Result{}, err
	}

	metrics := analytics.AnalyzePerformance(run.Trades, o.cfg.Backtest.InitialFunds)
	return Result{
		Parameters: params,
		Metrics:    metrics,
		Score:      o.cfg.Score(metrics),
	}, nil
}

// combinations expands the ranges into the full cartesian grid.
func (o *Optimizer) combinations() []map[string]float64 {
	var out []map[string]float64
	current := make(map[string]float64)

	var generate func(int)
	generate = func(idx int) {
		if idx == len(o.cfg.Ranges) {
			combo := make(map[string]float64, len(current))
			for k, v := range current {
				combo[k] = v
			}
			out = append(out, combo)
			return
		}

		r := o.cfg.Ranges[idx]
		// Half-step epsilon so Max itself survives float accumulation.
		for value := r.Min; value <= r.Max+r.Step/2; value += r.Step {
			v := value
			if r.IsInt {
				v = math.Round(v)
			}
			current[r.Name] = v
			generate(idx + 1)
		}
		delete(current, r.Name)
	}

	generate(0)
	return out
}

func optionsFrom(params map[string]float64) strategies.Options {
	return strategies.Options{
		FastPeriod: int(params[ParamFastPeriod]),
		SlowPeriod: int(params[ParamSlowPeriod]),
		Lookback:   int(params[ParamLookback]),
		RSIPeriod:  int(params[ParamRSIPeriod]),
		Oversold:   params[ParamOversold],
		Overbought: params[ParamOverbought],
	}
}

// DefaultScore blends win rate, profit factor, drawdown and return into a
// single ranking value.
func DefaultScore(m *analytics.PerformanceMetrics) float64 {
	score := 0.0
	score += m.WinRate * 0.3
	score += m.ProfitFactor * 0.2
	score += (1 - m.MaxDrawdown) * 0.2
	score += m.ReturnOnInvestment * 0.2
	score += m.RiskRewardRatio * 0.1
	return score
}
