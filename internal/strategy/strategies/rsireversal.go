package strategies

import (
	"context"
	"fmt"

	"algoTradeBot/internal/domain"
	"algoTradeBot/internal/ports"
	"algoTradeBot/internal/strategy/indicators"
)

// RSIReversalConfig holds configuration for the RSI reversal strategy.
type RSIReversalConfig struct {
	Period     int     // RSI period (default: 14)
	Oversold   float64 // buy threshold (default: 30)
	Overbought float64 // sell threshold (default: 70)
	MaxBuffer  int     // close history cap (default: 200)
}

// RSIReversal trades threshold crossings: BUY when the RSI crosses up
// through the oversold level while FLAT, SELL when it crosses down through
// the overbought level while LONG. Sitting beyond a threshold is not
// enough; the bar-to-bar crossing is what fires.
type RSIReversal struct {
	*BaseStrategy
	period     int
	oversold   float64
	overbought float64

	lastRSI float64
	hasLast bool
}

// NewRSIReversal creates an RSI reversal strategy instance.
func NewRSIReversal(cfg RSIReversalConfig, logger ports.Logger) (*RSIReversal, error) {
	if logger == nil {
		return nil, fmt.Errorf("logger is required for strategy")
	}
	if cfg.Period == 0 {
		cfg.Period = 14
	}
	if cfg.Oversold == 0 {
		cfg.Oversold = 30
	}
	if cfg.Overbought == 0 {
		cfg.Overbought = 70
	}
	if cfg.MaxBuffer == 0 {
		cfg.MaxBuffer = defaultMaxBuffer
	}
	if cfg.Period <= 0 {
		return nil, fmt.Errorf("strategy periods must be positive")
	}
	if cfg.Oversold >= cfg.Overbought {
		return nil, fmt.Errorf("oversold threshold must be below overbought threshold")
	}
	if cfg.MaxBuffer < cfg.Period+1 {
		return nil, fmt.Errorf("close buffer cap %d cannot hold RSI period %d plus one", cfg.MaxBuffer, cfg.Period)
	}

	return &RSIReversal{
		BaseStrategy: NewBaseStrategy("rsi_reversal", cfg.MaxBuffer, logger),
		period:       cfg.Period,
		oversold:     cfg.Oversold,
		overbought:   cfg.Overbought,
	}, nil
}

// OnCandle folds one candle into the strategy and returns the resulting
// signal, or nil while warming up or repeating a HOLD.
func (r *RSIReversal) OnCandle(ctx context.Context, candle domain.Candle) *domain.Signal {
	r.appendClose(candle.Close)
	if len(r.closes) <= r.period {
		return nil
	}

	rsi, err := indicators.RSI(r.closes, r.period)
	if err != nil {
		r.logger.Error(ctx, err, "failed to calculate RSI", map[string]interface{}{"strategy": r.name})
		return nil
	}

	desired := domain.SignalHold
	if r.hasLast {
		switch {
		case r.lastRSI <= r.oversold && rsi > r.oversold:
			desired = domain.SignalBuy
		case r.lastRSI >= r.overbought && rsi < r.overbought:
			desired = domain.SignalSell
		}
	}
	r.lastRSI = rsi
	r.hasLast = true

	return r.resolve(ctx, desired, candle, map[string]float64{
		"rsi": rsi,
	})
}
