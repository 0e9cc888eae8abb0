package strategies

import (
	"context"
	"fmt"

	"algoTradeBot/internal/domain"
	"algoTradeBot/internal/ports"
)

// BreakoutConfig holds configuration for the breakout strategy.
type BreakoutConfig struct {
	Lookback  int // prior bars forming the breakout range (default: 20)
	MaxBuffer int // history cap (default: 200)
}

// Breakout trades range breaks: BUY when the close exceeds the highest
// high of the prior lookback bars (the current bar excluded) and the
// previous close did not, SELL on the mirrored break below the lowest low
// while LONG. Tracking the previous bar's break keeps the strategy from
// re-firing on every bar of an extended run.
type Breakout struct {
	*BaseStrategy
	lookback int

	highs, lows   []float64
	prevBrokeHigh bool
	prevBrokeLow  bool
}

// NewBreakout creates a breakout strategy instance.
func NewBreakout(cfg BreakoutConfig, logger ports.Logger) (*Breakout, error) {
	if logger == nil {
		return nil, fmt.Errorf("logger is required for strategy")
	}
	if cfg.Lookback == 0 {
		cfg.Lookback = 20
	}
	if cfg.MaxBuffer == 0 {
		cfg.MaxBuffer = defaultMaxBuffer
	}
	if cfg.Lookback <= 0 {
		return nil, fmt.Errorf("strategy periods must be positive")
	}
	if cfg.MaxBuffer < cfg.Lookback+1 {
		return nil, fmt.Errorf("history cap %d cannot hold lookback %d plus the current bar", cfg.MaxBuffer, cfg.Lookback)
	}

	return &Breakout{
		BaseStrategy: NewBaseStrategy("breakout", cfg.MaxBuffer, logger),
		lookback:     cfg.Lookback,
	}, nil
}

// OnCandle folds one candle into the strategy and returns the resulting
// signal, or nil while warming up or repeating a HOLD.
func (b *Breakout) OnCandle(ctx context.Context, candle domain.Candle) *domain.Signal {
	b.appendClose(candle.Close)
	b.highs = appendCapped(b.highs, candle.High, b.maxBuffer)
	b.lows = appendCapped(b.lows, candle.Low, b.maxBuffer)

	if len(b.highs) < b.lookback+1 {
		return nil
	}

	// Range of the lookback bars before the current one.
	window := len(b.highs) - 1
	rangeHigh := b.highs[window-b.lookback]
	rangeLow := b.lows[window-b.lookback]
	for i := window - b.lookback + 1; i < window; i++ {
		if b.highs[i] > rangeHigh {
			rangeHigh = b.highs[i]
		}
		if b.lows[i] < rangeLow {
			rangeLow = b.lows[i]
		}
	}

	brokeHigh := candle.Close > rangeHigh
	brokeLow := candle.Close < rangeLow

	desired := domain.SignalHold
	switch {
	case brokeHigh && !b.prevBrokeHigh:
		desired = domain.SignalBuy
	case brokeLow && !b.prevBrokeLow:
		desired = domain.SignalSell
	}
	b.prevBrokeHigh = brokeHigh
	b.prevBrokeLow = brokeLow

	return b.resolve(ctx, desired, candle, map[string]float64{
		"rangeHigh": rangeHigh,
		"rangeLow":  rangeLow,
	})
}

func appendCapped(s []float64, v float64, limit int) []float64 {
	s = append(s, v)
	if len(s) > limit {
		s = s[len(s)-limit:]
	}
	return s
}
