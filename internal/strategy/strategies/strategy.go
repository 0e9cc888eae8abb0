// Package strategies holds the strategy state machines that turn a candle
// stream into BUY/SELL/HOLD signals. Each instance owns its rolling price
// buffer and its FLAT/LONG state; instances are never shared across
// instruments.
package strategies

import (
	"context"

	"algoTradeBot/internal/domain"
	"algoTradeBot/internal/ports"
)

// defaultMaxBuffer bounds the rolling close history. Constructors reject a
// cap smaller than the strategy's own lookback, so shrinking it below a new
// indicator's window fails loudly instead of starving the calculation.
const defaultMaxBuffer = 200

// BaseStrategy provides the state shared by all strategy variants: the
// FLAT/LONG position state, the capped close buffer and the repeat-HOLD
// suppression.
type BaseStrategy struct {
	logger    ports.Logger
	name      string
	maxBuffer int

	state    domain.StrategyState
	closes   []float64
	lastType domain.SignalType
}

// NewBaseStrategy creates the shared strategy core.
func NewBaseStrategy(name string, maxBuffer int, logger ports.Logger) *BaseStrategy {
	return &BaseStrategy{
		logger:    logger,
		name:      name,
		maxBuffer: maxBuffer,
		state:     domain.StateFlat,
	}
}

// Name returns the strategy's registry name, also used as its risk key.
func (b *BaseStrategy) Name() string {
	return b.name
}

// State returns the current position state.
func (b *BaseStrategy) State() domain.StrategyState {
	return b.state
}

func (b *BaseStrategy) appendClose(c float64) {
	b.closes = append(b.closes, c)
	if len(b.closes) > b.maxBuffer {
		b.closes = b.closes[len(b.closes)-b.maxBuffer:]
	}
}

// resolve applies the shared state machine to the variant's desired signal.
// BUY transitions only from FLAT and SELL only from LONG; anything else
// degrades to HOLD. A HOLD that repeats the previous emission is suppressed
// by returning nil.
func (b *BaseStrategy) resolve(ctx context.Context, desired domain.SignalType, candle domain.Candle, indicators map[string]float64) *domain.Signal {
	switch {
	case desired == domain.SignalBuy && b.state == domain.StateFlat:
		b.state = domain.StateLong
	case desired == domain.SignalSell && b.state == domain.StateLong:
		b.state = domain.StateFlat
	default:
		desired = domain.SignalHold
	}

	if desired == domain.SignalHold && b.lastType == domain.SignalHold {
		return nil
	}
	b.lastType = desired

	if desired != domain.SignalHold {
		b.logger.Info(ctx, "strategy signal", map[string]interface{}{
			"strategy": b.name,
			"signal":   string(desired),
			"state":    string(b.state),
			"close":    candle.Close,
			"time":     candle.Time,
		})
	}

	return &domain.Signal{
		Type:       desired,
		State:      b.state,
		Strategy:   b.name,
		Candle:     candle,
		Indicators: indicators,
	}
}
