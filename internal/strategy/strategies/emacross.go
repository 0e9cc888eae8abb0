package strategies

import (
	"context"
	"fmt"

	"algoTradeBot/internal/domain"
	"algoTradeBot/internal/ports"
	"algoTradeBot/internal/strategy/indicators"
)

// EMACrossConfig holds configuration for the EMA crossover strategy.
type EMACrossConfig struct {
	FastPeriod int // fast EMA period (default: 9)
	SlowPeriod int // slow EMA period (default: 21)
	MaxBuffer  int // close history cap (default: 200)
}

// EMACross trades the fast/slow EMA crossover: BUY when the fast EMA
// crosses from at-or-below to above the slow EMA while FLAT, SELL on the
// converse cross while LONG.
type EMACross struct {
	*BaseStrategy
	fastPeriod int
	slowPeriod int

	prevFast, prevSlow float64
	curFast, curSlow   float64
	ready              bool
	prevReady          bool
}

// NewEMACross creates an EMA crossover strategy instance.
func NewEMACross(cfg EMACrossConfig, logger ports.Logger) (*EMACross, error) {
	if logger == nil {
		return nil, fmt.Errorf("logger is required for strategy")
	}
	if cfg.FastPeriod == 0 {
		cfg.FastPeriod = 9
	}
	if cfg.SlowPeriod == 0 {
		cfg.SlowPeriod = 21
	}
	if cfg.MaxBuffer == 0 {
		cfg.MaxBuffer = defaultMaxBuffer
	}
	if cfg.FastPeriod <= 0 || cfg.SlowPeriod <= 0 {
		return nil, fmt.Errorf("strategy periods must be positive")
	}
	if cfg.FastPeriod >= cfg.SlowPeriod {
		return nil, fmt.Errorf("fast EMA period must be less than slow EMA period")
	}
	if cfg.MaxBuffer < cfg.SlowPeriod {
		return nil, fmt.Errorf("close buffer cap %d cannot hold the slow EMA period %d", cfg.MaxBuffer, cfg.SlowPeriod)
	}

	return &EMACross{
		BaseStrategy: NewBaseStrategy("ema_crossover", cfg.MaxBuffer, logger),
		fastPeriod:   cfg.FastPeriod,
		slowPeriod:   cfg.SlowPeriod,
	}, nil
}

// OnCandle folds one candle into the strategy and returns the resulting
// signal, or nil while warming up or repeating a HOLD.
func (e *EMACross) OnCandle(ctx context.Context, candle domain.Candle) *domain.Signal {
	e.appendClose(candle.Close)
	if len(e.closes) < e.slowPeriod {
		return nil
	}

	fast, err := indicators.EMA(e.closes, e.fastPeriod)
	if err != nil {
		e.logger.Error(ctx, err, "failed to calculate fast EMA", map[string]interface{}{"strategy": e.name})
		return nil
	}
	slow, err := indicators.EMA(e.closes, e.slowPeriod)
	if err != nil {
		e.logger.Error(ctx, err, "failed to calculate slow EMA", map[string]interface{}{"strategy": e.name})
		return nil
	}

	if e.ready {
		e.prevFast, e.prevSlow = e.curFast, e.curSlow
		e.prevReady = true
	}
	e.curFast, e.curSlow = fast, slow
	e.ready = true

	desired := domain.SignalHold
	if e.prevReady {
		switch {
		case e.prevFast <= e.prevSlow && e.curFast > e.curSlow:
			desired = domain.SignalBuy
		case e.prevFast > e.prevSlow && e.curFast <= e.curSlow:
			desired = domain.SignalSell
		}
	}

	return e.resolve(ctx, desired, candle, map[string]float64{
		"emaFast": fast,
		"emaSlow": slow,
	})
}

// IsBullish reports whether the fast EMA sits above the slow EMA. It
// errors until enough candles have been replayed to compute both.
func (e *EMACross) IsBullish() (bool, error) {
	if !e.ready {
		return false, fmt.Errorf("%w: %d closes for slow EMA period %d", indicators.ErrInsufficientData, len(e.closes), e.slowPeriod)
	}
	return e.curFast > e.curSlow, nil
}

// FreshCrossover reports a crossover between the previous and current EMA
// values without touching the position state. Callers that replay history
// into a throwaway instance use this to ask "did the last bar cross".
func (e *EMACross) FreshCrossover() (domain.SignalType, bool) {
	if !e.prevReady {
		return "", false
	}
	switch {
	case e.prevFast <= e.prevSlow && e.curFast > e.curSlow:
		return domain.SignalBuy, true
	case e.prevFast > e.prevSlow && e.curFast <= e.curSlow:
		return domain.SignalSell, true
	}
	return "", false
}
