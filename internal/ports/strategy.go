package ports

import (
	"context"

	"algoTradeBot/internal/domain"
)

// Strategy is one state-machine trading strategy instance. Implementations
// hold their own rolling windows and FLAT/LONG state; an instance is owned
// by exactly one (strategy, instrument) pipeline and never shared.
type Strategy interface {
	// Name returns the strategy's registry name.
	Name() string

	// OnCandle consumes one completed candle and returns the resulting
	// signal. A nil return means the strategy is still warming up or the
	// signal was a suppressed repeat HOLD.
	OnCandle(ctx context.Context, candle domain.Candle) *domain.Signal

	// State returns the current position state of the instance.
	State() domain.StrategyState
}
