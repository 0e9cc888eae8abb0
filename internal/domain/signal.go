package domain

// SignalType is the action a strategy proposes for one candle.
type SignalType string

const (
	SignalBuy  SignalType = "BUY"
	SignalSell SignalType = "SELL"
	SignalHold SignalType = "HOLD"
)

// IsValid reports whether the signal type is one of BUY, SELL or HOLD.
func (s SignalType) IsValid() bool {
	switch s {
	case SignalBuy, SignalSell, SignalHold:
		return true
	}
	return false
}

// StrategyState is the position state of a single strategy instance.
type StrategyState string

const (
	StateFlat StrategyState = "FLAT"
	StateLong StrategyState = "LONG"
)

// Signal is one strategy decision for one candle. State is the state after
// any transition the candle caused. Indicators carries the values the
// decision was based on, keyed by indicator name. Signals are transient and
// only forwarded downstream, never stored.
type Signal struct {
	Type       SignalType
	State      StrategyState
	Strategy   string
	Candle     Candle
	Indicators map[string]float64
}
