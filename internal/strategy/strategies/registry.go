package strategies

import (
	"fmt"
	"strings"

	"algoTradeBot/internal/ports"
)

// Kind identifies a strategy variant in configuration.
type Kind int

const (
	KindEMACross Kind = iota
	KindBreakout
	KindRSIReversal
)

func (k Kind) String() string {
	switch k {
	case KindEMACross:
		return "ema_crossover"
	case KindBreakout:
		return "breakout"
	case KindRSIReversal:
		return "rsi_reversal"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// ParseKind resolves a configuration string to a strategy kind. Matching
// is case-insensitive and accepts the short aliases used in env files.
func ParseKind(s string) (Kind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "ema_crossover", "ema_cross", "emacross", "ema":
		return KindEMACross, nil
	case "breakout":
		return KindBreakout, nil
	case "rsi_reversal", "rsireversal", "rsi":
		return KindRSIReversal, nil
	default:
		return 0, fmt.Errorf("%w: unknown strategy kind %q", ports.ErrConfigurationError, s)
	}
}

// Options carries the tunable knobs for every variant; zero values take
// the variant's defaults, and knobs a variant does not use are ignored.
type Options struct {
	FastPeriod int
	SlowPeriod int
	Lookback   int
	RSIPeriod  int
	Oversold   float64
	Overbought float64
	MaxBuffer  int
}

// New builds a strategy of the given kind.
func New(kind Kind, opts Options, logger ports.Logger) (ports.Strategy, error) {
	switch kind {
	case KindEMACross:
		return NewEMACross(EMACrossConfig{
			FastPeriod: opts.FastPeriod,
			SlowPeriod: opts.SlowPeriod,
			MaxBuffer:  opts.MaxBuffer,
		}, logger)
	case KindBreakout:
		return NewBreakout(BreakoutConfig{
			Lookback:  opts.Lookback,
			MaxBuffer: opts.MaxBuffer,
		}, logger)
	case KindRSIReversal:
		return NewRSIReversal(RSIReversalConfig{
			Period:     opts.RSIPeriod,
			Oversold:   opts.Oversold,
			Overbought: opts.Overbought,
			MaxBuffer:  opts.MaxBuffer,
		}, logger)
	default:
		return nil, fmt.Errorf("%w: unknown strategy kind %d", ports.ErrConfigurationError, kind)
	}
}
