// Package watchlist loads the instrument universe the portfolio engine scans.
package watchlist

import (
	"fmt"
	"os"

	"algoTradeBot/internal/ports"

	"gopkg.in/yaml.v3"
)

// Instrument is one scannable equity. Token is the feed/broker instrument
// token, Sector groups instruments for the sector exposure cap and may be
// empty for unclassified names.
type Instrument struct {
	Symbol string `yaml:"symbol"`
	Token  string `yaml:"token"`
	Sector string `yaml:"sector"`
}

// Watchlist is the parsed instrument file.
type Watchlist struct {
	Instruments []Instrument `yaml:"instruments"`
}

// Load reads and validates a watchlist YAML file.
func Load(path string) (*Watchlist, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read watchlist file: %w", err)
	}
	return Parse(data)
}

// Parse validates raw watchlist YAML.
func Parse(data []byte) (*Watchlist, error) {
	var wl Watchlist
	if err := yaml.Unmarshal(data, &wl); err != nil {
		return nil, fmt.Errorf("failed to parse watchlist: %w", err)
	}
	if err := wl.validate(); err != nil {
		return nil, err
	}
	return &wl, nil
}

func (w *Watchlist) validate() error {
	if len(w.Instruments) == 0 {
		return fmt.Errorf("%w: watchlist has no instruments", ports.ErrConfigurationError)
	}

	seen := make(map[string]string, len(w.Instruments))
	for i, inst := range w.Instruments {
		if inst.Symbol == "" {
			return fmt.Errorf("%w: instrument %d has no symbol", ports.ErrConfigurationError, i)
		}
		if inst.Token == "" {
			return fmt.Errorf("%w: instrument %q has no token", ports.ErrConfigurationError, inst.Symbol)
		}
		if prev, dup := seen[inst.Token]; dup {
			return fmt.Errorf("%w: token %s used by both %s and %s", ports.ErrConfigurationError, inst.Token, prev, inst.Symbol)
		}
		seen[inst.Token] = inst.Symbol
	}
	return nil
}

// Tokens returns the instrument tokens in file order.
func (w *Watchlist) Tokens() []string {
	tokens := make([]string, len(w.Instruments))
	for i, inst := range w.Instruments {
		tokens[i] = inst.Token
	}
	return tokens
}

// ByToken returns the instrument with the given token.
func (w *Watchlist) ByToken(token string) (Instrument, bool) {
	for _, inst := range w.Instruments {
		if inst.Token == token {
			return inst, true
		}
	}
	return Instrument{}, false
}

// BySymbol returns the instrument with the given trading symbol.
func (w *Watchlist) BySymbol(symbol string) (Instrument, bool) {
	for _, inst := range w.Instruments {
		if inst.Symbol == symbol {
			return inst, true
		}
	}
	return Instrument{}, false
}
