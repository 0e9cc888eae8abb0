package risk

import (
	"context"
	"math"

	"algoTradeBot/internal/domain"
	"algoTradeBot/internal/ports"
	"algoTradeBot/internal/strategy/indicators"
)

// SizerConfig holds the volatility-based position sizer settings.
type SizerConfig struct {
	Capital      float64 // account capital (default: 100000)
	RiskPerTrade float64 // fraction of capital risked per trade (default: 0.01)
	ATRPeriod    int     // ATR lookback in daily candles (default: 14)

	Logger ports.Logger // required
}

// PositionSizer converts daily volatility into a whole-share quantity:
// floor(capital * riskPerTrade / ATR). Wider daily ranges produce smaller
// positions so the rupee risk per trade stays roughly constant.
type PositionSizer struct {
	capital      float64
	riskPerTrade float64
	atrPeriod    int
	logger       ports.Logger
}

// NewPositionSizer creates a position sizer with the given configuration.
func NewPositionSizer(cfg SizerConfig) (*PositionSizer, error) {
	if cfg.Logger == nil {
		return nil, ports.ErrConfigurationError
	}
	if cfg.Capital == 0 {
		cfg.Capital = 100000
	}
	if cfg.RiskPerTrade == 0 {
		cfg.RiskPerTrade = 0.01
	}
	if cfg.ATRPeriod == 0 {
		cfg.ATRPeriod = 14
	}
	if cfg.Capital <= 0 || cfg.RiskPerTrade <= 0 || cfg.ATRPeriod <= 0 {
		return nil, ports.ErrConfigurationError
	}
	return &PositionSizer{
		capital:      cfg.Capital,
		riskPerTrade: cfg.RiskPerTrade,
		atrPeriod:    cfg.ATRPeriod,
		logger:       cfg.Logger,
	}, nil
}

// Quantity returns the whole-share position size for an entry at price,
// given recent daily candles. Returns 0 when the price is invalid or the
// ATR cannot be computed, so callers skip the trade instead of guessing.
func (s *PositionSizer) Quantity(ctx context.Context, dailyCandles []domain.Candle, price float64) float64 {
	if math.IsNaN(price) || math.IsInf(price, 0) || price <= 0 {
		return 0
	}
	atr, err := indicators.ATR(dailyCandles, s.atrPeriod)
	if err != nil || atr <= 0 {
		s.logger.Debug(ctx, "position sizing skipped", map[string]interface{}{
			"candles": len(dailyCandles),
			"period":  s.atrPeriod,
		})
		return 0
	}
	qty := math.Floor(s.capital * s.riskPerTrade / atr)
	s.logger.Debug(ctx, "position sized", map[string]interface{}{
		"price":    price,
		"atr":      atr,
		"quantity": qty,
	})
	return qty
}

// ATRPeriod returns the configured lookback so callers can fetch enough
// history before sizing.
func (s *PositionSizer) ATRPeriod() int { return s.atrPeriod }

// MinCandles returns the minimum candle count needed for one ATR value at
// the configured period.
func (s *PositionSizer) MinCandles() int { return s.atrPeriod + 1 }
