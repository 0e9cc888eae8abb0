package risk

import (
	"context"

	"algoTradeBot/internal/domain"
	"algoTradeBot/internal/ports"
)

// ProposedTrade describes a candidate entry for the portfolio caps.
// Notional exposure is entry price times quantity.
type ProposedTrade struct {
	Token    string
	Symbol   string
	Sector   string // may be empty; sector cap is skipped when it is
	Price    float64
	Quantity float64
}

// Notional returns the market value of the proposed entry.
func (p ProposedTrade) Notional() float64 {
	return p.Price * p.Quantity
}

// PortfolioConfig holds the portfolio-level exposure settings.
type PortfolioConfig struct {
	Capital              float64 // account capital (default: 100000)
	MaxOpenPositions     int     // concurrent position cap (default: 5)
	MaxPortfolioExposure float64 // total notional as fraction of capital (default: 0.60)
	MaxSectorExposure    float64 // per-sector notional as fraction of capital (default: 0.30)

	Logger ports.Logger // required
}

// PortfolioManager enforces the portfolio-wide caps that the per-strategy
// risk manager cannot see: position count, total notional exposure and
// per-sector concentration.
type PortfolioManager struct {
	capital              float64
	maxOpenPositions     int
	maxPortfolioExposure float64
	maxSectorExposure    float64
	logger               ports.Logger
}

// NewPortfolioManager creates a portfolio manager with the given
// configuration.
func NewPortfolioManager(cfg PortfolioConfig) (*PortfolioManager, error) {
	if cfg.Logger == nil {
		return nil, ports.ErrConfigurationError
	}
	if cfg.Capital == 0 {
		cfg.Capital = 100000
	}
	if cfg.MaxOpenPositions == 0 {
		cfg.MaxOpenPositions = 5
	}
	if cfg.MaxPortfolioExposure == 0 {
		cfg.MaxPortfolioExposure = 0.60
	}
	if cfg.MaxSectorExposure == 0 {
		cfg.MaxSectorExposure = 0.30
	}
	if cfg.Capital <= 0 || cfg.MaxOpenPositions <= 0 ||
		cfg.MaxPortfolioExposure <= 0 || cfg.MaxSectorExposure <= 0 {
		return nil, ports.ErrConfigurationError
	}
	return &PortfolioManager{
		capital:              cfg.Capital,
		maxOpenPositions:     cfg.MaxOpenPositions,
		maxPortfolioExposure: cfg.MaxPortfolioExposure,
		maxSectorExposure:    cfg.MaxSectorExposure,
		logger:               cfg.Logger,
	}, nil
}

// CanOpenNewPosition checks a proposed entry against the open book.
// Checks run in fixed order: position count, then total exposure, then
// sector exposure. The sector cap only applies when the proposed trade
// carries a sector tag.
func (p *PortfolioManager) CanOpenNewPosition(ctx context.Context, open []domain.SwingPosition, proposed ProposedTrade) Approval {
	if len(open) >= p.maxOpenPositions {
		p.logger.Warn(ctx, "entry rejected", map[string]interface{}{
			"symbol": proposed.Symbol,
			"open":   len(open),
			"reason": ReasonMaxOpenPositions,
		})
		return reject(ReasonMaxOpenPositions)
	}

	var total float64
	var sector float64
	for _, pos := range open {
		total += pos.Notional()
		if proposed.Sector != "" && pos.Sector == proposed.Sector {
			sector += pos.Notional()
		}
	}

	if (total+proposed.Notional())/p.capital > p.maxPortfolioExposure {
		p.logger.Warn(ctx, "entry rejected", map[string]interface{}{
			"symbol":   proposed.Symbol,
			"exposure": total + proposed.Notional(),
			"reason":   ReasonMaxPortfolioExposure,
		})
		return reject(ReasonMaxPortfolioExposure)
	}

	if proposed.Sector != "" && (sector+proposed.Notional())/p.capital > p.maxSectorExposure {
		p.logger.Warn(ctx, "entry rejected", map[string]interface{}{
			"symbol":   proposed.Symbol,
			"sector":   proposed.Sector,
			"exposure": sector + proposed.Notional(),
			"reason":   ReasonMaxSectorExposure,
		})
		return reject(ReasonMaxSectorExposure)
	}

	return Approval{Approved: true, Quantity: proposed.Quantity}
}

// ExposureController wraps the portfolio manager behind a flat call
// signature so engine code does not depend on its constructor shape.
type ExposureController struct {
	portfolio *PortfolioManager
}

// NewExposureController wraps an existing portfolio manager.
func NewExposureController(portfolio *PortfolioManager) *ExposureController {
	return &ExposureController{portfolio: portfolio}
}

// Approve builds the proposed trade from its parts and delegates to the
// portfolio caps.
func (e *ExposureController) Approve(ctx context.Context, open []domain.SwingPosition, token, symbol, sector string, price, quantity float64) Approval {
	return e.portfolio.CanOpenNewPosition(ctx, open, ProposedTrade{
		Token:    token,
		Symbol:   symbol,
		Sector:   sector,
		Price:    price,
		Quantity: quantity,
	})
}
