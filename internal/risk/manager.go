// Package risk gates signals into approved trades: per-strategy position
// bookkeeping, fixed-fractional sizing, the shared daily-loss circuit
// breaker and the portfolio exposure caps.
package risk

import (
	"context"
	"math"
	"sync"
	"time"

	"algoTradeBot/internal/domain"
	"algoTradeBot/internal/ports"
)

// Rejection reason codes carried in Approval.Reason.
const (
	ReasonInvalidInput         = "INVALID_INPUT"
	ReasonMaxDailyLossExceeded = "MAX_DAILY_LOSS_EXCEEDED"
	ReasonAlreadyInPosition    = "ALREADY_IN_POSITION"
	ReasonNoPosition           = "NO_POSITION"
	ReasonMaxOpenPositions     = "MAX_OPEN_POSITIONS"
	ReasonMaxPortfolioExposure = "MAX_PORTFOLIO_EXPOSURE"
	ReasonMaxSectorExposure    = "MAX_SECTOR_EXPOSURE"
)

// Approval is the structured verdict on a proposed trade. Rejections carry
// a reason code instead of an error so orchestrators can branch on policy
// without exception-style control flow.
type Approval struct {
	Approved    bool
	Reason      string
	Quantity    float64
	StopLoss    float64
	Target      float64
	RealizedPnL float64
}

func reject(reason string) Approval {
	return Approval{Reason: reason}
}

// Config holds the risk manager settings.
type Config struct {
	Capital             float64 // account capital (default: 100000)
	RiskPercentPerTrade float64 // percent of capital risked per trade (default: 1)
	StopLossPercent     float64 // stop distance below entry in percent (default: 2)
	TargetPercent       float64 // target distance above entry in percent (default: 3)
	MaxDailyLossPercent float64 // daily loss cap as percent of capital (default: 2)

	Logger ports.Logger     // required
	Now    func() time.Time // clock override for tests (default: time.Now)

	// OnCircuitBreaker fires once per day when the daily-loss cap first
	// rejects an entry.
	OnCircuitBreaker func(day string, loss float64)
}

// Manager approves or rejects trades per strategy key. Position state is
// independent per key; the daily-loss counter is shared across all keys
// and resets at date rollover.
type Manager struct {
	capital             float64
	riskPercentPerTrade float64
	stopLossPercent     float64
	targetPercent       float64
	maxDailyLossPercent float64
	logger              ports.Logger
	now                 func() time.Time
	onCircuitBreaker    func(day string, loss float64)

	mu           sync.Mutex
	positions    map[string]domain.Position
	dailyLoss    float64
	day          string
	breakerFired bool
}

// New creates a risk manager with the given configuration.
func New(cfg Config) (*Manager, error) {
	if cfg.Logger == nil {
		return nil, ports.ErrConfigurationError
	}
	if cfg.Capital == 0 {
		cfg.Capital = 100000
	}
	if cfg.RiskPercentPerTrade == 0 {
		cfg.RiskPercentPerTrade = 1
	}
	if cfg.StopLossPercent == 0 {
		cfg.StopLossPercent = 2
	}
	if cfg.TargetPercent == 0 {
		cfg.TargetPercent = 3
	}
	if cfg.MaxDailyLossPercent == 0 {
		cfg.MaxDailyLossPercent = 2
	}
	if cfg.Capital <= 0 || cfg.RiskPercentPerTrade <= 0 || cfg.StopLossPercent <= 0 ||
		cfg.TargetPercent <= 0 || cfg.MaxDailyLossPercent <= 0 {
		return nil, ports.ErrConfigurationError
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Manager{
		capital:             cfg.Capital,
		riskPercentPerTrade: cfg.RiskPercentPerTrade,
		stopLossPercent:     cfg.StopLossPercent,
		targetPercent:       cfg.TargetPercent,
		maxDailyLossPercent: cfg.MaxDailyLossPercent,
		logger:              cfg.Logger,
		now:                 cfg.Now,
		onCircuitBreaker:    cfg.OnCircuitBreaker,
		positions:           make(map[string]domain.Position),
	}, nil
}

// ApproveTrade gates one signal for one strategy key. BUY opens a tracked
// position with fixed-fractional sizing, SELL closes it and realizes PnL,
// HOLD approves trivially. Calls for the same key must not run
// concurrently from multiple orchestration paths; the internal mutex makes
// interleaved calls safe but not semantically ordered.
func (m *Manager) ApproveTrade(ctx context.Context, signal domain.SignalType, price float64, strategyKey string) Approval {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.rolloverLocked()

	if !signal.IsValid() || math.IsNaN(price) || math.IsInf(price, 0) || price <= 0 {
		m.logger.Warn(ctx, "trade rejected", map[string]interface{}{
			"strategy": strategyKey,
			"signal":   string(signal),
			"price":    price,
			"reason":   ReasonInvalidInput,
		})
		return reject(ReasonInvalidInput)
	}

	switch signal {
	case domain.SignalHold:
		return Approval{Approved: true}
	case domain.SignalBuy:
		return m.approveBuyLocked(ctx, price, strategyKey)
	default:
		return m.approveSellLocked(ctx, price, strategyKey)
	}
}

func (m *Manager) approveBuyLocked(ctx context.Context, price float64, strategyKey string) Approval {
	maxLoss := m.capital * m.maxDailyLossPercent / 100
	if m.dailyLoss >= maxLoss {
		if !m.breakerFired {
			m.breakerFired = true
			m.logger.Warn(ctx, "daily loss circuit breaker tripped", map[string]interface{}{
				"day":       m.day,
				"dailyLoss": m.dailyLoss,
				"maxLoss":   maxLoss,
			})
			if m.onCircuitBreaker != nil {
				m.onCircuitBreaker(m.day, m.dailyLoss)
			}
		}
		return reject(ReasonMaxDailyLossExceeded)
	}
	if _, ok := m.positions[strategyKey]; ok {
		return reject(ReasonAlreadyInPosition)
	}

	quantity := (m.capital * m.riskPercentPerTrade / 100) / (price * m.stopLossPercent / 100)
	stopLoss := price * (1 - m.stopLossPercent/100)
	target := price * (1 + m.targetPercent/100)

	m.positions[strategyKey] = domain.Position{
		Quantity:   quantity,
		EntryPrice: price,
		StopLoss:   stopLoss,
		Target:     target,
		OpenedAt:   m.now(),
	}

	m.logger.Info(ctx, "buy approved", map[string]interface{}{
		"strategy": strategyKey,
		"price":    price,
		"quantity": quantity,
		"stopLoss": stopLoss,
		"target":   target,
	})
	return Approval{Approved: true, Quantity: quantity, StopLoss: stopLoss, Target: target}
}

func (m *Manager) approveSellLocked(ctx context.Context, price float64, strategyKey string) Approval {
	pos, ok := m.positions[strategyKey]
	if !ok {
		return reject(ReasonNoPosition)
	}

	realized := (price - pos.EntryPrice) * pos.Quantity
	if realized < 0 {
		m.dailyLoss += -realized
	}
	delete(m.positions, strategyKey)

	m.logger.Info(ctx, "sell approved", map[string]interface{}{
		"strategy":    strategyKey,
		"price":       price,
		"quantity":    pos.Quantity,
		"realizedPnL": realized,
		"dailyLoss":   m.dailyLoss,
	})
	return Approval{Approved: true, Quantity: pos.Quantity, RealizedPnL: realized}
}

// ClearPosition force-clears a tracked position. Orchestrators call this
// when an approved trade fails downstream so the key is not stuck holding
// a phantom position.
func (m *Manager) ClearPosition(ctx context.Context, strategyKey string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.positions[strategyKey]; !ok {
		return
	}
	delete(m.positions, strategyKey)
	m.logger.Warn(ctx, "position force-cleared", map[string]interface{}{"strategy": strategyKey})
}

// Position returns the tracked position for a strategy key, if any.
func (m *Manager) Position(strategyKey string) (domain.Position, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	pos, ok := m.positions[strategyKey]
	return pos, ok
}

// DailyLoss returns the running daily-loss counter after applying any
// pending date rollover.
func (m *Manager) DailyLoss() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rolloverLocked()
	return m.dailyLoss
}

// rolloverLocked resets the daily counter when the calendar date changes.
func (m *Manager) rolloverLocked() {
	day := m.now().Format("2006-01-02")
	if day != m.day {
		m.day = day
		m.dailyLoss = 0
		m.breakerFired = false
	}
}
