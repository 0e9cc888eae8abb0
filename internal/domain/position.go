package domain

import "time"

// Position is a risk-tracked open position, keyed by strategy name inside
// the risk manager. At most one exists per key at any time.
type Position struct {
	Quantity   float64   // units held, always > 0
	EntryPrice float64   // approved entry price
	StopLoss   float64   // stop-loss level derived from the entry
	Target     float64   // target level derived from the entry
	OpenedAt   time.Time // when the BUY was approved
}

// BrokerPosition is the executor's view of the position created by a filled
// order. It exists only between a successful BUY and the matching SELL.
type BrokerPosition struct {
	Side       OrderSide
	Quantity   float64
	OrderID    string // broker order number from the placement response
	EntryPrice float64
	OpenedAt   time.Time
}

// SwingPosition is an open swing position, keyed by instrument token in the
// portfolio position store.
type SwingPosition struct {
	Token      string // instrument token
	Symbol     string // trading symbol
	Sector     string // sector tag for exposure caps, may be empty
	Quantity   float64
	EntryPrice float64
	StopLoss   float64
	OpenedAt   time.Time
}

// Notional returns the market value of the position at entry.
func (p SwingPosition) Notional() float64 {
	return p.EntryPrice * p.Quantity
}
