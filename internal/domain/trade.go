package domain

import "time"

// TradeStatus tracks whether a journal record still has an open exit leg.
type TradeStatus string

const (
	TradeOpen   TradeStatus = "OPEN"
	TradeClosed TradeStatus = "CLOSED"
)

// Trade is one append-only journal record. It is created when an entry
// fills, transitions to CLOSED exactly once when the matching exit fills,
// and is never deleted. Only the journal writer invoked by an orchestrator
// mutates it.
type Trade struct {
	ID         int64       // database identifier
	Symbol     string      // trading symbol
	Strategy   string      // strategy that produced the entry
	Quantity   float64     // units traded
	EntryPrice float64     // fill price of the entry
	StopLoss   float64     // stop level recorded at entry, 0 if none
	Target     float64     // target level recorded at entry, 0 if none
	ExitPrice  *float64    // nil while open
	PnL        *float64    // realized profit and loss, nil while open
	Status     TradeStatus // OPEN or CLOSED
	EntryTime  time.Time   // when the entry was journaled
	ExitTime   *time.Time  // nil while open
}

// IsOpen reports whether the exit leg is still outstanding.
func (t *Trade) IsOpen() bool {
	return t.Status == TradeOpen
}
