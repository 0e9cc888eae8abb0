package ports

import (
	"context"
	"time"

	"algoTradeBot/internal/domain"
)

// TradeJournal records entries and exits as append-only trade history.
// Journal failures are logged by callers, never propagated into the
// trading path.
type TradeJournal interface {
	// RecordOpen saves a new OPEN record and returns its assigned ID.
	RecordOpen(ctx context.Context, trade *domain.Trade) (int64, error)
	// RecordClose transitions the matching OPEN record for the
	// (symbol, strategy) pair to CLOSED. Returns ErrNotFound when no open
	// record exists.
	RecordClose(ctx context.Context, symbol, strategy string, exitPrice, pnl float64, exitTime time.Time) error
	// OpenTrades returns all records still missing their exit leg.
	OpenTrades(ctx context.Context) ([]*domain.Trade, error)
	// TradesBetween returns records entered in [from, to), newest first.
	TradesBetween(ctx context.Context, from, to time.Time) ([]*domain.Trade, error)
}
