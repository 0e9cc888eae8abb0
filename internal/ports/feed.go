package ports

import (
	"context"

	"algoTradeBot/internal/domain"
)

// FeedState is the connection state of the live market data feed.
type FeedState int

const (
	FeedDisconnected FeedState = iota
	FeedConnecting
	FeedConnected
	FeedReconnecting
)

func (s FeedState) String() string {
	switch s {
	case FeedDisconnected:
		return "DISCONNECTED"
	case FeedConnecting:
		return "CONNECTING"
	case FeedConnected:
		return "CONNECTED"
	case FeedReconnecting:
		return "RECONNECTING"
	}
	return "UNKNOWN"
}

// TickStream is a live tick source. Connect returns once the dial and
// subscribe handshake succeed; ticks are then delivered on the handlers
// supplied to the concrete feed. Disconnect is idempotent and cancels all
// pending reconnect and heartbeat timers before returning.
type TickStream interface {
	Connect(ctx context.Context) error
	Disconnect()
	State() FeedState
	// Snapshot returns the last tick seen per instrument token, so a late
	// consumer can catch up without replaying history.
	Snapshot() map[string]domain.Tick
}
