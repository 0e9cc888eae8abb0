package ports

import (
	"context"

	"algoTradeBot/internal/domain"
)

// OrderRequest describes a market order to be placed with the broker.
type OrderRequest struct {
	Symbol    string // trading symbol (e.g. "TCS-EQ")
	Token     string // instrument token
	Exchange  string // exchange segment (e.g. "NSE")
	Side      domain.OrderSide
	Quantity  float64
	Product   string // broker product code ("I" intraday, "C" delivery)
	Validity  string // order validity (e.g. "DAY")
	ClientRef string // caller-generated reference carried through for tracing
}

// OrderResult is the broker's answer to a placement or cancel request.
// Status carries the broker's literal "stat" field; anything other than
// "Ok" is a rejection. OrderID is taken from nOrdNo (orderId on older
// endpoints).
type OrderResult struct {
	Status  string
	OrderID string
	Message string // broker's emsg, set on rejections
}

// Ok reports whether the broker accepted the request.
func (r *OrderResult) Ok() bool {
	return r != nil && r.Status == "Ok"
}

// OrderPlacer places orders with the broker. Implementations perform a
// single attempt; retry policy belongs to the caller.
type OrderPlacer interface {
	PlaceOrder(ctx context.Context, req OrderRequest) (*OrderResult, error)
}

// OrderCanceller cancels a previously placed order.
type OrderCanceller interface {
	CancelOrder(ctx context.Context, orderID string) (*OrderResult, error)
}

// HistoricalDataSource serves historical candles for an instrument,
// ascending by time. Short or empty results are valid; callers must treat
// a series shorter than their warmup window as "no signal".
type HistoricalDataSource interface {
	GetHistorical(ctx context.Context, token string, interval domain.Interval, lookbackMonths int) ([]domain.Candle, error)
}
