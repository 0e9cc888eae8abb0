package domain

// OrderSide represents the side of an order (BUY or SELL).
type OrderSide string

const (
	Buy  OrderSide = "BUY"
	Sell OrderSide = "SELL"
)

// IsValid reports whether the side is BUY or SELL.
func (s OrderSide) IsValid() bool {
	return s == Buy || s == Sell
}
