package indicators

import (
	"fmt"
	"math"

	"algoTradeBot/internal/domain"
)

// ATR computes the Average True Range as the simple average of the last
// period true ranges. True range compares against the previous close, so
// period+1 candles are required.
func ATR(candles []domain.Candle, period int) (float64, error) {
	if period <= 0 {
		return 0, fmt.Errorf("%w: %d", ErrInvalidPeriod, period)
	}
	if len(candles) < period+1 {
		return 0, fmt.Errorf("%w: have %d candles, ATR period %d needs %d", ErrInsufficientData, len(candles), period, period+1)
	}

	window := candles[len(candles)-period-1:]
	var sum float64
	for i := 1; i < len(window); i++ {
		sum += trueRange(window[i], window[i-1])
	}
	return sum / float64(period), nil
}

// trueRange is the greatest of the current high-low range and the absolute
// gaps from the previous close to the current high and low.
func trueRange(cur, prev domain.Candle) float64 {
	tr := cur.High - cur.Low
	if d := math.Abs(cur.High - prev.Close); d > tr {
		tr = d
	}
	if d := math.Abs(cur.Low - prev.Close); d > tr {
		tr = d
	}
	return tr
}
