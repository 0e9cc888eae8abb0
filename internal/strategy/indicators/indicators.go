// Package indicators provides pure technical-indicator calculations over
// ordered price series. Every function is stateless: callers own the series
// and pass values oldest first. A series shorter than an indicator's
// required window yields ErrInsufficientData rather than a defaulted value,
// so callers must check the error before using a result.
package indicators

import (
	"errors"

	"algoTradeBot/internal/domain"
)

var (
	// ErrInvalidPeriod is returned when a period or lookback is not positive.
	ErrInvalidPeriod = errors.New("indicator period must be positive")
	// ErrInsufficientData is returned when the series is shorter than the
	// indicator's required window.
	ErrInsufficientData = errors.New("not enough data points")
)

// Closes extracts the close series from candles, oldest first.
func Closes(candles []domain.Candle) []float64 {
	out := make([]float64, len(candles))
	for i, c := range candles {
		out[i] = c.Close
	}
	return out
}

// Volumes extracts the volume series from candles, oldest first.
func Volumes(candles []domain.Candle) []float64 {
	out := make([]float64, len(candles))
	for i, c := range candles {
		out[i] = c.Volume
	}
	return out
}

func mean(values []float64) float64 {
	var sum float64
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}
