package indicators

import (
	"fmt"
	"math"
)

// BandPosition classifies the latest close relative to the Bollinger bands.
type BandPosition string

const (
	BandBelow  BandPosition = "below"
	BandInside BandPosition = "inside"
	BandAbove  BandPosition = "above"
)

// BollingerResult holds the three bands and the close classification.
type BollingerResult struct {
	Middle   float64
	Upper    float64
	Lower    float64
	Position BandPosition
}

// Bollinger computes a period-SMA middle band with upper and lower bands at
// mult population standard deviations, then classifies the latest close.
// A close sitting exactly on a band counts as outside it.
func Bollinger(closes []float64, period int, mult float64) (BollingerResult, error) {
	if period <= 0 {
		return BollingerResult{}, fmt.Errorf("%w: %d", ErrInvalidPeriod, period)
	}
	if len(closes) < period {
		return BollingerResult{}, fmt.Errorf("%w: have %d closes, Bollinger period %d", ErrInsufficientData, len(closes), period)
	}

	window := closes[len(closes)-period:]
	middle := mean(window)

	var variance float64
	for _, v := range window {
		d := v - middle
		variance += d * d
	}
	variance /= float64(period)
	sd := math.Sqrt(variance)

	res := BollingerResult{
		Middle:   middle,
		Upper:    middle + mult*sd,
		Lower:    middle - mult*sd,
		Position: BandInside,
	}
	last := closes[len(closes)-1]
	switch {
	case last <= res.Lower:
		res.Position = BandBelow
	case last >= res.Upper:
		res.Position = BandAbove
	}
	return res, nil
}
