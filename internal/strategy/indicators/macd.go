package indicators

import "fmt"

const (
	macdFastPeriod   = 12
	macdSlowPeriod   = 26
	macdSignalPeriod = 9
)

// MACDResult holds the MACD line, its signal line and their difference.
type MACDResult struct {
	MACD      float64
	Signal    float64
	Histogram float64
	// Bullish is true when the histogram is above zero.
	Bullish bool
}

// MACD computes the 12/26 EMA difference and its 9-period signal line.
// The slow EMA needs 26 closes to seed and the signal line needs 9
// difference values, so at least 34 closes are required.
func MACD(closes []float64) (MACDResult, error) {
	need := macdSlowPeriod + macdSignalPeriod - 1
	if len(closes) < need {
		return MACDResult{}, fmt.Errorf("%w: have %d closes, MACD needs %d", ErrInsufficientData, len(closes), need)
	}

	fast, err := EMASeries(closes, macdFastPeriod)
	if err != nil {
		return MACDResult{}, err
	}
	slow, err := EMASeries(closes, macdSlowPeriod)
	if err != nil {
		return MACDResult{}, err
	}

	// Align the series on the slow seed: slow[i] and fast[i+offset] both
	// correspond to closes[i+macdSlowPeriod-1].
	offset := macdSlowPeriod - macdFastPeriod
	diff := make([]float64, len(slow))
	for i := range slow {
		diff[i] = fast[i+offset] - slow[i]
	}

	signalSeries, err := EMASeries(diff, macdSignalPeriod)
	if err != nil {
		return MACDResult{}, err
	}

	macd := diff[len(diff)-1]
	signal := signalSeries[len(signalSeries)-1]
	hist := macd - signal
	return MACDResult{
		MACD:      macd,
		Signal:    signal,
		Histogram: hist,
		Bullish:   hist > 0,
	}, nil
}
