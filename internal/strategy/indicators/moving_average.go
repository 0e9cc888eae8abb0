package indicators

import "fmt"

// SMA computes the Simple Moving Average over the last period values.
func SMA(values []float64, period int) (float64, error) {
	if period <= 0 {
		return 0, fmt.Errorf("%w: %d", ErrInvalidPeriod, period)
	}
	if len(values) < period {
		return 0, fmt.Errorf("%w: have %d values, SMA period %d", ErrInsufficientData, len(values), period)
	}
	return mean(values[len(values)-period:]), nil
}

// EMA computes the Exponential Moving Average over the whole series and
// returns its latest value. The average is seeded with the SMA of the first
// period values, then each later value is folded in with the smoothing
// constant 2/(period+1).
func EMA(values []float64, period int) (float64, error) {
	series, err := EMASeries(values, period)
	if err != nil {
		return 0, err
	}
	return series[len(series)-1], nil
}

// EMASeries computes the full seeded EMA series. Element i of the result
// corresponds to values[i+period-1]; the first element is the SMA seed.
func EMASeries(values []float64, period int) ([]float64, error) {
	if period <= 0 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidPeriod, period)
	}
	if len(values) < period {
		return nil, fmt.Errorf("%w: have %d values, EMA period %d", ErrInsufficientData, len(values), period)
	}

	multiplier := 2.0 / float64(period+1)
	series := make([]float64, 0, len(values)-period+1)

	ema := mean(values[:period])
	series = append(series, ema)
	for _, v := range values[period:] {
		ema = (v-ema)*multiplier + ema
		series = append(series, ema)
	}
	return series, nil
}
