package indicators

import "fmt"

// VolumeBreakoutRatio is the minimum current-to-average volume multiple
// that counts as a breakout.
const VolumeBreakoutRatio = 1.5

// VolumeBreakout compares the latest volume against the mean of the
// preceding lookback volumes, excluding the latest bar from the average.
// It returns whether the ratio reaches VolumeBreakoutRatio and the ratio
// itself. lookback+1 volumes are required.
func VolumeBreakout(volumes []float64, lookback int) (bool, float64, error) {
	if lookback <= 0 {
		return false, 0, fmt.Errorf("%w: %d", ErrInvalidPeriod, lookback)
	}
	if len(volumes) < lookback+1 {
		return false, 0, fmt.Errorf("%w: have %d volumes, lookback %d needs %d", ErrInsufficientData, len(volumes), lookback, lookback+1)
	}

	current := volumes[len(volumes)-1]
	avg := mean(volumes[len(volumes)-lookback-1 : len(volumes)-1])
	ratio := current / avg
	return ratio >= VolumeBreakoutRatio, ratio, nil
}
