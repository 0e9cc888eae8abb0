package market

import (
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

func TestProperty_CandleBoundsHold(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	parameters.Rng.Seed(time.Now().UnixNano())

	properties := gopter.NewProperties(parameters)

	base := time.Date(2024, 6, 3, 9, 15, 0, 0, time.UTC)

	properties.Property("every candle satisfies Low <= Open,Close <= High", prop.ForAll(
		func(prices []float64, offsets []int) bool {
			agg, err := New(Config{Logger: &mockLogger{}})
			if err != nil {
				return false
			}

			n := len(prices)
			if len(offsets) < n {
				n = len(offsets)
			}
			for i := 0; i < n; i++ {
				agg.AddTick(prices[i], base.Add(time.Duration(offsets[i])*time.Second))
			}

			check := func(open, high, low, close float64) bool {
				return low <= open && low <= close && open <= high && close <= high && low <= high
			}
			for _, c := range agg.Candles() {
				if !check(c.Open, c.High, c.Low, c.Close) {
					return false
				}
			}
			if cur := agg.CurrentCandle(); cur != nil {
				if !check(cur.Open, cur.High, cur.Low, cur.Close) {
					return false
				}
			}
			return true
		},
		gen.SliceOfN(80, gen.Float64Range(0.05, 100000.0)),
		gen.SliceOfN(80, gen.IntRange(0, 3600)),
	))

	properties.TestingRun(t)
}
