package indicators

import (
	"errors"
	"testing"
)

func TestBollinger(t *testing.T) {
	tests := []struct {
		name      string
		closes    []float64
		period    int
		mult      float64
		expected  BollingerResult
		expectErr error
	}{
		{
			name:   "alternating series stays inside",
			closes: []float64{98.0, 102.0, 98.0, 102.0},
			period: 4,
			mult:   2.0,
			expected: BollingerResult{
				Middle:   100.0,
				Upper:    104.0, // sd = 2
				Lower:    96.0,
				Position: BandInside,
			},
		},
		{
			name:   "spike closes above the upper band",
			closes: []float64{100.0, 100.0, 120.0},
			period: 3,
			mult:   1.0,
			expected: BollingerResult{
				Middle:   106.666667,
				Upper:    116.094757, // sd = 9.428090
				Lower:    97.238576,
				Position: BandAbove,
			},
		},
		{
			name:   "drop closes below the lower band",
			closes: []float64{100.0, 100.0, 80.0},
			period: 3,
			mult:   1.0,
			expected: BollingerResult{
				Middle:   93.333333,
				Upper:    102.761424,
				Lower:    83.905243,
				Position: BandBelow,
			},
		},
		{
			name:      "insufficient data",
			closes:    []float64{100.0, 100.0},
			period:    3,
			mult:      2.0,
			expectErr: ErrInsufficientData,
		},
		{
			name:      "non-positive period",
			closes:    []float64{100.0, 100.0},
			period:    0,
			mult:      2.0,
			expectErr: ErrInvalidPeriod,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := Bollinger(tt.closes, tt.period, tt.mult)

			if tt.expectErr != nil {
				if !errors.Is(err, tt.expectErr) {
					t.Errorf("Expected error %v, got %v", tt.expectErr, err)
				}
				return
			}
			if err != nil {
				t.Errorf("Unexpected error: %v", err)
				return
			}

			approx := func(name string, got, want float64) {
				if got-want > 0.0001 || got-want < -0.0001 {
					t.Errorf("%s: expected %f, got %f", name, want, got)
				}
			}
			approx("middle", res.Middle, tt.expected.Middle)
			approx("upper", res.Upper, tt.expected.Upper)
			approx("lower", res.Lower, tt.expected.Lower)
			if res.Position != tt.expected.Position {
				t.Errorf("Position: expected %s, got %s", tt.expected.Position, res.Position)
			}
		})
	}
}

func TestBollingerDegenerateBands(t *testing.T) {
	// A flat window collapses all three bands onto the close; the lower
	// bound check runs first, so the close classifies as below.
	closes := []float64{100.0, 100.0, 100.0, 100.0}
	res, err := Bollinger(closes, 4, 2.0)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if res.Upper != res.Lower || res.Upper != res.Middle {
		t.Errorf("Expected collapsed bands, got %+v", res)
	}
	if res.Position != BandBelow {
		t.Errorf("Expected below on collapsed bands, got %s", res.Position)
	}
}
