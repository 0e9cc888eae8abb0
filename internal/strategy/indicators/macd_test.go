package indicators

import (
	"errors"
	"testing"
)

func TestMACD(t *testing.T) {
	t.Run("insufficient data", func(t *testing.T) {
		closes := make([]float64, 33)
		for i := range closes {
			closes[i] = 100.0
		}
		if _, err := MACD(closes); !errors.Is(err, ErrInsufficientData) {
			t.Errorf("Expected ErrInsufficientData, got %v", err)
		}
	})

	t.Run("constant series is flat and not bullish", func(t *testing.T) {
		closes := make([]float64, 40)
		for i := range closes {
			closes[i] = 100.0
		}
		res, err := MACD(closes)
		if err != nil {
			t.Fatalf("Unexpected error: %v", err)
		}
		if res.MACD != 0 || res.Signal != 0 || res.Histogram != 0 {
			t.Errorf("Expected zero MACD/Signal/Histogram, got %+v", res)
		}
		if res.Bullish {
			t.Error("Flat series must not be bullish")
		}
	})

	t.Run("rising series is bullish", func(t *testing.T) {
		closes := make([]float64, 40)
		for i := range closes {
			closes[i] = 100.0 + float64(i)
		}
		res, err := MACD(closes)
		if err != nil {
			t.Fatalf("Unexpected error: %v", err)
		}
		if res.MACD <= 0 {
			t.Errorf("Expected positive MACD line on a rising series, got %f", res.MACD)
		}
		if res.Histogram <= 0 || !res.Bullish {
			t.Errorf("Expected bullish histogram on a rising series, got %+v", res)
		}
	})

	t.Run("falling series is bearish", func(t *testing.T) {
		closes := make([]float64, 40)
		for i := range closes {
			closes[i] = 200.0 - float64(i)
		}
		res, err := MACD(closes)
		if err != nil {
			t.Fatalf("Unexpected error: %v", err)
		}
		if res.MACD >= 0 {
			t.Errorf("Expected negative MACD line on a falling series, got %f", res.MACD)
		}
		if res.Histogram >= 0 || res.Bullish {
			t.Errorf("Expected bearish histogram on a falling series, got %+v", res)
		}
	})

	t.Run("histogram is the line minus the signal", func(t *testing.T) {
		closes := make([]float64, 60)
		for i := range closes {
			closes[i] = 100.0 + float64(i%7)
		}
		res, err := MACD(closes)
		if err != nil {
			t.Fatalf("Unexpected error: %v", err)
		}
		diff := res.MACD - res.Signal
		if res.Histogram-diff > 0.0001 || res.Histogram-diff < -0.0001 {
			t.Errorf("Histogram %f does not equal MACD-Signal %f", res.Histogram, diff)
		}
	})
}
