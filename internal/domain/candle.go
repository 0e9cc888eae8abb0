package domain

import (
	"math"
	"time"
)

// Candle is a fixed-width OHLC bar. Time is the bucket start, aligned to the
// aggregation interval. A candle is immutable once emitted; only the forming
// candle inside the aggregator mutates.
type Candle struct {
	Time   time.Time // bucket start (interval-aligned)
	Open   float64   // first traded price in the bucket
	High   float64   // highest traded price in the bucket
	Low    float64   // lowest traded price in the bucket
	Close  float64   // last traded price in the bucket
	Volume float64   // traded volume, zero for tick-aggregated candles
}

// Interval identifies a historical candle timeframe.
type Interval string

const (
	IntervalDay   Interval = "day"
	IntervalWeek  Interval = "week"
	IntervalMonth Interval = "month"
)

// IsValid reports whether the interval is one the historical source accepts.
func (i Interval) IsValid() bool {
	switch i {
	case IntervalDay, IntervalWeek, IntervalMonth:
		return true
	}
	return false
}

// Tick is a single last-traded-price update for one instrument. Ticks are
// ephemeral: the aggregator folds them into the forming candle and drops them.
type Tick struct {
	Token string    // instrument token as sent by the feed
	LTP   float64   // last traded price
	Time  time.Time // exchange timestamp
}

// HasPrice reports whether the tick carries a usable price. The feed encodes
// a missing LTP as zero, so non-positive values are treated as absent.
func (t Tick) HasPrice() bool {
	return t.LTP > 0 && !math.IsNaN(t.LTP) && !math.IsInf(t.LTP, 0)
}
