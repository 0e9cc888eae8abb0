package indicators

import (
	"fmt"

	"algoTradeBot/internal/domain"
)

// Periods and thresholds for the composite vote.
const (
	compositeShortEMA    = 20
	compositeMidEMA      = 50
	compositeLongEMA     = 200
	compositeRSIPeriod   = 14
	compositeRSIOversold = 30.0
	compositeRSIOverheat = 70.0
	compositeBBPeriod    = 20
	compositeBBMult      = 2.0
	compositeVolLookback = 20

	// compositeMinScore is the minimum winning score for a non-HOLD signal.
	compositeMinScore = 2.0
)

// CompositeResult carries the outcome of the weighted multi-indicator vote.
type CompositeResult struct {
	Signal    domain.SignalType
	BuyScore  float64
	SellScore float64
	// Reasons lists the rules that voted, in evaluation order.
	Reasons []string
}

// Composite runs the weighted vote over the candle series. Each trend rule
// adds one point to the buy or sell score; a volume breakout adds half a
// point to both sides. Rules whose indicator cannot be computed on the
// available history simply do not vote, so short series degrade toward HOLD
// instead of erroring. A side wins when it outscores the other and reaches
// the minimum score.
func Composite(candles []domain.Candle) CompositeResult {
	closes := Closes(candles)
	res := CompositeResult{Signal: domain.SignalHold}

	vote := func(buy bool, reason string) {
		if buy {
			res.BuyScore++
		} else {
			res.SellScore++
		}
		res.Reasons = append(res.Reasons, reason)
	}

	if short, err := EMA(closes, compositeShortEMA); err == nil {
		if mid, err := EMA(closes, compositeMidEMA); err == nil {
			if short > mid {
				vote(true, "EMA20 above EMA50")
			} else {
				vote(false, "EMA20 at or below EMA50")
			}
		}
	}
	if mid, err := EMA(closes, compositeMidEMA); err == nil {
		if long, err := EMA(closes, compositeLongEMA); err == nil {
			if mid > long {
				vote(true, "EMA50 above EMA200")
			} else {
				vote(false, "EMA50 at or below EMA200")
			}
		}
	}
	if rsi, err := RSI(closes, compositeRSIPeriod); err == nil {
		if rsi < compositeRSIOversold {
			vote(true, fmt.Sprintf("RSI %.1f oversold", rsi))
		} else if rsi > compositeRSIOverheat {
			vote(false, fmt.Sprintf("RSI %.1f overbought", rsi))
		}
	}
	if macd, err := MACD(closes); err == nil {
		if macd.Bullish {
			vote(true, "MACD histogram positive")
		} else {
			vote(false, "MACD histogram non-positive")
		}
	}
	if bb, err := Bollinger(closes, compositeBBPeriod, compositeBBMult); err == nil {
		switch bb.Position {
		case BandBelow:
			vote(true, "close below lower Bollinger band")
		case BandAbove:
			vote(false, "close above upper Bollinger band")
		}
	}
	if breakout, ratio, err := VolumeBreakout(Volumes(candles), compositeVolLookback); err == nil && breakout {
		// Volume confirms either direction, so both sides get the half point.
		res.BuyScore += 0.5
		res.SellScore += 0.5
		res.Reasons = append(res.Reasons, fmt.Sprintf("volume breakout %.2fx average", ratio))
	}

	switch {
	case res.BuyScore > res.SellScore && res.BuyScore >= compositeMinScore:
		res.Signal = domain.SignalBuy
	case res.SellScore > res.BuyScore && res.SellScore >= compositeMinScore:
		res.Signal = domain.SignalSell
	}
	return res
}
