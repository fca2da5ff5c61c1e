package calculator

import (
	"errors"
	"math"

	"github.com/RonoHenry/AgentICTrader/internal/model"
)

// TrueRange of cur given the previous close.
func TrueRange(cur model.Candle, prevClose float64) float64 {
	return math.Max(cur.High-cur.Low, math.Max(math.Abs(cur.High-prevClose), math.Abs(cur.Low-prevClose)))
}

// ATR computes the Wilder-smoothed average true range over the given period.
// Requires at least period+1 candles. With less data it falls back to the mean
// High-Low range so callers always get a usable scale.
func ATR(candles []model.Candle, period int) (float64, error) {
	if period <= 0 {
		return 0, errors.New("period must be positive")
	}
	if len(candles) == 0 {
		return 0, errors.New("no candles provided")
	}
	if len(candles) < period+1 {
		return MeanRange(candles), nil
	}

	// Seed with the simple mean of the first `period` true ranges
	atr := 0.0
	for i := 1; i <= period; i++ {
		atr += TrueRange(candles[i], candles[i-1].Close)
	}
	atr /= float64(period)

	// Wilder smoothing for remaining candles
	for i := period + 1; i < len(candles); i++ {
		tr := TrueRange(candles[i], candles[i-1].Close)
		atr = (atr*float64(period-1) + tr) / float64(period)
	}
	return atr, nil
}
