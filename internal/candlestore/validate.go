package candlestore

import (
	"math"

	"github.com/RonoHenry/AgentICTrader/internal/model"
)

// Validate rejects candles with impossible OHLC relationships or non-finite values.
func Validate(c model.Candle) error {
	reason := ""
	switch {
	case c.Symbol == "":
		reason = "empty symbol"
	case !c.Timeframe.Valid():
		reason = "unknown timeframe " + string(c.Timeframe)
	case c.OpenTime.IsZero():
		reason = "zero open time"
	case !finite(c.Open, c.High, c.Low, c.Close, c.Volume):
		reason = "non-finite field"
	case c.Volume < 0:
		reason = "negative volume"
	case c.Low > math.Min(c.Open, c.Close):
		reason = "low above min(open, close)"
	case c.High < math.Max(c.Open, c.Close):
		reason = "high below max(open, close)"
	}
	if reason == "" {
		return nil
	}
	return &model.MalformedCandleError{
		Symbol:    c.Symbol,
		Timeframe: c.Timeframe,
		OpenTime:  c.OpenTime,
		Reason:    reason,
	}
}

func finite(vs ...float64) bool {
	for _, v := range vs {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}
