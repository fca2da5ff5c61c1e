package calculator

import (
	"math"

	"github.com/RonoHenry/AgentICTrader/internal/model"
)

// BodyVolatility is the population standard deviation of Close-Open over
// candles. Fewer than two candles give 0.
func BodyVolatility(candles []model.Candle) float64 {
	if len(candles) < 2 {
		return 0
	}
	mean := 0.0
	for _, c := range candles {
		mean += c.Close - c.Open
	}
	mean /= float64(len(candles))
	variance := 0.0
	for _, c := range candles {
		d := c.Close - c.Open - mean
		variance += d * d
	}
	return math.Sqrt(variance / float64(len(candles)))
}
