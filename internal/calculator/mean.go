package calculator

import "github.com/RonoHenry/AgentICTrader/internal/model"

// MeanRange is the average High-Low range of the given candles.
func MeanRange(candles []model.Candle) float64 {
	if len(candles) == 0 {
		return 0
	}
	sum := 0.0
	for _, c := range candles {
		sum += c.Range()
	}
	return sum / float64(len(candles))
}
