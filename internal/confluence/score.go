package confluence

import (
	"math"

	"github.com/RonoHenry/AgentICTrader/internal/model"
)

// Factor builds a FactorScore with raw clamped to [0,1].
func Factor(name string, raw, weight float64, commentary string) model.FactorScore {
	raw = Clamp01(raw)
	return model.FactorScore{
		Name:       name,
		RawScore:   raw,
		Weight:     weight,
		Weighted:   raw * weight,
		Commentary: commentary,
	}
}

// Score sums the weighted factors and normalises by the total weight present,
// so a score built from a subset of factors still spans [0,1].
func Score(factors []model.FactorScore) float64 {
	var total, weights float64
	for _, f := range factors {
		total += f.Weighted
		weights += f.Weight
	}
	if weights <= 0 {
		return 0
	}
	return Clamp01(total / weights)
}

// Saturate maps a count onto [0,1], reaching 1 at n == at.
func Saturate(n, at int) float64 {
	if at <= 0 || n <= 0 {
		return 0
	}
	if n >= at {
		return 1
	}
	return float64(n) / float64(at)
}

// Decay halves the weight every halfLife bars. It is strictly decreasing in age.
func Decay(ageBars, halfLife float64) float64 {
	if halfLife <= 0 {
		return 1
	}
	if ageBars < 0 {
		ageBars = 0
	}
	return math.Pow(0.5, ageBars/halfLife)
}

// Clamp01 limits v to [0,1]; NaN becomes 0.
func Clamp01(v float64) float64 {
	switch {
	case math.IsNaN(v), v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}
