package calculator

import "errors"

// PositionInRange returns where price sits within [low, high] (0.0~1.0).
func PositionInRange(price, high, low float64) (float64, error) {
	if high == low {
		return 0.5, nil
	}
	if high < low {
		return 0, errors.New("high must be >= low")
	}
	pos := (price - low) / (high - low)
	if pos < 0 {
		pos = 0
	}
	if pos > 1 {
		pos = 1
	}
	return pos, nil
}

// Equilibrium is the 50% level of a range.
func Equilibrium(high, low float64) float64 { return (high + low) / 2 }
