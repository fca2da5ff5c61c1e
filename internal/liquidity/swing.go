package liquidity

import "github.com/RonoHenry/AgentICTrader/internal/model"

// isPivotHigh reports whether candles[i].High is strictly above the highs of
// k candles on each side.
func isPivotHigh(candles []model.Candle, i, k int) bool {
	if i-k < 0 || i+k >= len(candles) {
		return false
	}
	h := candles[i].High
	for j := 1; j <= k; j++ {
		if candles[i-j].High >= h || candles[i+j].High >= h {
			return false
		}
	}
	return true
}

// isPivotLow is the mirror of isPivotHigh.
func isPivotLow(candles []model.Candle, i, k int) bool {
	if i-k < 0 || i+k >= len(candles) {
		return false
	}
	l := candles[i].Low
	for j := 1; j <= k; j++ {
		if candles[i-j].Low <= l || candles[i+j].Low <= l {
			return false
		}
	}
	return true
}

// ConfirmSwings returns the swing points confirmed by the newest candle of
// window, i.e. a pivot at k bars from the end. Either result may be nil.
func ConfirmSwings(symbol string, tf model.Timeframe, window []model.Candle, k int) (high, low *model.SwingPoint) {
	if k <= 0 || len(window) < 2*k+1 {
		return nil, nil
	}
	i := len(window) - 1 - k
	c := window[i]
	if isPivotHigh(window, i, k) {
		high = &model.SwingPoint{
			ID:        model.NewID("swing", symbol, string(tf), string(model.SwingHigh), model.FormatTime(c.OpenTime)),
			Timeframe: tf,
			Kind:      model.SwingHigh,
			Price:     c.High,
			Time:      c.OpenTime,
		}
	}
	if isPivotLow(window, i, k) {
		low = &model.SwingPoint{
			ID:        model.NewID("swing", symbol, string(tf), string(model.SwingLow), model.FormatTime(c.OpenTime)),
			Timeframe: tf,
			Kind:      model.SwingLow,
			Price:     c.Low,
			Time:      c.OpenTime,
		}
	}
	return high, low
}
