package collector

import (
	"fmt"

	"github.com/RonoHenry/AgentICTrader/internal/model"
)

// Resample aggregates finer candles into tf bars: first open, highest high,
// lowest low, last close and summed volume. Weekly bars start on Monday and
// monthly bars on the first of the month (UTC). Input must be one symbol and
// one timeframe in chronological order. The last bar may be incomplete.
func Resample(candles []model.Candle, tf model.Timeframe) ([]model.Candle, error) {
	if len(candles) == 0 {
		return nil, nil
	}
	src := candles[0].Timeframe
	if !tf.Valid() || src.Rank() >= tf.Rank() {
		return nil, fmt.Errorf("resample %s into %s: target must be coarser", src, tf)
	}

	var (
		out []model.Candle
		bar model.Candle
	)
	for i, c := range candles {
		if c.Timeframe != src || c.Symbol != candles[0].Symbol {
			return nil, fmt.Errorf("resample: candle %d is %s %s, expected %s %s", i, c.Symbol, c.Timeframe, candles[0].Symbol, src)
		}
		open := tf.Truncate(c.OpenTime)
		if i > 0 && open.Equal(bar.OpenTime) {
			if c.High > bar.High {
				bar.High = c.High
			}
			if c.Low < bar.Low {
				bar.Low = c.Low
			}
			bar.Close = c.Close
			bar.Volume += c.Volume
			continue
		}
		if i > 0 {
			if open.Before(bar.OpenTime) {
				return nil, fmt.Errorf("resample: candle %d at %s is out of order", i, model.FormatTime(c.OpenTime))
			}
			out = append(out, bar)
		}
		bar = c
		bar.Timeframe = tf
		bar.OpenTime = open
	}
	return append(out, bar), nil
}
