package collector

import (
	"context"
	"hash/fnv"
	"math"
	"time"

	"github.com/RonoHenry/AgentICTrader/internal/model"
)

// MockFetcher returns controllable data for development and testing. With
// Data unset it synthesises a wave whose bars depend only on symbol,
// timeframe and open time, so repeated polls return identical candles.
type MockFetcher struct {
	Price float64
	Data  map[model.Timeframe][]model.Candle
	Now   func() time.Time
}

func (m *MockFetcher) Name() string { return "mock" }

func (m *MockFetcher) FetchCandles(_ context.Context, symbol string, tf model.Timeframe, limit int) ([]model.Candle, error) {
	if m.Data != nil {
		var out []model.Candle
		for _, c := range m.Data[tf] {
			if c.Symbol == symbol {
				out = append(out, c)
			}
		}
		return normalize(out, limit), nil
	}
	now := time.Now
	if m.Now != nil {
		now = m.Now
	}
	price := m.Price
	if price <= 0 {
		price = 100
	}
	return generateMockCandles(symbol, tf, price, now(), limit), nil
}

func generateMockCandles(symbol string, tf model.Timeframe, base float64, now time.Time, count int) []model.Candle {
	if count <= 0 {
		count = 100
	}
	open := tf.Truncate(now)
	opens := make([]time.Time, count)
	for i := count - 1; i >= 0; i-- {
		opens[i] = open
		open = tf.Truncate(open.Add(-time.Second))
	}

	step := int64(tf.Duration() / time.Second)
	wave := func(t time.Time) float64 {
		k := float64(t.Unix() / step)
		return base * (1 + 0.02*math.Sin(2*math.Pi*k/60) + 0.006*math.Sin(2*math.Pi*k/9))
	}

	out := make([]model.Candle, count)
	for i, t := range opens {
		o := wave(t)
		c := wave(tf.CloseTime(t))
		wick := base * 0.002 * (0.5 + noise(symbol, tf, t))
		out[i] = model.Candle{
			Symbol:    symbol,
			Timeframe: tf,
			OpenTime:  t,
			Open:      o,
			High:      math.Max(o, c) + wick,
			Low:       math.Min(o, c) - wick,
			Close:     c,
			Volume:    1000 * (1 + noise(symbol, tf, t)),
		}
	}
	return out
}

// noise is a stable pseudo-random value in [0, 1).
func noise(symbol string, tf model.Timeframe, t time.Time) float64 {
	h := fnv.New64a()
	h.Write([]byte(symbol + "|" + string(tf) + "|" + model.FormatTime(t)))
	return float64(h.Sum64()%10000) / 10000
}
