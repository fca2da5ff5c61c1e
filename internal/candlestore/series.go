package candlestore

import (
	"sort"
	"time"

	"github.com/RonoHenry/AgentICTrader/internal/model"
)

// DefaultRetention is the ring size per timeframe. Coarser timeframes need
// fewer bars for an equivalent lookback.
var DefaultRetention = map[model.Timeframe]int{
	model.Monthly: 120,
	model.Weekly:  260,
	model.Daily:   500,
	model.H4:      600,
	model.H1:      720,
	model.M15:     960,
	model.M5:      1152,
	model.M1:      1440,
}

// Series is a bounded, strictly time-ordered ring buffer of closed candles for
// one (symbol, timeframe). It is not safe for concurrent use; the owner
// serialises access.
type Series struct {
	symbol    string
	timeframe model.Timeframe
	buf       []model.Candle
	head      int // index of the oldest candle
	size      int
}

// NewSeries creates a series retaining at most capacity candles.
func NewSeries(symbol string, tf model.Timeframe, capacity int) *Series {
	if capacity <= 0 {
		capacity = DefaultRetention[tf]
	}
	if capacity < 3 {
		capacity = 3
	}
	return &Series{symbol: symbol, timeframe: tf, buf: make([]model.Candle, capacity)}
}

// Append validates and stores c. It reports applied=false with a nil error
// when c is identical to a candle still retained, so replays are no-ops.
// Retention therefore bounds the idempotence window: an identical candle
// older than the oldest retained one is out of order.
func (s *Series) Append(c model.Candle) (applied bool, err error) {
	if err := Validate(c); err != nil {
		return false, err
	}
	if s.size > 0 {
		last := s.at(s.size - 1)
		if !c.OpenTime.After(last.OpenTime) {
			if existing, ok := s.find(c.OpenTime); ok && sameCandle(existing, c) {
				return false, nil
			}
			return false, &model.OutOfOrderError{
				Symbol:    s.symbol,
				Timeframe: s.timeframe,
				OpenTime:  c.OpenTime,
				Last:      last.OpenTime,
			}
		}
	}

	c.OpenTime = c.OpenTime.UTC()
	if s.size < len(s.buf) {
		s.buf[(s.head+s.size)%len(s.buf)] = c
		s.size++
	} else {
		s.buf[s.head] = c
		s.head = (s.head + 1) % len(s.buf)
	}
	return true, nil
}

// Len is the number of retained candles.
func (s *Series) Len() int { return s.size }

// Cap is the retention limit.
func (s *Series) Cap() int { return len(s.buf) }

// Last returns a copy of the newest n candles, oldest first.
func (s *Series) Last(n int) []model.Candle {
	if n <= 0 || n > s.size {
		n = s.size
	}
	out := make([]model.Candle, n)
	for i := 0; i < n; i++ {
		out[i] = s.at(s.size - n + i)
	}
	return out
}

// Latest returns the newest candle.
func (s *Series) Latest() (model.Candle, bool) {
	if s.size == 0 {
		return model.Candle{}, false
	}
	return s.at(s.size - 1), true
}

// Range returns a copy of the retained candles with from <= OpenTime < to.
// Zero bounds are open.
func (s *Series) Range(from, to time.Time) []model.Candle {
	var out []model.Candle
	for i := 0; i < s.size; i++ {
		c := s.at(i)
		if !from.IsZero() && c.OpenTime.Before(from) {
			continue
		}
		if !to.IsZero() && !c.OpenTime.Before(to) {
			break
		}
		out = append(out, c)
	}
	return out
}

func (s *Series) at(i int) model.Candle { return s.buf[(s.head+i)%len(s.buf)] }

func (s *Series) find(t time.Time) (model.Candle, bool) {
	i := sort.Search(s.size, func(i int) bool { return !s.at(i).OpenTime.Before(t) })
	if i < s.size && s.at(i).OpenTime.Equal(t) {
		return s.at(i), true
	}
	return model.Candle{}, false
}

func sameCandle(a, b model.Candle) bool {
	return a.Symbol == b.Symbol && a.Timeframe == b.Timeframe && a.OpenTime.Equal(b.OpenTime) &&
		a.Open == b.Open && a.High == b.High && a.Low == b.Low && a.Close == b.Close && a.Volume == b.Volume
}
