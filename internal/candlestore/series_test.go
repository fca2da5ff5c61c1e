package candlestore

import (
	"errors"
	"math"
	"testing"
	"time"

	"github.com/RonoHenry/AgentICTrader/internal/model"
)

var t0 = time.Date(2024, 3, 4, 0, 0, 0, 0, time.UTC)

func candle(i int, o, h, l, c float64) model.Candle {
	return model.Candle{
		Symbol: "EURUSD", Timeframe: model.M1,
		OpenTime: t0.Add(time.Duration(i) * time.Minute),
		Open:     o, High: h, Low: l, Close: c, Volume: 10,
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name string
		c    model.Candle
		ok   bool
	}{
		{"valid", candle(0, 100, 102, 99, 101), true},
		{"doji at high", candle(0, 102, 102, 99, 102), true},
		{"low above open", candle(0, 100, 102, 100.5, 101), false},
		{"high below close", candle(0, 100, 100.5, 99, 101), false},
		{"nan close", candle(0, 100, 102, 99, math.NaN()), false},
		{"inf high", candle(0, 100, math.Inf(1), 99, 101), false},
		{"empty symbol", func() model.Candle { c := candle(0, 100, 102, 99, 101); c.Symbol = ""; return c }(), false},
		{"bad timeframe", func() model.Candle { c := candle(0, 100, 102, 99, 101); c.Timeframe = "X3"; return c }(), false},
	}
	for _, tt := range tests {
		err := Validate(tt.c)
		if tt.ok && err != nil {
			t.Errorf("%s: unexpected error %v", tt.name, err)
		}
		if !tt.ok {
			if err == nil {
				t.Errorf("%s: expected error", tt.name)
			} else if !errors.Is(err, model.ErrMalformedCandle) {
				t.Errorf("%s: expected ErrMalformedCandle, got %v", tt.name, err)
			}
		}
	}
}

func TestSeries_AppendOrdering(t *testing.T) {
	s := NewSeries("EURUSD", model.M1, 10)
	if applied, err := s.Append(candle(1, 100, 101, 99, 100)); !applied || err != nil {
		t.Fatalf("expected first append applied, got %v %v", applied, err)
	}
	_, err := s.Append(candle(0, 100, 101, 99, 100))
	if !errors.Is(err, model.ErrOutOfOrder) {
		t.Fatalf("expected ErrOutOfOrder, got %v", err)
	}
	var ooe *model.OutOfOrderError
	if !errors.As(err, &ooe) || !ooe.Last.Equal(t0.Add(time.Minute)) {
		t.Errorf("expected OutOfOrderError carrying last open time, got %v", err)
	}
	if s.Len() != 1 {
		t.Errorf("rejected candle must not be stored, len=%d", s.Len())
	}
}

func TestSeries_IdenticalReplayIsNoop(t *testing.T) {
	s := NewSeries("EURUSD", model.M1, 10)
	for i := 0; i < 5; i++ {
		s.Append(candle(i, 100, 101, 99, 100))
	}
	applied, err := s.Append(candle(2, 100, 101, 99, 100))
	if err != nil || applied {
		t.Fatalf("expected no-op for identical replay, got applied=%v err=%v", applied, err)
	}
	if s.Len() != 5 {
		t.Errorf("expected 5 candles, got %d", s.Len())
	}

	_, err = s.Append(candle(2, 100, 105, 99, 100))
	if !errors.Is(err, model.ErrOutOfOrder) {
		t.Errorf("expected conflicting candle to be out of order, got %v", err)
	}
}

func TestSeries_RetentionEvictsOldest(t *testing.T) {
	s := NewSeries("EURUSD", model.M1, 3)
	for i := 0; i < 5; i++ {
		if _, err := s.Append(candle(i, 100, 101, 99, 100)); err != nil {
			t.Fatalf("append %d: %v", i, err)
		}
	}
	if s.Len() != 3 {
		t.Fatalf("expected 3 retained, got %d", s.Len())
	}
	last := s.Last(0)
	for i, c := range last {
		want := t0.Add(time.Duration(i+2) * time.Minute)
		if !c.OpenTime.Equal(want) {
			t.Errorf("index %d: expected %s, got %s", i, want, c.OpenTime)
		}
	}
	if got := s.Last(2); len(got) != 2 || !got[1].OpenTime.Equal(t0.Add(4*time.Minute)) {
		t.Errorf("unexpected Last(2): %+v", got)
	}

	// An identical candle that has been evicted can no longer be recognised.
	if _, err := s.Append(candle(0, 100, 101, 99, 100)); !errors.Is(err, model.ErrOutOfOrder) {
		t.Errorf("expected evicted replay to be out of order, got %v", err)
	}
}

func TestSeries_LastIsACopy(t *testing.T) {
	s := NewSeries("EURUSD", model.M1, 3)
	s.Append(candle(0, 100, 101, 99, 100))
	view := s.Last(1)
	view[0].High = 999
	if c, _ := s.Latest(); c.High != 101 {
		t.Errorf("mutating the view changed the store: high=%.0f", c.High)
	}
}

func TestSeries_Range(t *testing.T) {
	s := NewSeries("EURUSD", model.M1, 10)
	for i := 0; i < 6; i++ {
		s.Append(candle(i, 100, 101, 99, 100))
	}
	got := s.Range(t0.Add(2*time.Minute), t0.Add(4*time.Minute))
	if len(got) != 2 {
		t.Fatalf("expected 2 candles, got %d", len(got))
	}
	if all := s.Range(time.Time{}, time.Time{}); len(all) != 6 {
		t.Errorf("expected open range to return all, got %d", len(all))
	}
}
