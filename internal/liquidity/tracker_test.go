package liquidity

import (
	"errors"
	"testing"
	"time"

	"github.com/RonoHenry/AgentICTrader/internal/model"
)

var t0 = time.Date(2024, 5, 6, 9, 0, 0, 0, time.UTC)

func bar(i int, low, high float64) model.Candle {
	return model.Candle{
		Symbol: "XAUUSD", Timeframe: model.H1,
		OpenTime: t0.Add(time.Duration(i) * time.Hour),
		Open:     low, High: high, Low: low, Close: high,
	}
}

type feeder struct {
	tr     *Tracker
	window []model.Candle
}

func (f *feeder) push(t *testing.T, low, high float64) Result {
	t.Helper()
	f.window = append(f.window, bar(len(f.window), low, high))
	res, err := f.tr.Update(f.window)
	if err != nil && !errors.Is(err, model.ErrInsufficientHistory) {
		t.Fatalf("update: %v", err)
	}
	return res
}

// swingAt110 confirms a swing high at 110 with K=2.
func swingAt110(t *testing.T, f *feeder) {
	for _, hl := range [][2]float64{{100, 105}, {102, 107}, {104, 110}, {103, 108}, {101, 106}} {
		f.push(t, hl[0], hl[1])
	}
}

func TestUpdate_SwingHighCreatesBuySidePool(t *testing.T) {
	f := &feeder{tr: NewTracker("XAUUSD", model.H1, Config{SwingStrength: 2})}
	swingAt110(t, f)

	pools := f.tr.Unswept()
	if len(pools) != 1 {
		t.Fatalf("expected 1 pool, got %d", len(pools))
	}
	p := pools[0]
	if p.Kind != model.BuySide || p.Price != 110 {
		t.Errorf("expected buy-side pool at 110, got %s %.2f", p.Kind, p.Price)
	}
	if !p.FormedAt.Equal(t0.Add(2 * time.Hour)) {
		t.Errorf("expected pool formed at the swing candle, got %s", p.FormedAt)
	}
	if p.Session != model.SessionLondon {
		t.Errorf("expected london session, got %s", p.Session)
	}
	high, _ := f.tr.Swings()
	if high == nil || high.Price != 110 {
		t.Errorf("expected last swing high 110, got %+v", high)
	}
}

func TestUpdate_PoolSweptByHigherHigh(t *testing.T) {
	f := &feeder{tr: NewTracker("XAUUSD", model.H1, Config{SwingStrength: 2})}
	swingAt110(t, f)

	res := f.push(t, 104, 111)
	if len(res.Sweeps) != 1 || res.Sweeps[0].Pool.Price != 110 {
		t.Fatalf("expected the 110 pool swept, got %+v", res.Sweeps)
	}
	if res.Sweeps[0].Penetration != 1 {
		t.Errorf("expected penetration 1, got %.2f", res.Sweeps[0].Penetration)
	}

	// Sweeps are terminal regardless of what price does next.
	for _, hl := range [][2]float64{{100, 104}, {95, 99}, {96, 100}} {
		f.push(t, hl[0], hl[1])
		var found bool
		for _, p := range f.tr.Pools() {
			if p.Price == 110 {
				found = true
				if !p.Swept || p.SweptAt == nil {
					t.Fatalf("pool un-swept after %v", hl)
				}
			}
		}
		if !found {
			t.Fatal("swept pool dropped from history")
		}
	}
	for _, p := range f.tr.Unswept() {
		if p.Price == 110 {
			t.Error("swept pool reported as unswept")
		}
	}
}

func TestUpdate_BreakOfStructureOnce(t *testing.T) {
	f := &feeder{tr: NewTracker("XAUUSD", model.H1, Config{SwingStrength: 2})}
	swingAt110(t, f)

	res := f.push(t, 105, 112)
	if res.Break == nil || res.Break.Direction != model.Bullish || res.Break.Level != 110 {
		t.Fatalf("expected bullish break of 110, got %+v", res.Break)
	}
	res = f.push(t, 108, 113)
	if res.Break != nil {
		t.Errorf("a swing must only be broken once, got %+v", res.Break)
	}
}

func TestUpdate_ClustersNearbySwings(t *testing.T) {
	f := &feeder{tr: NewTracker("XAUUSD", model.H1, Config{SwingStrength: 2, ClusterTolerance: 0.001})}
	swingAt110(t, f)
	var touched bool
	for _, hl := range [][2]float64{{101, 107}, {104, 109.95}, {103, 108}, {102, 107}} {
		res := f.push(t, hl[0], hl[1])
		for _, e := range res.Events {
			if e.Kind == model.EventPoolTouched {
				touched = true
			}
		}
	}
	pools := f.tr.Unswept()
	if len(pools) != 1 {
		t.Fatalf("expected swings to merge into 1 pool, got %d", len(pools))
	}
	if pools[0].Touches != 2 || pools[0].Price != 110 {
		t.Errorf("expected 2 touches at fixed price 110, got %d at %.2f", pools[0].Touches, pools[0].Price)
	}
	if !touched {
		t.Error("expected a pool_touched event")
	}
}

func TestUpdate_PurgesStalePools(t *testing.T) {
	f := &feeder{tr: NewTracker("XAUUSD", model.H1, Config{SwingStrength: 2, RetentionBars: 3})}
	swingAt110(t, f)
	f.push(t, 101, 106)
	res := f.push(t, 101, 105)

	var purged bool
	for _, e := range res.Events {
		if e.Kind == model.EventPoolPurged && e.Pool != nil && e.Pool.Price == 110 {
			purged = true
		}
	}
	if !purged {
		t.Errorf("expected the 110 pool purged after 4 bars, events %+v", res.Events)
	}
	if len(f.tr.Pools()) != 0 {
		t.Errorf("expected no pools left, got %+v", f.tr.Pools())
	}
}

func TestUpdate_RelevanceDecays(t *testing.T) {
	f := &feeder{tr: NewTracker("XAUUSD", model.H1, Config{SwingStrength: 2, HalfLifeBars: 2})}
	swingAt110(t, f)
	p := f.tr.Unswept()[0]
	if p.Relevance != 0.5 {
		t.Errorf("expected relevance 0.5 after one half-life, got %.3f", p.Relevance)
	}
}

func TestUpdate_InsufficientHistory(t *testing.T) {
	tr := NewTracker("XAUUSD", model.H1, Config{SwingStrength: 2})
	_, err := tr.Update([]model.Candle{bar(0, 100, 101)})
	if !errors.Is(err, model.ErrInsufficientHistory) {
		t.Errorf("expected ErrInsufficientHistory, got %v", err)
	}
}

func TestSessionOf(t *testing.T) {
	day := time.Date(2024, 5, 6, 0, 0, 0, 0, time.UTC)
	tests := []struct {
		hour int
		tf   model.Timeframe
		want model.Session
	}{
		{3, model.H1, model.SessionAsian},
		{7, model.M15, model.SessionLondon},
		{11, model.M5, model.SessionLondon},
		{12, model.H1, model.SessionNewYork},
		{20, model.H4, model.SessionNewYork},
		{21, model.H1, model.SessionOff},
		{13, model.Daily, model.SessionNone},
		{13, model.Weekly, model.SessionNone},
	}
	for _, tt := range tests {
		got := SessionOf(day.Add(time.Duration(tt.hour)*time.Hour), tt.tf)
		if got != tt.want {
			t.Errorf("%02d:00 %s: expected %s, got %s", tt.hour, tt.tf, tt.want, got)
		}
	}
}

func TestConfirmSwings(t *testing.T) {
	var candles []model.Candle
	for i, hl := range [][2]float64{{100, 105}, {102, 107}, {104, 110}, {103, 108}, {101, 106}, {99, 104}, {100, 105}, {102, 106}} {
		candles = append(candles, bar(i, hl[0], hl[1]))
	}
	var swings []model.SwingPoint
	for i := range candles {
		high, low := ConfirmSwings("XAUUSD", model.H1, candles[:i+1], 2)
		for _, sp := range []*model.SwingPoint{high, low} {
			if sp != nil {
				swings = append(swings, *sp)
			}
		}
	}
	if len(swings) != 2 {
		t.Fatalf("expected 2 swings, got %+v", swings)
	}
	if swings[0].Kind != model.SwingHigh || swings[0].Price != 110 {
		t.Errorf("expected swing high 110 first, got %+v", swings[0])
	}
	if swings[1].Kind != model.SwingLow || swings[1].Price != 99 {
		t.Errorf("expected swing low 99, got %+v", swings[1])
	}
}
