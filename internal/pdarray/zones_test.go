package pdarray

import (
	"math"
	"testing"
	"time"

	"github.com/RonoHenry/AgentICTrader/internal/model"
)

var t0 = time.Date(2024, 5, 6, 0, 0, 0, 0, time.UTC)

func at(i int) time.Time { return t0.Add(time.Duration(i) * time.Hour) }

func swing(id string, kind model.SwingKind, price float64) *model.SwingPoint {
	return &model.SwingPoint{ID: id, Kind: kind, Price: price, Timeframe: model.H1}
}

func input(i int, close float64, high, low *model.SwingPoint) Input {
	return Input{
		Candle: model.Candle{Symbol: "EURUSD", Timeframe: model.H1, OpenTime: at(i), Open: close, High: close, Low: close, Close: close},
		ATR:    2,
		High:   high,
		Low:    low,
	}
}

func byKind(zones []model.Zone, k model.ZoneKind) (model.Zone, bool) {
	for _, z := range zones {
		if z.Kind == k {
			return z, true
		}
	}
	return model.Zone{}, false
}

func TestUpdate_BuildsPremiumAndDiscount(t *testing.T) {
	c := NewCalculator("EURUSD", model.H1, Config{})
	events := c.Update(input(0, 100, swing("h", model.SwingHigh, 110), swing("l", model.SwingLow, 90)))

	if len(events) != 2 {
		t.Fatalf("expected 2 zone_created events, got %d", len(events))
	}
	prem, ok := byKind(c.Active(), model.Premium)
	if !ok || prem.PriceLow != 100 || prem.PriceHigh != 110 {
		t.Errorf("expected premium [100,110], got %+v", prem)
	}
	disc, ok := byKind(c.Active(), model.Discount)
	if !ok || disc.PriceLow != 90 || disc.PriceHigh != 100 {
		t.Errorf("expected discount [90,100], got %+v", disc)
	}
	for _, z := range c.Active() {
		if z.Strength < 0 || z.Strength > 1 {
			t.Errorf("%s strength out of range: %.3f", z.Kind, z.Strength)
		}
		if len(z.Factors) != 5 {
			t.Errorf("%s: expected 5 factors, got %d", z.Kind, len(z.Factors))
		}
	}
	high, low, ok := c.Range()
	if !ok || high != 110 || low != 90 {
		t.Errorf("expected range 110/90, got %.0f/%.0f", high, low)
	}
}

func TestUpdate_ConfluenceRaisesStrength(t *testing.T) {
	h, l := swing("h", model.SwingHigh, 110), swing("l", model.SwingLow, 90)
	c := NewCalculator("EURUSD", model.H1, Config{})
	in := input(0, 100, h, l)
	in.FVGs = []model.FairValueGap{{ID: "g1", PriceLow: 92, PriceHigh: 94}}
	in.Pools = []model.LiquidityPool{{ID: "p1", Price: 91}, {ID: "p2", Price: 108}}
	c.Update(in)

	disc, _ := byKind(c.Active(), model.Discount)
	prem, _ := byKind(c.Active(), model.Premium)
	if disc.Strength <= prem.Strength {
		t.Errorf("discount with gap and pool should outscore premium with pool only: %.3f <= %.3f", disc.Strength, prem.Strength)
	}
	var refs = map[string]bool{}
	for _, r := range disc.Refs {
		refs[r] = true
	}
	for _, want := range []string{"h", "l", "g1", "p1"} {
		if !refs[want] {
			t.Errorf("expected discount refs to include %s, got %v", want, disc.Refs)
		}
	}
	// 1/3 fvg * .25 + 1/3 pool * .25 + 4/8 rank * .15 + age 1 * .15 + no reactions
	want := 0.25/3 + 0.25/3 + 0.075 + 0.15
	if math.Abs(disc.Strength-want) > 1e-9 {
		t.Errorf("expected strength %.4f, got %.4f", want, disc.Strength)
	}
}

func TestUpdate_CountsTouchesAndReactions(t *testing.T) {
	h, l := swing("h", model.SwingHigh, 110), swing("l", model.SwingLow, 90)
	c := NewCalculator("EURUSD", model.H1, Config{})
	c.Update(input(0, 100, h, l))

	// wicks into both zones and trades out through each near edge
	wick := input(1, 99, h, l)
	wick.Candle.Open, wick.Candle.High, wick.Candle.Low = 99, 105, 98
	c.Update(wick)
	c.Update(input(2, 108, h, l))

	tests := []struct {
		kind               model.ZoneKind
		touches, reactions int
	}{
		{model.Premium, 3, 1},
		{model.Discount, 2, 1},
	}
	for _, tt := range tests {
		z, ok := byKind(c.Active(), tt.kind)
		if !ok {
			t.Fatalf("%s zone missing", tt.kind)
		}
		if z.Touches != tt.touches || z.Reactions != tt.reactions {
			t.Errorf("%s: expected %d touches %d reactions, got %d/%d", tt.kind, tt.touches, tt.reactions, z.Touches, z.Reactions)
		}
		f := z.Factors[len(z.Factors)-1]
		if f.Name != "reaction" || math.Abs(f.RawScore-float64(tt.reactions)/float64(tt.touches)) > 1e-9 {
			t.Errorf("%s: unexpected reaction factor %+v", tt.kind, f)
		}
	}
}

func TestUpdate_StrengthDecaysWithAge(t *testing.T) {
	h, l := swing("h", model.SwingHigh, 110), swing("l", model.SwingLow, 90)
	c := NewCalculator("EURUSD", model.H1, Config{HalfLifeBars: 5})
	c.Update(input(0, 100, h, l))
	prev, _ := byKind(c.Active(), model.Discount)
	for i := 1; i < 10; i++ {
		c.Update(input(i, 100, h, l))
		z, _ := byKind(c.Active(), model.Discount)
		if z.Strength >= prev.Strength {
			t.Fatalf("bar %d: strength did not decay %.4f >= %.4f", i, z.Strength, prev.Strength)
		}
		if z.PriceLow != 90 || z.PriceHigh != 100 {
			t.Fatalf("zone bounds changed: %+v", z)
		}
		prev = z
	}
}

func TestUpdate_CloseThroughInvalidates(t *testing.T) {
	h, l := swing("h", model.SwingHigh, 110), swing("l", model.SwingLow, 90)
	c := NewCalculator("EURUSD", model.H1, Config{})
	c.Update(input(0, 100, h, l))
	events := c.Update(input(1, 111, h, l))

	if len(events) != 1 || events[0].Kind != model.EventZoneInvalidated {
		t.Fatalf("expected one zone_invalidated event, got %+v", events)
	}
	if _, ok := byKind(c.Active(), model.Premium); ok {
		t.Error("premium should be invalidated by a close above it")
	}
	if _, ok := byKind(c.Active(), model.Discount); !ok {
		t.Error("discount should remain active")
	}
	prem, _ := byKind(c.Zones(), model.Premium)
	if prem.InvalidatedAt == nil || !prem.InvalidatedAt.Equal(at(1)) || prem.InvalidationReason != model.ReasonClosedThrough {
		t.Errorf("expected retained premium invalidated at bar 1, got %+v", prem)
	}
}

func TestUpdate_NewRangeSupersedes(t *testing.T) {
	c := NewCalculator("EURUSD", model.H1, Config{})
	c.Update(input(0, 100, swing("h1", model.SwingHigh, 110), swing("l1", model.SwingLow, 90)))
	c.Update(input(1, 100, swing("h2", model.SwingHigh, 115), swing("l1", model.SwingLow, 90)))

	if len(c.Active()) != 2 {
		t.Fatalf("expected 2 active zones, got %d", len(c.Active()))
	}
	superseded := 0
	for _, z := range c.Zones() {
		if z.InvalidationReason == model.ReasonSuperseded {
			superseded++
		}
	}
	if superseded != 2 {
		t.Errorf("expected 2 superseded zones, got %d", superseded)
	}
	prem, _ := byKind(c.Active(), model.Premium)
	if prem.PriceLow != 102.5 || prem.PriceHigh != 115 {
		t.Errorf("expected premium [102.5,115], got [%.2f,%.2f]", prem.PriceLow, prem.PriceHigh)
	}
}

func TestUpdate_RejectsNarrowRange(t *testing.T) {
	c := NewCalculator("EURUSD", model.H1, Config{MinRangeATR: 3})
	c.Update(input(0, 100, swing("h", model.SwingHigh, 103), swing("l", model.SwingLow, 99)))
	if len(c.Zones()) != 0 {
		t.Errorf("range of 4 is below 3 ATR of 2, got %+v", c.Zones())
	}
	c.Update(input(1, 100, swing("h", model.SwingHigh, 103), swing("l", model.SwingLow, 110)))
	if len(c.Zones()) != 0 {
		t.Error("inverted range must not build zones")
	}
}

func TestInvalidate_Override(t *testing.T) {
	c := NewCalculator("EURUSD", model.H1, Config{})
	c.Update(input(0, 100, swing("h", model.SwingHigh, 110), swing("l", model.SwingLow, 90)))
	prem, _ := byKind(c.Active(), model.Premium)

	ev, ok := c.Invalidate(prem.ID, model.ReasonBiasOverride, at(0))
	if !ok || ev.Zone == nil || ev.Zone.InvalidationReason != model.ReasonBiasOverride {
		t.Fatalf("expected override event, got %+v", ev)
	}
	if _, ok := c.Invalidate(prem.ID, model.ReasonBiasOverride, at(1)); ok {
		t.Error("an invalidated zone must not be invalidated twice")
	}
	if _, ok := c.Invalidate("missing", model.ReasonBiasOverride, at(1)); ok {
		t.Error("unknown zone must report false")
	}
}
