// Package pdarray derives premium and discount zones from the current swing
// range and scores them by confluence.
package pdarray

import (
	"fmt"
	"sort"
	"time"

	"github.com/RonoHenry/AgentICTrader/internal/calculator"
	"github.com/RonoHenry/AgentICTrader/internal/confluence"
	"github.com/RonoHenry/AgentICTrader/internal/model"
)

// Weights of the zone strength factors.
type Weights struct {
	FVG      float64 `yaml:"fvg"`
	Pool     float64 `yaml:"pool"`
	Rank     float64 `yaml:"rank"`
	Age      float64 `yaml:"age"`
	Reaction float64 `yaml:"reaction"`
}

// DefaultWeights splits evenly between imbalance and liquidity, then how
// price has reacted to the zone, with rank and freshness as tie-breakers.
var DefaultWeights = Weights{FVG: 0.25, Pool: 0.25, Rank: 0.15, Age: 0.15, Reaction: 0.2}

// Config tunes zone construction and scoring.
type Config struct {
	MinRangeATR    float64 // swing range must span at least this many ATRs
	HalfLifeBars   float64
	FVGSaturation  int // unfilled gaps inside a zone for a full FVG factor
	PoolSaturation int // unswept pools inside a zone for a full pool factor
	MaxRetained    int // invalidated zones kept for audit
	Weights        Weights
}

// Input is the per-candle state the zones are built from.
type Input struct {
	Candle model.Candle
	ATR    float64
	High   *model.SwingPoint
	Low    *model.SwingPoint
	FVGs   []model.FairValueGap  // unfilled only
	Pools  []model.LiquidityPool // unswept only
}

// Calculator owns the zones of one (symbol, timeframe). Not safe for concurrent use.
type Calculator struct {
	symbol    string
	timeframe model.Timeframe
	cfg       Config
	zones     []*model.Zone
	rangeKey  string
	swingRefs []string
	high, low float64
}

// NewCalculator creates a zone calculator for one stream.
func NewCalculator(symbol string, tf model.Timeframe, cfg Config) *Calculator {
	if cfg.HalfLifeBars <= 0 {
		cfg.HalfLifeBars = 50
	}
	if cfg.FVGSaturation <= 0 {
		cfg.FVGSaturation = 3
	}
	if cfg.PoolSaturation <= 0 {
		cfg.PoolSaturation = 3
	}
	if cfg.MaxRetained <= 0 {
		cfg.MaxRetained = 100
	}
	if cfg.Weights == (Weights{}) {
		cfg.Weights = DefaultWeights
	}
	return &Calculator{symbol: symbol, timeframe: tf, cfg: cfg}
}

// Update rebuilds zones when the swing range changes, invalidates zones the
// candle closed through and rescores the rest.
func (c *Calculator) Update(in Input) []model.Event {
	var events []model.Event
	at := in.Candle.OpenTime

	if key, ok := c.newRange(in); ok {
		for _, z := range c.zones {
			if z.Active() {
				events = append(events, c.invalidate(z, model.ReasonSuperseded, at))
			}
		}
		c.rangeKey, c.high, c.low = key, in.High.Price, in.Low.Price
		c.swingRefs = []string{in.High.ID, in.Low.ID}
		eq := calculator.Equilibrium(c.high, c.low)
		for _, k := range []model.ZoneKind{model.Premium, model.Discount} {
			lo, hi := eq, c.high
			if k == model.Discount {
				lo, hi = c.low, eq
			}
			z := &model.Zone{
				ID:        model.NewID("zone", c.symbol, string(c.timeframe), string(k), in.High.ID, in.Low.ID),
				Symbol:    c.symbol,
				Timeframe: c.timeframe,
				Kind:      k,
				PriceLow:  lo,
				PriceHigh: hi,
				CreatedAt: at,
			}
			c.score(z, in)
			c.zones = append(c.zones, z)
			snap := copyZone(*z)
			events = append(events, c.event(model.EventZoneCreated, at, &snap))
		}
	}

	last := in.Candle.Close
	for _, z := range c.zones {
		if !z.Active() {
			continue
		}
		if (z.Kind == model.Premium && last > z.PriceHigh) || (z.Kind == model.Discount && last < z.PriceLow) {
			events = append(events, c.invalidate(z, model.ReasonClosedThrough, at))
			continue
		}
		touch(z, in.Candle)
		c.score(z, in)
	}
	c.trim()
	return events
}

func (c *Calculator) newRange(in Input) (string, bool) {
	if in.High == nil || in.Low == nil || in.High.Price <= in.Low.Price {
		return "", false
	}
	if in.High.Price-in.Low.Price < c.cfg.MinRangeATR*in.ATR {
		return "", false
	}
	key := in.High.ID + "/" + in.Low.ID
	return key, key != c.rangeKey
}

// touch counts a candle trading into the zone. It is a reaction when the
// same candle also trades out through the near edge: below a premium zone or
// above a discount zone.
func touch(z *model.Zone, c model.Candle) {
	if !z.Contains(c.High) && !z.Contains(c.Low) {
		return
	}
	z.Touches++
	if (z.Kind == model.Premium && c.Low < z.PriceLow) || (z.Kind == model.Discount && c.High > z.PriceHigh) {
		z.Reactions++
	}
}

func (c *Calculator) score(z *model.Zone, in Input) {
	refs := append([]string(nil), c.swingRefs...)
	fvgs := 0
	for _, g := range in.FVGs {
		if z.Overlaps(g.PriceLow, g.PriceHigh) {
			fvgs++
			refs = append(refs, g.ID)
		}
	}
	pools := 0
	for _, p := range in.Pools {
		if z.Contains(p.Price) {
			pools++
			refs = append(refs, p.ID)
		}
	}
	age := c.timeframe.Bars(in.Candle.OpenTime.Sub(z.CreatedAt))

	w := c.cfg.Weights
	z.Factors = []model.FactorScore{
		confluence.Factor("fvg", confluence.Saturate(fvgs, c.cfg.FVGSaturation), w.FVG, fmt.Sprintf("%d unfilled", fvgs)),
		confluence.Factor("pool", confluence.Saturate(pools, c.cfg.PoolSaturation), w.Pool, fmt.Sprintf("%d unswept", pools)),
		confluence.Factor("rank", float64(c.timeframe.Rank())/float64(len(model.Timeframes)), w.Rank, string(c.timeframe)),
		confluence.Factor("age", confluence.Decay(age, c.cfg.HalfLifeBars), w.Age, fmt.Sprintf("%.0f bars", age)),
		confluence.Factor("reaction", float64(z.Reactions)/float64(max(z.Touches, 1)), w.Reaction, fmt.Sprintf("%d/%d touches", z.Reactions, z.Touches)),
	}
	z.Strength = confluence.Score(z.Factors)
	z.Refs = refs
}

// Invalidate applies a top-down override to an active zone. It reports false
// if the zone is unknown or already invalidated.
func (c *Calculator) Invalidate(id, reason string, at time.Time) (model.Event, bool) {
	for _, z := range c.zones {
		if z.ID == id && z.Active() {
			return c.invalidate(z, reason, at), true
		}
	}
	return model.Event{}, false
}

func (c *Calculator) invalidate(z *model.Zone, reason string, at time.Time) model.Event {
	t := at
	z.InvalidatedAt = &t
	z.InvalidationReason = reason
	snap := copyZone(*z)
	return c.event(model.EventZoneInvalidated, at, &snap)
}

func (c *Calculator) trim() {
	inactive := 0
	for _, z := range c.zones {
		if !z.Active() {
			inactive++
		}
	}
	drop := inactive - c.cfg.MaxRetained
	if drop <= 0 {
		return
	}
	kept := c.zones[:0]
	for _, z := range c.zones {
		if drop > 0 && !z.Active() {
			drop--
			continue
		}
		kept = append(kept, z)
	}
	c.zones = kept
}

func (c *Calculator) event(kind model.EventKind, at time.Time, z *model.Zone) model.Event {
	return model.Event{Symbol: c.symbol, Timeframe: c.timeframe, Kind: kind, At: at, RefID: z.ID, Zone: z}
}

// Zones returns copies of every retained zone, oldest first.
func (c *Calculator) Zones() []model.Zone { return c.collect(func(*model.Zone) bool { return true }) }

// Active returns copies of the zones still valid.
func (c *Calculator) Active() []model.Zone { return c.collect((*model.Zone).Active) }

// Range returns the swing range the current zones were built from.
func (c *Calculator) Range() (high, low float64, ok bool) {
	return c.high, c.low, c.rangeKey != ""
}

func (c *Calculator) collect(keep func(*model.Zone) bool) []model.Zone {
	var out []model.Zone
	for _, z := range c.zones {
		if keep(z) {
			out = append(out, copyZone(*z))
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].Kind < out[j].Kind
	})
	return out
}

func copyZone(z model.Zone) model.Zone {
	if z.InvalidatedAt != nil {
		at := *z.InvalidatedAt
		z.InvalidatedAt = &at
	}
	z.Factors = append([]model.FactorScore(nil), z.Factors...)
	z.Refs = append([]string(nil), z.Refs...)
	return z
}
