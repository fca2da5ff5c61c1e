// Package correlator combines per-timeframe state into a SignalContext. It is
// a pure function of its input: it decides top-down invalidations but never
// applies them.
package correlator

import (
	"math"
	"sort"

	"github.com/RonoHenry/AgentICTrader/internal/calculator"
	"github.com/RonoHenry/AgentICTrader/internal/model"
)

// Snapshot is a consistent copy of one timeframe's state.
type Snapshot struct {
	Timeframe  model.Timeframe
	Version    uint64
	LastCandle *model.Candle
	Phase      model.PhaseState
	Zones      []model.Zone // active only
	FVGs       []model.FairValueGap
	Pools      []model.LiquidityPool
	RangeHigh  float64
	RangeLow   float64
	HasRange   bool
	Volatility float64 // standard deviation of candle bodies over the recent window
}

// Correlate builds the context for symbol and returns the zone
// invalidations the owners must apply.
//
// Bias comes from the coarsest timeframe in Expansion. Zones on finer
// timeframes that disagree with it are invalidated. A zone overlapped by a
// coarser active zone of the opposite kind is invalidated too; while a bias
// is set only coarser zones that agree with the bias take part in that rule.
func Correlate(symbol string, snaps []Snapshot) (model.SignalContext, []model.ZoneInvalidation) {
	ordered := append([]Snapshot(nil), snaps...)
	sort.SliceStable(ordered, func(i, j int) bool { return ordered[i].Timeframe.Rank() > ordered[j].Timeframe.Rank() })

	ctx := model.SignalContext{Symbol: symbol, Timeframes: make([]model.TimeframeContext, 0, len(ordered))}
	for _, s := range ordered {
		if s.LastCandle != nil && s.LastCandle.OpenTime.After(ctx.AsOf) {
			ctx.AsOf = s.LastCandle.OpenTime
		}
	}

	biasRank := 0
	for _, s := range ordered {
		if s.Phase.Kind == model.Expansion && s.Phase.Direction != model.DirectionNone {
			ctx.BiasTimeframe, ctx.BiasDirection = s.Timeframe, s.Phase.Direction
			biasRank = s.Timeframe.Rank()
			break
		}
	}

	invalid := map[string]model.ZoneInvalidation{}
	var inv []model.ZoneInvalidation
	mark := func(z model.Zone, reason string, by model.Timeframe) {
		if _, done := invalid[z.ID]; done {
			return
		}
		zi := model.ZoneInvalidation{ZoneID: z.ID, Timeframe: z.Timeframe, Kind: z.Kind, Reason: reason, By: by, At: ctx.AsOf}
		invalid[z.ID] = zi
		inv = append(inv, zi)
	}

	if ctx.BiasDirection != model.DirectionNone {
		aligned := model.AlignedZoneKind(ctx.BiasDirection)
		for _, s := range ordered {
			if s.Timeframe.Rank() >= biasRank {
				continue
			}
			for _, z := range s.Zones {
				if z.Kind != aligned {
					mark(z, model.ReasonBiasOverride, ctx.BiasTimeframe)
				}
			}
		}
	}

	for i, s := range ordered {
		for _, z := range s.Zones {
			if _, done := invalid[z.ID]; done {
				continue
			}
			if by, ok := overriddenBy(z, ordered[:i], invalid, ctx.BiasDirection); ok {
				mark(z, model.ReasonHTFOverride, by)
			}
		}
	}

	for _, s := range ordered {
		ctx.Timeframes = append(ctx.Timeframes, timeframeContext(s, invalid))
	}
	ctx.Correlation = correlation(ctx.Timeframes)
	ctx.DominantTimeframe, ctx.DominantStrength = dominant(ordered)
	if len(inv) > 0 {
		ctx.Invalidated = inv
	}
	return ctx, inv
}

func overriddenBy(z model.Zone, coarser []Snapshot, invalid map[string]model.ZoneInvalidation, bias model.Direction) (model.Timeframe, bool) {
	for _, s := range coarser {
		if s.Timeframe.Rank() <= z.Timeframe.Rank() {
			continue
		}
		for _, hz := range s.Zones {
			if _, gone := invalid[hz.ID]; gone || hz.Kind == z.Kind {
				continue
			}
			if bias != model.DirectionNone && hz.Kind != model.AlignedZoneKind(bias) {
				continue
			}
			if hz.Overlaps(z.PriceLow, z.PriceHigh) {
				return s.Timeframe, true
			}
		}
	}
	return "", false
}

func timeframeContext(s Snapshot, invalid map[string]model.ZoneInvalidation) model.TimeframeContext {
	tc := model.TimeframeContext{
		Timeframe:      s.Timeframe,
		Version:        s.Version,
		Phase:          s.Phase.Kind,
		PhaseDirection: s.Phase.Direction,
		PhaseStrength:  s.Phase.Strength,
		PhaseEntered:   s.Phase.EnteredAt,
		ActiveZones:    make([]model.Zone, 0, len(s.Zones)),
		OpenFVGs:       append(make([]model.FairValueGap, 0, len(s.FVGs)), s.FVGs...),
		UnsweptPools:   append(make([]model.LiquidityPool, 0, len(s.Pools)), s.Pools...),
	}
	for _, z := range s.Zones {
		if _, gone := invalid[z.ID]; !gone {
			tc.ActiveZones = append(tc.ActiveZones, z)
		}
	}
	if s.LastCandle != nil {
		tc.LastCandleAt = s.LastCandle.OpenTime
		tc.LastClose = s.LastCandle.Close
	}
	if s.HasRange {
		tc.RangeHigh, tc.RangeLow = s.RangeHigh, s.RangeLow
		if s.LastCandle != nil {
			if pos, err := calculator.PositionInRange(s.LastCandle.Close, s.RangeHigh, s.RangeLow); err == nil {
				tc.RangePosition = &pos
			}
		}
	}
	return tc
}

// correlation averages, over every pair of timeframes and zone kind present
// in both, 1 minus the smaller edge distance relative to the coarser zone's
// width. The strongest zone of each kind stands for its timeframe.
func correlation(tfs []model.TimeframeContext) float64 {
	var sum float64
	var n int
	for i := range tfs {
		for j := i + 1; j < len(tfs); j++ {
			for _, k := range []model.ZoneKind{model.Premium, model.Discount} {
				a, okA := strongest(tfs[i].ActiveZones, k)
				b, okB := strongest(tfs[j].ActiveZones, k)
				if !okA || !okB {
					continue
				}
				dist := math.Min(math.Abs(a.PriceHigh-b.PriceHigh), math.Abs(a.PriceLow-b.PriceLow))
				width := math.Max(a.PriceHigh-a.PriceLow, 1e-9)
				sum += math.Max(0, 1-dist/width)
				n++
			}
		}
	}
	if n == 0 {
		return 0
	}
	return sum / float64(n)
}

func strongest(zones []model.Zone, kind model.ZoneKind) (model.Zone, bool) {
	var best model.Zone
	found := false
	for _, z := range zones {
		if z.Kind != kind {
			continue
		}
		if !found || z.Strength > best.Strength || (z.Strength == best.Strength && z.ID < best.ID) {
			best, found = z, true
		}
	}
	return best, found
}

// dominant picks the timeframe with the largest body volatility scaled by
// the square root of its bar length in minutes. Ties go to the coarser one.
func dominant(ordered []Snapshot) (model.Timeframe, float64) {
	var best model.Timeframe
	var bestV, total float64
	for _, s := range ordered {
		minutes := s.Timeframe.Duration().Minutes()
		if s.Volatility <= 0 || minutes <= 0 {
			continue
		}
		v := s.Volatility / math.Sqrt(minutes)
		total += v
		if v > bestV {
			best, bestV = s.Timeframe, v
		}
	}
	if total == 0 {
		return "", 0
	}
	return best, bestV / total
}
