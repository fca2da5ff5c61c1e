// Package fvg detects three-candle fair value gaps and tracks how they fill.
package fvg

import (
	"math"
	"sort"

	"github.com/RonoHenry/AgentICTrader/internal/model"
)

// MinCandles is the smallest window a gap can be evaluated on.
const MinCandles = 3

// Config tunes the detector.
type Config struct {
	MinGap      float64 // minimum gap width as a fraction of the middle close, 0 accepts any gap
	MaxRetained int     // filled gaps kept for history, oldest dropped first
}

type span struct{ lo, hi float64 }

type gapState struct {
	gap     model.FairValueGap
	covered []span // merged, sorted portions of the gap already traded through
}

// Detector holds the gaps of one (symbol, timeframe). Not safe for concurrent use.
type Detector struct {
	symbol    string
	timeframe model.Timeframe
	cfg       Config
	gaps      []*gapState
}

// NewDetector creates a detector for one stream.
func NewDetector(symbol string, tf model.Timeframe, cfg Config) *Detector {
	if cfg.MaxRetained <= 0 {
		cfg.MaxRetained = 200
	}
	return &Detector{symbol: symbol, timeframe: tf, cfg: cfg}
}

// Update processes the newest candle of window (oldest first). Existing gaps
// are filled by it first, then the last three candles are scanned for a new
// gap, so the candle that completes a gap never fills it.
func (d *Detector) Update(window []model.Candle) ([]model.Event, error) {
	if len(window) == 0 {
		return nil, &model.InsufficientHistoryError{What: "fvg", Have: 0, Need: MinCandles}
	}
	cur := window[len(window)-1]
	events := d.fill(cur)

	if len(window) < MinCandles {
		return events, &model.InsufficientHistoryError{What: "fvg", Have: len(window), Need: MinCandles}
	}
	if ev, ok := d.detect(window[len(window)-3], window[len(window)-2], cur); ok {
		events = append(events, ev)
	}
	d.trim()
	return events, nil
}

func (d *Detector) detect(c1, c2, c3 model.Candle) (model.Event, bool) {
	var dir model.Direction
	var lo, hi float64
	switch {
	case c1.High < c3.Low:
		dir, lo, hi = model.Bullish, c1.High, c3.Low
	case c1.Low > c3.High:
		dir, lo, hi = model.Bearish, c3.High, c1.Low
	default:
		return model.Event{}, false
	}
	if d.cfg.MinGap > 0 && c2.Close != 0 && (hi-lo)/math.Abs(c2.Close) < d.cfg.MinGap {
		return model.Event{}, false
	}
	for _, g := range d.gaps {
		if g.gap.FillState != model.FillFilled && g.gap.Direction == dir && g.gap.PriceLow == lo && g.gap.PriceHigh == hi {
			return model.Event{}, false
		}
	}

	gap := model.FairValueGap{
		ID:        model.NewID("fvg", d.symbol, string(d.timeframe), model.FormatTime(c3.OpenTime), string(dir), model.FormatPrice(lo), model.FormatPrice(hi)),
		Symbol:    d.symbol,
		Timeframe: d.timeframe,
		Direction: dir,
		PriceLow:  lo,
		PriceHigh: hi,
		FormedAt:  c3.OpenTime,
		FillState: model.FillOpen,
	}
	d.gaps = append(d.gaps, &gapState{gap: gap})
	return d.event(model.EventFVGCreated, c3, gap), true
}

// fill advances gaps the candle traded into. A candle trading entirely beyond
// the far edge has traversed the whole gap.
func (d *Detector) fill(c model.Candle) []model.Event {
	var events []model.Event
	for _, g := range d.gaps {
		if g.gap.FillState == model.FillFilled {
			continue
		}
		lo, hi := g.gap.PriceLow, g.gap.PriceHigh
		beyond := (g.gap.Direction == model.Bullish && c.High < lo) || (g.gap.Direction == model.Bearish && c.Low > hi)
		switch {
		case beyond:
			g.covered = []span{{lo, hi}}
		default:
			s := span{math.Max(lo, c.Low), math.Min(hi, c.High)}
			if s.hi <= s.lo {
				continue
			}
			g.covered = merge(append(g.covered, s))
		}

		prev := g.gap.FillState
		if len(g.covered) == 1 && g.covered[0].lo <= lo && g.covered[0].hi >= hi {
			g.gap.FillState = model.FillFilled
			at := c.OpenTime
			g.gap.FilledAt = &at
		} else {
			g.gap.FillState = model.FillPartiallyFilled
		}
		if g.gap.FillState == prev {
			continue
		}
		kind := model.EventFVGPartiallyFilled
		if g.gap.FillState == model.FillFilled {
			kind = model.EventFVGFilled
		}
		events = append(events, d.event(kind, c, g.gap))
	}
	return events
}

func (d *Detector) trim() {
	filled := 0
	for _, g := range d.gaps {
		if g.gap.FillState == model.FillFilled {
			filled++
		}
	}
	if filled <= d.cfg.MaxRetained {
		return
	}
	drop := filled - d.cfg.MaxRetained
	kept := d.gaps[:0]
	for _, g := range d.gaps {
		if drop > 0 && g.gap.FillState == model.FillFilled {
			drop--
			continue
		}
		kept = append(kept, g)
	}
	d.gaps = kept
}

func (d *Detector) event(kind model.EventKind, c model.Candle, gap model.FairValueGap) model.Event {
	g := copyGap(gap)
	return model.Event{
		Symbol:    d.symbol,
		Timeframe: d.timeframe,
		Kind:      kind,
		At:        c.OpenTime,
		RefID:     gap.ID,
		FVG:       &g,
	}
}

// Gaps returns copies of every retained gap, oldest first.
func (d *Detector) Gaps() []model.FairValueGap {
	out := make([]model.FairValueGap, 0, len(d.gaps))
	for _, g := range d.gaps {
		out = append(out, copyGap(g.gap))
	}
	sortGaps(out)
	return out
}

// Unfilled returns copies of the open and partially filled gaps.
func (d *Detector) Unfilled() []model.FairValueGap {
	var out []model.FairValueGap
	for _, g := range d.gaps {
		if g.gap.FillState != model.FillFilled {
			out = append(out, copyGap(g.gap))
		}
	}
	sortGaps(out)
	return out
}

func copyGap(g model.FairValueGap) model.FairValueGap {
	if g.FilledAt != nil {
		at := *g.FilledAt
		g.FilledAt = &at
	}
	return g
}

func sortGaps(gs []model.FairValueGap) {
	sort.Slice(gs, func(i, j int) bool {
		if !gs[i].FormedAt.Equal(gs[j].FormedAt) {
			return gs[i].FormedAt.Before(gs[j].FormedAt)
		}
		return gs[i].ID < gs[j].ID
	})
}

func merge(spans []span) []span {
	sort.Slice(spans, func(i, j int) bool { return spans[i].lo < spans[j].lo })
	out := spans[:1]
	for _, s := range spans[1:] {
		last := &out[len(out)-1]
		if s.lo <= last.hi {
			if s.hi > last.hi {
				last.hi = s.hi
			}
			continue
		}
		out = append(out, s)
	}
	return out
}
