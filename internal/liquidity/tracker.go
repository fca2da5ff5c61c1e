// Package liquidity tracks swing structure and the liquidity pools resting
// beyond swing highs and lows.
package liquidity

import (
	"math"
	"sort"
	"time"

	"github.com/RonoHenry/AgentICTrader/internal/confluence"
	"github.com/RonoHenry/AgentICTrader/internal/model"
)

// Config tunes the tracker for one timeframe.
type Config struct {
	SwingStrength    int     // K candles on each side of a pivot
	ClusterTolerance float64 // fraction of price within which swings merge into one pool
	RetentionBars    int     // unswept pools older than this are purged
	HalfLifeBars     float64 // relevance halves every HalfLifeBars
	MaxSwept         int     // swept pools retained for history
}

// Sweep is a pool taken by the current candle.
type Sweep struct {
	Pool        model.LiquidityPool
	Penetration float64 // distance traded beyond the pool price
}

// Result is what one candle changed.
type Result struct {
	Events []model.Event
	Sweeps []Sweep
	Break  *model.StructureBreak
}

// Tracker owns the pools and structure of one (symbol, timeframe).
// Not safe for concurrent use.
type Tracker struct {
	symbol    string
	timeframe model.Timeframe
	cfg       Config
	pools     []*model.LiquidityPool
	structure structure
}

// NewTracker creates a tracker for one stream.
func NewTracker(symbol string, tf model.Timeframe, cfg Config) *Tracker {
	if cfg.SwingStrength <= 0 {
		cfg.SwingStrength = 2
	}
	if cfg.RetentionBars <= 0 {
		cfg.RetentionBars = 500
	}
	if cfg.HalfLifeBars <= 0 {
		cfg.HalfLifeBars = 100
	}
	if cfg.MaxSwept <= 0 {
		cfg.MaxSwept = 100
	}
	return &Tracker{symbol: symbol, timeframe: tf, cfg: cfg}
}

// Update processes the newest candle of window. The structure break is
// judged against swings known before this candle; sweeps are checked before
// new pools are added, so a pool is never swept by the candle that confirms it.
func (t *Tracker) Update(window []model.Candle) (Result, error) {
	var res Result
	need := 2*t.cfg.SwingStrength + 1
	if len(window) == 0 {
		return res, &model.InsufficientHistoryError{What: "liquidity", Have: 0, Need: need}
	}
	cur := window[len(window)-1]

	if brk := t.structure.check(cur); brk != nil {
		res.Break = brk
		b := *brk
		res.Events = append(res.Events, t.event(model.EventStructureBreak, cur.OpenTime, brk.SwingID, func(e *model.Event) { e.Break = &b }))
	}

	t.sweep(cur, &res)

	high, low := ConfirmSwings(t.symbol, t.timeframe, window, t.cfg.SwingStrength)
	for _, sp := range []*model.SwingPoint{high, low} {
		if sp == nil {
			continue
		}
		s := *sp
		res.Events = append(res.Events, t.event(model.EventSwingConfirmed, cur.OpenTime, s.ID, func(e *model.Event) { e.Swing = &s }))
		t.structure.observe(sp)
		t.addSwing(s, cur, &res)
	}

	t.purge(cur, &res)
	t.refreshRelevance(cur)

	if len(window) < need {
		return res, &model.InsufficientHistoryError{What: "liquidity", Have: len(window), Need: need}
	}
	return res, nil
}

func (t *Tracker) sweep(cur model.Candle, res *Result) {
	for _, p := range t.pools {
		if p.Swept {
			continue
		}
		var pen float64
		switch {
		case p.Kind == model.BuySide && cur.High > p.Price:
			pen = cur.High - p.Price
		case p.Kind == model.SellSide && cur.Low < p.Price:
			pen = p.Price - cur.Low
		default:
			continue
		}
		at := cur.OpenTime
		p.Swept = true
		p.SweptAt = &at
		snap := copyPool(*p)
		res.Sweeps = append(res.Sweeps, Sweep{Pool: snap, Penetration: pen})
		res.Events = append(res.Events, t.event(model.EventPoolSwept, at, p.ID, func(e *model.Event) { e.Pool = &snap }))
	}
}

func (t *Tracker) addSwing(s model.SwingPoint, cur model.Candle, res *Result) {
	kind := model.SellSide
	if s.Kind == model.SwingHigh {
		kind = model.BuySide
	}

	for _, p := range t.pools {
		if p.Swept || p.Kind != kind {
			continue
		}
		if math.Abs(s.Price-p.Price) <= t.cfg.ClusterTolerance*math.Abs(p.Price) {
			p.Touches++
			p.LastTouchAt = s.Time
			p.SwingRefs = append(p.SwingRefs, s.ID)
			snap := copyPool(*p)
			res.Events = append(res.Events, t.event(model.EventPoolTouched, cur.OpenTime, p.ID, func(e *model.Event) { e.Pool = &snap }))
			return
		}
	}

	p := &model.LiquidityPool{
		ID:          model.NewID("pool", t.symbol, string(t.timeframe), string(kind), model.FormatTime(s.Time), model.FormatPrice(s.Price)),
		Symbol:      t.symbol,
		Timeframe:   t.timeframe,
		Kind:        kind,
		Price:       s.Price,
		Session:     SessionOf(s.Time, t.timeframe),
		FormedAt:    s.Time,
		Touches:     1,
		LastTouchAt: s.Time,
		Relevance:   1,
		SwingRefs:   []string{s.ID},
	}
	t.pools = append(t.pools, p)
	snap := copyPool(*p)
	res.Events = append(res.Events, t.event(model.EventPoolCreated, cur.OpenTime, p.ID, func(e *model.Event) { e.Pool = &snap }))
}

func (t *Tracker) purge(cur model.Candle, res *Result) {
	swept := 0
	for _, p := range t.pools {
		if p.Swept {
			swept++
		}
	}
	kept := t.pools[:0]
	for _, p := range t.pools {
		age := t.timeframe.Bars(cur.OpenTime.Sub(p.FormedAt))
		switch {
		case !p.Swept && age > float64(t.cfg.RetentionBars):
			snap := copyPool(*p)
			res.Events = append(res.Events, t.event(model.EventPoolPurged, cur.OpenTime, p.ID, func(e *model.Event) { e.Pool = &snap }))
			continue
		case p.Swept && swept > t.cfg.MaxSwept:
			swept--
			continue
		}
		kept = append(kept, p)
	}
	t.pools = kept
}

func (t *Tracker) refreshRelevance(cur model.Candle) {
	for _, p := range t.pools {
		if p.Swept {
			p.Relevance = 0
			continue
		}
		p.Relevance = confluence.Decay(t.timeframe.Bars(cur.OpenTime.Sub(p.FormedAt)), t.cfg.HalfLifeBars)
	}
}

func (t *Tracker) event(kind model.EventKind, at time.Time, ref string, fill func(*model.Event)) model.Event {
	e := model.Event{Symbol: t.symbol, Timeframe: t.timeframe, Kind: kind, At: at, RefID: ref}
	fill(&e)
	return e
}

// Pools returns copies of every retained pool, oldest first.
func (t *Tracker) Pools() []model.LiquidityPool {
	return t.collect(func(*model.LiquidityPool) bool { return true })
}

// Unswept returns copies of the pools still resting.
func (t *Tracker) Unswept() []model.LiquidityPool {
	return t.collect(func(p *model.LiquidityPool) bool { return !p.Swept })
}

// Swings returns the last confirmed swing high and low, if any.
func (t *Tracker) Swings() (high, low *model.SwingPoint) {
	if t.structure.high != nil {
		h := *t.structure.high
		high = &h
	}
	if t.structure.low != nil {
		l := *t.structure.low
		low = &l
	}
	return high, low
}

func (t *Tracker) collect(keep func(*model.LiquidityPool) bool) []model.LiquidityPool {
	var out []model.LiquidityPool
	for _, p := range t.pools {
		if keep(p) {
			out = append(out, copyPool(*p))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].FormedAt.Equal(out[j].FormedAt) {
			return out[i].FormedAt.Before(out[j].FormedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

func copyPool(p model.LiquidityPool) model.LiquidityPool {
	if p.SweptAt != nil {
		at := *p.SweptAt
		p.SweptAt = &at
	}
	p.SwingRefs = append([]string(nil), p.SwingRefs...)
	return p
}
