// Package engine runs the per-(symbol, timeframe) analysis units and
// produces consistent cross-timeframe SignalContexts.
package engine

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/RonoHenry/AgentICTrader/internal/candlestore"
	"github.com/RonoHenry/AgentICTrader/internal/correlator"
	"github.com/RonoHenry/AgentICTrader/internal/journal"
	"github.com/RonoHenry/AgentICTrader/internal/model"
)

var (
	ErrUnknownSymbol    = errors.New("unknown symbol")
	ErrUnknownTimeframe = errors.New("unknown timeframe")
)

// EventSink receives journal events after each unit of work. Accept must not
// block; slow consumers buffer or drop on their side.
type EventSink interface {
	Accept(events []model.Event)
}

// Option configures an Engine.
type Option func(*Engine)

// WithEventSink forwards every journal event to sink.
func WithEventSink(sink EventSink) Option {
	return func(e *Engine) { e.sink = sink }
}

// Result describes what Ingest did with a candle.
type Result struct {
	Applied bool                 // false when the candle was an identical replay
	Events  []model.Event        // journal events produced, including top-down invalidations
	Context *model.SignalContext // context after the update, nil when not applied
}

type symbolState struct {
	mu    sync.RWMutex
	units map[model.Timeframe]*unit
}

// ordered returns the symbol's units coarsest first.
func (s *symbolState) ordered() []*unit {
	s.mu.RLock()
	out := make([]*unit, 0, len(s.units))
	for _, u := range s.units {
		out = append(out, u)
	}
	s.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].timeframe.Rank() > out[j].timeframe.Rank() })
	return out
}

// Engine is safe for concurrent use. Candles for different timeframes may
// be ingested in parallel; candles of one timeframe are applied in order.
type Engine struct {
	cfg    Config
	logger zerolog.Logger
	sink   EventSink

	mu      sync.RWMutex
	symbols map[string]*symbolState

	subsMu  sync.Mutex
	subs    map[string]map[int]chan model.SignalContext
	nextSub int
}

// New creates an engine.
func New(cfg Config, logger zerolog.Logger, opts ...Option) *Engine {
	if cfg.SnapshotRetries <= 0 {
		cfg.SnapshotRetries = 4
	}
	if cfg.ATRPeriod <= 0 {
		cfg.ATRPeriod = 14
	}
	e := &Engine{
		cfg:     cfg,
		logger:  logger.With().Str("component", "engine").Logger(),
		symbols: make(map[string]*symbolState),
		subs:    make(map[string]map[int]chan model.SignalContext),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Ingest validates and applies one closed candle, then re-derives the
// symbol's SignalContext. Rejected candles leave every unit untouched.
func (e *Engine) Ingest(c model.Candle) (Result, error) {
	if err := candlestore.Validate(c); err != nil {
		e.logger.Warn().Err(err).Str("symbol", c.Symbol).Msg("rejected candle")
		return Result{}, err
	}
	c.OpenTime = c.OpenTime.UTC()
	st := e.symbolFor(c.Symbol)
	u := e.unitFor(st, c.Symbol, c.Timeframe)
	logger := e.logger.With().Str("symbol", c.Symbol).Str("timeframe", string(c.Timeframe)).Logger()

	u.mu.Lock()
	applied, err := u.series.Append(c)
	if err != nil || !applied {
		u.mu.Unlock()
		if err != nil {
			logger.Warn().Err(err).Msg("rejected candle")
		}
		return Result{}, err
	}
	events := u.journal.Append(u.apply(c, logger)...)
	u.version.Add(1)
	u.mu.Unlock()

	e.emit(events)

	ctx, inv := e.correlate(c.Symbol, st)
	if len(inv) > 0 {
		overrides := e.applyInvalidations(st, inv)
		e.emit(overrides)
		events = append(events, overrides...)
	}
	e.publish(ctx)
	return Result{Applied: true, Events: events, Context: &ctx}, nil
}

// Snapshot returns the current SignalContext for symbol without changing any state.
func (e *Engine) Snapshot(symbol string) (model.SignalContext, error) {
	st, ok := e.lookup(symbol)
	if !ok {
		return model.SignalContext{}, fmt.Errorf("%w: %s", ErrUnknownSymbol, symbol)
	}
	ctx, _ := e.correlate(symbol, st)
	return ctx, nil
}

// Symbols lists every symbol seen so far, sorted.
func (e *Engine) Symbols() []string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]string, 0, len(e.symbols))
	for s := range e.symbols {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

// Candles returns up to limit of the newest stored candles, oldest first.
func (e *Engine) Candles(symbol string, tf model.Timeframe, limit int) ([]model.Candle, error) {
	u, err := e.unitOf(symbol, tf)
	if err != nil {
		return nil, err
	}
	u.mu.RLock()
	defer u.mu.RUnlock()
	return u.series.Last(limit), nil
}

// History queries the lifecycle journal. An empty tf merges every timeframe
// of the symbol ordered by time, coarser timeframes first on ties.
func (e *Engine) History(symbol string, tf model.Timeframe, q journal.Query) ([]model.Event, error) {
	if tf != "" {
		u, err := e.unitOf(symbol, tf)
		if err != nil {
			return nil, err
		}
		u.mu.RLock()
		defer u.mu.RUnlock()
		return u.journal.Query(q), nil
	}

	st, ok := e.lookup(symbol)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownSymbol, symbol)
	}
	limit := q.Limit
	q.Limit = 0
	var out []model.Event
	for _, u := range st.ordered() {
		u.mu.RLock()
		out = append(out, u.journal.Query(q)...)
		u.mu.RUnlock()
	}
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].At.Equal(out[j].At) {
			return out[i].At.Before(out[j].At)
		}
		return out[i].Timeframe.Rank() > out[j].Timeframe.Rank()
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// Phases returns the phase transition history of one timeframe in [from, to).
func (e *Engine) Phases(symbol string, tf model.Timeframe, from, to time.Time) ([]model.PhaseTransition, error) {
	events, err := e.History(symbol, tf, journal.Query{From: from, To: to, Kinds: []model.EventKind{model.EventPhaseTransition}})
	if err != nil {
		return nil, err
	}
	return journal.Transitions(events), nil
}

func (e *Engine) correlate(symbol string, st *symbolState) (model.SignalContext, []model.ZoneInvalidation) {
	return correlator.Correlate(symbol, e.capture(st))
}

// capture takes a consistent view of every unit of the symbol: versions are
// read before and after copying and the copy is retried if any moved. After
// SnapshotRetries attempts it read-locks all units in rank order instead.
func (e *Engine) capture(st *symbolState) []correlator.Snapshot {
	units := st.ordered()
	for attempt := 0; attempt < e.cfg.SnapshotRetries; attempt++ {
		before := versions(units)
		snaps := make([]correlator.Snapshot, len(units))
		for i, u := range units {
			snaps[i] = u.snapshot()
		}
		if consistent(before, snaps, versions(units)) {
			return snaps
		}
	}

	e.logger.Debug().Int("units", len(units)).Msg("snapshot contended, locking all units")
	for _, u := range units {
		u.mu.RLock()
	}
	snaps := make([]correlator.Snapshot, len(units))
	for i, u := range units {
		snaps[i] = u.capture()
	}
	for i := len(units) - 1; i >= 0; i-- {
		units[i].mu.RUnlock()
	}
	return snaps
}

func versions(units []*unit) []uint64 {
	out := make([]uint64, len(units))
	for i, u := range units {
		out[i] = u.version.Load()
	}
	return out
}

func consistent(before []uint64, snaps []correlator.Snapshot, after []uint64) bool {
	for i := range snaps {
		if before[i] != snaps[i].Version || after[i] != snaps[i].Version {
			return false
		}
	}
	return true
}

// applyInvalidations writes the correlator's top-down overrides back into
// the owning units.
func (e *Engine) applyInvalidations(st *symbolState, inv []model.ZoneInvalidation) []model.Event {
	st.mu.RLock()
	units := st.units
	byTF := make(map[model.Timeframe]*unit, len(units))
	for tf, u := range units {
		byTF[tf] = u
	}
	st.mu.RUnlock()

	var out []model.Event
	for _, zi := range inv {
		u, ok := byTF[zi.Timeframe]
		if !ok {
			continue
		}
		u.mu.Lock()
		if ev, ok := u.zones.Invalidate(zi.ZoneID, zi.Reason, zi.At); ok {
			out = append(out, u.journal.Append(ev)...)
			u.version.Add(1)
		}
		u.mu.Unlock()
	}
	return out
}

func (e *Engine) emit(events []model.Event) {
	if e.sink != nil && len(events) > 0 {
		e.sink.Accept(events)
	}
}

func (e *Engine) lookup(symbol string) (*symbolState, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	st, ok := e.symbols[symbol]
	return st, ok
}

func (e *Engine) symbolFor(symbol string) *symbolState {
	if st, ok := e.lookup(symbol); ok {
		return st
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if st, ok := e.symbols[symbol]; ok {
		return st
	}
	st := &symbolState{units: make(map[model.Timeframe]*unit)}
	e.symbols[symbol] = st
	e.logger.Info().Str("symbol", symbol).Msg("tracking new symbol")
	return st
}

func (e *Engine) unitFor(st *symbolState, symbol string, tf model.Timeframe) *unit {
	st.mu.RLock()
	u, ok := st.units[tf]
	st.mu.RUnlock()
	if ok {
		return u
	}
	st.mu.Lock()
	defer st.mu.Unlock()
	if u, ok := st.units[tf]; ok {
		return u
	}
	u = newUnit(symbol, tf, e.cfg)
	st.units[tf] = u
	return u
}

func (e *Engine) unitOf(symbol string, tf model.Timeframe) (*unit, error) {
	st, ok := e.lookup(symbol)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownSymbol, symbol)
	}
	st.mu.RLock()
	u, ok := st.units[tf]
	st.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s %s", ErrUnknownTimeframe, symbol, tf)
	}
	return u, nil
}
