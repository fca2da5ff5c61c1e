package engine

import (
	"errors"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"

	"github.com/RonoHenry/AgentICTrader/internal/calculator"
	"github.com/RonoHenry/AgentICTrader/internal/candlestore"
	"github.com/RonoHenry/AgentICTrader/internal/correlator"
	"github.com/RonoHenry/AgentICTrader/internal/fvg"
	"github.com/RonoHenry/AgentICTrader/internal/journal"
	"github.com/RonoHenry/AgentICTrader/internal/liquidity"
	"github.com/RonoHenry/AgentICTrader/internal/model"
	"github.com/RonoHenry/AgentICTrader/internal/pdarray"
	"github.com/RonoHenry/AgentICTrader/internal/phase"
)

// unit owns all state of one (symbol, timeframe). mu serialises updates and
// guards every field; version advances once per applied change.
type unit struct {
	mu      sync.RWMutex
	version atomic.Uint64

	symbol    string
	timeframe model.Timeframe
	lookback  int
	atrPeriod int
	bodyVol   float64

	series  *candlestore.Series
	gaps    *fvg.Detector
	pools   *liquidity.Tracker
	phase   *phase.Machine
	zones   *pdarray.Calculator
	journal *journal.Journal
}

func newUnit(symbol string, tf model.Timeframe, cfg Config) *unit {
	return &unit{
		symbol:    symbol,
		timeframe: tf,
		lookback:  cfg.lookback(tf),
		atrPeriod: cfg.ATRPeriod,
		series:    candlestore.NewSeries(symbol, tf, cfg.retention(tf)),
		gaps:      fvg.NewDetector(symbol, tf, cfg.FVG),
		pools:     liquidity.NewTracker(symbol, tf, cfg.liquidity(tf)),
		phase:     phase.New(symbol, tf, cfg.Phase),
		zones:     pdarray.NewCalculator(symbol, tf, cfg.Zones),
		journal:   journal.New(cfg.JournalCapacity),
	}
}

// apply runs one candle through the detectors as a single unit of work.
// The caller holds mu for writing and has already appended c to the series.
func (u *unit) apply(c model.Candle, logger zerolog.Logger) []model.Event {
	window := u.series.Last(u.lookback)
	atr, err := calculator.ATR(window, u.atrPeriod)
	if err != nil {
		logger.Debug().Err(err).Msg("atr unavailable")
	}
	u.bodyVol = calculator.BodyVolatility(window)

	var events []model.Event

	liq, err := u.pools.Update(window)
	if err != nil && !errors.Is(err, model.ErrInsufficientHistory) {
		logger.Warn().Err(err).Msg("liquidity update failed")
	}

	gapEvents, err := u.gaps.Update(window)
	if err != nil && !errors.Is(err, model.ErrInsufficientHistory) {
		logger.Warn().Err(err).Msg("fvg update failed")
	}
	events = append(events, gapEvents...)
	events = append(events, liq.Events...)

	tr := u.phase.Advance(phase.Evidence{
		Candle: c,
		Window: window,
		ATR:    atr,
		Sweeps: liq.Sweeps,
		Break:  liq.Break,
	})
	if tr != nil {
		t := *tr
		events = append(events, model.Event{
			Symbol:     u.symbol,
			Timeframe:  u.timeframe,
			Kind:       model.EventPhaseTransition,
			At:         tr.At,
			Transition: &t,
		})
		logger.Info().
			Str("from", string(tr.From)).
			Str("to", string(tr.To)).
			Str("direction", string(tr.Direction)).
			Float64("strength", tr.Strength).
			Time("at", tr.At).
			Msg("phase transition")
	}

	high, low := u.pools.Swings()
	events = append(events, u.zones.Update(pdarray.Input{
		Candle: c,
		ATR:    atr,
		High:   high,
		Low:    low,
		FVGs:   u.gaps.Unfilled(),
		Pools:  u.pools.Unswept(),
	})...)

	return events
}

// capture copies the unit's current state. The caller holds mu for reading.
func (u *unit) capture() correlator.Snapshot {
	s := correlator.Snapshot{
		Timeframe:  u.timeframe,
		Version:    u.version.Load(),
		Phase:      u.phase.State(),
		Zones:      u.zones.Active(),
		FVGs:       u.gaps.Unfilled(),
		Pools:      u.pools.Unswept(),
		Volatility: u.bodyVol,
	}
	if c, ok := u.series.Latest(); ok {
		s.LastCandle = &c
	}
	s.RangeHigh, s.RangeLow, s.HasRange = u.zones.Range()
	return s
}

func (u *unit) snapshot() correlator.Snapshot {
	u.mu.RLock()
	defer u.mu.RUnlock()
	return u.capture()
}
