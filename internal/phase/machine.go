// Package phase runs the per-timeframe Accumulation, Manipulation, Expansion
// cycle. The only way to change phase is Advance, which moves at most one
// step forward per candle.
package phase

import (
	"fmt"
	"math"

	"github.com/RonoHenry/AgentICTrader/internal/calculator"
	"github.com/RonoHenry/AgentICTrader/internal/confluence"
	"github.com/RonoHenry/AgentICTrader/internal/liquidity"
	"github.com/RonoHenry/AgentICTrader/internal/model"
)

// Weights of the strength factors. Only the factors relevant to the current
// phase take part, and the score is normalised over them.
type Weights struct {
	Sweep       float64 `yaml:"sweep"`
	Break       float64 `yaml:"break"`
	Contraction float64 `yaml:"contraction"`
	Duration    float64 `yaml:"duration"`
}

// DefaultWeights favours the structural evidence over elapsed time.
var DefaultWeights = Weights{Sweep: 0.35, Break: 0.35, Contraction: 0.15, Duration: 0.15}

// Config tunes the state machine.
type Config struct {
	ContractionWindow   int     // recent candles averaged for contraction
	ContractionLookback int     // preceding candles they are compared against
	ContractionFactor   float64 // recent mean range <= factor * prior mean range
	MinExpansionBars    int     // bars in Expansion before contraction counts
	DurationBars        float64 // bars at which the duration factor saturates
	MaxHistory          int
	Weights             Weights
}

// Evidence is what one closed candle offers the machine.
type Evidence struct {
	Candle model.Candle
	Window []model.Candle // recent candles, oldest first, ending with Candle
	ATR    float64
	Sweeps []liquidity.Sweep
	Break  *model.StructureBreak
}

// Machine is the phase state of one (symbol, timeframe). Not safe for concurrent use.
type Machine struct {
	symbol    string
	timeframe model.Timeframe
	cfg       Config
	state     model.PhaseState
	history   []model.PhaseTransition

	sweepDir model.Direction
	sweepMag float64
	breakMag float64
}

// New starts a machine in Accumulation.
func New(symbol string, tf model.Timeframe, cfg Config) *Machine {
	if cfg.ContractionWindow <= 0 {
		cfg.ContractionWindow = 5
	}
	if cfg.ContractionLookback <= 0 {
		cfg.ContractionLookback = 20
	}
	if cfg.ContractionFactor <= 0 {
		cfg.ContractionFactor = 0.6
	}
	if cfg.MinExpansionBars <= 0 {
		cfg.MinExpansionBars = 3
	}
	if cfg.DurationBars <= 0 {
		cfg.DurationBars = 20
	}
	if cfg.MaxHistory <= 0 {
		cfg.MaxHistory = 500
	}
	if cfg.Weights == (Weights{}) {
		cfg.Weights = DefaultWeights
	}
	return &Machine{
		symbol:    symbol,
		timeframe: tf,
		cfg:       cfg,
		state:     model.PhaseState{Kind: model.Accumulation},
	}
}

// Advance feeds one candle's evidence. It returns the transition taken, if
// any. Evidence for a non-adjacent phase is ignored.
func (m *Machine) Advance(ev Evidence) *model.PhaseTransition {
	if m.state.EnteredAt.IsZero() {
		m.state.EnteredAt = ev.Candle.OpenTime
	} else {
		m.state.Bars++
	}

	var tr *model.PhaseTransition
	switch m.state.Kind {
	case model.Accumulation:
		tr = m.fromAccumulation(ev)
	case model.Manipulation:
		tr = m.fromManipulation(ev)
	case model.Expansion:
		tr = m.fromExpansion(ev)
	}

	m.score(ev)
	if tr != nil {
		tr.Strength = m.state.Strength
		m.history = append(m.history, *tr)
		if len(m.history) > m.cfg.MaxHistory {
			m.history = m.history[len(m.history)-m.cfg.MaxHistory:]
		}
	}
	return tr
}

func (m *Machine) fromAccumulation(ev Evidence) *model.PhaseTransition {
	if len(ev.Sweeps) == 0 {
		return nil
	}
	best, mag := strongestSweep(ev.Sweeps, ev.ATR)
	dir := best.Pool.SweepDirection()
	// A close beyond structure in the sweep's direction is a breakout, not a
	// stop hunt.
	if ev.Break != nil && ev.Break.Direction == dir {
		return nil
	}
	m.sweepDir, m.sweepMag, m.breakMag = dir, mag, 0
	return m.enter(model.Manipulation, dir, ev.Candle, []string{best.Pool.ID}, "")
}

func (m *Machine) fromManipulation(ev Evidence) *model.PhaseTransition {
	if ev.Break == nil || ev.Break.Direction != m.sweepDir.Opposite() {
		return nil
	}
	m.breakMag = magnitude(math.Abs(ev.Break.Close-ev.Break.Level), ev.ATR)
	return m.enter(model.Expansion, ev.Break.Direction, ev.Candle, []string{ev.Break.SwingID}, "")
}

func (m *Machine) fromExpansion(ev Evidence) *model.PhaseTransition {
	if m.state.Bars < m.cfg.MinExpansionBars {
		return nil
	}
	depth, ok := m.contraction(ev.Window)
	if !ok {
		return nil
	}
	m.sweepDir, m.sweepMag, m.breakMag = model.DirectionNone, 0, 0
	return m.enter(model.Accumulation, model.DirectionNone, ev.Candle, nil, fmt.Sprintf("range contracted by %.0f%%", depth*100))
}

func (m *Machine) enter(to model.PhaseKind, dir model.Direction, c model.Candle, evidence []string, note string) *model.PhaseTransition {
	if to != m.state.Kind.Next() {
		return nil
	}
	tr := &model.PhaseTransition{
		From:      m.state.Kind,
		To:        to,
		At:        c.OpenTime,
		Direction: dir,
		Evidence:  evidence,
		Note:      note,
	}
	m.state = model.PhaseState{
		Kind:      to,
		Direction: dir,
		EnteredAt: c.OpenTime,
		Evidence:  append([]string(nil), evidence...),
	}
	return tr
}

// contraction reports the depth (1 - recent/prior) when the recent mean range
// has shrunk to at most ContractionFactor of the preceding one.
func (m *Machine) contraction(window []model.Candle) (float64, bool) {
	w, l := m.cfg.ContractionWindow, m.cfg.ContractionLookback
	if len(window) < w+l {
		return 0, false
	}
	recent := calculator.MeanRange(window[len(window)-w:])
	prior := calculator.MeanRange(window[len(window)-w-l : len(window)-w])
	if prior <= 0 || recent > m.cfg.ContractionFactor*prior {
		return 0, false
	}
	return 1 - recent/prior, true
}

func (m *Machine) score(ev Evidence) {
	w := m.cfg.Weights
	duration := confluence.Factor("duration", float64(m.state.Bars)/m.cfg.DurationBars, w.Duration,
		fmt.Sprintf("%d bars", m.state.Bars))

	var factors []model.FactorScore
	switch m.state.Kind {
	case model.Accumulation:
		depth, _ := m.contraction(ev.Window)
		factors = append(factors, confluence.Factor("contraction", depth, w.Contraction, ""))
	case model.Manipulation:
		factors = append(factors, confluence.Factor("sweep", m.sweepMag, w.Sweep, ""))
	case model.Expansion:
		factors = append(factors,
			confluence.Factor("sweep", m.sweepMag, w.Sweep, ""),
			confluence.Factor("break", m.breakMag, w.Break, ""))
	}
	factors = append(factors, duration)
	m.state.Factors = factors
	m.state.Strength = confluence.Score(factors)
}

// State returns a copy of the active phase.
func (m *Machine) State() model.PhaseState {
	s := m.state
	s.Factors = append([]model.FactorScore(nil), s.Factors...)
	s.Evidence = append([]string(nil), s.Evidence...)
	return s
}

// History returns a copy of the transition log, oldest first.
func (m *Machine) History() []model.PhaseTransition {
	out := make([]model.PhaseTransition, len(m.history))
	copy(out, m.history)
	return out
}

// strongestSweep picks the sweep with the largest ATR-relative penetration;
// ties go to the lowest pool ID so replays choose the same pool.
func strongestSweep(sweeps []liquidity.Sweep, atr float64) (liquidity.Sweep, float64) {
	best := sweeps[0]
	bestMag := magnitude(best.Penetration, atr)
	for _, s := range sweeps[1:] {
		mag := magnitude(s.Penetration, atr)
		if mag > bestMag || (mag == bestMag && s.Pool.ID < best.Pool.ID) {
			best, bestMag = s, mag
		}
	}
	return best, bestMag
}

func magnitude(distance, atr float64) float64 {
	if atr <= 0 {
		return 0
	}
	return confluence.Clamp01(distance / atr)
}
