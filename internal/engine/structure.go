package engine

import "github.com/RonoHenry/AgentICTrader/internal/model"

// Structure is the full retained state of one (symbol, timeframe), including
// filled gaps, swept pools and invalidated zones that SignalContext omits.
type Structure struct {
	Symbol        string                `json:"symbol"`
	Timeframe     model.Timeframe       `json:"timeframe"`
	Version       uint64                `json:"version"`
	Candles       int                   `json:"candles"`
	Retention     int                   `json:"retention"`
	JournalEvents int                   `json:"journal_events"`
	LastSeq       uint64                `json:"last_seq"`
	SwingHigh     *model.SwingPoint     `json:"swing_high,omitempty"`
	SwingLow      *model.SwingPoint     `json:"swing_low,omitempty"`
	Phase         model.PhaseState      `json:"phase"`
	Gaps          []model.FairValueGap  `json:"gaps"`
	Pools         []model.LiquidityPool `json:"pools"`
	Zones         []model.Zone          `json:"zones"`
}

// Structure returns the retained state of symbol on tf.
func (e *Engine) Structure(symbol string, tf model.Timeframe) (Structure, error) {
	u, err := e.unitOf(symbol, tf)
	if err != nil {
		return Structure{}, err
	}
	u.mu.RLock()
	defer u.mu.RUnlock()

	high, low := u.pools.Swings()
	return Structure{
		Symbol:        symbol,
		Timeframe:     tf,
		Version:       u.version.Load(),
		Candles:       u.series.Len(),
		Retention:     u.series.Cap(),
		JournalEvents: u.journal.Len(),
		LastSeq:       u.journal.LastSeq(),
		SwingHigh:     high,
		SwingLow:      low,
		Phase:         u.phase.State(),
		Gaps:          u.gaps.Gaps(),
		Pools:         u.pools.Pools(),
		Zones:         u.zones.Zones(),
	}, nil
}
