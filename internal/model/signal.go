package model

import "time"

// FactorScore is one weighted input of a confluence score.
type FactorScore struct {
	Name       string  `json:"name"`
	RawScore   float64 `json:"raw"`
	Weight     float64 `json:"weight"`
	Weighted   float64 `json:"weighted"`
	Commentary string  `json:"commentary,omitempty"`
}

// TimeframeContext is the per-timeframe part of a SignalContext.
type TimeframeContext struct {
	Timeframe      Timeframe       `json:"timeframe"`
	Version        uint64          `json:"version"`
	LastCandleAt   time.Time       `json:"last_candle_at"`
	LastClose      float64         `json:"last_close"`
	Phase          PhaseKind       `json:"phase"`
	PhaseDirection Direction       `json:"phase_direction,omitempty"`
	PhaseStrength  float64         `json:"phase_strength"`
	PhaseEntered   time.Time       `json:"phase_entered_at"`
	RangeHigh      float64         `json:"range_high,omitempty"`
	RangeLow       float64         `json:"range_low,omitempty"`
	RangePosition  *float64        `json:"range_position,omitempty"`
	ActiveZones    []Zone          `json:"active_zones"`
	OpenFVGs       []FairValueGap  `json:"open_fvgs"`
	UnsweptPools   []LiquidityPool `json:"unswept_pools"`
}

// ZoneInvalidation is a top-down override decided by the correlator.
type ZoneInvalidation struct {
	ZoneID    string    `json:"zone_id"`
	Timeframe Timeframe `json:"timeframe"`
	Kind      ZoneKind  `json:"kind"`
	Reason    string    `json:"reason"`
	By        Timeframe `json:"by"`
	At        time.Time `json:"at"`
}

// SignalContext is the engine's only output: a point-in-time, cross-timeframe
// view for one symbol. Timeframes are ordered coarsest first.
//
// Correlation in [0,1] measures how closely same-kind zones line up across
// timeframes, 0 when no pair exists. The dominant timeframe is the one with
// the highest candle-body volatility per square root of bar length, and its
// strength is that timeframe's share of the total.
type SignalContext struct {
	Symbol            string             `json:"symbol"`
	AsOf              time.Time          `json:"as_of"`
	BiasTimeframe     Timeframe          `json:"bias_timeframe,omitempty"`
	BiasDirection     Direction          `json:"bias_direction,omitempty"`
	Correlation       float64            `json:"correlation"`
	DominantTimeframe Timeframe          `json:"dominant_timeframe,omitempty"`
	DominantStrength  float64            `json:"dominant_strength,omitempty"`
	Timeframes        []TimeframeContext `json:"timeframes"`
	Invalidated       []ZoneInvalidation `json:"invalidated,omitempty"`
}

// Timeframe returns the context for tf, if present.
func (s *SignalContext) Timeframe(tf Timeframe) (TimeframeContext, bool) {
	for _, c := range s.Timeframes {
		if c.Timeframe == tf {
			return c, true
		}
	}
	return TimeframeContext{}, false
}
