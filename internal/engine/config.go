package engine

import (
	"github.com/RonoHenry/AgentICTrader/internal/candlestore"
	"github.com/RonoHenry/AgentICTrader/internal/fvg"
	"github.com/RonoHenry/AgentICTrader/internal/journal"
	"github.com/RonoHenry/AgentICTrader/internal/liquidity"
	"github.com/RonoHenry/AgentICTrader/internal/model"
	"github.com/RonoHenry/AgentICTrader/internal/pdarray"
	"github.com/RonoHenry/AgentICTrader/internal/phase"
)

// Config holds the analysis parameters shared by every unit. Per-timeframe
// maps override the shared value for that timeframe.
type Config struct {
	Retention       map[model.Timeframe]int
	SwingStrength   map[model.Timeframe]int
	ATRPeriod       int
	JournalCapacity int
	SnapshotRetries int

	FVG       fvg.Config
	Liquidity liquidity.Config
	Phase     phase.Config
	Zones     pdarray.Config
}

// DefaultConfig returns the documented defaults.
func DefaultConfig() Config {
	retention := make(map[model.Timeframe]int, len(candlestore.DefaultRetention))
	for tf, n := range candlestore.DefaultRetention {
		retention[tf] = n
	}
	return Config{
		Retention: retention,
		SwingStrength: map[model.Timeframe]int{
			model.Monthly: 1,
			model.Weekly:  2,
			model.Daily:   2,
			model.H4:      2,
			model.H1:      3,
			model.M15:     3,
			model.M5:      3,
			model.M1:      3,
		},
		ATRPeriod:       14,
		JournalCapacity: journal.DefaultCapacity,
		SnapshotRetries: 4,
		FVG:             fvg.Config{MaxRetained: 200},
		Liquidity: liquidity.Config{
			SwingStrength:    2,
			ClusterTolerance: 0.0005,
			RetentionBars:    500,
			HalfLifeBars:     100,
			MaxSwept:         100,
		},
		Phase: phase.Config{
			ContractionWindow:   5,
			ContractionLookback: 20,
			ContractionFactor:   0.6,
			MinExpansionBars:    3,
			DurationBars:        20,
			MaxHistory:          500,
			Weights:             phase.DefaultWeights,
		},
		Zones: pdarray.Config{
			MinRangeATR:    0.5,
			HalfLifeBars:   50,
			FVGSaturation:  3,
			PoolSaturation: 3,
			MaxRetained:    100,
			Weights:        pdarray.DefaultWeights,
		},
	}
}

func (c Config) retention(tf model.Timeframe) int {
	if n, ok := c.Retention[tf]; ok && n > 0 {
		return n
	}
	return candlestore.DefaultRetention[tf]
}

func (c Config) liquidity(tf model.Timeframe) liquidity.Config {
	lc := c.Liquidity
	if k, ok := c.SwingStrength[tf]; ok && k > 0 {
		lc.SwingStrength = k
	}
	return lc
}

// lookback is how many candles each update needs to see.
func (c Config) lookback(tf model.Timeframe) int {
	n := fvg.MinCandles
	if k := 2*c.liquidity(tf).SwingStrength + 1; k > n {
		n = k
	}
	if p := c.ATRPeriod + 1; p > n {
		n = p
	}
	if w := c.Phase.ContractionWindow + c.Phase.ContractionLookback; w > n {
		n = w
	}
	return n
}
