package liquidity

import (
	"time"

	"github.com/RonoHenry/AgentICTrader/internal/model"
)

// Session windows in UTC hours, [start, end).
var sessionWindows = []struct {
	start, end int
	session    model.Session
}{
	{0, 7, model.SessionAsian},
	{7, 12, model.SessionLondon},
	{12, 21, model.SessionNewYork},
}

// SessionOf tags t with its trading session. Daily and coarser bars span
// every session and are tagged none.
func SessionOf(t time.Time, tf model.Timeframe) model.Session {
	if tf.Rank() >= model.Daily.Rank() {
		return model.SessionNone
	}
	h := t.UTC().Hour()
	for _, w := range sessionWindows {
		if h >= w.start && h < w.end {
			return w.session
		}
	}
	return model.SessionOff
}
