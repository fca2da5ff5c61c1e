// Package recorder persists journal events and context snapshots so that
// history survives restarts and can be queried beyond the in-memory journal.
package recorder

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/RonoHenry/AgentICTrader/internal/journal"
	"github.com/RonoHenry/AgentICTrader/internal/model"
)

// Recorder persists historical data for analysis.
type Recorder interface {
	RecordEvents(ctx context.Context, events []model.Event) error
	RecordContext(ctx context.Context, sc model.SignalContext) error
	// LatestContext returns the newest stored context of symbol, if any.
	LatestContext(ctx context.Context, symbol string) (model.SignalContext, bool, error)
	// QueryEvents returns stored events ordered by time. An empty tf
	// matches every timeframe of the symbol.
	QueryEvents(ctx context.Context, symbol string, tf model.Timeframe, q journal.Query) ([]model.Event, error)
	Close() error
}

// eventQuery builds the shared SELECT for both SQL dialects. ph renders the
// n-th (1-based) bind placeholder.
func eventQuery(symbol string, tf model.Timeframe, q journal.Query, ph func(int) string) (string, []any) {
	var (
		where []string
		args  []any
	)
	add := func(cond string, v any) {
		args = append(args, v)
		where = append(where, fmt.Sprintf(cond, ph(len(args))))
	}

	add("symbol = %s", symbol)
	if tf != "" {
		add("timeframe = %s", string(tf))
	}
	if !q.From.IsZero() {
		add("at_ns >= %s", q.From.UnixNano())
	}
	if !q.To.IsZero() {
		add("at_ns < %s", q.To.UnixNano())
	}
	if len(q.Kinds) > 0 {
		marks := make([]string, len(q.Kinds))
		for i, k := range q.Kinds {
			args = append(args, string(k))
			marks[i] = ph(len(args))
		}
		where = append(where, "kind IN ("+strings.Join(marks, ",")+")")
	}

	stmt := "SELECT payload FROM events WHERE " + strings.Join(where, " AND ") + " ORDER BY at_ns, id"
	if q.Limit > 0 {
		stmt += fmt.Sprintf(" LIMIT %d", q.Limit)
	}
	return stmt, args
}

func decodeEvent(payload []byte) (model.Event, error) {
	var ev model.Event
	if err := json.Unmarshal(payload, &ev); err != nil {
		return model.Event{}, fmt.Errorf("decode event: %w", err)
	}
	return ev, nil
}
