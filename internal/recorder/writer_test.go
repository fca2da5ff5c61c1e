package recorder

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/RonoHenry/AgentICTrader/internal/engine"
	"github.com/RonoHenry/AgentICTrader/internal/journal"
	"github.com/RonoHenry/AgentICTrader/internal/model"
)

func randomWalk(n int) []model.Candle {
	r := rand.New(rand.NewSource(7))
	start := time.Date(2024, 6, 3, 0, 0, 0, 0, time.UTC)
	price := 100.0
	out := make([]model.Candle, n)
	for i := range out {
		open := price
		cl := open + r.NormFloat64()
		out[i] = model.Candle{
			Symbol: "XAUUSD", Timeframe: model.M1, OpenTime: start.Add(time.Duration(i) * time.Minute),
			Open: open, High: math.Max(open, cl) + r.Float64(), Low: math.Min(open, cl) - r.Float64(), Close: cl, Volume: 1,
		}
		price = cl
	}
	return out
}

type eventSink interface {
	engine.EventSink
	Failed() uint64
}

// Every journal entry must reach the store, however far the writer falls behind.
func TestWritersPersistTheWholeJournal(t *testing.T) {
	candles := randomWalk(3000)
	tests := []struct {
		name string
		open func(Recorder) (eventSink, func())
	}{
		{"sync", func(r Recorder) (eventSink, func()) {
			return NewSyncWriter(r, zerolog.Nop()), func() {}
		}},
		{"async with a tiny queue", func(r Recorder) (eventSink, func()) {
			w := NewAsyncWriter(r, 1, zerolog.Nop())
			return w, func() {
				w.Close()
				if w.Dropped() != 0 {
					t.Errorf("async dropped %d events", w.Dropped())
				}
			}
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := newTestRecorder(t)
			sink, closeSink := tt.open(store)
			cfg := engine.DefaultConfig()
			cfg.JournalCapacity = 1 << 20
			eng := engine.New(cfg, zerolog.Nop(), engine.WithEventSink(sink))
			for _, c := range candles {
				if _, err := eng.Ingest(c); err != nil {
					t.Fatalf("ingest: %v", err)
				}
			}
			closeSink()

			journaled, err := eng.History("XAUUSD", "", journal.Query{})
			if err != nil {
				t.Fatal(err)
			}
			stored, err := store.QueryEvents(context.Background(), "XAUUSD", "", journal.Query{})
			if err != nil {
				t.Fatal(err)
			}
			if len(journaled) == 0 || len(stored) != len(journaled) {
				t.Fatalf("stored %d of %d journaled events", len(stored), len(journaled))
			}
			if sink.Failed() != 0 {
				t.Errorf("failed = %d", sink.Failed())
			}

			key := func(e model.Event) string { return fmt.Sprintf("%s/%d/%s", e.Timeframe, e.Seq, e.Kind) }
			want := make(map[string]int, len(journaled))
			for _, e := range journaled {
				want[key(e)]++
			}
			for _, e := range stored {
				if want[key(e)] == 0 {
					t.Fatalf("stored event %s not in the journal", key(e))
				}
				want[key(e)]--
			}
		})
	}
}

func TestSyncWriterCountsFailures(t *testing.T) {
	w := NewSyncWriter(failingRecorder{}, zerolog.Nop())
	w.Accept(sampleEvents())
	w.Accept(nil)
	if w.Failed() != 4 {
		t.Errorf("failed = %d, want 4", w.Failed())
	}
}
