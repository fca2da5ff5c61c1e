package recorder

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/RonoHenry/AgentICTrader/internal/model"
)

// SyncWriter is an engine event sink that records every batch before
// Accept returns. Replays use it so the stored log matches the journal.
type SyncWriter struct {
	rec     Recorder
	logger  zerolog.Logger
	timeout time.Duration
	failed  atomic.Uint64
}

func NewSyncWriter(rec Recorder, logger zerolog.Logger) *SyncWriter {
	return &SyncWriter{
		rec:     rec,
		logger:  logger.With().Str("component", "recorder_writer").Logger(),
		timeout: 10 * time.Second,
	}
}

// Accept implements engine.EventSink.
func (w *SyncWriter) Accept(events []model.Event) {
	if len(events) == 0 {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), w.timeout)
	defer cancel()
	if err := w.rec.RecordEvents(ctx, events); err != nil {
		w.failed.Add(uint64(len(events)))
		w.logger.Error().Err(err).Int("events", len(events)).Msg("record events failed")
	}
}

// Failed is the number of events the recorder rejected.
func (w *SyncWriter) Failed() uint64 { return w.failed.Load() }
