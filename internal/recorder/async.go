package recorder

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/RonoHenry/AgentICTrader/internal/model"
)

// AsyncWriter adapts a Recorder to the engine's event sink. Batches are
// queued on a buffered channel and written in order by one goroutine. When
// the queue is full Accept blocks until the writer catches up, so ingestion
// slows down instead of losing events.
type AsyncWriter struct {
	rec     Recorder
	logger  zerolog.Logger
	timeout time.Duration

	mu     sync.RWMutex
	closed bool
	queue  chan []model.Event
	done   chan struct{}

	dropped atomic.Uint64
	failed  atomic.Uint64
	stalls  atomic.Uint64
}

// NewAsyncWriter starts the drain goroutine. Close must be called to flush.
func NewAsyncWriter(rec Recorder, buffer int, logger zerolog.Logger) *AsyncWriter {
	if buffer <= 0 {
		buffer = 256
	}
	w := &AsyncWriter{
		rec:     rec,
		logger:  logger.With().Str("component", "recorder_writer").Logger(),
		timeout: 10 * time.Second,
		queue:   make(chan []model.Event, buffer),
		done:    make(chan struct{}),
	}
	go w.run()
	return w
}

// Accept implements engine.EventSink.
func (w *AsyncWriter) Accept(events []model.Event) {
	if len(events) == 0 {
		return
	}
	batch := make([]model.Event, len(events))
	copy(batch, events)

	w.mu.RLock()
	defer w.mu.RUnlock()
	if w.closed {
		w.dropped.Add(uint64(len(batch)))
		return
	}
	select {
	case w.queue <- batch:
	default:
		w.stalls.Add(1)
		w.logger.Debug().Int("events", len(batch)).Msg("recorder queue full, waiting")
		w.queue <- batch
	}
}

func (w *AsyncWriter) run() {
	defer close(w.done)
	for batch := range w.queue {
		ctx, cancel := context.WithTimeout(context.Background(), w.timeout)
		if err := w.rec.RecordEvents(ctx, batch); err != nil {
			w.failed.Add(uint64(len(batch)))
			w.logger.Error().Err(err).Int("events", len(batch)).Msg("record events failed")
		}
		cancel()
	}
}

// Dropped is the number of events offered after Close.
func (w *AsyncWriter) Dropped() uint64 { return w.dropped.Load() }

// Failed is the number of events the recorder rejected.
func (w *AsyncWriter) Failed() uint64 { return w.failed.Load() }

// Stalls counts the batches that had to wait for queue space.
func (w *AsyncWriter) Stalls() uint64 { return w.stalls.Load() }

// Close stops accepting events and waits until the queue is drained.
func (w *AsyncWriter) Close() error {
	w.mu.Lock()
	if !w.closed {
		w.closed = true
		close(w.queue)
	}
	w.mu.Unlock()
	<-w.done
	return nil
}
