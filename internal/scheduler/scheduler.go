package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"github.com/RonoHenry/AgentICTrader/internal/collector"
	"github.com/RonoHenry/AgentICTrader/internal/model"
	"github.com/RonoHenry/AgentICTrader/internal/publisher"
	"github.com/RonoHenry/AgentICTrader/internal/recorder"
)

// Poller fetches and ingests new candles.
type Poller interface {
	Poll(ctx context.Context) (collector.Stats, error)
}

// Snapshotter reads current contexts.
type Snapshotter interface {
	Symbols() []string
	Snapshot(symbol string) (model.SignalContext, error)
}

// Scheduler manages all cron tasks.
type Scheduler struct {
	Cron      *cron.Cron
	Poller    Poller
	Engine    Snapshotter
	Publisher publisher.Publisher
	Recorder  recorder.Recorder
	Ctx       context.Context

	logger  zerolog.Logger
	retries int

	mu   sync.Mutex
	last map[string]time.Time
}

// NewScheduler creates a new Scheduler. Jobs that are still running when
// their next tick fires are skipped.
func NewScheduler(ctx context.Context, poller Poller, eng Snapshotter, pub publisher.Publisher, rec recorder.Recorder, logger zerolog.Logger) *Scheduler {
	logger = logger.With().Str("component", "scheduler").Logger()
	cl := cronLogger{logger}
	return &Scheduler{
		Cron:      cron.New(cron.WithSeconds(), cron.WithLogger(cl), cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl))),
		Poller:    poller,
		Engine:    eng,
		Publisher: pub,
		Recorder:  rec,
		Ctx:       ctx,
		logger:    logger,
		retries:   3,
		last:      make(map[string]time.Time),
	}
}

// RegisterAll registers the feed polling and context publishing tasks.
func (s *Scheduler) RegisterAll(pollCron, publishCron string) error {
	if _, err := s.Cron.AddFunc(pollCron, s.pollTask); err != nil {
		return fmt.Errorf("register poll task: %w", err)
	}
	if _, err := s.Cron.AddFunc(publishCron, s.publishTask); err != nil {
		return fmt.Errorf("register publish task: %w", err)
	}
	return nil
}

// Start starts the cron scheduler.
func (s *Scheduler) Start() {
	s.Cron.Start()
	s.logger.Info().Int("jobs", len(s.Cron.Entries())).Msg("scheduler started")
}

// Stop stops the cron scheduler and waits for running jobs.
func (s *Scheduler) Stop() {
	<-s.Cron.Stop().Done()
	s.logger.Info().Msg("scheduler stopped")
}

// RunPollNow polls immediately and publishes the result (backfill on start).
func (s *Scheduler) RunPollNow() {
	s.pollTask()
	s.publishTask()
}

func (s *Scheduler) pollTask() {
	start := time.Now()
	st, err := s.Poller.Poll(s.Ctx)
	if err != nil {
		s.logger.Error().Err(err).Msg("poll finished with errors")
	}
	s.logger.Info().
		Int("fetched", st.Fetched).
		Int("applied", st.Applied).
		Int("rejected", st.Rejected).
		Dur("took", time.Since(start)).
		Msg("poll task done")
}

// publishTask publishes and records the context of every symbol whose
// AsOf moved since the last run.
func (s *Scheduler) publishTask() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, symbol := range s.Engine.Symbols() {
		sc, err := s.Engine.Snapshot(symbol)
		if err != nil {
			s.logger.Error().Err(err).Str("symbol", symbol).Msg("snapshot failed")
			continue
		}
		if !sc.AsOf.After(s.last[symbol]) {
			continue
		}
		if err := publisher.PublishWithRetry(s.Ctx, s.Publisher, sc, s.retries, s.logger); err != nil {
			s.logger.Error().Err(err).Str("symbol", symbol).Msg("publish context failed")
			continue
		}
		if err := s.Recorder.RecordContext(s.Ctx, sc); err != nil {
			s.logger.Error().Err(err).Str("symbol", symbol).Msg("record context failed")
		}
		s.last[symbol] = sc.AsOf
	}
}

// cronLogger routes cron's own logging through zerolog.
type cronLogger struct{ l zerolog.Logger }

func (c cronLogger) Info(msg string, keysAndValues ...interface{}) {
	c.l.Debug().Fields(keysAndValues).Msg(msg)
}

func (c cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	c.l.Error().Err(err).Fields(keysAndValues).Msg(msg)
}
