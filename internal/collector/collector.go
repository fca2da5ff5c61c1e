// Package collector pulls candles from market data sources and feeds the
// closed ones into the analysis engine.
package collector

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/RonoHenry/AgentICTrader/internal/engine"
	"github.com/RonoHenry/AgentICTrader/internal/model"
)

// Ingester is the part of the engine the collector drives.
type Ingester interface {
	Ingest(c model.Candle) (engine.Result, error)
}

// Stats summarises one poll.
type Stats struct {
	Fetched  int
	Applied  int
	Skipped  int // already seen or still forming
	Rejected int
}

func (s *Stats) add(o Stats) {
	s.Fetched += o.Fetched
	s.Applied += o.Applied
	s.Skipped += o.Skipped
	s.Rejected += o.Rejected
}

// Collector orchestrates fetching and ingestion.
type Collector struct {
	fetcher    Fetcher
	sink       Ingester
	symbols    []string
	timeframes []model.Timeframe
	limit      int
	logger     zerolog.Logger
	now        func() time.Time

	mu   sync.Mutex
	last map[string]time.Time
}

// Option configures a Collector.
type Option func(*Collector)

// WithClock replaces the wall clock used to decide whether a bar has closed.
func WithClock(now func() time.Time) Option {
	return func(c *Collector) { c.now = now }
}

// WithLimit sets how many candles are requested per fetch.
func WithLimit(n int) Option {
	return func(c *Collector) {
		if n > 0 {
			c.limit = n
		}
	}
}

// NewCollector creates a collector. Timeframes are polled coarsest first so
// higher timeframe context is in place before the finer candles arrive.
func NewCollector(fetcher Fetcher, sink Ingester, symbols []string, timeframes []model.Timeframe, logger zerolog.Logger, opts ...Option) *Collector {
	ordered := make([]model.Timeframe, 0, len(timeframes))
	for _, tf := range model.Timeframes {
		for _, want := range timeframes {
			if want == tf {
				ordered = append(ordered, tf)
				break
			}
		}
	}
	c := &Collector{
		fetcher:    fetcher,
		sink:       sink,
		symbols:    symbols,
		timeframes: ordered,
		limit:      300,
		logger:     logger.With().Str("component", "collector").Str("source", fetcher.Name()).Logger(),
		now:        time.Now,
		last:       make(map[string]time.Time),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Poll fetches every (symbol, timeframe) once and ingests the new closed
// candles. A failing source does not stop the others; all errors are joined.
func (c *Collector) Poll(ctx context.Context) (Stats, error) {
	var (
		total Stats
		errs  []error
	)
	for _, symbol := range c.symbols {
		for _, tf := range c.timeframes {
			if err := ctx.Err(); err != nil {
				return total, err
			}
			st, err := c.collect(ctx, symbol, tf)
			total.add(st)
			if err != nil {
				c.logger.Warn().Err(err).Str("symbol", symbol).Str("timeframe", string(tf)).Msg("collect failed")
				errs = append(errs, err)
			}
		}
	}
	c.logger.Debug().
		Int("fetched", total.Fetched).
		Int("applied", total.Applied).
		Int("skipped", total.Skipped).
		Int("rejected", total.Rejected).
		Msg("poll complete")
	return total, errors.Join(errs...)
}

func (c *Collector) collect(ctx context.Context, symbol string, tf model.Timeframe) (Stats, error) {
	candles, err := c.fetcher.FetchCandles(ctx, symbol, tf, c.limit)
	if err != nil {
		return Stats{}, fmt.Errorf("fetch %s %s: %w", symbol, tf, err)
	}
	st := Stats{Fetched: len(candles)}

	key := symbol + "|" + string(tf)
	c.mu.Lock()
	last := c.last[key]
	c.mu.Unlock()

	now := c.now()
	for _, cd := range candles {
		if !cd.OpenTime.After(last) || tf.CloseTime(cd.OpenTime).After(now) {
			st.Skipped++
			continue
		}
		cd.Symbol, cd.Timeframe = symbol, tf
		res, err := c.sink.Ingest(cd)
		switch {
		case err != nil:
			st.Rejected++
			c.logger.Debug().Err(err).Str("symbol", symbol).Str("timeframe", string(tf)).Msg("candle rejected")
			if errors.Is(err, model.ErrOutOfOrder) {
				last = cd.OpenTime
			}
		case res.Applied:
			st.Applied++
			last = cd.OpenTime
		default:
			st.Skipped++
			last = cd.OpenTime
		}
	}

	c.mu.Lock()
	if last.After(c.last[key]) {
		c.last[key] = last
	}
	c.mu.Unlock()
	return st, nil
}
