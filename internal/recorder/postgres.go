package recorder

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"github.com/RonoHenry/AgentICTrader/internal/journal"
	"github.com/RonoHenry/AgentICTrader/internal/model"
)

// PoolConfig sizes the Postgres connection pool.
type PoolConfig struct {
	MaxConns          int32
	MinConns          int32
	MaxConnLifetime   time.Duration
	MaxConnIdleTime   time.Duration
	HealthCheckPeriod time.Duration
}

func DefaultPoolConfig() PoolConfig {
	return PoolConfig{
		MaxConns:          10,
		MinConns:          1,
		MaxConnLifetime:   30 * time.Minute,
		MaxConnIdleTime:   5 * time.Minute,
		HealthCheckPeriod: 30 * time.Second,
	}
}

// PostgresRecorder persists events to Postgres through a pgx pool.
type PostgresRecorder struct {
	pool   *pgxpool.Pool
	logger zerolog.Logger
}

// NewPostgresRecorder connects, pings and runs migrations.
func NewPostgresRecorder(ctx context.Context, databaseURL string, cfg PoolConfig, logger zerolog.Logger) (*PostgresRecorder, error) {
	poolCfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}
	poolCfg.MaxConns = cfg.MaxConns
	poolCfg.MinConns = cfg.MinConns
	poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	poolCfg.MaxConnIdleTime = cfg.MaxConnIdleTime
	poolCfg.HealthCheckPeriod = cfg.HealthCheckPeriod

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	r := &PostgresRecorder{pool: pool, logger: logger.With().Str("component", "recorder").Logger()}
	if err := r.migrate(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	r.logger.Info().Str("host", poolCfg.ConnConfig.Host).Msg("postgres recorder opened")
	return r, nil
}

func (r *PostgresRecorder) migrate(ctx context.Context) error {
	stmts := []string{
		`create table if not exists events (
			id         bigserial primary key,
			symbol     text   not null,
			timeframe  text   not null,
			seq        bigint not null,
			kind       text   not null,
			at_ns      bigint not null,
			ref_id     text,
			payload    jsonb  not null
		)`,
		`create index if not exists idx_events_symbol_at on events(symbol, at_ns)`,
		`create index if not exists idx_events_tf_at on events(symbol, timeframe, at_ns)`,

		`create table if not exists contexts (
			id             bigserial primary key,
			symbol         text   not null,
			as_of_ns       bigint not null,
			bias_timeframe text,
			bias_direction text,
			payload        jsonb  not null
		)`,
		`create index if not exists idx_contexts_symbol on contexts(symbol, as_of_ns)`,
	}
	for _, s := range stmts {
		if _, err := r.pool.Exec(ctx, s); err != nil {
			return fmt.Errorf("exec %q: %w", s[:40], err)
		}
	}
	return nil
}

// RecordEvents sends all inserts in a single batch.
func (r *PostgresRecorder) RecordEvents(ctx context.Context, events []model.Event) error {
	if len(events) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, ev := range events {
		payload, err := json.Marshal(ev)
		if err != nil {
			return fmt.Errorf("encode event %d: %w", ev.Seq, err)
		}
		batch.Queue(`insert into events
			(symbol, timeframe, seq, kind, at_ns, ref_id, payload)
			values ($1,$2,$3,$4,$5,$6,$7)`,
			ev.Symbol, string(ev.Timeframe), int64(ev.Seq), string(ev.Kind),
			ev.At.UnixNano(), ev.RefID, payload,
		)
	}
	if err := r.pool.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("insert events: %w", err)
	}
	return nil
}

func (r *PostgresRecorder) RecordContext(ctx context.Context, sc model.SignalContext) error {
	payload, err := json.Marshal(sc)
	if err != nil {
		return fmt.Errorf("encode context: %w", err)
	}
	_, err = r.pool.Exec(ctx, `insert into contexts
		(symbol, as_of_ns, bias_timeframe, bias_direction, payload)
		values ($1,$2,$3,$4,$5)`,
		sc.Symbol, sc.AsOf.UnixNano(), string(sc.BiasTimeframe), string(sc.BiasDirection), payload,
	)
	return err
}

func (r *PostgresRecorder) LatestContext(ctx context.Context, symbol string) (model.SignalContext, bool, error) {
	var payload []byte
	err := r.pool.QueryRow(ctx,
		`select payload from contexts where symbol = $1 order by as_of_ns desc, id desc limit 1`, symbol,
	).Scan(&payload)
	if errors.Is(err, pgx.ErrNoRows) {
		return model.SignalContext{}, false, nil
	}
	if err != nil {
		return model.SignalContext{}, false, fmt.Errorf("query context: %w", err)
	}
	var sc model.SignalContext
	if err := json.Unmarshal(payload, &sc); err != nil {
		return model.SignalContext{}, false, fmt.Errorf("decode context: %w", err)
	}
	return sc, true, nil
}

func (r *PostgresRecorder) QueryEvents(ctx context.Context, symbol string, tf model.Timeframe, q journal.Query) ([]model.Event, error) {
	stmt, args := eventQuery(symbol, tf, q, func(n int) string { return "$" + strconv.Itoa(n) })
	rows, err := r.pool.Query(ctx, stmt, args...)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	var out []model.Event
	for rows.Next() {
		var payload []byte
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		ev, err := decodeEvent(payload)
		if err != nil {
			return nil, err
		}
		out = append(out, ev)
	}
	return out, rows.Err()
}

func (r *PostgresRecorder) Close() error {
	r.logger.Info().Msg("closing postgres recorder")
	r.pool.Close()
	return nil
}
