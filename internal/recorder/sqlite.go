package recorder

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/rs/zerolog"
	_ "modernc.org/sqlite"

	"github.com/RonoHenry/AgentICTrader/internal/journal"
	"github.com/RonoHenry/AgentICTrader/internal/model"
)

// SQLiteRecorder persists events to a SQLite database.
type SQLiteRecorder struct {
	db     *sql.DB
	mu     sync.Mutex
	logger zerolog.Logger
}

// NewSQLiteRecorder opens (or creates) the SQLite database and runs migrations.
// ":memory:" gives a private in-process database.
func NewSQLiteRecorder(dbPath string, logger zerolog.Logger) (*SQLiteRecorder, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if dbPath == ":memory:" {
		// every pooled connection would otherwise see its own empty database
		db.SetMaxOpenConns(1)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}

	r := &SQLiteRecorder{db: db, logger: logger.With().Str("component", "recorder").Logger()}
	if err := r.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	r.logger.Info().Str("path", dbPath).Msg("sqlite recorder opened")
	return r, nil
}

func (r *SQLiteRecorder) migrate() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS events (
			id         INTEGER PRIMARY KEY AUTOINCREMENT,
			symbol     TEXT    NOT NULL,
			timeframe  TEXT    NOT NULL,
			seq        INTEGER NOT NULL,
			kind       TEXT    NOT NULL,
			at_ns      INTEGER NOT NULL,
			ref_id     TEXT,
			payload    TEXT    NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_events_symbol_at ON events(symbol, at_ns)`,
		`CREATE INDEX IF NOT EXISTS idx_events_tf_at ON events(symbol, timeframe, at_ns)`,

		`CREATE TABLE IF NOT EXISTS contexts (
			id             INTEGER PRIMARY KEY AUTOINCREMENT,
			symbol         TEXT    NOT NULL,
			as_of_ns       INTEGER NOT NULL,
			bias_timeframe TEXT,
			bias_direction TEXT,
			payload        TEXT    NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_contexts_symbol ON contexts(symbol, as_of_ns)`,
	}

	for _, s := range stmts {
		if _, err := r.db.Exec(s); err != nil {
			return fmt.Errorf("exec %q: %w", s[:40], err)
		}
	}
	return nil
}

// RecordEvents inserts events in one transaction.
func (r *SQLiteRecorder) RecordEvents(ctx context.Context, events []model.Event) error {
	if len(events) == 0 {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO events
		(symbol, timeframe, seq, kind, at_ns, ref_id, payload)
		VALUES (?,?,?,?,?,?,?)`)
	if err != nil {
		return fmt.Errorf("prepare: %w", err)
	}
	defer stmt.Close()

	for _, ev := range events {
		payload, err := json.Marshal(ev)
		if err != nil {
			return fmt.Errorf("encode event %d: %w", ev.Seq, err)
		}
		if _, err := stmt.ExecContext(ctx,
			ev.Symbol, string(ev.Timeframe), int64(ev.Seq), string(ev.Kind),
			ev.At.UnixNano(), ev.RefID, string(payload),
		); err != nil {
			return fmt.Errorf("insert event %d: %w", ev.Seq, err)
		}
	}
	return tx.Commit()
}

// RecordContext stores one SignalContext snapshot.
func (r *SQLiteRecorder) RecordContext(ctx context.Context, sc model.SignalContext) error {
	payload, err := json.Marshal(sc)
	if err != nil {
		return fmt.Errorf("encode context: %w", err)
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	_, err = r.db.ExecContext(ctx, `INSERT INTO contexts
		(symbol, as_of_ns, bias_timeframe, bias_direction, payload)
		VALUES (?,?,?,?,?)`,
		sc.Symbol, sc.AsOf.UnixNano(), string(sc.BiasTimeframe), string(sc.BiasDirection), string(payload),
	)
	return err
}

func (r *SQLiteRecorder) LatestContext(ctx context.Context, symbol string) (model.SignalContext, bool, error) {
	var payload string
	err := r.db.QueryRowContext(ctx,
		`SELECT payload FROM contexts WHERE symbol = ? ORDER BY as_of_ns DESC, id DESC LIMIT 1`, symbol,
	).Scan(&payload)
	if err == sql.ErrNoRows {
		return model.SignalContext{}, false, nil
	}
	if err != nil {
		return model.SignalContext{}, false, fmt.Errorf("query context: %w", err)
	}
	var sc model.SignalContext
	if err := json.Unmarshal([]byte(payload), &sc); err != nil {
		return model.SignalContext{}, false, fmt.Errorf("decode context: %w", err)
	}
	return sc, true, nil
}

func (r *SQLiteRecorder) QueryEvents(ctx context.Context, symbol string, tf model.Timeframe, q journal.Query) ([]model.Event, error) {
	stmt, args := eventQuery(symbol, tf, q, func(int) string { return "?" })
	rows, err := r.db.QueryContext(ctx, stmt, args...)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	var out []model.Event
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		ev, err := decodeEvent([]byte(payload))
		if err != nil {
			return nil, err
		}
		out = append(out, ev)
	}
	return out, rows.Err()
}

func (r *SQLiteRecorder) Close() error {
	r.logger.Info().Msg("closing sqlite recorder")
	return r.db.Close()
}
