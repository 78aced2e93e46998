package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"barsim/internal/domain"
	"barsim/internal/perf"

	_ "modernc.org/sqlite" // Pure-Go SQLite driver.
)

// Compile-time interface checks.
var _ SignalStore = (*SQLiteStore)(nil)
var _ ResultStore = (*SQLiteStore)(nil)

// SQLiteStore implements SignalStore and ResultStore backed by a SQLite
// database.
type SQLiteStore struct {
	db *sql.DB
}

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS signals (
	ticker      TEXT    NOT NULL,
	signal_time INTEGER NOT NULL, -- Unix ms
	direction   TEXT    NOT NULL,
	strength    REAL    NOT NULL,
	metrics     TEXT    NOT NULL DEFAULT '{}',
	PRIMARY KEY (ticker, signal_time, direction)
);
CREATE INDEX IF NOT EXISTS idx_signals_time ON signals (ticker, signal_time);

CREATE TABLE IF NOT EXISTS runs (
	id         TEXT PRIMARY KEY,
	created_at INTEGER NOT NULL, -- Unix ms
	summary    TEXT    NOT NULL
);

CREATE TABLE IF NOT EXISTS trades (
	run_id        TEXT    NOT NULL REFERENCES runs (id),
	position_id   TEXT    NOT NULL,
	ticker        TEXT    NOT NULL,
	side          TEXT    NOT NULL,
	template      TEXT    NOT NULL,
	entry_time    INTEGER NOT NULL,
	entry_price   REAL    NOT NULL,
	exit_time     INTEGER NOT NULL,
	exit_price    REAL    NOT NULL,
	quantity      INTEGER NOT NULL,
	pnl           REAL    NOT NULL,
	pnl_percent   REAL    NOT NULL,
	exit_reason   TEXT    NOT NULL,
	highest_price REAL    NOT NULL,
	lowest_price  REAL    NOT NULL,
	bars_held     INTEGER NOT NULL,
	PRIMARY KEY (run_id, position_id)
);
CREATE INDEX IF NOT EXISTS idx_trades_run ON trades (run_id, exit_time);

CREATE TABLE IF NOT EXISTS rejections (
	run_id      TEXT    NOT NULL REFERENCES runs (id),
	ticker      TEXT    NOT NULL,
	signal_time INTEGER NOT NULL,
	direction   TEXT    NOT NULL,
	strength    REAL    NOT NULL,
	reason      TEXT    NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_rejections_run ON rejections (run_id);
`

// NewSQLiteStore opens (or creates) a SQLite database at dbPath, applies the
// schema, and returns a ready-to-use SQLiteStore.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, err
	}
	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("applying schema: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// ---------------------------------------------------------------------------
// SignalStore implementation
// ---------------------------------------------------------------------------

// SaveSignals inserts a batch of signals in one transaction. Re-inserting the
// same (ticker, time, direction) replaces the previous row.
func (s *SQLiteStore) SaveSignals(ctx context.Context, signals []domain.Signal) error {
	if len(signals) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT OR REPLACE INTO signals (ticker, signal_time, direction, strength, metrics)
		VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, sig := range signals {
		metrics, err := json.Marshal(sig.Metrics)
		if err != nil {
			return fmt.Errorf("encoding metrics for %s: %w", sig.Ticker, err)
		}
		if _, err := stmt.ExecContext(ctx,
			sig.Ticker, sig.SignalTime.UnixMilli(), string(sig.Direction),
			sig.Strength, string(metrics)); err != nil {
			return fmt.Errorf("inserting signal %s@%s: %w", sig.Ticker, sig.SignalTime, err)
		}
	}
	return tx.Commit()
}

// ListSignals returns signals for a ticker within [start, end], ascending by
// signal time.
func (s *SQLiteStore) ListSignals(ctx context.Context, ticker string, start, end time.Time) ([]domain.Signal, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT ticker, signal_time, direction, strength, metrics
		FROM signals
		WHERE ticker = ? AND signal_time BETWEEN ? AND ?
		ORDER BY signal_time ASC`,
		ticker, start.UnixMilli(), end.UnixMilli())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var signals []domain.Signal
	for rows.Next() {
		var (
			sig        domain.Signal
			ts         int64
			dir        string
			metricsRaw string
		)
		if err := rows.Scan(&sig.Ticker, &ts, &dir, &sig.Strength, &metricsRaw); err != nil {
			return nil, err
		}
		sig.SignalTime = time.UnixMilli(ts).UTC()
		sig.Direction = domain.Direction(dir)
		if metricsRaw != "" && metricsRaw != "null" {
			if err := json.Unmarshal([]byte(metricsRaw), &sig.Metrics); err != nil {
				return nil, fmt.Errorf("decoding metrics for %s: %w", sig.Ticker, err)
			}
		}
		signals = append(signals, sig)
	}
	return signals, rows.Err()
}

// ---------------------------------------------------------------------------
// ResultStore implementation
// ---------------------------------------------------------------------------

// SaveRun persists one unit's trades, rejections, and summary atomically.
func (s *SQLiteStore) SaveRun(ctx context.Context, runID string, trades []domain.Trade, rejections []domain.Rejection, summary perf.Summary) error {
	summaryJSON, err := json.Marshal(summary)
	if err != nil {
		return fmt.Errorf("encoding summary: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`INSERT OR REPLACE INTO runs (id, created_at, summary) VALUES (?, ?, ?)`,
		runID, time.Now().UnixMilli(), string(summaryJSON)); err != nil {
		return fmt.Errorf("inserting run %s: %w", runID, err)
	}

	for _, t := range trades {
		if _, err := tx.ExecContext(ctx, `
			INSERT OR REPLACE INTO trades (
				run_id, position_id, ticker, side, template,
				entry_time, entry_price, exit_time, exit_price,
				quantity, pnl, pnl_percent, exit_reason,
				highest_price, lowest_price, bars_held
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			runID, t.PositionID, t.Ticker, string(t.Side), t.Template,
			t.EntryTime.UnixMilli(), t.EntryPrice, t.ExitTime.UnixMilli(), t.ExitPrice,
			t.Quantity, t.PnL, t.PnLPercent, string(t.ExitReason),
			t.HighestPrice, t.LowestPrice, t.BarsHeld); err != nil {
			return fmt.Errorf("inserting trade %s: %w", t.PositionID, err)
		}
	}

	for _, r := range rejections {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO rejections (run_id, ticker, signal_time, direction, strength, reason)
			VALUES (?, ?, ?, ?, ?, ?)`,
			runID, r.Signal.Ticker, r.Signal.SignalTime.UnixMilli(),
			string(r.Signal.Direction), r.Signal.Strength, r.Reason); err != nil {
			return fmt.Errorf("inserting rejection: %w", err)
		}
	}
	return tx.Commit()
}

// ListTrades returns the trades recorded under a run ID, ascending by exit
// time.
func (s *SQLiteStore) ListTrades(ctx context.Context, runID string) ([]domain.Trade, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT position_id, ticker, side, template,
		       entry_time, entry_price, exit_time, exit_price,
		       quantity, pnl, pnl_percent, exit_reason,
		       highest_price, lowest_price, bars_held
		FROM trades WHERE run_id = ? ORDER BY exit_time ASC`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var trades []domain.Trade
	for rows.Next() {
		var (
			t               domain.Trade
			entryMs, exitMs int64
			side, reason    string
		)
		if err := rows.Scan(&t.PositionID, &t.Ticker, &side, &t.Template,
			&entryMs, &t.EntryPrice, &exitMs, &t.ExitPrice,
			&t.Quantity, &t.PnL, &t.PnLPercent, &reason,
			&t.HighestPrice, &t.LowestPrice, &t.BarsHeld); err != nil {
			return nil, err
		}
		t.EntryTime = time.UnixMilli(entryMs).UTC()
		t.ExitTime = time.UnixMilli(exitMs).UTC()
		t.Side = domain.Direction(side)
		t.ExitReason = domain.ExitReason(reason)
		trades = append(trades, t)
	}
	return trades, rows.Err()
}

// ListRuns returns all stored run IDs, most recent first.
func (s *SQLiteStore) ListRuns(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id FROM runs ORDER BY created_at DESC, id ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// GetSummary returns the stored summary for a run ID.
func (s *SQLiteStore) GetSummary(ctx context.Context, runID string) (perf.Summary, error) {
	var raw string
	err := s.db.QueryRowContext(ctx,
		`SELECT summary FROM runs WHERE id = ?`, runID).Scan(&raw)
	if err != nil {
		return perf.Summary{}, err
	}
	var summary perf.Summary
	if err := json.Unmarshal([]byte(raw), &summary); err != nil {
		return perf.Summary{}, fmt.Errorf("decoding summary for %s: %w", runID, err)
	}
	return summary, nil
}
