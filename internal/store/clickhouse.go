package store

import (
	"context"
	"fmt"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"

	"barsim/internal/domain"
)

// Compile-time interface check.
var _ BarStore = (*ClickHouseStore)(nil)

// ClickHouseOptions configures the ClickHouse connection.
type ClickHouseOptions struct {
	Addr     string `yaml:"addr"`
	Database string `yaml:"database"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	Table    string `yaml:"table"`
}

// ClickHouseStore is a read-oriented BarStore backed by a ClickHouse candle
// table. Writes go through WriteBars for completeness, but the expected use
// is reading shared historical data loaded by a separate ingest job.
type ClickHouseStore struct {
	conn  clickhouse.Conn
	table string
}

// NewClickHouseStore connects to ClickHouse and verifies the connection.
func NewClickHouseStore(ctx context.Context, opts ClickHouseOptions) (*ClickHouseStore, error) {
	conn, err := clickhouse.Open(&clickhouse.Options{
		Addr: []string{opts.Addr},
		Auth: clickhouse.Auth{
			Database: opts.Database,
			Username: opts.Username,
			Password: opts.Password,
		},
		Settings: clickhouse.Settings{
			"max_execution_time": uint64(0),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("connecting to clickhouse: %w", err)
	}
	if err := conn.Ping(ctx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("pinging clickhouse: %w", err)
	}
	table := opts.Table
	if table == "" {
		table = "bars"
	}
	return &ClickHouseStore{conn: conn, table: table}, nil
}

// Close closes the underlying connection.
func (s *ClickHouseStore) Close() error {
	return s.conn.Close()
}

// WriteBars inserts a batch of bars. The table is expected to deduplicate on
// (ticker, timeframe, timestamp) via its engine.
func (s *ClickHouseStore) WriteBars(ctx context.Context, bars []domain.Bar) error {
	if len(bars) == 0 {
		return nil
	}
	batch, err := s.conn.PrepareBatch(ctx, fmt.Sprintf(
		`INSERT INTO %s (ticker, timeframe, ts, open, high, low, close, volume)`, s.table))
	if err != nil {
		return fmt.Errorf("preparing batch: %w", err)
	}
	for _, b := range bars {
		if err := batch.Append(
			b.Ticker, string(b.Timeframe), b.Timestamp,
			b.Open, b.High, b.Low, b.Close, b.Volume); err != nil {
			return fmt.Errorf("appending bar %s@%s: %w", b.Ticker, b.Timestamp, err)
		}
	}
	return batch.Send()
}

// ReadBars returns bars for the given ticker and timeframe within
// [start, end], ascending by timestamp.
func (s *ClickHouseStore) ReadBars(ctx context.Context, ticker string, tf domain.Timeframe, start, end time.Time) ([]domain.Bar, error) {
	rows, err := s.conn.Query(ctx, fmt.Sprintf(`
		SELECT ticker, ts, open, high, low, close, volume
		FROM %s
		WHERE ticker = ? AND timeframe = ? AND ts BETWEEN ? AND ?
		ORDER BY ts ASC`, s.table),
		ticker, string(tf), start, end)
	if err != nil {
		return nil, fmt.Errorf("querying bars: %w", err)
	}
	defer rows.Close()

	var bars []domain.Bar
	for rows.Next() {
		var b domain.Bar
		if err := rows.Scan(&b.Ticker, &b.Timestamp,
			&b.Open, &b.High, &b.Low, &b.Close, &b.Volume); err != nil {
			return nil, err
		}
		b.Timestamp = b.Timestamp.UTC()
		b.Timeframe = tf
		bars = append(bars, b)
	}
	return bars, rows.Err()
}

// ListTickers returns all distinct tickers at the given timeframe, sorted.
func (s *ClickHouseStore) ListTickers(ctx context.Context, tf domain.Timeframe) ([]string, error) {
	rows, err := s.conn.Query(ctx, fmt.Sprintf(
		`SELECT DISTINCT ticker FROM %s WHERE timeframe = ? ORDER BY ticker ASC`, s.table),
		string(tf))
	if err != nil {
		return nil, fmt.Errorf("querying tickers: %w", err)
	}
	defer rows.Close()

	var tickers []string
	for rows.Next() {
		var t string
		if err := rows.Scan(&t); err != nil {
			return nil, err
		}
		tickers = append(tickers, t)
	}
	return tickers, rows.Err()
}
