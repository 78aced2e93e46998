// Package store defines storage interfaces for persisting and retrieving
// bars, signals, and simulation results, with Parquet, SQLite, and
// ClickHouse backends.
package store

import (
	"context"
	"time"

	"barsim/internal/domain"
	"barsim/internal/perf"
)

// BarStore persists and retrieves OHLCV bar data.
type BarStore interface {
	// WriteBars persists a batch of bars to storage.
	WriteBars(ctx context.Context, bars []domain.Bar) error

	// ReadBars returns bars for the given ticker and timeframe within
	// [start, end], sorted ascending by timestamp.
	ReadBars(ctx context.Context, ticker string, tf domain.Timeframe, start, end time.Time) ([]domain.Bar, error)

	// ListTickers returns all distinct tickers available at the given timeframe.
	ListTickers(ctx context.Context, tf domain.Timeframe) ([]string, error)
}

// SignalStore persists and retrieves detected signals.
type SignalStore interface {
	// SaveSignals inserts a batch of signals.
	SaveSignals(ctx context.Context, signals []domain.Signal) error

	// ListSignals returns signals for a ticker within [start, end], sorted
	// ascending by signal time.
	ListSignals(ctx context.Context, ticker string, start, end time.Time) ([]domain.Signal, error)
}

// ResultStore persists completed simulation runs: the trade log, the
// rejection log, and the summary statistics.
type ResultStore interface {
	// SaveRun persists one unit's output under the given run ID.
	SaveRun(ctx context.Context, runID string, trades []domain.Trade, rejections []domain.Rejection, summary perf.Summary) error

	// ListTrades returns the trades recorded under a run ID, sorted
	// ascending by exit time.
	ListTrades(ctx context.Context, runID string) ([]domain.Trade, error)

	// ListRuns returns all stored run IDs, most recent first.
	ListRuns(ctx context.Context) ([]string, error)
}
