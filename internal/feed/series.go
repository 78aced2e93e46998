// Package feed provides the ordered bar series and the guarded iterator that
// enforces temporal correctness during replay: no consumer can observe a bar
// beyond the one currently being simulated.
package feed

import (
	"fmt"
	"log/slog"
	"time"

	"barsim/internal/domain"
)

// Series is an immutable, strictly time-ordered run of bars for one ticker
// and timeframe. Gaps between consecutive bars are tolerated (halts, thin
// sessions) and recorded, never assumed absent.
type Series struct {
	ticker    string
	timeframe domain.Timeframe
	bars      []domain.Bar
	gaps      []Gap
}

// Gap marks a stretch of missing bars between two consecutive samples.
type Gap struct {
	Before time.Time
	After  time.Time
}

// NewSeries validates ordering and builds a Series. Bars must be strictly
// ascending by timestamp; duplicates or regressions are a data defect and
// fail construction.
func NewSeries(ticker string, tf domain.Timeframe, bars []domain.Bar) (*Series, error) {
	interval := intervalOf(tf)
	var gaps []Gap
	for i := 1; i < len(bars); i++ {
		prev, cur := bars[i-1], bars[i]
		if !cur.Timestamp.After(prev.Timestamp) {
			return nil, fmt.Errorf("%w: bars out of order at index %d (%s >= %s)",
				domain.ErrConfig, i, prev.Timestamp, cur.Timestamp)
		}
		if interval > 0 && cur.Timestamp.Sub(prev.Timestamp) > interval {
			gaps = append(gaps, Gap{Before: prev.Timestamp, After: cur.Timestamp})
		}
	}
	if len(gaps) > 0 {
		slog.Debug("bar series has gaps",
			"ticker", ticker, "timeframe", tf, "gaps", len(gaps))
	}
	return &Series{ticker: ticker, timeframe: tf, bars: bars, gaps: gaps}, nil
}

// Ticker returns the series ticker.
func (s *Series) Ticker() string { return s.ticker }

// Timeframe returns the series timeframe.
func (s *Series) Timeframe() domain.Timeframe { return s.timeframe }

// Len returns the number of bars.
func (s *Series) Len() int { return len(s.bars) }

// Gaps returns the detected gaps, in time order.
func (s *Series) Gaps() []Gap { return s.gaps }

func intervalOf(tf domain.Timeframe) time.Duration {
	switch tf {
	case domain.Timeframe1Min:
		return time.Minute
	case domain.Timeframe5Min:
		return 5 * time.Minute
	case domain.Timeframe15Min:
		return 15 * time.Minute
	case domain.TimeframeDaily:
		return 24 * time.Hour
	default:
		return 0
	}
}
