package scanner

import (
	"math"
	"time"

	"barsim/internal/domain"
	"barsim/internal/feed"
)

var _ PatternDetector = (*GapReclaim)(nil)

// GapReclaim detects the gap-down mean-reversion setup: a session that opens
// at least minGapPct below the prior session's close, followed by the first
// close back above the session VWAP. Emits one LONG signal per qualifying
// session.
type GapReclaim struct {
	minGapPct  float64 // e.g. 0.02 for a 2% gap
	vwapWindow int     // bars of history scanned for session VWAP

	day        time.Time
	gapPct     float64
	qualifies  bool
	fired      bool
	priorClose float64
	lastClose  float64
}

// NewGapReclaim creates a detector requiring a gap down of at least
// minGapPct (fraction) from the prior session close.
func NewGapReclaim(minGapPct float64) *GapReclaim {
	return &GapReclaim{minGapPct: minGapPct, vwapWindow: 500}
}

// Name returns "gap-down-vwap-reclaim".
func (d *GapReclaim) Name() string { return "gap-down-vwap-reclaim" }

// OnBar tracks session boundaries and emits the reclaim signal on the first
// close back above VWAP after a qualifying gap down.
func (d *GapReclaim) OnBar(it *feed.Iterator) ([]domain.Signal, error) {
	bar, err := it.Current()
	if err != nil {
		return nil, err
	}

	day := bar.Timestamp.UTC().Truncate(24 * time.Hour)
	if !day.Equal(d.day) {
		// New session: the previous bar's close is the prior session close.
		d.priorClose = d.lastClose
		d.day = day
		d.fired = false
		d.qualifies = false
		if d.priorClose > 0 {
			d.gapPct = (bar.Open - d.priorClose) / d.priorClose
			d.qualifies = d.gapPct <= -d.minGapPct
		}
	}
	d.lastClose = bar.Close

	if !d.qualifies || d.fired {
		return nil, nil
	}

	vwap := feed.VWAP(it, d.vwapWindow)
	if vwap <= 0 || bar.Close <= vwap {
		return nil, nil
	}
	d.fired = true

	// Deeper gaps reclaim with more force behind them.
	strength := math.Min(100, 50+math.Abs(d.gapPct)*1000)

	sig, err := domain.NewSignal(bar.Ticker, bar.Timestamp, domain.Long, strength, map[string]float64{
		"gap_pct": d.gapPct * 100,
		"vwap":    vwap,
	})
	if err != nil {
		return nil, err
	}
	return []domain.Signal{sig}, nil
}
