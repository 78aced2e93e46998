package scanner

import (
	"math"
	"time"

	"barsim/internal/domain"
	"barsim/internal/feed"
)

var _ PatternDetector = (*ORBreakout)(nil)

// ORBreakout detects opening-range breakouts: after the first rangeBars bars
// of a session establish the opening range, the first close above the range
// high emits a LONG signal. One signal per session, confirmed on the
// breakout bar and fillable only at a later bar's open.
type ORBreakout struct {
	rangeBars int

	day       time.Time
	barsInDay int
	rangeHigh float64
	rangeLow  float64
	fired     bool
}

// NewORBreakout creates a detector with the given opening-range length in
// bars (e.g. 6 five-minute bars for a 30-minute range).
func NewORBreakout(rangeBars int) *ORBreakout {
	return &ORBreakout{rangeBars: rangeBars}
}

// Name returns "opening-range-breakout".
func (d *ORBreakout) Name() string { return "opening-range-breakout" }

// OnBar updates the session range and emits at most one breakout signal per
// day.
func (d *ORBreakout) OnBar(it *feed.Iterator) ([]domain.Signal, error) {
	bar, err := it.Current()
	if err != nil {
		return nil, err
	}

	day := bar.Timestamp.UTC().Truncate(24 * time.Hour)
	if !day.Equal(d.day) {
		d.day = day
		d.barsInDay = 0
		d.rangeHigh = 0
		d.rangeLow = math.MaxFloat64
		d.fired = false
	}
	d.barsInDay++

	if d.barsInDay <= d.rangeBars {
		if bar.High > d.rangeHigh {
			d.rangeHigh = bar.High
		}
		if bar.Low < d.rangeLow {
			d.rangeLow = bar.Low
		}
		return nil, nil
	}

	if d.fired || bar.Close <= d.rangeHigh {
		return nil, nil
	}
	d.fired = true

	// Strength scales with how decisively the close cleared the range.
	rangeWidth := d.rangeHigh - d.rangeLow
	strength := 60.0
	if rangeWidth > 0 {
		strength = math.Min(100, 60+40*(bar.Close-d.rangeHigh)/rangeWidth)
	}

	sig, err := domain.NewSignal(bar.Ticker, bar.Timestamp, domain.Long, strength, map[string]float64{
		"or_high":  d.rangeHigh,
		"or_low":   d.rangeLow,
		"or_width": rangeWidth,
	})
	if err != nil {
		return nil, err
	}
	return []domain.Signal{sig}, nil
}
