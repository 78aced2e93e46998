package feed

import (
	"fmt"

	"barsim/internal/domain"
)

// Iterator walks a Series one bar at a time. It is the single gate through
// which simulation code reads market data: every accessor bounds-checks
// against the current index, so a read past simulated time surfaces as
// domain.ErrLookahead instead of silently leaking the future into a decision.
//
// The iterator starts positioned before the first bar; the first Advance
// lands on index 0.
type Iterator struct {
	series *Series
	index  int
}

// NewIterator creates an iterator positioned before the first bar.
func NewIterator(s *Series) *Iterator {
	return &Iterator{series: s, index: -1}
}

// Advance moves to the next bar. It returns false when the stream is
// exhausted, leaving the iterator on the final bar.
func (it *Iterator) Advance() (domain.Bar, bool) {
	if it.index+1 >= len(it.series.bars) {
		return domain.Bar{}, false
	}
	it.index++
	return it.series.bars[it.index], true
}

// Index returns the current bar index, or -1 before the first Advance.
func (it *Iterator) Index() int { return it.index }

// Current returns the bar at the current index.
func (it *Iterator) Current() (domain.Bar, error) {
	return it.At(it.index)
}

// At returns the bar at index i. Requests beyond the current index are a
// lookahead violation: fatal, never downgraded to a warning.
func (it *Iterator) At(i int) (domain.Bar, error) {
	if i > it.index || it.index < 0 {
		return domain.Bar{}, fmt.Errorf("%w: requested index %d, current %d (%s)",
			domain.ErrLookahead, i, it.index, it.series.ticker)
	}
	if i < 0 || i >= len(it.series.bars) {
		return domain.Bar{}, fmt.Errorf("bar index %d out of range [0,%d)", i, len(it.series.bars))
	}
	return it.series.bars[i], nil
}

// Window returns up to n bars ending at the current index, oldest first.
// This is the only sanctioned input for derived indicators: anything
// computed from a Window is lookahead-safe by construction.
func (it *Iterator) Window(n int) []domain.Bar {
	if it.index < 0 || n <= 0 {
		return nil
	}
	lo := it.index - n + 1
	if lo < 0 {
		lo = 0
	}
	return it.series.bars[lo : it.index+1]
}

// Remaining reports how many bars have not yet been visited. It exposes a
// count only, never the bars themselves.
func (it *Iterator) Remaining() int {
	return len(it.series.bars) - 1 - it.index
}
