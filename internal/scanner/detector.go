// Package scanner defines the PatternDetector interface and built-in
// detectors that emit entry signals during replay. Detectors observe bars
// through the guarded iterator only, so a detector cannot confirm a pattern
// with information that was not available at the bar being scanned.
package scanner

import (
	"barsim/internal/domain"
	"barsim/internal/feed"
)

// PatternDetector produces candidate trade signals from already-seen bars.
// OnBar is called once per bar, after the iterator has advanced to it; any
// returned signal is confirmed at that bar and can only fill on a later bar.
type PatternDetector interface {
	// Name returns the unique detector identifier.
	Name() string

	// OnBar scans the current bar and returns zero or more signals.
	OnBar(it *feed.Iterator) ([]domain.Signal, error)
}
