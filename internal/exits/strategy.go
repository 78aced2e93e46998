// Package exits implements the per-bar exit state machine for open
// positions: stop loss, take profit, multi-stage trailing stops, time-based
// exits, partial scale-outs, and discretionary overrides, parameterized by
// named templates.
package exits

import (
	"sort"
	"time"

	"barsim/internal/domain"
	"barsim/internal/feed"
)

// Strategy decides whether and how a position closes on each bar. All price
// information flows through the guarded iterator, so a strategy cannot read
// past the bar being evaluated.
type Strategy interface {
	// Name returns the unique template identifier.
	Name() string

	// InitPosition sets the initial stop and target on a freshly opened
	// position, using only bars at or before the entry bar.
	InitPosition(pos *domain.Position, it *feed.Iterator) error

	// Evaluate inspects the current bar and returns an exit action, or nil
	// to hold. It also advances the position's trailing state. sessionEnd is
	// the hard cutoff for the trading session containing the bar.
	Evaluate(pos *domain.Position, it *feed.Iterator, sessionEnd time.Time) (*Exit, error)
}

// Exit is one fill closing some or all of a position's remaining shares.
type Exit struct {
	Time   time.Time
	Price  float64
	Shares int64
	Reason domain.ExitReason
}

// Registry holds a named collection of exit strategies.
type Registry struct {
	strategies map[string]Strategy
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{strategies: make(map[string]Strategy)}
}

// Register adds a strategy, keyed by its Name().
func (r *Registry) Register(s Strategy) {
	r.strategies[s.Name()] = s
}

// Get retrieves a strategy by name.
func (r *Registry) Get(name string) (Strategy, bool) {
	s, ok := r.strategies[name]
	return s, ok
}

// List returns a sorted slice of all registered template names.
func (r *Registry) List() []string {
	names := make([]string, 0, len(r.strategies))
	for name := range r.strategies {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// DefaultRegistry returns a registry pre-loaded with the built-in templates.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	for _, s := range Builtins() {
		r.Register(s)
	}
	return r
}
