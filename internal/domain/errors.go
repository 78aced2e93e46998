package domain

import "errors"

// Error taxonomy for the simulation core. The split between fatal and
// recoverable is deliberate: ErrLookahead marks a programming defect that
// would silently corrupt aggregate statistics, so it aborts its unit and is
// never retried or downgraded. Everything else is handled in place and
// surfaced in output with a reason.
var (
	// ErrLookahead reports an attempt to read data beyond the current bar
	// index. Fatal for the unit.
	ErrLookahead = errors.New("lookahead violation")

	// ErrDataGap reports a missing stretch of bars. Recoverable: the unit
	// logs it and continues on the next available bar.
	ErrDataGap = errors.New("data gap")

	// ErrInvalidSignal reports a malformed signal (missing direction,
	// strength out of range). Recoverable: rejected with a reason.
	ErrInvalidSignal = errors.New("invalid signal")

	// ErrSizingFailure reports a position-size computation that produced a
	// non-positive quantity. Recoverable: treated as a no-trade.
	ErrSizingFailure = errors.New("sizing failure")

	// ErrUnitTimeout reports a simulation unit exceeding its deadline.
	// Recoverable at the batch level: the unit is marked failed.
	ErrUnitTimeout = errors.New("unit timeout")

	// ErrConfig reports invalid configuration. Fatal at startup.
	ErrConfig = errors.New("invalid config")
)
