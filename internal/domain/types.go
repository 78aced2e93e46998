// Package domain defines the core value types shared across the simulator:
// bars, signals, positions, trades, and the error taxonomy that governs how
// simulation failures propagate.
package domain

import (
	"fmt"
	"time"
)

// ---------------------------------------------------------------------------
// Market data
// ---------------------------------------------------------------------------

// Timeframe identifies the sampling interval of a bar series.
type Timeframe string

const (
	Timeframe1Min  Timeframe = "1m"
	Timeframe5Min  Timeframe = "5m"
	Timeframe15Min Timeframe = "15m"
	TimeframeDaily Timeframe = "1d"
)

// Bar is one immutable OHLCV sample for a ticker at a fixed interval.
type Bar struct {
	Ticker    string
	Timestamp time.Time
	Open      float64
	High      float64
	Low       float64
	Close     float64
	Volume    int64
	Timeframe Timeframe
}

// Typical returns the typical price (H+L+C)/3, used for VWAP accumulation.
func (b Bar) Typical() float64 {
	return (b.High + b.Low + b.Close) / 3
}

// ---------------------------------------------------------------------------
// Signals
// ---------------------------------------------------------------------------

// Direction is the side of a candidate trade. It is mandatory on every
// signal: there is deliberately no default, so a detector that forgets to set
// it fails at construction instead of silently trading the wrong side.
type Direction string

const (
	Long  Direction = "LONG"
	Short Direction = "SHORT"
)

// Signal is an immutable candidate trade opportunity emitted by a
// PatternDetector. Metrics carries detector-specific values (gap percent,
// relative volume, ...); the core never assumes specific keys beyond what the
// active template declares it needs.
type Signal struct {
	Ticker     string
	SignalTime time.Time
	Direction  Direction
	Strength   float64 // pattern strength, 0-100
	Metrics    map[string]float64
}

// NewSignal validates and constructs a Signal. Direction is required and
// strength must lie in [0, 100]; anything else is ErrInvalidSignal.
func NewSignal(ticker string, at time.Time, dir Direction, strength float64, metrics map[string]float64) (Signal, error) {
	if ticker == "" {
		return Signal{}, fmt.Errorf("%w: empty ticker", ErrInvalidSignal)
	}
	if dir != Long && dir != Short {
		return Signal{}, fmt.Errorf("%w: direction is mandatory, got %q", ErrInvalidSignal, dir)
	}
	if strength < 0 || strength > 100 {
		return Signal{}, fmt.Errorf("%w: strength %.2f outside [0,100]", ErrInvalidSignal, strength)
	}
	return Signal{
		Ticker:     ticker,
		SignalTime: at,
		Direction:  dir,
		Strength:   strength,
		Metrics:    metrics,
	}, nil
}

// Rejection records a signal that failed a risk check, so that "no signal"
// and "signal rejected" stay distinguishable in output.
type Rejection struct {
	Signal Signal
	Reason string
}

// ---------------------------------------------------------------------------
// Positions and trades
// ---------------------------------------------------------------------------

// PositionState tracks where a position sits in the exit state machine.
type PositionState string

const (
	StateNoTrail  PositionState = "OPEN_NO_TRAIL"
	StateTrailing PositionState = "OPEN_TRAILING"
	StateClosed   PositionState = "CLOSED"
)

// Position is a live holding, exclusively owned and mutated by the exit
// engine for its lifetime. SharesRemaining supports scale-out: the position
// persists until it reaches zero, at which point exactly one Trade snapshot
// is taken and the position is discarded.
type Position struct {
	ID              string
	Ticker          string
	Side            Direction
	EntryTime       time.Time
	EntryPrice      float64
	Quantity        int64 // shares at entry
	SharesRemaining int64
	StopLoss        float64
	TakeProfit      float64 // 0 disables the target
	TrailingStop    float64 // 0 until trailing activates
	State           PositionState
	HighestPrice    float64 // high-water mark since entry
	LowestPrice     float64 // low-water mark since entry
	FavorableBars   int     // consecutive favorable closes, for trail activation
	BarsHeld        int
	RealizedPnL     float64 // accumulated over partial exits
}

// MarkToMarket returns the position's liquidation value for the remaining
// shares at the given price.
func (p *Position) MarkToMarket(price float64) float64 {
	if p.Side == Short {
		return float64(p.SharesRemaining) * (2*p.EntryPrice - price)
	}
	return float64(p.SharesRemaining) * price
}

// UnrealizedPnL returns open profit for the remaining shares at price.
func (p *Position) UnrealizedPnL(price float64) float64 {
	if p.Side == Short {
		return float64(p.SharesRemaining) * (p.EntryPrice - price)
	}
	return float64(p.SharesRemaining) * (price - p.EntryPrice)
}

// ExitReason explains why a trade closed. The per-bar evaluation order fixes
// the priority between reasons that fire on the same bar.
type ExitReason string

const (
	ExitStopLoss      ExitReason = "STOP_LOSS"
	ExitTakeProfit    ExitReason = "TAKE_PROFIT"
	ExitTrailingStop  ExitReason = "TRAILING_STOP"
	ExitTimeLimit     ExitReason = "TIME_LIMIT"
	ExitSessionClose  ExitReason = "SESSION_CLOSE"
	ExitDiscretionary ExitReason = "DISCRETIONARY"
	ExitEndOfData     ExitReason = "END_OF_DATA"
)

// Trade is the immutable, append-only record snapshotted exactly once when a
// position fully closes.
type Trade struct {
	PositionID   string     `json:"position_id"`
	Ticker       string     `json:"ticker"`
	Side         Direction  `json:"side"`
	Template     string     `json:"template"`
	EntryTime    time.Time  `json:"entry_time"`
	EntryPrice   float64    `json:"entry_price"`
	ExitTime     time.Time  `json:"exit_time"`
	ExitPrice    float64    `json:"exit_price"` // share-weighted average across partial exits
	Quantity     int64      `json:"quantity"`
	PnL          float64    `json:"pnl"`
	PnLPercent   float64    `json:"pnl_percent"`
	ExitReason   ExitReason `json:"exit_reason"` // reason of the final exit
	HighestPrice float64    `json:"highest_price"`
	LowestPrice  float64    `json:"lowest_price"`
	BarsHeld     int        `json:"bars_held"`
}

// ---------------------------------------------------------------------------
// Run configuration
// ---------------------------------------------------------------------------

// RunConfig is the explicit per-unit configuration value. It replaces any
// ambient or globally mutable run state: every simulation unit receives its
// own copy and nothing else.
type RunConfig struct {
	Ticker         string
	Timeframe      Timeframe
	Start          time.Time
	End            time.Time
	InitialCash    float64
	EntryDelayBars int // bars between signal confirmation and fill; min 1
}
