// Package risk gates trade entries with sizing and exposure rules and a
// daily-loss circuit breaker. Every rejected signal is recorded with its
// reason so "no signal" and "signal rejected" remain distinguishable
// downstream.
package risk

import (
	"fmt"
	"log/slog"
	"math"

	"barsim/internal/domain"
)

// Reason strings for rejections. These are stable output, not log text.
const (
	ReasonBelowMinStrength = "below minimum pattern_strength"
	ReasonCircuitBreaker   = "daily loss circuit breaker tripped"
	ReasonMaxConcurrent    = "max concurrent positions reached"
	ReasonExposureCap      = "exposure cap exceeded"
	ReasonCorrelationCap   = "correlated position cap reached"
	ReasonSizingFailure    = "sizing produced non-positive quantity"
	ReasonInvalidSignal    = "invalid signal"
	ReasonOutsideSession   = "outside trading session"
	ReasonNoStop           = "no usable stop for entry"
	ReasonInsufficientCash = "insufficient cash for entry"
)

// Limits is the risk parameter set for one simulation unit.
type Limits struct {
	MaxDollarsPerTrade float64 `yaml:"max_dollars_per_trade"` // 0 disables the cap
	MaxExposurePct     float64 `yaml:"max_exposure_pct"`      // fraction of equity, 0 disables
	MaxConcurrent      int     `yaml:"max_concurrent"`
	MinStrength        float64 `yaml:"min_strength"`
	RiskPercent        float64 `yaml:"risk_percent"`        // equity fraction risked per trade
	DailyLossLimitPct  float64 `yaml:"daily_loss_limit_pct"` // fraction of initial equity, 0 disables
	MaxPerTicker       int     `yaml:"max_per_ticker"`       // correlation cap, 0 disables
}

// Validate checks the limit set at startup.
func (l Limits) Validate() error {
	if l.RiskPercent <= 0 || l.RiskPercent > 1 {
		return fmt.Errorf("%w: risk_percent %.4f outside (0,1]", domain.ErrConfig, l.RiskPercent)
	}
	if l.MaxConcurrent <= 0 {
		return fmt.Errorf("%w: max_concurrent must be positive", domain.ErrConfig)
	}
	if l.MinStrength < 0 || l.MinStrength > 100 {
		return fmt.Errorf("%w: min_strength %.2f outside [0,100]", domain.ErrConfig, l.MinStrength)
	}
	return nil
}

// BookState is the portfolio snapshot a gate decision is made against.
type BookState struct {
	Equity         float64
	InitialEquity  float64
	Exposure       float64
	OpenCount      int
	OpenSameTicker int
	DailyRealized  float64
}

// Manager applies the entry gates for one unit. It is not safe for
// concurrent use; each unit owns its own Manager.
type Manager struct {
	limits     Limits
	rejections []domain.Rejection
	halted     bool
	log        *slog.Logger
}

// NewManager creates a Manager with the given limits.
func NewManager(limits Limits, log *slog.Logger) *Manager {
	if log == nil {
		log = slog.Default()
	}
	return &Manager{limits: limits, log: log.With("component", "risk")}
}

// Evaluate runs all entry gates against the signal. On approval it returns
// the position size; on rejection it returns the recorded Rejection. Gates
// run in a fixed order and the first failure wins.
func (m *Manager) Evaluate(sig domain.Signal, entryPrice, stopDistance float64, st BookState) (int64, *domain.Rejection) {
	if sig.Direction != domain.Long && sig.Direction != domain.Short {
		return 0, m.reject(sig, ReasonInvalidSignal)
	}
	if sig.Strength < m.limits.MinStrength {
		return 0, m.reject(sig, ReasonBelowMinStrength)
	}
	if m.breached(st) {
		return 0, m.reject(sig, ReasonCircuitBreaker)
	}
	if st.OpenCount >= m.limits.MaxConcurrent {
		return 0, m.reject(sig, ReasonMaxConcurrent)
	}
	if m.limits.MaxPerTicker > 0 && st.OpenSameTicker >= m.limits.MaxPerTicker {
		return 0, m.reject(sig, ReasonCorrelationCap)
	}

	qty := m.size(st.Equity, entryPrice, stopDistance)
	if qty <= 0 {
		return 0, m.reject(sig, ReasonSizingFailure)
	}

	if m.limits.MaxExposurePct > 0 {
		if st.Exposure+float64(qty)*entryPrice > m.limits.MaxExposurePct*st.Equity {
			return 0, m.reject(sig, ReasonExposureCap)
		}
	}
	return qty, nil
}

// size computes quantity = floor(equity × riskPercent / stopDistance),
// capped by the max-dollars-per-trade limit.
func (m *Manager) size(equity, entryPrice, stopDistance float64) int64 {
	if stopDistance <= 0 || entryPrice <= 0 {
		return 0
	}
	qty := int64(math.Floor(equity * m.limits.RiskPercent / stopDistance))
	if m.limits.MaxDollarsPerTrade > 0 {
		capQty := int64(math.Floor(m.limits.MaxDollarsPerTrade / entryPrice))
		if capQty < qty {
			qty = capQty
		}
	}
	return qty
}

// breached checks the daily-loss circuit breaker. Once tripped, entries stay
// halted for the rest of the session even if PnL recovers.
func (m *Manager) breached(st BookState) bool {
	if m.halted {
		return true
	}
	if m.limits.DailyLossLimitPct <= 0 {
		return false
	}
	if st.DailyRealized <= -m.limits.DailyLossLimitPct*st.InitialEquity {
		m.halted = true
		m.log.Warn("daily loss circuit breaker tripped",
			"daily_realized", st.DailyRealized,
			"limit_pct", m.limits.DailyLossLimitPct)
		return true
	}
	return false
}

// Halted reports whether the circuit breaker is tripped.
func (m *Manager) Halted() bool { return m.halted }

// ResetSession clears the circuit breaker on a new trading day.
func (m *Manager) ResetSession() { m.halted = false }

// RecordRejection records a rejection decided outside the gate pipeline
// (e.g. a fill bar landing outside the trading session), so those signals
// stay visible in output too.
func (m *Manager) RecordRejection(sig domain.Signal, reason string) {
	m.reject(sig, reason)
}

// Rejections returns every recorded rejection, in order.
func (m *Manager) Rejections() []domain.Rejection { return m.rejections }

func (m *Manager) reject(sig domain.Signal, reason string) *domain.Rejection {
	r := domain.Rejection{Signal: sig, Reason: reason}
	m.rejections = append(m.rejections, r)
	m.log.Debug("signal rejected",
		"ticker", sig.Ticker, "time", sig.SignalTime, "reason", reason)
	return &r
}
