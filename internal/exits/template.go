package exits

import (
	"fmt"
	"time"

	"barsim/internal/domain"
	"barsim/internal/feed"
)

// Params is an immutable named parameter set selecting which exit rules are
// active and their thresholds. Percent fields are fractions of entry price
// (0.01 = 1%).
type Params struct {
	Name string `yaml:"name"`

	// Fixed stop/target distances as fractions of entry price. When
	// ATRPeriod > 0 the ATR-multiple fields take precedence.
	StopLossPct   float64 `yaml:"stop_loss_pct"`
	TakeProfitPct float64 `yaml:"take_profit_pct"` // 0 disables the target

	// Volatility-adaptive sizing of stop/target.
	ATRPeriod     int     `yaml:"atr_period"`
	StopATRMult   float64 `yaml:"stop_atr_mult"`
	TargetATRMult float64 `yaml:"target_atr_mult"`

	// Trailing stop. Activation happens after ActivationBars consecutive
	// favorable closes OR once the favorable move exceeds ActivationMovePct,
	// whichever comes first.
	TrailEnabled      bool    `yaml:"trail_enabled"`
	ActivationBars    int     `yaml:"activation_bars"`
	ActivationMovePct float64 `yaml:"activation_move_pct"`
	TrailBufferPct    float64 `yaml:"trail_buffer_pct"` // buffer beyond prior bar extreme

	// Time-based exits.
	MaxBarsHeld   int  `yaml:"max_bars_held"`  // 0 disables
	SessionCutoff bool `yaml:"session_cutoff"` // close at/after sessionEnd

	// Partial scale-out: fraction of the position closed when the target is
	// first reached; the remainder keeps running. 0 disables (full exit).
	PartialExitPct float64 `yaml:"partial_exit_pct"`

	// Discretionary momentum-fade override: exit after this many consecutive
	// adverse closes. 0 disables.
	MomentumFadeBars int `yaml:"momentum_fade_bars"`
}

// Validate checks the parameter set at startup.
func (p Params) Validate() error {
	if p.Name == "" {
		return fmt.Errorf("%w: template name required", domain.ErrConfig)
	}
	if p.StopLossPct <= 0 && p.ATRPeriod == 0 {
		return fmt.Errorf("%w: template %q has no stop loss", domain.ErrConfig, p.Name)
	}
	if p.ATRPeriod > 0 && p.StopATRMult <= 0 {
		return fmt.Errorf("%w: template %q: atr_period set but stop_atr_mult is not", domain.ErrConfig, p.Name)
	}
	if p.PartialExitPct < 0 || p.PartialExitPct >= 1 {
		return fmt.Errorf("%w: template %q: partial_exit_pct %.2f outside [0,1)", domain.ErrConfig, p.Name, p.PartialExitPct)
	}
	return nil
}

// Template is the Params-driven Strategy implementation. All built-in
// templates are Template values; custom templates are built from config.
type Template struct {
	params Params
}

var _ Strategy = (*Template)(nil)

// NewTemplate builds a Template from a validated parameter set.
func NewTemplate(p Params) (*Template, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return &Template{params: p}, nil
}

// Name returns the template name.
func (t *Template) Name() string { return t.params.Name }

// Params returns a copy of the template's parameter set.
func (t *Template) Params() Params { return t.params }

// InitPosition sets the initial stop and target from the entry price, using
// either fixed percentages or ATR multiples computed over already-seen bars.
func (t *Template) InitPosition(pos *domain.Position, it *feed.Iterator) error {
	stopDist := pos.EntryPrice * t.params.StopLossPct
	targetDist := pos.EntryPrice * t.params.TakeProfitPct

	if t.params.ATRPeriod > 0 {
		atr := feed.ATR(it, t.params.ATRPeriod)
		if atr > 0 {
			stopDist = atr * t.params.StopATRMult
			if t.params.TargetATRMult > 0 {
				targetDist = atr * t.params.TargetATRMult
			}
		}
		// Not enough history for ATR yet: fall back to the fixed
		// percentages so the position is never stopless.
	}
	if stopDist <= 0 {
		return fmt.Errorf("%w: template %q produced non-positive stop distance", domain.ErrConfig, t.params.Name)
	}

	if pos.Side == domain.Long {
		pos.StopLoss = pos.EntryPrice - stopDist
		if targetDist > 0 {
			pos.TakeProfit = pos.EntryPrice + targetDist
		}
	} else {
		pos.StopLoss = pos.EntryPrice + stopDist
		if targetDist > 0 {
			pos.TakeProfit = pos.EntryPrice - targetDist
		}
	}
	pos.State = domain.StateNoTrail
	pos.HighestPrice = pos.EntryPrice
	pos.LowestPrice = pos.EntryPrice
	return nil
}

// Evaluate runs the per-bar state machine. Rule priority is fixed: stop
// loss, take profit, trailing stop, time exits, discretionary override.
// First match wins; ties on the same bar resolve by this priority, never by
// intra-bar timing, which a bar cannot represent.
func (t *Template) Evaluate(pos *domain.Position, it *feed.Iterator, sessionEnd time.Time) (*Exit, error) {
	bar, err := it.Current()
	if err != nil {
		return nil, err
	}
	pos.BarsHeld++

	// Trailing stop ratchets at bar open from the prior bar's extreme,
	// before any exit test on this bar.
	if pos.State == domain.StateTrailing {
		t.ratchetTrail(pos, it)
	}

	defer t.updateMarks(pos, bar)

	// 1. Stop loss, tested against the bar's adverse extreme. If the bar
	// gapped through the stop, fill at the worse of stop or open.
	if hit, price := stopFill(pos.Side, pos.StopLoss, bar); hit {
		return t.exitAll(pos, bar, price, domain.ExitStopLoss), nil
	}

	// 2. Take profit, tested against the favorable extreme. Gaps beyond the
	// target fill at the open (the better price).
	if pos.TakeProfit > 0 {
		if hit, price := targetFill(pos.Side, pos.TakeProfit, bar); hit {
			if t.params.PartialExitPct > 0 && t.params.PartialExitPct < 1 && pos.SharesRemaining == pos.Quantity {
				// The remainder rides: retire the target so it cannot fire
				// again, and move straight into trailing so the scale-out can
				// capture anything beyond the first target.
				pos.TakeProfit = 0
				if t.params.TrailEnabled {
					pos.State = domain.StateTrailing
				}
				return t.exitPartial(pos, bar, price), nil
			}
			return t.exitAll(pos, bar, price, domain.ExitTakeProfit), nil
		}
	}

	// 3. Trailing stop, once active. Same gap policy as the fixed stop.
	if pos.State == domain.StateTrailing && pos.TrailingStop > 0 {
		if hit, price := stopFill(pos.Side, pos.TrailingStop, bar); hit {
			return t.exitAll(pos, bar, price, domain.ExitTrailingStop), nil
		}
	}

	// 4. Time-based exits, at the bar close.
	if t.params.SessionCutoff && !bar.Timestamp.Before(sessionEnd) {
		return t.exitAll(pos, bar, bar.Close, domain.ExitSessionClose), nil
	}
	if t.params.MaxBarsHeld > 0 && pos.BarsHeld >= t.params.MaxBarsHeld {
		return t.exitAll(pos, bar, bar.Close, domain.ExitTimeLimit), nil
	}

	// 5. Discretionary override: momentum fade.
	if t.params.MomentumFadeBars > 0 {
		if faded, err := momentumFaded(pos.Side, it, t.params.MomentumFadeBars); err != nil {
			return nil, err
		} else if faded {
			return t.exitAll(pos, bar, bar.Close, domain.ExitDiscretionary), nil
		}
	}

	t.maybeActivateTrail(pos, it, bar)
	return nil, nil
}

// exitAll closes the remaining shares.
func (t *Template) exitAll(pos *domain.Position, bar domain.Bar, price float64, reason domain.ExitReason) *Exit {
	return &Exit{
		Time:   bar.Timestamp,
		Price:  price,
		Shares: pos.SharesRemaining,
		Reason: reason,
	}
}

// exitPartial scales out the configured fraction at the first target touch.
func (t *Template) exitPartial(pos *domain.Position, bar domain.Bar, price float64) *Exit {
	shares := int64(float64(pos.Quantity) * t.params.PartialExitPct)
	if shares < 1 {
		shares = 1
	}
	if shares >= pos.SharesRemaining {
		shares = pos.SharesRemaining
	}
	return &Exit{
		Time:   bar.Timestamp,
		Price:  price,
		Shares: shares,
		Reason: domain.ExitTakeProfit,
	}
}

// ratchetTrail tightens the trailing stop from the prior bar's extreme. The
// stop is monotonic: it never loosens.
func (t *Template) ratchetTrail(pos *domain.Position, it *feed.Iterator) {
	prev, err := it.At(it.Index() - 1)
	if err != nil {
		return // first bar of the series, nothing to trail from
	}
	if pos.Side == domain.Long {
		candidate := prev.Low * (1 - t.params.TrailBufferPct)
		if candidate > pos.TrailingStop {
			pos.TrailingStop = candidate
		}
	} else {
		candidate := prev.High * (1 + t.params.TrailBufferPct)
		if pos.TrailingStop == 0 || candidate < pos.TrailingStop {
			pos.TrailingStop = candidate
		}
	}
}

// maybeActivateTrail transitions OPEN_NO_TRAIL → OPEN_TRAILING once either
// activation condition holds at the close of the current bar. The trail
// becomes effective on the next bar.
func (t *Template) maybeActivateTrail(pos *domain.Position, it *feed.Iterator, bar domain.Bar) {
	if !t.params.TrailEnabled || pos.State != domain.StateNoTrail {
		return
	}

	favorable := false
	if prev, err := it.At(it.Index() - 1); err == nil {
		if pos.Side == domain.Long {
			favorable = bar.Close > prev.Close
		} else {
			favorable = bar.Close < prev.Close
		}
	}
	if favorable {
		pos.FavorableBars++
	} else {
		pos.FavorableBars = 0
	}

	byBars := t.params.ActivationBars > 0 && pos.FavorableBars >= t.params.ActivationBars
	byMove := false
	if t.params.ActivationMovePct > 0 {
		if pos.Side == domain.Long {
			byMove = bar.Close >= pos.EntryPrice*(1+t.params.ActivationMovePct)
		} else {
			byMove = bar.Close <= pos.EntryPrice*(1-t.params.ActivationMovePct)
		}
	}
	if byBars || byMove {
		pos.State = domain.StateTrailing
	}
}

// updateMarks maintains the high/low water marks from the bar extremes.
func (t *Template) updateMarks(pos *domain.Position, bar domain.Bar) {
	if bar.High > pos.HighestPrice {
		pos.HighestPrice = bar.High
	}
	if bar.Low < pos.LowestPrice {
		pos.LowestPrice = bar.Low
	}
}

// ---------------------------------------------------------------------------
// Fill policy
// ---------------------------------------------------------------------------

// stopFill reports whether the stop level was touched on the bar and at what
// price the exit fills. Policy: if the bar opened through the stop (a gap),
// the fill is the open — the worse of stop-or-open — because the stop price
// no longer existed when the market opened. Otherwise the fill is the stop
// itself, never the bar's more adverse extreme.
func stopFill(side domain.Direction, stop float64, bar domain.Bar) (bool, float64) {
	if stop <= 0 {
		return false, 0
	}
	if side == domain.Long {
		if bar.Open <= stop {
			return true, bar.Open
		}
		if bar.Low <= stop {
			return true, stop
		}
	} else {
		if bar.Open >= stop {
			return true, bar.Open
		}
		if bar.High >= stop {
			return true, stop
		}
	}
	return false, 0
}

// targetFill mirrors stopFill for the favorable extreme. A gap through the
// target fills at the open, which is the better price for the position.
func targetFill(side domain.Direction, target float64, bar domain.Bar) (bool, float64) {
	if side == domain.Long {
		if bar.Open >= target {
			return true, bar.Open
		}
		if bar.High >= target {
			return true, target
		}
	} else {
		if bar.Open <= target {
			return true, bar.Open
		}
		if bar.Low <= target {
			return true, target
		}
	}
	return false, 0
}

// momentumFaded reports whether the last n closes moved against the position
// consecutively, using only already-seen bars.
func momentumFaded(side domain.Direction, it *feed.Iterator, n int) (bool, error) {
	bars := it.Window(n + 1)
	if len(bars) < n+1 {
		return false, nil
	}
	for i := 1; i < len(bars); i++ {
		adverse := bars[i].Close < bars[i-1].Close
		if side == domain.Short {
			adverse = bars[i].Close > bars[i-1].Close
		}
		if !adverse {
			return false, nil
		}
	}
	return true, nil
}
