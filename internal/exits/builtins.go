package exits

// Builtins returns the stock exit templates. Thresholds follow the intraday
// gap-strategy defaults these templates were tuned against; all of them can
// be overridden per run from config.
func Builtins() []Strategy {
	return []Strategy{
		mustTemplate(Params{
			// Tight stop and target, no trailing: take the base hit quickly.
			Name:          "conservative",
			StopLossPct:   0.005,
			TakeProfitPct: 0.010,
			SessionCutoff: true,
		}),
		mustTemplate(Params{
			// Wide stop, trailing after activation, scale half out at target.
			Name:              "aggressive",
			StopLossPct:       0.020,
			TakeProfitPct:     0.030,
			TrailEnabled:      true,
			ActivationBars:    3,
			ActivationMovePct: 0.010,
			TrailBufferPct:    0.002,
			PartialExitPct:    0.5,
			SessionCutoff:     true,
		}),
		mustTemplate(Params{
			// Hard time limits dominate: flat by cutoff no matter what.
			Name:          "time-based",
			StopLossPct:   0.015,
			MaxBarsHeld:   60,
			SessionCutoff: true,
		}),
		mustTemplate(Params{
			// Stops and targets sized off realized volatility.
			Name:          "volatility-adaptive",
			StopLossPct:   0.010, // fallback until ATR warms up
			ATRPeriod:     14,
			StopATRMult:   1.5,
			TargetATRMult: 3.0,
			SessionCutoff: true,
		}),
		mustTemplate(Params{
			// Pure price-action trail from the prior bar's extreme,
			// activated almost immediately.
			Name:           "price-action-trailing",
			StopLossPct:    0.015,
			TrailEnabled:   true,
			ActivationBars: 1,
			TrailBufferPct: 0.001,
			SessionCutoff:  true,
		}),
	}
}

func mustTemplate(p Params) *Template {
	t, err := NewTemplate(p)
	if err != nil {
		panic(err) // built-in params are compile-time constants
	}
	return t
}
