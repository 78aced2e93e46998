package sim

import (
	"context"
	"errors"
	"testing"
	"time"

	"barsim/internal/domain"
	"barsim/internal/exits"
	"barsim/internal/feed"
	"barsim/internal/risk"
	"barsim/internal/util"
)

// 14:00 UTC on 2025-10-14 is 10:00 ET, mid-session.
var t0 = time.Date(2025, 10, 14, 14, 0, 0, 0, time.UTC)

func bar(ts time.Time, o, h, l, c float64) domain.Bar {
	return domain.Bar{
		Ticker: "TEST", Timestamp: ts,
		Open: o, High: h, Low: l, Close: c,
		Volume: 1000, Timeframe: domain.Timeframe1Min,
	}
}

func testUnit(t *testing.T, bars []domain.Bar, signals []domain.Signal, p exits.Params, limits risk.Limits) Unit {
	t.Helper()
	series, err := feed.NewSeries("TEST", domain.Timeframe1Min, bars)
	if err != nil {
		t.Fatalf("NewSeries: %v", err)
	}
	tpl, err := exits.NewTemplate(p)
	if err != nil {
		t.Fatalf("NewTemplate: %v", err)
	}
	cal, err := util.NewTradingCalendar(5)
	if err != nil {
		t.Fatalf("NewTradingCalendar: %v", err)
	}
	return Unit{
		Series:   series,
		Strategy: tpl,
		Signals:  signals,
		Limits:   limits,
		Calendar: cal,
		Run: domain.RunConfig{
			Ticker:         "TEST",
			Timeframe:      domain.Timeframe1Min,
			Start:          bars[0].Timestamp,
			InitialCash:    100000,
			EntryDelayBars: 1,
		},
	}
}

func baseLimits() risk.Limits {
	return risk.Limits{
		MaxConcurrent: 3,
		MinStrength:   70,
		RiskPercent:   0.01,
	}
}

func stopTargetParams() exits.Params {
	return exits.Params{Name: "test", StopLossPct: 0.02, TakeProfitPct: 0.04}
}

func mustSignal(t *testing.T, at time.Time, strength float64) domain.Signal {
	t.Helper()
	sig, err := domain.NewSignal("TEST", at, domain.Long, strength, nil)
	if err != nil {
		t.Fatalf("NewSignal: %v", err)
	}
	return sig
}

// The canonical scenario: LONG fills at 10.00, stop 9.80, target 10.40; a
// bar with low 9.75 and high 10.10 exits STOP_LOSS at 9.80, not 9.75.
func TestRunStopLossScenario(t *testing.T) {
	bars := []domain.Bar{
		bar(t0, 10.00, 10.02, 9.98, 10.00),
		bar(t0.Add(time.Minute), 10.00, 10.05, 9.95, 10.02),
		bar(t0.Add(2*time.Minute), 10.00, 10.10, 9.75, 9.90),
	}
	u := testUnit(t, bars, []domain.Signal{mustSignal(t, t0, 85)}, stopTargetParams(), baseLimits())

	res := Run(context.Background(), u, nil)
	if res.Err != nil {
		t.Fatalf("Run: %v", res.Err)
	}
	if len(res.Trades) != 1 {
		t.Fatalf("trades = %d, want 1", len(res.Trades))
	}
	trade := res.Trades[0]
	if trade.EntryPrice != 10.00 {
		t.Errorf("entry = %v, want next bar open 10.00", trade.EntryPrice)
	}
	if trade.ExitReason != domain.ExitStopLoss {
		t.Errorf("reason = %s, want STOP_LOSS", trade.ExitReason)
	}
	if trade.ExitPrice != 9.80 {
		t.Errorf("exit = %v, want 9.80 (stop, not bar low)", trade.ExitPrice)
	}
	// floor(100000 × 0.01 / 0.20) = 5000 shares.
	if trade.Quantity != 5000 {
		t.Errorf("quantity = %d, want 5000", trade.Quantity)
	}
	if trade.PnL != -1000 {
		t.Errorf("pnl = %v, want -1000", trade.PnL)
	}
}

func TestRunWeakSignalRejected(t *testing.T) {
	bars := []domain.Bar{
		bar(t0, 10.00, 10.02, 9.98, 10.00),
		bar(t0.Add(time.Minute), 10.00, 10.05, 9.95, 10.02),
	}
	u := testUnit(t, bars, []domain.Signal{mustSignal(t, t0, 40)}, stopTargetParams(), baseLimits())

	res := Run(context.Background(), u, nil)
	if res.Err != nil {
		t.Fatalf("Run: %v", res.Err)
	}
	if len(res.Trades) != 0 {
		t.Fatalf("trades = %d, want 0", len(res.Trades))
	}
	if len(res.Rejections) != 1 {
		t.Fatalf("rejections = %d, want 1", len(res.Rejections))
	}
	if res.Rejections[0].Reason != "below minimum pattern_strength" {
		t.Errorf("reason = %q, want %q", res.Rejections[0].Reason, "below minimum pattern_strength")
	}
}

func TestRunEndOfDataForceClose(t *testing.T) {
	bars := []domain.Bar{
		bar(t0, 10.00, 10.02, 9.98, 10.00),
		bar(t0.Add(time.Minute), 10.00, 10.05, 9.95, 10.02),
		bar(t0.Add(2*time.Minute), 10.02, 10.08, 10.00, 10.06),
	}
	u := testUnit(t, bars, []domain.Signal{mustSignal(t, t0, 85)}, stopTargetParams(), baseLimits())

	res := Run(context.Background(), u, nil)
	if res.Err != nil {
		t.Fatalf("Run: %v", res.Err)
	}
	if len(res.Trades) != 1 {
		t.Fatalf("trades = %d, want 1 forced close", len(res.Trades))
	}
	trade := res.Trades[0]
	if trade.ExitReason != domain.ExitEndOfData {
		t.Errorf("reason = %s, want END_OF_DATA", trade.ExitReason)
	}
	if trade.ExitPrice != 10.06 {
		t.Errorf("exit = %v, want final close 10.06", trade.ExitPrice)
	}
}

// Identical unit and config must produce identical trade sequences.
func TestRunDeterministic(t *testing.T) {
	bars := []domain.Bar{
		bar(t0, 10.00, 10.02, 9.98, 10.00),
		bar(t0.Add(time.Minute), 10.00, 10.05, 9.95, 10.02),
		bar(t0.Add(2*time.Minute), 10.02, 10.45, 10.00, 10.42),
		bar(t0.Add(3*time.Minute), 10.42, 10.48, 10.30, 10.35),
	}
	signals := []domain.Signal{mustSignal(t, t0, 85)}

	a := Run(context.Background(), testUnit(t, bars, signals, stopTargetParams(), baseLimits()), nil)
	b := Run(context.Background(), testUnit(t, bars, signals, stopTargetParams(), baseLimits()), nil)
	if a.Err != nil || b.Err != nil {
		t.Fatalf("Run errs: %v, %v", a.Err, b.Err)
	}
	if len(a.Trades) != len(b.Trades) {
		t.Fatalf("trade counts differ: %d vs %d", len(a.Trades), len(b.Trades))
	}
	for i := range a.Trades {
		x, y := a.Trades[i], b.Trades[i]
		if x.EntryPrice != y.EntryPrice || x.ExitPrice != y.ExitPrice ||
			x.PnL != y.PnL || x.ExitReason != y.ExitReason || !x.ExitTime.Equal(y.ExitTime) {
			t.Errorf("trade %d differs: %+v vs %+v", i, x, y)
		}
	}
}

// A series extending past the configured end must not leak post-window bars
// into the forced close.
func TestRunForceCloseStopsAtEndDate(t *testing.T) {
	bars := []domain.Bar{
		bar(t0, 10.00, 10.02, 9.98, 10.00),
		bar(t0.Add(time.Minute), 10.00, 10.05, 9.95, 10.02),
		bar(t0.Add(2*time.Minute), 10.02, 10.08, 10.00, 10.06),
		bar(t0.Add(3*time.Minute), 12.00, 12.00, 12.00, 12.00), // past End
	}
	u := testUnit(t, bars, []domain.Signal{mustSignal(t, t0, 85)}, stopTargetParams(), baseLimits())
	u.Run.End = t0.Add(2 * time.Minute)

	res := Run(context.Background(), u, nil)
	if res.Err != nil {
		t.Fatalf("Run: %v", res.Err)
	}
	if len(res.Trades) != 1 {
		t.Fatalf("trades = %d, want 1 forced close", len(res.Trades))
	}
	trade := res.Trades[0]
	if trade.ExitPrice != 10.06 {
		t.Errorf("exit = %v, want 10.06 (last in-range close, not 12.00)", trade.ExitPrice)
	}
	if !trade.ExitTime.Equal(t0.Add(2 * time.Minute)) {
		t.Errorf("exit time = %v, want %v", trade.ExitTime, t0.Add(2*time.Minute))
	}
}

func TestRunMissingCalendarIsConfigError(t *testing.T) {
	bars := []domain.Bar{
		bar(t0, 10.00, 10.02, 9.98, 10.00),
		bar(t0.Add(time.Minute), 10.00, 10.05, 9.95, 10.02),
	}
	u := testUnit(t, bars, []domain.Signal{mustSignal(t, t0, 85)}, stopTargetParams(), baseLimits())
	u.Calendar = nil

	res := Run(context.Background(), u, nil)
	if !errors.Is(res.Err, domain.ErrConfig) {
		t.Fatalf("err = %v, want ErrConfig for missing calendar", res.Err)
	}
}

func TestRunCancelledContextIsUnitTimeout(t *testing.T) {
	bars := []domain.Bar{
		bar(t0, 10.00, 10.02, 9.98, 10.00),
		bar(t0.Add(time.Minute), 10.00, 10.05, 9.95, 10.02),
	}
	u := testUnit(t, bars, nil, stopTargetParams(), baseLimits())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	res := Run(ctx, u, nil)
	if !errors.Is(res.Err, domain.ErrUnitTimeout) {
		t.Fatalf("err = %v, want ErrUnitTimeout", res.Err)
	}
	if len(res.Trades) != 0 {
		t.Error("cancelled unit leaked partial trades")
	}
}

// A value planted in a bar after the exit must not change the outcome
// (adversarial lookahead property at the unit level).
func TestRunUnaffectedByFutureBars(t *testing.T) {
	base := []domain.Bar{
		bar(t0, 10.00, 10.02, 9.98, 10.00),
		bar(t0.Add(time.Minute), 10.00, 10.05, 9.95, 10.02),
		bar(t0.Add(2*time.Minute), 10.00, 10.10, 9.75, 9.90), // stop exit here
		bar(t0.Add(3*time.Minute), 9.90, 9.95, 9.85, 9.92),
	}
	signals := []domain.Signal{mustSignal(t, t0, 85)}

	poisoned := make([]domain.Bar, len(base))
	copy(poisoned, base)
	poisoned[3].High = 999
	poisoned[3].Close = 999

	a := Run(context.Background(), testUnit(t, base, signals, stopTargetParams(), baseLimits()), nil)
	b := Run(context.Background(), testUnit(t, poisoned, signals, stopTargetParams(), baseLimits()), nil)
	if a.Err != nil || b.Err != nil {
		t.Fatalf("Run errs: %v, %v", a.Err, b.Err)
	}
	if len(a.Trades) != 1 || len(b.Trades) != 1 {
		t.Fatalf("trades = %d/%d, want 1/1", len(a.Trades), len(b.Trades))
	}
	if a.Trades[0].ExitPrice != b.Trades[0].ExitPrice || a.Trades[0].PnL != b.Trades[0].PnL {
		t.Errorf("future bar changed a past decision: %+v vs %+v", a.Trades[0], b.Trades[0])
	}
}
