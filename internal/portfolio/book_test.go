package portfolio

import (
	"math"
	"testing"
	"time"

	"barsim/internal/domain"
	"barsim/internal/exits"
)

func openLong(t *testing.T, b *Book, id string, qty int64, entry float64) *domain.Position {
	t.Helper()
	pos := &domain.Position{
		ID: id, Ticker: "TEST", Side: domain.Long,
		EntryTime:  time.Date(2025, 10, 14, 14, 0, 0, 0, time.UTC),
		EntryPrice: entry, Quantity: qty, SharesRemaining: qty,
		State: domain.StateNoTrail, HighestPrice: entry, LowestPrice: entry,
	}
	if err := b.Open(pos, "conservative"); err != nil {
		t.Fatalf("Open: %v", err)
	}
	return pos
}

func TestEquityReconciles(t *testing.T) {
	b := NewBook(10000)
	openLong(t, b, "p1", 100, 10.00) // reserves 1000

	if b.Cash() != 9000 {
		t.Fatalf("cash after open = %v, want 9000", b.Cash())
	}

	// equity = cash + mark-to-market, at several prices.
	for _, px := range []float64{9.50, 10.00, 11.25} {
		want := 9000 + 100*px
		got := b.Equity(func(string) float64 { return px })
		if math.Abs(got-want) > 1e-9 {
			t.Errorf("equity at %v = %v, want %v", px, got, want)
		}
	}
}

func TestFullExitProducesOneTrade(t *testing.T) {
	b := NewBook(10000)
	pos := openLong(t, b, "p1", 100, 10.00)

	exitTime := time.Date(2025, 10, 14, 14, 30, 0, 0, time.UTC)
	trade, err := b.ApplyExit(pos.ID, &exits.Exit{
		Time: exitTime, Price: 10.40, Shares: 100, Reason: domain.ExitTakeProfit,
	})
	if err != nil {
		t.Fatalf("ApplyExit: %v", err)
	}
	if trade == nil {
		t.Fatal("full exit returned nil trade")
	}
	if trade.PnL != 40 {
		t.Errorf("trade PnL = %v, want 40", trade.PnL)
	}
	if math.Abs(trade.PnLPercent-4.0) > 1e-9 {
		t.Errorf("trade PnLPercent = %v, want 4.0", trade.PnLPercent)
	}
	if trade.ExitReason != domain.ExitTakeProfit {
		t.Errorf("trade reason = %s, want TAKE_PROFIT", trade.ExitReason)
	}
	if b.OpenCount() != 0 {
		t.Error("position not destroyed after full close")
	}
	if len(b.Trades()) != 1 {
		t.Fatalf("trades = %d, want exactly 1", len(b.Trades()))
	}
	if b.Cash() != 10040 {
		t.Errorf("cash after close = %v, want 10040", b.Cash())
	}

	// A second exit against the destroyed position must fail.
	if _, err := b.ApplyExit(pos.ID, &exits.Exit{Time: exitTime, Price: 10, Shares: 1}); err == nil {
		t.Error("ApplyExit on closed position did not fail")
	}
}

func TestPartialExitsAccumulateIntoOneTrade(t *testing.T) {
	b := NewBook(10000)
	pos := openLong(t, b, "p1", 100, 10.00)

	t1 := time.Date(2025, 10, 14, 14, 10, 0, 0, time.UTC)
	trade, err := b.ApplyExit(pos.ID, &exits.Exit{Time: t1, Price: 10.40, Shares: 50, Reason: domain.ExitTakeProfit})
	if err != nil {
		t.Fatalf("partial ApplyExit: %v", err)
	}
	if trade != nil {
		t.Fatal("partial exit produced a trade")
	}
	if pos.SharesRemaining != 50 {
		t.Errorf("SharesRemaining = %d, want 50", pos.SharesRemaining)
	}
	if b.OpenCount() != 1 {
		t.Error("position destroyed on partial exit")
	}

	t2 := t1.Add(10 * time.Minute)
	trade, err = b.ApplyExit(pos.ID, &exits.Exit{Time: t2, Price: 10.20, Shares: 50, Reason: domain.ExitTrailingStop})
	if err != nil {
		t.Fatalf("final ApplyExit: %v", err)
	}
	if trade == nil {
		t.Fatal("final exit returned nil trade")
	}
	// Share-weighted exit: (10.40*50 + 10.20*50) / 100.
	if math.Abs(trade.ExitPrice-10.30) > 1e-9 {
		t.Errorf("weighted exit price = %v, want 10.30", trade.ExitPrice)
	}
	if math.Abs(trade.PnL-30) > 1e-9 {
		t.Errorf("trade PnL = %v, want 30", trade.PnL)
	}
	if trade.ExitReason != domain.ExitTrailingStop {
		t.Errorf("final reason = %s, want TRAILING_STOP", trade.ExitReason)
	}
	if len(b.Trades()) != 1 {
		t.Fatalf("trades = %d, want exactly 1", len(b.Trades()))
	}
}

func TestForceCloseAllDeterministicOrder(t *testing.T) {
	b := NewBook(100000)
	openLong(t, b, "p2", 100, 10.00)
	openLong(t, b, "p1", 100, 20.00)
	openLong(t, b, "p3", 100, 30.00)

	at := time.Date(2025, 10, 14, 20, 0, 0, 0, time.UTC)
	trades, err := b.ForceCloseAll(at, func(string) float64 { return 25 })
	if err != nil {
		t.Fatalf("ForceCloseAll: %v", err)
	}
	if len(trades) != 3 {
		t.Fatalf("closed %d trades, want 3", len(trades))
	}
	for i, want := range []string{"p1", "p2", "p3"} {
		if trades[i].PositionID != want {
			t.Errorf("trades[%d] = %s, want %s", i, trades[i].PositionID, want)
		}
		if trades[i].ExitReason != domain.ExitEndOfData {
			t.Errorf("trades[%d] reason = %s, want END_OF_DATA", i, trades[i].ExitReason)
		}
	}
	if b.OpenCount() != 0 {
		t.Error("positions remain after ForceCloseAll")
	}
}

func TestShortPnLAndEquity(t *testing.T) {
	b := NewBook(10000)
	pos := &domain.Position{
		ID: "s1", Ticker: "TEST", Side: domain.Short,
		EntryTime:  time.Date(2025, 10, 14, 14, 0, 0, 0, time.UTC),
		EntryPrice: 10.00, Quantity: 100, SharesRemaining: 100,
		State: domain.StateNoTrail, HighestPrice: 10, LowestPrice: 10,
	}
	if err := b.Open(pos, "conservative"); err != nil {
		t.Fatalf("Open: %v", err)
	}

	// Price drops: equity rises by the unrealized gain.
	got := b.Equity(func(string) float64 { return 9.00 })
	if math.Abs(got-10100) > 1e-9 {
		t.Errorf("short equity at 9.00 = %v, want 10100", got)
	}

	trade, err := b.ApplyExit(pos.ID, &exits.Exit{
		Time: pos.EntryTime.Add(time.Hour), Price: 9.00, Shares: 100, Reason: domain.ExitTakeProfit,
	})
	if err != nil {
		t.Fatalf("ApplyExit: %v", err)
	}
	if trade.PnL != 100 {
		t.Errorf("short PnL = %v, want 100", trade.PnL)
	}
	if b.Cash() != 10100 {
		t.Errorf("cash after short close = %v, want 10100", b.Cash())
	}
}

func TestRollDayResetsDailyRealized(t *testing.T) {
	b := NewBook(10000)
	pos := openLong(t, b, "p1", 100, 10.00)
	day1 := time.Date(2025, 10, 14, 14, 0, 0, 0, time.UTC)

	b.RollDay(day1)
	if _, err := b.ApplyExit(pos.ID, &exits.Exit{Time: day1, Price: 9.50, Shares: 100, Reason: domain.ExitStopLoss}); err != nil {
		t.Fatalf("ApplyExit: %v", err)
	}
	if b.DailyRealized() != -50 {
		t.Errorf("daily realized = %v, want -50", b.DailyRealized())
	}

	if rolled := b.RollDay(day1.Add(2 * time.Hour)); rolled {
		t.Error("RollDay rolled within the same day")
	}
	if rolled := b.RollDay(day1.Add(24 * time.Hour)); !rolled {
		t.Error("RollDay did not roll on the next day")
	}
	if b.DailyRealized() != 0 {
		t.Errorf("daily realized after roll = %v, want 0", b.DailyRealized())
	}
}
