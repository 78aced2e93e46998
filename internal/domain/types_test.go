package domain

import (
	"errors"
	"testing"
	"time"
)

func TestNewSignalRequiresDirection(t *testing.T) {
	_, err := NewSignal("AAPL", time.Now(), "", 80, nil)
	if !errors.Is(err, ErrInvalidSignal) {
		t.Fatalf("NewSignal without direction: err = %v, want ErrInvalidSignal", err)
	}

	_, err = NewSignal("AAPL", time.Now(), Direction("BUY"), 80, nil)
	if !errors.Is(err, ErrInvalidSignal) {
		t.Fatalf("NewSignal with unknown direction: err = %v, want ErrInvalidSignal", err)
	}
}

func TestNewSignalStrengthBounds(t *testing.T) {
	for _, strength := range []float64{-1, 100.5} {
		_, err := NewSignal("AAPL", time.Now(), Long, strength, nil)
		if !errors.Is(err, ErrInvalidSignal) {
			t.Errorf("NewSignal(strength=%v): err = %v, want ErrInvalidSignal", strength, err)
		}
	}

	s, err := NewSignal("AAPL", time.Now(), Short, 70, map[string]float64{"gap_pct": -3.2})
	if err != nil {
		t.Fatalf("NewSignal valid: unexpected error %v", err)
	}
	if s.Direction != Short || s.Strength != 70 {
		t.Errorf("NewSignal = %+v, want Short/70", s)
	}
}

func TestPositionUnrealizedPnL(t *testing.T) {
	long := &Position{Side: Long, EntryPrice: 10, SharesRemaining: 100}
	if got := long.UnrealizedPnL(10.50); got != 50 {
		t.Errorf("long UnrealizedPnL = %v, want 50", got)
	}

	short := &Position{Side: Short, EntryPrice: 10, SharesRemaining: 100}
	if got := short.UnrealizedPnL(9.50); got != 50 {
		t.Errorf("short UnrealizedPnL = %v, want 50", got)
	}
	if got := short.UnrealizedPnL(10.50); got != -50 {
		t.Errorf("short adverse UnrealizedPnL = %v, want -50", got)
	}
}

func TestPositionMarkToMarket(t *testing.T) {
	long := &Position{Side: Long, EntryPrice: 10, SharesRemaining: 100}
	if got := long.MarkToMarket(11); got != 1100 {
		t.Errorf("long MarkToMarket = %v, want 1100", got)
	}

	// A short's liquidation value rises as price falls: entry value plus
	// unrealized profit.
	short := &Position{Side: Short, EntryPrice: 10, SharesRemaining: 100}
	if got := short.MarkToMarket(9); got != 1100 {
		t.Errorf("short MarkToMarket = %v, want 1100", got)
	}
}
