package util

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"golang.org/x/text/encoding/unicode"
)

func TestRetrySucceedsAfterFailures(t *testing.T) {
	attempts := 0
	err := Retry(context.Background(), 3, time.Millisecond, func() error {
		attempts++
		if attempts < 3 {
			return errors.New("transient")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Retry: %v", err)
	}
	if attempts != 3 {
		t.Errorf("attempts = %d, want 3", attempts)
	}
}

func TestRetryReturnsLastError(t *testing.T) {
	want := errors.New("permanent")
	err := Retry(context.Background(), 2, time.Millisecond, func() error { return want })
	if !errors.Is(err, want) {
		t.Errorf("Retry err = %v, want %v", err, want)
	}
}

func TestTradingCalendarSession(t *testing.T) {
	tc, err := NewTradingCalendar(5)
	if err != nil {
		t.Fatalf("NewTradingCalendar: %v", err)
	}

	// Tuesday 2025-10-14, 14:00 UTC = 10:00 ET.
	midSession := time.Date(2025, 10, 14, 14, 0, 0, 0, time.UTC)
	if !tc.IsMarketOpen(midSession) {
		t.Error("10:00 ET weekday should be open")
	}

	preOpen := time.Date(2025, 10, 14, 13, 0, 0, 0, time.UTC) // 9:00 ET
	if tc.IsMarketOpen(preOpen) {
		t.Error("9:00 ET should be closed")
	}

	saturday := time.Date(2025, 10, 18, 15, 0, 0, 0, time.UTC)
	if tc.IsMarketOpen(saturday) {
		t.Error("Saturday should be closed")
	}

	cutoff := tc.SessionCutoff(midSession)
	if cutoff.Hour() != 15 || cutoff.Minute() != 55 {
		t.Errorf("cutoff = %s, want 15:55 ET", cutoff.Format("15:04"))
	}
	if !cutoff.Before(tc.SessionClose(midSession)) {
		t.Error("cutoff not before session close")
	}
}

func TestReadTickerFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tickers.txt")
	content := "# universe\naapl\n\nMSFT\n googl \n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("writing file: %v", err)
	}

	tickers, err := ReadTickerFile(path)
	if err != nil {
		t.Fatalf("ReadTickerFile: %v", err)
	}
	want := []string{"AAPL", "MSFT", "GOOGL"}
	if len(tickers) != len(want) {
		t.Fatalf("tickers = %v, want %v", tickers, want)
	}
	for i := range want {
		if tickers[i] != want[i] {
			t.Errorf("tickers[%d] = %q, want %q", i, tickers[i], want[i])
		}
	}
}

func TestReadTickerFileUTF16(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tickers-utf16.txt")
	enc := unicode.UTF16(unicode.LittleEndian, unicode.UseBOM).NewEncoder()
	encoded, err := enc.Bytes([]byte("aapl\nmsft\n"))
	if err != nil {
		t.Fatalf("encoding: %v", err)
	}
	if err := os.WriteFile(path, encoded, 0o644); err != nil {
		t.Fatalf("writing file: %v", err)
	}

	tickers, err := ReadTickerFile(path)
	if err != nil {
		t.Fatalf("ReadTickerFile: %v", err)
	}
	if len(tickers) != 2 || tickers[0] != "AAPL" || tickers[1] != "MSFT" {
		t.Errorf("tickers = %v, want [AAPL MSFT]", tickers)
	}
}

func TestNewLoggerLevels(t *testing.T) {
	for _, level := range []string{"debug", "info", "warn", "error", "bogus"} {
		if l := NewLogger(level, "json"); l == nil {
			t.Fatalf("NewLogger(%q) returned nil", level)
		}
	}
	if l := NewLogger("info", "text"); l == nil {
		t.Fatal("NewLogger text format returned nil")
	}
}
