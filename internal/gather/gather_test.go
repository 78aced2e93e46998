package gather

import (
	"context"
	"errors"
	"testing"
	"time"

	"barsim/internal/domain"
)

func TestIntradayBarGathererName(t *testing.T) {
	g := NewIntradayBarGatherer("key", "secret", "https://data.alpaca.markets",
		nil, []string{"AAPL"}, domain.Timeframe1Min,
		DateRange{Start: time.Now().AddDate(0, -1, 0), End: time.Now()}, 100, 200)
	if got := g.Name(); got != "intraday" {
		t.Errorf("IntradayBarGatherer.Name() = %q, want %q", got, "intraday")
	}
}

func TestIntradayBarGathererRejectsUnknownTimeframe(t *testing.T) {
	g := NewIntradayBarGatherer("key", "secret", "",
		nil, []string{"AAPL"}, domain.Timeframe("7m"), DateRange{}, 100, 200)
	err := g.Run(context.Background())
	if !errors.Is(err, domain.ErrConfig) {
		t.Errorf("Run() err = %v, want ErrConfig", err)
	}
}
