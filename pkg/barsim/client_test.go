package barsim

import (
	"context"
	"net/http/httptest"
	"testing"
	"time"

	"barsim/internal/api"
	"barsim/internal/domain"
	"barsim/internal/exits"
	"barsim/internal/risk"
	"barsim/internal/store"
	"barsim/internal/util"
)

func testAPIServer(t *testing.T, bars *store.ParquetStore) *httptest.Server {
	t.Helper()
	cal, err := util.NewTradingCalendar(5)
	if err != nil {
		t.Fatalf("NewTradingCalendar: %v", err)
	}
	srv := api.NewServer(bars, nil,
		exits.DefaultRegistry(), cal, api.Options{
			Limits: risk.Limits{MaxConcurrent: 3, MinStrength: 60, RiskPercent: 0.01},
		}, nil)
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return ts
}

func emptyAPIServer(t *testing.T) *httptest.Server {
	t.Helper()
	return testAPIServer(t, store.NewParquetStore(t.TempDir()))
}

func TestListTemplates(t *testing.T) {
	ts := emptyAPIServer(t)
	c := NewClient(ts.URL)

	templates, err := c.ListTemplates(context.Background())
	if err != nil {
		t.Fatalf("ListTemplates: %v", err)
	}
	if len(templates) == 0 {
		t.Fatal("no templates returned")
	}
}

func TestListRunsEmpty(t *testing.T) {
	ts := emptyAPIServer(t)
	c := NewClient(ts.URL)

	runs, err := c.ListRuns(context.Background())
	if err != nil {
		t.Fatalf("ListRuns: %v", err)
	}
	if len(runs) != 0 {
		t.Errorf("runs = %v, want empty", runs)
	}
}

// The client's own response types must decode what the server emits.
func TestRunBacktestRoundTrip(t *testing.T) {
	bars := store.NewParquetStore(t.TempDir())

	// A Monday mid-session: 14:30 UTC is 10:30 ET.
	t0 := time.Date(2025, 6, 2, 14, 30, 0, 0, time.UTC)
	var day []domain.Bar
	for i := 0; i < 20; i++ {
		price := 10.00 + 0.01*float64(i)
		day = append(day, domain.Bar{
			Ticker:    "TEST",
			Timestamp: t0.Add(time.Duration(i) * time.Minute),
			Open:      price, High: price + 0.05, Low: price - 0.05, Close: price + 0.02,
			Volume:    1000,
			Timeframe: domain.Timeframe1Min,
		})
	}
	if err := bars.WriteBars(context.Background(), day); err != nil {
		t.Fatalf("WriteBars: %v", err)
	}

	ts := testAPIServer(t, bars)
	c := NewClient(ts.URL)

	resp, err := c.RunBacktest(context.Background(), BacktestRequest{
		Tickers:   []string{"TEST"},
		Templates: []string{"conservative"},
		Start:     "2025-06-02",
		End:       "2025-06-02",
	})
	if err != nil {
		t.Fatalf("RunBacktest: %v", err)
	}
	if resp.RunID == "" {
		t.Error("run_id missing")
	}
	if len(resp.Units) != 1 {
		t.Fatalf("units = %d, want 1", len(resp.Units))
	}
	unit := resp.Units[0]
	if unit.Ticker != "TEST" || unit.Template != "conservative" {
		t.Errorf("unit = %s/%s, want TEST/conservative", unit.Ticker, unit.Template)
	}
	if unit.Error != "" {
		t.Errorf("unit error = %q, want none", unit.Error)
	}
	if len(resp.Standings) != 1 {
		t.Fatalf("standings = %d, want 1", len(resp.Standings))
	}
	if resp.Standings[0].Template != "conservative" {
		t.Errorf("standings[0] = %s, want conservative", resp.Standings[0].Template)
	}
	if resp.Failed != 0 {
		t.Errorf("failed = %d, want 0", resp.Failed)
	}
}

func TestRunBacktestErrorSurfacesStatus(t *testing.T) {
	ts := emptyAPIServer(t)
	c := NewClient(ts.URL)

	// No bar data for the ticker: the server answers 404 and the client must
	// surface it as an error rather than decoding garbage.
	_, err := c.RunBacktest(context.Background(), BacktestRequest{
		Tickers: []string{"NODATA"},
		Start:   "2025-06-02",
	})
	if err == nil {
		t.Fatal("RunBacktest succeeded, want error for missing data")
	}
}
