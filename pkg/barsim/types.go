package barsim

import "time"

// The types below mirror the server's wire format field for field, so the
// client's exported surface stays importable from outside this module.

// BacktestRequest is the body of POST /api/v1/backtest.
type BacktestRequest struct {
	Tickers     []string `json:"tickers"`
	Templates   []string `json:"templates,omitempty"` // empty means all registered
	Timeframe   string   `json:"timeframe,omitempty"`
	Start       string   `json:"start"`              // YYYY-MM-DD
	End         string   `json:"end,omitempty"`      // YYYY-MM-DD, empty means end of data
	Detector    string   `json:"detector,omitempty"` // "orb" (default) or "gap-reclaim"
	InitialCash float64  `json:"initial_cash,omitempty"`
}

// Trade is one closed trade as reported by the server.
type Trade struct {
	PositionID   string    `json:"position_id"`
	Ticker       string    `json:"ticker"`
	Side         string    `json:"side"`
	Template     string    `json:"template"`
	EntryTime    time.Time `json:"entry_time"`
	EntryPrice   float64   `json:"entry_price"`
	ExitTime     time.Time `json:"exit_time"`
	ExitPrice    float64   `json:"exit_price"`
	Quantity     int64     `json:"quantity"`
	PnL          float64   `json:"pnl"`
	PnLPercent   float64   `json:"pnl_percent"`
	ExitReason   string    `json:"exit_reason"`
	HighestPrice float64   `json:"highest_price"`
	LowestPrice  float64   `json:"lowest_price"`
	BarsHeld     int       `json:"bars_held"`
}

// Summary holds the aggregate statistics for one set of closed trades.
// ProfitFactor is nil when gross losses are zero (the ratio is undefined).
type Summary struct {
	Template     string         `json:"template"`
	TotalTrades  int            `json:"total_trades"`
	Winners      int            `json:"winners"`
	Losers       int            `json:"losers"`
	WinRate      float64        `json:"win_rate"` // percent
	GrossProfit  float64        `json:"gross_profit"`
	GrossLoss    float64        `json:"gross_loss"` // absolute value
	ProfitFactor *float64       `json:"profit_factor,omitempty"`
	TotalPnL     float64        `json:"total_pnl"`
	Expectancy   float64        `json:"expectancy"` // mean PnL% per trade
	AvgWinPct    float64        `json:"avg_win_pct"`
	AvgLossPct   float64        `json:"avg_loss_pct"`
	Sharpe       float64        `json:"sharpe"`
	Sortino      float64        `json:"sortino"`
	MaxDrawdown  float64        `json:"max_drawdown"` // fraction of peak
	ExitReasons  map[string]int `json:"exit_reasons"`
	EntryBuckets map[string]int `json:"entry_buckets"`
}

// UnitResult is the outcome of one ticker × template simulation unit.
type UnitResult struct {
	Ticker     string  `json:"ticker"`
	Template   string  `json:"template"`
	Trades     []Trade `json:"trades"`
	Rejections int     `json:"rejections"`
	Summary    Summary `json:"summary"`
	Error      string  `json:"error,omitempty"`
}

// TemplateStanding is one template's aggregate across all its units, ranked
// best first in BacktestResponse.Standings.
type TemplateStanding struct {
	Template string  `json:"template"`
	Units    int     `json:"units"`
	Summary  Summary `json:"summary"`
}

// BacktestResponse is the full output of one backtest request.
type BacktestResponse struct {
	RunID     string             `json:"run_id"`
	Units     []UnitResult       `json:"units"`
	Standings []TemplateStanding `json:"standings"`
	Batches   int                `json:"batches"`
	Failed    int                `json:"failed"`
}
