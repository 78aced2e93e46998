// Package perf computes trade statistics from ordered closed trades: win
// rate, profit factor, Sharpe, Sortino, max drawdown, and the exit-reason
// and entry-time breakdowns used in run reports.
package perf

import (
	"math"
	"sort"
	"time"

	"barsim/internal/domain"
)

const tradingDaysPerYear = 252

// Summary holds the aggregate statistics for one set of closed trades. All
// fields are deterministic for a fixed trade sequence. ProfitFactor is nil
// when gross losses are zero: the ratio is undefined, never a division by
// zero or an infinity smuggled into rankings.
type Summary struct {
	Template     string                    `json:"template"`
	TotalTrades  int                       `json:"total_trades"`
	Winners      int                       `json:"winners"`
	Losers       int                       `json:"losers"`
	WinRate      float64                   `json:"win_rate"` // percent
	GrossProfit  float64                   `json:"gross_profit"`
	GrossLoss    float64                   `json:"gross_loss"` // absolute value
	ProfitFactor *float64                  `json:"profit_factor,omitempty"`
	TotalPnL     float64                   `json:"total_pnl"`
	Expectancy   float64                   `json:"expectancy"` // mean PnL% per trade
	AvgWinPct    float64                   `json:"avg_win_pct"`
	AvgLossPct   float64                   `json:"avg_loss_pct"`
	Sharpe       float64                   `json:"sharpe"`
	Sortino      float64                   `json:"sortino"`
	MaxDrawdown  float64                   `json:"max_drawdown"` // fraction of peak
	ExitReasons  map[domain.ExitReason]int `json:"exit_reasons"`
	EntryBuckets map[string]int            `json:"entry_buckets"`
}

// Compute aggregates the given closed trades. Trades must be in close order;
// initialEquity anchors the equity curve for drawdown and daily returns.
// Zero trades yields a zero Summary, never a panic.
func Compute(template string, trades []domain.Trade, initialEquity float64) Summary {
	s := Summary{
		Template:     template,
		TotalTrades:  len(trades),
		ExitReasons:  make(map[domain.ExitReason]int),
		EntryBuckets: make(map[string]int),
	}
	if len(trades) == 0 {
		return s
	}

	var sumWinPct, sumLossPct, sumPct float64
	for _, t := range trades {
		s.TotalPnL += t.PnL
		sumPct += t.PnLPercent
		switch {
		case t.PnL > 0:
			s.Winners++
			s.GrossProfit += t.PnL
			sumWinPct += t.PnLPercent
		case t.PnL < 0:
			s.Losers++
			s.GrossLoss += -t.PnL
			sumLossPct += t.PnLPercent
		}
		s.ExitReasons[t.ExitReason]++
		s.EntryBuckets[entryBucket(t.EntryTime)]++
	}

	s.WinRate = float64(s.Winners) / float64(s.TotalTrades) * 100
	s.Expectancy = sumPct / float64(s.TotalTrades)
	if s.Winners > 0 {
		s.AvgWinPct = sumWinPct / float64(s.Winners)
	}
	if s.Losers > 0 {
		s.AvgLossPct = sumLossPct / float64(s.Losers)
	}
	if s.GrossLoss > 0 {
		pf := s.GrossProfit / s.GrossLoss
		s.ProfitFactor = &pf
	}

	s.MaxDrawdown = maxDrawdown(trades, initialEquity)
	s.Sharpe, s.Sortino = riskAdjusted(dailyReturns(trades, initialEquity))
	return s
}

// maxDrawdown walks the trade-by-trade equity curve and returns the largest
// peak-to-trough decline as a fraction of the peak.
func maxDrawdown(trades []domain.Trade, initialEquity float64) float64 {
	equity := initialEquity
	peak := initialEquity
	var maxDD float64
	for _, t := range trades {
		equity += t.PnL
		if equity > peak {
			peak = equity
		}
		if peak > 0 {
			if dd := (peak - equity) / peak; dd > maxDD {
				maxDD = dd
			}
		}
	}
	return maxDD
}

// dailyReturns groups realized PnL by exit day and expresses each day as a
// simple return on the equity carried into that day.
func dailyReturns(trades []domain.Trade, initialEquity float64) []float64 {
	byDay := make(map[time.Time]float64)
	for _, t := range trades {
		day := t.ExitTime.UTC().Truncate(24 * time.Hour)
		byDay[day] += t.PnL
	}
	days := make([]time.Time, 0, len(byDay))
	for d := range byDay {
		days = append(days, d)
	}
	sort.Slice(days, func(i, j int) bool { return days[i].Before(days[j]) })

	equity := initialEquity
	returns := make([]float64, 0, len(days))
	for _, d := range days {
		if equity <= 0 {
			break
		}
		r := byDay[d] / equity
		returns = append(returns, r)
		equity += byDay[d]
	}
	return returns
}

// riskAdjusted computes annualized Sharpe and Sortino from daily returns.
// Sortino uses downside deviation only. Both are 0 when the deviation is 0.
func riskAdjusted(returns []float64) (sharpe, sortino float64) {
	if len(returns) == 0 {
		return 0, 0
	}
	var sum float64
	for _, r := range returns {
		sum += r
	}
	mean := sum / float64(len(returns))

	var variance, downVariance float64
	for _, r := range returns {
		d := r - mean
		variance += d * d
		if r < 0 {
			downVariance += r * r
		}
	}
	variance /= float64(len(returns))
	downVariance /= float64(len(returns))

	annualMean := mean * tradingDaysPerYear
	if sd := math.Sqrt(variance); sd > 0 {
		sharpe = annualMean / (sd * math.Sqrt(tradingDaysPerYear))
	}
	if dd := math.Sqrt(downVariance); dd > 0 {
		sortino = annualMean / (dd * math.Sqrt(tradingDaysPerYear))
	}
	return sharpe, sortino
}

// entryBucket assigns an entry time to the half-hour/hour buckets used in
// session timing reports.
func entryBucket(t time.Time) string {
	// Buckets are in exchange-local wall time; callers feed bars whose
	// timestamps are already session-local or UTC-consistent per unit.
	hm := t.Hour()*60 + t.Minute()
	switch {
	case hm < 10*60:
		return "09:30-10:00"
	case hm < 11*60:
		return "10:00-11:00"
	case hm < 12*60:
		return "11:00-12:00"
	case hm < 13*60:
		return "12:00-13:00"
	default:
		return "13:00+"
	}
}
