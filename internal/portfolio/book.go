// Package portfolio tracks open positions, cash, and equity for one
// simulation unit. A Book is never shared across units.
package portfolio

import (
	"fmt"
	"sort"
	"time"

	"barsim/internal/domain"
	"barsim/internal/exits"
)

// Book is the position and cash ledger for a single unit. Opening a position
// reserves its notional value from cash (shorts reserve the same margin as
// longs), so the equity identity equity = cash + Σ mark-to-market holds at
// every checkpoint for both sides.
type Book struct {
	cash          float64
	open          map[string]*slot
	trades        []domain.Trade
	dailyRealized float64
	day           time.Time
}

// slot pairs a live position with the running exit accumulation needed to
// snapshot a single Trade once the position fully closes.
type slot struct {
	pos          *domain.Position
	template     string
	closedShares int64
	proceeds     float64 // Σ exitPrice × shares over partial exits
	lastReason   domain.ExitReason
	lastExitTime time.Time
}

// NewBook creates a Book with the given starting cash.
func NewBook(cash float64) *Book {
	return &Book{
		cash: cash,
		open: make(map[string]*slot),
	}
}

// Open registers a freshly approved position and reserves its notional from
// cash.
func (b *Book) Open(pos *domain.Position, template string) error {
	if _, exists := b.open[pos.ID]; exists {
		return fmt.Errorf("position %s already open", pos.ID)
	}
	notional := float64(pos.Quantity) * pos.EntryPrice
	if notional > b.cash {
		return fmt.Errorf("insufficient cash: need %.2f, have %.2f", notional, b.cash)
	}
	b.cash -= notional
	b.open[pos.ID] = &slot{pos: pos, template: template}
	return nil
}

// ApplyExit books a (possibly partial) exit fill against a position. When
// the last share closes, the position is converted into exactly one
// immutable Trade and destroyed; the Trade is returned. Partial fills return
// nil.
func (b *Book) ApplyExit(posID string, exit *exits.Exit) (*domain.Trade, error) {
	s, ok := b.open[posID]
	if !ok {
		return nil, fmt.Errorf("position %s not open", posID)
	}
	pos := s.pos
	if exit.Shares <= 0 || exit.Shares > pos.SharesRemaining {
		return nil, fmt.Errorf("exit of %d shares against %d remaining", exit.Shares, pos.SharesRemaining)
	}

	var pnl float64
	if pos.Side == domain.Long {
		pnl = float64(exit.Shares) * (exit.Price - pos.EntryPrice)
	} else {
		pnl = float64(exit.Shares) * (pos.EntryPrice - exit.Price)
	}

	// Release the reserved notional plus the realized result.
	b.cash += float64(exit.Shares)*pos.EntryPrice + pnl
	b.dailyRealized += pnl
	pos.RealizedPnL += pnl
	pos.SharesRemaining -= exit.Shares

	s.closedShares += exit.Shares
	s.proceeds += exit.Price * float64(exit.Shares)
	s.lastReason = exit.Reason
	s.lastExitTime = exit.Time

	if pos.SharesRemaining > 0 {
		return nil, nil
	}

	pos.State = domain.StateClosed
	trade := domain.Trade{
		PositionID:   pos.ID,
		Ticker:       pos.Ticker,
		Side:         pos.Side,
		Template:     s.template,
		EntryTime:    pos.EntryTime,
		EntryPrice:   pos.EntryPrice,
		ExitTime:     s.lastExitTime,
		ExitPrice:    s.proceeds / float64(s.closedShares),
		Quantity:     pos.Quantity,
		PnL:          pos.RealizedPnL,
		PnLPercent:   pos.RealizedPnL / (float64(pos.Quantity) * pos.EntryPrice) * 100,
		ExitReason:   s.lastReason,
		HighestPrice: pos.HighestPrice,
		LowestPrice:  pos.LowestPrice,
		BarsHeld:     pos.BarsHeld,
	}
	delete(b.open, pos.ID)
	b.trades = append(b.trades, trade)
	return &trade, nil
}

// ForceCloseAll closes every remaining position at the given price, used at
// end of data. It returns the resulting trades.
func (b *Book) ForceCloseAll(at time.Time, price func(ticker string) float64) ([]domain.Trade, error) {
	// Deterministic close order regardless of map iteration.
	ids := make([]string, 0, len(b.open))
	for id := range b.open {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	var closed []domain.Trade
	for _, id := range ids {
		s := b.open[id]
		exit := &exits.Exit{
			Time:   at,
			Price:  price(s.pos.Ticker),
			Shares: s.pos.SharesRemaining,
			Reason: domain.ExitEndOfData,
		}
		trade, err := b.ApplyExit(id, exit)
		if err != nil {
			return nil, err
		}
		if trade != nil {
			closed = append(closed, *trade)
		}
	}
	return closed, nil
}

// Cash returns the free cash balance.
func (b *Book) Cash() float64 { return b.cash }

// Equity returns cash plus the mark-to-market value of all open positions at
// the supplied prices.
func (b *Book) Equity(price func(ticker string) float64) float64 {
	eq := b.cash
	for _, s := range b.open {
		eq += s.pos.MarkToMarket(price(s.pos.Ticker))
	}
	return eq
}

// Exposure returns the mark-to-market value of open positions only.
func (b *Book) Exposure(price func(ticker string) float64) float64 {
	var exp float64
	for _, s := range b.open {
		exp += s.pos.MarkToMarket(price(s.pos.Ticker))
	}
	return exp
}

// OpenPositions returns the live positions, still owned by the book, in
// entry order so per-bar evaluation stays deterministic.
func (b *Book) OpenPositions() []*domain.Position {
	out := make([]*domain.Position, 0, len(b.open))
	for _, s := range b.open {
		out = append(out, s.pos)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].EntryTime.Equal(out[j].EntryTime) {
			return out[i].EntryTime.Before(out[j].EntryTime)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// OpenCount returns the number of open positions.
func (b *Book) OpenCount() int { return len(b.open) }

// Trades returns the closed trades in close order.
func (b *Book) Trades() []domain.Trade { return b.trades }

// DailyRealized returns realized PnL since the last RollDay.
func (b *Book) DailyRealized() float64 { return b.dailyRealized }

// RollDay resets the daily realized PnL counter when the simulated calendar
// day changes. Returns true on a day boundary.
func (b *Book) RollDay(ts time.Time) bool {
	day := ts.UTC().Truncate(24 * time.Hour)
	if b.day.IsZero() {
		b.day = day
		return false
	}
	if day.After(b.day) {
		b.day = day
		b.dailyRealized = 0
		return true
	}
	return false
}
