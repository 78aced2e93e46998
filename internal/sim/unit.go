// Package sim runs one simulation unit: a single ticker × exit template ×
// date range replayed bar by bar against its own portfolio. Units are fully
// independent; parallelism only exists across units, in internal/batch.
package sim

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"

	"github.com/google/uuid"

	"barsim/internal/domain"
	"barsim/internal/exits"
	"barsim/internal/feed"
	"barsim/internal/perf"
	"barsim/internal/portfolio"
	"barsim/internal/risk"
	"barsim/internal/scanner"
	"barsim/internal/util"
)

// Unit bundles everything one simulation run needs. Signals may come from a
// pre-supplied list (external source), a PatternDetector, or both.
type Unit struct {
	Series   *feed.Series
	Strategy exits.Strategy
	Signals  []domain.Signal
	Detector scanner.PatternDetector
	Limits   risk.Limits
	Run      domain.RunConfig
	Calendar *util.TradingCalendar
}

// Result is the complete output of one unit. Err is set when the unit
// aborted (lookahead defect, timeout); partial state is discarded with the
// unit and never aggregated.
type Result struct {
	Ticker      string
	Template    string
	Trades      []domain.Trade
	Rejections  []domain.Rejection
	Summary     perf.Summary
	InitialCash float64
	FinalCash   float64
	Err         error
}

// pendingEntry is a confirmed signal waiting for its fill bar. Entries
// always fill at a later bar's open: a close-confirmed pattern cannot fill
// at a price only knowable after the close.
type pendingEntry struct {
	signal  domain.Signal
	fillIdx int
}

// Run replays the unit bar by bar. The loop itself never suspends; ctx is
// checked at bar boundaries only, so cancellation (the per-unit timeout)
// surfaces as ErrUnitTimeout without leaving shared state behind.
func Run(ctx context.Context, u Unit, log *slog.Logger) Result {
	if log == nil {
		log = slog.Default()
	}
	log = log.With("ticker", u.Run.Ticker, "template", u.Strategy.Name())

	res := Result{Ticker: u.Run.Ticker, Template: u.Strategy.Name(), InitialCash: u.Run.InitialCash}

	if err := u.Limits.Validate(); err != nil {
		res.Err = err
		return res
	}
	if u.Calendar == nil {
		res.Err = fmt.Errorf("%w: unit has no trading calendar", domain.ErrConfig)
		return res
	}
	delay := u.Run.EntryDelayBars
	if delay < 1 {
		delay = 1
	}

	book := portfolio.NewBook(u.Run.InitialCash)
	riskMgr := risk.NewManager(u.Limits, log)
	it := feed.NewIterator(u.Series)

	var pending []pendingEntry
	nextSignal := 0
	var lastBar domain.Bar
	haveBar := false

	for {
		select {
		case <-ctx.Done():
			res.Err = fmt.Errorf("%w: %v", domain.ErrUnitTimeout, ctx.Err())
			return res
		default:
		}

		bar, ok := it.Advance()
		if !ok {
			break
		}

		if bar.Timestamp.Before(u.Run.Start) {
			continue // warmup bars: indicators may read them, trading may not
		}
		if !u.Run.End.IsZero() && bar.Timestamp.After(u.Run.End) {
			break
		}
		// Recorded only for in-range bars, so a series extending past End
		// still force-closes at the last bar inside the window.
		lastBar, haveBar = bar, true

		if book.RollDay(bar.Timestamp) {
			riskMgr.ResetSession()
		}

		// 1. Fill pending entries at this bar's open.
		pending = fillPending(pending, it, bar, u, book, riskMgr)

		// 2. Evaluate exits for open positions.
		sessionEnd := u.Calendar.SessionCutoff(bar.Timestamp)
		for _, pos := range book.OpenPositions() {
			exit, err := u.Strategy.Evaluate(pos, it, sessionEnd)
			if err != nil {
				res.Err = abortOrWrap(err)
				return res
			}
			if exit == nil {
				continue
			}
			// A fill outside the triggering bar's range is a price the market
			// never printed; classify it with lookahead defects and abort.
			if exit.Price < bar.Low || exit.Price > bar.High {
				res.Err = fmt.Errorf("%w: exit fill %.4f outside bar range [%.4f, %.4f] at %s",
					domain.ErrLookahead, exit.Price, bar.Low, bar.High, bar.Timestamp)
				return res
			}
			if _, err := book.ApplyExit(pos.ID, exit); err != nil {
				res.Err = err
				return res
			}
		}

		// 3. Collect newly confirmed signals; they fill no earlier than the
		// next bar's open.
		for nextSignal < len(u.Signals) && !u.Signals[nextSignal].SignalTime.After(bar.Timestamp) {
			pending = append(pending, pendingEntry{signal: u.Signals[nextSignal], fillIdx: it.Index() + delay})
			nextSignal++
		}
		if u.Detector != nil {
			detected, err := u.Detector.OnBar(it)
			if err != nil {
				res.Err = abortOrWrap(err)
				return res
			}
			for _, sig := range detected {
				pending = append(pending, pendingEntry{signal: sig, fillIdx: it.Index() + delay})
			}
		}

		// Equity checkpoint: the identity equity = cash + Σ mark-to-market
		// must reconcile on every bar.
		if err := checkEquity(book, bar, u.Run.InitialCash); err != nil {
			res.Err = err
			return res
		}
	}

	// Forced end-of-data close at the final bar's close.
	if haveBar && book.OpenCount() > 0 {
		if _, err := book.ForceCloseAll(lastBar.Timestamp, func(string) float64 { return lastBar.Close }); err != nil {
			res.Err = err
			return res
		}
	}

	res.Trades = book.Trades()
	res.Rejections = riskMgr.Rejections()
	res.FinalCash = book.Cash()
	res.Summary = perf.Compute(u.Strategy.Name(), res.Trades, u.Run.InitialCash)
	log.Info("unit finished",
		"trades", len(res.Trades),
		"rejections", len(res.Rejections),
		"final_cash", res.FinalCash)
	return res
}

// fillPending opens positions for pending entries whose fill bar arrived.
// The fill price is the bar's open: the only price achievable for an order
// placed after the prior bar's close.
func fillPending(pending []pendingEntry, it *feed.Iterator, bar domain.Bar, u Unit, book *portfolio.Book, riskMgr *risk.Manager) []pendingEntry {
	remaining := pending[:0]
	for _, p := range pending {
		if p.fillIdx > it.Index() {
			remaining = append(remaining, p)
			continue
		}

		// No new entries outside the session or past the cutoff.
		if !u.Calendar.IsMarketOpen(bar.Timestamp) || !bar.Timestamp.Before(u.Calendar.SessionCutoff(bar.Timestamp)) {
			riskMgr.RecordRejection(p.signal, risk.ReasonOutsideSession)
			continue
		}

		entryPrice := bar.Open
		pos := &domain.Position{
			ID:         uuid.NewString(),
			Ticker:     p.signal.Ticker,
			Side:       p.signal.Direction,
			EntryTime:  bar.Timestamp,
			EntryPrice: entryPrice,
			State:      domain.StateNoTrail,
		}
		if err := u.Strategy.InitPosition(pos, it); err != nil {
			riskMgr.RecordRejection(p.signal, risk.ReasonNoStop)
			continue
		}
		stopDistance := math.Abs(entryPrice - pos.StopLoss)

		st := risk.BookState{
			Equity:        book.Equity(func(string) float64 { return entryPrice }),
			InitialEquity: u.Run.InitialCash,
			Exposure:      book.Exposure(func(string) float64 { return entryPrice }),
			OpenCount:     book.OpenCount(),
			DailyRealized: book.DailyRealized(),
		}
		for _, open := range book.OpenPositions() {
			if open.Ticker == p.signal.Ticker {
				st.OpenSameTicker++
			}
		}

		qty, rejection := riskMgr.Evaluate(p.signal, entryPrice, stopDistance, st)
		if rejection != nil {
			continue // recorded by the manager
		}
		pos.Quantity = qty
		pos.SharesRemaining = qty
		pos.HighestPrice = entryPrice
		pos.LowestPrice = entryPrice
		if err := book.Open(pos, u.Strategy.Name()); err != nil {
			// Cash already committed to other positions; treat as no-trade.
			riskMgr.RecordRejection(p.signal, risk.ReasonInsufficientCash)
			continue
		}
	}
	return remaining
}

// checkEquity reconciles the book's equity against an independently derived
// value: initial cash plus all realized and unrealized PnL. A drift beyond
// float tolerance means the ledger leaked money somewhere.
func checkEquity(book *portfolio.Book, bar domain.Bar, initialCash float64) error {
	price := func(string) float64 { return bar.Close }
	equity := book.Equity(price)

	expected := initialCash
	for _, t := range book.Trades() {
		expected += t.PnL
	}
	for _, pos := range book.OpenPositions() {
		expected += pos.RealizedPnL + pos.UnrealizedPnL(bar.Close)
	}

	if math.Abs(equity-expected) > 1e-6*math.Max(1, math.Abs(expected)) {
		return fmt.Errorf("equity reconciliation failed at %s: book %.6f, derived %.6f",
			bar.Timestamp, equity, expected)
	}
	return nil
}

// abortOrWrap preserves the fatal lookahead classification, wrapping other
// errors as-is.
func abortOrWrap(err error) error {
	if errors.Is(err, domain.ErrLookahead) {
		return err
	}
	return fmt.Errorf("unit aborted: %w", err)
}
