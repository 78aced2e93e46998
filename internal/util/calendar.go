package util

import (
	"fmt"
	"time"
)

// TradingCalendar provides regular-session awareness for US equities. The
// simulator uses it to derive the session cutoff for time-based exits and to
// skip signals outside regular trading hours. Exchange holidays are not
// modelled; a holiday simply has no bars, which the feed already tolerates.
type TradingCalendar struct {
	loc       *time.Location
	openHour  int
	openMin   int
	closeHour int
	closeMin  int
	cutoffMin int // minutes before close used as the session cutoff
}

// NewTradingCalendar creates a calendar for the NYSE regular session
// (9:30-16:00 America/New_York). cutoffMinutes is how many minutes before
// the close the session cutoff lands (e.g. 5 → 15:55).
func NewTradingCalendar(cutoffMinutes int) (*TradingCalendar, error) {
	loc, err := time.LoadLocation("America/New_York")
	if err != nil {
		return nil, fmt.Errorf("loading exchange timezone: %w", err)
	}
	return &TradingCalendar{
		loc:       loc,
		openHour:  9,
		openMin:   30,
		closeHour: 16,
		closeMin:  0,
		cutoffMin: cutoffMinutes,
	}, nil
}

// IsMarketOpen reports whether t falls inside the regular session on a
// weekday.
func (tc *TradingCalendar) IsMarketOpen(t time.Time) bool {
	local := t.In(tc.loc)
	if wd := local.Weekday(); wd == time.Saturday || wd == time.Sunday {
		return false
	}
	open := time.Date(local.Year(), local.Month(), local.Day(), tc.openHour, tc.openMin, 0, 0, tc.loc)
	close := time.Date(local.Year(), local.Month(), local.Day(), tc.closeHour, tc.closeMin, 0, 0, tc.loc)
	return !local.Before(open) && local.Before(close)
}

// SessionOpen returns the regular-session open of the day containing t.
func (tc *TradingCalendar) SessionOpen(t time.Time) time.Time {
	local := t.In(tc.loc)
	return time.Date(local.Year(), local.Month(), local.Day(), tc.openHour, tc.openMin, 0, 0, tc.loc)
}

// SessionClose returns the regular-session close of the day containing t.
func (tc *TradingCalendar) SessionClose(t time.Time) time.Time {
	local := t.In(tc.loc)
	return time.Date(local.Year(), local.Month(), local.Day(), tc.closeHour, tc.closeMin, 0, 0, tc.loc)
}

// SessionCutoff returns the time-exit cutoff of the day containing t:
// cutoffMinutes before the close.
func (tc *TradingCalendar) SessionCutoff(t time.Time) time.Time {
	return tc.SessionClose(t).Add(-time.Duration(tc.cutoffMin) * time.Minute)
}
