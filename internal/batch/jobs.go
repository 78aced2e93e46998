package batch

import (
	"context"
	"fmt"
	"time"

	"barsim/internal/domain"
	"barsim/internal/exits"
	"barsim/internal/feed"
	"barsim/internal/risk"
	"barsim/internal/scanner"
	"barsim/internal/sim"
	"barsim/internal/store"
	"barsim/internal/util"
)

// JobSpec describes a batch to assemble: the ticker universe crossed with the
// requested exit templates over one date window.
type JobSpec struct {
	Tickers        []string
	Templates      []exits.Strategy
	Timeframe      domain.Timeframe
	Start          time.Time
	End            time.Time
	InitialCash    float64
	EntryDelayBars int
	Detector       string // "" uses stored signals instead of a detector
	Limits         risk.Limits
	Calendar       *util.TradingCalendar
}

// warmupDays of extra bars are loaded before the run start so indicator
// lookbacks have history on the first tradable bar.
const warmupDays = 3

// BuildJobs loads bar data for every ticker and assembles one Job per
// ticker × template. Tickers with no bars in the window are skipped. Each
// unit gets its own detector instance; detectors carry per-session state and
// must never be shared.
func BuildJobs(ctx context.Context, bars store.BarStore, signals store.SignalStore, spec JobSpec) ([]Job, error) {
	if len(spec.Templates) == 0 {
		return nil, fmt.Errorf("%w: no exit templates selected", domain.ErrConfig)
	}
	if _, err := newDetector(spec.Detector); err != nil {
		return nil, err
	}

	var jobs []Job
	for _, ticker := range spec.Tickers {
		loadStart := spec.Start.AddDate(0, 0, -warmupDays)
		loadEnd := spec.End
		if loadEnd.IsZero() {
			loadEnd = time.Now()
		}

		tickerBars, err := bars.ReadBars(ctx, ticker, spec.Timeframe, loadStart, loadEnd)
		if err != nil {
			return nil, fmt.Errorf("loading bars for %s: %w", ticker, err)
		}
		if len(tickerBars) == 0 {
			continue
		}

		series, err := feed.NewSeries(ticker, spec.Timeframe, tickerBars)
		if err != nil {
			return nil, fmt.Errorf("building series for %s: %w", ticker, err)
		}

		var stored []domain.Signal
		if spec.Detector == "" && signals != nil {
			stored, err = signals.ListSignals(ctx, ticker, spec.Start, loadEnd)
			if err != nil {
				return nil, fmt.Errorf("loading signals for %s: %w", ticker, err)
			}
		}

		for _, tpl := range spec.Templates {
			detector, err := newDetector(spec.Detector)
			if err != nil {
				return nil, err
			}
			jobs = append(jobs, Job{
				Name: ticker + "/" + tpl.Name(),
				Unit: sim.Unit{
					Series:   series,
					Strategy: tpl,
					Signals:  stored,
					Detector: detector,
					Limits:   spec.Limits,
					Calendar: spec.Calendar,
					Run: domain.RunConfig{
						Ticker:         ticker,
						Timeframe:      spec.Timeframe,
						Start:          spec.Start,
						End:            spec.End,
						InitialCash:    spec.InitialCash,
						EntryDelayBars: spec.EntryDelayBars,
					},
				},
			})
		}
	}
	return jobs, nil
}

// newDetector instantiates a fresh detector by name.
func newDetector(name string) (scanner.PatternDetector, error) {
	switch name {
	case "":
		return nil, nil
	case "orb":
		return scanner.NewORBreakout(6), nil
	case "gap-reclaim":
		return scanner.NewGapReclaim(0.02), nil
	default:
		return nil, fmt.Errorf("%w: unknown detector %q", domain.ErrConfig, name)
	}
}
