// Package batch runs many simulation units in fixed-size batches, bounded
// concurrency only, and aggregates per-template results ranked by profit
// factor.
package batch

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"barsim/internal/domain"
	"barsim/internal/perf"
	"barsim/internal/sim"
)

// DefaultBatchSize bounds how many units run concurrently.
const DefaultBatchSize = 5

// Job is one named simulation unit awaiting execution.
type Job struct {
	Name string // "<ticker>/<template>"
	Unit sim.Unit
}

// Options configures the orchestrator.
type Options struct {
	BatchSize   int           // ≤ 0 means DefaultBatchSize
	UnitTimeout time.Duration // 0 disables the per-unit deadline
}

// Report collects every unit's outcome plus the cross-template aggregation.
type Report struct {
	Results []sim.Result // in job order
	Batches int
	Failed  int
}

// TemplateStanding is the aggregate performance of one template across all
// its units, the unit of ranking in the comparison table.
type TemplateStanding struct {
	Template string       `json:"template"`
	Units    int          `json:"units"`
	Summary  perf.Summary `json:"summary"`
}

// Orchestrator executes jobs batch by batch. Each batch is awaited in full
// before the next starts; there is never unbounded parallelism.
type Orchestrator struct {
	opts Options
	log  *slog.Logger
}

// New creates an Orchestrator.
func New(opts Options, log *slog.Logger) *Orchestrator {
	if opts.BatchSize <= 0 {
		opts.BatchSize = DefaultBatchSize
	}
	if log == nil {
		log = slog.Default()
	}
	return &Orchestrator{opts: opts, log: log.With("component", "batch")}
}

// Run executes all jobs. A unit that times out or aborts is marked failed
// and the batch continues; unit errors never abort the run. Results land in
// job order regardless of completion order.
func (o *Orchestrator) Run(ctx context.Context, jobs []Job) *Report {
	report := &Report{Results: make([]sim.Result, len(jobs))}

	for lo := 0; lo < len(jobs); lo += o.opts.BatchSize {
		hi := lo + o.opts.BatchSize
		if hi > len(jobs) {
			hi = len(jobs)
		}
		report.Batches++
		o.log.Info("starting batch",
			"batch", report.Batches, "units", hi-lo, "total", len(jobs))

		var wg sync.WaitGroup
		for i := lo; i < hi; i++ {
			wg.Add(1)
			go func(idx int) {
				defer wg.Done()
				report.Results[idx] = o.runOne(ctx, jobs[idx])
			}(i)
		}
		wg.Wait()
	}

	for _, r := range report.Results {
		if r.Err != nil {
			report.Failed++
		}
	}
	return report
}

func (o *Orchestrator) runOne(ctx context.Context, job Job) sim.Result {
	unitCtx := ctx
	if o.opts.UnitTimeout != 0 {
		var cancel context.CancelFunc
		unitCtx, cancel = context.WithTimeout(ctx, o.opts.UnitTimeout)
		defer cancel()
	}
	res := sim.Run(unitCtx, job.Unit, o.log.With("job", job.Name))
	if res.Err != nil {
		o.log.Error("unit failed", "job", job.Name, "err", res.Err)
	}
	return res
}

// ByTemplate aggregates successful units per template and ranks them by
// profit factor, best first. An undefined profit factor means zero gross
// losses: with positive PnL that is a perfect record and ranks first, with
// none it ranks last.
func (r *Report) ByTemplate() []TemplateStanding {
	type group struct {
		trades []domain.Trade
		cash   float64
		units  int
	}
	groups := make(map[string]*group)
	for _, res := range r.Results {
		if res.Err != nil {
			continue // failed units stay out of aggregate statistics
		}
		g := groups[res.Template]
		if g == nil {
			g = &group{}
			groups[res.Template] = g
		}
		g.trades = append(g.trades, res.Trades...)
		g.cash += res.InitialCash
		g.units++
	}

	standings := make([]TemplateStanding, 0, len(groups))
	for name, g := range groups {
		sort.SliceStable(g.trades, func(i, j int) bool {
			return g.trades[i].ExitTime.Before(g.trades[j].ExitTime)
		})
		standings = append(standings, TemplateStanding{
			Template: name,
			Units:    g.units,
			Summary:  perf.Compute(name, g.trades, g.cash),
		})
	}

	sort.SliceStable(standings, func(i, j int) bool {
		return betterStanding(standings[i].Summary, standings[j].Summary)
	})
	return standings
}

// Winner returns the top-ranked template, or nil when no unit succeeded.
func (r *Report) Winner() *TemplateStanding {
	standings := r.ByTemplate()
	if len(standings) == 0 {
		return nil
	}
	return &standings[0]
}

// betterStanding ranks by profit factor descending, undefined last, total
// PnL as the tiebreaker.
func betterStanding(a, b perf.Summary) bool {
	switch {
	case a.ProfitFactor != nil && b.ProfitFactor != nil:
		if *a.ProfitFactor != *b.ProfitFactor {
			return *a.ProfitFactor > *b.ProfitFactor
		}
	case a.ProfitFactor != nil:
		// An undefined factor means zero losses: with any profit that is a
		// perfect record and ranks first, with none it ranks last.
		return !(b.TotalPnL > 0)
	case b.ProfitFactor != nil:
		return a.TotalPnL > 0
	}
	return a.TotalPnL > b.TotalPnL
}
