package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"
	"text/tabwriter"

	"github.com/google/uuid"

	"barsim/internal/batch"
	"barsim/internal/config"
	"barsim/internal/domain"
	"barsim/internal/exits"
	"barsim/internal/risk"
	"barsim/internal/store"
	"barsim/internal/util"
)

func main() {
	cfgPath := flag.String("config", "", "config file path (default config/barsim.yaml if present)")
	tickersFlag := flag.String("tickers", "", "comma-separated ticker list (overrides config)")
	tickersFile := flag.String("tickers-file", "", "file with one ticker per line")
	templatesFlag := flag.String("templates", "", "comma-separated template names (default all)")
	detector := flag.String("detector", "orb", `signal source: "orb", "gap-reclaim", or "signals" for stored signals`)
	startFlag := flag.String("start", "", "start date YYYY-MM-DD (overrides config)")
	endFlag := flag.String("end", "", "end date YYYY-MM-DD (overrides config)")
	flag.Parse()

	cfg, err := loadConfig(*cfgPath)
	if err != nil {
		log.Fatalf("loading config: %v", err)
	}

	logger := util.NewLogger(cfg.Logging.Level, cfg.Logging.Format)
	util.SetDefault(logger)

	tickers, err := resolveTickers(cfg, *tickersFlag, *tickersFile)
	if err != nil {
		log.Fatalf("resolving tickers: %v", err)
	}
	if len(tickers) == 0 {
		log.Fatal("no tickers: use -tickers, -tickers-file, or run.tickers in config")
	}

	if *startFlag != "" {
		cfg.Run.Start = *startFlag
	}
	if *endFlag != "" {
		cfg.Run.End = *endFlag
	}
	if cfg.Run.Start == "" {
		log.Fatal("no start date: use -start or run.start in config")
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("invalid config: %v", err)
	}

	registry := buildRegistry(cfg)
	templates, err := selectTemplates(registry, *templatesFlag)
	if err != nil {
		log.Fatalf("selecting templates: %v", err)
	}

	calendar, err := util.NewTradingCalendar(cfg.Run.CutoffMinutes)
	if err != nil {
		log.Fatalf("building calendar: %v", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	bars, closeBars, err := openBarStore(ctx, cfg)
	if err != nil {
		log.Fatalf("opening bar store: %v", err)
	}
	defer closeBars()

	var results *store.SQLiteStore
	if cfg.Storage.SQLitePath != "" {
		results, err = store.NewSQLiteStore(cfg.Storage.SQLitePath)
		if err != nil {
			log.Fatalf("opening sqlite store: %v", err)
		}
		defer results.Close()
	}

	detectorName := *detector
	var signals store.SignalStore
	if detectorName == "signals" {
		if results == nil {
			log.Fatal("-detector signals requires storage.sqlite_path")
		}
		detectorName = ""
		signals = results
	}

	jobs, err := batch.BuildJobs(ctx, bars, signals, batch.JobSpec{
		Tickers:        tickers,
		Templates:      templates,
		Timeframe:      domain.Timeframe(cfg.Run.Timeframe),
		Start:          cfg.StartTime(),
		End:            cfg.EndTime(),
		InitialCash:    cfg.Run.InitialCash,
		EntryDelayBars: cfg.Run.EntryDelayBars,
		Detector:       detectorName,
		Limits:         resolveLimits(cfg),
		Calendar:       calendar,
	})
	if err != nil {
		log.Fatalf("building jobs: %v", err)
	}
	if len(jobs) == 0 {
		log.Fatal("no bar data for any requested ticker")
	}

	orch := batch.New(batch.Options{
		BatchSize:   cfg.Batch.BatchSize,
		UnitTimeout: cfg.Batch.UnitTimeout,
	}, logger)
	report := orch.Run(ctx, jobs)

	if results != nil {
		runID := uuid.NewString()
		for _, res := range report.Results {
			if res.Err != nil {
				continue
			}
			key := runID + "/" + res.Ticker + "/" + res.Template
			if err := results.SaveRun(ctx, key, res.Trades, res.Rejections, res.Summary); err != nil {
				logger.Error("persisting run", "run", key, "err", err)
			}
		}
		fmt.Printf("run %s saved to %s\n\n", runID, cfg.Storage.SQLitePath)
	}

	printReport(report)
	if report.Failed > 0 {
		os.Exit(1)
	}
}

// loadConfig loads the given path, the default path if it exists, or built-in
// defaults.
func loadConfig(path string) (*config.Config, error) {
	if path == "" {
		path = "config/barsim.yaml"
		if p := os.Getenv("BARSIM_CONFIG"); p != "" {
			path = p
		}
		if _, err := os.Stat(path); err != nil {
			return config.Default(), nil
		}
	}
	return config.Load(path)
}

func resolveTickers(cfg *config.Config, flagList, file string) ([]string, error) {
	if file != "" {
		return util.ReadTickerFile(file)
	}
	if flagList != "" {
		var tickers []string
		for _, t := range strings.Split(flagList, ",") {
			if t = strings.TrimSpace(t); t != "" {
				tickers = append(tickers, strings.ToUpper(t))
			}
		}
		return tickers, nil
	}
	return cfg.Run.Tickers, nil
}

// buildRegistry combines the built-in templates with any defined in config.
// A config template with a built-in's name replaces it.
func buildRegistry(cfg *config.Config) *exits.Registry {
	registry := exits.DefaultRegistry()
	for _, p := range cfg.Templates {
		tpl, err := exits.NewTemplate(p)
		if err != nil {
			// Validate has already accepted these params.
			log.Fatalf("building template %s: %v", p.Name, err)
		}
		registry.Register(tpl)
	}
	return registry
}

func selectTemplates(registry *exits.Registry, flagList string) ([]exits.Strategy, error) {
	names := registry.List()
	if flagList != "" {
		names = strings.Split(flagList, ",")
	}
	templates := make([]exits.Strategy, 0, len(names))
	for _, name := range names {
		name = strings.TrimSpace(name)
		tpl, ok := registry.Get(name)
		if !ok {
			return nil, fmt.Errorf("unknown template %q (have %s)", name, strings.Join(registry.List(), ", "))
		}
		templates = append(templates, tpl)
	}
	return templates, nil
}

// resolveLimits falls back to conservative defaults when the config leaves
// risk unset.
func resolveLimits(cfg *config.Config) risk.Limits {
	limits := cfg.Risk
	if limits.RiskPercent == 0 {
		limits.RiskPercent = 0.01
	}
	if limits.MaxConcurrent == 0 {
		limits.MaxConcurrent = 3
	}
	if limits.MinStrength == 0 {
		limits.MinStrength = 70
	}
	return limits
}

func openBarStore(ctx context.Context, cfg *config.Config) (store.BarStore, func(), error) {
	switch cfg.Storage.Backend {
	case "clickhouse":
		ch, err := store.NewClickHouseStore(ctx, cfg.Storage.ClickHouse)
		if err != nil {
			return nil, nil, err
		}
		return ch, func() { ch.Close() }, nil
	default:
		dataDir := cfg.Storage.DataDir
		if dataDir == "" {
			dataDir = "data"
		}
		return store.NewParquetStore(dataDir), func() {}, nil
	}
}

// printReport writes the per-unit results and the template comparison table.
func printReport(report *batch.Report) {
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)

	fmt.Fprintln(w, "TICKER\tTEMPLATE\tTRADES\tWIN%\tPNL\tMAXDD\tSTATUS")
	for _, res := range report.Results {
		status := "ok"
		if res.Err != nil {
			status = res.Err.Error()
		}
		fmt.Fprintf(w, "%s\t%s\t%d\t%.1f\t%.2f\t%.2f%%\t%s\n",
			res.Ticker, res.Template,
			res.Summary.TotalTrades, res.Summary.WinRate, res.Summary.TotalPnL,
			res.Summary.MaxDrawdown*100, status)
	}
	fmt.Fprintln(w)

	standings := report.ByTemplate()
	fmt.Fprintln(w, "RANK\tTEMPLATE\tUNITS\tTRADES\tWIN%\tPF\tPNL\tSHARPE")
	for i, st := range standings {
		// Undefined profit factor (zero losses) prints as a dash.
		pf := "-"
		if st.Summary.ProfitFactor != nil {
			pf = fmt.Sprintf("%.2f", *st.Summary.ProfitFactor)
		}
		fmt.Fprintf(w, "%d\t%s\t%d\t%d\t%.1f\t%s\t%.2f\t%.2f\n",
			i+1, st.Template, st.Units,
			st.Summary.TotalTrades, st.Summary.WinRate, pf,
			st.Summary.TotalPnL, st.Summary.Sharpe)
	}
	w.Flush()

	winner := report.Winner()
	if winner != nil {
		fmt.Printf("\nwinner: %s\n", winner.Template)
	}

	if report.Failed > 0 {
		fmt.Printf("\n%d of %d units failed\n", report.Failed, len(report.Results))
	}

	// Exit-reason breakdown for the winner, most common first.
	if winner != nil && len(winner.Summary.ExitReasons) > 0 {
		type rc struct {
			reason domain.ExitReason
			count  int
		}
		var reasons []rc
		for reason, count := range winner.Summary.ExitReasons {
			reasons = append(reasons, rc{reason, count})
		}
		sort.Slice(reasons, func(i, j int) bool {
			if reasons[i].count != reasons[j].count {
				return reasons[i].count > reasons[j].count
			}
			return reasons[i].reason < reasons[j].reason
		})
		fmt.Println("\nexit reasons:")
		for _, r := range reasons {
			fmt.Printf("  %-14s %d\n", r.reason, r.count)
		}
	}
}
