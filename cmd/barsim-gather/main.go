package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"barsim/internal/config"
	"barsim/internal/domain"
	"barsim/internal/gather"
	"barsim/internal/store"
	"barsim/internal/util"
)

func main() {
	cfgPath := flag.String("config", "", "config file path (default config/barsim.yaml)")
	tickersFlag := flag.String("tickers", "", "comma-separated ticker list (overrides config)")
	tickersFile := flag.String("tickers-file", "", "file with one ticker per line")
	startFlag := flag.String("start", "", "start date YYYY-MM-DD (overrides gather.start_date)")
	endFlag := flag.String("end", "", "end date YYYY-MM-DD (default yesterday)")
	timeframe := flag.String("timeframe", "", "bar timeframe (default run.timeframe)")
	flag.Parse()

	path := *cfgPath
	if path == "" {
		path = "config/barsim.yaml"
		if p := os.Getenv("BARSIM_CONFIG"); p != "" {
			path = p
		}
	}
	cfg, err := config.Load(path)
	if err != nil {
		log.Fatalf("loading config: %v", err)
	}

	logger := util.NewLogger(cfg.Logging.Level, cfg.Logging.Format)
	util.SetDefault(logger)

	var tickers []string
	switch {
	case *tickersFile != "":
		tickers, err = util.ReadTickerFile(*tickersFile)
		if err != nil {
			log.Fatalf("reading ticker file: %v", err)
		}
	case *tickersFlag != "":
		for _, t := range strings.Split(*tickersFlag, ",") {
			if t = strings.TrimSpace(t); t != "" {
				tickers = append(tickers, strings.ToUpper(t))
			}
		}
	default:
		tickers = cfg.Run.Tickers
	}
	if len(tickers) == 0 {
		log.Fatal("no tickers: use -tickers, -tickers-file, or run.tickers in config")
	}

	startDate := cfg.Gather.StartDate
	if *startFlag != "" {
		startDate = *startFlag
	}
	start, err := time.Parse("2006-01-02", startDate)
	if err != nil {
		log.Fatalf("parsing start date %q: %v", startDate, err)
	}
	end := time.Now().AddDate(0, 0, -1)
	if *endFlag != "" {
		end, err = time.Parse("2006-01-02", *endFlag)
		if err != nil {
			log.Fatalf("parsing end date %q: %v", *endFlag, err)
		}
	}

	tf := domain.Timeframe(cfg.Run.Timeframe)
	if *timeframe != "" {
		tf = domain.Timeframe(*timeframe)
	}

	pstore := store.NewParquetStore(cfg.Storage.DataDir)
	gatherer := gather.NewIntradayBarGatherer(
		cfg.Alpaca.APIKey,
		cfg.Alpaca.APISecret,
		cfg.Alpaca.DataURL,
		pstore,
		tickers,
		tf,
		gather.DateRange{Start: start, End: end},
		cfg.Gather.BatchSize,
		cfg.Gather.RateLimitPerMin,
	)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := gatherer.Run(ctx); err != nil {
		log.Fatalf("gather error: %v", err)
	}
}
