package main

import (
	"context"
	"flag"
	"log"
	"os"

	"barsim/internal/api"
	"barsim/internal/batch"
	"barsim/internal/config"
	"barsim/internal/exits"
	"barsim/internal/store"
	"barsim/internal/util"
)

func main() {
	cfgPath := flag.String("config", "", "config file path (default config/barsim.yaml)")
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

	ctx := context.Background()

	var bars store.BarStore
	switch cfg.Storage.Backend {
	case "clickhouse":
		ch, err := store.NewClickHouseStore(ctx, cfg.Storage.ClickHouse)
		if err != nil {
			log.Fatalf("connecting to clickhouse: %v", err)
		}
		defer ch.Close()
		bars = ch
	default:
		bars = store.NewParquetStore(cfg.Storage.DataDir)
	}

	var results *store.SQLiteStore
	if cfg.Storage.SQLitePath != "" {
		results, err = store.NewSQLiteStore(cfg.Storage.SQLitePath)
		if err != nil {
			log.Fatalf("opening sqlite store: %v", err)
		}
		defer results.Close()
	}

	registry := exits.DefaultRegistry()
	for _, p := range cfg.Templates {
		tpl, err := exits.NewTemplate(p)
		if err != nil {
			log.Fatalf("building template %s: %v", p.Name, err)
		}
		registry.Register(tpl)
	}

	calendar, err := util.NewTradingCalendar(cfg.Run.CutoffMinutes)
	if err != nil {
		log.Fatalf("building calendar: %v", err)
	}

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

	srv := api.NewServer(bars, results, registry, calendar, api.Options{
		AllowOrigins: cfg.Server.AllowOrigins,
		Limits:       limits,
		InitialCash:  cfg.Run.InitialCash,
		EntryDelay:   cfg.Run.EntryDelayBars,
		BatchSize:    firstPositive(cfg.Batch.BatchSize, batch.DefaultBatchSize),
	}, logger)

	host := cfg.Server.Host
	if host == "" {
		host = "0.0.0.0"
	}
	port := cfg.Server.Port
	if port == 0 {
		port = 8080
	}
	if err := srv.ListenAndServe(host, port); err != nil {
		log.Fatalf("server error: %v", err)
	}
}

func firstPositive(v, fallback int) int {
	if v > 0 {
		return v
	}
	return fallback
}
