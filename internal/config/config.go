// Package config loads the YAML configuration file and applies environment
// variable overrides.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"barsim/internal/domain"
	"barsim/internal/exits"
	"barsim/internal/risk"
	"barsim/internal/store"
)

// ---------------------------------------------------------------------------
// Configuration structs
// ---------------------------------------------------------------------------

// Config is the top-level configuration for the simulator.
type Config struct {
	Storage   Storage        `yaml:"storage"`
	Server    Server         `yaml:"server"`
	Alpaca    Alpaca         `yaml:"alpaca"`
	Logging   Logging        `yaml:"logging"`
	Gather    GatherConfig   `yaml:"gather"`
	Run       RunConfig      `yaml:"run"`
	Risk      risk.Limits    `yaml:"risk"`
	Batch     BatchConfig    `yaml:"batch"`
	Templates []exits.Params `yaml:"templates"`
}

// Storage holds paths and backends for data persistence. Bars come from
// Parquet files by default; set backend to "clickhouse" to read a shared
// candle table instead.
type Storage struct {
	Backend    string                  `yaml:"backend"` // "parquet" (default) or "clickhouse"
	DataDir    string                  `yaml:"data_dir"`
	SQLitePath string                  `yaml:"sqlite_path"`
	ClickHouse store.ClickHouseOptions `yaml:"clickhouse"`
}

// Server holds network listener configuration for the HTTP API.
type Server struct {
	Host         string   `yaml:"host"`
	Port         int      `yaml:"port"`
	AllowOrigins []string `yaml:"allow_origins"`
}

// Alpaca holds credentials and endpoints for the Alpaca market data API.
type Alpaca struct {
	APIKey    string `yaml:"api_key"`
	APISecret string `yaml:"api_secret"`
	BaseURL   string `yaml:"base_url"`
	DataURL   string `yaml:"data_url"`
}

// Logging configures the application logger.
type Logging struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// GatherConfig holds parameters for the intraday bar gathering job.
type GatherConfig struct {
	StartDate       string `yaml:"start_date"`
	BatchSize       int    `yaml:"batch_size"`
	RateLimitPerMin int    `yaml:"rate_limit_per_min"`
}

// RunConfig describes the simulation universe: which tickers, which window,
// and the per-unit cash and fill parameters.
type RunConfig struct {
	Tickers        []string `yaml:"tickers"`
	Timeframe      string   `yaml:"timeframe"`
	Start          string   `yaml:"start"` // YYYY-MM-DD
	End            string   `yaml:"end"`   // YYYY-MM-DD, empty means end of data
	InitialCash    float64  `yaml:"initial_cash"`
	EntryDelayBars int      `yaml:"entry_delay_bars"`
	CutoffMinutes  int      `yaml:"cutoff_minutes"` // no new entries this close to session end
}

// BatchConfig controls batch execution.
type BatchConfig struct {
	BatchSize   int           `yaml:"batch_size"`
	UnitTimeout time.Duration `yaml:"unit_timeout"`
}

// ---------------------------------------------------------------------------
// Loading
// ---------------------------------------------------------------------------

// Load reads the YAML configuration file at the given path, parses it,
// applies environment variable overrides, and validates the result.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("%w: parsing %s: %v", domain.ErrConfig, path, err)
	}

	applyDefaults(cfg)
	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Default returns a configuration with every default applied, for running
// without a config file.
func Default() *Config {
	cfg := &Config{}
	applyDefaults(cfg)
	return cfg
}

func applyDefaults(cfg *Config) {
	if cfg.Storage.Backend == "" {
		cfg.Storage.Backend = "parquet"
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}
	if cfg.Run.Timeframe == "" {
		cfg.Run.Timeframe = string(domain.Timeframe1Min)
	}
	if cfg.Run.InitialCash == 0 {
		cfg.Run.InitialCash = 100000
	}
	if cfg.Run.EntryDelayBars == 0 {
		cfg.Run.EntryDelayBars = 1
	}
	if cfg.Run.CutoffMinutes == 0 {
		cfg.Run.CutoffMinutes = 5
	}
}

// applyEnvOverrides checks well-known environment variables and overrides
// the corresponding configuration fields when they are set.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("DATA_DIR"); v != "" {
		cfg.Storage.DataDir = v
	}
	if v := os.Getenv("SQLITE_PATH"); v != "" {
		cfg.Storage.SQLitePath = v
	}

	if v := os.Getenv("ALPACA_API_KEY"); v != "" {
		cfg.Alpaca.APIKey = v
	}
	if v := os.Getenv("ALPACA_API_SECRET"); v != "" {
		cfg.Alpaca.APISecret = v
	}
	if v := os.Getenv("ALPACA_BASE_URL"); v != "" {
		cfg.Alpaca.BaseURL = v
	}
	if v := os.Getenv("ALPACA_DATA_URL"); v != "" {
		cfg.Alpaca.DataURL = v
	}

	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}

	// Standard Alpaca env vars (highest priority — canonical names used by SDK).
	if v := os.Getenv("APCA_API_KEY_ID"); v != "" {
		cfg.Alpaca.APIKey = v
	}
	if v := os.Getenv("APCA_API_SECRET_KEY"); v != "" {
		cfg.Alpaca.APISecret = v
	}
}

// Validate checks invariants that would otherwise fail deep inside a run.
func (c *Config) Validate() error {
	switch c.Storage.Backend {
	case "parquet", "clickhouse":
	default:
		return fmt.Errorf("%w: unknown storage backend %q", domain.ErrConfig, c.Storage.Backend)
	}

	switch domain.Timeframe(c.Run.Timeframe) {
	case domain.Timeframe1Min, domain.Timeframe5Min, domain.Timeframe15Min, domain.TimeframeDaily:
	default:
		return fmt.Errorf("%w: unknown timeframe %q", domain.ErrConfig, c.Run.Timeframe)
	}

	if c.Run.Start != "" {
		if _, err := time.Parse("2006-01-02", c.Run.Start); err != nil {
			return fmt.Errorf("%w: run start %q: %v", domain.ErrConfig, c.Run.Start, err)
		}
	}
	if c.Run.End != "" {
		if _, err := time.Parse("2006-01-02", c.Run.End); err != nil {
			return fmt.Errorf("%w: run end %q: %v", domain.ErrConfig, c.Run.End, err)
		}
	}
	if c.Run.InitialCash <= 0 {
		return fmt.Errorf("%w: initial_cash must be positive", domain.ErrConfig)
	}
	if c.Run.EntryDelayBars < 1 {
		return fmt.Errorf("%w: entry_delay_bars must be at least 1", domain.ErrConfig)
	}

	for i := range c.Templates {
		if err := c.Templates[i].Validate(); err != nil {
			return fmt.Errorf("template %d (%s): %w", i, c.Templates[i].Name, err)
		}
	}
	return nil
}

// StartTime returns the parsed run start, zero when unset. Validate has
// already checked the format.
func (c *Config) StartTime() time.Time {
	t, _ := time.Parse("2006-01-02", c.Run.Start)
	return t
}

// EndTime returns the parsed run end, zero when unset.
func (c *Config) EndTime() time.Time {
	if c.Run.End == "" {
		return time.Time{}
	}
	t, _ := time.Parse("2006-01-02", c.Run.End)
	// Include the whole end day.
	return t.Add(24*time.Hour - time.Nanosecond)
}
