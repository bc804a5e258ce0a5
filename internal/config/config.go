// Package config loads the gateway configuration from YAML with environment
// variable overrides.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// ---------------------------------------------------------------------------
// Configuration structs
// ---------------------------------------------------------------------------

// Config is the top-level configuration for the gateway.
type Config struct {
	XT      XT      `yaml:"xt"`
	History History `yaml:"history"`
	Record  Record  `yaml:"record"`
	Poll    Poll    `yaml:"poll"`
	Logging Logging `yaml:"logging"`
}

// XT holds credentials and session parameters for the XtQuant services.
type XT struct {
	Token       string `yaml:"token"`        // data service token
	Path        string `yaml:"path"`         // QMT userdata path for the trading client
	AccountID   string `yaml:"account_id"`   // cash account id
	AccountType string `yaml:"account_type"` // "STOCK" or "STOCK_OPTION"

	// Asset classes to activate at connect time.
	StockActive   bool `yaml:"stock_active"`
	FuturesActive bool `yaml:"futures_active"`
	OptionActive  bool `yaml:"option_active"`

	Trading bool `yaml:"trading"` // enable the trading session
}

// History configures the historical-bar datafeed and its local cache.
type History struct {
	SQLitePath      string `yaml:"sqlite_path"`
	DownloadRetries int    `yaml:"download_retries"`
	RateLimitPerMin int    `yaml:"rate_limit_per_min"`
}

// Record configures the optional tick recorder.
type Record struct {
	Enabled   bool   `yaml:"enabled"`
	DataDir   string `yaml:"data_dir"`
	FlushSize int    `yaml:"flush_size"` // ticks buffered before a parquet write
}

// Poll configures the reconciliation scheduler.
type Poll struct {
	// Divisor is how many host timer ticks pass between reconciliation
	// queries. The default of 2 halves the host timer frequency.
	Divisor int `yaml:"divisor"`
}

// Logging configures the application logger.
type Logging struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// ---------------------------------------------------------------------------
// Loading
// ---------------------------------------------------------------------------

// Load reads the YAML configuration file at the given path, parses it into a
// Config struct, applies environment variable overrides, and fills defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}

	applyEnvOverrides(cfg)
	applyDefaults(cfg)

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// applyEnvOverrides checks well-known environment variables and overrides the
// corresponding configuration fields when they are set.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("XT_TOKEN"); v != "" {
		cfg.XT.Token = v
	}
	if v := os.Getenv("XT_PATH"); v != "" {
		cfg.XT.Path = v
	}
	if v := os.Getenv("XT_ACCOUNT_ID"); v != "" {
		cfg.XT.AccountID = v
	}
	if v := os.Getenv("SQLITE_PATH"); v != "" {
		cfg.History.SQLitePath = v
	}
	if v := os.Getenv("DATA_DIR"); v != "" {
		cfg.Record.DataDir = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
}

func applyDefaults(cfg *Config) {
	if cfg.XT.AccountType == "" {
		cfg.XT.AccountType = "STOCK"
	}
	if cfg.History.DownloadRetries == 0 {
		cfg.History.DownloadRetries = 3
	}
	if cfg.History.RateLimitPerMin == 0 {
		cfg.History.RateLimitPerMin = 120
	}
	if cfg.Record.FlushSize == 0 {
		cfg.Record.FlushSize = 1000
	}
	if cfg.Poll.Divisor == 0 {
		cfg.Poll.Divisor = 2
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}
}

func (cfg *Config) validate() error {
	switch cfg.XT.AccountType {
	case "STOCK", "STOCK_OPTION":
	default:
		return fmt.Errorf("unknown account type %q", cfg.XT.AccountType)
	}

	if cfg.XT.Trading && cfg.XT.AccountID == "" {
		return fmt.Errorf("trading enabled but account_id is empty")
	}

	return nil
}
