package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"

	"github.com/rustyeddy/futures-journal/market"
)

// Config represents the complete journal configuration
type Config struct {
	Store       StoreConfig      `json:"store" yaml:"store"`
	Ingest      IngestConfig     `json:"ingest" yaml:"ingest"`
	Commissions CommissionConfig `json:"commissions" yaml:"commissions"`
	Log         LogConfig        `json:"log" yaml:"log"`
	Server      ServerConfig     `json:"server" yaml:"server"`
}

// StoreConfig selects the relational store
type StoreConfig struct {
	Driver string `json:"driver" yaml:"driver" env:"JOURNAL_DB_DRIVER"` // "sqlite" or "postgres"
	Path   string `json:"path,omitempty" yaml:"path,omitempty" env:"JOURNAL_DB_PATH"`
	DSN    string `json:"dsn,omitempty" yaml:"dsn,omitempty" env:"JOURNAL_DB_DSN"`
}

// IngestConfig contains batch ingestion parameters
type IngestConfig struct {
	MaxBatchRows int    `json:"max_batch_rows" yaml:"max_batch_rows" env:"JOURNAL_MAX_BATCH_ROWS"`
	Timezone     string `json:"timezone" yaml:"timezone" env:"JOURNAL_TIMEZONE"` // IANA name used for trade dates
}

// CommissionConfig overrides the per-side commission per contract class.
// Zero leaves the built-in rate in place.
type CommissionConfig struct {
	Emini    float64 `json:"emini,omitempty" yaml:"emini,omitempty"`
	Micro    float64 `json:"micro,omitempty" yaml:"micro,omitempty"`
	Energy   float64 `json:"energy,omitempty" yaml:"energy,omitempty"`
	Metal    float64 `json:"metal,omitempty" yaml:"metal,omitempty"`
	Currency float64 `json:"currency,omitempty" yaml:"currency,omitempty"`
	Rates    float64 `json:"rates,omitempty" yaml:"rates,omitempty"`
	Unknown  float64 `json:"unknown,omitempty" yaml:"unknown,omitempty"`
}

// LogConfig contains logging parameters
type LogConfig struct {
	Level  string `json:"level" yaml:"level" env:"JOURNAL_LOG_LEVEL"`
	Format string `json:"format" yaml:"format" env:"JOURNAL_LOG_FORMAT"` // "console" or "json"
}

// ServerConfig contains HTTP server parameters
type ServerConfig struct {
	Addr        string   `json:"addr" yaml:"addr" env:"JOURNAL_SERVER_ADDR"`
	CORSOrigins []string `json:"cors_origins,omitempty" yaml:"cors_origins,omitempty" env:"JOURNAL_CORS_ORIGINS" envSeparator:","`
}

// Schedule returns the commission schedule with overrides applied.
func (c CommissionConfig) Schedule() market.CommissionSchedule {
	s := market.DefaultCommissions()
	set := func(class market.Class, v float64) {
		if v > 0 {
			s[class] = v
		}
	}
	set(market.ClassEmini, c.Emini)
	set(market.ClassMicro, c.Micro)
	set(market.ClassEnergy, c.Energy)
	set(market.ClassMetal, c.Metal)
	set(market.ClassCurrency, c.Currency)
	set(market.ClassRates, c.Rates)
	set(market.ClassUnknown, c.Unknown)
	return s
}

// Load reads path when it is non-empty, otherwise starts from Default.
// Environment overrides are applied last.
func Load(path string) (*Config, error) {
	if path != "" {
		return LoadFromFile(path)
	}
	cfg := Default()
	if err := cfg.ApplyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// LoadFromFile loads configuration from a file (JSON or YAML based on extension)
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	cfg := Default()

	// Try YAML first, fall back to JSON
	err = yaml.Unmarshal(data, cfg)
	if err != nil {
		err = json.Unmarshal(data, cfg)
		if err != nil {
			return nil, fmt.Errorf("parse config (tried YAML and JSON): %w", err)
		}
	}

	if err := cfg.ApplyEnv(); err != nil {
		return nil, err
	}

	// Validate configuration
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// ApplyEnv overrides fields from JOURNAL_* environment variables.
func (c *Config) ApplyEnv() error {
	if err := env.Parse(c); err != nil {
		return fmt.Errorf("parse environment: %w", err)
	}
	return nil
}

// SaveToFile saves configuration to a file (JSON or YAML based on extension)
func (c *Config) SaveToFile(path string) error {
	var data []byte
	var err error

	// Determine format by extension
	if strings.HasSuffix(path, ".yaml") || strings.HasSuffix(path, ".yml") {
		data, err = yaml.Marshal(c)
	} else {
		data, err = json.MarshalIndent(c, "", "  ")
	}

	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("write config file: %w", err)
	}

	return nil
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	switch c.Store.Driver {
	case "sqlite":
		if c.Store.Path == "" {
			return fmt.Errorf("store.path required for sqlite driver")
		}
	case "postgres":
		if c.Store.DSN == "" {
			return fmt.Errorf("store.dsn required for postgres driver")
		}
	default:
		return fmt.Errorf("store.driver must be 'sqlite' or 'postgres'")
	}
	if c.Ingest.MaxBatchRows <= 0 {
		return fmt.Errorf("ingest.max_batch_rows must be positive")
	}
	if _, err := c.Location(); err != nil {
		return fmt.Errorf("ingest.timezone: %w", err)
	}
	for name, v := range map[string]float64{
		"emini":    c.Commissions.Emini,
		"micro":    c.Commissions.Micro,
		"energy":   c.Commissions.Energy,
		"metal":    c.Commissions.Metal,
		"currency": c.Commissions.Currency,
		"rates":    c.Commissions.Rates,
		"unknown":  c.Commissions.Unknown,
	} {
		if v < 0 {
			return fmt.Errorf("commissions.%s must not be negative", name)
		}
	}
	switch c.Log.Format {
	case "console", "json":
	default:
		return fmt.Errorf("log.format must be 'console' or 'json'")
	}
	return nil
}

// Location resolves the ingestion timezone; empty means UTC.
func (c *Config) Location() (*time.Location, error) {
	if c.Ingest.Timezone == "" {
		return time.UTC, nil
	}
	return time.LoadLocation(c.Ingest.Timezone)
}

// Default returns a configuration with sensible defaults
func Default() *Config {
	return &Config{
		Store: StoreConfig{
			Driver: "sqlite",
			Path:   "./journal.sqlite",
		},
		Ingest: IngestConfig{
			MaxBatchRows: 5000,
			Timezone:     "UTC",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "console",
		},
		Server: ServerConfig{
			Addr: ":8080",
		},
	}
}
