// Package config loads the single YAML file that configures every
// subsystem. Each section delegates validation to the owning package.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/tradeedge/signalcore/internal/data"
	"github.com/tradeedge/signalcore/internal/expectancy"
	"github.com/tradeedge/signalcore/internal/regime"
	"github.com/tradeedge/signalcore/internal/risk"
	"github.com/tradeedge/signalcore/internal/scan"
)

// Config is the full runtime configuration.
type Config struct {
	Universe []string `yaml:"universe"`

	Regime     regime.Config     `yaml:"regime"`
	Risk       risk.Config       `yaml:"risk"`
	Expectancy expectancy.Config `yaml:"expectancy"`
	Data       data.Config       `yaml:"data"`
	Scan       scan.Config       `yaml:"scan"`

	Postgres PostgresConfig `yaml:"postgres"`
	Redis    RedisConfig    `yaml:"redis"`
	HTTP     HTTPConfig     `yaml:"http"`

	JournalRetentionDays int `yaml:"journal_retention_days"`
}

type PostgresConfig struct {
	DSN string `yaml:"dsn"`
}

type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

type HTTPConfig struct {
	Addr string `yaml:"addr"`
}

// Load reads and validates the configuration file, filling unset sections
// from package defaults.
func Load(path string) (Config, error) {
	cfg := Defaults()

	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("failed to read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("failed to parse config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return cfg, nil
}

// Defaults returns the built-in configuration used when no file overrides
// a section.
func Defaults() Config {
	return Config{
		Regime:               regime.DefaultConfig(),
		Risk:                 risk.DefaultConfig(),
		Expectancy:           expectancy.DefaultConfig(),
		Data:                 data.DefaultConfig(),
		Scan:                 scan.DefaultConfig(),
		Redis:                RedisConfig{Addr: "localhost:6379"},
		HTTP:                 HTTPConfig{Addr: ":8080"},
		JournalRetentionDays: 365,
	}
}

// GetJournalRetention returns the expectancy journal retention window as a
// time.Duration. The audit ledger is never swept: it is append-only.
func (c Config) GetJournalRetention() time.Duration {
	return time.Duration(c.JournalRetentionDays) * 24 * time.Hour
}

// Validate checks every section.
func (c Config) Validate() error {
	if err := c.Regime.Validate(); err != nil {
		return fmt.Errorf("regime: %w", err)
	}
	if err := c.Risk.Validate(); err != nil {
		return fmt.Errorf("risk: %w", err)
	}
	if err := c.Expectancy.Validate(); err != nil {
		return fmt.Errorf("expectancy: %w", err)
	}
	if c.HTTP.Addr == "" {
		return fmt.Errorf("http: addr must be set")
	}
	if c.JournalRetentionDays < 1 {
		return fmt.Errorf("journal_retention_days %d below minimum 1", c.JournalRetentionDays)
	}
	return nil
}
