package history

import (
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
)

// Config is the configuration for the ClickHouse attempt recorder
type Config struct {
	// Enabled turns the recorder on; a disabled recorder discards attempts
	Enabled bool `mapstructure:"enabled"`
	// clickhouse connection config
	Hosts       []string      `mapstructure:"hosts"`
	Database    string        `mapstructure:"database"`
	Username    string        `mapstructure:"username"`
	Password    string        `mapstructure:"password"`
	DialTimeout time.Duration `mapstructure:"dial_timeout"`
	Debug       bool          `mapstructure:"debug"`
	// clickhouse settings (https://clickhouse.com/docs/en/operations/settings/settings)
	Settings clickhouse.Settings `mapstructure:"settings"`
	// Table receives one row per refresh attempt and is created if missing
	// default: "refresh_attempts"
	Table string `mapstructure:"table"`
	// FlushInterval is the period of time-triggered flushes
	// default: 10 * time.Second
	FlushInterval time.Duration `mapstructure:"flush_interval"`
	// FlushSize triggers a flush as soon as this many rows are buffered
	// default: 100
	FlushSize int `mapstructure:"flush_size"`
	// InsertTimeout bounds one batch insert
	// default: 10 * time.Second
	InsertTimeout time.Duration `mapstructure:"insert_timeout"`
}

// DefaultConfig returns the default configuration for the recorder
func DefaultConfig() *Config {
	return &Config{
		Database:      "default",
		Username:      "default",
		DialTimeout:   10 * time.Second,
		Table:         "refresh_attempts",
		FlushInterval: 10 * time.Second,
		FlushSize:     100,
		InsertTimeout: 10 * time.Second,
	}
}

// MergeDefaults fills zero values with defaults
func (c *Config) MergeDefaults() *Config {
	cfg := *c
	defaults := DefaultConfig()
	if cfg.Database == "" {
		cfg.Database = defaults.Database
	}
	if cfg.Username == "" {
		cfg.Username = defaults.Username
	}
	if cfg.DialTimeout == 0 {
		cfg.DialTimeout = defaults.DialTimeout
	}
	if cfg.Table == "" {
		cfg.Table = defaults.Table
	}
	if cfg.FlushInterval == 0 {
		cfg.FlushInterval = defaults.FlushInterval
	}
	if cfg.FlushSize == 0 {
		cfg.FlushSize = defaults.FlushSize
	}
	if cfg.InsertTimeout == 0 {
		cfg.InsertTimeout = defaults.InsertTimeout
	}
	return &cfg
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.FlushInterval <= 0 {
		return ErrInvalidConfig("flush_interval must be positive")
	}
	if c.FlushSize <= 0 {
		return ErrInvalidConfig("flush_size must be positive")
	}
	if c.InsertTimeout <= 0 {
		return ErrInvalidConfig("insert_timeout must be positive")
	}
	if !c.Enabled {
		return nil
	}
	if len(c.Hosts) == 0 {
		return ErrInvalidConfig("hosts are required")
	}
	if c.Table == "" {
		return ErrInvalidConfig("table is required")
	}
	return nil
}
