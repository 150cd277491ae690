package schedule

import (
	"strings"
	"time"
)

// Config is the configuration for the scheduler
type Config struct {
	// ConstraintPollInterval is how often unmet constraints are re-evaluated
	// default: 30 * time.Second
	ConstraintPollInterval time.Duration `mapstructure:"constraint_poll_interval"`
	// BackoffBase is the delay before the first retry of a failed run
	// default: 30 * time.Second
	BackoffBase time.Duration `mapstructure:"backoff_base"`
	// BackoffMax caps the exponential retry delay
	// default: 5 * time.Hour
	BackoffMax time.Duration `mapstructure:"backoff_max"`
	// MaxRetries is the number of retries after a failed run within one period
	// default: 3
	MaxRetries int `mapstructure:"max_retries"`
	// StatePath is the bbolt file holding per-series state
	// An empty path keeps state in memory only
	StatePath string `mapstructure:"state_path"`
	// Series are registered by the host process at startup
	// default: one daily "refresh-playlist" series with every constraint set
	Series []SeriesConfig `mapstructure:"series"`
}

// SeriesConfig describes one named periodic series
type SeriesConfig struct {
	Name        string        `mapstructure:"name"`
	Period      time.Duration `mapstructure:"period"`
	Constraints Constraints   `mapstructure:"constraints"`
	// Policy is "keep" or "replace"
	// default: "keep"
	Policy string `mapstructure:"policy"`
}

// DefaultSeriesName is the series registered when none is configured
const DefaultSeriesName = "refresh-playlist"

// DefaultConfig returns the default configuration for the scheduler
func DefaultConfig() *Config {
	return &Config{
		ConstraintPollInterval: 30 * time.Second,
		BackoffBase:            30 * time.Second,
		BackoffMax:             5 * time.Hour,
		MaxRetries:             3,
		Series: []SeriesConfig{
			{
				Name:   DefaultSeriesName,
				Period: 24 * time.Hour,
				Constraints: Constraints{
					UnmeteredNetwork: true,
					BatteryNotLow:    true,
					Charging:         true,
					DeviceIdle:       true,
				},
				Policy: "keep",
			},
		},
	}
}

// MergeDefaults fills zero values with defaults
func (c *Config) MergeDefaults() *Config {
	cfg := *c
	defaults := DefaultConfig()
	if cfg.ConstraintPollInterval == 0 {
		cfg.ConstraintPollInterval = defaults.ConstraintPollInterval
	}
	if cfg.BackoffBase == 0 {
		cfg.BackoffBase = defaults.BackoffBase
	}
	if cfg.BackoffMax == 0 {
		cfg.BackoffMax = defaults.BackoffMax
	}
	if cfg.MaxRetries == 0 {
		cfg.MaxRetries = defaults.MaxRetries
	}
	if len(cfg.Series) == 0 {
		cfg.Series = defaults.Series
	}
	return &cfg
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.ConstraintPollInterval <= 0 {
		return ErrInvalidConfig("constraint_poll_interval must be positive")
	}
	if c.BackoffBase <= 0 {
		return ErrInvalidConfig("backoff_base must be positive")
	}
	if c.BackoffMax < c.BackoffBase {
		return ErrInvalidConfig("backoff_max must not be below backoff_base")
	}
	if c.MaxRetries < 0 {
		return ErrInvalidConfig("max_retries must not be negative")
	}
	for _, s := range c.Series {
		if err := s.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// Validate validates a series definition
func (s SeriesConfig) Validate() error {
	if s.Name == "" {
		return ErrInvalidName(s.Name)
	}
	if s.Period <= 0 {
		return ErrInvalidPeriod(s.Period)
	}
	if _, err := ParsePolicy(s.Policy); err != nil {
		return err
	}
	return nil
}

// Policy decides what happens when a name is registered twice
type Policy int

const (
	// Keep leaves the existing series untouched
	Keep Policy = iota
	// Replace cancels the existing series and installs the new one
	Replace
)

func (p Policy) String() string {
	if p == Replace {
		return "replace"
	}
	return "keep"
}

// ParsePolicy parses "keep" or "replace"; the empty string means Keep
func ParsePolicy(s string) (Policy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "keep":
		return Keep, nil
	case "replace":
		return Replace, nil
	default:
		return Keep, ErrInvalidPolicy(s)
	}
}
