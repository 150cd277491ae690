package refresh

import "time"

// Config holds configuration for the refresh pipeline
type Config struct {
	// Name is used for logging purposes to identify the pipeline
	// default: "playlist"
	Name string `mapstructure:"name"`
	// FetchTimeout bounds the remote source call
	// default: 30 * time.Second
	FetchTimeout time.Duration `mapstructure:"fetch_timeout"`
	// StoreTimeout bounds the cache replacement
	// default: 10 * time.Second
	StoreTimeout time.Duration `mapstructure:"store_timeout"`
}

// DefaultConfig returns the default configuration for the pipeline
func DefaultConfig() *Config {
	return &Config{
		Name:         "playlist",
		FetchTimeout: 30 * time.Second,
		StoreTimeout: 10 * time.Second,
	}
}

// MergeDefaults fills zero values with defaults
func (c *Config) MergeDefaults() *Config {
	cfg := *c
	defaults := DefaultConfig()
	if cfg.Name == "" {
		cfg.Name = defaults.Name
	}
	if cfg.FetchTimeout == 0 {
		cfg.FetchTimeout = defaults.FetchTimeout
	}
	if cfg.StoreTimeout == 0 {
		cfg.StoreTimeout = defaults.StoreTimeout
	}
	return &cfg
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.FetchTimeout <= 0 {
		return ErrInvalidTimeout("fetch_timeout", c.FetchTimeout)
	}
	if c.StoreTimeout <= 0 {
		return ErrInvalidTimeout("store_timeout", c.StoreTimeout)
	}
	return nil
}
