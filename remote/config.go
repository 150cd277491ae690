package remote

import (
	"net/url"
	"time"
)

// Config is the configuration for the HTTP playlist source
type Config struct {
	// URL is the playlist endpoint (required)
	URL string `mapstructure:"url"`
	// Timeout bounds a single HTTP exchange, including reading the body
	// The refresh pipeline applies its own fetch timeout on top of this one
	// default: 30 * time.Second
	Timeout time.Duration `mapstructure:"timeout"`
	// UserAgent is sent with every request
	// default: "vidcache/1.0"
	UserAgent string `mapstructure:"user_agent"`
	// MaxBodyBytes caps the response size
	// default: 10 MiB
	MaxBodyBytes int64 `mapstructure:"max_body_bytes"`
}

// DefaultConfig returns the default configuration for the HTTP source
// Note: URL has no default value and must be explicitly set
func DefaultConfig() *Config {
	return &Config{
		Timeout:      30 * time.Second,
		UserAgent:    "vidcache/1.0",
		MaxBodyBytes: 10 << 20,
	}
}

// MergeDefaults fills zero values with defaults
func (c *Config) MergeDefaults() *Config {
	cfg := *c
	defaults := DefaultConfig()
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaults.Timeout
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = defaults.UserAgent
	}
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = defaults.MaxBodyBytes
	}
	return &cfg
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.URL == "" {
		return ErrInvalidConfig("url is required")
	}
	u, err := url.Parse(c.URL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return ErrInvalidConfig("url must be an absolute http(s) url: " + c.URL)
	}
	if c.Timeout <= 0 {
		return ErrInvalidConfig("timeout must be positive")
	}
	return nil
}
