package store

import (
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	BackendSQL    = "sql"
	BackendRedis  = "redis"
	BackendMemory = "memory"
)

var validBackends = []string{BackendSQL, BackendRedis, BackendMemory}

// Config holds configuration for the cache store
type Config struct {
	// Name is used for logging purposes to identify the store
	// default: "playlist"
	Name string `mapstructure:"name"`
	// Backend selects where snapshots are persisted: sql, redis or memory
	// default: "sql"
	Backend string `mapstructure:"backend"`
	// Table is the SQL table holding cached items
	// default: "cached_items"
	Table string `mapstructure:"table"`
	// BatchSize is the number of rows per INSERT statement during a replace
	// default: 100
	BatchSize int `mapstructure:"batch_size"`
	// SubscriberBuffer is the initial queue capacity of each subscription
	// Queues grow beyond it; it only sizes the first allocation
	// default: 16
	SubscriberBuffer int `mapstructure:"subscriber_buffer"`
	// Redis is used when Backend is "redis"
	Redis *RedisConfig `mapstructure:"redis"`
}

// DefaultConfig returns the default configuration for the store
func DefaultConfig() *Config {
	return &Config{
		Name:             "playlist",
		Backend:          BackendSQL,
		Table:            "cached_items",
		BatchSize:        100,
		SubscriberBuffer: 16,
	}
}

// MergeDefaults fills zero values with defaults and returns c
func (c *Config) MergeDefaults() *Config {
	defaults := DefaultConfig()
	if c.Name == "" {
		c.Name = defaults.Name
	}
	if c.Backend == "" {
		c.Backend = defaults.Backend
	}
	if c.Table == "" {
		c.Table = defaults.Table
	}
	if c.BatchSize == 0 {
		c.BatchSize = defaults.BatchSize
	}
	if c.SubscriberBuffer == 0 {
		c.SubscriberBuffer = defaults.SubscriberBuffer
	}
	if c.Backend == BackendRedis {
		if c.Redis == nil {
			c.Redis = &RedisConfig{}
		}
		c.Redis.MergeDefaults()
	}
	return c
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if !slices.Contains(validBackends, c.Backend) {
		return ErrInvalidConfig(fmt.Sprintf("backend %q must be one of: %s", c.Backend, strings.Join(validBackends, ", ")))
	}
	if c.Table == "" {
		return ErrInvalidConfig("table is required")
	}
	if c.BatchSize < 1 {
		return ErrInvalidConfig(fmt.Sprintf("batch_size %d must be >= 1", c.BatchSize))
	}
	if c.SubscriberBuffer < 0 {
		return ErrInvalidConfig(fmt.Sprintf("subscriber_buffer %d must be >= 0", c.SubscriberBuffer))
	}
	if c.Backend == BackendRedis {
		if c.Redis == nil {
			return ErrInvalidConfig("redis config is required for the redis backend")
		}
		return c.Redis.Validate()
	}
	return nil
}

// RedisConfig holds connection settings for the redis backend
type RedisConfig struct {
	// Addr is host:port of the redis server (required)
	Addr     string `mapstructure:"addr"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	// PoolSize default: 10
	PoolSize int `mapstructure:"pool_size"`
	// DialTimeout default: 5 * time.Second
	DialTimeout time.Duration `mapstructure:"dial_timeout"`
	// Key is the list holding the cached items
	// default: "vidcache:items"
	Key string `mapstructure:"key"`
}

// MergeDefaults fills zero values with defaults and returns c
func (c *RedisConfig) MergeDefaults() *RedisConfig {
	if c.PoolSize == 0 {
		c.PoolSize = 10
	}
	if c.DialTimeout == 0 {
		c.DialTimeout = 5 * time.Second
	}
	if c.Key == "" {
		c.Key = "vidcache:items"
	}
	return c
}

// Validate validates the redis configuration
func (c *RedisConfig) Validate() error {
	if c.Addr == "" {
		return ErrInvalidConfig("redis.addr is required")
	}
	if c.DB < 0 {
		return ErrInvalidConfig("redis.db must be >= 0")
	}
	if c.PoolSize < 0 {
		return ErrInvalidConfig("redis.pool_size must be >= 0")
	}
	if c.DialTimeout < 0 {
		return ErrInvalidConfig("redis.dial_timeout must be >= 0")
	}
	return nil
}

// Options converts the configuration to go-redis options
func (c *RedisConfig) Options() *redis.Options {
	return &redis.Options{
		Addr:        c.Addr,
		Username:    c.Username,
		Password:    c.Password,
		DB:          c.DB,
		PoolSize:    c.PoolSize,
		DialTimeout: c.DialTimeout,
	}
}
