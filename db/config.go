package db

import (
	"fmt"
	"slices"
	"strings"
	"time"
)

const (
	// DriverMySQL connects to a MySQL server through gorm.io/driver/mysql
	DriverMySQL = "mysql"
	// DriverSQLite opens a local file through modernc.org/sqlite
	DriverSQLite = "sqlite"
)

// Config is the configuration for the database
// It is used to configure the database connection pool and logging
type Config struct {
	// Driver selects the dialect, "mysql" or "sqlite"
	// default: "sqlite"
	Driver string `mapstructure:"driver"`
	// Path is the database file used by the sqlite driver
	// default: "vidcache.db"
	Path string `mapstructure:"path"`
	// Host is the host of the database (mysql)
	Host string `mapstructure:"host"`
	// Port is the port of the database (mysql)
	// default: 3306
	Port int `mapstructure:"port"`
	// User is the user of the database (mysql)
	User string `mapstructure:"user"`
	// Password is the password of the database (mysql)
	Password string `mapstructure:"password"`
	// Database is the name of the database (mysql)
	Database string `mapstructure:"database"`
	// MaxOpenConns is the maximum number of open connections to the database
	// sqlite always uses a single connection
	// default: 10
	MaxOpenConns int `mapstructure:"max_open_conns"`
	// MaxIdleConns is the maximum number of idle connections to the database
	// default: 10
	MaxIdleConns int `mapstructure:"max_idle_conns"`
	// ConnMaxLifetime is the maximum lifetime of a connection
	// default: 1800 * time.Second
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	// ConnMaxIdleTime is the maximum idle time of a connection
	// default: 600 * time.Second
	ConnMaxIdleTime time.Duration `mapstructure:"conn_max_idle_time"`
	// BusyTimeout is how long sqlite waits on a locked database file
	// default: 5 * time.Second
	BusyTimeout time.Duration `mapstructure:"busy_timeout"`
	// LogLevel is the gorm log level, silent, error, warn or info
	// default: "warn"
	LogLevel string `mapstructure:"log_level"`
	// SlowThreshold is the threshold for slow queries
	// default: 1 * time.Second
	SlowThreshold time.Duration `mapstructure:"slow_threshold"`
	// Charset is the charset of the database (mysql)
	// default: "utf8mb4"
	Charset string `mapstructure:"charset"`
	// Loc is the location of the database (mysql)
	// default: "Local"
	Loc string `mapstructure:"loc"`
}

// DSN returns the driver specific data source name
func (c *Config) DSN() string {
	if c.Driver == DriverSQLite {
		return fmt.Sprintf("file:%s?_pragma=busy_timeout(%d)&_pragma=journal_mode(WAL)",
			c.Path, c.BusyTimeout.Milliseconds(),
		)
	}
	return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?charset=%s&parseTime=True&loc=%s",
		c.User, c.Password, c.Host, c.Port, c.Database,
		c.Charset, c.Loc,
	)
}

// DefaultConfig returns the default configuration for the database
func DefaultConfig() *Config {
	return &Config{
		Driver:          DriverSQLite,
		Path:            "vidcache.db",
		Port:            3306,
		MaxOpenConns:    10,
		MaxIdleConns:    10,
		ConnMaxLifetime: 1800 * time.Second,
		ConnMaxIdleTime: 600 * time.Second,
		BusyTimeout:     5 * time.Second,
		LogLevel:        "warn",
		SlowThreshold:   1 * time.Second,
		Charset:         "utf8mb4",
		Loc:             "Local",
	}
}

// Validate validates the configuration for the database
func (c *Config) Validate() error {
	switch c.Driver {
	case DriverSQLite:
		if c.Path == "" {
			return ErrInvalidConfig("path is required for sqlite")
		}
	case DriverMySQL:
		if c.Host == "" {
			return ErrInvalidConfig("host is required")
		}
		if c.Port <= 0 {
			return ErrInvalidConfig("port is required")
		}
		if c.User == "" {
			return ErrInvalidConfig("user is required")
		}
		if c.Database == "" {
			return ErrInvalidConfig("database is required")
		}
	default:
		return ErrInvalidConfig(fmt.Sprintf("driver %q must be one of: %s, %s", c.Driver, DriverSQLite, DriverMySQL))
	}

	validLogLevels := []string{"silent", "error", "warn", "info"}
	if !slices.ContainsFunc(validLogLevels, func(level string) bool {
		return strings.EqualFold(c.LogLevel, level)
	}) {
		return ErrInvalidConfig(fmt.Sprintf("log_level %q must be one of: %s", c.LogLevel, strings.Join(validLogLevels, ", ")))
	}
	return nil
}

// MergeDefaults merges the default configuration with the given configuration
// It returns the merged configuration
func (c *Config) MergeDefaults() *Config {
	defaults := DefaultConfig()
	if c.Driver == "" {
		c.Driver = defaults.Driver
	}
	if c.Path == "" {
		c.Path = defaults.Path
	}
	if c.Port == 0 {
		c.Port = defaults.Port
	}
	if c.MaxOpenConns == 0 {
		c.MaxOpenConns = defaults.MaxOpenConns
	}
	if c.MaxIdleConns == 0 {
		c.MaxIdleConns = defaults.MaxIdleConns
	}
	if c.ConnMaxLifetime == 0 {
		c.ConnMaxLifetime = defaults.ConnMaxLifetime
	}
	if c.ConnMaxIdleTime == 0 {
		c.ConnMaxIdleTime = defaults.ConnMaxIdleTime
	}
	if c.BusyTimeout == 0 {
		c.BusyTimeout = defaults.BusyTimeout
	}
	if c.LogLevel == "" {
		c.LogLevel = defaults.LogLevel
	}
	if c.SlowThreshold == 0 {
		c.SlowThreshold = defaults.SlowThreshold
	}
	if c.Charset == "" {
		c.Charset = defaults.Charset
	}
	if c.Loc == "" {
		c.Loc = defaults.Loc
	}
	return c
}
