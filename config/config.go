// Package config loads the vidcached configuration from a YAML file and
// VIDCACHE_* environment variables.
package config

import (
	"errors"
	"strings"

	"github.com/dailyyoga/vidcache/db"
	"github.com/dailyyoga/vidcache/history"
	"github.com/dailyyoga/vidcache/logger"
	"github.com/dailyyoga/vidcache/notify"
	"github.com/dailyyoga/vidcache/refresh"
	"github.com/dailyyoga/vidcache/remote"
	"github.com/dailyyoga/vidcache/schedule"
	"github.com/dailyyoga/vidcache/store"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment override, e.g. VIDCACHE_REMOTE_URL
const EnvPrefix = "VIDCACHE"

// envKeys are the settings that may be overridden from the environment
// without appearing in the config file
var envKeys = []string{
	"logger.level",
	"logger.encoding",
	"db.driver",
	"db.path",
	"db.host",
	"db.port",
	"db.user",
	"db.password",
	"db.database",
	"store.backend",
	"store.redis.addr",
	"store.redis.password",
	"remote.url",
	"schedule.state_path",
	"history.enabled",
	"history.hosts",
	"history.password",
	"notify.enabled",
	"notify.brokers",
	"notify.topic",
	"refresh_on_start",
}

// Config aggregates the configuration of every vidcached component
type Config struct {
	Logger   logger.Config   `mapstructure:"logger"`
	DB       db.Config       `mapstructure:"db"`
	Store    store.Config    `mapstructure:"store"`
	Remote   remote.Config   `mapstructure:"remote"`
	Refresh  refresh.Config  `mapstructure:"refresh"`
	Schedule schedule.Config `mapstructure:"schedule"`
	History  history.Config  `mapstructure:"history"`
	Notify   notify.Config   `mapstructure:"notify"`

	// RefreshOnStart runs one refresh as soon as the daemon is up
	RefreshOnStart bool `mapstructure:"refresh_on_start"`
}

// Load reads path (or vidcache.yaml from the working directory and
// /etc/vidcache when path is empty), applies environment overrides, fills
// defaults and validates the result.
func Load(path string) (*Config, error) {
	v := viper.New()
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("vidcache")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("/etc/vidcache")
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for _, key := range envKeys {
		if err := v.BindEnv(key); err != nil {
			return nil, ErrLoad(err)
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, ErrRead(err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, ErrParse(err)
	}

	cfg = cfg.MergeDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// MergeDefaults fills zero values of every section with its defaults
func (c *Config) MergeDefaults() *Config {
	cfg := *c
	// logger, db and store fill their receivers in place
	loggerCfg, dbCfg, storeCfg := c.Logger, c.DB, c.Store
	if c.Store.Redis != nil {
		redisCfg := *c.Store.Redis
		storeCfg.Redis = &redisCfg
	}
	cfg.Logger = *loggerCfg.MergeDefaults()
	cfg.DB = *dbCfg.MergeDefaults()
	cfg.Store = *storeCfg.MergeDefaults()
	cfg.Remote = *c.Remote.MergeDefaults()
	cfg.Refresh = *c.Refresh.MergeDefaults()
	cfg.Schedule = *c.Schedule.MergeDefaults()
	cfg.History = *c.History.MergeDefaults()
	cfg.Notify = *c.Notify.MergeDefaults()
	return &cfg
}

// Validate validates every section
func (c *Config) Validate() error {
	checks := []struct {
		section string
		check   func() error
	}{
		{"logger", c.Logger.Validate},
		{"db", c.DB.Validate},
		{"store", c.Store.Validate},
		{"remote", c.Remote.Validate},
		{"refresh", c.Refresh.Validate},
		{"schedule", c.Schedule.Validate},
		{"history", c.History.Validate},
		{"notify", c.Notify.Validate},
	}
	for _, ch := range checks {
		if err := ch.check(); err != nil {
			return ErrInvalidSection(ch.section, err)
		}
	}
	return nil
}
