package notify

import (
	"strings"
	"time"

	"github.com/confluentinc/confluent-kafka-go/v2/kafka"
)

// Config is the configuration for the snapshot forwarder and its producer
type Config struct {
	// Enabled turns the forwarder on
	Enabled bool `mapstructure:"enabled"`

	// kafka cluster brokers
	Brokers []string `mapstructure:"brokers"`

	// Topic receives one event per committed snapshot
	// default: "vidcache.snapshots"
	Topic string `mapstructure:"topic"`

	// Key is the message key; events of one cache keep their order within a partition
	// default: "playlist"
	Key string `mapstructure:"key"`

	// IncludeItems puts the full item list into each event instead of ids only
	IncludeItems bool `mapstructure:"include_items"`

	// PublishCurrent sends the snapshot present at Start before any new commit
	PublishCurrent bool `mapstructure:"publish_current"`

	// Optional: kafka client id, shown in broker logs and metrics
	ClientID string `mapstructure:"client_id"`

	// Acks is the number of broker acknowledgements required: "all", "1" or "0"
	// default: "all"
	Acks string `mapstructure:"acks"`

	// Compression codec: none, gzip, snappy, lz4 or zstd
	// default: "none"
	Compression string `mapstructure:"compression"`

	// LingerMs is how long the producer waits to fill a batch
	// default: 0 (send immediately)
	LingerMs int `mapstructure:"linger_ms"`

	// BatchSize is the maximum batch size in bytes
	// default: 100KB
	BatchSize int `mapstructure:"batch_size"`

	// Security protocol, only PLAINTEXT is supported for now
	// default: "PLAINTEXT"
	SecurityProtocol string `mapstructure:"security_protocol"`

	// Max retries for the kafka producer
	// default: 3
	MaxRetries int `mapstructure:"max_retries"`

	// FlushTimeout bounds the flush of pending messages on Close
	// default: 10 * time.Second
	FlushTimeout time.Duration `mapstructure:"flush_timeout"`
}

// DefaultConfig returns the default configuration for the forwarder
func DefaultConfig() *Config {
	return &Config{
		Topic:            "vidcache.snapshots",
		Key:              "playlist",
		Acks:             "all",
		Compression:      "none",
		LingerMs:         0,
		BatchSize:        100 * 1024,
		SecurityProtocol: "PLAINTEXT",
		MaxRetries:       3,
		FlushTimeout:     10 * time.Second,
	}
}

// MergeDefaults fills zero values with defaults
func (c *Config) MergeDefaults() *Config {
	cfg := *c
	defaults := DefaultConfig()
	if cfg.Topic == "" {
		cfg.Topic = defaults.Topic
	}
	if cfg.Key == "" {
		cfg.Key = defaults.Key
	}
	if cfg.Acks == "" {
		cfg.Acks = defaults.Acks
	}
	if cfg.Compression == "" {
		cfg.Compression = defaults.Compression
	}
	if cfg.BatchSize == 0 {
		cfg.BatchSize = defaults.BatchSize
	}
	if cfg.SecurityProtocol == "" {
		cfg.SecurityProtocol = defaults.SecurityProtocol
	}
	if cfg.MaxRetries == 0 {
		cfg.MaxRetries = defaults.MaxRetries
	}
	if cfg.FlushTimeout == 0 {
		cfg.FlushTimeout = defaults.FlushTimeout
	}
	return &cfg
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if !c.Enabled {
		return nil
	}
	if len(c.Brokers) == 0 {
		return ErrInvalidConfig("brokers are required")
	}
	if c.Topic == "" {
		return ErrInvalidConfig("topic is required")
	}
	switch strings.ToLower(c.Acks) {
	case "all", "-1", "0", "1":
	default:
		return ErrInvalidConfig("acks must be all, -1, 0 or 1")
	}
	return nil
}

// BuildConfigMap returns the librdkafka producer settings
func (c *Config) BuildConfigMap() *kafka.ConfigMap {
	configMap := &kafka.ConfigMap{
		"bootstrap.servers": strings.Join(c.Brokers, ","),
		"compression.type":  strings.ToLower(c.Compression),
		"acks":              strings.ToLower(c.Acks),
		"linger.ms":         c.LingerMs,
		"batch.size":        c.BatchSize,
		"retries":           c.MaxRetries,
		"security.protocol": c.SecurityProtocol,
	}

	if c.ClientID != "" {
		_ = configMap.SetKey("client.id", c.ClientID)
	}

	return configMap
}
