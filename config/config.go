package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds the full adapter configuration.
type Config struct {
	Adapter     AdapterConfig     `yaml:"adapter"`
	Websocket   WebsocketConfig   `yaml:"websocket"`
	Dispatch    DispatchConfig    `yaml:"dispatch"`
	Instruments InstrumentsConfig `yaml:"instruments"`
	Logging     LoggingConfig     `yaml:"logging"`
	Metrics     MetricsConfig     `yaml:"metrics"`
}

type AdapterConfig struct {
	Name    string `yaml:"name"`
	Version string `yaml:"version"`
}

// WebsocketConfig controls the session lifecycle: endpoint, supervisory
// cadence and heartbeat timeout.
type WebsocketConfig struct {
	URL string `yaml:"url"`
	// TickInterval is the supervisory loop cadence.
	TickInterval time.Duration `yaml:"tick_interval"`
	// MessageTimeout is the maximum inbound silence before a reconnect.
	MessageTimeout time.Duration `yaml:"message_timeout"`
	// HandshakeTimeout bounds the websocket dial.
	HandshakeTimeout time.Duration `yaml:"handshake_timeout"`
	// CommandsPerSecond limits outbound command writes. Zero disables
	// the limiter.
	CommandsPerSecond float64 `yaml:"commands_per_second"`
	CommandBurst      int     `yaml:"command_burst"`
}

// DispatchConfig sizes the per-symbol subscriber queues.
type DispatchConfig struct {
	QueueBuffer int `yaml:"queue_buffer"`
}

// InstrumentsConfig points at an optional instrument table override. When
// Path is empty the embedded table is used.
type InstrumentsConfig struct {
	Path string `yaml:"path"`
}

type LoggingConfig struct {
	Level      string `yaml:"level"`
	File       string `yaml:"file"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
}

type MetricsConfig struct {
	Enabled    bool             `yaml:"enabled"`
	Interval   time.Duration    `yaml:"interval"`
	CloudWatch CloudWatchConfig `yaml:"cloudwatch"`
}

type CloudWatchConfig struct {
	Enabled   bool   `yaml:"enabled"`
	Region    string `yaml:"region"`
	Namespace string `yaml:"namespace"`
}

const (
	// DefaultURL is the public Bitfinex v2 websocket endpoint.
	DefaultURL = "wss://api.bitfinex.com/ws/2"

	defaultTickInterval     = 20 * time.Second
	defaultMessageTimeout   = 45 * time.Second
	defaultHandshakeTimeout = 10 * time.Second
	defaultQueueBuffer      = 1024
)

// LoadConfig reads a YAML configuration file and applies defaults for
// anything left unset.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("cannot parse YAML: %w", err)
	}
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Default returns a configuration with every default applied, suitable for
// embedding the adapter without a config file.
func Default() *Config {
	cfg := &Config{}
	cfg.ApplyDefaults()
	return cfg
}

// ApplyDefaults fills zero values with working defaults.
func (c *Config) ApplyDefaults() {
	if c.Adapter.Name == "" {
		c.Adapter.Name = "bitfinex-adapter"
	}
	if c.Websocket.URL == "" {
		c.Websocket.URL = DefaultURL
	}
	if c.Websocket.TickInterval <= 0 {
		c.Websocket.TickInterval = defaultTickInterval
	}
	if c.Websocket.MessageTimeout <= 0 {
		c.Websocket.MessageTimeout = defaultMessageTimeout
	}
	if c.Websocket.HandshakeTimeout <= 0 {
		c.Websocket.HandshakeTimeout = defaultHandshakeTimeout
	}
	if c.Dispatch.QueueBuffer <= 0 {
		c.Dispatch.QueueBuffer = defaultQueueBuffer
	}
	if c.Metrics.Interval <= 0 {
		c.Metrics.Interval = time.Minute
	}
}

// Validate rejects configurations the session cannot operate with.
func (c *Config) Validate() error {
	if c.Websocket.MessageTimeout <= c.Websocket.TickInterval {
		return fmt.Errorf("message_timeout (%s) must exceed tick_interval (%s)",
			c.Websocket.MessageTimeout, c.Websocket.TickInterval)
	}
	return nil
}
