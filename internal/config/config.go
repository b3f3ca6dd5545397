package config

import (
	"errors"
	"fmt"
	"time"
)

// Send policies applied when the client submits while its channel is not open.
const (
	SendPolicyDrop  = "drop"
	SendPolicyQueue = "queue"
)

// Config holds relay server and chat client configuration values.
type Config struct {
	// relay server
	Addr              string        `mapstructure:"addr" yaml:"addr"`
	ReadHeaderTimeout time.Duration `mapstructure:"read_header_timeout" yaml:"read_header_timeout"`
	ShutdownTimeout   time.Duration `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout"`
	EchoToSender      bool          `mapstructure:"echo_to_sender" yaml:"echo_to_sender"`
	MaxMessageBytes   int64         `mapstructure:"max_message_bytes" yaml:"max_message_bytes"`
	RateLimit         float64       `mapstructure:"rate_limit" yaml:"rate_limit"`
	RateBurst         int           `mapstructure:"rate_burst" yaml:"rate_burst"`

	// chat client
	ServerURL    string        `mapstructure:"server_url" yaml:"server_url"`
	SendPolicy   string        `mapstructure:"send_policy" yaml:"send_policy"`
	QueueSize    int           `mapstructure:"queue_size" yaml:"queue_size"`
	HistoryLimit int           `mapstructure:"history_limit" yaml:"history_limit"`
	DialTimeout  time.Duration `mapstructure:"dial_timeout" yaml:"dial_timeout"`
	NoColor      bool          `mapstructure:"no_color" yaml:"no_color"`

	LogLevel string `mapstructure:"log_level" yaml:"log_level"`
}

// Default returns configuration with reasonable starter defaults.
func Default() Config {
	return Config{
		Addr:              ":8080",
		ReadHeaderTimeout: 5 * time.Second,
		ShutdownTimeout:   5 * time.Second,
		EchoToSender:      true,
		MaxMessageBytes:   32 << 10,
		RateLimit:         10,
		RateBurst:         20,

		ServerURL:    "ws://localhost:8080/ws",
		SendPolicy:   SendPolicyDrop,
		QueueSize:    64,
		HistoryLimit: 0,
		DialTimeout:  5 * time.Second,

		LogLevel: "info",
	}
}

// UpdateFrom overwrites non-zero values from other config into receiver.
// Booleans are left alone since false is indistinguishable from unset.
func (c *Config) UpdateFrom(other Config) {
	if other.Addr != "" {
		c.Addr = other.Addr
	}
	if other.ReadHeaderTimeout != 0 {
		c.ReadHeaderTimeout = other.ReadHeaderTimeout
	}
	if other.ShutdownTimeout != 0 {
		c.ShutdownTimeout = other.ShutdownTimeout
	}
	if other.MaxMessageBytes != 0 {
		c.MaxMessageBytes = other.MaxMessageBytes
	}
	if other.RateLimit != 0 {
		c.RateLimit = other.RateLimit
	}
	if other.RateBurst != 0 {
		c.RateBurst = other.RateBurst
	}
	if other.ServerURL != "" {
		c.ServerURL = other.ServerURL
	}
	if other.SendPolicy != "" {
		c.SendPolicy = other.SendPolicy
	}
	if other.QueueSize != 0 {
		c.QueueSize = other.QueueSize
	}
	if other.HistoryLimit != 0 {
		c.HistoryLimit = other.HistoryLimit
	}
	if other.DialTimeout != 0 {
		c.DialTimeout = other.DialTimeout
	}
	if other.LogLevel != "" {
		c.LogLevel = other.LogLevel
	}
}

// Validate reports the first inconsistent setting.
func (c *Config) Validate() error {
	switch c.SendPolicy {
	case SendPolicyDrop:
	case SendPolicyQueue:
		if c.QueueSize <= 0 {
			return errors.New("queue_size must be positive with send_policy=queue")
		}
	default:
		return fmt.Errorf("unknown send_policy %q", c.SendPolicy)
	}
	if c.HistoryLimit < 0 {
		return errors.New("history_limit must not be negative")
	}
	if c.MaxMessageBytes <= 0 {
		return errors.New("max_message_bytes must be positive")
	}
	if c.RateLimit < 0 || c.RateBurst < 0 {
		return errors.New("rate_limit and rate_burst must not be negative")
	}
	return nil
}
