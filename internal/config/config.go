package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/vovakirdan/wirechat-gateway/internal/core"
)

// BackendKindMemory is the in-process backend, seeded from a fixture file.
const BackendKindMemory = "memory"

// Config holds gateway configuration values.
type Config struct {
	Addr              string        `mapstructure:"addr" yaml:"addr"`
	ReadHeaderTimeout time.Duration `mapstructure:"read_header_timeout" yaml:"read_header_timeout"`
	ShutdownTimeout   time.Duration `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout"`
	LogLevel          string        `mapstructure:"log_level" yaml:"log_level"`
	LogFormat         string        `mapstructure:"log_format" yaml:"log_format"`
	// JournalPath is the sqlite file sessions are journaled to. Empty disables the journal.
	JournalPath string  `mapstructure:"journal_path" yaml:"journal_path"`
	Backend     Backend `mapstructure:"backend" yaml:"backend"`
	Gateway     Gateway `mapstructure:"gateway" yaml:"gateway"`
}

// Backend selects the chat backend the gateway talks to.
type Backend struct {
	Kind    string `mapstructure:"kind" yaml:"kind"`
	Fixture string `mapstructure:"fixture" yaml:"fixture"`
}

// Gateway tunes sessions and the websocket bridge.
type Gateway struct {
	WelcomeMessage   string        `mapstructure:"welcome_message" yaml:"welcome_message"`
	AutoEnableChat   bool          `mapstructure:"auto_enable_chat" yaml:"auto_enable_chat"`
	HistoryLimit     int           `mapstructure:"history_limit" yaml:"history_limit"`
	RecentMessageTTL time.Duration `mapstructure:"recent_message_ttl" yaml:"recent_message_ttl"`
	OutboundBuffer   int           `mapstructure:"outbound_buffer" yaml:"outbound_buffer"`
	MaxMessageBytes  int64         `mapstructure:"max_message_bytes" yaml:"max_message_bytes"`
	// CommandRateLimit caps commands per client per minute; 0 disables it.
	CommandRateLimit int `mapstructure:"command_rate_limit" yaml:"command_rate_limit"`
}

// Default returns configuration with reasonable starter defaults.
func Default() Config {
	opts := core.DefaultOptions()
	return Config{
		Addr:              ":8080",
		ReadHeaderTimeout: 5 * time.Second,
		ShutdownTimeout:   10 * time.Second,
		LogLevel:          "info",
		LogFormat:         "console",
		JournalPath:       "gateway.db",
		Backend: Backend{
			Kind: BackendKindMemory,
		},
		Gateway: Gateway{
			WelcomeMessage:   opts.WelcomeMessage,
			AutoEnableChat:   opts.AutoEnableChat,
			HistoryLimit:     opts.HistoryLimit,
			RecentMessageTTL: opts.RecentMessageTTL,
			OutboundBuffer:   64,
			MaxMessageBytes:  64 << 10,
			CommandRateLimit: 600,
		},
	}
}

// UpdateFrom overwrites non-zero values from other config into receiver.
// Boolean switches are not touched; they only come from the loader.
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
	if other.LogLevel != "" {
		c.LogLevel = other.LogLevel
	}
	if other.LogFormat != "" {
		c.LogFormat = other.LogFormat
	}
	if other.JournalPath != "" {
		c.JournalPath = other.JournalPath
	}
	if other.Backend.Kind != "" {
		c.Backend.Kind = other.Backend.Kind
	}
	if other.Backend.Fixture != "" {
		c.Backend.Fixture = other.Backend.Fixture
	}
	if other.Gateway.WelcomeMessage != "" {
		c.Gateway.WelcomeMessage = other.Gateway.WelcomeMessage
	}
	if other.Gateway.HistoryLimit != 0 {
		c.Gateway.HistoryLimit = other.Gateway.HistoryLimit
	}
	if other.Gateway.RecentMessageTTL != 0 {
		c.Gateway.RecentMessageTTL = other.Gateway.RecentMessageTTL
	}
	if other.Gateway.OutboundBuffer != 0 {
		c.Gateway.OutboundBuffer = other.Gateway.OutboundBuffer
	}
	if other.Gateway.MaxMessageBytes != 0 {
		c.Gateway.MaxMessageBytes = other.Gateway.MaxMessageBytes
	}
	if other.Gateway.CommandRateLimit != 0 {
		c.Gateway.CommandRateLimit = other.Gateway.CommandRateLimit
	}
}

// SessionOptions converts the gateway section into core session options.
func (c *Config) SessionOptions() core.Options {
	opts := core.DefaultOptions()
	opts.WelcomeMessage = c.Gateway.WelcomeMessage
	opts.AutoEnableChat = c.Gateway.AutoEnableChat
	opts.HistoryLimit = c.Gateway.HistoryLimit
	opts.RecentMessageTTL = c.Gateway.RecentMessageTTL
	return opts
}

// Validate reports settings the gateway cannot start with.
func (c *Config) Validate() error {
	if c.Addr == "" {
		return errors.New("addr is required")
	}
	if c.Backend.Kind != BackendKindMemory {
		return fmt.Errorf("unsupported backend kind %q", c.Backend.Kind)
	}
	if c.Gateway.OutboundBuffer < 0 {
		return fmt.Errorf("gateway.outbound_buffer must not be negative, got %d", c.Gateway.OutboundBuffer)
	}
	if c.Gateway.CommandRateLimit < 0 {
		return fmt.Errorf("gateway.command_rate_limit must not be negative, got %d", c.Gateway.CommandRateLimit)
	}
	return nil
}
