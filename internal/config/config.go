package config

import (
	"fmt"
	"time"
)

// Config represents the complete application configuration.
type Config struct {
	Version  string         `yaml:"version"`
	Server   ServerConfig   `yaml:"server"`
	API      APIConfig      `yaml:"api"`
	Provider ProviderConfig `yaml:"provider"`
	Sync     SyncConfig     `yaml:"sync"`
	Seed     SeedConfig     `yaml:"seed"`
	Telegram TelegramConfig `yaml:"telegram"`
}

// ServerConfig contains server-related configuration.
type ServerConfig struct {
	Host            string        `yaml:"host"`
	HTTPPort        int           `yaml:"http_port"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	LogLevel        string        `yaml:"log_level"`
	LogFormat       string        `yaml:"log_format"`
	TLS             TLSConfig     `yaml:"tls"`
}

// TLSConfig contains TLS configuration.
type TLSConfig struct {
	Enabled    bool   `yaml:"enabled"`
	CertFile   string `yaml:"cert_file"`
	KeyFile    string `yaml:"key_file"`
	MinVersion string `yaml:"min_version"` // "1.2" or "1.3"
}

// APIConfig contains API-related configuration.
type APIConfig struct {
	Auth AuthConfig `yaml:"auth"`
}

// AuthConfig contains authentication for the setup and manual sync endpoints.
type AuthConfig struct {
	Secret string `yaml:"secret"`
}

// ProviderConfig describes the remote wellness provider.
type ProviderConfig struct {
	// BaseURL is the host ordinary authenticated reads go to.
	BaseURL string `yaml:"base_url"`
	// ExchangeURL is the OAuth1-signed token exchange endpoint.
	ExchangeURL string `yaml:"exchange_url"`
	// ConsumerKey/ConsumerSecret identify this client to the provider.
	ConsumerKey    string        `yaml:"consumer_key"`
	ConsumerSecret string        `yaml:"consumer_secret"`
	Timeout        time.Duration `yaml:"timeout"`
}

// SyncConfig contains scheduler and write-path configuration.
type SyncConfig struct {
	Enabled   bool          `yaml:"enabled"`
	Interval  time.Duration `yaml:"interval"`
	Days      int           `yaml:"days"`
	BatchSize int           `yaml:"batch_size"`
}

// SeedConfig points at the drop directory watched for out-of-band credential
// files.
type SeedConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// TelegramConfig contains post-run notification configuration.
type TelegramConfig struct {
	Enabled  bool   `yaml:"enabled"`
	BotToken string `yaml:"bot_token"`
	ChatID   int64  `yaml:"chat_id"`
}

// Validate checks the configuration for invalid values.
func (c *Config) Validate() error {
	if c.Server.HTTPPort < 0 || c.Server.HTTPPort > 65535 {
		return fmt.Errorf("server.http_port must be between 0 and 65535, got %d", c.Server.HTTPPort)
	}
	if c.Server.ShutdownTimeout < 0 {
		return fmt.Errorf("server.shutdown_timeout must not be negative")
	}
	switch c.Server.LogLevel {
	case "", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("server.log_level must be one of debug, info, warn, error; got %q", c.Server.LogLevel)
	}
	if c.Provider.BaseURL == "" {
		return fmt.Errorf("provider.base_url is required")
	}
	if c.Provider.ExchangeURL == "" {
		return fmt.Errorf("provider.exchange_url is required")
	}
	if c.Provider.ConsumerKey == "" || c.Provider.ConsumerSecret == "" {
		return fmt.Errorf("provider.consumer_key and provider.consumer_secret are required")
	}
	if c.Provider.Timeout < 0 {
		return fmt.Errorf("provider.timeout must not be negative")
	}
	if c.Sync.Interval < 0 {
		return fmt.Errorf("sync.interval must not be negative")
	}
	if c.Sync.Days < 0 {
		return fmt.Errorf("sync.days must not be negative")
	}
	if c.Sync.BatchSize < 0 {
		return fmt.Errorf("sync.batch_size must not be negative")
	}
	if c.Telegram.Enabled && c.Telegram.BotToken == "" {
		return fmt.Errorf("telegram.bot_token is required when telegram is enabled")
	}
	return nil
}

// ApplyDefaults fills in defaults for unset fields.
func (c *Config) ApplyDefaults() {
	if c.Server.HTTPPort == 0 {
		c.Server.HTTPPort = 8419
	}
	if c.Server.ShutdownTimeout == 0 {
		c.Server.ShutdownTimeout = 30 * time.Second
	}
	if c.Server.LogLevel == "" {
		c.Server.LogLevel = "info"
	}
	if c.Server.LogFormat == "" {
		c.Server.LogFormat = "json"
	}
	if c.Provider.Timeout == 0 {
		c.Provider.Timeout = 20 * time.Second
	}
	if c.Sync.Interval == 0 {
		c.Sync.Interval = 15 * time.Minute
	}
	if c.Sync.Days == 0 {
		c.Sync.Days = 1
	}
	if c.Sync.BatchSize == 0 {
		c.Sync.BatchSize = 50
	}
}
