// Package config provides configuration loading from YAML files.
package config

import (
	"os"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Sink names
const (
	SinkNotification = "notification"
	SinkMediaSession = "media_session"
	SinkWidget       = "widget"
)

// Playback outputs
const (
	OutputSpeaker  = "speaker"
	OutputHeadless = "headless"
)

// Config represents the application configuration.
type Config struct {
	Server    ServerConfig          `yaml:"server"`
	Catalog   CatalogConfig         `yaml:"catalog"`
	Playback  PlaybackConfig        `yaml:"playback"`
	Sinks     map[string]SinkConfig `yaml:"sinks" validate:"dive"`
	Reminders RemindersConfig       `yaml:"reminders"`
	Log       LogConfig             `yaml:"log"`
}

// ServerConfig represents server configuration.
type ServerConfig struct {
	Addr         string      `yaml:"addr" default:":8080"`
	ControlToken string      `yaml:"control_token"`
	Hooks        HooksConfig `yaml:"hooks"`
}

// HooksConfig represents lifecycle hooks configuration.
type HooksConfig struct {
	OnStarted []string `yaml:"on_started"`
	OnStopped []string `yaml:"on_stopped"`
}

// CatalogConfig represents the remote catalog service configuration.
type CatalogConfig struct {
	Endpoint        string `yaml:"endpoint" validate:"required,url"`
	APIKey          string `yaml:"api_key" validate:"required"`
	TimeoutMs       int    `yaml:"timeout_ms" default:"10000" validate:"gte=100,lte=120000"`
	ListCacheTTLSec *int   `yaml:"list_cache_ttl_sec" default:"60" validate:"omitempty,gte=0"`
}

// PlaybackConfig represents playback control configuration.
type PlaybackConfig struct {
	Output           string `yaml:"output" default:"speaker" validate:"oneof=speaker headless"`
	AutoStart        *bool  `yaml:"auto_start" default:"true"`
	Completion       string `yaml:"completion" default:"stop" validate:"oneof=stop advance"`
	PrepareTimeoutMs int    `yaml:"prepare_timeout_ms" default:"30000" validate:"gte=1000,lte=300000"`
}

// SinkConfig represents a sink's configuration.
type SinkConfig struct {
	Enabled  bool           `yaml:"enabled"`
	Settings map[string]any `yaml:"settings,omitempty"`
}

// RemindersConfig represents the reminder scheduler configuration.
type RemindersConfig struct {
	Enabled           bool   `yaml:"enabled"`
	Autoplay          bool   `yaml:"autoplay"`
	ResyncIntervalSec *int   `yaml:"resync_interval_sec" default:"900" validate:"omitempty,gte=0"`
	Message           string `yaml:"message" default:"Time to listen to %s!"`
}

// LogConfig represents file logging configuration. File output is disabled
// when File is empty.
type LogConfig struct {
	File       string `yaml:"file"`
	MaxSizeMB  int    `yaml:"max_size_mb" default:"10" validate:"gte=1"`
	MaxBackups int    `yaml:"max_backups" default:"3" validate:"gte=0"`
	MaxAgeDays int    `yaml:"max_age_days" default:"28" validate:"gte=0"`
}

// Load loads configuration from a YAML file.
// Environment variables take precedence over file values for sensitive fields.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read config file")
	}
	return Parse(data)
}

// Parse parses configuration from YAML data.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, errors.Wrap(err, "failed to parse config file")
	}

	// Override with environment variables
	cfg.overrideFromEnv()

	// Set defaults using creasty/defaults
	if err := defaults.Set(&cfg); err != nil {
		return nil, errors.Wrap(err, "failed to set defaults")
	}

	// Validate configuration
	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "config validation failed")
	}

	return &cfg, nil
}

// overrideFromEnv overrides config values with environment variables.
func (c *Config) overrideFromEnv() {
	if v := os.Getenv("AMBIENT_CATALOG_ENDPOINT"); v != "" {
		c.Catalog.Endpoint = v
	}
	if v := os.Getenv("AMBIENT_API_KEY"); v != "" {
		c.Catalog.APIKey = v
	}
	if v := os.Getenv("AMBIENT_CONTROL_TOKEN"); v != "" {
		c.Server.ControlToken = v
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	validate := validator.New()
	if err := validate.Struct(c); err != nil {
		return errors.Wrap(err, "struct validation failed")
	}

	for name := range c.Sinks {
		switch name {
		case SinkNotification, SinkMediaSession, SinkWidget:
		default:
			return errors.Newf("unsupported sink: %s", name)
		}
	}

	if c.Reminders.Message != "" && strings.Count(c.Reminders.Message, "%s") != 1 {
		return errors.Newf("reminders.message must contain exactly one %%s: %q", c.Reminders.Message)
	}

	return nil
}

// IsSinkEnabled checks if a sink is enabled.
func (c *Config) IsSinkEnabled(name string) bool {
	if s, ok := c.Sinks[name]; ok {
		return s.Enabled
	}
	return false
}

// SinkSettings returns the settings for a sink. Never nil.
func (c *Config) SinkSettings(name string) map[string]any {
	if s, ok := c.Sinks[name]; ok && s.Settings != nil {
		return s.Settings
	}
	return map[string]any{}
}

// CatalogTimeout returns the catalog request timeout.
func (c *Config) CatalogTimeout() time.Duration {
	return time.Duration(c.Catalog.TimeoutMs) * time.Millisecond
}

// ListCacheTTL returns how long music list responses are cached. Zero
// disables the cache.
func (c *Config) ListCacheTTL() time.Duration {
	if c.Catalog.ListCacheTTLSec == nil {
		return 0
	}
	return time.Duration(*c.Catalog.ListCacheTTLSec) * time.Second
}

// PrepareTimeout returns the playback prepare deadline.
func (c *Config) PrepareTimeout() time.Duration {
	return time.Duration(c.Playback.PrepareTimeoutMs) * time.Millisecond
}

// ResyncInterval returns the reminder resync interval. Zero disables resync.
func (c *Config) ResyncInterval() time.Duration {
	if c.Reminders.ResyncIntervalSec == nil {
		return 0
	}
	return time.Duration(*c.Reminders.ResyncIntervalSec) * time.Second
}

// AutoStart reports whether prepared tracks start playing immediately.
func (c *Config) AutoStart() bool {
	return c.Playback.AutoStart == nil || *c.Playback.AutoStart
}
