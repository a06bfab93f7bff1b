// Package config loads tasksync settings from YAML files and TASKSYNC_*
// environment variables.
//
// Files are merged in order: the global file (~/.tasksync/config.yaml),
// then the project file (./.tasksync/config.yaml). An explicit --config
// path replaces both. Environment variables override any file value, with
// dots in the key turned into underscores (TASKSYNC_SYNC_INTERVAL).
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
	"golang.org/x/text/language"
)

// Dir is the directory name used for both global and project config.
const Dir = ".tasksync"

// EnvPrefix prefixes every environment override.
const EnvPrefix = "TASKSYNC"

// Config is the merged tasksync configuration.
type Config struct {
	// User is the local user every cycle synchronizes
	User string `mapstructure:"user" yaml:"user" toml:"user"`
	// Locale is sent with the remote list verbs
	Locale string `mapstructure:"locale" yaml:"locale" toml:"locale"`

	Database  DatabaseConfig  `mapstructure:"database" yaml:"database" toml:"database"`
	Remote    RemoteConfig    `mapstructure:"remote" yaml:"remote" toml:"remote"`
	Sync      SyncConfig      `mapstructure:"sync" yaml:"sync" toml:"sync"`
	Log       LogConfig       `mapstructure:"log" yaml:"log" toml:"log"`
	Dashboard DashboardConfig `mapstructure:"dashboard" yaml:"dashboard" toml:"dashboard"`
}

// DatabaseConfig locates the local SQLite cache.
type DatabaseConfig struct {
	Path string `mapstructure:"path" yaml:"path" toml:"path"`
}

// RemoteConfig describes the workflow server connection.
type RemoteConfig struct {
	// URL of the websocket RPC endpoint (ws:// or wss://). Empty uses an
	// in-process memory remote.
	URL     string            `mapstructure:"url" yaml:"url" toml:"url"`
	Timeout time.Duration     `mapstructure:"timeout" yaml:"timeout" toml:"timeout"`
	Header  map[string]string `mapstructure:"header" yaml:"header,omitempty" toml:"header,omitempty"`
}

// SyncConfig tunes the background daemon.
type SyncConfig struct {
	Interval   time.Duration `mapstructure:"interval" yaml:"interval" toml:"interval"`
	Workers    int           `mapstructure:"workers" yaml:"workers" toml:"workers"`
	ClaimLimit int           `mapstructure:"claim_limit" yaml:"claim_limit" toml:"claim_limit"`
	// StaleAfter is how long a request may stay REQUESTED before
	// `requests list --stale` reports it
	StaleAfter time.Duration `mapstructure:"stale_after" yaml:"stale_after" toml:"stale_after"`
}

// LogConfig controls the optional rotating log file.
type LogConfig struct {
	// File is the log path; empty logs to stderr only
	File       string `mapstructure:"file" yaml:"file" toml:"file"`
	MaxSizeMB  int    `mapstructure:"max_size_mb" yaml:"max_size_mb" toml:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups" yaml:"max_backups" toml:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days" yaml:"max_age_days" toml:"max_age_days"`
}

// DashboardConfig configures the status websocket server.
type DashboardConfig struct {
	Enabled bool   `mapstructure:"enabled" yaml:"enabled" toml:"enabled"`
	Host    string `mapstructure:"host" yaml:"host" toml:"host"`
	Port    int    `mapstructure:"port" yaml:"port" toml:"port"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Locale: "en-US",
		Database: DatabaseConfig{
			Path: filepath.Join(Dir, "tasks.db"),
		},
		Remote: RemoteConfig{
			Timeout: 30 * time.Second,
		},
		Sync: SyncConfig{
			Interval:   5 * time.Minute,
			Workers:    2,
			ClaimLimit: 0,
			StaleAfter: 24 * time.Hour,
		},
		Log: LogConfig{
			MaxSizeMB:  10,
			MaxBackups: 3,
			MaxAgeDays: 28,
		},
		Dashboard: DashboardConfig{
			Enabled: true,
			Host:    "localhost",
			Port:    8610,
		},
	}
}

// GlobalConfigPath returns the path to the global config file.
func GlobalConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, Dir, "config.yaml")
}

// ProjectConfigPath returns the path to the project config file.
func ProjectConfigPath() string {
	cwd, err := os.Getwd()
	if err != nil {
		return ""
	}
	return filepath.Join(cwd, Dir, "config.yaml")
}

// Load reads the configuration. When path is non-empty only that file is
// read and it must exist; otherwise the global and project files are
// merged, each optional.
func Load(path string) (*Config, error) {
	if path != "" {
		return load([]string{path}, true)
	}
	return load([]string{GlobalConfigPath(), ProjectConfigPath()}, false)
}

func load(paths []string, required bool) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")
	setDefaults(v, DefaultConfig())

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	for _, p := range paths {
		if p == "" {
			continue
		}
		if _, err := os.Stat(p); err != nil {
			if errors.Is(err, os.ErrNotExist) && !required {
				continue
			}
			return nil, fmt.Errorf("config file %s: %w", p, err)
		}
		v.SetConfigFile(p)
		if err := v.MergeInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config %s: %w", p, err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	return cfg, nil
}

// setDefaults registers every key so AutomaticEnv can override it.
func setDefaults(v *viper.Viper, d *Config) {
	v.SetDefault("user", d.User)
	v.SetDefault("locale", d.Locale)
	v.SetDefault("database.path", d.Database.Path)
	v.SetDefault("remote.url", d.Remote.URL)
	v.SetDefault("remote.timeout", d.Remote.Timeout)
	v.SetDefault("remote.header", map[string]string{})
	v.SetDefault("sync.interval", d.Sync.Interval)
	v.SetDefault("sync.workers", d.Sync.Workers)
	v.SetDefault("sync.claim_limit", d.Sync.ClaimLimit)
	v.SetDefault("sync.stale_after", d.Sync.StaleAfter)
	v.SetDefault("log.file", d.Log.File)
	v.SetDefault("log.max_size_mb", d.Log.MaxSizeMB)
	v.SetDefault("log.max_backups", d.Log.MaxBackups)
	v.SetDefault("log.max_age_days", d.Log.MaxAgeDays)
	v.SetDefault("dashboard.enabled", d.Dashboard.Enabled)
	v.SetDefault("dashboard.host", d.Dashboard.Host)
	v.SetDefault("dashboard.port", d.Dashboard.Port)
}

// Validate checks if the config has valid field values.
func (c *Config) Validate() error {
	if c.Locale != "" {
		if _, err := language.Parse(c.Locale); err != nil {
			return fmt.Errorf("invalid locale %q: %w", c.Locale, err)
		}
	}
	if c.Database.Path == "" {
		return fmt.Errorf("database.path is required")
	}
	if c.Remote.URL != "" {
		u, err := url.Parse(c.Remote.URL)
		if err != nil {
			return fmt.Errorf("invalid remote.url: %w", err)
		}
		if u.Scheme != "ws" && u.Scheme != "wss" {
			return fmt.Errorf("remote.url must use ws:// or wss://, got %q", u.Scheme)
		}
	}
	if c.Remote.Timeout <= 0 {
		return fmt.Errorf("remote.timeout must be positive")
	}
	if c.Sync.Interval <= 0 {
		return fmt.Errorf("sync.interval must be positive")
	}
	if c.Sync.Workers < 1 {
		return fmt.Errorf("sync.workers must be at least 1")
	}
	if c.Sync.ClaimLimit < 0 {
		return fmt.Errorf("sync.claim_limit cannot be negative")
	}
	if c.Dashboard.Port < 0 || c.Dashboard.Port > 65535 {
		return fmt.Errorf("dashboard.port out of range: %d", c.Dashboard.Port)
	}
	return nil
}

// LanguageTag returns the parsed locale, falling back to US English.
func (c *Config) LanguageTag() language.Tag {
	tag, err := language.Parse(c.Locale)
	if err != nil {
		return language.AmericanEnglish
	}
	return tag
}
