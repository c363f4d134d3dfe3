// Package config loads optional defaults from config.yaml and ROUTINEO_*
// environment variables.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/julianstephens/routineo/internal/constants"
	apperrors "github.com/julianstephens/routineo/internal/errors"
	"github.com/julianstephens/routineo/internal/retry"
	"github.com/julianstephens/routineo/internal/utils"
)

const (
	FileName  = "config.yaml"
	EnvPrefix = "ROUTINEO"
)

// RetryConfig bounds automatic retries of transient auth failures.
type RetryConfig struct {
	Attempts int `mapstructure:"attempts" yaml:"attempts"`
	DelayMS  int `mapstructure:"delay_ms" yaml:"delay_ms"`
}

// Config holds defaults for the CLI flags plus settings that have no flag.
type Config struct {
	// Database is a SQLite path or a PostgreSQL URL without credentials.
	Database string `mapstructure:"database" yaml:"database"`

	// LocalStore picks the device-local backend: auto, keyring or file.
	LocalStore string `mapstructure:"local_store" yaml:"local_store"`

	Debug bool `mapstructure:"debug" yaml:"debug"`

	// Timezone overrides the system zone used for calendar dates and the
	// reset time. Empty means the system zone.
	Timezone string `mapstructure:"timezone" yaml:"timezone"`

	Retry           RetryConfig `mapstructure:"retry" yaml:"retry"`
	SessionTTLHours int         `mapstructure:"session_ttl_hours" yaml:"session_ttl_hours"`

	// PollIntervalMS is how often a SQLite store checks for commits made by
	// other processes. 0 disables polling.
	PollIntervalMS int `mapstructure:"poll_interval_ms" yaml:"poll_interval_ms"`
}

// DefaultPath returns ~/.config/routineo/config.yaml.
func DefaultPath() string {
	dir, err := utils.ExpandHome(constants.DefaultConfigDir)
	if err != nil {
		return FileName
	}
	return filepath.Join(dir, FileName)
}

func Default() *Config {
	return &Config{
		Database:   constants.DefaultConfigPath,
		LocalStore: constants.LocalStoreAuto,
		Retry: RetryConfig{
			Attempts: constants.AuthMaxAttempts,
			DelayMS:  int(constants.AuthRetryDelay / time.Millisecond),
		},
		SessionTTLHours: int(constants.DefaultSessionTTL / time.Hour),
		PollIntervalMS:  1000,
	}
}

func newViper(path string) *viper.Viper {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	d := Default()
	v.SetDefault("database", d.Database)
	v.SetDefault("local_store", d.LocalStore)
	v.SetDefault("debug", d.Debug)
	v.SetDefault("timezone", d.Timezone)
	v.SetDefault("retry.attempts", d.Retry.Attempts)
	v.SetDefault("retry.delay_ms", d.Retry.DelayMS)
	v.SetDefault("session_ttl_hours", d.SessionTTLHours)
	v.SetDefault("poll_interval_ms", d.PollIntervalMS)
	return v
}

// Load reads path. A missing file yields the defaults, still overridden by
// the environment.
func Load(path string) (*Config, error) {
	v := newViper(path)
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("reading config %s: %w", path, err)
		}
	}

	cfg := Default()
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects values no command could run with.
func (c *Config) Validate() error {
	const op = "config"
	switch c.LocalStore {
	case constants.LocalStoreAuto, constants.LocalStoreKeyring, constants.LocalStoreFile, "":
	default:
		return apperrors.Validationf(op, "local_store must be %s, %s or %s, got %q",
			constants.LocalStoreAuto, constants.LocalStoreKeyring, constants.LocalStoreFile, c.LocalStore)
	}
	if c.Timezone != "" && !utils.ValidateTimezone(c.Timezone) {
		return apperrors.Validationf(op, "unknown timezone %q", c.Timezone)
	}
	if c.Retry.Attempts < 1 {
		return apperrors.Validation(op, "retry.attempts must be at least 1")
	}
	if c.Retry.DelayMS < 0 || c.PollIntervalMS < 0 || c.SessionTTLHours < 1 {
		return apperrors.Validation(op, "durations must not be negative and session_ttl_hours must be at least 1")
	}
	return nil
}

// Save writes cfg as YAML, creating the directory if needed.
func Save(path string, cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating config directory %s: %w", filepath.Dir(path), err)
	}

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	v.Set("database", cfg.Database)
	v.Set("local_store", cfg.LocalStore)
	v.Set("debug", cfg.Debug)
	v.Set("timezone", cfg.Timezone)
	v.Set("retry.attempts", cfg.Retry.Attempts)
	v.Set("retry.delay_ms", cfg.Retry.DelayMS)
	v.Set("session_ttl_hours", cfg.SessionTTLHours)
	v.Set("poll_interval_ms", cfg.PollIntervalMS)

	if err := v.WriteConfigAs(path); err != nil {
		return fmt.Errorf("writing config to %s: %w", path, err)
	}
	return nil
}

func (c *Config) RetryPolicy() retry.Policy {
	return retry.Policy{
		MaxAttempts: c.Retry.Attempts,
		Delay:       time.Duration(c.Retry.DelayMS) * time.Millisecond,
		Multiplier:  2,
		Retryable:   apperrors.Retryable,
	}
}

func (c *Config) SessionTTL() time.Duration {
	return time.Duration(c.SessionTTLHours) * time.Hour
}

func (c *Config) PollInterval() time.Duration {
	return time.Duration(c.PollIntervalMS) * time.Millisecond
}

// Location returns the configured zone, or time.Local.
func (c *Config) Location() (*time.Location, error) {
	if c.Timezone == "" {
		return time.Local, nil
	}
	return utils.LoadLocation(c.Timezone)
}
