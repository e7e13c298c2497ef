// Package config manages xolex configuration and the .xolex home directory.
// Values come from the config file first, then from XOLEX_* environment
// variables.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/pelletier/go-toml/v2"
)

const (
	HomeDir      = ".xolex"
	ConfigFile   = "config"
	DatabaseFile = "xolex.db"

	DefaultBaseURL    = "https://xolex-defacto.onrender.com"
	DefaultLogLevel   = "warn"
	DefaultLogFormat  = "text"
	DefaultCloseDelay = 800 * time.Millisecond
	DefaultTimeout    = 30 * time.Second
	DefaultRetryMax   = 2
)

// Duration is a time.Duration written as "800ms" in TOML and env values.
type Duration time.Duration

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

func (d *Duration) UnmarshalText(b []byte) error {
	v, err := time.ParseDuration(strings.TrimSpace(string(b)))
	if err != nil {
		return err
	}
	*d = Duration(v)
	return nil
}

// Std returns the value as a time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// Config is the client configuration.
type Config struct {
	BaseURL    string   `toml:"base_url"    env:"XOLEX_BASE_URL"`
	LogLevel   string   `toml:"log_level"   env:"XOLEX_LOG_LEVEL"`
	LogFormat  string   `toml:"log_format"  env:"XOLEX_LOG_FORMAT"`
	CloseDelay Duration `toml:"close_delay" env:"XOLEX_CLOSE_DELAY"`
	Timeout    Duration `toml:"timeout"     env:"XOLEX_TIMEOUT"`
	RetryMax   int      `toml:"retry_max"   env:"XOLEX_RETRY_MAX"`

	path string // path to the home directory
}

// Default returns a configuration with every value at its default.
func Default() *Config {
	return &Config{
		BaseURL:    DefaultBaseURL,
		LogLevel:   DefaultLogLevel,
		LogFormat:  DefaultLogFormat,
		CloseDelay: Duration(DefaultCloseDelay),
		Timeout:    Duration(DefaultTimeout),
		RetryMax:   DefaultRetryMax,
	}
}

// ResolveHome returns XOLEX_HOME if set, otherwise ~/.xolex.
func ResolveHome() (string, error) {
	if h := os.Getenv("XOLEX_HOME"); h != "" {
		return h, nil
	}
	userHome, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve home directory: %w", err)
	}
	return filepath.Join(userHome, HomeDir), nil
}

// Load reads the configuration in home. A missing file yields the defaults.
// Environment variables override file values.
func Load(home string) (*Config, error) {
	cfg, err := readFile(home)
	if err != nil {
		return nil, err
	}

	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadFile reads the configuration in home without environment overrides,
// for editing and saving back.
func LoadFile(home string) (*Config, error) {
	if err := os.MkdirAll(home, 0700); err != nil {
		return nil, fmt.Errorf("failed to create %s: %w", home, err)
	}
	cfg, err := readFile(home)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func readFile(home string) (*Config, error) {
	cfg := Default()
	cfg.path = home

	data, err := os.ReadFile(filepath.Join(home, ConfigFile))
	switch {
	case errors.Is(err, os.ErrNotExist):
	case err != nil:
		return nil, fmt.Errorf("failed to read config: %w", err)
	default:
		if err := toml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
	}
	return cfg, nil
}

// Validate checks that every value is usable.
func (c *Config) Validate() error {
	u, err := url.Parse(c.BaseURL)
	if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		return fmt.Errorf("invalid base_url %q", c.BaseURL)
	}
	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid log_level %q (want debug, info, warn or error)", c.LogLevel)
	}
	switch c.LogFormat {
	case "text", "json":
	default:
		return fmt.Errorf("invalid log_format %q (want text or json)", c.LogFormat)
	}
	if c.CloseDelay < 0 {
		return fmt.Errorf("invalid close_delay %s", c.CloseDelay.Std())
	}
	if c.Timeout <= 0 {
		return fmt.Errorf("invalid timeout %s", c.Timeout.Std())
	}
	if c.RetryMax < 0 {
		return fmt.Errorf("invalid retry_max %d", c.RetryMax)
	}
	return nil
}

// Save writes the configuration to disk.
func (c *Config) Save() error {
	data, err := toml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	return os.WriteFile(filepath.Join(c.path, ConfigFile), data, 0600)
}

// Initialize creates home and writes a default config unless one exists.
func Initialize(home string) (*Config, error) {
	if err := os.MkdirAll(home, 0700); err != nil {
		return nil, fmt.Errorf("failed to create %s: %w", home, err)
	}
	if _, err := os.Stat(filepath.Join(home, ConfigFile)); err == nil {
		return Load(home)
	}

	cfg := Default()
	cfg.path = home
	if err := cfg.Save(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Path returns the home directory.
func (c *Config) Path() string {
	return c.path
}

// DatabasePath returns the path to the credential database.
func (c *Config) DatabasePath() string {
	return filepath.Join(c.path, DatabaseFile)
}

// Keys lists the settable keys in file order.
func Keys() []string {
	return []string{"base_url", "log_level", "log_format", "close_delay", "timeout", "retry_max"}
}

// Get returns the value of key as text.
func (c *Config) Get(key string) (string, error) {
	switch key {
	case "base_url":
		return c.BaseURL, nil
	case "log_level":
		return c.LogLevel, nil
	case "log_format":
		return c.LogFormat, nil
	case "close_delay":
		return c.CloseDelay.Std().String(), nil
	case "timeout":
		return c.Timeout.Std().String(), nil
	case "retry_max":
		return strconv.Itoa(c.RetryMax), nil
	default:
		return "", fmt.Errorf("unknown config key %q", key)
	}
}

// Set parses value into key and validates the result. On error c is unchanged.
func (c *Config) Set(key, value string) error {
	next := *c
	switch key {
	case "base_url":
		next.BaseURL = strings.TrimRight(value, "/")
	case "log_level":
		next.LogLevel = strings.ToLower(value)
	case "log_format":
		next.LogFormat = strings.ToLower(value)
	case "close_delay":
		if err := next.CloseDelay.UnmarshalText([]byte(value)); err != nil {
			return fmt.Errorf("close_delay: %w", err)
		}
	case "timeout":
		if err := next.Timeout.UnmarshalText([]byte(value)); err != nil {
			return fmt.Errorf("timeout: %w", err)
		}
	case "retry_max":
		n, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("retry_max: %w", err)
		}
		next.RetryMax = n
	default:
		return fmt.Errorf("unknown config key %q", key)
	}
	if err := next.Validate(); err != nil {
		return err
	}
	*c = next
	return nil
}
