package cliconfig

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/nutriai/mealsync/pkg/mealsync"
)

// Defaults for the CLI.
const (
	DefaultServiceURL  = "http://localhost:7770"
	DefaultControlAddr = "127.0.0.1:7771"
)

// Config holds CLI configuration for mealsync.
type Config struct {
	StoreBackend string
	StoreDir     string
	SQLitePath   string

	RemoteBackend string
	ServiceURL    string
	AuthToken     string
	DatabaseURI   string
	RemoteTimeout time.Duration

	MaxRetries     int
	QueueCapacity  int
	BackoffInitial time.Duration
	BackoffMax     time.Duration

	NetworkMode   string
	ProbeURL      string
	ProbeInterval time.Duration
	FlagFile      string

	ControlAddr string

	LogLevel  string
	LogFormat string
	LogFile   string

	Once bool
}

// DefaultConfig returns a Config with default values.
func DefaultConfig() Config {
	return Config{
		StoreBackend:   mealsync.StoreFile,
		StoreDir:       defaultStoreDir(),
		RemoteBackend:  mealsync.RemoteHTTP,
		ServiceURL:     DefaultServiceURL,
		RemoteTimeout:  mealsync.DefaultRemoteTimeout,
		MaxRetries:     mealsync.DefaultMaxRetries,
		QueueCapacity:  mealsync.DefaultQueueCapacity,
		BackoffInitial: time.Second,
		BackoffMax:     time.Minute,
		NetworkMode:    mealsync.NetworkProbe,
		ProbeInterval:  mealsync.DefaultProbeInterval,
		ControlAddr:    DefaultControlAddr,
		LogLevel:       "info",
		LogFormat:      "console",
	}
}

func defaultStoreDir() string {
	if h, err := os.UserHomeDir(); err == nil {
		return filepath.Join(h, ".mealsync")
	}
	return ".mealsync"
}

// Validate checks the configuration for errors and sets derived defaults.
func (c *Config) Validate() error {
	if c.StoreDir == "" {
		return fmt.Errorf("store-dir is required")
	}
	if c.SQLitePath == "" {
		c.SQLitePath = filepath.Join(c.StoreDir, "mealsync.db")
	}
	if c.FlagFile == "" {
		c.FlagFile = filepath.Join(c.StoreDir, "online")
	}

	// Ensure no trailing slash
	c.ServiceURL = strings.TrimRight(c.ServiceURL, "/")
	if c.ProbeURL == "" && c.RemoteBackend == mealsync.RemoteHTTP {
		c.ProbeURL = c.ServiceURL
	}

	if c.MaxRetries < 0 {
		return fmt.Errorf("max-retries must not be negative")
	}
	if c.QueueCapacity <= 0 {
		return fmt.Errorf("queue-capacity must be positive")
	}
	if c.RemoteTimeout <= 0 {
		return fmt.Errorf("remote-timeout must be positive")
	}
	switch c.LogFormat {
	case "console", "json":
	default:
		return fmt.Errorf("log-format must be console or json, got %q", c.LogFormat)
	}

	lc := c.LibraryConfig()
	lc.SetDefaults()
	return lc.Validate()
}

// LibraryConfig converts the CLI configuration into the service
// configuration.
func (c *Config) LibraryConfig() mealsync.Config {
	return mealsync.Config{
		StoreBackend:   c.StoreBackend,
		StoreDir:       c.StoreDir,
		SQLitePath:     c.SQLitePath,
		RemoteBackend:  c.RemoteBackend,
		ServiceURL:     c.ServiceURL,
		AuthToken:      c.AuthToken,
		DatabaseURI:    c.DatabaseURI,
		RemoteTimeout:  c.RemoteTimeout,
		MaxRetries:     mealsync.Retries(c.MaxRetries),
		QueueCapacity:  c.QueueCapacity,
		BackoffInitial: c.BackoffInitial,
		BackoffMax:     c.BackoffMax,
		NetworkMode:    c.NetworkMode,
		ProbeURL:       c.ProbeURL,
		ProbeInterval:  c.ProbeInterval,
		FlagFile:       c.FlagFile,
	}
}

// configSetter helps apply configuration values while respecting flag precedence.
// It only applies values if the corresponding flag hasn't been explicitly set.
type configSetter struct {
	changed map[string]bool
}

func newConfigSetter(changed map[string]bool) *configSetter {
	return &configSetter{changed: changed}
}

// setString sets a string value if not empty and flag not changed.
func (s *configSetter) setString(flag, value string, dst *string) {
	if value == "" || s.changed[flag] {
		return
	}
	*dst = value
}

// setInt sets an int value if positive and flag not changed.
func (s *configSetter) setInt(flag string, value int, dst *int) {
	if value <= 0 || s.changed[flag] {
		return
	}
	*dst = value
}

// setIntPtr sets an int from a pointer, zero included.
func (s *configSetter) setIntPtr(flag string, value *int, dst *int) {
	if value == nil || s.changed[flag] {
		return
	}
	*dst = *value
}

// setDuration parses and sets a duration from string if valid and flag not changed.
func (s *configSetter) setDuration(flag, value string, dst *time.Duration) error {
	if value == "" || s.changed[flag] {
		return nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return fmt.Errorf("parse %s: %w", flag, err)
	}
	*dst = d
	return nil
}

// setDurationValue sets an already parsed duration if positive.
func (s *configSetter) setDurationValue(flag string, value time.Duration, dst *time.Duration) {
	if value <= 0 || s.changed[flag] {
		return
	}
	*dst = value
}

// setBool sets a bool value from a pointer if not nil and flag not changed.
func (s *configSetter) setBool(flag string, value *bool, dst *bool) {
	if value == nil || s.changed[flag] {
		return
	}
	*dst = *value
}

// setIntFromString parses a string to int, zero included.
// Used for environment variables where zero is meaningful.
func (s *configSetter) setIntFromString(flag, value string, dst *int) error {
	if value == "" || s.changed[flag] {
		return nil
	}
	i, err := strconv.Atoi(value)
	if err != nil {
		return fmt.Errorf("parse %s: %w", flag, err)
	}
	*dst = i
	return nil
}

// setBoolFromString parses a string to bool and sets the destination.
// Accepts "true", "1" as true, anything else as false.
func (s *configSetter) setBoolFromString(flag, value string, dst *bool) {
	if value == "" || s.changed[flag] {
		return
	}
	*dst = value == "true" || value == "1"
}
