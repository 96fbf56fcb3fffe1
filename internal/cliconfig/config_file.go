package cliconfig

import (
	"os"
	"path/filepath"
	"time"

	toml "github.com/pelletier/go-toml/v2"
)

// FileConfig mirrors Config but uses strings for durations to make TOML friendly.
type FileConfig struct {
	StoreBackend   string `toml:"store_backend"`
	StoreDir       string `toml:"store_dir"`
	SQLitePath     string `toml:"sqlite_path"`
	RemoteBackend  string `toml:"remote_backend"`
	ServiceURL     string `toml:"service_url"`
	AuthToken      string `toml:"auth_token"`
	DatabaseURI    string `toml:"database_uri"`
	RemoteTimeout  string `toml:"remote_timeout"`
	MaxRetries     *int   `toml:"max_retries"`
	QueueCapacity  int    `toml:"queue_capacity"`
	BackoffInitial string `toml:"backoff_initial"`
	BackoffMax     string `toml:"backoff_max"`
	NetworkMode    string `toml:"network_mode"`
	ProbeURL       string `toml:"probe_url"`
	ProbeInterval  string `toml:"probe_interval"`
	FlagFile       string `toml:"flag_file"`
	ControlAddr    string `toml:"control_addr"`
	LogLevel       string `toml:"log_level"`
	LogFormat      string `toml:"log_format"`
	LogFile        string `toml:"log_file"`
	Once           *bool  `toml:"once"`
}

// LoadFileConfig reads and parses a TOML config file from the given path.
func LoadFileConfig(path string) (FileConfig, error) {
	var fc FileConfig
	b, err := os.ReadFile(path)
	if err != nil {
		return fc, err
	}
	if err := toml.Unmarshal(b, &fc); err != nil {
		return fc, err
	}
	return fc, nil
}

// DefaultConfigPath returns ~/.mealsync/config.toml, or "" when the home
// directory is unknown.
func DefaultConfigPath() string {
	if h, err := os.UserHomeDir(); err == nil {
		return filepath.Join(h, ".mealsync", "config.toml")
	}
	return ""
}

// ApplyFileConfig applies configuration from a file to the Config struct.
// It respects flags that have been explicitly set (changed map).
func ApplyFileConfig(cfg *Config, fc FileConfig, changed map[string]bool) error {
	s := newConfigSetter(changed)

	s.setString("store-backend", fc.StoreBackend, &cfg.StoreBackend)
	s.setString("store-dir", fc.StoreDir, &cfg.StoreDir)
	s.setString("sqlite-path", fc.SQLitePath, &cfg.SQLitePath)
	s.setString("remote-backend", fc.RemoteBackend, &cfg.RemoteBackend)
	s.setString("service-url", fc.ServiceURL, &cfg.ServiceURL)
	s.setString("auth-token", fc.AuthToken, &cfg.AuthToken)
	s.setString("database-uri", fc.DatabaseURI, &cfg.DatabaseURI)
	s.setString("network-mode", fc.NetworkMode, &cfg.NetworkMode)
	s.setString("probe-url", fc.ProbeURL, &cfg.ProbeURL)
	s.setString("flag-file", fc.FlagFile, &cfg.FlagFile)
	s.setString("control-addr", fc.ControlAddr, &cfg.ControlAddr)
	s.setString("log-level", fc.LogLevel, &cfg.LogLevel)
	s.setString("log-format", fc.LogFormat, &cfg.LogFormat)
	s.setString("log-file", fc.LogFile, &cfg.LogFile)

	durations := []struct {
		flag  string
		value string
		dst   *time.Duration
	}{
		{"remote-timeout", fc.RemoteTimeout, &cfg.RemoteTimeout},
		{"backoff-initial", fc.BackoffInitial, &cfg.BackoffInitial},
		{"backoff-max", fc.BackoffMax, &cfg.BackoffMax},
		{"probe-interval", fc.ProbeInterval, &cfg.ProbeInterval},
	}
	for _, d := range durations {
		if err := s.setDuration(d.flag, d.value, d.dst); err != nil {
			return err
		}
	}

	s.setIntPtr("max-retries", fc.MaxRetries, &cfg.MaxRetries)
	s.setInt("queue-capacity", fc.QueueCapacity, &cfg.QueueCapacity)
	s.setBool("once", fc.Once, &cfg.Once)

	return nil
}

// FileExists checks if a file exists at the given path.
func FileExists(p string) bool {
	_, err := os.Stat(p)
	return err == nil
}
