package cliconfig

import (
	"time"

	"github.com/caarlos0/env/v6"
)

// EnvConfig is the set of MEALSYNC_* environment variables.
// Durations use Go syntax ("30s"). MaxRetries and Once are strings so an
// explicit "0" or "false" can override a config file.
type EnvConfig struct {
	StoreBackend   string        `env:"MEALSYNC_STORE_BACKEND"`
	StoreDir       string        `env:"MEALSYNC_STORE_DIR"`
	SQLitePath     string        `env:"MEALSYNC_SQLITE_PATH"`
	RemoteBackend  string        `env:"MEALSYNC_REMOTE_BACKEND"`
	ServiceURL     string        `env:"MEALSYNC_SERVICE_URL"`
	AuthToken      string        `env:"MEALSYNC_AUTH_TOKEN"`
	DatabaseURI    string        `env:"MEALSYNC_DATABASE_URI"`
	RemoteTimeout  time.Duration `env:"MEALSYNC_REMOTE_TIMEOUT"`
	MaxRetries     string        `env:"MEALSYNC_MAX_RETRIES"`
	QueueCapacity  int           `env:"MEALSYNC_QUEUE_CAPACITY"`
	BackoffInitial time.Duration `env:"MEALSYNC_BACKOFF_INITIAL"`
	BackoffMax     time.Duration `env:"MEALSYNC_BACKOFF_MAX"`
	NetworkMode    string        `env:"MEALSYNC_NETWORK_MODE"`
	ProbeURL       string        `env:"MEALSYNC_PROBE_URL"`
	ProbeInterval  time.Duration `env:"MEALSYNC_PROBE_INTERVAL"`
	FlagFile       string        `env:"MEALSYNC_FLAG_FILE"`
	ControlAddr    string        `env:"MEALSYNC_CONTROL_ADDR"`
	LogLevel       string        `env:"MEALSYNC_LOG_LEVEL"`
	LogFormat      string        `env:"MEALSYNC_LOG_FORMAT"`
	LogFile        string        `env:"MEALSYNC_LOG_FILE"`
	Once           string        `env:"MEALSYNC_ONCE"`
}

// ApplyEnvConfig applies configuration from environment variables (MEALSYNC_*).
// It respects flags that have been explicitly set (changed map).
// Returns error if any environment variable has an invalid format.
func ApplyEnvConfig(cfg *Config, changed map[string]bool) error {
	var ec EnvConfig
	if err := env.Parse(&ec); err != nil {
		return err
	}

	s := newConfigSetter(changed)

	s.setString("store-backend", ec.StoreBackend, &cfg.StoreBackend)
	s.setString("store-dir", ec.StoreDir, &cfg.StoreDir)
	s.setString("sqlite-path", ec.SQLitePath, &cfg.SQLitePath)
	s.setString("remote-backend", ec.RemoteBackend, &cfg.RemoteBackend)
	s.setString("service-url", ec.ServiceURL, &cfg.ServiceURL)
	s.setString("auth-token", ec.AuthToken, &cfg.AuthToken)
	s.setString("database-uri", ec.DatabaseURI, &cfg.DatabaseURI)
	s.setString("network-mode", ec.NetworkMode, &cfg.NetworkMode)
	s.setString("probe-url", ec.ProbeURL, &cfg.ProbeURL)
	s.setString("flag-file", ec.FlagFile, &cfg.FlagFile)
	s.setString("control-addr", ec.ControlAddr, &cfg.ControlAddr)
	s.setString("log-level", ec.LogLevel, &cfg.LogLevel)
	s.setString("log-format", ec.LogFormat, &cfg.LogFormat)
	s.setString("log-file", ec.LogFile, &cfg.LogFile)

	s.setDurationValue("remote-timeout", ec.RemoteTimeout, &cfg.RemoteTimeout)
	s.setDurationValue("backoff-initial", ec.BackoffInitial, &cfg.BackoffInitial)
	s.setDurationValue("backoff-max", ec.BackoffMax, &cfg.BackoffMax)
	s.setDurationValue("probe-interval", ec.ProbeInterval, &cfg.ProbeInterval)

	if err := s.setIntFromString("max-retries", ec.MaxRetries, &cfg.MaxRetries); err != nil {
		return err
	}
	s.setInt("queue-capacity", ec.QueueCapacity, &cfg.QueueCapacity)
	s.setBoolFromString("once", ec.Once, &cfg.Once)

	return nil
}
