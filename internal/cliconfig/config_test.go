package cliconfig

import (
	"bytes"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/nutriai/mealsync/pkg/mealsync"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.ServiceURL != DefaultServiceURL {
		t.Errorf("ServiceURL = %v, want %v", cfg.ServiceURL, DefaultServiceURL)
	}
	if cfg.MaxRetries != 5 {
		t.Errorf("MaxRetries = %v, want 5", cfg.MaxRetries)
	}
	if cfg.QueueCapacity != 50 {
		t.Errorf("QueueCapacity = %v, want 50", cfg.QueueCapacity)
	}
	if cfg.NetworkMode != mealsync.NetworkProbe {
		t.Errorf("NetworkMode = %v, want probe", cfg.NetworkMode)
	}
	if !strings.HasSuffix(cfg.StoreDir, ".mealsync") {
		t.Errorf("StoreDir = %v, want it to end in .mealsync", cfg.StoreDir)
	}
}

func TestConfig_Validate(t *testing.T) {
	valid := func() Config {
		c := DefaultConfig()
		c.StoreDir = "/tmp/mealsync"
		return c
	}

	tests := []struct {
		name     string
		mutate   func(*Config)
		wantErr  bool
		validate func(*testing.T, Config)
	}{
		{
			name:   "defaults are valid",
			mutate: func(c *Config) {},
			validate: func(t *testing.T, c Config) {
				if c.SQLitePath != filepath.Join("/tmp/mealsync", "mealsync.db") {
					t.Errorf("SQLitePath = %v", c.SQLitePath)
				}
				if c.FlagFile != filepath.Join("/tmp/mealsync", "online") {
					t.Errorf("FlagFile = %v", c.FlagFile)
				}
				if c.ProbeURL != DefaultServiceURL {
					t.Errorf("ProbeURL = %v, want service URL", c.ProbeURL)
				}
			},
		},
		{
			name:   "trailing slash removed",
			mutate: func(c *Config) { c.ServiceURL = "http://localhost:8080/" },
			validate: func(t *testing.T, c Config) {
				if c.ServiceURL != "http://localhost:8080" {
					t.Errorf("ServiceURL = %v", c.ServiceURL)
				}
			},
		},
		{
			name:    "missing store dir",
			mutate:  func(c *Config) { c.StoreDir = "" },
			wantErr: true,
		},
		{
			name:    "negative retries",
			mutate:  func(c *Config) { c.MaxRetries = -1 },
			wantErr: true,
		},
		{
			name:   "zero retries allowed",
			mutate: func(c *Config) { c.MaxRetries = 0 },
		},
		{
			name:    "zero capacity",
			mutate:  func(c *Config) { c.QueueCapacity = 0 },
			wantErr: true,
		},
		{
			name:    "unknown log format",
			mutate:  func(c *Config) { c.LogFormat = "xml" },
			wantErr: true,
		},
		{
			name:    "unknown store backend",
			mutate:  func(c *Config) { c.StoreBackend = "redis" },
			wantErr: true,
		},
		{
			name: "postgres needs database uri",
			mutate: func(c *Config) {
				c.RemoteBackend = mealsync.RemotePostgres
				c.NetworkMode = mealsync.NetworkAlways
			},
			wantErr: true,
		},
		{
			name:    "backoff max below initial",
			mutate:  func(c *Config) { c.BackoffMax = 10 * time.Millisecond },
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Fatalf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.validate != nil {
				tt.validate(t, cfg)
			}
		})
	}
}

func TestConfig_LibraryConfig(t *testing.T) {
	cfg := DefaultConfig()
	cfg.StoreDir = "/tmp/x"
	cfg.MaxRetries = 0
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate() error = %v", err)
	}

	lc := cfg.LibraryConfig()
	if lc.MaxRetries == nil || *lc.MaxRetries != 0 {
		t.Errorf("MaxRetries = %v, want explicit 0", lc.MaxRetries)
	}
	if lc.StoreDir != "/tmp/x" || lc.ServiceURL != DefaultServiceURL {
		t.Errorf("LibraryConfig() = %+v", lc)
	}
}

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer
	logFile := filepath.Join(t.TempDir(), "mealsync.log")

	logger, closer, err := newLogger(Config{LogLevel: "warn", LogFormat: "json", LogFile: logFile}, &buf)
	if err != nil {
		t.Fatalf("newLogger() error = %v", err)
	}
	defer closer.Close()

	logger.Info().Msg("hidden")
	logger.Warn().Str("id", "m1").Msg("shown")

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Errorf("info line written at warn level: %s", out)
	}
	if !strings.Contains(out, `"id":"m1"`) {
		t.Errorf("json output missing field: %s", out)
	}
	if !FileExists(logFile) {
		t.Error("log file was not created")
	}
}

func TestNewLogger_BadLevel(t *testing.T) {
	if _, _, err := newLogger(Config{LogLevel: "chatty"}, &bytes.Buffer{}); err == nil {
		t.Error("newLogger() expected error for unknown level")
	}
}
