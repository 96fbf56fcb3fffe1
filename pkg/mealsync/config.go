package mealsync

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/nutriai/mealsync/internal/app"
	"github.com/nutriai/mealsync/internal/domain"
)

// Store backends.
const (
	StoreFile   = "file"
	StoreSQLite = "sqlite"
	StoreMemory = "memory"
)

// Remote backends.
const (
	RemoteHTTP     = "http"
	RemotePostgres = "postgres"
)

// Network modes.
const (
	NetworkProbe    = "probe"
	NetworkFlagFile = "flagfile"
	NetworkAlways   = "always"
)

// Defaults.
const (
	DefaultStoreDir      = ".mealsync"
	DefaultProbeInterval = 15 * time.Second
	DefaultQueueCapacity = app.DefaultQueueCapacity
	DefaultMaxRetries    = app.DefaultMaxRetries
	DefaultRemoteTimeout = app.DefaultRemoteTimeout
)

// Config holds the settings of a Service.
type Config struct {
	// StoreBackend is file, sqlite or memory. Default: file.
	StoreBackend string

	// StoreDir holds the file store and the default sqlite database.
	StoreDir string

	// SQLitePath defaults to StoreDir/mealsync.db.
	SQLitePath string

	// RemoteBackend is http or postgres. Default: http.
	RemoteBackend string

	// ServiceURL is the meal service base URL (http backend).
	ServiceURL string

	// AuthToken is used when the store holds no token.
	AuthToken string

	// DatabaseURI is the PostgreSQL DSN (postgres backend).
	DatabaseURI string

	// RemoteTimeout bounds each remote call. Default: 15s.
	RemoteTimeout time.Duration

	// MaxRetries is the number of failed replays an entry survives.
	// Nil means DefaultMaxRetries; zero poisons on the first failure.
	MaxRetries *int

	// QueueCapacity bounds the queue. Default: 50.
	QueueCapacity int

	BackoffInitial time.Duration
	BackoffMax     time.Duration

	// NetworkMode is probe, flagfile or always. Default: probe.
	NetworkMode string

	// ProbeURL defaults to ServiceURL.
	ProbeURL      string
	ProbeInterval time.Duration

	// FlagFile defaults to StoreDir/online.
	FlagFile string
}

// SetDefaults fills zero fields.
func (c *Config) SetDefaults() {
	if c.StoreBackend == "" {
		c.StoreBackend = StoreFile
	}
	if c.StoreDir == "" {
		c.StoreDir = DefaultStoreDir
	}
	if c.SQLitePath == "" {
		c.SQLitePath = filepath.Join(c.StoreDir, "mealsync.db")
	}
	if c.RemoteBackend == "" {
		c.RemoteBackend = RemoteHTTP
	}
	c.ServiceURL = strings.TrimRight(c.ServiceURL, "/")
	if c.RemoteTimeout <= 0 {
		c.RemoteTimeout = DefaultRemoteTimeout
	}
	if c.MaxRetries == nil {
		n := DefaultMaxRetries
		c.MaxRetries = &n
	}
	if c.QueueCapacity <= 0 {
		c.QueueCapacity = DefaultQueueCapacity
	}
	if c.BackoffInitial <= 0 {
		c.BackoffInitial = app.DefaultBackoffInitial
	}
	if c.BackoffMax <= 0 {
		c.BackoffMax = app.DefaultBackoffMax
	}
	if c.NetworkMode == "" {
		c.NetworkMode = NetworkProbe
	}
	if c.ProbeURL == "" && c.RemoteBackend == RemoteHTTP {
		c.ProbeURL = c.ServiceURL
	}
	if c.ProbeInterval <= 0 {
		c.ProbeInterval = DefaultProbeInterval
	}
	if c.FlagFile == "" {
		c.FlagFile = filepath.Join(c.StoreDir, "online")
	}
}

// Validate checks a Config after SetDefaults.
func (c *Config) Validate() error {
	switch c.StoreBackend {
	case StoreFile, StoreSQLite, StoreMemory:
	default:
		return fmt.Errorf("%w: unknown store backend %q", domain.ErrInvalidConfig, c.StoreBackend)
	}

	switch c.RemoteBackend {
	case RemoteHTTP:
		if c.ServiceURL == "" {
			return fmt.Errorf("%w: service URL is required for the http backend", domain.ErrInvalidConfig)
		}
	case RemotePostgres:
		if c.DatabaseURI == "" {
			return fmt.Errorf("%w: database URI is required for the postgres backend", domain.ErrInvalidConfig)
		}
	default:
		return fmt.Errorf("%w: unknown remote backend %q", domain.ErrInvalidConfig, c.RemoteBackend)
	}

	switch c.NetworkMode {
	case NetworkProbe:
		if c.ProbeURL == "" {
			return fmt.Errorf("%w: probe URL is required for network mode probe", domain.ErrInvalidConfig)
		}
	case NetworkFlagFile, NetworkAlways:
	default:
		return fmt.Errorf("%w: unknown network mode %q", domain.ErrInvalidConfig, c.NetworkMode)
	}

	if c.MaxRetries != nil && *c.MaxRetries < 0 {
		return fmt.Errorf("%w: max retries must not be negative", domain.ErrInvalidConfig)
	}
	if c.BackoffMax < c.BackoffInitial {
		return fmt.Errorf("%w: backoff max %s is below backoff initial %s", domain.ErrInvalidConfig, c.BackoffMax, c.BackoffInitial)
	}
	return nil
}

// Retries returns n as a MaxRetries value.
func Retries(n int) *int {
	return &n
}
