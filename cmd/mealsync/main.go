package main

import (
	"fmt"
	"os"
	"runtime"
	"runtime/debug"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	pflag "github.com/spf13/pflag"

	logAdapter "github.com/nutriai/mealsync/internal/adapters/log"
	"github.com/nutriai/mealsync/internal/cliconfig"
	"github.com/nutriai/mealsync/pkg/mealsync"
)

const helpDescription = `
Keep meal logging working without a connection.

Writes made while offline are stored in a bounded local queue (50 entries,
oldest dropped first) and replayed in order once the meal service is
reachable again. Entries that keep failing are dropped after max-retries.

Run "mealsync" to start the sync daemon with its local control API, or use
the subcommands to inspect the queue and write meals from scripts.
`

var exampleUsage = strings.TrimSpace(`
  mealsync --service-url https://meals.example.com --auth-token <token>
  mealsync --network-mode flagfile --control-addr 127.0.0.1:7771
  mealsync meal create --file breakfast.json
  mealsync queue list
  mealsync sync
`)

func getVersion() string {
	if info, ok := debug.ReadBuildInfo(); ok && info.Main.Version != "" && info.Main.Version != "(devel)" {
		return info.Main.Version
	}
	return mealsync.Version
}

// app carries the configuration shared by all commands.
type app struct {
	cfg     cliconfig.Config
	cfgPath string
	log     zerolog.Logger
	closers []func() error
}

func main() {
	a := &app{
		cfg: cliconfig.DefaultConfig(),
		log: zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}).With().Timestamp().Logger(),
	}

	root := &cobra.Command{
		Use:           "mealsync",
		Short:         "Offline write queue and sync daemon for meal records",
		Long:          strings.TrimSpace(helpDescription),
		Example:       exampleUsage,
		Version:       fmt.Sprintf("%s %s/%s", getVersion(), runtime.GOOS, runtime.GOARCH),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.loadConfig(cmd)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runDaemon(cmd)
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			a.close()
		},
	}

	a.bindFlags(root.PersistentFlags())
	root.AddCommand(a.syncCmd(), a.queueCmd(), a.mealCmd())

	if err := root.Execute(); err != nil {
		a.log.Error().Err(err).Msg("mealsync")
		a.close()
		os.Exit(1)
	}
}

func (a *app) bindFlags(fs *pflag.FlagSet) {
	cfg := &a.cfg
	fs.StringVar(&a.cfgPath, "config", "", "path to config file (default: $HOME/.mealsync/config.toml)")

	fs.StringVar(&cfg.StoreBackend, "store-backend", cfg.StoreBackend, "where the queue is persisted: file, sqlite or memory")
	fs.StringVar(&cfg.StoreDir, "store-dir", cfg.StoreDir, "directory for the file store and default sqlite database")
	fs.StringVar(&cfg.SQLitePath, "sqlite-path", cfg.SQLitePath, "sqlite database path (defaults to store-dir/mealsync.db)")

	fs.StringVar(&cfg.RemoteBackend, "remote-backend", cfg.RemoteBackend, "meal store: http or postgres")
	fs.StringVar(&cfg.ServiceURL, "service-url", cfg.ServiceURL, "meal service base URL")
	fs.StringVar(&cfg.AuthToken, "auth-token", cfg.AuthToken, "bearer token for the meal service")
	fs.StringVar(&cfg.DatabaseURI, "database-uri", cfg.DatabaseURI, "PostgreSQL connection string (postgres backend)")
	fs.DurationVar(&cfg.RemoteTimeout, "remote-timeout", cfg.RemoteTimeout, "timeout of each remote call")

	fs.IntVar(&cfg.MaxRetries, "max-retries", cfg.MaxRetries, "failed replays an entry survives before it is dropped")
	fs.IntVar(&cfg.QueueCapacity, "queue-capacity", cfg.QueueCapacity, "maximum queued writes")
	fs.DurationVar(&cfg.BackoffInitial, "backoff-initial", cfg.BackoffInitial, "delay before the next drain after a failure")
	fs.DurationVar(&cfg.BackoffMax, "backoff-max", cfg.BackoffMax, "maximum delay between failing drains")

	fs.StringVar(&cfg.NetworkMode, "network-mode", cfg.NetworkMode, "connectivity source: probe, flagfile or always")
	fs.StringVar(&cfg.ProbeURL, "probe-url", cfg.ProbeURL, "URL polled in probe mode (defaults to service-url)")
	fs.DurationVar(&cfg.ProbeInterval, "probe-interval", cfg.ProbeInterval, "probe interval")
	fs.StringVar(&cfg.FlagFile, "flag-file", cfg.FlagFile, "file whose presence means online in flagfile mode")

	fs.StringVar(&cfg.ControlAddr, "control-addr", cfg.ControlAddr, "listen address of the control API (empty disables it)")

	fs.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "log level (debug, info, warn, error)")
	fs.StringVar(&cfg.LogFormat, "log-format", cfg.LogFormat, "log format: console or json")
	fs.StringVar(&cfg.LogFile, "log-file", cfg.LogFile, "also write JSON logs to this file, rotated")

	fs.BoolVar(&cfg.Once, "once", cfg.Once, "drain the queue once and exit")
}

// loadConfig applies file, env and flags, in increasing precedence.
func (a *app) loadConfig(cmd *cobra.Command) error {
	cfgFile := a.cfgPath
	if cfgFile == "" {
		cfgFile = cliconfig.DefaultConfigPath()
	}

	changed := map[string]bool{}
	cmd.Flags().Visit(func(f *pflag.Flag) { changed[f.Name] = true })

	if cfgFile != "" && cliconfig.FileExists(cfgFile) {
		fc, err := cliconfig.LoadFileConfig(cfgFile)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		if err := cliconfig.ApplyFileConfig(&a.cfg, fc, changed); err != nil {
			return err
		}
	}

	if err := cliconfig.ApplyEnvConfig(&a.cfg, changed); err != nil {
		return fmt.Errorf("environment: %w", err)
	}

	if err := a.cfg.Validate(); err != nil {
		return err
	}

	logger, closer, err := cliconfig.NewLogger(a.cfg)
	if err != nil {
		return err
	}
	a.log = logger
	a.closers = append(a.closers, closer.Close)

	logCfg := a.cfg
	if logCfg.AuthToken != "" {
		logCfg.AuthToken = "*****"
	}
	if logCfg.DatabaseURI != "" {
		logCfg.DatabaseURI = "*****"
	}
	a.log.Debug().Interface("config", logCfg).Msg("configuration")
	return nil
}

// newService builds the library service from the loaded configuration.
func (a *app) newService(opts ...mealsync.Option) (*mealsync.Service, error) {
	opts = append([]mealsync.Option{
		mealsync.WithLogger(logAdapter.NewZerologAdapterWithLogger(a.log)),
	}, opts...)

	svc, err := mealsync.New(a.cfg.LibraryConfig(), opts...)
	if err != nil {
		return nil, fmt.Errorf("create service: %w", err)
	}
	a.closers = append(a.closers, svc.Close)
	return svc, nil
}

func (a *app) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			a.log.Warn().Err(err).Msg("close")
		}
	}
	a.closers = nil
}
