package mealsync

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nutriai/mealsync/internal/adapters/fs"
	httpAdapter "github.com/nutriai/mealsync/internal/adapters/http"
	logAdapter "github.com/nutriai/mealsync/internal/adapters/log"
	"github.com/nutriai/mealsync/internal/adapters/memory"
	"github.com/nutriai/mealsync/internal/adapters/netmon"
	"github.com/nutriai/mealsync/internal/adapters/postgres"
	"github.com/nutriai/mealsync/internal/adapters/sqlite"
	"github.com/nutriai/mealsync/internal/app"
	"github.com/nutriai/mealsync/internal/lock"
	"github.com/nutriai/mealsync/internal/ports"
)

// openTimeout bounds opening database backends in New.
const openTimeout = 30 * time.Second

// ErrManualNetworkOnly is returned by SetOnline when the service watches
// real connectivity.
var ErrManualNetworkOnly = errors.New("connectivity can only be set in network mode always")

// Service owns the queue, the reconciler and the write path.
// Use New to create one and Start to begin background syncing.
type Service struct {
	config     Config
	logger     ports.Logger
	lifecycle  *app.Lifecycle
	emitter    *eventEmitterWrapper
	store      ports.KVStore
	remote     ports.RemoteMealStore
	monitor    ports.NetworkMonitor
	manual     *netmon.Manual
	queue      *app.Queue
	reconciler *app.Reconciler
	meals      *app.MealService
	closers    []io.Closer

	// refreshed is set once the meal cache has been refreshed from the
	// remote.
	refreshed atomic.Bool

	mu sync.Mutex
}

// Status is a point-in-time view of the service.
type Status struct {
	State         State
	Draining      bool
	Online        bool
	QueueLength   int
	QueueCapacity int
	LastDrain     *DrainStats
	LastDrainAt   time.Time
}

// New creates a Service in StateStopped. Writes work before Start, but
// queued entries are only replayed by DrainOnce until Start runs the
// reconciler.
func New(cfg Config, opts ...Option) (*Service, error) {
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}

	var logger ports.Logger = logAdapter.NewNoopLogger()
	if o.logger != nil {
		logger = o.logger
	}

	emitter := &eventEmitterWrapper{handler: o.eventHandler, now: time.Now}
	s := &Service{
		config:    cfg,
		logger:    logger,
		lifecycle: app.NewLifecycle(logger, emitter),
		emitter:   emitter,
	}

	ctx, cancel := context.WithTimeout(context.Background(), openTimeout)
	defer cancel()

	var err error
	if s.store, err = s.openStore(ctx, o); err != nil {
		return nil, err
	}
	if s.remote, err = s.openRemote(ctx, o); err != nil {
		_ = s.Close()
		return nil, err
	}
	s.monitor = s.openMonitor(o)

	locks := s.openLocker(o)
	s.queue = app.NewQueue(s.store, locks, logger, app.QueueConfig{
		Capacity: cfg.QueueCapacity,
		OnEvict:  emitter.onEvict,
	})
	s.reconciler = app.NewReconciler(app.ReconcilerConfig{
		MaxRetries:     *cfg.MaxRetries,
		RemoteTimeout:  cfg.RemoteTimeout,
		BackoffInitial: cfg.BackoffInitial,
		BackoffMax:     cfg.BackoffMax,
		AfterDrain:     s.refreshAfterDrain,
	}, s.queue, s.remote, s.monitor, logger, emitter)
	s.meals = app.NewMealService(
		s.queue,
		app.NewMealCache(s.store, locks),
		s.remote,
		s.monitor,
		s.reconciler,
		logger,
		cfg.RemoteTimeout,
	)
	return s, nil
}

func (s *Service) openStore(ctx context.Context, o options) (ports.KVStore, error) {
	if o.store != nil {
		return o.store, nil
	}
	switch s.config.StoreBackend {
	case StoreMemory:
		return memory.NewKVStore(), nil
	case StoreSQLite:
		st, err := sqlite.Open(ctx, s.config.SQLitePath)
		if err != nil {
			return nil, err
		}
		s.closers = append(s.closers, st)
		return st, nil
	default:
		return fs.NewKVFileStore(s.config.StoreDir), nil
	}
}

// openLocker returns the lock shared by the queue and the meal cache. File
// and SQLite stores can be opened by several processes at once (the daemon
// and one-shot commands), so their locks are also taken on lock files.
func (s *Service) openLocker(o options) lock.Locker {
	var dir string
	switch {
	case o.store != nil, s.config.StoreBackend == StoreMemory:
		return lock.NewKeyedMutex()
	case s.config.StoreBackend == StoreSQLite:
		dir = filepath.Dir(s.config.SQLitePath)
	default:
		dir = s.config.StoreDir
	}

	l := lock.NewDirLocker(dir)
	l.OnError = func(key string, err error) {
		s.logger.Warn("cross-process lock unavailable", ports.String("key", key), ports.Err(err))
	}
	s.closers = append(s.closers, l)
	return l
}

// refreshAfterDrain reloads the meal cache once the queue has been worked
// through. Drains that replayed nothing only refresh the first time.
func (s *Service) refreshAfterDrain(ctx context.Context, stats DrainStats) {
	if stats.Applied+stats.Poisoned == 0 && s.refreshed.Load() {
		return
	}
	if _, err := s.meals.RefreshMeals(ctx); err != nil {
		s.logger.Warn("meal refresh after drain failed", ports.Err(err))
		return
	}
	s.refreshed.Store(true)
}

func (s *Service) openRemote(ctx context.Context, o options) (ports.RemoteMealStore, error) {
	if o.remote != nil {
		return o.remote, nil
	}
	if s.config.RemoteBackend == RemotePostgres {
		st, err := postgres.Open(ctx, s.config.DatabaseURI, s.logger)
		if err != nil {
			return nil, err
		}
		s.closers = append(s.closers, st)
		return st, nil
	}

	hc, _ := o.httpClient.(*http.Client)
	return httpAdapter.NewMealClient(httpAdapter.MealClientConfig{
		BaseURL:    s.config.ServiceURL,
		Token:      s.config.AuthToken,
		TokenStore: s.store,
		Timeout:    s.config.RemoteTimeout,
		HTTPClient: hc,
		UserAgent:  "mealsync/" + Version,
	}, s.logger), nil
}

func (s *Service) openMonitor(o options) ports.NetworkMonitor {
	if o.monitor != nil {
		return o.monitor
	}
	switch s.config.NetworkMode {
	case NetworkFlagFile:
		return netmon.NewFlagFile(s.config.FlagFile, 0, s.logger)
	case NetworkAlways:
		s.manual = netmon.NewManual(true, s.logger)
		return s.manual
	default:
		return netmon.NewProber(netmon.ProberConfig{
			URL:      s.config.ProbeURL,
			Interval: s.config.ProbeInterval,
		}, o.httpClient, s.logger)
	}
}

// Start runs the reconciler and, when needed, the network monitor in the
// background until Stop is called or ctx is done.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	runCtx, err := s.lifecycle.Begin(ctx, "Start() called")
	if err != nil {
		return err
	}

	if runner, ok := s.monitor.(ports.NetworkRunner); ok {
		s.lifecycle.Go(func() {
			if err := runner.Run(runCtx); err != nil && !errors.Is(err, context.Canceled) {
				s.logger.Error("network monitor stopped", ports.Err(err))
			}
		})
	}

	s.lifecycle.Go(func() {
		if err := s.lifecycle.Transition(app.StateRunning, "reconciler starting"); err != nil {
			s.logger.Debug("stopped before the reconciler started", ports.Err(err))
			return
		}
		err := s.reconciler.Run(runCtx)
		if err != nil && !errors.Is(err, context.Canceled) {
			s.logger.Error("reconciler error", ports.Err(err))
			s.lifecycle.Crash(err.Error())
		}
	})
	return nil
}

// Stop cancels the background work and waits for it, up to 30 seconds.
// A drain in progress finishes its current entry first. Queued entries
// stay persisted for the next start.
func (s *Service) Stop() error {
	s.mu.Lock()
	err := s.lifecycle.Halt("Stop() called")
	s.mu.Unlock()
	if err != nil {
		return err
	}
	return s.lifecycle.Wait(app.ShutdownTimeout)
}

// Close releases database handles. Call it after Stop.
func (s *Service) Close() error {
	var errs []error
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i].Close(); err != nil {
			errs = append(errs, err)
		}
	}
	s.closers = nil
	return errors.Join(errs...)
}

// State returns the lifecycle state.
func (s *Service) State() State {
	return convertState(s.lifecycle.State())
}

// Status returns a snapshot of the service.
func (s *Service) Status(ctx context.Context) Status {
	st := Status{
		State:         s.State(),
		Draining:      s.reconciler.State() == app.DrainDraining,
		Online:        s.monitor.Online(),
		QueueLength:   s.queue.Len(ctx),
		QueueCapacity: s.queue.Capacity(),
	}
	if stats, at, ok := s.emitter.last.load(); ok {
		st.LastDrain = &stats
		st.LastDrainAt = at
	}
	return st
}

// SyncNow asks the running reconciler for a drain. It returns false when a
// request is already pending.
func (s *Service) SyncNow() bool {
	return s.reconciler.Trigger("sync requested")
}

// DrainOnce replays the queue on the caller's goroutine, whether or not the
// service is started.
func (s *Service) DrainOnce(ctx context.Context) DrainStats {
	return s.reconciler.DrainOnce(ctx)
}

// CheckConnectivity refreshes the network state when the monitor can be
// polled on demand, then reports it. One-shot commands call it because
// they never start the monitor loop.
func (s *Service) CheckConnectivity(ctx context.Context) bool {
	if p, ok := s.monitor.(interface {
		ProbeOnce(ctx context.Context) bool
	}); ok {
		return p.ProbeOnce(ctx)
	}
	return s.monitor.Online()
}

// SetOnline flips connectivity in network mode always.
func (s *Service) SetOnline(online bool) error {
	if s.manual == nil {
		return ErrManualNetworkOnly
	}
	s.manual.Set(online)
	return nil
}

// CreateMeal records a meal. See Outcome for what the result means.
func (s *Service) CreateMeal(ctx context.Context, meal MealRecord) (MealRecord, Outcome, error) {
	return s.meals.CreateMeal(ctx, meal)
}

func (s *Service) UpdateMeal(ctx context.Context, meal MealRecord) (Outcome, error) {
	return s.meals.UpdateMeal(ctx, meal)
}

func (s *Service) DeleteMeal(ctx context.Context, id string) (Outcome, error) {
	return s.meals.DeleteMeal(ctx, id)
}

// ListMeals returns the locally known meals, including unsynced ones.
func (s *Service) ListMeals(ctx context.Context) ([]MealRecord, error) {
	return s.meals.ListMeals(ctx)
}

// RefreshMeals reloads the local meals from the remote, keeping writes that
// are still queued. An auth failure empties the local meals.
func (s *Service) RefreshMeals(ctx context.Context) ([]MealRecord, error) {
	meals, err := s.meals.RefreshMeals(ctx)
	if err == nil {
		s.refreshed.Store(true)
	}
	return meals, err
}

// Queue returns the pending entries in replay order.
func (s *Service) Queue(ctx context.Context) []QueueEntry {
	return s.queue.Load(ctx)
}

// DropEntries removes every pending entry for the meal id and returns how
// many were removed.
func (s *Service) DropEntries(ctx context.Context, id string) int {
	n := s.queue.DequeueByID(ctx, id)
	if n > 0 {
		s.logger.Info("dropped queued entries", ports.String("id", id), ports.Int("count", n))
	}
	return n
}

// ClearQueue discards all pending entries.
func (s *Service) ClearQueue(ctx context.Context) error {
	if err := s.queue.Clear(ctx); err != nil {
		return fmt.Errorf("clear queue: %w", err)
	}
	s.logger.Warn("queue cleared")
	return nil
}

// SetAuthToken stores the bearer token the REST client sends. It takes
// effect on the next request.
func (s *Service) SetAuthToken(ctx context.Context, token string) error {
	if token == "" {
		return s.store.Delete(ctx, httpAdapter.AuthTokenKey)
	}
	return s.store.Set(ctx, httpAdapter.AuthTokenKey, token)
}

// lastDrain holds the most recent drain summary.
type lastDrain struct {
	mu    sync.Mutex
	stats DrainStats
	at    time.Time
	ok    bool
}

func (l *lastDrain) store(stats DrainStats, at time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.stats, l.at, l.ok = stats, at, true
}

func (l *lastDrain) load() (DrainStats, time.Time, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.stats, l.at, l.ok
}
