package app

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nutriai/mealsync/internal/domain"
	"github.com/nutriai/mealsync/internal/ports"
)

// DefaultMaxRetries is the number of failed replays an entry survives.
// The attempt after that removes it as poisoned.
const DefaultMaxRetries = 5

// ReconcilerConfig contains configuration for the reconciler loop.
type ReconcilerConfig struct {
	MaxRetries     int
	RemoteTimeout  time.Duration
	BackoffInitial time.Duration
	BackoffMax     time.Duration

	// AfterDrain, when set, runs on the drain goroutine after every drain
	// that was not halted.
	AfterDrain func(ctx context.Context, stats DrainStats)
}

// DrainState reports whether a drain is in progress.
type DrainState int32

const (
	DrainIdle DrainState = iota
	DrainDraining
)

func (s DrainState) String() string {
	if s == DrainDraining {
		return "Draining"
	}
	return "Idle"
}

// HaltReason says why a drain stopped before the queue was empty.
type HaltReason string

const (
	HaltNone      HaltReason = ""
	HaltTransient HaltReason = "transient"
	HaltAuth      HaltReason = "auth"
	HaltCanceled  HaltReason = "canceled"
)

// DrainStats summarizes one drain.
type DrainStats struct {
	Applied   int
	Failed    int
	Poisoned  int
	Remaining int
	Halted    HaltReason
	Duration  time.Duration
}

// SyncEventEmitter is notified about replay outcomes.
type SyncEventEmitter interface {
	OnEntryApplied(entry domain.QueueEntry)
	OnEntryFailed(entry domain.QueueEntry, err error, willRetry bool)
	OnEntryPoisoned(entry domain.QueueEntry, err error)
	OnDrainComplete(stats DrainStats)
}

// Reconciler replays queued mutations against the remote store.
//
// Drains are requested with Trigger and run one at a time on the Run
// goroutine. Requests that arrive while a drain is running collapse into a
// single follow-up drain.
type Reconciler struct {
	config  ReconcilerConfig
	queue   *Queue
	remote  ports.RemoteMealStore
	monitor ports.NetworkMonitor
	logger  ports.Logger
	emitter SyncEventEmitter

	requests chan string
	state    atomic.Int32
	drainMu  sync.Mutex
	backoff  *backoff
}

// NewReconciler creates a reconciler. monitor and emitter may be nil.
func NewReconciler(
	config ReconcilerConfig,
	queue *Queue,
	remote ports.RemoteMealStore,
	monitor ports.NetworkMonitor,
	logger ports.Logger,
	emitter SyncEventEmitter,
) *Reconciler {
	if config.MaxRetries < 0 {
		config.MaxRetries = 0
	}
	if config.RemoteTimeout <= 0 {
		config.RemoteTimeout = DefaultRemoteTimeout
	}
	if config.BackoffInitial <= 0 {
		config.BackoffInitial = DefaultBackoffInitial
	}
	if config.BackoffMax <= 0 {
		config.BackoffMax = DefaultBackoffMax
	}
	return &Reconciler{
		config:   config,
		queue:    queue,
		remote:   remote,
		monitor:  monitor,
		logger:   logger,
		emitter:  emitter,
		requests: make(chan string, 1),
		backoff:  newBackoff(config.BackoffInitial, config.BackoffMax),
	}
}

// State returns Idle or Draining.
func (r *Reconciler) State() DrainState {
	return DrainState(r.state.Load())
}

// Pending reports whether a drain request is waiting to be served.
func (r *Reconciler) Pending() bool {
	return len(r.requests) > 0
}

// Trigger requests a drain without blocking. It returns false when a
// request was already pending, in which case this one is coalesced into it.
func (r *Reconciler) Trigger(reason string) bool {
	select {
	case r.requests <- reason:
		r.logger.Debug("drain requested", ports.String("reason", reason))
		return true
	default:
		return false
	}
}

// Run serves drain requests until ctx is done. When a monitor is set it
// requests a drain at startup if online and on every offline to online
// transition.
func (r *Reconciler) Run(ctx context.Context) error {
	if r.monitor != nil {
		var online atomic.Bool
		online.Store(r.monitor.Online())
		unsubscribe := r.monitor.Subscribe(func(now bool) {
			was := online.Swap(now)
			if now && !was {
				r.Trigger("network online")
			}
		})
		defer unsubscribe()

		if online.Load() {
			r.Trigger("startup")
		}
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case reason := <-r.requests:
			stats := r.drain(ctx, reason)
			if stats.Halted != HaltTransient {
				r.backoff.Reset()
				continue
			}
			// Space out drains while the remote keeps failing. Requests
			// arriving meanwhile wait in the channel.
			r.logger.Debug("backing off before next drain", ports.Duration("delay", r.backoff.Current()))
			if err := r.backoff.Wait(ctx); err != nil {
				return err
			}
		}
	}
}

// DrainOnce runs a single drain on the caller's goroutine. It waits for any
// drain already in progress.
func (r *Reconciler) DrainOnce(ctx context.Context) DrainStats {
	return r.drain(ctx, "manual")
}

func (r *Reconciler) drain(ctx context.Context, reason string) DrainStats {
	r.drainMu.Lock()
	defer r.drainMu.Unlock()

	r.state.Store(int32(DrainDraining))
	defer r.state.Store(int32(DrainIdle))

	start := time.Now()
	stats := DrainStats{}

	entries := r.queue.Load(ctx)
	if len(entries) > 0 {
		r.logger.Info("draining queue",
			ports.Int("entries", len(entries)),
			ports.String("reason", reason),
		)
	}

	for _, entry := range entries {
		if ctx.Err() != nil {
			stats.Halted = HaltCanceled
			break
		}
		if halt := r.replay(ctx, entry, &stats); halt != HaltNone {
			stats.Halted = halt
			break
		}
	}

	stats.Remaining = r.queue.Len(ctx)
	stats.Duration = time.Since(start)

	if len(entries) > 0 {
		r.logger.Info("drain complete",
			ports.Int("applied", stats.Applied),
			ports.Int("failed", stats.Failed),
			ports.Int("poisoned", stats.Poisoned),
			ports.Int("remaining", stats.Remaining),
			ports.String("halted", string(stats.Halted)),
			ports.Duration("duration", stats.Duration),
		)
	}
	if r.emitter != nil {
		r.emitter.OnDrainComplete(stats)
	}
	if stats.Halted == HaltNone && r.config.AfterDrain != nil {
		r.config.AfterDrain(ctx, stats)
	}
	return stats
}

// replay applies one entry and updates the queue. A non-empty HaltReason
// stops the drain.
func (r *Reconciler) replay(ctx context.Context, entry domain.QueueEntry, stats *DrainStats) HaltReason {
	err := applyMutation(ctx, r.remote, entry.Mutation, r.config.RemoteTimeout)
	if err == nil {
		// The remote has the write; record that even while shutting down.
		r.queue.Dequeue(context.WithoutCancel(ctx), entry.Key())
		stats.Applied++
		r.logger.Debug("entry applied",
			ports.String("id", entry.ID),
			ports.String("type", string(entry.Kind())),
		)
		if r.emitter != nil {
			r.emitter.OnEntryApplied(entry)
		}
		return HaltNone
	}

	switch {
	case ctx.Err() != nil:
		// Shutting down; the attempt does not count against the entry.
		return HaltCanceled

	case domain.IsAuthError(err):
		r.logger.Warn("drain paused until credentials are available",
			ports.String("id", entry.ID),
			ports.Err(err),
		)
		return HaltAuth

	case errors.Is(err, domain.ErrRejected):
		// The remote answered, so later entries may still go through.
		r.poison(ctx, entry, err, stats)
		return HaltNone
	}

	entry.RetryCount++
	if entry.RetryCount > r.config.MaxRetries {
		// Out of retries: drop it and let the entries behind it run.
		r.poison(ctx, entry, err, stats)
		return HaltNone
	}

	r.queue.ReplaceEntry(ctx, entry)
	stats.Failed++
	r.logger.Warn("replay failed, will retry",
		ports.String("id", entry.ID),
		ports.String("type", string(entry.Kind())),
		ports.Int("retry_count", entry.RetryCount),
		ports.Int("max_retries", r.config.MaxRetries),
		ports.Err(err),
	)
	if r.emitter != nil {
		r.emitter.OnEntryFailed(entry, err, true)
	}
	return HaltTransient
}

func (r *Reconciler) poison(ctx context.Context, entry domain.QueueEntry, err error, stats *DrainStats) {
	r.queue.Dequeue(ctx, entry.Key())
	stats.Poisoned++
	r.logger.Error("entry removed as poisoned",
		ports.String("id", entry.ID),
		ports.String("type", string(entry.Kind())),
		ports.Int("retry_count", entry.RetryCount),
		ports.Err(err),
	)
	if r.emitter != nil {
		r.emitter.OnEntryPoisoned(entry, err)
	}
}
