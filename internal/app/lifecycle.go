package app

import (
	"context"
	"sync"
	"time"

	"github.com/nutriai/mealsync/internal/domain"
	"github.com/nutriai/mealsync/internal/ports"
)

// ShutdownTimeout is how long Stop waits for an in-flight drain to finish.
const ShutdownTimeout = 30 * time.Second

// State is the lifecycle state of the sync service.
type State int

const (
	StateStopped State = iota
	StateStarting
	StateRunning
	StateStopping
	StateCrashed
)

var stateNames = [...]string{
	StateStopped:  "Stopped",
	StateStarting: "Starting",
	StateRunning:  "Running",
	StateStopping: "Stopping",
	StateCrashed:  "Crashed",
}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return "Unknown"
	}
	return stateNames[s]
}

func (s State) bit() uint8 { return 1 << uint(s) }

// next holds, per state, the set of states it may move to.
var next = [...]uint8{
	StateStopped:  StateStarting.bit(),
	StateStarting: StateRunning.bit() | StateStopping.bit() | StateCrashed.bit(),
	StateRunning:  StateStopping.bit() | StateCrashed.bit(),
	StateStopping: StateStopped.bit() | StateCrashed.bit(),
	StateCrashed:  StateStarting.bit(),
}

func canTransition(from, to State) bool {
	if from < 0 || int(from) >= len(next) || to < 0 || int(to) >= len(stateNames) {
		return false
	}
	return next[from]&to.bit() != 0
}

// StateObserver hears about every state change.
type StateObserver interface {
	OnStateChange(previous, current State, reason string)
}

// Lifecycle runs the service's background goroutines (the reconciler and a
// polled network monitor) and tracks the state they put the service in.
type Lifecycle struct {
	logger   ports.Logger
	observer StateObserver

	mu     sync.Mutex
	state  State
	cancel context.CancelFunc

	workers sync.WaitGroup
}

// NewLifecycle returns a Lifecycle in StateStopped. observer may be nil.
func NewLifecycle(logger ports.Logger, observer StateObserver) *Lifecycle {
	return &Lifecycle{logger: logger, observer: observer}
}

func (l *Lifecycle) State() State {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state
}

// Begin moves a stopped or crashed service to Starting and returns the
// context its workers run under. Stop cancels it.
func (l *Lifecycle) Begin(parent context.Context, reason string) (context.Context, error) {
	l.mu.Lock()
	if l.state != StateStopped && l.state != StateCrashed {
		l.mu.Unlock()
		return nil, domain.ErrAlreadyRunning
	}
	ctx, cancel := context.WithCancel(parent)
	prev := l.state
	l.state, l.cancel = StateStarting, cancel
	l.mu.Unlock()

	l.announce(prev, StateStarting, reason)
	return ctx, nil
}

// Transition moves to state. Moves the state machine does not allow fail
// with ErrNotRunning when the service is stopped or crashed, and with
// ErrAlreadyRunning otherwise.
func (l *Lifecycle) Transition(state State, reason string) error {
	l.mu.Lock()
	prev := l.state
	if !canTransition(prev, state) {
		l.mu.Unlock()
		if prev == StateStopped || prev == StateCrashed {
			return domain.ErrNotRunning
		}
		return domain.ErrAlreadyRunning
	}
	l.state = state
	l.mu.Unlock()

	l.announce(prev, state, reason)
	return nil
}

// Crash records that a worker failed and cancels the remaining workers.
// It is a no-op when the service is not active.
func (l *Lifecycle) Crash(reason string) {
	if err := l.Transition(StateCrashed, reason); err != nil {
		l.logger.Debug("crash ignored", ports.String("state", l.State().String()), ports.String("reason", reason))
		return
	}
	l.mu.Lock()
	cancel := l.cancel
	l.cancel = nil
	l.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// Halt moves a starting or running service to Stopping and cancels the
// workers' context.
func (l *Lifecycle) Halt(reason string) error {
	l.mu.Lock()
	if l.state != StateStarting && l.state != StateRunning {
		l.mu.Unlock()
		return domain.ErrNotRunning
	}
	prev := l.state
	l.state = StateStopping
	cancel := l.cancel
	l.cancel = nil
	l.mu.Unlock()

	l.announce(prev, StateStopping, reason)
	if cancel != nil {
		cancel()
	}
	return nil
}

// Go runs fn on a tracked goroutine.
func (l *Lifecycle) Go(fn func()) {
	l.workers.Add(1)
	go func() {
		defer l.workers.Done()
		fn()
	}()
}

// Wait blocks until every worker has returned, then settles in Stopped.
// A worker still busy after timeout, typically a remote call that ignores
// cancellation, leaves the service Crashed with ErrShutdownTimeout.
func (l *Lifecycle) Wait(timeout time.Duration) error {
	done := make(chan struct{})
	go func() {
		l.workers.Wait()
		close(done)
	}()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-done:
		_ = l.Transition(StateStopped, "workers finished")
		return nil
	case <-timer.C:
		l.logger.Warn("workers still busy at shutdown", ports.Duration("timeout", timeout))
		_ = l.Transition(StateCrashed, "shutdown timeout")
		return domain.ErrShutdownTimeout
	}
}

// announce runs without mu held so observers may call State.
func (l *Lifecycle) announce(prev, cur State, reason string) {
	if l.observer != nil {
		l.observer.OnStateChange(prev, cur, reason)
	}
	l.logger.Info("service state changed",
		ports.String("from", prev.String()),
		ports.String("to", cur.String()),
		ports.String("reason", reason),
	)
}
