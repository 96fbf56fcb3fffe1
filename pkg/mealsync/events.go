package mealsync

import (
	"time"

	"github.com/nutriai/mealsync/internal/app"
	"github.com/nutriai/mealsync/internal/domain"
)

// State is the lifecycle state of a Service.
type State int

const (
	StateStopped State = iota
	StateStarting
	StateRunning
	StateStopping
	StateCrashed
)

func (s State) String() string {
	return convertToAppState(s).String()
}

// StateChangeEvent is emitted on every lifecycle transition.
type StateChangeEvent struct {
	Previous State
	Current  State
	Reason   string
}

// EntryEvent describes the replay of one queued mutation.
type EntryEvent struct {
	Entry     QueueEntry
	Err       error
	WillRetry bool
}

// DrainEvent is emitted after every drain.
type DrainEvent struct {
	Stats DrainStats
	At    time.Time
}

// EventHandler receives notifications from a Service.
type EventHandler interface {
	OnStateChange(event StateChangeEvent)
	OnEntryApplied(event EntryEvent)
	OnEntryFailed(event EntryEvent)
	OnEntryPoisoned(event EntryEvent)
	OnEntryEvicted(event EntryEvent)
	OnDrainComplete(event DrainEvent)
}

// BaseEventHandler implements EventHandler with no-ops. Embed it to
// override only the events you need.
type BaseEventHandler struct{}

func (BaseEventHandler) OnStateChange(StateChangeEvent) {}
func (BaseEventHandler) OnEntryApplied(EntryEvent)      {}
func (BaseEventHandler) OnEntryFailed(EntryEvent)       {}
func (BaseEventHandler) OnEntryPoisoned(EntryEvent)     {}
func (BaseEventHandler) OnEntryEvicted(EntryEvent)      {}
func (BaseEventHandler) OnDrainComplete(DrainEvent)     {}

// eventEmitterWrapper adapts EventHandler to the internal emitter
// interfaces and remembers the last drain for Status.
type eventEmitterWrapper struct {
	handler EventHandler
	now     func() time.Time
	last    lastDrain
}

func (e *eventEmitterWrapper) OnStateChange(previous, current app.State, reason string) {
	if e.handler == nil {
		return
	}
	e.handler.OnStateChange(StateChangeEvent{
		Previous: convertState(previous),
		Current:  convertState(current),
		Reason:   reason,
	})
}

func (e *eventEmitterWrapper) OnEntryApplied(entry domain.QueueEntry) {
	if e.handler != nil {
		e.handler.OnEntryApplied(EntryEvent{Entry: entry})
	}
}

func (e *eventEmitterWrapper) OnEntryFailed(entry domain.QueueEntry, err error, willRetry bool) {
	if e.handler != nil {
		e.handler.OnEntryFailed(EntryEvent{Entry: entry, Err: err, WillRetry: willRetry})
	}
}

func (e *eventEmitterWrapper) OnEntryPoisoned(entry domain.QueueEntry, err error) {
	if e.handler != nil {
		e.handler.OnEntryPoisoned(EntryEvent{Entry: entry, Err: err})
	}
}

func (e *eventEmitterWrapper) onEvict(entry domain.QueueEntry) {
	if e.handler != nil {
		e.handler.OnEntryEvicted(EntryEvent{Entry: entry})
	}
}

func (e *eventEmitterWrapper) OnDrainComplete(stats app.DrainStats) {
	at := e.now()
	e.last.store(stats, at)
	if e.handler != nil {
		e.handler.OnDrainComplete(DrainEvent{Stats: stats, At: at})
	}
}

func convertState(s app.State) State {
	switch s {
	case app.StateStopped:
		return StateStopped
	case app.StateStarting:
		return StateStarting
	case app.StateRunning:
		return StateRunning
	case app.StateStopping:
		return StateStopping
	case app.StateCrashed:
		return StateCrashed
	default:
		return StateStopped
	}
}

func convertToAppState(s State) app.State {
	switch s {
	case StateStarting:
		return app.StateStarting
	case StateRunning:
		return app.StateRunning
	case StateStopping:
		return app.StateStopping
	case StateCrashed:
		return app.StateCrashed
	default:
		return app.StateStopped
	}
}
