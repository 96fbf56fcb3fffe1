// Package netmon provides ports.NetworkMonitor implementations: an HTTP
// health prober, a flag file watched with fsnotify, and a manually driven
// monitor.
package netmon

import (
	"sync"

	"github.com/nutriai/mealsync/internal/ports"
)

// notifier holds the connectivity state and fans changes out to
// subscribers. Monitors embed it.
type notifier struct {
	// deliver serializes set calls so subscribers see changes in the
	// order they were made. It is taken before mu.
	deliver sync.Mutex

	mu     sync.Mutex
	online bool
	subs   map[int]func(bool)
	nextID int
	logger ports.Logger
	source string
}

func newNotifier(initial bool, source string, logger ports.Logger) notifier {
	return notifier{
		online: initial,
		subs:   make(map[int]func(bool)),
		logger: logger,
		source: source,
	}
}

func (n *notifier) Online() bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.online
}

func (n *notifier) Subscribe(fn func(online bool)) func() {
	n.mu.Lock()
	defer n.mu.Unlock()

	id := n.nextID
	n.nextID++
	n.subs[id] = fn

	var once sync.Once
	return func() {
		once.Do(func() {
			n.mu.Lock()
			defer n.mu.Unlock()
			delete(n.subs, id)
		})
	}
}

// set records the state and notifies subscribers when it changed.
// Callbacks run outside mu, so they may call Online or Subscribe, but not
// set.
func (n *notifier) set(online bool) bool {
	n.deliver.Lock()
	defer n.deliver.Unlock()

	n.mu.Lock()
	if n.online == online {
		n.mu.Unlock()
		return false
	}
	n.online = online
	subs := make([]func(bool), 0, len(n.subs))
	for _, fn := range n.subs {
		subs = append(subs, fn)
	}
	n.mu.Unlock()

	n.logger.Info("connectivity changed",
		ports.Bool("online", online),
		ports.String("source", n.source),
	)
	for _, fn := range subs {
		fn(online)
	}
	return true
}
