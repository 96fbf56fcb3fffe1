package ports

import "context"

// NetworkMonitor reports connectivity.
type NetworkMonitor interface {
	// Online returns the last observed connectivity state.
	Online() bool

	// Subscribe registers fn to be called on every connectivity change.
	// The returned function removes the subscription.
	Subscribe(fn func(online bool)) (unsubscribe func())
}

// NetworkRunner is implemented by monitors that need a background loop to
// observe connectivity. The service runs it for its lifetime.
type NetworkRunner interface {
	Run(ctx context.Context) error
}
