package ports

import "context"

// KVStore persists string values under string keys.
// Implementations must make Set atomic: a reader never observes a partially
// written value.
type KVStore interface {
	// Get returns the value stored under key. ok is false when the key is
	// absent; err is reserved for actual read failures.
	Get(ctx context.Context, key string) (value string, ok bool, err error)

	// Set stores value under key, replacing any previous value.
	Set(ctx context.Context, key, value string) error

	// Delete removes key. Deleting an absent key is not an error.
	Delete(ctx context.Context, key string) error
}
