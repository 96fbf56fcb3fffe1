package domain

import "errors"

// Domain errors represent error conditions in the mealsync domain.
// They are returned by the public API and can be checked with errors.Is.
var (
	// ErrAlreadyRunning is returned when Start() is called on a running instance.
	ErrAlreadyRunning = errors.New("mealsync: already running")

	// ErrNotRunning is returned when Stop() is called on a stopped instance.
	ErrNotRunning = errors.New("mealsync: not running")

	// ErrShutdownTimeout is returned when graceful shutdown times out.
	ErrShutdownTimeout = errors.New("mealsync: shutdown timeout")

	// ErrInvalidConfig is returned when configuration validation fails.
	ErrInvalidConfig = errors.New("mealsync: invalid configuration")

	// ErrInvalidMeal is returned when a meal record fails validation.
	// Such writes are never queued.
	ErrInvalidMeal = errors.New("mealsync: invalid meal")

	// ErrRejected is returned by a remote store when the service understood
	// the request and refused the mutation itself. Replaying it cannot succeed.
	ErrRejected = errors.New("mealsync: mutation rejected by remote")

	// ErrUnauthorized is returned when the remote refuses the credentials.
	ErrUnauthorized = errors.New("mealsync: unauthorized")

	// ErrNoCredentials is returned when no auth token is available.
	ErrNoCredentials = errors.New("mealsync: no credentials")

	// ErrCorruptQueue is returned when persisted queue data cannot be decoded.
	ErrCorruptQueue = errors.New("mealsync: corrupt queue data")

	// ErrUnknownKind is returned when decoding an entry with an unknown type tag.
	ErrUnknownKind = errors.New("mealsync: unknown mutation kind")
)

// IsAuthError reports whether err means the drain cannot proceed until
// credentials change.
func IsAuthError(err error) bool {
	return errors.Is(err, ErrUnauthorized) || errors.Is(err, ErrNoCredentials)
}
