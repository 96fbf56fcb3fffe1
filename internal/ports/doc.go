// Package ports defines the interfaces that connect the application layer
// to infrastructure adapters.
//
// Ports are the boundary between the sync core and the outside world. They
// state what the core needs (somewhere to persist the queue, a way to hear
// about connectivity, a remote to replay writes against) without saying how
// those needs are met.
//
// # Port Interfaces
//
//   - [KVStore]: string key-value persistence for the queue and meal cache
//   - [RemoteMealStore]: the authoritative meal service
//   - [NetworkMonitor]: connectivity state and transition notifications
//   - [Logger]: structured logging abstraction
//   - [HTTPClient]: HTTP request abstraction for dependency injection
//
// The application layer (internal/app) depends only on these interfaces.
// Adapters under internal/adapters provide the file, SQLite, HTTP, Postgres
// and zerolog implementations.
package ports
