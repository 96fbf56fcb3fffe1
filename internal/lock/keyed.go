// Package lock provides per-key mutexes, optionally shared across processes.
package lock

import "sync"

// KeyedMutex hands out one mutex per key. Mutexes are created on first use
// and never freed; callers use a small fixed set of keys.
type KeyedMutex struct {
	mu      sync.Mutex
	mutexes map[string]*sync.Mutex
}

func NewKeyedMutex() *KeyedMutex {
	return &KeyedMutex{mutexes: make(map[string]*sync.Mutex)}
}

func (m *KeyedMutex) Lock(key string) {
	m.get(key).Lock()
}

func (m *KeyedMutex) Unlock(key string) {
	m.get(key).Unlock()
}

// With runs fn while holding the mutex for key.
func (m *KeyedMutex) With(key string, fn func()) {
	mu := m.get(key)
	mu.Lock()
	defer mu.Unlock()
	fn()
}

func (m *KeyedMutex) get(key string) *sync.Mutex {
	m.mu.Lock()
	defer m.mu.Unlock()

	if mu, ok := m.mutexes[key]; ok {
		return mu
	}
	mu := &sync.Mutex{}
	m.mutexes[key] = mu
	return mu
}
