package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/nutriai/mealsync/internal/domain"
	"github.com/nutriai/mealsync/internal/lock"
	"github.com/nutriai/mealsync/internal/ports"
)

const (
	// QueueKey is the storage key the queue is persisted under.
	QueueKey = "sync_queue"

	// DefaultQueueCapacity bounds the number of pending mutations.
	DefaultQueueCapacity = 50
)

// QueueConfig configures a Queue.
type QueueConfig struct {
	// Key overrides QueueKey.
	Key string

	// Capacity overrides DefaultQueueCapacity.
	Capacity int

	// OnEvict is called for each entry dropped to make room.
	OnEvict func(domain.QueueEntry)

	// Now overrides time.Now.
	Now func() time.Time
}

// Queue is the persisted FIFO of pending mutations.
//
// Every read-modify-write cycle runs under the per-key lock, so producers
// and the reconciler never interleave a load with another caller's save.
// Failures are absorbed: reads fall back to the last known state and failed
// saves leave the in-memory copy authoritative until a later save succeeds.
type Queue struct {
	store    ports.KVStore
	locks    lock.Locker
	logger   ports.Logger
	key      string
	capacity int
	onEvict  func(domain.QueueEntry)
	now      func() time.Time

	// Guarded by locks[key].
	cache []domain.QueueEntry
	dirty bool
}

// NewQueue creates a queue over store. locks may be shared with other
// components that touch the same store; a lock.DirLocker also keeps other
// processes on the same store out of each cycle.
func NewQueue(store ports.KVStore, locks lock.Locker, logger ports.Logger, cfg QueueConfig) *Queue {
	if cfg.Key == "" {
		cfg.Key = QueueKey
	}
	if cfg.Capacity <= 0 {
		cfg.Capacity = DefaultQueueCapacity
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if locks == nil {
		locks = lock.NewKeyedMutex()
	}
	return &Queue{
		store:    store,
		locks:    locks,
		logger:   logger,
		key:      cfg.Key,
		capacity: cfg.Capacity,
		onEvict:  cfg.OnEvict,
		now:      cfg.Now,
	}
}

// Capacity returns the maximum number of entries.
func (q *Queue) Capacity() int { return q.capacity }

// Load returns the current entries in order. It never fails: an absent key
// is an empty queue, undecodable data is quarantined and treated as empty,
// and a read error yields the last known state.
func (q *Queue) Load(ctx context.Context) []domain.QueueEntry {
	q.locks.Lock(q.key)
	defer q.locks.Unlock(q.key)
	return clone(q.load(ctx))
}

// Len returns the number of pending entries.
func (q *Queue) Len(ctx context.Context) int {
	return len(q.Load(ctx))
}

// Save replaces the persisted queue with entries.
func (q *Queue) Save(ctx context.Context, entries []domain.QueueEntry) error {
	q.locks.Lock(q.key)
	defer q.locks.Unlock(q.key)
	return q.save(ctx, clone(entries))
}

// Enqueue appends m, evicting the oldest entries first if the queue is full.
// The new entry starts with RetryCount 0 and a CreatedAt later than every
// other entry's.
func (q *Queue) Enqueue(ctx context.Context, m domain.Mutation) (domain.QueueEntry, error) {
	if m == nil {
		return domain.QueueEntry{}, errors.New("enqueue: nil mutation")
	}

	q.locks.Lock(q.key)
	defer q.locks.Unlock(q.key)

	entries := clone(q.load(ctx))

	var evicted []domain.QueueEntry
	for len(entries) >= q.capacity {
		evicted = append(evicted, entries[0])
		entries = entries[1:]
	}

	entry := domain.QueueEntry{
		ID:        m.MealID(),
		Mutation:  m,
		CreatedAt: q.nextCreatedAt(entries),
	}
	entries = append(entries, entry)
	q.saveLogged(ctx, entries)

	for _, e := range evicted {
		q.logger.Warn("queue full, evicted oldest entry",
			ports.String("id", e.ID),
			ports.String("type", string(e.Kind())),
			ports.Int("retry_count", e.RetryCount),
			ports.Int("capacity", q.capacity),
		)
		if q.onEvict != nil {
			q.onEvict(e)
		}
	}

	q.logger.Debug("entry enqueued",
		ports.String("id", entry.ID),
		ports.String("type", string(entry.Kind())),
		ports.Int("len", len(entries)),
	)
	return entry, nil
}

// DequeueByID removes every entry for the given meal id and returns how many
// were removed.
func (q *Queue) DequeueByID(ctx context.Context, id string) int {
	return q.removeWhere(ctx, func(e domain.QueueEntry) bool { return e.ID == id })
}

// Dequeue removes the entry with the given key. It reports whether an entry
// was removed.
func (q *Queue) Dequeue(ctx context.Context, key domain.EntryKey) bool {
	return q.removeWhere(ctx, func(e domain.QueueEntry) bool { return e.Key() == key }) > 0
}

// ReplaceEntry overwrites the first entry with the same key in place. It
// reports whether a matching entry existed.
func (q *Queue) ReplaceEntry(ctx context.Context, entry domain.QueueEntry) bool {
	q.locks.Lock(q.key)
	defer q.locks.Unlock(q.key)

	entries := clone(q.load(ctx))
	for i := range entries {
		if entries[i].Key() == entry.Key() {
			entries[i] = entry
			q.saveLogged(ctx, entries)
			return true
		}
	}
	return false
}

// Clear drops all pending entries.
func (q *Queue) Clear(ctx context.Context) error {
	q.locks.Lock(q.key)
	defer q.locks.Unlock(q.key)

	q.cache = nil
	if err := q.store.Delete(ctx, q.key); err != nil {
		q.dirty = true
		q.logger.Error("failed to clear queue", ports.Err(err))
		return err
	}
	q.dirty = false
	return nil
}

func (q *Queue) removeWhere(ctx context.Context, match func(domain.QueueEntry) bool) int {
	q.locks.Lock(q.key)
	defer q.locks.Unlock(q.key)

	entries := q.load(ctx)
	kept := make([]domain.QueueEntry, 0, len(entries))
	for _, e := range entries {
		if !match(e) {
			kept = append(kept, e)
		}
	}

	removed := len(entries) - len(kept)
	if removed > 0 {
		q.saveLogged(ctx, kept)
	}
	return removed
}

// load must be called with the key lock held. The returned slice must not
// be mutated.
func (q *Queue) load(ctx context.Context) []domain.QueueEntry {
	if q.dirty {
		// The store is behind; retry the pending write and keep serving
		// memory either way.
		if err := q.save(ctx, q.cache); err == nil {
			q.logger.Info("queue persisted after earlier failure", ports.Int("len", len(q.cache)))
		}
		return q.cache
	}

	raw, ok, err := q.store.Get(ctx, q.key)
	if err != nil {
		q.logger.Error("failed to read queue, using last known state",
			ports.Err(err),
			ports.Int("len", len(q.cache)),
		)
		return q.cache
	}
	if !ok {
		q.cache = nil
		return nil
	}

	entries, err := domain.DecodeQueue(raw)
	if err != nil {
		q.logger.Error("queue data is malformed, starting empty", ports.Err(err))
		q.quarantine(ctx, raw)
		q.cache = nil
		return nil
	}

	q.cache = entries
	return entries
}

// quarantine moves undecodable data aside so it is not lost and is not
// re-reported on every load.
func (q *Queue) quarantine(ctx context.Context, raw string) {
	key := fmt.Sprintf("%s.corrupt.%d", q.key, q.now().UnixMilli())
	if err := q.store.Set(ctx, key, raw); err != nil {
		q.logger.Error("failed to quarantine malformed queue", ports.Err(err))
		return
	}
	if err := q.store.Delete(ctx, q.key); err != nil {
		q.logger.Warn("failed to remove malformed queue", ports.Err(err))
	}
	q.logger.Warn("malformed queue quarantined", ports.String("key", key))
}

// save must be called with the key lock held. entries becomes the cache.
func (q *Queue) save(ctx context.Context, entries []domain.QueueEntry) error {
	q.cache = entries

	raw, err := domain.EncodeQueue(entries)
	if err != nil {
		q.dirty = true
		return fmt.Errorf("encode queue: %w", err)
	}
	if err := q.store.Set(ctx, q.key, raw); err != nil {
		q.dirty = true
		return fmt.Errorf("persist queue: %w", err)
	}
	q.dirty = false
	return nil
}

func (q *Queue) saveLogged(ctx context.Context, entries []domain.QueueEntry) {
	if err := q.save(ctx, entries); err != nil {
		q.logger.Error("failed to save queue, keeping in-memory state",
			ports.Err(err),
			ports.Int("len", len(entries)),
		)
	}
}

// nextCreatedAt returns now in unix milliseconds, bumped past the newest
// entry so keys stay unique.
func (q *Queue) nextCreatedAt(entries []domain.QueueEntry) int64 {
	ts := q.now().UnixMilli()
	for _, e := range entries {
		if e.CreatedAt >= ts {
			ts = e.CreatedAt + 1
		}
	}
	return ts
}

func clone(entries []domain.QueueEntry) []domain.QueueEntry {
	if entries == nil {
		return nil
	}
	out := make([]domain.QueueEntry, len(entries))
	copy(out, entries)
	return out
}
