package app

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nutriai/mealsync/internal/adapters/fs"
	"github.com/nutriai/mealsync/internal/adapters/memory"
	"github.com/nutriai/mealsync/internal/domain"
	"github.com/nutriai/mealsync/internal/lock"
	"github.com/nutriai/mealsync/internal/ports"
)

func fixedClock(ms int64) func() time.Time {
	return func() time.Time { return time.UnixMilli(ms) }
}

func newTestQueue(store ports.KVStore, cfg QueueConfig) *Queue {
	if cfg.Now == nil {
		cfg.Now = fixedClock(1_000)
	}
	return NewQueue(store, nil, &mockLogger{}, cfg)
}

func TestQueue_EnqueueOnEmpty(t *testing.T) {
	ctx := context.Background()
	q := newTestQueue(memory.NewKVStore(), QueueConfig{})

	entry, err := q.Enqueue(ctx, domain.CreateMeal{Meal: meal("m1")})
	require.NoError(t, err)

	entries := q.Load(ctx)
	require.Len(t, entries, 1)
	assert.Equal(t, "m1", entries[0].ID)
	assert.Equal(t, domain.KindCreateMeal, entries[0].Kind())
	assert.Equal(t, 0, entries[0].RetryCount)
	assert.Equal(t, int64(1_000), entries[0].CreatedAt)
	assert.Equal(t, entry.Key(), entries[0].Key())
}

func TestQueue_EnqueueRejectsNilMutation(t *testing.T) {
	q := newTestQueue(memory.NewKVStore(), QueueConfig{})
	_, err := q.Enqueue(context.Background(), nil)
	assert.Error(t, err)
}

func TestQueue_CapacityEvictsOldest(t *testing.T) {
	ctx := context.Background()
	var evicted []domain.QueueEntry
	q := newTestQueue(memory.NewKVStore(), QueueConfig{
		OnEvict: func(e domain.QueueEntry) { evicted = append(evicted, e) },
	})

	for i := 1; i <= 51; i++ {
		_, err := q.Enqueue(ctx, domain.CreateMeal{Meal: meal(fmt.Sprintf("e%d", i))})
		require.NoError(t, err)
		assert.LessOrEqual(t, q.Len(ctx), DefaultQueueCapacity)
	}

	entries := q.Load(ctx)
	require.Len(t, entries, 50)
	assert.Equal(t, "e2", entries[0].ID)
	assert.Equal(t, "e51", entries[49].ID)

	require.Len(t, evicted, 1)
	assert.Equal(t, "e1", evicted[0].ID)
}

func TestQueue_CustomCapacity(t *testing.T) {
	ctx := context.Background()
	q := newTestQueue(memory.NewKVStore(), QueueConfig{Capacity: 2})

	for _, id := range []string{"a", "b", "c"} {
		_, err := q.Enqueue(ctx, domain.DeleteMeal{ID: id})
		require.NoError(t, err)
	}

	entries := q.Load(ctx)
	require.Len(t, entries, 2)
	assert.Equal(t, []string{"b", "c"}, []string{entries[0].ID, entries[1].ID})
}

func TestQueue_CreatedAtStrictlyIncreasing(t *testing.T) {
	ctx := context.Background()
	q := newTestQueue(memory.NewKVStore(), QueueConfig{})

	for i := 0; i < 5; i++ {
		_, err := q.Enqueue(ctx, domain.UpdateMeal{ID: "same", Meal: meal("same")})
		require.NoError(t, err)
	}

	entries := q.Load(ctx)
	require.Len(t, entries, 5)
	for i := 1; i < len(entries); i++ {
		assert.Greater(t, entries[i].CreatedAt, entries[i-1].CreatedAt)
		assert.NotEqual(t, entries[i].Key(), entries[i-1].Key())
	}
}

func TestQueue_DequeueByIDRemovesAllMatching(t *testing.T) {
	ctx := context.Background()
	q := newTestQueue(memory.NewKVStore(), QueueConfig{})

	_, _ = q.Enqueue(ctx, domain.CreateMeal{Meal: meal("a")})
	_, _ = q.Enqueue(ctx, domain.CreateMeal{Meal: meal("b")})
	_, _ = q.Enqueue(ctx, domain.UpdateMeal{ID: "a", Meal: meal("a")})

	assert.Equal(t, 2, q.DequeueByID(ctx, "a"))
	assert.Equal(t, 0, q.DequeueByID(ctx, "missing"))

	entries := q.Load(ctx)
	require.Len(t, entries, 1)
	assert.Equal(t, "b", entries[0].ID)
}

func TestQueue_DequeueByKeyRemovesOnlyThatEntry(t *testing.T) {
	ctx := context.Background()
	q := newTestQueue(memory.NewKVStore(), QueueConfig{})

	first, _ := q.Enqueue(ctx, domain.CreateMeal{Meal: meal("a")})
	second, _ := q.Enqueue(ctx, domain.UpdateMeal{ID: "a", Meal: meal("a")})

	assert.True(t, q.Dequeue(ctx, first.Key()))
	assert.False(t, q.Dequeue(ctx, first.Key()))

	entries := q.Load(ctx)
	require.Len(t, entries, 1)
	assert.Equal(t, second.Key(), entries[0].Key())
}

func TestQueue_ReplaceEntryKeepsPosition(t *testing.T) {
	ctx := context.Background()
	q := newTestQueue(memory.NewKVStore(), QueueConfig{})

	a, _ := q.Enqueue(ctx, domain.CreateMeal{Meal: meal("a")})
	_, _ = q.Enqueue(ctx, domain.CreateMeal{Meal: meal("b")})

	a.RetryCount = 3
	assert.True(t, q.ReplaceEntry(ctx, a))

	entries := q.Load(ctx)
	require.Len(t, entries, 2)
	assert.Equal(t, "a", entries[0].ID)
	assert.Equal(t, 3, entries[0].RetryCount)
	assert.Equal(t, "b", entries[1].ID)

	ghost := domain.QueueEntry{ID: "ghost", Mutation: domain.DeleteMeal{ID: "ghost"}, CreatedAt: 99}
	assert.False(t, q.ReplaceEntry(ctx, ghost))
	assert.Len(t, q.Load(ctx), 2)
}

func TestQueue_AbsentKeyIsEmpty(t *testing.T) {
	q := newTestQueue(memory.NewKVStore(), QueueConfig{})
	assert.Empty(t, q.Load(context.Background()))
}

func TestQueue_MalformedDataIsQuarantined(t *testing.T) {
	ctx := context.Background()
	store := memory.NewKVStore()
	require.NoError(t, store.Set(ctx, QueueKey, "not json"))

	q := newTestQueue(store, QueueConfig{})
	assert.Empty(t, q.Load(ctx))

	_, ok, _ := store.Get(ctx, QueueKey)
	assert.False(t, ok, "malformed value should be moved aside")

	raw, ok, _ := store.Get(ctx, QueueKey+".corrupt.1000")
	assert.True(t, ok)
	assert.Equal(t, "not json", raw)

	_, err := q.Enqueue(ctx, domain.DeleteMeal{ID: "x"})
	require.NoError(t, err)
	assert.Len(t, q.Load(ctx), 1)
}

func TestQueue_SaveFailureKeepsMemoryAuthoritative(t *testing.T) {
	ctx := context.Background()
	store := newFlakyStore()
	q := newTestQueue(store, QueueConfig{})

	store.setFailures(false, true)
	_, err := q.Enqueue(ctx, domain.CreateMeal{Meal: meal("a")})
	require.NoError(t, err, "save failures are absorbed")

	entries := q.Load(ctx)
	require.Len(t, entries, 1)
	assert.Equal(t, "a", entries[0].ID)

	// Once the store recovers the next access persists the pending state.
	store.setFailures(false, false)
	assert.Len(t, q.Load(ctx), 1)

	fresh := newTestQueue(store, QueueConfig{})
	assert.Len(t, fresh.Load(ctx), 1)
}

func TestQueue_ReadFailureReturnsLastKnownState(t *testing.T) {
	ctx := context.Background()
	store := newFlakyStore()
	q := newTestQueue(store, QueueConfig{})

	_, _ = q.Enqueue(ctx, domain.CreateMeal{Meal: meal("a")})
	store.setFailures(true, false)

	entries := q.Load(ctx)
	require.Len(t, entries, 1)
	assert.Equal(t, "a", entries[0].ID)

	fresh := newTestQueue(store, QueueConfig{})
	assert.Empty(t, fresh.Load(ctx), "no prior state means empty")
}

func TestQueue_SurvivesRestart(t *testing.T) {
	ctx := context.Background()
	store := memory.NewKVStore()

	q := newTestQueue(store, QueueConfig{})
	_, _ = q.Enqueue(ctx, domain.CreateMeal{Meal: meal("a")})
	_, _ = q.Enqueue(ctx, domain.DeleteMeal{ID: "b"})

	restarted := newTestQueue(store, QueueConfig{})
	entries := restarted.Load(ctx)
	require.Len(t, entries, 2)
	assert.Equal(t, domain.KindCreateMeal, entries[0].Kind())
	assert.Equal(t, domain.KindDeleteMeal, entries[1].Kind())
	assert.Equal(t, meal("a"), entries[0].Mutation.(domain.CreateMeal).Meal)
}

func TestQueue_ConcurrentEnqueueLosesNothing(t *testing.T) {
	ctx := context.Background()
	q := NewQueue(memory.NewKVStore(), nil, &mockLogger{}, QueueConfig{})

	var wg sync.WaitGroup
	for i := 0; i < 30; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, _ = q.Enqueue(ctx, domain.DeleteMeal{ID: fmt.Sprintf("m%d", i)})
		}(i)
	}
	wg.Wait()

	entries := q.Load(ctx)
	assert.Len(t, entries, 30)
	seen := map[domain.EntryKey]bool{}
	for _, e := range entries {
		assert.False(t, seen[e.Key()], "duplicate key %v", e.Key())
		seen[e.Key()] = true
	}
}

func TestQueue_Clear(t *testing.T) {
	ctx := context.Background()
	store := memory.NewKVStore()
	q := newTestQueue(store, QueueConfig{})

	_, _ = q.Enqueue(ctx, domain.DeleteMeal{ID: "a"})
	require.NoError(t, q.Clear(ctx))

	assert.Empty(t, q.Load(ctx))
	_, ok, _ := store.Get(ctx, QueueKey)
	assert.False(t, ok)
}

// pausingStore blocks its first Set until release is closed.
type pausingStore struct {
	ports.KVStore
	once    sync.Once
	paused  chan struct{}
	release chan struct{}
}

func (s *pausingStore) Set(ctx context.Context, key, value string) error {
	s.once.Do(func() {
		close(s.paused)
		<-s.release
	})
	return s.KVStore.Set(ctx, key, value)
}

func TestQueue_SharedDirIsSerializedAcrossQueues(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	daemonLocks, cliLocks := lock.NewDirLocker(dir), lock.NewDirLocker(dir)
	defer daemonLocks.Close()
	defer cliLocks.Close()

	daemonStore := &pausingStore{
		KVStore: fs.NewKVFileStore(dir),
		paused:  make(chan struct{}),
		release: make(chan struct{}),
	}
	seed := NewQueue(fs.NewKVFileStore(dir), cliLocks, &mockLogger{}, QueueConfig{})
	_, err := seed.Enqueue(ctx, domain.DeleteMeal{ID: "a"})
	require.NoError(t, err)

	daemon := NewQueue(daemonStore, daemonLocks, &mockLogger{}, QueueConfig{})
	cli := NewQueue(fs.NewKVFileStore(dir), cliLocks, &mockLogger{}, QueueConfig{})

	removed := make(chan int, 1)
	go func() { removed <- daemon.DequeueByID(ctx, "a") }()
	<-daemonStore.paused

	enqueued := make(chan error, 1)
	go func() {
		_, err := cli.Enqueue(ctx, domain.DeleteMeal{ID: "b"})
		enqueued <- err
	}()

	select {
	case <-enqueued:
		t.Fatal("enqueue ran inside another queue's read-modify-write")
	case <-time.After(50 * time.Millisecond):
	}

	close(daemonStore.release)
	assert.Equal(t, 1, <-removed)
	require.NoError(t, <-enqueued)

	entries := NewQueue(fs.NewKVFileStore(dir), nil, &mockLogger{}, QueueConfig{}).Load(ctx)
	require.Len(t, entries, 1)
	assert.Equal(t, "b", entries[0].ID)
}
