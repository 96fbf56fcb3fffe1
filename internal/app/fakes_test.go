package app

import (
	"context"
	"errors"
	"sort"
	"sync"

	"github.com/nutriai/mealsync/internal/adapters/memory"
	"github.com/nutriai/mealsync/internal/domain"
	"github.com/nutriai/mealsync/internal/ports"
)

var errStoreDown = errors.New("store unavailable")

// mockLogger discards everything.
type mockLogger struct{}

func (mockLogger) Debug(string, ...ports.Field) {}
func (mockLogger) Info(string, ...ports.Field)  {}
func (mockLogger) Warn(string, ...ports.Field)  {}
func (mockLogger) Error(string, ...ports.Field) {}

// flakyStore wraps a memory store and fails reads or writes on demand.
type flakyStore struct {
	*memory.KVStore
	mu       sync.Mutex
	failGet  bool
	failSet  bool
	setCalls int
}

func newFlakyStore() *flakyStore {
	return &flakyStore{KVStore: memory.NewKVStore()}
}

func (s *flakyStore) setFailures(get, set bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failGet, s.failSet = get, set
}

func (s *flakyStore) Get(ctx context.Context, key string) (string, bool, error) {
	s.mu.Lock()
	fail := s.failGet
	s.mu.Unlock()
	if fail {
		return "", false, errStoreDown
	}
	return s.KVStore.Get(ctx, key)
}

func (s *flakyStore) Set(ctx context.Context, key, value string) error {
	s.mu.Lock()
	s.setCalls++
	fail := s.failSet
	s.mu.Unlock()
	if fail {
		return errStoreDown
	}
	return s.KVStore.Set(ctx, key, value)
}

// fakeRemote is an upserting meal store. Failures are scripted per call.
type fakeRemote struct {
	mu      sync.Mutex
	meals   map[string]domain.MealRecord
	calls   []string
	failFor map[string]error // meal id -> error returned for every call
	failAll error
	listErr error
	block   chan struct{}
	started chan struct{}
}

func newFakeRemote() *fakeRemote {
	return &fakeRemote{
		meals:   make(map[string]domain.MealRecord),
		failFor: make(map[string]error),
	}
}

func (r *fakeRemote) setFailAll(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failAll = err
}

func (r *fakeRemote) setFailFor(id string, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err == nil {
		delete(r.failFor, id)
		return
	}
	r.failFor[id] = err
}

func (r *fakeRemote) record(op, id string) error {
	r.mu.Lock()
	r.calls = append(r.calls, op+":"+id)
	block, started := r.block, r.started
	err := r.failAll
	if e, ok := r.failFor[id]; ok {
		err = e
	}
	r.mu.Unlock()

	if started != nil {
		select {
		case started <- struct{}{}:
		default:
		}
	}
	if block != nil {
		<-block
	}
	return err
}

func (r *fakeRemote) CreateMeal(ctx context.Context, meal domain.MealRecord) (string, error) {
	if err := r.record("create", meal.ID); err != nil {
		return "", err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.meals[meal.ID] = meal
	return meal.ID, nil
}

func (r *fakeRemote) UpdateMeal(ctx context.Context, id string, meal domain.MealRecord) error {
	if err := r.record("update", id); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.meals[id] = meal
	return nil
}

func (r *fakeRemote) DeleteMeal(ctx context.Context, id string) error {
	if err := r.record("delete", id); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.meals, id)
	return nil
}

// ListMeals returns the held meals ordered by id. It is not recorded as a call.
func (r *fakeRemote) ListMeals(ctx context.Context) ([]domain.MealRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.listErr != nil {
		return nil, r.listErr
	}
	out := make([]domain.MealRecord, 0, len(r.meals))
	for _, m := range r.meals {
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *fakeRemote) setListErr(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.listErr = err
}

func (r *fakeRemote) put(meals ...domain.MealRecord) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, m := range meals {
		r.meals[m.ID] = m
	}
}

func (r *fakeRemote) Calls() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.calls...)
}

func (r *fakeRemote) Meals() map[string]domain.MealRecord {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[string]domain.MealRecord, len(r.meals))
	for k, v := range r.meals {
		out[k] = v
	}
	return out
}

// fakeMonitor is a manually driven network monitor.
type fakeMonitor struct {
	mu     sync.Mutex
	online bool
	subs   map[int]func(bool)
	nextID int
}

func newFakeMonitor(online bool) *fakeMonitor {
	return &fakeMonitor{online: online, subs: make(map[int]func(bool))}
}

func (m *fakeMonitor) Online() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.online
}

func (m *fakeMonitor) Subscribe(fn func(bool)) func() {
	m.mu.Lock()
	defer m.mu.Unlock()
	id := m.nextID
	m.nextID++
	m.subs[id] = fn
	return func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		delete(m.subs, id)
	}
}

func (m *fakeMonitor) Set(online bool) {
	m.mu.Lock()
	m.online = online
	subs := make([]func(bool), 0, len(m.subs))
	for _, fn := range m.subs {
		subs = append(subs, fn)
	}
	m.mu.Unlock()
	for _, fn := range subs {
		fn(online)
	}
}

func (m *fakeMonitor) Subscribers() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.subs)
}

// recordingEmitter captures sync events.
type recordingEmitter struct {
	mu       sync.Mutex
	applied  []domain.QueueEntry
	failed   []domain.QueueEntry
	poisoned []domain.QueueEntry
	drains   []DrainStats
}

func (e *recordingEmitter) OnEntryApplied(entry domain.QueueEntry) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.applied = append(e.applied, entry)
}

func (e *recordingEmitter) OnEntryFailed(entry domain.QueueEntry, err error, willRetry bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.failed = append(e.failed, entry)
}

func (e *recordingEmitter) OnEntryPoisoned(entry domain.QueueEntry, err error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.poisoned = append(e.poisoned, entry)
}

func (e *recordingEmitter) OnDrainComplete(stats DrainStats) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.drains = append(e.drains, stats)
}

func (e *recordingEmitter) Poisoned() []domain.QueueEntry {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]domain.QueueEntry(nil), e.poisoned...)
}

func (e *recordingEmitter) Drains() []DrainStats {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]DrainStats(nil), e.drains...)
}

func meal(id string) domain.MealRecord {
	return domain.MealRecord{
		ID:        id,
		Timestamp: 1700000000,
		Category:  domain.CategoryBreakfast,
		MealQuality: domain.MealQuality{
			CalorieDensity:    1.1,
			GoalFitPercentage: 75,
			MealQualityScore:  6,
		},
		NutritionInfo: domain.NutritionInfo{Calories: 300, Carbs: 50, Sugar: 8, Protein: 9, Fat: 5},
	}
}
