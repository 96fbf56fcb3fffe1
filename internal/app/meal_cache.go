package app

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/nutriai/mealsync/internal/domain"
	"github.com/nutriai/mealsync/internal/lock"
	"github.com/nutriai/mealsync/internal/ports"
)

// MealCacheKey is the storage key of the local meal list.
const MealCacheKey = "meal_entries"

// MealCache is the device-local copy of the user's meals. Writes land here
// before they are confirmed by the remote.
type MealCache struct {
	store ports.KVStore
	locks lock.Locker
	key   string
}

func NewMealCache(store ports.KVStore, locks lock.Locker) *MealCache {
	if locks == nil {
		locks = lock.NewKeyedMutex()
	}
	return &MealCache{store: store, locks: locks, key: MealCacheKey}
}

// List returns the cached meals ordered by timestamp, oldest first.
func (c *MealCache) List(ctx context.Context) ([]domain.MealRecord, error) {
	c.locks.Lock(c.key)
	defer c.locks.Unlock(c.key)
	return c.load(ctx)
}

// Get returns the cached meal with the given id.
func (c *MealCache) Get(ctx context.Context, id string) (domain.MealRecord, bool, error) {
	meals, err := c.List(ctx)
	if err != nil {
		return domain.MealRecord{}, false, err
	}
	for _, m := range meals {
		if m.ID == id {
			return m, true, nil
		}
	}
	return domain.MealRecord{}, false, nil
}

// Upsert inserts meal or replaces the cached meal with the same id.
func (c *MealCache) Upsert(ctx context.Context, meal domain.MealRecord) error {
	c.locks.Lock(c.key)
	defer c.locks.Unlock(c.key)

	meals, err := c.load(ctx)
	if err != nil {
		return err
	}

	replaced := false
	for i := range meals {
		if meals[i].ID == meal.ID {
			meals[i] = meal
			replaced = true
			break
		}
	}
	if !replaced {
		meals = append(meals, meal)
	}
	return c.save(ctx, meals)
}

// Remove drops the meal with the given id. Missing ids are ignored.
func (c *MealCache) Remove(ctx context.Context, id string) error {
	c.locks.Lock(c.key)
	defer c.locks.Unlock(c.key)

	meals, err := c.load(ctx)
	if err != nil {
		return err
	}
	kept := meals[:0]
	for _, m := range meals {
		if m.ID != id {
			kept = append(kept, m)
		}
	}
	if len(kept) == len(meals) {
		return nil
	}
	return c.save(ctx, kept)
}

// Replace overwrites the whole cache with meals.
func (c *MealCache) Replace(ctx context.Context, meals []domain.MealRecord) error {
	c.locks.Lock(c.key)
	defer c.locks.Unlock(c.key)
	return c.save(ctx, append([]domain.MealRecord(nil), meals...))
}

func (c *MealCache) load(ctx context.Context) ([]domain.MealRecord, error) {
	raw, ok, err := c.store.Get(ctx, c.key)
	if err != nil {
		return nil, fmt.Errorf("read meal cache: %w", err)
	}
	if !ok {
		return nil, nil
	}
	var meals []domain.MealRecord
	if err := json.Unmarshal([]byte(raw), &meals); err != nil {
		return nil, fmt.Errorf("decode meal cache: %w", err)
	}
	return meals, nil
}

func (c *MealCache) save(ctx context.Context, meals []domain.MealRecord) error {
	sort.SliceStable(meals, func(i, j int) bool { return meals[i].Timestamp < meals[j].Timestamp })
	if meals == nil {
		meals = []domain.MealRecord{}
	}
	b, err := json.Marshal(meals)
	if err != nil {
		return err
	}
	return c.store.Set(ctx, c.key, string(b))
}
