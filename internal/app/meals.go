package app

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/nutriai/mealsync/internal/domain"
	"github.com/nutriai/mealsync/internal/ports"
)

// Outcome says whether a write reached the remote or is waiting in the queue.
type Outcome int

const (
	OutcomeConfirmed Outcome = iota
	OutcomeQueued
)

func (o Outcome) String() string {
	if o == OutcomeQueued {
		return "queued"
	}
	return "confirmed"
}

// drainTrigger is satisfied by *Reconciler.
type drainTrigger interface {
	Trigger(reason string) bool
}

// MealService is the write path the rest of the application uses. Each
// write lands in the local cache, then goes straight to the remote when
// that is safe, and into the queue otherwise.
type MealService struct {
	queue         *Queue
	cache         *MealCache
	remote        ports.RemoteMealStore
	monitor       ports.NetworkMonitor
	trigger       drainTrigger
	logger        ports.Logger
	remoteTimeout time.Duration
	now           func() time.Time
	newID         func() string
}

// NewMealService wires the write path. trigger may be nil, in which case
// queued writes wait for the next externally requested drain.
func NewMealService(
	queue *Queue,
	cache *MealCache,
	remote ports.RemoteMealStore,
	monitor ports.NetworkMonitor,
	trigger drainTrigger,
	logger ports.Logger,
	remoteTimeout time.Duration,
) *MealService {
	if remoteTimeout <= 0 {
		remoteTimeout = DefaultRemoteTimeout
	}
	return &MealService{
		queue:         queue,
		cache:         cache,
		remote:        remote,
		monitor:       monitor,
		trigger:       trigger,
		logger:        logger,
		remoteTimeout: remoteTimeout,
		now:           time.Now,
		newID:         uuid.NewString,
	}
}

// CreateMeal records a new meal. A missing id is filled with a UUID and a
// zero timestamp with the current time. The stored record is returned.
func (s *MealService) CreateMeal(ctx context.Context, meal domain.MealRecord) (domain.MealRecord, Outcome, error) {
	if meal.ID == "" {
		meal.ID = s.newID()
	}
	if meal.Timestamp == 0 {
		meal.Timestamp = s.now().Unix()
	}
	if err := meal.Validate(); err != nil {
		return meal, 0, err
	}
	undo := s.undoer(ctx, meal.ID)
	if err := s.cache.Upsert(ctx, meal); err != nil {
		s.logger.Warn("failed to cache meal", ports.String("id", meal.ID), ports.Err(err))
	}

	outcome, err := s.submit(ctx, domain.CreateMeal{Meal: meal}, undo)
	return meal, outcome, err
}

// UpdateMeal replaces an existing meal.
func (s *MealService) UpdateMeal(ctx context.Context, meal domain.MealRecord) (Outcome, error) {
	if err := meal.Validate(); err != nil {
		return 0, err
	}
	undo := s.undoer(ctx, meal.ID)
	if err := s.cache.Upsert(ctx, meal); err != nil {
		s.logger.Warn("failed to cache meal", ports.String("id", meal.ID), ports.Err(err))
	}
	return s.submit(ctx, domain.UpdateMeal{ID: meal.ID, Meal: meal}, undo)
}

// DeleteMeal removes a meal.
func (s *MealService) DeleteMeal(ctx context.Context, id string) (Outcome, error) {
	if id == "" {
		return 0, fmt.Errorf("%w: id is required", domain.ErrInvalidMeal)
	}
	undo := s.undoer(ctx, id)
	if err := s.cache.Remove(ctx, id); err != nil {
		s.logger.Warn("failed to remove cached meal", ports.String("id", id), ports.Err(err))
	}
	return s.submit(ctx, domain.DeleteMeal{ID: id}, undo)
}

// ListMeals returns the locally cached meals.
func (s *MealService) ListMeals(ctx context.Context) ([]domain.MealRecord, error) {
	return s.cache.List(ctx)
}

// RefreshMeals replaces the cache with the remote's meals, with writes
// still in the queue laid over them. An auth failure empties the cache;
// any other failure leaves it alone.
func (s *MealService) RefreshMeals(ctx context.Context) ([]domain.MealRecord, error) {
	rctx, cancel := context.WithTimeout(ctx, s.remoteTimeout)
	meals, err := s.remote.ListMeals(rctx)
	cancel()
	if err != nil {
		if domain.IsAuthError(err) {
			if cerr := s.cache.Replace(ctx, nil); cerr != nil {
				s.logger.Warn("failed to clear meal cache", ports.Err(cerr))
			}
		}
		return nil, fmt.Errorf("refresh meals: %w", err)
	}

	meals = overlayPending(meals, s.queue.Load(ctx))
	if err := s.cache.Replace(ctx, meals); err != nil {
		return nil, fmt.Errorf("refresh meals: %w", err)
	}
	s.logger.Info("meal cache refreshed", ports.Int("meals", len(meals)))
	return meals, nil
}

// overlayPending applies queued writes, in queue order, to meals fetched
// from the remote. The result is ordered by timestamp, then id.
func overlayPending(meals []domain.MealRecord, pending []domain.QueueEntry) []domain.MealRecord {
	byID := make(map[string]domain.MealRecord, len(meals)+len(pending))
	for _, m := range meals {
		byID[m.ID] = m
	}
	for _, e := range pending {
		switch m := e.Mutation.(type) {
		case domain.CreateMeal:
			byID[m.Meal.ID] = m.Meal
		case domain.UpdateMeal:
			meal := m.Meal
			meal.ID = m.MealID()
			byID[meal.ID] = meal
		case domain.DeleteMeal:
			delete(byID, m.ID)
		}
	}

	out := make([]domain.MealRecord, 0, len(byID))
	for _, m := range byID {
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Timestamp != out[j].Timestamp {
			return out[i].Timestamp < out[j].Timestamp
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// undoer captures the cached copy of id so a rejected write can put it back.
func (s *MealService) undoer(ctx context.Context, id string) func() {
	prev, had, err := s.cache.Get(ctx, id)
	if err != nil {
		s.logger.Warn("failed to read cached meal", ports.String("id", id), ports.Err(err))
		return func() {}
	}
	return func() {
		var err error
		if had {
			err = s.cache.Upsert(ctx, prev)
		} else {
			err = s.cache.Remove(ctx, id)
		}
		if err != nil {
			s.logger.Warn("failed to roll back cached meal", ports.String("id", id), ports.Err(err))
		}
	}
}

func (s *MealService) submit(ctx context.Context, m domain.Mutation, undo func()) (Outcome, error) {
	online := s.monitor == nil || s.monitor.Online()

	// A direct write must not overtake older queued writes.
	if !online || s.queue.Len(ctx) > 0 {
		return s.enqueue(ctx, m, online)
	}

	err := applyMutation(ctx, s.remote, m, s.remoteTimeout)
	if err == nil {
		s.logger.Debug("write confirmed",
			ports.String("id", m.MealID()),
			ports.String("type", string(m.Kind())),
		)
		return OutcomeConfirmed, nil
	}
	if errors.Is(err, domain.ErrRejected) {
		// The remote will never take it, so the cache must not keep it.
		undo()
		return 0, err
	}

	s.logger.Warn("direct write failed, queuing",
		ports.String("id", m.MealID()),
		ports.String("type", string(m.Kind())),
		ports.Err(err),
	)
	// The reconciler would hit the same failure right away; leave the
	// entry for the next trigger.
	return s.enqueue(ctx, m, false)
}

func (s *MealService) enqueue(ctx context.Context, m domain.Mutation, kick bool) (Outcome, error) {
	if _, err := s.queue.Enqueue(ctx, m); err != nil {
		return 0, err
	}
	if kick && s.trigger != nil {
		s.trigger.Trigger("write queued")
	}
	return OutcomeQueued, nil
}
