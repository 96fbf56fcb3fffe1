package app

import (
	"context"
	"fmt"
	"time"

	"github.com/nutriai/mealsync/internal/domain"
	"github.com/nutriai/mealsync/internal/ports"
)

// DefaultRemoteTimeout bounds a single remote call.
const DefaultRemoteTimeout = 15 * time.Second

// applyMutation sends m to remote under its own timeout.
func applyMutation(ctx context.Context, remote ports.RemoteMealStore, m domain.Mutation, timeout time.Duration) error {
	if timeout <= 0 {
		timeout = DefaultRemoteTimeout
	}
	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	switch m := m.(type) {
	case domain.CreateMeal:
		_, err := remote.CreateMeal(callCtx, m.Meal)
		return err
	case domain.UpdateMeal:
		return remote.UpdateMeal(callCtx, m.MealID(), m.Meal)
	case domain.DeleteMeal:
		return remote.DeleteMeal(callCtx, m.ID)
	default:
		return fmt.Errorf("%w: %w %T", domain.ErrRejected, domain.ErrUnknownKind, m)
	}
}
