package ports

import (
	"context"

	"github.com/nutriai/mealsync/internal/domain"
)

// RemoteMealStore is the authoritative meal service.
//
// The three writes must be idempotent from the caller's view: creating a
// meal whose id already exists upserts it, and deleting an absent meal
// succeeds. Errors should wrap domain.ErrRejected when the mutation itself
// is refused, domain.ErrUnauthorized or domain.ErrNoCredentials for
// credential problems, and anything else for transient failures.
type RemoteMealStore interface {
	// CreateMeal stores a new meal and returns the id the service assigned.
	CreateMeal(ctx context.Context, meal domain.MealRecord) (string, error)

	// UpdateMeal replaces the meal with the given id.
	UpdateMeal(ctx context.Context, id string, meal domain.MealRecord) error

	// DeleteMeal removes the meal with the given id.
	DeleteMeal(ctx context.Context, id string) error

	// ListMeals returns every meal the service holds for the user.
	ListMeals(ctx context.Context) ([]domain.MealRecord, error)
}
