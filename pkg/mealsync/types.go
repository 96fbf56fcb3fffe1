package mealsync

import (
	"github.com/nutriai/mealsync/internal/app"
	"github.com/nutriai/mealsync/internal/domain"
	"github.com/nutriai/mealsync/internal/ports"
)

// Re-exported domain types.
type (
	MealRecord    = domain.MealRecord
	NutritionInfo = domain.NutritionInfo
	MealQuality   = domain.MealQuality
	Category      = domain.Category
	QueueEntry    = domain.QueueEntry
	EntryKey      = domain.EntryKey
	MutationKind  = domain.Kind

	// Outcome says whether a write was confirmed or queued.
	Outcome = app.Outcome

	// DrainStats summarizes one drain.
	DrainStats = app.DrainStats

	// Store is the key-value storage the queue persists into.
	Store = ports.KVStore

	// RemoteMealStore is the authoritative meal store.
	RemoteMealStore = ports.RemoteMealStore

	// NetworkMonitor reports connectivity.
	NetworkMonitor = ports.NetworkMonitor

	// HTTPClient performs HTTP requests for the connectivity prober.
	HTTPClient = ports.HTTPClient

	// Logger is the structured logging interface.
	Logger = ports.Logger
)

const (
	OutcomeConfirmed = app.OutcomeConfirmed
	OutcomeQueued    = app.OutcomeQueued
)

// Errors callers may match with errors.Is.
var (
	ErrAlreadyRunning = domain.ErrAlreadyRunning
	ErrNotRunning     = domain.ErrNotRunning
	ErrInvalidConfig  = domain.ErrInvalidConfig
	ErrInvalidMeal    = domain.ErrInvalidMeal
	ErrRejected       = domain.ErrRejected
	ErrUnauthorized   = domain.ErrUnauthorized
	ErrNoCredentials  = domain.ErrNoCredentials
)
