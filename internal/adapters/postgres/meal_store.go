// Package postgres implements ports.RemoteMealStore directly on a
// PostgreSQL database, for deployments that sync into a shared database
// instead of the meal service API.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jackc/pgconn"
	"github.com/jackc/pgerrcode"
	_ "github.com/jackc/pgx/v4/stdlib"

	"github.com/nutriai/mealsync/internal/domain"
	"github.com/nutriai/mealsync/internal/ports"
)

const schema = `
CREATE TABLE IF NOT EXISTS meals (
	id                  TEXT PRIMARY KEY,
	taken_at            BIGINT NOT NULL,
	category            TEXT NOT NULL CHECK (category IN ('Breakfast', 'Lunch', 'Dinner', 'Snack', 'Other')),
	image               TEXT NOT NULL DEFAULT '',
	audio               TEXT NOT NULL DEFAULT '',
	transcription       TEXT NOT NULL DEFAULT '',
	calorie_density     DOUBLE PRECISION NOT NULL CHECK (calorie_density >= 0),
	goal_fit_percentage DOUBLE PRECISION NOT NULL CHECK (goal_fit_percentage BETWEEN 0 AND 100),
	meal_quality_score  DOUBLE PRECISION NOT NULL CHECK (meal_quality_score BETWEEN 1 AND 10),
	calories            DOUBLE PRECISION NOT NULL CHECK (calories >= 0),
	carbs               DOUBLE PRECISION NOT NULL CHECK (carbs >= 0),
	sugar               DOUBLE PRECISION NOT NULL CHECK (sugar >= 0),
	protein             DOUBLE PRECISION NOT NULL CHECK (protein >= 0),
	fat                 DOUBLE PRECISION NOT NULL CHECK (fat >= 0),
	updated_at          TIMESTAMPTZ NOT NULL DEFAULT now()
)`

const upsertMeal = `
INSERT INTO meals (
	id, taken_at, category, image, audio, transcription,
	calorie_density, goal_fit_percentage, meal_quality_score,
	calories, carbs, sugar, protein, fat, updated_at
) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, now())
ON CONFLICT (id) DO UPDATE SET
	taken_at = EXCLUDED.taken_at,
	category = EXCLUDED.category,
	image = EXCLUDED.image,
	audio = EXCLUDED.audio,
	transcription = EXCLUDED.transcription,
	calorie_density = EXCLUDED.calorie_density,
	goal_fit_percentage = EXCLUDED.goal_fit_percentage,
	meal_quality_score = EXCLUDED.meal_quality_score,
	calories = EXCLUDED.calories,
	carbs = EXCLUDED.carbs,
	sugar = EXCLUDED.sugar,
	protein = EXCLUDED.protein,
	fat = EXCLUDED.fat,
	updated_at = now()`

// MealStore writes meals to the meals table. Creates and updates are
// upserts keyed by meal id, so replays are harmless.
type MealStore struct {
	db     *sql.DB
	logger ports.Logger
}

// Open connects with the pgx driver and creates the table if needed.
func Open(ctx context.Context, dsn string, logger ports.Logger) (*MealStore, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping postgres: %w", classify(err))
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create meals table: %w", err)
	}
	logger.Info("postgres meal store ready")
	return &MealStore{db: db, logger: logger}, nil
}

func (s *MealStore) CreateMeal(ctx context.Context, meal domain.MealRecord) (string, error) {
	if err := s.upsert(ctx, meal.ID, meal); err != nil {
		return "", fmt.Errorf("create meal %s: %w", meal.ID, err)
	}
	return meal.ID, nil
}

func (s *MealStore) UpdateMeal(ctx context.Context, id string, meal domain.MealRecord) error {
	if err := s.upsert(ctx, id, meal); err != nil {
		return fmt.Errorf("update meal %s: %w", id, err)
	}
	return nil
}

// DeleteMeal removes the row. Deleting a missing row succeeds.
func (s *MealStore) DeleteMeal(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM meals WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete meal %s: %w", id, classify(err))
	}
	if n, _ := res.RowsAffected(); n == 0 {
		s.logger.Debug("meal already absent on delete", ports.String("id", id))
	}
	return nil
}

// ListMeals returns every row, oldest meal first.
func (s *MealStore) ListMeals(ctx context.Context) ([]domain.MealRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, taken_at, category, image, audio, transcription,
		       calorie_density, goal_fit_percentage, meal_quality_score,
		       calories, carbs, sugar, protein, fat
		FROM meals ORDER BY taken_at, id`)
	if err != nil {
		return nil, fmt.Errorf("list meals: %w", classify(err))
	}
	defer rows.Close()

	meals := make([]domain.MealRecord, 0)
	for rows.Next() {
		var m domain.MealRecord
		var category string
		if err := rows.Scan(
			&m.ID, &m.Timestamp, &category, &m.Image, &m.Audio, &m.Transcription,
			&m.MealQuality.CalorieDensity, &m.MealQuality.GoalFitPercentage, &m.MealQuality.MealQualityScore,
			&m.NutritionInfo.Calories, &m.NutritionInfo.Carbs, &m.NutritionInfo.Sugar,
			&m.NutritionInfo.Protein, &m.NutritionInfo.Fat,
		); err != nil {
			return nil, fmt.Errorf("scan meal: %w", err)
		}
		m.Category = domain.Category(category)
		meals = append(meals, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list meals: %w", classify(err))
	}
	return meals, nil
}

func (s *MealStore) Close() error {
	return s.db.Close()
}

func (s *MealStore) upsert(ctx context.Context, id string, m domain.MealRecord) error {
	q, n := m.MealQuality, m.NutritionInfo
	_, err := s.db.ExecContext(ctx, upsertMeal,
		id, m.Timestamp, string(m.Category), m.Image, m.Audio, m.Transcription,
		q.CalorieDensity, q.GoalFitPercentage, q.MealQualityScore,
		n.Calories, n.Carbs, n.Sugar, n.Protein, n.Fat,
	)
	return classify(err)
}

// classify maps Postgres error classes onto the domain errors the
// reconciler acts on. Everything else stays transient.
func classify(err error) error {
	if err == nil {
		return nil
	}
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return err
	}
	switch {
	case pgerrcode.IsInvalidAuthorizationSpecification(pgErr.Code):
		return fmt.Errorf("%w: %s", domain.ErrUnauthorized, pgErr.Message)
	case pgErr.Code == pgerrcode.InsufficientPrivilege:
		return fmt.Errorf("%w: %s", domain.ErrUnauthorized, pgErr.Message)
	case pgerrcode.IsDataException(pgErr.Code),
		pgerrcode.IsIntegrityConstraintViolation(pgErr.Code):
		return fmt.Errorf("%w: %s (%s)", domain.ErrRejected, pgErr.Message, pgErr.Code)
	}
	return err
}
