package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"
)

// Category is the meal slot a record belongs to.
type Category string

const (
	CategoryBreakfast Category = "Breakfast"
	CategoryLunch     Category = "Lunch"
	CategoryDinner    Category = "Dinner"
	CategorySnack     Category = "Snack"
	CategoryOther     Category = "Other"
)

// Valid reports whether c is one of the known categories.
func (c Category) Valid() bool {
	switch c {
	case CategoryBreakfast, CategoryLunch, CategoryDinner, CategorySnack, CategoryOther:
		return true
	}
	return false
}

// NutritionInfo holds the macro breakdown of a meal, in grams except Calories.
type NutritionInfo struct {
	Calories float64 `json:"calories"`
	Carbs    float64 `json:"carbs"`
	Sugar    float64 `json:"sugar"`
	Protein  float64 `json:"protein"`
	Fat      float64 `json:"fat"`
}

// MealQuality scores a meal against the user's goals.
type MealQuality struct {
	// CalorieDensity is calories per gram.
	CalorieDensity float64 `json:"calorieDensity"`

	// GoalFitPercentage is in [0, 100].
	GoalFitPercentage float64 `json:"goalFitPercentage"`

	// MealQualityScore is in [1, 10].
	MealQualityScore float64 `json:"mealQualityScore"`
}

// MealRecord is a single logged meal.
type MealRecord struct {
	ID string `json:"id"`

	// Timestamp is unix seconds.
	Timestamp int64    `json:"timestamp"`
	Category  Category `json:"category"`

	// Image and Audio are either a local file:// URI awaiting upload or a
	// server-side path.
	Image         string `json:"image,omitempty"`
	Audio         string `json:"audio,omitempty"`
	Transcription string `json:"transcription,omitempty"`

	MealQuality   MealQuality   `json:"mealQuality"`
	NutritionInfo NutritionInfo `json:"nutritionInfo"`

	// Extra holds members of the JSON object this type does not model, as
	// a compact JSON object with sorted keys. They are written back on
	// marshal so newer clients' fields reach the remote.
	Extra string `json:"-"`
}

// mealFields is MealRecord without its JSON methods.
type mealFields MealRecord

var knownMealKeys = map[string]bool{
	"id": true, "timestamp": true, "category": true, "image": true, "audio": true,
	"transcription": true, "mealQuality": true, "nutritionInfo": true,
}

// MarshalJSON encodes the modelled fields followed by Extra.
func (m MealRecord) MarshalJSON() ([]byte, error) {
	b, err := json.Marshal(mealFields(m))
	if err != nil {
		return nil, err
	}
	extra := bytes.TrimSpace([]byte(m.Extra))
	if len(extra) < 2 || string(extra) == "{}" {
		return b, nil
	}

	out := make([]byte, 0, len(b)+len(extra))
	out = append(out, b[:len(b)-1]...)
	out = append(out, ',')
	out = append(out, extra[1:]...)
	return out, nil
}

// UnmarshalJSON decodes the modelled fields and keeps the rest in Extra.
func (m *MealRecord) UnmarshalJSON(data []byte) error {
	var f mealFields
	if err := json.Unmarshal(data, &f); err != nil {
		return err
	}
	var all map[string]json.RawMessage
	if err := json.Unmarshal(data, &all); err != nil {
		return err
	}

	f.Extra = ""
	for k := range all {
		if knownMealKeys[k] {
			delete(all, k)
		}
	}
	if len(all) > 0 {
		extra, err := json.Marshal(all)
		if err != nil {
			return err
		}
		f.Extra = string(extra)
	}
	*m = MealRecord(f)
	return nil
}

// Time returns the meal timestamp as a time.Time.
func (m MealRecord) Time() time.Time {
	return time.Unix(m.Timestamp, 0)
}

// Validate checks the record invariants. Failures wrap ErrInvalidMeal.
func (m MealRecord) Validate() error {
	if m.ID == "" {
		return fmt.Errorf("%w: id is required", ErrInvalidMeal)
	}
	if !m.Category.Valid() {
		return fmt.Errorf("%w: unknown category %q", ErrInvalidMeal, m.Category)
	}
	if m.Timestamp < 0 {
		return fmt.Errorf("%w: timestamp must be non-negative", ErrInvalidMeal)
	}

	n := m.NutritionInfo
	for _, f := range []struct {
		name  string
		value float64
	}{
		{"calories", n.Calories},
		{"carbs", n.Carbs},
		{"sugar", n.Sugar},
		{"protein", n.Protein},
		{"fat", n.Fat},
		{"calorieDensity", m.MealQuality.CalorieDensity},
	} {
		if f.value < 0 {
			return fmt.Errorf("%w: %s must be non-negative", ErrInvalidMeal, f.name)
		}
	}

	if q := m.MealQuality.GoalFitPercentage; q < 0 || q > 100 {
		return fmt.Errorf("%w: goalFitPercentage must be between 0 and 100", ErrInvalidMeal)
	}
	if q := m.MealQuality.MealQualityScore; q < 1 || q > 10 {
		return fmt.Errorf("%w: mealQualityScore must be between 1 and 10", ErrInvalidMeal)
	}
	return nil
}
