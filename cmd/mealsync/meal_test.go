package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rs/zerolog"

	"github.com/nutriai/mealsync/internal/cliconfig"
	"github.com/nutriai/mealsync/pkg/mealsync"
)

func TestReadMeal(t *testing.T) {
	const body = `{"id":"m1","timestamp":1700000000,"category":"Dinner",
		"mealQuality":{"calorieDensity":1.1,"goalFitPercentage":70,"mealQualityScore":6},
		"nutritionInfo":{"calories":700,"carbs":80,"sugar":10,"protein":35,"fat":20}}`

	meal, err := readMeal("-", strings.NewReader(body))
	if err != nil {
		t.Fatalf("readMeal(stdin) error = %v", err)
	}
	if meal.ID != "m1" || meal.NutritionInfo.Protein != 35 {
		t.Errorf("readMeal(stdin) = %+v", meal)
	}

	path := filepath.Join(t.TempDir(), "meal.json")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}
	meal, err = readMeal(path, nil)
	if err != nil {
		t.Fatalf("readMeal(file) error = %v", err)
	}
	if meal.Category != "Dinner" {
		t.Errorf("Category = %q, want Dinner", meal.Category)
	}
}

func TestReadMeal_RejectsUnknownFields(t *testing.T) {
	if _, err := readMeal("-", strings.NewReader(`{"id":"m1","calories":5}`)); err == nil {
		t.Error("readMeal() expected error for unknown field")
	}
}

func TestMealRefreshPrintsRemoteMeals(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet || r.URL.Path != "/meals" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`[{"id":"w1","timestamp":1700000000,"category":"Lunch","image":"uploads/w1.jpg"}]`))
	}))
	defer ts.Close()

	a := &app{cfg: cliconfig.DefaultConfig(), log: zerolog.Nop()}
	a.cfg.StoreDir = t.TempDir()
	a.cfg.ServiceURL = ts.URL
	a.cfg.AuthToken = "tok"
	a.cfg.NetworkMode = mealsync.NetworkAlways
	if err := a.cfg.Validate(); err != nil {
		t.Fatal(err)
	}
	defer a.close()

	var out bytes.Buffer
	cmd := a.mealCmd()
	cmd.SetArgs([]string{"refresh"})
	cmd.SetOut(&out)
	if err := cmd.ExecuteContext(context.Background()); err != nil {
		t.Fatalf("meal refresh: %v", err)
	}

	var meals []mealsync.MealRecord
	if err := json.Unmarshal(out.Bytes(), &meals); err != nil {
		t.Fatalf("decode output %q: %v", out.String(), err)
	}
	if len(meals) != 1 || meals[0].ID != "w1" {
		t.Fatalf("meals = %+v, want w1", meals)
	}
	if want := ts.URL + "/static/uploads/w1.jpg"; meals[0].Image != want {
		t.Errorf("image = %q, want %q", meals[0].Image, want)
	}
}
