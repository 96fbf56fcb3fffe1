// Package control exposes a small local HTTP API for inspecting and driving
// a running sync service.
package control

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi"

	"github.com/nutriai/mealsync/internal/ports"
	"github.com/nutriai/mealsync/pkg/mealsync"
)

// Backend is the part of *mealsync.Service the API needs.
type Backend interface {
	Status(ctx context.Context) mealsync.Status
	Queue(ctx context.Context) []mealsync.QueueEntry
	DropEntries(ctx context.Context, id string) int
	SyncNow() bool
	SetOnline(online bool) error
	ListMeals(ctx context.Context) ([]mealsync.MealRecord, error)
	RefreshMeals(ctx context.Context) ([]mealsync.MealRecord, error)
}

// Handler serves the control routes.
type Handler struct {
	backend Backend
	logger  ports.Logger
}

// NewRouter builds the control API router.
func NewRouter(backend Backend, logger ports.Logger) http.Handler {
	h := &Handler{backend: backend, logger: logger}

	r := chi.NewRouter()
	r.Get("/status", h.HandleStatus())
	r.Get("/queue", h.HandleQueue())
	r.Delete("/queue/{mealID}", h.HandleDrop())
	r.Post("/sync", h.HandleSync())
	r.Put("/network", h.HandleNetwork())
	r.Get("/meals", h.HandleMeals())
	r.Post("/meals/refresh", h.HandleRefresh())
	return r
}

// NewServer wraps the router in an http.Server listening on addr.
func NewServer(addr string, backend Backend, logger ports.Logger) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           NewRouter(backend, logger),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
}

type statusResponse struct {
	State         string      `json:"state"`
	Draining      bool        `json:"draining"`
	Online        bool        `json:"online"`
	QueueLength   int         `json:"queueLength"`
	QueueCapacity int         `json:"queueCapacity"`
	LastDrain     *drainStats `json:"lastDrain,omitempty"`
}

type drainStats struct {
	At        time.Time `json:"at"`
	Applied   int       `json:"applied"`
	Failed    int       `json:"failed"`
	Poisoned  int       `json:"poisoned"`
	Remaining int       `json:"remaining"`
	Halted    string    `json:"halted,omitempty"`
	Duration  string    `json:"duration"`
}

type syncResponse struct {
	Accepted bool `json:"accepted"`
}

type dropResponse struct {
	Dropped int `json:"dropped"`
}

type networkRequest struct {
	Online *bool `json:"online"`
}

// HandleStatus reports lifecycle, connectivity and queue depth.
func (h *Handler) HandleStatus() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		st := h.backend.Status(r.Context())
		resp := statusResponse{
			State:         st.State.String(),
			Draining:      st.Draining,
			Online:        st.Online,
			QueueLength:   st.QueueLength,
			QueueCapacity: st.QueueCapacity,
		}
		if st.LastDrain != nil {
			resp.LastDrain = &drainStats{
				At:        st.LastDrainAt,
				Applied:   st.LastDrain.Applied,
				Failed:    st.LastDrain.Failed,
				Poisoned:  st.LastDrain.Poisoned,
				Remaining: st.LastDrain.Remaining,
				Halted:    string(st.LastDrain.Halted),
				Duration:  st.LastDrain.Duration.String(),
			}
		}
		h.writeJSON(w, http.StatusOK, resp)
	}
}

// HandleQueue lists pending entries in their persisted form.
func (h *Handler) HandleQueue() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		entries := h.backend.Queue(r.Context())
		if entries == nil {
			entries = []mealsync.QueueEntry{}
		}
		h.writeJSON(w, http.StatusOK, entries)
	}
}

// HandleDrop removes all entries for one meal.
func (h *Handler) HandleDrop() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "mealID")
		n := h.backend.DropEntries(r.Context(), id)
		if n == 0 {
			http.Error(w, "no queued entries for "+id, http.StatusNotFound)
			return
		}
		h.writeJSON(w, http.StatusOK, dropResponse{Dropped: n})
	}
}

// HandleSync requests a drain. 202 when a new request was queued, 200 when
// one was already pending.
func (h *Handler) HandleSync() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		accepted := h.backend.SyncNow()
		status := http.StatusOK
		if accepted {
			status = http.StatusAccepted
		}
		h.writeJSON(w, status, syncResponse{Accepted: accepted})
	}
}

// HandleNetwork sets connectivity when the service runs in manual mode.
func (h *Handler) HandleNetwork() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req networkRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Online == nil {
			http.Error(w, `body must be {"online": true|false}`, http.StatusBadRequest)
			return
		}
		if err := h.backend.SetOnline(*req.Online); err != nil {
			if errors.Is(err, mealsync.ErrManualNetworkOnly) {
				http.Error(w, err.Error(), http.StatusConflict)
				return
			}
			h.logger.Error("set online failed", ports.Err(err))
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

// HandleMeals lists locally known meals.
func (h *Handler) HandleMeals() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		meals, err := h.backend.ListMeals(r.Context())
		if err != nil {
			h.logger.Error("list meals failed", ports.Err(err))
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		if meals == nil {
			meals = []mealsync.MealRecord{}
		}
		h.writeJSON(w, http.StatusOK, meals)
	}
}

// HandleRefresh reloads meals from the remote and returns the new list.
func (h *Handler) HandleRefresh() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		meals, err := h.backend.RefreshMeals(r.Context())
		switch {
		case errors.Is(err, mealsync.ErrUnauthorized), errors.Is(err, mealsync.ErrNoCredentials):
			http.Error(w, err.Error(), http.StatusUnauthorized)
			return
		case err != nil:
			h.logger.Warn("refresh meals failed", ports.Err(err))
			http.Error(w, err.Error(), http.StatusBadGateway)
			return
		}
		if meals == nil {
			meals = []mealsync.MealRecord{}
		}
		h.writeJSON(w, http.StatusOK, meals)
	}
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.Warn("failed to write response", ports.Err(err))
	}
}
