package domain

import (
	"encoding/json"
	"fmt"
)

// Kind tags a mutation on the wire.
type Kind string

const (
	KindCreateMeal Kind = "CREATE_MEAL"
	KindUpdateMeal Kind = "UPDATE_MEAL"
	KindDeleteMeal Kind = "DELETE_MEAL"
)

// Mutation is a pending write against the remote meal store.
// The set of implementations is closed: CreateMeal, UpdateMeal, DeleteMeal.
type Mutation interface {
	Kind() Kind
	MealID() string
	isMutation()
}

// CreateMeal records a new meal.
type CreateMeal struct {
	Meal MealRecord

	// Payload is the persisted payload this mutation was decoded from.
	// When set it is written back byte for byte.
	Payload json.RawMessage
}

// UpdateMeal replaces an existing meal.
type UpdateMeal struct {
	ID      string
	Meal    MealRecord
	Payload json.RawMessage
}

// DeleteMeal removes a meal.
type DeleteMeal struct {
	ID string
}

func (CreateMeal) Kind() Kind { return KindCreateMeal }
func (UpdateMeal) Kind() Kind { return KindUpdateMeal }
func (DeleteMeal) Kind() Kind { return KindDeleteMeal }

func (m CreateMeal) MealID() string { return m.Meal.ID }

func (m UpdateMeal) MealID() string {
	if m.ID != "" {
		return m.ID
	}
	return m.Meal.ID
}

func (m DeleteMeal) MealID() string { return m.ID }

func (CreateMeal) isMutation() {}
func (UpdateMeal) isMutation() {}
func (DeleteMeal) isMutation() {}

// EntryKey identifies a queue entry. CreatedAt is unique within a queue,
// so two pending writes against the same meal never share a key.
type EntryKey struct {
	ID        string
	Kind      Kind
	CreatedAt int64
}

func (k EntryKey) String() string {
	return fmt.Sprintf("%s/%s@%d", k.Kind, k.ID, k.CreatedAt)
}

// QueueEntry is a mutation waiting to be replayed.
type QueueEntry struct {
	ID         string
	Mutation   Mutation
	RetryCount int

	// CreatedAt is unix milliseconds.
	CreatedAt int64
}

// Kind returns the kind of the wrapped mutation.
func (e QueueEntry) Kind() Kind {
	if e.Mutation == nil {
		return ""
	}
	return e.Mutation.Kind()
}

// Key returns the entry identity used for removal and replacement.
func (e QueueEntry) Key() EntryKey {
	return EntryKey{ID: e.ID, Kind: e.Kind(), CreatedAt: e.CreatedAt}
}

// entryJSON is the persisted layout of a QueueEntry.
type entryJSON struct {
	ID         string          `json:"id"`
	Type       Kind            `json:"type"`
	Payload    json.RawMessage `json:"payload"`
	RetryCount int             `json:"retryCount"`
	CreatedAt  int64           `json:"createdAt"`
}

// MarshalJSON encodes the entry. Create and update carry the meal object,
// delete carries the meal id as a string. A payload read from storage is
// re-emitted unchanged.
func (e QueueEntry) MarshalJSON() ([]byte, error) {
	var payload any
	switch m := e.Mutation.(type) {
	case CreateMeal:
		if len(m.Payload) > 0 {
			payload = m.Payload
		} else {
			payload = m.Meal
		}
	case UpdateMeal:
		if len(m.Payload) > 0 {
			payload = m.Payload
		} else {
			payload = m.Meal
		}
	case DeleteMeal:
		payload = m.ID
	case nil:
		return nil, fmt.Errorf("entry %s: missing mutation", e.ID)
	default:
		return nil, fmt.Errorf("%w: %T", ErrUnknownKind, m)
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal payload: %w", err)
	}

	return json.Marshal(entryJSON{
		ID:         e.ID,
		Type:       e.Mutation.Kind(),
		Payload:    raw,
		RetryCount: e.RetryCount,
		CreatedAt:  e.CreatedAt,
	})
}

// UnmarshalJSON decodes an entry and rebuilds its mutation from the type tag.
// Meal payloads are opaque: a payload that does not look like a meal is kept
// as is, and the typed view falls back to the entry id.
func (e *QueueEntry) UnmarshalJSON(data []byte) error {
	var w entryJSON
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	if w.RetryCount < 0 {
		return fmt.Errorf("entry %s: negative retryCount", w.ID)
	}

	var m Mutation
	switch w.Type {
	case KindCreateMeal, KindUpdateMeal:
		payload := append(json.RawMessage(nil), w.Payload...)
		var meal MealRecord
		if err := json.Unmarshal(payload, &meal); err != nil {
			meal = MealRecord{}
		}
		if meal.ID == "" {
			meal.ID = w.ID
		}
		if w.Type == KindCreateMeal {
			m = CreateMeal{Meal: meal, Payload: payload}
		} else {
			m = UpdateMeal{ID: w.ID, Meal: meal, Payload: payload}
		}
	case KindDeleteMeal:
		id := w.ID
		if len(w.Payload) > 0 && string(w.Payload) != "null" {
			if err := json.Unmarshal(w.Payload, &id); err != nil {
				return fmt.Errorf("entry %s payload: %w", w.ID, err)
			}
		}
		m = DeleteMeal{ID: id}
	default:
		return fmt.Errorf("%w: %q", ErrUnknownKind, w.Type)
	}

	*e = QueueEntry{
		ID:         w.ID,
		Mutation:   m,
		RetryCount: w.RetryCount,
		CreatedAt:  w.CreatedAt,
	}
	return nil
}

// EncodeQueue serializes a queue in its persisted form.
func EncodeQueue(entries []QueueEntry) (string, error) {
	if entries == nil {
		entries = []QueueEntry{}
	}
	b, err := json.Marshal(entries)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// DecodeQueue parses a persisted queue. Errors wrap ErrCorruptQueue.
func DecodeQueue(s string) ([]QueueEntry, error) {
	var entries []QueueEntry
	if err := json.Unmarshal([]byte(s), &entries); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptQueue, err)
	}
	return entries, nil
}
