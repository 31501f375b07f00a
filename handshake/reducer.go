package handshake

import (
	"fmt"
)

// Action is a state change derived from a backend response.
type Action interface {
	apply(state []Record) ([]Record, error)
	// Touches returns the id the action targets, or "" for whole-list actions.
	Touches() ID
}

// Replace swaps the entire collection, e.g. after the initial load or as a
// recovery fallback.
type Replace struct {
	Records []Record
}

// Upsert replaces the record with the same id or appends it.
type Upsert struct {
	Record Record
}

// Merge shallow-merges a partial response onto exactly one record.
type Merge struct {
	ID      ID
	Partial Partial
}

func (Replace) Touches() ID  { return "" }
func (a Upsert) Touches() ID { return a.Record.ID }
func (a Merge) Touches() ID  { return a.ID }

// Apply folds action into state and returns the next state. The input slice is
// never modified. On error the returned state is the unchanged input.
func Apply(state []Record, action Action) ([]Record, error) {
	if action == nil {
		return state, fmt.Errorf("handshake: nil action")
	}
	next, err := action.apply(state)
	if err != nil {
		return state, err
	}
	return next, nil
}

func (a Replace) apply(_ []Record) ([]Record, error) {
	seen := make(map[ID]struct{}, len(a.Records))
	next := make([]Record, 0, len(a.Records))
	for _, rec := range a.Records {
		if err := Validate(rec); err != nil {
			return nil, err
		}
		if _, dup := seen[rec.ID]; dup {
			return nil, fmt.Errorf("%w: duplicate handshake %s in list", ErrInvariant, rec.ID)
		}
		seen[rec.ID] = struct{}{}
		next = append(next, rec)
	}
	return next, nil
}

func (a Upsert) apply(state []Record) ([]Record, error) {
	if err := Validate(a.Record); err != nil {
		return nil, err
	}
	next := make([]Record, len(state), len(state)+1)
	copy(next, state)
	if i := indexOf(next, a.Record.ID); i >= 0 {
		next[i] = a.Record
		return next, nil
	}
	return append(next, a.Record), nil
}

func (a Merge) apply(state []Record) ([]Record, error) {
	i := indexOf(state, a.ID)
	if i < 0 {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, a.ID)
	}
	merged := a.Partial.applyTo(state[i])
	if err := Validate(merged); err != nil {
		return nil, err
	}
	next := make([]Record, len(state))
	copy(next, state)
	next[i] = merged
	return next, nil
}

func indexOf(state []Record, id ID) int {
	for i := range state {
		if state[i].ID == id {
			return i
		}
	}
	return -1
}
