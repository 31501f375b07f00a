package handshake

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned when an action targets an id absent from the state.
	ErrNotFound = errors.New("handshake: not found")
	// ErrInvariant signals a record that violates the lifecycle invariants.
	ErrInvariant = errors.New("handshake: invariant violated")
)

// Validate checks the record-level invariants every stored record must hold.
func Validate(r Record) error {
	if r.ID == "" {
		return fmt.Errorf("%w: missing id", ErrInvariant)
	}
	if !r.Status.Valid() {
		return fmt.Errorf("%w: handshake %s has unknown status %q", ErrInvariant, r.ID, r.Status)
	}
	if (r.OfferID == nil) == (r.RequestID == nil) {
		return fmt.Errorf("%w: handshake %s must reference exactly one of offer or request", ErrInvariant, r.ID)
	}
	if r.Hours <= 0 {
		return fmt.Errorf("%w: handshake %s has non-positive hours %v", ErrInvariant, r.ID, r.Hours)
	}
	switch r.Status {
	case StatusCompleted:
		if !r.ProviderConfirmed || !r.SeekerConfirmed {
			return fmt.Errorf("%w: handshake %s completed without both confirmations", ErrInvariant, r.ID)
		}
	case StatusProposed:
		if r.ProviderConfirmed || r.SeekerConfirmed {
			return fmt.Errorf("%w: handshake %s proposed with a confirmation set", ErrInvariant, r.ID)
		}
	}
	return nil
}

// Transition reports whether the backend moving a record from one status to
// another matches the lifecycle the client renders:
//
//	proposed -> accepted | declined
//	accepted -> in_progress | completed
//	in_progress -> completed
//
// Staying in the same status is always legal (confirmation flags change
// without a status change).
func Transition(from, to Status) bool {
	if from == to {
		return true
	}
	switch from {
	case StatusProposed:
		return to == StatusAccepted || to == StatusDeclined
	case StatusAccepted:
		return to == StatusInProgress || to == StatusCompleted
	case StatusInProgress:
		return to == StatusCompleted
	default:
		return false
	}
}
