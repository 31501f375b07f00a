package handshake

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

type Status string

const (
	StatusProposed   Status = "proposed"
	StatusAccepted   Status = "accepted"
	StatusDeclined   Status = "declined"
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"

	// statusRejected is the legacy spelling some backend paths still emit.
	statusRejected Status = "rejected"
)

// Valid reports whether s is one of the known lifecycle statuses.
func (s Status) Valid() bool {
	switch s {
	case StatusProposed, StatusAccepted, StatusDeclined, StatusInProgress, StatusCompleted:
		return true
	default:
		return false
	}
}

// Terminal reports whether no further transitions can be requested.
func (s Status) Terminal() bool {
	return s == StatusDeclined || s == StatusCompleted
}

// Active covers the statuses in which completion can be confirmed.
func (s Status) Active() bool {
	return s == StatusAccepted || s == StatusInProgress
}

func (s *Status) UnmarshalJSON(data []byte) error {
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("handshake: decode status: %w", err)
	}
	normalized := Status(strings.ToLower(strings.TrimSpace(raw)))
	if normalized == statusRejected {
		normalized = StatusDeclined
	}
	*s = normalized
	return nil
}

// ID identifies a handshake. The backend sends integers, older payloads send
// strings; both decode to the same canonical string form.
type ID string

func (id ID) String() string { return string(id) }

func (id *ID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*id = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return fmt.Errorf("handshake: decode id: %w", err)
		}
		*id = ID(strings.TrimSpace(s))
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("handshake: decode id: %w", err)
	}
	*id = ID(n.String())
	return nil
}

func (id ID) MarshalJSON() ([]byte, error) {
	if n, err := strconv.ParseInt(string(id), 10, 64); err == nil {
		return []byte(strconv.FormatInt(n, 10)), nil
	}
	return json.Marshal(string(id))
}

// Record is the normalized handshake as received from the backend. The client
// never synthesizes one; records only enter through decoded responses.
type Record struct {
	ID                ID        `json:"id"`
	Status            Status    `json:"status"`
	OfferID           *int64    `json:"offer,omitempty"`
	RequestID         *int64    `json:"request,omitempty"`
	ProviderUsername  string    `json:"provider_username"`
	SeekerUsername    string    `json:"seeker_username"`
	ProviderID        *int64    `json:"provider_id,omitempty"`
	SeekerID          *int64    `json:"seeker_id,omitempty"`
	Hours             float64   `json:"hours"`
	ProviderConfirmed bool      `json:"provider_confirmed"`
	SeekerConfirmed   bool      `json:"seeker_confirmed"`
	CreatedAt         time.Time `json:"created_at"`
}

// Parent describes the post a handshake belongs to, e.g. "offer 12".
func (r Record) Parent() string {
	switch {
	case r.OfferID != nil:
		return fmt.Sprintf("offer %d", *r.OfferID)
	case r.RequestID != nil:
		return fmt.Sprintf("request %d", *r.RequestID)
	default:
		return "unknown post"
	}
}

// Partial carries the subset of fields a confirmation response may return.
// Nil fields are left untouched by Merge.
type Partial struct {
	Status            *Status  `json:"status,omitempty"`
	ProviderConfirmed *bool    `json:"provider_confirmed,omitempty"`
	SeekerConfirmed   *bool    `json:"seeker_confirmed,omitempty"`
	Hours             *float64 `json:"hours,omitempty"`
}

// Empty reports whether the partial carries no field at all.
func (p Partial) Empty() bool {
	return p.Status == nil && p.ProviderConfirmed == nil && p.SeekerConfirmed == nil && p.Hours == nil
}

func (p Partial) applyTo(r Record) Record {
	if p.Status != nil {
		r.Status = *p.Status
	}
	if p.ProviderConfirmed != nil {
		r.ProviderConfirmed = *p.ProviderConfirmed
	}
	if p.SeekerConfirmed != nil {
		r.SeekerConfirmed = *p.SeekerConfirmed
	}
	if p.Hours != nil {
		r.Hours = *p.Hours
	}
	return r
}
