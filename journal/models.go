package journal

import (
	"time"

	"github.com/google/uuid"
)

type Outcome string

const (
	OutcomeOK        Outcome = "ok"
	OutcomeRejected  Outcome = "rejected"
	OutcomeForbidden Outcome = "forbidden"
	OutcomeFailed    Outcome = "failed"
)

// Entry is one recorded client action on a handshake.
type Entry struct {
	ID          uuid.UUID      `json:"id"`
	HandshakeID string         `json:"handshake_id"`
	Action      string         `json:"action"`
	Outcome     Outcome        `json:"outcome"`
	Actor       string         `json:"actor"`
	Detail      map[string]any `json:"detail,omitempty"`
	CreatedAt   time.Time      `json:"created_at"`
}
