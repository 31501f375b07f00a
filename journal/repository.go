package journal

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrDuplicateEntry signals an Append with an id that is already stored.
var ErrDuplicateEntry = errors.New("journal: duplicate entry")

type Repository interface {
	Append(ctx context.Context, e Entry) error
	List(ctx context.Context, handshakeID string, limit int) ([]Entry, error)
}

// PGRepository stores entries in the handshake_journal table.
type PGRepository struct {
	pool *pgxpool.Pool
}

func NewPGRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

func (r *PGRepository) Append(ctx context.Context, e Entry) error {
	detail := e.Detail
	if detail == nil {
		detail = map[string]any{}
	}
	payload, err := json.Marshal(detail)
	if err != nil {
		return fmt.Errorf("journal: marshal detail: %w", err)
	}

	const insertSQL = `
INSERT INTO handshake_journal (id, handshake_id, action, outcome, actor, detail, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7);
`
	if _, err := r.pool.Exec(ctx, insertSQL, e.ID, e.HandshakeID, e.Action, string(e.Outcome), e.Actor, payload, e.CreatedAt); err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return ErrDuplicateEntry
		}
		return fmt.Errorf("journal: insert entry: %w", err)
	}
	return nil
}

// List returns the newest entries for handshakeID first.
func (r *PGRepository) List(ctx context.Context, handshakeID string, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 50
	}

	const selectSQL = `
SELECT id, handshake_id, action, outcome, actor, detail, created_at
FROM handshake_journal
WHERE handshake_id = $1
ORDER BY created_at DESC, id
LIMIT $2;
`
	rows, err := r.pool.Query(ctx, selectSQL, handshakeID, limit)
	if err != nil {
		return nil, fmt.Errorf("journal: list entries: %w", err)
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var (
			e       Entry
			outcome string
			detail  []byte
		)
		if err := rows.Scan(&e.ID, &e.HandshakeID, &e.Action, &outcome, &e.Actor, &detail, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("journal: scan entry: %w", err)
		}
		e.Outcome = Outcome(outcome)
		if len(detail) > 0 {
			if err := json.Unmarshal(detail, &e.Detail); err != nil {
				return nil, fmt.Errorf("journal: decode detail: %w", err)
			}
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("journal: list entries: %w", err)
	}
	return out, nil
}
