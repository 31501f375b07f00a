package oracles

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

type Oracle struct {
	Name string
	SQL  string
}

// All lists invariants over the action journal. Journal writes are best
// effort, so every oracle bounds successes from above and never requires an
// entry to exist.
func All() []Oracle {
	return []Oracle{
		{
			Name: "O1_single_accept",
			SQL: `SELECT handshake_id, COUNT(*) FROM handshake_journal
                  WHERE action = 'accept' AND outcome = 'ok'
                  GROUP BY handshake_id HAVING COUNT(*) > 1`,
		},
		{
			Name: "O2_accept_xor_decline",
			SQL: `SELECT handshake_id FROM handshake_journal
                  WHERE action IN ('accept','decline') AND outcome = 'ok'
                  GROUP BY handshake_id HAVING COUNT(DISTINCT action) > 1`,
		},
		{
			Name: "O3_single_rating_per_actor",
			SQL: `SELECT handshake_id, actor FROM handshake_journal
                  WHERE action = 'rate' AND outcome = 'ok'
                  GROUP BY handshake_id, actor HAVING COUNT(*) > 1`,
		},
		{
			Name: "O4_single_confirm_per_actor",
			SQL: `SELECT handshake_id, actor FROM handshake_journal
                  WHERE action = 'confirm' AND outcome = 'ok'
                  GROUP BY handshake_id, actor HAVING COUNT(*) > 1`,
		},
		{
			Name: "O5_ok_status_matches_action",
			SQL: `SELECT id, handshake_id, action, detail->>'status' FROM handshake_journal
                  WHERE outcome = 'ok' AND (
                        (action = 'accept'  AND detail->>'status' IN ('proposed','declined'))
                     OR (action = 'decline' AND detail->>'status' <> 'declined')
                     OR (action = 'confirm' AND detail->>'status' IN ('proposed','declined'))
                     OR (action = 'rate'    AND detail->>'status' <> 'completed'))`,
		},
		{
			Name: "O6_rating_after_decline",
			SQL: `SELECT r.handshake_id FROM handshake_journal r
                  JOIN handshake_journal d ON d.handshake_id = r.handshake_id
                  WHERE r.action = 'rate' AND r.outcome = 'ok'
                    AND d.action = 'decline' AND d.outcome = 'ok'`,
		},
	}
}

// Violation is the first offending row of a failed oracle.
type Violation struct {
	Oracle string
	Row    []any
}

func (v Violation) String() string {
	return fmt.Sprintf("%s: %v", v.Oracle, v.Row)
}

// Run checks every oracle and stops at the first violation. A nil
// Violation means the journal is consistent.
func Run(ctx context.Context, pool *pgxpool.Pool) (*Violation, error) {
	for _, o := range All() {
		v, err := check(ctx, pool, o)
		if err != nil || v != nil {
			return v, err
		}
	}
	return nil, nil
}

func check(ctx context.Context, pool *pgxpool.Pool, o Oracle) (*Violation, error) {
	rows, err := pool.Query(ctx, o.SQL)
	if err != nil {
		return nil, fmt.Errorf("oracles: %s: %w", o.Name, err)
	}
	defer rows.Close()
	if !rows.Next() {
		return nil, rows.Err()
	}
	row, err := rows.Values()
	if err != nil {
		return nil, fmt.Errorf("oracles: %s: scan: %w", o.Name, err)
	}
	return &Violation{Oracle: o.Name, Row: row}, nil
}

// Count returns the number of successful journal entries for action.
func Count(ctx context.Context, pool *pgxpool.Pool, action string) (int, error) {
	var n int
	err := pool.QueryRow(ctx, `SELECT COUNT(*) FROM handshake_journal WHERE action = $1 AND outcome = 'ok'`, action).Scan(&n)
	return n, err
}
