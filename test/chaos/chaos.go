package chaos

import (
	"context"
	"math/rand"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"timebank/test/backend"
)

// TerminateRandomBackend kills a random Postgres backend of the journal
// database from time to time. Journal writes are best effort, so actors must
// keep going.
func TerminateRandomBackend(ctx context.Context, pool *pgxpool.Pool, rng *rand.Rand, stop <-chan struct{}) {
	ticker := time.NewTicker(2 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-stop:
			return
		case <-ticker.C:
			if rng.Intn(5) == 0 {
				_, _ = pool.Exec(ctx, `SELECT pg_terminate_backend(pid) FROM pg_stat_activity WHERE datname = current_database() AND pid <> pg_backend_pid() ORDER BY random() LIMIT 1`)
			}
		}
	}
}

// FlakyAPI toggles injected 503s on the fake REST backend.
func FlakyAPI(ctx context.Context, srv *backend.Server, rng *rand.Rand, stop <-chan struct{}) {
	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()
	defer srv.SetFaultRate(0)
	for {
		select {
		case <-ctx.Done():
			return
		case <-stop:
			return
		case <-ticker.C:
			if rng.Intn(3) == 0 {
				srv.SetFaultRate(0.2)
			} else {
				srv.SetFaultRate(0)
			}
		}
	}
}
