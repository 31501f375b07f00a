package rating

import (
	"context"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"timebank/handshake"
)

const defaultConcurrency = 4

// StatusFetcher loads the rating status of one handshake.
type StatusFetcher interface {
	RatingStatus(ctx context.Context, id handshake.ID) (Status, error)
}

// Loader fetches statuses for every completed record with bounded fan-out.
type Loader struct {
	fetcher StatusFetcher
	limit   int
	logger  *zap.Logger
}

func NewLoader(fetcher StatusFetcher) *Loader {
	return &Loader{fetcher: fetcher, limit: defaultConcurrency, logger: zap.NewNop()}
}

// WithConcurrency caps the number of in-flight fetches.
func (l *Loader) WithConcurrency(n int) *Loader {
	if n > 0 {
		l.limit = n
	}
	return l
}

func (l *Loader) WithLogger(logger *zap.Logger) *Loader {
	if logger != nil {
		l.logger = logger
	}
	return l
}

// Load returns the statuses of the completed records. A failed fetch leaves
// its entry absent. If ctx is cancelled nothing is returned.
func (l *Loader) Load(ctx context.Context, records []handshake.Record) (Map, error) {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(l.limit)

	var mu sync.Mutex
	out := make(Map)

	for _, rec := range records {
		if rec.Status != handshake.StatusCompleted {
			continue
		}
		id := rec.ID
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			st, err := l.fetcher.RatingStatus(gctx, id)
			if err != nil {
				if ctxErr := gctx.Err(); ctxErr != nil {
					return ctxErr
				}
				l.logger.Warn("rating status fetch failed", zap.String("handshake_id", id.String()), zap.Error(err))
				return nil
			}
			mu.Lock()
			out[id] = st
			mu.Unlock()
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return out, nil
}
