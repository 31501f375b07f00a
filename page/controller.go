package page

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"timebank/api"
	"timebank/chat"
	"timebank/handshake"
	"timebank/journal"
	"timebank/metrics"
	"timebank/rating"
	"timebank/session"
)

// DefaultJournalTimeout bounds one journal write on the action path.
const DefaultJournalTimeout = 3 * time.Second

// ErrClosed is returned by every operation after Close.
var ErrClosed = errors.New("page: controller closed")

// Backend is the REST collaborator the page drives. *api.Client implements it.
type Backend interface {
	ListHandshakes(ctx context.Context) ([]handshake.Record, error)
	CreateHandshake(ctx context.Context, p api.Proposal) (handshake.Record, error)
	AcceptHandshake(ctx context.Context, id handshake.ID) (api.Outcome, error)
	DeclineHandshake(ctx context.Context, id handshake.ID) (api.Outcome, error)
	ConfirmProvider(ctx context.Context, id handshake.ID) (api.Outcome, error)
	ConfirmSeeker(ctx context.Context, id handshake.ID) (api.Outcome, error)
	RatingStatus(ctx context.Context, id handshake.ID) (rating.Status, error)
	SubmitRating(ctx context.Context, id handshake.ID, sub rating.Submission) error
	chat.Backend
}

// IdentityResolver is satisfied by *session.Resolver.
type IdentityResolver interface {
	Resolve(ctx context.Context, cred session.Credential) session.Identity
}

// Row is one rendered handshake.
type Row struct {
	Record       handshake.Record
	Permissions  handshake.Permissions
	PromptRating bool
}

// Controller is the view-model of a page listing handshakes. It owns the
// record store and the rating map for its lifetime.
type Controller struct {
	backend  Backend
	creds    session.CredentialSource
	resolver IdentityResolver
	store    *handshake.Store
	loader   *rating.Loader
	journal  *journal.Service
	metrics  *metrics.Collectors
	logger   *zap.Logger
	now      func() time.Time

	chatInterval   time.Duration
	journalTimeout time.Duration

	lifetime context.Context
	cancel   context.CancelFunc

	mu       sync.Mutex
	identity session.Identity
	ratings  rating.Map
	pollers  map[handshake.ID]*chat.Poller
	closed   bool
}

func New(backend Backend, creds session.CredentialSource, resolver IdentityResolver) *Controller {
	lifetime, cancel := context.WithCancel(context.Background())
	return &Controller{
		backend:        backend,
		creds:          creds,
		resolver:       resolver,
		store:          handshake.NewStore(nil),
		loader:         rating.NewLoader(backend),
		journal:        journal.NewService(nil),
		logger:         zap.NewNop(),
		now:            time.Now,
		chatInterval:   chat.DefaultInterval,
		journalTimeout: DefaultJournalTimeout,
		lifetime:       lifetime,
		cancel:         cancel,
		identity:       session.LoggedOut(),
		ratings:        rating.Map{},
		pollers:        make(map[handshake.ID]*chat.Poller),
	}
}

// WithLogger sets the logger. It resets the record store, so call it before
// Load.
func (c *Controller) WithLogger(logger *zap.Logger) *Controller {
	if logger != nil {
		c.logger = logger
		c.store = handshake.NewStore(logger)
		c.loader.WithLogger(logger)
	}
	return c
}

func (c *Controller) WithJournal(j *journal.Service) *Controller {
	if j != nil {
		c.journal = j
	}
	return c
}

func (c *Controller) WithMetrics(m *metrics.Collectors) *Controller {
	c.metrics = m
	return c
}

// WithClock overrides the time source used for credential expiry checks.
func (c *Controller) WithClock(now func() time.Time) *Controller {
	if now != nil {
		c.now = now
	}
	return c
}

func (c *Controller) WithRatingConcurrency(n int) *Controller {
	c.loader.WithConcurrency(n)
	return c
}

func (c *Controller) WithChatInterval(d time.Duration) *Controller {
	if d > 0 {
		c.chatInterval = d
	}
	return c
}

// WithJournalTimeout bounds each journal write so an unreachable database
// cannot stall an action.
func (c *Controller) WithJournalTimeout(d time.Duration) *Controller {
	if d > 0 {
		c.journalTimeout = d
	}
	return c
}

// Load resolves the identity and replaces the collection with the backend
// list, then loads rating statuses for completed records.
func (c *Controller) Load(ctx context.Context) error {
	ctx, done, err := c.scope(ctx)
	if err != nil {
		return err
	}
	defer done()

	identity := c.resolveIdentity(ctx)
	c.mu.Lock()
	c.identity = identity
	c.mu.Unlock()
	if !identity.LoggedIn() {
		return api.NotAuthenticated()
	}

	if err := c.refresh(ctx); err != nil {
		return err
	}
	return c.loadRatings(ctx, c.store.Snapshot())
}

// Refresh refetches the list without resolving the identity again.
func (c *Controller) Refresh(ctx context.Context) error {
	ctx, done, err := c.scope(ctx)
	if err != nil {
		return err
	}
	defer done()
	if !c.Identity().LoggedIn() {
		return api.NotAuthenticated()
	}
	if err := c.refresh(ctx); err != nil {
		return err
	}
	c.observeRatings(ctx)
	return nil
}

// View evaluates every record against the current identity.
func (c *Controller) View() []Row {
	records := c.store.Snapshot()

	c.mu.Lock()
	identity, ratings := c.identity, c.ratings
	c.mu.Unlock()

	rows := make([]Row, 0, len(records))
	for _, rec := range records {
		perms := handshake.Evaluate(rec, identity)
		rows = append(rows, Row{
			Record:       rec,
			Permissions:  perms,
			PromptRating: perms.CanRate && rating.ShouldPrompt(rec, ratings),
		})
	}
	return rows
}

// Row returns the rendered row for id.
func (c *Controller) Row(id handshake.ID) (Row, bool) {
	for _, row := range c.View() {
		if row.Record.ID == id {
			return row, true
		}
	}
	return Row{}, false
}

func (c *Controller) Identity() session.Identity {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.identity
}

// Ratings returns the current rating map. The map must not be modified.
func (c *Controller) Ratings() rating.Map {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ratings
}

// Close cancels outstanding fetches and stops every chat poller. Results that
// arrive afterwards are discarded.
func (c *Controller) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	pollers := c.pollers
	c.pollers = make(map[handshake.ID]*chat.Poller)
	c.mu.Unlock()

	c.cancel()
	for _, p := range pollers {
		p.Stop()
	}
}

func (c *Controller) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// scope derives a context that ends with either the caller's context or the
// controller lifetime.
func (c *Controller) scope(ctx context.Context) (context.Context, func(), error) {
	if c.isClosed() {
		return nil, nil, ErrClosed
	}
	scoped, cancel := context.WithCancel(ctx)
	stop := context.AfterFunc(c.lifetime, cancel)
	return scoped, func() {
		stop()
		cancel()
	}, nil
}

func (c *Controller) resolveIdentity(ctx context.Context) session.Identity {
	cred := c.credential()
	if !cred.Present() {
		return session.LoggedOut()
	}
	return c.resolver.Resolve(ctx, cred)
}

// credential returns the stored credential, or none when it has expired.
func (c *Controller) credential() session.Credential {
	if c.creds == nil {
		return ""
	}
	cred := c.creds.Credential()
	if session.Expired(cred, c.now()) {
		c.logger.Info("credential expired")
		return ""
	}
	return cred
}

func (c *Controller) refresh(ctx context.Context) error {
	ticket := c.store.BeginRefresh()
	records, err := c.backend.ListHandshakes(ctx)
	if err != nil {
		return err
	}
	if c.isClosed() {
		return ErrClosed
	}
	if err := c.store.CompleteRefresh(ticket, c.usable(records)); err != nil {
		return fmt.Errorf("page: apply handshake list: %w", err)
	}
	return nil
}

// usable drops records that break the record invariants or repeat an id, so
// one bad row cannot hide the rest of the list.
func (c *Controller) usable(records []handshake.Record) []handshake.Record {
	seen := make(map[handshake.ID]struct{}, len(records))
	out := make([]handshake.Record, 0, len(records))
	for _, rec := range records {
		if err := handshake.Validate(rec); err != nil {
			c.logger.Warn("skipping invalid handshake", zap.String("handshake_id", rec.ID.String()), zap.Error(err))
			continue
		}
		if _, dup := seen[rec.ID]; dup {
			c.logger.Warn("skipping duplicate handshake", zap.String("handshake_id", rec.ID.String()))
			continue
		}
		seen[rec.ID] = struct{}{}
		out = append(out, rec)
	}
	return out
}

// observeRatings fetches statuses for completed records the rating map has
// no entry for yet. A failed fetch leaves the record to the next pass.
func (c *Controller) observeRatings(ctx context.Context) {
	c.mu.Lock()
	known := c.ratings
	c.mu.Unlock()

	var pending []handshake.Record
	for _, rec := range c.store.Snapshot() {
		if rec.Status != handshake.StatusCompleted {
			continue
		}
		if _, ok := known[rec.ID]; ok {
			continue
		}
		pending = append(pending, rec)
	}
	if len(pending) == 0 {
		return
	}
	if err := c.loadRatings(ctx, pending); err != nil && !errors.Is(err, ErrClosed) {
		c.logger.Debug("rating status refresh interrupted", zap.Error(err))
	}
}

func (c *Controller) loadRatings(ctx context.Context, records []handshake.Record) error {
	statuses, err := c.loader.Load(ctx, records)
	if err != nil {
		if c.isClosed() {
			return ErrClosed
		}
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClosed
	}
	for id, st := range statuses {
		c.ratings = rating.Observe(c.ratings, id, st)
	}
	return nil
}
