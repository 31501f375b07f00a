package page

import (
	"context"
	"sync"
	"sync/atomic"

	"timebank/api"
	"timebank/chat"
	"timebank/handshake"
	"timebank/rating"
	"timebank/session"
)

// fakeBackend serves canned answers and counts every call.
type fakeBackend struct {
	mu       sync.Mutex
	records  []handshake.Record
	statuses map[handshake.ID]rating.Status
	messages []chat.Message
	outcomes map[string]api.Outcome
	errs     map[string]error
	// block, when set, is waited on by lifecycle calls before answering.
	block chan struct{}

	calls      atomic.Int32
	lastCall   atomic.Value // last lifecycle call
	rated      []handshake.ID
	listHits   atomic.Int32
	statusHits atomic.Int32
}

func newFakeBackend(records ...handshake.Record) *fakeBackend {
	return &fakeBackend{
		records:  records,
		statuses: map[handshake.ID]rating.Status{},
		outcomes: map[string]api.Outcome{},
		errs:     map[string]error{},
	}
}

func (f *fakeBackend) setRecords(records ...handshake.Record) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.records = records
}

func (f *fakeBackend) setStatus(id handshake.ID, st rating.Status) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.statuses[id] = st
}

func (f *fakeBackend) track(name string) error {
	f.calls.Add(1)
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.errs[name]
}

func (f *fakeBackend) ListHandshakes(ctx context.Context) ([]handshake.Record, error) {
	f.listHits.Add(1)
	if err := f.track("list"); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]handshake.Record(nil), f.records...), nil
}

func (f *fakeBackend) CreateHandshake(ctx context.Context, p api.Proposal) (handshake.Record, error) {
	if err := f.track("create"); err != nil {
		return handshake.Record{}, err
	}
	rec := handshake.Record{
		ID:               "100",
		Status:           handshake.StatusProposed,
		OfferID:          p.OfferID,
		RequestID:        p.RequestID,
		ProviderUsername: "alice",
		SeekerUsername:   "bob",
		Hours:            p.Hours,
	}
	return rec, nil
}

func (f *fakeBackend) lifecycle(ctx context.Context, name string) (api.Outcome, error) {
	f.lastCall.Store(name)
	if err := f.track(name); err != nil {
		return api.Outcome{}, err
	}
	if f.block != nil {
		select {
		case <-f.block:
		case <-ctx.Done():
			return api.Outcome{}, ctx.Err()
		}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.outcomes[name], nil
}

func (f *fakeBackend) AcceptHandshake(ctx context.Context, id handshake.ID) (api.Outcome, error) {
	return f.lifecycle(ctx, "accept")
}

func (f *fakeBackend) DeclineHandshake(ctx context.Context, id handshake.ID) (api.Outcome, error) {
	return f.lifecycle(ctx, "decline")
}

func (f *fakeBackend) ConfirmProvider(ctx context.Context, id handshake.ID) (api.Outcome, error) {
	return f.lifecycle(ctx, "confirm_provider")
}

func (f *fakeBackend) ConfirmSeeker(ctx context.Context, id handshake.ID) (api.Outcome, error) {
	return f.lifecycle(ctx, "confirm_seeker")
}

func (f *fakeBackend) RatingStatus(ctx context.Context, id handshake.ID) (rating.Status, error) {
	f.statusHits.Add(1)
	if err := f.track("rating_status"); err != nil {
		return rating.Status{}, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.statuses[id], nil
}

func (f *fakeBackend) SubmitRating(ctx context.Context, id handshake.ID, sub rating.Submission) error {
	if err := f.track("rate"); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rated = append(f.rated, id)
	return nil
}

func (f *fakeBackend) Messages(ctx context.Context, id handshake.ID) ([]chat.Message, error) {
	if err := f.track("messages"); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]chat.Message(nil), f.messages...), nil
}

func (f *fakeBackend) SendMessage(ctx context.Context, id handshake.ID, content string) (chat.Message, error) {
	if err := f.track("send"); err != nil {
		return chat.Message{}, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	msg := chat.Message{ID: int64(len(f.messages) + 1), HandshakeID: id, SenderUsername: "bob", Content: content}
	f.messages = append(f.messages, msg)
	return msg, nil
}

// staticResolver resolves every credential to the same identity.
type staticResolver struct {
	identity session.Identity
	calls    atomic.Int32
}

func (r *staticResolver) Resolve(ctx context.Context, cred session.Credential) session.Identity {
	r.calls.Add(1)
	return r.identity
}

func record(id handshake.ID, status handshake.Status) handshake.Record {
	offer := int64(42)
	return handshake.Record{
		ID:               id,
		Status:           status,
		OfferID:          &offer,
		ProviderUsername: "alice",
		SeekerUsername:   "bob",
		Hours:            2,
	}
}

func completed(id handshake.ID) handshake.Record {
	r := record(id, handshake.StatusCompleted)
	r.ProviderConfirmed = true
	r.SeekerConfirmed = true
	return r
}

func newController(backend *fakeBackend, user string) *Controller {
	var identity session.Identity
	if user == "" {
		identity = session.LoggedOut()
	} else {
		identity = session.Known(user)
	}
	return New(backend, session.Static("token"), &staticResolver{identity: identity})
}
