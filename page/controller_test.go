package page

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"timebank/api"
	"timebank/chat"
	"timebank/handshake"
	"timebank/journal"
	"timebank/rating"
	"timebank/session"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestLoggedOut_NoNetworkCalls(t *testing.T) {
	backend := newFakeBackend(record("1", handshake.StatusProposed))
	resolver := &staticResolver{identity: session.Known("alice")}
	c := New(backend, session.Static(""), resolver)
	defer c.Close()

	err := c.Load(context.Background())
	require.True(t, api.IsKind(err, api.KindNotAuthenticated), "got %v", err)

	_, err = c.Accept(context.Background(), "1")
	require.True(t, api.IsKind(err, api.KindNotAuthenticated), "got %v", err)

	_, _, err = c.Propose(context.Background(), api.Proposal{Hours: 1})
	require.True(t, api.IsKind(err, api.KindNotAuthenticated), "got %v", err)

	assert.Zero(t, backend.calls.Load())
	assert.Zero(t, resolver.calls.Load())
	assert.Empty(t, c.View())
}

func TestLoad_BuildsRows(t *testing.T) {
	backend := newFakeBackend(record("1", handshake.StatusProposed), completed("2"), completed("3"))
	backend.statuses["3"] = rating.Status{HasRated: true}

	c := newController(backend, "alice")
	defer c.Close()
	require.NoError(t, c.Load(context.Background()))

	rows := c.View()
	require.Len(t, rows, 3)

	one, ok := c.Row("1")
	require.True(t, ok)
	assert.True(t, one.Permissions.CanAccept)
	assert.True(t, one.Permissions.CanDecline)
	assert.False(t, one.PromptRating)

	two, _ := c.Row("2")
	assert.True(t, two.PromptRating)

	three, _ := c.Row("3")
	assert.False(t, three.PromptRating)
}

func TestLoad_SkipsInvalidRecords(t *testing.T) {
	broken := record("2", handshake.StatusProposed)
	broken.OfferID = nil
	backend := newFakeBackend(record("1", handshake.StatusProposed), broken, record("1", handshake.StatusAccepted))

	c := newController(backend, "alice")
	defer c.Close()
	require.NoError(t, c.Load(context.Background()))

	rows := c.View()
	require.Len(t, rows, 1)
	assert.Equal(t, handshake.StatusProposed, rows[0].Record.Status)
}

func TestView_SeekerCannotAcceptOwnRequest(t *testing.T) {
	backend := newFakeBackend(record("1", handshake.StatusProposed))
	c := newController(backend, "bob")
	defer c.Close()
	require.NoError(t, c.Load(context.Background()))

	row, _ := c.Row("1")
	assert.True(t, row.Permissions.IsSeeker)
	assert.False(t, row.Permissions.CanAccept)
	assert.False(t, row.Permissions.CanDecline)

	before := backend.calls.Load()
	_, err := c.Accept(context.Background(), "1")
	require.True(t, api.IsKind(err, api.KindValidation), "got %v", err)
	assert.Equal(t, before, backend.calls.Load(), "illegal action must not reach the backend")
}

func TestAccept_UpsertsReturnedRecord(t *testing.T) {
	backend := newFakeBackend(record("1", handshake.StatusProposed))
	accepted := record("1", handshake.StatusAccepted)
	backend.outcomes["accept"] = api.Outcome{Record: &accepted}

	c := newController(backend, "alice")
	defer c.Close()
	require.NoError(t, c.Load(context.Background()))

	notice, err := c.Accept(context.Background(), "1")
	require.NoError(t, err)
	assert.Equal(t, "Handshake accepted!", notice)

	row, _ := c.Row("1")
	assert.Equal(t, handshake.StatusAccepted, row.Record.Status)
	assert.True(t, row.Permissions.CanConfirmCompletion)
	assert.True(t, row.Permissions.CanChat)
}

func TestDecline_MessageOnlyAppliesImpliedStatus(t *testing.T) {
	backend := newFakeBackend(record("1", handshake.StatusProposed))
	backend.outcomes["decline"] = api.Outcome{Message: "Declined by provider."}

	c := newController(backend, "alice")
	defer c.Close()
	require.NoError(t, c.Load(context.Background()))
	lists := backend.listHits.Load()

	notice, err := c.Decline(context.Background(), "1")
	require.NoError(t, err)
	assert.Equal(t, "Declined by provider.", notice)
	assert.Equal(t, lists, backend.listHits.Load(), "no refetch expected")

	row, _ := c.Row("1")
	assert.Equal(t, handshake.StatusDeclined, row.Record.Status)
	assert.False(t, row.Permissions.CanChat)
}

func TestConfirm_SeekerMergeCompletesRecord(t *testing.T) {
	six := record("6", handshake.StatusAccepted)
	seven := record("7", handshake.StatusAccepted)
	seven.ProviderConfirmed = true
	eight := record("8", handshake.StatusInProgress)
	backend := newFakeBackend(six, seven, eight)

	done := handshake.StatusCompleted
	yes := true
	backend.outcomes["confirm_seeker"] = api.Outcome{Partial: &handshake.Partial{Status: &done, SeekerConfirmed: &yes}}

	c := newController(backend, "bob")
	defer c.Close()
	require.NoError(t, c.Load(context.Background()))

	notice, err := c.Confirm(context.Background(), "7")
	require.NoError(t, err)
	assert.Equal(t, "Confirmation recorded!", notice)
	assert.Equal(t, "confirm_seeker", backend.lastCall.Load())

	got, _ := c.Row("7")
	assert.Equal(t, handshake.StatusCompleted, got.Record.Status)
	assert.True(t, got.Permissions.CanRate)
	assert.True(t, got.PromptRating)

	r6, _ := c.Row("6")
	r8, _ := c.Row("8")
	assert.Equal(t, six, r6.Record)
	assert.Equal(t, eight, r8.Record)
}

func TestConfirm_ProviderWithoutBodyRefetches(t *testing.T) {
	backend := newFakeBackend(record("1", handshake.StatusAccepted))
	c := newController(backend, "alice")
	defer c.Close()
	require.NoError(t, c.Load(context.Background()))

	confirmed := record("1", handshake.StatusAccepted)
	confirmed.ProviderConfirmed = true
	backend.setRecords(confirmed)
	lists := backend.listHits.Load()

	_, err := c.Confirm(context.Background(), "1")
	require.NoError(t, err)
	assert.Equal(t, "confirm_provider", backend.lastCall.Load())
	assert.Equal(t, lists+1, backend.listHits.Load())

	row, _ := c.Row("1")
	assert.True(t, row.Permissions.IsWaitingOnPartner)
	assert.False(t, row.Permissions.CanConfirmCompletion)
}

func TestConfirm_UnappliablePartialFallsBackToRefetch(t *testing.T) {
	backend := newFakeBackend(record("1", handshake.StatusAccepted))
	c := newController(backend, "alice")
	defer c.Close()
	require.NoError(t, c.Load(context.Background()))

	// Completed without the seeker flag breaks the record invariants.
	done := handshake.StatusCompleted
	backend.outcomes["confirm_provider"] = api.Outcome{Partial: &handshake.Partial{Status: &done}}
	backend.setRecords(completed("1"))

	_, err := c.Confirm(context.Background(), "1")
	require.NoError(t, err)

	row, _ := c.Row("1")
	assert.Equal(t, handshake.StatusCompleted, row.Record.Status)
	assert.True(t, row.Record.SeekerConfirmed)
}

func TestAccept_ForbiddenRefetches(t *testing.T) {
	backend := newFakeBackend(record("1", handshake.StatusProposed))
	c := newController(backend, "alice")
	defer c.Close()
	require.NoError(t, c.Load(context.Background()))

	backend.errs["accept"] = &api.Error{Kind: api.KindForbidden, Status: 403}
	backend.setRecords(record("1", handshake.StatusDeclined))

	_, err := c.Accept(context.Background(), "1")
	require.True(t, api.IsKind(err, api.KindForbidden), "got %v", err)

	row, _ := c.Row("1")
	assert.Equal(t, handshake.StatusDeclined, row.Record.Status)
	assert.False(t, row.Permissions.CanAccept)
}

func TestAccept_NetworkFailureLeavesState(t *testing.T) {
	backend := newFakeBackend(record("1", handshake.StatusProposed))
	c := newController(backend, "alice")
	defer c.Close()
	require.NoError(t, c.Load(context.Background()))
	before := c.View()

	backend.errs["accept"] = &api.Error{Kind: api.KindNetwork}
	lists := backend.listHits.Load()

	_, err := c.Accept(context.Background(), "1")
	require.Error(t, err)
	assert.True(t, api.Retryable(err))
	assert.Equal(t, before, c.View())
	assert.Equal(t, lists, backend.listHits.Load())

	// The controller stays usable.
	delete(backend.errs, "accept")
	_, err = c.Accept(context.Background(), "1")
	require.NoError(t, err)
}

func TestAccept_UnknownRecord(t *testing.T) {
	backend := newFakeBackend()
	c := newController(backend, "alice")
	defer c.Close()
	require.NoError(t, c.Load(context.Background()))

	_, err := c.Accept(context.Background(), "404")
	assert.True(t, api.IsKind(err, api.KindNotFound), "got %v", err)
}

func TestRate_SubmitsOnceAndHidesPrompt(t *testing.T) {
	backend := newFakeBackend(completed("5"))
	c := newController(backend, "bob")
	defer c.Close()
	require.NoError(t, c.Load(context.Background()))

	sub := rating.Submission{Score: 9, Tags: []rating.Tag{rating.TagOnTime}, Comment: "  great  "}
	notice, err := c.Rate(context.Background(), "5", sub)
	require.NoError(t, err)
	assert.Equal(t, "Rating submitted.", notice)

	row, _ := c.Row("5")
	assert.False(t, row.PromptRating)
	assert.True(t, c.Ratings()["5"].HasRated)

	_, err = c.Rate(context.Background(), "5", sub)
	assert.True(t, api.IsKind(err, api.KindValidation), "got %v", err)
	assert.Equal(t, []handshake.ID{"5"}, backend.rated)
}

func TestRate_InvalidSubmission(t *testing.T) {
	backend := newFakeBackend(completed("5"))
	c := newController(backend, "bob")
	defer c.Close()
	require.NoError(t, c.Load(context.Background()))

	_, err := c.Rate(context.Background(), "5", rating.Submission{Score: 11, Tags: []rating.Tag{rating.TagFriendly}})
	require.True(t, api.IsKind(err, api.KindValidation), "got %v", err)
	assert.ErrorIs(t, err, rating.ErrInvalidSubmission)
	assert.Empty(t, backend.rated)
}

func TestRate_NotCompleted(t *testing.T) {
	backend := newFakeBackend(record("5", handshake.StatusAccepted))
	c := newController(backend, "bob")
	defer c.Close()
	require.NoError(t, c.Load(context.Background()))

	_, err := c.Rate(context.Background(), "5", rating.Submission{Score: 5, Tags: []rating.Tag{rating.TagFriendly}})
	require.True(t, api.IsKind(err, api.KindValidation), "got %v", err)
	assert.Empty(t, backend.rated)
}

func TestPropose_AddsCreatedRecord(t *testing.T) {
	backend := newFakeBackend()
	c := newController(backend, "bob")
	defer c.Close()
	require.NoError(t, c.Load(context.Background()))

	_, _, err := c.Propose(context.Background(), api.Proposal{Hours: 1})
	require.True(t, api.IsKind(err, api.KindValidation), "got %v", err)

	offer := int64(42)
	rec, notice, err := c.Propose(context.Background(), api.Proposal{OfferID: &offer, Hours: 1.5})
	require.NoError(t, err)
	assert.Equal(t, "Handshake request sent successfully!", notice)
	assert.Equal(t, handshake.ID("100"), rec.ID)

	row, ok := c.Row("100")
	require.True(t, ok)
	assert.True(t, row.Permissions.IsSeeker)
}

type memJournal struct {
	mu      sync.Mutex
	entries []journal.Entry
}

func (m *memJournal) Append(_ context.Context, e journal.Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = append(m.entries, e)
	return nil
}

func (m *memJournal) List(_ context.Context, id string, _ int) ([]journal.Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []journal.Entry
	for _, e := range m.entries {
		if e.HandshakeID == id {
			out = append(out, e)
		}
	}
	return out, nil
}

func TestActions_AreJournaled(t *testing.T) {
	backend := newFakeBackend(record("1", handshake.StatusProposed), record("2", handshake.StatusProposed))
	repo := &memJournal{}
	c := newController(backend, "alice").WithJournal(journal.NewService(repo))
	defer c.Close()
	require.NoError(t, c.Load(context.Background()))

	_, err := c.Accept(context.Background(), "1")
	require.NoError(t, err)

	backend.errs["decline"] = &api.Error{Kind: api.KindForbidden}
	_, err = c.Decline(context.Background(), "2")
	require.Error(t, err)

	require.Len(t, repo.entries, 2)
	assert.Equal(t, "accept", repo.entries[0].Action)
	assert.Equal(t, journal.OutcomeOK, repo.entries[0].Outcome)
	assert.Equal(t, "alice", repo.entries[0].Actor)
	assert.Equal(t, "accepted", repo.entries[0].Detail["status"])
	assert.Equal(t, journal.OutcomeForbidden, repo.entries[1].Outcome)
}

func TestClose_DiscardsInFlightResult(t *testing.T) {
	backend := newFakeBackend(record("1", handshake.StatusProposed))
	accepted := record("1", handshake.StatusAccepted)
	backend.outcomes["accept"] = api.Outcome{Record: &accepted}

	c := newController(backend, "alice")
	require.NoError(t, c.Load(context.Background()))
	backend.block = make(chan struct{})

	errc := make(chan error, 1)
	go func() {
		_, err := c.Accept(context.Background(), "1")
		errc <- err
	}()

	require.Eventually(t, func() bool { return backend.lastCall.Load() == "accept" }, time.Second, 5*time.Millisecond)
	c.Close()

	select {
	case err := <-errc:
		assert.True(t, errors.Is(err, context.Canceled) || errors.Is(err, ErrClosed), "got %v", err)
	case <-time.After(time.Second):
		t.Fatal("accept did not return after close")
	}

	row, _ := c.Row("1")
	assert.Equal(t, handshake.StatusProposed, row.Record.Status)
	assert.ErrorIs(t, c.Load(context.Background()), ErrClosed)
	c.Close()
}

func TestLoad_ExpiredCredentialIsLoggedOut(t *testing.T) {
	expired, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"username": "alice",
		"exp":      time.Now().Add(-time.Hour).Unix(),
	}).SignedString([]byte("test-secret"))
	require.NoError(t, err)

	backend := newFakeBackend(record("1", handshake.StatusProposed))
	c := New(backend, session.Static(expired), &staticResolver{identity: session.Known("alice")})
	defer c.Close()

	err = c.Load(context.Background())
	assert.True(t, api.IsKind(err, api.KindNotAuthenticated), "got %v", err)
	assert.Zero(t, backend.calls.Load())
}

func TestOpenChat(t *testing.T) {
	backend := newFakeBackend(record("1", handshake.StatusAccepted), record("2", handshake.StatusDeclined))
	backend.messages = []chat.Message{{ID: 1, HandshakeID: "1", SenderUsername: "alice", Content: "hi"}}

	c := newController(backend, "bob").WithChatInterval(10 * time.Millisecond)
	defer c.Close()
	require.NoError(t, c.Load(context.Background()))

	_, err := c.OpenChat("2", nil)
	require.True(t, api.IsKind(err, api.KindValidation), "got %v", err)

	updates := make(chan []chat.Message, 16)
	poller, err := c.OpenChat("1", func(msgs []chat.Message) {
		select {
		case updates <- msgs:
		default:
		}
	})
	require.NoError(t, err)
	assert.True(t, poller.Running())

	select {
	case msgs := <-updates:
		require.Len(t, msgs, 1)
		assert.Equal(t, "hi", msgs[0].Content)
	case <-time.After(time.Second):
		t.Fatal("no chat update")
	}

	_, err = c.SendMessage(context.Background(), "1", "   ")
	require.True(t, api.IsKind(err, api.KindValidation), "got %v", err)
	assert.Equal(t, "Message cannot be empty.", api.UserMessage(err))

	msg, err := c.SendMessage(context.Background(), "1", " thanks ")
	require.NoError(t, err)
	assert.Equal(t, "thanks", msg.Content)

	c.CloseChat("1")
	assert.False(t, poller.Running())
}

func TestRefresh_ObservesNewlyCompletedRecord(t *testing.T) {
	backend := newFakeBackend(record("7", handshake.StatusAccepted))
	c := newController(backend, "bob")
	defer c.Close()
	require.NoError(t, c.Load(context.Background()))
	assert.Zero(t, backend.statusHits.Load())

	backend.setRecords(completed("7"))
	backend.setStatus("7", rating.Status{HasRated: true, PartnerHasRated: true})
	require.NoError(t, c.Refresh(context.Background()))

	row, _ := c.Row("7")
	assert.Equal(t, handshake.StatusCompleted, row.Record.Status)
	assert.False(t, row.PromptRating, "already rated on another device")
	st, ok := c.Ratings()["7"]
	require.True(t, ok)
	assert.True(t, st.PartnerHasRated)

	// Known entries are not fetched again.
	require.NoError(t, c.Refresh(context.Background()))
	assert.Equal(t, int32(1), backend.statusHits.Load())
}

func TestConfirm_ObservesRatingOfCompletedRecord(t *testing.T) {
	seven := record("7", handshake.StatusAccepted)
	seven.ProviderConfirmed = true
	backend := newFakeBackend(seven)
	done := completed("7")
	backend.outcomes["confirm_seeker"] = api.Outcome{Record: &done}
	backend.setStatus("7", rating.Status{PartnerHasRated: true})

	c := newController(backend, "bob")
	defer c.Close()
	require.NoError(t, c.Load(context.Background()))

	_, err := c.Confirm(context.Background(), "7")
	require.NoError(t, err)

	assert.Equal(t, int32(1), backend.statusHits.Load())
	st, ok := c.Ratings()["7"]
	require.True(t, ok)
	assert.True(t, st.PartnerHasRated)
	assert.False(t, st.HasRated)

	row, _ := c.Row("7")
	assert.True(t, row.PromptRating)
}

// stuckJournal blocks every append until its context ends.
type stuckJournal struct {
	memJournal
	hadDeadline atomic.Bool
}

func (s *stuckJournal) Append(ctx context.Context, _ journal.Entry) error {
	_, ok := ctx.Deadline()
	s.hadDeadline.Store(ok)
	<-ctx.Done()
	return ctx.Err()
}

func TestAccept_StuckJournalDoesNotHang(t *testing.T) {
	backend := newFakeBackend(record("1", handshake.StatusProposed))
	repo := &stuckJournal{}
	c := newController(backend, "alice").
		WithJournal(journal.NewService(repo)).
		WithJournalTimeout(20 * time.Millisecond)
	defer c.Close()
	require.NoError(t, c.Load(context.Background()))

	start := time.Now()
	_, err := c.Accept(context.Background(), "1")
	require.NoError(t, err)
	assert.Less(t, time.Since(start), time.Second)
	assert.True(t, repo.hadDeadline.Load())
}
