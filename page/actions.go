package page

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"timebank/api"
	"timebank/handshake"
	"timebank/journal"
	"timebank/metrics"
	"timebank/rating"
	"timebank/session"
)

const (
	ActionAccept  = "accept"
	ActionDecline = "decline"
	ActionConfirm = "confirm"
	ActionRate    = "rate"
	ActionPropose = "propose"
)

const (
	noticeAccepted  = "Handshake accepted!"
	noticeDeclined  = "Handshake declined."
	noticeConfirmed = "Confirmation recorded!"
	noticeRated     = "Rating submitted."
	noticeProposed  = "Handshake request sent successfully!"
)

// Accept accepts a proposed handshake as its provider.
func (c *Controller) Accept(ctx context.Context, id handshake.ID) (string, error) {
	accepted := handshake.StatusAccepted
	return c.transition(ctx, id, ActionAccept, transitionRule{
		allowed: func(p handshake.Permissions) bool { return p.CanAccept },
		call:    c.backend.AcceptHandshake,
		implied: &handshake.Partial{Status: &accepted},
		notice:  noticeAccepted,
	})
}

// Decline declines a proposed handshake as its provider.
func (c *Controller) Decline(ctx context.Context, id handshake.ID) (string, error) {
	declined := handshake.StatusDeclined
	return c.transition(ctx, id, ActionDecline, transitionRule{
		allowed: func(p handshake.Permissions) bool { return p.CanDecline },
		call:    c.backend.DeclineHandshake,
		implied: &handshake.Partial{Status: &declined},
		notice:  noticeDeclined,
	})
}

// Confirm records completion for the user's side of the handshake. The
// endpoint is chosen from the user's role on the record.
func (c *Controller) Confirm(ctx context.Context, id handshake.ID) (string, error) {
	return c.transition(ctx, id, ActionConfirm, transitionRule{
		allowed: func(p handshake.Permissions) bool { return p.CanConfirmCompletion },
		route: func(p handshake.Permissions) func(context.Context, handshake.ID) (api.Outcome, error) {
			if p.Role() == handshake.RoleProvider {
				return c.backend.ConfirmProvider
			}
			return c.backend.ConfirmSeeker
		},
		notice: noticeConfirmed,
	})
}

type transitionRule struct {
	allowed func(handshake.Permissions) bool
	call    func(context.Context, handshake.ID) (api.Outcome, error)
	route   func(handshake.Permissions) func(context.Context, handshake.ID) (api.Outcome, error)
	// implied is merged when the backend answers with a message only. Nil
	// means the record is refetched instead.
	implied *handshake.Partial
	notice  string
}

func (c *Controller) transition(ctx context.Context, id handshake.ID, action string, rule transitionRule) (notice string, err error) {
	ctx, done, err := c.scope(ctx)
	if err != nil {
		return "", err
	}
	defer done()

	identity := c.Identity()
	defer func() { c.record(ctx, id, action, identity, err) }()

	if !identity.LoggedIn() || !c.credential().Present() {
		return "", api.NotAuthenticated()
	}

	unlock, err := c.store.Lock(ctx, id)
	if err != nil {
		return "", err
	}
	defer unlock()

	rec, ok := c.store.Get(id)
	if !ok {
		return "", &api.Error{Kind: api.KindNotFound}
	}
	perms := handshake.Evaluate(rec, identity)
	if !rule.allowed(perms) {
		return "", api.Validation(fmt.Sprintf("You cannot %s this handshake right now.", action), nil)
	}

	call := rule.call
	if rule.route != nil {
		call = rule.route(perms)
	}
	out, err := call(ctx, id)
	if err != nil {
		return "", c.recoverFrom(ctx, id, err)
	}
	if c.isClosed() {
		return "", ErrClosed
	}

	if err := c.applyOutcome(ctx, id, out, rule.implied); err != nil {
		return "", err
	}
	c.observeRatings(ctx)
	if out.Message != "" {
		return out.Message, nil
	}
	return rule.notice, nil
}

// applyOutcome folds a successful response into the store. A response that
// cannot be applied locally falls back to a full refetch.
func (c *Controller) applyOutcome(ctx context.Context, id handshake.ID, out api.Outcome, implied *handshake.Partial) error {
	var action handshake.Action
	switch {
	case out.Record != nil:
		action = handshake.Upsert{Record: *out.Record}
	case out.Partial != nil:
		action = handshake.Merge{ID: id, Partial: *out.Partial}
	case implied != nil:
		action = handshake.Merge{ID: id, Partial: *implied}
	}

	if action != nil {
		err := c.store.Dispatch(action)
		if err == nil {
			return nil
		}
		if !errors.Is(err, handshake.ErrNotFound) && !errors.Is(err, handshake.ErrInvariant) {
			return err
		}
		c.logger.Info("falling back to refetch", zap.String("handshake_id", id.String()), zap.Error(err))
	}
	return c.refresh(ctx)
}

// recoverFrom refetches the list after a Forbidden or NotFound answer so the
// stale local view is replaced. The original error is always returned.
func (c *Controller) recoverFrom(ctx context.Context, id handshake.ID, cause error) error {
	if !api.IsKind(cause, api.KindForbidden) && !api.IsKind(cause, api.KindNotFound) {
		return cause
	}
	if err := c.refresh(ctx); err != nil {
		c.logger.Warn("refetch after rejection failed", zap.String("handshake_id", id.String()), zap.Error(err))
		return cause
	}
	c.observeRatings(ctx)
	return cause
}

// Rate submits a rating for a completed handshake.
func (c *Controller) Rate(ctx context.Context, id handshake.ID, sub rating.Submission) (notice string, err error) {
	ctx, done, err := c.scope(ctx)
	if err != nil {
		return "", err
	}
	defer done()

	identity := c.Identity()
	defer func() { c.record(ctx, id, ActionRate, identity, err) }()

	if !identity.LoggedIn() || !c.credential().Present() {
		return "", api.NotAuthenticated()
	}

	normalized, err := sub.Normalize()
	if err != nil {
		return "", api.Validation(err.Error(), err)
	}

	unlock, err := c.store.Lock(ctx, id)
	if err != nil {
		return "", err
	}
	defer unlock()

	rec, ok := c.store.Get(id)
	if !ok {
		return "", &api.Error{Kind: api.KindNotFound}
	}
	if !handshake.Evaluate(rec, identity).CanRate {
		return "", api.Validation("Only participants of a completed handshake can rate it.", nil)
	}
	if c.Ratings()[id].HasRated {
		return "", api.Validation("You have already rated this handshake.", nil)
	}

	if err := c.backend.SubmitRating(ctx, id, normalized); err != nil {
		if api.IsKind(err, api.KindForbidden) {
			c.refreshRating(ctx, id)
		}
		return "", c.recoverFrom(ctx, id, err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return "", ErrClosed
	}
	c.ratings = rating.NoteSubmitted(c.ratings, id)
	return noticeRated, nil
}

func (c *Controller) refreshRating(ctx context.Context, id handshake.ID) {
	st, err := c.backend.RatingStatus(ctx, id)
	if err != nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.ratings = rating.Observe(c.ratings, id, st)
	}
}

// Propose asks for a new handshake and adds the created record.
func (c *Controller) Propose(ctx context.Context, p api.Proposal) (rec handshake.Record, notice string, err error) {
	ctx, done, err := c.scope(ctx)
	if err != nil {
		return handshake.Record{}, "", err
	}
	defer done()

	identity := c.Identity()
	defer func() { c.record(ctx, rec.ID, ActionPropose, identity, err) }()

	if !identity.LoggedIn() || !c.credential().Present() {
		return handshake.Record{}, "", api.NotAuthenticated()
	}
	if err := p.Validate(); err != nil {
		return handshake.Record{}, "", err
	}

	created, err := c.backend.CreateHandshake(ctx, p)
	if err != nil {
		return handshake.Record{}, "", err
	}
	if c.isClosed() {
		return handshake.Record{}, "", ErrClosed
	}
	if err := c.store.Dispatch(handshake.Upsert{Record: created}); err != nil {
		return handshake.Record{}, "", fmt.Errorf("page: add proposed handshake: %w", err)
	}
	return created, noticeProposed, nil
}

// record reports the action outcome to metrics and the journal.
func (c *Controller) record(ctx context.Context, id handshake.ID, action string, identity session.Identity, err error) {
	outcome, label := classify(err)
	c.metrics.Action(action, label)
	if id == "" {
		return
	}

	detail := map[string]any{}
	if rec, ok := c.store.Get(id); ok {
		detail["status"] = string(rec.Status)
	}
	if err != nil {
		detail["error"] = err.Error()
	}
	// The journal outlives a cancelled action, but not a stuck database.
	jctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.journalTimeout)
	defer cancel()
	_ = c.journal.Record(jctx, id.String(), action, outcome, identity.Username, detail)
}

func classify(err error) (journal.Outcome, string) {
	switch {
	case err == nil:
		return journal.OutcomeOK, metrics.OutcomeOK
	case api.IsKind(err, api.KindForbidden):
		return journal.OutcomeForbidden, metrics.OutcomeForbidden
	case api.IsKind(err, api.KindValidation), api.IsKind(err, api.KindNotAuthenticated):
		return journal.OutcomeRejected, metrics.OutcomeRejected
	default:
		return journal.OutcomeFailed, metrics.OutcomeError
	}
}
