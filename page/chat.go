package page

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"timebank/api"
	"timebank/chat"
	"timebank/handshake"
)

// OpenChat starts polling the conversation of id. Any poller already open for
// id is stopped first. The poller runs until CloseChat or Close.
func (c *Controller) OpenChat(id handshake.ID, onUpdate func([]chat.Message)) (*chat.Poller, error) {
	if c.isClosed() {
		return nil, ErrClosed
	}
	identity := c.Identity()
	if !identity.LoggedIn() {
		return nil, api.NotAuthenticated()
	}
	rec, ok := c.store.Get(id)
	if !ok {
		return nil, &api.Error{Kind: api.KindNotFound}
	}
	if !handshake.Evaluate(rec, identity).CanChat {
		return nil, api.Validation("Chat is not available for this handshake.", nil)
	}

	logger := c.logger.With(zap.String("handshake_id", id.String()))
	poller := chat.NewPoller(c.backend, id, onUpdate).
		WithInterval(c.chatInterval).
		WithLogger(logger).
		WithMetrics(c.metrics).
		WithErrorHandler(func(err error) {
			logger.Debug("chat poll failed", zap.Error(err))
		})

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil, ErrClosed
	}
	prev := c.pollers[id]
	c.pollers[id] = poller
	c.mu.Unlock()

	if prev != nil {
		prev.Stop()
	}
	poller.Start(c.lifetime)
	return poller, nil
}

// CloseChat stops the poller for id, if any.
func (c *Controller) CloseChat(id handshake.ID) {
	c.mu.Lock()
	poller := c.pollers[id]
	delete(c.pollers, id)
	c.mu.Unlock()

	if poller != nil {
		poller.Stop()
	}
}

// SendMessage posts content to the conversation of id. An open poller is
// refreshed so the new message shows without waiting for the next tick.
func (c *Controller) SendMessage(ctx context.Context, id handshake.ID, content string) (chat.Message, error) {
	ctx, done, err := c.scope(ctx)
	if err != nil {
		return chat.Message{}, err
	}
	defer done()

	if !c.Identity().LoggedIn() || !c.credential().Present() {
		return chat.Message{}, api.NotAuthenticated()
	}

	c.mu.Lock()
	poller := c.pollers[id]
	c.mu.Unlock()
	if poller == nil {
		poller = chat.NewPoller(c.backend, id, nil)
	}

	msg, err := poller.Send(ctx, content)
	if errors.Is(err, chat.ErrEmptyMessage) {
		return chat.Message{}, api.Validation("Message cannot be empty.", err)
	}
	return msg, err
}
