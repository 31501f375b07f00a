package chat

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"timebank/handshake"
	"timebank/metrics"
)

// DefaultInterval matches the refresh cadence of the web client.
const DefaultInterval = 3 * time.Second

var ErrEmptyMessage = errors.New("chat: message is empty")

// Backend is the messaging collaborator.
type Backend interface {
	Messages(ctx context.Context, id handshake.ID) ([]Message, error)
	SendMessage(ctx context.Context, id handshake.ID, content string) (Message, error)
}

// Poller refreshes one conversation on a fixed interval until stopped.
type Poller struct {
	backend  Backend
	id       handshake.ID
	interval time.Duration
	onUpdate func([]Message)
	onError  func(error)
	logger   *zap.Logger
	metrics  *metrics.Collectors

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
	kick   chan struct{}
}

func NewPoller(backend Backend, id handshake.ID, onUpdate func([]Message)) *Poller {
	if onUpdate == nil {
		onUpdate = func([]Message) {}
	}
	return &Poller{
		backend:  backend,
		id:       id,
		interval: DefaultInterval,
		onUpdate: onUpdate,
		onError:  func(error) {},
		logger:   zap.NewNop(),
		kick:     make(chan struct{}, 1),
	}
}

func (p *Poller) WithInterval(d time.Duration) *Poller {
	if d > 0 {
		p.interval = d
	}
	return p
}

func (p *Poller) WithErrorHandler(fn func(error)) *Poller {
	if fn != nil {
		p.onError = fn
	}
	return p
}

func (p *Poller) WithLogger(logger *zap.Logger) *Poller {
	if logger != nil {
		p.logger = logger
	}
	return p
}

func (p *Poller) WithMetrics(m *metrics.Collectors) *Poller {
	p.metrics = m
	return p
}

// Start fetches immediately and then on every tick. A poller that is already
// running is left alone.
func (p *Poller) Start(ctx context.Context) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cancel != nil {
		return
	}
	loopCtx, cancel := context.WithCancel(ctx)
	p.cancel = cancel
	p.done = make(chan struct{})
	go p.loop(loopCtx, p.done)
}

// Stop cancels the loop and waits for it to exit. Safe to call repeatedly.
func (p *Poller) Stop() {
	p.mu.Lock()
	cancel, done := p.cancel, p.done
	p.cancel, p.done = nil, nil
	p.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
}

func (p *Poller) Running() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.cancel != nil
}

// Refresh asks the running loop for an immediate fetch.
func (p *Poller) Refresh() {
	select {
	case p.kick <- struct{}{}:
	default:
	}
}

// Send posts content and triggers a refresh. Blank content is rejected before
// any request.
func (p *Poller) Send(ctx context.Context, content string) (Message, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return Message{}, ErrEmptyMessage
	}
	msg, err := p.backend.SendMessage(ctx, p.id, content)
	if err != nil {
		return Message{}, err
	}
	p.Refresh()
	return msg, nil
}

func (p *Poller) loop(ctx context.Context, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	p.poll(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.poll(ctx)
		case <-p.kick:
			p.poll(ctx)
		}
	}
}

func (p *Poller) poll(ctx context.Context) {
	msgs, err := p.backend.Messages(ctx, p.id)
	if ctx.Err() != nil {
		return
	}
	if err != nil {
		p.metrics.Poll(metrics.OutcomeError)
		p.logger.Debug("chat poll failed", zap.String("handshake_id", p.id.String()), zap.Error(err))
		p.onError(err)
		return
	}
	p.metrics.Poll(metrics.OutcomeOK)
	p.onUpdate(msgs)
}
