package journal

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Service records page actions. A Service without a repository accepts and
// drops every entry, so the page works without a database.
type Service struct {
	repo   Repository
	now    func() time.Time
	idGen  func() uuid.UUID
	logger *zap.Logger
}

func NewService(repo Repository) *Service {
	return &Service{
		repo:   repo,
		now:    time.Now,
		idGen:  uuid.New,
		logger: zap.NewNop(),
	}
}

// WithClock overrides the time source, primarily for tests.
func (s *Service) WithClock(now func() time.Time) *Service {
	if now != nil {
		s.now = now
	}
	return s
}

// WithIDGenerator overrides entry id generation.
func (s *Service) WithIDGenerator(gen func() uuid.UUID) *Service {
	if gen != nil {
		s.idGen = gen
	}
	return s
}

func (s *Service) WithLogger(logger *zap.Logger) *Service {
	if logger != nil {
		s.logger = logger
	}
	return s
}

func (s *Service) Enabled() bool {
	return s != nil && s.repo != nil
}

// Record appends an entry. Failures are returned but callers on the action
// path only log them.
func (s *Service) Record(ctx context.Context, handshakeID, action string, outcome Outcome, actor string, detail map[string]any) error {
	if !s.Enabled() {
		return nil
	}
	handshakeID = strings.TrimSpace(handshakeID)
	if handshakeID == "" || action == "" {
		return fmt.Errorf("journal: handshake id and action are required")
	}
	e := Entry{
		ID:          s.idGen(),
		HandshakeID: handshakeID,
		Action:      action,
		Outcome:     outcome,
		Actor:       actor,
		Detail:      detail,
		CreatedAt:   s.now().UTC(),
	}
	if err := s.repo.Append(ctx, e); err != nil {
		s.logger.Warn("journal append failed",
			zap.String("handshake_id", handshakeID),
			zap.String("action", action),
			zap.Error(err),
		)
		return err
	}
	return nil
}

func (s *Service) History(ctx context.Context, handshakeID string, limit int) ([]Entry, error) {
	if !s.Enabled() {
		return nil, nil
	}
	return s.repo.List(ctx, handshakeID, limit)
}
