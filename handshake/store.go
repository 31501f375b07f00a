package handshake

import (
	"context"
	"sync"

	"go.uber.org/zap"
)

// Ticket marks the moment a full refresh was requested.
type Ticket struct {
	seq uint64
}

// Store owns the handshake collection of one page for its lifetime. All
// mutation goes through Dispatch or CompleteRefresh.
type Store struct {
	mu      sync.Mutex
	records []Record
	seq     uint64
	touched map[ID]uint64

	locks  *keyedMutex
	logger *zap.Logger
}

func NewStore(logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{
		touched: make(map[ID]uint64),
		locks:   newKeyedMutex(),
		logger:  logger,
	}
}

// Snapshot returns a copy of the current records.
func (s *Store) Snapshot() []Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Record, len(s.records))
	copy(out, s.records)
	return out
}

func (s *Store) Get(id ID) (Record, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if i := indexOf(s.records, id); i >= 0 {
		return s.records[i], true
	}
	return Record{}, false
}

// Dispatch applies action to the owned collection. Targeted actions stamp
// their id so an older in-flight refresh cannot overwrite them.
func (s *Store) Dispatch(action Action) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var previous *Record
	if id := action.Touches(); id != "" {
		if i := indexOf(s.records, id); i >= 0 {
			prev := s.records[i]
			previous = &prev
		}
	}

	next, err := Apply(s.records, action)
	if err != nil {
		return err
	}
	s.records = next
	s.seq++

	if id := action.Touches(); id != "" {
		s.touched[id] = s.seq
		if previous != nil {
			if cur, ok := s.lookupLocked(id); ok && !Transition(previous.Status, cur.Status) {
				s.logger.Warn("unexpected handshake transition",
					zap.String("handshake_id", id.String()),
					zap.String("from", string(previous.Status)),
					zap.String("to", string(cur.Status)),
				)
			}
		}
	} else {
		s.touched = make(map[ID]uint64)
	}
	return nil
}

// BeginRefresh records the sequence before a full-list fetch is issued.
func (s *Store) BeginRefresh() Ticket {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Ticket{seq: s.seq}
}

// CompleteRefresh replaces the collection with a fetched list. Records updated
// locally after the ticket was issued win over their fetched copy, including
// records the list does not contain yet.
func (s *Store) CompleteRefresh(ticket Ticket, records []Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	merged := make([]Record, 0, len(records))
	seen := make(map[ID]struct{}, len(records))
	for _, rec := range records {
		seen[rec.ID] = struct{}{}
		if s.touched[rec.ID] > ticket.seq {
			if local, ok := s.lookupLocked(rec.ID); ok {
				s.logger.Debug("discarding stale refreshed handshake", zap.String("handshake_id", rec.ID.String()))
				merged = append(merged, local)
				continue
			}
		}
		merged = append(merged, rec)
	}
	for _, local := range s.records {
		if _, ok := seen[local.ID]; ok {
			continue
		}
		if s.touched[local.ID] > ticket.seq {
			merged = append(merged, local)
		}
	}

	next, err := Apply(s.records, Replace{Records: merged})
	if err != nil {
		return err
	}
	s.records = next
	s.seq++
	for id, at := range s.touched {
		if at <= ticket.seq {
			delete(s.touched, id)
		}
	}
	return nil
}

// Lock serializes actions on a single handshake id. The returned func
// releases the lock. Actions on other ids are not blocked.
func (s *Store) Lock(ctx context.Context, id ID) (func(), error) {
	return s.locks.lock(ctx, id)
}

func (s *Store) lookupLocked(id ID) (Record, bool) {
	if i := indexOf(s.records, id); i >= 0 {
		return s.records[i], true
	}
	return Record{}, false
}

type keyedMutex struct {
	mu   sync.Mutex
	held map[ID]chan struct{}
}

func newKeyedMutex() *keyedMutex {
	return &keyedMutex{held: make(map[ID]chan struct{})}
}

func (k *keyedMutex) lock(ctx context.Context, id ID) (func(), error) {
	for {
		k.mu.Lock()
		released, busy := k.held[id]
		if !busy {
			done := make(chan struct{})
			k.held[id] = done
			k.mu.Unlock()

			var once sync.Once
			return func() {
				once.Do(func() {
					k.mu.Lock()
					delete(k.held, id)
					k.mu.Unlock()
					close(done)
				})
			}, nil
		}
		k.mu.Unlock()

		select {
		case <-released:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}
