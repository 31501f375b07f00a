// Package backend is an in-memory stand-in for the time-bank REST API. It
// enforces the handshake lifecycle server-side so stress actors can race
// against it through the real client.
package backend

import (
	"encoding/json"
	"fmt"
	"math/rand"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"timebank/chat"
	"timebank/handshake"
	"timebank/rating"
	"timebank/session"
)

// Stats counts lifecycle changes the server applied.
type Stats struct {
	Created   int
	Accepted  int
	Declined  int
	Confirmed int
	Completed int
	Rated     int
	Messages  int
	Faults    int
}

type ratingKey struct {
	id   int64
	user string
}

type Server struct {
	mu       sync.Mutex
	nextID   int64
	records  map[int64]*handshake.Record
	offers   map[int64]string
	requests map[int64]string
	rated    map[ratingKey]struct{}
	messages map[int64][]chat.Message
	stats    Stats

	faultRate float64
	rng       *rand.Rand
	now       func() time.Time
}

// New builds a server. offers and requests map post ids to their owners.
func New(offers, requests map[int64]string, seed int64) *Server {
	return &Server{
		records:  make(map[int64]*handshake.Record),
		offers:   offers,
		requests: requests,
		rated:    make(map[ratingKey]struct{}),
		messages: make(map[int64][]chat.Message),
		rng:      rand.New(rand.NewSource(seed)),
		now:      time.Now,
	}
}

// SetFaultRate makes a fraction of requests fail with 503 before any state
// change.
func (s *Server) SetFaultRate(rate float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.faultRate = rate
}

func (s *Server) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stats
}

// Records returns a copy of every stored handshake.
func (s *Server) Records() []handshake.Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]handshake.Record, 0, len(s.records))
	for id := int64(1); id <= s.nextID; id++ {
		if rec, ok := s.records[id]; ok {
			out = append(out, *rec)
		}
	}
	return out
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	claims, err := session.DecodeClaims(session.Credential(strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")))
	if err != nil || claims.Username == "" {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"detail": "Authentication credentials were not provided."})
		return
	}
	user := claims.Username

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.faultRate > 0 && s.rng.Float64() < s.faultRate {
		s.stats.Faults++
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"detail": "try again"})
		return
	}

	path := strings.TrimPrefix(r.URL.Path, "/api")
	parts := strings.Split(strings.Trim(path, "/"), "/")

	switch {
	case path == "/profiles/me/" && r.Method == http.MethodGet:
		writeJSON(w, http.StatusOK, session.Profile{Username: user})
	case path == "/handshakes/" && r.Method == http.MethodGet:
		s.list(w, user)
	case path == "/handshakes/" && r.Method == http.MethodPost:
		s.create(w, r, user)
	case len(parts) == 3 && parts[0] == "handshakes":
		s.lifecycle(w, r, user, parts[1], parts[2])
	case len(parts) == 3 && parts[0] == "ratings" && parts[1] == "handshake" && r.Method == http.MethodGet:
		s.ratingStatus(w, user, parts[2])
	case len(parts) == 2 && parts[0] == "ratings" && r.Method == http.MethodPost:
		s.rate(w, r, user, parts[1])
	case path == "/messages/" && r.Method == http.MethodGet:
		s.listMessages(w, user, r.URL.Query().Get("handshake"))
	case path == "/messages/" && r.Method == http.MethodPost:
		s.sendMessage(w, r, user)
	default:
		writeJSON(w, http.StatusNotFound, map[string]string{"detail": "Not found."})
	}
}

func (s *Server) list(w http.ResponseWriter, user string) {
	out := []handshake.Record{}
	for id := int64(1); id <= s.nextID; id++ {
		rec, ok := s.records[id]
		if ok && participant(rec, user) {
			out = append(out, *rec)
		}
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) create(w http.ResponseWriter, r *http.Request, user string) {
	var body struct {
		Offer   *int64  `json:"offer"`
		Request *int64  `json:"request"`
		Hours   float64 `json:"hours"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Hours <= 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{"detail": "Invalid handshake."})
		return
	}

	rec := handshake.Record{Status: handshake.StatusProposed, Hours: body.Hours, CreatedAt: s.now().UTC()}
	switch {
	case body.Offer != nil && body.Request == nil:
		owner, ok := s.offers[*body.Offer]
		if !ok {
			writeJSON(w, http.StatusNotFound, map[string]string{"detail": "Offer not found."})
			return
		}
		rec.OfferID = body.Offer
		rec.ProviderUsername, rec.SeekerUsername = owner, user
	case body.Request != nil && body.Offer == nil:
		owner, ok := s.requests[*body.Request]
		if !ok {
			writeJSON(w, http.StatusNotFound, map[string]string{"detail": "Request not found."})
			return
		}
		rec.RequestID = body.Request
		rec.ProviderUsername, rec.SeekerUsername = user, owner
	default:
		writeJSON(w, http.StatusBadRequest, map[string]string{"detail": "Choose an offer or a request."})
		return
	}
	if strings.EqualFold(rec.ProviderUsername, rec.SeekerUsername) {
		writeJSON(w, http.StatusBadRequest, map[string]string{"detail": "You cannot request your own post."})
		return
	}

	s.nextID++
	rec.ID = handshake.ID(strconv.FormatInt(s.nextID, 10))
	s.records[s.nextID] = &rec
	s.stats.Created++
	writeJSON(w, http.StatusCreated, rec)
}

func (s *Server) lifecycle(w http.ResponseWriter, r *http.Request, user, rawID, verb string) {
	rec, id, ok := s.lookup(w, user, rawID)
	if !ok {
		return
	}
	isProvider := strings.EqualFold(rec.ProviderUsername, user)
	isSeeker := strings.EqualFold(rec.SeekerUsername, user)

	switch {
	case verb == "accept" && r.Method == http.MethodPatch:
		if !isProvider || rec.Status != handshake.StatusProposed {
			forbidden(w)
			return
		}
		rec.Status = handshake.StatusAccepted
		s.stats.Accepted++
		writeJSON(w, http.StatusOK, map[string]any{"handshake": rec, "message": "Handshake accepted!"})

	case verb == "decline" && r.Method == http.MethodPatch:
		if !isProvider || rec.Status != handshake.StatusProposed {
			forbidden(w)
			return
		}
		rec.Status = handshake.StatusDeclined
		s.stats.Declined++
		writeJSON(w, http.StatusOK, map[string]string{"message": "Handshake declined."})

	case verb == "confirm-provider" && r.Method == http.MethodPost:
		if !isProvider || !rec.Status.Active() || rec.ProviderConfirmed {
			forbidden(w)
			return
		}
		rec.ProviderConfirmed = true
		s.advance(rec)
		// Providers get a partial body, seekers the whole record.
		writeJSON(w, http.StatusOK, map[string]any{"status": rec.Status, "provider_confirmed": true})

	case verb == "confirm-seeker" && r.Method == http.MethodPost:
		if !isSeeker || !rec.Status.Active() || rec.SeekerConfirmed {
			forbidden(w)
			return
		}
		rec.SeekerConfirmed = true
		s.advance(rec)
		writeJSON(w, http.StatusOK, map[string]any{"handshake": rec})

	default:
		writeJSON(w, http.StatusNotFound, map[string]string{"detail": fmt.Sprintf("Unknown action %q on handshake %d.", verb, id)})
	}
}

func (s *Server) advance(rec *handshake.Record) {
	s.stats.Confirmed++
	if rec.ProviderConfirmed && rec.SeekerConfirmed {
		rec.Status = handshake.StatusCompleted
		s.stats.Completed++
		return
	}
	rec.Status = handshake.StatusInProgress
}

func (s *Server) ratingStatus(w http.ResponseWriter, user, rawID string) {
	rec, id, ok := s.lookup(w, user, rawID)
	if !ok {
		return
	}
	partner := rec.SeekerUsername
	if strings.EqualFold(partner, user) {
		partner = rec.ProviderUsername
	}
	_, mine := s.rated[ratingKey{id, strings.ToLower(user)}]
	_, theirs := s.rated[ratingKey{id, strings.ToLower(partner)}]
	writeJSON(w, http.StatusOK, map[string]bool{"has_rated": mine, "partner_has_rated": theirs})
}

func (s *Server) rate(w http.ResponseWriter, r *http.Request, user, rawID string) {
	rec, id, ok := s.lookup(w, user, rawID)
	if !ok {
		return
	}
	var sub rating.Submission
	if err := json.NewDecoder(r.Body).Decode(&sub); err != nil || sub.Validate() != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"score": []string{"Invalid rating."}})
		return
	}
	key := ratingKey{id, strings.ToLower(user)}
	if _, dup := s.rated[key]; dup || rec.Status != handshake.StatusCompleted {
		forbidden(w)
		return
	}
	s.rated[key] = struct{}{}
	s.stats.Rated++
	w.WriteHeader(http.StatusCreated)
}

func (s *Server) listMessages(w http.ResponseWriter, user, rawID string) {
	if _, id, ok := s.lookup(w, user, rawID); ok {
		out := append([]chat.Message{}, s.messages[id]...)
		writeJSON(w, http.StatusOK, out)
	}
}

func (s *Server) sendMessage(w http.ResponseWriter, r *http.Request, user string) {
	var body struct {
		Handshake handshake.ID `json:"handshake"`
		Content   string       `json:"content"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || strings.TrimSpace(body.Content) == "" {
		writeJSON(w, http.StatusBadRequest, map[string]any{"content": []string{"This field may not be blank."}})
		return
	}
	rec, id, ok := s.lookup(w, user, body.Handshake.String())
	if !ok {
		return
	}
	if rec.Status == handshake.StatusProposed || rec.Status.Terminal() {
		forbidden(w)
		return
	}
	msgs := s.messages[id]
	msg := chat.Message{
		ID:             int64(len(msgs) + 1),
		HandshakeID:    rec.ID,
		SenderUsername: user,
		Content:        body.Content,
		CreatedAt:      s.now().UTC(),
	}
	s.messages[id] = append(msgs, msg)
	s.stats.Messages++
	writeJSON(w, http.StatusCreated, msg)
}

// lookup resolves rawID to a record the user takes part in, writing the
// error response when it cannot.
func (s *Server) lookup(w http.ResponseWriter, user, rawID string) (*handshake.Record, int64, bool) {
	id, err := strconv.ParseInt(rawID, 10, 64)
	if err != nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"detail": "Not found."})
		return nil, 0, false
	}
	rec, ok := s.records[id]
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"detail": "Not found."})
		return nil, 0, false
	}
	if !participant(rec, user) {
		forbidden(w)
		return nil, 0, false
	}
	return rec, id, true
}

func participant(rec *handshake.Record, user string) bool {
	return strings.EqualFold(rec.ProviderUsername, user) || strings.EqualFold(rec.SeekerUsername, user)
}

func forbidden(w http.ResponseWriter) {
	writeJSON(w, http.StatusForbidden, map[string]string{"detail": "You do not have permission to perform this action."})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
