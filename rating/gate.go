package rating

import (
	"errors"
	"fmt"
	"strings"

	"timebank/handshake"
)

const (
	MinScore = 1
	MaxScore = 10
	MinTags  = 1
	MaxTags  = 3
)

// ErrInvalidSubmission is returned for a rating that must not be sent.
var ErrInvalidSubmission = errors.New("rating: invalid submission")

// NoteSubmitted returns a copy of m with HasRated set for id. A known
// PartnerHasRated is preserved. Calling it twice is the same as once.
func NoteSubmitted(m Map, id handshake.ID) Map {
	next := m.clone()
	st := next[id]
	st.HasRated = true
	next[id] = st
	return next
}

// Observe folds a fetched status into m. HasRated never goes back to false.
func Observe(m Map, id handshake.ID, fetched Status) Map {
	next := m.clone()
	prev, ok := next[id]
	if ok && prev.HasRated {
		fetched.HasRated = true
	}
	if ok && prev.PartnerHasRated {
		fetched.PartnerHasRated = true
	}
	next[id] = fetched
	return next
}

// ShouldPrompt reports whether the rating prompt shows for record.
func ShouldPrompt(record handshake.Record, m Map) bool {
	if record.Status != handshake.StatusCompleted {
		return false
	}
	return !m[record.ID].HasRated
}

// Normalize trims the comment and returns the submission to send, or an
// ErrInvalidSubmission-wrapped error.
func (s Submission) Normalize() (Submission, error) {
	if s.Score < MinScore || s.Score > MaxScore {
		return Submission{}, fmt.Errorf("%w: score must be between %d and %d", ErrInvalidSubmission, MinScore, MaxScore)
	}
	if len(s.Tags) < MinTags || len(s.Tags) > MaxTags {
		return Submission{}, fmt.Errorf("%w: pick between %d and %d tags", ErrInvalidSubmission, MinTags, MaxTags)
	}
	seen := make(map[Tag]struct{}, len(s.Tags))
	tags := make([]Tag, 0, len(s.Tags))
	for _, t := range s.Tags {
		if !knownTag(t) {
			return Submission{}, fmt.Errorf("%w: unknown tag %q", ErrInvalidSubmission, t)
		}
		if _, dup := seen[t]; dup {
			return Submission{}, fmt.Errorf("%w: tag %q picked twice", ErrInvalidSubmission, t)
		}
		seen[t] = struct{}{}
		tags = append(tags, t)
	}
	return Submission{Score: s.Score, Tags: tags, Comment: strings.TrimSpace(s.Comment)}, nil
}

// Validate reports whether the submission may be sent.
func (s Submission) Validate() error {
	_, err := s.Normalize()
	return err
}

func knownTag(t Tag) bool {
	for _, k := range Tags {
		if k == t {
			return true
		}
	}
	return false
}
