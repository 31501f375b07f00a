package rating

import (
	"encoding/json"

	"timebank/handshake"
)

// Status tracks whether each party rated one completed handshake.
type Status struct {
	HasRated        bool `json:"hasRated"`
	PartnerHasRated bool `json:"partnerHasRated"`
}

// UnmarshalJSON accepts both the camelCase payload and the snake_case form
// some backend builds emit.
func (s *Status) UnmarshalJSON(data []byte) error {
	var wire struct {
		HasRated             *bool `json:"hasRated"`
		PartnerHasRated      *bool `json:"partnerHasRated"`
		HasRatedSnake        *bool `json:"has_rated"`
		PartnerHasRatedSnake *bool `json:"partner_has_rated"`
	}
	if err := json.Unmarshal(data, &wire); err != nil {
		return err
	}
	*s = Status{
		HasRated:        firstSet(wire.HasRated, wire.HasRatedSnake),
		PartnerHasRated: firstSet(wire.PartnerHasRated, wire.PartnerHasRatedSnake),
	}
	return nil
}

func firstSet(values ...*bool) bool {
	for _, v := range values {
		if v != nil {
			return *v
		}
	}
	return false
}

// Map is keyed by handshake id. An entry is absent until the completed
// handshake has been observed.
type Map map[handshake.ID]Status

func (m Map) clone() Map {
	out := make(Map, len(m)+1)
	for k, v := range m {
		out[k] = v
	}
	return out
}

// Tag is one of the fixed feedback labels a rater may pick.
type Tag string

const (
	TagOnTime            Tag = "On Time"
	TagGoodCommunication Tag = "Good Communication"
	TagFriendly          Tag = "Friendly"
	TagReliable          Tag = "Reliable"
	TagProfessional      Tag = "Professional"
	TagHighQualityWork   Tag = "High Quality Work"
	TagEfficient         Tag = "Efficient"
	TagOrganized         Tag = "Organized"
	TagRespectful        Tag = "Respectful"
	TagAboveAndBeyond    Tag = "Above and Beyond"
)

// Tags lists the vocabulary in display order.
var Tags = []Tag{
	TagOnTime, TagGoodCommunication, TagFriendly, TagReliable, TagProfessional,
	TagHighQualityWork, TagEfficient, TagOrganized, TagRespectful, TagAboveAndBeyond,
}

// Submission is the body of a rating request.
type Submission struct {
	Score   int    `json:"score"`
	Tags    []Tag  `json:"tags"`
	Comment string `json:"comment,omitempty"`
}
