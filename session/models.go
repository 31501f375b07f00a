package session

import "strings"

// Credential is the bearer token presented to the backend. The zero value
// means nobody is signed in.
type Credential string

func (c Credential) Present() bool {
	return strings.TrimSpace(string(c)) != ""
}

// State distinguishes the three outcomes of identity resolution.
type State int

const (
	// StateLoggedOut means there is no usable credential.
	StateLoggedOut State = iota
	// StateKnown means the username is known.
	StateKnown
	// StateUnknown means a credential is present but the username could not be
	// established, so ownership checks must fail closed.
	StateUnknown
)

func (s State) String() string {
	switch s {
	case StateKnown:
		return "known"
	case StateUnknown:
		return "unknown"
	default:
		return "logged_out"
	}
}

// Identity is the resolved signed-in user.
type Identity struct {
	State    State
	Username string
}

// LoggedOut is the identity of an anonymous visitor.
func LoggedOut() Identity { return Identity{State: StateLoggedOut} }

// Known builds an identity for a resolved username.
func Known(username string) Identity {
	username = strings.TrimSpace(username)
	if username == "" {
		return Identity{State: StateUnknown}
	}
	return Identity{State: StateKnown, Username: username}
}

// Unknown is the identity of a signed-in user whose username is unavailable.
func Unknown() Identity { return Identity{State: StateUnknown} }

func (i Identity) LoggedIn() bool {
	return i.State == StateKnown || i.State == StateUnknown
}

// Matches compares the identity against a username from a record. Comparison
// ignores case and surrounding whitespace; an unknown identity never matches.
func (i Identity) Matches(username string) bool {
	if i.State != StateKnown {
		return false
	}
	other := strings.TrimSpace(username)
	if other == "" {
		return false
	}
	return strings.EqualFold(strings.TrimSpace(i.Username), other)
}

// Profile is the subset of the profile payload the client consumes.
type Profile struct {
	ID       int64  `json:"id"`
	Username string `json:"username"`
	Email    string `json:"email,omitempty"`
	Bio      string `json:"bio,omitempty"`
}
