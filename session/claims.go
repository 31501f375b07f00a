package session

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ErrMalformedCredential signals a credential that is not a decodable JWT.
var ErrMalformedCredential = errors.New("session: malformed credential")

// Claims holds the token claims the client reads. The signature is never
// checked here; the backend is the authority on validity.
type Claims struct {
	Username  string
	UserID    string
	ExpiresAt time.Time
}

// DecodeClaims parses cred without verifying its signature.
func DecodeClaims(cred Credential) (Claims, error) {
	raw := strings.TrimSpace(string(cred))
	if raw == "" {
		return Claims{}, ErrMalformedCredential
	}

	mc := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(raw, mc); err != nil {
		return Claims{}, fmt.Errorf("%w: %v", ErrMalformedCredential, err)
	}

	var c Claims
	if username, ok := mc["username"].(string); ok {
		c.Username = strings.TrimSpace(username)
	}
	switch id := mc["user_id"].(type) {
	case string:
		c.UserID = id
	case float64:
		c.UserID = fmt.Sprintf("%.0f", id)
	}
	if exp, err := mc.GetExpirationTime(); err == nil && exp != nil {
		c.ExpiresAt = exp.Time
	}
	return c, nil
}

// Expired reports whether the credential carries an exp claim in the past.
// A credential without exp, or one that does not decode, is not considered
// expired here.
func Expired(cred Credential, now time.Time) bool {
	c, err := DecodeClaims(cred)
	if err != nil || c.ExpiresAt.IsZero() {
		return false
	}
	return !now.Before(c.ExpiresAt)
}
