package session

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeProfiles struct {
	profile Profile
	err     error
	calls   int
}

func (f *fakeProfiles) Me(_ context.Context, _ Credential) (Profile, error) {
	f.calls++
	return f.profile, f.err
}

func signed(t *testing.T, claims jwt.MapClaims) Credential {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("test-secret"))
	require.NoError(t, err)
	return Credential(token)
}

func TestResolve_EmptyCredentialIsLoggedOut(t *testing.T) {
	profiles := &fakeProfiles{}
	id := NewResolver(profiles).Resolve(context.Background(), "")

	assert.Equal(t, StateLoggedOut, id.State)
	assert.Zero(t, profiles.calls, "no collaborator call without a credential")
}

func TestResolve_UsernameClaimSkipsLookup(t *testing.T) {
	profiles := &fakeProfiles{}
	cred := signed(t, jwt.MapClaims{"username": "alice", "user_id": 7})

	id := NewResolver(profiles).Resolve(context.Background(), cred)
	assert.Equal(t, Known("alice"), id)
	assert.Zero(t, profiles.calls)
}

func TestResolve_FallsBackToProfileOnce(t *testing.T) {
	profiles := &fakeProfiles{profile: Profile{ID: 7, Username: " bob "}}
	cred := signed(t, jwt.MapClaims{"user_id": 7})

	id := NewResolver(profiles).Resolve(context.Background(), cred)
	assert.Equal(t, Known("bob"), id)
	assert.Equal(t, 1, profiles.calls)
}

func TestResolve_ProfileFailureIsUnknown(t *testing.T) {
	cred := signed(t, jwt.MapClaims{"user_id": 7})

	cases := map[string]*fakeProfiles{
		"error":          {err: errors.New("boom")},
		"empty username": {profile: Profile{ID: 7}},
	}
	for name, profiles := range cases {
		t.Run(name, func(t *testing.T) {
			id := NewResolver(profiles).Resolve(context.Background(), cred)
			assert.Equal(t, StateUnknown, id.State)
			assert.True(t, id.LoggedIn())
			assert.False(t, id.Matches(""), "unknown identity must never match")
			assert.Equal(t, 1, profiles.calls)
		})
	}
}

func TestResolve_GarbageCredentialIsLoggedOut(t *testing.T) {
	profiles := &fakeProfiles{}
	id := NewResolver(profiles).Resolve(context.Background(), "not-a-jwt")
	assert.Equal(t, StateLoggedOut, id.State)
	assert.Zero(t, profiles.calls)
}

func TestDecodeClaims(t *testing.T) {
	exp := time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC)
	cred := signed(t, jwt.MapClaims{"username": "alice", "user_id": 12, "exp": exp.Unix()})

	c, err := DecodeClaims(cred)
	require.NoError(t, err)
	assert.Equal(t, "alice", c.Username)
	assert.Equal(t, "12", c.UserID)
	assert.True(t, c.ExpiresAt.Equal(exp))

	_, err = DecodeClaims("a.b")
	assert.ErrorIs(t, err, ErrMalformedCredential)
}

func TestExpired(t *testing.T) {
	now := time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)
	past := signed(t, jwt.MapClaims{"username": "a", "exp": now.Add(-time.Minute).Unix()})
	future := signed(t, jwt.MapClaims{"username": "a", "exp": now.Add(time.Hour).Unix()})
	noExp := signed(t, jwt.MapClaims{"username": "a"})

	assert.True(t, Expired(past, now))
	assert.False(t, Expired(future, now))
	assert.False(t, Expired(noExp, now))
	assert.False(t, Expired("", now))
}

func TestIdentity_Matches(t *testing.T) {
	assert.True(t, Known("Alice").Matches(" alice"))
	assert.False(t, Known("alice").Matches(""))
	assert.False(t, Unknown().Matches("alice"))
	assert.False(t, LoggedOut().Matches("alice"))
	assert.Equal(t, StateUnknown, Known("   ").State)
}
