package session

import (
	"context"
	"strings"

	"go.uber.org/zap"
)

// ProfileFetcher is the whoami collaborator.
type ProfileFetcher interface {
	Me(ctx context.Context, cred Credential) (Profile, error)
}

// Resolver turns a credential into an Identity.
type Resolver struct {
	profiles ProfileFetcher
	logger   *zap.Logger
}

func NewResolver(profiles ProfileFetcher) *Resolver {
	return &Resolver{profiles: profiles, logger: zap.NewNop()}
}

// WithLogger overrides the resolver logger.
func (r *Resolver) WithLogger(logger *zap.Logger) *Resolver {
	if logger != nil {
		r.logger = logger
	}
	return r
}

// Resolve never fails. A missing or undecodable credential is logged out. A
// token without a username claim costs exactly one profile lookup, and if that
// lookup fails the identity is Unknown so ownership checks fail closed.
func (r *Resolver) Resolve(ctx context.Context, cred Credential) Identity {
	if !cred.Present() {
		return LoggedOut()
	}

	claims, err := DecodeClaims(cred)
	if err != nil {
		r.logger.Debug("credential did not decode", zap.Error(err))
		return LoggedOut()
	}
	if claims.Username != "" {
		return Known(claims.Username)
	}

	if r.profiles == nil {
		return Unknown()
	}
	profile, err := r.profiles.Me(ctx, cred)
	if err != nil {
		r.logger.Warn("profile lookup failed", zap.Error(err))
		return Unknown()
	}
	username := strings.TrimSpace(profile.Username)
	if username == "" {
		r.logger.Warn("profile lookup returned no username")
		return Unknown()
	}
	return Known(username)
}
