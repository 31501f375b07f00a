package api

import (
	"context"
	"net/http"

	"timebank/session"
)

// Me fetches the profile for cred. It satisfies session.ProfileFetcher and
// uses cred rather than the client's own source.
func (c *Client) Me(ctx context.Context, cred session.Credential) (session.Profile, error) {
	if !cred.Present() {
		return session.Profile{}, NotAuthenticated()
	}
	scoped := *c
	scoped.creds = session.Static(cred)

	var p session.Profile
	if err := scoped.do(ctx, call{method: http.MethodGet, path: "/profiles/me/", endpoint: "profiles.me"}, &p); err != nil {
		return session.Profile{}, err
	}
	return p, nil
}
