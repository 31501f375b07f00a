package api

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"timebank/handshake"
	"timebank/rating"
)

func (c *Client) RatingStatus(ctx context.Context, id handshake.ID) (rating.Status, error) {
	var st rating.Status
	req := call{
		method:   http.MethodGet,
		path:     fmt.Sprintf("/ratings/handshake/%s/", url.PathEscape(id.String())),
		endpoint: "ratings.status",
	}
	if err := c.do(ctx, req, &st); err != nil {
		return rating.Status{}, err
	}
	return st, nil
}

// SubmitRating validates locally first; an invalid submission never reaches
// the network.
func (c *Client) SubmitRating(ctx context.Context, id handshake.ID, sub rating.Submission) error {
	normalized, err := sub.Normalize()
	if err != nil {
		return Validation(err.Error(), err)
	}
	req := call{
		method:   http.MethodPost,
		path:     fmt.Sprintf("/ratings/%s/", url.PathEscape(id.String())),
		endpoint: "ratings.submit",
		body:     normalized,
	}
	return c.do(ctx, req, nil)
}
