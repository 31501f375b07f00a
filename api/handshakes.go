package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"

	"timebank/handshake"
)

// Proposal asks for a new handshake on exactly one offer or request.
type Proposal struct {
	OfferID   *int64  `json:"offer,omitempty"`
	RequestID *int64  `json:"request,omitempty"`
	Hours     float64 `json:"hours"`
}

func (p Proposal) Validate() error {
	if (p.OfferID == nil) == (p.RequestID == nil) {
		return Validation("Choose either an offer or a request.", nil)
	}
	if p.Hours <= 0 {
		return Validation("Hours must be greater than zero.", nil)
	}
	return nil
}

// Outcome is the decoded body of a lifecycle call. At most one of Record and
// Partial is set; both are nil when the backend only sent a message.
type Outcome struct {
	Record  *handshake.Record
	Partial *handshake.Partial
	Message string
}

func (c *Client) ListHandshakes(ctx context.Context) ([]handshake.Record, error) {
	var raw json.RawMessage
	if err := c.do(ctx, call{method: http.MethodGet, path: "/handshakes/", endpoint: "handshakes.list"}, &raw); err != nil {
		return nil, err
	}
	records, err := decodeList[handshake.Record](raw)
	if err != nil {
		return nil, listError("handshakes.list", err)
	}
	return records, nil
}

func (c *Client) CreateHandshake(ctx context.Context, p Proposal) (handshake.Record, error) {
	if err := p.Validate(); err != nil {
		return handshake.Record{}, err
	}
	var raw json.RawMessage
	if err := c.do(ctx, call{method: http.MethodPost, path: "/handshakes/", endpoint: "handshakes.create", body: p}, &raw); err != nil {
		return handshake.Record{}, err
	}
	out, err := decodeOutcome(raw)
	if err != nil {
		return handshake.Record{}, listError("handshakes.create", err)
	}
	if out.Record == nil {
		return handshake.Record{}, &Error{Kind: KindNetwork, Err: errNoBody}
	}
	return *out.Record, nil
}

func (c *Client) AcceptHandshake(ctx context.Context, id handshake.ID) (Outcome, error) {
	return c.lifecycle(ctx, http.MethodPatch, id, "accept")
}

func (c *Client) DeclineHandshake(ctx context.Context, id handshake.ID) (Outcome, error) {
	return c.lifecycle(ctx, http.MethodPatch, id, "decline")
}

func (c *Client) ConfirmProvider(ctx context.Context, id handshake.ID) (Outcome, error) {
	return c.lifecycle(ctx, http.MethodPost, id, "confirm-provider")
}

func (c *Client) ConfirmSeeker(ctx context.Context, id handshake.ID) (Outcome, error) {
	return c.lifecycle(ctx, http.MethodPost, id, "confirm-seeker")
}

func (c *Client) lifecycle(ctx context.Context, method string, id handshake.ID, verb string) (Outcome, error) {
	if id == "" {
		return Outcome{}, Validation("Missing handshake id.", nil)
	}
	var raw json.RawMessage
	req := call{
		method:   method,
		path:     fmt.Sprintf("/handshakes/%s/%s/", url.PathEscape(id.String()), verb),
		endpoint: "handshakes." + verb,
	}
	if err := c.do(ctx, req, &raw); err != nil {
		return Outcome{}, err
	}
	out, err := decodeOutcome(raw)
	if err != nil {
		return Outcome{}, listError(req.endpoint, err)
	}
	return out, nil
}

// decodeOutcome reads {handshake, message}, a bare record or partial, or a
// message only.
func decodeOutcome(raw json.RawMessage) (Outcome, error) {
	var out Outcome
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return out, nil
	}

	var envelope map[string]json.RawMessage
	if err := json.Unmarshal(trimmed, &envelope); err != nil {
		return out, err
	}
	out.Message = flatten(envelope["message"])

	body, nested := envelope["handshake"]
	if !nested {
		body = trimmed
	}
	if bytes.Equal(bytes.TrimSpace(body), []byte("null")) {
		return out, nil
	}

	var rec handshake.Record
	if err := json.Unmarshal(body, &rec); err == nil && rec.ID != "" && handshake.Validate(rec) == nil {
		out.Record = &rec
		return out, nil
	}
	var partial handshake.Partial
	if err := json.Unmarshal(body, &partial); err != nil {
		return out, err
	}
	if !partial.Empty() {
		out.Partial = &partial
	}
	return out, nil
}
