package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"timebank/metrics"
	"timebank/session"
)

const (
	defaultTimeout  = 10 * time.Second
	maxBodyBytes    = 1 << 20
	requestIDHeader = "X-Request-ID"
)

// Client talks to the time-bank REST backend.
type Client struct {
	baseURL string
	http    *http.Client
	creds   session.CredentialSource
	logger  *zap.Logger
	metrics *metrics.Collectors
	newID   func() string
}

// NewClient returns a client rooted at baseURL (scheme and host; the /api
// prefix is added per call).
func NewClient(baseURL string, creds session.CredentialSource) *Client {
	if creds == nil {
		creds = session.Static("")
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: defaultTimeout},
		creds:   creds,
		logger:  zap.NewNop(),
		newID:   uuid.NewString,
	}
}

func (c *Client) WithHTTPClient(h *http.Client) *Client {
	if h != nil {
		c.http = h
	}
	return c
}

func (c *Client) WithTimeout(d time.Duration) *Client {
	if d > 0 {
		c.http.Timeout = d
	}
	return c
}

func (c *Client) WithLogger(logger *zap.Logger) *Client {
	if logger != nil {
		c.logger = logger
	}
	return c
}

func (c *Client) WithMetrics(m *metrics.Collectors) *Client {
	c.metrics = m
	return c
}

// Authenticated reports whether a credential is currently available.
func (c *Client) Authenticated() bool {
	return c.creds.Credential().Present()
}

type call struct {
	method   string
	path     string
	endpoint string
	query    url.Values
	body     any
	anon     bool
}

// do runs one request. Context errors are returned as is; every other failure
// is an *Error.
func (c *Client) do(ctx context.Context, req call, out any) error {
	cred := c.creds.Credential()
	if !req.anon && !cred.Present() {
		return NotAuthenticated()
	}

	var payload io.Reader
	if req.body != nil {
		raw, err := json.Marshal(req.body)
		if err != nil {
			return Validation("", fmt.Errorf("api: encode %s: %w", req.endpoint, err))
		}
		payload = bytes.NewReader(raw)
	}

	target := c.baseURL + "/api" + req.path
	if len(req.query) > 0 {
		target += "?" + req.query.Encode()
	}
	httpReq, err := http.NewRequestWithContext(ctx, req.method, target, payload)
	if err != nil {
		return &Error{Kind: KindNetwork, Err: fmt.Errorf("api: build %s: %w", req.endpoint, err)}
	}
	requestID := c.newID()
	httpReq.Header.Set("Accept", "application/json")
	httpReq.Header.Set(requestIDHeader, requestID)
	if payload != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	if cred.Present() {
		httpReq.Header.Set("Authorization", "Bearer "+string(cred))
	}

	start := time.Now()
	resp, err := c.http.Do(httpReq)
	c.metrics.Request(req.endpoint, time.Since(start))
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		c.logger.Warn("backend unreachable",
			zap.String("endpoint", req.endpoint),
			zap.String("request_id", requestID),
			zap.Error(err),
		)
		return &Error{Kind: KindNetwork, Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return &Error{Kind: KindNetwork, Status: resp.StatusCode, Err: fmt.Errorf("api: read %s: %w", req.endpoint, err)}
	}

	if resp.StatusCode >= 400 {
		apiErr := fromStatus(resp.StatusCode, body)
		c.logger.Info("backend rejected request",
			zap.String("endpoint", req.endpoint),
			zap.String("request_id", requestID),
			zap.Int("status", resp.StatusCode),
			zap.String("kind", string(apiErr.Kind)),
		)
		return apiErr
	}

	if out == nil || len(bytes.TrimSpace(body)) == 0 {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return &Error{
			Kind:   KindNetwork,
			Status: resp.StatusCode,
			Err:    fmt.Errorf("api: decode %s: %w", req.endpoint, err),
		}
	}
	return nil
}

// decodeList accepts either a bare array or a paginated {"results": [...]}.
func decodeList[T any](raw json.RawMessage) ([]T, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil, nil
	}
	if trimmed[0] == '[' {
		var out []T
		if err := json.Unmarshal(trimmed, &out); err != nil {
			return nil, err
		}
		return out, nil
	}
	var page struct {
		Results []T `json:"results"`
	}
	if err := json.Unmarshal(trimmed, &page); err != nil {
		return nil, err
	}
	return page.Results, nil
}

func listError(endpoint string, err error) error {
	return &Error{Kind: KindNetwork, Err: fmt.Errorf("api: decode %s: %w", endpoint, err)}
}

var errNoBody = errors.New("api: empty response body")
