// Package relayclient talks to a running relay over HTTP.
//
// Client implements render.Service, so the same poll loop the relay uses
// server-side can drive a watch from the terminal.
package relayclient

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

	"github.com/3leaps/renderstack/pkg/render"
)

// DefaultTimeout bounds a single HTTP exchange with the relay.
const DefaultTimeout = 30 * time.Second

// Client calls the relay endpoints.
type Client struct {
	baseURL string
	http    *http.Client
}

var _ render.Service = (*Client)(nil)

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.http = hc
		}
	}
}

// New returns a Client for the relay at baseURL.
func New(baseURL string, opts ...Option) (*Client, error) {
	u, err := url.Parse(strings.TrimSpace(baseURL))
	if err != nil {
		return nil, fmt.Errorf("relay url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("relay url %q: scheme must be http or https", baseURL)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("relay url %q: missing host", baseURL)
	}

	c := &Client{
		baseURL: strings.TrimRight(u.String(), "/"),
		http:    &http.Client{Timeout: DefaultTimeout},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// StatusError is a non-2xx relay response.
type StatusError struct {
	StatusCode int
	Code       string
	Message    string
	RequestID  string
}

// Error implements the error interface.
func (e *StatusError) Error() string {
	msg := fmt.Sprintf("relay returned %d", e.StatusCode)
	if e.Code != "" {
		msg += " " + e.Code
	}
	if e.Message != "" {
		msg += ": " + e.Message
	}
	return msg
}

// Submit posts req to /api/render.
func (c *Client) Submit(ctx context.Context, req render.Request) (*render.Job, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, err
	}

	var job render.Job
	if err := c.do(ctx, http.MethodPost, "/api/render", bytes.NewReader(body), &job); err != nil {
		return nil, classify("submit", err)
	}
	if job.RenderID == "" {
		return nil, &render.UpstreamError{Op: "submit", Err: fmt.Errorf("relay response has no renderId")}
	}
	return &job, nil
}

// Status fetches /api/progress for renderID.
func (c *Client) Status(ctx context.Context, renderID string) (*render.Progress, error) {
	if strings.TrimSpace(renderID) == "" {
		return nil, &render.ValidationError{Field: "renderId", Message: "is required"}
	}

	var p render.Progress
	path := "/api/progress?renderId=" + url.QueryEscape(renderID)
	if err := c.do(ctx, http.MethodGet, path, nil, &p); err != nil {
		return nil, classify("status", err)
	}
	if p.RenderID == "" {
		p.RenderID = renderID
	}
	return &p, nil
}

// Watch polls renderID every interval until a terminal state, reporting each
// observed status to onProgress.
func (c *Client) Watch(ctx context.Context, renderID string, interval time.Duration, onProgress func(render.Progress)) (*render.Progress, error) {
	p := &render.Poller{Interval: interval, OnProgress: onProgress}
	return p.Await(ctx, c, renderID)
}

func (c *Client) do(ctx context.Context, method, path string, body io.Reader, out any) error {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	res, err := c.http.Do(req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return err
	}
	defer func() { _ = res.Body.Close() }()

	data, err := io.ReadAll(io.LimitReader(res.Body, 1<<20))
	if err != nil {
		return err
	}

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		return decodeStatusError(res.StatusCode, data)
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode relay response: %w", err)
	}
	return nil
}

func decodeStatusError(status int, data []byte) error {
	var env struct {
		Error struct {
			Code      string `json:"code"`
			Message   string `json:"message"`
			RequestID string `json:"request_id"`
		} `json:"error"`
	}
	se := &StatusError{StatusCode: status}
	if err := json.Unmarshal(data, &env); err == nil {
		se.Code = env.Error.Code
		se.Message = env.Error.Message
		se.RequestID = env.Error.RequestID
	} else {
		se.Message = strings.TrimSpace(string(data))
	}
	return se
}

// classify maps relay failures onto render errors: 400 is a rejected request,
// everything else an upstream failure. Context errors pass through.
func classify(op string, err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	var se *StatusError
	if errors.As(err, &se) && se.StatusCode == http.StatusBadRequest {
		return &render.ValidationError{Field: "request", Message: se.Error()}
	}
	return &render.UpstreamError{Op: op, Err: err}
}
