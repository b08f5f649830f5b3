// Package policy is the HTTP client for the authorization-policy backend.
//
// It implements delivery.Backend over a small REST surface:
//
//	POST   {base}/users               {"key": principal}
//	POST   {base}/users/{key}/roles   {"role": role, "tenant": tenant}
//	DELETE {base}/users/{key}
//
// A 409 on create or assign maps to delivery.ErrAlreadyExists and a 404 on
// delete maps to delivery.ErrAlreadyAbsent. Every other non-2xx status is a
// *StatusError, which delivery treats as retryable.
package policy

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/xraph/grantrelay/delivery"
)

const maxErrorBody = 1024 // 1KB cap on error body capture

// compile-time interface check.
var _ delivery.Backend = (*Client)(nil)

// StatusError is an unexpected response from the backend.
type StatusError struct {
	Method     string
	Path       string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("policy: %s %s: status %d", e.Method, e.Path, e.StatusCode)
	}
	return fmt.Sprintf("policy: %s %s: status %d: %s", e.Method, e.Path, e.StatusCode, e.Body)
}

// Client talks to the policy backend.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
	limiter *rate.Limiter
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithTimeout sets the per-request timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.http.Timeout = d }
}

// WithRateLimit throttles outbound calls to perSecond. 0 means unlimited.
func WithRateLimit(perSecond float64) Option {
	return func(c *Client) { c.limiter = newLimiter(perSecond) }
}

// newLimiter returns a token bucket of perSecond with a burst of the same
// size, starting full. perSecond <= 0 never throttles.
func newLimiter(perSecond float64) *rate.Limiter {
	if perSecond <= 0 {
		return rate.NewLimiter(rate.Inf, 1)
	}
	return rate.NewLimiter(rate.Limit(perSecond), max(int(perSecond), 1))
}

// New creates a client for the backend at baseURL, authenticating with a
// bearer token.
func New(baseURL, token string, opts ...Option) (*Client, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("policy: parse base url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("policy: base url %q must be http or https", baseURL)
	}

	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		http:    &http.Client{Timeout: 10 * time.Second},
		limiter: newLimiter(0),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// CreatePrincipal creates the user keyed by key.
func (c *Client) CreatePrincipal(ctx context.Context, key string) error {
	body := map[string]string{"key": key}
	return c.do(ctx, http.MethodPost, "/users", body, map[int]error{
		http.StatusConflict: delivery.ErrAlreadyExists,
	})
}

// AssignRole grants role within tenant to the user keyed by key.
func (c *Client) AssignRole(ctx context.Context, key, role, tenant string) error {
	body := map[string]string{"role": role, "tenant": tenant}
	return c.do(ctx, http.MethodPost, "/users/"+url.PathEscape(key)+"/roles", body, map[int]error{
		http.StatusConflict: delivery.ErrAlreadyExists,
	})
}

// RemovePrincipal deletes the user keyed by key.
func (c *Client) RemovePrincipal(ctx context.Context, key string) error {
	return c.do(ctx, http.MethodDelete, "/users/"+url.PathEscape(key), nil, map[int]error{
		http.StatusNotFound: delivery.ErrAlreadyAbsent,
	})
}

func (c *Client) do(ctx context.Context, method, path string, payload any, benign map[int]error) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("policy: rate limit: %w", err)
	}

	var body io.Reader
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("policy: marshal request: %w", err)
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("policy: create request: %w", err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", "grantrelay/1.0")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req) //nolint:gosec // G107: base URL comes from operator configuration.
	if err != nil {
		return fmt.Errorf("policy: %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if sentinel, ok := benign[resp.StatusCode]; ok {
		_, _ = io.Copy(io.Discard, resp.Body)
		return sentinel
	}

	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	return &StatusError{
		Method:     method,
		Path:       path,
		StatusCode: resp.StatusCode,
		Body:       strings.TrimSpace(string(respBody)),
	}
}
