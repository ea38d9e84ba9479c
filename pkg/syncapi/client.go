// Package syncapi implements the remote sync-server HTTP client:
// OAuth code exchange, event batch upload, session lifecycle, heartbeat, and
// the read-only config/status/projects/categories/trends endpoints.
package syncapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/betterqa-sync/agent-core/pkg/httpclient"
	"github.com/betterqa-sync/agent-core/pkg/observability"
	"github.com/betterqa-sync/agent-core/pkg/retry"
)

const (
	defaultTimeout  = 30 * time.Second
	userAgentFormat = "%s/%s"
)

// Client is the sync agent's handle to the remote API. Safe for concurrent
// use; SetToken may be called while requests are in flight.
type Client struct {
	baseURL    string
	webBaseURL string
	httpClient httpclient.HTTPClient
	transport  *http.Client // concrete handle backing httpClient, so WithTimeout can adjust its deadline
	policy     retry.Policy
	o11y       observability.Observability
	userAgent  string
	compress   bool

	mu       sync.RWMutex
	token    string
	deviceID string
}

// Option configures a Client at construction time.
type Option func(*Client)

// WithWebBaseURL sets the base URL used for the browser OAuth code-exchange
// endpoint, which lives on the web app rather than the sync API host.
func WithWebBaseURL(url string) Option {
	return func(c *Client) { c.webBaseURL = url }
}

// WithTimeout overrides the default 30s per-request timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.transport.Timeout = d }
}

// WithRetryPolicy overrides the default retry.Policy.
func WithRetryPolicy(p retry.Policy) Option {
	return func(c *Client) { c.policy = p }
}

// WithCompression enables gzip request compression for non-empty POST bodies.
func WithCompression(enabled bool) Option {
	return func(c *Client) { c.compress = enabled }
}

// WithUserAgent sets the User-Agent header, "<product>/<version>".
func WithUserAgent(product, version string) Option {
	return func(c *Client) { c.userAgent = fmt.Sprintf(userAgentFormat, product, version) }
}

// New constructs a Client against baseURL, instrumented via o11y.
func New(baseURL string, o11y observability.Observability, opts ...Option) *Client {
	inst := newInstrumentation(o11y)
	transport := &http.Client{
		Timeout: defaultTimeout,
		Transport: &observableTransport{
			base:            http.DefaultTransport,
			instrumentation: inst,
		},
	}
	c := &Client{
		baseURL:    baseURL,
		httpClient: httpclient.HTTPClient(transport),
		transport:  transport,
		policy:     retry.DefaultPolicy(),
		o11y:       o11y,
		userAgent:  "sync-agent/dev",
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// SetToken updates the bearer token used on subsequent requests. An empty
// token removes the Authorization header.
func (c *Client) SetToken(token string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.token = token
}

// SetDeviceID updates the X-Device-ID header used on subsequent requests.
func (c *Client) SetDeviceID(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.deviceID = id
}

func (c *Client) authHeaders() (token, deviceID string) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.token, c.deviceID
}

// doRequest issues one HTTP request with auth headers, optional gzip
// compression, and JSON body/response handling. It does not retry; callers
// needing retry semantics wrap the call with retry.Do and IsRetryable.
func (c *Client) doRequest(ctx context.Context, method, baseURL, path string, body, out any) error {
	var reqBody io.Reader
	var gzipped bool

	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("syncapi: marshal request: %w", err)
		}
		if c.compress && method == http.MethodPost && len(raw) > 0 {
			compressed, err := gzipBody(raw)
			if err != nil {
				return fmt.Errorf("syncapi: gzip request: %w", err)
			}
			raw = compressed
			gzipped = true
		}
		reqBody = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, baseURL+path, reqBody)
	if err != nil {
		return fmt.Errorf("syncapi: build request: %w", err)
	}

	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.userAgent)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if gzipped {
		req.Header.Set("Content-Encoding", "gzip")
	}
	token, deviceID := c.authHeaders()
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if deviceID != "" {
		req.Header.Set("X-Device-ID", deviceID)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if isConnectionError(err) {
			return &APIError{Kind: ErrTransient, StatusCode: 0, Body: err.Error()}
		}
		return fmt.Errorf("syncapi: request %s %s: %w", method, path, err)
	}
	defer drainAndClose(resp)

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 10<<20))
	if err != nil {
		return fmt.Errorf("syncapi: read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return classify(resp.StatusCode, string(respBody))
	}

	if out == nil {
		return nil
	}

	var env envelope
	if err := json.Unmarshal(respBody, &env); err != nil {
		return fmt.Errorf("syncapi: decode envelope: %w", err)
	}
	return unmarshalData(&env, out)
}

// doWithRetry wraps doRequest with the client's retry policy; non-retryable
// errors (auth, permanent, context cancellation) surface immediately.
func (c *Client) doWithRetry(ctx context.Context, method, baseURL, path string, body, out any) error {
	return retry.Do(ctx, c.policy, IsRetryable, func(ctx context.Context) error {
		return c.doRequest(ctx, method, baseURL, path, body, out)
	})
}
