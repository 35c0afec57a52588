// Package backend is the HTTP client for the email assistant backend.
//
// The backend owns authentication, ingestion, indexing, retrieval and
// inference. This package only issues requests and decodes responses,
// including the server-sent event stream of POST /chat/stream.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/papercomputeco/mailroom/pkg/logger"
)

const (
	defaultTimeout = 2 * time.Minute

	// maxErrorBody caps how much of a failed response is kept for the error.
	maxErrorBody = 64 * 1024
)

// Client talks to one backend base URL.
type Client struct {
	baseURL     string
	httpClient  *http.Client
	idleTimeout time.Duration
	logger      *slog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient overrides the http.Client used for every request. Its
// Timeout applies to the JSON endpoints only; streams are bounded by their
// context and the idle timeout.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// WithTimeout sets the overall timeout of non-streaming requests.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.httpClient.Timeout = d
		}
	}
}

// WithIdleTimeout closes a chat stream that delivers no bytes for d.
// Zero disables the idle timeout.
func WithIdleTimeout(d time.Duration) Option {
	return func(c *Client) {
		c.idleTimeout = d
	}
}

// WithLogger sets the logger. Defaults to a Nop logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) {
		c.logger = logger.OrNop(l)
	}
}

// NewClient creates a Client for the backend at baseURL.
func NewClient(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: defaultTimeout},
		logger:     logger.Nop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// BaseURL returns the backend base URL without a trailing slash.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// Health calls GET /health.
func (c *Client) Health(ctx context.Context) (*Health, error) {
	var out Health
	if err := c.doJSON(ctx, http.MethodGet, "/health", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// AuthURL calls GET /auth/nylas/url and returns the OAuth redirect.
func (c *Client) AuthURL(ctx context.Context) (*AuthURL, error) {
	var out AuthURL
	if err := c.doJSON(ctx, http.MethodGet, "/auth/nylas/url", nil, &out); err != nil {
		return nil, err
	}
	if out.URL == "" {
		return nil, fmt.Errorf("backend returned an empty auth URL")
	}
	return &out, nil
}

// Me calls GET /auth/me. A nil account with a nil error means no account is
// connected; any non-2xx response is treated the same way.
func (c *Client) Me(ctx context.Context) (*Account, error) {
	var out meResponse
	err := c.doJSON(ctx, http.MethodGet, "/auth/me", nil, &out)
	if err != nil {
		var se *StatusError
		if errors.As(err, &se) {
			c.logger.Debug("treating failed account lookup as disconnected",
				"status", se.Code,
			)
			return nil, nil
		}
		return nil, err
	}
	return out.Account, nil
}

// SyncLatest calls POST /sync/latest. A non-2xx response surfaces the
// response body as the failure reason through *StatusError.
func (c *Client) SyncLatest(ctx context.Context) (*SyncResult, error) {
	var out SyncResult
	if err := c.doJSON(ctx, http.MethodPost, "/sync/latest", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Chat calls the non-streaming POST /chat endpoint.
func (c *Client) Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	if strings.TrimSpace(req.Question) == "" {
		return nil, ErrEmptyQuestion
	}

	var out ChatResponse
	if err := c.doJSON(ctx, http.MethodPost, "/chat", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// RunEval calls POST /eval/run.
func (c *Client) RunEval(ctx context.Context) (*EvalResponse, error) {
	var out EvalResponse
	if err := c.doJSON(ctx, http.MethodPost, "/eval/run", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) doJSON(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("marshaling request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	c.logger.Debug("backend request", "method", method, "path", path)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if err := checkStatus(resp); err != nil {
		return err
	}

	if out == nil {
		return nil
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding %s response: %w", path, err)
	}
	return nil
}

// checkStatus turns a non-2xx response into a *StatusError carrying the body.
func checkStatus(resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	data, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	return &StatusError{Code: resp.StatusCode, Body: string(data)}
}
