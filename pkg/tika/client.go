// Package tika provides a client for the Apache Tika server's plain-text
// extraction endpoint.
package tika

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/edgar-pipeline/internal/resilience"
)

// Client defines the text extraction operations.
type Client interface {
	// Extract sends raw document bytes to the Tika server and returns the
	// extracted plain text. Documents Tika cannot get text out of
	// (encrypted, corrupt, image-only) yield "" without an error.
	Extract(ctx context.Context, buf []byte) (string, error)
}

// Option configures the Tika client.
type Option func(*httpClient)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *httpClient) {
		c.http = hc
	}
}

// WithTimeout sets the per-request timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *httpClient) {
		c.http.Timeout = d
	}
}

// WithRetryConfig overrides the retry policy.
func WithRetryConfig(cfg resilience.RetryConfig) Option {
	return func(c *httpClient) {
		c.retry = cfg
	}
}

// WithCircuitBreaker guards every request with cb. Extraction runs large
// binary payloads through a shared server, so a dead Tika should fail fast
// instead of stalling the worker pool.
func WithCircuitBreaker(cb *resilience.CircuitBreaker) Option {
	return func(c *httpClient) {
		c.breaker = cb
	}
}

type httpClient struct {
	endpoint string
	http     *http.Client
	retry    resilience.RetryConfig
	breaker  *resilience.CircuitBreaker
}

// NewClient creates a client for the Tika server at endpoint.
func NewClient(endpoint string, opts ...Option) Client {
	c := &httpClient{
		endpoint: strings.TrimRight(endpoint, "/"),
		http: &http.Client{
			Timeout: 60 * time.Second,
			Transport: &http.Transport{
				MaxIdleConnsPerHost: 20,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		retry: resilience.DefaultRetryConfig(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *httpClient) Extract(ctx context.Context, buf []byte) (string, error) {
	if len(buf) == 0 {
		return "", nil
	}

	do := func(ctx context.Context) (string, error) {
		return c.extractOnce(ctx, buf)
	}
	if c.breaker != nil {
		once := do
		do = func(ctx context.Context) (string, error) {
			return resilience.ExecuteVal(ctx, c.breaker, once)
		}
	}

	cfg := c.retry
	if cfg.OnRetry == nil {
		cfg.OnRetry = resilience.RetryLogger("tika", "extract")
	}
	return resilience.DoVal(ctx, cfg, do)
}

func (c *httpClient) extractOnce(ctx context.Context, buf []byte) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, c.endpoint+"/tika", bytes.NewReader(buf))
	if err != nil {
		return "", eris.Wrap(err, "tika: create request")
	}
	req.Header.Set("Accept", "text/plain")
	req.Header.Set("Content-Type", "application/octet-stream")

	resp, err := c.http.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return "", resilience.NewTransientError(eris.Wrap(err, "tika: extract"), 0)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", resilience.NewTransientError(eris.Wrap(err, "tika: read response"), resp.StatusCode)
	}

	switch {
	case resp.StatusCode == http.StatusOK:
		return string(body), nil
	case resp.StatusCode == http.StatusNoContent,
		resp.StatusCode == http.StatusUnprocessableEntity:
		return "", nil
	case resilience.IsTransientHTTPStatus(resp.StatusCode):
		return "", resilience.NewTransientError(
			eris.Errorf("tika: status %d: %s", resp.StatusCode, strings.TrimSpace(string(body))),
			resp.StatusCode)
	default:
		return "", eris.Errorf("tika: unexpected status %d: %s",
			resp.StatusCode, strings.TrimSpace(string(body)))
	}
}
