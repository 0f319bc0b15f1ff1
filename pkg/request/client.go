// Package request provides an HTTP client with bounded retries and
// exponential backoff, shared by the backend and VATSIM clients.
package request

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net/http"
	"time"

	"github.com/opensky-to/agent-sub001/pkg/version"
)

var defaultUserAgent = fmt.Sprintf("OpenSky Agent (agent/%s)", version.Version)

// Client wraps http.Client with retry/backoff behavior.
type Client struct {
	httpClient  *http.Client
	maxAttempts int
	baseDelay   time.Duration
}

// New creates a new Client. Zero values fall back to 3 attempts and a
// 500 ms base delay.
func New(timeout time.Duration, maxAttempts int, baseDelay time.Duration) *Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	if maxAttempts <= 0 {
		maxAttempts = 3
	}
	if baseDelay <= 0 {
		baseDelay = 500 * time.Millisecond
	}
	return &Client{
		httpClient:  &http.Client{Timeout: timeout},
		maxAttempts: maxAttempts,
		baseDelay:   baseDelay,
	}
}

// Get performs a GET request with retries.
func (c *Client) Get(ctx context.Context, u string, headers map[string]string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	return c.do(req, headers)
}

// Post performs a POST request with retries. The body is replayed on retry.
func (c *Client) Post(ctx context.Context, u string, body []byte, headers map[string]string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.GetBody = func() (io.ReadCloser, error) {
		return io.NopCloser(bytes.NewReader(body)), nil
	}
	return c.do(req, headers)
}

// Delete performs a DELETE request with retries.
func (c *Client) Delete(ctx context.Context, u string, headers map[string]string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, u, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	return c.do(req, headers)
}

func (c *Client) do(req *http.Request, headers map[string]string) ([]byte, error) {
	uaSet := false
	for k, v := range headers {
		req.Header.Set(k, v)
		if http.CanonicalHeaderKey(k) == "User-Agent" {
			uaSet = true
		}
	}
	if !uaSet {
		req.Header.Set("User-Agent", defaultUserAgent)
	}

	return c.executeWithBackoff(req)
}

// executeWithBackoff attempts the request with exponential backoff on
// retryable errors (network faults, 429, 5xx).
func (c *Client) executeWithBackoff(req *http.Request) ([]byte, error) {
	for attempt := 0; attempt < c.maxAttempts; attempt++ {
		if req.Context().Err() != nil {
			return nil, req.Context().Err()
		}

		if attempt > 0 && req.GetBody != nil {
			body, err := req.GetBody()
			if err != nil {
				return nil, fmt.Errorf("failed to rewind request body: %w", err)
			}
			req.Body = body
		}

		slog.Debug("network request", "host", req.URL.Host, "path", req.URL.Path, "attempt", attempt+1)
		resp, err := c.httpClient.Do(req)

		if err != nil {
			if req.Context().Err() != nil {
				return nil, req.Context().Err()
			}

			slog.Warn("request failed, retrying", "url", req.URL, "attempt", attempt+1, "error", err)
			if werr := c.sleepBackoff(req.Context(), attempt); werr != nil {
				return nil, werr
			}
			continue
		}

		if resp.StatusCode == http.StatusTooManyRequests || (resp.StatusCode >= 500 && resp.StatusCode < 600) {
			resp.Body.Close()
			slog.Warn("api backoff", "status", resp.StatusCode, "url", req.URL, "attempt", attempt+1)
			if werr := c.sleepBackoff(req.Context(), attempt); werr != nil {
				return nil, werr
			}
			continue
		}

		if resp.StatusCode >= 400 {
			resp.Body.Close()
			return nil, fmt.Errorf("api error: status %d", resp.StatusCode)
		}

		body, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			return nil, fmt.Errorf("read error: %w", err)
		}
		return body, nil
	}

	return nil, fmt.Errorf("max retries exceeded")
}

func (c *Client) sleepBackoff(ctx context.Context, attempt int) error {
	sleepDur := time.Duration(math.Pow(2, float64(attempt))) * c.baseDelay
	select {
	case <-time.After(sleepDur):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
