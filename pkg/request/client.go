package request

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"sightline/pkg/version"
)

var defaultUserAgent = fmt.Sprintf("sightline/%s", version.Version)

// ClientConfig holds the HTTP client settings.
type ClientConfig struct {
	Retries   int
	Timeout   time.Duration
	BaseDelay time.Duration
	MaxDelay  time.Duration
}

// Client performs GET requests against external data providers with retries
// and per-host backoff.
type Client struct {
	httpClient *http.Client
	backoff    *HostBackoff
	retries    int
}

// New creates a new Client.
func New(cfg ClientConfig) *Client {
	if cfg.Retries < 1 {
		cfg.Retries = 3
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.BaseDelay <= 0 {
		cfg.BaseDelay = 500 * time.Millisecond
	}
	if cfg.MaxDelay <= 0 {
		cfg.MaxDelay = 30 * time.Second
	}
	return &Client{
		httpClient: &http.Client{Timeout: cfg.Timeout},
		backoff:    NewHostBackoff(cfg.BaseDelay, cfg.MaxDelay),
		retries:    cfg.Retries,
	}
}

// Get fetches u and returns the body. 429 and 5xx responses and transport
// errors are retried; other 4xx responses fail immediately.
func (c *Client) Get(ctx context.Context, u string) ([]byte, error) {
	parsedURL, err := url.Parse(u)
	if err != nil {
		return nil, fmt.Errorf("invalid url: %w", err)
	}
	host := parsedURL.Host

	// Spacing between attempts comes from the per-host backoff.
	return Retry(ctx, c.retries, nil, func(ctx context.Context, attempt int) ([]byte, error) {
		if err := c.backoff.Wait(ctx, host); err != nil {
			return nil, err
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, http.NoBody)
		if err != nil {
			return nil, fmt.Errorf("failed to create request: %w", err)
		}
		req.Header.Set("User-Agent", defaultUserAgent)
		req.Header.Set("Accept", "application/json")

		slog.Debug("Network Request", "host", host, "path", parsedURL.Path, "attempt", attempt)
		resp, err := c.httpClient.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			c.backoff.Fail(host)
			slog.Warn("Request failed, retrying", "host", host, "attempt", attempt, "error", err)
			return nil, Retryable(err)
		}
		defer resp.Body.Close()

		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			c.backoff.Fail(host)
			slog.Warn("API Backoff", "status", resp.StatusCode, "host", host, "attempt", attempt)
			return nil, Retryable(fmt.Errorf("api error: status %d", resp.StatusCode))
		}
		if resp.StatusCode >= 400 {
			return nil, fmt.Errorf("api error: status %d", resp.StatusCode)
		}

		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, Retryable(fmt.Errorf("read error: %w", err))
		}
		c.backoff.Succeed(host)
		return body, nil
	})
}
