package fetch

import (
	"context"
	"czmlstream/internal/logger"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

// Fetcher retrieves the raw content behind a segment source.
type Fetcher interface {
	Fetch(ctx context.Context, source string) ([]byte, error)
}

// Client fetches segment sources over HTTP, resolving them against a base URL.
type Client struct {
	httpClient *http.Client
	logger     logger.Logger
	baseURL    *url.URL
	userAgent  string

	// MaxAttempts bounds the tries made for a single fetch.
	MaxAttempts int
	// RequestTimeout applies to each attempt.
	RequestTimeout time.Duration
	// RetryDelay is the pause between attempts.
	RetryDelay time.Duration
}

// NewClient creates an HTTP fetcher. base may be empty when sources are absolute URLs.
func NewClient(log logger.Logger, base, userAgent string) (*Client, error) {
	var baseURL *url.URL
	if base != "" {
		u, err := url.Parse(base)
		if err != nil {
			return nil, fmt.Errorf("failed to parse base URL '%s': %w", base, err)
		}
		baseURL = u
	}

	transport := &http.Transport{
		ResponseHeaderTimeout: 3 * time.Second,
	}

	return &Client{
		httpClient: &http.Client{
			Transport: transport,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
		logger:         log,
		baseURL:        baseURL,
		userAgent:      userAgent,
		MaxAttempts:    3,
		RequestTimeout: 5 * time.Second,
		RetryDelay:     100 * time.Millisecond,
	}, nil
}

// ResolveURL resolves source against the client's base URL.
func (c *Client) ResolveURL(source string) (string, error) {
	ref, err := url.Parse(source)
	if err != nil {
		return "", fmt.Errorf("failed to parse source '%s': %w", source, err)
	}
	if c.baseURL == nil {
		if !ref.IsAbs() {
			return "", fmt.Errorf("source '%s' is relative and no base URL is configured", source)
		}
		return ref.String(), nil
	}
	return c.baseURL.ResolveReference(ref).String(), nil
}

// Fetch downloads a source, retrying transient failures up to MaxAttempts.
func (c *Client) Fetch(ctx context.Context, source string) ([]byte, error) {
	target, err := c.ResolveURL(source)
	if err != nil {
		return nil, err
	}

	attempts := c.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if attempt > 1 {
			select {
			case <-ctx.Done():
				return nil, fmt.Errorf("fetch of %s abandoned: %w", target, ctx.Err())
			case <-time.After(c.RetryDelay):
			}
		}

		c.logger.Debugf("Fetching %s (Attempt %d/%d)", target, attempt, attempts)
		data, err := c.fetchOnce(ctx, target)
		if err == nil {
			c.logger.Debugf("Fetched %s, %d bytes", target, len(data))
			return data, nil
		}

		var permanent *permanentError
		if errors.As(err, &permanent) {
			return nil, permanent.err
		}
		lastErr = fmt.Errorf("fetch attempt %d failed for %s: %w", attempt, target, err)
		c.logger.Warnf(lastErr.Error())
	}

	return nil, fmt.Errorf("failed to fetch %s after %d attempts: %w", target, attempts, lastErr)
}

// permanentError marks failures that retrying cannot fix.
type permanentError struct{ err error }

func (e *permanentError) Error() string { return e.err.Error() }

func (c *Client) fetchOnce(ctx context.Context, target string) ([]byte, error) {
	reqCtx, cancel := context.WithTimeout(ctx, c.RequestTimeout)
	defer cancel()

	resp, err := c.get(reqCtx, target)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusFound || resp.StatusCode == http.StatusMovedPermanently {
		location, err := resp.Location()
		if err != nil {
			return nil, &permanentError{fmt.Errorf("redirect location error: %w", err)}
		}
		c.logger.Debugf("Redirected to: %s", location)

		resp.Body.Close()
		resp, err = c.get(reqCtx, location.String())
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()
	}

	if resp.StatusCode == http.StatusNotFound {
		return nil, &permanentError{fmt.Errorf("source %s not found (status 404)", target)}
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("received non-200 status: %d", resp.StatusCode)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed while reading body: %w", err)
	}
	return data, nil
}

func (c *Client) get(ctx context.Context, target string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, &permanentError{fmt.Errorf("failed to create request for %s: %w", target, err)}
	}
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}
	return c.httpClient.Do(req)
}
