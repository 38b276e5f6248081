// internal/deliver/deliver.go

// Package deliver posts validated canonical products to the downstream API.
// Transport failures and server-class statuses retry with exponential
// backoff; client-class statuses never retry. All failure is expressed
// through types.DeliveryOutcome, never raised past the client boundary.
package deliver

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"strings"
	"time"

	"github.com/boomscraper/boomscraper/pkg/types"
)

// Options configure the delivery client.
type Options struct {
	Endpoint    string
	APIKey      string
	BearerToken string
	Timeout     time.Duration
	// MaxRetries bounds retry attempts beyond the initial request.
	MaxRetries  int
	BackoffBase time.Duration
	BackoffMax  time.Duration
	// Jitter is the fraction of the computed backoff randomized in both
	// directions to avoid synchronized retry storms.
	Jitter float64
}

// Client delivers products to one endpoint. Safe for concurrent use.
type Client struct {
	opts       Options
	httpClient *http.Client
}

// NewClient creates a delivery client for the given endpoint.
func NewClient(opts Options) (*Client, error) {
	if opts.Endpoint == "" {
		return nil, fmt.Errorf("delivery endpoint cannot be empty")
	}
	if opts.Timeout == 0 {
		opts.Timeout = 30 * time.Second
	}
	if opts.MaxRetries == 0 {
		opts.MaxRetries = 3
	}
	if opts.BackoffBase == 0 {
		opts.BackoffBase = 500 * time.Millisecond
	}
	if opts.BackoffMax == 0 {
		opts.BackoffMax = 30 * time.Second
	}
	if opts.Jitter < 0 || opts.Jitter > 1 {
		return nil, fmt.Errorf("jitter must be within [0,1], got %v", opts.Jitter)
	}

	return &Client{
		opts:       opts,
		httpClient: &http.Client{Timeout: opts.Timeout},
	}, nil
}

// Deliver posts the product as canonical JSON. The outcome's Attempts field
// counts retries performed beyond the initial request.
func (c *Client) Deliver(ctx context.Context, product *types.CanonicalProduct) types.DeliveryOutcome {
	payload, err := json.Marshal(product)
	if err != nil {
		// Canonical products always marshal; this guards future schema edits.
		return types.Exhausted(fmt.Errorf("failed to encode product: %w", err), 0)
	}

	var lastErr error
	for retry := 0; ; retry++ {
		if retry > 0 {
			if err := c.sleepBackoff(ctx, retry); err != nil {
				return types.Exhausted(err, retry-1)
			}
		}

		status, err := c.post(ctx, payload)
		if err != nil {
			lastErr = err
		} else {
			switch {
			case status >= 200 && status < 300:
				return types.Delivered(status, retry)
			case status >= 400 && status < 500:
				// Retrying a malformed request cannot succeed.
				return types.RejectedStatus(status, retry)
			default:
				lastErr = fmt.Errorf("delivery endpoint returned status %d", status)
			}
		}

		if retry == c.opts.MaxRetries {
			return types.Exhausted(lastErr, retry)
		}
	}
}

// post issues one request and returns the response status.
func (c *Client) post(ctx context.Context, payload []byte) (int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.opts.Endpoint, bytes.NewReader(payload))
	if err != nil {
		return 0, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	c.setAuthHeaders(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, fmt.Errorf("delivery request failed: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	return resp.StatusCode, nil
}

// sleepBackoff waits the exponential backoff for the given retry number
// (1-based), aborting early when the context is canceled.
func (c *Client) sleepBackoff(ctx context.Context, retry int) error {
	delay := c.backoff(retry)

	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// backoff doubles the base delay per retry, caps it, and applies jitter.
func (c *Client) backoff(retry int) time.Duration {
	delay := c.opts.BackoffBase << uint(retry-1)
	if delay > c.opts.BackoffMax || delay <= 0 {
		delay = c.opts.BackoffMax
	}
	if c.opts.Jitter > 0 {
		spread := (2*rand.Float64() - 1) * c.opts.Jitter
		delay += time.Duration(float64(delay) * spread)
	}
	return delay
}

func (c *Client) setAuthHeaders(req *http.Request) {
	if c.opts.APIKey != "" {
		req.Header.Set("X-API-Key", c.opts.APIKey)
	}
	if c.opts.BearerToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.opts.BearerToken)
	}
}

// HealthCheck probes the endpoint's sibling /health route.
func (c *Client) HealthCheck(ctx context.Context) bool {
	base := strings.TrimSuffix(c.opts.Endpoint, "/")
	base = strings.TrimSuffix(base, "/products")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, base+"/health", nil)
	if err != nil {
		return false
	}
	c.setAuthHeaders(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	return resp.StatusCode >= 200 && resp.StatusCode < 300
}
