// internal/evasion/evasion.go

// Package evasion produces per-request header sets and jittered delays to
// reduce automated-traffic detectability. A Policy is read-only after
// construction and safe for concurrent use; every EvasionContext it hands
// out is fresh and must not be reused across requests.
package evasion

import (
	"context"
	"fmt"
	"math/rand"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/boomscraper/boomscraper/pkg/types"
)

// Policy generates evasion contexts from a fixed user-agent pool and a
// configured delay interval.
type Policy struct {
	userAgents []string
	minDelay   time.Duration
	maxDelay   time.Duration
}

// NewPolicy creates a policy over the given user-agent pool. An empty pool or
// an inverted delay interval is a configuration error: the policy refuses to
// construct rather than silently degrading evasion quality.
func NewPolicy(userAgents []string, minDelay, maxDelay time.Duration) (*Policy, error) {
	if len(userAgents) == 0 {
		return nil, fmt.Errorf("user-agent pool cannot be empty")
	}
	for i, ua := range userAgents {
		if strings.TrimSpace(ua) == "" {
			return nil, fmt.Errorf("user-agent pool entry %d is blank", i)
		}
	}
	if minDelay < 0 || maxDelay < 0 {
		return nil, fmt.Errorf("delay bounds cannot be negative")
	}
	if maxDelay < minDelay {
		return nil, fmt.Errorf("max delay %v is less than min delay %v", maxDelay, minDelay)
	}

	pool := make([]string, len(userAgents))
	copy(pool, userAgents)

	return &Policy{
		userAgents: pool,
		minDelay:   minDelay,
		maxDelay:   maxDelay,
	}, nil
}

// NextContext returns a fresh evasion context: a randomized browser-like
// header set and a delay sampled uniformly from the configured interval. The
// caller performs the actual wait before issuing the fetch.
func (p *Policy) NextContext() types.EvasionContext {
	ua := p.userAgents[rand.Intn(len(p.userAgents))]
	resolution := screenResolutions[rand.Intn(len(screenResolutions))]
	platform := platforms[rand.Intn(len(platforms))]

	headers := make(http.Header)
	headers.Set("User-Agent", ua)
	headers.Set("Accept", accepts[rand.Intn(len(accepts))])
	headers.Set("Accept-Language", acceptLanguages[rand.Intn(len(acceptLanguages))])
	headers.Set("Accept-Encoding", "gzip, deflate, br")
	headers.Set("DNT", "1")
	headers.Set("Connection", "keep-alive")
	headers.Set("Upgrade-Insecure-Requests", "1")
	headers.Set("Sec-Fetch-Dest", "document")
	headers.Set("Sec-Fetch-Mode", "navigate")
	headers.Set("Sec-Fetch-Site", "none")
	headers.Set("Sec-Fetch-User", "?1")
	headers.Set("Cache-Control", "max-age=0")
	headers.Set("Sec-Ch-Ua-Mobile", "?0")
	headers.Set("Sec-Ch-Ua-Platform", fmt.Sprintf("%q", platform))
	headers.Set("Viewport-Width", resolution[:strings.Index(resolution, "x")])

	return types.EvasionContext{
		Headers: headers,
		Delay:   p.sampleDelay(),
	}
}

func (p *Policy) sampleDelay() time.Duration {
	span := p.maxDelay - p.minDelay
	if span <= 0 {
		return p.minDelay
	}
	return p.minDelay + time.Duration(rand.Int63n(int64(span)))
}

// Limiter throttles fetches to a requests-per-minute budget shared across
// concurrent units. Wait blocks until a slot is available or the context is
// canceled.
type Limiter struct {
	limiter *rate.Limiter
}

// NewLimiter creates a limiter allowing requestsPerMinute fetches per minute
// with a burst of one.
func NewLimiter(requestsPerMinute int) (*Limiter, error) {
	if requestsPerMinute < 1 {
		return nil, fmt.Errorf("requests per minute must be at least 1, got %d", requestsPerMinute)
	}
	return &Limiter{
		limiter: rate.NewLimiter(rate.Limit(float64(requestsPerMinute)/60.0), 1),
	}, nil
}

// Wait blocks until the limiter grants a request slot.
func (l *Limiter) Wait(ctx context.Context) error {
	return l.limiter.Wait(ctx)
}

// DefaultUserAgents returns a pool representative of common desktop browsers.
func DefaultUserAgents() []string {
	return []string{
		"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
		"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
		"Mozilla/5.0 (Windows NT 10.0; Win64; x64; rv:121.0) Gecko/20100101 Firefox/121.0",
		"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.0 Safari/605.1.15",
		"Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
	}
}

var accepts = []string{
	"text/html,application/xhtml+xml,application/xml;q=0.9,image/avif,image/webp,*/*;q=0.8",
	"text/html,application/xhtml+xml,application/xml;q=0.9,image/webp,image/apng,*/*;q=0.8",
	"text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8",
}

var acceptLanguages = []string{
	"en-US,en;q=0.9",
	"en-GB,en;q=0.9",
	"en-US,en;q=0.9,fr;q=0.8",
	"en-US,en;q=0.9,es;q=0.8",
	"en-US,en;q=0.9,de;q=0.8",
}

var screenResolutions = []string{
	"1920x1080", "1366x768", "1536x864", "1440x900", "1280x720", "2560x1440",
}

var platforms = []string{
	"Win32", "MacIntel", "Linux x86_64",
}
