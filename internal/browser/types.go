// internal/browser/types.go
package browser

import (
	"context"
	"fmt"
	"net/http"
	"time"
)

// Gateway is the render/fetch contract consumed by the pipeline: drive a
// JavaScript-capable browsing session, apply the supplied headers, wait for
// dynamic content to settle, and return the fully rendered markup. Failures
// are reported as *FetchError.
type Gateway interface {
	Fetch(ctx context.Context, url string, headers http.Header) (string, error)
	Close() error
}

// FetchReason classifies why a fetch failed.
type FetchReason string

const (
	ReasonTimeout           FetchReason = "timeout"
	ReasonNavigationBlocked FetchReason = "navigation-blocked"
	ReasonNetwork           FetchReason = "network"
	// ReasonCanceled marks a fetch aborted by the caller, not the site.
	ReasonCanceled FetchReason = "canceled"
)

// FetchError is the typed failure of a render/fetch call. It is recoverable
// by retry at the gateway boundary.
type FetchError struct {
	Reason FetchReason
	URL    string
	Err    error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetch %s failed (%s): %v", e.URL, e.Reason, e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// Config defines browser session behavior.
type Config struct {
	Headless       bool
	NavTimeout     time.Duration
	SettleDelay    time.Duration
	WaitForElement string
	ViewportWidth  int
	ViewportHeight int
	DisableImages  bool
	UserDataDir    string
}

// DefaultConfig returns a headless configuration suitable for containers.
func DefaultConfig() *Config {
	return &Config{
		Headless:       true,
		NavTimeout:     30 * time.Second,
		SettleDelay:    2 * time.Second,
		ViewportWidth:  1920,
		ViewportHeight: 1080,
	}
}
