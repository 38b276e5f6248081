// internal/browser/chromedp.go
package browser

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
)

// ChromeGateway implements Gateway using chromedp. One gateway holds one
// browser process; each Fetch runs in its own tab context so concurrent
// units do not share page state.
type ChromeGateway struct {
	config     *Config
	allocCtx   context.Context
	browserCtx context.Context
	cancels    []context.CancelFunc
}

// NewChromeGateway launches a browser process with the given configuration.
func NewChromeGateway(config *Config) (*ChromeGateway, error) {
	if config == nil {
		config = DefaultConfig()
	}

	opts := []chromedp.ExecAllocatorOption{
		chromedp.NoFirstRun,
		chromedp.NoDefaultBrowserCheck,
		chromedp.DisableGPU,
		chromedp.NoSandbox, // Required for Docker environments
	}
	if config.Headless {
		opts = append(opts, chromedp.Headless)
	}
	if config.UserDataDir != "" {
		opts = append(opts, chromedp.UserDataDir(config.UserDataDir))
	}
	if config.DisableImages {
		opts = append(opts, chromedp.Flag("blink-settings", "imagesEnabled=false"))
	}

	allocCtx, cancelAlloc := chromedp.NewExecAllocator(context.Background(), opts...)
	browserCtx, cancelBrowser := chromedp.NewContext(allocCtx)

	g := &ChromeGateway{
		config:     config,
		allocCtx:   allocCtx,
		browserCtx: browserCtx,
		cancels:    []context.CancelFunc{cancelBrowser, cancelAlloc},
	}

	if err := chromedp.Run(browserCtx,
		chromedp.EmulateViewport(int64(config.ViewportWidth), int64(config.ViewportHeight)),
	); err != nil {
		g.Close()
		return nil, fmt.Errorf("failed to initialize browser: %w", err)
	}

	return g, nil
}

// Fetch navigates to the URL with the supplied headers applied to the
// session, waits for the page to settle, and returns the rendered markup.
// The caller's context cancels the navigation; timeouts come from the
// gateway's NavTimeout.
func (g *ChromeGateway) Fetch(ctx context.Context, url string, headers http.Header) (string, error) {
	tabCtx, cancelTab := chromedp.NewContext(g.browserCtx)
	defer cancelTab()

	tabCtx, cancelTimeout := context.WithTimeout(tabCtx, g.config.NavTimeout)
	defer cancelTimeout()

	// Propagate caller cancellation into the tab context.
	stop := context.AfterFunc(ctx, cancelTimeout)
	defer stop()

	tasks := []chromedp.Action{
		network.Enable(),
		network.SetExtraHTTPHeaders(headerParams(headers)),
		chromedp.Navigate(url),
		chromedp.WaitReady("body"),
	}
	if g.config.WaitForElement != "" {
		tasks = append(tasks, chromedp.WaitVisible(g.config.WaitForElement))
	}
	if g.config.SettleDelay > 0 {
		tasks = append(tasks, chromedp.Sleep(g.config.SettleDelay))
	}

	var html string
	tasks = append(tasks, chromedp.OuterHTML("html", &html))

	if err := chromedp.Run(tabCtx, tasks...); err != nil {
		return "", &FetchError{Reason: classifyFetchErr(ctx, err), URL: url, Err: err}
	}

	return html, nil
}

// Close shuts down the browser process.
func (g *ChromeGateway) Close() error {
	for _, cancel := range g.cancels {
		cancel()
	}
	return nil
}

// headerParams converts an http.Header into the shape cdproto expects.
// Multi-valued headers are joined the way the wire format does.
func headerParams(headers http.Header) network.Headers {
	params := make(network.Headers, len(headers))
	for key, values := range headers {
		params[key] = strings.Join(values, ", ")
	}
	return params
}

// classifyFetchErr maps a chromedp failure onto the gateway error taxonomy.
// The tab context is cancelled for both the caller's reasons and the nav
// timeout; the caller's context disambiguates.
func classifyFetchErr(ctx context.Context, err error) FetchReason {
	if errors.Is(err, context.DeadlineExceeded) {
		return ReasonTimeout
	}
	if errors.Is(err, context.Canceled) {
		switch ctx.Err() {
		case context.Canceled:
			return ReasonCanceled
		case context.DeadlineExceeded:
			return ReasonTimeout
		}
	}

	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "err_blocked"),
		strings.Contains(msg, "err_access_denied"),
		strings.Contains(msg, "net::err_aborted"):
		return ReasonNavigationBlocked
	default:
		return ReasonNetwork
	}
}
