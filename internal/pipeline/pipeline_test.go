// internal/pipeline/pipeline_test.go
package pipeline

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/boomscraper/boomscraper/internal/browser"
	"github.com/boomscraper/boomscraper/internal/config"
	"github.com/boomscraper/boomscraper/internal/extract"
	"github.com/boomscraper/boomscraper/internal/monitoring"
	"github.com/boomscraper/boomscraper/pkg/types"
)

const sheinPage = `<html><body>
<h1 class="product-intro__head-name">Floral Summer Dress</h1>
<div class="product-intro__head-price"><span class="from">$24.99</span></div>
<div class="product-intro__thumbs-item"><img src="https://img.ltwebstatic.com/images/p_1.jpg"></div>
<div class="j-bread-crumb"><a href="/">Home</a><a href="/dresses">Dresses</a></div>
<div class="product-intro__description">Light and airy.</div>
</body></html>`

// fakeGateway serves canned markup and tracks concurrent use.
type fakeGateway struct {
	markup string
	err    error
	hold   time.Duration

	mu            sync.Mutex
	calls         int
	inFlight      int
	maxInFlight   int
	lastUserAgent string
}

func (g *fakeGateway) Fetch(ctx context.Context, url string, headers http.Header) (string, error) {
	g.mu.Lock()
	g.calls++
	g.inFlight++
	if g.inFlight > g.maxInFlight {
		g.maxInFlight = g.inFlight
	}
	g.lastUserAgent = headers.Get("User-Agent")
	g.mu.Unlock()

	if g.hold > 0 {
		time.Sleep(g.hold)
	}

	g.mu.Lock()
	g.inFlight--
	g.mu.Unlock()

	if g.err != nil {
		return "", g.err
	}
	return g.markup, nil
}

func (g *fakeGateway) Close() error { return nil }

// recordingObserver captures events in emission order.
type recordingObserver struct {
	mu     sync.Mutex
	events []Event
}

func (o *recordingObserver) Observe(event Event) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.events = append(o.events, event)
}

func (o *recordingObserver) stages() []Stage {
	o.mu.Lock()
	defer o.mu.Unlock()
	stages := make([]Stage, len(o.events))
	for i, e := range o.events {
		stages[i] = e.Stage
	}
	return stages
}

func testConfig(endpoint string) *config.Config {
	cfg := config.Default()
	cfg.Evasion.MinDelay = time.Millisecond
	cfg.Evasion.MaxDelay = 2 * time.Millisecond
	cfg.Evasion.RequestsPerMinute = 600000
	cfg.Delivery.Endpoint = endpoint
	cfg.Delivery.BackoffBase = 5 * time.Millisecond
	cfg.Normalize.Categories = map[string]map[string]string{
		"shein": {"dresses": "apparel"},
	}
	return cfg
}

func TestRunDeliversValidProduct(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	gateway := &fakeGateway{markup: sheinPage}
	observer := &recordingObserver{}
	pipe, err := New(testConfig(server.URL), gateway, Options{
		Observer: observer,
		Metrics:  monitoring.NewMetrics("test"),
	})
	if err != nil {
		t.Fatalf("failed to build pipeline: %v", err)
	}

	result := pipe.Run(context.Background(), Job{URL: "https://shein.com/p/123", Vendor: types.VendorShein})

	if result.Err != nil {
		t.Fatalf("unexpected error: %v", result.Err)
	}
	if result.Stage != StageDeliver {
		t.Errorf("terminal stage = %s, want deliver", result.Stage)
	}
	if result.Outcome.State != types.StateDelivered {
		t.Errorf("outcome = %v, want delivered", result.Outcome.State)
	}
	if gateway.lastUserAgent == "" {
		t.Error("fetch received no evasion User-Agent")
	}

	want := []Stage{StageEvasion, StageFetch, StageExtract, StageNormalize, StageValidate, StageDeliver}
	got := observer.stages()
	if len(got) != len(want) {
		t.Fatalf("event stages = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("event %d = %s, want %s (stages must run in order)", i, got[i], want[i])
		}
	}
}

func TestRunShortCircuitsOnExtractionFailure(t *testing.T) {
	requests := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests++
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	missingTitle := strings.Replace(sheinPage, "product-intro__head-name", "renamed", 1)
	pipe, err := New(testConfig(server.URL), &fakeGateway{markup: missingTitle}, Options{
		Observer: &recordingObserver{},
	})
	if err != nil {
		t.Fatalf("failed to build pipeline: %v", err)
	}

	result := pipe.Run(context.Background(), Job{URL: "https://shein.com/p/123", Vendor: types.VendorShein})

	if result.Stage != StageExtract {
		t.Errorf("terminal stage = %s, want extract", result.Stage)
	}
	var stageErr *StageError
	if !errors.As(result.Err, &stageErr) || stageErr.Stage != StageExtract {
		t.Fatalf("expected extract StageError, got %v", result.Err)
	}
	var exErr *extract.ExtractionError
	if !errors.As(result.Err, &exErr) || exErr.Field != "title" {
		t.Fatalf("expected title ExtractionError, got %v", result.Err)
	}
	if requests != 0 {
		t.Errorf("delivery endpoint received %d requests for an unextracted record", requests)
	}
}

func TestRunSurfacesFetchError(t *testing.T) {
	fetchErr := &browser.FetchError{Reason: browser.ReasonTimeout, URL: "https://shein.com/p/1", Err: context.DeadlineExceeded}
	pipe, err := New(testConfig("https://api.example.com/products"), &fakeGateway{err: fetchErr}, Options{
		Observer: &recordingObserver{},
	})
	if err != nil {
		t.Fatalf("failed to build pipeline: %v", err)
	}

	result := pipe.Run(context.Background(), Job{URL: "https://shein.com/p/1", Vendor: types.VendorShein})

	if result.Stage != StageFetch {
		t.Errorf("terminal stage = %s, want fetch", result.Stage)
	}
	var fErr *browser.FetchError
	if !errors.As(result.Err, &fErr) || fErr.Reason != browser.ReasonTimeout {
		t.Fatalf("expected timeout FetchError, got %v", result.Err)
	}
}

func TestRunRejectsUnknownVendor(t *testing.T) {
	gateway := &fakeGateway{markup: sheinPage}
	pipe, err := New(testConfig("https://api.example.com/products"), gateway, Options{
		Observer: &recordingObserver{},
	})
	if err != nil {
		t.Fatalf("failed to build pipeline: %v", err)
	}

	result := pipe.Run(context.Background(), Job{URL: "https://example.com/p/1", Vendor: types.Vendor("wish")})

	if result.Err == nil || result.Stage != StageExtract {
		t.Fatalf("expected extract-stage error for unknown vendor, got %+v", result)
	}
	if gateway.calls != 0 {
		t.Errorf("gateway fetched %d times for an unsupported vendor", gateway.calls)
	}
}

func TestRunCancellableDelayWait(t *testing.T) {
	cfg := testConfig("https://api.example.com/products")
	cfg.Evasion.MinDelay = 500 * time.Millisecond
	cfg.Evasion.MaxDelay = time.Second

	pipe, err := New(cfg, &fakeGateway{markup: sheinPage}, Options{Observer: &recordingObserver{}})
	if err != nil {
		t.Fatalf("failed to build pipeline: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	start := time.Now()
	result := pipe.Run(ctx, Job{URL: "https://shein.com/p/1", Vendor: types.VendorShein})

	if result.Err == nil {
		t.Fatal("expected cancellation error")
	}
	if elapsed := time.Since(start); elapsed > 200*time.Millisecond {
		t.Errorf("cancellation took %v, evasion delay did not abort", elapsed)
	}
}

func TestRunBatchRespectsConcurrencyLimit(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	gateway := &fakeGateway{markup: sheinPage, hold: 30 * time.Millisecond}
	pipe, err := New(testConfig(server.URL), gateway, Options{Observer: &recordingObserver{}})
	if err != nil {
		t.Fatalf("failed to build pipeline: %v", err)
	}

	jobs := make([]Job, 6)
	for i := range jobs {
		jobs[i] = Job{URL: "https://shein.com/p/1", Vendor: types.VendorShein}
	}

	results := pipe.RunBatch(context.Background(), jobs, 2)

	if len(results) != len(jobs) {
		t.Fatalf("got %d results for %d jobs", len(results), len(jobs))
	}
	for i, r := range results {
		if r.Err != nil {
			t.Errorf("job %d failed: %v", i, r.Err)
		}
		if r.Outcome.State != types.StateDelivered {
			t.Errorf("job %d outcome = %v", i, r.Outcome.State)
		}
	}
	if gateway.maxInFlight > 2 {
		t.Errorf("max concurrent fetches = %d, limit was 2", gateway.maxInFlight)
	}
}
