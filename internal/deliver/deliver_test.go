// internal/deliver/deliver_test.go
package deliver

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/boomscraper/boomscraper/pkg/types"
)

func testProduct() *types.CanonicalProduct {
	return &types.CanonicalProduct{
		Title:      "Summer Dress",
		PriceCents: 2499,
		Currency:   "USD",
		Images:     []string{"https://img.example.com/1.jpg"},
		Category:   "apparel",
		SourceURL:  "https://shein.com/p/123",
		Vendor:     types.VendorShein,
	}
}

// recordingHandler answers with the scripted status codes in order, then
// repeats the last one. It records the arrival time of every request.
type recordingHandler struct {
	mu       sync.Mutex
	statuses []int
	arrivals []time.Time
	bodies   []map[string]interface{}
}

func (h *recordingHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mu.Lock()
	defer h.mu.Unlock()

	var body map[string]interface{}
	json.NewDecoder(r.Body).Decode(&body)
	h.bodies = append(h.bodies, body)

	idx := len(h.arrivals)
	h.arrivals = append(h.arrivals, time.Now())

	if idx >= len(h.statuses) {
		idx = len(h.statuses) - 1
	}
	w.WriteHeader(h.statuses[idx])
}

func (h *recordingHandler) requestCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.arrivals)
}

func newTestClient(t *testing.T, endpoint string) *Client {
	t.Helper()
	client, err := NewClient(Options{
		Endpoint:    endpoint,
		MaxRetries:  3,
		BackoffBase: 20 * time.Millisecond,
		BackoffMax:  time.Second,
		Jitter:      0,
	})
	if err != nil {
		t.Fatalf("failed to create client: %v", err)
	}
	return client
}

func TestDeliverRetriesThenSucceeds(t *testing.T) {
	handler := &recordingHandler{statuses: []int{503, 503, 503, 200}}
	server := httptest.NewServer(handler)
	defer server.Close()

	outcome := newTestClient(t, server.URL).Deliver(context.Background(), testProduct())

	if outcome.State != types.StateDelivered {
		t.Fatalf("state = %v, want delivered (last err: %v)", outcome.State, outcome.LastErr)
	}
	if outcome.StatusCode != 200 {
		t.Errorf("status = %d, want 200", outcome.StatusCode)
	}
	if outcome.Attempts != 3 {
		t.Errorf("retries = %d, want 3", outcome.Attempts)
	}
	if got := handler.requestCount(); got != 4 {
		t.Errorf("request count = %d, want 4", got)
	}

	// Backoff between retries must strictly increase.
	gaps := make([]time.Duration, 0, 3)
	for i := 1; i < len(handler.arrivals); i++ {
		gaps = append(gaps, handler.arrivals[i].Sub(handler.arrivals[i-1]))
	}
	for i := 1; i < len(gaps); i++ {
		if gaps[i] <= gaps[i-1] {
			t.Errorf("backoff gap %d (%v) not greater than gap %d (%v)", i, gaps[i], i-1, gaps[i-1])
		}
	}
}

func TestDeliverExhaustsRetryBound(t *testing.T) {
	handler := &recordingHandler{statuses: []int{503}}
	server := httptest.NewServer(handler)
	defer server.Close()

	outcome := newTestClient(t, server.URL).Deliver(context.Background(), testProduct())

	if outcome.State != types.StateExhausted {
		t.Fatalf("state = %v, want exhausted", outcome.State)
	}
	if outcome.Attempts != 3 {
		t.Errorf("retries = %d, want 3", outcome.Attempts)
	}
	if outcome.LastErr == nil {
		t.Error("exhausted outcome must carry the last error")
	}
	if got := handler.requestCount(); got != 4 {
		t.Errorf("request count = %d, want initial request plus 3 retries", got)
	}
}

func TestDeliverClientErrorNeverRetries(t *testing.T) {
	handler := &recordingHandler{statuses: []int{400}}
	server := httptest.NewServer(handler)
	defer server.Close()

	outcome := newTestClient(t, server.URL).Deliver(context.Background(), testProduct())

	if outcome.State != types.StateRejected {
		t.Fatalf("state = %v, want rejected", outcome.State)
	}
	if outcome.StatusCode != 400 {
		t.Errorf("status = %d, want 400", outcome.StatusCode)
	}
	if outcome.Attempts != 0 {
		t.Errorf("retries = %d, want 0", outcome.Attempts)
	}
	if got := handler.requestCount(); got != 1 {
		t.Errorf("request count = %d, want exactly 1", got)
	}
}

func TestDeliverCancelableBackoff(t *testing.T) {
	handler := &recordingHandler{statuses: []int{503}}
	server := httptest.NewServer(handler)
	defer server.Close()

	client, err := NewClient(Options{
		Endpoint:    server.URL,
		MaxRetries:  3,
		BackoffBase: 500 * time.Millisecond,
	})
	if err != nil {
		t.Fatalf("failed to create client: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	start := time.Now()
	outcome := client.Deliver(ctx, testProduct())

	if outcome.State != types.StateExhausted {
		t.Fatalf("state = %v, want exhausted on cancellation", outcome.State)
	}
	if elapsed := time.Since(start); elapsed > 300*time.Millisecond {
		t.Errorf("cancellation took %v, backoff sleep did not abort", elapsed)
	}
}

func TestDeliverWirePayload(t *testing.T) {
	handler := &recordingHandler{statuses: []int{200}}
	server := httptest.NewServer(handler)
	defer server.Close()

	newTestClient(t, server.URL).Deliver(context.Background(), testProduct())

	if len(handler.bodies) != 1 {
		t.Fatalf("expected one payload, got %d", len(handler.bodies))
	}
	body := handler.bodies[0]

	// price_cents must arrive as an integer-valued JSON number.
	if price, ok := body["price_cents"].(float64); !ok || price != 2499 {
		t.Errorf("price_cents = %v", body["price_cents"])
	}
	if _, ok := body["images"].([]interface{}); !ok {
		t.Errorf("images = %v, want JSON array", body["images"])
	}
	if body["source_url"] != "https://shein.com/p/123" {
		t.Errorf("source_url = %v", body["source_url"])
	}
	if body["vendor"] != "shein" {
		t.Errorf("vendor = %v", body["vendor"])
	}
}

func TestDeliverAuthHeaders(t *testing.T) {
	var gotAPIKey, gotAuth string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAPIKey = r.Header.Get("X-API-Key")
		gotAuth = r.Header.Get("Authorization")
		w.WriteHeader(http.StatusCreated)
	}))
	defer server.Close()

	client, err := NewClient(Options{
		Endpoint:    server.URL,
		APIKey:      "key-123",
		BearerToken: "tok-456",
	})
	if err != nil {
		t.Fatalf("failed to create client: %v", err)
	}

	outcome := client.Deliver(context.Background(), testProduct())
	if outcome.State != types.StateDelivered || outcome.StatusCode != 201 {
		t.Fatalf("outcome = %+v, want delivered 201", outcome)
	}
	if gotAPIKey != "key-123" {
		t.Errorf("X-API-Key = %q", gotAPIKey)
	}
	if gotAuth != "Bearer tok-456" {
		t.Errorf("Authorization = %q", gotAuth)
	}
}

func TestBackoffDoublesAndCaps(t *testing.T) {
	client, err := NewClient(Options{
		Endpoint:    "https://api.example.com/products",
		BackoffBase: 100 * time.Millisecond,
		BackoffMax:  300 * time.Millisecond,
	})
	if err != nil {
		t.Fatalf("failed to create client: %v", err)
	}

	if d := client.backoff(1); d != 100*time.Millisecond {
		t.Errorf("retry 1 backoff = %v, want 100ms", d)
	}
	if d := client.backoff(2); d != 200*time.Millisecond {
		t.Errorf("retry 2 backoff = %v, want 200ms", d)
	}
	if d := client.backoff(3); d != 300*time.Millisecond {
		t.Errorf("retry 3 backoff = %v, want capped 300ms", d)
	}
}

func TestBackoffJitterBounds(t *testing.T) {
	client, err := NewClient(Options{
		Endpoint:    "https://api.example.com/products",
		BackoffBase: 100 * time.Millisecond,
		BackoffMax:  time.Second,
		Jitter:      0.2,
	})
	if err != nil {
		t.Fatalf("failed to create client: %v", err)
	}

	for i := 0; i < 100; i++ {
		d := client.backoff(2)
		if d < 160*time.Millisecond || d > 240*time.Millisecond {
			t.Fatalf("jittered backoff %v outside [160ms, 240ms]", d)
		}
	}
}

func TestHealthCheck(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	client, err := NewClient(Options{Endpoint: server.URL + "/products"})
	if err != nil {
		t.Fatalf("failed to create client: %v", err)
	}
	if !client.HealthCheck(context.Background()) {
		t.Error("expected healthy endpoint")
	}

	down, err := NewClient(Options{Endpoint: "http://127.0.0.1:1/products"})
	if err != nil {
		t.Fatalf("failed to create client: %v", err)
	}
	if down.HealthCheck(context.Background()) {
		t.Error("expected unreachable endpoint to be unhealthy")
	}
}
