// pkg/types/types.go
package types

import (
	"fmt"
	"net/http"
	"time"
)

// Vendor identifies an e-commerce source site with its own markup conventions.
type Vendor string

const (
	VendorShein Vendor = "shein"
	VendorTemu  Vendor = "temu"
)

// ParseVendor converts a string tag into a known Vendor.
func ParseVendor(s string) (Vendor, error) {
	switch Vendor(s) {
	case VendorShein, VendorTemu:
		return Vendor(s), nil
	default:
		return "", fmt.Errorf("unknown vendor: %q", s)
	}
}

// Valid reports whether the vendor is one of the supported sites.
func (v Vendor) Valid() bool {
	return v == VendorShein || v == VendorTemu
}

// Domain returns the site domain served by this vendor.
func (v Vendor) Domain() string {
	switch v {
	case VendorShein:
		return "shein.com"
	case VendorTemu:
		return "temu.com"
	default:
		return ""
	}
}

// RawExtraction holds vendor-shaped fields exactly as scraped from rendered
// markup. Values keep the vendor's native representation (price as a decimal
// string, category as the raw breadcrumb label). It is ephemeral: produced by
// the vendor extractors and consumed only by normalization.
type RawExtraction struct {
	Title       string
	Price       string
	Currency    string
	Images      []string
	Category    string
	Description string
	SourceURL   string
	Vendor      Vendor
}

// CanonicalProduct is the durable output unit of the pipeline. A product that
// has passed schema validation is delivery-ready and must not be mutated by
// any later stage. The JSON shape below is the delivery wire format.
type CanonicalProduct struct {
	Title       string   `json:"title"`
	PriceCents  int64    `json:"price_cents"`
	Currency    string   `json:"currency"`
	Images      []string `json:"images"`
	Category    string   `json:"category"`
	Description string   `json:"description"`
	SourceURL   string   `json:"source_url"`
	Vendor      Vendor   `json:"vendor"`
}

// EvasionContext carries the header set and pre-fetch delay for a single
// request. Contexts are created fresh per request and discarded after the
// fetch they accompany.
type EvasionContext struct {
	Headers http.Header
	Delay   time.Duration
}

// Diagnostic names a single schema violation on a specific field.
type Diagnostic struct {
	Field  string `json:"field"`
	Reason string `json:"reason"`
}

func (d Diagnostic) String() string {
	return d.Field + ": " + d.Reason
}

// DeliveryState tags the terminal result of a delivery attempt sequence.
type DeliveryState int

const (
	// StateDelivered means the endpoint acknowledged the record with a 2xx.
	StateDelivered DeliveryState = iota
	// StateRejected means the record can never succeed as sent: either it
	// failed schema validation or the endpoint answered with a 4xx.
	StateRejected
	// StateExhausted means transient failures persisted past the retry bound.
	StateExhausted
)

func (s DeliveryState) String() string {
	switch s {
	case StateDelivered:
		return "delivered"
	case StateRejected:
		return "rejected"
	case StateExhausted:
		return "exhausted"
	default:
		return "unknown"
	}
}

// DeliveryOutcome is the tagged result of delivering one product. It is
// terminal per source URL; all delivery failure is expressed here rather
// than raised past the client boundary.
type DeliveryOutcome struct {
	State       DeliveryState
	StatusCode  int
	Diagnostics []Diagnostic
	Attempts    int
	LastErr     error
}

// Delivered builds the outcome for a 2xx acknowledgement.
func Delivered(statusCode, attempts int) DeliveryOutcome {
	return DeliveryOutcome{State: StateDelivered, StatusCode: statusCode, Attempts: attempts}
}

// RejectedStatus builds the outcome for a client-class (4xx) refusal.
func RejectedStatus(statusCode, attempts int) DeliveryOutcome {
	return DeliveryOutcome{State: StateRejected, StatusCode: statusCode, Attempts: attempts}
}

// RejectedSchema builds the outcome for a record that failed validation
// before any request was issued.
func RejectedSchema(diags []Diagnostic) DeliveryOutcome {
	return DeliveryOutcome{State: StateRejected, Diagnostics: diags}
}

// Exhausted builds the outcome for a record whose retries ran out.
func Exhausted(lastErr error, attempts int) DeliveryOutcome {
	return DeliveryOutcome{State: StateExhausted, LastErr: lastErr, Attempts: attempts}
}
