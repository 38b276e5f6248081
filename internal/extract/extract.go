// internal/extract/extract.go

// Package extract parses rendered vendor markup into raw, vendor-shaped
// field sets. Each supported vendor has one extraction function, selected by
// an explicit dispatch table; a selector miss on a required field is a typed
// error, never a silently empty value.
package extract

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/boomscraper/boomscraper/pkg/types"
)

// ExtractionError reports that a required field could not be located in the
// markup. It is not retried: markup will not change between immediate
// attempts, so it surfaces as a per-URL failure.
type ExtractionError struct {
	Vendor    types.Vendor
	Field     string
	SourceURL string
}

func (e *ExtractionError) Error() string {
	return fmt.Sprintf("extraction failed for %s: required field %q not found at %s", e.Vendor, e.Field, e.SourceURL)
}

type extractFunc func(doc *goquery.Document, sourceURL string) (*types.RawExtraction, error)

// extractors dispatches on vendor identity. Adding a vendor means adding a
// function and a table entry.
var extractors = map[types.Vendor]extractFunc{
	types.VendorShein: extractShein,
	types.VendorTemu:  extractTemu,
}

// Extract parses the rendered markup for the given vendor into a raw field
// set. The source URL and vendor tag pass through untouched.
func Extract(markup, sourceURL string, vendor types.Vendor) (*types.RawExtraction, error) {
	fn, ok := extractors[vendor]
	if !ok {
		return nil, fmt.Errorf("no extractor registered for vendor %q", vendor)
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(markup))
	if err != nil {
		return nil, fmt.Errorf("failed to parse markup: %w", err)
	}

	raw, err := fn(doc, sourceURL)
	if err != nil {
		return nil, err
	}

	raw.SourceURL = sourceURL
	raw.Vendor = vendor
	return raw, nil
}

// Supported reports whether an extractor exists for the vendor.
func Supported(vendor types.Vendor) bool {
	_, ok := extractors[vendor]
	return ok
}

// selectText returns the trimmed text of the first match, or "".
func selectText(doc *goquery.Document, selector string) string {
	return strings.TrimSpace(doc.Find(selector).First().Text())
}

// cleanPrice strips currency symbols and thousands separators from a
// vendor-native price string, keeping the decimal representation intact.
func cleanPrice(s string) string {
	s = strings.TrimSpace(s)
	for _, sym := range []string{"$", "€", "£"} {
		s = strings.ReplaceAll(s, sym, "")
	}
	return strings.TrimSpace(strings.ReplaceAll(s, ",", ""))
}

// resolveImageURL makes a scraped image reference absolute against the page
// URL. Protocol-relative and path-relative references both resolve; anything
// unparseable returns "".
func resolveImageURL(pageURL, ref string) string {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return ""
	}

	refURL, err := url.Parse(ref)
	if err != nil {
		return ""
	}
	if refURL.IsAbs() {
		return refURL.String()
	}

	base, err := url.Parse(pageURL)
	if err != nil || !base.IsAbs() {
		return ""
	}
	return base.ResolveReference(refURL).String()
}
