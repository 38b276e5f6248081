// internal/normalize/normalize.go

// Package normalize transforms raw vendor extractions into the canonical
// product schema. Normalization is pure: the same raw extraction always
// yields the same product or the same error, and no I/O happens here.
package normalize

import (
	"fmt"
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"golang.org/x/text/currency"

	"github.com/boomscraper/boomscraper/pkg/types"
)

// Reason classifies a normalization failure.
type Reason string

const (
	ReasonBadPrice         Reason = "bad-price"
	ReasonBadCurrency      Reason = "bad-currency"
	ReasonNoImages         Reason = "no-images"
	ReasonMissingTitle     Reason = "missing-title"
	ReasonUnmappedCategory Reason = "unmapped-category"
)

// NormalizeError carries the offending field and raw value so vendor
// selector drift can be fixed quickly.
type NormalizeError struct {
	Field  string
	Value  string
	Reason Reason
}

func (e *NormalizeError) Error() string {
	return fmt.Sprintf("normalize failed on %s (%s): raw value %q", e.Field, e.Reason, e.Value)
}

// Options configure currency defaults and the category vocabulary.
type Options struct {
	// DefaultCurrency applies when the vendor supplied no currency and no
	// vendor-specific default exists.
	DefaultCurrency string
	// VendorCurrencies maps vendors to their default currency.
	VendorCurrencies map[types.Vendor]string
	// FallbackCategory labels records whose vendor category has no mapping.
	FallbackCategory string
	// StrictCategories turns an unmapped category into a hard error instead
	// of the fallback label.
	StrictCategories bool
	// Categories maps each vendor's raw labels to the controlled vocabulary.
	Categories map[types.Vendor]map[string]string
}

// Normalizer applies the canonical transformations. Construct once, use from
// any number of goroutines.
type Normalizer struct {
	opts       Options
	categories map[types.Vendor]map[string]string
}

// New builds a normalizer, case-folding the category lookup tables.
func New(opts Options) (*Normalizer, error) {
	if opts.DefaultCurrency == "" {
		opts.DefaultCurrency = "USD"
	}
	if _, err := currency.ParseISO(opts.DefaultCurrency); err != nil {
		return nil, fmt.Errorf("default currency %q is not a valid ISO code: %w", opts.DefaultCurrency, err)
	}
	if opts.FallbackCategory == "" {
		opts.FallbackCategory = "uncategorized"
	}

	folded := make(map[types.Vendor]map[string]string, len(opts.Categories))
	for vendor, table := range opts.Categories {
		m := make(map[string]string, len(table))
		for raw, canonical := range table {
			m[foldLabel(raw)] = canonical
		}
		folded[vendor] = m
	}

	return &Normalizer{opts: opts, categories: folded}, nil
}

// Normalize converts a raw extraction into a canonical product.
func (n *Normalizer) Normalize(raw *types.RawExtraction) (*types.CanonicalProduct, error) {
	title := CollapseWhitespace(raw.Title)
	if title == "" {
		return nil, &NormalizeError{Field: "title", Value: raw.Title, Reason: ReasonMissingTitle}
	}

	cents, err := ParseCents(raw.Price)
	if err != nil {
		return nil, &NormalizeError{Field: "price", Value: raw.Price, Reason: ReasonBadPrice}
	}

	code, err := n.normalizeCurrency(raw.Currency, raw.Vendor)
	if err != nil {
		return nil, &NormalizeError{Field: "currency", Value: raw.Currency, Reason: ReasonBadCurrency}
	}

	category, err := n.normalizeCategory(raw.Category, raw.Vendor)
	if err != nil {
		return nil, err
	}

	images := NormalizeImages(raw.Images)
	if len(images) == 0 {
		return nil, &NormalizeError{Field: "images", Value: strings.Join(raw.Images, ","), Reason: ReasonNoImages}
	}

	return &types.CanonicalProduct{
		Title:       title,
		PriceCents:  cents,
		Currency:    code,
		Images:      images,
		Category:    category,
		Description: CollapseWhitespace(raw.Description),
		SourceURL:   raw.SourceURL,
		Vendor:      raw.Vendor,
	}, nil
}

func (n *Normalizer) normalizeCurrency(raw string, vendor types.Vendor) (string, error) {
	code := strings.ToUpper(strings.TrimSpace(raw))
	if code == "" {
		if v, ok := n.opts.VendorCurrencies[vendor]; ok {
			code = strings.ToUpper(v)
		} else {
			code = n.opts.DefaultCurrency
		}
	}

	unit, err := currency.ParseISO(code)
	if err != nil {
		return "", err
	}
	return unit.String(), nil
}

func (n *Normalizer) normalizeCategory(raw string, vendor types.Vendor) (string, error) {
	label := foldLabel(raw)
	if table, ok := n.categories[vendor]; ok {
		if canonical, ok := table[label]; ok {
			return canonical, nil
		}
	}
	if n.opts.StrictCategories {
		return "", &NormalizeError{Field: "category", Value: raw, Reason: ReasonUnmappedCategory}
	}
	return n.opts.FallbackCategory, nil
}

func foldLabel(s string) string {
	return strings.ToLower(CollapseWhitespace(s))
}

var whitespaceRuns = regexp.MustCompile(`\s+`)

// CollapseWhitespace trims surrounding whitespace and collapses internal
// runs to single spaces. Non-ASCII content passes through untouched.
func CollapseWhitespace(s string) string {
	return whitespaceRuns.ReplaceAllString(strings.TrimSpace(s), " ")
}

// ParseCents converts a vendor decimal price string into integer cents
// without a floating-point round trip. Fractions beyond two digits round
// half up. Negative or unparseable values are errors.
func ParseCents(s string) (int64, error) {
	s = strings.TrimSpace(strings.ReplaceAll(s, ",", ""))
	if s == "" {
		return 0, fmt.Errorf("empty price")
	}
	if strings.HasPrefix(s, "-") {
		return 0, fmt.Errorf("negative price %q", s)
	}
	s = strings.TrimPrefix(s, "+")

	whole, frac := s, ""
	if i := strings.IndexByte(s, '.'); i >= 0 {
		whole, frac = s[:i], s[i+1:]
	}
	if whole == "" && frac == "" {
		return 0, fmt.Errorf("malformed price %q", s)
	}
	if whole == "" {
		whole = "0"
	}
	for _, r := range frac {
		if r < '0' || r > '9' {
			return 0, fmt.Errorf("malformed price %q", s)
		}
	}

	units, err := strconv.ParseInt(whole, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("malformed price %q: %w", s, err)
	}

	cents := units * 100
	switch {
	case len(frac) == 0:
	case len(frac) == 1:
		cents += int64(frac[0]-'0') * 10
	default:
		cents += int64(frac[0]-'0')*10 + int64(frac[1]-'0')
		if len(frac) > 2 && frac[2] >= '5' {
			cents++
		}
	}

	return cents, nil
}

// FormatCents renders integer cents back into the canonical decimal string.
// ParseCents(FormatCents(c)) == c for all non-negative c.
func FormatCents(cents int64) string {
	return fmt.Sprintf("%d.%02d", cents/100, cents%100)
}

// NormalizeImages drops URLs that do not parse as absolute and deduplicates
// while preserving first-seen order.
func NormalizeImages(raw []string) []string {
	seen := make(map[string]struct{}, len(raw))
	var out []string
	for _, img := range raw {
		img = strings.TrimSpace(img)
		u, err := url.Parse(img)
		if err != nil || !u.IsAbs() || u.Host == "" {
			continue
		}
		if _, dup := seen[img]; dup {
			continue
		}
		seen[img] = struct{}{}
		out = append(out, img)
	}
	return out
}
