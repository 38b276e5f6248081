// internal/schema/validator.go

// Package schema re-checks every canonical product invariant independently
// of normalization. A normalizer bug must not let an invalid record reach
// delivery, so the checks here are written against the schema definition,
// not against the normalizer's output paths.
package schema

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/boomscraper/boomscraper/pkg/types"
)

// Validate checks all invariants of the canonical schema and returns the
// full ordered list of violations; an empty result means the product is
// delivery-ready. Validation is total and side-effect-free.
func Validate(p *types.CanonicalProduct) []types.Diagnostic {
	var diags []types.Diagnostic

	if p == nil {
		return []types.Diagnostic{{Field: "product", Reason: "product is nil"}}
	}

	if strings.TrimSpace(p.Title) == "" {
		diags = append(diags, types.Diagnostic{Field: "title", Reason: "must be non-empty"})
	}

	if p.PriceCents < 0 {
		diags = append(diags, types.Diagnostic{
			Field:  "price_cents",
			Reason: fmt.Sprintf("must be non-negative, got %d", p.PriceCents),
		})
	}

	if !isISOCurrency(p.Currency) {
		diags = append(diags, types.Diagnostic{
			Field:  "currency",
			Reason: fmt.Sprintf("must be a three-letter ISO code, got %q", p.Currency),
		})
	}

	if len(p.Images) == 0 {
		diags = append(diags, types.Diagnostic{Field: "images", Reason: "at least one image URL required"})
	}
	for i, img := range p.Images {
		if !isAbsoluteURL(img) {
			diags = append(diags, types.Diagnostic{
				Field:  fmt.Sprintf("images[%d]", i),
				Reason: fmt.Sprintf("must be an absolute URL, got %q", img),
			})
		}
	}

	if strings.TrimSpace(p.Category) == "" {
		diags = append(diags, types.Diagnostic{Field: "category", Reason: "must be non-empty"})
	}

	if !isAbsoluteURL(p.SourceURL) {
		diags = append(diags, types.Diagnostic{
			Field:  "source_url",
			Reason: fmt.Sprintf("must be an absolute URL, got %q", p.SourceURL),
		})
	}

	if !p.Vendor.Valid() {
		diags = append(diags, types.Diagnostic{
			Field:  "vendor",
			Reason: fmt.Sprintf("unknown vendor %q", p.Vendor),
		})
	}

	return diags
}

func isISOCurrency(code string) bool {
	if len(code) != 3 {
		return false
	}
	for _, r := range code {
		if r < 'A' || r > 'Z' {
			return false
		}
	}
	return true
}

func isAbsoluteURL(s string) bool {
	u, err := url.Parse(s)
	return err == nil && u.IsAbs() && u.Host != ""
}
