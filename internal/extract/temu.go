// internal/extract/temu.go
package extract

import (
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/boomscraper/boomscraper/pkg/types"
)

// extractTemu parses a temu.com product page.
func extractTemu(doc *goquery.Document, sourceURL string) (*types.RawExtraction, error) {
	title := selectText(doc, "h1.DetailName_title")
	if title == "" {
		return nil, &ExtractionError{Vendor: types.VendorTemu, Field: "title", SourceURL: sourceURL}
	}

	price := cleanPrice(selectText(doc, ".DetailPrice_price"))
	if price == "" {
		return nil, &ExtractionError{Vendor: types.VendorTemu, Field: "price", SourceURL: sourceURL}
	}

	var images []string
	doc.Find(".product-image img").Each(func(i int, s *goquery.Selection) {
		src, ok := s.Attr("src")
		if !ok {
			return
		}
		if resolved := resolveImageURL(sourceURL, src); resolved != "" {
			images = append(images, resolved)
		}
	})
	if len(images) == 0 {
		return nil, &ExtractionError{Vendor: types.VendorTemu, Field: "images", SourceURL: sourceURL}
	}

	crumbs := doc.Find(".DetailBreadcrumb_item")
	if crumbs.Length() == 0 {
		return nil, &ExtractionError{Vendor: types.VendorTemu, Field: "category", SourceURL: sourceURL}
	}
	category := strings.TrimSpace(crumbs.Last().Text())

	return &types.RawExtraction{
		Title:       title,
		Price:       price,
		Category:    category,
		Images:      images,
		Description: selectText(doc, ".DetailDescription_content"),
	}, nil
}
