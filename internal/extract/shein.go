// internal/extract/shein.go
package extract

import (
	"encoding/json"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/boomscraper/boomscraper/pkg/types"
)

// extractShein parses a shein.com product page. Images come from the JSON-LD
// product block when present, falling back to the thumbnail strip with
// thumbnail URLs upgraded to full size.
func extractShein(doc *goquery.Document, sourceURL string) (*types.RawExtraction, error) {
	title := selectText(doc, "h1.product-intro__head-name")
	if title == "" {
		return nil, &ExtractionError{Vendor: types.VendorShein, Field: "title", SourceURL: sourceURL}
	}

	price := cleanPrice(selectText(doc, ".product-intro__head-price .from"))
	if price == "" {
		return nil, &ExtractionError{Vendor: types.VendorShein, Field: "price", SourceURL: sourceURL}
	}

	images := sheinImagesFromJSONLD(doc)
	if len(images) == 0 {
		images = sheinImagesFromThumbs(doc, sourceURL)
	}
	if len(images) == 0 {
		return nil, &ExtractionError{Vendor: types.VendorShein, Field: "images", SourceURL: sourceURL}
	}

	crumbs := doc.Find(".j-bread-crumb a")
	if crumbs.Length() == 0 {
		return nil, &ExtractionError{Vendor: types.VendorShein, Field: "category", SourceURL: sourceURL}
	}
	category := strings.TrimSpace(crumbs.Last().Text())

	return &types.RawExtraction{
		Title:       title,
		Price:       price,
		Category:    category,
		Images:      images,
		Description: selectText(doc, ".product-intro__description"),
	}, nil
}

// sheinImagesFromJSONLD reads the "image" member of the page's JSON-LD
// product block, which may be a single URL or a list.
func sheinImagesFromJSONLD(doc *goquery.Document) []string {
	var images []string
	doc.Find(`script[type="application/ld+json"]`).EachWithBreak(func(i int, s *goquery.Selection) bool {
		var payload struct {
			Image json.RawMessage `json:"image"`
		}
		if err := json.Unmarshal([]byte(s.Text()), &payload); err != nil || len(payload.Image) == 0 {
			return true
		}

		var list []string
		if err := json.Unmarshal(payload.Image, &list); err == nil {
			images = list
			return false
		}
		var single string
		if err := json.Unmarshal(payload.Image, &single); err == nil && single != "" {
			images = []string{single}
			return false
		}
		return true
	})
	return images
}

func sheinImagesFromThumbs(doc *goquery.Document, sourceURL string) []string {
	var images []string
	doc.Find(".product-intro__thumbs-item img").Each(func(i int, s *goquery.Selection) {
		src, ok := s.Attr("src")
		if !ok || strings.TrimSpace(src) == "" {
			src, _ = s.Attr("data-src")
		}
		// Thumbnail URLs upgrade to the full-size asset.
		src = strings.ReplaceAll(src, "_thumbnail_", "_")
		if resolved := resolveImageURL(sourceURL, src); resolved != "" {
			images = append(images, resolved)
		}
	})
	return images
}
