// Package normalizer converts shop-specific scraped records into canonical
// products. Each retailer implements Normalizer with its own field
// extraction; parsing, category mapping, id synthesis and validation are
// shared helpers composed in by every implementation.
package normalizer

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/pricefeed/backend/internal/domain"
)

// Normalizer turns one retailer's raw records into canonical products
type Normalizer interface {
	Shop() string
	// CanHandle reports whether every required field is present and non-null
	CanHandle(raw domain.RawRecord) bool
	// Normalize never panics on bad input and never returns an error:
	// failures are carried in the result
	Normalize(ctx context.Context, raw domain.RawRecord, opts domain.NormalizeOptions) domain.NormalizationResult
	Schema() domain.Schema
}

// CategoryMapper resolves category signals. Implemented by the mapping engine.
type CategoryMapper interface {
	MapCategory(ctx context.Context, in domain.MapInput) domain.CategoryMappingResult
}

// Deps are the collaborators shared by every shop normalizer
type Deps struct {
	Mapper    CategoryMapper
	Validator *Validator
	Now       func() time.Time
}

func (d Deps) now() time.Time {
	if d.Now != nil {
		return d.Now()
	}
	return time.Now()
}

// ShopConfig is the per-retailer policy
type ShopConfig struct {
	// OverrideOther moves products that resolve to Other into DefaultPath
	// with manual-override status
	OverrideOther bool     `mapstructure:"override_other"`
	DefaultPath   []string `mapstructure:"default_path"`
	Currency      string   `mapstructure:"currency"`
	Version       string   `mapstructure:"normalizer_version"`
}

// Extracted is the shop-independent intermediate record a retailer adapter
// produces from its raw shape
type Extracted struct {
	ShopProductID string
	Title         string
	Brand         string
	Description   string

	Price         any
	OriginalPrice any
	Currency      string

	SizeText        string
	UnitText        string
	UnitPriceText   string
	VendorUnitPrice *domain.UnitPrice

	CategoryText string
	GTIN         string

	ProductURL string
	ImageURL   string

	InStock   *bool
	StockText string

	Country   string
	Allergens []string
	Promo     []string
}

// MissingFields returns the required fields absent, null or blank in raw
func MissingFields(raw domain.RawRecord, required []string) []string {
	if !raw.IsObject() {
		return required
	}
	var missing []string
	for _, f := range required {
		if !raw.Has(f) {
			missing = append(missing, f)
		}
	}
	return missing
}

// HasRequired is the structural pre-check behind CanHandle
func HasRequired(raw domain.RawRecord, required []string) bool {
	return len(MissingFields(raw, required)) == 0
}

// Reject builds the failed result for a record CanHandle refused
func Reject(schema domain.Schema, raw domain.RawRecord) domain.NormalizationResult {
	missing := MissingFields(raw, schema.RequiredFields)
	if !raw.IsObject() {
		return domain.FailedResult(fmt.Sprintf("%v: record is not a JSON object", domain.ErrFormatNotSupported))
	}
	return domain.FailedResult(fmt.Sprintf("%v: missing required fields %s",
		domain.ErrFormatNotSupported, strings.Join(missing, ", ")))
}

// absoluteURL resolves scheme-relative and root-relative links against base
func absoluteURL(base, link string) string {
	link = strings.TrimSpace(link)
	switch {
	case link == "":
		return ""
	case strings.HasPrefix(link, "//"):
		return "https:" + link
	case strings.HasPrefix(link, "/"):
		return base + link
	}
	return link
}
