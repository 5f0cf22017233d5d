package normalizer

import (
	"context"
	"time"

	"github.com/pricefeed/backend/internal/domain"
)

// CarrefourShop is the shop id of the Carrefour scrape
const CarrefourShop = "carrefour"

const carrefourBaseURL = "https://carrefour.ro"

// Carrefour scrape fields are named after the CSS classes they were read from
const (
	carrefourTitle      = "product-item-link"
	carrefourPrice      = "price-wrapper"
	carrefourOldPrice   = "old-price"
	carrefourURL        = "product-item-link_href"
	carrefourImage      = "product-image-photo_src"
	carrefourSKU        = "data-product-sku"
	carrefourSKUAlt     = "sku"
	carrefourBrand      = "product-brand"
	carrefourUnitPrice  = "unit-price"
	carrefourSize       = "product-size"
	carrefourStock      = "stock-label"
	carrefourCategory   = "category"
	carrefourSourceFile = "_source_file"
	carrefourPromo      = "badge-promo"
	carrefourEAN        = "ean"
)

// DefaultCarrefourConfig moves Other products into the grocery bucket
func DefaultCarrefourConfig() ShopConfig {
	return ShopConfig{
		OverrideOther: true,
		DefaultPath:   []string{"Băcănie"},
		Currency:      "RON",
		Version:       "carrefour-1.2.0",
	}
}

// Carrefour normalizes the flat Carrefour listing scrape
type Carrefour struct {
	deps   Deps
	config ShopConfig
}

// NewCarrefour creates a Carrefour normalizer
func NewCarrefour(deps Deps, config ShopConfig) *Carrefour {
	return &Carrefour{deps: deps, config: config}
}

func (c *Carrefour) Shop() string {
	return CarrefourShop
}

func (c *Carrefour) Schema() domain.Schema {
	return domain.Schema{
		RequiredFields: []string{carrefourTitle, carrefourPrice},
		OptionalFields: []string{
			carrefourOldPrice, carrefourURL, carrefourImage, carrefourSKU, carrefourSKUAlt,
			carrefourBrand, carrefourUnitPrice, carrefourSize, carrefourStock,
			carrefourCategory, carrefourSourceFile, carrefourPromo, carrefourEAN,
		},
		Description: "Carrefour listing scrape: flat objects keyed by CSS class names, prices as Romanian text",
	}
}

func (c *Carrefour) CanHandle(raw domain.RawRecord) bool {
	return HasRequired(raw, c.Schema().RequiredFields)
}

func (c *Carrefour) Normalize(ctx context.Context, raw domain.RawRecord, opts domain.NormalizeOptions) domain.NormalizationResult {
	start := time.Now()
	if !c.CanHandle(raw) {
		return Reject(c.Schema(), raw)
	}
	if opts.SourceFile == "" {
		opts.SourceFile = raw.String(carrefourSourceFile)
	}

	res := Assemble(ctx, c.deps, c.config, c.Shop(), c.extract(raw), opts)
	res.ProcessingTime = time.Since(start)
	return res
}

func (c *Carrefour) extract(raw domain.RawRecord) Extracted {
	return Extracted{
		ShopProductID: raw.String(carrefourSKU, carrefourSKUAlt),
		Title:         raw.String(carrefourTitle),
		Brand:         raw.String(carrefourBrand),
		Price:         raw.Value(carrefourPrice),
		OriginalPrice: raw.Value(carrefourOldPrice),
		SizeText:      raw.String(carrefourSize),
		UnitPriceText: raw.String(carrefourUnitPrice),
		CategoryText:  raw.String(carrefourCategory),
		GTIN:          raw.String(carrefourEAN),
		ProductURL:    absoluteURL(carrefourBaseURL, raw.String(carrefourURL)),
		ImageURL:      absoluteURL(carrefourBaseURL, raw.String(carrefourImage)),
		StockText:     raw.String(carrefourStock),
		Promo:         raw.Strings(carrefourPromo),
	}
}
