package domain

import "time"

// MappingStatus describes how a product's category path was obtained
type MappingStatus string

const (
	MappingOK             MappingStatus = "ok"
	MappingFallbackParent MappingStatus = "fallback-parent"
	MappingFuzzy          MappingStatus = "fuzzy-match"
	MappingManualOverride MappingStatus = "manual-override"
	MappingUnmapped       MappingStatus = "unmapped"
)

// StockStatus is the normalized availability of a product
type StockStatus string

const (
	StockInStock    StockStatus = "in_stock"
	StockLimited    StockStatus = "limited"
	StockOutOfStock StockStatus = "out_of_stock"
	StockUnknown    StockStatus = "unknown"
)

// CanonicalProduct is the retailer-agnostic record used for price comparison
type CanonicalProduct struct {
	CanonicalID       string        `json:"canonical_id" validate:"required"`
	Source            Source        `json:"source"`
	Title             string        `json:"title" validate:"required"`
	Brand             string        `json:"brand,omitempty"`
	Description       string        `json:"description,omitempty"`
	CategoryPath      []string      `json:"category_path" validate:"min=1,dive,required"`
	CategorySlug      string        `json:"category_slug" validate:"required"`
	MappingStatus     MappingStatus `json:"mapping_status" validate:"oneof=ok fallback-parent fuzzy-match manual-override unmapped"`
	MappingConfidence float64       `json:"mapping_confidence" validate:"gte=0,lte=1"`
	Pricing           Pricing       `json:"pricing"`
	Pack              Pack          `json:"pack"`
	Stock             Stock         `json:"stock"`
	GTIN              string        `json:"gtin,omitempty" validate:"omitempty,numeric,min=8,max=14"`
	Attributes        Attributes    `json:"attributes"`
	URLs              *URLs         `json:"urls,omitempty"`
	Audit             Audit         `json:"audit"`
}

// Source identifies where a canonical product came from
type Source struct {
	Shop          string    `json:"shop" validate:"required"`
	ShopProductID string    `json:"shop_product_id,omitempty"`
	SourceFile    string    `json:"source_file,omitempty"`
	FetchedAt     time.Time `json:"fetched_at"`
}

// Pricing holds the selling price and derived comparisons
type Pricing struct {
	Price           float64    `json:"price" validate:"gt=0"`
	Currency        string     `json:"currency" validate:"oneof=RON EUR"`
	UnitPrice       *UnitPrice `json:"unit_price,omitempty"`
	OriginalPrice   *float64   `json:"original_price,omitempty" validate:"omitempty,gt=0"`
	DiscountPercent *float64   `json:"discount_percent,omitempty" validate:"omitempty,gte=0,lte=100"`
}

// Pack is the sold quantity
type Pack struct {
	Size  float64 `json:"size" validate:"gte=0"`
	Unit  Unit    `json:"unit" validate:"oneof=kg g l ml pcs"`
	Count int     `json:"count" validate:"gte=0"`
}

// Stock is the availability at fetch time
type Stock struct {
	InStock bool        `json:"in_stock"`
	Status  StockStatus `json:"status" validate:"oneof=in_stock limited out_of_stock unknown"`
}

// Attributes are descriptive flags used by storefront filters
type Attributes struct {
	Country   string   `json:"country,omitempty"`
	Dietary   []string `json:"dietary,omitempty"`
	Allergens []string `json:"allergens,omitempty"`
	Promo     []string `json:"promo,omitempty"`
}

// URLs links back to the retailer
type URLs struct {
	Product string `json:"product,omitempty" validate:"omitempty,url"`
	Image   string `json:"image,omitempty" validate:"omitempty,url"`
}

// Audit records how the product was produced
type Audit struct {
	NormalizerVersion string             `json:"normalizer_version" validate:"required"`
	MappedCategory    string             `json:"mapped_category"`
	CategorySignal    string             `json:"category_signal,omitempty"`
	Confidences       map[string]float64 `json:"confidences,omitempty"`
	Notes             []string           `json:"notes,omitempty"`
}
