package normalizer

import (
	"context"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/tidwall/gjson"

	"github.com/pricefeed/backend/internal/domain"
	"github.com/pricefeed/backend/internal/parser"
)

// AuchanShop is the shop id of the Auchan catalogue API export
const AuchanShop = "auchan"

const auchanBaseURL = "https://www.auchan.ro"

// DefaultAuchanConfig leaves Other products in Other
func DefaultAuchanConfig() ShopConfig {
	return ShopConfig{
		Currency: "RON",
		Version:  "auchan-1.0.0",
	}
}

// Auchan normalizes the nested JSON returned by the Auchan catalogue API
type Auchan struct {
	deps   Deps
	config ShopConfig
}

// NewAuchan creates an Auchan normalizer
func NewAuchan(deps Deps, config ShopConfig) *Auchan {
	return &Auchan{deps: deps, config: config}
}

func (a *Auchan) Shop() string { return AuchanShop }

func (a *Auchan) Schema() domain.Schema {
	return domain.Schema{
		RequiredFields: []string{"productName", "price.value"},
		OptionalFields: []string{
			"productId", "brand.name", "ean", "description",
			"price.currency", "price.listPrice", "price.unitPrice.value", "price.unitPrice.unit",
			"categories", "packaging", "link", "images", "availability.available",
			"attributes.origin", "attributes.allergens",
		},
		Description: "Auchan catalogue API: nested price object, EAN, category breadcrumb, relative links",
	}
}

func (a *Auchan) CanHandle(raw domain.RawRecord) bool {
	return HasRequired(raw, a.Schema().RequiredFields)
}

func (a *Auchan) Normalize(ctx context.Context, raw domain.RawRecord, opts domain.NormalizeOptions) domain.NormalizationResult {
	start := time.Now()
	if !a.CanHandle(raw) {
		return Reject(a.Schema(), raw)
	}
	res := Assemble(ctx, a.deps, a.config, a.Shop(), a.extract(raw), opts)
	res.ProcessingTime = time.Since(start)
	return res
}

func (a *Auchan) extract(raw domain.RawRecord) Extracted {
	currency := raw.String("price.currency")

	x := Extracted{
		ShopProductID: raw.String("productId"),
		Title:         raw.String("productName"),
		Brand:         auchanBrand(raw),
		Description:   raw.String("description"),
		Price:         raw.Value("price.value"),
		OriginalPrice: raw.Value("price.listPrice"),
		Currency:      currency,
		SizeText:      raw.String("packaging"),
		UnitText:      raw.String("price.unitPrice.unit"),
		GTIN:          raw.String("ean"),
		ProductURL:    absoluteURL(auchanBaseURL, raw.String("link")),
		ImageURL:      absoluteURL(auchanBaseURL, firstString(raw.Strings("images.#.url"), raw.Strings("images"))),
		Country:       raw.String("attributes.origin"),
		Allergens:     raw.Strings("attributes.allergens"),
	}

	// breadcrumb: the leaf is the most specific signal
	crumbs := raw.Strings("categories.#.name")
	if len(crumbs) == 0 {
		crumbs = raw.Strings("categories")
	}
	if len(crumbs) > 0 {
		x.CategoryText = crumbs[len(crumbs)-1]
	}

	if v := raw.Get("availability.available"); v.Type == gjson.True || v.Type == gjson.False {
		available := v.Bool()
		x.InStock = &available
	}

	x.VendorUnitPrice = structuredUnitPrice(raw, currency)
	return x
}

// structuredUnitPrice reads price.unitPrice {value, unit}
func structuredUnitPrice(raw domain.RawRecord, currency string) *domain.UnitPrice {
	v := raw.Get("price.unitPrice.value")
	if v.Type != gjson.Number || v.Num <= 0 {
		return nil
	}
	unitText := raw.String("price.unitPrice.unit")
	unit := parser.ParseUnit(unitText)
	if unit.Confidence < 0.9 {
		return nil
	}
	currency = strings.ToUpper(strings.TrimSpace(currency))
	if currency == "" || currency == "LEI" {
		currency = parser.CurrencyRON
	}

	per := "buc"
	value := decimal.NewFromFloat(v.Num)
	switch unit.Unit {
	case domain.UnitKg:
		per = "kg"
	case domain.UnitG:
		per, value = "kg", value.Mul(decimal.NewFromInt(1000))
	case domain.UnitL:
		per = "l"
	case domain.UnitMl:
		per, value = "l", value.Mul(decimal.NewFromInt(1000))
	}
	return &domain.UnitPrice{
		Value:        value.Round(2).InexactFloat64(),
		Unit:         currency + "/" + per,
		OriginalText: v.Raw + " " + unitText,
		Confidence:   unit.Confidence,
	}
}

func auchanBrand(raw domain.RawRecord) string {
	if b := raw.Get("brand"); b.Type == gjson.String {
		return strings.TrimSpace(b.Str)
	}
	return raw.String("brand.name")
}

func firstString(lists ...[]string) string {
	for _, l := range lists {
		if len(l) > 0 {
			return l[0]
		}
	}
	return ""
}
