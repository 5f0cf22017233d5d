package normalizer

import (
	"context"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/pricefeed/backend/internal/domain"
	"github.com/pricefeed/backend/internal/parser"
	"github.com/pricefeed/backend/internal/textutil"
)

const (
	// DefaultVersion is stamped into the audit block when a shop sets none
	DefaultVersion = "1.0.0"

	overrideConfidence   = 0.5
	lowConfidenceWarning = 0.5
)

// dietaryPhrases maps normalized title phrases onto dietary flags
var dietaryPhrases = []struct {
	phrase string
	flag   string
}{
	{"bio", "organic"},
	{"organic", "organic"},
	{"eco", "organic"},
	{"fara gluten", "gluten-free"},
	{"gluten free", "gluten-free"},
	{"fara lactoza", "lactose-free"},
	{"lactose free", "lactose-free"},
	{"vegan", "vegan"},
	{"fara zahar", "sugar-free"},
}

// Assemble turns an extracted record into a validated canonical product.
// It delegates measurements to the parser and the category to the mapper,
// applies the shop's Other override and runs post-validation.
func Assemble(
	ctx context.Context,
	deps Deps,
	cfg ShopConfig,
	shop string,
	x Extracted,
	opts domain.NormalizeOptions,
) domain.NormalizationResult {
	var warnings, notes []string
	confidences := make(map[string]float64)

	// Price
	price := parser.ParsePrice(x.Price)
	confidences["price"] = price.Confidence
	if price.Confidence < lowConfidenceWarning {
		warnings = append(warnings, fmt.Sprintf("low price confidence %.2f for %q", price.Confidence, price.OriginalText))
	}
	currency := resolveCurrency(x.Currency, price, cfg.Currency)

	pricing := domain.Pricing{Price: price.Value, Currency: currency}
	if x.OriginalPrice != nil {
		orig := parser.ParsePrice(x.OriginalPrice)
		if orig.Confidence > 0 && orig.Value > price.Value && price.Value > 0 {
			op := orig.Value
			pricing.OriginalPrice = &op
			discount := decimal.NewFromFloat(op - price.Value).
				Div(decimal.NewFromFloat(op)).
				Mul(decimal.NewFromInt(100)).
				Round(1).
				InexactFloat64()
			pricing.DiscountPercent = &discount
		}
	}

	// Size, falling back to the title
	size := parser.ParseSize(x.SizeText)
	if size.Confidence == 0 && x.Title != "" {
		if fromTitle := parser.ParseSize(x.Title); fromTitle.Confidence > 0 {
			size = fromTitle
			notes = append(notes, "size parsed from title")
		}
	}
	confidences["size"] = size.Confidence

	unit := parser.ParseUnit(x.UnitText)
	packUnit := unit.Unit
	if size.Confidence > 0 {
		packUnit = size.Unit
	}
	confidences["unit"] = unit.Confidence

	// Unit price: vendor value first, computed otherwise
	switch {
	case x.VendorUnitPrice != nil:
		pricing.UnitPrice = x.VendorUnitPrice
	case x.UnitPriceText != "":
		pricing.UnitPrice = parser.ParseUnitPrice(x.UnitPriceText)
	}
	if pricing.UnitPrice == nil {
		pricing.UnitPrice = parser.CalculateUnitPriceIn(price.Value, currency, size)
	}
	if pricing.UnitPrice == nil {
		warnings = append(warnings, "unit price unavailable")
	} else {
		confidences["unit_price"] = pricing.UnitPrice.Confidence
	}

	// Category: the filename hint goes first, the record's own category backs it up
	in := domain.MapInput{
		Shop:             shop,
		OriginalCategory: x.CategoryText,
		ProductName:      x.Title,
		BrandName:        x.Brand,
	}
	if hint := CategoryFromFilename(shop, opts.SourceFile); hint != "" {
		in.OriginalCategory = hint
		in.FallbackCategory = x.CategoryText
		notes = append(notes, fmt.Sprintf("category hint from source file: %q", hint))
	}

	mapping := domain.CategoryMappingResult{Path: domain.OtherPath(), Slug: domain.OtherSlug, Status: domain.MappingUnmapped}
	if deps.Mapper != nil {
		mapping = deps.Mapper.MapCategory(ctx, in)
	}
	if mapping.Slug == domain.OtherSlug && cfg.OverrideOther && len(cfg.DefaultPath) > 0 {
		notes = append(notes, fmt.Sprintf("category override: %s -> %s", mapping.Status, strings.Join(cfg.DefaultPath, " > ")))
		mapping = domain.CategoryMappingResult{
			Path:       append([]string(nil), cfg.DefaultPath...),
			Slug:       textutil.PathSlug(cfg.DefaultPath),
			Status:     domain.MappingManualOverride,
			Confidence: overrideConfidence,
		}
	}
	confidences["category"] = mapping.Confidence

	fetchedAt := opts.FetchedAt
	if fetchedAt.IsZero() {
		fetchedAt = deps.now()
	}

	version := cfg.Version
	if version == "" {
		version = DefaultVersion
	}

	product := &domain.CanonicalProduct{
		CanonicalID: CanonicalID(shop, x.GTIN, x.ShopProductID, x.ProductURL, x.Title, x.Brand, size),
		Source: domain.Source{
			Shop:          shop,
			ShopProductID: x.ShopProductID,
			SourceFile:    opts.SourceFile,
			FetchedAt:     fetchedAt.UTC(),
		},
		Title:             strings.TrimSpace(x.Title),
		Brand:             strings.TrimSpace(x.Brand),
		Description:       strings.TrimSpace(x.Description),
		CategoryPath:      mapping.Path,
		CategorySlug:      mapping.Slug,
		MappingStatus:     mapping.Status,
		MappingConfidence: mapping.Confidence,
		Pricing:           pricing,
		Pack:              domain.Pack{Size: size.Size, Unit: packUnit, Count: size.Count},
		Stock:             resolveStock(x.InStock, x.StockText),
		GTIN:              NormalizeGTIN(x.GTIN),
		Attributes: domain.Attributes{
			Country:   strings.TrimSpace(x.Country),
			Dietary:   dietaryFlags(x.Title),
			Allergens: x.Allergens,
			Promo:     x.Promo,
		},
		Audit: domain.Audit{
			NormalizerVersion: version,
			MappedCategory:    mapping.Slug,
			CategorySignal:    strings.TrimSpace(in.OriginalCategory),
			Confidences:       confidences,
			Notes:             notes,
		},
	}
	productURL := optionalURL(deps.Validator, "product", x.ProductURL, &warnings)
	imageURL := optionalURL(deps.Validator, "image", x.ImageURL, &warnings)
	if productURL != "" || imageURL != "" {
		product.URLs = &domain.URLs{Product: productURL, Image: imageURL}
	}
	if x.GTIN != "" && product.GTIN == "" {
		warnings = append(warnings, fmt.Sprintf("ignoring invalid gtin %q", x.GTIN))
	}

	if deps.Validator != nil {
		if err := deps.Validator.Validate(product); err != nil {
			res := domain.FailedResult(err.Error())
			res.Warnings = warnings
			return res
		}
	}

	return domain.NormalizationResult{Success: true, Product: product, Warnings: warnings}
}

// optionalURL drops a link the validator would reject so it cannot fail the record
func optionalURL(v *Validator, field, link string, warnings *[]string) string {
	link = strings.TrimSpace(link)
	if link == "" || v == nil || v.ValidURL(link) {
		return link
	}
	*warnings = append(*warnings, fmt.Sprintf("dropping invalid %s url %q", field, link))
	return ""
}

func resolveCurrency(explicit string, price domain.ParsedPrice, shopDefault string) string {
	c := strings.ToUpper(strings.TrimSpace(explicit))
	switch c {
	case "LEI", "RON":
		return parser.CurrencyRON
	case "EUR", "€":
		return parser.CurrencyEUR
	case "":
	default:
		return c
	}
	if price.Currency == parser.CurrencyEUR {
		return parser.CurrencyEUR
	}
	if shopDefault != "" {
		return strings.ToUpper(shopDefault)
	}
	return parser.CurrencyRON
}

func resolveStock(inStock *bool, text string) domain.Stock {
	t := textutil.Normalize(text)
	switch {
	case t != "" && (strings.Contains(t, "limitat") || strings.Contains(t, "limited") || strings.Contains(t, "ultimele")):
		return domain.Stock{InStock: true, Status: domain.StockLimited}
	case t != "" && (strings.Contains(t, "indisponibil") || strings.Contains(t, "epuizat") || strings.Contains(t, "out of stock") || strings.Contains(t, "stoc 0")):
		return domain.Stock{InStock: false, Status: domain.StockOutOfStock}
	case t != "" && (strings.Contains(t, "stoc") || strings.Contains(t, "disponibil") || strings.Contains(t, "in stock")):
		return domain.Stock{InStock: true, Status: domain.StockInStock}
	}
	if inStock != nil {
		if *inStock {
			return domain.Stock{InStock: true, Status: domain.StockInStock}
		}
		return domain.Stock{InStock: false, Status: domain.StockOutOfStock}
	}
	return domain.Stock{Status: domain.StockUnknown}
}

func dietaryFlags(title string) []string {
	t := textutil.Normalize(title)
	if t == "" {
		return nil
	}
	var flags []string
	seen := make(map[string]bool)
	for _, d := range dietaryPhrases {
		if !seen[d.flag] && textutil.ContainsPhrase(t, d.phrase) {
			seen[d.flag] = true
			flags = append(flags, d.flag)
		}
	}
	return flags
}
