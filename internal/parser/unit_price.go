package parser

import (
	"strings"
	"unicode"

	"github.com/shopspring/decimal"

	"github.com/pricefeed/backend/internal/domain"
)

const (
	perKg    = "kg"
	perLitre = "l"
	perPiece = "buc"
)

// CalculateUnitPrice derives a RON price per kg, per litre or per piece.
// Returns nil when size carries no usable quantity.
func CalculateUnitPrice(price float64, size domain.ParsedSize) *domain.UnitPrice {
	return CalculateUnitPriceIn(price, CurrencyRON, size)
}

// CalculateUnitPriceIn is CalculateUnitPrice for an explicit currency
func CalculateUnitPriceIn(price float64, currency string, size domain.ParsedSize) *domain.UnitPrice {
	if price <= 0 {
		return nil
	}
	if currency == "" {
		currency = CurrencyRON
	}

	p := decimal.NewFromFloat(price)
	var (
		value decimal.Decimal
		per   string
	)
	switch {
	case size.TotalGrams != nil && *size.TotalGrams > 0:
		value = p.Div(decimal.NewFromFloat(*size.TotalGrams)).Mul(thousand)
		per = perKg
	case size.TotalMl != nil && *size.TotalMl > 0:
		value = p.Div(decimal.NewFromFloat(*size.TotalMl)).Mul(thousand)
		per = perLitre
	case size.Unit == domain.UnitPcs && size.Size > 0:
		value = p.Div(decimal.NewFromFloat(size.Size))
		per = perPiece
	default:
		return nil
	}

	return &domain.UnitPrice{
		Value:      value.Round(2).InexactFloat64(),
		Unit:       currency + "/" + per,
		Confidence: size.Confidence,
	}
}

// ParseUnitPrice reads a vendor unit price such as "24,99 lei/kg",
// "3,50 RON / buc" or "1,99 lei/100g". Returns nil when either side is unusable.
func ParseUnitPrice(input string) *domain.UnitPrice {
	idx := strings.LastIndex(input, "/")
	if idx <= 0 || idx == len(input)-1 {
		return nil
	}

	price := ParsePrice(input[:idx])
	if price.Confidence == 0 || price.Value <= 0 {
		return nil
	}
	suffix := strings.TrimSpace(input[idx+1:])

	// "/100g" style suffixes carry their own quantity
	if first := []rune(suffix); len(first) > 0 && unicode.IsDigit(first[0]) {
		size := ParseSize(suffix)
		if size.Confidence == 0 {
			return nil
		}
		up := CalculateUnitPriceIn(price.Value, price.Currency, size)
		if up == nil {
			return nil
		}
		up.OriginalText = input
		up.Confidence = min(price.Confidence, size.Confidence)
		return up
	}

	unit := ParseUnit(suffix)
	if unit.Confidence < exactUnitConfidence {
		return nil
	}

	value := decimal.NewFromFloat(price.Value)
	var per string
	switch unit.Unit {
	case domain.UnitKg:
		per = perKg
	case domain.UnitG:
		value = value.Mul(thousand)
		per = perKg
	case domain.UnitL:
		per = perLitre
	case domain.UnitMl:
		value = value.Mul(thousand)
		per = perLitre
	default:
		per = perPiece
	}

	return &domain.UnitPrice{
		Value:        value.Round(2).InexactFloat64(),
		Unit:         price.Currency + "/" + per,
		OriginalText: input,
		Confidence:   min(price.Confidence, unit.Confidence),
	}
}
