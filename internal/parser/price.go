// Package parser turns free-text vendor price, unit and size fields into
// confidence-scored value objects. Every function is pure and never fails:
// unparseable input comes back with zero confidence.
package parser

import (
	"encoding/json"
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/pricefeed/backend/internal/domain"
)

const (
	CurrencyRON = "RON"
	CurrencyEUR = "EUR"
)

var (
	currencyTokenRegex = regexp.MustCompile(`(?i)lei|ron|eur|€`)
	whitespaceRegex    = regexp.MustCompile(`[\s\x{00A0}\x{202F}]+`)

	// Decimal convention tiers, tried in order
	commaDecimalRegex   = regexp.MustCompile(`^\d+,\d{1,2}$`)
	dotThousandsRegex   = regexp.MustCompile(`^\d{1,3}(\.\d{3})+,\d{1,2}$`)
	commaThousandsRegex = regexp.MustCompile(`^\d{1,3}(,\d{3})+\.\d{1,2}$`)
	bareIntegerRegex    = regexp.MustCompile(`^\d+$`)
)

const (
	implausiblyHighPrice   = 10000.0
	implausiblyLowPrice    = 0.01
	highPriceDampening     = 0.5
	lowPriceDampening      = 0.3
	numericInputConfidence = 1.0
)

// ParsePrice extracts a price from a string or a number.
// "12,99 lei" -> {12.99, RON, 0.95}. Garbage -> {0, confidence 0}.
func ParsePrice(input any) domain.ParsedPrice {
	switch v := input.(type) {
	case nil:
		return domain.ParsedPrice{Currency: CurrencyRON}
	case string:
		return parsePriceText(v)
	case float64:
		return priceFromNumber(v, strconv.FormatFloat(v, 'f', -1, 64))
	case float32:
		return priceFromNumber(float64(v), strconv.FormatFloat(float64(v), 'f', -1, 32))
	case int:
		return priceFromNumber(float64(v), strconv.Itoa(v))
	case int32:
		return priceFromNumber(float64(v), strconv.FormatInt(int64(v), 10))
	case int64:
		return priceFromNumber(float64(v), strconv.FormatInt(v, 10))
	case json.Number:
		f, err := v.Float64()
		if err != nil {
			return domain.ParsedPrice{Currency: CurrencyRON, OriginalText: v.String()}
		}
		return priceFromNumber(f, v.String())
	default:
		return domain.ParsedPrice{Currency: CurrencyRON}
	}
}

func priceFromNumber(value float64, original string) domain.ParsedPrice {
	if math.IsNaN(value) || math.IsInf(value, 0) || value < 0 {
		return domain.ParsedPrice{Currency: CurrencyRON, OriginalText: original}
	}
	return domain.ParsedPrice{
		Value:        value,
		Currency:     CurrencyRON,
		OriginalText: original,
		Confidence:   dampen(value, numericInputConfidence),
	}
}

func parsePriceText(text string) domain.ParsedPrice {
	result := domain.ParsedPrice{Currency: detectCurrency(text), OriginalText: text}

	cleaned := currencyTokenRegex.ReplaceAllString(text, "")
	cleaned = whitespaceRegex.ReplaceAllString(cleaned, "")
	if cleaned == "" {
		return result
	}

	var (
		value      float64
		confidence float64
		err        error
	)
	switch {
	case commaDecimalRegex.MatchString(cleaned):
		value, err = strconv.ParseFloat(strings.Replace(cleaned, ",", ".", 1), 64)
		confidence = 0.95
	case dotThousandsRegex.MatchString(cleaned):
		s := strings.ReplaceAll(cleaned, ".", "")
		value, err = strconv.ParseFloat(strings.Replace(s, ",", ".", 1), 64)
		confidence = 0.90
	case commaThousandsRegex.MatchString(cleaned):
		value, err = strconv.ParseFloat(strings.ReplaceAll(cleaned, ",", ""), 64)
		confidence = 0.85
	case bareIntegerRegex.MatchString(cleaned):
		value, err = strconv.ParseFloat(cleaned, 64)
		confidence = 0.70
	default:
		value, err = strconv.ParseFloat(cleaned, 64)
		confidence = 0.8
	}

	if err != nil || value < 0 || math.IsNaN(value) || math.IsInf(value, 0) {
		return result
	}

	result.Value = value
	result.Confidence = dampen(value, confidence)
	return result
}

// dampen lowers confidence for prices that more likely come from a parse
// error than from the shelf
func dampen(value, confidence float64) float64 {
	if value > implausiblyHighPrice {
		confidence *= highPriceDampening
	}
	if value < implausiblyLowPrice {
		confidence *= lowPriceDampening
	}
	return confidence
}

func detectCurrency(text string) string {
	lower := strings.ToLower(text)
	if strings.Contains(lower, "€") || strings.Contains(lower, "eur") {
		return CurrencyEUR
	}
	return CurrencyRON
}
