package parser

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/pricefeed/backend/internal/domain"
	"github.com/pricefeed/backend/internal/textutil"
)

// unitAlternation lists longer spellings first so "gr" is not read as "g"
const unitAlternation = `(kilograme|kilogram|kg|grame|gram|gr|g|mililitri|mililitru|ml|cl|litri|litru|l)`

var (
	multipackRegex  = regexp.MustCompile(`(\d+)x(\d+(?:[.,]\d+)?)` + unitAlternation + `(?:[^a-z]|$)`)
	simpleSizeRegex = regexp.MustCompile(`(\d+(?:[.,]\d+)?)` + unitAlternation + `(?:[^a-z]|$)`)
	piecesRegex     = regexp.MustCompile(`(\d+)(bucati|bucata|buc|pcs|piese|bc)(?:[^a-z]|$)`)
	sizeSpaceRegex  = regexp.MustCompile(`[\s\x{00A0}\x{202F}]+`)
)

const (
	multipackConfidence  = 0.95
	simpleSizeConfidence = 0.9
	piecesConfidence     = 0.85
)

var thousand = decimal.NewFromInt(1000)

// ParseSize reads a pack size such as "500g", "6 x 330 ml" or "10 buc".
// Weights carry TotalGrams and volumes TotalMl; no match yields size 0 in pcs.
func ParseSize(input string) domain.ParsedSize {
	s := strings.ToLower(textutil.StripDiacritics(input))
	s = sizeSpaceRegex.ReplaceAllString(s, "")
	s = strings.NewReplacer("×", "x", "*", "x").Replace(s)

	if s == "" {
		return domain.ParsedSize{Unit: domain.UnitPcs, OriginalText: input}
	}

	if m := multipackRegex.FindStringSubmatch(s); m != nil {
		count, err := strconv.Atoi(m[1])
		each, ok := parseQuantity(m[2])
		if err == nil && ok && count > 0 {
			return measuredSize(input, each.Mul(decimal.NewFromInt(int64(count))), m[3], count, multipackConfidence)
		}
	}

	if m := simpleSizeRegex.FindStringSubmatch(s); m != nil {
		if v, ok := parseQuantity(m[1]); ok {
			return measuredSize(input, v, m[2], 1, simpleSizeConfidence)
		}
	}

	if m := piecesRegex.FindStringSubmatch(s); m != nil {
		if n, err := strconv.Atoi(m[1]); err == nil && n > 0 {
			return domain.ParsedSize{
				Size:         float64(n),
				Unit:         domain.UnitPcs,
				Count:        n,
				OriginalText: input,
				Confidence:   piecesConfidence,
			}
		}
	}

	return domain.ParsedSize{Unit: domain.UnitPcs, OriginalText: input}
}

func measuredSize(original string, quantity decimal.Decimal, unitToken string, count int, confidence float64) domain.ParsedSize {
	// centilitres are folded into millilitres
	if unitToken == "cl" {
		quantity = quantity.Mul(decimal.NewFromInt(10))
		unitToken = "ml"
	}

	unit, ok := lookupUnit(unitToken)
	if !ok || !quantity.IsPositive() {
		return domain.ParsedSize{Unit: domain.UnitPcs, OriginalText: original}
	}

	size := domain.ParsedSize{
		Size:         quantity.InexactFloat64(),
		Unit:         unit,
		Count:        count,
		OriginalText: original,
		Confidence:   confidence,
	}

	base := quantity
	if unit == domain.UnitKg || unit == domain.UnitL {
		base = quantity.Mul(thousand)
	}
	total := base.InexactFloat64()
	switch {
	case unit.IsWeight():
		size.TotalGrams = &total
	case unit.IsVolume():
		size.TotalMl = &total
	}
	return size
}

func parseQuantity(s string) (decimal.Decimal, bool) {
	d, err := decimal.NewFromString(strings.Replace(s, ",", ".", 1))
	if err != nil {
		return decimal.Zero, false
	}
	return d, true
}
