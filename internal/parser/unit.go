package parser

import (
	"regexp"
	"strings"

	"github.com/pricefeed/backend/internal/domain"
	"github.com/pricefeed/backend/internal/textutil"
)

// unitDictionary maps Romanian and English unit spellings onto the Unit enum
var unitDictionary = map[string]domain.Unit{
	"kg": domain.UnitKg, "kilogram": domain.UnitKg, "kilograme": domain.UnitKg,
	"kgr": domain.UnitKg, "kilo": domain.UnitKg, "kilograms": domain.UnitKg,

	"g": domain.UnitG, "gr": domain.UnitG, "gram": domain.UnitG,
	"grame": domain.UnitG, "grams": domain.UnitG,

	"l": domain.UnitL, "litru": domain.UnitL, "litri": domain.UnitL, "liter": domain.UnitL,
	"liters": domain.UnitL, "litre": domain.UnitL, "lt": domain.UnitL, "ltr": domain.UnitL,

	"ml": domain.UnitMl, "mililitru": domain.UnitMl, "mililitri": domain.UnitMl,
	"milliliter": domain.UnitMl, "milliliters": domain.UnitMl,

	"buc": domain.UnitPcs, "bucata": domain.UnitPcs, "bucati": domain.UnitPcs,
	"piece": domain.UnitPcs, "pieces": domain.UnitPcs, "pcs": domain.UnitPcs,
	"pc": domain.UnitPcs, "bc": domain.UnitPcs,
}

// compoundUnitRegex matches "lei/kg", "ron / buc", "/l"
var compoundUnitRegex = regexp.MustCompile(`^(?:lei|ron|eur)?\s*/\s*([a-z]+)\.?$`)

const (
	exactUnitConfidence    = 1.0
	compoundUnitConfidence = 0.9
	unknownUnitConfidence  = 0.2
	missingUnitConfidence  = 0.3
)

// ParseUnit maps a unit token onto kg, g, l, ml or pcs.
// Unknown tokens default to pcs with low confidence.
func ParseUnit(input string) domain.ParsedUnit {
	token := strings.ToLower(strings.TrimSpace(textutil.StripDiacritics(input)))
	if token == "" {
		return domain.ParsedUnit{Unit: domain.UnitPcs, OriginalText: input, Confidence: missingUnitConfidence}
	}

	if u, ok := unitDictionary[strings.TrimSuffix(token, ".")]; ok {
		return domain.ParsedUnit{Unit: u, OriginalText: input, Confidence: exactUnitConfidence}
	}

	if m := compoundUnitRegex.FindStringSubmatch(token); m != nil {
		if u, ok := unitDictionary[m[1]]; ok {
			return domain.ParsedUnit{Unit: u, OriginalText: input, Confidence: compoundUnitConfidence}
		}
	}

	return domain.ParsedUnit{Unit: domain.UnitPcs, OriginalText: input, Confidence: unknownUnitConfidence}
}

// lookupUnit is ParseUnit without the pcs default
func lookupUnit(token string) (domain.Unit, bool) {
	u, ok := unitDictionary[strings.ToLower(strings.TrimSpace(textutil.StripDiacritics(token)))]
	return u, ok
}
