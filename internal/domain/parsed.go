package domain

// Unit is the closed set of pack units a product can be measured in
type Unit string

const (
	UnitKg  Unit = "kg"
	UnitG   Unit = "g"
	UnitL   Unit = "l"
	UnitMl  Unit = "ml"
	UnitPcs Unit = "pcs"
)

// IsWeight reports whether the unit converts to grams
func (u Unit) IsWeight() bool {
	return u == UnitKg || u == UnitG
}

// IsVolume reports whether the unit converts to millilitres
func (u Unit) IsVolume() bool {
	return u == UnitL || u == UnitMl
}

// ParsedPrice is a price extracted from free text or a vendor number
type ParsedPrice struct {
	Value        float64 `json:"value"`
	Currency     string  `json:"currency"`
	OriginalText string  `json:"originalText"`
	Confidence   float64 `json:"confidence"` // 0-1
}

// ParsedUnit is a unit token mapped onto the Unit enum
type ParsedUnit struct {
	Unit         Unit    `json:"unit"`
	OriginalText string  `json:"originalText"`
	Confidence   float64 `json:"confidence"`
}

// ParsedSize is a pack size with base-unit conversions.
// TotalGrams is set for weights, TotalMl for volumes, neither for piece counts.
type ParsedSize struct {
	Size         float64  `json:"size"`
	Unit         Unit     `json:"unit"`
	Count        int      `json:"count"`
	TotalGrams   *float64 `json:"totalGrams,omitempty"`
	TotalMl      *float64 `json:"totalMl,omitempty"`
	OriginalText string   `json:"originalText"`
	Confidence   float64  `json:"confidence"`
}

// UnitPrice is a price per kilogram, litre or piece, e.g. "RON/kg"
type UnitPrice struct {
	Value        float64 `json:"value"`
	Unit         string  `json:"unit"`
	OriginalText string  `json:"originalText,omitempty"`
	Confidence   float64 `json:"confidence"`
}
