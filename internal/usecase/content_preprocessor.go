package usecase

import (
	"regexp"
	"strings"

	"github.com/pricefeed/backend/internal/logger"
	"github.com/pricefeed/backend/internal/textutil"
)

// ContentPreprocessor reduces a product title to the noun phrase that
// carries category signal, for the content fallback tier
type ContentPreprocessor struct {
	log logger.Logger
}

// Compiled regex patterns for content preprocessing. Input is lowercased
// and diacritic-free by the time these run.
var (
	// Matches multipack sizes like "6x330ml", "2 x 1,5 l"
	multipackPattern = regexp.MustCompile(`\b\d+\s*[x×*]\s*\d+(?:[.,]\d+)?\s*(?:kg|g|gr|grame|ml|cl|l|litri|litru)\b`)

	// Matches sizes like "500g", "1,5 kg", "330 ml", "2l"
	contentSizePattern = regexp.MustCompile(`\b\d+(?:[.,]\d+)?\s*(?:kilograme|kg|grame|gr|g|mililitri|ml|cl|litri|litru|l)\b`)

	// Matches piece counts like "10 buc", "6 bucati", "3 pcs"
	pieceCountPattern = regexp.MustCompile(`\b\d+\s*(?:bucati|bucata|buc|pcs|piese|bc)\b`)

	// Matches percentages like "3,5%", "80 %"
	percentPattern = regexp.MustCompile(`\d+(?:[.,]\d+)?\s*%`)
)

// contentNoiseWords are marketing and packaging terms with no category signal
var contentNoiseWords = map[string]bool{
	// Marketing
	"promo": true, "promotie": true, "oferta": true, "nou": true, "noua": true,
	"reducere": true, "gratis": true, "extra": true, "premium": true, "clasic": true,
	"bonus": true, "new": true, "family": true, "pack": true, "economic": true,
	"traditional": true,
	// Packaging
	"punga": true, "cutie": true, "sticla": true, "doza": true, "borcan": true,
	"caserola": true, "pet": true, "bax": true,
}

// NewContentPreprocessor creates a new content preprocessor
func NewContentPreprocessor(log logger.Logger) *ContentPreprocessor {
	if log == nil {
		log = logger.GetDefault()
	}
	return &ContentPreprocessor{log: log}
}

// Preprocess returns the normalized product text for content matching.
// Size, pack and percentage tokens and marketing noise are removed; the
// brand is appended when it is not already part of the name.
func (p *ContentPreprocessor) Preprocess(productName, brand string) string {
	name := strings.ToLower(textutil.StripDiacritics(productName))

	// Step 1: Remove sizes, multipack first so "6x330ml" goes as a whole
	cleaned := multipackPattern.ReplaceAllString(name, " ")
	cleaned = contentSizePattern.ReplaceAllString(cleaned, " ")

	// Step 2: Remove piece counts and percentages
	cleaned = pieceCountPattern.ReplaceAllString(cleaned, " ")
	cleaned = percentPattern.ReplaceAllString(cleaned, " ")

	// Step 3: Normalize and drop noise words
	cleaned = removeContentNoise(textutil.Normalize(cleaned))

	// Step 4: Append the brand unless already present
	if b := textutil.Normalize(brand); b != "" && !textutil.ContainsPhrase(cleaned, b) {
		cleaned = strings.TrimSpace(cleaned + " " + b)
	}

	p.log.Debug("content preprocessed", "input", productName, "output", cleaned)
	return cleaned
}

func removeContentNoise(s string) string {
	words := strings.Fields(s)
	kept := words[:0]
	for _, w := range words {
		if !contentNoiseWords[w] {
			kept = append(kept, w)
		}
	}
	return strings.Join(kept, " ")
}
