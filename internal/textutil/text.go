// Package textutil holds the locale helpers shared by the parser, the
// mapping engine and the normalizers: diacritic stripping, slugs,
// tokenization and string similarity.
package textutil

import (
	"regexp"
	"strings"
	"unicode"

	"github.com/gosimple/slug"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

var (
	nonAlphanumericRegex = regexp.MustCompile(`[^a-z0-9]+`)
	ampersandRegex       = regexp.MustCompile(`\s*&\s*`)
)

// stopWords are Romanian and English connectives that carry no category signal
var stopWords = map[string]bool{
	"si": true, "sau": true, "de": true, "cu": true, "din": true, "la": true,
	"pentru": true, "pe": true, "in": true, "al": true, "ale": true, "fara": true,
	"a": true, "the": true, "and": true, "of": true, "for": true, "with": true,
}

// StripDiacritics removes combining marks: "Pâine și ouă" -> "Paine si oua"
func StripDiacritics(s string) string {
	// transform.Chain keeps state, so each call builds its own chain
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	result, _, err := transform.String(t, s)
	if err != nil {
		return s
	}
	return result
}

// Normalize lowercases, strips diacritics and collapses every run of
// non-alphanumerics into one space
func Normalize(s string) string {
	if s == "" {
		return ""
	}
	result := strings.ToLower(StripDiacritics(s))
	result = nonAlphanumericRegex.ReplaceAllString(result, " ")
	return strings.TrimSpace(result)
}

// Tokenize splits s into normalized tokens.
// Drops stop words, single characters and pure numbers.
func Tokenize(s string) []string {
	words := strings.Fields(Normalize(s))

	tokens := make([]string, 0, len(words))
	for _, word := range words {
		if len(word) <= 1 || stopWords[word] || isNumeric(word) {
			continue
		}
		tokens = append(tokens, word)
	}
	return tokens
}

// Slugify builds a URL-safe slug. Slugify(Slugify(s)) == Slugify(s).
func Slugify(s string) string {
	s = ampersandRegex.ReplaceAllString(s, " si ")
	return slug.Make(StripDiacritics(s))
}

// PathSlug joins the slugs of each path segment with "/"
func PathSlug(path []string) string {
	parts := make([]string, 0, len(path))
	for _, segment := range path {
		if s := Slugify(segment); s != "" {
			parts = append(parts, s)
		}
	}
	return strings.Join(parts, "/")
}

func isNumeric(s string) bool {
	for _, c := range s {
		if c < '0' || c > '9' {
			return false
		}
	}
	return len(s) > 0
}
