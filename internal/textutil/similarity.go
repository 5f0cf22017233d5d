package textutil

import "strings"

// Similarity scores two labels in [0,1].
// It is the larger of the normalized Levenshtein ratio over the whole
// strings and the Dice coefficient over their token sets, where tokens of
// four or more characters within edit distance 1 count as equal.
func Similarity(a, b string) float64 {
	na, nb := Normalize(a), Normalize(b)
	if na == "" || nb == "" {
		return 0
	}
	if na == nb {
		return 1
	}

	ratio := levenshteinRatio(na, nb)
	dice := tokenDice(Tokenize(na), Tokenize(nb))
	if dice > ratio {
		return dice
	}
	return ratio
}

// TokenCoverage returns the fraction of needle tokens found in haystack
func TokenCoverage(needle, haystack []string) float64 {
	if len(needle) == 0 || len(haystack) == 0 {
		return 0
	}
	found := 0
	for _, n := range needle {
		for _, h := range haystack {
			if FuzzyTokenMatch(n, h, 1) {
				found++
				break
			}
		}
	}
	return float64(found) / float64(len(needle))
}

// ContainsPhrase reports whether phrase occurs in text on token boundaries.
// Both arguments are expected to be Normalize-d already.
func ContainsPhrase(text, phrase string) bool {
	if phrase == "" {
		return false
	}
	return strings.Contains(" "+text+" ", " "+phrase+" ")
}

// ReplacePhrase substitutes phrase with replacement on token boundaries
func ReplacePhrase(text, phrase, replacement string) string {
	if phrase == "" {
		return text
	}
	padded := strings.ReplaceAll(" "+text+" ", " "+phrase+" ", " "+replacement+" ")
	return strings.Join(strings.Fields(padded), " ")
}

// FuzzyTokenMatch checks if two tokens are similar within the edit distance threshold
func FuzzyTokenMatch(token1, token2 string, threshold int) bool {
	if token1 == token2 {
		return true
	}

	// Only apply fuzzy matching to tokens >= 4 chars to avoid false positives
	if len(token1) < 4 || len(token2) < 4 {
		return false
	}

	lenDiff := len(token1) - len(token2)
	if lenDiff < 0 {
		lenDiff = -lenDiff
	}
	if lenDiff > threshold {
		return false
	}

	return Levenshtein(token1, token2) <= threshold
}

// Levenshtein calculates the edit distance between two strings
func Levenshtein(s1, s2 string) int {
	r1 := []rune(s1)
	r2 := []rune(s2)
	m := len(r1)
	n := len(r2)
	if m == 0 {
		return n
	}
	if n == 0 {
		return m
	}

	// Two rows instead of the full matrix
	prev := make([]int, n+1)
	curr := make([]int, n+1)
	for j := 0; j <= n; j++ {
		prev[j] = j
	}

	for i := 1; i <= m; i++ {
		curr[0] = i
		for j := 1; j <= n; j++ {
			cost := 0
			if r1[i-1] != r2[j-1] {
				cost = 1
			}
			curr[j] = min(
				prev[j]+1,      // deletion
				curr[j-1]+1,    // insertion
				prev[j-1]+cost, // substitution
			)
		}
		prev, curr = curr, prev
	}

	return prev[n]
}

func levenshteinRatio(a, b string) float64 {
	longest := max(len([]rune(a)), len([]rune(b)))
	if longest == 0 {
		return 0
	}
	return 1 - float64(Levenshtein(a, b))/float64(longest)
}

func tokenDice(a, b []string) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	used := make([]bool, len(b))
	matched := 0
	for _, ta := range a {
		for j, tb := range b {
			if !used[j] && FuzzyTokenMatch(ta, tb, 1) {
				used[j] = true
				matched++
				break
			}
		}
	}
	return 2 * float64(matched) / float64(len(a)+len(b))
}
