// Package store persists category rules, their usage counters and the
// unmapped category queue. Three backends share the domain.CategoryStore
// contract: memory (single process), sqlite (persisted across runs) and
// redis (shared by concurrent orchestrators).
package store

import (
	"github.com/pricefeed/backend/internal/domain"
)

// DefaultSampleCap bounds the sample products kept per unmapped category
const DefaultSampleCap = 5

func normalizeSampleCap(n int) int {
	if n <= 0 {
		return DefaultSampleCap
	}
	return n
}

func unmappedKey(shop, category string) string {
	return shop + "\x00" + category
}

// prependSample puts sample first, drops an older copy of it and caps the list
func prependSample(samples []string, sample string, sampleCap int) []string {
	if sample == "" {
		return samples
	}
	out := make([]string, 0, min(len(samples)+1, sampleCap))
	out = append(out, sample)
	for _, s := range samples {
		if len(out) >= sampleCap {
			break
		}
		if s != sample {
			out = append(out, s)
		}
	}
	return out
}

func cloneRule(r domain.CategoryRule) domain.CategoryRule {
	r.TargetPath = append([]string(nil), r.TargetPath...)
	return r
}

func cloneUnmapped(e domain.UnmappedCategory) domain.UnmappedCategory {
	e.SampleProducts = append([]string(nil), e.SampleProducts...)
	e.Suggestions = nil
	return e
}
