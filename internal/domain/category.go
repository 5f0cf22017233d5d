package domain

import "time"

// PatternType is the matching strategy of a category rule, tried in this order
type PatternType string

const (
	PatternExact   PatternType = "exact"
	PatternRegex   PatternType = "regex"
	PatternSynonym PatternType = "synonym"
	PatternFuzzy   PatternType = "fuzzy"
)

// Valid reports whether the pattern type is one of the known tiers
func (p PatternType) Valid() bool {
	switch p {
	case PatternExact, PatternRegex, PatternSynonym, PatternFuzzy:
		return true
	}
	return false
}

// RuleCreator records who introduced a rule
type RuleCreator string

const (
	CreatedBySystem   RuleCreator = "system"
	CreatedByAdmin    RuleCreator = "admin"
	CreatedByLearning RuleCreator = "learning"
)

// AnyShop marks a rule or synonym that applies to every retailer
const AnyShop = "*"

// OtherSlug is the slug of the reserved fallback bucket
const OtherSlug = "other"

// OtherPath returns the reserved fallback category path
func OtherPath() []string {
	return []string{"Other"}
}

// CategoryRule maps a vendor category pattern onto a canonical path
type CategoryRule struct {
	ID          string      `json:"id"`
	Shop        string      `json:"shop"`
	Pattern     string      `json:"pattern"`
	PatternType PatternType `json:"pattern_type"`
	TargetPath  []string    `json:"target_path"`
	Confidence  float64     `json:"confidence"`
	CreatedBy   RuleCreator `json:"created_by"`
	UsageCount  int64       `json:"usage_count"`
	Enabled     bool        `json:"enabled"`
	CreatedAt   time.Time   `json:"created_at"`
	UpdatedAt   time.Time   `json:"updated_at"`
}

// AppliesTo reports whether the rule is global or owned by shop
func (r CategoryRule) AppliesTo(shop string) bool {
	return r.Shop == AnyShop || r.Shop == "" || r.Shop == shop
}

// Synonym expands shop-specific vocabulary to a canonical term
type Synonym struct {
	Shop      string   `json:"shop"`
	Canonical string   `json:"canonical"`
	Variants  []string `json:"variants"`
}

// TaxonomyNode is one canonical category, root to leaf
type TaxonomyNode struct {
	Path    []string `json:"path"`
	Aliases []string `json:"aliases,omitempty"`
}

// MapInput is the category signal handed to the mapping engine
type MapInput struct {
	Shop             string `json:"shop" binding:"required"`
	OriginalCategory string `json:"original_category"`
	// FallbackCategory is tried when OriginalCategory does not resolve
	FallbackCategory string `json:"fallback_category,omitempty"`
	ProductName      string `json:"product_name"`
	BrandName        string `json:"brand_name"`
}

// CategoryMappingResult is the outcome of resolving a category signal
type CategoryMappingResult struct {
	Path         []string                `json:"path"`
	Slug         string                  `json:"slug"`
	Status       MappingStatus           `json:"status"`
	Confidence   float64                 `json:"confidence"`
	RuleID       string                  `json:"rule_id,omitempty"`
	MatchedBy    string                  `json:"matched_by,omitempty"`
	Similarity   float64                 `json:"similarity,omitempty"`
	Alternatives []CategoryMappingResult `json:"alternatives,omitempty"`
}

// UnmappedCategory aggregates category strings no tier could resolve.
// Keyed by (Shop, OriginalCategory).
type UnmappedCategory struct {
	Shop             string                  `json:"shop"`
	OriginalCategory string                  `json:"original_category"`
	SampleProducts   []string                `json:"sample_products"`
	Count            int64                   `json:"count"`
	FirstSeen        time.Time               `json:"first_seen"`
	LastSeen         time.Time               `json:"last_seen"`
	Suggestions      []CategoryMappingResult `json:"suggestions,omitempty"`
}
