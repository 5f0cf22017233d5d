package domain

import "time"

// Schema declares which raw fields a shop normalizer needs
type Schema struct {
	RequiredFields []string `json:"requiredFields"`
	OptionalFields []string `json:"optionalFields"`
	Description    string   `json:"description"`
}

// NormalizeOptions carries per-run context into a normalizer
type NormalizeOptions struct {
	SourceFile string
	FetchedAt  time.Time
}

// NormalizationResult is the outcome of normalizing one raw record
type NormalizationResult struct {
	Success        bool              `json:"success"`
	Product        *CanonicalProduct `json:"product,omitempty"`
	Errors         []string          `json:"errors,omitempty"`
	Warnings       []string          `json:"warnings,omitempty"`
	ProcessingTime time.Duration     `json:"processingTimeNs,omitempty"`
	LineNumber     int               `json:"lineNumber,omitempty"`
}

// FailedResult builds an unsuccessful result carrying the given errors
func FailedResult(errs ...string) NormalizationResult {
	return NormalizationResult{Success: false, Errors: errs}
}

// NormalizationStats aggregates results over a batch or a whole run
type NormalizationStats struct {
	Total            int                   `json:"total"`
	Successful       int                   `json:"successful"`
	Failed           int                   `json:"failed"`
	Mapped           int                   `json:"mapped"`
	Unmapped         int                   `json:"unmapped"`
	Batches          int                   `json:"batches"`
	CategoryCoverage map[string]int        `json:"categoryCoverage"`
	StatusCounts     map[MappingStatus]int `json:"statusCounts"`
	Elapsed          time.Duration         `json:"elapsedNs"`
}

// NewNormalizationStats returns empty stats with initialized histograms
func NewNormalizationStats() NormalizationStats {
	return NormalizationStats{
		CategoryCoverage: make(map[string]int),
		StatusCounts:     make(map[MappingStatus]int),
	}
}

// Record folds one result into the stats
func (s *NormalizationStats) Record(r NormalizationResult) {
	if s.CategoryCoverage == nil {
		s.CategoryCoverage = make(map[string]int)
	}
	if s.StatusCounts == nil {
		s.StatusCounts = make(map[MappingStatus]int)
	}

	s.Total++
	if !r.Success || r.Product == nil {
		s.Failed++
		return
	}

	s.Successful++
	s.StatusCounts[r.Product.MappingStatus]++
	if r.Product.MappingStatus == MappingUnmapped {
		s.Unmapped++
	} else {
		s.Mapped++
	}
	s.CategoryCoverage[r.Product.CategorySlug]++
}

// Merge adds other into s
func (s *NormalizationStats) Merge(other NormalizationStats) {
	if s.CategoryCoverage == nil {
		s.CategoryCoverage = make(map[string]int)
	}
	if s.StatusCounts == nil {
		s.StatusCounts = make(map[MappingStatus]int)
	}
	s.Total += other.Total
	s.Successful += other.Successful
	s.Failed += other.Failed
	s.Mapped += other.Mapped
	s.Unmapped += other.Unmapped
	s.Batches += other.Batches
	s.Elapsed += other.Elapsed
	for k, v := range other.CategoryCoverage {
		s.CategoryCoverage[k] += v
	}
	for k, v := range other.StatusCounts {
		s.StatusCounts[k] += v
	}
}
