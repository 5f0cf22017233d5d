package usecase

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/pricefeed/backend/internal/domain"
	"github.com/pricefeed/backend/internal/logger"
	"github.com/pricefeed/backend/internal/textutil"
)

// Default confidences per rule tier, used when a rule does not set one
const (
	defaultExactConfidence   = 1.0
	defaultRegexConfidence   = 0.9
	defaultSynonymConfidence = 0.85
	defaultFuzzyConfidence   = 0.8

	taxonomyLabelConfidence = 0.9  // base confidence of a fuzzy hit on a taxonomy label
	synonymExpansionFactor  = 0.95 // exact/regex hit reached through a synonym expansion
	fallbackParentFactor    = 0.9  // rule target resolved to its nearest known parent
	suggestionFloor         = 0.4  // minimum similarity for an unmapped suggestion
)

// noCategoryKey is the unmapped queue key for records without a category
const noCategoryKey = "(no category)"

// ruleNamespace seeds deterministic rule ids
var ruleNamespace = uuid.MustParse("6f1c7a52-3d0e-4f6b-9a55-2b8c1e0d4a91")

type matchMode string

const (
	modeCategory matchMode = "category"
	modeContent  matchMode = "content"
)

// MappingConfig holds configuration for the category mapping engine
type MappingConfig struct {
	FuzzyThreshold    float64
	MinimumConfidence float64
	MaxSuggestions    int
	EnableLearning    bool
	LearningThreshold int64
	CacheSize         int
}

// compiledRule is an enabled rule ready for matching
type compiledRule struct {
	rule     domain.CategoryRule
	norm     string
	variants []string
	re       *regexp.Regexp
}

type synonymEntry struct {
	shop      string
	canonical string
	variants  []string
}

// fuzzyCandidate is one scored label or fuzzy rule
type fuzzyCandidate struct {
	path       []string
	slug       string
	similarity float64
	confidence float64
	ruleID     string
	tokens     int
}

// MappingService resolves vendor category signals onto the canonical taxonomy
type MappingService struct {
	store        domain.CategoryStore
	taxonomy     *Taxonomy
	synonyms     []synonymEntry
	preprocessor *ContentPreprocessor
	config       MappingConfig
	log          logger.Logger
	now          func() time.Time

	mu    sync.RWMutex
	rules []compiledRule
	// generation counts reloads and keys the candidate cache
	generation uint64

	candidates *lru.Cache[string, []fuzzyCandidate]
}

// NewMappingService creates a new mapping engine. Call Reload or SeedRules
// before mapping so the rule snapshot reflects the store.
func NewMappingService(
	store domain.CategoryStore,
	taxonomy *Taxonomy,
	synonyms []domain.Synonym,
	config MappingConfig,
	log logger.Logger,
) *MappingService {
	if config.FuzzyThreshold <= 0 {
		config.FuzzyThreshold = 0.82 // Default similarity gate
	}
	if config.MinimumConfidence <= 0 {
		config.MinimumConfidence = 0.70
	}
	if config.MaxSuggestions <= 0 {
		config.MaxSuggestions = 5
	}
	if config.LearningThreshold <= 0 {
		config.LearningThreshold = 3
	}
	if config.CacheSize <= 0 {
		config.CacheSize = 2048
	}
	if taxonomy == nil {
		taxonomy = NewTaxonomy(nil)
	}
	if log == nil {
		log = logger.GetDefault()
	}
	log = log.With("component", "mapping")

	cache, err := lru.New[string, []fuzzyCandidate](config.CacheSize)
	if err != nil {
		// only fails for a non-positive size, which the default above rules out
		panic(err)
	}

	return &MappingService{
		store:        store,
		taxonomy:     taxonomy,
		synonyms:     compileSynonyms(synonyms),
		preprocessor: NewContentPreprocessor(log),
		config:       config,
		log:          log,
		now:          time.Now,
		candidates:   cache,
	}
}

// Config returns the effective configuration, defaults applied
func (s *MappingService) Config() MappingConfig {
	return s.config
}

// Taxonomy returns the canonical tree the engine maps onto
func (s *MappingService) Taxonomy() *Taxonomy {
	return s.taxonomy
}

// MapCategory resolves a category signal. Tiers run in order exact, regex,
// synonym, fuzzy over the vendor category, then over the fallback category;
// when both are absent or land in Other, the same tiers run over the product
// name and brand. A miss records the input in the unmapped queue and returns
// the Other bucket.
func (s *MappingService) MapCategory(ctx context.Context, in domain.MapInput) domain.CategoryMappingResult {
	category := textutil.Normalize(in.OriginalCategory)
	fallback := textutil.Normalize(in.FallbackCategory)
	if fallback == category {
		fallback = ""
	}

	var otherHit *domain.CategoryMappingResult
	for _, signal := range []string{category, fallback} {
		if signal == "" {
			continue
		}
		if res, ok := s.resolve(in.Shop, signal, modeCategory); ok {
			if res.Slug != domain.OtherSlug {
				s.recordUsage(ctx, res.RuleID)
				return res
			}
			if otherHit == nil {
				otherHit = &res
			}
		}
	}

	content := s.preprocessor.Preprocess(in.ProductName, in.BrandName)
	if content != "" {
		if res, ok := s.resolve(in.Shop, content, modeContent); ok && res.Slug != domain.OtherSlug {
			res.MatchedBy = string(modeContent) + ":" + res.MatchedBy
			s.recordUsage(ctx, res.RuleID)
			return res
		}
	}

	// A rule that deliberately targets Other still beats an unmapped result
	if otherHit != nil {
		s.recordUsage(ctx, otherHit.RuleID)
		return *otherHit
	}

	if fallback != "" {
		category = fallback
	}
	return s.unmapped(ctx, in, category, content)
}

// snapshot returns the current rules with the generation they belong to
func (s *MappingService) snapshot() ([]compiledRule, uint64) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.rules, s.generation
}

func (s *MappingService) resolve(shop, text string, mode matchMode) (domain.CategoryMappingResult, bool) {
	rules, gen := s.snapshot()

	if res, ok := matchExact(rules, shop, text); ok {
		return s.ruleResult(res, "exact", 1), true
	}
	if res, ok := matchRegex(rules, shop, text); ok {
		return s.ruleResult(res, "regex", 1), true
	}
	if res, ok := s.matchSynonym(rules, shop, text); ok {
		return s.ruleResult(res, "synonym", synonymExpansionFactor), true
	}
	return s.matchFuzzy(rules, gen, shop, text, mode)
}

func matchExact(rules []compiledRule, shop, text string) (domain.CategoryRule, bool) {
	for _, r := range rules {
		if r.rule.PatternType == domain.PatternExact && r.rule.AppliesTo(shop) && r.norm == text {
			return r.rule, true
		}
	}
	return domain.CategoryRule{}, false
}

func matchRegex(rules []compiledRule, shop, text string) (domain.CategoryRule, bool) {
	for _, r := range rules {
		if r.rule.PatternType == domain.PatternRegex && r.rule.AppliesTo(shop) && r.re.MatchString(text) {
			return r.rule, true
		}
	}
	return domain.CategoryRule{}, false
}

// matchSynonym expands text through the dictionary and re-checks the exact
// and regex tiers, then tries synonym rules by variant.
func (s *MappingService) matchSynonym(rules []compiledRule, shop, text string) (domain.CategoryRule, bool) {
	for _, expanded := range s.expand(shop, text) {
		if r, ok := matchExact(rules, shop, expanded); ok {
			return r, true
		}
		if r, ok := matchRegex(rules, shop, expanded); ok {
			return r, true
		}
	}

	for _, r := range rules {
		if r.rule.PatternType != domain.PatternSynonym || !r.rule.AppliesTo(shop) {
			continue
		}
		for _, v := range r.variants {
			if textutil.ContainsPhrase(text, v) {
				return r.rule, true
			}
		}
	}
	return domain.CategoryRule{}, false
}

// expand returns text rewritten with each applicable synonym, in dictionary order
func (s *MappingService) expand(shop, text string) []string {
	var out []string
	seen := map[string]bool{text: true}
	for _, entry := range s.synonyms {
		if entry.shop != domain.AnyShop && entry.shop != shop {
			continue
		}
		for _, v := range entry.variants {
			if !textutil.ContainsPhrase(text, v) {
				continue
			}
			expanded := textutil.ReplacePhrase(text, v, entry.canonical)
			if !seen[expanded] {
				seen[expanded] = true
				out = append(out, expanded)
			}
		}
	}
	return out
}

func (s *MappingService) matchFuzzy(rules []compiledRule, gen uint64, shop, text string, mode matchMode) (domain.CategoryMappingResult, bool) {
	candidates := s.rankCandidates(rules, gen, shop, text, mode)
	if len(candidates) == 0 {
		return domain.CategoryMappingResult{}, false
	}

	best := candidates[0]
	if best.similarity < s.config.FuzzyThreshold || best.confidence < s.config.MinimumConfidence {
		return domain.CategoryMappingResult{}, false
	}

	res := s.fuzzyResult(best)
	for _, alt := range candidates[1:] {
		if len(res.Alternatives) >= s.config.MaxSuggestions-1 {
			break
		}
		if alt.similarity >= s.config.FuzzyThreshold {
			res.Alternatives = append(res.Alternatives, s.fuzzyResult(alt))
		}
	}
	return res, true
}

// rankCandidates scores every taxonomy label and fuzzy rule against text.
// In content mode similarity is the share of a label's tokens found in the
// product text. The best maxSuggestions candidates per slug are cached
// under the generation of the rules they were ranked against.
func (s *MappingService) rankCandidates(rules []compiledRule, gen uint64, shop, text string, mode matchMode) []fuzzyCandidate {
	key := fmt.Sprintf("%d|%s|%s|%s", gen, mode, shop, text)
	if cached, ok := s.candidates.Get(key); ok {
		return cached
	}

	var contentTokens []string
	if mode == modeContent {
		contentTokens = textutil.Tokenize(text)
	}
	score := func(label string) (float64, int) {
		if mode == modeContent {
			labelTokens := textutil.Tokenize(label)
			return textutil.TokenCoverage(labelTokens, contentTokens), len(labelTokens)
		}
		return textutil.Similarity(text, label), len(strings.Fields(label))
	}

	bySlug := make(map[string]fuzzyCandidate)
	consider := func(c fuzzyCandidate) {
		if c.similarity <= 0 {
			return
		}
		if prev, ok := bySlug[c.slug]; ok && !candidateLess(c, prev) {
			return
		}
		bySlug[c.slug] = c
	}

	for _, label := range s.taxonomy.labels {
		sim, tokens := score(label.text)
		consider(fuzzyCandidate{
			path:       label.path,
			slug:       label.slug,
			similarity: sim,
			confidence: sim * taxonomyLabelConfidence,
			tokens:     tokens,
		})
	}

	for _, r := range rules {
		if r.rule.PatternType != domain.PatternFuzzy || !r.rule.AppliesTo(shop) {
			continue
		}
		sim, tokens := score(r.norm)
		path, parent := s.taxonomy.Resolve(r.rule.TargetPath)
		conf := sim * r.rule.Confidence
		if parent {
			conf *= fallbackParentFactor
		}
		consider(fuzzyCandidate{
			path:       path,
			slug:       textutil.PathSlug(path),
			similarity: sim,
			confidence: conf,
			ruleID:     r.rule.ID,
			tokens:     tokens,
		})
	}

	ranked := make([]fuzzyCandidate, 0, len(bySlug))
	for _, c := range bySlug {
		ranked = append(ranked, c)
	}
	sort.Slice(ranked, func(i, j int) bool { return candidateLess(ranked[i], ranked[j]) })
	if len(ranked) > s.config.MaxSuggestions {
		ranked = ranked[:s.config.MaxSuggestions]
	}

	s.candidates.Add(key, ranked)
	return ranked
}

// candidateLess orders by similarity, confidence, label specificity, depth, then slug
func candidateLess(a, b fuzzyCandidate) bool {
	if a.similarity != b.similarity {
		return a.similarity > b.similarity
	}
	if a.confidence != b.confidence {
		return a.confidence > b.confidence
	}
	if a.tokens != b.tokens {
		return a.tokens > b.tokens
	}
	if len(a.path) != len(b.path) {
		return len(a.path) > len(b.path)
	}
	return a.slug < b.slug
}

func (s *MappingService) ruleResult(rule domain.CategoryRule, tier string, factor float64) domain.CategoryMappingResult {
	path, parent := s.taxonomy.Resolve(rule.TargetPath)
	status := domain.MappingOK
	confidence := rule.Confidence * factor
	if parent {
		status = domain.MappingFallbackParent
		confidence *= fallbackParentFactor
	}
	return domain.CategoryMappingResult{
		Path:       append([]string(nil), path...),
		Slug:       textutil.PathSlug(path),
		Status:     status,
		Confidence: clamp01(confidence),
		RuleID:     rule.ID,
		MatchedBy:  tier,
	}
}

// fuzzyResult is always fuzzy-match, however high the similarity
func (s *MappingService) fuzzyResult(c fuzzyCandidate) domain.CategoryMappingResult {
	return domain.CategoryMappingResult{
		Path:       append([]string(nil), c.path...),
		Slug:       c.slug,
		Status:     domain.MappingFuzzy,
		Confidence: clamp01(c.confidence),
		RuleID:     c.ruleID,
		MatchedBy:  "fuzzy",
		Similarity: c.similarity,
	}
}

func (s *MappingService) unmapped(ctx context.Context, in domain.MapInput, category, content string) domain.CategoryMappingResult {
	// The record's own category is the queue key when a hint was tried first
	key := strings.TrimSpace(in.FallbackCategory)
	if key == "" {
		key = strings.TrimSpace(in.OriginalCategory)
	}
	if key == "" {
		key = noCategoryKey
	}

	if _, err := s.store.RecordUnmapped(ctx, in.Shop, key, strings.TrimSpace(in.ProductName), s.now()); err != nil {
		s.log.Warn("failed to record unmapped category", "shop", in.Shop, "category", key, "error", err)
	}
	s.log.Debug("category unmapped", "shop", in.Shop, "category", key, "product", in.ProductName)

	return domain.CategoryMappingResult{
		Path:         domain.OtherPath(),
		Slug:         domain.OtherSlug,
		Status:       domain.MappingUnmapped,
		Confidence:   0,
		Alternatives: s.suggest(in.Shop, category, content),
	}
}

// suggest ranks fuzzy candidates for a miss, category text first
func (s *MappingService) suggest(shop, category, content string) []domain.CategoryMappingResult {
	rules, gen := s.snapshot()

	var ranked []fuzzyCandidate
	if category != "" {
		ranked = s.rankCandidates(rules, gen, shop, category, modeCategory)
	}
	if len(ranked) == 0 && content != "" {
		ranked = s.rankCandidates(rules, gen, shop, content, modeContent)
	}

	var out []domain.CategoryMappingResult
	for _, c := range ranked {
		if c.similarity < suggestionFloor || c.slug == domain.OtherSlug {
			continue
		}
		out = append(out, s.fuzzyResult(c))
	}
	return out
}

func (s *MappingService) recordUsage(ctx context.Context, ruleID string) {
	if ruleID == "" {
		return
	}
	if err := s.store.IncrementUsage(ctx, ruleID, 1); err != nil {
		s.log.Warn("failed to increment rule usage", "rule_id", ruleID, "error", err)
	}
}

// UnmappedQueue returns the unmapped categories, most frequent first.
// With learning enabled, entries seen at least LearningThreshold times carry
// ranked suggestions for promotion.
func (s *MappingService) UnmappedQueue(ctx context.Context) ([]domain.UnmappedCategory, error) {
	entries, err := s.store.ListUnmapped(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing unmapped categories: %w", err)
	}

	sort.SliceStable(entries, func(i, j int) bool {
		if entries[i].Count != entries[j].Count {
			return entries[i].Count > entries[j].Count
		}
		if entries[i].Shop != entries[j].Shop {
			return entries[i].Shop < entries[j].Shop
		}
		return entries[i].OriginalCategory < entries[j].OriginalCategory
	})

	if !s.config.EnableLearning {
		return entries, nil
	}
	for i := range entries {
		e := &entries[i]
		if e.Count < s.config.LearningThreshold {
			continue
		}
		category := ""
		if e.OriginalCategory != noCategoryKey {
			category = textutil.Normalize(e.OriginalCategory)
		}
		content := ""
		if len(e.SampleProducts) > 0 {
			content = s.preprocessor.Preprocess(e.SampleProducts[0], "")
		}
		e.Suggestions = s.suggest(e.Shop, category, content)
	}
	return entries, nil
}

// Rules lists rules that apply to shop, or every rule when shop is empty
func (s *MappingService) Rules(ctx context.Context, shop string) ([]domain.CategoryRule, error) {
	rules, err := s.store.ListRules(ctx, shop)
	if err != nil {
		return nil, fmt.Errorf("listing rules: %w", err)
	}
	sortRules(rules)
	return rules, nil
}

// UnusedRules lists enabled rules that never resolved a product
func (s *MappingService) UnusedRules(ctx context.Context, shop string) ([]domain.CategoryRule, error) {
	rules, err := s.Rules(ctx, shop)
	if err != nil {
		return nil, err
	}
	unused := rules[:0]
	for _, r := range rules {
		if r.Enabled && r.UsageCount == 0 {
			unused = append(unused, r)
		}
	}
	return unused, nil
}

// UpsertRule validates, stores and activates a rule
func (s *MappingService) UpsertRule(ctx context.Context, rule domain.CategoryRule) (domain.CategoryRule, error) {
	prepared, err := s.prepareRule(rule)
	if err != nil {
		return domain.CategoryRule{}, err
	}
	saved, err := s.store.UpsertRule(ctx, prepared)
	if err != nil {
		return domain.CategoryRule{}, fmt.Errorf("storing rule: %w", err)
	}
	if err := s.Reload(ctx); err != nil {
		return saved, err
	}
	if s.taxonomy.Len() > 0 && textutil.PathSlug(saved.TargetPath) != domain.OtherSlug && !s.taxonomy.Contains(saved.TargetPath) {
		s.log.Warn("rule target is not a taxonomy node, matches resolve to its nearest known parent",
			"rule_id", saved.ID, "target", strings.Join(saved.TargetPath, " > "))
	}
	s.log.Info("rule upserted", "rule_id", saved.ID, "shop", saved.Shop, "type", saved.PatternType, "target", strings.Join(saved.TargetPath, " > "))
	return saved, nil
}

// SeedRules stores rules whose id is not yet known, keeping existing ones
// and their usage counters untouched. Returns the number of rules added.
func (s *MappingService) SeedRules(ctx context.Context, rules []domain.CategoryRule) (int, error) {
	added := 0
	for _, rule := range rules {
		if rule.CreatedBy == "" {
			rule.CreatedBy = domain.CreatedBySystem
		}
		rule.Enabled = true
		prepared, err := s.prepareRule(rule)
		if err != nil {
			return added, fmt.Errorf("seed rule %q: %w", rule.Pattern, err)
		}

		_, err = s.store.GetRule(ctx, prepared.ID)
		if err == nil {
			continue
		}
		if !errors.Is(err, domain.ErrRuleNotFound) {
			return added, fmt.Errorf("checking seed rule %q: %w", rule.Pattern, err)
		}
		if _, err := s.store.UpsertRule(ctx, prepared); err != nil {
			return added, fmt.Errorf("storing seed rule %q: %w", rule.Pattern, err)
		}
		added++
	}

	if err := s.Reload(ctx); err != nil {
		return added, err
	}
	s.log.Info("seed rules applied", "added", added, "total", len(rules))
	return added, nil
}

// SetRuleEnabled toggles a rule without touching its usage history
func (s *MappingService) SetRuleEnabled(ctx context.Context, id string, enabled bool) error {
	if err := s.store.SetRuleEnabled(ctx, id, enabled); err != nil {
		return fmt.Errorf("setting rule %s enabled=%t: %w", id, enabled, err)
	}
	return s.Reload(ctx)
}

// PromoteUnmapped turns an unmapped (shop, category) into an exact rule
func (s *MappingService) PromoteUnmapped(
	ctx context.Context,
	shop, category string,
	targetPath []string,
	createdBy domain.RuleCreator,
) (domain.CategoryRule, error) {
	category = strings.TrimSpace(category)
	if category == "" || category == noCategoryKey {
		return domain.CategoryRule{}, fmt.Errorf("%w: a category text is required for promotion", domain.ErrInvalidRule)
	}
	if createdBy == "" {
		createdBy = domain.CreatedByAdmin
	}
	if shop == "" {
		shop = domain.AnyShop
	}

	return s.UpsertRule(ctx, domain.CategoryRule{
		Shop:        shop,
		Pattern:     category,
		PatternType: domain.PatternExact,
		TargetPath:  targetPath,
		Confidence:  defaultExactConfidence,
		CreatedBy:   createdBy,
		Enabled:     true,
	})
}

// Reload rebuilds the rule snapshot from the store and drops cached candidates
func (s *MappingService) Reload(ctx context.Context) error {
	stored, err := s.store.ListRules(ctx, "")
	if err != nil {
		return fmt.Errorf("loading rules: %w", err)
	}

	sortRules(stored)
	compiled := make([]compiledRule, 0, len(stored))
	for _, r := range stored {
		if !r.Enabled {
			continue
		}
		c, err := compileRule(r)
		if err != nil {
			s.log.Warn("skipping invalid rule", "rule_id", r.ID, "pattern", r.Pattern, "error", err)
			continue
		}
		compiled = append(compiled, c)
	}

	s.mu.Lock()
	s.rules = compiled
	s.generation++
	s.mu.Unlock()
	// older generations can no longer be hit; purging only frees them
	s.candidates.Purge()

	s.log.Debug("rules reloaded", "enabled", len(compiled), "stored", len(stored))
	return nil
}

// RuleID derives the deterministic id of a rule from its identity fields
func RuleID(shop string, patternType domain.PatternType, pattern string) string {
	if shop == "" {
		shop = domain.AnyShop
	}
	if patternType != domain.PatternRegex {
		pattern = textutil.Normalize(pattern)
	}
	return uuid.NewSHA1(ruleNamespace, []byte(shop+"|"+string(patternType)+"|"+pattern)).String()
}

func (s *MappingService) prepareRule(rule domain.CategoryRule) (domain.CategoryRule, error) {
	rule.Pattern = strings.TrimSpace(rule.Pattern)
	if !rule.PatternType.Valid() {
		return rule, fmt.Errorf("%w: unknown pattern type %q", domain.ErrInvalidRule, rule.PatternType)
	}
	if rule.Pattern == "" {
		return rule, fmt.Errorf("%w: pattern is required", domain.ErrInvalidRule)
	}
	if len(rule.TargetPath) == 0 {
		return rule, fmt.Errorf("%w: target path is required", domain.ErrInvalidRule)
	}
	target := make([]string, 0, len(rule.TargetPath))
	for _, seg := range rule.TargetPath {
		seg = strings.TrimSpace(seg)
		if seg == "" {
			return rule, fmt.Errorf("%w: target path has an empty segment", domain.ErrInvalidRule)
		}
		target = append(target, seg)
	}
	rule.TargetPath = target

	if rule.Confidence < 0 || rule.Confidence > 1 {
		return rule, fmt.Errorf("%w: confidence %.2f outside [0,1]", domain.ErrInvalidRule, rule.Confidence)
	}
	if rule.Confidence == 0 {
		rule.Confidence = defaultConfidence(rule.PatternType)
	}
	if rule.Shop == "" {
		rule.Shop = domain.AnyShop
	}
	if rule.CreatedBy == "" {
		rule.CreatedBy = domain.CreatedByAdmin
	}
	if _, err := compileRule(rule); err != nil {
		return rule, err
	}
	if rule.ID == "" {
		rule.ID = RuleID(rule.Shop, rule.PatternType, rule.Pattern)
	}

	now := s.now().UTC()
	if rule.CreatedAt.IsZero() {
		rule.CreatedAt = now
	}
	rule.UpdatedAt = now
	return rule, nil
}

func compileRule(r domain.CategoryRule) (compiledRule, error) {
	c := compiledRule{rule: r}
	switch r.PatternType {
	case domain.PatternRegex:
		re, err := regexp.Compile("(?i)" + r.Pattern)
		if err != nil {
			return c, fmt.Errorf("%w: %v", domain.ErrInvalidRule, err)
		}
		c.re = re
	case domain.PatternSynonym:
		for _, v := range strings.FieldsFunc(r.Pattern, func(r rune) bool { return r == '|' || r == ',' }) {
			if n := textutil.Normalize(v); n != "" {
				c.variants = append(c.variants, n)
			}
		}
		if len(c.variants) == 0 {
			return c, fmt.Errorf("%w: synonym rule has no variants", domain.ErrInvalidRule)
		}
		c.norm = strings.Join(c.variants, " ")
	default:
		c.norm = textutil.Normalize(r.Pattern)
		if c.norm == "" {
			return c, fmt.Errorf("%w: pattern %q normalizes to nothing", domain.ErrInvalidRule, r.Pattern)
		}
	}
	return c, nil
}

// sortRules puts shop-specific rules first, then higher confidence, then id
func sortRules(rules []domain.CategoryRule) {
	sort.SliceStable(rules, func(i, j int) bool {
		si, sj := rules[i].Shop != domain.AnyShop, rules[j].Shop != domain.AnyShop
		if si != sj {
			return si
		}
		if rules[i].Confidence != rules[j].Confidence {
			return rules[i].Confidence > rules[j].Confidence
		}
		return rules[i].ID < rules[j].ID
	})
}

func compileSynonyms(in []domain.Synonym) []synonymEntry {
	out := make([]synonymEntry, 0, len(in))
	for _, syn := range in {
		canonical := textutil.Normalize(syn.Canonical)
		if canonical == "" {
			continue
		}
		shop := syn.Shop
		if shop == "" {
			shop = domain.AnyShop
		}
		entry := synonymEntry{shop: shop, canonical: canonical}
		for _, v := range syn.Variants {
			if n := textutil.Normalize(v); n != "" && n != canonical {
				entry.variants = append(entry.variants, n)
			}
		}
		out = append(out, entry)
	}
	return out
}

func defaultConfidence(t domain.PatternType) float64 {
	switch t {
	case domain.PatternExact:
		return defaultExactConfidence
	case domain.PatternRegex:
		return defaultRegexConfidence
	case domain.PatternSynonym:
		return defaultSynonymConfidence
	default:
		return defaultFuzzyConfidence
	}
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
