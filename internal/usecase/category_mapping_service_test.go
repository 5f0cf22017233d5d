package usecase

import (
	"context"
	"errors"
	"math"
	"reflect"
	"testing"
	"time"

	"github.com/pricefeed/backend/internal/domain"
	"github.com/pricefeed/backend/internal/logger"
)

var testTaxonomyNodes = []domain.TaxonomyNode{
	{Path: []string{"Lactate și ouă", "Lapte"}},
	{Path: []string{"Lactate și ouă", "Brânzeturi"}, Aliases: []string{"branza"}},
	{Path: []string{"Băuturi", "Apă"}},
	{Path: []string{"Băuturi", "Bere"}},
	{Path: []string{"Fructe și legume", "Fructe"}},
}

var testSynonyms = []domain.Synonym{
	{Shop: domain.AnyShop, Canonical: "lactate", Variants: []string{"produse lactate", "dairy"}},
}

func testSeedRules() []domain.CategoryRule {
	return []domain.CategoryRule{
		{Shop: domain.AnyShop, Pattern: "Lapte UHT", PatternType: domain.PatternExact, TargetPath: []string{"Lactate și ouă", "Lapte"}},
		{Shop: domain.AnyShop, Pattern: "^lapte", PatternType: domain.PatternRegex, TargetPath: []string{"Lactate și ouă", "Lapte"}},
		{Shop: domain.AnyShop, Pattern: "lactate", PatternType: domain.PatternExact, TargetPath: []string{"Lactate și ouă"}},
		{Shop: domain.AnyShop, Pattern: "bauturi racoritoare|soft drinks", PatternType: domain.PatternSynonym, TargetPath: []string{"Băuturi", "Sucuri"}},
		{Shop: domain.AnyShop, Pattern: "Sucuri", PatternType: domain.PatternExact, TargetPath: []string{"Băuturi", "Sucuri"}},
		{Shop: domain.AnyShop, Pattern: "fructe proaspete", PatternType: domain.PatternFuzzy, TargetPath: []string{"Fructe și legume", "Fructe"}},
		{Shop: "carrefour", Pattern: "Diverse", PatternType: domain.PatternExact, TargetPath: domain.OtherPath()},
	}
}

func newTestMappingService(t *testing.T, config MappingConfig) (*MappingService, *mockCategoryStore) {
	t.Helper()
	store := newMockCategoryStore()
	svc := NewMappingService(store, NewTaxonomy(testTaxonomyNodes), testSynonyms, config, logger.Discard())
	svc.now = func() time.Time { return time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC) }
	if _, err := svc.SeedRules(context.Background(), testSeedRules()); err != nil {
		t.Fatalf("SeedRules() error = %v", err)
	}
	return svc, store
}

func approxEqual(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

func TestNewMappingService(t *testing.T) {
	t.Run("applies defaults for zero config", func(t *testing.T) {
		svc := NewMappingService(newMockCategoryStore(), nil, nil, MappingConfig{}, logger.Discard())
		cfg := svc.Config()
		if cfg.FuzzyThreshold != 0.82 {
			t.Errorf("FuzzyThreshold = %v, want 0.82 (default)", cfg.FuzzyThreshold)
		}
		if cfg.MinimumConfidence != 0.70 {
			t.Errorf("MinimumConfidence = %v, want 0.70 (default)", cfg.MinimumConfidence)
		}
		if cfg.MaxSuggestions != 5 {
			t.Errorf("MaxSuggestions = %d, want 5 (default)", cfg.MaxSuggestions)
		}
		if cfg.LearningThreshold != 3 {
			t.Errorf("LearningThreshold = %d, want 3 (default)", cfg.LearningThreshold)
		}
		if svc.Taxonomy() == nil {
			t.Error("Taxonomy() = nil, want empty taxonomy")
		}
	})

	t.Run("keeps provided thresholds", func(t *testing.T) {
		svc := NewMappingService(newMockCategoryStore(), nil, nil, MappingConfig{FuzzyThreshold: 0.6, MinimumConfidence: 0.5}, logger.Discard())
		if svc.Config().FuzzyThreshold != 0.6 || svc.Config().MinimumConfidence != 0.5 {
			t.Errorf("Config() = %+v, want thresholds 0.6/0.5", svc.Config())
		}
	})
}

func TestMapCategory_Tiers(t *testing.T) {
	svc, _ := newTestMappingService(t, MappingConfig{})
	ctx := context.Background()

	tests := []struct {
		name       string
		in         domain.MapInput
		wantPath   []string
		wantStatus domain.MappingStatus
		wantConf   float64
		wantBy     string
	}{
		{
			name:       "exact rule",
			in:         domain.MapInput{Shop: "carrefour", OriginalCategory: "Lapte UHT"},
			wantPath:   []string{"Lactate și ouă", "Lapte"},
			wantStatus: domain.MappingOK,
			wantConf:   1.0,
			wantBy:     "exact",
		},
		{
			name:       "exact rule ignores case and diacritics",
			in:         domain.MapInput{Shop: "carrefour", OriginalCategory: "  LAPTE  uht "},
			wantPath:   []string{"Lactate și ouă", "Lapte"},
			wantStatus: domain.MappingOK,
			wantConf:   1.0,
			wantBy:     "exact",
		},
		{
			name:       "regex rule",
			in:         domain.MapInput{Shop: "carrefour", OriginalCategory: "Lapte praf"},
			wantPath:   []string{"Lactate și ouă", "Lapte"},
			wantStatus: domain.MappingOK,
			wantConf:   0.9,
			wantBy:     "regex",
		},
		{
			name:       "synonym expansion reaches exact rule",
			in:         domain.MapInput{Shop: "auchan", OriginalCategory: "Dairy"},
			wantPath:   []string{"Lactate și ouă"},
			wantStatus: domain.MappingOK,
			wantConf:   0.95,
			wantBy:     "synonym",
		},
		{
			name:       "synonym rule with unknown leaf falls back to parent",
			in:         domain.MapInput{Shop: "auchan", OriginalCategory: "Soft drinks"},
			wantPath:   []string{"Băuturi"},
			wantStatus: domain.MappingFallbackParent,
			wantConf:   0.85 * 0.95 * 0.9,
			wantBy:     "synonym",
		},
		{
			name:       "exact rule with unknown leaf falls back to parent",
			in:         domain.MapInput{Shop: "auchan", OriginalCategory: "Sucuri"},
			wantPath:   []string{"Băuturi"},
			wantStatus: domain.MappingFallbackParent,
			wantConf:   0.9,
			wantBy:     "exact",
		},
		{
			name:       "fuzzy taxonomy label",
			in:         domain.MapInput{Shop: "auchan", OriginalCategory: "Brinzeturi"},
			wantPath:   []string{"Lactate și ouă", "Brânzeturi"},
			wantStatus: domain.MappingFuzzy,
			wantConf:   0.9,
			wantBy:     "fuzzy",
		},
		{
			name:       "identical label is still a fuzzy match",
			in:         domain.MapInput{Shop: "auchan", OriginalCategory: "Bere"},
			wantPath:   []string{"Băuturi", "Bere"},
			wantStatus: domain.MappingFuzzy,
			wantConf:   0.9,
			wantBy:     "fuzzy",
		},
		{
			name:       "fuzzy rule",
			in:         domain.MapInput{Shop: "auchan", OriginalCategory: "Fructe proaspete"},
			wantPath:   []string{"Fructe și legume", "Fructe"},
			wantStatus: domain.MappingFuzzy,
			wantConf:   0.8,
			wantBy:     "fuzzy",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := svc.MapCategory(ctx, tt.in)
			if !reflect.DeepEqual(got.Path, tt.wantPath) {
				t.Errorf("Path = %v, want %v", got.Path, tt.wantPath)
			}
			if got.Status != tt.wantStatus {
				t.Errorf("Status = %q, want %q", got.Status, tt.wantStatus)
			}
			if !approxEqual(got.Confidence, tt.wantConf) {
				t.Errorf("Confidence = %v, want %v", got.Confidence, tt.wantConf)
			}
			if got.MatchedBy != tt.wantBy {
				t.Errorf("MatchedBy = %q, want %q", got.MatchedBy, tt.wantBy)
			}
		})
	}
}

func TestMapCategory_RuleIDAndSlug(t *testing.T) {
	svc, _ := newTestMappingService(t, MappingConfig{})

	got := svc.MapCategory(context.Background(), domain.MapInput{Shop: "carrefour", OriginalCategory: "Lapte UHT"})

	wantID := RuleID(domain.AnyShop, domain.PatternExact, "Lapte UHT")
	if got.RuleID != wantID {
		t.Errorf("RuleID = %q, want %q", got.RuleID, wantID)
	}
	if got.Slug != "lactate-si-oua/lapte" {
		t.Errorf("Slug = %q, want lactate-si-oua/lapte", got.Slug)
	}
}

func TestMapCategory_FuzzyCarriesSimilarity(t *testing.T) {
	svc, _ := newTestMappingService(t, MappingConfig{})

	got := svc.MapCategory(context.Background(), domain.MapInput{Shop: "auchan", OriginalCategory: "Bere"})
	if got.Similarity != 1 {
		t.Errorf("Similarity = %v, want 1", got.Similarity)
	}
	if got.Status != domain.MappingFuzzy {
		t.Errorf("Status = %q, want %q", got.Status, domain.MappingFuzzy)
	}
}

func TestMapCategory_ContentFallback(t *testing.T) {
	svc, _ := newTestMappingService(t, MappingConfig{})
	ctx := context.Background()

	t.Run("missing category uses the product name", func(t *testing.T) {
		got := svc.MapCategory(ctx, domain.MapInput{
			Shop:        "carrefour",
			ProductName: "Bere Ursus blondă 6x500ml",
			BrandName:   "Ursus",
		})
		if !reflect.DeepEqual(got.Path, []string{"Băuturi", "Bere"}) {
			t.Errorf("Path = %v, want [Băuturi Bere]", got.Path)
		}
		if got.MatchedBy != "content:fuzzy" {
			t.Errorf("MatchedBy = %q, want content:fuzzy", got.MatchedBy)
		}
		if got.Status != domain.MappingFuzzy {
			t.Errorf("Status = %q, want %q", got.Status, domain.MappingFuzzy)
		}
	})

	t.Run("unresolved category falls through to content rules", func(t *testing.T) {
		got := svc.MapCategory(ctx, domain.MapInput{
			Shop:             "auchan",
			OriginalCategory: "Diverse",
			ProductName:      "Lapte Zuzu 1L",
		})
		if !reflect.DeepEqual(got.Path, []string{"Lactate și ouă", "Lapte"}) {
			t.Errorf("Path = %v, want [Lactate și ouă Lapte]", got.Path)
		}
		if got.MatchedBy != "content:regex" {
			t.Errorf("MatchedBy = %q, want content:regex", got.MatchedBy)
		}
		if got.Status != domain.MappingOK {
			t.Errorf("Status = %q, want %q", got.Status, domain.MappingOK)
		}
	})

	t.Run("category resolving to Other defers to content", func(t *testing.T) {
		got := svc.MapCategory(ctx, domain.MapInput{
			Shop:             "carrefour",
			OriginalCategory: "Diverse",
			ProductName:      "Lapte Zuzu 1L",
		})
		if !reflect.DeepEqual(got.Path, []string{"Lactate și ouă", "Lapte"}) {
			t.Errorf("Path = %v, want [Lactate și ouă Lapte]", got.Path)
		}
	})
}

func TestMapCategory_RuleTargetingOther(t *testing.T) {
	svc, store := newTestMappingService(t, MappingConfig{})
	ctx := context.Background()

	got := svc.MapCategory(ctx, domain.MapInput{
		Shop:             "carrefour",
		OriginalCategory: "Diverse",
		ProductName:      "Qwerty Asdf",
	})

	if got.Slug != domain.OtherSlug {
		t.Errorf("Slug = %q, want %q", got.Slug, domain.OtherSlug)
	}
	if got.Status != domain.MappingOK {
		t.Errorf("Status = %q, want %q (explicit rule, not unmapped)", got.Status, domain.MappingOK)
	}
	if got.RuleID == "" {
		t.Error("RuleID is empty, want the Other rule id")
	}
	if queue, _ := store.ListUnmapped(ctx); len(queue) != 0 {
		t.Errorf("unmapped queue has %d entries, want 0", len(queue))
	}
	if n := store.usage(got.RuleID); n != 1 {
		t.Errorf("usage = %d, want 1", n)
	}
}

func TestMapCategory_Unmapped(t *testing.T) {
	svc, store := newTestMappingService(t, MappingConfig{})
	ctx := context.Background()
	in := domain.MapInput{Shop: "auchan", OriginalCategory: "Xyzzy", ProductName: "Qwerty"}

	var got domain.CategoryMappingResult
	for i := 0; i < 3; i++ {
		got = svc.MapCategory(ctx, in)
	}

	if !reflect.DeepEqual(got.Path, domain.OtherPath()) {
		t.Errorf("Path = %v, want %v", got.Path, domain.OtherPath())
	}
	if got.Slug != domain.OtherSlug {
		t.Errorf("Slug = %q, want %q", got.Slug, domain.OtherSlug)
	}
	if got.Status != domain.MappingUnmapped {
		t.Errorf("Status = %q, want %q", got.Status, domain.MappingUnmapped)
	}
	if got.Confidence != 0 {
		t.Errorf("Confidence = %v, want 0", got.Confidence)
	}

	queue, err := store.ListUnmapped(ctx)
	if err != nil {
		t.Fatalf("ListUnmapped() error = %v", err)
	}
	if len(queue) != 1 {
		t.Fatalf("unmapped entries = %d, want 1", len(queue))
	}
	if queue[0].Count != 3 {
		t.Errorf("Count = %d, want 3", queue[0].Count)
	}
	if queue[0].OriginalCategory != "Xyzzy" || queue[0].Shop != "auchan" {
		t.Errorf("entry = (%q, %q), want (auchan, Xyzzy)", queue[0].Shop, queue[0].OriginalCategory)
	}
	if len(queue[0].SampleProducts) == 0 || queue[0].SampleProducts[0] != "Qwerty" {
		t.Errorf("SampleProducts = %v, want Qwerty first", queue[0].SampleProducts)
	}
}

func TestMapCategory_FallbackCategory(t *testing.T) {
	ctx := context.Background()

	t.Run("fallback resolves when the primary signal does not", func(t *testing.T) {
		svc, store := newTestMappingService(t, MappingConfig{})
		got := svc.MapCategory(ctx, domain.MapInput{Shop: "auchan", OriginalCategory: "export", FallbackCategory: "Lapte", ProductName: "Qwerty"})

		if got.Slug != "lactate-si-oua/lapte" {
			t.Errorf("Slug = %q, want lactate-si-oua/lapte", got.Slug)
		}
		if got.Status != domain.MappingOK {
			t.Errorf("Status = %q, want %q", got.Status, domain.MappingOK)
		}
		queue, _ := store.ListUnmapped(ctx)
		if len(queue) != 0 {
			t.Errorf("queue = %+v, want empty", queue)
		}
	})

	t.Run("primary signal wins when it resolves", func(t *testing.T) {
		svc, _ := newTestMappingService(t, MappingConfig{})
		got := svc.MapCategory(ctx, domain.MapInput{Shop: "auchan", OriginalCategory: "lactate", FallbackCategory: "Lapte"})
		if got.Slug != "lactate-si-oua" {
			t.Errorf("Slug = %q, want lactate-si-oua", got.Slug)
		}
	})

	t.Run("miss queues the fallback category", func(t *testing.T) {
		svc, store := newTestMappingService(t, MappingConfig{})
		got := svc.MapCategory(ctx, domain.MapInput{Shop: "auchan", OriginalCategory: "export", FallbackCategory: "Xyzzy", ProductName: "Qwerty"})
		if got.Status != domain.MappingUnmapped {
			t.Fatalf("Status = %q, want %q", got.Status, domain.MappingUnmapped)
		}
		queue, _ := store.ListUnmapped(ctx)
		if len(queue) != 1 || queue[0].OriginalCategory != "Xyzzy" {
			t.Errorf("queue = %+v, want one Xyzzy entry", queue)
		}
	})
}

func TestMapCategory_UnmappedWithoutCategory(t *testing.T) {
	svc, store := newTestMappingService(t, MappingConfig{})
	ctx := context.Background()

	got := svc.MapCategory(ctx, domain.MapInput{Shop: "auchan", ProductName: "Qwerty"})
	if got.Status != domain.MappingUnmapped {
		t.Fatalf("Status = %q, want %q", got.Status, domain.MappingUnmapped)
	}

	queue, _ := store.ListUnmapped(ctx)
	if len(queue) != 1 || queue[0].OriginalCategory != noCategoryKey {
		t.Errorf("queue = %+v, want one %q entry", queue, noCategoryKey)
	}
}

func TestMapCategory_UnmappedSuggestions(t *testing.T) {
	svc, _ := newTestMappingService(t, MappingConfig{})

	got := svc.MapCategory(context.Background(), domain.MapInput{
		Shop:             "auchan",
		OriginalCategory: "Apa plata",
		ProductName:      "Aqua Carpatica",
	})

	if got.Status != domain.MappingUnmapped {
		t.Fatalf("Status = %q, want %q", got.Status, domain.MappingUnmapped)
	}
	if len(got.Alternatives) == 0 {
		t.Fatal("Alternatives is empty, want a suggestion")
	}
	if !reflect.DeepEqual(got.Alternatives[0].Path, []string{"Băuturi", "Apă"}) {
		t.Errorf("Alternatives[0].Path = %v, want [Băuturi Apă]", got.Alternatives[0].Path)
	}
	if len(got.Alternatives) > svc.Config().MaxSuggestions {
		t.Errorf("len(Alternatives) = %d, want <= %d", len(got.Alternatives), svc.Config().MaxSuggestions)
	}
}

func TestMapCategory_ConfigurableThresholds(t *testing.T) {
	svc, _ := newTestMappingService(t, MappingConfig{FuzzyThreshold: 0.6, MinimumConfidence: 0.5})

	got := svc.MapCategory(context.Background(), domain.MapInput{Shop: "auchan", OriginalCategory: "Apa plata"})
	if got.Status != domain.MappingFuzzy {
		t.Fatalf("Status = %q, want %q", got.Status, domain.MappingFuzzy)
	}
	if !reflect.DeepEqual(got.Path, []string{"Băuturi", "Apă"}) {
		t.Errorf("Path = %v, want [Băuturi Apă]", got.Path)
	}
}

func TestMapCategory_Idempotent(t *testing.T) {
	svc, _ := newTestMappingService(t, MappingConfig{})
	ctx := context.Background()

	inputs := []domain.MapInput{
		{Shop: "carrefour", OriginalCategory: "Lapte UHT"},
		{Shop: "auchan", OriginalCategory: "Brinzeturi"},
		{Shop: "carrefour", ProductName: "Bere Ursus blondă 6x500ml", BrandName: "Ursus"},
		{Shop: "auchan", OriginalCategory: "Xyzzy", ProductName: "Qwerty"},
	}
	for _, in := range inputs {
		first := svc.MapCategory(ctx, in)
		second := svc.MapCategory(ctx, in)
		if !reflect.DeepEqual(first, second) {
			t.Errorf("MapCategory(%+v) not idempotent:\n first  %+v\n second %+v", in, first, second)
		}
	}
}

func TestMapCategory_UsageCounting(t *testing.T) {
	svc, store := newTestMappingService(t, MappingConfig{})
	ctx := context.Background()
	in := domain.MapInput{Shop: "carrefour", OriginalCategory: "Lapte UHT"}

	svc.MapCategory(ctx, in)
	got := svc.MapCategory(ctx, in)

	if n := store.usage(got.RuleID); n != 2 {
		t.Errorf("usage = %d, want 2", n)
	}

	fuzzy := svc.MapCategory(ctx, domain.MapInput{Shop: "auchan", OriginalCategory: "Fructe proaspete"})
	if fuzzy.RuleID == "" {
		t.Fatal("fuzzy rule hit has no RuleID")
	}
	if n := store.usage(fuzzy.RuleID); n != 1 {
		t.Errorf("fuzzy rule usage = %d, want 1", n)
	}
}

func TestMapCategory_StoreErrorsDoNotChangeResult(t *testing.T) {
	svc, store := newTestMappingService(t, MappingConfig{})
	ctx := context.Background()
	store.incrementErr = errStoreDown
	store.recordErr = errStoreDown

	hit := svc.MapCategory(ctx, domain.MapInput{Shop: "carrefour", OriginalCategory: "Lapte UHT"})
	if hit.Status != domain.MappingOK {
		t.Errorf("Status = %q, want %q", hit.Status, domain.MappingOK)
	}

	miss := svc.MapCategory(ctx, domain.MapInput{Shop: "auchan", OriginalCategory: "Xyzzy"})
	if miss.Status != domain.MappingUnmapped {
		t.Errorf("Status = %q, want %q", miss.Status, domain.MappingUnmapped)
	}
}

func TestReload_StaleRankingIsNotServed(t *testing.T) {
	svc, _ := newTestMappingService(t, MappingConfig{})
	ctx := context.Background()
	text := "bere artizanala"

	oldRules, oldGen := svc.snapshot()

	saved, err := svc.UpsertRule(ctx, domain.CategoryRule{
		Shop:        domain.AnyShop,
		Pattern:     "Bere artizanală",
		PatternType: domain.PatternFuzzy,
		TargetPath:  []string{"Băuturi", "Bere"},
		Enabled:     true,
	})
	if err != nil {
		t.Fatalf("UpsertRule() error = %v", err)
	}

	// a reader holding the pre-reload snapshot finishes after the reload
	svc.rankCandidates(oldRules, oldGen, "auchan", text, modeCategory)

	rules, gen := svc.snapshot()
	if gen == oldGen {
		t.Fatalf("generation = %d, want it advanced by the reload", gen)
	}
	ranked := svc.rankCandidates(rules, gen, "auchan", text, modeCategory)
	if len(ranked) == 0 || ranked[0].ruleID != saved.ID {
		t.Errorf("best candidate = %+v, want rule %s", ranked, saved.ID)
	}

	got := svc.MapCategory(ctx, domain.MapInput{Shop: "auchan", OriginalCategory: "Bere artizanala"})
	if got.RuleID != saved.ID {
		t.Errorf("RuleID = %q, want %q", got.RuleID, saved.ID)
	}
}

func TestUnmappedQueue(t *testing.T) {
	ctx := context.Background()

	t.Run("sorted by count with suggestions past threshold", func(t *testing.T) {
		svc, _ := newTestMappingService(t, MappingConfig{EnableLearning: true, LearningThreshold: 3})

		svc.MapCategory(ctx, domain.MapInput{Shop: "auchan", OriginalCategory: "Xyzzy", ProductName: "Qwerty"})
		for i := 0; i < 3; i++ {
			svc.MapCategory(ctx, domain.MapInput{Shop: "auchan", OriginalCategory: "Apa plata", ProductName: "Aqua Carpatica"})
		}

		queue, err := svc.UnmappedQueue(ctx)
		if err != nil {
			t.Fatalf("UnmappedQueue() error = %v", err)
		}
		if len(queue) != 2 {
			t.Fatalf("len(queue) = %d, want 2", len(queue))
		}
		if queue[0].OriginalCategory != "Apa plata" || queue[0].Count != 3 {
			t.Errorf("queue[0] = (%q, %d), want (Apa plata, 3)", queue[0].OriginalCategory, queue[0].Count)
		}
		if len(queue[0].Suggestions) == 0 {
			t.Fatal("queue[0] has no suggestions")
		}
		if queue[0].Suggestions[0].Slug != "bauturi/apa" {
			t.Errorf("Suggestions[0].Slug = %q, want bauturi/apa", queue[0].Suggestions[0].Slug)
		}
		if len(queue[1].Suggestions) != 0 {
			t.Errorf("queue[1] below threshold has %d suggestions, want 0", len(queue[1].Suggestions))
		}
	})

	t.Run("no suggestions with learning disabled", func(t *testing.T) {
		svc, _ := newTestMappingService(t, MappingConfig{})
		for i := 0; i < 3; i++ {
			svc.MapCategory(ctx, domain.MapInput{Shop: "auchan", OriginalCategory: "Apa plata"})
		}
		queue, err := svc.UnmappedQueue(ctx)
		if err != nil {
			t.Fatalf("UnmappedQueue() error = %v", err)
		}
		if len(queue) != 1 || len(queue[0].Suggestions) != 0 {
			t.Errorf("queue = %+v, want one entry without suggestions", queue)
		}
	})

	t.Run("store error is wrapped", func(t *testing.T) {
		svc, store := newTestMappingService(t, MappingConfig{})
		store.listErr = errStoreDown
		if _, err := svc.UnmappedQueue(ctx); !errors.Is(err, errStoreDown) {
			t.Errorf("error = %v, want errStoreDown", err)
		}
	})
}

func TestPromoteUnmapped(t *testing.T) {
	svc, store := newTestMappingService(t, MappingConfig{})
	ctx := context.Background()
	in := domain.MapInput{Shop: "auchan", OriginalCategory: "Apa plata"}

	if got := svc.MapCategory(ctx, in); got.Status != domain.MappingUnmapped {
		t.Fatalf("before promotion Status = %q, want %q", got.Status, domain.MappingUnmapped)
	}

	rule, err := svc.PromoteUnmapped(ctx, "auchan", "Apa plata", []string{"Băuturi", "Apă"}, "")
	if err != nil {
		t.Fatalf("PromoteUnmapped() error = %v", err)
	}
	if rule.PatternType != domain.PatternExact {
		t.Errorf("PatternType = %q, want exact", rule.PatternType)
	}
	if rule.CreatedBy != domain.CreatedByAdmin {
		t.Errorf("CreatedBy = %q, want admin", rule.CreatedBy)
	}

	got := svc.MapCategory(ctx, in)
	if got.Status != domain.MappingOK || got.MatchedBy != "exact" {
		t.Errorf("after promotion = (%q, %q), want (ok, exact)", got.Status, got.MatchedBy)
	}
	if got.RuleID != RuleID("auchan", domain.PatternExact, "Apa plata") {
		t.Errorf("RuleID = %q, want the promoted rule", got.RuleID)
	}
	if _, err := store.GetRule(ctx, rule.ID); err != nil {
		t.Errorf("GetRule(%s) error = %v", rule.ID, err)
	}

	t.Run("rejects the no-category key", func(t *testing.T) {
		_, err := svc.PromoteUnmapped(ctx, "auchan", noCategoryKey, []string{"Băuturi"}, "")
		if !errors.Is(err, domain.ErrInvalidRule) {
			t.Errorf("error = %v, want ErrInvalidRule", err)
		}
	})
}

func TestUpsertRule_Validation(t *testing.T) {
	svc, _ := newTestMappingService(t, MappingConfig{})
	ctx := context.Background()

	tests := []struct {
		name string
		rule domain.CategoryRule
	}{
		{"unknown pattern type", domain.CategoryRule{Pattern: "x", PatternType: "bogus", TargetPath: []string{"A"}}},
		{"empty pattern", domain.CategoryRule{Pattern: "  ", PatternType: domain.PatternExact, TargetPath: []string{"A"}}},
		{"invalid regex", domain.CategoryRule{Pattern: "(", PatternType: domain.PatternRegex, TargetPath: []string{"A"}}},
		{"missing target", domain.CategoryRule{Pattern: "x", PatternType: domain.PatternExact}},
		{"empty target segment", domain.CategoryRule{Pattern: "x", PatternType: domain.PatternExact, TargetPath: []string{"A", " "}}},
		{"confidence above one", domain.CategoryRule{Pattern: "x", PatternType: domain.PatternExact, TargetPath: []string{"A"}, Confidence: 1.5}},
		{"pattern of punctuation only", domain.CategoryRule{Pattern: "!!", PatternType: domain.PatternExact, TargetPath: []string{"A"}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.UpsertRule(ctx, tt.rule)
			if !errors.Is(err, domain.ErrInvalidRule) {
				t.Errorf("error = %v, want ErrInvalidRule", err)
			}
		})
	}

	t.Run("fills defaults", func(t *testing.T) {
		saved, err := svc.UpsertRule(ctx, domain.CategoryRule{Pattern: "Apa minerala", PatternType: domain.PatternExact, TargetPath: []string{"Băuturi", "Apă"}, Enabled: true})
		if err != nil {
			t.Fatalf("UpsertRule() error = %v", err)
		}
		if saved.Shop != domain.AnyShop {
			t.Errorf("Shop = %q, want %q", saved.Shop, domain.AnyShop)
		}
		if saved.Confidence != 1.0 {
			t.Errorf("Confidence = %v, want 1.0", saved.Confidence)
		}
		if saved.ID != RuleID(domain.AnyShop, domain.PatternExact, "Apa minerala") {
			t.Errorf("ID = %q, want deterministic id", saved.ID)
		}
	})
}

func TestSetRuleEnabled(t *testing.T) {
	svc, store := newTestMappingService(t, MappingConfig{})
	ctx := context.Background()
	in := domain.MapInput{Shop: "carrefour", OriginalCategory: "Lapte UHT"}

	hit := svc.MapCategory(ctx, in)
	if err := svc.SetRuleEnabled(ctx, hit.RuleID, false); err != nil {
		t.Fatalf("SetRuleEnabled() error = %v", err)
	}

	got := svc.MapCategory(ctx, in)
	if got.MatchedBy != "regex" {
		t.Errorf("MatchedBy = %q, want regex once the exact rule is disabled", got.MatchedBy)
	}
	if n := store.usage(hit.RuleID); n != 1 {
		t.Errorf("usage of disabled rule = %d, want 1 (history kept)", n)
	}

	if err := svc.SetRuleEnabled(ctx, "missing", true); !errors.Is(err, domain.ErrRuleNotFound) {
		t.Errorf("error = %v, want ErrRuleNotFound", err)
	}
}

func TestSeedRules(t *testing.T) {
	svc, store := newTestMappingService(t, MappingConfig{})
	ctx := context.Background()

	hit := svc.MapCategory(ctx, domain.MapInput{Shop: "carrefour", OriginalCategory: "Lapte UHT"})

	added, err := svc.SeedRules(ctx, testSeedRules())
	if err != nil {
		t.Fatalf("SeedRules() error = %v", err)
	}
	if added != 0 {
		t.Errorf("added = %d, want 0 on reseed", added)
	}
	if n := store.usage(hit.RuleID); n != 1 {
		t.Errorf("usage after reseed = %d, want 1", n)
	}

	rule, err := store.GetRule(ctx, hit.RuleID)
	if err != nil {
		t.Fatalf("GetRule() error = %v", err)
	}
	if rule.CreatedBy != domain.CreatedBySystem {
		t.Errorf("CreatedBy = %q, want system", rule.CreatedBy)
	}
}

func TestRulesAndUnusedRules(t *testing.T) {
	svc, _ := newTestMappingService(t, MappingConfig{})
	ctx := context.Background()

	all, err := svc.Rules(ctx, "")
	if err != nil {
		t.Fatalf("Rules() error = %v", err)
	}
	if len(all) != len(testSeedRules()) {
		t.Errorf("len(Rules) = %d, want %d", len(all), len(testSeedRules()))
	}
	if all[0].Shop != "carrefour" {
		t.Errorf("Rules()[0].Shop = %q, want shop-specific rule first", all[0].Shop)
	}

	auchan, _ := svc.Rules(ctx, "auchan")
	for _, r := range auchan {
		if r.Shop == "carrefour" {
			t.Errorf("Rules(auchan) includes carrefour rule %q", r.Pattern)
		}
	}

	hit := svc.MapCategory(ctx, domain.MapInput{Shop: "carrefour", OriginalCategory: "Lapte UHT"})
	unused, err := svc.UnusedRules(ctx, "")
	if err != nil {
		t.Fatalf("UnusedRules() error = %v", err)
	}
	if len(unused) != len(all)-1 {
		t.Errorf("len(UnusedRules) = %d, want %d", len(unused), len(all)-1)
	}
	for _, r := range unused {
		if r.ID == hit.RuleID {
			t.Errorf("UnusedRules includes used rule %s", r.ID)
		}
	}
}

func TestRuleID(t *testing.T) {
	a := RuleID("", domain.PatternExact, "Lapte UHT")
	b := RuleID(domain.AnyShop, domain.PatternExact, "lapte   uht")
	if a != b {
		t.Errorf("RuleID not normalized: %q != %q", a, b)
	}
	if RuleID("carrefour", domain.PatternExact, "Lapte UHT") == a {
		t.Error("RuleID ignores shop")
	}
	if RuleID(domain.AnyShop, domain.PatternRegex, "^Lapte") == RuleID(domain.AnyShop, domain.PatternRegex, "^lapte") {
		t.Error("regex RuleID should keep the pattern verbatim")
	}
}
