// Package rules loads the canonical taxonomy, seed rules and synonym
// dictionary from YAML. A default document is embedded in the binary.
package rules

import (
	_ "embed"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/pricefeed/backend/internal/domain"
	"github.com/pricefeed/backend/internal/textutil"
)

//go:embed default_rules.yaml
var defaultRules []byte

// Seed is the parsed seed document
type Seed struct {
	Taxonomy []domain.TaxonomyNode
	Rules    []domain.CategoryRule
	Synonyms []domain.Synonym
}

type seedFile struct {
	Taxonomy []struct {
		Path    []string `yaml:"path"`
		Aliases []string `yaml:"aliases"`
	} `yaml:"taxonomy"`
	Rules []struct {
		Shop       string   `yaml:"shop"`
		Pattern    string   `yaml:"pattern"`
		Type       string   `yaml:"type"`
		Target     []string `yaml:"target"`
		Confidence float64  `yaml:"confidence"`
	} `yaml:"rules"`
	Synonyms []struct {
		Shop      string   `yaml:"shop"`
		Canonical string   `yaml:"canonical"`
		Variants  []string `yaml:"variants"`
	} `yaml:"synonyms"`
}

// Default returns the embedded seed document
func Default() (*Seed, error) {
	return Parse(defaultRules)
}

// Load reads the seed document at path, or the embedded default when path is empty
func Load(path string) (*Seed, error) {
	if strings.TrimSpace(path) == "" {
		return Default()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading rules file: %w", err)
	}
	seed, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return seed, nil
}

// Parse decodes and checks a seed document. The Other bucket is reserved
// and may not appear in the taxonomy; rules may still target it.
func Parse(data []byte) (*Seed, error) {
	var f seedFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parsing rules yaml: %w", err)
	}

	seed := &Seed{}
	for i, n := range f.Taxonomy {
		if len(n.Path) == 0 {
			return nil, fmt.Errorf("taxonomy[%d]: empty path", i)
		}
		if textutil.Slugify(n.Path[0]) == domain.OtherSlug {
			return nil, fmt.Errorf("taxonomy[%d]: %q is reserved", i, n.Path[0])
		}
		seed.Taxonomy = append(seed.Taxonomy, domain.TaxonomyNode{Path: n.Path, Aliases: n.Aliases})
	}

	for i, r := range f.Rules {
		pt := domain.PatternType(strings.ToLower(strings.TrimSpace(r.Type)))
		if !pt.Valid() {
			return nil, fmt.Errorf("rules[%d]: %w: unknown type %q", i, domain.ErrInvalidRule, r.Type)
		}
		if strings.TrimSpace(r.Pattern) == "" || len(r.Target) == 0 {
			return nil, fmt.Errorf("rules[%d]: %w: pattern and target are required", i, domain.ErrInvalidRule)
		}
		shop := strings.TrimSpace(r.Shop)
		if shop == "" {
			shop = domain.AnyShop
		}
		seed.Rules = append(seed.Rules, domain.CategoryRule{
			Shop:        shop,
			Pattern:     r.Pattern,
			PatternType: pt,
			TargetPath:  r.Target,
			Confidence:  r.Confidence,
			CreatedBy:   domain.CreatedBySystem,
			Enabled:     true,
		})
	}

	for i, s := range f.Synonyms {
		if strings.TrimSpace(s.Canonical) == "" || len(s.Variants) == 0 {
			return nil, fmt.Errorf("synonyms[%d]: canonical and variants are required", i)
		}
		shop := strings.TrimSpace(s.Shop)
		if shop == "" {
			shop = domain.AnyShop
		}
		seed.Synonyms = append(seed.Synonyms, domain.Synonym{Shop: shop, Canonical: s.Canonical, Variants: s.Variants})
	}
	return seed, nil
}
