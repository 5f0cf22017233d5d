package usecase

import (
	"sort"
	"strings"

	"github.com/pricefeed/backend/internal/domain"
	"github.com/pricefeed/backend/internal/textutil"
)

// taxonomyLabel is one text a category can be recognised by
type taxonomyLabel struct {
	text string // normalized
	path []string
	slug string
}

// Taxonomy is the canonical category tree, indexed by path slug
type Taxonomy struct {
	nodes  map[string][]string // slug -> path
	labels []taxonomyLabel
}

// NewTaxonomy indexes nodes. Every prefix of a node path is itself a node.
func NewTaxonomy(nodes []domain.TaxonomyNode) *Taxonomy {
	t := &Taxonomy{nodes: make(map[string][]string)}

	seenLabel := make(map[string]bool)
	addLabel := func(text string, path []string) {
		norm := textutil.Normalize(text)
		slug := textutil.PathSlug(path)
		key := norm + "|" + slug
		if norm == "" || seenLabel[key] {
			return
		}
		seenLabel[key] = true
		t.labels = append(t.labels, taxonomyLabel{text: norm, path: path, slug: slug})
	}

	for _, n := range nodes {
		if len(n.Path) == 0 {
			continue
		}
		for i := 1; i <= len(n.Path); i++ {
			prefix := append([]string(nil), n.Path[:i]...)
			slug := textutil.PathSlug(prefix)
			if _, ok := t.nodes[slug]; ok {
				continue
			}
			t.nodes[slug] = prefix
			addLabel(prefix[len(prefix)-1], prefix)
			if len(prefix) > 1 {
				addLabel(strings.Join(prefix, " "), prefix)
			}
		}
		full := append([]string(nil), n.Path...)
		for _, alias := range n.Aliases {
			addLabel(alias, full)
		}
	}

	sort.SliceStable(t.labels, func(i, j int) bool {
		if t.labels[i].slug != t.labels[j].slug {
			return t.labels[i].slug < t.labels[j].slug
		}
		return t.labels[i].text < t.labels[j].text
	})
	return t
}

// Len returns the number of nodes, prefixes included
func (t *Taxonomy) Len() int {
	if t == nil {
		return 0
	}
	return len(t.nodes)
}

// Contains reports whether path is a known node
func (t *Taxonomy) Contains(path []string) bool {
	if t == nil {
		return false
	}
	_, ok := t.nodes[textutil.PathSlug(path)]
	return ok
}

// Lookup returns the canonical spelling of a path given its slug
func (t *Taxonomy) Lookup(slug string) ([]string, bool) {
	if t == nil {
		return nil, false
	}
	p, ok := t.nodes[slug]
	return p, ok
}

// Resolve checks a rule target against the tree.
// A known path is returned in canonical spelling. An unknown path with a
// known prefix resolves to the longest such prefix and parent=true. A path
// with no known prefix, or an empty taxonomy, is returned unchanged.
func (t *Taxonomy) Resolve(path []string) (resolved []string, parent bool) {
	if t.Len() == 0 || len(path) == 0 {
		return path, false
	}
	if p, ok := t.nodes[textutil.PathSlug(path)]; ok {
		return p, false
	}
	for i := len(path) - 1; i >= 1; i-- {
		if p, ok := t.nodes[textutil.PathSlug(path[:i])]; ok {
			return p, true
		}
	}
	return path, false
}

// Nodes returns every node path, sorted by slug
func (t *Taxonomy) Nodes() [][]string {
	if t == nil {
		return nil
	}
	slugs := make([]string, 0, len(t.nodes))
	for s := range t.nodes {
		slugs = append(slugs, s)
	}
	sort.Strings(slugs)
	out := make([][]string, 0, len(slugs))
	for _, s := range slugs {
		out = append(out, t.nodes[s])
	}
	return out
}
