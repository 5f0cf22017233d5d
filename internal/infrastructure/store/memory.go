package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/pricefeed/backend/internal/domain"
)

// MemoryStore is a thread-safe in-memory category store for a single process
type MemoryStore struct {
	rules     map[string]domain.CategoryRule
	unmapped  map[string]*domain.UnmappedCategory
	sampleCap int
	mutex     sync.RWMutex
}

// NewMemoryStore creates a new in-memory store keeping at most sampleCap
// sample products per unmapped category
func NewMemoryStore(sampleCap int) *MemoryStore {
	return &MemoryStore{
		rules:     make(map[string]domain.CategoryRule),
		unmapped:  make(map[string]*domain.UnmappedCategory),
		sampleCap: normalizeSampleCap(sampleCap),
	}
}

// ListRules returns rules applying to shop, or every rule when shop is empty
func (m *MemoryStore) ListRules(ctx context.Context, shop string) ([]domain.CategoryRule, error) {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	out := make([]domain.CategoryRule, 0, len(m.rules))
	for _, r := range m.rules {
		if shop == "" || r.AppliesTo(shop) {
			out = append(out, cloneRule(r))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// GetRule retrieves a rule by id
func (m *MemoryStore) GetRule(ctx context.Context, id string) (domain.CategoryRule, error) {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	r, exists := m.rules[id]
	if !exists {
		return domain.CategoryRule{}, domain.ErrRuleNotFound
	}
	return cloneRule(r), nil
}

// UpsertRule stores a rule, keeping the usage counter and creation time of
// an existing rule with the same id
func (m *MemoryStore) UpsertRule(ctx context.Context, rule domain.CategoryRule) (domain.CategoryRule, error) {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	rule = cloneRule(rule)
	if existing, exists := m.rules[rule.ID]; exists {
		rule.UsageCount = existing.UsageCount
		rule.CreatedAt = existing.CreatedAt
	}
	m.rules[rule.ID] = rule
	return cloneRule(rule), nil
}

// SetRuleEnabled toggles a rule
func (m *MemoryStore) SetRuleEnabled(ctx context.Context, id string, enabled bool) error {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	r, exists := m.rules[id]
	if !exists {
		return domain.ErrRuleNotFound
	}
	r.Enabled = enabled
	r.UpdatedAt = time.Now().UTC()
	m.rules[id] = r
	return nil
}

// IncrementUsage adds delta to a rule's usage counter
func (m *MemoryStore) IncrementUsage(ctx context.Context, id string, delta int64) error {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	r, exists := m.rules[id]
	if !exists {
		return domain.ErrRuleNotFound
	}
	r.UsageCount += delta
	m.rules[id] = r
	return nil
}

// RecordUnmapped upserts the (shop, category) entry: count+1, last seen,
// sample prepended
func (m *MemoryStore) RecordUnmapped(ctx context.Context, shop, category, sample string, at time.Time) (domain.UnmappedCategory, error) {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	key := unmappedKey(shop, category)
	entry, exists := m.unmapped[key]
	if !exists {
		entry = &domain.UnmappedCategory{
			Shop:             shop,
			OriginalCategory: category,
			FirstSeen:        at,
		}
		m.unmapped[key] = entry
	}
	entry.Count++
	entry.LastSeen = at
	entry.SampleProducts = prependSample(entry.SampleProducts, sample, m.sampleCap)

	return cloneUnmapped(*entry), nil
}

// ListUnmapped returns every unmapped entry ordered by shop and category
func (m *MemoryStore) ListUnmapped(ctx context.Context) ([]domain.UnmappedCategory, error) {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	out := make([]domain.UnmappedCategory, 0, len(m.unmapped))
	for _, e := range m.unmapped {
		out = append(out, cloneUnmapped(*e))
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Shop != out[j].Shop {
			return out[i].Shop < out[j].Shop
		}
		return out[i].OriginalCategory < out[j].OriginalCategory
	})
	return out, nil
}

func (m *MemoryStore) Close() error { return nil }
