package usecase

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/pricefeed/backend/internal/domain"
)

// mockCategoryStore implements domain.CategoryStore for testing
type mockCategoryStore struct {
	mu       sync.Mutex
	rules    map[string]domain.CategoryRule
	unmapped map[string]*domain.UnmappedCategory
	order    []string

	incrementErr error
	recordErr    error
	listErr      error
}

func newMockCategoryStore() *mockCategoryStore {
	return &mockCategoryStore{
		rules:    make(map[string]domain.CategoryRule),
		unmapped: make(map[string]*domain.UnmappedCategory),
	}
}

func (m *mockCategoryStore) ListRules(_ context.Context, shop string) ([]domain.CategoryRule, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.listErr != nil {
		return nil, m.listErr
	}
	var out []domain.CategoryRule
	for _, r := range m.rules {
		if shop == "" || r.AppliesTo(shop) {
			out = append(out, r)
		}
	}
	return out, nil
}

func (m *mockCategoryStore) GetRule(_ context.Context, id string) (domain.CategoryRule, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.rules[id]
	if !ok {
		return domain.CategoryRule{}, domain.ErrRuleNotFound
	}
	return r, nil
}

func (m *mockCategoryStore) UpsertRule(_ context.Context, rule domain.CategoryRule) (domain.CategoryRule, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if existing, ok := m.rules[rule.ID]; ok {
		rule.UsageCount = existing.UsageCount
		rule.CreatedAt = existing.CreatedAt
	}
	m.rules[rule.ID] = rule
	return rule, nil
}

func (m *mockCategoryStore) SetRuleEnabled(_ context.Context, id string, enabled bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.rules[id]
	if !ok {
		return domain.ErrRuleNotFound
	}
	r.Enabled = enabled
	m.rules[id] = r
	return nil
}

func (m *mockCategoryStore) IncrementUsage(_ context.Context, id string, delta int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.incrementErr != nil {
		return m.incrementErr
	}
	r, ok := m.rules[id]
	if !ok {
		return domain.ErrRuleNotFound
	}
	r.UsageCount += delta
	m.rules[id] = r
	return nil
}

func (m *mockCategoryStore) RecordUnmapped(_ context.Context, shop, category, sample string, at time.Time) (domain.UnmappedCategory, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.recordErr != nil {
		return domain.UnmappedCategory{}, m.recordErr
	}
	key := shop + "\x00" + category
	e, ok := m.unmapped[key]
	if !ok {
		e = &domain.UnmappedCategory{Shop: shop, OriginalCategory: category, FirstSeen: at}
		m.unmapped[key] = e
		m.order = append(m.order, key)
	}
	e.Count++
	e.LastSeen = at
	if sample != "" {
		e.SampleProducts = append([]string{sample}, e.SampleProducts...)
		if len(e.SampleProducts) > 5 {
			e.SampleProducts = e.SampleProducts[:5]
		}
	}
	return *e, nil
}

func (m *mockCategoryStore) ListUnmapped(_ context.Context) ([]domain.UnmappedCategory, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.listErr != nil {
		return nil, m.listErr
	}
	out := make([]domain.UnmappedCategory, 0, len(m.order))
	for _, k := range m.order {
		out = append(out, *m.unmapped[k])
	}
	return out, nil
}

func (m *mockCategoryStore) Close() error { return nil }

func (m *mockCategoryStore) usage(id string) int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.rules[id].UsageCount
}

var errStoreDown = errors.New("store down")
