package domain

import (
	"context"
	"time"
)

// RuleStore persists category rules and their usage counters.
// IncrementUsage must be atomic with respect to concurrent callers.
type RuleStore interface {
	ListRules(ctx context.Context, shop string) ([]CategoryRule, error)
	GetRule(ctx context.Context, id string) (CategoryRule, error)
	UpsertRule(ctx context.Context, rule CategoryRule) (CategoryRule, error)
	SetRuleEnabled(ctx context.Context, id string, enabled bool) error
	IncrementUsage(ctx context.Context, id string, delta int64) error
}

// UnmappedStore aggregates unmapped category encounters.
// RecordUnmapped is an upsert on (shop, category) and must be atomic.
type UnmappedStore interface {
	RecordUnmapped(ctx context.Context, shop, category, sample string, at time.Time) (UnmappedCategory, error)
	ListUnmapped(ctx context.Context) ([]UnmappedCategory, error)
}

// CategoryStore is the full persistence surface used by the mapping engine
type CategoryStore interface {
	RuleStore
	UnmappedStore
	Close() error
}
