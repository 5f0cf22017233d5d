package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/pricefeed/backend/internal/domain"
)

const (
	defaultRedisPrefix = "pricefeed"
	maxTxRetries       = 50
)

// Hash fields
const (
	fieldData      = "data"
	fieldUsage     = "usage"
	fieldCreatedAt = "created_at"
	fieldShop      = "shop"
	fieldCategory  = "category"
	fieldCount     = "count"
	fieldSamples   = "samples"
	fieldFirstSeen = "first_seen"
	fieldLastSeen  = "last_seen"
)

// RedisStore keeps rules and the unmapped queue in Redis hashes. Counters
// are HINCRBY fields and read-modify-write updates run in WATCH/MULTI/EXEC
// transactions, so orchestrators in different processes never lose updates.
type RedisStore struct {
	client    *redis.Client
	prefix    string
	sampleCap int
}

// NewRedisStore wraps a connected client. Keys are namespaced by prefix.
func NewRedisStore(client *redis.Client, prefix string, sampleCap int) *RedisStore {
	if prefix == "" {
		prefix = defaultRedisPrefix
	}
	return &RedisStore{client: client, prefix: prefix, sampleCap: normalizeSampleCap(sampleCap)}
}

func (s *RedisStore) Close() error { return s.client.Close() }

func (s *RedisStore) ruleIndexKey() string { return s.prefix + ":rules" }
func (s *RedisStore) ruleKey(id string) string { return s.prefix + ":rule:" + id }
func (s *RedisStore) unmappedIndexKey() string { return s.prefix + ":unmapped" }
func (s *RedisStore) unmappedKey(shop, category string) string {
	return s.prefix + ":unmapped:" + strconv.Quote(shop) + ":" + strconv.Quote(category)
}

// storedRule is the JSON body of a rule; usage and creation time live in
// their own hash fields
type storedRule struct {
	ID          string             `json:"id"`
	Shop        string             `json:"shop"`
	Pattern     string             `json:"pattern"`
	PatternType domain.PatternType `json:"pattern_type"`
	TargetPath  []string           `json:"target_path"`
	Confidence  float64            `json:"confidence"`
	CreatedBy   domain.RuleCreator `json:"created_by"`
	Enabled     bool               `json:"enabled"`
	UpdatedAt   time.Time          `json:"updated_at"`
}

func toStored(r domain.CategoryRule) storedRule {
	return storedRule{
		ID:          r.ID,
		Shop:        r.Shop,
		Pattern:     r.Pattern,
		PatternType: r.PatternType,
		TargetPath:  r.TargetPath,
		Confidence:  r.Confidence,
		CreatedBy:   r.CreatedBy,
		Enabled:     r.Enabled,
		UpdatedAt:   r.UpdatedAt,
	}
}

func decodeRule(fields map[string]string) (domain.CategoryRule, error) {
	var sr storedRule
	if err := json.Unmarshal([]byte(fields[fieldData]), &sr); err != nil {
		return domain.CategoryRule{}, fmt.Errorf("redis: decode rule: %w", err)
	}
	r := domain.CategoryRule{
		ID:          sr.ID,
		Shop:        sr.Shop,
		Pattern:     sr.Pattern,
		PatternType: sr.PatternType,
		TargetPath:  sr.TargetPath,
		Confidence:  sr.Confidence,
		CreatedBy:   sr.CreatedBy,
		Enabled:     sr.Enabled,
		UpdatedAt:   sr.UpdatedAt,
	}
	if v := fields[fieldUsage]; v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return r, fmt.Errorf("redis: decode usage of %s: %w", r.ID, err)
		}
		r.UsageCount = n
	}
	if v := fields[fieldCreatedAt]; v != "" {
		t, err := time.Parse(time.RFC3339Nano, v)
		if err != nil {
			return r, fmt.Errorf("redis: decode created_at of %s: %w", r.ID, err)
		}
		r.CreatedAt = t
	}
	return r, nil
}

func (s *RedisStore) ListRules(ctx context.Context, shop string) ([]domain.CategoryRule, error) {
	ids, err := s.client.SMembers(ctx, s.ruleIndexKey()).Result()
	if err != nil {
		return nil, fmt.Errorf("%w: redis: list rule ids: %v", domain.ErrStoreUnavailable, err)
	}
	sort.Strings(ids)

	cmds := make([]*redis.MapStringStringCmd, len(ids))
	_, err = s.client.Pipelined(ctx, func(p redis.Pipeliner) error {
		for i, id := range ids {
			cmds[i] = p.HGetAll(ctx, s.ruleKey(id))
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("redis: load rules: %w", err)
	}

	out := make([]domain.CategoryRule, 0, len(ids))
	for _, cmd := range cmds {
		fields := cmd.Val()
		if len(fields) == 0 {
			continue
		}
		r, err := decodeRule(fields)
		if err != nil {
			return nil, err
		}
		if shop == "" || r.AppliesTo(shop) {
			out = append(out, r)
		}
	}
	return out, nil
}

func (s *RedisStore) GetRule(ctx context.Context, id string) (domain.CategoryRule, error) {
	fields, err := s.client.HGetAll(ctx, s.ruleKey(id)).Result()
	if err != nil {
		return domain.CategoryRule{}, fmt.Errorf("redis: get rule %s: %w", id, err)
	}
	if len(fields) == 0 {
		return domain.CategoryRule{}, domain.ErrRuleNotFound
	}
	return decodeRule(fields)
}

func (s *RedisStore) UpsertRule(ctx context.Context, rule domain.CategoryRule) (domain.CategoryRule, error) {
	now := time.Now().UTC()
	if rule.CreatedAt.IsZero() {
		rule.CreatedAt = now
	}
	if rule.UpdatedAt.IsZero() {
		rule.UpdatedAt = now
	}
	data, err := json.Marshal(toStored(rule))
	if err != nil {
		return domain.CategoryRule{}, fmt.Errorf("redis: encode rule: %w", err)
	}

	key := s.ruleKey(rule.ID)
	_, err = s.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.HSet(ctx, key, fieldData, data)
		p.HSetNX(ctx, key, fieldUsage, rule.UsageCount)
		p.HSetNX(ctx, key, fieldCreatedAt, rule.CreatedAt.UTC().Format(time.RFC3339Nano))
		p.SAdd(ctx, s.ruleIndexKey(), rule.ID)
		return nil
	})
	if err != nil {
		return domain.CategoryRule{}, fmt.Errorf("redis: upsert rule %s: %w", rule.ID, err)
	}
	return s.GetRule(ctx, rule.ID)
}

func (s *RedisStore) SetRuleEnabled(ctx context.Context, id string, enabled bool) error {
	key := s.ruleKey(id)
	return s.retryTx(ctx, key, func(tx *redis.Tx) error {
		fields, err := tx.HGetAll(ctx, key).Result()
		if err != nil {
			return err
		}
		if len(fields) == 0 {
			return domain.ErrRuleNotFound
		}
		r, err := decodeRule(fields)
		if err != nil {
			return err
		}
		r.Enabled = enabled
		r.UpdatedAt = time.Now().UTC()
		data, err := json.Marshal(toStored(r))
		if err != nil {
			return fmt.Errorf("redis: encode rule: %w", err)
		}
		_, err = tx.TxPipelined(ctx, func(p redis.Pipeliner) error {
			p.HSet(ctx, key, fieldData, data)
			return nil
		})
		return err
	})
}

// IncrementUsage is a single HINCRBY. Rules are never deleted, so the
// membership check cannot race with removal.
func (s *RedisStore) IncrementUsage(ctx context.Context, id string, delta int64) error {
	ok, err := s.client.SIsMember(ctx, s.ruleIndexKey(), id).Result()
	if err != nil {
		return fmt.Errorf("redis: check rule %s: %w", id, err)
	}
	if !ok {
		return domain.ErrRuleNotFound
	}
	if err := s.client.HIncrBy(ctx, s.ruleKey(id), fieldUsage, delta).Err(); err != nil {
		return fmt.Errorf("redis: increment usage of %s: %w", id, err)
	}
	return nil
}

func (s *RedisStore) RecordUnmapped(ctx context.Context, shop, category, sample string, at time.Time) (domain.UnmappedCategory, error) {
	key := s.unmappedKey(shop, category)
	entry := domain.UnmappedCategory{Shop: shop, OriginalCategory: category, FirstSeen: at, LastSeen: at}

	err := s.retryTx(ctx, key, func(tx *redis.Tx) error {
		fields, err := tx.HGetAll(ctx, key).Result()
		if err != nil {
			return err
		}
		var samples []string
		if raw := fields[fieldSamples]; raw != "" {
			if err := json.Unmarshal([]byte(raw), &samples); err != nil {
				return fmt.Errorf("redis: decode samples: %w", err)
			}
		}
		if v := fields[fieldFirstSeen]; v != "" {
			if t, err := time.Parse(time.RFC3339Nano, v); err == nil {
				entry.FirstSeen = t
			}
		}
		entry.SampleProducts = prependSample(samples, sample, s.sampleCap)
		encoded, err := json.Marshal(nonNil(entry.SampleProducts))
		if err != nil {
			return fmt.Errorf("redis: encode samples: %w", err)
		}

		var count *redis.IntCmd
		_, err = tx.TxPipelined(ctx, func(p redis.Pipeliner) error {
			count = p.HIncrBy(ctx, key, fieldCount, 1)
			p.HSet(ctx, key,
				fieldShop, shop,
				fieldCategory, category,
				fieldSamples, encoded,
				fieldLastSeen, at.UTC().Format(time.RFC3339Nano),
			)
			p.HSetNX(ctx, key, fieldFirstSeen, at.UTC().Format(time.RFC3339Nano))
			p.SAdd(ctx, s.unmappedIndexKey(), key)
			return nil
		})
		if err != nil {
			return err
		}
		entry.Count = count.Val()
		return nil
	})
	if err != nil {
		return domain.UnmappedCategory{}, fmt.Errorf("redis: record unmapped %q: %w", category, err)
	}
	return entry, nil
}

func (s *RedisStore) ListUnmapped(ctx context.Context) ([]domain.UnmappedCategory, error) {
	keys, err := s.client.SMembers(ctx, s.unmappedIndexKey()).Result()
	if err != nil {
		return nil, fmt.Errorf("%w: redis: list unmapped keys: %v", domain.ErrStoreUnavailable, err)
	}

	cmds := make([]*redis.MapStringStringCmd, len(keys))
	_, err = s.client.Pipelined(ctx, func(p redis.Pipeliner) error {
		for i, k := range keys {
			cmds[i] = p.HGetAll(ctx, k)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("redis: load unmapped: %w", err)
	}

	out := make([]domain.UnmappedCategory, 0, len(keys))
	for _, cmd := range cmds {
		f := cmd.Val()
		if len(f) == 0 {
			continue
		}
		e := domain.UnmappedCategory{Shop: f[fieldShop], OriginalCategory: f[fieldCategory]}
		e.Count, _ = strconv.ParseInt(f[fieldCount], 10, 64)
		e.FirstSeen, _ = time.Parse(time.RFC3339Nano, f[fieldFirstSeen])
		e.LastSeen, _ = time.Parse(time.RFC3339Nano, f[fieldLastSeen])
		if raw := f[fieldSamples]; raw != "" {
			if err := json.Unmarshal([]byte(raw), &e.SampleProducts); err != nil {
				return nil, fmt.Errorf("redis: decode samples: %w", err)
			}
		}
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Shop != out[j].Shop {
			return out[i].Shop < out[j].Shop
		}
		return out[i].OriginalCategory < out[j].OriginalCategory
	})
	return out, nil
}

// retryTx runs fn under WATCH key, retrying when another client wrote the key first
func (s *RedisStore) retryTx(ctx context.Context, key string, fn func(tx *redis.Tx) error) error {
	for range maxTxRetries {
		err := s.client.Watch(ctx, fn, key)
		if !errors.Is(err, redis.TxFailedErr) {
			return err
		}
	}
	return fmt.Errorf("redis: transaction on %s kept conflicting", key)
}
