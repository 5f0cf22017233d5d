package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"
	// Register modernc SQLite driver with database/sql.
	_ "modernc.org/sqlite"

	"github.com/pricefeed/backend/internal/domain"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS category_rules (
	id           TEXT PRIMARY KEY,
	shop         TEXT NOT NULL,
	pattern      TEXT NOT NULL,
	pattern_type TEXT NOT NULL,
	target_path  TEXT NOT NULL,
	confidence   REAL NOT NULL,
	created_by   TEXT NOT NULL,
	usage_count  INTEGER NOT NULL DEFAULT 0,
	enabled      INTEGER NOT NULL DEFAULT 1,
	created_at   TEXT NOT NULL,
	updated_at   TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_category_rules_shop ON category_rules (shop);
CREATE TABLE IF NOT EXISTS unmapped_categories (
	shop              TEXT NOT NULL,
	original_category TEXT NOT NULL,
	sample_products   TEXT NOT NULL DEFAULT '[]',
	seen_count        INTEGER NOT NULL DEFAULT 0,
	first_seen        TEXT NOT NULL,
	last_seen         TEXT NOT NULL,
	PRIMARY KEY (shop, original_category)
);`

var ruleColumns = []string{
	"id", "shop", "pattern", "pattern_type", "target_path", "confidence",
	"created_by", "usage_count", "enabled", "created_at", "updated_at",
}

// SQLiteStore persists rules and the unmapped queue in a SQLite file
type SQLiteStore struct {
	db        *sql.DB
	sb        sq.StatementBuilderType
	sampleCap int
}

// NewSQLiteStore opens (creating if needed) the database at path and applies the schema
func NewSQLiteStore(ctx context.Context, path string, sampleCap int) (*SQLiteStore, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("sqlite: database path is required")
	}
	db, err := sql.Open("sqlite", buildDSN(path))
	if err != nil {
		return nil, fmt.Errorf("sqlite: open database: %w", err)
	}
	// one writer at a time keeps read-modify-write transactions serialized
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("%w: sqlite: %v", domain.ErrStoreUnavailable, err)
	}
	if _, err := db.ExecContext(ctx, sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite: apply schema: %w", err)
	}

	return &SQLiteStore{
		db:        db,
		sb:        sq.StatementBuilder.PlaceholderFormat(sq.Question),
		sampleCap: normalizeSampleCap(sampleCap),
	}, nil
}

func buildDSN(path string) string {
	if path == ":memory:" {
		return "file::memory:?cache=shared"
	}
	return "file:" + path + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"
}

func (s *SQLiteStore) Close() error { return s.db.Close() }

func (s *SQLiteStore) ListRules(ctx context.Context, shop string) ([]domain.CategoryRule, error) {
	q := s.sb.Select(ruleColumns...).From("category_rules").OrderBy("id")
	if shop != "" {
		q = q.Where(sq.Eq{"shop": []string{shop, domain.AnyShop, ""}})
	}
	query, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("sqlite: build list rules: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("sqlite: list rules: %w", err)
	}
	defer rows.Close()

	var out []domain.CategoryRule
	for rows.Next() {
		r, err := scanRule(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iter rules: %w", err)
	}
	return out, nil
}

func (s *SQLiteStore) GetRule(ctx context.Context, id string) (domain.CategoryRule, error) {
	query, args, err := s.sb.Select(ruleColumns...).From("category_rules").Where(sq.Eq{"id": id}).ToSql()
	if err != nil {
		return domain.CategoryRule{}, fmt.Errorf("sqlite: build get rule: %w", err)
	}
	r, err := scanRule(s.db.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return domain.CategoryRule{}, domain.ErrRuleNotFound
	}
	return r, err
}

func (s *SQLiteStore) UpsertRule(ctx context.Context, rule domain.CategoryRule) (domain.CategoryRule, error) {
	target, err := json.Marshal(rule.TargetPath)
	if err != nil {
		return domain.CategoryRule{}, fmt.Errorf("sqlite: marshal target path: %w", err)
	}
	now := time.Now().UTC()
	if rule.CreatedAt.IsZero() {
		rule.CreatedAt = now
	}
	if rule.UpdatedAt.IsZero() {
		rule.UpdatedAt = now
	}

	query, args, err := s.sb.Insert("category_rules").
		Columns(ruleColumns...).
		Values(
			rule.ID, rule.Shop, rule.Pattern, string(rule.PatternType), string(target), rule.Confidence,
			string(rule.CreatedBy), rule.UsageCount, rule.Enabled, formatTime(rule.CreatedAt), formatTime(rule.UpdatedAt),
		).
		Suffix(`ON CONFLICT (id) DO UPDATE SET
			shop = excluded.shop,
			pattern = excluded.pattern,
			pattern_type = excluded.pattern_type,
			target_path = excluded.target_path,
			confidence = excluded.confidence,
			created_by = excluded.created_by,
			enabled = excluded.enabled,
			updated_at = excluded.updated_at`).
		ToSql()
	if err != nil {
		return domain.CategoryRule{}, fmt.Errorf("sqlite: build upsert rule: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return domain.CategoryRule{}, fmt.Errorf("sqlite: upsert rule: %w", err)
	}
	return s.GetRule(ctx, rule.ID)
}

func (s *SQLiteStore) SetRuleEnabled(ctx context.Context, id string, enabled bool) error {
	return s.updateRule(ctx, id, s.sb.Update("category_rules").
		Set("enabled", enabled).
		Set("updated_at", formatTime(time.Now().UTC())))
}

// IncrementUsage is a single UPDATE so concurrent callers never lose increments
func (s *SQLiteStore) IncrementUsage(ctx context.Context, id string, delta int64) error {
	return s.updateRule(ctx, id, s.sb.Update("category_rules").
		Set("usage_count", sq.Expr("usage_count + ?", delta)))
}

func (s *SQLiteStore) updateRule(ctx context.Context, id string, ub sq.UpdateBuilder) error {
	query, args, err := ub.Where(sq.Eq{"id": id}).ToSql()
	if err != nil {
		return fmt.Errorf("sqlite: build update rule: %w", err)
	}
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("sqlite: update rule %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlite: update rule %s: %w", id, err)
	}
	if n == 0 {
		return domain.ErrRuleNotFound
	}
	return nil
}

// RecordUnmapped upserts the entry inside a transaction
func (s *SQLiteStore) RecordUnmapped(ctx context.Context, shop, category, sample string, at time.Time) (domain.UnmappedCategory, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return domain.UnmappedCategory{}, fmt.Errorf("sqlite: begin: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	key := sq.Eq{"shop": shop, "original_category": category}
	query, args, err := s.sb.Select("sample_products", "seen_count", "first_seen").
		From("unmapped_categories").Where(key).ToSql()
	if err != nil {
		return domain.UnmappedCategory{}, fmt.Errorf("sqlite: build select unmapped: %w", err)
	}

	entry := domain.UnmappedCategory{Shop: shop, OriginalCategory: category, FirstSeen: at}
	var samplesJSON, firstSeen string
	err = tx.QueryRowContext(ctx, query, args...).Scan(&samplesJSON, &entry.Count, &firstSeen)
	exists := err == nil
	switch {
	case errors.Is(err, sql.ErrNoRows):
	case err != nil:
		return domain.UnmappedCategory{}, fmt.Errorf("sqlite: select unmapped: %w", err)
	default:
		if err := json.Unmarshal([]byte(samplesJSON), &entry.SampleProducts); err != nil {
			return domain.UnmappedCategory{}, fmt.Errorf("sqlite: decode samples: %w", err)
		}
		if entry.FirstSeen, err = parseTime(firstSeen); err != nil {
			return domain.UnmappedCategory{}, err
		}
	}

	entry.Count++
	entry.LastSeen = at
	entry.SampleProducts = prependSample(entry.SampleProducts, sample, s.sampleCap)
	samples, err := json.Marshal(nonNil(entry.SampleProducts))
	if err != nil {
		return domain.UnmappedCategory{}, fmt.Errorf("sqlite: encode samples: %w", err)
	}

	if exists {
		query, args, err = s.sb.Update("unmapped_categories").
			Set("sample_products", string(samples)).
			Set("seen_count", entry.Count).
			Set("last_seen", formatTime(at)).
			Where(key).ToSql()
	} else {
		query, args, err = s.sb.Insert("unmapped_categories").
			Columns("shop", "original_category", "sample_products", "seen_count", "first_seen", "last_seen").
			Values(shop, category, string(samples), entry.Count, formatTime(at), formatTime(at)).
			ToSql()
	}
	if err != nil {
		return domain.UnmappedCategory{}, fmt.Errorf("sqlite: build write unmapped: %w", err)
	}
	if _, err := tx.ExecContext(ctx, query, args...); err != nil {
		return domain.UnmappedCategory{}, fmt.Errorf("sqlite: write unmapped: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return domain.UnmappedCategory{}, fmt.Errorf("sqlite: commit: %w", err)
	}
	return entry, nil
}

func (s *SQLiteStore) ListUnmapped(ctx context.Context) ([]domain.UnmappedCategory, error) {
	query, args, err := s.sb.Select("shop", "original_category", "sample_products", "seen_count", "first_seen", "last_seen").
		From("unmapped_categories").OrderBy("shop", "original_category").ToSql()
	if err != nil {
		return nil, fmt.Errorf("sqlite: build list unmapped: %w", err)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("sqlite: list unmapped: %w", err)
	}
	defer rows.Close()

	var out []domain.UnmappedCategory
	for rows.Next() {
		var e domain.UnmappedCategory
		var samples, firstSeen, lastSeen string
		if err := rows.Scan(&e.Shop, &e.OriginalCategory, &samples, &e.Count, &firstSeen, &lastSeen); err != nil {
			return nil, fmt.Errorf("sqlite: scan unmapped: %w", err)
		}
		if err := json.Unmarshal([]byte(samples), &e.SampleProducts); err != nil {
			return nil, fmt.Errorf("sqlite: decode samples: %w", err)
		}
		if e.FirstSeen, err = parseTime(firstSeen); err != nil {
			return nil, err
		}
		if e.LastSeen, err = parseTime(lastSeen); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iter unmapped: %w", err)
	}
	return out, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRule(row rowScanner) (domain.CategoryRule, error) {
	var r domain.CategoryRule
	var patternType, createdBy, target, createdAt, updated string
	err := row.Scan(
		&r.ID, &r.Shop, &r.Pattern, &patternType, &target, &r.Confidence,
		&createdBy, &r.UsageCount, &r.Enabled, &createdAt, &updated,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return r, err
		}
		return r, fmt.Errorf("sqlite: scan rule: %w", err)
	}
	r.PatternType = domain.PatternType(patternType)
	r.CreatedBy = domain.RuleCreator(createdBy)
	if err := json.Unmarshal([]byte(target), &r.TargetPath); err != nil {
		return r, fmt.Errorf("sqlite: decode target path: %w", err)
	}
	if r.CreatedAt, err = parseTime(createdAt); err != nil {
		return r, err
	}
	if r.UpdatedAt, err = parseTime(updated); err != nil {
		return r, err
	}
	return r, nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("sqlite: parse time %q: %w", s, err)
	}
	return t, nil
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
