package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/daehwan-dev/policy-assistant/internal/core/domain"
)

type PolicyRepository struct {
	db *sql.DB
}

func NewPolicyRepository(db *sql.DB) *PolicyRepository {
	return &PolicyRepository{db: db}
}

func OpenDB(dsn string) (*sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("sql open: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(30 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("db ping: %w", err)
	}
	return db, nil
}

func (r *PolicyRepository) EnsureSchema(ctx context.Context) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin schema tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	// Serialize bootstrap DDL across concurrent api startups.
	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock($1)`, int64(2026082501)); err != nil {
		return fmt.Errorf("acquire schema lock: %w", err)
	}

	const query = `
CREATE TABLE IF NOT EXISTS policies (
	id BIGINT PRIMARY KEY,
	name TEXT NOT NULL,
	region TEXT,
	category TEXT,
	overview TEXT,
	apply_target TEXT,
	support_description TEXT,
	url TEXT,
	extras JSONB NOT NULL DEFAULT '{}'::jsonb,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_policies_region ON policies(region);
CREATE INDEX IF NOT EXISTS idx_policies_category ON policies(category);
`
	if _, err := tx.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("execute schema ddl: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit schema tx: %w", err)
	}
	return nil
}

const policyColumns = `id, name, region, category, overview, apply_target, support_description, url, extras`

func (r *PolicyRepository) GetByID(ctx context.Context, id int64) (*domain.PolicyRecord, error) {
	row := r.db.QueryRowContext(ctx, `
SELECT `+policyColumns+`
FROM policies
WHERE id = $1
`, id)

	policy, err := scanPolicy(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.WrapError(domain.ErrPolicyNotFound, fmt.Sprintf("policy %d", id), err)
		}
		return nil, fmt.Errorf("scan policy: %w", err)
	}
	return policy, nil
}

// LookupPolicies resolves metadata for a batch of policy ids. Missing ids are
// simply absent from the returned map.
func (r *PolicyRepository) LookupPolicies(ctx context.Context, ids []int64) (map[int64]domain.PolicyRecord, error) {
	if len(ids) == 0 {
		return map[int64]domain.PolicyRecord{}, nil
	}

	placeholders := make([]string, len(ids))
	args := make([]any, len(ids))
	for i, id := range ids {
		placeholders[i] = fmt.Sprintf("$%d", i+1)
		args[i] = id
	}

	query := fmt.Sprintf(`
SELECT `+policyColumns+`
FROM policies
WHERE id IN (%s)
`, strings.Join(placeholders, ","))

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query policies: %w", err)
	}
	defer rows.Close()

	out := make(map[int64]domain.PolicyRecord, len(ids))
	for rows.Next() {
		policy, err := scanPolicy(rows)
		if err != nil {
			return nil, fmt.Errorf("scan policy: %w", err)
		}
		out[policy.ID] = *policy
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate policies: %w", err)
	}
	return out, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPolicy(row rowScanner) (*domain.PolicyRecord, error) {
	var policy domain.PolicyRecord
	var region, category, overview, applyTarget, supportDesc, url sql.NullString
	var extrasRaw []byte

	err := row.Scan(
		&policy.ID, &policy.Name, &region, &category, &overview,
		&applyTarget, &supportDesc, &url, &extrasRaw,
	)
	if err != nil {
		return nil, err
	}

	policy.Region = region.String
	policy.Category = category.String
	policy.Overview = overview.String
	policy.ApplyTarget = applyTarget.String
	policy.SupportDescription = supportDesc.String
	policy.URL = url.String

	if len(extrasRaw) > 0 {
		if err := json.Unmarshal(extrasRaw, &policy.Extras); err != nil {
			return nil, fmt.Errorf("unmarshal extras: %w", err)
		}
	}
	return &policy, nil
}
