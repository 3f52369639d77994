package usage

import (
	"context"
	"database/sql"
	"time"
)

// PostgresRepo assumes table usage_buckets with PRIMARY KEY (tenant_id, day).
type PostgresRepo struct {
	db *sql.DB
}

func NewPostgresRepo(db *sql.DB) *PostgresRepo { return &PostgresRepo{db: db} }

func (r *PostgresRepo) AddUsage(ctx context.Context, tenantID string, day time.Time, d Delta) error {
	// Single-statement upsert-with-add; the row lock taken by ON CONFLICT
	// serializes concurrent increments for the same tenant/day.
	const q = `
INSERT INTO usage_buckets (tenant_id, day, tokens, calls, duration_seconds, cost_minor, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, NOW())
ON CONFLICT (tenant_id, day) DO UPDATE SET
  tokens           = usage_buckets.tokens + EXCLUDED.tokens,
  calls            = usage_buckets.calls + EXCLUDED.calls,
  duration_seconds = usage_buckets.duration_seconds + EXCLUDED.duration_seconds,
  cost_minor       = usage_buckets.cost_minor + EXCLUDED.cost_minor,
  updated_at       = NOW()
`
	_, err := r.db.ExecContext(ctx, q, tenantID, Day(day), d.Tokens, d.Calls, d.DurationSeconds, d.CostMinor)
	return err
}

func (r *PostgresRepo) SumRange(ctx context.Context, tenantID string, from, to time.Time) (Totals, error) {
	const q = `
SELECT COALESCE(SUM(tokens), 0), COALESCE(SUM(calls), 0),
       COALESCE(SUM(duration_seconds), 0), COALESCE(SUM(cost_minor), 0)
FROM usage_buckets
WHERE tenant_id = $1 AND day >= $2 AND day < $3
`
	var t Totals
	err := r.db.QueryRowContext(ctx, q, tenantID, Day(from), Day(to)).Scan(
		&t.Tokens, &t.Calls, &t.DurationSeconds, &t.CostMinor,
	)
	return t, err
}

func (r *PostgresRepo) ListBuckets(ctx context.Context, tenantID string, from, to time.Time) ([]Bucket, error) {
	const q = `
SELECT tenant_id, day, tokens, calls, duration_seconds, cost_minor, updated_at
FROM usage_buckets
WHERE tenant_id = $1 AND day >= $2 AND day < $3
ORDER BY day ASC
`
	rows, err := r.db.QueryContext(ctx, q, tenantID, Day(from), Day(to))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Bucket
	for rows.Next() {
		var b Bucket
		if err := rows.Scan(&b.TenantID, &b.Day, &b.Tokens, &b.Calls, &b.DurationSeconds, &b.CostMinor, &b.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}
