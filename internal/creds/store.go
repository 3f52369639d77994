package creds

import (
	"context"
	"database/sql"
	"errors"
	"sync"
	"time"
)

// Repository stores per-tenant credential bundles.
type Repository interface {
	Get(ctx context.Context, tenantID string) (Credentials, error)
	Put(ctx context.Context, tenantID string, c Credentials) error
	Delete(ctx context.Context, tenantID string) error
}

// StoreResolver resolves from tenant-stored bundles. An absent or incomplete
// bundle yields ErrNoCredentials so the chain can fall through.
type StoreResolver struct {
	repo Repository
}

func NewStoreResolver(repo Repository) *StoreResolver { return &StoreResolver{repo: repo} }

func (r *StoreResolver) Resolve(ctx context.Context, tenantID string) (Credentials, error) {
	out, err := r.repo.Get(ctx, tenantID)
	if err != nil {
		return Credentials{}, err
	}
	if !out.complete() {
		return Credentials{}, ErrNoCredentials
	}
	out.Source = "tenant"
	return out, nil
}

// PostgresRepo assumes table tenant_credentials keyed by tenant_id.
type PostgresRepo struct {
	db *sql.DB
}

func NewPostgresRepo(db *sql.DB) *PostgresRepo { return &PostgresRepo{db: db} }

func (r *PostgresRepo) Get(ctx context.Context, tenantID string) (Credentials, error) {
	const q = `
SELECT account_sid, auth_token, from_number
FROM tenant_credentials
WHERE tenant_id = $1
`
	var c Credentials
	if err := r.db.QueryRowContext(ctx, q, tenantID).Scan(&c.AccountSID, &c.AuthToken, &c.FromNumber); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Credentials{}, ErrNoCredentials
		}
		return Credentials{}, err
	}
	return c, nil
}

func (r *PostgresRepo) Put(ctx context.Context, tenantID string, c Credentials) error {
	const q = `
INSERT INTO tenant_credentials (tenant_id, account_sid, auth_token, from_number, updated_at)
VALUES ($1, $2, $3, $4, $5)
ON CONFLICT (tenant_id) DO UPDATE SET
	account_sid = EXCLUDED.account_sid,
	auth_token  = EXCLUDED.auth_token,
	from_number = EXCLUDED.from_number,
	updated_at  = EXCLUDED.updated_at
`
	_, err := r.db.ExecContext(ctx, q, tenantID, c.AccountSID, c.AuthToken, c.FromNumber, time.Now().UTC())
	return err
}

func (r *PostgresRepo) Delete(ctx context.Context, tenantID string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM tenant_credentials WHERE tenant_id = $1`, tenantID)
	return err
}

// MemoryRepo is an in-memory Repository for tests.
type MemoryRepo struct {
	mu   sync.Mutex
	byID map[string]Credentials
}

func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{byID: map[string]Credentials{}}
}

func (r *MemoryRepo) Get(ctx context.Context, tenantID string) (Credentials, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.byID[tenantID]
	if !ok {
		return Credentials{}, ErrNoCredentials
	}
	return c, nil
}

func (r *MemoryRepo) Put(ctx context.Context, tenantID string, c Credentials) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byID[tenantID] = c
	return nil
}

func (r *MemoryRepo) Delete(ctx context.Context, tenantID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.byID, tenantID)
	return nil
}
