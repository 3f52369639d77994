package campaign

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

// PostgresRepo assumes tables campaigns and contacts.
type PostgresRepo struct {
	db *sql.DB
}

func NewPostgresRepo(db *sql.DB) *PostgresRepo { return &PostgresRepo{db: db} }

func (r *PostgresRepo) CreateCampaign(ctx context.Context, c Campaign) error {
	const q = `
INSERT INTO campaigns (id, tenant_id, agent_id, source, state, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7)
`
	_, err := r.db.ExecContext(ctx, q, c.ID, c.TenantID, c.AgentID, c.Source, string(c.State), c.CreatedAt, c.UpdatedAt)
	return err
}

func (r *PostgresRepo) GetCampaign(ctx context.Context, tenantID, campaignID string) (Campaign, error) {
	const q = `
SELECT id, tenant_id, agent_id, COALESCE(source, ''), state, created_at, updated_at
FROM campaigns
WHERE tenant_id = $1 AND id = $2
`
	var c Campaign
	var state string
	if err := r.db.QueryRowContext(ctx, q, tenantID, campaignID).Scan(
		&c.ID, &c.TenantID, &c.AgentID, &c.Source, &state, &c.CreatedAt, &c.UpdatedAt,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Campaign{}, ErrNotFound
		}
		return Campaign{}, err
	}
	c.State = State(state)
	return c, nil
}

func (r *PostgresRepo) ListCampaigns(ctx context.Context, tenantID string) ([]Campaign, error) {
	const q = `
SELECT id, tenant_id, agent_id, COALESCE(source, ''), state, created_at, updated_at
FROM campaigns
WHERE tenant_id = $1
ORDER BY created_at ASC
`
	rows, err := r.db.QueryContext(ctx, q, tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Campaign
	for rows.Next() {
		var c Campaign
		var state string
		if err := rows.Scan(&c.ID, &c.TenantID, &c.AgentID, &c.Source, &state, &c.CreatedAt, &c.UpdatedAt); err != nil {
			return nil, err
		}
		c.State = State(state)
		out = append(out, c)
	}
	return out, rows.Err()
}

func (r *PostgresRepo) SetState(ctx context.Context, campaignID string, state State, at time.Time) error {
	const q = `UPDATE campaigns SET state = $2, updated_at = $3 WHERE id = $1`
	res, err := r.db.ExecContext(ctx, q, campaignID, string(state), at)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *PostgresRepo) InsertContacts(ctx context.Context, contacts []Contact) error {
	if len(contacts) == 0 {
		return nil
	}

	// Multi-row VALUES insert; 8 columns per row.
	var sb strings.Builder
	sb.WriteString(`INSERT INTO contacts (id, campaign_id, tenant_id, phone, first_name, last_name, status, created_at) VALUES `)
	args := make([]any, 0, len(contacts)*8)
	for i, c := range contacts {
		if i > 0 {
			sb.WriteString(", ")
		}
		base := i * 8
		fmt.Fprintf(&sb, "($%d,$%d,$%d,$%d,$%d,$%d,$%d,$%d)",
			base+1, base+2, base+3, base+4, base+5, base+6, base+7, base+8)
		args = append(args, c.ID, c.CampaignID, c.TenantID, c.Phone, c.FirstName, c.LastName, string(c.Status), c.CreatedAt)
	}

	_, err := r.db.ExecContext(ctx, sb.String(), args...)
	return err
}

func (r *PostgresRepo) ListPendingContacts(ctx context.Context, campaignID string) ([]Contact, error) {
	const q = `
SELECT id, campaign_id, tenant_id, phone, COALESCE(first_name, ''), COALESCE(last_name, ''), status, COALESCE(call_run_id, ''), created_at
FROM contacts
WHERE campaign_id = $1 AND status = $2
ORDER BY id ASC
`
	rows, err := r.db.QueryContext(ctx, q, campaignID, string(ContactPending))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Contact
	for rows.Next() {
		c, err := scanContact(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (r *PostgresRepo) GetContact(ctx context.Context, contactID string) (Contact, error) {
	const q = `
SELECT id, campaign_id, tenant_id, phone, COALESCE(first_name, ''), COALESCE(last_name, ''), status, COALESCE(call_run_id, ''), created_at
FROM contacts
WHERE id = $1
`
	c, err := scanContact(r.db.QueryRowContext(ctx, q, contactID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Contact{}, ErrNotFound
		}
		return Contact{}, err
	}
	return c, nil
}

func (r *PostgresRepo) CountContactsByStatus(ctx context.Context, campaignID string) (map[ContactStatus]int, error) {
	const q = `SELECT status, COUNT(*) FROM contacts WHERE campaign_id = $1 GROUP BY status`
	rows, err := r.db.QueryContext(ctx, q, campaignID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := map[ContactStatus]int{}
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, err
		}
		out[ContactStatus(status)] = n
	}
	return out, rows.Err()
}

func (r *PostgresRepo) MarkContactCalled(ctx context.Context, contactID, runID string) (bool, error) {
	// Status guard in the WHERE clause makes re-processing idempotent.
	const q = `
UPDATE contacts SET status = $2, call_run_id = $3
WHERE id = $1 AND status = $4
`
	res, err := r.db.ExecContext(ctx, q, contactID, string(ContactCalled), runID, string(ContactPending))
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (r *PostgresRepo) MarkContactFailed(ctx context.Context, contactID string) (bool, error) {
	const q = `
UPDATE contacts SET status = $2
WHERE id = $1 AND status = $3
`
	res, err := r.db.ExecContext(ctx, q, contactID, string(ContactFailed), string(ContactPending))
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

type contactScanner interface {
	Scan(dest ...any) error
}

func scanContact(row contactScanner) (Contact, error) {
	var c Contact
	var status string
	if err := row.Scan(&c.ID, &c.CampaignID, &c.TenantID, &c.Phone, &c.FirstName, &c.LastName, &status, &c.CallRunID, &c.CreatedAt); err != nil {
		return Contact{}, err
	}
	c.Status = ContactStatus(status)
	return c, nil
}
