package campaign

import (
	"context"
	"time"
)

// Repository is the persistence contract for campaigns and contacts.
//
// Tenancy: campaign reads are (tenantID, campaignID)-scoped. Contact status
// transitions are keyed by contact id alone because the worker reaches them
// through a job payload that already carried the tenant.
type Repository interface {
	CreateCampaign(ctx context.Context, c Campaign) error
	GetCampaign(ctx context.Context, tenantID, campaignID string) (Campaign, error)
	ListCampaigns(ctx context.Context, tenantID string) ([]Campaign, error)

	// SetState persists a state transition and bumps updated_at.
	SetState(ctx context.Context, campaignID string, state State, at time.Time) error

	// InsertContacts bulk-inserts rows. Not idempotent: re-invocation
	// duplicates rows, so callers load a campaign's list at most once.
	InsertContacts(ctx context.Context, contacts []Contact) error

	ListPendingContacts(ctx context.Context, campaignID string) ([]Contact, error)
	GetContact(ctx context.Context, contactID string) (Contact, error)
	CountContactsByStatus(ctx context.Context, campaignID string) (map[ContactStatus]int, error)

	// MarkContactCalled / MarkContactFailed transition a contact out of
	// pending. They are guarded: a contact that already left pending is not
	// changed and the call reports false.
	MarkContactCalled(ctx context.Context, contactID, runID string) (bool, error)
	MarkContactFailed(ctx context.Context, contactID string) (bool, error)
}
