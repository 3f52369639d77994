package campaign

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryRepo is an in-memory Repository for tests and early development.
type MemoryRepo struct {
	mu        sync.Mutex
	campaigns map[string]Campaign
	contacts  map[string]Contact
}

func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{
		campaigns: map[string]Campaign{},
		contacts:  map[string]Contact{},
	}
}

func (r *MemoryRepo) CreateCampaign(ctx context.Context, c Campaign) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.campaigns[c.ID] = c
	return nil
}

func (r *MemoryRepo) GetCampaign(ctx context.Context, tenantID, campaignID string) (Campaign, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.campaigns[campaignID]
	if !ok || c.TenantID != tenantID {
		return Campaign{}, ErrNotFound
	}
	return c, nil
}

func (r *MemoryRepo) ListCampaigns(ctx context.Context, tenantID string) ([]Campaign, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Campaign, 0)
	for _, c := range r.campaigns {
		if c.TenantID == tenantID {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (r *MemoryRepo) SetState(ctx context.Context, campaignID string, state State, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.campaigns[campaignID]
	if !ok {
		return ErrNotFound
	}
	c.State = state
	c.UpdatedAt = at
	r.campaigns[campaignID] = c
	return nil
}

func (r *MemoryRepo) InsertContacts(ctx context.Context, contacts []Contact) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, c := range contacts {
		r.contacts[c.ID] = c
	}
	return nil
}

func (r *MemoryRepo) ListPendingContacts(ctx context.Context, campaignID string) ([]Contact, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Contact, 0)
	for _, c := range r.contacts {
		if c.CampaignID == campaignID && c.Status == ContactPending {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *MemoryRepo) GetContact(ctx context.Context, contactID string) (Contact, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.contacts[contactID]
	if !ok {
		return Contact{}, ErrNotFound
	}
	return c, nil
}

func (r *MemoryRepo) CountContactsByStatus(ctx context.Context, campaignID string) (map[ContactStatus]int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := map[ContactStatus]int{}
	for _, c := range r.contacts {
		if c.CampaignID == campaignID {
			out[c.Status]++
		}
	}
	return out, nil
}

func (r *MemoryRepo) MarkContactCalled(ctx context.Context, contactID, runID string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.contacts[contactID]
	if !ok {
		return false, ErrNotFound
	}
	if c.Status != ContactPending {
		return false, nil
	}
	c.Status = ContactCalled
	c.CallRunID = runID
	r.contacts[contactID] = c
	return true, nil
}

func (r *MemoryRepo) MarkContactFailed(ctx context.Context, contactID string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.contacts[contactID]
	if !ok {
		return false, ErrNotFound
	}
	if c.Status != ContactPending {
		return false, nil
	}
	c.Status = ContactFailed
	r.contacts[contactID] = c
	return true, nil
}
