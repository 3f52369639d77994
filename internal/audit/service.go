package audit

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Repository is the persistence contract for audit events.
//
// It MUST be append-only.
// No Update/Delete methods are provided by design.

type Repository interface {
	Append(ctx context.Context, e Event) error
}

// Service logs internal audit information.
//
// IMPORTANT:
// - Audit is internal-only. Do not expose these records to tenant users by default.
// - Callers should treat audit logging as best-effort.

type Service struct {
	repo  Repository
	clock func() time.Time
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo, clock: time.Now}
}

var ErrInvalidEvent = errors.New("audit: invalid event")

func (s *Service) Append(ctx context.Context, e Event) error {
	if s.repo == nil {
		return errors.New("audit: repository not configured")
	}
	if e.TenantID == "" {
		return ErrInvalidEvent
	}
	if e.Type == "" {
		return ErrInvalidEvent
	}

	now := s.clock().UTC()
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = now
	}
	return s.repo.Append(ctx, e)
}

// LogCampaignTransition records one campaign state change.
func (s *Service) LogCampaignTransition(ctx context.Context, tenantID, actorID, campaignID, from, to string) error {
	return s.Append(ctx, Event{
		TenantID:    tenantID,
		Type:        EventTypeCampaignTransition,
		ActorUserID: actorID,
		CampaignID:  campaignID,
		Message:     fmt.Sprintf("campaign %s -> %s", from, to),
	})
}

// LogCallDisposition records how a call run ended.
func (s *Service) LogCallDisposition(ctx context.Context, tenantID, campaignID, runID, disposition string) error {
	return s.Append(ctx, Event{
		TenantID:   tenantID,
		Type:       EventTypeCallDisposition,
		CampaignID: campaignID,
		CallRunID:  runID,
		Message:    "call ended: " + disposition,
	})
}

// LogAdminAction records an admin action performed on a tenant's resources.
func (s *Service) LogAdminAction(ctx context.Context, tenantID, actorUserID, message, metadata string) error {
	return s.Append(ctx, Event{
		TenantID:    tenantID,
		Type:        EventTypeAdminAction,
		ActorUserID: actorUserID,
		Message:     message,
		Metadata:    metadata,
	})
}
