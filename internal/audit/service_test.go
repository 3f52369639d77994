package audit

import (
	"context"
	"testing"
)

func TestService_AppendRequiresTenantAndType(t *testing.T) {
	repo := NewMemoryRepo()
	svc := NewService(repo)

	if err := svc.Append(context.Background(), Event{Type: EventTypeAdminAction}); err == nil {
		t.Fatalf("expected error")
	}
	if err := svc.Append(context.Background(), Event{TenantID: "t"}); err == nil {
		t.Fatalf("expected error")
	}
}

func TestService_AppendsImmutableEvents(t *testing.T) {
	repo := NewMemoryRepo()
	svc := NewService(repo)

	if err := svc.LogCampaignTransition(context.Background(), "t-1", "u-1", "c-1", "created", "running"); err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if err := svc.LogCallDisposition(context.Background(), "t-1", "c-1", "r-1", "no_answer"); err != nil {
		t.Fatalf("unexpected err: %v", err)
	}

	evs := repo.Events()
	if len(evs) != 2 {
		t.Fatalf("expected 2 events, got %d", len(evs))
	}
	if evs[0].Type != EventTypeCampaignTransition {
		t.Fatalf("expected campaign_transition, got %s", evs[0].Type)
	}
	if evs[0].Message != "campaign created -> running" {
		t.Fatalf("message = %q", evs[0].Message)
	}
	if evs[0].ID == "" || evs[0].CreatedAt.IsZero() {
		t.Fatalf("id/timestamp not assigned: %+v", evs[0])
	}
	if evs[1].CallRunID != "r-1" {
		t.Fatalf("call run id = %s", evs[1].CallRunID)
	}
}
