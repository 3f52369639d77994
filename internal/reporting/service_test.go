package reporting

import (
	"context"
	"errors"
	"testing"
	"time"

	"voicecampaign/internal/calls"
	"voicecampaign/internal/campaign"
	"voicecampaign/internal/usage"
)

func seedRun(t *testing.T, repo *calls.MemoryRepo, id, tenantID, campaignID string, status calls.RunStatus, disp calls.Disposition, duration int, tokens int64, recorded bool) {
	t.Helper()
	ctx := context.Background()
	run := calls.CallRun{
		ID:         id,
		TenantID:   tenantID,
		RunNumber:  calls.NewRunNumber(time.Now()),
		AgentID:    "agent-1",
		CampaignID: campaignID,
		Type:       calls.CallTypePhone,
		Status:     calls.RunStatusInProgress,
		CreatedAt:  time.Now().UTC().Add(-time.Hour),
	}
	if err := repo.CreateRun(ctx, run); err != nil {
		t.Fatalf("CreateRun: %v", err)
	}
	if tokens > 0 {
		if err := repo.AddTokens(ctx, id, tokens); err != nil {
			t.Fatalf("AddTokens: %v", err)
		}
	}
	if status != calls.RunStatusInProgress {
		if err := repo.CompleteRun(ctx, id, status, disp, duration, time.Now().UTC()); err != nil {
			t.Fatalf("CompleteRun: %v", err)
		}
	}
	if recorded {
		if err := repo.AttachRecording(ctx, id, "https://rec.example.com/"+id, duration); err != nil {
			t.Fatalf("AttachRecording: %v", err)
		}
	}
}

func TestRunsSummaryCountsDispositions(t *testing.T) {
	runs := calls.NewMemoryRepo()
	seedRun(t, runs, "r1", "t-1", "c-1", calls.RunStatusCompleted, calls.DispositionCompleted, 60, 300, true)
	seedRun(t, runs, "r2", "t-1", "c-1", calls.RunStatusCompleted, calls.DispositionUserHangup, 30, 100, false)
	seedRun(t, runs, "r3", "t-1", "c-1", calls.RunStatusFailed, calls.DispositionNoAnswer, 0, 0, false)
	seedRun(t, runs, "r4", "t-1", "c-1", calls.RunStatusInProgress, "", 0, 0, false)
	seedRun(t, runs, "r5", "t-2", "c-9", calls.RunStatusCompleted, calls.DispositionCompleted, 10, 50, false)

	svc := NewService(runs, usage.NewMemoryRepo(), campaign.NewMemoryRepo())
	out, err := svc.RunsSummary(context.Background(), RunsSummaryRequest{
		TenantID: "t-1",
		Range:    TimeRange{From: time.Now().Add(-2 * time.Hour), To: time.Now().Add(time.Hour)},
	})
	if err != nil {
		t.Fatalf("RunsSummary: %v", err)
	}

	if out.TotalRuns != 4 {
		t.Fatalf("total = %d, want 4 (tenant isolation)", out.TotalRuns)
	}
	if out.CompletedRuns != 1 || out.UserHangups != 1 || out.NoAnswerRuns != 1 || out.InProgressRuns != 1 {
		t.Fatalf("summary = %+v", out)
	}
	if out.TotalDurationSeconds != 90 || out.AverageDurationSeconds != 22 {
		t.Fatalf("durations = %d/%d", out.TotalDurationSeconds, out.AverageDurationSeconds)
	}
	if out.TotalTokensUsed != 400 {
		t.Fatalf("tokens = %d, want 400", out.TotalTokensUsed)
	}
	if out.RecordedRuns != 1 {
		t.Fatalf("recorded = %d, want 1", out.RecordedRuns)
	}
}

func TestRunsSummaryValidatesRequest(t *testing.T) {
	svc := NewService(calls.NewMemoryRepo(), usage.NewMemoryRepo(), campaign.NewMemoryRepo())

	_, err := svc.RunsSummary(context.Background(), RunsSummaryRequest{
		Range: TimeRange{From: time.Now().Add(-time.Hour), To: time.Now()},
	})
	if !errors.Is(err, ErrInvalidRequest) {
		t.Fatalf("missing tenant = %v, want ErrInvalidRequest", err)
	}

	_, err = svc.RunsSummary(context.Background(), RunsSummaryRequest{TenantID: "t-1"})
	if !errors.Is(err, ErrInvalidRequest) {
		t.Fatalf("zero range = %v, want ErrInvalidRequest", err)
	}
}

func TestSpendSummaryAggregatesBuckets(t *testing.T) {
	buckets := usage.NewMemoryRepo()
	ctx := context.Background()
	day1 := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)
	day2 := time.Date(2025, 6, 2, 10, 0, 0, 0, time.UTC)
	if err := buckets.AddUsage(ctx, "t-1", day1, usage.Delta{Tokens: 1000, Calls: 2, DurationSeconds: 120, CostMinor: 6}); err != nil {
		t.Fatalf("AddUsage: %v", err)
	}
	if err := buckets.AddUsage(ctx, "t-1", day2, usage.Delta{Tokens: 500, Calls: 1, DurationSeconds: 60, CostMinor: 3}); err != nil {
		t.Fatalf("AddUsage: %v", err)
	}
	if err := buckets.AddUsage(ctx, "t-2", day1, usage.Delta{Tokens: 9999, Calls: 9, CostMinor: 99}); err != nil {
		t.Fatalf("AddUsage: %v", err)
	}

	svc := NewService(calls.NewMemoryRepo(), buckets, campaign.NewMemoryRepo())
	out, err := svc.SpendSummary(ctx, SpendSummaryRequest{
		TenantID: "t-1",
		Range:    TimeRange{From: time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC), To: time.Date(2025, 7, 1, 0, 0, 0, 0, time.UTC)},
	})
	if err != nil {
		t.Fatalf("SpendSummary: %v", err)
	}

	if out.Tokens != 1500 || out.Calls != 3 || out.DurationSeconds != 180 || out.CostMinor != 9 {
		t.Fatalf("totals = %+v", out)
	}
	if len(out.Days) != 2 {
		t.Fatalf("days = %d, want 2", len(out.Days))
	}
	if out.Days[0].Day != "2025-06-01" || out.Days[0].Tokens != 1000 {
		t.Fatalf("first day = %+v", out.Days[0])
	}
}

func TestCampaignOutcome(t *testing.T) {
	campaigns := campaign.NewMemoryRepo()
	ctx := context.Background()
	now := time.Now().UTC()
	if err := campaigns.CreateCampaign(ctx, campaign.Campaign{
		ID: "c-1", TenantID: "t-1", AgentID: "a-1", State: campaign.StateRunning, CreatedAt: now, UpdatedAt: now,
	}); err != nil {
		t.Fatalf("CreateCampaign: %v", err)
	}
	contacts := []campaign.Contact{
		{ID: "k1", CampaignID: "c-1", TenantID: "t-1", Phone: "+1", Status: campaign.ContactCalled, CreatedAt: now},
		{ID: "k2", CampaignID: "c-1", TenantID: "t-1", Phone: "+2", Status: campaign.ContactCalled, CreatedAt: now},
		{ID: "k3", CampaignID: "c-1", TenantID: "t-1", Phone: "+3", Status: campaign.ContactFailed, CreatedAt: now},
		{ID: "k4", CampaignID: "c-1", TenantID: "t-1", Phone: "+4", Status: campaign.ContactPending, CreatedAt: now},
	}
	if err := campaigns.InsertContacts(ctx, contacts); err != nil {
		t.Fatalf("InsertContacts: %v", err)
	}

	svc := NewService(calls.NewMemoryRepo(), usage.NewMemoryRepo(), campaigns)
	out, err := svc.CampaignOutcome(ctx, CampaignOutcomeRequest{TenantID: "t-1", CampaignID: "c-1"})
	if err != nil {
		t.Fatalf("CampaignOutcome: %v", err)
	}

	if out.ContactsTotal != 4 || out.ContactsCalled != 2 || out.ContactsFailed != 1 || out.ContactsPending != 1 {
		t.Fatalf("outcome = %+v", out)
	}
	if out.ReachRate != 0.5 {
		t.Fatalf("reach rate = %v, want 0.5", out.ReachRate)
	}
	if out.State != "running" {
		t.Fatalf("state = %s", out.State)
	}

	if _, err := svc.CampaignOutcome(ctx, CampaignOutcomeRequest{TenantID: "t-2", CampaignID: "c-1"}); !errors.Is(err, campaign.ErrNotFound) {
		t.Fatalf("cross-tenant outcome = %v, want ErrNotFound", err)
	}
}
