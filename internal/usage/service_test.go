package usage

import (
	"context"
	"sync"
	"testing"
	"time"

	"voicecampaign/internal/pricing"
	"voicecampaign/internal/rbac"
)

func newTestService(repo Repository, tiers TierSource) *Service {
	svc := NewService(repo, pricing.NewService(pricing.NewMemoryRepo().SeedDefaults()), tiers)
	svc.clock = func() time.Time { return time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC) }
	return svc
}

func TestCheckCallLimit_DeniesWhenEstimateExceedsRemaining(t *testing.T) {
	repo := NewMemoryRepo()
	svc := newTestService(repo, StaticTiers{Default: Tier{Name: "free", MonthlyTokenLimit: 1000, MonthlyCallLimit: 2}})

	ctx := context.Background()
	// Two calls already recorded this month.
	if err := svc.RecordUsage(ctx, "t1", Usage{Provider: pricing.ProviderTwilio, Calls: 2}); err != nil {
		t.Fatalf("record: %v", err)
	}

	d, err := svc.CheckCallLimit(ctx, "t1", rbac.RoleOwner, Usage{Calls: 1})
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	if d.Allowed {
		t.Fatalf("expected denial, got %+v", d)
	}
	if d.RemainingCalls != 0 {
		t.Fatalf("expected 0 remaining calls, got %d", d.RemainingCalls)
	}
	if d.Suggestion == "" {
		t.Fatalf("expected an upgrade suggestion")
	}
}

func TestCheckCallLimit_TokenBudget(t *testing.T) {
	repo := NewMemoryRepo()
	svc := newTestService(repo, StaticTiers{Default: Tier{Name: "free", MonthlyTokenLimit: 1000, MonthlyCallLimit: 100}})

	ctx := context.Background()
	if err := svc.RecordUsage(ctx, "t1", Usage{Provider: pricing.ProviderOpenAI, Tokens: 900}); err != nil {
		t.Fatalf("record: %v", err)
	}

	d, err := svc.CheckCallLimit(ctx, "t1", rbac.RoleOwner, Usage{Tokens: 50})
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	if !d.Allowed {
		t.Fatalf("expected allow with 100 tokens remaining, got %+v", d)
	}

	d, err = svc.CheckCallLimit(ctx, "t1", rbac.RoleOwner, Usage{Tokens: 150})
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	if d.Allowed {
		t.Fatalf("expected denial for estimate over remaining, got %+v", d)
	}
}

func TestCheckCallLimit_AdminExempt(t *testing.T) {
	repo := NewMemoryRepo()
	svc := newTestService(repo, StaticTiers{Default: Tier{Name: "free", MonthlyTokenLimit: 1, MonthlyCallLimit: 1}})

	ctx := context.Background()
	if err := svc.RecordUsage(ctx, "t1", Usage{Provider: pricing.ProviderTwilio, Calls: 5}); err != nil {
		t.Fatalf("record: %v", err)
	}

	d, err := svc.CheckCallLimit(ctx, "t1", rbac.RoleAdmin, Usage{Calls: 100, Tokens: 1 << 30})
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	if !d.Allowed {
		t.Fatalf("expected admin exemption, got %+v", d)
	}
}

func TestCheckCallLimit_TenantIsolation(t *testing.T) {
	repo := NewMemoryRepo()
	svc := newTestService(repo, StaticTiers{Default: Tier{Name: "free", MonthlyTokenLimit: 1000, MonthlyCallLimit: 2}})

	ctx := context.Background()
	if err := svc.RecordUsage(ctx, "t1", Usage{Provider: pricing.ProviderTwilio, Calls: 2}); err != nil {
		t.Fatalf("record: %v", err)
	}

	d, err := svc.CheckCallLimit(ctx, "t2", rbac.RoleOwner, Usage{Calls: 1})
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	if !d.Allowed {
		t.Fatalf("t2 should not be affected by t1 usage: %+v", d)
	}
}

func TestRecordUsage_ConcurrentIncrementsSum(t *testing.T) {
	repo := NewMemoryRepo()
	svc := newTestService(repo, nil)

	ctx := context.Background()
	// Pre-existing usage today.
	if err := svc.RecordUsage(ctx, "t1", Usage{Provider: pricing.ProviderOpenAI, Tokens: 10}); err != nil {
		t.Fatalf("seed: %v", err)
	}

	var wg sync.WaitGroup
	for _, n := range []int64{100, 50} {
		wg.Add(1)
		go func(tokens int64) {
			defer wg.Done()
			if err := svc.RecordUsage(ctx, "t1", Usage{Provider: pricing.ProviderOpenAI, Tokens: tokens}); err != nil {
				t.Errorf("record: %v", err)
			}
		}(n)
	}
	wg.Wait()

	from, to := MonthRange(time.Date(2026, 3, 15, 0, 0, 0, 0, time.UTC))
	totals, err := repo.SumRange(ctx, "t1", from, to)
	if err != nil {
		t.Fatalf("sum: %v", err)
	}
	if totals.Tokens != 160 {
		t.Fatalf("expected 160 tokens after concurrent increments, got %d", totals.Tokens)
	}
}

func TestRecordUsage_AccruesCost(t *testing.T) {
	repo := NewMemoryRepo()
	svc := newTestService(repo, nil)

	ctx := context.Background()
	if err := svc.RecordUsage(ctx, "t1", Usage{Provider: pricing.ProviderTwilio, Calls: 1, DurationSeconds: 61}); err != nil {
		t.Fatalf("record: %v", err)
	}

	totals, _, err := svc.MonthSummary(ctx, "t1")
	if err != nil {
		t.Fatalf("summary: %v", err)
	}
	// 2 started minutes at 2c + 1c connection fee.
	if totals.CostMinor != 5 {
		t.Fatalf("expected cost 5, got %d", totals.CostMinor)
	}
	if totals.DurationSeconds != 61 || totals.Calls != 1 {
		t.Fatalf("unexpected totals: %+v", totals)
	}
}

func TestRecorder_DrainsOnClose(t *testing.T) {
	repo := NewMemoryRepo()
	svc := newTestService(repo, nil)

	rec := NewRecorder(svc, 8, nil)
	for i := 0; i < 20; i++ {
		rec.Record("t1", Usage{Provider: pricing.ProviderOpenAI, Tokens: 1})
	}
	rec.Close()

	from, to := MonthRange(time.Date(2026, 3, 15, 0, 0, 0, 0, time.UTC))
	totals, err := repo.SumRange(context.Background(), "t1", from, to)
	if err != nil {
		t.Fatalf("sum: %v", err)
	}
	if totals.Tokens != 20 {
		t.Fatalf("expected all 20 records written, got %d", totals.Tokens)
	}
}
