package usage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"voicecampaign/internal/pricing"
	"voicecampaign/internal/rbac"
)

// Service is the usage ledger and quota gate. Every externally billed
// operation is bracketed by it: CheckCallLimit before, RecordUsage after.
//
// Tenancy invariant: tenantID is required and enforced in all queries.
type Service struct {
	repo    Repository
	pricing *pricing.Service
	tiers   TierSource
	clock   func() time.Time
}

var (
	ErrInvalidArgument = errors.New("usage: invalid argument")
	ErrQuotaExceeded   = errors.New("usage: quota exceeded")
)

// TierSource resolves a tenant's plan. Account management owns the
// assignment; the engine only reads it.
type TierSource interface {
	TierFor(ctx context.Context, tenantID string) (Tier, error)
}

// StaticTiers is a fixed tenant→tier map with a default, suitable for tests
// and single-plan deployments.
type StaticTiers struct {
	Default Tier
	ByID    map[string]Tier
}

func (s StaticTiers) TierFor(ctx context.Context, tenantID string) (Tier, error) {
	if t, ok := s.ByID[tenantID]; ok {
		return t, nil
	}
	return s.Default, nil
}

func NewService(repo Repository, pricingSvc *pricing.Service, tiers TierSource) *Service {
	if tiers == nil {
		tiers = StaticTiers{Default: TierFree}
	}
	return &Service{repo: repo, pricing: pricingSvc, tiers: tiers, clock: time.Now}
}

// Decision is the structured allow/deny result of a quota check. Remaining
// counts feed the API's upgrade guidance on denial.
type Decision struct {
	Allowed bool   `json:"allowed"`
	Reason  string `json:"reason,omitempty"`

	Tier            string `json:"tier"`
	RemainingTokens int64  `json:"remaining_tokens"`
	RemainingCalls  int64  `json:"remaining_calls"`

	Suggestion string `json:"suggestion,omitempty"`
}

// CheckCallLimit gates a billed operation against the tenant's tier quota
// for the current month. Admins are exempt. The check reads committed
// buckets only; usage still sitting in the recorder queue is not counted,
// which can briefly under-count in-flight consumption.
func (s *Service) CheckCallLimit(ctx context.Context, tenantID, role string, estimate Usage) (Decision, error) {
	if tenantID == "" {
		return Decision{}, ErrInvalidArgument
	}
	if rbac.IsAdmin(role) {
		return Decision{Allowed: true, Tier: "exempt"}, nil
	}

	tier, err := s.tiers.TierFor(ctx, tenantID)
	if err != nil {
		return Decision{}, err
	}

	from, to := MonthRange(s.clock())
	totals, err := s.repo.SumRange(ctx, tenantID, from, to)
	if err != nil {
		return Decision{}, err
	}

	d := Decision{
		Allowed:         true,
		Tier:            tier.Name,
		RemainingTokens: max64(tier.MonthlyTokenLimit-totals.Tokens, 0),
		RemainingCalls:  max64(tier.MonthlyCallLimit-totals.Calls, 0),
	}

	if tier.MonthlyCallLimit > 0 && int64(estimate.Calls) > d.RemainingCalls {
		d.Allowed = false
		d.Reason = fmt.Sprintf("monthly call limit reached (%d/%d used)", totals.Calls, tier.MonthlyCallLimit)
	}
	if tier.MonthlyTokenLimit > 0 && estimate.Tokens > d.RemainingTokens {
		d.Allowed = false
		d.Reason = fmt.Sprintf("monthly token limit reached (%d/%d used)", totals.Tokens, tier.MonthlyTokenLimit)
	}
	if !d.Allowed {
		d.Suggestion = upgradeSuggestion(tier)
	}
	return d, nil
}

// RecordUsage prices the delta and applies it to today's bucket for the
// tenant. Callers on a latency-sensitive path should go through Recorder
// instead of calling this directly.
func (s *Service) RecordUsage(ctx context.Context, tenantID string, u Usage) error {
	if tenantID == "" {
		return ErrInvalidArgument
	}
	if u.Tokens < 0 || u.DurationSeconds < 0 || u.Calls < 0 {
		return ErrInvalidArgument
	}
	if u.Tokens == 0 && u.DurationSeconds == 0 && u.Calls == 0 {
		return nil
	}

	now := s.clock().UTC()

	var costMinor int64
	if s.pricing != nil && u.Provider != "" {
		cost, err := s.pricing.Cost(ctx, pricing.UsageCostRequest{
			Provider:        u.Provider,
			Tokens:          u.Tokens,
			DurationSeconds: u.DurationSeconds,
			Calls:           u.Calls,
			At:              now,
		})
		if err != nil {
			return err
		}
		costMinor = cost.CostMinor
	}

	return s.repo.AddUsage(ctx, tenantID, now, Delta{
		Tokens:          u.Tokens,
		Calls:           int64(u.Calls),
		DurationSeconds: int64(u.DurationSeconds),
		CostMinor:       costMinor,
	})
}

// MonthSummary returns the tenant's current-month totals and buckets.
func (s *Service) MonthSummary(ctx context.Context, tenantID string) (Totals, []Bucket, error) {
	if tenantID == "" {
		return Totals{}, nil, ErrInvalidArgument
	}
	from, to := MonthRange(s.clock())
	totals, err := s.repo.SumRange(ctx, tenantID, from, to)
	if err != nil {
		return Totals{}, nil, err
	}
	buckets, err := s.repo.ListBuckets(ctx, tenantID, from, to)
	if err != nil {
		return Totals{}, nil, err
	}
	return totals, buckets, nil
}

func upgradeSuggestion(current Tier) string {
	if current.Name == TierFree.Name {
		return "upgrade to the pro plan to raise your monthly limits"
	}
	return "contact support to raise your monthly limits"
}

func max64(a, b int64) int64 {
	if a > b {
		return a
	}
	return b
}
