package reporting

import (
	"context"
	"errors"

	"voicecampaign/internal/calls"
	"voicecampaign/internal/campaign"
	"voicecampaign/internal/usage"
)

var ErrInvalidRequest = errors.New("reporting: invalid request")

// Service aggregates read-only views over the engine's immutable records:
// call runs, usage buckets, and contact outcomes. It never mutates anything.
//
// Every method enforces tenant filtering through the underlying repositories.
type Service struct {
	runs      calls.Repository
	buckets   usage.Repository
	campaigns campaign.Repository
}

func NewService(runs calls.Repository, buckets usage.Repository, campaigns campaign.Repository) *Service {
	return &Service{runs: runs, buckets: buckets, campaigns: campaigns}
}

func (s *Service) RunsSummary(ctx context.Context, req RunsSummaryRequest) (RunsSummary, error) {
	if req.TenantID == "" {
		return RunsSummary{}, ErrInvalidRequest
	}
	if req.Range.From.IsZero() || req.Range.To.IsZero() || !req.Range.To.After(req.Range.From) {
		return RunsSummary{}, ErrInvalidRequest
	}

	rows, err := s.runs.ListRuns(ctx, req.TenantID, req.Range.From, req.Range.To, req.CampaignID)
	if err != nil {
		return RunsSummary{}, err
	}

	out := RunsSummary{TenantID: req.TenantID, CampaignID: req.CampaignID}
	for _, r := range rows {
		out.TotalRuns++
		out.TotalDurationSeconds += r.DurationSeconds
		out.TotalTokensUsed += r.TokensUsed
		if r.RecordingURL != "" {
			out.RecordedRuns++
		}
		if r.Status == calls.RunStatusInProgress {
			out.InProgressRuns++
			continue
		}
		switch r.Disposition {
		case calls.DispositionCompleted:
			out.CompletedRuns++
		case calls.DispositionUserHangup:
			out.UserHangups++
		case calls.DispositionNoAnswer:
			out.NoAnswerRuns++
		case calls.DispositionBusy:
			out.BusyRuns++
		case calls.DispositionQuotaExceeded:
			out.QuotaEndedRuns++
		default:
			out.FailedRuns++
		}
	}
	if out.TotalRuns > 0 {
		out.AverageDurationSeconds = out.TotalDurationSeconds / out.TotalRuns
	}
	return out, nil
}

func (s *Service) SpendSummary(ctx context.Context, req SpendSummaryRequest) (SpendSummary, error) {
	if req.TenantID == "" {
		return SpendSummary{}, ErrInvalidRequest
	}
	if req.Range.From.IsZero() || req.Range.To.IsZero() || !req.Range.To.After(req.Range.From) {
		return SpendSummary{}, ErrInvalidRequest
	}

	totals, err := s.buckets.SumRange(ctx, req.TenantID, req.Range.From, req.Range.To)
	if err != nil {
		return SpendSummary{}, err
	}
	days, err := s.buckets.ListBuckets(ctx, req.TenantID, req.Range.From, req.Range.To)
	if err != nil {
		return SpendSummary{}, err
	}

	out := SpendSummary{
		TenantID:        req.TenantID,
		Tokens:          totals.Tokens,
		Calls:           totals.Calls,
		DurationSeconds: totals.DurationSeconds,
		CostMinor:       totals.CostMinor,
	}
	for _, b := range days {
		out.Days = append(out.Days, DailySpend{
			Day:       b.Day.Format("2006-01-02"),
			Tokens:    b.Tokens,
			Calls:     b.Calls,
			CostMinor: b.CostMinor,
		})
	}
	return out, nil
}

func (s *Service) CampaignOutcome(ctx context.Context, req CampaignOutcomeRequest) (CampaignOutcome, error) {
	if req.TenantID == "" || req.CampaignID == "" {
		return CampaignOutcome{}, ErrInvalidRequest
	}

	c, err := s.campaigns.GetCampaign(ctx, req.TenantID, req.CampaignID)
	if err != nil {
		return CampaignOutcome{}, err
	}
	counts, err := s.campaigns.CountContactsByStatus(ctx, req.CampaignID)
	if err != nil {
		return CampaignOutcome{}, err
	}

	out := CampaignOutcome{
		TenantID:        req.TenantID,
		CampaignID:      req.CampaignID,
		State:           string(c.State),
		ContactsPending: counts[campaign.ContactPending],
		ContactsCalled:  counts[campaign.ContactCalled],
		ContactsFailed:  counts[campaign.ContactFailed],
	}
	out.ContactsTotal = out.ContactsPending + out.ContactsCalled + out.ContactsFailed
	if out.ContactsTotal > 0 {
		out.ReachRate = float64(out.ContactsCalled) / float64(out.ContactsTotal)
	}
	return out, nil
}
