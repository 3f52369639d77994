package reporting

import "time"

// Common filtering inputs.

type TimeRange struct {
	From time.Time `json:"from"`
	To   time.Time `json:"to"`
}

// RunsSummaryRequest requests aggregated call-run metrics.
// Tenant isolation: TenantID is required.

type RunsSummaryRequest struct {
	TenantID   string    `json:"tenant_id"`
	Range      TimeRange `json:"range"`
	CampaignID string    `json:"campaign_id,omitempty"`
}

type RunsSummary struct {
	TenantID   string `json:"tenant_id"`
	CampaignID string `json:"campaign_id,omitempty"`

	TotalRuns      int `json:"total_runs"`
	CompletedRuns  int `json:"completed_runs"`
	UserHangups    int `json:"user_hangups"`
	NoAnswerRuns   int `json:"no_answer_runs"`
	BusyRuns       int `json:"busy_runs"`
	FailedRuns     int `json:"failed_runs"`
	QuotaEndedRuns int `json:"quota_ended_runs"`
	InProgressRuns int `json:"in_progress_runs"`

	TotalDurationSeconds   int   `json:"total_duration_seconds"`
	AverageDurationSeconds int   `json:"average_duration_seconds"`
	TotalTokensUsed        int64 `json:"total_tokens_used"`

	RecordedRuns int `json:"recorded_runs"`
}

// SpendSummaryRequest requests aggregated spend over the usage ledger's
// daily buckets.

type SpendSummaryRequest struct {
	TenantID string    `json:"tenant_id"`
	Range    TimeRange `json:"range"`
}

type SpendSummary struct {
	TenantID string `json:"tenant_id"`

	Tokens          int64 `json:"tokens"`
	Calls           int64 `json:"calls"`
	DurationSeconds int64 `json:"duration_seconds"`
	CostMinor       int64 `json:"cost_minor"`

	Days []DailySpend `json:"days"`
}

type DailySpend struct {
	Day       string `json:"day"`
	Tokens    int64  `json:"tokens"`
	Calls     int64  `json:"calls"`
	CostMinor int64  `json:"cost_minor"`
}

// CampaignOutcomeRequest captures one campaign's contact funnel.

type CampaignOutcomeRequest struct {
	TenantID   string `json:"tenant_id"`
	CampaignID string `json:"campaign_id"`
}

type CampaignOutcome struct {
	TenantID   string `json:"tenant_id"`
	CampaignID string `json:"campaign_id"`
	State      string `json:"state"`

	ContactsTotal   int `json:"contacts_total"`
	ContactsPending int `json:"contacts_pending"`
	ContactsCalled  int `json:"contacts_called"`
	ContactsFailed  int `json:"contacts_failed"`

	ReachRate float64 `json:"reach_rate"`
}
