package usage

import "time"

// Bucket is a tenant's per-day aggregate of billed consumption.
//
// Invariants:
// - One row per (tenant_id, day); day is a UTC calendar date.
// - Counters are monotonically non-decreasing within a day.
// - Increments must be atomic at the storage layer (upsert-with-add); no
//   read-modify-write.
type Bucket struct {
	TenantID string    `json:"tenant_id" db:"tenant_id"`
	Day      time.Time `json:"day" db:"day"`

	Tokens          int64 `json:"tokens" db:"tokens"`
	Calls           int64 `json:"calls" db:"calls"`
	DurationSeconds int64 `json:"duration_seconds" db:"duration_seconds"`

	// CostMinor is the accrued cost in minor units (cents).
	CostMinor int64 `json:"cost_minor" db:"cost_minor"`

	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// Usage is one billed operation's consumption delta.
type Usage struct {
	Provider        string `json:"provider"`
	Tokens          int64  `json:"tokens"`
	DurationSeconds int    `json:"duration_seconds"`
	Calls           int    `json:"calls"`
}

// Totals is a summed view over a range of buckets.
type Totals struct {
	Tokens          int64 `json:"tokens"`
	Calls           int64 `json:"calls"`
	DurationSeconds int64 `json:"duration_seconds"`
	CostMinor       int64 `json:"cost_minor"`
}

// Tier is a tenant's monthly allowance.
type Tier struct {
	Name              string `json:"name"`
	MonthlyTokenLimit int64  `json:"monthly_token_limit"`
	MonthlyCallLimit  int64  `json:"monthly_call_limit"`
}

// Stock tiers. Tenant-to-tier assignment lives with account management; the
// engine only needs the limits.
var (
	TierFree = Tier{Name: "free", MonthlyTokenLimit: 100_000, MonthlyCallLimit: 50}
	TierPro  = Tier{Name: "pro", MonthlyTokenLimit: 2_000_000, MonthlyCallLimit: 2_000}
)

// Day truncates t to its UTC calendar date.
func Day(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// MonthRange returns [start of t's month, start of next month) in UTC.
func MonthRange(t time.Time) (time.Time, time.Time) {
	t = t.UTC()
	start := time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
	return start, start.AddDate(0, 1, 0)
}
