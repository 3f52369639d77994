package usage

import (
	"context"
	"time"
)

// Delta is an atomic increment applied to one bucket.
type Delta struct {
	Tokens          int64
	Calls           int64
	DurationSeconds int64
	CostMinor       int64
}

// Repository is the persistence contract for usage buckets.
//
// AddUsage MUST be a single atomic increment on (tenant_id, day): concurrent
// recordings for the same tenant and day may interleave freely and every
// delta must survive.
type Repository interface {
	AddUsage(ctx context.Context, tenantID string, day time.Time, d Delta) error
	SumRange(ctx context.Context, tenantID string, from, to time.Time) (Totals, error)
	ListBuckets(ctx context.Context, tenantID string, from, to time.Time) ([]Bucket, error)
}
