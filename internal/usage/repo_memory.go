package usage

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryRepo is an in-memory Repository for tests. Like the Postgres
// implementation, increments are atomic: the mutex covers the whole
// read-add-store, so concurrent AddUsage calls never lose a delta.
type MemoryRepo struct {
	mu      sync.Mutex
	buckets map[bucketKey]Bucket
	clock   func() time.Time
}

type bucketKey struct {
	tenantID string
	day      time.Time
}

func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{buckets: map[bucketKey]Bucket{}, clock: time.Now}
}

func (r *MemoryRepo) SetClock(clock func() time.Time) { r.clock = clock }

func (r *MemoryRepo) AddUsage(ctx context.Context, tenantID string, day time.Time, d Delta) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	k := bucketKey{tenantID: tenantID, day: Day(day)}
	b, ok := r.buckets[k]
	if !ok {
		b = Bucket{TenantID: tenantID, Day: k.day}
	}
	b.Tokens += d.Tokens
	b.Calls += d.Calls
	b.DurationSeconds += d.DurationSeconds
	b.CostMinor += d.CostMinor
	b.UpdatedAt = r.clock().UTC()
	r.buckets[k] = b
	return nil
}

func (r *MemoryRepo) SumRange(ctx context.Context, tenantID string, from, to time.Time) (Totals, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var t Totals
	for k, b := range r.buckets {
		if k.tenantID != tenantID {
			continue
		}
		if k.day.Before(Day(from)) || !k.day.Before(Day(to)) {
			continue
		}
		t.Tokens += b.Tokens
		t.Calls += b.Calls
		t.DurationSeconds += b.DurationSeconds
		t.CostMinor += b.CostMinor
	}
	return t, nil
}

func (r *MemoryRepo) ListBuckets(ctx context.Context, tenantID string, from, to time.Time) ([]Bucket, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Bucket, 0)
	for k, b := range r.buckets {
		if k.tenantID != tenantID {
			continue
		}
		if k.day.Before(Day(from)) || !k.day.Before(Day(to)) {
			continue
		}
		out = append(out, b)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Day.Before(out[j].Day) })
	return out, nil
}
