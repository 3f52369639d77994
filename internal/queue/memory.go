package queue

import (
	"context"
	"sync"
	"time"
)

// MemoryQueue implements Queue in memory with the same semantics as the
// Redis implementation. Used by tests and local development; the clock is
// injectable so backoff scheduling can be exercised without sleeping.
type MemoryQueue struct {
	mu     sync.Mutex
	policy Policy
	clock  func() time.Time

	ready    []Job
	delayed  []delayedJob
	parked   map[string][]Job
	paused   map[string]bool
	attempts map[string]int

	Completed []Delivery
	Failed    []Delivery
}

type delayedJob struct {
	job Job
	due time.Time
}

func NewMemoryQueue(policy Policy) *MemoryQueue {
	return &MemoryQueue{
		policy:   policy.withDefaults(),
		clock:    time.Now,
		parked:   map[string][]Job{},
		paused:   map[string]bool{},
		attempts: map[string]int{},
	}
}

func (q *MemoryQueue) SetClock(clock func() time.Time) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.clock = clock
}

func (q *MemoryQueue) Enqueue(ctx context.Context, job Job) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.ready = append(q.ready, job)
	return nil
}

func (q *MemoryQueue) EnqueueDelayed(ctx context.Context, job Job, delay time.Duration) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.delayed = append(q.delayed, delayedJob{job: job, due: q.clock().Add(delay)})
	return nil
}

func (q *MemoryQueue) Dequeue(ctx context.Context, wait time.Duration) (Delivery, bool, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	now := q.clock()

	// Promote due retries.
	var still []delayedJob
	for _, d := range q.delayed {
		if !d.due.After(now) {
			q.ready = append(q.ready, d.job)
		} else {
			still = append(still, d)
		}
	}
	q.delayed = still

	for len(q.ready) > 0 {
		job := q.ready[0]
		q.ready = q.ready[1:]

		if q.paused[job.CampaignID] {
			q.parked[job.CampaignID] = append(q.parked[job.CampaignID], job)
			continue
		}

		q.attempts[job.ID]++
		return Delivery{Job: job, Attempt: q.attempts[job.ID]}, true, nil
	}
	return Delivery{}, false, nil
}

func (q *MemoryQueue) Ack(ctx context.Context, d Delivery) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	delete(q.attempts, d.Job.ID)
	q.Completed = append(q.Completed, d)
	return nil
}

func (q *MemoryQueue) Nack(ctx context.Context, d Delivery, cause error) (bool, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if d.Attempt < q.policy.MaxAttempts {
		q.delayed = append(q.delayed, delayedJob{
			job: d.Job,
			due: q.clock().Add(q.policy.Backoff(d.Attempt)),
		})
		return true, nil
	}
	delete(q.attempts, d.Job.ID)
	q.Failed = append(q.Failed, d)
	return false, nil
}

func (q *MemoryQueue) PauseCampaign(ctx context.Context, campaignID string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.paused[campaignID] = true
	return nil
}

func (q *MemoryQueue) ResumeCampaign(ctx context.Context, campaignID string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	delete(q.paused, campaignID)
	q.ready = append(q.ready, q.parked[campaignID]...)
	delete(q.parked, campaignID)
	return nil
}

func (q *MemoryQueue) PurgeCampaign(ctx context.Context, campaignID string) (int, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	removed := 0

	var ready []Job
	for _, j := range q.ready {
		if j.CampaignID == campaignID {
			removed++
			delete(q.attempts, j.ID)
			continue
		}
		ready = append(ready, j)
	}
	q.ready = ready

	var delayed []delayedJob
	for _, d := range q.delayed {
		if d.job.CampaignID == campaignID {
			removed++
			delete(q.attempts, d.job.ID)
			continue
		}
		delayed = append(delayed, d)
	}
	q.delayed = delayed

	removed += len(q.parked[campaignID])
	delete(q.parked, campaignID)

	return removed, nil
}

func (q *MemoryQueue) Depth(ctx context.Context) (int64, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return int64(len(q.ready) + len(q.delayed)), nil
}

func (q *MemoryQueue) Healthy(ctx context.Context) error { return nil }
