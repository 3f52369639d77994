package queue

import (
	"context"
	"encoding/json"
	"errors"
	"time"
)

// Job is one contact-to-call unit of work. The payload carries the tenant id
// rather than a credential bundle: credentials are re-resolved at execution
// time so rotations take effect without draining the queue.
type Job struct {
	ID         string `json:"id"`
	TenantID   string `json:"tenant_id"`
	CampaignID string `json:"campaign_id"`
	ContactID  string `json:"contact_id"`

	EnqueuedAt time.Time `json:"enqueued_at"`
}

// Delivery is a dequeued job plus its attempt count (1-based).
type Delivery struct {
	Job     Job
	Attempt int
}

var (
	ErrEmpty = errors.New("queue: no job available")
	// ErrUnavailable signals broker trouble; it must surface as
	// engine-unhealthy, never as a silently dropped job.
	ErrUnavailable = errors.New("queue: broker unavailable")
)

// Queue is a durable, at-least-once work queue for dial jobs.
//
// Delivery semantics:
// - Enqueue is non-blocking; processing is asynchronous.
// - A dequeued job is leased; if neither Ack nor Nack happens before the
//   lease expires (worker crash), the job becomes deliverable again.
// - Nack either schedules a backoff retry or, after the attempt limit,
//   records the job as permanently failed. Completed and failed jobs are
//   retained for audit.
// - Pause/Resume/Purge are scoped to one campaign; other campaigns' jobs
//   keep flowing.
type Queue interface {
	Enqueue(ctx context.Context, job Job) error

	// EnqueueDelayed schedules a job to become deliverable after delay.
	// Deferrals (capacity, mid-flight pause) use it so a put-back does not
	// spin hot against the same condition.
	EnqueueDelayed(ctx context.Context, job Job, delay time.Duration) error

	// Dequeue blocks up to wait for a job. ok is false when nothing was
	// available.
	Dequeue(ctx context.Context, wait time.Duration) (d Delivery, ok bool, err error)

	Ack(ctx context.Context, d Delivery) error

	// Nack reports whether the job was rescheduled (true) or recorded as
	// permanently failed (false).
	Nack(ctx context.Context, d Delivery, cause error) (retrying bool, err error)

	PauseCampaign(ctx context.Context, campaignID string) error
	ResumeCampaign(ctx context.Context, campaignID string) error

	// PurgeCampaign drops the campaign's not-yet-started jobs and returns
	// how many were removed. Leased jobs are not touched.
	PurgeCampaign(ctx context.Context, campaignID string) (int, error)

	// Depth is the number of jobs waiting for delivery (ready + delayed).
	Depth(ctx context.Context) (int64, error)

	Healthy(ctx context.Context) error
}

// Policy captures retry behavior shared by implementations.
type Policy struct {
	MaxAttempts int
	BackoffBase time.Duration
	Lease       time.Duration
}

func (p Policy) withDefaults() Policy {
	out := p
	if out.MaxAttempts <= 0 {
		out.MaxAttempts = 3
	}
	if out.BackoffBase <= 0 {
		out.BackoffBase = 2 * time.Second
	}
	if out.Lease <= 0 {
		out.Lease = 5 * time.Minute
	}
	return out
}

// Backoff returns the delay before the retry following the given attempt:
// base, 2*base, 4*base, ...
func (p Policy) Backoff(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	d := p.BackoffBase
	for i := 1; i < attempt; i++ {
		d *= 2
	}
	return d
}

func encodeJob(j Job) (string, error) {
	b, err := json.Marshal(j)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func decodeJob(payload string) (Job, error) {
	var j Job
	if err := json.Unmarshal([]byte(payload), &j); err != nil {
		return Job{}, err
	}
	return j, nil
}
