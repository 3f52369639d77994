package queue

import (
	"context"
	"errors"
	"testing"
	"time"
)

func testJob(id, campaignID string) Job {
	return Job{ID: id, TenantID: "t1", CampaignID: campaignID, ContactID: "c-" + id}
}

func TestBackoffDoublesFromBase(t *testing.T) {
	p := Policy{BackoffBase: 2 * time.Second}.withDefaults()
	if got := p.Backoff(1); got != 2*time.Second {
		t.Fatalf("attempt 1: expected 2s, got %v", got)
	}
	if got := p.Backoff(2); got != 4*time.Second {
		t.Fatalf("attempt 2: expected 4s, got %v", got)
	}
	if got := p.Backoff(3); got != 8*time.Second {
		t.Fatalf("attempt 3: expected 8s, got %v", got)
	}
}

func TestNackSchedulesRetryThenFailsPermanently(t *testing.T) {
	now := time.Unix(1700000000, 0).UTC()
	q := NewMemoryQueue(Policy{MaxAttempts: 3, BackoffBase: 2 * time.Second})
	q.SetClock(func() time.Time { return now })

	ctx := context.Background()
	if err := q.Enqueue(ctx, testJob("j1", "camp")); err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	cause := errors.New("dial failed")
	for attempt := 1; attempt <= 3; attempt++ {
		d, ok, err := q.Dequeue(ctx, 0)
		if err != nil || !ok {
			t.Fatalf("dequeue attempt %d: ok=%v err=%v", attempt, ok, err)
		}
		if d.Attempt != attempt {
			t.Fatalf("expected attempt %d, got %d", attempt, d.Attempt)
		}

		retrying, err := q.Nack(ctx, d, cause)
		if err != nil {
			t.Fatalf("nack: %v", err)
		}
		if attempt < 3 && !retrying {
			t.Fatalf("attempt %d should retry", attempt)
		}
		if attempt == 3 && retrying {
			t.Fatalf("attempt 3 should be permanent failure")
		}

		// Before backoff elapses the job is not deliverable.
		if _, ok, _ := q.Dequeue(ctx, 0); ok {
			t.Fatalf("job delivered before backoff elapsed")
		}
		now = now.Add(time.Minute)
	}

	if len(q.Failed) != 1 || q.Failed[0].Attempt != 3 {
		t.Fatalf("expected 1 permanent failure after 3 attempts, got %+v", q.Failed)
	}
}

func TestPauseParksOnlyThatCampaign(t *testing.T) {
	q := NewMemoryQueue(Policy{})
	ctx := context.Background()

	_ = q.Enqueue(ctx, testJob("a1", "campA"))
	_ = q.Enqueue(ctx, testJob("b1", "campB"))

	if err := q.PauseCampaign(ctx, "campA"); err != nil {
		t.Fatalf("pause: %v", err)
	}

	d, ok, err := q.Dequeue(ctx, 0)
	if err != nil || !ok {
		t.Fatalf("dequeue: ok=%v err=%v", ok, err)
	}
	if d.Job.CampaignID != "campB" {
		t.Fatalf("expected campB job while campA paused, got %s", d.Job.CampaignID)
	}

	// campA's job is parked, not deliverable.
	if _, ok, _ := q.Dequeue(ctx, 0); ok {
		t.Fatalf("parked job should not be delivered")
	}

	if err := q.ResumeCampaign(ctx, "campA"); err != nil {
		t.Fatalf("resume: %v", err)
	}
	d, ok, _ = q.Dequeue(ctx, 0)
	if !ok || d.Job.CampaignID != "campA" {
		t.Fatalf("expected campA job after resume, got ok=%v %+v", ok, d)
	}
}

func TestPurgeRemovesPendingAndParkedJobs(t *testing.T) {
	q := NewMemoryQueue(Policy{})
	ctx := context.Background()

	_ = q.Enqueue(ctx, testJob("a1", "campA"))
	_ = q.Enqueue(ctx, testJob("a2", "campA"))
	_ = q.Enqueue(ctx, testJob("b1", "campB"))
	_ = q.PauseCampaign(ctx, "campA")

	// Park a1 by attempting delivery.
	if _, ok, _ := q.Dequeue(ctx, 0); !ok {
		t.Fatalf("expected campB delivery")
	}

	n, err := q.PurgeCampaign(ctx, "campA")
	if err != nil {
		t.Fatalf("purge: %v", err)
	}
	if n != 2 {
		t.Fatalf("expected 2 purged, got %d", n)
	}

	depth, _ := q.Depth(ctx)
	if depth != 0 {
		t.Fatalf("expected empty queue after purge, depth=%d", depth)
	}
}
