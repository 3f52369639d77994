package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisQueue is the durable Queue implementation shared by all worker
// processes.
//
// Key layout (prefix vcq:):
//
//	vcq:ready                 list of payloads awaiting delivery
//	vcq:delayed               zset payload -> retry due time (unix ms)
//	vcq:processing:<consumer> list of payloads leased by one consumer
//	vcq:leased                zset payload -> lease deadline (unix ms)
//	vcq:attempts              hash job id -> delivery count
//	vcq:paused                set of paused campaign ids
//	vcq:parked:<campaign>     list of payloads held while the campaign is paused
//	vcq:completed, vcq:failed capped audit lists
type RedisQueue struct {
	rdb      *redis.Client
	consumer string
	policy   Policy

	// retention caps the audit lists.
	retention int64
}

const (
	keyReady     = "vcq:ready"
	keyDelayed   = "vcq:delayed"
	keyLeased    = "vcq:leased"
	keyAttempts  = "vcq:attempts"
	keyPaused    = "vcq:paused"
	keyCompleted = "vcq:completed"
	keyFailed    = "vcq:failed"
)

func processingKey(consumer string) string { return "vcq:processing:" + consumer }
func parkedKey(campaignID string) string   { return "vcq:parked:" + campaignID }

func NewRedisQueue(rdb *redis.Client, consumer string, policy Policy) *RedisQueue {
	return &RedisQueue{
		rdb:       rdb,
		consumer:  consumer,
		policy:    policy.withDefaults(),
		retention: 10000,
	}
}

func (q *RedisQueue) Enqueue(ctx context.Context, job Job) error {
	payload, err := encodeJob(job)
	if err != nil {
		return err
	}
	if err := q.rdb.LPush(ctx, keyReady, payload).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

func (q *RedisQueue) EnqueueDelayed(ctx context.Context, job Job, delay time.Duration) error {
	payload, err := encodeJob(job)
	if err != nil {
		return err
	}
	due := time.Now().Add(delay)
	if err := q.rdb.ZAdd(ctx, keyDelayed, redis.Z{Score: float64(due.UnixMilli()), Member: payload}).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

// promoteDue moves due retries and expired leases back to the ready list.
// Runs as a single Lua script so two pollers cannot double-promote.
var promoteDue = redis.NewScript(`
-- KEYS[1] = delayed zset, KEYS[2] = leased zset, KEYS[3] = ready list
-- ARGV[1] = now (unix ms)
local moved = 0
for _, key in ipairs({KEYS[1], KEYS[2]}) do
  local due = redis.call('ZRANGEBYSCORE', key, '-inf', ARGV[1], 'LIMIT', 0, 100)
  for _, payload in ipairs(due) do
    redis.call('ZREM', key, payload)
    redis.call('LPUSH', KEYS[3], payload)
    moved = moved + 1
  end
end
return moved
`)

func (q *RedisQueue) Dequeue(ctx context.Context, wait time.Duration) (Delivery, bool, error) {
	deadline := time.Now().Add(wait)
	for {
		now := time.Now()
		if _, err := promoteDue.Run(ctx, q.rdb, []string{keyDelayed, keyLeased, keyReady}, now.UnixMilli()).Result(); err != nil && err != redis.Nil {
			return Delivery{}, false, fmt.Errorf("%w: %v", ErrUnavailable, err)
		}

		remaining := time.Until(deadline)
		if remaining <= 0 {
			return Delivery{}, false, nil
		}

		payload, err := q.rdb.BLMove(ctx, keyReady, processingKey(q.consumer), "RIGHT", "LEFT", minDuration(remaining, time.Second)).Result()
		if err == redis.Nil {
			continue
		}
		if err != nil {
			if ctx.Err() != nil {
				return Delivery{}, false, ctx.Err()
			}
			return Delivery{}, false, fmt.Errorf("%w: %v", ErrUnavailable, err)
		}

		job, err := decodeJob(payload)
		if err != nil {
			// Poison payload: drop it into the failed list and keep polling.
			q.rdb.LRem(ctx, processingKey(q.consumer), 1, payload)
			q.recordFailed(ctx, payload, "undecodable payload")
			continue
		}

		// Scoped pause: park jobs of paused campaigns instead of delivering.
		paused, err := q.rdb.SIsMember(ctx, keyPaused, job.CampaignID).Result()
		if err != nil {
			return Delivery{}, false, fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
		if paused {
			pipe := q.rdb.TxPipeline()
			pipe.LRem(ctx, processingKey(q.consumer), 1, payload)
			pipe.LPush(ctx, parkedKey(job.CampaignID), payload)
			if _, err := pipe.Exec(ctx); err != nil {
				return Delivery{}, false, fmt.Errorf("%w: %v", ErrUnavailable, err)
			}
			continue
		}

		pipe := q.rdb.TxPipeline()
		attempt := pipe.HIncrBy(ctx, keyAttempts, job.ID, 1)
		pipe.ZAdd(ctx, keyLeased, redis.Z{Score: float64(now.Add(q.policy.Lease).UnixMilli()), Member: payload})
		if _, err := pipe.Exec(ctx); err != nil {
			return Delivery{}, false, fmt.Errorf("%w: %v", ErrUnavailable, err)
		}

		return Delivery{Job: job, Attempt: int(attempt.Val())}, true, nil
	}
}

func (q *RedisQueue) Ack(ctx context.Context, d Delivery) error {
	payload, err := encodeJob(d.Job)
	if err != nil {
		return err
	}
	done := auditEntry{Job: d.Job, Attempts: d.Attempt, FinishedAt: time.Now().UTC()}
	doneJSON, _ := json.Marshal(done)

	pipe := q.rdb.TxPipeline()
	pipe.LRem(ctx, processingKey(q.consumer), 1, payload)
	pipe.ZRem(ctx, keyLeased, payload)
	pipe.HDel(ctx, keyAttempts, d.Job.ID)
	pipe.LPush(ctx, keyCompleted, string(doneJSON))
	pipe.LTrim(ctx, keyCompleted, 0, q.retention-1)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

func (q *RedisQueue) Nack(ctx context.Context, d Delivery, cause error) (bool, error) {
	payload, err := encodeJob(d.Job)
	if err != nil {
		return false, err
	}

	if d.Attempt < q.policy.MaxAttempts {
		due := time.Now().Add(q.policy.Backoff(d.Attempt))
		pipe := q.rdb.TxPipeline()
		pipe.LRem(ctx, processingKey(q.consumer), 1, payload)
		pipe.ZRem(ctx, keyLeased, payload)
		pipe.ZAdd(ctx, keyDelayed, redis.Z{Score: float64(due.UnixMilli()), Member: payload})
		if _, err := pipe.Exec(ctx); err != nil {
			return false, fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
		return true, nil
	}

	msg := ""
	if cause != nil {
		msg = cause.Error()
	}
	dead := auditEntry{Job: d.Job, Attempts: d.Attempt, Error: msg, FinishedAt: time.Now().UTC()}
	deadJSON, _ := json.Marshal(dead)

	pipe := q.rdb.TxPipeline()
	pipe.LRem(ctx, processingKey(q.consumer), 1, payload)
	pipe.ZRem(ctx, keyLeased, payload)
	pipe.HDel(ctx, keyAttempts, d.Job.ID)
	pipe.LPush(ctx, keyFailed, string(deadJSON))
	pipe.LTrim(ctx, keyFailed, 0, q.retention-1)
	if _, err := pipe.Exec(ctx); err != nil {
		return false, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return false, nil
}

func (q *RedisQueue) PauseCampaign(ctx context.Context, campaignID string) error {
	if err := q.rdb.SAdd(ctx, keyPaused, campaignID).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

func (q *RedisQueue) ResumeCampaign(ctx context.Context, campaignID string) error {
	if err := q.rdb.SRem(ctx, keyPaused, campaignID).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	// Re-queue everything parked while paused.
	for {
		_, err := q.rdb.LMove(ctx, parkedKey(campaignID), keyReady, "RIGHT", "LEFT").Result()
		if err == redis.Nil {
			return nil
		}
		if err != nil {
			return fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
	}
}

func (q *RedisQueue) PurgeCampaign(ctx context.Context, campaignID string) (int, error) {
	removed := 0

	// Ready list: scan and remove matching payloads.
	payloads, err := q.rdb.LRange(ctx, keyReady, 0, -1).Result()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	for _, payload := range payloads {
		job, err := decodeJob(payload)
		if err != nil || job.CampaignID != campaignID {
			continue
		}
		n, err := q.rdb.LRem(ctx, keyReady, 1, payload).Result()
		if err != nil {
			return removed, fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
		q.rdb.HDel(ctx, keyAttempts, job.ID)
		removed += int(n)
	}

	// Delayed retries.
	delayed, err := q.rdb.ZRange(ctx, keyDelayed, 0, -1).Result()
	if err != nil {
		return removed, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	for _, payload := range delayed {
		job, err := decodeJob(payload)
		if err != nil || job.CampaignID != campaignID {
			continue
		}
		if err := q.rdb.ZRem(ctx, keyDelayed, payload).Err(); err != nil {
			return removed, fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
		q.rdb.HDel(ctx, keyAttempts, job.ID)
		removed++
	}

	// Parked jobs.
	parked, err := q.rdb.LLen(ctx, parkedKey(campaignID)).Result()
	if err != nil {
		return removed, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if err := q.rdb.Del(ctx, parkedKey(campaignID)).Err(); err != nil {
		return removed, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	removed += int(parked)

	return removed, nil
}

func (q *RedisQueue) Depth(ctx context.Context) (int64, error) {
	ready, err := q.rdb.LLen(ctx, keyReady).Result()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	delayed, err := q.rdb.ZCard(ctx, keyDelayed).Result()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return ready + delayed, nil
}

func (q *RedisQueue) Healthy(ctx context.Context) error {
	if err := q.rdb.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

func (q *RedisQueue) recordFailed(ctx context.Context, payload, reason string) {
	entry, _ := json.Marshal(auditEntry{Error: reason, Payload: payload, FinishedAt: time.Now().UTC()})
	q.rdb.LPush(ctx, keyFailed, string(entry))
	q.rdb.LTrim(ctx, keyFailed, 0, q.retention-1)
}

type auditEntry struct {
	Job        Job       `json:"job"`
	Attempts   int       `json:"attempts"`
	Error      string    `json:"error,omitempty"`
	Payload    string    `json:"payload,omitempty"`
	FinishedAt time.Time `json:"finished_at"`
}

func minDuration(a, b time.Duration) time.Duration {
	if a < b {
		return a
	}
	return b
}
