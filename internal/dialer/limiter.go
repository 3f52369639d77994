package dialer

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"

	"voicecampaign/pkg/utils"
)

// Limiter caps how many outbound calls a tenant can have in flight at once.
type Limiter interface {
	Acquire(ctx context.Context, tenantID string) (bool, error)
	Release(ctx context.Context, tenantID string) error
}

// RedisLimiter counts in-flight calls per tenant in Redis. Slots carry a TTL
// so a crashed worker cannot pin a tenant at its cap forever; a slot held for
// a full call simply expires around the maximum call length.
type RedisLimiter struct {
	rdb   *redis.Client
	limit int
	ttl   time.Duration
}

func NewRedisLimiter(rdb *redis.Client, limit int, ttl time.Duration) *RedisLimiter {
	if limit <= 0 {
		limit = 5
	}
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &RedisLimiter{rdb: rdb, limit: limit, ttl: ttl}
}

func capKey(tenantID string) string { return "vc:callcap:" + tenantID }

func (l *RedisLimiter) Acquire(ctx context.Context, tenantID string) (bool, error) {
	return utils.AcquireConcurrencyCap(ctx, l.rdb, capKey(tenantID), l.limit, l.ttl)
}

func (l *RedisLimiter) Release(ctx context.Context, tenantID string) error {
	return utils.ReleaseConcurrencyCap(ctx, l.rdb, capKey(tenantID))
}

// NopLimiter never rejects. Tests and single-tenant deployments.
type NopLimiter struct{}

func (NopLimiter) Acquire(ctx context.Context, tenantID string) (bool, error) { return true, nil }
func (NopLimiter) Release(ctx context.Context, tenantID string) error         { return nil }
