package pricing

import (
	"context"
	"sync"
	"time"
)

// MemoryRepo holds rates in memory; used in tests and as the seed source
// until rates move to storage.
type MemoryRepo struct {
	mu    sync.Mutex
	rates map[string]Rate
}

func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{rates: map[string]Rate{}}
}

// SeedDefaults installs the stock rate table.
func (r *MemoryRepo) SeedDefaults() *MemoryRepo {
	r.Put(Rate{Provider: ProviderTwilio, Currency: "USD", PerMinuteMinor: 2, PerCallMinor: 1})
	r.Put(Rate{Provider: ProviderOpenAI, Currency: "USD", PerThousandTokensMinor: 2})
	return r
}

func (r *MemoryRepo) Put(rate Rate) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rates[rate.Provider] = rate
}

func (r *MemoryRepo) FindRate(ctx context.Context, provider string, at time.Time) (Rate, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rate, ok := r.rates[provider]
	if !ok {
		return Rate{}, false, nil
	}
	if !rate.EffectiveFrom.IsZero() && at.Before(rate.EffectiveFrom) {
		return Rate{}, false, nil
	}
	if rate.EffectiveTo != nil && !at.Before(*rate.EffectiveTo) {
		return Rate{}, false, nil
	}
	return rate, true, nil
}
