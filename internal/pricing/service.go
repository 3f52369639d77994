package pricing

import (
	"context"
	"errors"
	"time"
)

// Service computes the cost of recorded usage from the provider rate table.
//
// Contract:
// - Pure calculation + repository lookups; no provider SDK calls.
// - Unknown providers are charged at the default rate so usage is never
//   recorded for free by accident.
type Service struct {
	repo  RateRepository
	clock func() time.Time
}

func NewService(repo RateRepository) *Service {
	return &Service{repo: repo, clock: time.Now}
}

// RateRepository abstracts rate persistence. Implementations can be Postgres,
// cached, or in-memory.
type RateRepository interface {
	FindRate(ctx context.Context, provider string, at time.Time) (Rate, bool, error)
}

var ErrInvalidUsage = errors.New("pricing: invalid usage")

// DefaultRate is applied when no provider-specific rate exists.
var DefaultRate = Rate{
	Provider:               "default",
	Currency:               "USD",
	PerThousandTokensMinor: 2,
	PerMinuteMinor:         2,
	PerCallMinor:           1,
}

type UsageCostRequest struct {
	Provider        string
	Tokens          int64
	DurationSeconds int
	Calls           int

	// At determines which effective rate to use. If zero, service clock is used.
	At time.Time
}

type UsageCost struct {
	Provider  string
	Currency  string
	CostMinor int64
}

// Cost prices a usage delta. Token cost rounds up to the next 1000-token
// block; duration rounds up to the next started minute.
func (s *Service) Cost(ctx context.Context, req UsageCostRequest) (UsageCost, error) {
	if req.Provider == "" {
		return UsageCost{}, ErrInvalidUsage
	}
	if req.Tokens < 0 || req.DurationSeconds < 0 || req.Calls < 0 {
		return UsageCost{}, ErrInvalidUsage
	}

	at := req.At
	if at.IsZero() {
		at = s.clock().UTC()
	}

	rate := DefaultRate
	if s.repo != nil {
		r, ok, err := s.repo.FindRate(ctx, req.Provider, at)
		if err != nil {
			return UsageCost{}, err
		}
		if ok {
			rate = r
		}
	}

	total := rate.PerThousandTokensMinor*blocksOf(req.Tokens, 1000) +
		rate.PerMinuteMinor*int64(startedMinutes(req.DurationSeconds)) +
		rate.PerCallMinor*int64(req.Calls)

	return UsageCost{Provider: req.Provider, Currency: rate.Currency, CostMinor: total}, nil
}

func blocksOf(n, size int64) int64 {
	if n <= 0 {
		return 0
	}
	q := n / size
	if n%size != 0 {
		q++
	}
	return q
}

func startedMinutes(sec int) int {
	if sec <= 0 {
		return 0
	}
	m := sec / 60
	if sec%60 != 0 {
		m++
	}
	return m
}
