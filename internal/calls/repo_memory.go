package calls

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryRepo is an in-memory Repository for tests and early development.
type MemoryRepo struct {
	mu    sync.Mutex
	runs  map[string]CallRun
	turns map[string][]Turn

	clock func() time.Time
}

func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{
		runs:  map[string]CallRun{},
		turns: map[string][]Turn{},
		clock: time.Now,
	}
}

// SetClock makes turn timestamps deterministic in tests.
func (r *MemoryRepo) SetClock(clock func() time.Time) { r.clock = clock }

func (r *MemoryRepo) CreateRun(ctx context.Context, run CallRun) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.runs[run.ID] = run
	return nil
}

func (r *MemoryRepo) GetRun(ctx context.Context, runID string) (CallRun, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	run, ok := r.runs[runID]
	if !ok {
		return CallRun{}, ErrNotFound
	}
	return run, nil
}

func (r *MemoryRepo) AppendTurn(ctx context.Context, runID string, role TurnRole, content string) (Turn, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	run, ok := r.runs[runID]
	if !ok {
		return Turn{}, ErrNotFound
	}
	if run.Status != RunStatusInProgress {
		return Turn{}, ErrRunClosed
	}
	t := Turn{
		RunID:     runID,
		Seq:       len(r.turns[runID]) + 1,
		Role:      role,
		Content:   content,
		CreatedAt: r.clock().UTC(),
	}
	r.turns[runID] = append(r.turns[runID], t)
	return t, nil
}

func (r *MemoryRepo) ListTurns(ctx context.Context, runID string) ([]Turn, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Turn, len(r.turns[runID]))
	copy(out, r.turns[runID])
	sort.Slice(out, func(i, j int) bool { return out[i].Seq < out[j].Seq })
	return out, nil
}

func (r *MemoryRepo) AddTokens(ctx context.Context, runID string, tokens int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	run, ok := r.runs[runID]
	if !ok {
		return ErrNotFound
	}
	if run.Status != RunStatusInProgress {
		return ErrRunClosed
	}
	run.TokensUsed += tokens
	r.runs[runID] = run
	return nil
}

func (r *MemoryRepo) CompleteRun(ctx context.Context, runID string, status RunStatus, disposition Disposition, durationSeconds int, completedAt time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	run, ok := r.runs[runID]
	if !ok {
		return ErrNotFound
	}
	if run.Status != RunStatusInProgress {
		return ErrRunClosed
	}
	run.Status = status
	run.Disposition = disposition
	run.DurationSeconds = durationSeconds
	run.CompletedAt = &completedAt
	r.runs[runID] = run
	return nil
}

func (r *MemoryRepo) AttachRecording(ctx context.Context, runID, url string, durationSeconds int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	run, ok := r.runs[runID]
	if !ok {
		return ErrNotFound
	}
	run.RecordingURL = url
	run.RecordingDurationSeconds = durationSeconds
	r.runs[runID] = run
	return nil
}

func (r *MemoryRepo) ListRuns(ctx context.Context, tenantID string, from, to time.Time, campaignID string) ([]CallRun, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]CallRun, 0)
	for _, run := range r.runs {
		if run.TenantID != tenantID {
			continue
		}
		if !run.CreatedAt.IsZero() {
			if run.CreatedAt.Before(from) || !run.CreatedAt.Before(to) {
				continue
			}
		}
		if campaignID != "" && run.CampaignID != campaignID {
			continue
		}
		out = append(out, run)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}
