package calls

import (
	"context"
	"errors"
	"time"
)

var (
	ErrNotFound = errors.New("calls: run not found")
	// ErrRunClosed is returned when mutating a run that already left
	// in_progress.
	ErrRunClosed = errors.New("calls: run is closed")
)

// Repository is the persistence contract for call runs and their turns.
//
// Webhook handlers load runs by ID (the run ID is baked into the callback
// URL); tenant-facing reads are tenant-scoped.
type Repository interface {
	CreateRun(ctx context.Context, run CallRun) error
	GetRun(ctx context.Context, runID string) (CallRun, error)

	// AppendTurn assigns the next sequence number and persists the turn.
	// Fails with ErrRunClosed on a terminal run.
	AppendTurn(ctx context.Context, runID string, role TurnRole, content string) (Turn, error)
	ListTurns(ctx context.Context, runID string) ([]Turn, error)

	// AddTokens accumulates consumed tokens on an in-progress run.
	AddTokens(ctx context.Context, runID string, tokens int64) error

	// CompleteRun performs the terminal transition. It is a no-op returning
	// ErrRunClosed when the run is already terminal, which makes duplicate
	// status callbacks harmless.
	CompleteRun(ctx context.Context, runID string, status RunStatus, disposition Disposition, durationSeconds int, completedAt time.Time) error

	// AttachRecording may arrive before or after the status callback and is
	// therefore allowed on terminal runs.
	AttachRecording(ctx context.Context, runID, url string, durationSeconds int) error

	ListRuns(ctx context.Context, tenantID string, from, to time.Time, campaignID string) ([]CallRun, error)
}
