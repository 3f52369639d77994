package calls

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"voicecampaign/pkg/utils"
)

// PostgresRepo assumes the following tables exist:
// - call_runs (run_number UNIQUE)
// - call_turns with PRIMARY KEY (run_id, seq)
//
// Concurrent webhooks for the same run serialize on the call_runs row lock
// taken inside each mutating transaction, so turn sequence numbers never
// collide and terminal transitions happen exactly once.
type PostgresRepo struct {
	db *sql.DB
}

func NewPostgresRepo(db *sql.DB) *PostgresRepo { return &PostgresRepo{db: db} }

func (r *PostgresRepo) CreateRun(ctx context.Context, run CallRun) error {
	const q = `
INSERT INTO call_runs (
  id, tenant_id, run_number, agent_id, campaign_id, contact_id,
  type, status, provider_call_id, disposition,
  duration_seconds, tokens_used, recording_url, recording_duration_seconds,
  created_at, completed_at
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16)
`
	_, err := r.db.ExecContext(ctx, q,
		run.ID, run.TenantID, run.RunNumber, run.AgentID,
		nullable(run.CampaignID), nullable(run.ContactID),
		string(run.Type), string(run.Status), nullable(run.ProviderCallID),
		nullable(string(run.Disposition)),
		run.DurationSeconds, run.TokensUsed,
		nullable(run.RecordingURL), run.RecordingDurationSeconds,
		run.CreatedAt, run.CompletedAt,
	)
	return err
}

func (r *PostgresRepo) GetRun(ctx context.Context, runID string) (CallRun, error) {
	const q = `
SELECT id, tenant_id, run_number, agent_id,
       COALESCE(campaign_id, ''), COALESCE(contact_id, ''),
       type, status, COALESCE(provider_call_id, ''), COALESCE(disposition, ''),
       duration_seconds, tokens_used,
       COALESCE(recording_url, ''), recording_duration_seconds,
       created_at, completed_at
FROM call_runs
WHERE id = $1
`
	return scanRun(r.db.QueryRowContext(ctx, q, runID))
}

func (r *PostgresRepo) AppendTurn(ctx context.Context, runID string, role TurnRole, content string) (Turn, error) {
	var out Turn
	err := utils.WithTx(ctx, r.db, &sql.TxOptions{}, func(ctx context.Context, tx *sql.Tx) error {
		status, err := lockRun(ctx, tx, runID)
		if err != nil {
			return err
		}
		if status != RunStatusInProgress {
			return ErrRunClosed
		}

		const q = `
INSERT INTO call_turns (run_id, seq, role, content, created_at)
SELECT $1, COALESCE(MAX(seq), 0) + 1, $2, $3, NOW()
FROM call_turns WHERE run_id = $1
RETURNING seq, created_at
`
		t := Turn{RunID: runID, Role: role, Content: content}
		if err := tx.QueryRowContext(ctx, q, runID, string(role), content).Scan(&t.Seq, &t.CreatedAt); err != nil {
			return err
		}
		out = t
		return nil
	})
	return out, err
}

func (r *PostgresRepo) ListTurns(ctx context.Context, runID string) ([]Turn, error) {
	const q = `
SELECT run_id, seq, role, content, created_at
FROM call_turns
WHERE run_id = $1
ORDER BY seq ASC
`
	rows, err := r.db.QueryContext(ctx, q, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Turn
	for rows.Next() {
		var t Turn
		var role string
		if err := rows.Scan(&t.RunID, &t.Seq, &role, &t.Content, &t.CreatedAt); err != nil {
			return nil, err
		}
		t.Role = TurnRole(role)
		out = append(out, t)
	}
	return out, rows.Err()
}

func (r *PostgresRepo) AddTokens(ctx context.Context, runID string, tokens int64) error {
	const q = `
UPDATE call_runs
SET tokens_used = tokens_used + $2
WHERE id = $1 AND status = $3
`
	res, err := r.db.ExecContext(ctx, q, runID, tokens, string(RunStatusInProgress))
	if err != nil {
		return err
	}
	return checkRunUpdated(ctx, r.db, res, runID)
}

func (r *PostgresRepo) CompleteRun(ctx context.Context, runID string, status RunStatus, disposition Disposition, durationSeconds int, completedAt time.Time) error {
	const q = `
UPDATE call_runs
SET status = $2, disposition = $3, duration_seconds = $4, completed_at = $5
WHERE id = $1 AND status = $6
`
	res, err := r.db.ExecContext(ctx, q, runID, string(status), string(disposition), durationSeconds, completedAt, string(RunStatusInProgress))
	if err != nil {
		return err
	}
	return checkRunUpdated(ctx, r.db, res, runID)
}

func (r *PostgresRepo) AttachRecording(ctx context.Context, runID, url string, durationSeconds int) error {
	const q = `
UPDATE call_runs
SET recording_url = $2, recording_duration_seconds = $3
WHERE id = $1
`
	res, err := r.db.ExecContext(ctx, q, runID, url, durationSeconds)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *PostgresRepo) ListRuns(ctx context.Context, tenantID string, from, to time.Time, campaignID string) ([]CallRun, error) {
	q := `
SELECT id, tenant_id, run_number, agent_id,
       COALESCE(campaign_id, ''), COALESCE(contact_id, ''),
       type, status, COALESCE(provider_call_id, ''), COALESCE(disposition, ''),
       duration_seconds, tokens_used,
       COALESCE(recording_url, ''), recording_duration_seconds,
       created_at, completed_at
FROM call_runs
WHERE tenant_id = $1 AND created_at >= $2 AND created_at < $3
`
	args := []any{tenantID, from, to}
	if campaignID != "" {
		q += ` AND campaign_id = $4`
		args = append(args, campaignID)
	}
	q += ` ORDER BY created_at ASC`

	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []CallRun
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, run)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(row rowScanner) (CallRun, error) {
	var run CallRun
	var typ, status, disposition string
	if err := row.Scan(
		&run.ID, &run.TenantID, &run.RunNumber, &run.AgentID,
		&run.CampaignID, &run.ContactID,
		&typ, &status, &run.ProviderCallID, &disposition,
		&run.DurationSeconds, &run.TokensUsed,
		&run.RecordingURL, &run.RecordingDurationSeconds,
		&run.CreatedAt, &run.CompletedAt,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return CallRun{}, ErrNotFound
		}
		return CallRun{}, err
	}
	run.Type = CallType(typ)
	run.Status = RunStatus(status)
	run.Disposition = Disposition(disposition)
	return run, nil
}

func lockRun(ctx context.Context, tx *sql.Tx, runID string) (RunStatus, error) {
	const q = `SELECT status FROM call_runs WHERE id = $1 FOR UPDATE`
	var status string
	if err := tx.QueryRowContext(ctx, q, runID).Scan(&status); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", ErrNotFound
		}
		return "", err
	}
	return RunStatus(status), nil
}

// checkRunUpdated distinguishes "run missing" from "run already closed" when
// a guarded update matched no rows.
func checkRunUpdated(ctx context.Context, db *sql.DB, res sql.Result, runID string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n > 0 {
		return nil
	}
	const q = `SELECT 1 FROM call_runs WHERE id = $1`
	var one int
	if err := db.QueryRowContext(ctx, q, runID).Scan(&one); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ErrNotFound
		}
		return err
	}
	return ErrRunClosed
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}
