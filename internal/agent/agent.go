package agent

import (
	"context"
	"database/sql"
	"errors"
	"sync"
	"time"
)

// Agent is a configured conversational persona. Campaigns reference an agent
// by id; the conversation engine reads its prompt and greeting on every turn.
type Agent struct {
	ID       string `json:"id" db:"id"`
	TenantID string `json:"tenant_id" db:"tenant_id"`
	Name     string `json:"name" db:"name"`

	// SystemPrompt steers the generative model for the whole call.
	SystemPrompt string `json:"system_prompt" db:"system_prompt"`

	// Greeting is spoken before the callee has said anything.
	Greeting string `json:"greeting" db:"greeting"`

	// Voice is the synthesis voice passed to the telephony provider.
	Voice string `json:"voice,omitempty" db:"voice"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

var ErrNotFound = errors.New("agent: not found")

// Repository is read-only from the engine's perspective: agents are managed
// by a separate configuration surface.
type Repository interface {
	Get(ctx context.Context, tenantID, agentID string) (Agent, error)
	List(ctx context.Context, tenantID string) ([]Agent, error)
}

type PostgresRepo struct {
	db *sql.DB
}

func NewPostgresRepo(db *sql.DB) *PostgresRepo { return &PostgresRepo{db: db} }

func (r *PostgresRepo) Get(ctx context.Context, tenantID, agentID string) (Agent, error) {
	const q = `
SELECT id, tenant_id, name, system_prompt, greeting, COALESCE(voice, ''), created_at
FROM agents
WHERE tenant_id = $1 AND id = $2
`
	var a Agent
	if err := r.db.QueryRowContext(ctx, q, tenantID, agentID).Scan(
		&a.ID, &a.TenantID, &a.Name, &a.SystemPrompt, &a.Greeting, &a.Voice, &a.CreatedAt,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Agent{}, ErrNotFound
		}
		return Agent{}, err
	}
	return a, nil
}

func (r *PostgresRepo) List(ctx context.Context, tenantID string) ([]Agent, error) {
	const q = `
SELECT id, tenant_id, name, system_prompt, greeting, COALESCE(voice, ''), created_at
FROM agents
WHERE tenant_id = $1
ORDER BY created_at ASC
`
	rows, err := r.db.QueryContext(ctx, q, tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Agent
	for rows.Next() {
		var a Agent
		if err := rows.Scan(&a.ID, &a.TenantID, &a.Name, &a.SystemPrompt, &a.Greeting, &a.Voice, &a.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// MemoryRepo is an in-memory Repository for tests.
type MemoryRepo struct {
	mu   sync.Mutex
	byID map[string]Agent
}

func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{byID: map[string]Agent{}}
}

// Seed stores an agent directly. Tests only.
func (r *MemoryRepo) Seed(a Agent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byID[a.ID] = a
}

func (r *MemoryRepo) Get(ctx context.Context, tenantID, agentID string) (Agent, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.byID[agentID]
	if !ok || a.TenantID != tenantID {
		return Agent{}, ErrNotFound
	}
	return a, nil
}

func (r *MemoryRepo) List(ctx context.Context, tenantID string) ([]Agent, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Agent
	for _, a := range r.byID {
		if a.TenantID == tenantID {
			out = append(out, a)
		}
	}
	return out, nil
}
