package campaign

import "time"

// Campaign is a batch outbound-calling job over a contact list, bound to one
// agent.
//
// Multi-tenant invariant: TenantID is required on every row; campaigns are
// mutated only through state-transition operations and never deleted by the
// engine.
type Campaign struct {
	ID       string `json:"id" db:"id"`
	TenantID string `json:"tenant_id" db:"tenant_id"`
	AgentID  string `json:"agent_id" db:"agent_id"`

	// Source describes where the contact list came from (e.g., an upload
	// reference).
	Source string `json:"source,omitempty" db:"source"`

	State State `json:"state" db:"state"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

type State string

const (
	StateCreated   State = "created"
	StateRunning   State = "running"
	StatePaused    State = "paused"
	StateStopped   State = "stopped"
	StateCompleted State = "completed"
)

// IsTerminal reports whether no further transitions are allowed.
func (s State) IsTerminal() bool {
	return s == StateStopped || s == StateCompleted
}

// Contact is one dial target within a campaign. It is enqueued at most once
// per campaign run and transitions out of pending exactly once, by the
// worker, after the outbound call attempt resolves.
type Contact struct {
	ID         string `json:"id" db:"id"`
	CampaignID string `json:"campaign_id" db:"campaign_id"`
	TenantID   string `json:"tenant_id" db:"tenant_id"`

	Phone     string `json:"phone" db:"phone"`
	FirstName string `json:"first_name,omitempty" db:"first_name"`
	LastName  string `json:"last_name,omitempty" db:"last_name"`

	Status ContactStatus `json:"status" db:"status"`

	// CallRunID links the contact to the run its call produced.
	CallRunID string `json:"call_run_id,omitempty" db:"call_run_id"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

type ContactStatus string

const (
	ContactPending ContactStatus = "pending"
	ContactCalled  ContactStatus = "called"
	ContactFailed  ContactStatus = "failed"
)

// SourceRow is one parsed row from a campaign's contact list.
type SourceRow struct {
	Phone     string `json:"phone"`
	FirstName string `json:"first_name,omitempty"`
	LastName  string `json:"last_name,omitempty"`
}
