package calls

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// CallRun is the record of one individual phone or web call and its
// conversation.
//
// Multi-tenant invariant: TenantID is required on every row.
//
// Mutation rules:
// - Created when a call is initiated.
// - Turns are appended while Status == in_progress.
// - Disposition and CompletedAt are set exactly once, on the terminal
//   transition; after that the run is immutable (recording attachment is the
//   one exception, since the provider may deliver it late).
type CallRun struct {
	ID       string `json:"id" db:"id"`
	TenantID string `json:"tenant_id" db:"tenant_id"`

	// RunNumber is a human-readable unique identifier generated at creation.
	RunNumber string `json:"run_number" db:"run_number"`

	AgentID    string `json:"agent_id" db:"agent_id"`
	CampaignID string `json:"campaign_id,omitempty" db:"campaign_id"`
	ContactID  string `json:"contact_id,omitempty" db:"contact_id"`

	Type   CallType  `json:"type" db:"type"`
	Status RunStatus `json:"status" db:"status"`

	// ProviderCallID is the provider's identifier (e.g., Twilio CallSid).
	ProviderCallID string `json:"provider_call_id,omitempty" db:"provider_call_id"`

	Disposition Disposition `json:"disposition,omitempty" db:"disposition"`

	DurationSeconds int   `json:"duration_seconds" db:"duration_seconds"`
	TokensUsed      int64 `json:"tokens_used" db:"tokens_used"`

	RecordingURL             string `json:"recording_url,omitempty" db:"recording_url"`
	RecordingDurationSeconds int    `json:"recording_duration_seconds" db:"recording_duration_seconds"`

	CreatedAt   time.Time  `json:"created_at" db:"created_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty" db:"completed_at"`
}

type CallType string

const (
	CallTypeWeb   CallType = "WEB_CALL"
	CallTypePhone CallType = "PHONE_CALL"
)

type RunStatus string

const (
	RunStatusInProgress RunStatus = "in_progress"
	RunStatusCompleted  RunStatus = "completed"
	RunStatusFailed     RunStatus = "failed"
)

// Disposition is the terminal classification of how a call ended.
type Disposition string

const (
	DispositionCompleted       Disposition = "completed"
	DispositionUserHangup      Disposition = "user_hangup"
	DispositionNoAnswer        Disposition = "no_answer"
	DispositionBusy            Disposition = "busy"
	DispositionProviderFailure Disposition = "provider_failure"
	DispositionQuotaExceeded   Disposition = "quota_exceeded"
)

// Turn is one utterance in a run's conversation. Turns are append-only and
// ordered by Seq; together they are the durable session state the webhook
// engine reconstructs on every callback.
type Turn struct {
	RunID     string    `json:"run_id" db:"run_id"`
	Seq       int       `json:"seq" db:"seq"`
	Role      TurnRole  `json:"role" db:"role"`
	Content   string    `json:"content" db:"content"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

type TurnRole string

const (
	RoleUser      TurnRole = "user"
	RoleAssistant TurnRole = "assistant"
)

// NewRunNumber generates a run number like R-20260102-a1b2c3d4.
// Uniqueness comes from the uuid fragment; the date prefix keeps the number
// readable in support tooling.
func NewRunNumber(at time.Time) string {
	return fmt.Sprintf("R-%s-%s", at.UTC().Format("20060102"), uuid.NewString()[:8])
}
