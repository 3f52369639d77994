package telephony

import (
	"context"
	"errors"
	"fmt"
)

// PlaceCallRequest carries everything needed to start one outbound call.
// Credentials travel with the request: the worker resolves them per job, so
// a single dialer serves every tenant.
type PlaceCallRequest struct {
	AccountSID string
	AuthToken  string

	From string
	To   string

	// AnswerURL receives the first webhook when the callee picks up.
	AnswerURL string
	// StatusCallbackURL receives lifecycle events including the terminal one.
	StatusCallbackURL string
	// RecordingCallbackURL, when set, enables call recording.
	RecordingCallbackURL string
}

type PlaceCallResult struct {
	// ProviderCallID is the provider's identifier for the created call.
	ProviderCallID string
	Status         string
}

// Dialer starts outbound calls at the provider boundary.
type Dialer interface {
	PlaceCall(ctx context.Context, req PlaceCallRequest) (PlaceCallResult, error)
}

// CallError is a provider rejection. 4xx responses are permanent: the same
// request will keep failing, so the worker should not retry them.
type CallError struct {
	StatusCode int
	Code       int
	Message    string
}

func (e *CallError) Error() string {
	if e.Code != 0 {
		return fmt.Sprintf("telephony: provider error %d (code %d): %s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("telephony: provider error %d: %s", e.StatusCode, e.Message)
}

func (e *CallError) Permanent() bool {
	return e.StatusCode >= 400 && e.StatusCode < 500
}

// IsPermanent reports whether err is a provider rejection that retrying
// cannot fix.
func IsPermanent(err error) bool {
	var ce *CallError
	if errors.As(err, &ce) {
		return ce.Permanent()
	}
	return false
}
