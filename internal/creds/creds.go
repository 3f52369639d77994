package creds

import (
	"context"
	"errors"
)

// Credentials is a telephony credential bundle used to place outbound calls.
type Credentials struct {
	AccountSID string `json:"account_sid"`
	AuthToken  string `json:"-"`
	FromNumber string `json:"from_number"`

	// Source names the resolver that produced the bundle ("tenant" or
	// "platform"). Logged for operability, never returned to tenants.
	Source string `json:"source"`
}

func (c Credentials) complete() bool {
	return c.AccountSID != "" && c.AuthToken != "" && c.FromNumber != ""
}

// ErrNoCredentials means no resolver in the chain produced a usable bundle.
var ErrNoCredentials = errors.New("creds: no telephony credentials for tenant")

// Resolver produces calling credentials for a tenant. Resolution happens at
// call-execution time, not enqueue time, so rotated secrets apply to jobs
// already in the queue.
type Resolver interface {
	Resolve(ctx context.Context, tenantID string) (Credentials, error)
}
