package creds

import (
	"context"
	"errors"
	"fmt"
)

// Chain tries resolvers in order and returns the first usable bundle.
//
// The intended order is tenant-stored credentials first, then the platform
// account from the environment. A hard failure from a resolver (store down)
// stops the chain: falling through to platform credentials on an outage
// would silently bill calls to the wrong account.
type Chain []Resolver

func (c Chain) Resolve(ctx context.Context, tenantID string) (Credentials, error) {
	for _, r := range c {
		out, err := r.Resolve(ctx, tenantID)
		if errors.Is(err, ErrNoCredentials) {
			continue
		}
		if err != nil {
			return Credentials{}, fmt.Errorf("resolve credentials: %w", err)
		}
		return out, nil
	}
	return Credentials{}, ErrNoCredentials
}

// HasCredentials reports whether any resolver can serve the tenant.
func (c Chain) HasCredentials(ctx context.Context, tenantID string) (bool, error) {
	_, err := c.Resolve(ctx, tenantID)
	if errors.Is(err, ErrNoCredentials) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// EnvResolver serves one fixed platform-level bundle to every tenant.
type EnvResolver struct {
	bundle Credentials
}

func NewEnvResolver(accountSID, authToken, fromNumber string) *EnvResolver {
	return &EnvResolver{bundle: Credentials{
		AccountSID: accountSID,
		AuthToken:  authToken,
		FromNumber: fromNumber,
		Source:     "platform",
	}}
}

func (r *EnvResolver) Resolve(ctx context.Context, tenantID string) (Credentials, error) {
	if !r.bundle.complete() {
		return Credentials{}, ErrNoCredentials
	}
	return r.bundle, nil
}
