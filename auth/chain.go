package auth

import (
	"context"
	"strings"

	"github.com/goliatone/go-webhooks/core"
)

// Chain authenticates with the API key when one is presented and falls back
// to the bearer token only when it is absent. An invalid key never falls
// through to the bearer scheme.
type Chain struct {
	APIKey core.Authenticator
	Bearer core.Authenticator
}

func NewChain(apiKey core.Authenticator, bearer core.Authenticator) *Chain {
	return &Chain{APIKey: apiKey, Bearer: bearer}
}

func (c *Chain) Authenticate(ctx context.Context, credentials core.Credentials) (core.ActorContext, error) {
	if c == nil {
		return core.ActorContext{}, unauthenticated(ErrMissingCredentials, "no_authenticator", nil)
	}
	if strings.TrimSpace(credentials.APIKey) != "" {
		if c.APIKey == nil {
			return core.ActorContext{}, unauthenticated(ErrInvalidCredentials, "api_key_scheme_disabled", nil)
		}
		return c.APIKey.Authenticate(ctx, credentials)
	}
	if strings.TrimSpace(credentials.BearerToken) != "" {
		if c.Bearer == nil {
			return core.ActorContext{}, unauthenticated(ErrInvalidCredentials, "bearer_scheme_disabled", nil)
		}
		return c.Bearer.Authenticate(ctx, credentials)
	}
	return core.ActorContext{}, unauthenticated(ErrMissingCredentials, "missing_credentials", nil)
}

var _ core.Authenticator = (*Chain)(nil)
