package auth

import (
	"errors"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-webhooks/core"
)

var (
	ErrMissingCredentials = errors.New("auth: credentials are required")
	ErrInvalidCredentials = errors.New("auth: invalid credentials")
)

func unauthenticated(cause error, reason string, metadata map[string]any) error {
	if cause == nil {
		cause = ErrInvalidCredentials
	}
	fields := map[string]any{"reason": reason}
	for key, value := range metadata {
		fields[key] = value
	}
	return core.WrapError(cause, goerrors.CategoryAuth, core.ErrorUnauthenticated, "auth: caller is not authenticated", fields)
}

func internalError(cause error, message string) error {
	return core.WrapError(cause, goerrors.CategoryInternal, core.ErrorInternal, message, nil)
}
