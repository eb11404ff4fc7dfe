package transport

import (
	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-webhooks/core"
)

// transportError builds an envelope whose text code follows the category:
// bad input and validation failures are the caller's, external failures the
// receiver's, anything else ours.
func transportError(message string, category goerrors.Category, code int, metadata map[string]any) error {
	return core.NewError(message, category, transportTextCode(category), metadata).WithCode(code)
}

func transportWrapError(source error, category goerrors.Category, message string, code int, metadata map[string]any) error {
	return core.WrapError(source, category, transportTextCode(category), message, metadata).WithCode(code)
}

func unsupportedSchemeError(scheme string, rawURL string) error {
	return core.NewError("transport: unsupported url scheme", goerrors.CategoryBadInput,
		core.ErrorUnsupportedScheme, map[string]any{"scheme": scheme, "url": rawURL})
}

func transportTextCode(category goerrors.Category) string {
	switch category {
	case goerrors.CategoryBadInput, goerrors.CategoryValidation:
		return core.ErrorBadInput
	case goerrors.CategoryExternal:
		return core.ErrorTransportFailure
	}
	return core.ErrorInternal
}
