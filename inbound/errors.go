package inbound

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-webhooks/core"
)

var (
	ErrActionNotFound   = errors.New("inbound: action not found")
	ErrUnauthorized     = errors.New("inbound: caller is not authorized for action")
	ErrMissingParameter = errors.New("inbound: missing required parameter")
	ErrMethodNotAllowed = errors.New("inbound: method not allowed")
)

func actionNotFoundError(name string) error {
	return core.WrapError(
		ErrActionNotFound,
		goerrors.CategoryNotFound,
		core.ErrorActionNotFound,
		fmt.Sprintf("inbound: action %q not found", name),
		map[string]any{"action": name},
	).WithCode(http.StatusNotFound)
}

func unauthorizedError(action core.ActionDefinition, actor core.ActorContext) error {
	return core.WrapError(
		ErrUnauthorized,
		goerrors.CategoryAuthz,
		core.ErrorUnauthorized,
		fmt.Sprintf("inbound: caller is not allowed to run action %q", action.Name),
		map[string]any{"action": action.Name, "token_id": actor.TokenID, "role_id": actor.RoleID},
	).WithCode(http.StatusUnauthorized)
}

func missingParameterError(action core.ActionDefinition, parameter string) error {
	return core.WrapError(
		ErrMissingParameter,
		goerrors.CategoryValidation,
		core.ErrorMissingParameter,
		fmt.Sprintf("inbound: missing required parameter %q", parameter),
		map[string]any{"action": action.Name, "parameter": parameter},
	).WithCode(http.StatusInternalServerError)
}

func methodNotAllowedError(method string) error {
	return core.WrapError(
		ErrMethodNotAllowed,
		goerrors.CategoryBadInput,
		core.ErrorBadInput,
		fmt.Sprintf("inbound: method %q not allowed", method),
		map[string]any{"method": method},
	).WithCode(http.StatusMethodNotAllowed)
}

// StatusCode maps an inbound failure to its HTTP status. Explicit envelope
// codes win; anything unclassified is a 500.
func StatusCode(err error) int {
	if err == nil {
		return http.StatusOK
	}
	var rich *goerrors.Error
	if !goerrors.As(err, &rich) {
		return http.StatusInternalServerError
	}
	if rich.Code >= 400 && rich.Code <= 599 {
		return rich.Code
	}
	switch rich.TextCode {
	case core.ErrorUnauthenticated, core.ErrorUnauthorized:
		return http.StatusUnauthorized
	case core.ErrorActionNotFound:
		return http.StatusNotFound
	}
	return http.StatusInternalServerError
}

// ErrorBody is the JSON envelope written for failed requests. Internal
// details stay out of the message for 5xx failures other than missing
// parameters, which must name the parameter.
func ErrorBody(err error) map[string]any {
	status := StatusCode(err)
	body := map[string]any{"status": status}
	var rich *goerrors.Error
	if err == nil {
		return body
	}
	if !goerrors.As(err, &rich) {
		body["error"] = map[string]any{
			"text_code": core.ErrorInternal,
			"message":   "An unexpected error occurred",
		}
		return body
	}
	message := strings.TrimSpace(rich.Message)
	if status >= http.StatusInternalServerError &&
		rich.TextCode != core.ErrorMissingParameter &&
		rich.TextCode != core.ErrorHandlerInvocation {
		message = "An unexpected error occurred"
	}
	errorBody := map[string]any{
		"text_code": rich.TextCode,
		"message":   message,
	}
	if rich.TextCode == core.ErrorMissingParameter {
		if parameter, ok := rich.Metadata["parameter"]; ok {
			errorBody["parameter"] = parameter
		}
	}
	body["error"] = errorBody
	return body
}
