package core

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	goerrors "github.com/goliatone/go-errors"
)

const (
	ErrorPropertyNotFound         = "WEBHOOK_PROPERTY_NOT_FOUND"
	ErrorHandlerContractViolation = "WEBHOOK_HANDLER_CONTRACT_VIOLATION"
	ErrorHandlerInvocation        = "WEBHOOK_HANDLER_INVOCATION_FAILED"
	ErrorUnsupportedScheme        = "WEBHOOK_UNSUPPORTED_SCHEME"
	ErrorUnauthenticated          = "WEBHOOK_UNAUTHENTICATED"
	ErrorActionNotFound           = "WEBHOOK_ACTION_NOT_FOUND"
	ErrorUnauthorized             = "WEBHOOK_UNAUTHORIZED"
	ErrorMissingParameter         = "WEBHOOK_MISSING_PARAMETER"
	ErrorTransportFailure         = "WEBHOOK_TRANSPORT_FAILURE"
	ErrorTemplateInvalid          = "WEBHOOK_TEMPLATE_INVALID"
	ErrorEventConflict            = "WEBHOOK_EVENT_CONFLICT"
	ErrorDrainInProgress          = "WEBHOOK_DRAIN_IN_PROGRESS"
	ErrorNotFound                 = "WEBHOOK_NOT_FOUND"
	ErrorBadInput                 = "WEBHOOK_BAD_INPUT"
	ErrorInternal                 = "WEBHOOK_INTERNAL_ERROR"
	ErrorRateLimited              = "WEBHOOK_RATE_LIMITED"
	ErrorIdempotencyConflict      = "WEBHOOK_IDEMPOTENCY_CONFLICT"
)

var (
	ErrPropertyNotFound         = errors.New("core: property not found")
	ErrHandlerContractViolation = errors.New("core: handler contract violation")
	ErrHandlerNotRegistered     = errors.New("core: handler not registered")
	ErrDrainInProgress          = errors.New("core: drain already in progress")
	ErrDrainLeaseLost           = errors.New("core: drain lease lost")
)

// NewError builds a go-errors envelope carrying a webhook text code. The HTTP
// code defaults from the category.
func NewError(message string, category goerrors.Category, textCode string, metadata map[string]any) *goerrors.Error {
	err := goerrors.New(message, category).
		WithCode(HTTPStatus(category)).
		WithTextCode(textCode)
	if len(metadata) > 0 {
		err.WithMetadata(metadata)
	}
	return err
}

func WrapError(source error, category goerrors.Category, textCode string, message string, metadata map[string]any) *goerrors.Error {
	if source == nil {
		return NewError(message, category, textCode, metadata)
	}
	err := goerrors.Wrap(source, category, message).
		WithCode(HTTPStatus(category)).
		WithTextCode(textCode)
	if len(metadata) > 0 {
		err.WithMetadata(metadata)
	}
	return err
}

func propertyNotFoundError(path string, record Record) error {
	return WrapError(
		ErrPropertyNotFound,
		goerrors.CategoryNotFound,
		ErrorPropertyNotFound,
		fmt.Sprintf("core: property %q not found on %s", path, record.Table),
		map[string]any{"path": path, "table": record.Table, "record_id": record.ID},
	).WithCode(http.StatusInternalServerError)
}

func contractViolationError(name string, contract string) error {
	return WrapError(
		ErrHandlerContractViolation,
		goerrors.CategoryInternal,
		ErrorHandlerContractViolation,
		fmt.Sprintf("core: handler %q does not implement %s", name, contract),
		map[string]any{"handler": name, "contract": contract},
	)
}

func invocationError(name string, cause error) error {
	return WrapError(
		cause,
		goerrors.CategoryOperation,
		ErrorHandlerInvocation,
		fmt.Sprintf("core: handler %q failed", name),
		map[string]any{"handler": name},
	).WithCode(http.StatusInternalServerError)
}

func drainInProgressError() error {
	return WrapError(
		ErrDrainInProgress,
		goerrors.CategoryConflict,
		ErrorDrainInProgress,
		"core: a drain sweep is already running",
		nil,
	)
}

// ErrorKind returns the webhook text code carried by err, or "" when err is
// not an envelope.
func ErrorKind(err error) string {
	var rich *goerrors.Error
	if err != nil && goerrors.As(err, &rich) {
		return strings.TrimSpace(rich.TextCode)
	}
	return ""
}

func IsErrorKind(err error, textCode string) bool {
	return err != nil && ErrorKind(err) == textCode
}

// HTTPStatus is the default status for a category. Inbound errors that need a
// different status set it explicitly with WithCode.
func HTTPStatus(category goerrors.Category) int {
	switch category {
	case goerrors.CategoryBadInput, goerrors.CategoryValidation:
		return http.StatusBadRequest
	case goerrors.CategoryNotFound:
		return http.StatusNotFound
	case goerrors.CategoryAuth, goerrors.CategoryAuthz:
		return http.StatusUnauthorized
	case goerrors.CategoryConflict:
		return http.StatusConflict
	case goerrors.CategoryRateLimit:
		return http.StatusTooManyRequests
	case goerrors.CategoryExternal:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func webhookErrorMapper(err error) *goerrors.Error {
	if err == nil {
		return nil
	}
	var richErr *goerrors.Error
	if goerrors.As(err, &richErr) {
		return ensureErrorEnvelope(richErr)
	}
	switch {
	case errors.Is(err, ErrRecordNotFound), errors.Is(err, ErrDefinitionNotFound):
		return ensureErrorEnvelope(goerrors.New(err.Error(), goerrors.CategoryNotFound).WithTextCode(ErrorNotFound))
	case errors.Is(err, ErrInvalidAction), errors.Is(err, ErrInvalidPayloadKind),
		errors.Is(err, ErrInvalidValueKind), errors.Is(err, ErrInvalidPlacement):
		return ensureErrorEnvelope(goerrors.New(err.Error(), goerrors.CategoryBadInput).WithTextCode(ErrorBadInput))
	}
	msg := strings.ToLower(strings.TrimSpace(err.Error()))
	if strings.Contains(msg, "required") || strings.Contains(msg, "invalid") {
		return ensureErrorEnvelope(goerrors.New(err.Error(), goerrors.CategoryBadInput).WithTextCode(ErrorBadInput))
	}
	return ensureErrorEnvelope(goerrors.MapToError(err, goerrors.DefaultErrorMappers()))
}

func ensureErrorEnvelope(err *goerrors.Error) *goerrors.Error {
	if err == nil {
		return nil
	}
	if err.Code == 0 {
		err.Code = HTTPStatus(err.Category)
	}
	if strings.TrimSpace(err.TextCode) == "" {
		err.TextCode = defaultTextCode(err.Category)
	}
	if err.Category == goerrors.CategoryInternal && strings.TrimSpace(err.Message) == "" {
		err.Message = "An unexpected error occurred"
	}
	return err
}

func defaultTextCode(category goerrors.Category) string {
	switch category {
	case goerrors.CategoryBadInput, goerrors.CategoryValidation:
		return ErrorBadInput
	case goerrors.CategoryNotFound:
		return ErrorNotFound
	case goerrors.CategoryAuth:
		return ErrorUnauthenticated
	case goerrors.CategoryAuthz:
		return ErrorUnauthorized
	case goerrors.CategoryConflict:
		return ErrorEventConflict
	case goerrors.CategoryExternal:
		return ErrorTransportFailure
	default:
		return ErrorInternal
	}
}

func mapBuildError(mapper ErrorMapper, err error) error {
	if err == nil {
		return nil
	}
	if mapper == nil {
		return err
	}
	if mapped := mapper(err); mapped != nil {
		return mapped
	}
	return err
}
