package core

import (
	stderrors "errors"
	"fmt"
	"testing"

	goerrors "github.com/goliatone/go-errors"
)

func TestWebhookErrorMapper_AssignsStableCodes(t *testing.T) {
	mapped := webhookErrorMapper(fmt.Errorf("load: %w", ErrRecordNotFound))
	if mapped.TextCode != ErrorNotFound || mapped.Code != 404 {
		t.Fatalf("expected not found mapping, got code=%d text=%q", mapped.Code, mapped.TextCode)
	}

	mapped = webhookErrorMapper(fmt.Errorf("%w: %q", ErrInvalidAction, "archive"))
	if mapped.TextCode != ErrorBadInput {
		t.Fatalf("expected bad input text code, got %q", mapped.TextCode)
	}

	mapped = webhookErrorMapper(stderrors.New("core: webhook url is required"))
	if mapped.TextCode != ErrorBadInput || mapped.Code != 400 {
		t.Fatalf("expected required field to map to bad input, got code=%d text=%q", mapped.Code, mapped.TextCode)
	}

	mapped = webhookErrorMapper(stderrors.New("disk on fire"))
	if mapped.Code == 0 || mapped.TextCode == "" {
		t.Fatalf("expected fallback envelope to carry code and text code, got %+v", mapped)
	}
}

func TestWebhookErrorMapper_KeepsRichErrors(t *testing.T) {
	source := NewError("core: drain busy", goerrors.CategoryConflict, ErrorDrainInProgress, nil)
	mapped := webhookErrorMapper(fmt.Errorf("wrapped: %w", source))
	if mapped.TextCode != ErrorDrainInProgress || mapped.Code != 409 {
		t.Fatalf("expected rich error preserved, got code=%d text=%q", mapped.Code, mapped.TextCode)
	}
}

func TestHTTPStatus_Categories(t *testing.T) {
	cases := map[goerrors.Category]int{
		goerrors.CategoryAuth:       401,
		goerrors.CategoryAuthz:      401,
		goerrors.CategoryNotFound:   404,
		goerrors.CategoryValidation: 400,
		goerrors.CategoryConflict:   409,
		goerrors.CategoryExternal:   502,
		goerrors.CategoryInternal:   500,
	}
	for category, want := range cases {
		if got := HTTPStatus(category); got != want {
			t.Fatalf("category %q: expected %d, got %d", category, want, got)
		}
	}
}

func TestErrorKind(t *testing.T) {
	err := propertyNotFoundError("status", Record{Table: "orders", ID: "1"})
	if ErrorKind(err) != ErrorPropertyNotFound {
		t.Fatalf("expected property not found kind, got %q", ErrorKind(err))
	}
	var richErr *goerrors.Error
	if !goerrors.As(err, &richErr) || richErr.Code != 500 {
		t.Fatalf("expected property not found surfaced as 500")
	}
	if ErrorKind(stderrors.New("plain")) != "" {
		t.Fatalf("expected empty kind for plain errors")
	}
}
