package core

import (
	"context"
	"errors"
	"testing"
)

type payloadHookFunc struct {
	name string
	fn   func(payload any) (any, error)
}

func (h payloadHookFunc) Name() string { return h.name }

func (h payloadHookFunc) Process(_ context.Context, _ WebhookDefinition, _ Record, payload any) (any, error) {
	return h.fn(payload)
}

func TestPayloadHookChain_AppliesInOrder(t *testing.T) {
	chain := NewPayloadHookChain(
		payloadHookFunc{name: "stamp", fn: func(payload any) (any, error) {
			object := payload.(map[string]any)
			object["source"] = "erp"
			return object, nil
		}},
		payloadHookFunc{name: "envelope", fn: func(payload any) (any, error) {
			return map[string]any{"data": payload}, nil
		}},
	)
	out, err := chain.Apply(context.Background(), WebhookDefinition{}, Record{}, map[string]any{"id": "1"})
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	data := out.(map[string]any)["data"].(map[string]any)
	if data["source"] != "erp" || data["id"] != "1" {
		t.Fatalf("unexpected processed payload %#v", out)
	}
	if names := chain.Names(); len(names) != 2 || names[0] != "stamp" {
		t.Fatalf("unexpected hook names %v", names)
	}
}

func TestPayloadHookChain_FailureAborts(t *testing.T) {
	chain := NewPayloadHookChain(payloadHookFunc{name: "reject", fn: func(any) (any, error) {
		return nil, errors.New("blocked")
	}})
	out, err := chain.Apply(context.Background(), WebhookDefinition{}, Record{}, map[string]any{})
	if out != nil || !IsErrorKind(err, ErrorHandlerInvocation) {
		t.Fatalf("expected invocation failure and no payload, got %#v %v", out, err)
	}
	if err := chain.Register(payloadHookFunc{name: "REJECT"}); err == nil {
		t.Fatalf("expected duplicate hook name rejected")
	}
}
