package core

import (
	"errors"
	"testing"
	"time"
)

func TestParseLifecycleAction(t *testing.T) {
	action, err := ParseLifecycleAction(" Update ")
	if err != nil || action != ActionUpdate {
		t.Fatalf("expected update, got %q err=%v", action, err)
	}
	if _, err := ParseLifecycleAction("archive"); !errors.Is(err, ErrInvalidAction) {
		t.Fatalf("expected invalid action, got %v", err)
	}
}

func TestParsePayloadKind_DefaultsToJSON(t *testing.T) {
	kind, err := ParsePayloadKind("")
	if err != nil || kind != PayloadJSON {
		t.Fatalf("expected json default, got %q err=%v", kind, err)
	}
	if kind, _ := ParsePayloadKind("XML"); kind != PayloadXML {
		t.Fatalf("expected xml, got %q", kind)
	}
	if _, err := ParsePayloadKind("yaml"); !errors.Is(err, ErrInvalidPayloadKind) {
		t.Fatalf("expected invalid payload kind, got %v", err)
	}
}

func TestRecordDisplayID(t *testing.T) {
	record := Record{Table: "orders", ID: "42", Values: map[string]any{"document_no": "SO-42"}}
	if got := record.DisplayID(); got != "orders#42 (SO-42)" {
		t.Fatalf("unexpected display id %q", got)
	}
	if got := (Record{Table: "orders", ID: "1"}).DisplayID(); got != "orders#1" {
		t.Fatalf("unexpected bare display id %q", got)
	}
}

func TestAPIKeyExpired(t *testing.T) {
	now := time.Now()
	past := now.Add(-time.Minute)
	future := now.Add(time.Minute)
	if (APIKey{}).Expired(now) {
		t.Fatalf("expected key without expiry to stay valid")
	}
	if !(APIKey{ExpiresAt: &past}).Expired(now) {
		t.Fatalf("expected past expiry to be expired")
	}
	if (APIKey{ExpiresAt: &future}).Expired(now) {
		t.Fatalf("expected future expiry to be valid")
	}
}

func TestLookupProperty(t *testing.T) {
	record := Record{Table: "orders", ID: "5", Values: map[string]any{
		"Status": "open",
		"lines":  []any{map[string]any{"sku": "A1"}},
		"empty":  nil,
	}}
	if value, ok := LookupProperty(record, "status"); !ok || value != "open" {
		t.Fatalf("expected case-insensitive match, got %v %v", value, ok)
	}
	if value, ok := LookupProperty(record, "lines.0.sku"); !ok || value != "A1" {
		t.Fatalf("expected list index lookup, got %v %v", value, ok)
	}
	if value, ok := LookupProperty(record, "id"); !ok || value != "5" {
		t.Fatalf("expected id fallback, got %v %v", value, ok)
	}
	if _, ok := LookupProperty(record, "empty"); ok {
		t.Fatalf("expected nil value treated as missing")
	}
}

func TestStringify(t *testing.T) {
	if Stringify(42) != "42" || Stringify(true) != "true" || Stringify(1.5) != "1.5" {
		t.Fatalf("unexpected scalar stringification")
	}
	at := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	if Stringify(at) != "2024-03-01T10:00:00Z" {
		t.Fatalf("unexpected time stringification %q", Stringify(at))
	}
	if Stringify(map[string]any{"b": 1, "a": 2}) != `{"a":2,"b":1}` {
		t.Fatalf("unexpected map stringification %q", Stringify(map[string]any{"b": 1, "a": 2}))
	}
}
