package inbound

import (
	"context"
	"encoding/json"
	"testing"
)

func TestRouter_DocsDescribesActiveActions(t *testing.T) {
	fx := newRouterFixture(t)
	doc, err := fx.router.Docs(context.Background(), "erp hooks", "")
	if err != nil {
		t.Fatalf("docs: %v", err)
	}
	if doc.OpenAPI != openAPIVersion || doc.Info.Title != "erp hooks" {
		t.Fatalf("unexpected header %#v", doc.Info)
	}
	if _, ok := doc.Paths["/webhooks/disabled"]; ok {
		t.Fatalf("inactive actions must not be documented")
	}
	item, ok := doc.Paths["/webhooks/createAlert"]
	if !ok || item.Get == nil || item.Post == nil {
		t.Fatalf("expected get and post for createAlert, got %#v", doc.Paths)
	}
	if len(item.Get.Parameters) != 2 || item.Get.Parameters[0].Name != "rule" || !item.Get.Parameters[0].Required {
		t.Fatalf("unexpected parameters %#v", item.Get.Parameters)
	}
	if item.Get.Parameters[1].Required {
		t.Fatalf("note is optional")
	}
	if doc.Components.SecuritySchemes["apiKey"].Name != "apikey" {
		t.Fatalf("expected api key scheme on query parameter")
	}

	raw, err := json.Marshal(doc)
	if err != nil {
		t.Fatalf("marshal docs: %v", err)
	}
	var decoded map[string]any
	if err := json.Unmarshal(raw, &decoded); err != nil {
		t.Fatalf("decode docs: %v", err)
	}
	if decoded["openapi"] != openAPIVersion {
		t.Fatalf("expected openapi field, got %#v", decoded["openapi"])
	}
}
