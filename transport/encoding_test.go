package transport

import (
	"errors"
	"strings"
	"testing"

	"github.com/clbanning/mxj/v2"
	"github.com/goliatone/go-webhooks/core"
)

func TestEncode_JSONPositionalPayload(t *testing.T) {
	body, contentType, err := Encode(core.PayloadJSON, []any{"a", map[string]any{"b": "c"}}, "")
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if contentType != contentTypeJSON {
		t.Fatalf("unexpected content type %q", contentType)
	}
	if string(body) != `["a",{"b":"c"}]` {
		t.Fatalf("unexpected json %s", body)
	}
}

func TestEncode_NilPayloadIsEmptyObject(t *testing.T) {
	body, _, err := Encode("", nil, "")
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if string(body) != "{}" {
		t.Fatalf("expected empty object, got %s", body)
	}
}

func TestEncode_XMLEscapesValues(t *testing.T) {
	body, contentType, err := Encode(core.PayloadXML, map[string]any{"note": "a & b"}, "event")
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if contentType != contentTypeXML {
		t.Fatalf("unexpected content type %q", contentType)
	}
	text := string(body)
	if !strings.Contains(text, "<event>") || !strings.Contains(text, "a &amp; b") {
		t.Fatalf("unexpected xml %s", text)
	}
}

func TestXMLEscapingIsOnBeforeFirstEncode(t *testing.T) {
	body, err := mxj.Map{"note": "<b>"}.Xml("event")
	if err != nil {
		t.Fatalf("xml: %v", err)
	}
	if !strings.Contains(string(body), "&lt;b&gt;") {
		t.Fatalf("expected escaping enabled when the package loads, got %s", body)
	}
}

func TestEncode_RejectsUnknownKind(t *testing.T) {
	_, _, err := Encode(core.PayloadKind("yaml"), map[string]any{}, "")
	if !errors.Is(err, core.ErrInvalidPayloadKind) {
		t.Fatalf("expected invalid payload kind, got %v", err)
	}
}
