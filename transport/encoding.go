package transport

import (
	"encoding/json"
	"encoding/xml"
	"fmt"
	"strings"

	"github.com/clbanning/mxj/v2"
	"github.com/goliatone/go-webhooks/core"
)

const (
	contentTypeJSON = "application/json"
	contentTypeXML  = "application/xml"

	xmlListElement = "item"
)

// mxj escapes character data only through a package level switch. Webhook
// payloads always need it, so it is turned on once when transport loads and
// never changed afterwards.
func init() {
	mxj.XMLEscapeChars(true)
}

// Encode serializes a built payload in the webhook's payload kind and returns
// the matching content type. rootElement names the XML document element.
func Encode(kind core.PayloadKind, payload any, rootElement string) ([]byte, string, error) {
	if payload == nil {
		payload = map[string]any{}
	}
	switch kind {
	case core.PayloadXML:
		body, err := encodeXML(payload, rootElement)
		return body, contentTypeXML, err
	case core.PayloadJSON, "":
		body, err := json.Marshal(payload)
		if err != nil {
			return nil, "", fmt.Errorf("transport: encode json payload: %w", err)
		}
		return body, contentTypeJSON, nil
	default:
		return nil, "", fmt.Errorf("%w: %q", core.ErrInvalidPayloadKind, kind)
	}
}

func encodeXML(payload any, rootElement string) ([]byte, error) {
	rootElement = strings.TrimSpace(rootElement)
	if rootElement == "" {
		rootElement = "payload"
	}
	var (
		body []byte
		err  error
	)
	switch typed := payload.(type) {
	case map[string]any:
		body, err = mxj.Map(typed).Xml(rootElement)
	default:
		body, err = mxj.AnyXml(typed, rootElement, xmlListElement)
	}
	if err != nil {
		return nil, fmt.Errorf("transport: encode xml payload: %w", err)
	}
	return append([]byte(xml.Header), body...), nil
}
