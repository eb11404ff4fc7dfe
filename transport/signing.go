package transport

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"strings"
)

const DefaultSignatureHeader = "X-Webhook-Signature"

// HMACSigner signs outbound bodies with HMAC-SHA256 so receivers can check
// that a delivery came from us.
type HMACSigner struct {
	Header   string
	Prefix   string
	Secret   string
	Encoding string // hex | base64
}

func NewHMACSigner(secret string) *HMACSigner {
	return &HMACSigner{
		Header:   DefaultSignatureHeader,
		Prefix:   "sha256=",
		Secret:   strings.TrimSpace(secret),
		Encoding: "hex",
	}
}

func WithSigner(signer *HMACSigner) DispatcherOption {
	return func(d *Dispatcher) {
		d.signer = signer
	}
}

func (s *HMACSigner) HeaderName() string {
	if s == nil || strings.TrimSpace(s.Header) == "" {
		return DefaultSignatureHeader
	}
	return strings.TrimSpace(s.Header)
}

func (s *HMACSigner) Sign(body []byte) (string, error) {
	if s == nil || strings.TrimSpace(s.Secret) == "" {
		return "", fmt.Errorf("transport: signature secret is required")
	}
	sum := s.mac(body)
	if strings.EqualFold(strings.TrimSpace(s.Encoding), "base64") {
		return s.Prefix + base64.StdEncoding.EncodeToString(sum), nil
	}
	return s.Prefix + hex.EncodeToString(sum), nil
}

// Verify checks a signature header value against body.
func (s *HMACSigner) Verify(body []byte, header string) error {
	if s == nil || strings.TrimSpace(s.Secret) == "" {
		return fmt.Errorf("transport: signature secret is required")
	}
	signature := strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(header), s.Prefix))
	if signature == "" {
		return fmt.Errorf("transport: signature value is required")
	}
	var decoded []byte
	var err error
	if strings.EqualFold(strings.TrimSpace(s.Encoding), "base64") {
		decoded, err = base64.StdEncoding.DecodeString(signature)
	} else {
		decoded, err = hex.DecodeString(signature)
	}
	if err != nil {
		return fmt.Errorf("transport: decode signature: %w", err)
	}
	if subtle.ConstantTimeCompare(decoded, s.mac(body)) != 1 {
		return fmt.Errorf("transport: signature verification failed")
	}
	return nil
}

func (s *HMACSigner) mac(body []byte) []byte {
	mac := hmac.New(sha256.New, []byte(strings.TrimSpace(s.Secret)))
	_, _ = mac.Write(body)
	return mac.Sum(nil)
}
