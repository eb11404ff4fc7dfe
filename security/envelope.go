// Package security seals secret header values stored in webhook definitions
// and opens them right before a delivery.
package security

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"
)

const (
	envelopePrefix    = "webhooks.secret.v1:"
	envelopeAlgorithm = "aes-256-gcm"
)

type envelope struct {
	KeyID      string `json:"kid"`
	Version    int    `json:"ver"`
	Algorithm  string `json:"alg"`
	Nonce      string `json:"nonce"`
	Ciphertext string `json:"ciphertext"`
}

// IsSealed reports whether value carries the sealed envelope prefix.
func IsSealed(value string) bool {
	return strings.HasPrefix(strings.TrimSpace(value), envelopePrefix)
}

type EnvelopeMetadata struct {
	KeyID     string
	Version   int
	Algorithm string
}

func ParseEnvelopeMetadata(value string) (EnvelopeMetadata, error) {
	env, err := decodeEnvelope(value)
	if err != nil {
		return EnvelopeMetadata{}, err
	}
	return EnvelopeMetadata{KeyID: env.KeyID, Version: env.Version, Algorithm: env.Algorithm}, nil
}

func encodeEnvelope(env envelope) (string, error) {
	env.KeyID = strings.TrimSpace(env.KeyID)
	env.Algorithm = strings.ToLower(strings.TrimSpace(env.Algorithm))
	data, err := json.Marshal(env)
	if err != nil {
		return "", fmt.Errorf("security: encode envelope: %w", err)
	}
	return envelopePrefix + base64.RawURLEncoding.EncodeToString(data), nil
}

func decodeEnvelope(value string) (envelope, error) {
	value = strings.TrimSpace(value)
	if !strings.HasPrefix(value, envelopePrefix) {
		return envelope{}, fmt.Errorf("security: invalid sealed value prefix")
	}
	data, err := base64.RawURLEncoding.DecodeString(strings.TrimPrefix(value, envelopePrefix))
	if err != nil {
		return envelope{}, fmt.Errorf("security: decode envelope: %w", err)
	}
	var parsed envelope
	if err := json.Unmarshal(data, &parsed); err != nil {
		return envelope{}, fmt.Errorf("security: decode envelope: %w", err)
	}
	parsed.KeyID = strings.TrimSpace(parsed.KeyID)
	parsed.Algorithm = strings.ToLower(strings.TrimSpace(parsed.Algorithm))
	if parsed.Algorithm == "" {
		parsed.Algorithm = envelopeAlgorithm
	}
	if parsed.Ciphertext == "" {
		return envelope{}, fmt.Errorf("security: envelope ciphertext is required")
	}
	return parsed, nil
}
