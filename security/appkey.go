package security

import (
	"bytes"
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"io"
	"strings"

	"golang.org/x/crypto/hkdf"
)

const keyDerivationInfo = "go-webhooks header secrets"

type Option func(*AppKeySealer)

func WithKeyID(id string) Option {
	return func(s *AppKeySealer) {
		if trimmed := strings.TrimSpace(id); trimmed != "" {
			s.keyID = trimmed
		}
	}
}

func WithVersion(version int) Option {
	return func(s *AppKeySealer) {
		if version > 0 {
			s.version = version
		}
	}
}

// AppKeySealer encrypts with AES-256-GCM under a key derived from
// application key material.
type AppKeySealer struct {
	key     []byte
	keyID   string
	version int
}

func NewAppKeySealer(keyMaterial []byte, opts ...Option) (*AppKeySealer, error) {
	material := bytes.TrimSpace(keyMaterial)
	if len(material) == 0 {
		return nil, fmt.Errorf("security: key material is required")
	}
	key := make([]byte, 32)
	if _, err := io.ReadFull(hkdf.New(sha256.New, material, nil, []byte(keyDerivationInfo)), key); err != nil {
		return nil, fmt.Errorf("security: derive key: %w", err)
	}
	sealer := &AppKeySealer{key: key, keyID: "app-key", version: 1}
	for _, opt := range opts {
		if opt != nil {
			opt(sealer)
		}
	}
	return sealer, nil
}

func NewAppKeySealerFromString(key string, opts ...Option) (*AppKeySealer, error) {
	return NewAppKeySealer([]byte(key), opts...)
}

func (s *AppKeySealer) Seal(_ context.Context, plaintext string) (string, error) {
	if s == nil {
		return "", fmt.Errorf("security: sealer is nil")
	}
	if plaintext == "" {
		return "", fmt.Errorf("security: plaintext is required")
	}
	gcm, err := s.gcm()
	if err != nil {
		return "", err
	}
	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("security: nonce generation failed: %w", err)
	}
	sealed := gcm.Seal(nil, nonce, []byte(plaintext), s.additionalData())
	return encodeEnvelope(envelope{
		KeyID:      s.keyID,
		Version:    s.version,
		Algorithm:  envelopeAlgorithm,
		Nonce:      base64.StdEncoding.EncodeToString(nonce),
		Ciphertext: base64.StdEncoding.EncodeToString(sealed),
	})
}

func (s *AppKeySealer) Open(_ context.Context, value string) (string, error) {
	if s == nil {
		return "", fmt.Errorf("security: sealer is nil")
	}
	env, err := decodeEnvelope(value)
	if err != nil {
		return "", err
	}
	return s.open(env)
}

func (s *AppKeySealer) open(env envelope) (string, error) {
	if env.Algorithm != envelopeAlgorithm {
		return "", fmt.Errorf("security: unsupported algorithm %q", env.Algorithm)
	}
	if env.KeyID != "" && env.KeyID != s.keyID {
		return "", fmt.Errorf("security: key id mismatch: got %q want %q", env.KeyID, s.keyID)
	}
	if env.Version > 0 && env.Version != s.version {
		return "", fmt.Errorf("security: key version mismatch: got %d want %d", env.Version, s.version)
	}
	nonce, err := base64.StdEncoding.DecodeString(env.Nonce)
	if err != nil {
		return "", fmt.Errorf("security: decode nonce: %w", err)
	}
	ciphertext, err := base64.StdEncoding.DecodeString(env.Ciphertext)
	if err != nil {
		return "", fmt.Errorf("security: decode ciphertext: %w", err)
	}
	gcm, err := s.gcm()
	if err != nil {
		return "", err
	}
	if len(nonce) != gcm.NonceSize() {
		return "", fmt.Errorf("security: invalid nonce length")
	}
	plaintext, err := gcm.Open(nil, nonce, ciphertext, s.additionalData())
	if err != nil {
		return "", fmt.Errorf("security: decrypt payload: %w", err)
	}
	return string(plaintext), nil
}

func (s *AppKeySealer) KeyID() string {
	if s == nil {
		return ""
	}
	return s.keyID
}

func (s *AppKeySealer) Version() int {
	if s == nil {
		return 0
	}
	return s.version
}

func (s *AppKeySealer) gcm() (cipher.AEAD, error) {
	block, err := aes.NewCipher(s.key)
	if err != nil {
		return nil, fmt.Errorf("security: create cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("security: create gcm: %w", err)
	}
	return gcm, nil
}

// additionalData binds the ciphertext to the key identity so an envelope
// relabelled with another kid fails authentication.
func (s *AppKeySealer) additionalData() []byte {
	return []byte(fmt.Sprintf("%s:%d", s.keyID, s.version))
}
