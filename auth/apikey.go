package auth

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/goliatone/go-webhooks/core"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

const apiKeySeparator = "."

const apiKeySecretBytes = 24

type APIKeyAuthenticator struct {
	store core.APIKeyStore
	now   func() time.Time
}

func NewAPIKeyAuthenticator(store core.APIKeyStore) (*APIKeyAuthenticator, error) {
	if store == nil {
		return nil, fmt.Errorf("auth: api key store is required")
	}
	return &APIKeyAuthenticator{store: store, now: time.Now}, nil
}

func (a *APIKeyAuthenticator) Authenticate(ctx context.Context, credentials core.Credentials) (core.ActorContext, error) {
	raw := strings.TrimSpace(credentials.APIKey)
	if raw == "" {
		return core.ActorContext{}, unauthenticated(ErrMissingCredentials, "missing_api_key", nil)
	}
	id, secret, ok := SplitAPIKey(raw)
	if !ok {
		return core.ActorContext{}, unauthenticated(ErrInvalidCredentials, "malformed_api_key", nil)
	}

	key, err := a.store.GetAPIKey(ctx, id)
	if err != nil {
		if errors.Is(err, core.ErrRecordNotFound) || errors.Is(err, core.ErrDefinitionNotFound) {
			return core.ActorContext{}, unauthenticated(ErrInvalidCredentials, "unknown_api_key", map[string]any{"token_id": id})
		}
		return core.ActorContext{}, internalError(err, "auth: load api key")
	}
	if !key.Active {
		return core.ActorContext{}, unauthenticated(ErrInvalidCredentials, "inactive_api_key", map[string]any{"token_id": id})
	}
	if key.Expired(a.now()) {
		return core.ActorContext{}, unauthenticated(ErrInvalidCredentials, "expired_api_key", map[string]any{"token_id": id})
	}
	if err := bcrypt.CompareHashAndPassword([]byte(key.SecretHash), []byte(secret)); err != nil {
		return core.ActorContext{}, unauthenticated(ErrInvalidCredentials, "secret_mismatch", map[string]any{"token_id": id})
	}

	return core.ActorContext{
		Method:      core.AuthMethodAPIKey,
		TokenID:     key.ID,
		UserID:      key.UserID,
		RoleID:      key.RoleID,
		ClientID:    key.ClientID,
		OrgID:       key.OrgID,
		WarehouseID: key.WarehouseID,
	}, nil
}

// SplitAPIKey separates "<id>.<secret>". Both halves must be non-empty.
func SplitAPIKey(raw string) (id string, secret string, ok bool) {
	id, secret, found := strings.Cut(strings.TrimSpace(raw), apiKeySeparator)
	id = strings.TrimSpace(id)
	if !found || id == "" || secret == "" {
		return "", "", false
	}
	return id, secret, true
}

// IssueAPIKey stores a new key bound to the identity in template and returns
// the plaintext "<id>.<secret>". The plaintext is not recoverable afterwards.
func IssueAPIKey(ctx context.Context, store core.APIKeyStore, template core.APIKey) (string, core.APIKey, error) {
	if store == nil {
		return "", core.APIKey{}, fmt.Errorf("auth: api key store is required")
	}
	if strings.TrimSpace(template.ID) == "" {
		id, err := uuid.NewV7()
		if err != nil {
			return "", core.APIKey{}, fmt.Errorf("auth: generate api key id: %w", err)
		}
		template.ID = strings.ReplaceAll(id.String(), "-", "")
	}
	if strings.Contains(template.ID, apiKeySeparator) {
		return "", core.APIKey{}, fmt.Errorf("auth: api key id must not contain %q", apiKeySeparator)
	}

	buf := make([]byte, apiKeySecretBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", core.APIKey{}, fmt.Errorf("auth: generate api key secret: %w", err)
	}
	secret := base64.RawURLEncoding.EncodeToString(buf)
	hash, err := bcrypt.GenerateFromPassword([]byte(secret), bcrypt.DefaultCost)
	if err != nil {
		return "", core.APIKey{}, fmt.Errorf("auth: hash api key secret: %w", err)
	}

	template.SecretHash = string(hash)
	template.Active = true
	if template.CreatedAt.IsZero() {
		template.CreatedAt = time.Now().UTC()
	}
	saved, err := store.SaveAPIKey(ctx, template)
	if err != nil {
		return "", core.APIKey{}, err
	}
	return saved.ID + apiKeySeparator + secret, saved, nil
}

var _ core.Authenticator = (*APIKeyAuthenticator)(nil)
