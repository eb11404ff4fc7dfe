package sqlstore

import (
	"context"
	"fmt"
	"strings"
	"time"

	repository "github.com/goliatone/go-repository-bun"
	"github.com/goliatone/go-webhooks/core"
	"github.com/uptrace/bun"
)

// APIKeyStore keeps hashed API key secrets. Plaintext secrets never reach
// this layer.
type APIKeyStore struct {
	db   *bun.DB
	repo repository.Repository[*apiKeyRecord]
}

func NewAPIKeyStore(db *bun.DB) (*APIKeyStore, error) {
	if db == nil {
		return nil, fmt.Errorf("sqlstore: bun db is required")
	}
	repo := repository.NewRepository[*apiKeyRecord](db, apiKeyHandlers())
	if validator, ok := repo.(repository.Validator); ok {
		if err := validator.Validate(); err != nil {
			return nil, fmt.Errorf("sqlstore: invalid api key repository wiring: %w", err)
		}
	}
	return &APIKeyStore{db: db, repo: repo}, nil
}

func (s *APIKeyStore) GetAPIKey(ctx context.Context, id string) (core.APIKey, error) {
	if s == nil || s.repo == nil {
		return core.APIKey{}, fmt.Errorf("sqlstore: api key store is not configured")
	}
	id = strings.TrimSpace(id)
	records, _, err := s.repo.List(ctx,
		repository.SelectBy("id", "=", id),
		repository.SelectPaginate(1, 0),
	)
	if err != nil {
		return core.APIKey{}, err
	}
	if len(records) == 0 {
		return core.APIKey{}, fmt.Errorf("%w: api key %q", core.ErrRecordNotFound, id)
	}
	return records[0].toDomain(), nil
}

func (s *APIKeyStore) SaveAPIKey(ctx context.Context, key core.APIKey) (core.APIKey, error) {
	if s == nil || s.db == nil {
		return core.APIKey{}, fmt.Errorf("sqlstore: api key store is not configured")
	}
	record := newAPIKeyRecord(key)
	if record.ID == "" {
		return core.APIKey{}, fmt.Errorf("sqlstore: api key id is required")
	}
	if record.SecretHash == "" {
		return core.APIKey{}, fmt.Errorf("sqlstore: api key secret hash is required")
	}
	if record.CreatedAt.IsZero() {
		record.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.NewInsert().
		Model(record).
		On("CONFLICT (id) DO UPDATE").
		Set("secret_hash = EXCLUDED.secret_hash").
		Set("description = EXCLUDED.description").
		Set("user_id = EXCLUDED.user_id").
		Set("role_id = EXCLUDED.role_id").
		Set("client_id = EXCLUDED.client_id").
		Set("org_id = EXCLUDED.org_id").
		Set("warehouse_id = EXCLUDED.warehouse_id").
		Set("active = EXCLUDED.active").
		Set("expires_at = EXCLUDED.expires_at").
		Exec(ctx)
	if err != nil {
		return core.APIKey{}, err
	}
	return record.toDomain(), nil
}

// Revoke deactivates a key without deleting it.
func (s *APIKeyStore) Revoke(ctx context.Context, id string) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("sqlstore: api key store is not configured")
	}
	id = strings.TrimSpace(id)
	result, err := s.db.NewUpdate().
		Model((*apiKeyRecord)(nil)).
		Set("active = ?", false).
		Where("id = ?", id).
		Exec(ctx)
	if err != nil {
		return err
	}
	if affected, err := result.RowsAffected(); err == nil && affected == 0 {
		return fmt.Errorf("%w: api key %q", core.ErrRecordNotFound, id)
	}
	return nil
}
