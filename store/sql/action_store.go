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

// ActionStore persists inbound actions and the grants that authorize them.
type ActionStore struct {
	db   *bun.DB
	repo repository.Repository[*actionRecord]
}

func NewActionStore(db *bun.DB) (*ActionStore, error) {
	if db == nil {
		return nil, fmt.Errorf("sqlstore: bun db is required")
	}
	repo := repository.NewRepository[*actionRecord](db, actionHandlers())
	if validator, ok := repo.(repository.Validator); ok {
		if err := validator.Validate(); err != nil {
			return nil, fmt.Errorf("sqlstore: invalid action repository wiring: %w", err)
		}
	}
	return &ActionStore{db: db, repo: repo}, nil
}

func (s *ActionStore) GetActionByName(ctx context.Context, name string) (core.ActionDefinition, error) {
	if s == nil || s.repo == nil {
		return core.ActionDefinition{}, fmt.Errorf("sqlstore: action store is not configured")
	}
	name = strings.TrimSpace(name)
	records, _, err := s.repo.List(ctx,
		repository.SelectBy("name", "=", name),
		repository.SelectPaginate(1, 0),
	)
	if err != nil {
		return core.ActionDefinition{}, err
	}
	if len(records) == 0 {
		return core.ActionDefinition{}, fmt.Errorf("%w: action %q", core.ErrDefinitionNotFound, name)
	}
	return records[0].toDomain(), nil
}

func (s *ActionStore) ListActions(ctx context.Context) ([]core.ActionDefinition, error) {
	if s == nil || s.repo == nil {
		return nil, fmt.Errorf("sqlstore: action store is not configured")
	}
	records, _, err := s.repo.List(ctx, repository.OrderBy("name ASC"))
	if err != nil {
		return nil, err
	}
	out := make([]core.ActionDefinition, 0, len(records))
	for _, record := range records {
		out = append(out, record.toDomain())
	}
	return out, nil
}

func (s *ActionStore) ListGrants(ctx context.Context, actionID string) ([]core.AccessGrant, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("sqlstore: action store is not configured")
	}
	var records []*accessGrantRecord
	if err := s.db.NewSelect().
		Model(&records).
		Where("action_id = ?", strings.TrimSpace(actionID)).
		OrderExpr("created_at ASC, id ASC").
		Scan(ctx); err != nil {
		return nil, err
	}
	out := make([]core.AccessGrant, 0, len(records))
	for _, record := range records {
		out = append(out, record.toDomain())
	}
	return out, nil
}

// SaveAction upserts by name so reconfiguring an action keeps its grants.
func (s *ActionStore) SaveAction(ctx context.Context, action core.ActionDefinition) (core.ActionDefinition, error) {
	if s == nil || s.db == nil {
		return core.ActionDefinition{}, fmt.Errorf("sqlstore: action store is not configured")
	}
	record := newActionRecord(action)
	if record.Name == "" {
		return core.ActionDefinition{}, fmt.Errorf("sqlstore: action name is required")
	}
	now := time.Now().UTC()
	record.UpdatedAt = now

	err := s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		var existing []*actionRecord
		query := tx.NewSelect().Model(&existing).Limit(1)
		if record.ID != "" {
			query = query.Where("id = ?", record.ID)
		} else {
			query = query.Where("name = ?", record.Name)
		}
		if err := query.Scan(ctx); err != nil {
			return err
		}
		if len(existing) == 0 {
			if record.ID == "" {
				record.ID = newID()
			}
			record.CreatedAt = now
			_, err := tx.NewInsert().Model(record).Exec(ctx)
			return err
		}
		record.ID = existing[0].ID
		record.CreatedAt = existing[0].CreatedAt
		_, err := tx.NewUpdate().Model(record).Where("id = ?", record.ID).Exec(ctx)
		return err
	})
	if err != nil {
		return core.ActionDefinition{}, err
	}
	return record.toDomain(), nil
}

// SaveGrant is idempotent for the same action and identity.
func (s *ActionStore) SaveGrant(ctx context.Context, grant core.AccessGrant) (core.AccessGrant, error) {
	if s == nil || s.db == nil {
		return core.AccessGrant{}, fmt.Errorf("sqlstore: action store is not configured")
	}
	record := &accessGrantRecord{
		ID:       strings.TrimSpace(grant.ID),
		ActionID: strings.TrimSpace(grant.ActionID),
		TokenID:  strings.TrimSpace(grant.TokenID),
		RoleID:   strings.TrimSpace(grant.RoleID),
	}
	if record.ActionID == "" {
		return core.AccessGrant{}, fmt.Errorf("sqlstore: grant action id is required")
	}
	if (record.TokenID == "") == (record.RoleID == "") {
		return core.AccessGrant{}, fmt.Errorf("sqlstore: grant requires exactly one of token id or role id")
	}

	err := s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		var existing []*accessGrantRecord
		if err := tx.NewSelect().
			Model(&existing).
			Where("action_id = ?", record.ActionID).
			Where("token_id = ?", record.TokenID).
			Where("role_id = ?", record.RoleID).
			Limit(1).
			Scan(ctx); err != nil {
			return err
		}
		if len(existing) > 0 {
			*record = *existing[0]
			return nil
		}
		if record.ID == "" {
			record.ID = newID()
		}
		record.CreatedAt = time.Now().UTC()
		_, err := tx.NewInsert().Model(record).Exec(ctx)
		return err
	})
	if err != nil {
		return core.AccessGrant{}, err
	}
	return record.toDomain(), nil
}
