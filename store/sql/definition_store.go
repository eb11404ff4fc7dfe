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

// DefinitionStore persists events, webhooks and the template nodes and path
// params owned by each webhook.
type DefinitionStore struct {
	db          *bun.DB
	eventRepo   repository.Repository[*eventRecord]
	webhookRepo repository.Repository[*webhookRecord]
}

func NewDefinitionStore(db *bun.DB) (*DefinitionStore, error) {
	if db == nil {
		return nil, fmt.Errorf("sqlstore: bun db is required")
	}
	eventRepo := repository.NewRepository[*eventRecord](db, eventHandlers())
	if validator, ok := eventRepo.(repository.Validator); ok {
		if err := validator.Validate(); err != nil {
			return nil, fmt.Errorf("sqlstore: invalid event repository wiring: %w", err)
		}
	}
	webhookRepo := repository.NewRepository[*webhookRecord](db, webhookHandlers())
	if validator, ok := webhookRepo.(repository.Validator); ok {
		if err := validator.Validate(); err != nil {
			return nil, fmt.Errorf("sqlstore: invalid webhook repository wiring: %w", err)
		}
	}
	return &DefinitionStore{db: db, eventRepo: eventRepo, webhookRepo: webhookRepo}, nil
}

// ListActiveEvents matches the table name case insensitively.
func (s *DefinitionStore) ListActiveEvents(
	ctx context.Context,
	table string,
	action core.LifecycleAction,
) ([]core.EventDefinition, error) {
	if s == nil || s.eventRepo == nil {
		return nil, fmt.Errorf("sqlstore: definition store is not configured")
	}
	table = strings.ToLower(strings.TrimSpace(table))
	records, _, err := s.eventRepo.List(ctx,
		repository.SelectBy("action", "=", string(action)),
		repository.SelectRawProcessor(func(q *bun.SelectQuery) *bun.SelectQuery {
			return q.Where("lower(?TableAlias.table_name) = ?", table).
				Where("?TableAlias.active = ?", true)
		}),
		repository.OrderBy("id ASC"),
	)
	if err != nil {
		return nil, err
	}
	out := make([]core.EventDefinition, 0, len(records))
	for _, record := range records {
		out = append(out, record.toDomain())
	}
	return out, nil
}

func (s *DefinitionStore) GetEvent(ctx context.Context, id string) (core.EventDefinition, error) {
	if s == nil || s.eventRepo == nil {
		return core.EventDefinition{}, fmt.Errorf("sqlstore: definition store is not configured")
	}
	id = strings.TrimSpace(id)
	records, _, err := s.eventRepo.List(ctx,
		repository.SelectBy("id", "=", id),
		repository.SelectPaginate(1, 0),
	)
	if err != nil {
		return core.EventDefinition{}, err
	}
	if len(records) == 0 {
		return core.EventDefinition{}, fmt.Errorf("%w: event %q", core.ErrDefinitionNotFound, id)
	}
	return records[0].toDomain(), nil
}

func (s *DefinitionStore) GetWebhook(ctx context.Context, id string) (core.WebhookDefinition, error) {
	if s == nil || s.webhookRepo == nil {
		return core.WebhookDefinition{}, fmt.Errorf("sqlstore: definition store is not configured")
	}
	id = strings.TrimSpace(id)
	records, _, err := s.webhookRepo.List(ctx,
		repository.SelectBy("id", "=", id),
		repository.SelectPaginate(1, 0),
	)
	if err != nil {
		return core.WebhookDefinition{}, err
	}
	if len(records) == 0 {
		return core.WebhookDefinition{}, fmt.Errorf("%w: webhook %q", core.ErrDefinitionNotFound, id)
	}
	webhooks, err := s.hydrate(ctx, s.db, records)
	if err != nil {
		return core.WebhookDefinition{}, err
	}
	return webhooks[0], nil
}

// ListWebhooksForEvent returns every webhook of the event, active or not.
// Callers decide whether inactive webhooks are skipped.
func (s *DefinitionStore) ListWebhooksForEvent(ctx context.Context, eventID string) ([]core.WebhookDefinition, error) {
	if s == nil || s.webhookRepo == nil {
		return nil, fmt.Errorf("sqlstore: definition store is not configured")
	}
	records, _, err := s.webhookRepo.List(ctx,
		repository.SelectBy("event_id", "=", strings.TrimSpace(eventID)),
		repository.OrderBy("id ASC"),
	)
	if err != nil {
		return nil, err
	}
	return s.hydrate(ctx, s.db, records)
}

func (s *DefinitionStore) SaveEvent(ctx context.Context, event core.EventDefinition) (core.EventDefinition, error) {
	if s == nil || s.db == nil {
		return core.EventDefinition{}, fmt.Errorf("sqlstore: definition store is not configured")
	}
	if strings.TrimSpace(event.Table) == "" {
		return core.EventDefinition{}, fmt.Errorf("sqlstore: event table is required")
	}
	now := time.Now().UTC()
	record := newEventRecord(event)
	record.UpdatedAt = now

	err := s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		existing, err := findEventTx(ctx, tx, record.ID)
		if err != nil {
			return err
		}
		if existing == nil {
			if record.ID == "" {
				record.ID = newID()
			}
			record.CreatedAt = now
			_, err := tx.NewInsert().Model(record).Exec(ctx)
			return err
		}
		record.CreatedAt = existing.CreatedAt
		_, err = tx.NewUpdate().Model(record).Where("id = ?", record.ID).Exec(ctx)
		return err
	})
	if err != nil {
		return core.EventDefinition{}, err
	}
	return record.toDomain(), nil
}

// SaveWebhook writes the webhook and replaces its template nodes and path
// params in one transaction. Nested children are flattened and linked
// through parent ids.
func (s *DefinitionStore) SaveWebhook(ctx context.Context, webhook core.WebhookDefinition) (core.WebhookDefinition, error) {
	if s == nil || s.db == nil {
		return core.WebhookDefinition{}, fmt.Errorf("sqlstore: definition store is not configured")
	}
	if strings.TrimSpace(webhook.EventID) == "" {
		return core.WebhookDefinition{}, fmt.Errorf("sqlstore: webhook event id is required")
	}
	now := time.Now().UTC()
	record := newWebhookRecord(webhook)
	record.UpdatedAt = now

	var out core.WebhookDefinition
	err := s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		existing, err := findWebhookTx(ctx, tx, record.ID)
		if err != nil {
			return err
		}
		if existing == nil {
			if record.ID == "" {
				record.ID = newID()
			}
			record.CreatedAt = now
			if _, err := tx.NewInsert().Model(record).Exec(ctx); err != nil {
				return err
			}
		} else {
			record.CreatedAt = existing.CreatedAt
			if _, err := tx.NewUpdate().Model(record).Where("id = ?", record.ID).Exec(ctx); err != nil {
				return err
			}
			if _, err := tx.NewDelete().Model((*pathParamRecord)(nil)).Where("webhook_id = ?", record.ID).Exec(ctx); err != nil {
				return err
			}
			if _, err := tx.NewDelete().Model((*templateNodeRecord)(nil)).Where("webhook_id = ?", record.ID).Exec(ctx); err != nil {
				return err
			}
		}

		nodes, err := orderNodesForInsert(flattenNodes(webhook.Nodes, record.ID))
		if err != nil {
			return err
		}
		for _, node := range nodes {
			if _, err := tx.NewInsert().Model(node).Exec(ctx); err != nil {
				return err
			}
		}
		for _, param := range webhook.Params {
			paramRecord := newPathParamRecord(param)
			paramRecord.WebhookID = record.ID
			if paramRecord.ID == "" {
				paramRecord.ID = newID()
			}
			if _, err := tx.NewInsert().Model(paramRecord).Exec(ctx); err != nil {
				return err
			}
		}

		hydrated, err := s.hydrate(ctx, tx, []*webhookRecord{record})
		if err != nil {
			return err
		}
		out = hydrated[0]
		return nil
	})
	if err != nil {
		return core.WebhookDefinition{}, err
	}
	return out, nil
}

// SaveTemplateNode upserts a single node and bumps the owning webhook so
// cached trees are rebuilt.
func (s *DefinitionStore) SaveTemplateNode(ctx context.Context, node core.TemplateNode) (core.TemplateNode, error) {
	if s == nil || s.db == nil {
		return core.TemplateNode{}, fmt.Errorf("sqlstore: definition store is not configured")
	}
	record := newTemplateNodeRecord(node)
	if record.WebhookID == "" {
		return core.TemplateNode{}, fmt.Errorf("sqlstore: template node webhook id is required")
	}
	err := s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		if err := touchWebhookTx(ctx, tx, record.WebhookID); err != nil {
			return err
		}
		if record.ID == "" {
			record.ID = newID()
			_, err := tx.NewInsert().Model(record).Exec(ctx)
			return err
		}
		_, err := tx.NewInsert().
			Model(record).
			On("CONFLICT (id) DO UPDATE").
			Set("parent_id = EXCLUDED.parent_id").
			Set("position = EXCLUDED.position").
			Set("name = EXCLUDED.name").
			Set("is_group = EXCLUDED.is_group").
			Set("is_array = EXCLUDED.is_array").
			Set("kind = EXCLUDED.kind").
			Set("expression = EXCLUDED.expression").
			Set("arguments = EXCLUDED.arguments").
			Set("dynamic_arguments = EXCLUDED.dynamic_arguments").
			Exec(ctx)
		return err
	})
	if err != nil {
		return core.TemplateNode{}, err
	}
	return record.toDomain(), nil
}

func (s *DefinitionStore) SavePathParam(ctx context.Context, param core.PathParam) (core.PathParam, error) {
	if s == nil || s.db == nil {
		return core.PathParam{}, fmt.Errorf("sqlstore: definition store is not configured")
	}
	record := newPathParamRecord(param)
	if record.WebhookID == "" {
		return core.PathParam{}, fmt.Errorf("sqlstore: path param webhook id is required")
	}
	err := s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		if err := touchWebhookTx(ctx, tx, record.WebhookID); err != nil {
			return err
		}
		if record.ID == "" {
			record.ID = newID()
			_, err := tx.NewInsert().Model(record).Exec(ctx)
			return err
		}
		_, err := tx.NewInsert().
			Model(record).
			On("CONFLICT (id) DO UPDATE").
			Set("name = EXCLUDED.name").
			Set("placement = EXCLUDED.placement").
			Set("position = EXCLUDED.position").
			Set("active = EXCLUDED.active").
			Set("kind = EXCLUDED.kind").
			Set("expression = EXCLUDED.expression").
			Set("arguments = EXCLUDED.arguments").
			Set("dynamic_arguments = EXCLUDED.dynamic_arguments").
			Exec(ctx)
		return err
	})
	if err != nil {
		return core.PathParam{}, err
	}
	return record.toDomain(), nil
}

// hydrate batch loads nodes and params for the given webhook records.
func (s *DefinitionStore) hydrate(ctx context.Context, db bun.IDB, records []*webhookRecord) ([]core.WebhookDefinition, error) {
	out := make([]core.WebhookDefinition, 0, len(records))
	if len(records) == 0 {
		return out, nil
	}
	ids := make([]string, 0, len(records))
	for _, record := range records {
		ids = append(ids, record.ID)
	}

	var nodes []*templateNodeRecord
	if err := db.NewSelect().
		Model(&nodes).
		Where("webhook_id IN (?)", bun.In(ids)).
		OrderExpr("position ASC, id ASC").
		Scan(ctx); err != nil {
		return nil, err
	}
	var params []*pathParamRecord
	if err := db.NewSelect().
		Model(&params).
		Where("webhook_id IN (?)", bun.In(ids)).
		OrderExpr("position ASC, id ASC").
		Scan(ctx); err != nil {
		return nil, err
	}

	nodesByWebhook := make(map[string][]core.TemplateNode, len(records))
	for _, node := range nodes {
		nodesByWebhook[node.WebhookID] = append(nodesByWebhook[node.WebhookID], node.toDomain())
	}
	paramsByWebhook := make(map[string][]core.PathParam, len(records))
	for _, param := range params {
		paramsByWebhook[param.WebhookID] = append(paramsByWebhook[param.WebhookID], param.toDomain())
	}
	for _, record := range records {
		webhook := record.toDomain()
		webhook.Nodes = nodesByWebhook[record.ID]
		webhook.Params = paramsByWebhook[record.ID]
		out = append(out, webhook)
	}
	return out, nil
}

func findEventTx(ctx context.Context, tx bun.Tx, id string) (*eventRecord, error) {
	if id == "" {
		return nil, nil
	}
	var records []*eventRecord
	if err := tx.NewSelect().Model(&records).Where("id = ?", id).Limit(1).Scan(ctx); err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, nil
	}
	return records[0], nil
}

func findWebhookTx(ctx context.Context, tx bun.Tx, id string) (*webhookRecord, error) {
	if id == "" {
		return nil, nil
	}
	var records []*webhookRecord
	if err := tx.NewSelect().Model(&records).Where("id = ?", id).Limit(1).Scan(ctx); err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, nil
	}
	return records[0], nil
}

func touchWebhookTx(ctx context.Context, tx bun.Tx, webhookID string) error {
	result, err := tx.NewUpdate().
		Model((*webhookRecord)(nil)).
		Set("updated_at = ?", time.Now().UTC()).
		Where("id = ?", webhookID).
		Exec(ctx)
	if err != nil {
		return err
	}
	if affected, err := result.RowsAffected(); err == nil && affected == 0 {
		return fmt.Errorf("%w: webhook %q", core.ErrDefinitionNotFound, webhookID)
	}
	return nil
}

// flattenNodes assigns ids to nested nodes and links children to their
// parent through ParentID.
func flattenNodes(nodes []core.TemplateNode, webhookID string) []*templateNodeRecord {
	var out []*templateNodeRecord
	var walk func(nodes []core.TemplateNode, parentID string)
	walk = func(nodes []core.TemplateNode, parentID string) {
		for _, node := range nodes {
			record := newTemplateNodeRecord(node)
			record.WebhookID = webhookID
			if record.ID == "" {
				record.ID = newID()
			}
			if parentID != "" {
				parent := parentID
				record.ParentID = &parent
			}
			out = append(out, record)
			walk(node.Children, record.ID)
		}
	}
	walk(nodes, "")
	return out
}

// orderNodesForInsert puts every parent ahead of its children so the parent
// foreign key holds on each insert.
func orderNodesForInsert(nodes []*templateNodeRecord) ([]*templateNodeRecord, error) {
	ordered := make([]*templateNodeRecord, 0, len(nodes))
	placed := make(map[string]bool, len(nodes))
	pending := nodes
	for len(pending) > 0 {
		next := pending[:0:0]
		for _, node := range pending {
			if node.ParentID == nil || placed[*node.ParentID] {
				ordered = append(ordered, node)
				placed[node.ID] = true
				continue
			}
			next = append(next, node)
		}
		if len(next) == len(pending) {
			return nil, fmt.Errorf("sqlstore: template node %q references unknown parent %q", next[0].ID, *next[0].ParentID)
		}
		pending = next
	}
	return ordered, nil
}
