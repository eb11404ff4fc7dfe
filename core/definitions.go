package core

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	goerrors "github.com/goliatone/go-errors"
)

// DefinitionService is the configuration surface. Every save goes through
// validation so the dispatch path only ever sees well formed definitions.
type DefinitionService struct {
	store     DefinitionStore
	actions   ActionStore
	schemas   SchemaProvider
	registry  *HandlerRegistry
	compiler  *TemplateCompiler
	rowFilter *RowFilter
}

func NewDefinitionService(
	store DefinitionStore,
	actions ActionStore,
	schemas SchemaProvider,
	registry *HandlerRegistry,
	compiler *TemplateCompiler,
	rowFilter *RowFilter,
) (*DefinitionService, error) {
	if store == nil {
		return nil, fmt.Errorf("core: definition store is required")
	}
	if registry == nil {
		registry = NewHandlerRegistry()
	}
	if compiler == nil {
		compiler = NewTemplateCompiler(registry, defaultTemplateMarker)
	}
	if rowFilter == nil {
		rowFilter = NewRowFilter()
	}
	return &DefinitionService{
		store:     store,
		actions:   actions,
		schemas:   schemas,
		registry:  registry,
		compiler:  compiler,
		rowFilter: rowFilter,
	}, nil
}

// SaveEvent rejects a second active event for the same table, action and
// event class.
func (s *DefinitionService) SaveEvent(ctx context.Context, event EventDefinition) (EventDefinition, error) {
	event.Table = strings.TrimSpace(event.Table)
	event.EventClass = strings.TrimSpace(event.EventClass)
	event.RowFilter = strings.TrimSpace(event.RowFilter)
	event.DynamicHandler = strings.TrimSpace(event.DynamicHandler)
	if event.Table == "" {
		return EventDefinition{}, fmt.Errorf("core: event table is required")
	}
	action, err := ParseLifecycleAction(string(event.Action))
	if err != nil {
		return EventDefinition{}, err
	}
	event.Action = action
	if err := s.rowFilter.Compile(event.RowFilter); err != nil {
		return EventDefinition{}, goerrors.NewValidation(err.Error(), goerrors.FieldError{Field: "row_filter", Message: err.Error()}).
			WithCode(http.StatusBadRequest).
			WithTextCode(ErrorTemplateInvalid)
	}
	if event.DynamicHandler != "" {
		if _, err := ResolveHandler[EnqueueFilter](s.registry, event.DynamicHandler, "EnqueueFilter"); err != nil {
			return EventDefinition{}, err
		}
	}

	if event.Active {
		existing, err := s.store.ListActiveEvents(ctx, event.Table, event.Action)
		if err != nil {
			return EventDefinition{}, err
		}
		for _, other := range existing {
			if other.ID == event.ID {
				continue
			}
			if strings.EqualFold(strings.TrimSpace(other.EventClass), event.EventClass) {
				return EventDefinition{}, NewError(
					fmt.Sprintf("core: an active event already observes %s %s", event.Action, event.Table),
					goerrors.CategoryConflict,
					ErrorEventConflict,
					map[string]any{"table": event.Table, "action": string(event.Action), "existing_id": other.ID},
				)
			}
		}
	}
	return s.store.SaveEvent(ctx, event)
}

// SaveWebhook validates the full payload tree and path params before saving
// the webhook together with them.
func (s *DefinitionService) SaveWebhook(ctx context.Context, webhook WebhookDefinition) (WebhookDefinition, error) {
	normalized, err := normalizeWebhook(webhook)
	if err != nil {
		return WebhookDefinition{}, err
	}
	event, err := s.store.GetEvent(ctx, normalized.EventID)
	if err != nil {
		return WebhookDefinition{}, err
	}
	schema, err := s.schema(ctx, event.Table)
	if err != nil {
		return WebhookDefinition{}, err
	}
	if err := s.compiler.ValidateTree(ctx, normalized.Nodes, schema); err != nil {
		return WebhookDefinition{}, err
	}
	for _, param := range normalized.Params {
		if err := s.compiler.ValidateParam(ctx, param, schema); err != nil {
			return WebhookDefinition{}, err
		}
	}
	return s.store.SaveWebhook(ctx, normalized)
}

func (s *DefinitionService) SaveTemplateNode(ctx context.Context, node TemplateNode) (TemplateNode, error) {
	schema, err := s.schemaForWebhook(ctx, node.WebhookID)
	if err != nil {
		return TemplateNode{}, err
	}
	if err := s.compiler.ValidateNode(ctx, node, schema); err != nil {
		return TemplateNode{}, err
	}
	return s.store.SaveTemplateNode(ctx, node)
}

func (s *DefinitionService) SavePathParam(ctx context.Context, param PathParam) (PathParam, error) {
	schema, err := s.schemaForWebhook(ctx, param.WebhookID)
	if err != nil {
		return PathParam{}, err
	}
	if err := s.compiler.ValidateParam(ctx, param, schema); err != nil {
		return PathParam{}, err
	}
	return s.store.SavePathParam(ctx, param)
}

func (s *DefinitionService) SaveAction(ctx context.Context, action ActionDefinition) (ActionDefinition, error) {
	if s.actions == nil {
		return ActionDefinition{}, fmt.Errorf("core: action store is required")
	}
	action.Name = strings.TrimSpace(action.Name)
	action.Handler = strings.TrimSpace(action.Handler)
	if action.Name == "" {
		return ActionDefinition{}, fmt.Errorf("core: action name is required")
	}
	if strings.ContainsAny(action.Name, "/?# ") {
		return ActionDefinition{}, fmt.Errorf("core: action name %q is invalid", action.Name)
	}
	if _, err := ResolveHandler[ActionHandler](s.registry, action.Handler, "ActionHandler"); err != nil {
		return ActionDefinition{}, err
	}
	seen := map[string]struct{}{}
	for i, parameter := range action.Parameters {
		name := strings.TrimSpace(parameter.Name)
		if name == "" {
			return ActionDefinition{}, fmt.Errorf("core: action parameter %d name is required", i)
		}
		key := strings.ToLower(name)
		if _, exists := seen[key]; exists {
			return ActionDefinition{}, fmt.Errorf("core: action parameter %q is declared twice (invalid)", name)
		}
		seen[key] = struct{}{}
		action.Parameters[i].Name = name
	}
	return s.actions.SaveAction(ctx, action)
}

// GrantAccess authorizes a token identity or a role identity on an action.
func (s *DefinitionService) GrantAccess(ctx context.Context, actionName string, tokenID string, roleID string) (AccessGrant, error) {
	if s.actions == nil {
		return AccessGrant{}, fmt.Errorf("core: action store is required")
	}
	tokenID = strings.TrimSpace(tokenID)
	roleID = strings.TrimSpace(roleID)
	if (tokenID == "") == (roleID == "") {
		return AccessGrant{}, fmt.Errorf("core: exactly one of token id or role id is required")
	}
	action, err := s.actions.GetActionByName(ctx, strings.TrimSpace(actionName))
	if err != nil {
		return AccessGrant{}, err
	}
	return s.actions.SaveGrant(ctx, AccessGrant{ActionID: action.ID, TokenID: tokenID, RoleID: roleID})
}

func (s *DefinitionService) schemaForWebhook(ctx context.Context, webhookID string) (EntitySchema, error) {
	webhookID = strings.TrimSpace(webhookID)
	if webhookID == "" {
		return EntitySchema{}, fmt.Errorf("core: webhook id is required")
	}
	webhook, err := s.store.GetWebhook(ctx, webhookID)
	if err != nil {
		return EntitySchema{}, err
	}
	event, err := s.store.GetEvent(ctx, webhook.EventID)
	if err != nil {
		return EntitySchema{}, err
	}
	return s.schema(ctx, event.Table)
}

func (s *DefinitionService) schema(ctx context.Context, table string) (EntitySchema, error) {
	if s.schemas == nil {
		return EntitySchema{Table: table, Permissive: true}, nil
	}
	schema, err := s.schemas.Schema(ctx, table)
	if err != nil {
		return EntitySchema{}, fmt.Errorf("core: load schema for %s: %w", table, err)
	}
	if strings.TrimSpace(schema.Table) == "" {
		schema.Table = table
	}
	return schema, nil
}

func normalizeWebhook(webhook WebhookDefinition) (WebhookDefinition, error) {
	webhook.Name = strings.TrimSpace(webhook.Name)
	webhook.URL = strings.TrimSpace(webhook.URL)
	webhook.EventID = strings.TrimSpace(webhook.EventID)
	if webhook.EventID == "" {
		return WebhookDefinition{}, fmt.Errorf("core: webhook event id is required")
	}
	if webhook.URL == "" {
		return WebhookDefinition{}, fmt.Errorf("core: webhook url is required")
	}
	// Placeholders are not valid URL syntax until substituted.
	probe := strings.NewReplacer("{", "", "}", "").Replace(webhook.URL)
	if _, err := url.Parse(probe); err != nil {
		return WebhookDefinition{}, fmt.Errorf("core: webhook url is invalid: %w", err)
	}
	method := strings.ToUpper(strings.TrimSpace(webhook.Method))
	if method == "" {
		method = http.MethodPost
	}
	switch method {
	case http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete:
	default:
		return WebhookDefinition{}, fmt.Errorf("core: webhook method %q is invalid", webhook.Method)
	}
	webhook.Method = method
	kind, err := ParsePayloadKind(string(webhook.PayloadKind))
	if err != nil {
		return WebhookDefinition{}, err
	}
	webhook.PayloadKind = kind
	return webhook, nil
}
