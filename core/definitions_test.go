package core

import (
	"context"
	"testing"

	goerrors "github.com/goliatone/go-errors"
)

type staticSchemaProvider map[string]EntitySchema

func (p staticSchemaProvider) Schema(_ context.Context, table string) (EntitySchema, error) {
	return p[table], nil
}

type memoryActionStore struct {
	actions map[string]ActionDefinition
	grants  []AccessGrant
}

func newMemoryActionStore() *memoryActionStore {
	return &memoryActionStore{actions: map[string]ActionDefinition{}}
}

func (s *memoryActionStore) GetActionByName(_ context.Context, name string) (ActionDefinition, error) {
	action, ok := s.actions[name]
	if !ok {
		return ActionDefinition{}, ErrDefinitionNotFound
	}
	return action, nil
}

func (s *memoryActionStore) ListActions(context.Context) ([]ActionDefinition, error) {
	out := make([]ActionDefinition, 0, len(s.actions))
	for _, action := range s.actions {
		out = append(out, action)
	}
	return out, nil
}

func (s *memoryActionStore) ListGrants(_ context.Context, actionID string) ([]AccessGrant, error) {
	out := make([]AccessGrant, 0)
	for _, grant := range s.grants {
		if grant.ActionID == actionID {
			out = append(out, grant)
		}
	}
	return out, nil
}

func (s *memoryActionStore) SaveAction(_ context.Context, action ActionDefinition) (ActionDefinition, error) {
	if action.ID == "" {
		action.ID = "act_" + action.Name
	}
	s.actions[action.Name] = action
	return action, nil
}

func (s *memoryActionStore) SaveGrant(_ context.Context, grant AccessGrant) (AccessGrant, error) {
	grant.ID = "grant_" + grant.ActionID
	s.grants = append(s.grants, grant)
	return grant, nil
}

func newTestDefinitionService(t *testing.T, store DefinitionStore, actions ActionStore, registry *HandlerRegistry) *DefinitionService {
	t.Helper()
	service, err := NewDefinitionService(store, actions, staticSchemaProvider{"orders": ordersSchema}, registry, nil, nil)
	if err != nil {
		t.Fatalf("new definition service: %v", err)
	}
	return service
}

func TestDefinitionService_SaveEventRejectsDuplicateActiveEvent(t *testing.T) {
	store, _, _ := orderFixture()
	service := newTestDefinitionService(t, store, nil, nil)

	_, err := service.SaveEvent(context.Background(), EventDefinition{Table: "orders", Action: "update", Active: true})
	var richErr *goerrors.Error
	if !goerrors.As(err, &richErr) {
		t.Fatalf("expected conflict envelope, got %v", err)
	}
	if richErr.TextCode != ErrorEventConflict || richErr.Code != 409 {
		t.Fatalf("unexpected conflict error code=%d text=%q", richErr.Code, richErr.TextCode)
	}

	if _, err := service.SaveEvent(context.Background(), EventDefinition{Table: "orders", Action: ActionUpdate, Active: false}); err != nil {
		t.Fatalf("expected inactive duplicate allowed, got %v", err)
	}
	if _, err := service.SaveEvent(context.Background(), EventDefinition{Table: "orders", Action: ActionUpdate, EventClass: "sales", Active: true}); err != nil {
		t.Fatalf("expected distinct event class allowed, got %v", err)
	}
	if _, err := service.SaveEvent(context.Background(), EventDefinition{ID: "evt_orders", Table: "orders", Action: ActionUpdate, Active: true}); err != nil {
		t.Fatalf("expected resave of same event allowed, got %v", err)
	}
}

func TestDefinitionService_SaveEventValidatesFilterAndHandler(t *testing.T) {
	service := newTestDefinitionService(t, newMemoryDefinitionStore(), nil, nil)
	if _, err := service.SaveEvent(context.Background(), EventDefinition{Table: "orders", Action: ActionCreate, RowFilter: "status ==="}); err == nil {
		t.Fatalf("expected invalid row filter rejected")
	}
	_, err := service.SaveEvent(context.Background(), EventDefinition{Table: "orders", Action: ActionCreate, DynamicHandler: "ghost"})
	if !IsErrorKind(err, ErrorHandlerContractViolation) {
		t.Fatalf("expected unknown handler rejected, got %v", err)
	}
}

func TestDefinitionService_SaveWebhookValidatesTemplate(t *testing.T) {
	store, _, webhook := orderFixture()
	service := newTestDefinitionService(t, store, nil, nil)

	webhook.ID = ""
	webhook.Method = "post"
	saved, err := service.SaveWebhook(context.Background(), webhook)
	if err != nil {
		t.Fatalf("save webhook: %v", err)
	}
	if saved.Method != "POST" {
		t.Fatalf("expected normalized method, got %q", saved.Method)
	}

	webhook.Nodes = append(webhook.Nodes, TemplateNode{Name: "total", ValueSource: ValueSource{Kind: ValuePropertyPath, Expression: "grand_total"}})
	if _, err := service.SaveWebhook(context.Background(), webhook); !IsErrorKind(err, ErrorTemplateInvalid) {
		t.Fatalf("expected template invalid, got %v", err)
	}
}

func TestDefinitionService_SaveTemplateNodeUsesBoundSchema(t *testing.T) {
	store, _, _ := orderFixture()
	service := newTestDefinitionService(t, store, nil, nil)

	_, err := service.SaveTemplateNode(context.Background(), TemplateNode{
		WebhookID:   "wh_orders",
		Name:        "who",
		ValueSource: ValueSource{Kind: ValueLiteral, Expression: "for @customer.name"},
	})
	if err != nil {
		t.Fatalf("save node: %v", err)
	}
	_, err = service.SaveTemplateNode(context.Background(), TemplateNode{
		WebhookID:   "wh_orders",
		Name:        "who",
		ValueSource: ValueSource{Kind: ValueLiteral, Expression: "for @customer.email"},
	})
	if !IsErrorKind(err, ErrorTemplateInvalid) {
		t.Fatalf("expected unknown path rejected, got %v", err)
	}
}

func TestDefinitionService_SaveActionAndGrant(t *testing.T) {
	registry := NewHandlerRegistry()
	_ = registry.RegisterInstance("alerts", noopAction{})
	actions := newMemoryActionStore()
	service := newTestDefinitionService(t, newMemoryDefinitionStore(), actions, registry)

	_, err := service.SaveAction(context.Background(), ActionDefinition{
		Name:       "createAlert",
		Handler:    "alerts",
		Parameters: []ActionParameter{{Name: "rule", Required: true}},
	})
	if err != nil {
		t.Fatalf("save action: %v", err)
	}
	if _, err := service.SaveAction(context.Background(), ActionDefinition{Name: "bad", Handler: "ghost"}); err == nil {
		t.Fatalf("expected unknown handler rejected")
	}
	if _, err := service.SaveAction(context.Background(), ActionDefinition{
		Name:       "dup",
		Handler:    "alerts",
		Parameters: []ActionParameter{{Name: "a"}, {Name: "A"}},
	}); err == nil {
		t.Fatalf("expected duplicate parameter rejected")
	}

	grant, err := service.GrantAccess(context.Background(), "createAlert", "", "role_admin")
	if err != nil {
		t.Fatalf("grant: %v", err)
	}
	if grant.ActionID != "act_createAlert" || grant.RoleID != "role_admin" {
		t.Fatalf("unexpected grant %+v", grant)
	}
	if _, err := service.GrantAccess(context.Background(), "createAlert", "tok", "role"); err == nil {
		t.Fatalf("expected grant with both identities rejected")
	}
}
