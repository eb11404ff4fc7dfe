package inbound

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"sync"
	"testing"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-webhooks/core"
)

type memoryActionStore struct {
	mu      sync.Mutex
	actions map[string]core.ActionDefinition
	grants  []core.AccessGrant
}

func newMemoryActionStore(actions ...core.ActionDefinition) *memoryActionStore {
	store := &memoryActionStore{actions: map[string]core.ActionDefinition{}}
	for _, action := range actions {
		store.actions[action.Name] = action
	}
	return store
}

func (s *memoryActionStore) GetActionByName(_ context.Context, name string) (core.ActionDefinition, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	action, ok := s.actions[name]
	if !ok {
		return core.ActionDefinition{}, core.ErrDefinitionNotFound
	}
	return action, nil
}

func (s *memoryActionStore) ListActions(context.Context) ([]core.ActionDefinition, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]core.ActionDefinition, 0, len(s.actions))
	for _, action := range s.actions {
		out = append(out, action)
	}
	return out, nil
}

func (s *memoryActionStore) ListGrants(_ context.Context, actionID string) ([]core.AccessGrant, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]core.AccessGrant, 0)
	for _, grant := range s.grants {
		if grant.ActionID == actionID {
			out = append(out, grant)
		}
	}
	return out, nil
}

func (s *memoryActionStore) SaveAction(_ context.Context, action core.ActionDefinition) (core.ActionDefinition, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.actions[action.Name] = action
	return action, nil
}

func (s *memoryActionStore) SaveGrant(_ context.Context, grant core.AccessGrant) (core.AccessGrant, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.grants = append(s.grants, grant)
	return grant, nil
}

type keyAuthenticator map[string]core.ActorContext

func (a keyAuthenticator) Authenticate(_ context.Context, credentials core.Credentials) (core.ActorContext, error) {
	if actor, ok := a[credentials.APIKey]; ok {
		return actor, nil
	}
	if actor, ok := a["bearer:"+credentials.BearerToken]; ok && credentials.BearerToken != "" {
		return actor, nil
	}
	return core.ActorContext{}, core.NewError("unauthenticated", goerrors.CategoryAuth, core.ErrorUnauthenticated, nil)
}

type recordingAction struct {
	mu    sync.Mutex
	calls []core.ActionCall
	fail  error
	panic bool
}

func (a *recordingAction) record(call core.ActionCall) error {
	if a.panic {
		panic("handler exploded")
	}
	a.mu.Lock()
	a.calls = append(a.calls, call)
	a.mu.Unlock()
	if a.fail != nil {
		return a.fail
	}
	call.Output["method"] = call.Method
	call.Output["rule"] = call.Params["rule"]
	return nil
}

func (a *recordingAction) Get(_ context.Context, call core.ActionCall) error  { return a.record(call) }
func (a *recordingAction) Post(_ context.Context, call core.ActionCall) error { return a.record(call) }

type routerFixture struct {
	router  *Router
	store   *memoryActionStore
	handler *recordingAction
}

func newRouterFixture(t *testing.T, configure ...func(*RouterDependencies)) routerFixture {
	t.Helper()
	store := newMemoryActionStore(
		core.ActionDefinition{
			ID: "act_alert", Name: "createAlert", Handler: "alerts.create", Active: true,
			Parameters: []core.ActionParameter{{Name: "rule", Required: true}, {Name: "note"}},
		},
		core.ActionDefinition{ID: "act_ping", Name: "ping", Handler: "alerts.create", Active: true, GroupAccessible: true},
		core.ActionDefinition{ID: "act_off", Name: "disabled", Handler: "alerts.create", Active: false, GroupAccessible: true},
	)
	store.grants = []core.AccessGrant{
		{ID: "g1", ActionID: "act_alert", TokenID: "key-ops"},
		{ID: "g2", ActionID: "act_alert", RoleID: "role-admin"},
	}
	handler := &recordingAction{}
	registry := core.NewHandlerRegistry()
	if err := registry.RegisterInstance("alerts.create", handler); err != nil {
		t.Fatalf("register handler: %v", err)
	}
	deps := RouterDependencies{
		Actions: store,
		Authenticator: keyAuthenticator{
			"ops-key":          {Method: core.AuthMethodAPIKey, TokenID: "key-ops"},
			"guest-key":        {Method: core.AuthMethodAPIKey, TokenID: "key-guest", RoleID: "role-guest"},
			"bearer:admin-jwt": {Method: core.AuthMethodBearer, UserID: "u-1", RoleID: "role-admin"},
		},
		Registry: registry,
	}
	for _, fn := range configure {
		fn(&deps)
	}
	router, err := NewRouter(deps)
	if err != nil {
		t.Fatalf("new router: %v", err)
	}
	return routerFixture{router: router, store: store, handler: handler}
}

func assertTextCode(t *testing.T, err error, textCode string) {
	t.Helper()
	var rich *goerrors.Error
	if !goerrors.As(err, &rich) {
		t.Fatalf("expected go-errors envelope, got %T (%v)", err, err)
	}
	if rich.TextCode != textCode {
		t.Fatalf("expected %q, got %q", textCode, rich.TextCode)
	}
}

func TestRouter_UnknownActionIs404RegardlessOfCredentials(t *testing.T) {
	fx := newRouterFixture(t)
	for _, key := range []string{"ops-key", "bogus", ""} {
		res, err := fx.router.Handle(context.Background(), Request{
			Action: "nope", Method: http.MethodGet, Params: map[string]string{"apikey": key},
		})
		if res.Status != http.StatusNotFound {
			t.Fatalf("key %q: expected 404, got %d", key, res.Status)
		}
		assertTextCode(t, err, core.ErrorActionNotFound)
	}

	res, _ := fx.router.Handle(context.Background(), Request{Action: "disabled", Params: map[string]string{"apikey": "ops-key"}})
	if res.Status != http.StatusNotFound {
		t.Fatalf("inactive action must be 404, got %d", res.Status)
	}
}

func TestRouter_InvalidCredentialsAre401(t *testing.T) {
	fx := newRouterFixture(t)
	res, err := fx.router.Handle(context.Background(), Request{
		Action: "createAlert", Params: map[string]string{"apikey": "bogus", "rule": "r1"},
	})
	if res.Status != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", res.Status)
	}
	assertTextCode(t, err, core.ErrorUnauthenticated)
}

func TestRouter_ValidKeyWithoutGrantIs401(t *testing.T) {
	fx := newRouterFixture(t)
	res, err := fx.router.Handle(context.Background(), Request{
		Action: "createAlert", Params: map[string]string{"apikey": "guest-key", "rule": "r1"},
	})
	if res.Status != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", res.Status)
	}
	assertTextCode(t, err, core.ErrorUnauthorized)
	if len(fx.handler.calls) != 0 {
		t.Fatalf("handler must not run for unauthorized callers")
	}
}

func TestRouter_TokenGrantInvokesGetHandler(t *testing.T) {
	fx := newRouterFixture(t)
	res, err := fx.router.Handle(context.Background(), Request{
		Method: http.MethodGet,
		Params: map[string]string{"name": "createAlert", "apikey": "ops-key", "rule": "cpu", "extra": "1"},
	})
	if err != nil {
		t.Fatalf("handle: %v", err)
	}
	if res.Status != http.StatusOK {
		t.Fatalf("expected 200, got %d", res.Status)
	}
	if res.Body["method"] != http.MethodGet || res.Body["rule"] != "cpu" {
		t.Fatalf("unexpected output %#v", res.Body)
	}
	call := fx.handler.calls[0]
	if _, ok := call.Params["apikey"]; ok {
		t.Fatalf("credentials must not reach the handler")
	}
	if _, ok := call.Params["name"]; ok {
		t.Fatalf("action parameter must not reach the handler")
	}
	if call.Params["extra"] != "1" {
		t.Fatalf("undeclared parameters are passed through, got %#v", call.Params)
	}
	if call.Actor.TokenID != "key-ops" {
		t.Fatalf("expected actor in call, got %#v", call.Actor)
	}
}

func TestRouter_RoleGrantViaBearerInvokesPost(t *testing.T) {
	fx := newRouterFixture(t)
	res, err := fx.router.Handle(context.Background(), Request{
		Action:        "createAlert",
		Method:        "post",
		Authorization: "Bearer admin-jwt",
		Params:        map[string]string{"rule": "disk"},
	})
	if err != nil {
		t.Fatalf("handle: %v", err)
	}
	if res.Body["method"] != http.MethodPost {
		t.Fatalf("expected POST handler, got %#v", res.Body)
	}
}

func TestRouter_GroupAccessibleActionSkipsGrants(t *testing.T) {
	fx := newRouterFixture(t)
	res, err := fx.router.Handle(context.Background(), Request{Action: "ping", Params: map[string]string{"apikey": "guest-key"}})
	if err != nil {
		t.Fatalf("handle: %v", err)
	}
	if res.Status != http.StatusOK {
		t.Fatalf("expected 200, got %d", res.Status)
	}
}

func TestRouter_MissingRequiredParameterIs500NamingParameter(t *testing.T) {
	fx := newRouterFixture(t)
	res, err := fx.router.Handle(context.Background(), Request{
		Action: "createAlert", Params: map[string]string{"apikey": "ops-key"},
	})
	if res.Status != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", res.Status)
	}
	assertTextCode(t, err, core.ErrorMissingParameter)
	if !errors.Is(err, ErrMissingParameter) {
		t.Fatalf("expected missing parameter sentinel")
	}
	body, _ := res.Body["error"].(map[string]any)
	if message, _ := body["message"].(string); !strings.Contains(message, "rule") {
		t.Fatalf("expected message naming the parameter, got %#v", res.Body)
	}
	if body["parameter"] != "rule" {
		t.Fatalf("expected parameter field, got %#v", body)
	}
}

func TestRouter_HandlerFailuresAre500(t *testing.T) {
	fx := newRouterFixture(t)
	fx.handler.fail = errors.New("downstream unavailable")
	res, err := fx.router.Handle(context.Background(), Request{Action: "ping", Params: map[string]string{"apikey": "ops-key"}})
	if res.Status != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", res.Status)
	}
	assertTextCode(t, err, core.ErrorHandlerInvocation)

	fx.handler.fail = nil
	fx.handler.panic = true
	res, err = fx.router.Handle(context.Background(), Request{Action: "ping", Params: map[string]string{"apikey": "ops-key"}})
	if res.Status != http.StatusInternalServerError {
		t.Fatalf("expected 500 after panic, got %d", res.Status)
	}
	assertTextCode(t, err, core.ErrorHandlerInvocation)
}

func TestRouter_UnregisteredHandlerIs500(t *testing.T) {
	fx := newRouterFixture(t)
	_, _ = fx.store.SaveAction(context.Background(), core.ActionDefinition{
		ID: "act_ghost", Name: "ghost", Handler: "missing.handler", Active: true, GroupAccessible: true,
	})
	res, _ := fx.router.Handle(context.Background(), Request{Action: "ghost", Params: map[string]string{"apikey": "ops-key"}})
	if res.Status != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", res.Status)
	}
}

func TestRouter_RejectsOtherMethods(t *testing.T) {
	fx := newRouterFixture(t)
	res, _ := fx.router.Handle(context.Background(), Request{Action: "ping", Method: http.MethodDelete, Params: map[string]string{"apikey": "ops-key"}})
	if res.Status != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405, got %d", res.Status)
	}
}

func TestStatusCode_UnknownErrorsAre500(t *testing.T) {
	if got := StatusCode(errors.New("boom")); got != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", got)
	}
	if got := StatusCode(nil); got != http.StatusOK {
		t.Fatalf("expected 200 for nil, got %d", got)
	}
	body := ErrorBody(errors.New("secret detail"))
	errBody, _ := body["error"].(map[string]any)
	if strings.Contains(errBody["message"].(string), "secret") {
		t.Fatalf("internal details must not leak: %#v", body)
	}
}
