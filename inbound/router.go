package inbound

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"

	goerrors "github.com/goliatone/go-errors"
	glog "github.com/goliatone/go-logger/glog"
	"github.com/goliatone/go-webhooks/core"
)

type RouterDependencies struct {
	Actions       core.ActionStore
	Authenticator core.Authenticator
	Registry      *core.HandlerRegistry
	Config        core.InboundConfig
	Logger        core.Logger
	Metrics       core.MetricsRecorder
	Idempotency   IdempotencyStore

	// IdempotencyTTL defaults to DefaultIdempotencyTTL.
	IdempotencyTTL time.Duration
}

// Request is a transport neutral inbound call. Action may be empty, in which
// case the action parameter is read from Params.
type Request struct {
	Action        string
	Method        string
	Params        map[string]string
	Authorization string

	// IdempotencyKey deduplicates POST calls per action and caller.
	IdempotencyKey string
}

type Response struct {
	Status int
	Body   map[string]any
}

type Router struct {
	actions       core.ActionStore
	authenticator core.Authenticator
	registry      *core.HandlerRegistry
	config        core.InboundConfig
	logger        core.Logger
	metrics       core.MetricsRecorder
	idempotency   IdempotencyStore
	idemTTL       time.Duration
}

func NewRouter(deps RouterDependencies) (*Router, error) {
	if deps.Actions == nil {
		return nil, fmt.Errorf("inbound: action store is required")
	}
	if deps.Authenticator == nil {
		return nil, fmt.Errorf("inbound: authenticator is required")
	}
	if deps.Registry == nil {
		return nil, fmt.Errorf("inbound: handler registry is required")
	}
	cfg := deps.Config
	if strings.TrimSpace(cfg.APIKeyParam) == "" {
		cfg.APIKeyParam = core.DefaultConfig().Inbound.APIKeyParam
	}
	if strings.TrimSpace(cfg.ActionParam) == "" {
		cfg.ActionParam = core.DefaultConfig().Inbound.ActionParam
	}
	metrics := deps.Metrics
	if metrics == nil {
		metrics = core.NopMetricsRecorder{}
	}
	return &Router{
		actions:       deps.Actions,
		authenticator: deps.Authenticator,
		registry:      deps.Registry,
		config:        cfg,
		logger:        glog.Ensure(deps.Logger),
		metrics:       metrics,
		idempotency:   deps.Idempotency,
		idemTTL:       deps.IdempotencyTTL,
	}, nil
}

// Handle always returns a response ready to be written. The error is the
// failure the response was derived from, for callers that log or inspect it.
func (r *Router) Handle(ctx context.Context, req Request) (Response, error) {
	startedAt := time.Now()
	action, actor, output, err := r.handle(ctx, req)
	status := StatusCode(err)

	fields := map[string]any{
		"action":      action.Name,
		"method":      req.Method,
		"status":      status,
		"token_id":    actor.TokenID,
		"duration_ms": time.Since(startedAt).Milliseconds(),
	}
	r.metrics.IncCounter(ctx, "webhooks.inbound.total", 1, map[string]string{
		"action": action.Name,
		"status": strconv.Itoa(status),
	})
	if err != nil {
		fields["error"] = err.Error()
		if status >= http.StatusInternalServerError {
			r.log(ctx, "error", "inbound action failed", fields)
		} else {
			r.log(ctx, "warn", "inbound action rejected", fields)
		}
		return Response{Status: status, Body: ErrorBody(err)}, err
	}
	r.log(ctx, "debug", "inbound action completed", fields)
	return Response{Status: http.StatusOK, Body: output}, nil
}

func (r *Router) handle(ctx context.Context, req Request) (core.ActionDefinition, core.ActorContext, map[string]any, error) {
	params := req.Params
	if params == nil {
		params = map[string]string{}
	}

	name := strings.TrimSpace(req.Action)
	if name == "" {
		name = strings.TrimSpace(params[r.config.ActionParam])
	}
	action, err := r.resolveAction(ctx, name)
	if err != nil {
		return core.ActionDefinition{Name: name}, core.ActorContext{}, nil, err
	}

	method := strings.ToUpper(strings.TrimSpace(req.Method))
	if method == "" {
		method = http.MethodGet
	}
	if method != http.MethodGet && method != http.MethodPost {
		return action, core.ActorContext{}, nil, methodNotAllowedError(method)
	}

	actor, err := r.authenticator.Authenticate(ctx, core.Credentials{
		APIKey:      strings.TrimSpace(params[r.config.APIKeyParam]),
		BearerToken: bearerToken(req.Authorization),
	})
	if err != nil {
		return action, core.ActorContext{}, nil, err
	}

	if err := r.authorize(ctx, action, actor); err != nil {
		return action, actor, nil, err
	}

	values, err := r.validate(action, params)
	if err != nil {
		return action, actor, nil, err
	}

	if method == http.MethodPost && r.idempotency != nil && strings.TrimSpace(req.IdempotencyKey) != "" {
		output, err := r.invokeOnce(ctx, action, actor, values, req.IdempotencyKey)
		return action, actor, output, err
	}

	output, err := r.invoke(ctx, action, actor, method, values)
	return action, actor, output, err
}

// invokeOnce runs a POST at most once per key. A repeated key returns the
// recorded output; a key whose first call is still running is a conflict.
func (r *Router) invokeOnce(
	ctx context.Context,
	action core.ActionDefinition,
	actor core.ActorContext,
	params map[string]string,
	key string,
) (map[string]any, error) {
	claim, err := r.idempotency.Claim(ctx, idempotencyKey(action, actor, key), r.idemTTL)
	if err != nil {
		return nil, core.WrapError(err, goerrors.CategoryInternal, core.ErrorInternal,
			"inbound: idempotency claim failed", map[string]any{"action": action.Name})
	}
	if !claim.Accepted {
		if claim.InFlight {
			return nil, idempotencyConflictError(action, key)
		}
		r.metrics.IncCounter(ctx, "webhooks.inbound.replayed", 1, map[string]string{"action": action.Name})
		if claim.Output == nil {
			return map[string]any{}, nil
		}
		return claim.Output, nil
	}

	output, err := r.invoke(ctx, action, actor, http.MethodPost, params)
	if err != nil {
		if failErr := r.idempotency.Fail(ctx, claim.ID, err); failErr != nil {
			r.log(ctx, "warn", "release idempotency claim failed", map[string]any{
				"action": action.Name, "claim_id": claim.ID, "error": failErr.Error(),
			})
		}
		return nil, err
	}
	if err := r.idempotency.Complete(ctx, claim.ID, output); err != nil {
		r.log(ctx, "warn", "complete idempotency claim failed", map[string]any{
			"action": action.Name, "claim_id": claim.ID, "error": err.Error(),
		})
	}
	return output, nil
}

func (r *Router) resolveAction(ctx context.Context, name string) (core.ActionDefinition, error) {
	if name == "" {
		return core.ActionDefinition{}, actionNotFoundError(name)
	}
	action, err := r.actions.GetActionByName(ctx, name)
	if err != nil {
		if errors.Is(err, core.ErrDefinitionNotFound) || errors.Is(err, core.ErrRecordNotFound) {
			return core.ActionDefinition{}, actionNotFoundError(name)
		}
		return core.ActionDefinition{}, core.WrapError(err, goerrors.CategoryInternal, core.ErrorInternal,
			"inbound: load action", map[string]any{"action": name})
	}
	if !action.Active {
		return core.ActionDefinition{}, actionNotFoundError(name)
	}
	return action, nil
}

// authorize accepts a token grant, a role grant or a group accessible action.
func (r *Router) authorize(ctx context.Context, action core.ActionDefinition, actor core.ActorContext) error {
	if action.GroupAccessible {
		return nil
	}
	grants, err := r.actions.ListGrants(ctx, action.ID)
	if err != nil {
		return core.WrapError(err, goerrors.CategoryInternal, core.ErrorInternal,
			"inbound: load access grants", map[string]any{"action": action.Name})
	}
	tokenID := strings.TrimSpace(actor.TokenID)
	roleID := strings.TrimSpace(actor.RoleID)
	for _, grant := range grants {
		if tokenID != "" && strings.TrimSpace(grant.TokenID) == tokenID {
			return nil
		}
		if roleID != "" && strings.TrimSpace(grant.RoleID) == roleID {
			return nil
		}
	}
	return unauthorizedError(action, actor)
}

// validate checks declared parameters in declaration order. The handler
// receives every request parameter except credentials and the action name.
func (r *Router) validate(action core.ActionDefinition, params map[string]string) (map[string]string, error) {
	for _, parameter := range action.Parameters {
		if !parameter.Required {
			continue
		}
		if strings.TrimSpace(params[parameter.Name]) == "" {
			return nil, missingParameterError(action, parameter.Name)
		}
	}
	values := make(map[string]string, len(params))
	for key, value := range params {
		if key == r.config.APIKeyParam || key == r.config.ActionParam {
			continue
		}
		values[key] = value
	}
	return values, nil
}

func (r *Router) invoke(
	ctx context.Context,
	action core.ActionDefinition,
	actor core.ActorContext,
	method string,
	params map[string]string,
) (map[string]any, error) {
	handler, err := core.ResolveHandler[core.ActionHandler](r.registry, action.Handler, "ActionHandler")
	if err != nil {
		return nil, err
	}
	call := core.ActionCall{
		Action: action,
		Actor:  actor,
		Method: method,
		Params: params,
		Output: map[string]any{},
	}
	err = core.InvokeHandler(action.Handler, func() error {
		if method == http.MethodPost {
			return handler.Post(ctx, call)
		}
		return handler.Get(ctx, call)
	})
	if err != nil {
		return nil, err
	}
	return call.Output, nil
}

func (r *Router) log(ctx context.Context, level string, message string, fields map[string]any) {
	logger := r.logger.WithContext(ctx)
	keys := make([]string, 0, len(fields))
	for key := range fields {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	args := make([]any, 0, len(keys)*2)
	for _, key := range keys {
		args = append(args, key, fields[key])
	}
	switch level {
	case "error":
		logger.Error(message, args...)
	case "warn":
		logger.Warn(message, args...)
	default:
		logger.Debug(message, args...)
	}
}

func bearerToken(header string) string {
	header = strings.TrimSpace(header)
	if len(header) > 7 && strings.EqualFold(header[:7], "bearer ") {
		return strings.TrimSpace(header[7:])
	}
	return ""
}
