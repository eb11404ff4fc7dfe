package transport

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-webhooks/core"
)

type DispatcherOption func(*Dispatcher)

func WithRegistry(registry *Registry) DispatcherOption {
	return func(d *Dispatcher) {
		if registry != nil {
			d.adapters = registry
		}
	}
}

func WithHostLimiter(limiter *HostLimiter) DispatcherOption {
	return func(d *Dispatcher) {
		d.limiter = limiter
	}
}

// ThrottlePolicy gates calls per host using what receivers report about
// their limits.
type ThrottlePolicy interface {
	BeforeCall(ctx context.Context, host string) error
	AfterCall(ctx context.Context, host string, statusCode int, headers map[string]string) error
}

func WithThrottlePolicy(policy ThrottlePolicy) DispatcherOption {
	return func(d *Dispatcher) {
		d.throttle = policy
	}
}

// HeaderUnsealer turns a stored header value into the value sent on the
// wire. Values that are not sealed are returned unchanged.
type HeaderUnsealer interface {
	Unseal(ctx context.Context, value string) (string, error)
}

func WithHeaderUnsealer(unsealer HeaderUnsealer) DispatcherOption {
	return func(d *Dispatcher) {
		d.unsealer = unsealer
	}
}

func WithLogger(logger core.Logger) DispatcherOption {
	return func(d *Dispatcher) {
		if logger != nil {
			d.logger = logger
		}
	}
}

// Dispatcher turns a webhook definition and a record into one outbound call.
type Dispatcher struct {
	resolver *core.ValueResolver
	hooks    *core.PayloadHookChain
	adapters *Registry
	limiter  *HostLimiter
	throttle ThrottlePolicy
	unsealer HeaderUnsealer
	signer   *HMACSigner
	config   core.TransportConfig
	logger   core.Logger

	treesMu sync.Mutex
	trees   map[string]*core.TemplateTree
}

func NewDispatcher(
	resolver *core.ValueResolver,
	hooks *core.PayloadHookChain,
	config core.TransportConfig,
	opts ...DispatcherOption,
) (*Dispatcher, error) {
	if resolver == nil {
		return nil, fmt.Errorf("transport: value resolver is required")
	}
	if hooks == nil {
		hooks = core.NewPayloadHookChain()
	}
	dispatcher := &Dispatcher{
		resolver: resolver,
		hooks:    hooks,
		config:   config,
		trees:    map[string]*core.TemplateTree{},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(dispatcher)
		}
	}
	if dispatcher.adapters == nil {
		dispatcher.adapters = NewDefaultRegistry(nil)
	}
	if dispatcher.limiter == nil {
		dispatcher.limiter = NewHostLimiter(config.RatePerSecond, config.Burst)
	}
	return dispatcher, nil
}

// Send delivers one record. Status codes returned by the receiver are part of
// the result; only failures to complete the exchange are errors.
func (d *Dispatcher) Send(ctx context.Context, webhook core.WebhookDefinition, record core.Record) (core.DeliveryResult, error) {
	if d == nil {
		return core.DeliveryResult{}, transportError(
			"transport: dispatcher is nil",
			goerrors.CategoryInternal,
			http.StatusInternalServerError,
			nil,
		)
	}
	req, err := d.Prepare(ctx, webhook, record)
	if err != nil {
		return core.DeliveryResult{}, err
	}
	result := core.DeliveryResult{
		WebhookID: webhook.ID,
		Method:    req.Method,
		URL:       req.URL,
	}

	parsed, err := parseWebhookURL(webhook.ID, req.URL)
	if err != nil {
		return result, err
	}
	adapter, err := d.adapters.Build(parsed.Scheme, nil)
	if err != nil {
		return result, unsupportedSchemeError(parsed.Scheme, req.URL)
	}
	if d.throttle != nil {
		if err := d.throttle.BeforeCall(ctx, parsed.Host); err != nil {
			return result, err
		}
	}
	if err := d.limiter.Wait(ctx, parsed.Host); err != nil {
		return result, err
	}

	res, err := adapter.Do(ctx, req)
	if err != nil {
		return result, asTransportFailure(err, webhook, req)
	}
	if d.throttle != nil {
		if err := d.throttle.AfterCall(ctx, parsed.Host, res.StatusCode, res.Headers); err != nil && d.logger != nil {
			d.logger.Warn("record receiver rate limit state failed", "host", parsed.Host, "error", err)
		}
	}
	result.StatusCode = res.StatusCode
	result.ResponseBody = string(res.Body)
	result.Duration = res.Duration

	d.logResponse(ctx, webhook, record, res)
	return result, nil
}

func parseWebhookURL(webhookID string, target string) (*url.URL, error) {
	parsed, err := url.Parse(target)
	if err != nil {
		return nil, transportWrapError(
			err,
			goerrors.CategoryBadInput,
			"transport: invalid webhook url",
			http.StatusBadRequest,
			map[string]any{"webhook_id": webhookID, "url": target},
		)
	}
	return parsed, nil
}

// Prepare resolves the URL, headers and body without performing the call.
func (d *Dispatcher) Prepare(ctx context.Context, webhook core.WebhookDefinition, record core.Record) (Request, error) {
	params := activeParams(webhook.Params)

	target := strings.TrimSpace(webhook.URL)
	headers := map[string]string{}
	for _, param := range params {
		value, err := d.resolver.ResolveString(ctx, param.ValueSource, record)
		if err != nil {
			return Request{}, err
		}
		switch param.Placement {
		case core.PlacementURLPath:
			target = strings.ReplaceAll(target, "{"+param.Name+"}", url.PathEscape(value))
		case core.PlacementHeader:
			if d.unsealer != nil {
				value, err = d.unsealer.Unseal(ctx, value)
				if err != nil {
					return Request{}, transportWrapError(
						err,
						goerrors.CategoryInternal,
						"transport: unseal header value",
						http.StatusInternalServerError,
						map[string]any{"webhook_id": webhook.ID, "header": param.Name},
					)
				}
			}
			headers[param.Name] = value
		}
	}

	parsed, err := parseWebhookURL(webhook.ID, target)
	if err != nil {
		return Request{}, err
	}
	if !d.adapters.Supports(parsed.Scheme) {
		return Request{}, unsupportedSchemeError(parsed.Scheme, target)
	}
	if placeholder := unresolvedPlaceholder(parsed.Path); placeholder != "" {
		return Request{}, transportError(
			fmt.Sprintf("transport: url placeholder %q has no active parameter", placeholder),
			goerrors.CategoryBadInput,
			http.StatusBadRequest,
			map[string]any{"webhook_id": webhook.ID, "url": target},
		)
	}

	tree, err := d.tree(webhook)
	if err != nil {
		return Request{}, err
	}
	payload, err := tree.Build(ctx, d.resolver, record)
	if err != nil {
		return Request{}, err
	}
	payload, err = d.hooks.Apply(ctx, webhook, record, payload)
	if err != nil {
		return Request{}, err
	}

	rootElement := strings.TrimSpace(webhook.RootElement)
	if rootElement == "" {
		rootElement = d.config.XMLRootElement
	}
	body, contentType, err := Encode(webhook.PayloadKind, payload, rootElement)
	if err != nil {
		return Request{}, transportWrapError(
			err,
			goerrors.CategoryInternal,
			"transport: encode payload",
			http.StatusInternalServerError,
			map[string]any{"webhook_id": webhook.ID, "payload_kind": string(webhook.PayloadKind)},
		)
	}
	if _, ok := lookupHeader(headers, "Content-Type"); !ok {
		headers["Content-Type"] = contentType
	}
	if d.signer != nil {
		if _, ok := lookupHeader(headers, d.signer.HeaderName()); !ok {
			signature, err := d.signer.Sign(body)
			if err != nil {
				return Request{}, transportWrapError(
					err,
					goerrors.CategoryInternal,
					"transport: sign payload",
					http.StatusInternalServerError,
					map[string]any{"webhook_id": webhook.ID},
				)
			}
			headers[d.signer.HeaderName()] = signature
		}
	}

	method := strings.ToUpper(strings.TrimSpace(webhook.Method))
	if method == "" {
		method = http.MethodPost
	}
	return Request{
		Method:               method,
		URL:                  parsed.String(),
		Headers:              headers,
		Body:                 body,
		Timeout:              d.config.Timeout,
		MaxResponseBodyBytes: d.config.MaxResponseBodyBytes,
	}, nil
}

// tree compiles the webhook's template once per definition revision.
func (d *Dispatcher) tree(webhook core.WebhookDefinition) (*core.TemplateTree, error) {
	key := treeKey(webhook)
	if key != "" {
		d.treesMu.Lock()
		tree, ok := d.trees[key]
		d.treesMu.Unlock()
		if ok {
			return tree, nil
		}
	}
	tree, err := core.NewTemplateTree(webhook.Nodes)
	if err != nil {
		return nil, core.WrapError(err, goerrors.CategoryValidation, core.ErrorTemplateInvalid,
			"transport: webhook template is invalid", map[string]any{"webhook_id": webhook.ID})
	}
	if key != "" {
		d.treesMu.Lock()
		d.trees[key] = tree
		d.treesMu.Unlock()
	}
	return tree, nil
}

func (d *Dispatcher) logResponse(ctx context.Context, webhook core.WebhookDefinition, record core.Record, res Response) {
	if d.logger == nil {
		return
	}
	limit := d.config.ResponseLogBytes
	body := string(res.Body)
	if limit > 0 && len(body) > limit {
		body = body[:limit] + "..."
	}
	logger := d.logger.WithContext(ctx)
	logger.Debug("webhook response received",
		"webhook_id", webhook.ID,
		"record_id", record.ID,
		"status_code", res.StatusCode,
		"duration_ms", res.Duration.Milliseconds(),
		"headers", core.RedactStrings(res.Headers),
		"body", body,
		"body_truncated", res.Truncated,
	)
}

func activeParams(params []core.PathParam) []core.PathParam {
	active := make([]core.PathParam, 0, len(params))
	for _, param := range params {
		if param.Active && strings.TrimSpace(param.Name) != "" {
			active = append(active, param)
		}
	}
	sort.SliceStable(active, func(i, j int) bool {
		return active[i].Position < active[j].Position
	})
	return active
}

func unresolvedPlaceholder(path string) string {
	start := strings.Index(path, "{")
	if start < 0 {
		return ""
	}
	end := strings.Index(path[start:], "}")
	if end < 0 {
		return ""
	}
	return path[start+1 : start+end]
}

func lookupHeader(headers map[string]string, name string) (string, bool) {
	for key, value := range headers {
		if strings.EqualFold(key, name) {
			return value, true
		}
	}
	return "", false
}

func treeKey(webhook core.WebhookDefinition) string {
	id := strings.TrimSpace(webhook.ID)
	if id == "" {
		return ""
	}
	return id + "@" + strconv.FormatInt(webhook.UpdatedAt.UnixNano(), 10)
}

// asTransportFailure keeps adapter envelopes that already carry a code and
// classifies the rest as transport failures.
func asTransportFailure(err error, webhook core.WebhookDefinition, req Request) error {
	if core.ErrorKind(err) != "" {
		return err
	}
	return transportWrapError(
		err,
		goerrors.CategoryExternal,
		"transport: webhook delivery failed",
		http.StatusBadGateway,
		map[string]any{"webhook_id": webhook.ID, "method": req.Method, "url": req.URL},
	)
}

// NewSenderFactory plugs the dispatcher into core.WithSenderFactory. client
// may be nil to use a default client bounded by the transport timeout.
func NewSenderFactory(client HTTPDoer, opts ...DispatcherOption) core.SenderFactory {
	return func(deps core.SenderDependencies) (core.Sender, error) {
		doer := client
		if doer == nil {
			doer = &http.Client{Timeout: deps.Config.Transport.Timeout + time.Second}
		}
		options := append([]DispatcherOption{
			WithRegistry(NewDefaultRegistry(doer)),
			WithLogger(deps.Logger),
		}, opts...)
		return NewDispatcher(deps.Resolver, deps.Hooks, deps.Config.Transport, options...)
	}
}

var _ core.Sender = (*Dispatcher)(nil)
