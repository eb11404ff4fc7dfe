package core

import (
	"context"
	"fmt"
	"strings"

	"github.com/goliatone/go-config/cfgx"
	goerrors "github.com/goliatone/go-errors"
	glog "github.com/goliatone/go-logger/glog"
	opts "github.com/goliatone/go-options"
)

type ErrorFactory func(message string, category ...goerrors.Category) *goerrors.Error

type ErrorMapper func(err error) *goerrors.Error

type ConfigProvider interface {
	Load(ctx context.Context, defaults Config) (Config, error)
}

type RawConfigLoader interface {
	LoadRaw(ctx context.Context) (map[string]any, error)
}

type OptionsResolver interface {
	Resolve(defaults Config, loaded Config, runtime Config) (Config, error)
}

type serviceBuilder struct {
	runtimeConfig     Config
	logger            Logger
	loggerProvider    LoggerProvider
	metricsRecorder   MetricsRecorder
	errorFactory      ErrorFactory
	errorMapper       ErrorMapper
	persistenceClient any
	repositoryFactory any
	configProvider    ConfigProvider
	optionsResolver   OptionsResolver
	registry          *HandlerRegistry
	payloadHooks      *PayloadHookChain
	definitionStore   DefinitionStore
	queueStore        QueueStore
	recordLoader      RecordLoader
	actionStore       ActionStore
	apiKeyStore       APIKeyStore
	schemaProvider    SchemaProvider
	sender            Sender
	senderFactory     SenderFactory
	drainLocker       DrainLocker
	rowFilter         *RowFilter
}

type Option func(*serviceBuilder)

func WithLogger(logger Logger) Option {
	return func(b *serviceBuilder) {
		b.logger = logger
	}
}

func WithLoggerProvider(provider LoggerProvider) Option {
	return func(b *serviceBuilder) {
		b.loggerProvider = provider
	}
}

func WithMetricsRecorder(recorder MetricsRecorder) Option {
	return func(b *serviceBuilder) {
		b.metricsRecorder = recorder
	}
}

func WithErrorFactory(factory ErrorFactory) Option {
	return func(b *serviceBuilder) {
		b.errorFactory = factory
	}
}

func WithErrorMapper(mapper ErrorMapper) Option {
	return func(b *serviceBuilder) {
		b.errorMapper = mapper
	}
}

func WithPersistenceClient(client any) Option {
	return func(b *serviceBuilder) {
		b.persistenceClient = client
	}
}

func WithRepositoryFactory(factory any) Option {
	return func(b *serviceBuilder) {
		b.repositoryFactory = factory
	}
}

func WithConfigProvider(provider ConfigProvider) Option {
	return func(b *serviceBuilder) {
		b.configProvider = provider
	}
}

func WithOptionsResolver(resolver OptionsResolver) Option {
	return func(b *serviceBuilder) {
		b.optionsResolver = resolver
	}
}

func WithHandlerRegistry(registry *HandlerRegistry) Option {
	return func(b *serviceBuilder) {
		b.registry = registry
	}
}

func WithPayloadHooks(hooks *PayloadHookChain) Option {
	return func(b *serviceBuilder) {
		b.payloadHooks = hooks
	}
}

func WithDefinitionStore(store DefinitionStore) Option {
	return func(b *serviceBuilder) {
		b.definitionStore = store
	}
}

func WithQueueStore(store QueueStore) Option {
	return func(b *serviceBuilder) {
		b.queueStore = store
	}
}

func WithRecordLoader(loader RecordLoader) Option {
	return func(b *serviceBuilder) {
		b.recordLoader = loader
	}
}

func WithActionStore(store ActionStore) Option {
	return func(b *serviceBuilder) {
		b.actionStore = store
	}
}

func WithAPIKeyStore(store APIKeyStore) Option {
	return func(b *serviceBuilder) {
		b.apiKeyStore = store
	}
}

func WithSchemaProvider(provider SchemaProvider) Option {
	return func(b *serviceBuilder) {
		b.schemaProvider = provider
	}
}

func WithSender(sender Sender) Option {
	return func(b *serviceBuilder) {
		b.sender = sender
	}
}

// WithSenderFactory defers sender construction until the resolver and payload
// hooks of the service exist.
func WithSenderFactory(factory SenderFactory) Option {
	return func(b *serviceBuilder) {
		b.senderFactory = factory
	}
}

func WithDrainLocker(locker DrainLocker) Option {
	return func(b *serviceBuilder) {
		b.drainLocker = locker
	}
}

func WithRowFilter(filter *RowFilter) Option {
	return func(b *serviceBuilder) {
		b.rowFilter = filter
	}
}

func defaultServiceBuilder(runtime Config) serviceBuilder {
	loggerProvider, logger := glog.Resolve("webhooks", nil, nil)
	return serviceBuilder{
		runtimeConfig:   runtime,
		loggerProvider:  loggerProvider,
		logger:          logger,
		metricsRecorder: NopMetricsRecorder{},
		errorFactory:    goerrors.New,
		errorMapper:     defaultErrorMapper,
		configProvider:  NewCfgxConfigProvider(nil),
		optionsResolver: GoOptionsResolver{},
	}
}

func defaultErrorMapper(err error) *goerrors.Error {
	if err == nil {
		return nil
	}
	return webhookErrorMapper(err)
}

type staticRawConfigLoader struct {
	Values map[string]any
}

func (l staticRawConfigLoader) LoadRaw(context.Context) (map[string]any, error) {
	if len(l.Values) == 0 {
		return map[string]any{}, nil
	}
	out := make(map[string]any, len(l.Values))
	for key, value := range l.Values {
		out[key] = value
	}
	return out, nil
}

// NewStaticConfigLoader serves a fixed raw configuration map.
func NewStaticConfigLoader(values map[string]any) RawConfigLoader {
	return staticRawConfigLoader{Values: values}
}

type CfgxConfigProvider struct {
	Loader RawConfigLoader
}

func NewCfgxConfigProvider(loader RawConfigLoader) *CfgxConfigProvider {
	return &CfgxConfigProvider{Loader: loader}
}

func (p *CfgxConfigProvider) Load(ctx context.Context, defaults Config) (Config, error) {
	if p == nil {
		return defaults, nil
	}
	loader := p.Loader
	if loader == nil {
		loader = staticRawConfigLoader{}
	}
	raw, err := loader.LoadRaw(ctx)
	if err != nil {
		return Config{}, err
	}
	cfg, err := cfgx.Build[Config](raw,
		cfgx.WithDefaults(defaults),
		cfgx.WithValidator[Config]((*Config).Validate),
	)
	if err != nil {
		return Config{}, err
	}
	return cfg, nil
}

type GoOptionsResolver struct{}

func (GoOptionsResolver) Resolve(defaults Config, loaded Config, runtime Config) (Config, error) {
	defaultLayer := configToLayerMap(defaults, true)
	loadedLayer := configToLayerMap(loaded, false)
	runtimeLayer := configToLayerMap(runtime, false)

	stack, err := opts.NewStack(
		opts.NewLayer(
			opts.NewScope("defaults", 0),
			defaultLayer,
			opts.WithSnapshotID[map[string]any]("defaults"),
		),
		opts.NewLayer(
			opts.NewScope("config", 10),
			loadedLayer,
			opts.WithSnapshotID[map[string]any]("config"),
		),
		opts.NewLayer(
			opts.NewScope("runtime", 20),
			runtimeLayer,
			opts.WithSnapshotID[map[string]any]("runtime"),
		),
	)
	if err != nil {
		return Config{}, fmt.Errorf("core: options stack build failed: %w", err)
	}
	merged, err := stack.Merge()
	if err != nil {
		return Config{}, fmt.Errorf("core: options merge failed: %w", err)
	}
	resolved, err := cfgx.Build[Config](merged.Value,
		cfgx.WithDefaults(defaults),
		cfgx.WithValidator[Config]((*Config).Validate),
	)
	if err != nil {
		return Config{}, err
	}
	if err := resolved.Validate(); err != nil {
		return Config{}, err
	}
	return resolved, nil
}

// configToLayerMap only emits non-zero values for upper layers so that a
// partially populated runtime config never clobbers loaded values.
func configToLayerMap(cfg Config, includeZero bool) map[string]any {
	layer := map[string]any{}
	if includeZero || strings.TrimSpace(cfg.ServiceName) != "" {
		layer["service_name"] = cfg.ServiceName
	}
	if includeZero || strings.TrimSpace(cfg.Template.Marker) != "" {
		layer["template"] = map[string]any{"marker": cfg.Template.Marker}
	}

	queue := map[string]any{}
	putInt(queue, "batch_size", cfg.Queue.BatchSize, includeZero)
	putInt(queue, "flush_every", cfg.Queue.FlushEvery, includeZero)
	putInt(queue, "max_attempts", cfg.Queue.MaxAttempts, includeZero)
	if includeZero || cfg.Queue.DrainInterval != 0 {
		queue["drain_interval"] = cfg.Queue.DrainInterval
	}
	if includeZero || cfg.Queue.LockTTL != 0 {
		queue["lock_ttl"] = cfg.Queue.LockTTL
	}
	if len(queue) > 0 {
		layer["queue"] = queue
	}

	transport := map[string]any{}
	if includeZero || cfg.Transport.Timeout != 0 {
		transport["timeout"] = cfg.Transport.Timeout
	}
	if includeZero || cfg.Transport.MaxResponseBodyBytes != 0 {
		transport["max_response_body_bytes"] = cfg.Transport.MaxResponseBodyBytes
	}
	if includeZero || cfg.Transport.RatePerSecond != 0 {
		transport["rate_per_second"] = cfg.Transport.RatePerSecond
	}
	putInt(transport, "burst", cfg.Transport.Burst, includeZero)
	putString(transport, "xml_root_element", cfg.Transport.XMLRootElement, includeZero)
	putInt(transport, "response_log_bytes", cfg.Transport.ResponseLogBytes, includeZero)
	if len(transport) > 0 {
		layer["transport"] = transport
	}

	inbound := map[string]any{}
	putString(inbound, "jwt_secret", cfg.Inbound.JWTSecret, includeZero)
	putString(inbound, "jwt_issuer", cfg.Inbound.JWTIssuer, includeZero)
	putString(inbound, "api_key_param", cfg.Inbound.APIKeyParam, includeZero)
	putString(inbound, "action_param", cfg.Inbound.ActionParam, includeZero)
	if len(inbound) > 0 {
		layer["inbound"] = inbound
	}

	if includeZero || cfg.Cache.TTL != 0 {
		layer["cache"] = map[string]any{"ttl": cfg.Cache.TTL}
	}
	return layer
}

func putInt(target map[string]any, key string, value int, includeZero bool) {
	if includeZero || value != 0 {
		target[key] = value
	}
}

func putString(target map[string]any, key string, value string, includeZero bool) {
	if includeZero || strings.TrimSpace(value) != "" {
		target[key] = value
	}
}
