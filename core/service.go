package core

import (
	"context"
	"fmt"
	"strings"
	"time"

	goerrors "github.com/goliatone/go-errors"
	glog "github.com/goliatone/go-logger/glog"
)

type Service struct {
	config            Config
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
	drainLocker       DrainLocker
	rowFilter         *RowFilter
	resolver          *ValueResolver
	compiler          *TemplateCompiler
	definitions       *DefinitionService
	matcher           *EventMatcher
	dispatchQueue     *DispatchQueue
	mutations         *MutationHookCoordinator
}

type ServiceDependencies struct {
	Logger            Logger
	LoggerProvider    LoggerProvider
	MetricsRecorder   MetricsRecorder
	ErrorFactory      ErrorFactory
	ErrorMapper       ErrorMapper
	PersistenceClient any
	RepositoryFactory any
	ConfigProvider    ConfigProvider
	OptionsResolver   OptionsResolver
	Registry          *HandlerRegistry
	PayloadHooks      *PayloadHookChain
	DefinitionStore   DefinitionStore
	QueueStore        QueueStore
	RecordLoader      RecordLoader
	ActionStore       ActionStore
	APIKeyStore       APIKeyStore
	SchemaProvider    SchemaProvider
	Sender            Sender
	DrainLocker       DrainLocker
	Resolver          *ValueResolver
}

func NewService(cfg Config, opts ...Option) (*Service, error) {
	builder := defaultServiceBuilder(cfg)
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(&builder)
	}

	provider, logger := glog.Resolve("webhooks", builder.loggerProvider, builder.logger)
	logger = glog.Ensure(logger)
	if provider != nil {
		if named := provider.GetLogger("webhooks"); named != nil {
			logger = glog.Ensure(named)
		}
	}

	if builder.errorFactory == nil {
		builder.errorFactory = goerrors.New
	}
	if builder.metricsRecorder == nil {
		builder.metricsRecorder = NopMetricsRecorder{}
	}
	if builder.errorMapper == nil {
		builder.errorMapper = defaultErrorMapper
	}
	if builder.configProvider == nil {
		builder.configProvider = NewCfgxConfigProvider(nil)
	}
	if builder.optionsResolver == nil {
		builder.optionsResolver = GoOptionsResolver{}
	}
	if builder.registry == nil {
		builder.registry = NewHandlerRegistry()
	}
	if builder.payloadHooks == nil {
		builder.payloadHooks = NewPayloadHookChain()
	}
	if builder.drainLocker == nil {
		builder.drainLocker = NewMemoryDrainLocker()
	}
	if builder.rowFilter == nil {
		builder.rowFilter = NewRowFilter()
	}

	defaults := DefaultConfig()
	loaded, err := builder.configProvider.Load(context.Background(), defaults)
	if err != nil {
		return nil, mapBuildError(builder.errorMapper, err)
	}
	finalConfig, err := builder.optionsResolver.Resolve(defaults, loaded, builder.runtimeConfig)
	if err != nil {
		return nil, mapBuildError(builder.errorMapper, err)
	}
	finalConfig = finalConfig.withFallbacks()

	if err := resolveStores(&builder); err != nil {
		return nil, mapBuildError(builder.errorMapper, err)
	}
	if builder.definitionStore == nil {
		return nil, mapBuildError(builder.errorMapper, fmt.Errorf("core: definition store is required"))
	}
	if builder.queueStore == nil {
		return nil, mapBuildError(builder.errorMapper, fmt.Errorf("core: queue store is required"))
	}

	resolver := NewValueResolver(builder.registry, finalConfig.Template.Marker)
	if builder.sender == nil && builder.senderFactory != nil {
		sender, senderErr := builder.senderFactory(SenderDependencies{
			Config:   finalConfig,
			Logger:   logger,
			Resolver: resolver,
			Hooks:    builder.payloadHooks,
		})
		if senderErr != nil {
			return nil, mapBuildError(builder.errorMapper, senderErr)
		}
		builder.sender = sender
	}

	compiler := NewTemplateCompiler(builder.registry, finalConfig.Template.Marker)
	definitions, err := NewDefinitionService(
		builder.definitionStore,
		builder.actionStore,
		builder.schemaProvider,
		builder.registry,
		compiler,
		builder.rowFilter,
	)
	if err != nil {
		return nil, mapBuildError(builder.errorMapper, err)
	}
	matcher, err := NewEventMatcher(builder.definitionStore, builder.queueStore, builder.registry, logger, builder.metricsRecorder)
	if err != nil {
		return nil, mapBuildError(builder.errorMapper, err)
	}

	var dispatchQueue *DispatchQueue
	if builder.sender != nil && builder.recordLoader != nil {
		dispatchQueue, err = NewDispatchQueue(DispatchQueueDependencies{
			Definitions: builder.definitionStore,
			Queue:       builder.queueStore,
			Loader:      builder.recordLoader,
			Sender:      builder.sender,
			RowFilter:   builder.rowFilter,
			Locker:      builder.drainLocker,
			Config:      finalConfig.Queue,
			Logger:      logger,
			Metrics:     builder.metricsRecorder,
		})
		if err != nil {
			return nil, mapBuildError(builder.errorMapper, err)
		}
	}

	return &Service{
		config:            finalConfig,
		logger:            logger,
		loggerProvider:    provider,
		metricsRecorder:   builder.metricsRecorder,
		errorFactory:      builder.errorFactory,
		errorMapper:       builder.errorMapper,
		persistenceClient: builder.persistenceClient,
		repositoryFactory: builder.repositoryFactory,
		configProvider:    builder.configProvider,
		optionsResolver:   builder.optionsResolver,
		registry:          builder.registry,
		payloadHooks:      builder.payloadHooks,
		definitionStore:   builder.definitionStore,
		queueStore:        builder.queueStore,
		recordLoader:      builder.recordLoader,
		actionStore:       builder.actionStore,
		apiKeyStore:       builder.apiKeyStore,
		schemaProvider:    builder.schemaProvider,
		sender:            builder.sender,
		drainLocker:       builder.drainLocker,
		rowFilter:         builder.rowFilter,
		resolver:          resolver,
		compiler:          compiler,
		definitions:       definitions,
		matcher:           matcher,
		dispatchQueue:     dispatchQueue,
		mutations:         NewMutationHookCoordinator(NewEnqueueSubscriber(matcher, logger)),
	}, nil
}

func Setup(cfg Config, opts ...Option) (*Service, error) {
	return NewService(cfg, opts...)
}

// resolveStores fills missing stores from the repository factory. Factories
// may also expose action, API key and schema stores through optional
// accessors.
func resolveStores(builder *serviceBuilder) error {
	if builder.repositoryFactory == nil {
		return nil
	}
	var provider StoreProvider
	if storeFactory, ok := builder.repositoryFactory.(RepositoryStoreFactory); ok {
		built, err := storeFactory.BuildStores(builder.persistenceClient)
		if err != nil {
			return err
		}
		provider = built
	} else if direct, ok := builder.repositoryFactory.(StoreProvider); ok {
		provider = direct
	}
	if provider == nil {
		return nil
	}
	if builder.definitionStore == nil {
		builder.definitionStore = provider.DefinitionStore()
	}
	if builder.queueStore == nil {
		builder.queueStore = provider.QueueStore()
	}
	if builder.recordLoader == nil {
		builder.recordLoader = provider.RecordLoader()
	}
	if builder.actionStore == nil {
		if source, ok := provider.(interface{ ActionStore() ActionStore }); ok {
			builder.actionStore = source.ActionStore()
		}
	}
	if builder.apiKeyStore == nil {
		if source, ok := provider.(interface{ APIKeyStore() APIKeyStore }); ok {
			builder.apiKeyStore = source.APIKeyStore()
		}
	}
	if builder.schemaProvider == nil {
		if source, ok := provider.(interface{ SchemaProvider() SchemaProvider }); ok {
			builder.schemaProvider = source.SchemaProvider()
		}
	}
	return nil
}

func (s *Service) Config() Config {
	if s == nil {
		return Config{}
	}
	return s.config
}

func (s *Service) Dependencies() ServiceDependencies {
	if s == nil {
		return ServiceDependencies{}
	}
	return ServiceDependencies{
		Logger:            s.logger,
		LoggerProvider:    s.loggerProvider,
		MetricsRecorder:   s.metricsRecorder,
		ErrorFactory:      s.errorFactory,
		ErrorMapper:       s.errorMapper,
		PersistenceClient: s.persistenceClient,
		RepositoryFactory: s.repositoryFactory,
		ConfigProvider:    s.configProvider,
		OptionsResolver:   s.optionsResolver,
		Registry:          s.registry,
		PayloadHooks:      s.payloadHooks,
		DefinitionStore:   s.definitionStore,
		QueueStore:        s.queueStore,
		RecordLoader:      s.recordLoader,
		ActionStore:       s.actionStore,
		APIKeyStore:       s.apiKeyStore,
		SchemaProvider:    s.schemaProvider,
		Sender:            s.sender,
		DrainLocker:       s.drainLocker,
		Resolver:          s.resolver,
	}
}

func (s *Service) Registry() *HandlerRegistry {
	if s == nil {
		return nil
	}
	return s.registry
}

func (s *Service) Resolver() *ValueResolver {
	if s == nil {
		return nil
	}
	return s.resolver
}

func (s *Service) Definitions() *DefinitionService {
	if s == nil {
		return nil
	}
	return s.definitions
}

func (s *Service) Mutations() *MutationHookCoordinator {
	if s == nil {
		return nil
	}
	return s.mutations
}

// Enqueue matches mutation against the active events and writes at most one
// queue entry. Unlike NotifyMutation it reports failures to the caller.
func (s *Service) Enqueue(ctx context.Context, mutation MutationEvent) (QueueEntry, bool, error) {
	if s == nil || s.matcher == nil {
		return QueueEntry{}, false, fmt.Errorf("core: service is not configured")
	}
	entry, enqueued, err := s.matcher.Enqueue(ctx, mutation)
	return entry, enqueued, s.mapError(err)
}

// NotifyMutation is the host commit hook. Enqueue failures are logged by the
// subscriber and never returned; the error only reports other registered
// mutation handlers.
func (s *Service) NotifyMutation(ctx context.Context, mutation MutationEvent) error {
	if s == nil || s.mutations == nil {
		return nil
	}
	return s.mutations.Publish(ctx, mutation)
}

func (s *Service) Drain(ctx context.Context) (DrainStats, error) {
	if s == nil || s.dispatchQueue == nil {
		return DrainStats{}, s.mapError(fmt.Errorf("core: dispatch queue requires a sender and a record loader"))
	}
	// Sweep failures are joined per entry and returned unmapped so none of
	// them is lost behind the first envelope.
	return s.dispatchQueue.Drain(ctx)
}

func (s *Service) RequeueDead(ctx context.Context) (count int, err error) {
	if s == nil || s.queueStore == nil {
		return 0, fmt.Errorf("core: service is not configured")
	}
	startedAt := time.Now()
	defer func() {
		s.observer().observeOperation(ctx, startedAt, "requeue_dead", err, map[string]any{"requeued": count})
	}()
	count, err = s.queueStore.RequeueDead(ctx)
	return count, s.mapError(err)
}

func (s *Service) ListQueueEntries(ctx context.Context, filter QueueFilter) (QueuePage, error) {
	if s == nil || s.queueStore == nil {
		return QueuePage{}, fmt.Errorf("core: service is not configured")
	}
	filter.Table = strings.TrimSpace(filter.Table)
	if filter.Limit <= 0 {
		filter.Limit = 50
	}
	if filter.Offset < 0 {
		filter.Offset = 0
	}
	switch filter.Status {
	case "", QueueEntryPending, QueueEntryDead:
	default:
		return QueuePage{}, s.mapError(fmt.Errorf("core: queue status %q is invalid", filter.Status))
	}
	page, err := s.queueStore.List(ctx, filter)
	return page, s.mapError(err)
}

func (s *Service) ListActions(ctx context.Context) ([]ActionDefinition, error) {
	if s == nil || s.actionStore == nil {
		return nil, fmt.Errorf("core: action store is not configured")
	}
	actions, err := s.actionStore.ListActions(ctx)
	return actions, s.mapError(err)
}

// NewDrainScheduler builds a scheduler driving this service's Drain at the
// configured interval.
func (s *Service) NewDrainScheduler() (*DrainScheduler, error) {
	if s == nil || s.dispatchQueue == nil {
		return nil, fmt.Errorf("core: dispatch queue requires a sender and a record loader")
	}
	return NewDrainScheduler(s, s.config.Queue.DrainInterval, s.logger, s.metricsRecorder)
}

func (s *Service) observer() observer {
	return newObserver(s.logger, s.metricsRecorder)
}

func (s *Service) mapError(err error) error {
	if err == nil {
		return nil
	}
	if s == nil || s.errorMapper == nil {
		return err
	}
	mapped := s.errorMapper(err)
	if mapped == nil {
		return err
	}
	return mapped
}
