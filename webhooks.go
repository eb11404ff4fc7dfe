package webhooks

import "github.com/goliatone/go-webhooks/core"

type Config = core.Config

type TemplateConfig = core.TemplateConfig
type QueueConfig = core.QueueConfig
type TransportConfig = core.TransportConfig
type InboundConfig = core.InboundConfig
type CacheConfig = core.CacheConfig

type Option = core.Option

type Service = core.Service

type ServiceDependencies = core.ServiceDependencies
type DefinitionStore = core.DefinitionStore
type QueueStore = core.QueueStore
type RecordLoader = core.RecordLoader
type ActionStore = core.ActionStore
type APIKeyStore = core.APIKeyStore
type SchemaProvider = core.SchemaProvider
type Sender = core.Sender
type SenderFactory = core.SenderFactory
type DrainLocker = core.DrainLocker
type DrainLease = core.DrainLease
type MetricsRecorder = core.MetricsRecorder

type MutationEvent = core.MutationEvent
type QueueEntry = core.QueueEntry
type QueueFilter = core.QueueFilter
type QueuePage = core.QueuePage
type DrainStats = core.DrainStats
type ActionDefinition = core.ActionDefinition

var (
	WithLogger            = core.WithLogger
	WithLoggerProvider    = core.WithLoggerProvider
	WithMetricsRecorder   = core.WithMetricsRecorder
	WithErrorFactory      = core.WithErrorFactory
	WithErrorMapper       = core.WithErrorMapper
	WithPersistenceClient = core.WithPersistenceClient
	WithRepositoryFactory = core.WithRepositoryFactory
	WithConfigProvider    = core.WithConfigProvider
	WithOptionsResolver   = core.WithOptionsResolver
	WithHandlerRegistry   = core.WithHandlerRegistry
	WithPayloadHooks      = core.WithPayloadHooks
	WithDefinitionStore   = core.WithDefinitionStore
	WithQueueStore        = core.WithQueueStore
	WithRecordLoader      = core.WithRecordLoader
	WithActionStore       = core.WithActionStore
	WithAPIKeyStore       = core.WithAPIKeyStore
	WithSchemaProvider    = core.WithSchemaProvider
	WithSender            = core.WithSender
	WithSenderFactory     = core.WithSenderFactory
	WithDrainLocker       = core.WithDrainLocker
	WithRowFilter         = core.WithRowFilter
)

func DefaultConfig() Config {
	return core.DefaultConfig()
}

func NewService(cfg Config, opts ...Option) (*Service, error) {
	return core.NewService(cfg, opts...)
}

func Setup(cfg Config, opts ...Option) (*Service, error) {
	return core.Setup(cfg, opts...)
}
