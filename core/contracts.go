package core

import (
	"context"
	"time"

	glog "github.com/goliatone/go-logger/glog"
)

type Logger = glog.Logger

type LoggerProvider = glog.LoggerProvider

type FieldsLogger = glog.FieldsLogger

type MetricsRecorder interface {
	IncCounter(ctx context.Context, name string, value int64, tags map[string]string)
	ObserveHistogram(ctx context.Context, name string, value float64, tags map[string]string)
}

// DefinitionReader is the read side of the configuration graph used by the
// dispatch path.
type DefinitionReader interface {
	ListActiveEvents(ctx context.Context, table string, action LifecycleAction) ([]EventDefinition, error)
	GetEvent(ctx context.Context, id string) (EventDefinition, error)
	GetWebhook(ctx context.Context, id string) (WebhookDefinition, error)
	ListWebhooksForEvent(ctx context.Context, eventID string) ([]WebhookDefinition, error)
}

type DefinitionStore interface {
	DefinitionReader
	SaveEvent(ctx context.Context, event EventDefinition) (EventDefinition, error)
	SaveWebhook(ctx context.Context, webhook WebhookDefinition) (WebhookDefinition, error)
	SaveTemplateNode(ctx context.Context, node TemplateNode) (TemplateNode, error)
	SavePathParam(ctx context.Context, param PathParam) (PathParam, error)
}

type QueueStore interface {
	Enqueue(ctx context.Context, entry QueueEntry) (QueueEntry, error)
	// ListPending returns pending entries with an id greater than afterID in
	// insertion order.
	ListPending(ctx context.Context, afterID string, limit int) ([]QueueEntry, error)
	List(ctx context.Context, filter QueueFilter) (QueuePage, error)
	Delete(ctx context.Context, id string) error
	MarkFailed(ctx context.Context, id string, cause error, dead bool) error
	RequeueDead(ctx context.Context) (int, error)
}

type RecordLoader interface {
	Load(ctx context.Context, table string, id string) (Record, error)
}

type ActionStore interface {
	GetActionByName(ctx context.Context, name string) (ActionDefinition, error)
	ListActions(ctx context.Context) ([]ActionDefinition, error)
	ListGrants(ctx context.Context, actionID string) ([]AccessGrant, error)
	SaveAction(ctx context.Context, action ActionDefinition) (ActionDefinition, error)
	SaveGrant(ctx context.Context, grant AccessGrant) (AccessGrant, error)
}

type APIKeyStore interface {
	GetAPIKey(ctx context.Context, id string) (APIKey, error)
	SaveAPIKey(ctx context.Context, key APIKey) (APIKey, error)
}

// StoreProvider is implemented by repository factories that can hand out the
// stores the service needs.
type StoreProvider interface {
	DefinitionStore() DefinitionStore
	QueueStore() QueueStore
	RecordLoader() RecordLoader
}

type RepositoryStoreFactory interface {
	BuildStores(persistenceClient any) (StoreProvider, error)
}

// SchemaProvider exposes entity metadata for save-time template validation.
type SchemaProvider interface {
	Schema(ctx context.Context, table string) (EntitySchema, error)
}

type Sender interface {
	Send(ctx context.Context, webhook WebhookDefinition, record Record) (DeliveryResult, error)
}

type SenderDependencies struct {
	Config   Config
	Logger   Logger
	Resolver *ValueResolver
	Hooks    *PayloadHookChain
}

type SenderFactory func(deps SenderDependencies) (Sender, error)

// ComputeHandler backs Computed values.
type ComputeHandler interface {
	Compute(ctx context.Context, args []string) (string, error)
}

// NodeHandler backs DynamicNode values and may return structured data.
type NodeHandler interface {
	BuildNode(ctx context.Context, args []string) (any, error)
}

// EnqueueFilter is the optional dynamic handler of an event definition. It
// may veto an enqueue by returning false.
type EnqueueFilter interface {
	AllowEnqueue(ctx context.Context, mutation MutationEvent, event EventDefinition) (bool, error)
}

type ActionHandler interface {
	Get(ctx context.Context, call ActionCall) error
	Post(ctx context.Context, call ActionCall) error
}

type PayloadHook interface {
	Name() string
	Process(ctx context.Context, webhook WebhookDefinition, record Record, payload any) (any, error)
}

type MutationHandler interface {
	Name() string
	OnMutation(ctx context.Context, event MutationEvent) error
}

type Authenticator interface {
	Authenticate(ctx context.Context, credentials Credentials) (ActorContext, error)
}

// DrainLease is a held drain lock. Renew extends it by ttl and returns
// ErrDrainLeaseLost once another holder owns the key. Release must be called
// once the sweep ends.
type DrainLease interface {
	Renew(ctx context.Context, ttl time.Duration) error
	Release(ctx context.Context) error
}

// DrainLocker serializes drain sweeps.
type DrainLocker interface {
	TryAcquire(ctx context.Context, key string, ttl time.Duration) (lease DrainLease, acquired bool, err error)
}

// WebhookService is the surface command and query handlers depend on.
type WebhookService interface {
	Enqueue(ctx context.Context, mutation MutationEvent) (QueueEntry, bool, error)
	NotifyMutation(ctx context.Context, mutation MutationEvent) error
	Drain(ctx context.Context) (DrainStats, error)
	RequeueDead(ctx context.Context) (int, error)
	ListQueueEntries(ctx context.Context, filter QueueFilter) (QueuePage, error)
	ListActions(ctx context.Context) ([]ActionDefinition, error)
}
