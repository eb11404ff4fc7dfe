package sqlstore

import (
	"fmt"

	persistence "github.com/goliatone/go-persistence-bun"
	repositorycache "github.com/goliatone/go-repository-cache/cache"
	"github.com/goliatone/go-webhooks/core"
	"github.com/uptrace/bun"
)

type RepositoryFactory struct {
	db *bun.DB

	cache         repositorycache.CacheService
	loaderOptions []RecordLoaderOption

	definitionStore       *DefinitionStore
	cachedDefinitionStore *CachedDefinitionStore
	queueStore            *QueueStore
	recordLoader          *RecordLoader
	actionStore           *ActionStore
	apiKeyStore           *APIKeyStore
	throttleStore         *HostThrottleStore
	schemaProvider        *SchemaProvider
}

type FactoryOption func(*RepositoryFactory)

// WithDefinitionCache fronts the definition store with the given cache.
func WithDefinitionCache(cacheService repositorycache.CacheService) FactoryOption {
	return func(f *RepositoryFactory) {
		f.cache = cacheService
	}
}

func WithRecordLoaderOptions(opts ...RecordLoaderOption) FactoryOption {
	return func(f *RepositoryFactory) {
		f.loaderOptions = append(f.loaderOptions, opts...)
	}
}

func NewRepositoryFactory(opts ...FactoryOption) *RepositoryFactory {
	factory := &RepositoryFactory{}
	for _, opt := range opts {
		if opt != nil {
			opt(factory)
		}
	}
	return factory
}

func NewRepositoryFactoryFromPersistence(client *persistence.Client, opts ...FactoryOption) (*RepositoryFactory, error) {
	factory := NewRepositoryFactory(opts...)
	if _, err := factory.BuildStores(client); err != nil {
		return nil, err
	}
	return factory, nil
}

func NewRepositoryFactoryFromDB(db *bun.DB, opts ...FactoryOption) (*RepositoryFactory, error) {
	factory := NewRepositoryFactory(opts...)
	if _, err := factory.BuildStores(db); err != nil {
		return nil, err
	}
	return factory, nil
}

func (f *RepositoryFactory) BuildStores(persistenceClient any) (core.StoreProvider, error) {
	if f == nil {
		return nil, fmt.Errorf("sqlstore: repository factory is nil")
	}
	if f.db == nil {
		db, err := resolveBunDB(persistenceClient)
		if err != nil {
			return nil, err
		}
		f.db = db
	}
	if f.definitionStore != nil && f.queueStore != nil {
		return f, nil
	}
	if err := f.initStores(); err != nil {
		return nil, err
	}
	return f, nil
}

// DefinitionStore returns the cached store when a cache was configured.
func (f *RepositoryFactory) DefinitionStore() core.DefinitionStore {
	if f == nil {
		return nil
	}
	if f.cachedDefinitionStore != nil {
		return f.cachedDefinitionStore
	}
	if f.definitionStore == nil {
		return nil
	}
	return f.definitionStore
}

func (f *RepositoryFactory) QueueStore() core.QueueStore {
	if f == nil || f.queueStore == nil {
		return nil
	}
	return f.queueStore
}

func (f *RepositoryFactory) RecordLoader() core.RecordLoader {
	if f == nil || f.recordLoader == nil {
		return nil
	}
	return f.recordLoader
}

func (f *RepositoryFactory) ActionStore() core.ActionStore {
	if f == nil || f.actionStore == nil {
		return nil
	}
	return f.actionStore
}

func (f *RepositoryFactory) APIKeyStore() core.APIKeyStore {
	if f == nil || f.apiKeyStore == nil {
		return nil
	}
	return f.apiKeyStore
}

func (f *RepositoryFactory) SchemaProvider() core.SchemaProvider {
	if f == nil || f.schemaProvider == nil {
		return nil
	}
	return f.schemaProvider
}

// APIKeys exposes the concrete key store for revocation.
func (f *RepositoryFactory) APIKeys() *APIKeyStore {
	if f == nil {
		return nil
	}
	return f.apiKeyStore
}

// ThrottleStore backs the transport host policy with the database.
func (f *RepositoryFactory) ThrottleStore() *HostThrottleStore {
	if f == nil {
		return nil
	}
	return f.throttleStore
}

func (f *RepositoryFactory) DB() *bun.DB {
	if f == nil {
		return nil
	}
	return f.db
}

func (f *RepositoryFactory) initStores() error {
	definitionStore, err := NewDefinitionStore(f.db)
	if err != nil {
		return err
	}
	f.definitionStore = definitionStore
	if f.cache != nil {
		cached, err := NewCachedDefinitionStore(definitionStore, f.cache)
		if err != nil {
			return err
		}
		f.cachedDefinitionStore = cached
	}

	queueStore, err := NewQueueStore(f.db)
	if err != nil {
		return err
	}
	f.queueStore = queueStore

	schemaProvider, err := NewSchemaProvider(f.db)
	if err != nil {
		return err
	}
	f.schemaProvider = schemaProvider

	recordLoader, err := NewRecordLoader(f.db, schemaProvider, f.loaderOptions...)
	if err != nil {
		return err
	}
	f.recordLoader = recordLoader

	actionStore, err := NewActionStore(f.db)
	if err != nil {
		return err
	}
	f.actionStore = actionStore

	apiKeyStore, err := NewAPIKeyStore(f.db)
	if err != nil {
		return err
	}
	f.apiKeyStore = apiKeyStore

	throttleStore, err := NewHostThrottleStore(f.db)
	if err != nil {
		return err
	}
	f.throttleStore = throttleStore
	return nil
}

func resolveBunDB(candidate any) (*bun.DB, error) {
	switch typed := candidate.(type) {
	case nil:
		return nil, fmt.Errorf("sqlstore: persistence client is required")
	case *bun.DB:
		if typed == nil {
			return nil, fmt.Errorf("sqlstore: bun db is required")
		}
		return typed, nil
	case interface{ DB() *bun.DB }:
		db := typed.DB()
		if db == nil {
			return nil, fmt.Errorf("sqlstore: persistence client returned nil bun db")
		}
		return db, nil
	default:
		return nil, fmt.Errorf("sqlstore: unsupported persistence client type %T", candidate)
	}
}
