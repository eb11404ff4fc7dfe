package sqlstore

import (
	"github.com/goliatone/go-webhooks/core"
	"github.com/goliatone/go-webhooks/ratelimit"
)

var (
	_ core.DefinitionStore        = (*DefinitionStore)(nil)
	_ core.DefinitionStore        = (*CachedDefinitionStore)(nil)
	_ core.QueueStore             = (*QueueStore)(nil)
	_ core.RecordLoader           = (*RecordLoader)(nil)
	_ core.ActionStore            = (*ActionStore)(nil)
	_ core.APIKeyStore            = (*APIKeyStore)(nil)
	_ core.SchemaProvider         = (*SchemaProvider)(nil)
	_ core.StoreProvider          = (*RepositoryFactory)(nil)
	_ core.RepositoryStoreFactory = (*RepositoryFactory)(nil)
	_ ratelimit.StateStore        = (*HostThrottleStore)(nil)
)
