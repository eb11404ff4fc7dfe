package webhooks

import (
	persistence "github.com/goliatone/go-persistence-bun"
	"github.com/goliatone/go-webhooks/core"
	sqlstore "github.com/goliatone/go-webhooks/store/sql"
	"github.com/goliatone/go-webhooks/transport"
	"github.com/uptrace/bun"
)

// HTTPSenderFactory returns the default outbound sender. A nil client uses an
// http.Client bounded by the configured transport timeout.
func HTTPSenderFactory(client transport.HTTPDoer, opts ...transport.DispatcherOption) SenderFactory {
	return transport.NewSenderFactory(client, opts...)
}

func SQLRepositoryFactory(client *persistence.Client, opts ...sqlstore.FactoryOption) (*sqlstore.RepositoryFactory, error) {
	return sqlstore.NewRepositoryFactoryFromPersistence(client, opts...)
}

func SQLRepositoryFactoryFromDB(db *bun.DB, opts ...sqlstore.FactoryOption) (*sqlstore.RepositoryFactory, error) {
	return sqlstore.NewRepositoryFactoryFromDB(db, opts...)
}

// NewSQLService wires a Service over the bun stores and the default HTTP
// sender.
func NewSQLService(cfg Config, db *bun.DB, opts ...Option) (*Service, error) {
	factory, err := SQLRepositoryFactoryFromDB(db)
	if err != nil {
		return nil, err
	}
	base := []Option{
		core.WithRepositoryFactory(factory),
		core.WithSenderFactory(HTTPSenderFactory(nil)),
	}
	return core.NewService(cfg, append(base, opts...)...)
}
