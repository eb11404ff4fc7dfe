// Package sqlstore persists the webhook configuration graph, the dispatch
// queue, inbound actions, API keys and host throttle state with bun. Postgres
// and SQLite are supported through the migrations shipped in
// data/sql/migrations.
//
// RepositoryFactory builds every store from a go-persistence-bun client or a
// *bun.DB and satisfies core.StoreProvider, so it can be handed to
// core.WithRepositoryFactory directly.
package sqlstore
