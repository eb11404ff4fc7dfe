package sqlstore_test

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	persistence "github.com/goliatone/go-persistence-bun"
	"github.com/goliatone/go-webhooks/auth"
	"github.com/goliatone/go-webhooks/core"
	webhookmigrations "github.com/goliatone/go-webhooks/migrations"
	sqlstore "github.com/goliatone/go-webhooks/store/sql"
	"github.com/goliatone/go-webhooks/transport"
	_ "github.com/mattn/go-sqlite3"
	"github.com/uptrace/bun/dialect/sqlitedialect"
)

type testPersistenceConfig struct {
	driver string
	server string
}

func (c testPersistenceConfig) GetDebug() bool {
	return false
}

func (c testPersistenceConfig) GetDriver() string {
	return c.driver
}

func (c testPersistenceConfig) GetServer() string {
	return c.server
}

func (c testPersistenceConfig) GetPingTimeout() time.Duration {
	return time.Second
}

func (c testPersistenceConfig) GetOtelIdentifier() string {
	return "go-webhooks-tests"
}

func TestMigrationSmokeApplySQLite(t *testing.T) {
	client, cleanup := newSQLiteClient(t)
	defer cleanup()

	var tableName string
	if err := client.DB().NewRaw(
		"SELECT name FROM sqlite_master WHERE type = 'table' AND name = ?",
		"webhook_queue_entries",
	).Scan(context.Background(), &tableName); err != nil {
		t.Fatalf("query sqlite master: %v", err)
	}
	if tableName != "webhook_queue_entries" {
		t.Fatalf("expected webhook_queue_entries table, got %q", tableName)
	}
}

func TestDefinitionStore_SaveWebhookFlattensAndReplacesTree(t *testing.T) {
	ctx := context.Background()
	factory := newFactory(t)
	store := factory.DefinitionStore()

	event, err := store.SaveEvent(ctx, core.EventDefinition{Table: "Orders", Action: core.ActionUpdate, Active: true})
	if err != nil {
		t.Fatalf("save event: %v", err)
	}
	if event.ID == "" || event.CreatedAt.IsZero() {
		t.Fatalf("expected id and timestamps on saved event, got %+v", event)
	}
	active, err := store.ListActiveEvents(ctx, "orders", core.ActionUpdate)
	if err != nil {
		t.Fatalf("list active events: %v", err)
	}
	if len(active) != 1 || active[0].ID != event.ID {
		t.Fatalf("expected case insensitive match on table, got %+v", active)
	}
	if none, _ := store.ListActiveEvents(ctx, "orders", core.ActionDelete); len(none) != 0 {
		t.Fatalf("expected no delete events, got %+v", none)
	}

	webhook, err := store.SaveWebhook(ctx, core.WebhookDefinition{
		EventID:     event.ID,
		Name:        "order-updated",
		URL:         "https://example.test/orders/{orderId}",
		Method:      "post",
		PayloadKind: core.PayloadJSON,
		Active:      true,
		Nodes: []core.TemplateNode{
			{Name: "id", Position: 1, ValueSource: core.ValueSource{Kind: core.ValuePropertyPath, Expression: "id"}},
			{Name: "customer", Position: 2, IsGroup: true, Children: []core.TemplateNode{
				{Name: "name", Position: 1, ValueSource: core.ValueSource{
					Kind:       core.ValueComputed,
					Expression: "customer.name",
					Arguments:  []core.HandlerArgument{{Value: "@customer_id", Active: true}, {Value: "unused", Active: false}},
				}},
			}},
		},
		Params: []core.PathParam{
			{Name: "orderId", Placement: core.PlacementURLPath, Active: true, ValueSource: core.ValueSource{Kind: core.ValuePropertyPath, Expression: "id"}},
		},
	})
	if err != nil {
		t.Fatalf("save webhook: %v", err)
	}
	if webhook.Method != "POST" {
		t.Fatalf("expected method to be upper cased, got %q", webhook.Method)
	}

	loaded, err := store.GetWebhook(ctx, webhook.ID)
	if err != nil {
		t.Fatalf("get webhook: %v", err)
	}
	if len(loaded.Nodes) != 3 || len(loaded.Params) != 1 {
		t.Fatalf("expected 3 nodes and 1 param, got %d nodes %d params", len(loaded.Nodes), len(loaded.Params))
	}
	var group, child core.TemplateNode
	for _, node := range loaded.Nodes {
		switch node.Name {
		case "customer":
			group = node
		case "name":
			child = node
		}
	}
	if !group.IsGroup || child.ParentID != group.ID {
		t.Fatalf("expected child linked to group, group=%+v child=%+v", group, child)
	}
	if len(child.Arguments) != 2 || child.Arguments[1].Active {
		t.Fatalf("expected arguments with active flags to round trip, got %+v", child.Arguments)
	}
	tree, err := core.NewTemplateTree(loaded.Nodes)
	if err != nil {
		t.Fatalf("build tree from stored nodes: %v", err)
	}
	if tree == nil {
		t.Fatalf("expected tree")
	}

	loaded.Nodes = []core.TemplateNode{
		{Name: "id", ValueSource: core.ValueSource{Kind: core.ValuePropertyPath, Expression: "id"}},
	}
	loaded.Params = nil
	updated, err := store.SaveWebhook(ctx, loaded)
	if err != nil {
		t.Fatalf("resave webhook: %v", err)
	}
	if updated.ID != webhook.ID || len(updated.Nodes) != 1 || len(updated.Params) != 0 {
		t.Fatalf("expected nodes and params to be replaced, got %+v", updated)
	}
	if !updated.UpdatedAt.After(webhook.UpdatedAt) && !updated.UpdatedAt.Equal(webhook.UpdatedAt) {
		t.Fatalf("expected updated_at to move forward")
	}

	listed, err := store.ListWebhooksForEvent(ctx, event.ID)
	if err != nil {
		t.Fatalf("list webhooks: %v", err)
	}
	if len(listed) != 1 || len(listed[0].Nodes) != 1 {
		t.Fatalf("expected one webhook with one node, got %+v", listed)
	}

	if _, err := store.GetEvent(ctx, "missing"); !errors.Is(err, core.ErrDefinitionNotFound) {
		t.Fatalf("expected definition not found, got %v", err)
	}
	if _, err := store.GetWebhook(ctx, "missing"); !errors.Is(err, core.ErrDefinitionNotFound) {
		t.Fatalf("expected definition not found, got %v", err)
	}
}

func TestDefinitionStore_SaveTemplateNodeAndPathParam(t *testing.T) {
	ctx := context.Background()
	factory := newFactory(t)
	store := factory.DefinitionStore()

	event, err := store.SaveEvent(ctx, core.EventDefinition{Table: "orders", Action: core.ActionCreate, Active: true})
	if err != nil {
		t.Fatalf("save event: %v", err)
	}
	webhook, err := store.SaveWebhook(ctx, core.WebhookDefinition{EventID: event.ID, URL: "https://example.test", Active: true})
	if err != nil {
		t.Fatalf("save webhook: %v", err)
	}

	node, err := store.SaveTemplateNode(ctx, core.TemplateNode{
		WebhookID:   webhook.ID,
		Name:        "status",
		ValueSource: core.ValueSource{Kind: core.ValuePropertyPath, Expression: "status"},
	})
	if err != nil {
		t.Fatalf("save node: %v", err)
	}
	node.Name = "state"
	if _, err := store.SaveTemplateNode(ctx, node); err != nil {
		t.Fatalf("update node: %v", err)
	}
	if _, err := store.SavePathParam(ctx, core.PathParam{
		WebhookID:   webhook.ID,
		Name:        "X-Source",
		Placement:   core.PlacementHeader,
		Active:      true,
		ValueSource: core.ValueSource{Kind: core.ValueLiteral, Expression: "erp"},
	}); err != nil {
		t.Fatalf("save param: %v", err)
	}

	loaded, err := store.GetWebhook(ctx, webhook.ID)
	if err != nil {
		t.Fatalf("get webhook: %v", err)
	}
	if len(loaded.Nodes) != 1 || loaded.Nodes[0].Name != "state" {
		t.Fatalf("expected upserted node, got %+v", loaded.Nodes)
	}
	if len(loaded.Params) != 1 || loaded.Params[0].Placement != core.PlacementHeader {
		t.Fatalf("expected header param, got %+v", loaded.Params)
	}
	if !loaded.UpdatedAt.After(webhook.UpdatedAt) && !loaded.UpdatedAt.Equal(webhook.UpdatedAt) {
		t.Fatalf("expected webhook to be touched by node saves")
	}

	if _, err := store.SaveTemplateNode(ctx, core.TemplateNode{WebhookID: "missing", Name: "x"}); !errors.Is(err, core.ErrDefinitionNotFound) {
		t.Fatalf("expected unknown webhook to fail, got %v", err)
	}
}

func TestQueueStore_KeysetScanFailuresAndRequeue(t *testing.T) {
	ctx := context.Background()
	factory := newFactory(t)
	queue := factory.QueueStore()

	var ids []string
	for i := 1; i <= 3; i++ {
		entry, err := queue.Enqueue(ctx, core.QueueEntry{
			Table:    "orders",
			RecordID: fmt.Sprintf("%d", i),
			EventID:  "evt_1",
			Snapshot: map[string]any{"status": "open"},
		})
		if err != nil {
			t.Fatalf("enqueue %d: %v", i, err)
		}
		if entry.Status != core.QueueEntryPending {
			t.Fatalf("expected pending status, got %q", entry.Status)
		}
		ids = append(ids, entry.ID)
	}

	first, err := queue.ListPending(ctx, "", 2)
	if err != nil {
		t.Fatalf("list pending: %v", err)
	}
	if len(first) != 2 || first[0].ID != ids[0] || first[1].ID != ids[1] {
		t.Fatalf("expected first two entries in insertion order, got %+v", first)
	}
	if first[0].Snapshot["status"] != "open" {
		t.Fatalf("expected snapshot to round trip, got %+v", first[0].Snapshot)
	}
	rest, err := queue.ListPending(ctx, first[1].ID, 2)
	if err != nil {
		t.Fatalf("list pending after cursor: %v", err)
	}
	if len(rest) != 1 || rest[0].ID != ids[2] {
		t.Fatalf("expected remaining entry after cursor, got %+v", rest)
	}

	if err := queue.MarkFailed(ctx, ids[0], errors.New("receiver down"), false); err != nil {
		t.Fatalf("mark failed: %v", err)
	}
	if err := queue.MarkFailed(ctx, ids[0], errors.New("receiver still down"), true); err != nil {
		t.Fatalf("mark dead: %v", err)
	}
	dead, err := queue.List(ctx, core.QueueFilter{Status: core.QueueEntryDead})
	if err != nil {
		t.Fatalf("list dead: %v", err)
	}
	if dead.Total != 1 || dead.Items[0].Attempts != 2 || dead.Items[0].LastError != "receiver still down" {
		t.Fatalf("unexpected dead page %+v", dead)
	}
	pending, err := queue.ListPending(ctx, "", 0)
	if err != nil {
		t.Fatalf("list pending: %v", err)
	}
	if len(pending) != 2 {
		t.Fatalf("expected dead entry to leave the pending scan, got %d", len(pending))
	}

	requeued, err := queue.RequeueDead(ctx)
	if err != nil || requeued != 1 {
		t.Fatalf("expected one requeued entry, got %d err=%v", requeued, err)
	}
	page, err := queue.List(ctx, core.QueueFilter{Table: "orders", Limit: 2, Offset: 2})
	if err != nil {
		t.Fatalf("list page: %v", err)
	}
	if page.Total != 3 || len(page.Items) != 1 {
		t.Fatalf("expected total 3 with one item on the second page, got %+v", page)
	}

	if err := queue.Delete(ctx, ids[1]); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if err := queue.MarkFailed(ctx, ids[1], errors.New("gone"), false); !errors.Is(err, core.ErrRecordNotFound) {
		t.Fatalf("expected record not found for deleted entry, got %v", err)
	}
}

func TestRecordLoaderAndSchemaProvider(t *testing.T) {
	ctx := context.Background()
	client, cleanup := newSQLiteClient(t)
	defer cleanup()
	createOrdersTable(t, client)

	factory, err := sqlstore.NewRepositoryFactoryFromPersistence(client)
	if err != nil {
		t.Fatalf("new repository factory: %v", err)
	}

	record, err := factory.RecordLoader().Load(ctx, "orders", "42")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if record.Values["status"] != "shipped" {
		t.Fatalf("expected status column, got %+v", record.Values)
	}
	details, ok := record.Values["details"].(map[string]any)
	if !ok {
		t.Fatalf("expected document column to be decoded, got %T", record.Values["details"])
	}
	value, found := core.LookupProperty(record, "details.customer.name")
	if !found || core.Stringify(value) != "Ada" {
		t.Fatalf("expected nested path to resolve, got %v (details=%v)", value, details)
	}

	if _, err := factory.RecordLoader().Load(ctx, "orders", "404"); !errors.Is(err, core.ErrRecordNotFound) {
		t.Fatalf("expected record not found, got %v", err)
	}
	if _, err := factory.RecordLoader().Load(ctx, "orders; DROP TABLE orders", "42"); err == nil {
		t.Fatalf("expected invalid table name to be rejected")
	}

	schema, err := factory.SchemaProvider().Schema(ctx, "orders")
	if err != nil {
		t.Fatalf("schema: %v", err)
	}
	for _, path := range []string{"id", "status", "details", "details.customer.name"} {
		if !schema.HasPath(path) {
			t.Fatalf("expected schema to accept %q, fields=%v", path, schema.Fields)
		}
	}
	if schema.HasPath("status.code") || schema.HasPath("missing") {
		t.Fatalf("expected schema to reject unknown paths, fields=%v", schema.Fields)
	}
	if _, err := factory.SchemaProvider().Schema(ctx, "nope"); err == nil {
		t.Fatalf("expected unknown table to fail")
	}
}

func TestRecordLoader_CustomIDColumn(t *testing.T) {
	ctx := context.Background()
	client, cleanup := newSQLiteClient(t)
	defer cleanup()
	if _, err := client.DB().ExecContext(ctx,
		`CREATE TABLE stock_moves (move_no TEXT PRIMARY KEY, qty INTEGER NOT NULL)`,
	); err != nil {
		t.Fatalf("create table: %v", err)
	}
	if _, err := client.DB().ExecContext(ctx, `INSERT INTO stock_moves (move_no, qty) VALUES ('MV-1', 5)`); err != nil {
		t.Fatalf("insert: %v", err)
	}

	factory, err := sqlstore.NewRepositoryFactoryFromPersistence(client,
		sqlstore.WithRecordLoaderOptions(sqlstore.WithIDColumn("stock_moves", "move_no")),
	)
	if err != nil {
		t.Fatalf("new repository factory: %v", err)
	}
	record, err := factory.RecordLoader().Load(ctx, "stock_moves", "MV-1")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if core.Stringify(record.Values["qty"]) != "5" {
		t.Fatalf("expected qty 5, got %v", record.Values["qty"])
	}
}

func TestActionStore_UpsertByNameAndGrants(t *testing.T) {
	ctx := context.Background()
	factory := newFactory(t)
	actions := factory.ActionStore()

	saved, err := actions.SaveAction(ctx, core.ActionDefinition{
		Name:       "sync-stock",
		Handler:    "stock.sync",
		Parameters: []core.ActionParameter{{Name: "sku", Required: true}},
		Active:     true,
	})
	if err != nil {
		t.Fatalf("save action: %v", err)
	}
	again, err := actions.SaveAction(ctx, core.ActionDefinition{
		Name:        "sync-stock",
		Handler:     "stock.sync",
		Description: "Syncs stock levels",
		Active:      true,
	})
	if err != nil {
		t.Fatalf("resave action: %v", err)
	}
	if again.ID != saved.ID {
		t.Fatalf("expected upsert by name to keep id %q, got %q", saved.ID, again.ID)
	}

	loaded, err := actions.GetActionByName(ctx, "sync-stock")
	if err != nil {
		t.Fatalf("get action: %v", err)
	}
	if loaded.Description != "Syncs stock levels" || len(loaded.Parameters) != 0 {
		t.Fatalf("expected latest definition, got %+v", loaded)
	}
	if _, err := actions.GetActionByName(ctx, "missing"); !errors.Is(err, core.ErrDefinitionNotFound) {
		t.Fatalf("expected definition not found, got %v", err)
	}

	grant, err := actions.SaveGrant(ctx, core.AccessGrant{ActionID: saved.ID, RoleID: "role_ops"})
	if err != nil {
		t.Fatalf("save grant: %v", err)
	}
	duplicate, err := actions.SaveGrant(ctx, core.AccessGrant{ActionID: saved.ID, RoleID: "role_ops"})
	if err != nil {
		t.Fatalf("save duplicate grant: %v", err)
	}
	if duplicate.ID != grant.ID {
		t.Fatalf("expected grant save to be idempotent")
	}
	if _, err := actions.SaveGrant(ctx, core.AccessGrant{ActionID: saved.ID, TokenID: "tok_1"}); err != nil {
		t.Fatalf("save token grant: %v", err)
	}
	if _, err := actions.SaveGrant(ctx, core.AccessGrant{ActionID: saved.ID, TokenID: "tok_1", RoleID: "role_ops"}); err == nil {
		t.Fatalf("expected grant with both identities to fail")
	}
	grants, err := actions.ListGrants(ctx, saved.ID)
	if err != nil {
		t.Fatalf("list grants: %v", err)
	}
	if len(grants) != 2 {
		t.Fatalf("expected 2 grants, got %+v", grants)
	}
	listed, err := actions.ListActions(ctx)
	if err != nil || len(listed) != 1 {
		t.Fatalf("expected one action, got %+v err=%v", listed, err)
	}
}

func TestAPIKeyStore_IssueAuthenticateAndRevoke(t *testing.T) {
	ctx := context.Background()
	factory := newFactory(t)

	plaintext, saved, err := auth.IssueAPIKey(ctx, factory.APIKeyStore(), core.APIKey{UserID: "u_1", RoleID: "role_ops"})
	if err != nil {
		t.Fatalf("issue api key: %v", err)
	}
	if strings.Contains(saved.SecretHash, strings.SplitN(plaintext, ".", 2)[1]) {
		t.Fatalf("expected secret to be stored hashed")
	}

	authenticator, err := auth.NewAPIKeyAuthenticator(factory.APIKeyStore())
	if err != nil {
		t.Fatalf("new api key authenticator: %v", err)
	}
	actor, err := authenticator.Authenticate(ctx, core.Credentials{APIKey: plaintext})
	if err != nil {
		t.Fatalf("authenticate: %v", err)
	}
	if actor.TokenID != saved.ID || actor.UserID != "u_1" || actor.RoleID != "role_ops" {
		t.Fatalf("unexpected actor %+v", actor)
	}

	if err := factory.APIKeys().Revoke(ctx, saved.ID); err != nil {
		t.Fatalf("revoke: %v", err)
	}
	if _, err := authenticator.Authenticate(ctx, core.Credentials{APIKey: plaintext}); !core.IsErrorKind(err, core.ErrorUnauthenticated) {
		t.Fatalf("expected revoked key to be rejected, got %v", err)
	}
	if _, err := factory.APIKeyStore().GetAPIKey(ctx, "missing"); !errors.Is(err, core.ErrRecordNotFound) {
		t.Fatalf("expected record not found, got %v", err)
	}
}

func TestServiceDeliversFromSQLiteStores(t *testing.T) {
	ctx := context.Background()
	client, cleanup := newSQLiteClient(t)
	defer cleanup()
	createOrdersTable(t, client)

	var mu sync.Mutex
	var bodies []string
	var paths []string
	receiver := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		mu.Lock()
		bodies = append(bodies, string(body))
		paths = append(paths, r.URL.Path)
		mu.Unlock()
		w.WriteHeader(http.StatusNoContent)
	}))
	defer receiver.Close()

	factory := sqlstore.NewRepositoryFactory()
	svc, err := core.NewService(core.Config{},
		core.WithPersistenceClient(client),
		core.WithRepositoryFactory(factory),
		core.WithSenderFactory(transport.NewSenderFactory(receiver.Client())),
	)
	if err != nil {
		t.Fatalf("new service: %v", err)
	}

	event, err := svc.Definitions().SaveEvent(ctx, core.EventDefinition{Table: "orders", Action: core.ActionUpdate, Active: true})
	if err != nil {
		t.Fatalf("save event: %v", err)
	}
	if _, err := svc.Definitions().SaveWebhook(ctx, core.WebhookDefinition{
		EventID:     event.ID,
		URL:         receiver.URL + "/orders/{orderId}",
		Method:      "POST",
		PayloadKind: core.PayloadJSON,
		Active:      true,
		Nodes: []core.TemplateNode{
			{Name: "id", Position: 1, ValueSource: core.ValueSource{Kind: core.ValuePropertyPath, Expression: "id"}},
			{Name: "note", Position: 2, ValueSource: core.ValueSource{Kind: core.ValueLiteral, Expression: "status is @status"}},
		},
		Params: []core.PathParam{
			{Name: "orderId", Placement: core.PlacementURLPath, Active: true, ValueSource: core.ValueSource{Kind: core.ValuePropertyPath, Expression: "id"}},
		},
	}); err != nil {
		t.Fatalf("save webhook: %v", err)
	}
	if _, err := svc.Definitions().SaveWebhook(ctx, core.WebhookDefinition{
		EventID: event.ID,
		URL:     receiver.URL,
		Active:  true,
		Nodes: []core.TemplateNode{
			{Name: "bad", ValueSource: core.ValueSource{Kind: core.ValuePropertyPath, Expression: "no_such_column"}},
		},
	}); !core.IsErrorKind(err, core.ErrorTemplateInvalid) {
		t.Fatalf("expected unknown column to fail validation, got %v", err)
	}

	if err := svc.NotifyMutation(ctx, core.MutationEvent{Table: "orders", Action: core.ActionUpdate, RecordID: "42"}); err != nil {
		t.Fatalf("notify mutation: %v", err)
	}
	stats, err := svc.Drain(ctx)
	if err != nil {
		t.Fatalf("drain: %v", err)
	}
	if stats.Delivered != 1 {
		t.Fatalf("expected one delivery, got %+v", stats)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(bodies) != 1 || paths[0] != "/orders/42" {
		t.Fatalf("unexpected deliveries bodies=%v paths=%v", bodies, paths)
	}
	if bodies[0] != `{"id":"42","note":"status is shipped"}` {
		t.Fatalf("unexpected body %s", bodies[0])
	}
	page, err := svc.ListQueueEntries(ctx, core.QueueFilter{})
	if err != nil {
		t.Fatalf("list queue: %v", err)
	}
	if page.Total != 0 {
		t.Fatalf("expected delivered entry to be removed, got %+v", page)
	}
}

func newFactory(t *testing.T) *sqlstore.RepositoryFactory {
	t.Helper()
	client, cleanup := newSQLiteClient(t)
	t.Cleanup(cleanup)
	factory, err := sqlstore.NewRepositoryFactoryFromPersistence(client)
	if err != nil {
		t.Fatalf("new repository factory: %v", err)
	}
	return factory
}

func createOrdersTable(t *testing.T, client *persistence.Client) {
	t.Helper()
	ctx := context.Background()
	if _, err := client.DB().ExecContext(ctx, `CREATE TABLE orders (
		id TEXT PRIMARY KEY,
		status TEXT NOT NULL,
		amount INTEGER NOT NULL DEFAULT 0,
		details JSON
	)`); err != nil {
		t.Fatalf("create orders table: %v", err)
	}
	if _, err := client.DB().ExecContext(ctx,
		`INSERT INTO orders (id, status, amount, details) VALUES (?, ?, ?, ?)`,
		"42", "shipped", 1200, `{"customer":{"name":"Ada"}}`,
	); err != nil {
		t.Fatalf("insert order: %v", err)
	}
}

func newSQLiteClient(t *testing.T) (*persistence.Client, func()) {
	t.Helper()

	dsn := fmt.Sprintf(
		"file:webhooks-test-%d?mode=memory&cache=shared&_foreign_keys=on",
		time.Now().UnixNano(),
	)
	sqlDB, err := sql.Open("sqlite3", dsn)
	if err != nil {
		t.Fatalf("open sqlite db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)

	cfg := testPersistenceConfig{
		driver: "sqlite3",
		server: dsn,
	}
	client, err := persistence.New(cfg, sqlDB, sqlitedialect.New())
	if err != nil {
		_ = sqlDB.Close()
		t.Fatalf("new persistence client: %v", err)
	}

	ctx := context.Background()
	_, err = webhookmigrations.Register(ctx, func(_ context.Context, dialect string, _ string, fsys fs.FS) error {
		if dialect != webhookmigrations.DialectSQLite {
			return nil
		}
		client.RegisterSQLMigrations(fsys)
		return nil
	}, webhookmigrations.WithValidationTargets(webhookmigrations.DialectSQLite))
	if err != nil {
		_ = client.Close()
		t.Fatalf("register migrations: %v", err)
	}
	if err := client.Migrate(ctx); err != nil {
		_ = client.Close()
		t.Fatalf("migrate: %v", err)
	}

	return client, func() {
		_ = client.Close()
	}
}
