package sqlstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/goliatone/go-webhooks/core"
	"github.com/uptrace/bun"
)

const defaultIDColumn = "id"

// RecordLoader reads a single entity row by primary key into a core.Record.
// Document columns are decoded so property paths can navigate into them.
type RecordLoader struct {
	db        *bun.DB
	schemas   *SchemaProvider
	idColumns map[string]string
}

type RecordLoaderOption func(*RecordLoader)

// WithIDColumn overrides the key column used for table. The default is "id".
func WithIDColumn(table string, column string) RecordLoaderOption {
	return func(l *RecordLoader) {
		table = strings.ToLower(strings.TrimSpace(table))
		column = strings.TrimSpace(column)
		if table == "" || column == "" {
			return
		}
		l.idColumns[table] = column
	}
}

func NewRecordLoader(db *bun.DB, schemas *SchemaProvider, opts ...RecordLoaderOption) (*RecordLoader, error) {
	if db == nil {
		return nil, fmt.Errorf("sqlstore: bun db is required")
	}
	loader := &RecordLoader{db: db, schemas: schemas, idColumns: map[string]string{}}
	for _, opt := range opts {
		if opt != nil {
			opt(loader)
		}
	}
	for table, column := range loader.idColumns {
		if !identifierPattern.MatchString(column) {
			return nil, fmt.Errorf("sqlstore: id column %q for table %q is invalid", column, table)
		}
	}
	return loader, nil
}

func (l *RecordLoader) Load(ctx context.Context, table string, id string) (core.Record, error) {
	if l == nil || l.db == nil {
		return core.Record{}, fmt.Errorf("sqlstore: record loader is not configured")
	}
	table = strings.TrimSpace(table)
	id = strings.TrimSpace(id)
	if !identifierPattern.MatchString(table) {
		return core.Record{}, fmt.Errorf("sqlstore: table name %q is invalid", table)
	}
	if id == "" {
		return core.Record{}, fmt.Errorf("sqlstore: record id is required")
	}
	idColumn := l.idColumn(table)

	row := map[string]any{}
	err := l.db.NewSelect().
		TableExpr("?", bun.Ident(table)).
		ColumnExpr("*").
		Where("? = ?", bun.Ident(idColumn), id).
		Limit(1).
		Scan(ctx, &row)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Record{}, fmt.Errorf("%w: %s#%s", core.ErrRecordNotFound, table, id)
	}
	if err != nil {
		return core.Record{}, err
	}
	if len(row) == 0 {
		return core.Record{}, fmt.Errorf("%w: %s#%s", core.ErrRecordNotFound, table, id)
	}

	documents := map[string]bool{}
	if l.schemas != nil {
		if found, err := l.schemas.documentColumns(ctx, table); err == nil {
			documents = found
		}
	}
	values := make(map[string]any, len(row))
	for column, value := range row {
		values[column] = normalizeColumnValue(value, documents[column])
	}
	return core.Record{Table: table, ID: id, Values: values}, nil
}

func (l *RecordLoader) idColumn(table string) string {
	if column, ok := l.idColumns[strings.ToLower(table)]; ok {
		return column
	}
	return defaultIDColumn
}

func normalizeColumnValue(value any, document bool) any {
	var raw string
	switch typed := value.(type) {
	case []byte:
		raw = string(typed)
	case string:
		raw = typed
	default:
		return value
	}
	if document {
		var decoded any
		if err := json.Unmarshal([]byte(raw), &decoded); err == nil {
			return decoded
		}
	}
	return raw
}
