package sqlstore

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/goliatone/go-webhooks/core"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect"
)

var identifierPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*(\.[A-Za-z_][A-Za-z0-9_]*)?$`)

type columnInfo struct {
	Name string `bun:"name"`
	Type string `bun:"type"`
}

func (c columnInfo) isDocument() bool {
	return strings.Contains(strings.ToLower(c.Type), "json")
}

// SchemaProvider reads column metadata from the database catalog. Document
// columns (json, jsonb) are described with a trailing ".*" so any nested
// path below them is accepted.
type SchemaProvider struct {
	db *bun.DB
}

func NewSchemaProvider(db *bun.DB) (*SchemaProvider, error) {
	if db == nil {
		return nil, fmt.Errorf("sqlstore: bun db is required")
	}
	return &SchemaProvider{db: db}, nil
}

func (p *SchemaProvider) Schema(ctx context.Context, table string) (core.EntitySchema, error) {
	if p == nil || p.db == nil {
		return core.EntitySchema{}, fmt.Errorf("sqlstore: schema provider is not configured")
	}
	columns, err := p.columns(ctx, table)
	if err != nil {
		return core.EntitySchema{}, err
	}
	fields := make([]string, 0, len(columns))
	for _, column := range columns {
		name := strings.ToLower(column.Name)
		fields = append(fields, name)
		if column.isDocument() {
			fields = append(fields, name+".*")
		}
	}
	sort.Strings(fields)
	return core.EntitySchema{Table: table, Fields: fields}, nil
}

// documentColumns returns the set of document typed columns of table.
func (p *SchemaProvider) documentColumns(ctx context.Context, table string) (map[string]bool, error) {
	columns, err := p.columns(ctx, table)
	if err != nil {
		return nil, err
	}
	out := make(map[string]bool)
	for _, column := range columns {
		if column.isDocument() {
			out[column.Name] = true
		}
	}
	return out, nil
}

func (p *SchemaProvider) columns(ctx context.Context, table string) ([]columnInfo, error) {
	table = strings.TrimSpace(table)
	if !identifierPattern.MatchString(table) {
		return nil, fmt.Errorf("sqlstore: table name %q is invalid", table)
	}
	var columns []columnInfo
	switch p.db.Dialect().Name() {
	case dialect.SQLite:
		name := table
		if _, after, ok := strings.Cut(table, "."); ok {
			name = after
		}
		if err := p.db.NewRaw(
			"SELECT name, type FROM pragma_table_info(?) ORDER BY cid",
			name,
		).Scan(ctx, &columns); err != nil {
			return nil, err
		}
	case dialect.PG:
		schema, name, qualified := strings.Cut(table, ".")
		if !qualified {
			name = table
			schema = ""
		}
		query := p.db.NewRaw(
			"SELECT column_name AS name, data_type AS type FROM information_schema.columns "+
				"WHERE table_name = ? AND table_schema = current_schema() ORDER BY ordinal_position",
			name,
		)
		if schema != "" {
			query = p.db.NewRaw(
				"SELECT column_name AS name, data_type AS type FROM information_schema.columns "+
					"WHERE table_name = ? AND table_schema = ? ORDER BY ordinal_position",
				name, schema,
			)
		}
		if err := query.Scan(ctx, &columns); err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("sqlstore: schema lookup is not supported for dialect %s", p.db.Dialect().Name())
	}
	if len(columns) == 0 {
		return nil, fmt.Errorf("%w: table %q", core.ErrDefinitionNotFound, table)
	}
	return columns, nil
}
