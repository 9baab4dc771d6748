package schema

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/salesdesk/salesdesk/internal/query"
)

const introspectSQL = `SELECT table_name, column_name, data_type
FROM information_schema.columns
WHERE table_schema NOT IN ('information_schema', 'pg_catalog')
ORDER BY table_name, ordinal_position`

// Provider serves the schema description and business context. With an
// engine set, catalog entries without columns are filled in from
// information_schema on first use.
type Provider struct {
	catalog Catalog
	engine  query.Engine
	logger  *slog.Logger

	mu        sync.Mutex
	described string
}

func NewProvider(catalog Catalog, engine query.Engine, logger *slog.Logger) *Provider {
	if logger == nil {
		logger = slog.Default()
	}
	return &Provider{catalog: catalog, engine: engine, logger: logger}
}

func (p *Provider) Catalog() Catalog {
	return p.catalog
}

func (p *Provider) BusinessContext() string {
	return p.catalog.BusinessContext
}

// Describe returns the schema text. Introspection failures fall back to the
// catalog as written and are retried on the next call.
func (p *Provider) Describe(ctx context.Context) (string, error) {
	if p.engine == nil || !p.catalog.missingColumns() {
		return p.catalog.Text(), nil
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.described != "" {
		return p.described, nil
	}

	columns, err := Introspect(ctx, p.engine)
	if err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		p.logger.Warn("schema introspection failed, using static catalog", "error", err)
		return p.catalog.Text(), nil
	}
	p.described = p.catalog.withColumns(columns).Text()
	return p.described, nil
}

// Introspect lists columns per lower-cased table name.
func Introspect(ctx context.Context, engine query.Engine) (map[string][]Column, error) {
	result, err := engine.Execute(ctx, query.Request{SQL: introspectSQL})
	if err != nil {
		return nil, fmt.Errorf("introspect columns: %w", err)
	}
	columns := make(map[string][]Column)
	for _, row := range result.Rows {
		if len(row) < 3 {
			continue
		}
		table := strings.ToLower(query.FormatValue(row[0]))
		columns[table] = append(columns[table], Column{
			Name: query.FormatValue(row[1]),
			Type: strings.ToUpper(query.FormatValue(row[2])),
		})
	}
	return columns, nil
}

func (c Catalog) missingColumns() bool {
	for _, table := range c.Tables {
		if len(table.Columns) == 0 {
			return true
		}
	}
	return false
}

func (c Catalog) withColumns(columns map[string][]Column) Catalog {
	out := Catalog{BusinessContext: c.BusinessContext, Tables: make([]Table, len(c.Tables))}
	for i, table := range c.Tables {
		out.Tables[i] = table
		if len(table.Columns) == 0 {
			out.Tables[i].Columns = columns[strings.ToLower(table.Name)]
		}
	}
	return out
}
