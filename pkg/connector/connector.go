// Package connector reads batches from and writes batches to external stores.
// Supported connectors are SQLite, Postgres and CSV directories.
package connector

import (
	"context"
	"fmt"
	"strings"

	"github.com/systemstart/many-etl/pkg/api"
	"github.com/systemstart/many-etl/pkg/batch"
)

// Source reads a table, or the result of a query, into a batch. A limit of
// zero or less means no limit.
type Source interface {
	Read(ctx context.Context, tableOrQuery string, limit int) (*batch.Batch, error)
}

// Target appends a batch to a table and returns the number of rows written.
type Target interface {
	Write(ctx context.Context, b *batch.Batch, table string) (int64, error)
}

// Connector is an open connection to one store.
type Connector interface {
	Source
	Target
	Close() error
}

// Open connects to the store described by cfg.
func Open(ctx context.Context, cfg api.ConnectorConfig) (Connector, error) {
	switch cfg.Connector {
	case api.ConnectorSQLite:
		return OpenSQLite(ctx, cfg.DSN)
	case api.ConnectorPostgres:
		return OpenPostgres(ctx, cfg.DSN)
	case api.ConnectorCSV:
		return OpenCSV(cfg.DSN)
	default:
		return nil, fmt.Errorf("unknown connector: %s", cfg.Connector)
	}
}

// ReadConfigured reads the query of cfg, or its table when no query is set,
// honouring cfg.Limit.
func ReadConfigured(ctx context.Context, src Source, cfg api.ConnectorConfig) (*batch.Batch, error) {
	what := cfg.Query
	if what == "" {
		what = cfg.Table
	}
	b, err := src.Read(ctx, what, cfg.Limit)
	if err != nil {
		return nil, fmt.Errorf("reading %s source: %w", cfg.Connector, err)
	}
	return b, nil
}

// isQuery reports whether s is SQL text rather than a table name.
func isQuery(s string) bool {
	return strings.ContainsAny(strings.TrimSpace(s), " \t\r\n")
}

// quoteIdent double-quotes each dot separated part of a table or column name.
func quoteIdent(name string) string {
	parts := strings.Split(name, ".")
	for i, p := range parts {
		parts[i] = `"` + strings.ReplaceAll(p, `"`, `""`) + `"`
	}
	return strings.Join(parts, ".")
}

// quoteColumn quotes a single column name. Dots are part of the name.
func quoteColumn(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

// selectSQL builds the statement used to read tableOrQuery.
func selectSQL(tableOrQuery string, limit int) string {
	from := quoteIdent(strings.TrimSpace(tableOrQuery))
	if isQuery(tableOrQuery) {
		from = "(" + strings.TrimRight(strings.TrimSpace(tableOrQuery), ";") + ") AS src"
	}
	q := "SELECT * FROM " + from
	if limit > 0 {
		q += fmt.Sprintf(" LIMIT %d", limit)
	}
	return q
}

// columnType picks a SQL column type from the first non-null value of column j.
func columnType(b *batch.Batch, j int, types map[string]string) string {
	for i := range b.Len() {
		if v := b.Row(i)[j]; v != nil {
			return types[batch.TypeName(v)]
		}
	}
	return types[batch.TypeString]
}

func createTableSQL(b *batch.Batch, table string, types map[string]string) string {
	defs := make([]string, b.Width())
	for j, c := range b.Columns() {
		defs[j] = quoteColumn(c) + " " + columnType(b, j, types)
	}
	return fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (%s)", quoteIdent(table), strings.Join(defs, ", "))
}
