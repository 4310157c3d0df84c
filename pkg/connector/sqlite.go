package connector

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/systemstart/many-etl/pkg/batch"
	_ "modernc.org/sqlite"
)

var sqliteTypes = map[string]string{
	batch.TypeString:   "TEXT",
	batch.TypeInt:      "INTEGER",
	batch.TypeFloat:    "REAL",
	batch.TypeBool:     "BOOLEAN",
	batch.TypeDatetime: "DATETIME",
}

// SQLite is a connector backed by a SQLite database file.
type SQLite struct {
	db *sql.DB
}

// OpenSQLite opens the database at dsn, for example "etl.db" or
// "file:etl.db?cache=shared".
func OpenSQLite(ctx context.Context, dsn string) (*SQLite, error) {
	if strings.TrimSpace(dsn) == "" {
		return nil, fmt.Errorf("sqlite: dsn must not be empty")
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("sqlite: open: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlite: ping: %w", err)
	}
	return &SQLite{db: db}, nil
}

// Read implements Source.
func (s *SQLite) Read(ctx context.Context, tableOrQuery string, limit int) (*batch.Batch, error) {
	b, err := queryBatch(ctx, s.db, selectSQL(tableOrQuery, limit))
	if err != nil {
		return nil, fmt.Errorf("sqlite: %w", err)
	}
	return b, nil
}

// Write implements Target. The table is created when it does not exist, with
// column types taken from the first non-null value of each column. Rows are
// inserted in a single transaction.
func (s *SQLite) Write(ctx context.Context, b *batch.Batch, table string) (int64, error) {
	if b.Width() == 0 {
		return 0, fmt.Errorf("sqlite: batch has no columns")
	}
	if _, err := s.db.ExecContext(ctx, createTableSQL(b, table, sqliteTypes)); err != nil {
		return 0, fmt.Errorf("sqlite: create table: %w", err)
	}
	if b.Len() == 0 {
		return 0, nil
	}

	columns := b.Columns()
	quoted := make([]string, len(columns))
	placeholders := make([]string, len(columns))
	for j, c := range columns {
		quoted[j] = quoteColumn(c)
		placeholders[j] = "?"
	}
	stmtSQL := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		quoteIdent(table), strings.Join(quoted, ", "), strings.Join(placeholders, ", "))

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("sqlite: begin tx: %w", err)
	}
	stmt, err := tx.PrepareContext(ctx, stmtSQL)
	if err != nil {
		_ = tx.Rollback()
		return 0, fmt.Errorf("sqlite: prepare insert: %w", err)
	}
	defer stmt.Close()

	var inserted int64
	for i := range b.Len() {
		if _, err := stmt.ExecContext(ctx, b.Row(i)...); err != nil {
			_ = tx.Rollback()
			return 0, fmt.Errorf("sqlite: insert row %d: %w", i, err)
		}
		inserted++
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("sqlite: commit: %w", err)
	}
	return inserted, nil
}

// Exec runs a statement, typically DDL or fixture data.
func (s *SQLite) Exec(ctx context.Context, query string, args ...any) error {
	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("sqlite: exec: %w", err)
	}
	return nil
}

// Close implements Connector.
func (s *SQLite) Close() error {
	return s.db.Close()
}

// queryBatch runs q and collects every row into a batch.
func queryBatch(ctx context.Context, db *sql.DB, q string) (*batch.Batch, error) {
	rows, err := db.QueryContext(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("query: %w", err)
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("columns: %w", err)
	}

	var out [][]any
	for rows.Next() {
		values := make([]any, len(columns))
		ptrs := make([]any, len(columns))
		for j := range values {
			ptrs[j] = &values[j]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("scan: %w", err)
		}
		for j, v := range values {
			n, err := batch.Normalize(v)
			if err != nil {
				return nil, fmt.Errorf("column %q: %w", columns[j], err)
			}
			values[j] = n
		}
		out = append(out, values)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("reading rows: %w", err)
	}
	return batch.New(columns, out)
}
