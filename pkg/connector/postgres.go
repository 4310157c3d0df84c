package connector

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/systemstart/many-etl/pkg/batch"
)

var postgresTypes = map[string]string{
	batch.TypeString:   "TEXT",
	batch.TypeInt:      "BIGINT",
	batch.TypeFloat:    "DOUBLE PRECISION",
	batch.TypeBool:     "BOOLEAN",
	batch.TypeDatetime: "TIMESTAMPTZ",
}

// Postgres is a connector backed by a pgx connection pool.
type Postgres struct {
	pool *pgxpool.Pool
}

// OpenPostgres connects to the database at dsn.
func OpenPostgres(ctx context.Context, dsn string) (*Postgres, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("pgxpool: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres: ping: %w", err)
	}
	return &Postgres{pool: pool}, nil
}

// Read implements Source.
func (p *Postgres) Read(ctx context.Context, tableOrQuery string, limit int) (*batch.Batch, error) {
	rows, err := p.pool.Query(ctx, selectSQL(tableOrQuery, limit))
	if err != nil {
		return nil, fmt.Errorf("postgres: query: %w", err)
	}
	defer rows.Close()

	fields := rows.FieldDescriptions()
	columns := make([]string, len(fields))
	for j, f := range fields {
		columns[j] = f.Name
	}

	var out [][]any
	for rows.Next() {
		values, err := rows.Values()
		if err != nil {
			return nil, fmt.Errorf("postgres: values: %w", err)
		}
		for j, v := range values {
			n, err := postgresValue(v)
			if err != nil {
				return nil, fmt.Errorf("postgres: column %q: %w", columns[j], err)
			}
			values[j] = n
		}
		out = append(out, values)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: reading rows: %w", err)
	}
	return batch.New(columns, out)
}

// Write implements Target using COPY. The table is created when missing.
func (p *Postgres) Write(ctx context.Context, b *batch.Batch, table string) (int64, error) {
	if b.Width() == 0 {
		return 0, fmt.Errorf("postgres: batch has no columns")
	}
	if _, err := p.pool.Exec(ctx, createTableSQL(b, table, postgresTypes)); err != nil {
		return 0, fmt.Errorf("postgres: create table: %w", err)
	}
	if b.Len() == 0 {
		return 0, nil
	}

	rows := make([][]any, b.Len())
	for i := range rows {
		rows[i] = b.Row(i)
	}
	n, err := p.pool.CopyFrom(ctx, splitFQN(table), b.Columns(), pgx.CopyFromRows(rows))
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Detail != "" {
			return 0, fmt.Errorf("postgres: copy: %s (%s)", pgErr.Detail, pgErr.SQLState())
		}
		return 0, fmt.Errorf("postgres: copy: %w", err)
	}
	return n, nil
}

// Close implements Connector.
func (p *Postgres) Close() error {
	p.pool.Close()
	return nil
}

// splitFQN converts "schema.table" into a pgx.Identifier.
func splitFQN(fqn string) pgx.Identifier {
	parts := strings.Split(fqn, ".")
	id := make(pgx.Identifier, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			id = append(id, p)
		}
	}
	return id
}

// postgresValue maps pgx decoded values that have no batch counterpart.
func postgresValue(v any) (any, error) {
	switch x := v.(type) {
	case pgtype.Numeric:
		f, err := x.Float64Value()
		if err != nil {
			return nil, err
		}
		if !f.Valid {
			return nil, nil
		}
		return f.Float64, nil
	case [16]byte:
		return uuid.UUID(x).String(), nil
	}
	return batch.Normalize(v)
}
