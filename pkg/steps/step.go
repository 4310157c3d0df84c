package steps

import (
	"context"

	"github.com/systemstart/many-etl/pkg/batch"
)

// Step is the interface all transform steps implement. Process must not
// modify its input batch.
type Step interface {
	Name() string
	Type() string
	Process(ctx context.Context, in *batch.Batch) (*batch.Batch, error)
}

// JoinTableLoader fetches the right-hand table of a join.
type JoinTableLoader interface {
	LoadJoinTable(ctx context.Context, sourceID, table string) (*batch.Batch, error)
}

// Env holds the collaborators steps may need at runtime.
type Env struct {
	JoinTables JoinTableLoader
}

type base struct {
	name string
	typ  string
}

func (b base) Name() string { return b.name }
func (b base) Type() string { return b.typ }

// requireColumns fails with a ColumnNotFoundError for the first missing column.
func requireColumns(b *batch.Batch, columns ...string) error {
	for _, c := range columns {
		if !b.HasColumn(c) {
			return &ColumnNotFoundError{Column: c, Available: b.Columns()}
		}
	}
	return nil
}
