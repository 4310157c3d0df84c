package connector

import (
	"context"

	"github.com/systemstart/many-etl/pkg/batch"
)

// TableWriter writes every batch it receives to one table of a Target.
type TableWriter struct {
	Target Target
	Table  string
}

// Write appends b to the configured table.
func (w TableWriter) Write(ctx context.Context, b *batch.Batch) (int64, error) {
	return w.Target.Write(ctx, b, w.Table)
}
