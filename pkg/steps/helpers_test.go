package steps

import (
	"context"
	"testing"

	"github.com/systemstart/many-etl/pkg/batch"
)

// hrBatch returns a five row employee table used across step tests.
func hrBatch(t *testing.T) *batch.Batch {
	t.Helper()
	b, err := batch.New(
		[]string{"id", "name", "department", "salary", "phone"},
		[][]any{
			{int64(1), "Alice", "HR", int64(5000), "13812345678"},
			{int64(2), "Bob", "IT", int64(7000), "13987654321"},
			{int64(3), "Carol", "IT", int64(8000), nil},
			{int64(4), "Dave", "Sales", int64(6000), "13700001111"},
			{int64(5), "Eve", "Sales", nil, "13600002222"},
		},
	)
	if err != nil {
		t.Fatal(err)
	}
	return b
}

// column returns every value of a column, failing the test if it is absent.
func column(t *testing.T, b *batch.Batch, name string) []any {
	t.Helper()
	if !b.HasColumn(name) {
		t.Fatalf("column %q not in %v", name, b.Columns())
	}
	out := make([]any, b.Len())
	for i := range out {
		out[i], _ = b.Value(i, name)
	}
	return out
}

// run processes in with step, failing the test on error.
func run(t *testing.T, step Step, in *batch.Batch) *batch.Batch {
	t.Helper()
	out, err := step.Process(context.Background(), in)
	if err != nil {
		t.Fatalf("%s: unexpected error: %v", step.Name(), err)
	}
	return out
}

type fakeLoader struct {
	tables map[string]*batch.Batch
	err    error
	calls  int
}

func (f *fakeLoader) LoadJoinTable(_ context.Context, _, table string) (*batch.Batch, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.tables[table], nil
}
