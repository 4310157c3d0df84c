package steps

import (
	"context"
	"errors"
	"math"
	"reflect"
	"testing"

	"github.com/systemstart/many-etl/pkg/api"
	"github.com/systemstart/many-etl/pkg/batch"
)

func TestAggregateStep_ByDepartment(t *testing.T) {
	step := NewAggregateStep("a", &api.AggregateConfig{
		GroupBy: []string{"department"},
		Aggregations: api.Aggregations{
			{Column: "id", Function: api.AggCount, As: "headcount"},
			{Column: "salary", Function: api.AggSum},
			{Column: "salary", Function: api.AggMean},
			{Column: "salary", Function: api.AggMax, As: "top"},
			{Column: "name", Function: api.AggMin},
		},
	})
	in := hrBatch(t)
	out := run(t, step, in)

	wantCols := []string{"department", "headcount", "salary", "salary_mean", "top", "name"}
	if got := out.Columns(); !reflect.DeepEqual(got, wantCols) {
		t.Fatalf("columns = %v, want %v", got, wantCols)
	}
	want := [][]any{
		{"HR", int64(1), int64(5000), 5000.0, int64(5000), "Alice"},
		{"IT", int64(2), int64(15000), 7500.0, int64(8000), "Bob"},
		{"Sales", int64(2), int64(6000), 6000.0, int64(6000), "Dave"},
	}
	for i, w := range want {
		if got := out.Row(i); !reflect.DeepEqual(got, w) {
			t.Errorf("row %d = %#v, want %#v", i, got, w)
		}
	}

	var total int64
	for _, v := range column(t, out, "headcount") {
		total += v.(int64)
	}
	if total != int64(in.Len()) {
		t.Errorf("counts sum to %d, want %d", total, in.Len())
	}
}

func TestAggregateStep_NullGroupAndFloatSum(t *testing.T) {
	in := batch.MustNew([]string{"k", "v"}, [][]any{
		{"a", 1.5},
		{nil, int64(2)},
		{"a", int64(1)},
		{nil, nil},
	})
	step := NewAggregateStep("a", &api.AggregateConfig{
		GroupBy:      []string{"k"},
		Aggregations: api.Aggregations{{Column: "v", Function: api.AggSum}},
	})
	out := run(t, step, in)
	if out.Len() != 2 {
		t.Fatalf("expected 2 groups, got %d", out.Len())
	}
	if got := out.Row(0); !reflect.DeepEqual(got, []any{"a", 2.5}) {
		t.Errorf("row 0 = %#v", got)
	}
	if got := out.Row(1); !reflect.DeepEqual(got, []any{nil, int64(2)}) {
		t.Errorf("row 1 = %#v", got)
	}
}

func TestAggregateStep_NoGroupBy(t *testing.T) {
	step := NewAggregateStep("a", &api.AggregateConfig{
		Aggregations: api.Aggregations{{Column: "id", Function: api.AggCount}},
	})
	if out := run(t, step, hrBatch(t)); out.Len() != 1 || out.Row(0)[0] != int64(5) {
		t.Errorf("expected single row with count 5, got %v", out.Records())
	}
	empty := batch.Empty([]string{"id"})
	if out := run(t, step, empty); out.Len() != 1 || out.Row(0)[0] != int64(0) {
		t.Errorf("expected single row with count 0, got %v", out.Records())
	}
}

func TestAggregateStep_Errors(t *testing.T) {
	tests := []struct {
		name    string
		cfg     *api.AggregateConfig
		wantErr any
	}{
		{
			name:    "missing group column",
			cfg:     &api.AggregateConfig{GroupBy: []string{"region"}, Aggregations: api.Aggregations{{Column: "id", Function: api.AggCount}}},
			wantErr: new(*ColumnNotFoundError),
		},
		{
			name:    "sum of text",
			cfg:     &api.AggregateConfig{GroupBy: []string{"department"}, Aggregations: api.Aggregations{{Column: "name", Function: api.AggSum}}},
			wantErr: new(*TypeMismatchError),
		},
		{
			name: "duplicate output name",
			cfg: &api.AggregateConfig{Aggregations: api.Aggregations{
				{Column: "salary", Function: api.AggSum, As: "x"},
				{Column: "salary", Function: api.AggMean, As: "x"},
			}},
			wantErr: new(*ConfigurationError),
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewAggregateStep("a", tt.cfg).Process(context.Background(), hrBatch(t))
			if err == nil || !errors.As(err, tt.wantErr) {
				t.Fatalf("expected %T, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestAggregateStep_IntegerSumOverflow(t *testing.T) {
	in := batch.MustNew([]string{"n"}, [][]any{{int64(math.MaxInt64)}, {int64(1)}})
	step := NewAggregateStep("a", &api.AggregateConfig{Aggregations: api.Aggregations{{Column: "n", Function: api.AggSum}}})

	_, err := step.Process(context.Background(), in)
	var tm *TypeMismatchError
	if !errors.As(err, &tm) || !errors.Is(err, errSumOverflow) {
		t.Fatalf("expected overflow error, got %v", err)
	}

	in = batch.MustNew([]string{"n"}, [][]any{{int64(math.MaxInt64)}, {int64(-1)}})
	out := run(t, step, in)
	if v, _ := out.Value(0, "n"); v != int64(math.MaxInt64-1) {
		t.Errorf("sum = %#v", v)
	}
}
