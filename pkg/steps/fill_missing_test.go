package steps

import (
	"context"
	"errors"
	"testing"

	"github.com/systemstart/many-etl/pkg/api"
	"github.com/systemstart/many-etl/pkg/batch"
)

func TestFillMissingStep_Strategies(t *testing.T) {
	tests := []struct {
		name   string
		fill   api.Fill
		row    int
		want   any
		column string
	}{
		{"value", api.Fill{Column: "salary", Strategy: api.FillValue, Value: 0}, 4, int64(0), "salary"},
		{"mean", api.Fill{Column: "salary", Strategy: api.FillMean}, 4, 6500.0, "salary"},
		{"median", api.Fill{Column: "salary", Strategy: api.FillMedian}, 4, 6500.0, "salary"},
		{"mode ties go to smallest", api.Fill{Column: "salary", Strategy: api.FillMode}, 4, int64(5000), "salary"},
		{"forward", api.Fill{Column: "phone", Strategy: api.FillForward}, 2, "13987654321", "phone"},
		{"backward", api.Fill{Column: "phone", Strategy: api.FillBackward}, 2, "13700001111", "phone"},
		{"value string", api.Fill{Column: "phone", Strategy: api.FillValue, Value: "unknown"}, 2, "unknown", "phone"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			step, err := NewFillMissingStep("f", &api.FillMissingConfig{Fills: []api.Fill{tt.fill}})
			if err != nil {
				t.Fatal(err)
			}
			in := hrBatch(t)
			out := run(t, step, in)
			if got, _ := out.Value(tt.row, tt.column); got != tt.want {
				t.Errorf("got %v (%T), want %v (%T)", got, got, tt.want, tt.want)
			}
			if v, _ := in.Value(tt.row, tt.column); v != nil {
				t.Errorf("input batch was modified: %v", v)
			}
			for _, v := range column(t, out, tt.column) {
				if v == nil {
					t.Errorf("null left in %s", tt.column)
				}
			}
		})
	}
}

func TestFillMissingStep_EdgeNulls(t *testing.T) {
	in := batch.MustNew([]string{"a", "b"}, [][]any{
		{nil, nil},
		{int64(2), nil},
		{nil, nil},
	})

	t.Run("forward leaves leading nulls", func(t *testing.T) {
		step, _ := NewFillMissingStep("f", &api.FillMissingConfig{Fills: []api.Fill{{Column: "a", Strategy: api.FillForward}}})
		out := run(t, step, in)
		got := column(t, out, "a")
		if got[0] != nil || got[1] != int64(2) || got[2] != int64(2) {
			t.Errorf("a = %v", got)
		}
	})

	t.Run("mean of all-null column stays null", func(t *testing.T) {
		step, _ := NewFillMissingStep("f", &api.FillMissingConfig{Fills: []api.Fill{{Column: "b", Strategy: api.FillMean}}})
		out := run(t, step, in)
		for _, v := range column(t, out, "b") {
			if v != nil {
				t.Errorf("expected null, got %v", v)
			}
		}
	})
}

func TestFillMissingStep_Errors(t *testing.T) {
	t.Run("mean on text", func(t *testing.T) {
		step, _ := NewFillMissingStep("f", &api.FillMissingConfig{Fills: []api.Fill{{Column: "phone", Strategy: api.FillMean}}})
		_, err := step.Process(context.Background(), hrBatch(t))
		var tm *TypeMismatchError
		if !errors.As(err, &tm) || tm.Column != "phone" {
			t.Fatalf("expected TypeMismatchError, got %v", err)
		}
	})

	t.Run("missing column", func(t *testing.T) {
		step, _ := NewFillMissingStep("f", &api.FillMissingConfig{Fills: []api.Fill{{Column: "age", Strategy: api.FillMode}}})
		_, err := step.Process(context.Background(), hrBatch(t))
		var cnf *ColumnNotFoundError
		if !errors.As(err, &cnf) {
			t.Fatalf("expected ColumnNotFoundError, got %v", err)
		}
	})
}

func TestFillMissingStep_FloatFillPromotesIntColumn(t *testing.T) {
	for _, strategy := range []string{api.FillMean, api.FillMedian} {
		t.Run(strategy, func(t *testing.T) {
			step, err := NewFillMissingStep("f", &api.FillMissingConfig{Fills: []api.Fill{{Column: "salary", Strategy: strategy}}})
			if err != nil {
				t.Fatal(err)
			}
			out := run(t, step, hrBatch(t))
			for i, v := range column(t, out, "salary") {
				if _, ok := v.(float64); !ok {
					t.Errorf("row %d: %v (%T), want float64", i, v, v)
				}
			}
			if v, _ := out.Value(0, "salary"); v != 5000.0 {
				t.Errorf("salary[0] = %v", v)
			}
		})
	}

	t.Run("mode keeps ints", func(t *testing.T) {
		step, _ := NewFillMissingStep("f", &api.FillMissingConfig{Fills: []api.Fill{{Column: "salary", Strategy: api.FillMode}}})
		out := run(t, step, hrBatch(t))
		for i, v := range column(t, out, "salary") {
			if _, ok := v.(int64); !ok {
				t.Errorf("row %d: %v (%T), want int64", i, v, v)
			}
		}
	})
}
