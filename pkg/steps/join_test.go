package steps

import (
	"context"
	"errors"
	"reflect"
	"strings"
	"testing"

	"github.com/systemstart/many-etl/pkg/api"
	"github.com/systemstart/many-etl/pkg/batch"
)

func joinLeft() *batch.Batch {
	return batch.MustNew([]string{"id", "dept_id", "name"}, [][]any{
		{int64(1), int64(10), "Alice"},
		{int64(2), int64(20), "Bob"},
		{int64(3), int64(30), "Carol"},
		{int64(4), nil, "Dave"},
	})
}

func joinRight() *batch.Batch {
	return batch.MustNew([]string{"dept_id", "name", "floor"}, [][]any{
		{int64(10), "HR", int64(1)},
		{int64(20), "IT", int64(2)},
		{int64(40), "Legal", int64(4)},
	})
}

func newTestJoin(t *testing.T, cfg *api.JoinConfig, right *batch.Batch) (Step, *fakeLoader) {
	t.Helper()
	loader := &fakeLoader{tables: map[string]*batch.Batch{"depts": right}}
	cfg.JoinTable = api.TableRef{SourceID: "ref", Table: "depts"}
	step, err := NewJoinStep("j", cfg, loader)
	if err != nil {
		t.Fatal(err)
	}
	return step, loader
}

func TestJoinStep_RowCounts(t *testing.T) {
	const matched = 2
	left, right := joinLeft(), joinRight()

	tests := []struct {
		joinType string
		want     int
	}{
		{api.JoinInner, matched},
		{api.JoinLeft, left.Len()},
		{api.JoinRight, right.Len()},
		{api.JoinOuter, left.Len() + right.Len() - matched},
	}

	for _, tt := range tests {
		t.Run(tt.joinType, func(t *testing.T) {
			step, loader := newTestJoin(t, &api.JoinConfig{JoinType: tt.joinType, On: []string{"dept_id"}}, right)
			out := run(t, step, left)
			if out.Len() != tt.want {
				t.Fatalf("%s join: got %d rows, want %d", tt.joinType, out.Len(), tt.want)
			}
			if loader.calls != 1 {
				t.Errorf("expected one load per Process call, got %d", loader.calls)
			}
		})
	}
}

func TestJoinStep_ColumnsAndSuffixes(t *testing.T) {
	step, _ := newTestJoin(t, &api.JoinConfig{JoinType: api.JoinLeft, On: []string{"dept_id"}}, joinRight())
	out := run(t, step, joinLeft())

	want := []string{"id", "dept_id", "name_x", "name_y", "floor"}
	if got := out.Columns(); !reflect.DeepEqual(got, want) {
		t.Fatalf("columns = %v, want %v", got, want)
	}
	if got := column(t, out, "name_y"); !reflect.DeepEqual(got, []any{"HR", "IT", nil, nil}) {
		t.Errorf("name_y = %v", got)
	}
}

func TestJoinStep_CustomSuffixes(t *testing.T) {
	step, _ := newTestJoin(t, &api.JoinConfig{On: []string{"dept_id"}, Suffixes: []string{"_emp", "_dept"}}, joinRight())
	out := run(t, step, joinLeft())
	if !out.HasColumn("name_emp") || !out.HasColumn("name_dept") {
		t.Fatalf("unexpected columns %v", out.Columns())
	}
}

func TestJoinStep_RightAndOuterFillKeys(t *testing.T) {
	step, _ := newTestJoin(t, &api.JoinConfig{JoinType: api.JoinOuter, On: []string{"dept_id"}}, joinRight())
	out := run(t, step, joinLeft())

	// Unmatched right row comes last with its key merged into dept_id.
	last := out.Len() - 1
	if v, _ := out.Value(last, "dept_id"); v != int64(40) {
		t.Errorf("expected merged key 40, got %v", v)
	}
	if v, _ := out.Value(last, "id"); v != nil {
		t.Errorf("expected null left value, got %v", v)
	}
	// Null left key never matches and is kept by outer join.
	if v, _ := out.Value(3, "name_x"); v != "Dave" {
		t.Errorf("expected Dave row kept, got %v", v)
	}
}

func TestJoinStep_LeftOnRightOn(t *testing.T) {
	right := batch.MustNew([]string{"code", "label"}, [][]any{
		{int64(10), "HR"},
		{int64(30), "Ops"},
	})
	step, _ := newTestJoin(t, &api.JoinConfig{LeftOn: []string{"dept_id"}, RightOn: []string{"code"}}, right)
	out := run(t, step, joinLeft())

	want := []string{"id", "dept_id", "name", "code", "label"}
	if got := out.Columns(); !reflect.DeepEqual(got, want) {
		t.Fatalf("columns = %v, want %v", got, want)
	}
	if got := column(t, out, "label"); !reflect.DeepEqual(got, []any{"HR", "Ops"}) {
		t.Errorf("label = %v", got)
	}
}

func TestJoinStep_EmptyRightReturnsLeft(t *testing.T) {
	left := joinLeft()
	step, _ := newTestJoin(t, &api.JoinConfig{On: []string{"dept_id"}}, batch.Empty([]string{"dept_id"}))
	out := run(t, step, left)
	if !reflect.DeepEqual(out.Records(), left.Records()) || !reflect.DeepEqual(out.Columns(), left.Columns()) {
		t.Fatal("expected left batch unchanged")
	}
}

func TestJoinStep_MissingKeysIsConfigError(t *testing.T) {
	loader := &fakeLoader{}
	_, err := NewJoinStep("j", &api.JoinConfig{JoinTable: api.TableRef{Table: "depts"}}, loader)
	var ce *ConfigurationError
	if !errors.As(err, &ce) {
		t.Fatalf("expected ConfigurationError, got %v", err)
	}
	if loader.calls != 0 {
		t.Error("loader must not be called when configuration is invalid")
	}
}

func TestJoinStep_LoaderError(t *testing.T) {
	loader := &fakeLoader{err: errors.New("connection refused")}
	step, err := NewJoinStep("j", &api.JoinConfig{JoinTable: api.TableRef{SourceID: "ref", Table: "depts"}, On: []string{"dept_id"}}, loader)
	if err != nil {
		t.Fatal(err)
	}
	_, err = step.Process(context.Background(), joinLeft())
	if err == nil || !strings.Contains(err.Error(), "connection refused") {
		t.Fatalf("expected loader error, got %v", err)
	}
}

func TestJoinStep_MissingRightKey(t *testing.T) {
	right := batch.MustNew([]string{"other"}, [][]any{{int64(1)}})
	step, _ := newTestJoin(t, &api.JoinConfig{On: []string{"dept_id"}}, right)
	_, err := step.Process(context.Background(), joinLeft())
	var cnf *ColumnNotFoundError
	if !errors.As(err, &cnf) || cnf.Column != "dept_id" {
		t.Fatalf("expected ColumnNotFoundError, got %v", err)
	}
}
