package main

import (
	"bytes"
	"context"
	"encoding/json"
	"path/filepath"
	"strings"
	"testing"

	"github.com/systemstart/many-etl/pkg/api"
	"github.com/systemstart/many-etl/pkg/connector"
	"github.com/systemstart/many-etl/pkg/history"
	"github.com/systemstart/many-etl/pkg/processing"
)

const pipelineYAML = `
name: it-staff
source:
  connector: sqlite
  dsn: ${DATA_DIR}/hr.db
  table: employees
target:
  connector: csv
  dsn: ${DATA_DIR}
  table: it_staff
steps:
  - id: s1
    name: only IT
    type: filter
    order: 1
    filter:
      conditions:
        - column: department
          operator: eq
          value: IT
  - id: s2
    name: add department label
    type: join
    order: 2
    join:
      join_table:
        source_id: ""
        table: departments
      join_type: left
      on: [dept_id]
  - id: s3
    name: mask phone
    type: mask
    order: 3
    mask:
      masks:
        - column: phone
          strategy: full
`

func setupData(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	ctx := context.Background()
	db, err := connector.OpenSQLite(ctx, filepath.Join(dir, "hr.db"))
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()
	for _, s := range []string{
		`CREATE TABLE employees (id INTEGER, name TEXT, department TEXT, dept_id INTEGER, phone TEXT)`,
		`INSERT INTO employees VALUES (1, 'Alice', 'HR', 10, '13812345678')`,
		`INSERT INTO employees VALUES (2, 'Bob', 'IT', 20, '13987654321')`,
		`INSERT INTO employees VALUES (3, 'Carol', 'IT', 20, NULL)`,
		`CREATE TABLE departments (dept_id INTEGER, label TEXT)`,
		`INSERT INTO departments VALUES (10, 'Human Resources'), (20, 'Engineering')`,
	} {
		if err := db.Exec(ctx, s); err != nil {
			t.Fatal(err)
		}
	}
	return dir
}

func decodeReports(t *testing.T, data []byte) []processing.ExecutionResult {
	t.Helper()
	var out []processing.ExecutionResult
	dec := json.NewDecoder(bytes.NewReader(data))
	for dec.More() {
		var r processing.ExecutionResult
		if err := dec.Decode(&r); err != nil {
			t.Fatal(err)
		}
		out = append(out, r)
	}
	return out
}

func TestRunner_RunAll(t *testing.T) {
	dir := setupData(t)
	p, err := api.ParsePipeline([]byte(pipelineYAML))
	if err != nil {
		t.Fatal(err)
	}
	store, err := history.Open(context.Background(), filepath.Join(dir, "history.db"))
	if err != nil {
		t.Fatal(err)
	}
	defer store.Close()

	var out bytes.Buffer
	r := &runner{
		vars:     map[string]string{"DATA_DIR": dir},
		parallel: 2,
		history:  store,
		out:      &out,
	}
	failed, err := r.runAll(context.Background(), []*api.Pipeline{p})
	if err != nil {
		t.Fatal(err)
	}
	if failed != 0 {
		t.Fatalf("expected no failures, got %d: %s", failed, out.String())
	}

	reports := decodeReports(t, out.Bytes())
	if len(reports) != 1 {
		t.Fatalf("expected 1 report, got %d", len(reports))
	}
	rep := reports[0]
	if rep.RowsInput != 3 || rep.RowsOutput != 2 || rep.RowsWritten != 2 || len(rep.StepMetrics) != 3 {
		t.Errorf("unexpected report %+v", rep)
	}

	csv, err := connector.OpenCSV(dir)
	if err != nil {
		t.Fatal(err)
	}
	written, err := csv.Read(context.Background(), "it_staff", 0)
	if err != nil {
		t.Fatal(err)
	}
	if written.Len() != 2 {
		t.Fatalf("expected 2 written rows, got %d", written.Len())
	}
	if v, _ := written.Value(0, "phone"); v != "****" {
		t.Errorf("Bob's phone should be masked, got %v", v)
	}
	for i := range written.Len() {
		if v, _ := written.Value(i, "label"); v != "Engineering" {
			t.Errorf("row %d label = %v", i, v)
		}
		if v, _ := written.Value(i, "phone"); v != nil && v != "****" {
			t.Errorf("row %d phone = %v", i, v)
		}
	}

	saved, err := store.Get(context.Background(), rep.RunID)
	if err != nil {
		t.Fatalf("run not saved: %v", err)
	}
	if saved.Status != processing.StatusSuccess || len(saved.StepMetrics) != 3 {
		t.Errorf("unexpected saved run %+v", saved)
	}
}

func TestRunner_PreviewSkipsTarget(t *testing.T) {
	dir := setupData(t)
	p, err := api.ParsePipeline([]byte(pipelineYAML))
	if err != nil {
		t.Fatal(err)
	}

	var out bytes.Buffer
	r := &runner{
		vars:        map[string]string{"DATA_DIR": dir},
		preview:     true,
		previewRows: 1,
		parallel:    1,
		out:         &out,
	}
	if failed, err := r.runAll(context.Background(), []*api.Pipeline{p}); err != nil || failed != 0 {
		t.Fatalf("got %d failed, %v", failed, err)
	}
	rep := decodeReports(t, out.Bytes())[0]
	if len(rep.PreviewData) != 1 || rep.RowsWritten != 0 {
		t.Errorf("unexpected preview report %+v", rep)
	}

	csv, err := connector.OpenCSV(dir)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := csv.Read(context.Background(), "it_staff", 0); err == nil {
		t.Error("preview must not write the target")
	}
}

func TestRunner_Failures(t *testing.T) {
	dir := setupData(t)

	badStep, err := api.ParsePipeline([]byte(strings.Replace(pipelineYAML, "column: department", "column: dept", 1)))
	if err != nil {
		t.Fatal(err)
	}
	badSource, err := api.ParsePipeline([]byte(strings.Replace(pipelineYAML, "table: employees", "table: nope", 1)))
	if err != nil {
		t.Fatal(err)
	}
	badSource.Name = "bad-source"

	var out bytes.Buffer
	r := &runner{vars: map[string]string{"DATA_DIR": dir}, parallel: 2, out: &out}
	failed, err := r.runAll(context.Background(), []*api.Pipeline{badStep, badSource})
	if err != nil {
		t.Fatal(err)
	}
	if failed != 2 {
		t.Fatalf("expected 2 failures, got %d", failed)
	}

	reports := decodeReports(t, out.Bytes())
	if reports[0].FailedStepID != "s1" || reports[0].RowsError != 3 {
		t.Errorf("unexpected step failure report %+v", reports[0])
	}
	if reports[1].Pipeline != "bad-source" || len(reports[1].StepMetrics) != 0 || reports[1].ErrorMessage == "" {
		t.Errorf("unexpected source failure report %+v", reports[1])
	}
}
