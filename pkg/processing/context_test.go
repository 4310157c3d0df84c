package processing

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/systemstart/many-etl/pkg/api"
)

func TestLoadVariablesFile(t *testing.T) {
	dir := t.TempDir()
	f := filepath.Join(dir, "vars.yaml")
	if err := os.WriteFile(f, []byte("DATA_DIR: /srv/data\nPORT: 5432\nDEBUG: true\n"), 0600); err != nil {
		t.Fatal(err)
	}

	vars, err := LoadVariablesFile(f)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := map[string]string{"DATA_DIR": "/srv/data", "PORT": "5432", "DEBUG": "true"}
	for k, v := range want {
		if vars[k] != v {
			t.Errorf("%s = %q, want %q", k, vars[k], v)
		}
	}
}

func TestLoadVariablesFile_Empty(t *testing.T) {
	dir := t.TempDir()
	f := filepath.Join(dir, "vars.yaml")
	if err := os.WriteFile(f, []byte(""), 0600); err != nil {
		t.Fatal(err)
	}

	vars, err := LoadVariablesFile(f)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if vars == nil || len(vars) != 0 {
		t.Errorf("expected empty non-nil map, got %v", vars)
	}
}

func TestLoadVariablesFile_Errors(t *testing.T) {
	dir := t.TempDir()
	invalid := filepath.Join(dir, "invalid.yaml")
	if err := os.WriteFile(invalid, []byte("{{invalid"), 0600); err != nil {
		t.Fatal(err)
	}
	nested := filepath.Join(dir, "nested.yaml")
	if err := os.WriteFile(nested, []byte("db:\n  host: x\n"), 0600); err != nil {
		t.Fatal(err)
	}

	for _, f := range []string{"/nonexistent/vars.yaml", invalid, nested} {
		if _, err := LoadVariablesFile(f); err == nil {
			t.Errorf("%s: expected error", f)
		}
	}
}

func TestMergeVariables(t *testing.T) {
	tests := []struct {
		name   string
		global map[string]string
		local  map[string]string
		want   map[string]string
	}{
		{
			name:   "local overrides global",
			global: map[string]string{"DSN": "global.db", "PORT": "1"},
			local:  map[string]string{"DSN": "local.db", "EXTRA": "x"},
			want:   map[string]string{"DSN": "local.db", "PORT": "1", "EXTRA": "x"},
		},
		{name: "nil global", local: map[string]string{"k": "v"}, want: map[string]string{"k": "v"}},
		{name: "nil local", global: map[string]string{"k": "v"}, want: map[string]string{"k": "v"}},
		{name: "both nil", want: map[string]string{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := MergeVariables(tt.global, tt.local)
			if len(got) != len(tt.want) {
				t.Fatalf("got %v, want %v", got, tt.want)
			}
			for k, v := range tt.want {
				if got[k] != v {
					t.Errorf("%s = %q, want %q", k, got[k], v)
				}
			}
		})
	}
}

func TestExpandConnectors(t *testing.T) {
	t.Setenv("MANY_ETL_TEST_HOST", "db.internal")

	p := &api.Pipeline{
		Source: &api.ConnectorConfig{Connector: api.ConnectorSQLite, DSN: "${DATA_DIR}/hr.db", Table: "employees_$YEAR", Query: "SELECT $1"},
		Target: &api.ConnectorConfig{Connector: api.ConnectorPostgres, DSN: "postgres://${MANY_ETL_TEST_HOST}/dw", Table: "out"},
		Sources: map[string]api.ConnectorConfig{
			"ref": {Connector: api.ConnectorCSV, DSN: "${DATA_DIR}/ref"},
		},
	}
	ExpandConnectors(p, map[string]string{"DATA_DIR": "/srv/data", "YEAR": "2024"})

	if p.Source.DSN != "/srv/data/hr.db" || p.Source.Table != "employees_2024" {
		t.Errorf("source = %+v", p.Source)
	}
	if p.Source.Query != "SELECT $1" {
		t.Errorf("query must not be expanded, got %q", p.Source.Query)
	}
	if p.Target.DSN != "postgres://db.internal/dw" {
		t.Errorf("target dsn = %q", p.Target.DSN)
	}
	if p.Sources["ref"].DSN != "/srv/data/ref" {
		t.Errorf("sources.ref dsn = %q", p.Sources["ref"].DSN)
	}
}
