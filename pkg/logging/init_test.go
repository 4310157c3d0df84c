package logging

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"strings"
	"testing"
)

func TestNew(t *testing.T) {
	tests := []struct {
		name      string
		logType   string
		level     string
		wantError string
	}{
		{"json/info", JSON, "info", ""},
		{"text/debug", Text, "debug", ""},
		{"tint/warn", Tint, "warn", ""},
		{"json/error", JSON, "error", ""},
		{"invalid level", JSON, "bogus", "could not parse log level"},
		{"unknown type", "unknown", "info", "unknown logging type"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			logger, err := New(io.Discard, tt.logType, tt.level)
			if tt.wantError != "" {
				if err == nil || !strings.Contains(err.Error(), tt.wantError) {
					t.Fatalf("expected error containing %q, got %v", tt.wantError, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if logger == nil {
				t.Fatal("expected logger")
			}
		})
	}
}

func TestNew_JSONOutputAndLevel(t *testing.T) {
	var buf bytes.Buffer
	logger, err := New(&buf, JSON, "warn")
	if err != nil {
		t.Fatal(err)
	}
	logger.Info("dropped")
	logger.Warn("step failed", "step", "s2", "rows", 5)

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 1 {
		t.Fatalf("expected 1 line, got %d: %q", len(lines), buf.String())
	}
	var rec map[string]any
	if err := json.Unmarshal([]byte(lines[0]), &rec); err != nil {
		t.Fatal(err)
	}
	if rec["msg"] != "step failed" || rec["step"] != "s2" || rec["rows"] != float64(5) {
		t.Errorf("unexpected record %v", rec)
	}
	if _, ok := rec["source"]; ok {
		t.Error("source should only be added at debug level")
	}
}

func TestInitialize(t *testing.T) {
	prev := slog.Default()
	t.Cleanup(func() { slog.SetDefault(prev) })

	var buf bytes.Buffer
	if err := Initialize(&buf, Text, "info"); err != nil {
		t.Fatal(err)
	}
	slog.Info("pipeline finished", "pipeline", "employees")
	if !strings.Contains(buf.String(), "pipeline=employees") {
		t.Errorf("default logger not installed: %q", buf.String())
	}

	if err := Initialize(&buf, "xml", "info"); err == nil {
		t.Error("expected error for unknown type")
	}
}
