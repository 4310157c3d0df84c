// Package history keeps a record of pipeline runs and their step metrics in a
// SQLite database.
package history

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/systemstart/many-etl/pkg/processing"
	_ "modernc.org/sqlite"
)

// ErrNotFound is returned by Get for an unknown run id.
var ErrNotFound = errors.New("run not found")

const schema = `
CREATE TABLE IF NOT EXISTS executions (
	run_id         TEXT PRIMARY KEY,
	pipeline       TEXT NOT NULL,
	status         TEXT NOT NULL,
	rows_input     INTEGER NOT NULL,
	rows_output    INTEGER NOT NULL,
	rows_error     INTEGER NOT NULL,
	rows_written   INTEGER NOT NULL,
	error_message  TEXT,
	failed_step_id TEXT,
	started_at     TEXT NOT NULL,
	finished_at    TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS executions_pipeline_started ON executions (pipeline, started_at);
CREATE TABLE IF NOT EXISTS step_metrics (
	run_id      TEXT NOT NULL REFERENCES executions (run_id) ON DELETE CASCADE,
	position    INTEGER NOT NULL,
	step_id     TEXT,
	step_name   TEXT NOT NULL,
	step_type   TEXT NOT NULL,
	rows_before INTEGER NOT NULL,
	rows_after  INTEGER NOT NULL,
	duration_ms INTEGER NOT NULL,
	error       TEXT,
	PRIMARY KEY (run_id, position)
);
`

// Store is a run history database.
type Store struct {
	db *sql.DB
}

// Open opens the history database at dsn and creates its tables.
func Open(ctx context.Context, dsn string) (*Store, error) {
	if strings.TrimSpace(dsn) == "" {
		return nil, fmt.Errorf("history: dsn must not be empty")
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("history: open: %w", err)
	}
	// One writer at a time; parallel pipelines serialise on the pool.
	db.SetMaxOpenConns(1)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("history: ping: %w", err)
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("history: creating tables: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Save records r and its step metrics. Saving a run id twice replaces the
// earlier record.
func (s *Store) Save(ctx context.Context, r *processing.ExecutionResult) error {
	if r.RunID == "" {
		return fmt.Errorf("history: result has no run id")
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("history: begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM step_metrics WHERE run_id = ?`, r.RunID); err != nil {
		return fmt.Errorf("history: clearing step metrics: %w", err)
	}
	_, err = tx.ExecContext(ctx, `INSERT OR REPLACE INTO executions
		(run_id, pipeline, status, rows_input, rows_output, rows_error, rows_written,
		 error_message, failed_step_id, started_at, finished_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.RunID, r.Pipeline, r.Status, r.RowsInput, r.RowsOutput, r.RowsError, r.RowsWritten,
		nullString(r.ErrorMessage), nullString(r.FailedStepID),
		formatTime(r.StartedAt), formatTime(r.FinishedAt))
	if err != nil {
		return fmt.Errorf("history: saving run %s: %w", r.RunID, err)
	}

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO step_metrics
		(run_id, position, step_id, step_name, step_type, rows_before, rows_after, duration_ms, error)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("history: prepare step insert: %w", err)
	}
	defer stmt.Close()

	for i, m := range r.StepMetrics {
		if _, err := stmt.ExecContext(ctx, r.RunID, i, nullString(m.StepID), m.StepName, m.StepType,
			m.RowsBefore, m.RowsAfter, m.DurationMS, nullString(m.Error)); err != nil {
			return fmt.Errorf("history: saving step %q: %w", m.StepName, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("history: commit: %w", err)
	}
	return nil
}

const selectExecution = `SELECT run_id, pipeline, status, rows_input, rows_output, rows_error,
	rows_written, error_message, failed_step_id, started_at, finished_at FROM executions`

// Get returns the run with the given id, including its step metrics.
func (s *Store) Get(ctx context.Context, runID string) (*processing.ExecutionResult, error) {
	rows, err := s.db.QueryContext(ctx, selectExecution+` WHERE run_id = ?`, runID)
	if err != nil {
		return nil, fmt.Errorf("history: %w", err)
	}
	results, err := scanExecutions(rows)
	if err != nil {
		return nil, err
	}
	if len(results) == 0 {
		return nil, fmt.Errorf("history: %s: %w", runID, ErrNotFound)
	}
	r := &results[0]
	if r.StepMetrics, err = s.stepMetrics(ctx, runID); err != nil {
		return nil, err
	}
	return r, nil
}

// Recent returns up to n runs of pipeline, newest first. An empty pipeline
// name matches every pipeline. Step metrics are included.
func (s *Store) Recent(ctx context.Context, pipeline string, n int) ([]processing.ExecutionResult, error) {
	if n <= 0 {
		return nil, nil
	}
	q := selectExecution
	var args []any
	if pipeline != "" {
		q += ` WHERE pipeline = ?`
		args = append(args, pipeline)
	}
	q += ` ORDER BY started_at DESC, run_id LIMIT ?`
	args = append(args, n)

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("history: %w", err)
	}
	results, err := scanExecutions(rows)
	if err != nil {
		return nil, err
	}
	for i := range results {
		if results[i].StepMetrics, err = s.stepMetrics(ctx, results[i].RunID); err != nil {
			return nil, err
		}
	}
	return results, nil
}

func (s *Store) stepMetrics(ctx context.Context, runID string) ([]processing.StepMetric, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT step_id, step_name, step_type, rows_before, rows_after,
		duration_ms, error FROM step_metrics WHERE run_id = ? ORDER BY position`, runID)
	if err != nil {
		return nil, fmt.Errorf("history: step metrics: %w", err)
	}
	defer rows.Close()

	metrics := []processing.StepMetric{}
	for rows.Next() {
		var m processing.StepMetric
		var stepID, stepErr sql.NullString
		if err := rows.Scan(&stepID, &m.StepName, &m.StepType, &m.RowsBefore, &m.RowsAfter,
			&m.DurationMS, &stepErr); err != nil {
			return nil, fmt.Errorf("history: scanning step metric: %w", err)
		}
		m.StepID = stepID.String
		m.Error = stepErr.String
		metrics = append(metrics, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("history: step metrics: %w", err)
	}
	return metrics, nil
}

func scanExecutions(rows *sql.Rows) ([]processing.ExecutionResult, error) {
	defer rows.Close()

	var out []processing.ExecutionResult
	for rows.Next() {
		var r processing.ExecutionResult
		var errMsg, failedStep sql.NullString
		var started, finished string
		if err := rows.Scan(&r.RunID, &r.Pipeline, &r.Status, &r.RowsInput, &r.RowsOutput,
			&r.RowsError, &r.RowsWritten, &errMsg, &failedStep, &started, &finished); err != nil {
			return nil, fmt.Errorf("history: scanning run: %w", err)
		}
		r.ErrorMessage = errMsg.String
		r.FailedStepID = failedStep.String

		var err error
		if r.StartedAt, err = parseTime(started); err != nil {
			return nil, err
		}
		if r.FinishedAt, err = parseTime(finished); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("history: reading runs: %w", err)
	}
	return out, nil
}

// timeLayout sorts lexically in time order.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("history: bad timestamp %q: %w", s, err)
	}
	return t, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
