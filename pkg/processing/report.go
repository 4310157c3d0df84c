package processing

import (
	"time"

	"github.com/google/uuid"
)

// Run statuses.
const (
	StatusSuccess = "success"
	StatusFailed  = "failed"
)

// StepMetric records one executed step.
type StepMetric struct {
	StepID     string `json:"step_id,omitempty"`
	StepName   string `json:"step_name"`
	StepType   string `json:"step_type"`
	RowsBefore int    `json:"rows_before"`
	RowsAfter  int    `json:"rows_after"`
	DurationMS int64  `json:"duration_ms"`
	Error      string `json:"error,omitempty"`
}

// ExecutionResult is the outcome of one pipeline run.
type ExecutionResult struct {
	RunID        string           `json:"run_id"`
	Pipeline     string           `json:"pipeline"`
	Status       string           `json:"status"`
	RowsInput    int              `json:"rows_input"`
	RowsOutput   int              `json:"rows_output"`
	RowsError    int              `json:"rows_error"`
	RowsWritten  int64            `json:"rows_written"`
	StepMetrics  []StepMetric     `json:"step_metrics"`
	ErrorMessage string           `json:"error_message,omitempty"`
	FailedStepID string           `json:"failed_step_id,omitempty"`
	PreviewData  []map[string]any `json:"preview_data,omitempty"`
	Columns      []string         `json:"columns,omitempty"`
	StartedAt    time.Time        `json:"started_at"`
	FinishedAt   time.Time        `json:"finished_at"`

	// Err is the error that stopped the run. It is not serialised.
	Err error `json:"-"`
}

// Succeeded reports whether the run finished without error.
func (r *ExecutionResult) Succeeded() bool {
	return r.Status == StatusSuccess
}

// Duration is the wall time of the run.
func (r *ExecutionResult) Duration() time.Duration {
	return r.FinishedAt.Sub(r.StartedAt)
}

func (r *ExecutionResult) fail(err error, rowsError int) {
	r.Status = StatusFailed
	r.Err = err
	r.ErrorMessage = err.Error()
	r.RowsError = rowsError
}

// Aborted returns a failed result for a run of pipeline that stopped before
// any step ran, for example because its source could not be read.
func Aborted(pipeline, runID string, err error) *ExecutionResult {
	if runID == "" {
		runID = uuid.NewString()
	}
	now := time.Now().UTC()
	r := &ExecutionResult{
		RunID:       runID,
		Pipeline:    pipeline,
		StepMetrics: []StepMetric{},
		StartedAt:   now,
		FinishedAt:  now,
	}
	r.fail(err, 0)
	return r
}
