package steps

import (
	"fmt"
	"strings"

	"github.com/systemstart/many-etl/pkg/batch"
)

// ConfigurationError reports a missing or invalid step configuration.
type ConfigurationError struct {
	Err error
}

func (e *ConfigurationError) Error() string {
	return "invalid configuration: " + e.Err.Error()
}

func (e *ConfigurationError) Unwrap() error { return e.Err }

func configErrorf(format string, args ...any) error {
	return &ConfigurationError{Err: fmt.Errorf(format, args...)}
}

// ColumnNotFoundError reports a reference to a column absent from the batch.
type ColumnNotFoundError struct {
	Column    string
	Available []string
}

func (e *ColumnNotFoundError) Error() string {
	return fmt.Sprintf("column %q not found (available: %s)", e.Column, strings.Join(e.Available, ", "))
}

// CoercionError reports a cell that could not be converted to the target type.
type CoercionError struct {
	Column     string
	Row        int
	Value      any
	TargetType string
	Err        error
}

func (e *CoercionError) Error() string {
	return fmt.Sprintf("column %q row %d: cannot convert %s %q to %s: %v",
		e.Column, e.Row, batch.TypeName(e.Value), batch.Format(e.Value), e.TargetType, e.Err)
}

func (e *CoercionError) Unwrap() error { return e.Err }

// TypeMismatchError reports a value whose type the step cannot operate on.
type TypeMismatchError struct {
	Column string
	Row    int
	Err    error
}

func (e *TypeMismatchError) Error() string {
	if e.Row < 0 {
		return fmt.Sprintf("column %q: %v", e.Column, e.Err)
	}
	return fmt.Sprintf("column %q row %d: %v", e.Column, e.Row, e.Err)
}

func (e *TypeMismatchError) Unwrap() error { return e.Err }

// TransformError attaches step identity to the error that stopped a step.
type TransformError struct {
	StepID   string
	StepName string
	StepType string
	Err      error
}

func (e *TransformError) Error() string {
	return fmt.Sprintf("step %q (%s) failed: %v", e.StepName, e.StepType, e.Err)
}

func (e *TransformError) Unwrap() error { return e.Err }
