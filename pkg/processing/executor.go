package processing

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/systemstart/many-etl/pkg/api"
	"github.com/systemstart/many-etl/pkg/batch"
	"github.com/systemstart/many-etl/pkg/steps"
)

// DefaultPreviewRows is used when Options.PreviewRows is not positive.
const DefaultPreviewRows = 10

// Writer receives the final batch of a run that is not a preview.
type Writer interface {
	Write(ctx context.Context, b *batch.Batch) (int64, error)
}

// Options control a single run.
type Options struct {
	Preview     bool
	PreviewRows int // rows kept in a preview; negative means DefaultPreviewRows
	Env         steps.Env
	Writer      Writer
	RunID       string       // generated when empty
	Logger      *slog.Logger // slog.Default() when nil
}

// Run executes the enabled steps of pipeline over input in ascending order.
// It halts on the first failing step. The returned result is never nil; a
// failed run is reported through its Status, not through an error return.
func Run(ctx context.Context, pipeline *api.Pipeline, input *batch.Batch, opts Options) *ExecutionResult {
	if opts.RunID == "" {
		opts.RunID = uuid.NewString()
	}
	if opts.PreviewRows < 0 {
		opts.PreviewRows = DefaultPreviewRows
	}
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}
	log = log.With("run_id", opts.RunID, "pipeline", pipeline.Name)

	res := &ExecutionResult{
		RunID:       opts.RunID,
		Pipeline:    pipeline.Name,
		RowsInput:   input.Len(),
		StepMetrics: []StepMetric{},
		StartedAt:   time.Now().UTC(),
	}
	defer func() { res.FinishedAt = time.Now().UTC() }()

	ordered := pipeline.OrderedSteps()
	log.Info("running pipeline", "steps", len(ordered), "rows", input.Len(), "preview", opts.Preview)

	current := input
	for _, cfg := range ordered {
		next, metric, err := runStep(ctx, log, cfg, current, opts.Env)
		res.StepMetrics = append(res.StepMetrics, metric)
		if err != nil {
			res.FailedStepID = cfg.Identifier()
			res.RowsOutput = current.Len()
			res.fail(err, current.Len())
			if opts.Preview {
				res.preview(current, opts.PreviewRows)
			}
			log.Error("pipeline failed", "step", cfg.Name, "error", err)
			return res
		}
		current = next
	}
	res.RowsOutput = current.Len()

	if opts.Preview {
		res.preview(current, opts.PreviewRows)
		res.Status = StatusSuccess
		log.Info("preview finished", "rows", current.Len(), "previewRows", len(res.PreviewData))
		return res
	}

	if opts.Writer != nil {
		n, err := opts.Writer.Write(ctx, current)
		if err != nil {
			res.fail(fmt.Errorf("writing output: %w", err), current.Len())
			log.Error("pipeline failed", "error", err)
			return res
		}
		res.RowsWritten = n
	}

	res.Status = StatusSuccess
	log.Info("pipeline succeeded", "rows", current.Len(), "written", res.RowsWritten)
	return res
}

func runStep(ctx context.Context, log *slog.Logger, cfg api.StepConfig, in *batch.Batch, env steps.Env) (*batch.Batch, StepMetric, error) {
	metric := StepMetric{
		StepID:     cfg.ID,
		StepName:   cfg.Name,
		StepType:   cfg.Type,
		RowsBefore: in.Len(),
		RowsAfter:  in.Len(),
	}
	log.Info("running step", "step", cfg.Name, "type", cfg.Type, "rows", in.Len())

	start := time.Now()
	out, err := process(ctx, cfg, in, env)
	metric.DurationMS = time.Since(start).Milliseconds()
	if err != nil {
		metric.Error = err.Error()
		return nil, metric, &steps.TransformError{
			StepID:   cfg.Identifier(),
			StepName: cfg.Name,
			StepType: cfg.Type,
			Err:      err,
		}
	}

	metric.RowsAfter = out.Len()
	log.Debug("step finished", "step", cfg.Name, "rowsBefore", metric.RowsBefore, "rowsAfter", metric.RowsAfter, "durationMs", metric.DurationMS)
	return out, metric, nil
}

// process builds the step and applies it. Steps are built right before they
// run, so a configuration error fails only its own step.
func process(ctx context.Context, cfg api.StepConfig, in *batch.Batch, env steps.Env) (*batch.Batch, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("run cancelled: %w", err)
	}
	step, err := steps.NewStep(cfg, env)
	if err != nil {
		return nil, err
	}
	out, err := step.Process(ctx, in)
	if err != nil {
		return nil, err
	}
	if out == nil {
		return nil, fmt.Errorf("step returned no batch")
	}
	return out, nil
}

func (r *ExecutionResult) preview(b *batch.Batch, n int) {
	head := b.Head(n)
	r.Columns = head.Columns()
	r.PreviewData = head.Records()
}
