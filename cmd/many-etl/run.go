package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"

	"github.com/google/uuid"
	"github.com/systemstart/many-etl/pkg/api"
	"github.com/systemstart/many-etl/pkg/connector"
	"github.com/systemstart/many-etl/pkg/history"
	"github.com/systemstart/many-etl/pkg/processing"
	"github.com/systemstart/many-etl/pkg/steps"
	"golang.org/x/sync/errgroup"
)

type runner struct {
	vars        map[string]string
	preview     bool
	previewRows int
	parallel    int
	history     *history.Store
	out         io.Writer
}

// runAll runs the pipelines with at most r.parallel at a time and writes one
// JSON report per pipeline to r.out, in input order. It returns the number of
// failed runs. The error is non-nil only when reports could not be written.
func (r *runner) runAll(ctx context.Context, pipelines []*api.Pipeline) (int, error) {
	results := make([]*processing.ExecutionResult, len(pipelines))

	g := new(errgroup.Group)
	g.SetLimit(r.parallel)
	for i, p := range pipelines {
		g.Go(func() error {
			results[i] = r.runPipeline(ctx, p)
			return nil
		})
	}
	_ = g.Wait()

	failed := 0
	enc := json.NewEncoder(r.out)
	enc.SetIndent("", "  ")
	for _, res := range results {
		if !res.Succeeded() {
			failed++
		}
		if err := enc.Encode(res); err != nil {
			return failed, fmt.Errorf("writing report: %w", err)
		}
	}
	return failed, nil
}

// runPipeline reads the source of p, runs its steps and writes the result to
// its target. Failures are reported in the returned result.
func (r *runner) runPipeline(ctx context.Context, p *api.Pipeline) *processing.ExecutionResult {
	runID := uuid.NewString()
	log := slog.With("run_id", runID, "pipeline", p.Name)

	res := r.execute(ctx, p, runID, log)
	if r.history != nil {
		if err := r.history.Save(ctx, res); err != nil {
			log.Warn("failed to save run history", "error", err)
		}
	}
	return res
}

func (r *runner) execute(ctx context.Context, p *api.Pipeline, runID string, log *slog.Logger) *processing.ExecutionResult {
	processing.ExpandConnectors(p, r.vars)

	if p.Source == nil {
		return processing.Aborted(p.Name, runID, fmt.Errorf("pipeline has no source"))
	}

	registry := connector.NewRegistry(p)
	defer func() {
		if err := registry.Close(); err != nil {
			log.Warn("failed to close connectors", "error", err)
		}
	}()

	src, err := registry.Connector(ctx, "")
	if err != nil {
		return processing.Aborted(p.Name, runID, err)
	}
	input, err := connector.ReadConfigured(ctx, src, *p.Source)
	if err != nil {
		return processing.Aborted(p.Name, runID, err)
	}
	log.Debug("read source", "connector", p.Source.Connector, "rows", input.Len())

	opts := processing.Options{
		Preview:     r.preview,
		PreviewRows: r.previewRows,
		Env:         steps.Env{JoinTables: registry},
		RunID:       runID,
		Logger:      slog.Default(),
	}

	if !r.preview {
		w, closeTarget, err := openTarget(ctx, p, registry)
		if err != nil {
			return processing.Aborted(p.Name, runID, err)
		}
		defer closeTarget()
		if w == nil {
			log.Warn("pipeline has no target, output is discarded")
		} else {
			opts.Writer = w
		}
	}

	return processing.Run(ctx, p, input, opts)
}

// openTarget returns a writer for the target of p. A target identical to the
// source reuses the source connection.
func openTarget(ctx context.Context, p *api.Pipeline, registry *connector.Registry) (processing.Writer, func(), error) {
	noop := func() {}
	if p.Target == nil {
		return nil, noop, nil
	}
	if p.Target.Connector == p.Source.Connector && p.Target.DSN == p.Source.DSN {
		c, err := registry.Connector(ctx, "")
		if err != nil {
			return nil, noop, err
		}
		return connector.TableWriter{Target: c, Table: p.Target.Table}, noop, nil
	}

	c, err := connector.Open(ctx, *p.Target)
	if err != nil {
		return nil, noop, fmt.Errorf("opening target: %w", err)
	}
	closeTarget := func() {
		if err := c.Close(); err != nil {
			slog.Warn("failed to close target", "error", err)
		}
	}
	return connector.TableWriter{Target: c, Table: p.Target.Table}, closeTarget, nil
}
