package connector

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/systemstart/many-etl/pkg/api"
	"github.com/systemstart/many-etl/pkg/batch"
)

// Registry opens the named sources of a pipeline on first use and serves join
// tables from them. The pipeline's main source is registered under the empty
// id. A Registry is safe for concurrent use.
type Registry struct {
	configs map[string]api.ConnectorConfig
	timeout time.Duration

	mu   sync.Mutex
	open map[string]Connector
}

// NewRegistry builds a registry over the sources of p.
func NewRegistry(p *api.Pipeline) *Registry {
	configs := make(map[string]api.ConnectorConfig, len(p.Sources)+1)
	for id, c := range p.Sources {
		configs[id] = c
	}
	if p.Source != nil {
		if _, ok := configs[""]; !ok {
			configs[""] = *p.Source
		}
	}
	timeout := p.JoinTimeout
	if timeout <= 0 {
		timeout = api.DefaultJoinTimeout
	}
	return &Registry{configs: configs, timeout: timeout, open: make(map[string]Connector)}
}

// Connector returns the open connector for sourceID, opening it if needed.
func (r *Registry) Connector(ctx context.Context, sourceID string) (Connector, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if c, ok := r.open[sourceID]; ok {
		return c, nil
	}
	cfg, ok := r.configs[sourceID]
	if !ok {
		return nil, fmt.Errorf("unknown source %q", sourceID)
	}
	c, err := Open(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("opening source %q: %w", sourceID, err)
	}
	r.open[sourceID] = c
	return c, nil
}

// LoadJoinTable implements steps.JoinTableLoader. Loading is bounded by the
// pipeline's join timeout.
func (r *Registry) LoadJoinTable(ctx context.Context, sourceID, table string) (*batch.Batch, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	c, err := r.Connector(ctx, sourceID)
	if err != nil {
		return nil, err
	}
	start := time.Now()
	b, err := c.Read(ctx, table, 0)
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, fmt.Errorf("join table %q timed out after %s: %w", table, r.timeout, err)
		}
		return nil, err
	}
	slog.Debug("loaded join table", "source", sourceID, "table", table, "rows", b.Len(), "duration", time.Since(start))
	return b, nil
}

// Close closes every connector the registry opened.
func (r *Registry) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	var errs []error
	for id, c := range r.open {
		if err := c.Close(); err != nil {
			errs = append(errs, fmt.Errorf("closing source %q: %w", id, err))
		}
		delete(r.open, id)
	}
	return errors.Join(errs...)
}
