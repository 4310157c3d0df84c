package api

import (
	"fmt"
	"os"
	"path/filepath"
	"slices"

	"gopkg.in/yaml.v3"
)

// LoadPipeline reads a pipeline file, sets FilePath, and validates it.
// JSON definitions are accepted as well since JSON is valid YAML.
func LoadPipeline(filename string) (*Pipeline, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("reading pipeline file: %w", err)
	}

	p, err := ParsePipeline(data)
	if err != nil {
		return nil, fmt.Errorf("pipeline %s: %w", filename, err)
	}

	absPath, err := filepath.Abs(filename)
	if err != nil {
		return nil, fmt.Errorf("resolving absolute path: %w", err)
	}
	p.FilePath = absPath
	if p.Name == "" {
		p.Name = filepath.Base(filename)
	}

	return p, nil
}

// ParsePipeline decodes and validates a pipeline definition.
func ParsePipeline(data []byte) (*Pipeline, error) {
	var p Pipeline
	if err := yaml.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("parsing pipeline: %w", err)
	}

	if err := p.Validate(); err != nil {
		return nil, fmt.Errorf("validating pipeline: %w", err)
	}

	if p.JoinTimeout <= 0 {
		p.JoinTimeout = DefaultJoinTimeout
	}

	return &p, nil
}

// OrderedSteps returns the enabled steps sorted by ascending order. Steps
// with equal order keep their definition order.
func (p *Pipeline) OrderedSteps() []StepConfig {
	out := make([]StepConfig, 0, len(p.Steps))
	for _, s := range p.Steps {
		if s.IsEnabled() {
			out = append(out, s)
		}
	}
	slices.SortStableFunc(out, func(a, b StepConfig) int {
		return a.Order - b.Order
	})
	return out
}
