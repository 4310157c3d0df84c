package processing

import (
	"fmt"
	"maps"
	"os"

	"github.com/spf13/cast"
	"github.com/systemstart/many-etl/pkg/api"
	"gopkg.in/yaml.v3"
)

// LoadVariablesFile reads a flat YAML mapping of variable names to scalar
// values. Values are converted to strings.
func LoadVariablesFile(filename string) (map[string]string, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("reading variables file: %w", err)
	}

	var raw map[string]any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parsing variables file: %w", err)
	}

	vars := make(map[string]string, len(raw))
	for k, v := range raw {
		s, err := cast.ToStringE(v)
		if err != nil {
			return nil, fmt.Errorf("variable %q: %w", k, err)
		}
		vars[k] = s
	}
	return vars, nil
}

// MergeVariables performs a shallow merge of local variables over global ones.
func MergeVariables(global, local map[string]string) map[string]string {
	merged := make(map[string]string, len(global)+len(local))
	maps.Copy(merged, global)
	maps.Copy(merged, local)
	return merged
}

// ExpandConnectors replaces ${NAME} and $NAME references in every connector
// DSN and table of the pipeline. Names missing from vars fall back to the
// process environment. Queries are left alone so SQL placeholders survive.
func ExpandConnectors(p *api.Pipeline, vars map[string]string) {
	lookup := func(name string) string {
		if v, ok := vars[name]; ok {
			return v
		}
		return os.Getenv(name)
	}
	expand := func(c *api.ConnectorConfig) {
		if c == nil {
			return
		}
		c.DSN = os.Expand(c.DSN, lookup)
		c.Table = os.Expand(c.Table, lookup)
	}

	expand(p.Source)
	expand(p.Target)
	for id, c := range p.Sources {
		expand(&c)
		p.Sources[id] = c
	}
}
