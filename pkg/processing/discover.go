package processing

import (
	"cmp"
	"fmt"
	"path/filepath"
	"slices"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/systemstart/many-etl/pkg/api"
)

// DiscoverPipelines expands a doublestar pattern such as "pipelines/**/*.yaml"
// and loads every matching file. Results are sorted by path depth (parents
// before children), then by path.
func DiscoverPipelines(pattern string) ([]*api.Pipeline, error) {
	if !doublestar.ValidatePathPattern(pattern) {
		return nil, fmt.Errorf("invalid pipeline pattern %q", pattern)
	}

	paths, err := doublestar.FilepathGlob(pattern, doublestar.WithFilesOnly())
	if err != nil {
		return nil, fmt.Errorf("expanding %q: %w", pattern, err)
	}

	slices.SortFunc(paths, func(a, b string) int {
		if d := pathDepth(a) - pathDepth(b); d != 0 {
			return d
		}
		return cmp.Compare(a, b)
	})

	return loadAll(paths)
}

func loadAll(paths []string) ([]*api.Pipeline, error) {
	pipelines := make([]*api.Pipeline, 0, len(paths))
	seen := make(map[string]string, len(paths))
	for _, p := range paths {
		pipeline, err := api.LoadPipeline(p)
		if err != nil {
			return nil, fmt.Errorf("loading %s: %w", p, err)
		}
		if prev, ok := seen[pipeline.Name]; ok {
			return nil, fmt.Errorf("pipeline name %q used by both %s and %s", pipeline.Name, prev, p)
		}
		seen[pipeline.Name] = p
		pipelines = append(pipelines, pipeline)
	}
	return pipelines, nil
}

func pathDepth(p string) int {
	p = filepath.Clean(p)
	if p == "." {
		return 0
	}
	return strings.Count(filepath.ToSlash(p), "/") + 1
}
