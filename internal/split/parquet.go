package split

import (
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/dazzleduck/flightsql-server/internal/svcerr"
)

// ParquetPlanner expands a read_parquet path glob via the filesystem and
// emits one shard per file, or per group of splitSize files when
// splitSize > 1.
type ParquetPlanner struct {
	// Glob and Stat are overridable for tests; they default to the real
	// filesystem.
	Glob func(pattern string) ([]string, error)
	Stat func(path string) (os.FileInfo, error)
}

// NewParquetPlanner builds a planner backed by the real filesystem.
func NewParquetPlanner() *ParquetPlanner {
	return &ParquetPlanner{Glob: filepath.Glob, Stat: os.Stat}
}

// Plan enumerates the files matching globPath and produces one Shard per
// group of up to splitSize files, each shard's SQL being sql with the
// quoted globPath literal replaced by the shard's own quoted file list.
func (p *ParquetPlanner) Plan(sql, globPath string, splitSize int) ([]Shard, error) {
	if splitSize <= 0 {
		splitSize = 1
	}

	files, err := p.Glob(globPath)
	if err != nil {
		return nil, svcerr.Wrap(svcerr.NotFound, err, "split: invalid glob %q", globPath)
	}
	if len(files) == 0 {
		if _, statErr := p.Stat(globRoot(globPath)); statErr != nil {
			return nil, svcerr.Wrap(svcerr.NotFound, statErr, "split: unreachable path %q", globPath)
		}
		return nil, nil
	}
	sort.Strings(files)

	literalPattern := "'" + globPath + "'"
	var shards []Shard
	for i := 0; i < len(files); i += splitSize {
		end := i + splitSize
		if end > len(files) {
			end = len(files)
		}
		group := files[i:end]
		shards = append(shards, Shard{
			SQL: strings.Replace(sql, literalPattern, quoteFileGroup(group), 1),
		})
	}
	return shards, nil
}
