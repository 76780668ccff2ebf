package split

import (
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"github.com/dazzleduck/flightsql-server/internal/ast"
	"github.com/dazzleduck/flightsql-server/internal/svcerr"
)

// HiveInspector discovers partition-column names and SQL types for a
// Hive-laid-out read_parquet glob by sampling one matching file's path and
// reading the literal values out of its col=value segments. It implements
// authz.HiveInspector without this package importing authz, keeping the
// dependency direction leaf-ward (split is a collaborator of authz, not
// the other way around).
type HiveInspector struct {
	Glob func(pattern string) ([]string, error)
}

// NewHiveInspector builds an Inspector backed by the real filesystem.
func NewHiveInspector() *HiveInspector {
	return &HiveInspector{Glob: filepath.Glob}
}

var partitionSegment = regexp.MustCompile(`^([A-Za-z_][A-Za-z0-9_]*)=(.+)$`)
var datePattern = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)
var intPattern = regexp.MustCompile(`^-?\d+$`)

// Inspect samples one file matching pathGlob and infers a SQL type for
// each col=value path segment it finds: DATE for an ISO date-shaped value,
// BIGINT for an integer-shaped one, VARCHAR otherwise.
func (h *HiveInspector) Inspect(pathGlob string) (*ast.HivePartitionHint, error) {
	files, err := h.Glob(pathGlob)
	if err != nil {
		return nil, svcerr.Wrap(svcerr.NotFound, err, "split: invalid glob %q", pathGlob)
	}
	if len(files) == 0 {
		return &ast.HivePartitionHint{Types: map[string]string{}}, nil
	}
	sort.Strings(files)

	types := map[string]string{}
	for _, seg := range strings.Split(filepath.Dir(files[0]), string(filepath.Separator)) {
		m := partitionSegment.FindStringSubmatch(seg)
		if m == nil {
			continue
		}
		types[m[1]] = sqlTypeFor(m[2])
	}
	return &ast.HivePartitionHint{Types: types}, nil
}

func sqlTypeFor(value string) string {
	switch {
	case datePattern.MatchString(value):
		return "DATE"
	case intPattern.MatchString(value):
		return "BIGINT"
	default:
		return "VARCHAR"
	}
}
