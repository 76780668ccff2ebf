// Package split implements the Split Planner: given a query over a
// partitioned file-format source, it enumerates physical shards and emits
// one rewritten sub-query per shard.
package split

import "strings"

// Shard is one sub-query produced by partition planning. Its SQL is
// embedded verbatim into the SPLIT_SHARD ticket the corresponding
// FlightEndpoint carries.
type Shard struct {
	SQL string
}

func quoteFileGroup(files []string) string {
	if len(files) == 1 {
		return "'" + files[0] + "'"
	}
	quoted := make([]string, len(files))
	for i, f := range files {
		quoted[i] = "'" + f + "'"
	}
	return "[" + strings.Join(quoted, ", ") + "]"
}

// globRoot returns the longest path prefix of pattern that contains no
// glob metacharacters, used to tell "the directory doesn't exist" (fail
// with NotFound) apart from "the directory exists but nothing matched"
// (legal, empty shard list).
func globRoot(pattern string) string {
	if i := strings.IndexAny(pattern, "*?["); i >= 0 {
		pattern = pattern[:i]
	}
	if i := strings.LastIndexByte(pattern, '/'); i >= 0 {
		return pattern[:i]
	}
	return "."
}
