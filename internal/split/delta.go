package split

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/dazzleduck/flightsql-server/internal/svcerr"
)

// deltaAction mirrors the subset of a Delta transaction-log action we
// care about: which files are live in the current snapshot.
type deltaAction struct {
	Add    *struct{ Path string `json:"path"` } `json:"add,omitempty"`
	Remove *struct{ Path string `json:"path"` } `json:"remove,omitempty"`
}

// DeltaPlanner reads a Delta table's transaction log to obtain the current
// snapshot's add-file list and emits one shard per file.
type DeltaPlanner struct {
	ReadDir func(dir string) ([]os.DirEntry, error)
	Open    func(path string) (*os.File, error)
}

// NewDeltaPlanner builds a planner backed by the real filesystem.
func NewDeltaPlanner() *DeltaPlanner {
	return &DeltaPlanner{ReadDir: os.ReadDir, Open: os.Open}
}

// Plan replaces the read_delta(tablePath) literal in sql with a
// read_parquet invocation over the one data file each shard owns.
func (p *DeltaPlanner) Plan(sql, tablePath string) ([]Shard, error) {
	logDir := filepath.Join(tablePath, "_delta_log")
	entries, err := p.ReadDir(logDir)
	if err != nil {
		return nil, svcerr.Wrap(svcerr.NotFound, err, "split: unreachable delta log %q", logDir)
	}

	var commitFiles []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".json") {
			commitFiles = append(commitFiles, e.Name())
		}
	}
	sort.Strings(commitFiles)

	live := map[string]bool{}
	for _, name := range commitFiles {
		if err := p.applyCommit(filepath.Join(logDir, name), live); err != nil {
			return nil, err
		}
	}

	var files []string
	for f, present := range live {
		if present {
			files = append(files, f)
		}
	}
	if len(files) == 0 {
		return nil, nil
	}
	sort.Strings(files)

	literalPattern := "'" + tablePath + "'"
	shards := make([]Shard, 0, len(files))
	for _, f := range files {
		full := filepath.Join(tablePath, f)
		replacement := "read_parquet('" + full + "')"
		shards = append(shards, Shard{
			SQL: strings.Replace(sql, "read_delta("+literalPattern+")", replacement, 1),
		})
	}
	return shards, nil
}

func (p *DeltaPlanner) applyCommit(path string, live map[string]bool) error {
	f, err := p.Open(path)
	if err != nil {
		return svcerr.Wrap(svcerr.EngineFailure, err, "split: reading delta commit %q", path)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		var action deltaAction
		if err := json.Unmarshal([]byte(line), &action); err != nil {
			return svcerr.Wrap(svcerr.EngineFailure, err, "split: malformed delta commit line in %q", path)
		}
		if action.Add != nil {
			live[action.Add.Path] = true
		}
		if action.Remove != nil {
			live[action.Remove.Path] = false
		}
	}
	return scanner.Err()
}
