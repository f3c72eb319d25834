// Package verify recomputes fingerprints of stored snapshot files and
// reports every mismatch instead of stopping at the first.
package verify

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"sync"

	"github.com/sourcegraph/conc/pool"

	"github.com/pders01/snapsafe/internal/manifest"
	"github.com/pders01/snapsafe/internal/models"
)

// Problem classifies a verification finding.
type Problem string

const (
	CorruptedContent Problem = "CorruptedContent"
	MissingFile      Problem = "MissingFile"
	SizeMismatch     Problem = "SizeMismatch"
)

// Finding is one mismatch between a manifest entry and its store file.
type Finding struct {
	Path     string  `json:"path"`
	Problem  Problem `json:"problem"`
	Expected string  `json:"expected,omitempty"`
	Actual   string  `json:"actual,omitempty"`
}

// Report is the verification outcome of one snapshot. Err is set when the
// snapshot could not be checked at all (e.g. unreadable manifest).
type Report struct {
	ID       models.SnapshotID `json:"id"`
	Checked  int               `json:"checked"`
	Findings []Finding         `json:"findings"`
	Err      string            `json:"error,omitempty"`
}

// OK reports whether the snapshot verified clean
func (r *Report) OK() bool {
	return r.Err == "" && len(r.Findings) == 0
}

// Snapshot checks every store-backed entry of m. Store paths are resolved
// against controlDir; directory markers against dataDir. Only cancellation
// of ctx aborts the sweep.
func Snapshot(ctx context.Context, id models.SnapshotID, controlDir, dataDir string, m *manifest.Manifest, workers int) (*Report, error) {
	if workers < 1 {
		workers = 1
	}
	rep := &Report{ID: id, Findings: []Finding{}}

	var mu sync.Mutex
	add := func(f Finding) {
		mu.Lock()
		rep.Findings = append(rep.Findings, f)
		mu.Unlock()
	}

	p := pool.New().WithMaxGoroutines(workers).WithErrors().WithFirstError()
	for _, e := range m.Entries {
		if e.Kind == manifest.KindSymlink {
			continue
		}
		rep.Checked++
		e := e
		p.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			if f, bad := check(controlDir, dataDir, e); bad {
				add(f)
			}
			return nil
		})
	}
	if err := p.Wait(); err != nil {
		return nil, err
	}

	sort.Slice(rep.Findings, func(i, j int) bool { return rep.Findings[i].Path < rep.Findings[j].Path })
	return rep, nil
}

func check(controlDir, dataDir string, e manifest.Entry) (Finding, bool) {
	p := storePath(controlDir, dataDir, e)
	fi, err := os.Lstat(p)
	if errors.Is(err, fs.ErrNotExist) {
		return Finding{Path: e.Path, Problem: MissingFile}, true
	}
	if err != nil {
		return Finding{Path: e.Path, Problem: CorruptedContent, Actual: err.Error()}, true
	}

	if e.Kind == manifest.KindDir {
		if !fi.IsDir() {
			return Finding{Path: e.Path, Problem: CorruptedContent, Expected: "directory", Actual: fi.Mode().Type().String()}, true
		}
		return Finding{}, false
	}

	if !fi.Mode().IsRegular() {
		return Finding{Path: e.Path, Problem: CorruptedContent, Expected: "regular file", Actual: fi.Mode().Type().String()}, true
	}
	if fi.Size() != e.Size {
		return Finding{Path: e.Path, Problem: SizeMismatch, Expected: strconv.FormatInt(e.Size, 10), Actual: strconv.FormatInt(fi.Size(), 10)}, true
	}
	fp, err := manifest.FingerprintFile(p)
	if err != nil {
		return Finding{Path: e.Path, Problem: CorruptedContent, Actual: err.Error()}, true
	}
	if fp != e.Fingerprint {
		return Finding{Path: e.Path, Problem: CorruptedContent, Expected: e.Fingerprint, Actual: fp}, true
	}
	return Finding{}, false
}

// storePath locates an entry's data. Directory markers have no recorded
// store path and live under the snapshot's own data directory.
func storePath(controlDir, dataDir string, e manifest.Entry) string {
	if e.StorePath != "" {
		return filepath.Join(controlDir, filepath.FromSlash(e.StorePath))
	}
	return filepath.Join(dataDir, filepath.FromSlash(e.Path))
}
