// Package detect classifies working-tree paths against the previous
// snapshot's manifest, hashing content only when metadata disagrees.
package detect

import (
	"context"
	"sort"

	log "github.com/sirupsen/logrus"
	"github.com/sourcegraph/conc/pool"

	"github.com/pders01/snapsafe/internal/manifest"
	"github.com/pders01/snapsafe/internal/snaperr"
)

// Status is the classification of one path.
type Status int

const (
	Unchanged Status = iota
	Modified
	New
	Deleted
)

func (s Status) String() string {
	switch s {
	case Unchanged:
		return "unchanged"
	case Modified:
		return "modified"
	case New:
		return "new"
	case Deleted:
		return "deleted"
	default:
		return "unknown"
	}
}

// Change is the decision for one path found in the working tree or in the
// previous manifest. Current is nil for Deleted, Previous is nil for New.
// Fingerprint is set for every file that is not Deleted.
type Change struct {
	Path        string
	Status      Status
	Current     *FileInfo
	Previous    *manifest.Entry
	Fingerprint string
}

// Options tunes detection.
type Options struct {
	Ignore   *Ignore
	Workers  int  // parallel fingerprinting; <= 1 hashes sequentially
	FoldCase bool // match paths case-insensitively
}

// Result is the full classification, sorted by path.
type Result struct {
	Changes []Change
	Skipped []string
}

// Count returns how many changes have status s
func (r *Result) Count(s Status) int {
	n := 0
	for _, c := range r.Changes {
		if c.Status == s {
			n++
		}
	}
	return n
}

// Detect walks root and classifies every path against prev, which may be
// nil for the first snapshot. Any unreadable file aborts detection.
func Detect(ctx context.Context, root string, prev *manifest.Manifest, opts Options) (*Result, error) {
	if prev == nil {
		prev = manifest.Empty()
	}

	tree, err := Walk(ctx, root, opts.Ignore)
	if err != nil {
		return nil, err
	}

	prevIdx := prev.Index(opts.FoldCase)
	seen := make(map[string]bool, len(tree.Files))
	changes := make([]Change, 0, len(tree.Files))
	var toHash []int

	for i := range tree.Files {
		cur := &tree.Files[i]
		key := manifest.Key(cur.Path, opts.FoldCase)
		seen[key] = true

		c := Change{Path: cur.Path, Current: cur}
		p, ok := prevIdx[key]
		if ok {
			pe := p
			c.Previous = &pe
		}

		switch {
		case !ok:
			c.Status = New
		case p.Kind != cur.Kind:
			c.Status = Modified
		case cur.Kind == manifest.KindDir:
			c.Status = Unchanged
		case cur.Kind == manifest.KindSymlink:
			c.Status = Unchanged
			if p.Target != cur.Target {
				c.Status = Modified
			}
		case p.Size == cur.Size && p.ModTime.Equal(cur.ModTime):
			// cheap path: metadata matches, content is not read
			c.Status = Unchanged
			c.Fingerprint = p.Fingerprint
		default:
			// fingerprint candidate; resolved after hashing
			c.Status = Modified
		}

		if cur.Kind == manifest.KindFile && c.Fingerprint == "" {
			toHash = append(toHash, len(changes))
		}
		changes = append(changes, c)
	}

	if err := hashAll(ctx, changes, toHash, opts.Workers); err != nil {
		return nil, err
	}

	for _, i := range toHash {
		c := &changes[i]
		if c.Status == Modified && c.Previous != nil && c.Previous.Kind == manifest.KindFile &&
			c.Previous.Fingerprint == c.Fingerprint {
			log.WithField("path", c.Path).Debug("metadata changed but content did not")
			c.Status = Unchanged
		}
	}

	for _, e := range prev.Entries {
		if seen[manifest.Key(e.Path, opts.FoldCase)] {
			continue
		}
		pe := e
		changes = append(changes, Change{Path: e.Path, Status: Deleted, Previous: &pe, Fingerprint: e.Fingerprint})
	}

	sort.Slice(changes, func(i, j int) bool { return changes[i].Path < changes[j].Path })
	return &Result{Changes: changes, Skipped: tree.Skipped}, nil
}

func hashAll(ctx context.Context, changes []Change, idx []int, workers int) error {
	if workers < 1 {
		workers = 1
	}
	p := pool.New().WithMaxGoroutines(workers).WithErrors().WithFirstError()
	for _, i := range idx {
		c := &changes[i]
		p.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			fp, err := manifest.FingerprintFile(c.Current.AbsPath)
			if err != nil {
				return snaperr.IO("fingerprint", c.Path, err)
			}
			c.Fingerprint = fp
			return nil
		})
	}
	return p.Wait()
}
