package repo

import (
	"context"
	"os"

	"github.com/pders01/snapsafe/internal/diff"
	"github.com/pders01/snapsafe/internal/manifest"
	"github.com/pders01/snapsafe/internal/models"
	"github.com/pders01/snapsafe/internal/snaperr"
)

// DiffOptions control content comparison of modified files.
type DiffOptions struct {
	// Text adds line diffs for modified text-like files.
	Text     bool
	Context  int
	MaxBytes int
}

// DiffResult is the comparison of two snapshots.
type DiffResult struct {
	From models.Snapshot `json:"from"`
	To   models.Snapshot `json:"to"`
	*diff.Result
}

// Diff compares snapshot refA (base) with refB (target). An empty refB
// means the latest snapshot.
func (r *Repository) Diff(ctx context.Context, refA, refB string, opts DiffOptions) (*DiffResult, error) {
	l, err := r.lockShared(ctx, "diff")
	if err != nil {
		return nil, err
	}
	defer l.release()

	snaps, err := r.readIndex()
	if err != nil {
		return nil, err
	}
	from, err := Resolve(snaps, refA)
	if err != nil {
		return nil, err
	}
	to, err := Resolve(snaps, refB)
	if err != nil {
		return nil, err
	}
	ma, err := r.readManifest(from.ID)
	if err != nil {
		return nil, err
	}
	mb, err := r.readManifest(to.ID)
	if err != nil {
		return nil, err
	}

	res := &DiffResult{From: from, To: to, Result: diff.Compare(ma, mb, r.FoldCase())}
	if !opts.Text {
		return res, nil
	}

	cfg, err := r.Config()
	if err != nil {
		return nil, err
	}
	topts := diff.TextOptions{Extensions: cfg.TextDiffExtensions, Context: opts.Context, MaxBytes: opts.MaxBytes}
	ia := ma.Index(r.FoldCase())
	ib := mb.Index(r.FoldCase())
	for _, p := range res.Modified {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		key := manifest.Key(p, r.FoldCase())
		ea, eb := ia[key], ib[key]
		if !ea.IsFile() || !eb.IsFile() {
			continue
		}
		if opts.MaxBytes > 0 && ea.Size+eb.Size > int64(opts.MaxBytes) {
			res.TextDiffs = append(res.TextDiffs, diff.FileDiff{Path: p, Oversize: true})
			continue
		}
		a, err := os.ReadFile(r.storePath(ea.StorePath))
		if err != nil {
			return nil, snaperr.Integrity("diff", from.ID.String(), p, err)
		}
		b, err := os.ReadFile(r.storePath(eb.StorePath))
		if err != nil {
			return nil, snaperr.Integrity("diff", to.ID.String(), p, err)
		}
		res.TextDiffs = append(res.TextDiffs, diff.Text(p, a, b, topts))
	}
	return res, nil
}
