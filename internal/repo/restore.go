package repo

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	log "github.com/sirupsen/logrus"

	"github.com/pders01/snapsafe/internal/detect"
	"github.com/pders01/snapsafe/internal/linker"
	"github.com/pders01/snapsafe/internal/manifest"
	"github.com/pders01/snapsafe/internal/models"
	"github.com/pders01/snapsafe/internal/snaperr"
)

// RestoreOptions are the inputs of a restore request.
type RestoreOptions struct {
	// Target is the directory to restore into; empty means the root.
	Target string
	// Backup snapshots the working tree first. Ignored for other targets.
	Backup bool
}

// RestoreResult describes a completed restore.
type RestoreResult struct {
	Snapshot models.Snapshot `json:"snapshot"`
	Target   string          `json:"target"`
	Backup   *SnapshotResult `json:"backup,omitempty"`
	Written  int             `json:"written"`
	Kept     int             `json:"kept"`
	Removed  []string        `json:"removed"`
}

// Restore makes the target tree match the snapshot named by ref. Every
// store file is checked before the tree is touched; a failure after that
// aborts immediately and is reported as a partial restore.
func (r *Repository) Restore(ctx context.Context, ref string, opts RestoreOptions) (*RestoreResult, error) {
	l, err := r.lockExclusive(ctx, "restore")
	if err != nil {
		return nil, err
	}
	defer l.release()

	snaps, err := r.readIndex()
	if err != nil {
		return nil, err
	}
	snap, err := Resolve(snaps, ref)
	if err != nil {
		return nil, err
	}
	m, err := r.readManifest(snap.ID)
	if err != nil {
		return nil, err
	}

	target, inPlace, err := r.RestoreTarget(opts.Target)
	if err != nil {
		return nil, err
	}

	if err := r.preflight(snap.ID, m); err != nil {
		return nil, err
	}
	if !inPlace {
		if err := os.MkdirAll(target, 0755); err != nil {
			return nil, snaperr.IO("restore", target, err)
		}
	}

	res := &RestoreResult{Snapshot: snap, Target: target, Removed: []string{}}
	if inPlace {
		cfg, err := r.Config()
		if err != nil {
			return nil, err
		}
		if opts.Backup || cfg.Autobackup {
			res.Backup, err = r.snapshotLocked(ctx, SnapshotOptions{
				Message: fmt.Sprintf("backup before restoring %s", snap.ID),
				Tags:    []string{"backup"},
			})
			if err != nil {
				return nil, fmt.Errorf("backup before restore failed, working tree untouched: %w", err)
			}
		}
	}

	ig, err := detect.LoadIgnore(r.Root, ControlDirName)
	if err != nil {
		return nil, snaperr.IO("restore", detect.IgnoreFile, err)
	}

	total := len(m.Entries)
	done := 0
	abort := func(p string, err error) error {
		return &snaperr.Error{
			Kind: snaperr.KindOf(err),
			Op:   "restore",
			ID:   snap.ID.String(),
			Path: p,
			Err:  fmt.Errorf("restore aborted after %d of %d entries, working tree may be partially updated: %w", done, total, err),
		}
	}

	if inPlace {
		removed, err := removeExtras(ctx, target, m, ig, r.FoldCase())
		res.Removed = removed
		if err != nil {
			return res, abort("", err)
		}
	}

	for _, e := range m.Entries {
		if err := ctx.Err(); err != nil {
			return res, abort(e.Path, err)
		}
		dst := filepath.Join(target, filepath.FromSlash(e.Path))
		var err error
		switch e.Kind {
		case manifest.KindDir:
			err = linker.PlaceDir(dst, e)
		case manifest.KindSymlink:
			err = linker.PlaceSymlink(dst, e)
		default:
			if upToDate(dst, e) {
				res.Kept++
				done++
				continue
			}
			err = linker.PlaceFile(r.storePath(e.StorePath), dst, e)
			if err == nil {
				res.Written++
			}
		}
		if err != nil {
			return res, abort(e.Path, err)
		}
		done++
	}

	r.counter(MetricRestoredFiles, int64(res.Written))
	log.WithFields(log.Fields{"snapshot": snap.ID.String(), "target": target, "written": res.Written, "removed": len(res.Removed)}).Info("restore complete")
	return res, nil
}

// preflight confirms every store file exists with its recorded size
func (r *Repository) preflight(id models.SnapshotID, m *manifest.Manifest) error {
	for _, e := range m.Files() {
		fi, err := os.Stat(r.storePath(e.StorePath))
		if errors.Is(err, fs.ErrNotExist) {
			return snaperr.Integrity("restore", id.String(), e.Path, fmt.Errorf("store file missing"))
		}
		if err != nil {
			return snaperr.IO("restore", e.Path, err)
		}
		if fi.Size() != e.Size {
			return snaperr.Integrity("restore", id.String(), e.Path,
				fmt.Errorf("store file has %d bytes, manifest records %d", fi.Size(), e.Size))
		}
	}
	return nil
}

// upToDate reports whether dst already holds the entry, judged the same
// cheap way the detector does.
func upToDate(dst string, e manifest.Entry) bool {
	fi, err := os.Lstat(dst)
	if err != nil || !fi.Mode().IsRegular() {
		return false
	}
	return fi.Size() == e.Size && fi.ModTime().Equal(e.ModTime) && fi.Mode().Perm() == e.Mode.Perm()
}

// removeExtras deletes every non-ignored path under target that the
// manifest does not track, then directories left empty by that.
func removeExtras(ctx context.Context, target string, m *manifest.Manifest, ig *detect.Ignore, fold bool) ([]string, error) {
	tree, err := detect.Walk(ctx, target, ig)
	if err != nil {
		return nil, err
	}

	idx := m.Index(fold)
	keep := make(map[string]bool)
	for _, e := range m.Entries {
		for d := e.Path; d != "."; d = path.Dir(d) {
			keep[manifest.Key(d, fold)] = true
		}
	}

	removed := []string{}
	for _, f := range tree.Files {
		// kind changes are handled when the entry is placed
		if _, tracked := idx[manifest.Key(f.Path, fold)]; tracked {
			continue
		}
		if f.Kind == manifest.KindDir && keep[manifest.Key(f.Path, fold)] {
			continue
		}
		if err := os.RemoveAll(f.AbsPath); err != nil {
			return removed, snaperr.IO("restore", f.Path, err)
		}
		log.WithField("path", f.Path).Debug("removed untracked path")
		removed = append(removed, f.Path)
	}

	var dirs []string
	err = filepath.WalkDir(target, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() || p == target {
			return nil
		}
		rel, err := filepath.Rel(target, p)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)
		if ig.Match(rel) {
			return filepath.SkipDir
		}
		dirs = append(dirs, rel)
		return nil
	})
	if err != nil {
		return removed, snaperr.IO("restore", target, err)
	}
	sort.Sort(sort.Reverse(sort.StringSlice(dirs)))
	for _, rel := range dirs {
		if keep[manifest.Key(rel, fold)] {
			continue
		}
		// fails on non-empty directories, which still hold ignored paths
		if err := os.Remove(filepath.Join(target, filepath.FromSlash(rel))); err == nil {
			removed = append(removed, rel)
		}
	}
	sort.Strings(removed)
	return removed, nil
}

// RestoreTarget resolves a restore destination. An empty p, or one naming
// the root, is an in-place restore. Any other target must lie outside the
// working tree, must not contain it, and must be missing or empty.
func (r *Repository) RestoreTarget(p string) (string, bool, error) {
	if p == "" {
		return r.Root, true, nil
	}
	abs, err := filepath.Abs(p)
	if err != nil {
		return "", false, snaperr.IO("restore", p, err)
	}
	target, root := realPath(abs), realPath(r.Root)
	switch {
	case target == root:
		return r.Root, true, nil
	case isWithin(root, target):
		return "", false, snaperr.User("restore", "cannot restore into %s, it contains the working tree", abs)
	case isWithin(target, root):
		return "", false, snaperr.User("restore", "cannot restore into %s, it is inside the working tree", abs)
	}

	entries, err := os.ReadDir(abs)
	switch {
	case errors.Is(err, fs.ErrNotExist):
	case err != nil:
		return "", false, snaperr.IO("restore", abs, err)
	case len(entries) > 0:
		return "", false, snaperr.User("restore", "target %s is not empty", abs)
	}
	return abs, false, nil
}

// realPath resolves symlinks in the longest existing prefix of p.
func realPath(p string) string {
	var rest []string
	for dir := p; ; dir = filepath.Dir(dir) {
		if resolved, err := filepath.EvalSymlinks(dir); err == nil {
			for i := len(rest) - 1; i >= 0; i-- {
				resolved = filepath.Join(resolved, rest[i])
			}
			return resolved
		}
		if filepath.Dir(dir) == dir {
			return filepath.Clean(p)
		}
		rest = append(rest, filepath.Base(dir))
	}
}

func isWithin(p, dir string) bool {
	rel, err := filepath.Rel(dir, p)
	return err == nil && rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}
