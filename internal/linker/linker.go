// Package linker materialises a classified working tree into a snapshot's
// store: unchanged content is hard-linked from earlier snapshots, everything
// else is copied in.
package linker

import (
	"context"
	"errors"
	"os"
	"path"
	"path/filepath"

	metrics "github.com/rcrowley/go-metrics"
	log "github.com/sirupsen/logrus"

	"github.com/pders01/snapsafe/internal/detect"
	"github.com/pders01/snapsafe/internal/fsutil"
	"github.com/pders01/snapsafe/internal/manifest"
	"github.com/pders01/snapsafe/internal/snaperr"
)

// StoreFileMode is applied to every store file; stored data is immutable.
const StoreFileMode os.FileMode = 0444

// Metric names updated by the allocator.
const (
	MetricLinked      = "snapshot.files.linked"
	MetricCopied      = "snapshot.files.copied"
	MetricCrossDevice = "snapshot.files.copied_xdev"
	MetricDeduped     = "snapshot.files.deduped"
	MetricBytesCopied = "snapshot.bytes.copied"
)

// Action records how a store file was produced.
type Action int

const (
	ActionNone Action = iota // directories and symlinks
	ActionLink
	ActionDedup
	ActionCopy
	ActionCopyCrossDevice
)

func (a Action) String() string {
	switch a {
	case ActionLink:
		return "link"
	case ActionDedup:
		return "dedup"
	case ActionCopy:
		return "copy"
	case ActionCopyCrossDevice:
		return "copy-xdev"
	default:
		return "none"
	}
}

// Allocator places files into one snapshot's store.
type Allocator struct {
	// ControlDir resolves store paths recorded in manifests.
	ControlDir string
	// StoreDir is where this snapshot's data is written now (possibly a
	// staging directory).
	StoreDir string
	// StorePrefix is recorded in entries, relative to ControlDir, and is
	// where StoreDir will live once published.
	StorePrefix string
	// Pool maps fingerprints to existing store files (absolute paths).
	Pool map[string]string
	// Registry receives counters; nil disables metrics.
	Registry metrics.Registry

	// Link creates hard links; replaced in tests to force fallbacks.
	Link func(oldname, newname string) error
}

// Result is the manifest plus a per-path account of what was done.
type Result struct {
	Manifest *manifest.Manifest
	Actions  map[string]Action
}

// Allocate processes every non-deleted change and returns the new manifest.
// On error the store directory is left for the caller to discard.
func (a *Allocator) Allocate(ctx context.Context, changes []detect.Change) (*Result, error) {
	if a.Link == nil {
		a.Link = os.Link
	}
	if a.Pool == nil {
		a.Pool = make(map[string]string)
	}
	if err := os.MkdirAll(a.StoreDir, 0755); err != nil {
		return nil, snaperr.IO("allocate", a.StoreDir, err)
	}

	res := &Result{Actions: make(map[string]Action)}
	entries := make([]manifest.Entry, 0, len(changes))

	for _, c := range changes {
		if c.Status == detect.Deleted {
			continue
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		cur := c.Current
		e := manifest.Entry{
			Path:    c.Path,
			Kind:    cur.Kind,
			Size:    cur.Size,
			ModTime: cur.ModTime,
			Mode:    cur.Mode,
			Target:  cur.Target,
		}
		dst := filepath.Join(a.StoreDir, filepath.FromSlash(c.Path))

		switch cur.Kind {
		case manifest.KindDir:
			if err := os.MkdirAll(dst, 0755); err != nil {
				return nil, snaperr.IO("allocate", c.Path, err)
			}
			res.Actions[c.Path] = ActionNone
		case manifest.KindSymlink:
			res.Actions[c.Path] = ActionNone
		case manifest.KindFile:
			if err := os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
				return nil, snaperr.IO("allocate", c.Path, err)
			}
			action, fp, err := a.place(c, dst)
			if err != nil {
				return nil, err
			}
			e.Fingerprint = fp
			e.StorePath = path.Join(a.StorePrefix, c.Path)
			res.Actions[c.Path] = action
			a.Pool[fp] = dst
			a.count(action, e.Size)
			log.WithFields(log.Fields{"path": c.Path, "action": action}).Debug("allocated")
		}
		entries = append(entries, e)
	}

	res.Manifest = manifest.New(entries)
	return res, nil
}

func (a *Allocator) place(c detect.Change, dst string) (Action, string, error) {
	if c.Status == detect.Unchanged && c.Previous != nil && c.Previous.StorePath != "" {
		src := filepath.Join(a.ControlDir, filepath.FromSlash(c.Previous.StorePath))
		action, err := a.linkOrCopy(src, dst, ActionLink)
		switch {
		case err == nil:
			return action, c.Previous.Fingerprint, nil
		case errors.Is(err, os.ErrNotExist):
			log.WithField("path", c.Path).Warn("previous store file missing, copying from working tree")
		default:
			return 0, "", snaperr.IO("link", c.Path, err)
		}
	}

	if c.Fingerprint != "" {
		if src, ok := a.Pool[c.Fingerprint]; ok {
			action, err := a.linkOrCopy(src, dst, ActionDedup)
			if err == nil {
				return action, c.Fingerprint, nil
			}
			if !errors.Is(err, os.ErrNotExist) {
				return 0, "", snaperr.IO("link", c.Path, err)
			}
		}
	}

	fp, err := copyFile(c.Current.AbsPath, dst)
	if err != nil {
		return 0, "", snaperr.IO("copy", c.Path, err)
	}
	if c.Fingerprint != "" && fp != c.Fingerprint {
		log.WithField("path", c.Path).Warn("file changed while snapshotting, recording copied content")
	}
	return ActionCopy, fp, nil
}

// linkOrCopy hard-links src to dst, falling back to a byte copy of the
// store file when the link cannot span devices or the inode is full.
func (a *Allocator) linkOrCopy(src, dst string, action Action) (Action, error) {
	err := a.Link(src, dst)
	if err == nil {
		return action, nil
	}
	if !fsutil.IsCrossDevice(err) && !fsutil.IsTooManyLinks(err) {
		return 0, err
	}
	log.WithFields(log.Fields{"src": src, "dst": dst}).Warnf("hard link failed (%v), copying instead", err)
	if _, err := copyFile(src, dst); err != nil {
		return 0, err
	}
	return ActionCopyCrossDevice, nil
}

func (a *Allocator) count(action Action, size int64) {
	if a.Registry == nil {
		return
	}
	switch action {
	case ActionLink:
		metrics.GetOrRegisterCounter(MetricLinked, a.Registry).Inc(1)
	case ActionDedup:
		metrics.GetOrRegisterCounter(MetricDeduped, a.Registry).Inc(1)
	case ActionCopy:
		metrics.GetOrRegisterCounter(MetricCopied, a.Registry).Inc(1)
		metrics.GetOrRegisterCounter(MetricBytesCopied, a.Registry).Inc(size)
	case ActionCopyCrossDevice:
		metrics.GetOrRegisterCounter(MetricCrossDevice, a.Registry).Inc(1)
		metrics.GetOrRegisterCounter(MetricBytesCopied, a.Registry).Inc(size)
	}
}
