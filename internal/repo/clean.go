package repo

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sort"

	log "github.com/sirupsen/logrus"

	"github.com/pders01/snapsafe/internal/models"
	"github.com/pders01/snapsafe/internal/snaperr"
)

// CleanResult lists what a cleanup removed.
type CleanResult struct {
	Staging  []string `json:"staging"`
	Orphans  []string `json:"orphans"`
	Metadata []string `json:"metadata"`
}

// Empty reports whether nothing needed cleaning
func (c *CleanResult) Empty() bool {
	return len(c.Staging) == 0 && len(c.Orphans) == 0 && len(c.Metadata) == 0
}

// Clean removes staging directories of interrupted snapshots, snapshot
// directories that never reached the index and metadata of deleted
// snapshots.
func (r *Repository) Clean(ctx context.Context) (*CleanResult, error) {
	l, err := r.lockExclusive(ctx, "clean")
	if err != nil {
		return nil, err
	}
	defer l.release()

	snaps, err := r.readIndex()
	if err != nil {
		return nil, err
	}
	return r.clean(snaps)
}

// clean requires the exclusive lock: with it held no staging directory
// can belong to a live operation.
func (r *Repository) clean(snaps []models.Snapshot) (*CleanResult, error) {
	res := &CleanResult{Staging: []string{}, Orphans: []string{}, Metadata: []string{}}
	known := make(map[string]bool, len(snaps))
	for _, s := range snaps {
		known[models.DirName(s.ID)] = true
	}

	tmp := filepath.Join(r.ControlDir, tmpDir)
	entries, err := os.ReadDir(tmp)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, snaperr.IO("clean", tmp, err)
	}
	for _, e := range entries {
		p := filepath.Join(tmp, e.Name())
		if err := os.RemoveAll(p); err != nil {
			return nil, snaperr.IO("clean", p, err)
		}
		log.WithField("path", p).Warn("removed stale staging directory")
		res.Staging = append(res.Staging, e.Name())
	}

	store := filepath.Join(r.ControlDir, snapshotsDir)
	entries, err = os.ReadDir(store)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, snaperr.IO("clean", store, err)
	}
	for _, e := range entries {
		if known[e.Name()] {
			continue
		}
		p := filepath.Join(store, e.Name())
		if err := os.RemoveAll(p); err != nil {
			return nil, snaperr.IO("clean", p, err)
		}
		log.WithField("path", p).Warn("removed orphaned snapshot directory")
		res.Orphans = append(res.Orphans, e.Name())
	}

	all, err := r.readMetadata()
	if err != nil {
		return nil, err
	}
	changed := false
	for id := range all {
		if !known[id] {
			delete(all, id)
			res.Metadata = append(res.Metadata, id)
			changed = true
		}
	}
	sort.Strings(res.Metadata)
	if changed {
		if err := r.writeMetadata(all); err != nil {
			return nil, err
		}
	}
	return res, nil
}
