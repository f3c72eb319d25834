package repo

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"

	"github.com/pders01/snapsafe/internal/fsutil"
	"github.com/pders01/snapsafe/internal/models"
	"github.com/pders01/snapsafe/internal/snaperr"
)

// metadata.json maps rendered snapshot IDs to their tag and key/value
// blobs. Manifests and store data are never touched by metadata writes.

func (r *Repository) readMetadata() (map[string]models.Metadata, error) {
	p := filepath.Join(r.ControlDir, metadataFile)
	data, err := os.ReadFile(p)
	if errors.Is(err, os.ErrNotExist) {
		return map[string]models.Metadata{}, nil
	}
	if err != nil {
		return nil, snaperr.IO("metadata", p, err)
	}
	all := map[string]models.Metadata{}
	if err := json.Unmarshal(data, &all); err != nil {
		return nil, snaperr.Integrity("metadata", "", p, err)
	}
	return all, nil
}

func (r *Repository) writeMetadata(all map[string]models.Metadata) error {
	for id, m := range all {
		if m.IsEmpty() {
			delete(all, id)
		}
	}
	data, err := json.MarshalIndent(all, "", "  ")
	if err != nil {
		return snaperr.IO("metadata", metadataFile, err)
	}
	p := filepath.Join(r.ControlDir, metadataFile)
	if err := fsutil.WriteFileAtomic(p, data, 0644); err != nil {
		return snaperr.IO("metadata", p, err)
	}
	return nil
}

// Metadata returns the snapshot named by ref with its tags and key/values
func (r *Repository) Metadata(ctx context.Context, ref string) (models.Snapshot, models.Metadata, error) {
	l, err := r.lockShared(ctx, "metadata")
	if err != nil {
		return models.Snapshot{}, models.Metadata{}, err
	}
	defer l.release()

	snaps, err := r.readIndex()
	if err != nil {
		return models.Snapshot{}, models.Metadata{}, err
	}
	snap, err := Resolve(snaps, ref)
	if err != nil {
		return models.Snapshot{}, models.Metadata{}, err
	}
	all, err := r.readMetadata()
	if err != nil {
		return models.Snapshot{}, models.Metadata{}, err
	}
	return snap, all[snap.ID.String()], nil
}

// AllMetadata returns the blobs of every snapshot keyed by rendered ID
func (r *Repository) AllMetadata(ctx context.Context) (map[string]models.Metadata, error) {
	l, err := r.lockShared(ctx, "metadata")
	if err != nil {
		return nil, err
	}
	defer l.release()
	return r.readMetadata()
}

// UpdateMetadata applies fn to the blob of the snapshot named by ref and
// stores the result.
func (r *Repository) UpdateMetadata(ctx context.Context, ref string, fn func(*models.Metadata) error) (models.Snapshot, models.Metadata, error) {
	l, err := r.lockExclusive(ctx, "metadata")
	if err != nil {
		return models.Snapshot{}, models.Metadata{}, err
	}
	defer l.release()

	snaps, err := r.readIndex()
	if err != nil {
		return models.Snapshot{}, models.Metadata{}, err
	}
	snap, err := Resolve(snaps, ref)
	if err != nil {
		return models.Snapshot{}, models.Metadata{}, err
	}
	all, err := r.readMetadata()
	if err != nil {
		return models.Snapshot{}, models.Metadata{}, err
	}

	m := all[snap.ID.String()]
	if err := fn(&m); err != nil {
		return models.Snapshot{}, models.Metadata{}, err
	}
	all[snap.ID.String()] = m
	if err := r.writeMetadata(all); err != nil {
		return models.Snapshot{}, models.Metadata{}, err
	}
	return snap, m, nil
}

func (r *Repository) tagSnapshot(id models.SnapshotID, tags []string) error {
	if len(tags) == 0 {
		return nil
	}
	all, err := r.readMetadata()
	if err != nil {
		return err
	}
	m := all[id.String()]
	for _, t := range tags {
		m.AddTag(t)
	}
	all[id.String()] = m
	return r.writeMetadata(all)
}

// RenameTag replaces tag old with new on every snapshot and returns how
// many snapshots changed.
func (r *Repository) RenameTag(ctx context.Context, old, new string) (int, error) {
	if old == "" || new == "" {
		return 0, snaperr.User("tag", "tag names must not be empty")
	}
	l, err := r.lockExclusive(ctx, "tag")
	if err != nil {
		return 0, err
	}
	defer l.release()

	all, err := r.readMetadata()
	if err != nil {
		return 0, err
	}
	n := 0
	for id, m := range all {
		if !m.RemoveTag(old) {
			continue
		}
		m.AddTag(new)
		all[id] = m
		n++
	}
	if n == 0 {
		return 0, nil
	}
	return n, r.writeMetadata(all)
}
