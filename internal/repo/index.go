package repo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/pders01/snapsafe/internal/fsutil"
	"github.com/pders01/snapsafe/internal/manifest"
	"github.com/pders01/snapsafe/internal/models"
	"github.com/pders01/snapsafe/internal/snaperr"
)

// Latest is the reference that resolves to the newest snapshot
const Latest = "latest"

type indexDoc struct {
	Snapshots []models.Snapshot `json:"snapshots"`
}

// readIndex loads the snapshot index ordered by ID
func (r *Repository) readIndex() ([]models.Snapshot, error) {
	p := filepath.Join(r.ControlDir, indexFile)
	data, err := os.ReadFile(p)
	if errors.Is(err, os.ErrNotExist) {
		return nil, &snaperr.Error{Kind: snaperr.KindUser, Op: "index", Path: r.Root, Err: snaperr.ErrNotInitialized}
	}
	if err != nil {
		return nil, snaperr.IO("index", p, err)
	}
	var doc indexDoc
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, snaperr.Integrity("index", "", p, err)
	}
	sortSnapshots(doc.Snapshots)
	return doc.Snapshots, nil
}

// writeIndex atomically replaces the index; this is the publish step
func (r *Repository) writeIndex(snaps []models.Snapshot) error {
	if snaps == nil {
		snaps = []models.Snapshot{}
	}
	sortSnapshots(snaps)
	data, err := json.MarshalIndent(indexDoc{Snapshots: snaps}, "", "  ")
	if err != nil {
		return snaperr.IO("index", indexFile, err)
	}
	p := filepath.Join(r.ControlDir, indexFile)
	if err := fsutil.WriteFileAtomic(p, data, 0644); err != nil {
		return snaperr.IO("index", p, err)
	}
	return nil
}

func sortSnapshots(snaps []models.Snapshot) {
	sort.Slice(snaps, func(i, j int) bool { return snaps[i].ID.Less(snaps[j].ID) })
}

// readManifest loads a published snapshot's manifest. A snapshot listed in
// the index without a readable manifest is an integrity failure.
func (r *Repository) readManifest(id models.SnapshotID) (*manifest.Manifest, error) {
	m, err := manifest.Read(r.snapshotDir(id))
	if err != nil {
		return nil, snaperr.Integrity("manifest", id.String(), manifest.FileName, err)
	}
	return m, nil
}

// Resolve finds the snapshot named by ref: "latest", an exact ID, or a
// unique prefix of a rendered ID. The leading "v" is optional.
func Resolve(snaps []models.Snapshot, ref string) (models.Snapshot, error) {
	ref = strings.TrimSpace(ref)
	if len(snaps) == 0 {
		return models.Snapshot{}, snaperr.UserID("resolve", ref, snaperr.ErrNoSnapshots)
	}
	if ref == "" || strings.EqualFold(ref, Latest) {
		return snaps[len(snaps)-1], nil
	}

	if id, err := models.ParseSnapshotID(ref); err == nil {
		for _, s := range snaps {
			if s.ID == id {
				return s, nil
			}
		}
	}

	prefix := ref
	if !strings.HasPrefix(prefix, "v") {
		prefix = "v" + prefix
	}
	var matches []models.Snapshot
	for _, s := range snaps {
		if strings.HasPrefix(s.ID.String(), prefix) {
			matches = append(matches, s)
		}
	}
	switch len(matches) {
	case 0:
		return models.Snapshot{}, snaperr.UserID("resolve", ref, fmt.Errorf("unknown snapshot"))
	case 1:
		return matches[0], nil
	default:
		ids := make([]string, len(matches))
		for i, m := range matches {
			ids[i] = m.ID.String()
		}
		return models.Snapshot{}, snaperr.UserID("resolve", ref, fmt.Errorf("ambiguous reference matches %s", strings.Join(ids, ", ")))
	}
}

// List returns every published snapshot ordered by ID
func (r *Repository) List(ctx context.Context) ([]models.Snapshot, error) {
	l, err := r.lockShared(ctx, "list")
	if err != nil {
		return nil, err
	}
	defer l.release()
	return r.readIndex()
}

// Resolve finds one published snapshot by reference
func (r *Repository) Resolve(ctx context.Context, ref string) (models.Snapshot, error) {
	l, err := r.lockShared(ctx, "resolve")
	if err != nil {
		return models.Snapshot{}, err
	}
	defer l.release()

	snaps, err := r.readIndex()
	if err != nil {
		return models.Snapshot{}, err
	}
	return Resolve(snaps, ref)
}

// Manifest loads the manifest of the snapshot named by ref
func (r *Repository) Manifest(ctx context.Context, ref string) (models.Snapshot, *manifest.Manifest, error) {
	l, err := r.lockShared(ctx, "manifest")
	if err != nil {
		return models.Snapshot{}, nil, err
	}
	defer l.release()

	snaps, err := r.readIndex()
	if err != nil {
		return models.Snapshot{}, nil, err
	}
	snap, err := Resolve(snaps, ref)
	if err != nil {
		return models.Snapshot{}, nil, err
	}
	m, err := r.readManifest(snap.ID)
	if err != nil {
		return models.Snapshot{}, nil, err
	}
	return snap, m, nil
}
