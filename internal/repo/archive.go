package repo

import (
	"archive/tar"
	"compress/gzip"
	"context"
	"io"
	"os"
	"path"

	"github.com/pders01/snapsafe/internal/manifest"
	"github.com/pders01/snapsafe/internal/models"
	"github.com/pders01/snapsafe/internal/snaperr"
)

// Archive writes the snapshot named by ref to w as a gzip-compressed tar
// stream, every path prefixed with the snapshot ID. It returns the number
// of entries written.
func (r *Repository) Archive(ctx context.Context, ref string, w io.Writer) (models.Snapshot, int, error) {
	l, err := r.lockShared(ctx, "archive")
	if err != nil {
		return models.Snapshot{}, 0, err
	}
	defer l.release()

	snaps, err := r.readIndex()
	if err != nil {
		return models.Snapshot{}, 0, err
	}
	snap, err := Resolve(snaps, ref)
	if err != nil {
		return models.Snapshot{}, 0, err
	}
	m, err := r.readManifest(snap.ID)
	if err != nil {
		return models.Snapshot{}, 0, err
	}

	gzWriter := gzip.NewWriter(w)
	tarWriter := tar.NewWriter(gzWriter)
	prefix := snap.ID.String()

	n := 0
	for _, e := range m.Entries {
		if err := ctx.Err(); err != nil {
			return snap, n, err
		}
		if err := r.archiveEntry(tarWriter, prefix, snap.ID, e); err != nil {
			return snap, n, err
		}
		n++
	}

	if err := tarWriter.Close(); err != nil {
		return snap, n, snaperr.IO("archive", "", err)
	}
	if err := gzWriter.Close(); err != nil {
		return snap, n, snaperr.IO("archive", "", err)
	}
	return snap, n, nil
}

func (r *Repository) archiveEntry(tw *tar.Writer, prefix string, id models.SnapshotID, e manifest.Entry) error {
	header := &tar.Header{
		Name:    path.Join(prefix, e.Path),
		Mode:    int64(e.Mode.Perm()),
		ModTime: e.ModTime,
	}
	switch e.Kind {
	case manifest.KindDir:
		header.Typeflag = tar.TypeDir
		header.Name += "/"
	case manifest.KindSymlink:
		header.Typeflag = tar.TypeSymlink
		header.Linkname = e.Target
	default:
		header.Typeflag = tar.TypeReg
		header.Size = e.Size
	}

	if err := tw.WriteHeader(header); err != nil {
		return snaperr.IO("archive", e.Path, err)
	}
	if e.Kind != manifest.KindFile {
		return nil
	}

	file, err := os.Open(r.storePath(e.StorePath))
	if err != nil {
		return snaperr.Integrity("archive", id.String(), e.Path, err)
	}
	defer file.Close()
	if _, err := io.CopyN(tw, file, e.Size); err != nil {
		return snaperr.Integrity("archive", id.String(), e.Path, err)
	}
	return nil
}
