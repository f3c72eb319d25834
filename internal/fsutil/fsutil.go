// Package fsutil holds the small filesystem primitives the engine relies on:
// atomic file replacement, inode identity and link-count queries.
package fsutil

import (
	"errors"
	"os"
	"path/filepath"

	"golang.org/x/sys/unix"
)

// FileID identifies an inode on a device.
type FileID struct {
	Dev uint64
	Ino uint64
}

// Identify returns the inode identity and hard link count of path
// without following symlinks.
func Identify(path string) (FileID, uint64, error) {
	var st unix.Stat_t
	if err := unix.Lstat(path, &st); err != nil {
		return FileID{}, 0, &os.PathError{Op: "lstat", Path: path, Err: err}
	}
	return FileID{Dev: uint64(st.Dev), Ino: uint64(st.Ino)}, uint64(st.Nlink), nil
}

// LinkCount returns the number of hard links to path
func LinkCount(path string) (uint64, error) {
	_, n, err := Identify(path)
	return n, err
}

// IsCrossDevice reports whether err is a link failure across filesystems
func IsCrossDevice(err error) bool {
	return errors.Is(err, unix.EXDEV)
}

// IsTooManyLinks reports whether err means the inode hit its link limit
func IsTooManyLinks(err error) bool {
	return errors.Is(err, unix.EMLINK)
}

// WriteFileAtomic writes data to a temporary file next to path and renames
// it into place, so readers see either the old or the new content.
func WriteFileAtomic(path string, data []byte, perm os.FileMode) (err error) {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer func() {
		if err != nil {
			os.Remove(tmpName)
		}
	}()

	if _, err = tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err = tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err = tmp.Close(); err != nil {
		return err
	}
	if err = os.Chmod(tmpName, perm); err != nil {
		return err
	}
	if err = os.Rename(tmpName, path); err != nil {
		return err
	}
	return SyncDir(dir)
}

// SyncDir flushes directory entries of dir to stable storage.
func SyncDir(dir string) error {
	d, err := os.Open(dir)
	if err != nil {
		return err
	}
	defer d.Close()
	if err := d.Sync(); err != nil && !errors.Is(err, unix.EINVAL) {
		return err
	}
	return nil
}
