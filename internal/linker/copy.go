package linker

import (
	"crypto/sha256"
	"encoding/hex"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/pders01/snapsafe/internal/manifest"
)

// copyFile copies src to a new store file dst, fingerprinting the bytes as
// they are written, and makes dst read-only.
func copyFile(src, dst string) (string, error) {
	in, err := os.Open(src)
	if err != nil {
		return "", err
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0600)
	if err != nil {
		return "", err
	}

	h := sha256.New()
	if _, err := io.Copy(io.MultiWriter(out, h), in); err != nil {
		out.Close()
		os.Remove(dst)
		return "", err
	}
	if err := out.Close(); err != nil {
		os.Remove(dst)
		return "", err
	}
	if err := os.Chmod(dst, StoreFileMode); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// PlaceFile writes the store file src over dst in a working tree. The copy
// goes to a temporary sibling first and is renamed into place, so dst is
// never observed half-written. Recorded permissions and mtime are applied.
// Working-tree files are always copies: linking them would let edits
// mutate the store.
func PlaceFile(src, dst string, e manifest.Entry) error {
	if err := os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
		return err
	}

	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	tmp, err := os.CreateTemp(filepath.Dir(dst), ".snapsafe-restore-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	ok := false
	defer func() {
		if !ok {
			os.Remove(tmpName)
		}
	}()

	if _, err := io.Copy(tmp, in); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmpName, e.Mode.Perm()); err != nil {
		return err
	}
	if err := os.Chtimes(tmpName, time.Now(), e.ModTime); err != nil {
		return err
	}
	if fi, err := os.Lstat(dst); err == nil && fi.IsDir() {
		if err := os.RemoveAll(dst); err != nil {
			return err
		}
	}
	if err := os.Rename(tmpName, dst); err != nil {
		return err
	}
	ok = true
	return nil
}

// PlaceSymlink recreates a recorded symlink at dst
func PlaceSymlink(dst string, e manifest.Entry) error {
	if err := os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
		return err
	}
	if fi, err := os.Lstat(dst); err == nil {
		if fi.Mode()&os.ModeSymlink != 0 {
			if target, err := os.Readlink(dst); err == nil && target == e.Target {
				return nil
			}
		}
		if err := os.RemoveAll(dst); err != nil {
			return err
		}
	}
	return os.Symlink(e.Target, dst)
}

// PlaceDir ensures a recorded directory exists at dst
func PlaceDir(dst string, e manifest.Entry) error {
	if fi, err := os.Lstat(dst); err == nil && !fi.IsDir() {
		if err := os.Remove(dst); err != nil {
			return err
		}
	}
	if err := os.MkdirAll(dst, 0755); err != nil {
		return err
	}
	return os.Chmod(dst, e.Mode.Perm())
}
