package testutil

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/pders01/snapsafe/internal/fsutil"
)

// TempTree is a temporary working tree for testing
type TempTree struct {
	Path string
	T    *testing.T
}

// NewTempTree creates a new temporary working tree
func NewTempTree(t *testing.T) *TempTree {
	t.Helper()

	tmpDir, err := os.MkdirTemp("", "snapsafe-test-*")
	if err != nil {
		t.Fatalf("failed to create temp dir: %v", err)
	}
	// MkdirTemp may hand out a symlinked path (macOS /var)
	if resolved, err := filepath.EvalSymlinks(tmpDir); err == nil {
		tmpDir = resolved
	}

	return &TempTree{
		Path: tmpDir,
		T:    t,
	}
}

// Cleanup removes the temporary tree. Store files are read-only, so
// directories are made writable first.
func (r *TempTree) Cleanup() {
	r.T.Helper()
	filepath.Walk(r.Path, func(path string, info os.FileInfo, err error) error {
		if err == nil && info.IsDir() {
			os.Chmod(path, 0755)
		}
		return nil
	})
	if err := os.RemoveAll(r.Path); err != nil {
		r.T.Errorf("failed to cleanup temp tree: %v", err)
	}
}

// Abs returns the absolute path of name inside the tree
func (r *TempTree) Abs(name string) string {
	return filepath.Join(r.Path, filepath.FromSlash(name))
}

// CreateFile creates a file in the tree
func (r *TempTree) CreateFile(name, content string) {
	r.T.Helper()
	r.WriteBytes(name, []byte(content))
}

// WriteBytes creates a file with binary content
func (r *TempTree) WriteBytes(name string, data []byte) {
	r.T.Helper()
	path := r.Abs(name)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		r.T.Fatalf("failed to create directory: %v", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		r.T.Fatalf("failed to create file: %v", err)
	}
}

// Mkdir creates a directory in the tree
func (r *TempTree) Mkdir(name string) {
	r.T.Helper()
	if err := os.MkdirAll(r.Abs(name), 0755); err != nil {
		r.T.Fatalf("failed to create directory: %v", err)
	}
}

// Remove deletes a path from the tree
func (r *TempTree) Remove(name string) {
	r.T.Helper()
	if err := os.RemoveAll(r.Abs(name)); err != nil {
		r.T.Fatalf("failed to remove %s: %v", name, err)
	}
}

// Touch sets the modification time of name without changing content
func (r *TempTree) Touch(name string, mtime time.Time) {
	r.T.Helper()
	if err := os.Chtimes(r.Abs(name), mtime, mtime); err != nil {
		r.T.Fatalf("failed to touch %s: %v", name, err)
	}
}

// ReadFile returns the content of name
func (r *TempTree) ReadFile(name string) string {
	r.T.Helper()
	data, err := os.ReadFile(r.Abs(name))
	if err != nil {
		r.T.Fatalf("failed to read %s: %v", name, err)
	}
	return string(data)
}

// FileExists checks if a path exists without following symlinks
func (r *TempTree) FileExists(name string) bool {
	r.T.Helper()
	_, err := os.Lstat(r.Abs(name))
	return err == nil
}

// Inode returns the inode identity of an absolute path
func (r *TempTree) Inode(path string) fsutil.FileID {
	r.T.Helper()
	id, _, err := fsutil.Identify(path)
	if err != nil {
		r.T.Fatalf("failed to stat %s: %v", path, err)
	}
	return id
}

// LinkCount returns the hard link count of an absolute path
func (r *TempTree) LinkCount(path string) uint64 {
	r.T.Helper()
	n, err := fsutil.LinkCount(path)
	if err != nil {
		r.T.Fatalf("failed to stat %s: %v", path, err)
	}
	return n
}
