// Package manifest defines the per-snapshot record of tracked files and its
// durable, atomically published encoding.
package manifest

import (
	"io/fs"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/pkg/errors"
)

// Kind distinguishes what a manifest entry describes.
type Kind string

const (
	KindFile    Kind = "file"
	KindDir     Kind = "dir"
	KindSymlink Kind = "symlink"
)

// Entry describes one tracked path. Only KindFile entries carry a
// fingerprint and a store file; directories are markers for empty
// directories and symlinks record their target only.
type Entry struct {
	Path        string      `json:"path"`
	Kind        Kind        `json:"kind"`
	Size        int64       `json:"size"`
	ModTime     time.Time   `json:"mtime"`
	Mode        fs.FileMode `json:"mode"`
	Fingerprint string      `json:"fingerprint,omitempty"`
	Target      string      `json:"target,omitempty"`
	StorePath   string      `json:"store_path,omitempty"`
}

// IsFile reports whether the entry has content in the store
func (e Entry) IsFile() bool {
	return e.Kind == KindFile
}

// Manifest is the ordered-by-path set of entries of one snapshot.
type Manifest struct {
	Entries   []Entry `json:"entries"`
	FileCount int     `json:"file_count"`
	TotalSize int64   `json:"total_size"`
}

// New builds a manifest from entries, sorting them by path and computing
// the totals. Times are normalised to UTC and modes to permission bits so a
// manifest survives encoding unchanged.
func New(entries []Entry) *Manifest {
	m := &Manifest{Entries: make([]Entry, 0, len(entries))}
	for _, e := range entries {
		e.ModTime = e.ModTime.UTC()
		e.Mode = e.Mode.Perm()
		m.Entries = append(m.Entries, e)
		if e.IsFile() {
			m.FileCount++
			m.TotalSize += e.Size
		}
	}
	sort.Slice(m.Entries, func(i, j int) bool { return m.Entries[i].Path < m.Entries[j].Path })
	return m
}

// Empty returns a manifest with no entries
func Empty() *Manifest {
	return New(nil)
}

// Lookup finds the entry for p
func (m *Manifest) Lookup(p string) (Entry, bool) {
	i := sort.Search(len(m.Entries), func(i int) bool { return m.Entries[i].Path >= p })
	if i < len(m.Entries) && m.Entries[i].Path == p {
		return m.Entries[i], true
	}
	return Entry{}, false
}

// Index maps entry keys to entries. With foldCase the keys are lower-cased,
// matching a case-insensitive host filesystem.
func (m *Manifest) Index(foldCase bool) map[string]Entry {
	idx := make(map[string]Entry, len(m.Entries))
	for _, e := range m.Entries {
		idx[Key(e.Path, foldCase)] = e
	}
	return idx
}

// Files returns only the entries backed by store content
func (m *Manifest) Files() []Entry {
	var files []Entry
	for _, e := range m.Entries {
		if e.IsFile() {
			files = append(files, e)
		}
	}
	return files
}

// Key returns the comparison key for a normalised path
func Key(p string, foldCase bool) string {
	if foldCase {
		return strings.ToLower(p)
	}
	return p
}

// NormalizePath converts a relative filesystem path into the manifest form:
// slash separated, cleaned, no "..", no leading or trailing separators.
func NormalizePath(p string) (string, error) {
	if p == "" {
		return "", errors.Errorf("empty path")
	}
	if filepath.IsAbs(p) {
		return "", errors.Errorf("path %q is absolute", p)
	}
	clean := path.Clean(filepath.ToSlash(p))
	if clean == "." || clean == "/" {
		return "", errors.Errorf("path %q names the root", p)
	}
	if clean == ".." || strings.HasPrefix(clean, "../") {
		return "", errors.Errorf("path %q escapes the root", p)
	}
	return strings.TrimPrefix(clean, "/"), nil
}
