package detect

import (
	"bufio"
	"errors"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// IgnoreFile lists extra names to leave out of snapshots, one per line.
const IgnoreFile = ".snapsafeignore"

// DefaultIgnore is always applied in addition to IgnoreFile
var DefaultIgnore = []string{
	".git",
	".gitignore",
	"target",
	".DS_Store",
	IgnoreFile,
}

// Ignore matches paths having any component equal to an ignored name.
type Ignore struct {
	names map[string]struct{}
}

// NewIgnore builds a matcher from names
func NewIgnore(names ...string) *Ignore {
	ig := &Ignore{names: make(map[string]struct{}, len(names))}
	for _, n := range names {
		ig.names[n] = struct{}{}
	}
	return ig
}

// LoadIgnore reads root/.snapsafeignore on top of the defaults and controlDir.
// A missing ignore file is not an error.
func LoadIgnore(root, controlDir string) (*Ignore, error) {
	ig := NewIgnore(append([]string{controlDir}, DefaultIgnore...)...)

	f, err := os.Open(filepath.Join(root, IgnoreFile))
	if errors.Is(err, os.ErrNotExist) {
		return ig, nil
	}
	if err != nil {
		return nil, err
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		ig.names[line] = struct{}{}
	}
	return ig, scanner.Err()
}

// Match reports whether the slash separated relative path is ignored
func (ig *Ignore) Match(rel string) bool {
	if ig == nil {
		return false
	}
	for _, part := range strings.Split(rel, "/") {
		if _, ok := ig.names[part]; ok {
			return true
		}
	}
	return false
}

// Names returns the ignored names in sorted order
func (ig *Ignore) Names() []string {
	names := make([]string, 0, len(ig.names))
	for n := range ig.names {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
