package output

import (
	"path"

	"github.com/disiqueira/gotree/v3"
)

// ManifestTree renders slash separated paths as an indented tree.
type ManifestTree struct {
	tree gotree.Tree
	dirs map[string]gotree.Tree
}

func NewManifestTree(rootLabel string) ManifestTree {
	return ManifestTree{tree: gotree.New(rootLabel), dirs: make(map[string]gotree.Tree)}
}

func (t ManifestTree) dir(dirPath string) gotree.Tree {
	if dirPath == "." || dirPath == "" {
		return t.tree
	}
	d := t.dirs[dirPath]
	if d == nil {
		d = t.dir(path.Dir(dirPath)).Add(path.Base(dirPath) + "/")
		t.dirs[dirPath] = d
	}
	return d
}

// Insert adds a file node. label replaces the base name when non-empty.
func (t ManifestTree) Insert(p, label string) {
	if label == "" {
		label = path.Base(p)
	}
	t.dir(path.Dir(p)).Add(label)
}

// InsertDir adds a directory node even if it has no children
func (t ManifestTree) InsertDir(p string) {
	t.dir(p)
}

func (t ManifestTree) Render() string {
	return t.tree.Print()
}
