package detect

import (
	"context"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/pders01/snapsafe/internal/manifest"
	"github.com/pders01/snapsafe/internal/snaperr"
)

// FileInfo is what the walk records for one working-tree path.
type FileInfo struct {
	Path    string // normalised, slash separated
	AbsPath string
	Kind    manifest.Kind
	Size    int64
	ModTime time.Time
	Mode    fs.FileMode
	Target  string // symlink target
}

// Tree is the result of walking a working tree.
type Tree struct {
	Files   []FileInfo // sorted by path
	Skipped []string   // special files left out of the snapshot
}

// Walk lists the regular files, symlinks and empty directories under root.
// Fifos, sockets and devices are skipped with a warning. Directories that
// contain tracked entries are implied by them and not listed.
func Walk(ctx context.Context, root string, ig *Ignore) (*Tree, error) {
	tree := &Tree{}
	nonEmpty := make(map[string]bool)
	var dirs []FileInfo

	err := filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return snaperr.IO("walk", p, err)
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if p == root {
			return nil
		}

		rel, err := filepath.Rel(root, p)
		if err != nil {
			return snaperr.IO("walk", p, err)
		}
		rel, err = manifest.NormalizePath(rel)
		if err != nil {
			return snaperr.IO("walk", p, err)
		}
		if ig.Match(rel) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}

		info, err := d.Info()
		if err != nil {
			return snaperr.IO("stat", p, err)
		}

		fi := FileInfo{
			Path:    rel,
			AbsPath: p,
			Size:    info.Size(),
			ModTime: info.ModTime(),
			Mode:    info.Mode().Perm(),
		}

		switch mode := info.Mode(); {
		case mode.IsDir():
			fi.Kind = manifest.KindDir
			fi.Size = 0
			dirs = append(dirs, fi)
			return nil
		case mode.IsRegular():
			fi.Kind = manifest.KindFile
		case mode&fs.ModeSymlink != 0:
			target, err := os.Readlink(p)
			if err != nil {
				return snaperr.IO("readlink", p, err)
			}
			fi.Kind = manifest.KindSymlink
			fi.Target = target
			fi.Size = 0
		default:
			log.WithField("path", rel).Warnf("skipping special file (%s)", mode.Type())
			tree.Skipped = append(tree.Skipped, rel)
			return nil
		}

		tree.Files = append(tree.Files, fi)
		markParents(nonEmpty, rel)
		return nil
	})
	if err != nil {
		return nil, err
	}

	// children follow their parents in walk order
	for i := len(dirs) - 1; i >= 0; i-- {
		d := dirs[i]
		if !nonEmpty[d.Path] {
			tree.Files = append(tree.Files, d)
			markParents(nonEmpty, d.Path)
		}
	}

	sort.Slice(tree.Files, func(i, j int) bool { return tree.Files[i].Path < tree.Files[j].Path })
	return tree, nil
}

func markParents(set map[string]bool, rel string) {
	for dir := path.Dir(rel); dir != "." && !set[dir]; dir = path.Dir(dir) {
		set[dir] = true
	}
}
