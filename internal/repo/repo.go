// Package repo ties the snapshot engine together: it owns the control
// directory, the snapshot index and the repository lock, and drives the
// detector, allocator, manifest store, diff, retention and verifier.
package repo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	metrics "github.com/rcrowley/go-metrics"
	log "github.com/sirupsen/logrus"

	"github.com/pders01/snapsafe/internal/config"
	"github.com/pders01/snapsafe/internal/fsutil"
	"github.com/pders01/snapsafe/internal/models"
	"github.com/pders01/snapsafe/internal/snaperr"
)

// ControlDirName is the control directory created inside the root
const ControlDirName = ".snapsafe"

// FormatVersion is the on-disk layout version written at init
const FormatVersion = 1

const (
	infoFile     = "repo.json"
	indexFile    = "index.json"
	metadataFile = "metadata.json"
	lockFile     = "lock"
	snapshotsDir = "snapshots"
	tmpDir       = "tmp"
	dataDirName  = "data"
)

// Info is the repository record written once at init.
type Info struct {
	Format        int       `json:"format"`
	UUID          string    `json:"uuid"`
	CreatedAt     time.Time `json:"created_at"`
	CaseSensitive bool      `json:"case_sensitive"`
}

// Options tune a repository handle.
type Options struct {
	// Workers bounds parallel fingerprinting and verification.
	Workers int
	// LockTimeout is how long to wait for the exclusive lock; zero fails fast.
	LockTimeout time.Duration
	// Registry receives engine counters; nil disables metrics.
	Registry metrics.Registry
}

// Repository is an initialised snapshot repository.
type Repository struct {
	Root       string
	ControlDir string
	RepoInfo   Info

	opts Options
	now  func() time.Time
}

// Init creates the control directory under root.
func Init(root string, opts Options) (*Repository, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, snaperr.IO("init", root, err)
	}
	fi, err := os.Stat(abs)
	if err != nil {
		return nil, snaperr.IO("init", abs, err)
	}
	if !fi.IsDir() {
		return nil, snaperr.User("init", "%s is not a directory", abs)
	}

	r := newRepository(abs, opts)
	if _, err := os.Stat(filepath.Join(r.ControlDir, infoFile)); err == nil {
		return nil, &snaperr.Error{Kind: snaperr.KindUser, Op: "init", Path: abs, Err: snaperr.ErrAlreadyInitialized}
	}

	for _, dir := range []string{r.ControlDir, filepath.Join(r.ControlDir, snapshotsDir), filepath.Join(r.ControlDir, tmpDir)} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, snaperr.IO("init", dir, err)
		}
	}

	caseSensitive, err := probeCaseSensitive(r.ControlDir)
	if err != nil {
		return nil, snaperr.IO("init", r.ControlDir, err)
	}
	r.RepoInfo = Info{
		Format:        FormatVersion,
		UUID:          uuid.NewString(),
		CreatedAt:     r.now().UTC(),
		CaseSensitive: caseSensitive,
	}

	if err := r.writeIndex(nil); err != nil {
		return nil, err
	}
	if err := config.DefaultRepo().Save(r.configPath()); err != nil {
		return nil, snaperr.IO("init", r.configPath(), err)
	}
	// repo.json last: its presence marks a complete init
	data, err := json.MarshalIndent(r.RepoInfo, "", "  ")
	if err != nil {
		return nil, snaperr.IO("init", infoFile, err)
	}
	if err := fsutil.WriteFileAtomic(filepath.Join(r.ControlDir, infoFile), data, 0644); err != nil {
		return nil, snaperr.IO("init", infoFile, err)
	}

	log.WithFields(log.Fields{"root": abs, "uuid": r.RepoInfo.UUID, "case_sensitive": caseSensitive}).Info("initialized repository")
	return r, nil
}

// Open loads the repository rooted at root.
func Open(root string, opts Options) (*Repository, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, snaperr.IO("open", root, err)
	}
	r := newRepository(abs, opts)

	data, err := os.ReadFile(filepath.Join(r.ControlDir, infoFile))
	if errors.Is(err, os.ErrNotExist) {
		return nil, &snaperr.Error{Kind: snaperr.KindUser, Op: "open", Path: abs, Err: snaperr.ErrNotInitialized}
	}
	if err != nil {
		return nil, snaperr.IO("open", infoFile, err)
	}
	if err := json.Unmarshal(data, &r.RepoInfo); err != nil {
		return nil, snaperr.Integrity("open", "", infoFile, err)
	}
	if r.RepoInfo.Format > FormatVersion {
		return nil, snaperr.User("open", "repository format %d is newer than supported format %d", r.RepoInfo.Format, FormatVersion)
	}
	return r, nil
}

func newRepository(root string, opts Options) *Repository {
	if opts.Workers < 1 {
		opts.Workers = 1
	}
	return &Repository{
		Root:       root,
		ControlDir: filepath.Join(root, ControlDirName),
		opts:       opts,
		now:        time.Now,
	}
}

// SetClock replaces the time source used for snapshot timestamps and
// retention cut-offs.
func (r *Repository) SetClock(now func() time.Time) {
	r.now = now
}

// FoldCase reports whether paths compare case-insensitively
func (r *Repository) FoldCase() bool {
	return !r.RepoInfo.CaseSensitive
}

func (r *Repository) snapshotDir(id models.SnapshotID) string {
	return filepath.Join(r.ControlDir, snapshotsDir, models.DirName(id))
}

func (r *Repository) dataDir(id models.SnapshotID) string {
	return filepath.Join(r.snapshotDir(id), dataDirName)
}

func (r *Repository) configPath() string {
	return filepath.Join(r.ControlDir, config.RepoFile)
}

// storePath resolves a manifest store path against the control directory
func (r *Repository) storePath(p string) string {
	return filepath.Join(r.ControlDir, filepath.FromSlash(p))
}

// probeCaseSensitive creates a file in dir and checks whether its
// upper-cased name resolves to the same file.
func probeCaseSensitive(dir string) (bool, error) {
	f, err := os.CreateTemp(dir, ".case-probe-*")
	if err != nil {
		return false, err
	}
	name := f.Name()
	f.Close()
	defer os.Remove(name)

	upper := filepath.Join(dir, strings.ToUpper(filepath.Base(name)))
	a, err := os.Stat(name)
	if err != nil {
		return false, err
	}
	b, err := os.Stat(upper)
	if errors.Is(err, os.ErrNotExist) {
		return true, nil
	}
	if err != nil {
		return false, err
	}
	return !os.SameFile(a, b), nil
}

// Config loads the per-repository settings
func (r *Repository) Config() (*config.Repo, error) {
	c, err := config.LoadRepo(r.configPath())
	if err != nil {
		return nil, snaperr.IO("config", r.configPath(), err)
	}
	return c, nil
}

// SetConfig validates and stores one per-repository setting.
// With unset the key returns to its default.
func (r *Repository) SetConfig(ctx context.Context, key, value string, unset bool) (*config.Repo, error) {
	l, err := r.lockExclusive(ctx, "config")
	if err != nil {
		return nil, err
	}
	defer l.release()

	c, err := r.Config()
	if err != nil {
		return nil, err
	}
	if unset {
		err = c.Unset(key)
	} else {
		err = c.Set(key, value)
	}
	if err != nil {
		return nil, snaperr.User("config", "%v", err)
	}
	if err := c.Save(r.configPath()); err != nil {
		return nil, snaperr.IO("config", r.configPath(), err)
	}
	return c, nil
}

func (r *Repository) String() string {
	return fmt.Sprintf("repository %s (%s)", r.Root, r.RepoInfo.UUID)
}
