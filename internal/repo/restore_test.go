package repo

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	metrics "github.com/rcrowley/go-metrics"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pders01/snapsafe/internal/snaperr"
	"github.com/pders01/snapsafe/internal/testutil"
)

func TestRestoreInPlace(t *testing.T) {
	tree, r := newRepo(t)
	defer tree.Cleanup()
	ctx := context.Background()

	tree.CreateFile("a.txt", "alpha")
	tree.CreateFile("dir/b.txt", "beta")
	tree.CreateFile(".snapsafeignore", "build\n")
	snapshot(t, r, "good state")

	tree.Remove("a.txt")
	tree.CreateFile("dir/b.txt", "beta, edited")
	tree.CreateFile("extra.txt", "untracked")
	tree.CreateFile("newdir/c.txt", "also untracked")
	tree.CreateFile("build/out.o", "ignored output")

	res, err := r.Restore(ctx, "latest", RestoreOptions{})
	require.NoError(t, err)
	assert.Equal(t, "alpha", tree.ReadFile("a.txt"))
	assert.Equal(t, "beta", tree.ReadFile("dir/b.txt"))
	assert.False(t, tree.FileExists("extra.txt"))
	assert.False(t, tree.FileExists("newdir"))
	assert.True(t, tree.FileExists("build/out.o"), "ignored paths are left alone")
	assert.Contains(t, res.Removed, "extra.txt")
	assert.Contains(t, res.Removed, "newdir/c.txt")
	assert.Equal(t, 2, res.Written)
	assert.Nil(t, res.Backup)

	// restored files are private copies
	stored := r.dataDir(res.Snapshot.ID) + "/a.txt"
	assert.NotEqual(t, tree.Inode(stored), tree.Inode(tree.Abs("a.txt")))

	// the restored tree is what the snapshot recorded
	again := snapshot(t, r, "after restore")
	assert.Equal(t, 0, again.New+again.Modified+again.Deleted)
}

func TestRestoreKeepsUpToDateFiles(t *testing.T) {
	tree, r := newRepo(t)
	defer tree.Cleanup()

	tree.CreateFile("a.txt", "alpha")
	tree.CreateFile("b.txt", "beta")
	snapshot(t, r, "one")
	tree.CreateFile("b.txt", "beta!")

	res, err := r.Restore(context.Background(), "v1.0.0.0", RestoreOptions{})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Kept)
	assert.Equal(t, 1, res.Written)
}

func TestRestoreWithBackup(t *testing.T) {
	tree, r := newRepo(t)
	defer tree.Cleanup()
	ctx := context.Background()

	tree.CreateFile("a.txt", "v1")
	snapshot(t, r, "one")
	tree.CreateFile("a.txt", "v2 unsaved")

	res, err := r.Restore(ctx, "v1.0.0.0", RestoreOptions{Backup: true})
	require.NoError(t, err)
	require.NotNil(t, res.Backup)
	assert.Equal(t, "v1.0.0.1", res.Backup.Snapshot.ID.String())
	assert.Equal(t, "v1", tree.ReadFile("a.txt"))

	_, md, err := r.Metadata(ctx, "v1.0.0.1")
	require.NoError(t, err)
	assert.True(t, md.HasTag("backup"))

	// the unsaved edit is recoverable from the backup
	_, err = r.Restore(ctx, "v1.0.0.1", RestoreOptions{})
	require.NoError(t, err)
	assert.Equal(t, "v2 unsaved", tree.ReadFile("a.txt"))
}

func TestRestoreAutobackup(t *testing.T) {
	tree, r := newRepo(t)
	defer tree.Cleanup()
	ctx := context.Background()

	_, err := r.SetConfig(ctx, "autobackup", "true", false)
	require.NoError(t, err)
	tree.CreateFile("a.txt", "v1")
	snapshot(t, r, "one")
	tree.CreateFile("a.txt", "v22")

	res, err := r.Restore(ctx, "latest", RestoreOptions{})
	require.NoError(t, err)
	assert.NotNil(t, res.Backup)
}

func TestRestoreToTarget(t *testing.T) {
	tree, r := newRepo(t)
	defer tree.Cleanup()

	tree.CreateFile("a.txt", "alpha")
	tree.Mkdir("empty")
	require.NoError(t, os.Symlink("a.txt", tree.Abs("link")))
	require.NoError(t, os.Chmod(tree.Abs("a.txt"), 0600))
	snapshot(t, r, "one")

	target := filepath.Join(t.TempDir(), "checkout")
	res, err := r.Restore(context.Background(), "latest", RestoreOptions{Target: target, Backup: true})
	require.NoError(t, err)
	assert.Nil(t, res.Backup, "backups only apply to in-place restores")

	data, err := os.ReadFile(filepath.Join(target, "a.txt"))
	require.NoError(t, err)
	assert.Equal(t, "alpha", string(data))
	info, err := os.Stat(filepath.Join(target, "a.txt"))
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())

	linkTarget, err := os.Readlink(filepath.Join(target, "link"))
	require.NoError(t, err)
	assert.Equal(t, "a.txt", linkTarget)

	fi, err := os.Stat(filepath.Join(target, "empty"))
	require.NoError(t, err)
	assert.True(t, fi.IsDir())

	// working tree untouched
	assert.Equal(t, "alpha", tree.ReadFile("a.txt"))
}

func TestRestoreIntoControlDir(t *testing.T) {
	tree, r := newRepo(t)
	defer tree.Cleanup()

	tree.CreateFile("a.txt", "alpha")
	snapshot(t, r, "one")

	_, err := r.Restore(context.Background(), "latest", RestoreOptions{Target: filepath.Join(r.ControlDir, "x")})
	assert.True(t, snaperr.Is(err, snaperr.KindUser))
}

func TestRestoreRefusesUnsafeTargets(t *testing.T) {
	// the repository lives in parent/work next to an unrelated project
	parent := testutil.NewTempTree(t)
	defer parent.Cleanup()
	parent.CreateFile("other-project/precious.txt", "not tracked anywhere")
	parent.CreateFile("work/a.txt", "alpha")
	parent.CreateFile("busy/file.txt", "already here")

	r, err := Init(parent.Abs("work"), Options{Registry: metrics.NewRegistry()})
	require.NoError(t, err)
	ctx := context.Background()
	snapshot(t, r, "one")
	parent.CreateFile("work/draft.txt", "unsnapshotted edit")

	tests := []struct {
		name   string
		target string
	}{
		{"parent of the root", parent.Path},
		{"relative parent", filepath.Join(r.Root, "..")},
		{"inside the working tree", filepath.Join(r.Root, "sub")},
		{"non-empty directory", parent.Abs("busy")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := r.Restore(ctx, "latest", RestoreOptions{Target: tt.target})
			require.Error(t, err)
			assert.True(t, snaperr.Is(err, snaperr.KindUser), "got %v", err)
		})
	}

	assert.Equal(t, "not tracked anywhere", parent.ReadFile("other-project/precious.txt"))
	assert.Equal(t, "unsnapshotted edit", parent.ReadFile("work/draft.txt"))
	assert.Equal(t, "already here", parent.ReadFile("busy/file.txt"))
	assert.False(t, parent.FileExists("work/sub"))
}

func TestRestoreTargetNamingRootIsInPlace(t *testing.T) {
	tree, r := newRepo(t)
	defer tree.Cleanup()

	tree.CreateFile("a.txt", "alpha")
	snapshot(t, r, "one")
	tree.CreateFile("extra.txt", "untracked")

	target, inPlace, err := r.RestoreTarget(filepath.Join(r.Root, "sub", ".."))
	require.NoError(t, err)
	assert.True(t, inPlace)
	assert.Equal(t, r.Root, target)

	res, err := r.Restore(context.Background(), "latest", RestoreOptions{Target: r.Root + "/."})
	require.NoError(t, err)
	assert.Equal(t, []string{"extra.txt"}, res.Removed)
	assert.False(t, tree.FileExists("extra.txt"))
}

func TestRestoreTargetOutsideTree(t *testing.T) {
	tree, r := newRepo(t)
	defer tree.Cleanup()

	empty := t.TempDir()
	target, inPlace, err := r.RestoreTarget(empty)
	require.NoError(t, err)
	assert.False(t, inPlace)
	assert.Equal(t, empty, target)

	missing := filepath.Join(t.TempDir(), "a", "b")
	_, inPlace, err = r.RestoreTarget(missing)
	require.NoError(t, err)
	assert.False(t, inPlace)
}

func TestRestorePreflightLeavesTreeUntouched(t *testing.T) {
	tree, r := newRepo(t)
	defer tree.Cleanup()

	tree.CreateFile("a.txt", "alpha")
	tree.CreateFile("b.txt", "beta")
	res := snapshot(t, r, "one")
	tree.CreateFile("extra.txt", "keep me")

	require.NoError(t, os.Remove(r.dataDir(res.Snapshot.ID)+"/b.txt"))

	_, err := r.Restore(context.Background(), "latest", RestoreOptions{})
	require.Error(t, err)
	assert.True(t, snaperr.Is(err, snaperr.KindIntegrity))
	assert.True(t, tree.FileExists("extra.txt"))
}

func TestRestoreUnknownSnapshot(t *testing.T) {
	tree, r := newRepo(t)
	defer tree.Cleanup()

	tree.CreateFile("a.txt", "alpha")
	snapshot(t, r, "one")

	_, err := r.Restore(context.Background(), "v4.0.0.0", RestoreOptions{})
	assert.True(t, snaperr.Is(err, snaperr.KindUser))
	assert.Equal(t, "alpha", tree.ReadFile("a.txt"))
}

func TestIsWithin(t *testing.T) {
	assert.True(t, isWithin("/a/b/c", "/a/b"))
	assert.True(t, isWithin("/a/b", "/a/b"))
	assert.False(t, isWithin("/a/bc", "/a/b"))
	assert.False(t, isWithin("/a", "/a/b"))
}
