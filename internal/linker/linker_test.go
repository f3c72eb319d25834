package linker

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	metrics "github.com/rcrowley/go-metrics"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"

	"github.com/pders01/snapsafe/internal/detect"
	"github.com/pders01/snapsafe/internal/manifest"
	"github.com/pders01/snapsafe/internal/testutil"
)

type fixture struct {
	tree    *testutil.TempTree
	control string
	pool    map[string]string
	reg     metrics.Registry
}

func newFixture(t *testing.T) *fixture {
	tree := testutil.NewTempTree(t)
	control := tree.Abs(".snapsafe")
	require.NoError(t, os.MkdirAll(control, 0755))
	return &fixture{tree: tree, control: control, pool: make(map[string]string), reg: metrics.NewRegistry()}
}

func (f *fixture) snapshot(t *testing.T, name string, prev *manifest.Manifest, link func(string, string) error) *Result {
	t.Helper()
	changes, err := detect.Detect(context.Background(), f.tree.Path, prev, detect.Options{Ignore: detect.NewIgnore(".snapsafe")})
	require.NoError(t, err)

	prefix := "snapshots/" + name + "/data"
	a := &Allocator{
		ControlDir:  f.control,
		StoreDir:    filepath.Join(f.control, filepath.FromSlash(prefix)),
		StorePrefix: prefix,
		Pool:        f.pool,
		Registry:    f.reg,
		Link:        link,
	}
	res, err := a.Allocate(context.Background(), changes.Changes)
	require.NoError(t, err)
	return res
}

func (f *fixture) store(name, p string) string {
	return filepath.Join(f.control, "snapshots", name, "data", filepath.FromSlash(p))
}

func counter(reg metrics.Registry, name string) int64 {
	if c, ok := reg.Get(name).(metrics.Counter); ok {
		return c.Count()
	}
	return 0
}

func TestAllocateCopiesThenLinks(t *testing.T) {
	f := newFixture(t)
	defer f.tree.Cleanup()

	f.tree.CreateFile("app.bin", "large binary")
	f.tree.CreateFile("conf/app.ini", "x=1")
	f.tree.Mkdir("logs")

	first := f.snapshot(t, "s1", nil, nil)
	assert.Equal(t, ActionCopy, first.Actions["app.bin"])
	assert.Equal(t, ActionNone, first.Actions["logs"])
	assert.Equal(t, 2, first.Manifest.FileCount)

	// Store files are read-only copies, not links to the working tree
	info, err := os.Stat(f.store("s1", "app.bin"))
	require.NoError(t, err)
	assert.Equal(t, StoreFileMode, info.Mode().Perm())
	assert.NotEqual(t, f.tree.Inode(f.tree.Abs("app.bin")), f.tree.Inode(f.store("s1", "app.bin")))

	e, ok := first.Manifest.Lookup("app.bin")
	require.True(t, ok)
	assert.Equal(t, "snapshots/s1/data/app.bin", e.StorePath)
	assert.Equal(t, manifest.FingerprintBytes([]byte("large binary")), e.Fingerprint)

	f.tree.CreateFile("conf/app.ini", "x=22")
	second := f.snapshot(t, "s2", first.Manifest, nil)

	assert.Equal(t, ActionLink, second.Actions["app.bin"])
	assert.Equal(t, ActionCopy, second.Actions["conf/app.ini"])
	assert.Equal(t, f.tree.Inode(f.store("s1", "app.bin")), f.tree.Inode(f.store("s2", "app.bin")))
	assert.Equal(t, uint64(2), f.tree.LinkCount(f.store("s2", "app.bin")))
	assert.NotEqual(t, f.tree.Inode(f.store("s1", "conf/app.ini")), f.tree.Inode(f.store("s2", "conf/app.ini")))

	assert.Equal(t, int64(1), counter(f.reg, MetricLinked))
	assert.Equal(t, int64(3), counter(f.reg, MetricCopied))
}

func TestAllocateDeduplicatesIdenticalContent(t *testing.T) {
	f := newFixture(t)
	defer f.tree.Cleanup()

	f.tree.CreateFile("a.bin", "same bytes")
	first := f.snapshot(t, "s1", nil, nil)

	f.tree.CreateFile("copy-of-a.bin", "same bytes")
	second := f.snapshot(t, "s2", first.Manifest, nil)

	assert.Equal(t, ActionDedup, second.Actions["copy-of-a.bin"])
	assert.Equal(t, f.tree.Inode(f.store("s1", "a.bin")), f.tree.Inode(f.store("s2", "copy-of-a.bin")))
	assert.Equal(t, int64(1), counter(f.reg, MetricDeduped))
}

func TestAllocateCrossDeviceFallback(t *testing.T) {
	f := newFixture(t)
	defer f.tree.Cleanup()

	f.tree.CreateFile("a.bin", "content")
	first := f.snapshot(t, "s1", nil, nil)

	xdev := func(oldname, newname string) error {
		return &os.LinkError{Op: "link", Old: oldname, New: newname, Err: unix.EXDEV}
	}
	second := f.snapshot(t, "s2", first.Manifest, xdev)

	assert.Equal(t, ActionCopyCrossDevice, second.Actions["a.bin"])
	assert.NotEqual(t, f.tree.Inode(f.store("s1", "a.bin")), f.tree.Inode(f.store("s2", "a.bin")))
	data, err := os.ReadFile(f.store("s2", "a.bin"))
	require.NoError(t, err)
	assert.Equal(t, "content", string(data))
	assert.Equal(t, int64(1), counter(f.reg, MetricCrossDevice))
}

func TestAllocateLinkFailureAborts(t *testing.T) {
	f := newFixture(t)
	defer f.tree.Cleanup()

	f.tree.CreateFile("a.bin", "content")
	first := f.snapshot(t, "s1", nil, nil)

	changes, err := detect.Detect(context.Background(), f.tree.Path, first.Manifest, detect.Options{Ignore: detect.NewIgnore(".snapsafe")})
	require.NoError(t, err)
	a := &Allocator{
		ControlDir:  f.control,
		StoreDir:    f.store("s2", ""),
		StorePrefix: "snapshots/s2/data",
		Link: func(oldname, newname string) error {
			return &os.LinkError{Op: "link", Old: oldname, New: newname, Err: unix.EPERM}
		},
	}
	_, err = a.Allocate(context.Background(), changes.Changes)
	assert.Error(t, err)
}

func TestPlaceFileRestoresModeAndTime(t *testing.T) {
	f := newFixture(t)
	defer f.tree.Cleanup()

	f.tree.CreateFile("script.sh", "#!/bin/sh\n")
	require.NoError(t, os.Chmod(f.tree.Abs("script.sh"), 0750))
	res := f.snapshot(t, "s1", nil, nil)
	e, ok := res.Manifest.Lookup("script.sh")
	require.True(t, ok)

	dst := filepath.Join(t.TempDir(), "out", "script.sh")
	require.NoError(t, PlaceFile(f.store("s1", "script.sh"), dst, e))

	info, err := os.Stat(dst)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0750), info.Mode().Perm())
	assert.True(t, info.ModTime().Equal(e.ModTime))
	assert.NotEqual(t, f.tree.Inode(f.store("s1", "script.sh")), f.tree.Inode(dst))
}

func TestPlaceSymlink(t *testing.T) {
	dir := t.TempDir()
	dst := filepath.Join(dir, "link")
	require.NoError(t, os.WriteFile(dst, []byte("file in the way"), 0644))

	require.NoError(t, PlaceSymlink(dst, manifest.Entry{Path: "link", Kind: manifest.KindSymlink, Target: "elsewhere"}))
	target, err := os.Readlink(dst)
	require.NoError(t, err)
	assert.Equal(t, "elsewhere", target)
}
