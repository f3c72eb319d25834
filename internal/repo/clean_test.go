package repo

import (
	"archive/tar"
	"bytes"
	"compress/gzip"
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pders01/snapsafe/internal/manifest"
	"github.com/pders01/snapsafe/internal/models"
	"github.com/pders01/snapsafe/internal/snaperr"
)

func TestCleanRemovesLeftovers(t *testing.T) {
	tree, r := newRepo(t)
	defer tree.Cleanup()
	ctx := context.Background()

	tree.CreateFile("a.txt", "a")
	snapshot(t, r, "one", "keep")

	tree.CreateFile(".snapsafe/tmp/v1.0.0.1-interrupted/data/a.txt", "half")
	tree.CreateFile(".snapsafe/snapshots/v9.0.0.0/manifest.json", "{}")
	require.NoError(t, r.writeMetadata(map[string]models.Metadata{
		"v1.0.0.0": {Tags: []string{"keep"}},
		"v8.0.0.0": {Tags: []string{"stale"}},
	}))

	res, err := r.Clean(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"v1.0.0.1-interrupted"}, res.Staging)
	assert.Equal(t, []string{"v9.0.0.0"}, res.Orphans)
	assert.Equal(t, []string{"v8.0.0.0"}, res.Metadata)
	assert.False(t, tree.FileExists(".snapsafe/snapshots/v9.0.0.0"))
	assert.True(t, tree.FileExists(".snapsafe/snapshots/v1.0.0.0"))

	again, err := r.Clean(ctx)
	require.NoError(t, err)
	assert.True(t, again.Empty())
}

func TestSnapshotCleansInterruptedRuns(t *testing.T) {
	tree, r := newRepo(t)
	defer tree.Cleanup()

	tree.CreateFile(".snapsafe/tmp/v1.0.0.0-crashed/data/a.txt", "half")
	tree.CreateFile("a.txt", "a")
	snapshot(t, r, "one")

	entries, err := os.ReadDir(filepath.Join(r.ControlDir, tmpDir))
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestUnindexedSnapshotIsInvisible(t *testing.T) {
	tree, r := newRepo(t)
	defer tree.Cleanup()

	tree.CreateFile("a.txt", "a")
	snapshot(t, r, "one")
	tree.CreateFile(".snapsafe/snapshots/v1.0.0.1/manifest.json", `{"entries":[],"file_count":0,"total_size":0}`)

	snaps, err := r.List(context.Background())
	require.NoError(t, err)
	assert.Len(t, snaps, 1)
	_, err = r.Resolve(context.Background(), "v1.0.0.1")
	assert.True(t, snaperr.Is(err, snaperr.KindUser))
}

func TestArchive(t *testing.T) {
	tree, r := newRepo(t)
	defer tree.Cleanup()

	tree.CreateFile("a.txt", "alpha")
	tree.Mkdir("empty")
	require.NoError(t, os.Symlink("a.txt", tree.Abs("link")))
	snapshot(t, r, "one")

	var buf bytes.Buffer
	snap, n, err := r.Archive(context.Background(), "latest", &buf)
	require.NoError(t, err)
	assert.Equal(t, "v1.0.0.0", snap.ID.String())
	assert.Equal(t, 3, n)

	gz, err := gzip.NewReader(&buf)
	require.NoError(t, err)
	tr := tar.NewReader(gz)
	got := make(map[string]*tar.Header)
	contents := make(map[string]string)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
		got[hdr.Name] = hdr
		data, err := io.ReadAll(tr)
		require.NoError(t, err)
		contents[hdr.Name] = string(data)
	}

	require.Contains(t, got, "v1.0.0.0/a.txt")
	assert.Equal(t, "alpha", contents["v1.0.0.0/a.txt"])
	require.Contains(t, got, "v1.0.0.0/empty/")
	assert.Equal(t, byte(tar.TypeDir), got["v1.0.0.0/empty/"].Typeflag)
	require.Contains(t, got, "v1.0.0.0/link")
	assert.Equal(t, "a.txt", got["v1.0.0.0/link"].Linkname)
}

func TestArchiveMissingStoreFile(t *testing.T) {
	tree, r := newRepo(t)
	defer tree.Cleanup()

	tree.CreateFile("a.txt", "alpha")
	res := snapshot(t, r, "one")
	require.NoError(t, os.Remove(r.dataDir(res.Snapshot.ID)+"/a.txt"))

	_, _, err := r.Archive(context.Background(), "latest", io.Discard)
	assert.True(t, snaperr.Is(err, snaperr.KindIntegrity))
}

func TestInfoAndStats(t *testing.T) {
	tree, r := newRepo(t)
	defer tree.Cleanup()
	ctx := context.Background()

	tree.CreateFile("main.go", "package main\n")
	tree.CreateFile("util.go", "package main\n\nfunc util() {}\n")
	tree.CreateFile("README", "readme")
	tree.Mkdir("empty")
	snapshot(t, r, "one", "release")

	info, err := r.Info(ctx, "latest")
	require.NoError(t, err)
	assert.Equal(t, 3, info.Files)
	assert.Equal(t, 1, info.Dirs)
	assert.Equal(t, "util.go", info.LargestFile)
	assert.Equal(t, []string{"release"}, info.Metadata.Tags)
	require.NotEmpty(t, info.TopExtensions)
	assert.Equal(t, ExtCount{Ext: "go", Count: 2}, info.TopExtensions[0])
	assert.Equal(t, ExtCount{Ext: "(none)", Count: 1}, info.TopExtensions[1])

	st, err := r.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, st.Snapshots)
	assert.Equal(t, []TagCount{{Tag: "release", Count: 1}}, st.ByTag)
	require.NotNil(t, st.Oldest)
	assert.Equal(t, st.Oldest, st.Newest)
}

func TestSummarizeEmpty(t *testing.T) {
	info := Summarize(manifest.Empty())
	assert.Equal(t, 0, info.Files)
	assert.Equal(t, int64(0), info.AverageSize)
	assert.Empty(t, info.TopExtensions)
}

func TestMetadataAndRenameTag(t *testing.T) {
	tree, r := newRepo(t)
	defer tree.Cleanup()
	ctx := context.Background()

	tree.CreateFile("a.txt", "a")
	snapshot(t, r, "one", "qa")
	manifestBefore := tree.ReadFile(".snapsafe/snapshots/v1.0.0.0/manifest.json")
	snapshot(t, r, "two", "qa", "nightly")

	_, md, err := r.UpdateMetadata(ctx, "v1.0.0.0", func(m *models.Metadata) error {
		m.Set("build", "1432")
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, "1432", md.Custom["build"])

	n, err := r.RenameTag(ctx, "qa", "verified")
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	all, err := r.AllMetadata(ctx)
	require.NoError(t, err)
	first, second := all["v1.0.0.0"], all["v1.0.0.1"]
	assert.True(t, first.HasTag("verified"))
	assert.False(t, second.HasTag("qa"))
	assert.True(t, second.HasTag("nightly"))

	n, err = r.RenameTag(ctx, "missing", "other")
	require.NoError(t, err)
	assert.Equal(t, 0, n)
	_, err = r.RenameTag(ctx, "", "x")
	assert.True(t, snaperr.Is(err, snaperr.KindUser))

	assert.Equal(t, manifestBefore, tree.ReadFile(".snapsafe/snapshots/v1.0.0.0/manifest.json"), "metadata never touches manifests")
}
