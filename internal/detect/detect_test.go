package detect

import (
	"context"
	"os"
	"path/filepath"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pders01/snapsafe/internal/manifest"
	"github.com/pders01/snapsafe/internal/testutil"
)

// record turns a detection result into the manifest a snapshot would store
func record(t *testing.T, res *Result) *manifest.Manifest {
	t.Helper()
	var entries []manifest.Entry
	for _, c := range res.Changes {
		if c.Status == Deleted {
			continue
		}
		entries = append(entries, manifest.Entry{
			Path:        c.Path,
			Kind:        c.Current.Kind,
			Size:        c.Current.Size,
			ModTime:     c.Current.ModTime,
			Mode:        c.Current.Mode,
			Fingerprint: c.Fingerprint,
			Target:      c.Current.Target,
		})
	}
	return manifest.New(entries)
}

func statuses(res *Result) map[string]Status {
	out := make(map[string]Status, len(res.Changes))
	for _, c := range res.Changes {
		out[c.Path] = c.Status
	}
	return out
}

func TestDetectFirstSnapshot(t *testing.T) {
	tree := testutil.NewTempTree(t)
	defer tree.Cleanup()

	tree.CreateFile("a.txt", "a")
	tree.CreateFile("dir/b.txt", "b")
	tree.Mkdir("empty")
	tree.CreateFile(".git/HEAD", "ref")
	require.NoError(t, os.Symlink("a.txt", tree.Abs("link")))

	res, err := Detect(context.Background(), tree.Path, nil, Options{Ignore: NewIgnore(DefaultIgnore...)})
	require.NoError(t, err)

	assert.Equal(t, map[string]Status{
		"a.txt":     New,
		"dir/b.txt": New,
		"empty":     New,
		"link":      New,
	}, statuses(res))

	for _, c := range res.Changes {
		switch c.Current.Kind {
		case manifest.KindFile:
			assert.Len(t, c.Fingerprint, 64, c.Path)
		case manifest.KindSymlink:
			assert.Equal(t, "a.txt", c.Current.Target)
			assert.Empty(t, c.Fingerprint)
		}
	}
}

func TestDetectChanges(t *testing.T) {
	tree := testutil.NewTempTree(t)
	defer tree.Cleanup()
	ctx := context.Background()
	opts := Options{Ignore: NewIgnore(), Workers: 4}

	tree.CreateFile("same.txt", "same")
	tree.CreateFile("touched.txt", "touched")
	tree.CreateFile("edited.txt", "v1")
	tree.CreateFile("gone.txt", "gone")
	first, err := Detect(ctx, tree.Path, nil, opts)
	require.NoError(t, err)
	prev := record(t, first)

	later := time.Now().Add(time.Hour)
	tree.Touch("touched.txt", later)
	tree.CreateFile("edited.txt", "v2!")
	tree.Touch("edited.txt", later)
	tree.Remove("gone.txt")
	tree.CreateFile("new.txt", "new")

	res, err := Detect(ctx, tree.Path, prev, opts)
	require.NoError(t, err)

	assert.Equal(t, map[string]Status{
		"same.txt":    Unchanged,
		"touched.txt": Unchanged,
		"edited.txt":  Modified,
		"gone.txt":    Deleted,
		"new.txt":     New,
	}, statuses(res))
	assert.Equal(t, 1, res.Count(Modified))
	assert.Equal(t, 2, res.Count(Unchanged))
}

func TestDetectCheapPathSkipsReading(t *testing.T) {
	tree := testutil.NewTempTree(t)
	defer tree.Cleanup()
	ctx := context.Background()

	tree.CreateFile("big.bin", "content")
	first, err := Detect(ctx, tree.Path, nil, Options{})
	require.NoError(t, err)
	prev := record(t, first)

	// An unreadable file with matching size and mtime is never opened
	require.NoError(t, os.Chmod(tree.Abs("big.bin"), 0))
	defer os.Chmod(tree.Abs("big.bin"), 0644)

	res, err := Detect(ctx, tree.Path, prev, Options{})
	require.NoError(t, err)
	require.Len(t, res.Changes, 1)
	assert.Equal(t, Unchanged, res.Changes[0].Status)
	assert.Equal(t, prev.Entries[0].Fingerprint, res.Changes[0].Fingerprint)
}

func TestDetectKindChange(t *testing.T) {
	tree := testutil.NewTempTree(t)
	defer tree.Cleanup()
	ctx := context.Background()

	tree.CreateFile("x", "file")
	first, err := Detect(ctx, tree.Path, nil, Options{})
	require.NoError(t, err)
	prev := record(t, first)

	tree.Remove("x")
	tree.Mkdir("x")

	res, err := Detect(ctx, tree.Path, prev, Options{})
	require.NoError(t, err)
	assert.Equal(t, map[string]Status{"x": Modified}, statuses(res))
}

func TestDetectFoldCase(t *testing.T) {
	tree := testutil.NewTempTree(t)
	defer tree.Cleanup()
	ctx := context.Background()

	prev := manifest.New([]manifest.Entry{{
		Path: "README.MD", Kind: manifest.KindFile, Size: 2,
		Fingerprint: manifest.FingerprintBytes([]byte("hi")),
	}})
	tree.CreateFile("readme.md", "hi")

	res, err := Detect(ctx, tree.Path, prev, Options{FoldCase: true})
	require.NoError(t, err)
	assert.Equal(t, map[string]Status{"readme.md": Unchanged}, statuses(res))
}

func TestDetectSkipsSpecialFiles(t *testing.T) {
	tree := testutil.NewTempTree(t)
	defer tree.Cleanup()

	tree.CreateFile("a.txt", "a")
	if err := syscall.Mkfifo(tree.Abs("pipe"), 0644); err != nil {
		t.Skipf("mkfifo not supported: %v", err)
	}

	res, err := Detect(context.Background(), tree.Path, nil, Options{})
	require.NoError(t, err)
	assert.Equal(t, []string{"pipe"}, res.Skipped)
	assert.Equal(t, map[string]Status{"a.txt": New}, statuses(res))
}

func TestDetectCancelled(t *testing.T) {
	tree := testutil.NewTempTree(t)
	defer tree.Cleanup()
	tree.CreateFile("a.txt", "a")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := Detect(ctx, tree.Path, nil, Options{})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestLoadIgnore(t *testing.T) {
	tree := testutil.NewTempTree(t)
	defer tree.Cleanup()

	tree.CreateFile(IgnoreFile, "# build output\nnode_modules\n\n  dist  \n")
	ig, err := LoadIgnore(tree.Path, ".snapsafe")
	require.NoError(t, err)

	tests := []struct {
		path string
		want bool
	}{
		{"node_modules/x.js", true},
		{"web/dist/app.js", true},
		{".snapsafe/index.json", true},
		{".git/config", true},
		{"src/target", true},
		{IgnoreFile, true},
		{"src/main.go", false},
		{"distribution/a", false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ig.Match(tt.path), tt.path)
	}

	// Missing ignore file falls back to the defaults
	other := filepath.Join(tree.Path, "sub")
	require.NoError(t, os.Mkdir(other, 0755))
	ig, err = LoadIgnore(other, ".snapsafe")
	require.NoError(t, err)
	assert.Contains(t, ig.Names(), ".git")
	assert.NotContains(t, ig.Names(), "node_modules")
}
