package manifest

import (
	"bytes"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sample() *Manifest {
	mtime := time.Date(2025, 3, 1, 12, 0, 0, 123456789, time.FixedZone("CET", 3600))
	return New([]Entry{
		{Path: "z.txt", Kind: KindFile, Size: 3, ModTime: mtime, Mode: 0644, Fingerprint: FingerprintBytes([]byte("zzz")), StorePath: "snapshots/v1.0.0.0/data/z.txt"},
		{Path: "empty", Kind: KindDir, ModTime: mtime, Mode: 0755 | 1<<31},
		{Path: "a/link", Kind: KindSymlink, ModTime: mtime, Mode: 0777, Target: "../z.txt"},
		{Path: "a/b.bin", Kind: KindFile, Size: 5, ModTime: mtime, Mode: 0600, Fingerprint: FingerprintBytes([]byte("bytes")), StorePath: "snapshots/v1.0.0.0/data/a/b.bin"},
	})
}

func TestNewSortsAndCounts(t *testing.T) {
	m := sample()

	paths := make([]string, 0, len(m.Entries))
	for _, e := range m.Entries {
		paths = append(paths, e.Path)
	}
	assert.Equal(t, []string{"a/b.bin", "a/link", "empty", "z.txt"}, paths)
	assert.Equal(t, 2, m.FileCount)
	assert.Equal(t, int64(8), m.TotalSize)
	assert.Len(t, m.Files(), 2)

	e, ok := m.Lookup("empty")
	require.True(t, ok)
	assert.Equal(t, KindDir, e.Kind)
	assert.Equal(t, time.UTC, e.ModTime.Location())
	assert.Equal(t, 0755, int(e.Mode), "mode reduced to permission bits")

	_, ok = m.Lookup("missing")
	assert.False(t, ok)
}

func TestWriteReadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	m := sample()

	require.NoError(t, Write(dir, m))
	got, err := Read(dir)
	require.NoError(t, err)
	assert.Equal(t, m, got)

	// Encoding is deterministic
	a, err := Encode(m)
	require.NoError(t, err)
	b, err := Encode(got)
	require.NoError(t, err)
	assert.True(t, bytes.Equal(a, b))
}

func TestDecodeRejectsBadManifests(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{"not json", "{"},
		{"unknown field", `{"entries":[],"file_count":0,"total_size":0,"extra":1}`},
		{"out of order", `{"entries":[{"path":"b","kind":"dir","size":0,"mtime":"2025-01-01T00:00:00Z","mode":493},{"path":"a","kind":"dir","size":0,"mtime":"2025-01-01T00:00:00Z","mode":493}],"file_count":0,"total_size":0}`},
		{"duplicate", `{"entries":[{"path":"a","kind":"dir","size":0,"mtime":"2025-01-01T00:00:00Z","mode":493},{"path":"a","kind":"dir","size":0,"mtime":"2025-01-01T00:00:00Z","mode":493}],"file_count":0,"total_size":0}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode([]byte(tt.data))
			assert.Error(t, err)
		})
	}
}

func TestReadMissing(t *testing.T) {
	_, err := Read(t.TempDir())
	assert.Error(t, err)
}

func TestNormalizePath(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{"a/b", "a/b", false},
		{"./a//b/", "a/b", false},
		{"a/../b", "b", false},
		{"", "", true},
		{".", "", true},
		{"/etc/passwd", "", true},
		{"../x", "", true},
		{"a/../../x", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := NormalizePath(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestIndexFoldCase(t *testing.T) {
	m := New([]Entry{{Path: "Docs/README.md", Kind: KindFile}})
	_, ok := m.Index(true)["docs/readme.md"]
	assert.True(t, ok)
	_, ok = m.Index(false)["docs/readme.md"]
	assert.False(t, ok)
}

func TestFingerprintProperties(t *testing.T) {
	properties := gopter.NewProperties(nil)

	properties.Property("fingerprint is deterministic across readers", prop.ForAll(
		func(data []byte) bool {
			fp, err := Fingerprint(bytes.NewReader(data))
			return err == nil && fp == FingerprintBytes(data) && len(fp) == 64
		},
		gen.SliceOf(gen.UInt8()),
	))

	properties.Property("changing one byte changes the fingerprint", prop.ForAll(
		func(data []byte, pos int) bool {
			if len(data) == 0 {
				return true
			}
			i := pos % len(data)
			changed := append([]byte(nil), data...)
			changed[i]++
			return FingerprintBytes(data) != FingerprintBytes(changed)
		},
		gen.SliceOf(gen.UInt8()),
		gen.IntRange(0, 1<<20),
	))

	properties.TestingRun(t)
}
