package repo

import (
	"context"
	"path"
	"sort"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/pders01/snapsafe/internal/fsutil"
	"github.com/pders01/snapsafe/internal/manifest"
	"github.com/pders01/snapsafe/internal/models"
)

// ExtCount is how many files share an extension.
type ExtCount struct {
	Ext   string `json:"ext"`
	Count int    `json:"count"`
}

// TagCount is how many snapshots carry a tag.
type TagCount struct {
	Tag   string `json:"tag"`
	Count int    `json:"count"`
}

// SnapshotInfo summarises one snapshot's manifest and metadata.
type SnapshotInfo struct {
	Snapshot      models.Snapshot    `json:"snapshot"`
	Metadata      models.Metadata    `json:"metadata"`
	Files         int                `json:"files"`
	Dirs          int                `json:"dirs"`
	Symlinks      int                `json:"symlinks"`
	TotalSize     int64              `json:"total_size"`
	LargestFile   string             `json:"largest_file,omitempty"`
	LargestSize   int64              `json:"largest_size"`
	AverageSize   int64              `json:"average_size"`
	TopExtensions []ExtCount         `json:"top_extensions"`
	Manifest      *manifest.Manifest `json:"-"`
}

// topExtensions bounds the extension ranking in SnapshotInfo
const topExtensions = 5

// Info summarises the snapshot named by ref
func (r *Repository) Info(ctx context.Context, ref string) (*SnapshotInfo, error) {
	l, err := r.lockShared(ctx, "info")
	if err != nil {
		return nil, err
	}
	defer l.release()

	snaps, err := r.readIndex()
	if err != nil {
		return nil, err
	}
	snap, err := Resolve(snaps, ref)
	if err != nil {
		return nil, err
	}
	m, err := r.readManifest(snap.ID)
	if err != nil {
		return nil, err
	}
	all, err := r.readMetadata()
	if err != nil {
		return nil, err
	}

	info := Summarize(m)
	info.Snapshot = snap
	info.Metadata = all[snap.ID.String()]
	return info, nil
}

// Summarize computes manifest statistics
func Summarize(m *manifest.Manifest) *SnapshotInfo {
	info := &SnapshotInfo{Manifest: m, TopExtensions: []ExtCount{}}
	exts := make(map[string]int)
	for _, e := range m.Entries {
		switch e.Kind {
		case manifest.KindDir:
			info.Dirs++
			continue
		case manifest.KindSymlink:
			info.Symlinks++
			continue
		}
		info.Files++
		info.TotalSize += e.Size
		if e.Size > info.LargestSize || info.LargestFile == "" {
			info.LargestFile = e.Path
			info.LargestSize = e.Size
		}
		ext := strings.ToLower(strings.TrimPrefix(path.Ext(e.Path), "."))
		if ext == "" {
			ext = "(none)"
		}
		exts[ext]++
	}
	if info.Files > 0 {
		info.AverageSize = info.TotalSize / int64(info.Files)
	}

	for ext, n := range exts {
		info.TopExtensions = append(info.TopExtensions, ExtCount{Ext: ext, Count: n})
	}
	sort.Slice(info.TopExtensions, func(i, j int) bool {
		a, b := info.TopExtensions[i], info.TopExtensions[j]
		if a.Count == b.Count {
			return a.Ext < b.Ext
		}
		return a.Count > b.Count
	})
	if len(info.TopExtensions) > topExtensions {
		info.TopExtensions = info.TopExtensions[:topExtensions]
	}
	return info
}

// RepoStats describes the whole repository. LogicalBytes counts every
// manifest entry; PhysicalBytes counts each stored inode once.
type RepoStats struct {
	Snapshots     int        `json:"snapshots"`
	Entries       int        `json:"entries"`
	LogicalBytes  int64      `json:"logical_bytes"`
	PhysicalBytes int64      `json:"physical_bytes"`
	StoredInodes  int        `json:"stored_inodes"`
	DedupRatio    float64    `json:"dedup_ratio"`
	Oldest        *time.Time `json:"oldest,omitempty"`
	Newest        *time.Time `json:"newest,omitempty"`
	ByTag         []TagCount `json:"by_tag"`
	Unreadable    []string   `json:"unreadable,omitempty"`
}

// Stats walks every manifest and counts store inodes
func (r *Repository) Stats(ctx context.Context) (*RepoStats, error) {
	l, err := r.lockShared(ctx, "stats")
	if err != nil {
		return nil, err
	}
	defer l.release()

	snaps, err := r.readIndex()
	if err != nil {
		return nil, err
	}
	all, err := r.readMetadata()
	if err != nil {
		return nil, err
	}

	st := &RepoStats{Snapshots: len(snaps), ByTag: []TagCount{}}
	if len(snaps) > 0 {
		oldest, newest := snaps[0].CreatedAt, snaps[len(snaps)-1].CreatedAt
		for _, s := range snaps {
			if s.CreatedAt.Before(oldest) {
				oldest = s.CreatedAt
			}
			if s.CreatedAt.After(newest) {
				newest = s.CreatedAt
			}
		}
		st.Oldest, st.Newest = &oldest, &newest
	}

	seen := make(map[fsutil.FileID]bool)
	tags := make(map[string]int)
	for _, s := range snaps {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		for _, t := range all[s.ID.String()].Tags {
			tags[t]++
		}
		m, err := r.readManifest(s.ID)
		if err != nil {
			st.Unreadable = append(st.Unreadable, s.ID.String())
			continue
		}
		for _, e := range m.Files() {
			st.Entries++
			st.LogicalBytes += e.Size
			id, _, err := fsutil.Identify(r.storePath(e.StorePath))
			if err != nil {
				log.WithFields(log.Fields{"snapshot": s.ID.String(), "path": e.Path}).Debugf("store file not readable: %v", err)
				continue
			}
			if !seen[id] {
				seen[id] = true
				st.PhysicalBytes += e.Size
			}
		}
	}
	st.StoredInodes = len(seen)
	if st.PhysicalBytes > 0 {
		st.DedupRatio = float64(st.LogicalBytes) / float64(st.PhysicalBytes)
	}

	for t, n := range tags {
		st.ByTag = append(st.ByTag, TagCount{Tag: t, Count: n})
	}
	sort.Slice(st.ByTag, func(i, j int) bool {
		if st.ByTag[i].Count == st.ByTag[j].Count {
			return st.ByTag[i].Tag < st.ByTag[j].Tag
		}
		return st.ByTag[i].Count > st.ByTag[j].Count
	})
	return st, nil
}
