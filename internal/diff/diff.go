// Package diff compares two snapshot manifests and, for text-like files,
// their contents line by line.
package diff

import (
	"sort"

	"github.com/pders01/snapsafe/internal/manifest"
)

// Result partitions the union of paths of a base and a target manifest.
// Every path is in exactly one of Added, Removed, Modified or the
// Unchanged count.
type Result struct {
	Added     []string   `json:"added"`
	Removed   []string   `json:"removed"`
	Modified  []string   `json:"modified"`
	Unchanged int        `json:"unchanged"`
	TextDiffs []FileDiff `json:"text_diffs,omitempty"`
}

// Empty reports whether the manifests track the same content
func (r *Result) Empty() bool {
	return len(r.Added) == 0 && len(r.Removed) == 0 && len(r.Modified) == 0
}

// Compare computes the path sets between base a and target b. Files are
// compared by fingerprint, symlinks by target, and a kind change counts as
// a modification. Output follows manifest order.
func Compare(a, b *manifest.Manifest, foldCase bool) *Result {
	res := &Result{Added: []string{}, Removed: []string{}, Modified: []string{}}
	ia := a.Index(foldCase)
	ib := b.Index(foldCase)

	for _, eb := range b.Entries {
		ea, ok := ia[manifest.Key(eb.Path, foldCase)]
		switch {
		case !ok:
			res.Added = append(res.Added, eb.Path)
		case sameContent(ea, eb):
			res.Unchanged++
		default:
			res.Modified = append(res.Modified, eb.Path)
		}
	}
	for _, ea := range a.Entries {
		if _, ok := ib[manifest.Key(ea.Path, foldCase)]; !ok {
			res.Removed = append(res.Removed, ea.Path)
		}
	}

	sort.Strings(res.Added)
	sort.Strings(res.Removed)
	sort.Strings(res.Modified)
	return res
}

func sameContent(a, b manifest.Entry) bool {
	if a.Kind != b.Kind {
		return false
	}
	switch a.Kind {
	case manifest.KindFile:
		return a.Fingerprint == b.Fingerprint
	case manifest.KindSymlink:
		return a.Target == b.Target
	default:
		return true
	}
}
