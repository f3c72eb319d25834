package models

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// SnapshotID identifies a snapshot. Major, Minor and Patch group snapshots
// semantically; Seq is the strictly increasing sequence number.
// Format: vMAJOR.MINOR.PATCH.SEQ
type SnapshotID struct {
	Major uint64
	Minor uint64
	Patch uint64
	Seq   uint64
}

// FirstID is assigned to the first snapshot of a repository
var FirstID = SnapshotID{Major: 1}

// ParseSnapshotID parses a rendered ID, with or without the leading "v"
func ParseSnapshotID(s string) (SnapshotID, error) {
	parts := strings.Split(strings.TrimPrefix(strings.TrimSpace(s), "v"), ".")
	if len(parts) != 4 {
		return SnapshotID{}, fmt.Errorf("invalid snapshot id %q (expected vX.Y.Z.N)", s)
	}

	var nums [4]uint64
	for i, p := range parts {
		n, err := strconv.ParseUint(p, 10, 64)
		if err != nil {
			return SnapshotID{}, fmt.Errorf("invalid snapshot id %q: %w", s, err)
		}
		nums[i] = n
	}

	return SnapshotID{Major: nums[0], Minor: nums[1], Patch: nums[2], Seq: nums[3]}, nil
}

func (id SnapshotID) String() string {
	return fmt.Sprintf("v%d.%d.%d.%d", id.Major, id.Minor, id.Patch, id.Seq)
}

// IsZero reports whether the ID was never assigned
func (id SnapshotID) IsZero() bool {
	return id == SnapshotID{}
}

// Compare orders IDs numerically on the (major, minor, patch, seq) tuple.
func (id SnapshotID) Compare(other SnapshotID) int {
	a := [4]uint64{id.Major, id.Minor, id.Patch, id.Seq}
	b := [4]uint64{other.Major, other.Minor, other.Patch, other.Seq}
	for i := range a {
		switch {
		case a[i] < b[i]:
			return -1
		case a[i] > b[i]:
			return 1
		}
	}
	return 0
}

// Less reports whether id sorts before other
func (id SnapshotID) Less(other SnapshotID) bool {
	return id.Compare(other) < 0
}

// Next returns the ID following id within the same semantic group
func (id SnapshotID) Next() SnapshotID {
	id.Seq++
	return id
}

// SameGroup reports whether both IDs share major, minor and patch
func (id SnapshotID) SameGroup(other SnapshotID) bool {
	return id.Major == other.Major && id.Minor == other.Minor && id.Patch == other.Patch
}

func (id SnapshotID) MarshalText() ([]byte, error) {
	return []byte(id.String()), nil
}

func (id *SnapshotID) UnmarshalText(text []byte) error {
	parsed, err := ParseSnapshotID(string(text))
	if err != nil {
		return err
	}
	*id = parsed
	return nil
}

// Snapshot is one entry of the repository index. It is immutable once
// published; tags and key/values live in Metadata, outside the index.
type Snapshot struct {
	ID        SnapshotID `json:"id"`
	CreatedAt time.Time  `json:"created_at"`
	Message   string     `json:"message,omitempty"`
	FileCount int        `json:"file_count"`
	TotalSize int64      `json:"total_size"`
}

// DirName returns the store directory name for a snapshot
func DirName(id SnapshotID) string {
	return id.String()
}
