// Package retention selects snapshots for deletion. Deletion itself only
// removes directory entries; data shared through hard links with surviving
// snapshots stays alive until its last link is gone.
package retention

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/pders01/snapsafe/internal/models"
)

// Policy combines keep-last-N and older-than-D. A zero field is unset;
// when both are set a snapshot matching either rule is selected.
type Policy struct {
	KeepLast  int
	OlderThan time.Duration
}

// Validate checks that the policy selects something sensible
func (p Policy) Validate() error {
	if p.KeepLast == 0 && p.OlderThan == 0 {
		return errors.Errorf("no retention rule given (use --keep-last or --older-than)")
	}
	if p.KeepLast < 0 {
		return errors.Errorf("keep-last must be at least 1, got %d", p.KeepLast)
	}
	if p.OlderThan < 0 {
		return errors.Errorf("older-than must be positive, got %s", p.OlderThan)
	}
	return nil
}

func (p Policy) String() string {
	var parts []string
	if p.KeepLast > 0 {
		parts = append(parts, fmt.Sprintf("keep last %d", p.KeepLast))
	}
	if p.OlderThan > 0 {
		parts = append(parts, fmt.Sprintf("older than %s", p.OlderThan))
	}
	return strings.Join(parts, ", ")
}

// Select returns the IDs to delete, oldest first. The newest snapshot is
// never selected, so an automated prune cannot empty a repository.
func Select(snaps []models.Snapshot, p Policy, now time.Time) []models.SnapshotID {
	if len(snaps) == 0 {
		return nil
	}
	sorted := make([]models.Snapshot, len(snaps))
	copy(sorted, snaps)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].ID.Less(sorted[j].ID) })

	newest := len(sorted) - 1
	cutoff := now.Add(-p.OlderThan)

	var out []models.SnapshotID
	for i, s := range sorted {
		if i == newest {
			break
		}
		byCount := p.KeepLast > 0 && i < len(sorted)-p.KeepLast
		byAge := p.OlderThan > 0 && s.CreatedAt.Before(cutoff)
		if byCount || byAge {
			out = append(out, s.ID)
		}
	}
	return out
}

// ParseDuration accepts Go durations ("36h", "90m") plus day units:
// "7d", "7day", "7days".
func ParseDuration(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, errors.Errorf("empty duration")
	}

	i := 0
	for i < len(s) && s[i] >= '0' && s[i] <= '9' {
		i++
	}
	num, unit := s[:i], strings.ToLower(s[i:])

	var per time.Duration
	switch unit {
	case "d", "day", "days":
		per = 24 * time.Hour
	case "h", "hour", "hours":
		per = time.Hour
	case "m", "min", "minutes", "minute":
		per = time.Minute
	case "s", "sec", "seconds", "second":
		per = time.Second
	default:
		d, err := time.ParseDuration(s)
		if err != nil {
			return 0, errors.Errorf("invalid duration %q (use e.g. 7d, 24h, 30m, 90s)", s)
		}
		if d <= 0 {
			return 0, errors.Errorf("duration %q must be positive", s)
		}
		return d, nil
	}

	n, err := strconv.ParseInt(num, 10, 64)
	if err != nil || n <= 0 {
		return 0, errors.Errorf("invalid duration %q (use e.g. 7d, 24h, 30m, 90s)", s)
	}
	return time.Duration(n) * per, nil
}
