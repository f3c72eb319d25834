package repo

import (
	"sort"

	metrics "github.com/rcrowley/go-metrics"
)

// Metric names updated by repository operations. Allocator counters are
// defined in the linker package.
const (
	MetricSnapshotTime   = "snapshot.time"
	MetricHashedFiles    = "snapshot.files.hashed"
	MetricPrunedSnaps    = "prune.snapshots.deleted"
	MetricRestoredFiles  = "restore.files.written"
	MetricVerifiedFiles  = "verify.files.checked"
	MetricVerifyFindings = "verify.findings"
)

// Metric is one reported counter. Timers report their total in milliseconds.
type Metric struct {
	Name  string `json:"name"`
	Value int64  `json:"value"`
}

func (r *Repository) counter(name string, n int64) {
	if r.opts.Registry == nil || n == 0 {
		return
	}
	metrics.GetOrRegisterCounter(name, r.opts.Registry).Inc(n)
}

// Metrics snapshots the registry in name order
func Metrics(reg metrics.Registry) []Metric {
	if reg == nil {
		return nil
	}
	var out []Metric
	reg.Each(func(name string, i interface{}) {
		switch m := i.(type) {
		case metrics.Counter:
			out = append(out, Metric{Name: name, Value: m.Count()})
		case metrics.Timer:
			out = append(out, Metric{Name: name + ".ms", Value: m.Sum() / 1e6})
		}
	})
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}
