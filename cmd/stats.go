package cmd

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"github.com/pders01/snapsafe/internal/repo"
)

var (
	statsJSON bool
	statsToon bool
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show repository statistics",
	Long: `Display statistics about the repository including:
  - Snapshot count and time range
  - Logical size (sum over all manifests) vs. physical size (unique stored inodes)
  - Deduplication ratio
  - Tag usage and daily activity

Examples:
  snapsafe stats
  snapsafe stats --json
  snapsafe stats --toon`,
	Args: exactArgs(0),
	RunE: runStats,
}

func init() {
	rootCmd.AddCommand(statsCmd)

	statsCmd.Flags().BoolVar(&statsJSON, "json", false, "Output as JSON")
	statsCmd.Flags().BoolVar(&statsToon, "toon", false, "Output in LLM-friendly toon format")
}

type dailyActivity struct {
	Date  string `json:"date"`
	Count int    `json:"count"`
}

type repoStatsOutput struct {
	*repo.RepoStats
	DailyActivity []dailyActivity `json:"daily_activity"`
	Counters      []repo.Metric   `json:"counters,omitempty"`
}

func runStats(cmd *cobra.Command, args []string) error {
	r, err := openRepo()
	if err != nil {
		return err
	}
	ctx := cmdContext(cmd)

	st, err := r.Stats(ctx)
	if err != nil {
		return err
	}
	snaps, err := r.List(ctx)
	if err != nil {
		return err
	}

	byDate := make(map[string]int)
	for _, s := range snaps {
		byDate[s.CreatedAt.Local().Format("2006-01-02")]++
	}
	out := repoStatsOutput{RepoStats: st, DailyActivity: []dailyActivity{}, Counters: repo.Metrics(registry)}
	for date, n := range byDate {
		out.DailyActivity = append(out.DailyActivity, dailyActivity{Date: date, Count: n})
	}
	sort.Slice(out.DailyActivity, func(i, j int) bool {
		return out.DailyActivity[i].Date > out.DailyActivity[j].Date
	})

	if done, err := printStructured(out, statsJSON, statsToon); done {
		return err
	}

	if st.Snapshots == 0 {
		fmt.Println("No snapshots found")
		return nil
	}

	fmt.Println("Repository Statistics")
	fmt.Println("═════════════════════")
	fmt.Printf("\nTotal Snapshots: %d\n", st.Snapshots)
	if st.Oldest != nil && st.Newest != nil {
		fmt.Printf("Time Range:      %s to %s\n",
			st.Oldest.Local().Format("2006-01-02 15:04"), st.Newest.Local().Format("2006-01-02 15:04"))
	}
	fmt.Printf("Entries:         %d\n", st.Entries)
	fmt.Printf("Logical size:    %s\n", formatBytes(st.LogicalBytes))
	fmt.Printf("Physical size:   %s (%d stored files)\n", formatBytes(st.PhysicalBytes), st.StoredInodes)
	fmt.Printf("Dedup ratio:     %.2fx\n", st.DedupRatio)

	if len(st.ByTag) > 0 {
		fmt.Println("\nTop Tags:")
		for i, t := range st.ByTag {
			if i >= 10 {
				break
			}
			fmt.Printf("  %-20s %3d\n", t.Tag, t.Count)
		}
	}

	if len(out.DailyActivity) > 0 {
		fmt.Println("\nRecent Activity:")
		for i, d := range out.DailyActivity {
			if i >= 7 {
				break
			}
			fmt.Printf("  %s  %3d snapshot(s)\n", d.Date, d.Count)
		}
	}

	if len(st.Unreadable) > 0 {
		fmt.Printf("\nUnreadable manifests: %v (run snapsafe verify)\n", st.Unreadable)
	}

	return nil
}
