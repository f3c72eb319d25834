package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/pders01/snapsafe/internal/models"
	"github.com/pders01/snapsafe/internal/snaperr"
)

var (
	listTag   string
	listToday bool
	listSince string
	listLimit int
	listJSON  bool
	listToon  bool
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List all snapshots",
	Long: `List all snapshots, newest first, with optional filtering.

Examples:
  snapsafe list
  snapsafe list --tag release
  snapsafe list --today
  snapsafe list --since 2025-10-01
  snapsafe list --json`,
	Args: exactArgs(0),
	RunE: runList,
}

func init() {
	rootCmd.AddCommand(listCmd)

	listCmd.Flags().StringVar(&listTag, "tag", "", "Filter by tag")
	listCmd.Flags().BoolVar(&listToday, "today", false, "Show only today's snapshots")
	listCmd.Flags().StringVar(&listSince, "since", "", "Show snapshots since date (YYYY-MM-DD)")
	listCmd.Flags().IntVar(&listLimit, "limit", 0, "Show at most this many snapshots")
	listCmd.Flags().BoolVar(&listJSON, "json", false, "Output as JSON")
	listCmd.Flags().BoolVar(&listToon, "toon", false, "Output in LLM-friendly toon format")
}

type listEntry struct {
	models.Snapshot
	Tags []string `json:"tags,omitempty"`
}

func runList(cmd *cobra.Command, args []string) error {
	r, err := openRepo()
	if err != nil {
		return err
	}
	ctx := cmdContext(cmd)

	snaps, err := r.List(ctx)
	if err != nil {
		return err
	}
	meta, err := r.AllMetadata(ctx)
	if err != nil {
		return err
	}

	var since time.Time
	if listSince != "" {
		since, err = time.ParseInLocation("2006-01-02", listSince, time.Local)
		if err != nil {
			return snaperr.User("list", "invalid --since date %q (use YYYY-MM-DD)", listSince)
		}
	}
	today := time.Now().Format("2006-01-02")

	entries := []listEntry{}
	for i := len(snaps) - 1; i >= 0; i-- {
		s := snaps[i]
		m := meta[s.ID.String()]
		if listTag != "" && !m.HasTag(listTag) {
			continue
		}
		if listToday && s.CreatedAt.Local().Format("2006-01-02") != today {
			continue
		}
		if !since.IsZero() && s.CreatedAt.Before(since) {
			continue
		}
		entries = append(entries, listEntry{Snapshot: s, Tags: m.Tags})
		if listLimit > 0 && len(entries) == listLimit {
			break
		}
	}

	if done, err := printStructured(entries, listJSON, listToon); done {
		return err
	}

	if len(snaps) == 0 {
		fmt.Println("No snapshots found")
		return nil
	}
	if len(entries) == 0 {
		fmt.Println("No snapshots match the filter criteria")
		return nil
	}

	fmt.Printf("Found %d snapshot(s):\n\n", len(entries))
	for _, e := range entries {
		fmt.Printf("  %s\n", e.ID)
		fmt.Printf("    Created: %s\n", e.CreatedAt.Local().Format("2006-01-02 15:04:05"))
		fmt.Printf("    Files:   %d (%s)\n", e.FileCount, formatBytes(e.TotalSize))
		if e.Message != "" {
			msg := e.Message
			if len(msg) > 60 {
				msg = msg[:60] + "..."
			}
			fmt.Printf("    Message: %s\n", msg)
		}
		if len(e.Tags) > 0 {
			fmt.Printf("    Tags:    %v\n", e.Tags)
		}
		fmt.Println()
	}

	return nil
}
