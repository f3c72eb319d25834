package cmd

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/pders01/snapsafe/internal/repo"
)

var (
	snapshotMessage string
	snapshotTags    []string
	snapshotVersion string
	snapshotStats   bool
	snapshotJSON    bool
	snapshotToon    bool
)

var snapshotCmd = &cobra.Command{
	Use:     "snapshot [message]",
	Aliases: []string{"save"},
	Short:   "Create a new snapshot of the working tree",
	Long: `Capture the working tree as an immutable snapshot.

Files whose size and modification time match the previous snapshot are
hard-linked without being read. Changed metadata triggers a SHA-256
fingerprint; identical content is still linked. Only new or modified
content is copied into the store. Files on another filesystem are copied
instead of linked.

The snapshot becomes visible only after every file is stored and its
manifest written; an interrupted snapshot leaves no trace.

Snapshot IDs look like v1.0.0.3. The last component is a sequence number;
use --version to move the first three components forward.

Examples:
  snapsafe snapshot -m "nightly build"
  snapsafe snapshot "before upgrade" --tag release --tag v2
  snapsafe snapshot --version v2.0.0 --stats`,
	Args: rangeArgs(0, 1),
	RunE: runSnapshot,
}

func init() {
	rootCmd.AddCommand(snapshotCmd)

	snapshotCmd.Flags().StringVarP(&snapshotMessage, "message", "m", "", "Snapshot message")
	snapshotCmd.Flags().StringSliceVar(&snapshotTags, "tag", []string{}, "Add metadata tags")
	snapshotCmd.Flags().StringVar(&snapshotVersion, "version", "", "Set major.minor.patch of the new ID (e.g. v2.0.0)")
	snapshotCmd.Flags().BoolVar(&snapshotStats, "stats", false, "Print link/copy counters")
	snapshotCmd.Flags().BoolVar(&snapshotJSON, "json", false, "Output as JSON")
	snapshotCmd.Flags().BoolVar(&snapshotToon, "toon", false, "Output in LLM-friendly toon format")
}

func runSnapshot(cmd *cobra.Command, args []string) error {
	r, err := openRepo()
	if err != nil {
		return err
	}

	message := snapshotMessage
	if message == "" && len(args) > 0 {
		message = args[0]
	}

	res, err := r.Snapshot(cmdContext(cmd), repo.SnapshotOptions{
		Message: strings.TrimSpace(message),
		Tags:    snapshotTags,
		Version: snapshotVersion,
	})
	if res != nil && res.Verify != nil && !res.Verify.OK() {
		printVerifyReport(res.Verify)
	}
	if err != nil {
		return err
	}

	if done, err := printStructured(res, snapshotJSON, snapshotToon); done {
		return err
	}

	for _, p := range res.Skipped {
		fmt.Fprintf(os.Stderr, "Warning: skipped special file %s\n", p)
	}

	s := res.Snapshot
	fmt.Printf("✓ Snapshot created: %s\n", s.ID)
	if s.Message != "" {
		fmt.Printf("  Message:   %s\n", s.Message)
	}
	fmt.Printf("  Files:     %d (%s)\n", s.FileCount, formatBytes(s.TotalSize))
	fmt.Printf("  Changes:   %d new, %d modified, %d deleted, %d unchanged\n",
		res.New, res.Modified, res.Deleted, res.Unchanged)
	fmt.Printf("  Storage:   %d linked, %d deduplicated, %d copied", res.Linked, res.Deduped, res.Copied)
	if res.CrossDevice > 0 {
		fmt.Printf(", %d copied across devices", res.CrossDevice)
	}
	fmt.Println()
	if len(snapshotTags) > 0 {
		fmt.Printf("  Tags:      %s\n", strings.Join(snapshotTags, ", "))
	}
	if res.Verify != nil {
		fmt.Printf("  Verified:  %d entries\n", res.Verify.Checked)
	}

	if snapshotStats {
		fmt.Println("\nCounters:")
		for _, m := range repo.Metrics(registry) {
			fmt.Printf("  %-30s %d\n", m.Name, m.Value)
		}
	}

	return nil
}
