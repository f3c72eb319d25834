package cmd

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/pders01/snapsafe/internal/models"
	"github.com/pders01/snapsafe/internal/retention"
	"github.com/pders01/snapsafe/internal/snaperr"
)

var (
	pruneKeepLast  int
	pruneOlderThan string
	pruneDryRun    bool
	pruneForce     bool
	pruneJSON      bool
)

var pruneCmd = &cobra.Command{
	Use:   "prune",
	Short: "Remove old snapshots based on a retention policy",
	Long: `Remove snapshots selected by a retention policy.

--keep-last N keeps the N newest snapshots; --older-than selects
snapshots created before now minus the given age. When both are given a
snapshot is removed if either selects it. The newest snapshot is never
removed. Without flags, max_backups from .snapsafe/config.toml is used
as --keep-last.

Content shared with surviving snapshots is never lost: deleting a
snapshot only drops its own hard links.

Example:
  snapsafe prune --keep-last 5            # Show what would be pruned
  snapsafe prune --older-than 30d --force # Actually prune snapshots`,
	Args: exactArgs(0),
	RunE: runPrune,
}

func init() {
	rootCmd.AddCommand(pruneCmd)

	pruneCmd.Flags().IntVar(&pruneKeepLast, "keep-last", 0, "Keep the N newest snapshots")
	pruneCmd.Flags().StringVar(&pruneOlderThan, "older-than", "", "Remove snapshots older than this age (e.g. 7d, 24h, 30m)")
	pruneCmd.Flags().BoolVar(&pruneDryRun, "dry-run", true, "Show what would be pruned without deleting")
	pruneCmd.Flags().BoolVar(&pruneForce, "force", false, "Actually delete snapshots (overrides dry-run)")
	pruneCmd.Flags().BoolVar(&pruneJSON, "json", false, "Output as JSON")
}

func runPrune(cmd *cobra.Command, args []string) error {
	r, err := openRepo()
	if err != nil {
		return err
	}

	policy := retention.Policy{KeepLast: pruneKeepLast}
	if pruneOlderThan != "" {
		policy.OlderThan, err = retention.ParseDuration(pruneOlderThan)
		if err != nil {
			return snaperr.User("prune", "invalid --older-than: %v", err)
		}
	}
	if policy.KeepLast == 0 && policy.OlderThan == 0 {
		cfg, err := r.Config()
		if err != nil {
			return err
		}
		policy.KeepLast = int(cfg.MaxBackups)
	}

	dryRun := !pruneForce
	res, err := r.Prune(cmdContext(cmd), policy, dryRun)
	if res != nil && pruneJSON {
		if _, jerr := printStructured(res, true, false); jerr != nil {
			return jerr
		}
		return err
	}
	if res == nil {
		return err
	}

	fmt.Printf("Retention policy: %s\n\n", res.Policy)

	if len(res.Selected) == 0 {
		fmt.Println("No snapshots to prune")
		return err
	}

	fmt.Printf("Snapshots to prune (%d):\n\n", len(res.Selected))
	for _, s := range res.Selected {
		printPruneCandidate(s)
	}

	if dryRun {
		fmt.Println("This is a dry run. Use --force to actually prune snapshots.")
		return nil
	}

	for _, id := range res.Deleted {
		fmt.Printf("  ✓ Deleted %s\n", id)
	}
	for id, msg := range res.Failed {
		fmt.Fprintf(os.Stderr, "  Error deleting %s: %s\n", id, msg)
	}
	fmt.Printf("\n✓ Pruned %d snapshot(s), %d kept\n", len(res.Deleted), len(res.Kept))

	return err
}

func printPruneCandidate(s models.Snapshot) {
	fmt.Printf("  %s\n", s.ID)
	fmt.Printf("    Age:   %s\n", formatDuration(time.Since(s.CreatedAt)))
	fmt.Printf("    Files: %d (%s)\n", s.FileCount, formatBytes(s.TotalSize))
	if s.Message != "" {
		fmt.Printf("    Message: %s\n", s.Message)
	}
	fmt.Println()
}
