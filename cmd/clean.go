package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var cleanJSON bool

var cleanCmd = &cobra.Command{
	Use:   "clean",
	Short: "Remove leftovers of interrupted operations",
	Long: `Remove staging directories of interrupted snapshots, snapshot
directories that are not in the index and metadata of snapshots that no
longer exist. Every snapshot run does this too.

Example:
  snapsafe clean`,
	Args: exactArgs(0),
	RunE: runClean,
}

func init() {
	rootCmd.AddCommand(cleanCmd)

	cleanCmd.Flags().BoolVar(&cleanJSON, "json", false, "Output as JSON")
}

func runClean(cmd *cobra.Command, args []string) error {
	r, err := openRepo()
	if err != nil {
		return err
	}

	res, err := r.Clean(cmdContext(cmd))
	if err != nil {
		return err
	}

	if done, err := printStructured(res, cleanJSON, false); done {
		return err
	}

	if res.Empty() {
		fmt.Println("Nothing to clean")
		return nil
	}
	for _, p := range res.Staging {
		fmt.Printf("  ✓ Removed staging directory %s\n", p)
	}
	for _, p := range res.Orphans {
		fmt.Printf("  ✓ Removed unindexed snapshot directory %s\n", p)
	}
	for _, id := range res.Metadata {
		fmt.Printf("  ✓ Dropped metadata of %s\n", id)
	}
	return nil
}
