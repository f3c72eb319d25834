package cmd

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/pders01/snapsafe/internal/repo"
	"github.com/pders01/snapsafe/internal/snaperr"
)

var (
	openPath string
)

var openCmd = &cobra.Command{
	Use:   "open <id>",
	Short: "Check out a snapshot into a separate directory",
	Long: `Materialize a snapshot in its own directory for viewing.

This leaves the working tree untouched. It is restore --to with a
default location next to the working tree. The checkout path must be
missing or empty.

Example:
  snapsafe open v1.0.0.2

This creates ../snap-v1.0.0.2 by default.`,
	Args: exactArgs(1),
	RunE: runOpen,
}

func init() {
	rootCmd.AddCommand(openCmd)

	openCmd.Flags().StringVar(&openPath, "path", "", "Custom checkout path (default: ../snap-<id>)")
}

func runOpen(cmd *cobra.Command, args []string) error {
	r, err := openRepo()
	if err != nil {
		return err
	}
	ctx := cmdContext(cmd)

	snap, err := r.Resolve(ctx, args[0])
	if err != nil {
		return err
	}

	path := openPath
	if path == "" {
		path = filepath.Join("..", fmt.Sprintf("snap-%s", snap.ID))
	}
	if !filepath.IsAbs(path) {
		path = filepath.Join(r.Root, path)
	}
	path, inPlace, err := r.RestoreTarget(path)
	if err != nil {
		return err
	}
	if inPlace {
		return snaperr.User("open", "checkout path is the working tree, use restore instead")
	}

	fmt.Printf("Opening snapshot: %s\n", snap.ID)
	fmt.Printf("Path: %s\n", path)

	res, err := r.Restore(ctx, snap.ID.String(), repo.RestoreOptions{Target: path})
	if err != nil {
		return err
	}

	fmt.Printf("\n✓ Snapshot checked out at: %s (%d files)\n", res.Target, res.Written+res.Kept)
	fmt.Printf("  cd %s\n", res.Target)

	return nil
}
