package cmd

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/pders01/snapsafe/internal/output"
	"github.com/pders01/snapsafe/internal/repo"
	"github.com/pders01/snapsafe/internal/snaperr"
)

var (
	restoreTo     string
	restoreBackup bool
	restoreYes    bool
	restoreJSON   bool
)

var restoreCmd = &cobra.Command{
	Use:   "restore <id>",
	Short: "Restore the working tree to a snapshot",
	Long: `Make the working tree match a snapshot exactly.

Files are written from the store, recorded permissions are restored, and
files that are not in the snapshot are removed. Ignored paths are never
touched. Every store file is checked before anything is written.

Restore does not roll back: if it fails partway the working tree may be
left partially updated and the error says so. Use --backup (or set
autobackup = true) to take a snapshot of the current tree first.

With --to the snapshot is written into a separate directory instead. It
must be missing or empty and may neither contain nor lie inside the
working tree. A --to naming the working tree itself is an ordinary
restore and asks for confirmation.

Example:
  snapsafe restore v1.0.0.3
  snapsafe restore latest --backup --yes
  snapsafe restore v1.0.0.1 --to /tmp/old-build`,
	Args: exactArgs(1),
	RunE: runRestore,
}

func init() {
	rootCmd.AddCommand(restoreCmd)

	restoreCmd.Flags().StringVar(&restoreTo, "to", "", "Restore into this directory instead of the working tree")
	restoreCmd.Flags().BoolVar(&restoreBackup, "backup", false, "Snapshot the working tree before restoring")
	restoreCmd.Flags().BoolVarP(&restoreYes, "yes", "y", false, "Do not ask for confirmation")
	restoreCmd.Flags().BoolVar(&restoreJSON, "json", false, "Output as JSON")
}

func runRestore(cmd *cobra.Command, args []string) error {
	r, err := openRepo()
	if err != nil {
		return err
	}

	target := restoreTo
	if target != "" && !filepath.IsAbs(target) {
		target = filepath.Join(r.Root, target)
	}
	target, inPlace, err := r.RestoreTarget(target)
	if err != nil {
		return err
	}

	if inPlace && !restoreYes {
		ok, err := output.ConfirmTTY(fmt.Sprintf("Overwrite %s with snapshot %s?", r.Root, args[0]))
		if errors.Is(err, output.ErrNotInteractive) {
			return snaperr.User("restore", "%v", err)
		}
		if err != nil {
			return fmt.Errorf("failed to read confirmation: %w", err)
		}
		if !ok {
			fmt.Println("Restore cancelled")
			return nil
		}
	}

	res, err := r.Restore(cmdContext(cmd), args[0], repo.RestoreOptions{
		Target: target,
		Backup: restoreBackup,
	})
	if err != nil {
		return err
	}

	if restoreJSON {
		_, err := printStructured(res, true, false)
		return err
	}

	printRestoreResult(res)
	return nil
}

func printRestoreResult(res *repo.RestoreResult) {
	if res.Backup != nil {
		fmt.Printf("✓ Backup snapshot created: %s\n", res.Backup.Snapshot.ID)
	}
	fmt.Printf("✓ Restored %s into %s\n", res.Snapshot.ID, res.Target)
	fmt.Printf("  Written:   %d\n", res.Written)
	fmt.Printf("  Unchanged: %d\n", res.Kept)
	fmt.Printf("  Removed:   %d\n", len(res.Removed))
	if verbose {
		for _, p := range res.Removed {
			fmt.Fprintln(os.Stderr, output.Removed("  - "+p))
		}
	}
}
