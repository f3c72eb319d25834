package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
)

var (
	archiveOutput string
)

var archiveCmd = &cobra.Command{
	Use:   "archive <id>",
	Short: "Bundle a snapshot for external storage",
	Long: `Create a tar.gz archive of one snapshot for backup or transfer.

Entries are stored under a top-level directory named after the snapshot
ID with their recorded permissions and modification times.

Examples:
  snapsafe archive v1.0.0.4
  snapsafe archive latest --output release.tar.gz`,
	Args: exactArgs(1),
	RunE: runArchive,
}

func init() {
	rootCmd.AddCommand(archiveCmd)

	archiveCmd.Flags().StringVar(&archiveOutput, "output", "", "Output file path (default: snapsafe-<id>.tar.gz)")
}

func runArchive(cmd *cobra.Command, args []string) error {
	r, err := openRepo()
	if err != nil {
		return err
	}
	ctx := cmdContext(cmd)

	snap, err := r.Resolve(ctx, args[0])
	if err != nil {
		return err
	}

	outputPath := archiveOutput
	if outputPath == "" {
		outputPath = fmt.Sprintf("snapsafe-%s.tar.gz", snap.ID)
	}
	if !filepath.IsAbs(outputPath) {
		outputPath = filepath.Join(r.Root, outputPath)
	}

	outFile, err := os.Create(outputPath)
	if err != nil {
		return fmt.Errorf("failed to create archive file: %w", err)
	}

	_, n, err := r.Archive(ctx, snap.ID.String(), outFile)
	if cerr := outFile.Close(); err == nil && cerr != nil {
		err = fmt.Errorf("failed to close archive file: %w", cerr)
	}
	if err != nil {
		os.Remove(outputPath)
		return err
	}

	info, err := os.Stat(outputPath)
	if err != nil {
		return fmt.Errorf("failed to stat archive: %w", err)
	}

	fmt.Printf("✓ Archive created: %s\n", outputPath)
	fmt.Printf("  Snapshot: %s\n", snap.ID)
	fmt.Printf("  Entries:  %d\n", n)
	fmt.Printf("  Size:     %s\n", formatBytes(info.Size()))

	return nil
}
