package cmd

import (
	"fmt"
	"path"
	"strings"

	"github.com/spf13/cobra"

	"github.com/pders01/snapsafe/internal/manifest"
	"github.com/pders01/snapsafe/internal/output"
	"github.com/pders01/snapsafe/internal/repo"
)

var (
	infoTree bool
	infoJSON bool
	infoToon bool
)

var infoCmd = &cobra.Command{
	Use:   "info [id]",
	Short: "Show statistics, tags and metadata of a snapshot",
	Long: `Summarize one snapshot: file and directory counts, total size,
largest file, average file size and the most common extensions, plus
its tags and custom metadata. Defaults to the latest snapshot.

Example:
  snapsafe info v1.0.0.2
  snapsafe info --tree`,
	Args: rangeArgs(0, 1),
	RunE: runInfo,
}

func init() {
	rootCmd.AddCommand(infoCmd)

	infoCmd.Flags().BoolVar(&infoTree, "tree", false, "Print the manifest as a tree")
	infoCmd.Flags().BoolVar(&infoJSON, "json", false, "Output as JSON")
	infoCmd.Flags().BoolVar(&infoToon, "toon", false, "Output in LLM-friendly toon format")
}

func runInfo(cmd *cobra.Command, args []string) error {
	r, err := openRepo()
	if err != nil {
		return err
	}
	ref := repo.Latest
	if len(args) > 0 {
		ref = args[0]
	}

	info, err := r.Info(cmdContext(cmd), ref)
	if err != nil {
		return err
	}

	if done, err := printStructured(info, infoJSON, infoToon); done {
		return err
	}

	s := info.Snapshot
	fmt.Printf("Snapshot: %s\n", s.ID)
	fmt.Printf("Created:  %s\n", s.CreatedAt.Local().Format("2006-01-02 15:04:05"))
	if s.Message != "" {
		fmt.Printf("Message:  %s\n", s.Message)
	}
	fmt.Println()

	fmt.Printf("Files:        %d\n", info.Files)
	fmt.Printf("Directories:  %d\n", info.Dirs)
	if info.Symlinks > 0 {
		fmt.Printf("Symlinks:     %d\n", info.Symlinks)
	}
	fmt.Printf("Total size:   %s\n", formatBytes(info.TotalSize))
	if info.LargestFile != "" {
		fmt.Printf("Largest file: %s (%s)\n", info.LargestFile, formatBytes(info.LargestSize))
		fmt.Printf("Average size: %s\n", formatBytes(info.AverageSize))
	}
	if len(info.TopExtensions) > 0 {
		parts := make([]string, 0, len(info.TopExtensions))
		for _, e := range info.TopExtensions {
			parts = append(parts, fmt.Sprintf("%s (%d)", e.Ext, e.Count))
		}
		fmt.Printf("Extensions:   %s\n", strings.Join(parts, ", "))
	}

	if len(info.Metadata.Tags) > 0 {
		fmt.Printf("\nTags: %s\n", strings.Join(info.Metadata.Tags, ", "))
	}
	if keys := info.Metadata.Keys(); len(keys) > 0 {
		fmt.Println("\nMetadata:")
		for _, k := range keys {
			fmt.Printf("  %s = %s\n", k, info.Metadata.Custom[k])
		}
	}

	if infoTree {
		fmt.Println()
		fmt.Print(renderManifest(s.ID.String(), info.Manifest))
	}
	return nil
}

func renderManifest(label string, m *manifest.Manifest) string {
	t := output.NewManifestTree(label)
	for _, e := range m.Entries {
		switch e.Kind {
		case manifest.KindDir:
			t.InsertDir(e.Path)
		case manifest.KindSymlink:
			t.Insert(e.Path, fmt.Sprintf("%s -> %s", path.Base(e.Path), e.Target))
		default:
			t.Insert(e.Path, fmt.Sprintf("%s (%s)", path.Base(e.Path), formatBytes(e.Size)))
		}
	}
	return t.Render()
}
