package cmd

import (
	"fmt"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/pders01/snapsafe/internal/models"
	"github.com/pders01/snapsafe/internal/repo"
	"github.com/pders01/snapsafe/internal/snaperr"
)

var (
	tagAdd    []string
	tagRemove []string
	tagRename string
	tagJSON   bool
	tagToon   bool
)

var tagCmd = &cobra.Command{
	Use:     "tag [id]",
	Aliases: []string{"tags"},
	Short:   "List or manage snapshot tags",
	Long: `Without arguments, list all tags used across snapshots with usage
counts. With a snapshot ID, show or change that snapshot's tags.
Tags never affect manifests or stored files.

Examples:
  snapsafe tag                              # List all tags
  snapsafe tag v1.0.0.3                     # Show tags of one snapshot
  snapsafe tag latest --add release --add qa
  snapsafe tag v1.0.0.3 --remove qa
  snapsafe tag qa --rename verified         # Rename tag across all snapshots`,
	Args: rangeArgs(0, 1),
	RunE: runTag,
}

func init() {
	rootCmd.AddCommand(tagCmd)

	tagCmd.Flags().StringSliceVar(&tagAdd, "add", []string{}, "Add tags")
	tagCmd.Flags().StringSliceVar(&tagRemove, "remove", []string{}, "Remove tags")
	tagCmd.Flags().StringVar(&tagRename, "rename", "", "Rename the given tag across all snapshots")
	tagCmd.Flags().BoolVar(&tagJSON, "json", false, "Output as JSON")
	tagCmd.Flags().BoolVar(&tagToon, "toon", false, "Output in LLM-friendly toon format")
}

func runTag(cmd *cobra.Command, args []string) error {
	r, err := openRepo()
	if err != nil {
		return err
	}
	ctx := cmdContext(cmd)

	if tagRename != "" {
		if len(args) == 0 {
			return snaperr.User("tag", "tag name required for --rename")
		}
		n, err := r.RenameTag(ctx, args[0], tagRename)
		if err != nil {
			return err
		}
		fmt.Printf("✓ Renamed tag %q to %q on %d snapshot(s)\n", args[0], tagRename, n)
		return nil
	}

	if len(args) == 0 {
		if len(tagAdd) > 0 || len(tagRemove) > 0 {
			return snaperr.User("tag", "snapshot ID required for --add/--remove")
		}
		return listAllTags(cmd, r)
	}

	if len(tagAdd) == 0 && len(tagRemove) == 0 {
		snap, meta, err := r.Metadata(ctx, args[0])
		if err != nil {
			return err
		}
		return printTags(snap, meta)
	}

	var added, removed []string
	snap, meta, err := r.UpdateMetadata(ctx, args[0], func(m *models.Metadata) error {
		for _, t := range tagAdd {
			if t = strings.TrimSpace(t); t == "" {
				return snaperr.User("tag", "tag names must not be empty")
			}
			if m.AddTag(t) {
				added = append(added, t)
			}
		}
		for _, t := range tagRemove {
			t = strings.TrimSpace(t)
			if m.RemoveTag(t) {
				removed = append(removed, t)
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	if done, err := printStructured(meta, tagJSON, tagToon); done {
		return err
	}
	for _, t := range added {
		fmt.Printf("✓ Added tag %q to %s\n", t, snap.ID)
	}
	for _, t := range removed {
		fmt.Printf("✓ Removed tag %q from %s\n", t, snap.ID)
	}
	if len(added) == 0 && len(removed) == 0 {
		fmt.Println("Tags unchanged")
	}
	return nil
}

func printTags(snap models.Snapshot, meta models.Metadata) error {
	if done, err := printStructured(meta.Tags, tagJSON, tagToon); done {
		return err
	}
	if len(meta.Tags) == 0 {
		fmt.Printf("%s has no tags\n", snap.ID)
		return nil
	}
	fmt.Printf("%s: %s\n", snap.ID, strings.Join(meta.Tags, ", "))
	return nil
}

func listAllTags(cmd *cobra.Command, r *repo.Repository) error {
	all, err := r.AllMetadata(cmdContext(cmd))
	if err != nil {
		return err
	}

	counts := make(map[string]int)
	for _, m := range all {
		for _, t := range m.Tags {
			counts[t]++
		}
	}

	tags := []repo.TagCount{}
	for t, n := range counts {
		tags = append(tags, repo.TagCount{Tag: t, Count: n})
	}
	sort.Slice(tags, func(i, j int) bool {
		if tags[i].Count == tags[j].Count {
			return tags[i].Tag < tags[j].Tag
		}
		return tags[i].Count > tags[j].Count
	})

	if done, err := printStructured(tags, tagJSON, tagToon); done {
		return err
	}
	if len(tags) == 0 {
		fmt.Println("No tags found")
		return nil
	}

	fmt.Printf("Found %d tag(s):\n\n", len(tags))
	for _, t := range tags {
		fmt.Printf("  %-30s %3d\n", t.Tag, t.Count)
	}
	return nil
}
