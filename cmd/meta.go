package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/pders01/snapsafe/internal/models"
	"github.com/pders01/snapsafe/internal/snaperr"
)

var (
	metaSet    []string
	metaRemove []string
	metaJSON   bool
	metaToon   bool
)

var metaCmd = &cobra.Command{
	Use:   "meta <id>",
	Short: "Show or edit key/value metadata of a snapshot",
	Long: `Display the tags and custom key/value metadata of a snapshot, or
change it with --set and --remove. Metadata is stored next to the
snapshot index and never affects manifests or stored files.

Example:
  snapsafe meta v1.0.0.3
  snapsafe meta latest --set build=1432 --set branch=main
  snapsafe meta v1.0.0.3 --remove branch`,
	Args: exactArgs(1),
	RunE: runMeta,
}

func init() {
	rootCmd.AddCommand(metaCmd)

	metaCmd.Flags().StringArrayVar(&metaSet, "set", []string{}, "Set key=value")
	metaCmd.Flags().StringArrayVar(&metaRemove, "remove", []string{}, "Remove key")
	metaCmd.Flags().BoolVar(&metaJSON, "json", false, "Output as JSON")
	metaCmd.Flags().BoolVar(&metaToon, "toon", false, "Output in LLM-friendly toon format")
}

func runMeta(cmd *cobra.Command, args []string) error {
	r, err := openRepo()
	if err != nil {
		return err
	}
	ctx := cmdContext(cmd)

	var (
		snap models.Snapshot
		meta models.Metadata
	)
	if len(metaSet) == 0 && len(metaRemove) == 0 {
		snap, meta, err = r.Metadata(ctx, args[0])
	} else {
		pairs, perr := parsePairs(metaSet)
		if perr != nil {
			return perr
		}
		snap, meta, err = r.UpdateMetadata(ctx, args[0], func(m *models.Metadata) error {
			for _, kv := range pairs {
				m.Set(kv[0], kv[1])
			}
			for _, k := range metaRemove {
				if !m.Unset(k) {
					return snaperr.User("meta", "key %q is not set on this snapshot", k)
				}
			}
			return nil
		})
	}
	if err != nil {
		return err
	}

	if done, err := printStructured(meta, metaJSON, metaToon); done {
		return err
	}

	fmt.Printf("Snapshot: %s\n\n", snap.ID)
	fmt.Printf("Created:  %s\n", snap.CreatedAt.Local().Format("2006-01-02 15:04:05"))
	if snap.Message != "" {
		fmt.Printf("Message:  %s\n", snap.Message)
	}
	if len(meta.Tags) > 0 {
		fmt.Printf("Tags:     %v\n", meta.Tags)
	}
	keys := meta.Keys()
	if len(keys) == 0 {
		fmt.Println("\nNo custom metadata")
		return nil
	}
	fmt.Println()
	for _, k := range keys {
		fmt.Printf("  %-20s %s\n", k, meta.Custom[k])
	}
	return nil
}

func parsePairs(in []string) ([][2]string, error) {
	out := make([][2]string, 0, len(in))
	for _, s := range in {
		k, v, ok := strings.Cut(s, "=")
		k = strings.TrimSpace(k)
		if !ok || k == "" {
			return nil, snaperr.User("meta", "invalid --set %q (use key=value)", s)
		}
		out = append(out, [2]string{k, v})
	}
	return out, nil
}
