package cmd

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/pders01/snapsafe/internal/config"
	"github.com/pders01/snapsafe/internal/diff"
	"github.com/pders01/snapsafe/internal/output"
	"github.com/pders01/snapsafe/internal/repo"
)

var (
	diffText bool
	diffJSON bool
	diffToon bool
)

var diffCmd = &cobra.Command{
	Use:   "diff <id1> [id2]",
	Short: "Compare two snapshots",
	Long: `Compare two snapshots and list added, removed and modified paths.

Files are compared by content fingerprint, so a file that was only
touched is not reported. When the second ID is omitted the latest
snapshot is used. IDs may be given as a unique prefix or "latest".

Example:
  snapsafe diff v1.0.0.1 v1.0.0.4
  snapsafe diff 1.0.0.2
  snapsafe diff v1.0.0.1 latest --text`,
	Args: rangeArgs(1, 2),
	RunE: runDiff,
}

var textDiffCmd = &cobra.Command{
	Use:   "text-diff <id1> [id2]",
	Short: "Show line diffs of modified text files between two snapshots",
	Long: `Show unified line diffs for text files modified between two snapshots.

Only text-like files are shown: a file is text when its extension is in
the configured list or its content has no NUL bytes and is valid UTF-8.
Files larger than diff.max_bytes are reported but not diffed.

Example:
  snapsafe text-diff v1.0.0.1 v1.0.0.2`,
	Args: rangeArgs(1, 2),
	RunE: runTextDiff,
}

func init() {
	rootCmd.AddCommand(diffCmd)
	rootCmd.AddCommand(textDiffCmd)

	diffCmd.Flags().BoolVar(&diffText, "text", false, "Include line diffs for modified text files")
	diffCmd.Flags().BoolVar(&diffJSON, "json", false, "Output as JSON")
	diffCmd.Flags().BoolVar(&diffToon, "toon", false, "Output in LLM-friendly toon format")

	textDiffCmd.Flags().BoolVar(&diffJSON, "json", false, "Output as JSON")
	textDiffCmd.Flags().BoolVar(&diffToon, "toon", false, "Output in LLM-friendly toon format")
}

func loadDiff(cmd *cobra.Command, args []string, text bool) (*repo.DiffResult, error) {
	r, err := openRepo()
	if err != nil {
		return nil, err
	}
	refB := ""
	if len(args) > 1 {
		refB = args[1]
	}
	return r.Diff(cmdContext(cmd), args[0], refB, repo.DiffOptions{
		Text:     text,
		Context:  config.GetDiffContext(),
		MaxBytes: config.GetDiffMaxBytes(),
	})
}

func runDiff(cmd *cobra.Command, args []string) error {
	res, err := loadDiff(cmd, args, diffText)
	if err != nil {
		return err
	}

	if done, err := printStructured(res, diffJSON, diffToon); done {
		return err
	}

	fmt.Printf("Comparing snapshots:\n")
	fmt.Printf("  From: %s (%s)\n", res.From.ID, res.From.CreatedAt.Local().Format("2006-01-02 15:04:05"))
	fmt.Printf("  To:   %s (%s)\n", res.To.ID, res.To.CreatedAt.Local().Format("2006-01-02 15:04:05"))
	fmt.Printf("  Time difference: %s\n\n", describeGap(res.To.CreatedAt.Sub(res.From.CreatedAt)))

	if res.Empty() {
		fmt.Printf("No changes (%d unchanged)\n", res.Unchanged)
		return nil
	}

	for _, p := range res.Added {
		fmt.Println(output.Added("+ " + p))
	}
	for _, p := range res.Removed {
		fmt.Println(output.Removed("- " + p))
	}
	for _, p := range res.Modified {
		fmt.Println(output.Modified("~ " + p))
	}
	fmt.Printf("\n%d added, %d removed, %d modified, %d unchanged\n",
		len(res.Added), len(res.Removed), len(res.Modified), res.Unchanged)

	if diffText {
		printTextDiffs(res.TextDiffs)
	}
	return nil
}

func runTextDiff(cmd *cobra.Command, args []string) error {
	res, err := loadDiff(cmd, args, true)
	if err != nil {
		return err
	}

	diffs := []diff.FileDiff{}
	for _, d := range res.TextDiffs {
		if !d.Binary {
			diffs = append(diffs, d)
		}
	}

	if done, err := printStructured(diffs, diffJSON, diffToon); done {
		return err
	}

	if len(diffs) == 0 {
		fmt.Printf("No text changes between %s and %s\n", res.From.ID, res.To.ID)
		return nil
	}
	printTextDiffs(diffs)
	return nil
}

func printTextDiffs(diffs []diff.FileDiff) {
	for _, d := range diffs {
		switch {
		case d.Binary:
			fmt.Println(output.Dim(fmt.Sprintf("Binary file %s differs", d.Path)))
		case d.Oversize:
			fmt.Println(output.Dim(fmt.Sprintf("File %s differs (too large to diff)", d.Path)))
		default:
			fmt.Println()
			for _, line := range strings.SplitAfter(d.Unified, "\n") {
				line = strings.TrimSuffix(line, "\n")
				switch {
				case line == "":
					continue
				case strings.HasPrefix(line, "+++"), strings.HasPrefix(line, "---"):
					fmt.Println(line)
				case strings.HasPrefix(line, "+"):
					fmt.Println(output.Added(line))
				case strings.HasPrefix(line, "-"):
					fmt.Println(output.Removed(line))
				case strings.HasPrefix(line, "@@"):
					fmt.Println(output.Dim(line))
				default:
					fmt.Println(line)
				}
			}
		}
	}
}

func describeGap(d time.Duration) string {
	if d < 0 {
		return fmt.Sprintf("%s (second snapshot is older)", formatDuration(-d))
	}
	return fmt.Sprintf("%s (second snapshot is newer)", formatDuration(d))
}

func formatDuration(d time.Duration) string {
	switch {
	case d < time.Minute:
		return "< 1 minute"
	case d < time.Hour:
		return fmt.Sprintf("%d minutes", int(d.Minutes()))
	case d < 24*time.Hour:
		return fmt.Sprintf("%d hours", int(d.Hours()))
	}
	days := int(d.Hours() / 24)
	if days == 1 {
		return "1 day"
	}
	return fmt.Sprintf("%d days", days)
}
