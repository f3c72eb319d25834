package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/pders01/snapsafe/internal/snaperr"
)

var reportCmd = &cobra.Command{
	Use:   "report <template>",
	Short: "Generate pre-defined reports",
	Long: `Generate formatted reports using pre-defined templates.

Available templates:
  daily   - Repository summary and today's snapshots

Examples:
  snapsafe report daily`,
	Args: exactArgs(1),
	RunE: runReport,
}

func init() {
	rootCmd.AddCommand(reportCmd)
}

func runReport(cmd *cobra.Command, args []string) error {
	template := args[0]

	switch template {
	case "daily":
		return generateDailyReport(cmd)
	default:
		return snaperr.User("report", "unknown report template: %s (available: daily)", template)
	}
}

func generateDailyReport(cmd *cobra.Command) error {
	fmt.Println("Daily Snapshot Report")
	fmt.Println("═════════════════════")
	fmt.Println()

	oldStatsJSON, oldStatsToon := statsJSON, statsToon
	statsJSON, statsToon = false, false
	err := runStats(cmd, []string{})
	statsJSON, statsToon = oldStatsJSON, oldStatsToon
	if err != nil {
		return err
	}

	fmt.Println()
	fmt.Println("Today's Snapshots")
	fmt.Println("─────────────────")

	// Temporarily set list flags
	oldToday, oldTag, oldSince, oldLimit := listToday, listTag, listSince, listLimit
	oldJSON, oldToon := listJSON, listToon

	listToday, listTag, listSince, listLimit = true, "", "", 0
	listJSON, listToon = false, false

	err = runList(cmd, []string{})

	listToday, listTag, listSince, listLimit = oldToday, oldTag, oldSince, oldLimit
	listJSON, listToon = oldJSON, oldToon

	return err
}
