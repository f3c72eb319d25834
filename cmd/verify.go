package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/pders01/snapsafe/internal/output"
	"github.com/pders01/snapsafe/internal/snaperr"
	"github.com/pders01/snapsafe/internal/verify"
)

var (
	verifyJSON bool
	verifyToon bool
)

var verifyCmd = &cobra.Command{
	Use:   "verify [id]",
	Short: "Check snapshot store files against their manifests",
	Long: `Re-hash every stored file and compare it with the manifest.

Reports corrupted content, missing files and size mismatches. All
findings are listed; nothing is repaired. Without an ID every snapshot
is verified. Exits with status 3 when any problem is found.

Example:
  snapsafe verify
  snapsafe verify latest --json`,
	Args: rangeArgs(0, 1),
	RunE: runVerify,
}

func init() {
	rootCmd.AddCommand(verifyCmd)

	verifyCmd.Flags().BoolVar(&verifyJSON, "json", false, "Output as JSON")
	verifyCmd.Flags().BoolVar(&verifyToon, "toon", false, "Output in LLM-friendly toon format")
}

func runVerify(cmd *cobra.Command, args []string) error {
	r, err := openRepo()
	if err != nil {
		return err
	}
	ref := ""
	if len(args) > 0 {
		ref = args[0]
	}

	reports, err := r.Verify(cmdContext(cmd), ref)
	if err != nil {
		return err
	}

	done, err := printStructured(reports, verifyJSON, verifyToon)
	if err != nil {
		return err
	}
	if !done {
		if len(reports) == 0 {
			fmt.Println("No snapshots found")
			return nil
		}
		for _, rep := range reports {
			printVerifyReport(rep)
		}
	}

	bad := 0
	for _, rep := range reports {
		if !rep.OK() {
			bad++
		}
	}
	if bad > 0 {
		return snaperr.Integrity("verify", ref, "", fmt.Errorf("%d of %d snapshot(s) failed verification", bad, len(reports)))
	}
	return nil
}

func printVerifyReport(rep *verify.Report) {
	if rep.OK() {
		fmt.Printf("✓ %s: %d entries OK\n", rep.ID, rep.Checked)
		return
	}
	if rep.Err != "" {
		fmt.Println(output.Error(fmt.Sprintf("✗ %s: %s", rep.ID, rep.Err)))
		return
	}
	fmt.Println(output.Error(fmt.Sprintf("✗ %s: %d problem(s) in %d entries", rep.ID, len(rep.Findings), rep.Checked)))
	for _, f := range rep.Findings {
		switch f.Problem {
		case verify.MissingFile:
			fmt.Printf("    %-17s %s\n", f.Problem, f.Path)
		default:
			fmt.Printf("    %-17s %s (expected %s, got %s)\n", f.Problem, f.Path, f.Expected, f.Actual)
		}
	}
}
