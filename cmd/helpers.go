package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/alpkeskin/gotoon"
	metrics "github.com/rcrowley/go-metrics"
	"github.com/spf13/cobra"

	"github.com/pders01/snapsafe/internal/config"
	"github.com/pders01/snapsafe/internal/repo"
	"github.com/pders01/snapsafe/internal/snaperr"
)

// registry collects engine counters for the current process
var registry = metrics.NewRegistry()

func repoOptions() repo.Options {
	return repo.Options{
		Workers:     config.GetWorkers(),
		LockTimeout: config.GetLockTimeout(),
		Registry:    registry,
	}
}

// rootDir is the directory commands operate on
func rootDir() (string, error) {
	if workDir != "" {
		return workDir, nil
	}
	wd, err := os.Getwd()
	if err != nil {
		return "", fmt.Errorf("failed to get working directory: %w", err)
	}
	return wd, nil
}

func openRepo() (*repo.Repository, error) {
	root, err := rootDir()
	if err != nil {
		return nil, err
	}
	return repo.Open(root, repoOptions())
}

func cmdContext(cmd *cobra.Command) context.Context {
	if cmd != nil && cmd.Context() != nil {
		return cmd.Context()
	}
	return context.Background()
}

// printStructured writes v as JSON or toon when requested and reports
// whether it did.
func printStructured(v interface{}, asJSON, asToon bool) (bool, error) {
	if asJSON {
		output, err := json.MarshalIndent(v, "", "  ")
		if err != nil {
			return true, fmt.Errorf("failed to marshal JSON: %w", err)
		}
		fmt.Println(string(output))
		return true, nil
	}
	if asToon {
		output, err := gotoon.Encode(v)
		if err != nil {
			return true, fmt.Errorf("failed to encode Toon: %w", err)
		}
		fmt.Println(output)
		return true, nil
	}
	return false, nil
}

// exactArgs and rangeArgs classify argument mistakes as user errors
func exactArgs(n int) cobra.PositionalArgs {
	return func(cmd *cobra.Command, args []string) error {
		if err := cobra.ExactArgs(n)(cmd, args); err != nil {
			return snaperr.User(cmd.Name(), "%v", err)
		}
		return nil
	}
}

func rangeArgs(min, max int) cobra.PositionalArgs {
	return func(cmd *cobra.Command, args []string) error {
		if err := cobra.RangeArgs(min, max)(cmd, args); err != nil {
			return snaperr.User(cmd.Name(), "%v", err)
		}
		return nil
	}
}

func formatBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}
