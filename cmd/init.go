package cmd

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/pders01/snapsafe/internal/detect"
	"github.com/pders01/snapsafe/internal/repo"
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize a snapshot repository in the current directory",
	Long: `Create the .snapsafe control directory holding the snapshot index,
manifests, store and per-repository configuration.

This command:
  - Records the repository UUID and whether the filesystem is case sensitive
  - Creates a default .snapsafe/config.toml
  - Creates a default global config file if it doesn't exist

Run this once per directory tree. Initializing twice is an error.`,
	Args: exactArgs(0),
	RunE: runInit,
}

func init() {
	rootCmd.AddCommand(initCmd)
}

func runInit(cmd *cobra.Command, args []string) error {
	root, err := rootDir()
	if err != nil {
		return err
	}

	r, err := repo.Init(root, repoOptions())
	if err != nil {
		return err
	}

	fmt.Printf("✓ Initialized snapshot repository in %s\n", r.ControlDir)
	fmt.Printf("  UUID:           %s\n", r.RepoInfo.UUID)
	fmt.Printf("  Case sensitive: %v\n", r.RepoInfo.CaseSensitive)
	fmt.Printf("  Ignored names:  %v\n", detect.DefaultIgnore)

	if err := writeDefaultGlobalConfig(); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: %v\n", err)
	}

	fmt.Println("\n✓ snapsafe initialized successfully!")
	fmt.Println("  You can now use: snapsafe snapshot -m <message>")

	return nil
}

func writeDefaultGlobalConfig() error {
	home, err := os.UserHomeDir()
	if err != nil {
		return fmt.Errorf("failed to get home directory: %w", err)
	}

	configDir := filepath.Join(home, ".config", "snapsafe")
	configPath := filepath.Join(configDir, "config.toml")

	if _, err := os.Stat(configPath); !errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err := os.MkdirAll(configDir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	defaultConfig := `[log]
level = "warn"

[snapshot]
workers = 1

[lock]
timeout = "0s"

[diff]
context = 3
max_bytes = 4194304
`

	if err := os.WriteFile(configPath, []byte(defaultConfig), 0644); err != nil {
		return fmt.Errorf("failed to create config file: %w", err)
	}
	fmt.Printf("✓ Created default config: %s\n", configPath)
	return nil
}
