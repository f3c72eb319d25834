package cmd

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/pders01/snapsafe/internal/config"
	"github.com/pders01/snapsafe/internal/snaperr"
)

var (
	configGet   string
	configSet   string
	configUnset string
	configJSON  bool
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show or change repository settings",
	Long: `Read and write the per-repository settings in .snapsafe/config.toml.

Keys:
  autobackup               snapshot the working tree before every restore
  compression              none|fast|best (recorded only, contents are never compressed)
  default_snapshot_message message used when snapshot is given none
  max_backups              default --keep-last for prune
  text_diff_extensions     comma separated extensions always diffed as text
  verify_after_snapshot    verify each new snapshot right after it is created

Examples:
  snapsafe config
  snapsafe config --get max_backups
  snapsafe config --set max_backups=10
  snapsafe config --unset autobackup`,
	Args: exactArgs(0),
	RunE: runConfig,
}

func init() {
	rootCmd.AddCommand(configCmd)

	configCmd.Flags().StringVar(&configGet, "get", "", "Print the value of a key")
	configCmd.Flags().StringVar(&configSet, "set", "", "Set key=value")
	configCmd.Flags().StringVar(&configUnset, "unset", "", "Reset a key to its default")
	configCmd.Flags().BoolVar(&configJSON, "json", false, "Output as JSON")
}

func runConfig(cmd *cobra.Command, args []string) error {
	r, err := openRepo()
	if err != nil {
		return err
	}
	ctx := cmdContext(cmd)

	switch {
	case configSet != "":
		pairs, err := parsePairs([]string{configSet})
		if err != nil {
			return snaperr.User("config", "invalid --set %q (use key=value)", configSet)
		}
		if _, err := r.SetConfig(ctx, pairs[0][0], pairs[0][1], false); err != nil {
			return err
		}
		fmt.Printf("✓ %s = %s\n", pairs[0][0], pairs[0][1])
		return nil

	case configUnset != "":
		c, err := r.SetConfig(ctx, configUnset, "", true)
		if err != nil {
			return err
		}
		v, _ := c.Get(configUnset)
		fmt.Printf("✓ %s reset to %q\n", configUnset, v)
		return nil
	}

	c, err := r.Config()
	if err != nil {
		return err
	}

	if configGet != "" {
		v, err := c.Get(configGet)
		if errors.Is(err, config.ErrUnknownKey) {
			return snaperr.User("config", "%v", err)
		}
		if err != nil {
			return err
		}
		fmt.Println(v)
		return nil
	}

	list := c.List()
	if done, err := printStructured(list, configJSON, false); done {
		return err
	}
	for _, kv := range list {
		fmt.Printf("%-26s %s\n", kv.Key, kv.Value)
	}
	return nil
}
