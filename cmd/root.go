package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/pders01/snapsafe/internal/config"
	"github.com/pders01/snapsafe/internal/snaperr"
)

var (
	cfgFile string
	verbose bool
	workDir string
)

var rootCmd = &cobra.Command{
	Use:   "snapsafe",
	Short: "Space-efficient hard-link snapshots of a directory tree",
	Long: `snapsafe captures point-in-time snapshots of a directory tree:
  - unchanged files are hard-linked to earlier snapshots, never copied
  - every snapshot has a manifest with sizes, times, permissions and SHA-256 fingerprints
  - snapshots can be diffed, restored, pruned and verified

Built for build artifacts and large binaries where most files do not
change between captures.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command and exits with a status derived from the
// error kind: 1 I/O, 2 user error, 3 integrity, 4 lock held.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(exitCode(err))
	}
}

func exitCode(err error) int {
	var se *snaperr.Error
	if errors.As(err, &se) {
		return se.Kind.ExitCode()
	}
	if strings.HasPrefix(err.Error(), "unknown command") {
		return snaperr.KindUser.ExitCode()
	}
	return snaperr.KindIO.ExitCode()
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.config/snapsafe/config.toml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")
	rootCmd.PersistentFlags().StringVarP(&workDir, "dir", "C", "", "Run as if started in this directory")

	rootCmd.SetFlagErrorFunc(func(c *cobra.Command, err error) error {
		return snaperr.User(c.Name(), "%v", err)
	})
}

func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		if err == nil {
			configDir := filepath.Join(home, ".config", "snapsafe")
			viper.AddConfigPath(configDir)
		}
		viper.SetConfigType("toml")
		viper.SetConfigName("config")
	}

	viper.SetEnvPrefix("SNAPSAFE")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	config.SetDefaults()

	configErr := viper.ReadInConfig()
	setupLogging()
	if configErr == nil {
		log.Debugf("Using config file: %s", viper.ConfigFileUsed())
	} else if cfgFile != "" {
		fmt.Fprintf(os.Stderr, "Warning: failed to read config %s: %v\n", cfgFile, configErr)
	}
}

func setupLogging() {
	log.SetOutput(os.Stderr)
	log.SetFormatter(&log.TextFormatter{DisableTimestamp: true})
	level, err := log.ParseLevel(config.GetLogLevel())
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warning: invalid log.level %q, using warn\n", config.GetLogLevel())
		level = log.WarnLevel
	}
	if verbose {
		level = log.DebugLevel
	}
	log.SetLevel(level)
}
