package config

import (
	"time"

	"github.com/spf13/viper"
)

// SetDefaults registers the default values of every global key
func SetDefaults() {
	viper.SetDefault("log.level", "warn")
	viper.SetDefault("snapshot.workers", 1)
	viper.SetDefault("lock.timeout", "0s")
	viper.SetDefault("diff.context", 3)
	viper.SetDefault("diff.max_bytes", 4<<20)
}

// GetLogLevel returns the configured logrus level name
func GetLogLevel() string {
	return viper.GetString("log.level")
}

// GetWorkers returns how many files are fingerprinted in parallel
func GetWorkers() int {
	n := viper.GetInt("snapshot.workers")
	if n < 1 {
		return 1
	}
	return n
}

// GetLockTimeout returns how long to wait for the exclusive repository lock.
// Zero means fail immediately when another operation holds it.
func GetLockTimeout() time.Duration {
	return viper.GetDuration("lock.timeout")
}

// GetDiffContext returns the number of context lines in unified diffs
func GetDiffContext() int {
	return viper.GetInt("diff.context")
}

// GetDiffMaxBytes returns the combined size above which line diffs are skipped
func GetDiffMaxBytes() int {
	return viper.GetInt("diff.max_bytes")
}
