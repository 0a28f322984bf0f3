package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/goliatone/go-result-cache/cache"
)

const envPrefix = "RESULTCACHE"

func main() {
	if err := newRootCommand(os.Stdout).Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCommand(out io.Writer) *cobra.Command {
	v := viper.New()
	defaults := cache.DefaultConfig()

	root := &cobra.Command{
		Use:          "resultcache",
		Short:        "Exercise the tag-invalidated result cache",
		SilenceUsage: true,
	}
	root.SetOut(out)

	flags := root.PersistentFlags()
	flags.String("log-level", "info", "log level (debug, info, warn, error)")
	flags.Int("capacity", defaults.Capacity, "maximum number of cached entries")
	flags.Int("shards", defaults.NumShards, "number of store shards")
	flags.Duration("max-ttl", defaults.MaxTTL, "longest lifetime an entry can have")
	flags.Duration("sweep-interval", defaults.SweepInterval, "background compaction interval, 0 disables it")
	flags.Int("tag-size-warning", defaults.TagSizeWarning, "warn when a tag reaches this many members, 0 disables it")
	if err := bindConfig(v, root); err != nil {
		panic(err)
	}

	root.AddCommand(newDemoCommand(v), newStressCommand(v))
	return root
}

// bindConfig makes every persistent flag of cmd resolvable through v, with
// RESULTCACHE_* environment variables filling in unset flags.
func bindConfig(v *viper.Viper, cmd *cobra.Command) error {
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	return v.BindPFlags(cmd.PersistentFlags())
}

// loadConfig resolves the cache configuration from flags, then
// RESULTCACHE_* environment variables, then defaults.
func loadConfig(v *viper.Viper, logger *slog.Logger) (cache.Config, error) {
	cfg := cache.DefaultConfig()
	cfg.Capacity = v.GetInt("capacity")
	cfg.NumShards = v.GetInt("shards")
	cfg.MaxTTL = v.GetDuration("max-ttl")
	cfg.SweepInterval = v.GetDuration("sweep-interval")
	cfg.TagSizeWarning = v.GetInt("tag-size-warning")
	cfg.Logger = logger

	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("invalid cache configuration: %w", err)
	}
	return cfg, nil
}

func newLogger(v *viper.Viper) *slog.Logger {
	var level slog.Level
	switch strings.ToLower(v.GetString("log-level")) {
	case "debug":
		level = slog.LevelDebug
	case "warn", "warning":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

// newCoordinator builds a coordinator from the resolved configuration.
func newCoordinator(v *viper.Viper) (*cache.Coordinator, *slog.Logger, error) {
	logger := newLogger(v)
	cfg, err := loadConfig(v, logger)
	if err != nil {
		return nil, nil, err
	}
	c, err := cache.NewCoordinator(cfg)
	if err != nil {
		return nil, nil, err
	}
	return c, logger, nil
}
