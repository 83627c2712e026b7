// Command leaseforge runs the lease lifecycle service and its maintenance
// tasks.
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/Strob0t/LeaseForge/internal/config"
	"github.com/Strob0t/LeaseForge/internal/logger"

	// Notifier providers register themselves in init.
	_ "github.com/Strob0t/LeaseForge/internal/adapter/email"
	_ "github.com/Strob0t/LeaseForge/internal/adapter/slack"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:           "leaseforge",
		Short:         "Lease lifecycle service",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&configPath, "config", config.DefaultConfigFile, "path to the YAML config file")

	root.AddCommand(
		newServeCmd(&configPath),
		newSweepCmd(&configPath),
		newMigrateCmd(&configPath),
		newLeasesCmd(&configPath),
		newTokenCmd(&configPath),
	)
	return root
}

// setup loads the config and installs the default logger. The returned
// func flushes the async log handler.
func setup(configPath string) (*config.Config, func(), error) {
	cfg, err := config.LoadFrom(configPath)
	if err != nil {
		return nil, nil, fmt.Errorf("config: %w", err)
	}
	log, closer := logger.New(cfg.Logging)
	slog.SetDefault(log)
	return cfg, closer.Close, nil
}
