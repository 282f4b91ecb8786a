// Package cli wires the service together behind a cobra command tree.
package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"wsiserve/config"
	"wsiserve/logger"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:           "wsiserve",
	Short:         "Whole-slide image upload and Deep Zoom conversion service",
	Long:          "wsiserve accepts whole-slide image uploads, converts them to Deep Zoom pyramids with an external tool and serves the tiles.",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "",
		"Path to a YAML config file (default: $WSISERVE_CONFIG, ./config.yaml, /etc/wsiserve/config.yaml)")

	rootCmd.AddCommand(newServeCmd())
	rootCmd.AddCommand(newSlidesCmd())
	rootCmd.AddCommand(newConvertCmd())
	rootCmd.AddCommand(newSweepCmd())
}

// loadConfig loads the configuration and applies its logging section.
func loadConfig() (*config.Config, error) {
	cfg, source, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	if err := logger.Configure(cfg.Logging); err != nil {
		return nil, fmt.Errorf("failed to configure logging: %w", err)
	}
	logger.Debugf("Configuration loaded from %s", source)
	return cfg, nil
}
