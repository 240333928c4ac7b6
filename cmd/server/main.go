package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"shared-transactions/internal/config"
	"shared-transactions/pkg/logging"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "shares",
	Short: "Shared transaction participant and share engine",
	Long: `shares serves the shared transaction API and manages its database.

Configuration is read from built-in defaults, then the YAML file given by
--config (or $CONFIG_FILE), then environment variables.

Example Usage:
  shares migrate
  shares user create --username alice
  shares token --user <user-id>
  shares serve`,
	SilenceUsage: true,
	Run: func(cmd *cobra.Command, args []string) {
		cmd.Help()
	},
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "path to a YAML configuration file")

	rootCmd.AddCommand(serveCmd, migrateCmd, userCmd, tokenCmd)
}

// loadConfig loads and validates configuration and installs the logger.
func loadConfig() (*config.Config, *slog.Logger, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, nil, err
	}
	logger := logging.Setup(os.Stderr, cfg.LogLevel, cfg.LogFormat)
	return cfg, logger, nil
}
