package main

import (
	"fmt"
	"os"

	"github.com/Sternrassler/price-getter/internal/config"
	"github.com/Sternrassler/price-getter/pkg/logging"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

// Execute runs the root command and exits non-zero on failure.
func Execute() {
	if err := createRootCmd().Execute(); err != nil {
		log.Error().Err(err).Msg("Command execution failed")
		os.Exit(1)
	}
}

func createRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "pricegetter",
		Short:         "Retailer price lookup gateway",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().String("env-file", "", "Load environment variables from this file (default .env if present)")

	rootCmd.AddCommand(
		serveCmd(),
		lookupCmd(),
	)

	rootCmd.CompletionOptions.HiddenDefaultCmd = true

	return rootCmd
}

// loadConfig reads the environment (and env file), applies flag overrides,
// validates and configures logging.
func loadConfig(cmd *cobra.Command) (config.Config, error) {
	envFile, _ := cmd.Flags().GetString("env-file")

	cfg, err := config.Load(envFile)
	if err != nil {
		return config.Config{}, err
	}

	if f := cmd.Flags().Lookup("port"); f != nil && f.Changed {
		cfg.Port = f.Value.String()
	}

	if err := cfg.Validate(); err != nil {
		return config.Config{}, fmt.Errorf("invalid configuration: %w", err)
	}

	if _, err := logging.Setup(logging.Config{
		Level:  cfg.LogLevel,
		Pretty: cfg.LogPretty,
		Output: os.Stderr,
	}); err != nil {
		return config.Config{}, err
	}

	return cfg, nil
}
