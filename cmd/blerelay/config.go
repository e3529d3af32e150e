package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/srg/blerelay/pkg/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Print the effective configuration",
	Long: `Print the configuration the other commands would use, as YAML.

Values come from the built-in defaults overlaid with the file given by --config.`,
	Args: cobra.NoArgs,
	RunE: runConfig,
}

// loadConfig reads the file named by --config, or the defaults.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(path)
	if err != nil {
		return nil, fmt.Errorf("load configuration: %w", err)
	}
	return cfg, nil
}

func runConfig(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	cmd.SilenceUsage = true

	out, err := cfg.YAML()
	if err != nil {
		return err
	}
	_, err = cmd.OutOrStdout().Write(out)
	return err
}
