package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"unicode"

	"github.com/spf13/cobra"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

// formatVersion adds 'v' prefix if version starts with a digit
func formatVersion(ver string) string {
	if len(ver) > 0 && unicode.IsDigit(rune(ver[0])) {
		return "v" + ver
	}
	return ver
}

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "blerelay",
	Short: "Bluetooth Low Energy rendezvous relay",
	Long: `Bluetooth Low Energy (BLE) relay that sits between two sensors and a phone:

- Connects to two fixed target peripherals, one at a time
- Discovers the relay characteristic on each and subscribes to it
- Advertises a GATT service and forwards every value to the phone
- Optionally mirrors relayed values to a local pseudo-terminal

Targets, UUIDs and buffer sizes come from a YAML file (--config).`,
	Version: formatVersion(version),
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		// Ctrl+C is a normal exit, not an error - exit silently
		if errors.Is(err, context.Canceled) {
			return
		}
		fmt.Fprintf(os.Stderr, "ERROR: %s\n", FormatUserError(err))
		os.Exit(1)
	}
}

func init() {
	// main() prints clean errors
	rootCmd.SilenceErrors = true
	rootCmd.SetVersionTemplate(fmt.Sprintf("blerelay {{.Version}} (commit %s, built %s)\n", commit, date))

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(simulateCmd)
	rootCmd.AddCommand(targetsCmd)
	rootCmd.AddCommand(matchCmd)
	rootCmd.AddCommand(configCmd)

	// Global flags
	rootCmd.PersistentFlags().String("log-level", "", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringP("config", "c", "", "Path to a YAML configuration file")

	// Add -v as a short flag for --version
	rootCmd.Flags().BoolP("version", "v", false, "Show version information")
}
