package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"github.com/srg/blerelay/internal/rendezvous"
)

var targetsCmd = &cobra.Command{
	Use:   "targets",
	Short: "List the configured target slots",
	Long: `List the two target slots with the address written on each device and the
byte order in which the radio reports it while scanning.`,
	Args: cobra.NoArgs,
	RunE: runTargets,
}

func runTargets(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	registry, err := cfg.Registry()
	if err != nil {
		return err
	}
	cmd.SilenceUsage = true

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "SLOT\tTARGET\tADVERTISED AS")
	for i := rendezvous.SlotIndex(0); i < rendezvous.SlotCount; i++ {
		target := registry.Target(i)
		fmt.Fprintf(w, "%d\t%s\t%s\n", i, target, target.Reverse())
	}
	return w.Flush()
}
