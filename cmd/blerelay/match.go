package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/srg/blerelay/internal/rendezvous"
)

var matchCmd = &cobra.Command{
	Use:   "match <address>",
	Short: "Check an advertised address against the target slots",
	Long: `Check which slot, if any, an address seen while scanning would fill.

The address is taken in over-the-air byte order, the order a sniffer prints
it in. A target matches when the reversed address equals it.`,
	Example: `  blerelay match 1C:0E:F0:39:0A:ED`,
	Args:    cobra.ExactArgs(1),
	RunE:    runMatch,
}

func runMatch(cmd *cobra.Command, args []string) error {
	addr, err := rendezvous.ParseAddress(args[0])
	if err != nil {
		return err
	}
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	registry, err := cfg.Registry()
	if err != nil {
		return err
	}
	cmd.SilenceUsage = true

	slot, ok := registry.Lookup(addr)
	if !ok {
		return fmt.Errorf("%w: %s matches no target", ErrNoMatch, addr)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "slot %d: %s is target %s\n", slot, addr, registry.Target(slot))
	return nil
}
