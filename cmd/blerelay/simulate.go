package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"github.com/srg/blerelay/internal/hoststack/sim"
	"github.com/srg/blerelay/internal/rendezvous"
)

var simulateCmd = &cobra.Command{
	Use:   "simulate <scenario.json>",
	Short: "Run the relay against scripted peripherals",
	Long: `Run the relay against an in-memory host stack described by a JSON scenario.

The scenario lists the simulated peripherals (address as written on the
device, services, characteristics, optional failed connects), whether a phone
attaches, and the values the targets notify. Peripheral addresses must match
the configured targets. A status line is printed on every state change,
followed by what the phone received and the phase transitions.`,
	Example: `  blerelay simulate testdata/two_targets.json
  blerelay simulate --format json scenario.json`,
	Args: cobra.ExactArgs(1),
	RunE: runSimulate,
}

var (
	simulateFormat  string
	simulateVerbose bool
)

func init() {
	simulateCmd.Flags().StringVarP(&simulateFormat, "format", "f", formatText, "Status output format (text, json)")
	simulateCmd.Flags().BoolVarP(&simulateVerbose, "verbose", "V", false, "Debug logging")
}

func runSimulate(cmd *cobra.Command, args []string) error {
	if err := validateFormat(simulateFormat); err != nil {
		return err
	}
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	logger, err := configureLogger(cmd, cfg, "verbose")
	if err != nil {
		return err
	}
	registry, err := cfg.Registry()
	if err != nil {
		return err
	}
	opts, err := cfg.NodeOptions(logger)
	if err != nil {
		return err
	}
	scenario, err := sim.LoadScenario(args[0])
	if err != nil {
		return err
	}

	cmd.SilenceUsage = true

	stack, err := sim.NewFromScenario(scenario, logger)
	if err != nil {
		return err
	}
	node, err := rendezvous.NewNode(stack, registry, opts)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	printer := newStatusPrinter(out, simulateFormat)
	show := func() {
		if err := printer.Print(node.Snapshot()); err != nil {
			logger.WithError(err).Warn("Status output failed")
		}
	}

	if err := node.Start(); err != nil {
		return err
	}
	show()

	err = stack.Play(scenario, func(ev rendezvous.Event) {
		node.Handle(ev)
		show()
	})
	if err != nil {
		return fmt.Errorf("scenario: %w", err)
	}

	if simulateFormat == formatText {
		printSummary(out, stack, node)
	}
	return nil
}

func printSummary(w io.Writer, stack *sim.Stack, node *rendezvous.Node) {
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Phone received:")
	notes := stack.PhoneNotifications()
	if len(notes) == 0 {
		fmt.Fprintln(w, "  (nothing)")
	}
	for _, n := range notes {
		fmt.Fprintf(w, "  %q\n", n.Payload)
	}

	fmt.Fprintln(w, "Transitions:")
	for _, t := range node.Journal().Drain() {
		fmt.Fprintf(w, "  %s -> %s (%s)\n", t.From, t.To, t.Cause)
	}
}
