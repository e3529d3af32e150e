package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"github.com/srg/blerelay/internal/groutine"
	"github.com/srg/blerelay/internal/hoststack/goble"
	"github.com/srg/blerelay/internal/ptysink"
	"github.com/srg/blerelay/internal/rendezvous"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the relay on the local Bluetooth controller",
	Long: `Run the relay until interrupted.

The node scans for the first target, connects, then the second, subscribes to
the relay characteristic on both and forwards every value to a connected
phone as "Device N: xx ". A status line is printed on every state change.`,
	Example: `  blerelay run
  blerelay run --config relay.yaml --format json
  blerelay run --pty --pty-link /tmp/blerelay`,
	Args: cobra.NoArgs,
	RunE: runRelay,
}

var (
	runFormat  string
	runVerbose bool
	runPTY     bool
	runPTYLink string
)

func init() {
	runCmd.Flags().StringVarP(&runFormat, "format", "f", formatText, "Status output format (text, json)")
	runCmd.Flags().BoolVarP(&runVerbose, "verbose", "V", false, "Debug logging")
	runCmd.Flags().BoolVar(&runPTY, "pty", false, "Mirror relayed values to a pseudo-terminal")
	runCmd.Flags().StringVar(&runPTYLink, "pty-link", "", "Symlink to create for the mirror terminal")
}

func runRelay(cmd *cobra.Command, _ []string) error {
	if err := validateFormat(runFormat); err != nil {
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

	// All arguments validated - don't show usage on runtime errors
	cmd.SilenceUsage = true

	session := uuid.NewString()
	logger.AddHook(sessionHook{id: session})

	if runPTY || cfg.Mirror.Enabled {
		link := cfg.Mirror.Link
		if runPTYLink != "" {
			link = runPTYLink
		}
		sink, err := ptysink.Open(ptysink.Options{
			BufferSize: cfg.Mirror.BufferSize,
			Link:       link,
			Logger:     logger,
		})
		if err != nil {
			return fmt.Errorf("open mirror terminal: %w", err)
		}
		defer sink.Close()
		opts.Mirror = sink
		fmt.Fprintf(cmd.OutOrStdout(), "Mirroring relayed values to %s\n", sink.TTYName())
	}

	dev, err := goble.NewDevice(cfg.DeviceID)
	if err != nil {
		return fmt.Errorf("open bluetooth device: %w", err)
	}
	adapter := goble.New(dev, goble.Options{ConnectTimeout: cfg.ConnectTimeout, Logger: logger})
	defer adapter.Close()

	node, err := rendezvous.NewNode(adapter, registry, opts)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	adapter.Attach(func(ev rendezvous.Event) {
		_ = node.Post(ctx, ev)
	})

	logger.WithField("targets", cfg.Targets).Info("Relay starting")

	var printer groutine.Group
	printer.Go(ctx, "status-printer", func(context.Context) {
		p := newStatusPrinter(cmd.OutOrStdout(), runFormat)
		for snap := range node.Updates() {
			if err := p.Print(snap); err != nil {
				logger.WithError(err).Warn("Status output failed")
			}
		}
	})

	err = node.Run(ctx)
	printer.Wait()

	for _, t := range node.Journal().Drain() {
		logger.WithField("cause", t.Cause).Debugf("transition %s -> %s", t.From, t.To)
	}

	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
